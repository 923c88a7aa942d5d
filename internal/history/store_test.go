package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/iamgilwell/procguard/internal/process"
	"github.com/iamgilwell/procguard/internal/safety"
)

func openTest(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRecordTerminationNewestFirst(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()
	clock := time.Unix(1700000000, 0)
	s.now = func() time.Time { clock = clock.Add(time.Second); return clock }

	outcomes := []process.Outcome{
		{PID: 100, Name: "worker.exe", Safety: safety.Info{Tier: safety.TierGreen}, State: process.StateDone, Success: true, Message: "Successfully terminated worker.exe (PID 100)"},
		{PID: 4, Name: "System", Safety: safety.Info{Tier: safety.TierRed}, State: process.StateBlocked, Message: "BLOCKED"},
		{PID: 200, Name: "build", Safety: safety.Info{Tier: safety.TierGreen}, State: process.StateDone, Tree: true, Children: 3, Success: true},
		{PID: 300, Name: "dup", State: process.StateInProgress},
	}
	for _, o := range outcomes {
		if err := s.RecordTermination(ctx, o); err != nil {
			t.Fatalf("RecordTermination: %v", err)
		}
	}

	got, err := s.Terminations(ctx, "", 10)
	if err != nil {
		t.Fatalf("Terminations: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d rows, want 3 (in-progress refusals skipped)", len(got))
	}
	if got[0].PID != 200 || !got[0].Tree || got[0].Children != 3 {
		t.Errorf("newest = %+v", got[0])
	}
	if got[1].Tier != "red" || got[1].State != "blocked" || got[1].Success {
		t.Errorf("blocked row = %+v", got[1])
	}
	if !got[2].At.Before(got[0].At) {
		t.Errorf("timestamps not ordered: %v then %v", got[2].At, got[0].At)
	}

	byName, err := s.Terminations(ctx, "WORKER.EXE", 10)
	if err != nil {
		t.Fatalf("Terminations by name: %v", err)
	}
	if len(byName) != 1 || byName[0].PID != 100 {
		t.Errorf("by name = %+v", byName)
	}

	limited, _ := s.Terminations(ctx, "", 1)
	if len(limited) != 1 {
		t.Errorf("limit ignored: %d rows", len(limited))
	}
}

func TestRecordRespawn(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()
	detected := time.Unix(1700000100, 0)

	r := process.Respawn{
		Name:       "worker.exe",
		Original:   process.Identity{PID: 5000, Name: "worker.exe"},
		New:        process.Identity{PID: 5101, Name: "worker.exe", ExePath: `C:\Apps\worker.exe`},
		DetectedAt: detected,
	}
	if err := s.RecordRespawn(ctx, r); err != nil {
		t.Fatalf("RecordRespawn: %v", err)
	}
	if err := s.RecordRespawn(ctx, r); err != nil {
		t.Fatalf("RecordRespawn: %v", err)
	}

	got, err := s.Respawns(ctx, "worker.exe", 0)
	if err != nil {
		t.Fatalf("Respawns: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d respawns, want 2", len(got))
	}
	if got[0].OriginalPID != 5000 || got[0].NewPID != 5101 || got[0].NewExePath != `C:\Apps\worker.exe` {
		t.Errorf("respawn = %+v", got[0])
	}
	if !got[0].At.Equal(detected) {
		t.Errorf("At = %v, want %v", got[0].At, detected)
	}

	n, err := s.RespawnCount(ctx, "Worker.exe")
	if err != nil || n != 2 {
		t.Errorf("RespawnCount = %d, %v; want 2", n, err)
	}
}

func TestOpenFileDatabasePersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "history.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	o := process.Outcome{PID: 1, Name: "a", State: process.StateDone, Success: true}
	if err := s.RecordTermination(context.Background(), o); err != nil {
		t.Fatalf("RecordTermination: %v", err)
	}
	s.Close()

	s, err = Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close()
	got, err := s.Terminations(context.Background(), "", 0)
	if err != nil || len(got) != 1 {
		t.Errorf("after reopen: %d rows, %v", len(got), err)
	}
}
