package notification

import (
	"bufio"
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/iamgilwell/procguard/internal/process"
	"github.com/iamgilwell/procguard/internal/safety"
	"github.com/iamgilwell/procguard/internal/suppression"
)

func TestNotifierLevels(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "procguard.log")
	n, err := NewNotifier(logPath, false, false)
	if err != nil {
		t.Fatal(err)
	}
	defer n.Close()
	var buf bytes.Buffer
	n.SetOutput(&buf)

	n.Info("scan complete")
	n.Warn("service map stale")
	n.Debug("hidden")

	out := buf.String()
	if !strings.Contains(out, "[INFO] scan complete") || !strings.Contains(out, "[WARN] service map stale") {
		t.Errorf("console output = %q", out)
	}
	if strings.Contains(out, "hidden") {
		t.Error("debug printed without verbose")
	}

	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "[WARN] service map stale") {
		t.Errorf("log file = %q", data)
	}
}

func TestNotifierTermination(t *testing.T) {
	n, _ := NewNotifier("", false, true)
	var buf bytes.Buffer
	n.SetOutput(&buf)

	n.Termination(process.Outcome{
		PID:     700,
		Name:    "csrss.exe",
		Safety:  safety.Info{Tier: safety.TierRed},
		State:   process.StateBlocked,
		Message: "BLOCKED: csrss.exe is system critical.",
	})
	out := buf.String()
	for _, want := range []string{"[KILL]", "red", "FAIL", "PID=700", "blocked", "BLOCKED"} {
		if !strings.Contains(out, want) {
			t.Errorf("output %q missing %q", out, want)
		}
	}
}

func TestAuditorWritesJSONLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	a, err := NewAuditor(path)
	if err != nil {
		t.Fatal(err)
	}

	a.LogTermination(process.Outcome{PID: 5000, Name: "worker.exe", State: process.StateDone, Success: true,
		Safety: safety.Info{Tier: safety.TierGreen}, Message: "Successfully terminated worker.exe (PID 5000)"})
	a.LogRespawn(process.Respawn{Name: "worker.exe", Original: process.Identity{PID: 5000}, New: process.Identity{PID: 5101}})
	a.LogSuppression(suppression.Event{
		Action:  suppression.ActionApply,
		Entry:   suppression.Entry{ProcessName: "worker.exe", Method: suppression.ServiceMethod{Service: "WorkerSvc"}},
		Success: true,
		Message: "Service 'WorkerSvc' disabled.",
	})
	a.Close()

	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	var entries []AuditEntry
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var e AuditEntry
		if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
			t.Fatalf("line %q: %v", scanner.Text(), err)
		}
		entries = append(entries, e)
	}
	if len(entries) != 3 {
		t.Fatalf("entries = %d, want 3", len(entries))
	}
	if entries[0].Event != "termination" || entries[0].Tier != "green" || entries[0].State != "done" {
		t.Errorf("termination entry = %+v", entries[0])
	}
	if entries[1].Event != "respawn" || entries[1].PID != 5101 {
		t.Errorf("respawn entry = %+v", entries[1])
	}
	if entries[2].Event != "suppression_apply" || entries[2].Method != "service" || entries[2].Detail != "WorkerSvc" {
		t.Errorf("suppression entry = %+v", entries[2])
	}
}

func TestAuditorWithoutFile(t *testing.T) {
	a, err := NewAuditor("")
	if err != nil {
		t.Fatal(err)
	}
	a.LogEvent("startup", "no file")
	a.Close()
}
