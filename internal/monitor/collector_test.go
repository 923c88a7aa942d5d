package monitor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/iamgilwell/procguard/internal/safety"
)

type fakeSource struct {
	mu      sync.Mutex
	samples []Sample
	err     error
}

func (f *fakeSource) Samples(context.Context) ([]Sample, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return append([]Sample(nil), f.samples...), nil
}

func (f *fakeSource) set(samples ...Sample) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.samples = samples
}

type fakeServices struct {
	calls  int
	hosted map[int][]string
	err    error
}

func (f *fakeServices) HostedServices(context.Context) (map[int][]string, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.hosted, nil
}

type stepClock struct {
	t    time.Time
	step time.Duration
}

func (c *stepClock) now() time.Time {
	cur := c.t
	c.t = c.t.Add(c.step)
	return cur
}

func boolPtr(b bool) *bool { return &b }

func mustGet(t *testing.T, snap *Snapshot, pid int) *ProcessRecord {
	t.Helper()
	rec, ok := snap.Get(pid)
	if !ok {
		t.Fatalf("pid %d missing from snapshot", pid)
	}
	return rec
}

func testCollectorClassifier() *safety.Classifier {
	return safety.NewClassifier(safety.Overrides{
		AlwaysCritical: []string{"csrss.exe"},
	}, safety.MapCatalog{
		"svchost.exe": {Category: safety.CategoryService, SafeToKill: boolPtr(false)},
		"chrome.exe":  {Category: safety.CategoryUserApp},
	})
}

func TestCollectBuildsRecords(t *testing.T) {
	start := time.Unix(1000, 0)
	src := &fakeSource{}
	src.set(
		Sample{PID: 4, Name: "System", StartTime: start},
		Sample{PID: 600, Name: "svchost.exe", ParentPID: 500, StartTime: start},
		Sample{PID: 500, Name: "services.exe", StartTime: start},
		Sample{PID: 900, Name: "chrome.exe", ParentPID: 1, StartTime: start, MemoryBytes: 4 << 20},
	)
	svcs := &fakeServices{hosted: map[int][]string{600: {"Dnscache", "LanmanWorkstation"}}}
	clock := &stepClock{t: time.Unix(2000, 0), step: time.Second}

	c := NewCollector(src, svcs, testCollectorClassifier(), WithClock(clock.now))
	snap, err := c.Collect(context.Background())
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if snap.Len() != 4 {
		t.Fatalf("snapshot has %d records, want 4", snap.Len())
	}

	sys := mustGet(t, snap, 4)
	if sys.Safety.Tier != safety.TierRed {
		t.Errorf("pid 4 tier = %v, want red", sys.Safety.Tier)
	}

	svchost := mustGet(t, snap, 600)
	if svchost.ParentName != "services.exe" {
		t.Errorf("parent name = %q, want services.exe", svchost.ParentName)
	}
	if len(svchost.HostedServices) != 2 {
		t.Errorf("hosted services = %v", svchost.HostedServices)
	}
	if svchost.Category != string(safety.CategoryService) {
		t.Errorf("category = %q, want service", svchost.Category)
	}
	if svchost.Safety.Tier != safety.TierYellow {
		t.Errorf("unsafe service tier = %v, want yellow", svchost.Safety.Tier)
	}

	chrome := mustGet(t, snap, 900)
	if chrome.ParentName != "" {
		t.Errorf("missing parent should leave name empty, got %q", chrome.ParentName)
	}
	if chrome.MemoryMB() != 4 {
		t.Errorf("memory = %v MB, want 4", chrome.MemoryMB())
	}
	if mustGet(t, snap, 500).Category != string(safety.CategoryUnknown) {
		t.Errorf("uncatalogued category = %q, want unknown", mustGet(t, snap, 500).Category)
	}
}

func TestCollectDerivesRates(t *testing.T) {
	start := time.Unix(1000, 0)
	src := &fakeSource{}
	clock := &stepClock{t: time.Unix(2000, 0), step: 5 * time.Second}
	c := NewCollector(src, nil, nil, WithClock(clock.now))

	src.set(Sample{PID: 10, Name: "worker", StartTime: start, Counters: Counters{DiskRead: 100, DiskWrite: 200}})
	snap, err := c.Collect(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if r := mustGet(t, snap, 10); r.DiskReadRate != 0 || r.DiskWriteRate != 0 {
		t.Errorf("first cycle rates = %v/%v, want 0", r.DiskReadRate, r.DiskWriteRate)
	}

	src.set(Sample{PID: 10, Name: "worker", StartTime: start, Counters: Counters{DiskRead: 150, DiskWrite: 250}})
	snap, err = c.Collect(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if r := mustGet(t, snap, 10); r.DiskReadRate != 10 || r.DiskWriteRate != 10 {
		t.Errorf("rates = %v/%v, want 10/10", r.DiskReadRate, r.DiskWriteRate)
	}
}

func TestCollectPurgesExitedProcesses(t *testing.T) {
	start := time.Unix(1000, 0)
	src := &fakeSource{}
	c := NewCollector(src, nil, nil)

	src.set(
		Sample{PID: 1, Name: "a", StartTime: start},
		Sample{PID: 2, Name: "b", StartTime: start},
		Sample{PID: 3, Name: "c", StartTime: start},
	)
	if _, err := c.Collect(context.Background()); err != nil {
		t.Fatal(err)
	}
	if c.TrackedPIDs() != 3 {
		t.Fatalf("tracked = %d, want 3", c.TrackedPIDs())
	}

	src.set(Sample{PID: 2, Name: "b", StartTime: start})
	snap, err := c.Collect(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if c.TrackedPIDs() != 1 {
		t.Errorf("tracked after exit = %d, want 1", c.TrackedPIDs())
	}
	if _, ok := snap.Get(1); ok {
		t.Error("exited pid 1 still present in snapshot")
	}
	if _, ok := snap.Get(3); ok {
		t.Error("exited pid 3 still present in snapshot")
	}
}

func TestCollectServiceRefreshCadence(t *testing.T) {
	src := &fakeSource{}
	src.set(Sample{PID: 7, Name: "svc"})
	svcs := &fakeServices{hosted: map[int][]string{7: {"alpha"}}}
	c := NewCollector(src, svcs, nil, WithServiceRefresh(3))

	for i := 0; i < 7; i++ {
		if _, err := c.Collect(context.Background()); err != nil {
			t.Fatal(err)
		}
	}
	// Cycles 0, 3 and 6 refresh.
	if svcs.calls != 3 {
		t.Errorf("service enumerations = %d, want 3", svcs.calls)
	}
}

func TestCollectKeepsStaleServicesOnError(t *testing.T) {
	src := &fakeSource{}
	src.set(Sample{PID: 7, Name: "svc"})
	svcs := &fakeServices{hosted: map[int][]string{7: {"alpha"}}}
	c := NewCollector(src, svcs, nil, WithServiceRefresh(1))

	if _, err := c.Collect(context.Background()); err != nil {
		t.Fatal(err)
	}
	svcs.err = errors.New("scm unavailable")
	snap, err := c.Collect(context.Background())
	if err != nil {
		t.Fatalf("service failure should not fail the snapshot: %v", err)
	}
	if got := mustGet(t, snap, 7).HostedServices; len(got) != 1 || got[0] != "alpha" {
		t.Errorf("hosted services = %v, want stale [alpha]", got)
	}
}

func TestCollectSourceError(t *testing.T) {
	src := &fakeSource{err: errors.New("boom")}
	c := NewCollector(src, nil, nil)
	if _, err := c.Collect(context.Background()); err == nil {
		t.Fatal("expected an error from a failing source")
	}
}

func TestSnapshotByNameCaseInsensitive(t *testing.T) {
	snap := &Snapshot{Processes: map[int]*ProcessRecord{
		30: {PID: 30, Name: "Worker.exe"},
		10: {PID: 10, Name: "worker.exe"},
		20: {PID: 20, Name: "other.exe"},
	}}
	got := snap.ByName("WORKER.EXE")
	if len(got) != 2 || got[0].PID != 10 || got[1].PID != 30 {
		t.Errorf("ByName = %+v, want pids 10 and 30", got)
	}
}

func TestParseShowMainPID(t *testing.T) {
	out := []byte("Id=sshd.service\nMainPID=812\n\nId=cron.service\nMainPID=0\n\nId=a.service\nMainPID=812\n")
	got := parseShowMainPID(out)
	if len(got) != 1 {
		t.Fatalf("parsed %v, want one pid", got)
	}
	if names := got[812]; len(names) != 2 || names[0] != "a" || names[1] != "sshd" {
		t.Errorf("pid 812 services = %v, want [a sshd]", names)
	}
}
