package suppression

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/iamgilwell/procguard/internal/oserr"
)

// fakeToggle models services and tasks: a name maps to enabled.
type fakeToggle struct {
	mu         sync.Mutex
	enabled    map[string]bool
	failEnable map[string]error
	onEnable   func(name string)
	calls      []string
}

func newFakeToggle(names ...string) *fakeToggle {
	f := &fakeToggle{enabled: map[string]bool{}, failEnable: map[string]error{}}
	for _, n := range names {
		f.enabled[n] = true
	}
	return f
}

func (f *fakeToggle) Disable(_ context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "disable "+name)
	if _, ok := f.enabled[name]; !ok {
		return fmt.Errorf("%s: %w", name, oserr.ErrNotFound)
	}
	f.enabled[name] = false
	return nil
}

func (f *fakeToggle) Enable(_ context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "enable "+name)
	if f.onEnable != nil {
		f.onEnable(name)
	}
	if err := f.failEnable[name]; err != nil {
		return err
	}
	if _, ok := f.enabled[name]; !ok {
		return fmt.Errorf("%s: %w", name, oserr.ErrNotFound)
	}
	f.enabled[name] = true
	return nil
}

func (f *fakeToggle) isEnabled(name string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.enabled[name]
}

type fakeStartup struct {
	values       map[string]string
	uncapturable map[string]bool
}

func (f *fakeStartup) Remove(_ context.Context, name string) (StartupMethod, error) {
	v, ok := f.values[name]
	if !ok {
		return StartupMethod{}, fmt.Errorf("%s: %w", name, oserr.ErrNotFound)
	}
	delete(f.values, name)
	m := StartupMethod{Name: name, Location: "HKCU"}
	if !f.uncapturable[name] {
		m.Value = v
		m.Restorable = true
	}
	return m, nil
}

func (f *fakeStartup) Restore(_ context.Context, m StartupMethod) error {
	f.values[m.Name] = m.Value
	return nil
}

type fakeHooks struct {
	blocked map[string]bool
}

func (f *fakeHooks) Block(_ context.Context, exe string) error {
	f.blocked[exe] = true
	return nil
}

func (f *fakeHooks) Unblock(_ context.Context, exe string) error {
	delete(f.blocked, exe)
	return nil
}

type fixture struct {
	engine   *Engine
	services *fakeToggle
	tasks    *fakeToggle
	startup  *fakeStartup
	hooks    *fakeHooks
	ledger   string
	events   []Event
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		services: newFakeToggle("WorkerSvc", "Spooler", "Updater"),
		tasks:    newFakeToggle(`\Vendor\Updater`, "Nightly"),
		startup:  &fakeStartup{values: map[string]string{"Tray": `"C:\tray.exe" /min`}, uncapturable: map[string]bool{}},
		hooks:    &fakeHooks{blocked: map[string]bool{}},
		ledger:   filepath.Join(t.TempDir(), "suppressions.json"),
	}
	ledger, err := OpenLedger(f.ledger)
	if err != nil {
		t.Fatalf("OpenLedger: %v", err)
	}
	clock := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	f.engine = NewEngine(ledger, Backends{
		Services: f.services,
		Startup:  f.startup,
		Tasks:    f.tasks,
		Hooks:    f.hooks,
	}, WithClock(func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}), WithObserver(func(ev Event) { f.events = append(f.events, ev) }))
	return f
}

func (f *fixture) reload(t *testing.T) *Ledger {
	t.Helper()
	l, err := OpenLedger(f.ledger)
	if err != nil {
		t.Fatalf("reloading ledger: %v", err)
	}
	return l
}

func TestApplyServiceIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.engine.ApplyService(ctx, Target{ProcessName: "worker.exe"}, "WorkerSvc")
	if err != nil {
		t.Fatalf("first apply: %v", err)
	}
	second, err := f.engine.ApplyService(ctx, Target{ProcessName: "worker.exe"}, "WorkerSvc")
	if err != nil {
		t.Fatalf("second apply on a disabled service: %v", err)
	}
	if first.ID != second.ID {
		t.Errorf("second apply created entry %d, want existing %d", second.ID, first.ID)
	}
	if n := len(f.engine.Entries()); n != 1 {
		t.Errorf("ledger has %d entries, want 1", n)
	}
	if f.services.isEnabled("WorkerSvc") {
		t.Error("service still enabled")
	}
	if n := f.reload(t).Len(); n != 1 {
		t.Errorf("persisted ledger has %d entries, want 1", n)
	}
}

func TestApplyFailureRecordsNothing(t *testing.T) {
	f := newFixture(t)
	_, err := f.engine.ApplyService(context.Background(), Target{}, "NoSuchSvc")
	if !errors.Is(err, oserr.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	if n := len(f.engine.Entries()); n != 0 {
		t.Errorf("failed apply recorded %d entries", n)
	}
	if _, statErr := os.Stat(f.ledger); !errors.Is(statErr, os.ErrNotExist) {
		t.Errorf("failed apply wrote the ledger: %v", statErr)
	}
	if len(f.events) != 1 || f.events[0].Success {
		t.Errorf("events = %+v, want one failure", f.events)
	}
}

func TestApplyEmptyName(t *testing.T) {
	f := newFixture(t)
	if _, err := f.engine.ApplyTask(context.Background(), Target{}, "  "); err == nil {
		t.Fatal("expected an error for an empty task name")
	}
}

func TestTaskRoundTrip(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	entry, err := f.engine.ApplyTask(ctx, Target{ProcessName: "updater.exe"}, `\Vendor\Updater`)
	if err != nil {
		t.Fatal(err)
	}
	if f.tasks.isEnabled(`\Vendor\Updater`) {
		t.Fatal("task still enabled after apply")
	}

	if _, err := f.engine.Restore(ctx, entry.ID); err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if !f.tasks.isEnabled(`\Vendor\Updater`) {
		t.Error("task not re-enabled")
	}
	if n := len(f.engine.Entries()); n != 0 {
		t.Errorf("entry kept after restore: %d", n)
	}
	if n := f.reload(t).Len(); n != 0 {
		t.Errorf("persisted ledger has %d entries after restore", n)
	}
}

func TestRestoreAllContinuesPastFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, svc := range []string{"WorkerSvc", "Spooler", "Updater"} {
		if _, err := f.engine.ApplyService(ctx, Target{}, svc); err != nil {
			t.Fatal(err)
		}
	}
	// Newest first: Updater, Spooler, WorkerSvc. The second one fails.
	f.services.failEnable["Spooler"] = oserr.Classify(fmt.Errorf("Spooler: %w", oserr.ErrPermissionDenied))

	results := f.engine.RestoreAll(ctx)
	if len(results) != 3 {
		t.Fatalf("results = %d, want 3", len(results))
	}
	wantOrder := []string{"Updater", "Spooler", "WorkerSvc"}
	wantOK := []bool{true, false, true}
	for i, r := range results {
		if r.Entry.Detail() != wantOrder[i] || r.Success != wantOK[i] {
			t.Errorf("result %d = %s/%v, want %s/%v", i, r.Entry.Detail(), r.Success, wantOrder[i], wantOK[i])
		}
	}
	if !strings.HasPrefix(results[1].Message, "Access denied") {
		t.Errorf("failure message = %q", results[1].Message)
	}
	if !f.services.isEnabled("WorkerSvc") {
		t.Error("third entry was not attempted")
	}

	entries := f.engine.Entries()
	if len(entries) != 1 || entries[0].Detail() != "Spooler" {
		t.Errorf("remaining entries = %+v, want only Spooler", entries)
	}
}

func TestRestoreAllSkipsEntriesRemovedMidway(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var spooler Entry
	for _, svc := range []string{"WorkerSvc", "Spooler", "Updater"} {
		e, err := f.engine.ApplyService(ctx, Target{}, svc)
		if err != nil {
			t.Fatal(err)
		}
		if svc == "Spooler" {
			spooler = e
		}
	}
	// Spooler's entry disappears after the snapshot, while Updater is restored.
	f.services.onEnable = func(name string) {
		if name == "Updater" {
			if err := f.engine.ledger.remove(spooler.ID); err != nil {
				t.Errorf("removing Spooler entry: %v", err)
			}
		}
	}

	results := f.engine.RestoreAll(ctx)
	if len(results) != 2 {
		t.Fatalf("results = %+v, want Updater and WorkerSvc only", results)
	}
	for i, want := range []string{"Updater", "WorkerSvc"} {
		if results[i].Entry.Detail() != want || !results[i].Success {
			t.Errorf("result %d = %s/%v (%v), want %s/true", i, results[i].Entry.Detail(), results[i].Success, results[i].Err, want)
		}
	}
	for _, c := range f.services.calls {
		if c == "enable Spooler" {
			t.Error("restored an entry that was no longer in the ledger")
		}
	}
	if n := len(f.engine.Entries()); n != 0 {
		t.Errorf("remaining entries = %d, want 0", n)
	}
}

func TestRestoreNotFoundKeepsEntry(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	entry, err := f.engine.ApplyService(ctx, Target{}, "Updater")
	if err != nil {
		t.Fatal(err)
	}
	delete(f.services.enabled, "Updater")

	if _, err := f.engine.Restore(ctx, entry.ID); !errors.Is(err, oserr.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	if _, ok := f.engine.Entry(entry.ID); !ok {
		t.Fatal("entry removed although restore failed")
	}
	if _, err := f.engine.Forget(entry.ID); err != nil {
		t.Fatalf("Forget: %v", err)
	}
	if _, ok := f.engine.Entry(entry.ID); ok {
		t.Error("entry kept after forget")
	}
}

func TestRestoreUnknownID(t *testing.T) {
	f := newFixture(t)
	if _, err := f.engine.Restore(context.Background(), 42); !errors.Is(err, oserr.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestStartupCaptureAndRestore(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	entry, err := f.engine.ApplyStartup(ctx, Target{ProcessName: "tray.exe", ExePath: `C:\tray.exe`}, "Tray")
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := f.startup.values["Tray"]; ok {
		t.Fatal("startup value not removed")
	}
	again, err := f.engine.ApplyStartup(ctx, Target{}, "Tray")
	if err != nil || again.ID != entry.ID {
		t.Fatalf("second apply = %+v, %v; want existing entry", again, err)
	}

	persisted, ok := f.reload(t).Get(entry.ID)
	if !ok {
		t.Fatal("entry not persisted")
	}
	m := persisted.Method.(StartupMethod)
	if m.Value != `"C:\tray.exe" /min` || !m.Restorable || m.Location != "HKCU" {
		t.Errorf("persisted method = %+v", m)
	}

	if _, err := f.engine.Restore(ctx, entry.ID); err != nil {
		t.Fatal(err)
	}
	if got := f.startup.values["Tray"]; got != `"C:\tray.exe" /min` {
		t.Errorf("restored value = %q", got)
	}
}

func TestStartupDegradedEntry(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.startup.uncapturable["Tray"] = true

	entry, err := f.engine.ApplyStartup(ctx, Target{}, "Tray")
	if err != nil {
		t.Fatalf("suppression must proceed without a captured value: %v", err)
	}
	if entry.Restorable() {
		t.Fatal("entry should be flagged not restorable")
	}
	if !strings.Contains(entry.Method.AppliedMessage(), "not automatic") {
		t.Errorf("applied message = %q", entry.Method.AppliedMessage())
	}

	if _, err := f.engine.Restore(ctx, entry.ID); !errors.Is(err, oserr.ErrNotRestorable) {
		t.Fatalf("err = %v, want ErrNotRestorable", err)
	}
	if _, ok := f.engine.Entry(entry.ID); !ok {
		t.Error("degraded entry dropped by a failed restore")
	}
}

func TestIFEOApplyAndRestore(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	entry, err := f.engine.ApplyIFEO(ctx, Target{ProcessName: "worker.exe"}, "worker.exe")
	if err != nil {
		t.Fatal(err)
	}
	if !f.hooks.blocked["worker.exe"] {
		t.Fatal("hook not installed")
	}
	if entry.Method.AppliedMessage() != "Process 'worker.exe' blocked via IFEO." {
		t.Errorf("message = %q", entry.Method.AppliedMessage())
	}
	if _, err := f.engine.Restore(ctx, entry.ID); err != nil {
		t.Fatal(err)
	}
	if f.hooks.blocked["worker.exe"] {
		t.Error("hook still installed")
	}
}

func TestMethodsAreIndependent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	target := Target{ProcessName: "worker.exe"}

	svc, err := f.engine.ApplyService(ctx, target, "WorkerSvc")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.engine.ApplyIFEO(ctx, target, "worker.exe"); err != nil {
		t.Fatal(err)
	}
	if _, err := f.engine.Restore(ctx, svc.ID); err != nil {
		t.Fatal(err)
	}
	if !f.hooks.blocked["worker.exe"] {
		t.Error("restoring the service touched the hook")
	}
	if n := f.engine.ActiveCount(); n != 1 {
		t.Errorf("active = %d, want 1", n)
	}
}

func TestWorkerServiceScenario(t *testing.T) {
	f := newFixture(t)
	entry, err := f.engine.ApplyService(context.Background(), Target{ProcessName: "worker.exe"}, "WorkerSvc")
	if err != nil {
		t.Fatal(err)
	}
	entries := f.engine.Entries()
	if len(entries) != 1 {
		t.Fatalf("entries = %d, want 1", len(entries))
	}
	got := entries[0]
	if got.Kind() != KindService || got.Detail() != "WorkerSvc" || got.ProcessName != "worker.exe" || !got.Active {
		t.Errorf("entry = %+v", got)
	}
	if got.ID != entry.ID || got.Created.IsZero() {
		t.Errorf("entry id/created = %d/%v", got.ID, got.Created)
	}
}

func TestProcessNameDefaultsToDetail(t *testing.T) {
	f := newFixture(t)
	entry, err := f.engine.ApplyTask(context.Background(), Target{}, "Nightly")
	if err != nil {
		t.Fatal(err)
	}
	if entry.ProcessName != "Nightly" {
		t.Errorf("process name = %q, want Nightly", entry.ProcessName)
	}
}

func TestApplyNotRecordedWhenLedgerUnwritable(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "blocker")
	if err := os.WriteFile(blocker, []byte("x"), 0o600); err != nil {
		t.Fatal(err)
	}
	// The path is unreadable, so the ledger opens empty with an error.
	ledger, _ := OpenLedger(filepath.Join(blocker, "suppressions.json"))
	services := newFakeToggle("WorkerSvc")
	engine := NewEngine(ledger, Backends{Services: services})

	_, err := engine.ApplyService(context.Background(), Target{}, "WorkerSvc")
	if err == nil || !strings.Contains(err.Error(), "applied but not recorded") {
		t.Fatalf("err = %v, want applied-but-not-recorded", err)
	}
	if n := len(engine.Entries()); n != 0 {
		t.Errorf("in-memory ledger kept %d entries after a failed write", n)
	}
}

func TestConcurrentAppliesSerialize(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = f.engine.ApplyService(ctx, Target{}, "WorkerSvc")
		}()
	}
	wg.Wait()
	if n := len(f.engine.Entries()); n != 1 {
		t.Errorf("entries = %d, want 1", n)
	}
}

func TestUnsupportedBackends(t *testing.T) {
	engine := NewEngine(nil, Backends{})
	_, err := engine.ApplyIFEO(context.Background(), Target{}, "x.exe")
	if !errors.Is(err, oserr.ErrUnsupported) {
		t.Errorf("err = %v, want ErrUnsupported", err)
	}
}
