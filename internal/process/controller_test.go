package process

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/iamgilwell/procguard/internal/oserr"
	"github.com/iamgilwell/procguard/internal/safety"
)

func testController(sig Signaler, opts ...Option) *Controller {
	classifier := safety.NewClassifier(safety.Overrides{
		AlwaysCritical: []string{"csrss.exe", "systemd"},
	}, safety.MapCatalog{})
	opts = append([]Option{
		WithTimeout(30 * time.Millisecond),
		WithPollInterval(time.Millisecond),
		WithKillWait(10 * time.Millisecond),
	}, opts...)
	return NewController(sig, classifier, opts...)
}

func TestTerminateGraceful(t *testing.T) {
	sig := newFakeSignaler(proc(5000, 1, "worker.exe"))
	c := testController(sig)

	out := c.Terminate(context.Background(), 5000, false)
	ok, msg := out.Result()
	if !ok || out.State != StateDone {
		t.Fatalf("outcome = %+v, want done", out)
	}
	if msg != "Successfully terminated worker.exe (PID 5000)" {
		t.Errorf("message = %q", msg)
	}
	if calls := sig.Calls(); len(calls) != 1 || calls[0] != "term 5000" {
		t.Errorf("calls = %v, want only a graceful stop", calls)
	}
}

func TestTerminateRedBlockedWithoutForce(t *testing.T) {
	tests := []struct {
		name string
		p    *fakeProc
	}{
		{"kernel pid", proc(4, 0, "System")},
		{"always critical", proc(700, 1, "csrss.exe")},
		{"always critical any case", proc(1, 0, "SystemD")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sig := newFakeSignaler(tt.p)
			out := testController(sig).Terminate(context.Background(), tt.p.id.PID, false)
			if out.Success || out.State != StateBlocked {
				t.Fatalf("outcome = %+v, want blocked", out)
			}
			if !errors.Is(out.Err, oserr.ErrBlocked) {
				t.Errorf("err = %v, want ErrBlocked", out.Err)
			}
			if !strings.HasPrefix(out.Message, "BLOCKED: "+tt.p.id.Name+" is system critical.") {
				t.Errorf("message = %q", out.Message)
			}
			if calls := sig.Calls(); len(calls) != 0 {
				t.Errorf("blocked request signaled: %v", calls)
			}
		})
	}
}

func TestTerminateRedForcedIsOverride(t *testing.T) {
	sig := newFakeSignaler(proc(700, 1, "csrss.exe"))
	out := testController(sig).Terminate(context.Background(), 700, true)
	if !out.Success || !out.Override || !out.Forced {
		t.Fatalf("outcome = %+v, want forced override success", out)
	}
	if calls := sig.Calls(); len(calls) != 1 || calls[0] != "kill 700" {
		t.Errorf("calls = %v, want a direct kill", calls)
	}
}

func TestTerminateEscalatesAfterTimeout(t *testing.T) {
	p := proc(42, 1, "stubborn")
	p.exitPolls = -1
	sig := newFakeSignaler(p)

	out := testController(sig).Terminate(context.Background(), 42, false)
	if !out.Success || out.State != StateDone {
		t.Fatalf("outcome = %+v, want done after escalation", out)
	}
	calls := sig.Calls()
	if len(calls) != 2 || calls[0] != "term 42" || calls[1] != "kill 42" {
		t.Errorf("calls = %v, want term then kill", calls)
	}
}

func TestTerminateFailsWhenKillDoesNotTake(t *testing.T) {
	p := proc(42, 1, "unkillable")
	p.exitPolls = -1
	p.ignoreKill = true
	sig := newFakeSignaler(p)

	out := testController(sig).Terminate(context.Background(), 42, false)
	if out.Success || out.State != StateFailed {
		t.Fatalf("outcome = %+v, want failed", out)
	}
	if !errors.Is(out.Err, oserr.ErrTimeout) {
		t.Errorf("err = %v, want ErrTimeout", out.Err)
	}
	if n := len(sig.Calls()); n != 2 {
		t.Errorf("calls = %d, want no automatic retry", n)
	}
}

func TestTerminateAlreadyGone(t *testing.T) {
	sig := newFakeSignaler()
	out := testController(sig).Terminate(context.Background(), 9999, false)
	if !out.Success || out.State != StateDone {
		t.Fatalf("outcome = %+v, want success", out)
	}
	if out.Message != "Process already terminated." {
		t.Errorf("message = %q", out.Message)
	}
}

func TestTerminateExitRaceDuringSignal(t *testing.T) {
	p := proc(77, 1, "racer")
	p.termErr = fmt.Errorf("terminate: %w", oserr.ErrNotFound)
	sig := newFakeSignaler(p)

	out := testController(sig).Terminate(context.Background(), 77, false)
	if !out.Success || out.Err != nil {
		t.Fatalf("outcome = %+v, want success without error", out)
	}
}

func TestTerminatePermissionDenied(t *testing.T) {
	p := proc(88, 1, "rootd")
	p.termErr = oserr.Classify(fmt.Errorf("operation not permitted: %w", oserr.ErrPermissionDenied))
	sig := newFakeSignaler(p)

	out := testController(sig).Terminate(context.Background(), 88, false)
	if out.Success || !errors.Is(out.Err, oserr.ErrPermissionDenied) {
		t.Fatalf("outcome = %+v, want permission failure", out)
	}
	if !strings.HasPrefix(out.Message, "Access denied.") {
		t.Errorf("message = %q", out.Message)
	}
	if calls := sig.Calls(); len(calls) != 1 {
		t.Errorf("calls = %v, want no escalation on permission failure", calls)
	}
}

func TestTerminateSecondRequestInFlight(t *testing.T) {
	sig := newFakeSignaler(proc(5, 1, "busy"))
	c := testController(sig)
	if !c.acquire(5) {
		t.Fatal("acquire failed")
	}

	out := c.Terminate(context.Background(), 5, false)
	if out.State != StateInProgress || out.Success || out.Err != nil {
		t.Fatalf("outcome = %+v, want non-error in-progress refusal", out)
	}
	if calls := sig.Calls(); len(calls) != 0 {
		t.Errorf("in-flight pid was signaled again: %v", calls)
	}

	c.release(5)
	if out := c.Terminate(context.Background(), 5, false); !out.Success {
		t.Errorf("after release outcome = %+v", out)
	}
}

func TestTerminateConcurrentRequestsSignalOnce(t *testing.T) {
	p := proc(6, 1, "slow")
	p.exitPolls = 5
	sig := newFakeSignaler(p)
	c := testController(sig)

	var wg sync.WaitGroup
	results := make([]Outcome, 4)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = c.Terminate(context.Background(), 6, false)
		}(i)
	}
	wg.Wait()

	terms := 0
	for _, call := range sig.Calls() {
		if call == "term 6" {
			terms++
		}
	}
	if terms < 1 {
		t.Fatal("process never signaled")
	}
	for _, out := range results {
		if out.State != StateDone && out.State != StateInProgress {
			t.Errorf("unexpected outcome %+v", out)
		}
	}
}

func TestTerminateTreePartialFailure(t *testing.T) {
	root := proc(100, 1, "parent")
	denied := proc(101, 100, "child-a")
	denied.termErr = oserr.Classify(fmt.Errorf("kill: %w", oserr.ErrPermissionDenied))
	sig := newFakeSignaler(root, denied, proc(102, 100, "child-b"), proc(103, 102, "grandchild"), proc(200, 1, "bystander"))

	out := testController(sig).TerminateTree(context.Background(), 100, false)
	if !out.Success {
		t.Fatalf("outcome = %+v, want success with partial failure", out)
	}
	if out.Children != 3 {
		t.Errorf("children = %d, want 3", out.Children)
	}
	if len(out.Failures) != 1 || out.Failures[0].PID != 101 {
		t.Errorf("failures = %+v, want pid 101", out.Failures)
	}
	if out.Message != "Terminated parent and 3 child processes. 1 could not be terminated." {
		t.Errorf("message = %q", out.Message)
	}

	calls := sig.Calls()
	want := []string{"term 103", "term 102", "term 101", "term 100"}
	if len(calls) < len(want) {
		t.Fatalf("calls = %v, want prefix %v", calls, want)
	}
	for i := range want {
		if calls[i] != want[i] {
			t.Fatalf("calls = %v, want prefix %v", calls, want)
		}
	}
	for _, call := range calls {
		if strings.HasSuffix(call, " 200") {
			t.Errorf("bystander was signaled: %v", calls)
		}
	}
}

func TestTerminateTreeEscalatesSurvivors(t *testing.T) {
	child := proc(11, 10, "child")
	child.exitPolls = -1
	sig := newFakeSignaler(proc(10, 1, "parent"), child)

	out := testController(sig).TerminateTree(context.Background(), 10, false)
	if !out.Success || len(out.Failures) != 0 {
		t.Fatalf("outcome = %+v", out)
	}
	var killed bool
	for _, call := range sig.Calls() {
		if call == "kill 11" {
			killed = true
		}
		if call == "kill 10" {
			t.Error("root exited gracefully and should not be killed")
		}
	}
	if !killed {
		t.Error("surviving child was not escalated")
	}
}

func TestTerminateTreeGatesOnlyRoot(t *testing.T) {
	sig := newFakeSignaler(proc(1, 0, "systemd"), proc(2, 1, "worker"))
	out := testController(sig).TerminateTree(context.Background(), 1, false)
	if out.State != StateBlocked {
		t.Fatalf("outcome = %+v, want blocked", out)
	}
	if calls := sig.Calls(); len(calls) != 0 {
		t.Errorf("blocked tree signaled: %v", calls)
	}

	sig = newFakeSignaler(proc(50, 1, "shell"), proc(51, 50, "csrss.exe"))
	out = testController(sig).TerminateTree(context.Background(), 50, false)
	if !out.Success {
		t.Fatalf("red descendant should not gate the tree: %+v", out)
	}
}

func TestObserverSeesEveryOutcome(t *testing.T) {
	sig := newFakeSignaler(proc(3, 1, "a"), proc(4, 0, "System"))
	var seen []State
	c := testController(sig, WithObserver(func(o Outcome) { seen = append(seen, o.State) }))

	c.Terminate(context.Background(), 3, false)
	c.Terminate(context.Background(), 4, false)
	if len(seen) != 2 || seen[0] != StateDone || seen[1] != StateBlocked {
		t.Errorf("observed = %v", seen)
	}
}

func TestWorkerRespawnScenario(t *testing.T) {
	worker := proc(5000, 1, "worker.exe")
	sig := newFakeSignaler(worker)

	respawned := make(chan Respawn, 1)
	watcher := NewRespawnWatcher(sig, 20*time.Millisecond)
	c := testController(sig, WithRespawnWatch(context.Background(), watcher, func(r Respawn) { respawned <- r }))

	out := c.Terminate(context.Background(), 5000, false)
	if !out.Success || out.Safety.Tier != safety.TierGreen {
		t.Fatalf("outcome = %+v, want green success", out)
	}
	sig.spawn(proc(5101, 1, "worker.exe"))

	select {
	case r := <-respawned:
		if r.New.PID != 5101 || r.Original.PID != 5000 {
			t.Errorf("respawn = %+v, want 5000 -> 5101", r)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("respawn not reported")
	}
}

func TestStateNames(t *testing.T) {
	if StateAwaitingExit.String() != "awaiting_exit" || StateInProgress.String() != "in_progress" {
		t.Error("unexpected state names")
	}
	if !StateBlocked.Terminal() || StateSignaling.Terminal() {
		t.Error("unexpected terminal states")
	}
}
