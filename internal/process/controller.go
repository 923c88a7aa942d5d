package process

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/iamgilwell/procguard/internal/oserr"
	"github.com/iamgilwell/procguard/internal/safety"
)

const (
	// DefaultTimeout is how long a graceful stop may take before escalation.
	DefaultTimeout = 3 * time.Second
	// DefaultPollInterval is the exit polling cadence.
	DefaultPollInterval = 100 * time.Millisecond
	// DefaultKillWait is how long exit is awaited after an unconditional kill.
	DefaultKillWait = time.Second
)

// Controller executes termination requests. A pid is the target of at most
// one request at a time; a concurrent second request is refused without
// signaling.
type Controller struct {
	signaler   Signaler
	classifier *safety.Classifier
	timeout    time.Duration
	poll       time.Duration
	killWait   time.Duration

	watcher   *RespawnWatcher
	watchCtx  context.Context
	onRespawn func(Respawn)
	observers []func(Outcome)

	mu       sync.Mutex
	inflight map[int]bool
}

// Option customizes a Controller.
type Option func(*Controller)

// WithTimeout sets the graceful-stop timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Controller) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithPollInterval sets the exit polling cadence.
func WithPollInterval(d time.Duration) Option {
	return func(c *Controller) {
		if d > 0 {
			c.poll = d
		}
	}
}

// WithKillWait sets how long exit is awaited after a kill.
func WithKillWait(d time.Duration) Option {
	return func(c *Controller) {
		if d > 0 {
			c.killWait = d
		}
	}
}

// WithObserver registers fn to receive every outcome.
func WithObserver(fn func(Outcome)) Option {
	return func(c *Controller) { c.observers = append(c.observers, fn) }
}

// WithRespawnWatch starts w after every successful termination and passes
// detections to fn. Watchers live until ctx is done.
func WithRespawnWatch(ctx context.Context, w *RespawnWatcher, fn func(Respawn)) Option {
	return func(c *Controller) {
		c.watchCtx = ctx
		c.watcher = w
		c.onRespawn = fn
	}
}

// NewController creates a controller. A nil classifier treats every process as green.
func NewController(signaler Signaler, classifier *safety.Classifier, opts ...Option) *Controller {
	c := &Controller{
		signaler:   signaler,
		classifier: classifier,
		timeout:    DefaultTimeout,
		poll:       DefaultPollInterval,
		killWait:   DefaultKillWait,
		inflight:   make(map[int]bool),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Terminate stops one process: graceful stop, wait, then kill. force skips
// the graceful stop and is the only way past a red verdict.
func (c *Controller) Terminate(ctx context.Context, pid int, force bool) Outcome {
	out := Outcome{PID: pid, Forced: force, State: StateRequested}
	if !c.acquire(pid) {
		out.fail(StateInProgress, nil, inProgressMessage(pid))
		return c.finish(out)
	}
	defer c.release(pid)

	id, ok := c.gate(ctx, &out)
	if !ok {
		return c.finish(out)
	}

	if !force {
		out.State = StateSignaling
		if err := c.signaler.Terminate(ctx, pid); err != nil {
			out.failFor(err, "Failed to terminate process")
			return c.finish(out)
		}
		out.State = StateAwaitingExit
		if len(c.waitExit(ctx, []Identity{id}, c.timeout)) == 0 {
			out.done(terminatedMessage(id))
			return c.finish(out)
		}
	}

	out.State = StateEscalated
	if err := c.signaler.Kill(ctx, pid); err != nil {
		if errors.Is(err, oserr.ErrNotFound) && !force {
			out.done(terminatedMessage(id))
		} else {
			out.failFor(err, "Failed to terminate process")
		}
		return c.finish(out)
	}
	if len(c.waitExit(ctx, []Identity{id}, c.killWait)) > 0 {
		out.fail(StateFailed, oserr.ErrTimeout, stillRunningMessage(id))
		return c.finish(out)
	}
	out.done(terminatedMessage(id))
	return c.finish(out)
}

// TerminateTree stops pid and every descendant present at request time.
// Only the root is gated. Descendants are signaled first, deepest first;
// a descendant that cannot be stopped is recorded and the rest continue.
func (c *Controller) TerminateTree(ctx context.Context, pid int, force bool) Outcome {
	out := Outcome{PID: pid, Forced: force, Tree: true, State: StateRequested}
	if !c.acquire(pid) {
		out.fail(StateInProgress, nil, inProgressMessage(pid))
		return c.finish(out)
	}
	defer c.release(pid)

	root, ok := c.gate(ctx, &out)
	if !ok {
		return c.finish(out)
	}

	procs, err := c.signaler.Processes(ctx)
	if err != nil {
		out.fail(StateFailed, err, fmt.Sprintf("Failed: %v", err))
		return c.finish(out)
	}
	tree := BuildDependencyTree(procs)
	order := tree.SafeTerminationOrder(pid)
	descendants := order[:len(order)-1]
	out.Children = len(descendants)

	if force {
		out.State = StateEscalated
	} else {
		out.State = StateSignaling
	}

	failed := make(map[int]bool)
	var targets []Identity
	var held []int
	defer func() {
		for _, p := range held {
			c.release(p)
		}
	}()
	for _, dpid := range descendants {
		id, _ := tree.Node(dpid)
		if !c.acquire(dpid) {
			continue
		}
		held = append(held, dpid)
		if err := c.signal(ctx, dpid, force); err != nil {
			if !errors.Is(err, oserr.ErrNotFound) {
				out.addFailure(failed, id, err)
			}
			continue
		}
		targets = append(targets, id)
	}

	rootErr := c.signal(ctx, pid, force)
	switch {
	case rootErr == nil:
		targets = append(targets, root)
	case errors.Is(rootErr, oserr.ErrNotFound):
		rootErr = nil
	}

	wait := c.timeout
	if force {
		wait = c.killWait
	} else {
		out.State = StateAwaitingExit
	}
	survivors := c.waitExit(ctx, targets, wait)

	if len(survivors) > 0 && !force {
		out.State = StateEscalated
		var killed []Identity
		for _, s := range survivors {
			if err := c.signaler.Kill(ctx, s.PID); err != nil {
				if errors.Is(err, oserr.ErrNotFound) {
					continue
				}
				if s.PID == pid {
					rootErr = err
				} else {
					out.addFailure(failed, s, err)
				}
				continue
			}
			killed = append(killed, s)
		}
		survivors = c.waitExit(ctx, killed, c.killWait)
	}

	rootAlive := false
	for _, s := range survivors {
		if s.PID == pid {
			rootAlive = true
			continue
		}
		out.addFailure(failed, s, oserr.ErrTimeout)
	}

	switch {
	case rootErr != nil:
		out.failFor(rootErr, "Failed")
	case rootAlive:
		out.fail(StateFailed, oserr.ErrTimeout, "Failed: "+stillRunningMessage(root))
	default:
		msg := fmt.Sprintf("Terminated %s and %d child processes.", root.Name, len(descendants))
		if n := len(out.Failures); n > 0 {
			msg += fmt.Sprintf(" %d could not be terminated.", n)
		}
		out.done(msg)
	}
	return c.finish(out)
}

// gate resolves the target and applies the safety verdict.
func (c *Controller) gate(ctx context.Context, out *Outcome) (Identity, bool) {
	id, err := c.signaler.Lookup(ctx, out.PID)
	if err != nil {
		out.failFor(err, "Failed to terminate process")
		return id, false
	}
	out.Identity = id
	out.Name = id.Name
	if c.classifier != nil {
		out.Safety = c.classifier.Classify(id.Name, id.PID)
	} else {
		out.Safety = safety.Info{Tier: safety.TierGreen, Label: safety.TierGreen.Label(), CanKill: true}
	}
	out.State = StateGated

	if out.Safety.Tier == safety.TierRed {
		if !out.Forced {
			out.fail(StateBlocked, oserr.ErrBlocked, blockedMessage(id.Name, out.Safety))
			return id, false
		}
		out.Override = true
	}
	return id, true
}

func (c *Controller) signal(ctx context.Context, pid int, force bool) error {
	if force {
		return c.signaler.Kill(ctx, pid)
	}
	return c.signaler.Terminate(ctx, pid)
}

// waitExit polls until every id has exited or d elapses and returns the
// survivors. The wait ends only on exit or timeout.
func (c *Controller) waitExit(ctx context.Context, ids []Identity, d time.Duration) []Identity {
	ctx = context.WithoutCancel(ctx)
	deadline := time.Now().Add(d)
	alive := ids
	for {
		next := alive[:0:0]
		for _, id := range alive {
			if c.signaler.Alive(ctx, id) {
				next = append(next, id)
			}
		}
		alive = next
		remaining := time.Until(deadline)
		if len(alive) == 0 || remaining <= 0 {
			return alive
		}
		time.Sleep(min(c.poll, remaining))
	}
}

func (c *Controller) acquire(pid int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.inflight[pid] {
		return false
	}
	c.inflight[pid] = true
	return true
}

func (c *Controller) release(pid int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.inflight, pid)
}

// finish notifies observers and starts the respawn watch after a success.
func (c *Controller) finish(out Outcome) Outcome {
	for _, fn := range c.observers {
		fn(out)
	}
	if out.Success && out.Identity.Name != "" && c.watcher != nil && c.onRespawn != nil {
		ctx := c.watchCtx
		if ctx == nil {
			ctx = context.Background()
		}
		ch := c.watcher.Watch(ctx, out.Identity)
		go func() {
			for r := range ch {
				c.onRespawn(r)
			}
		}()
	}
	return out
}

func (o *Outcome) addFailure(seen map[int]bool, id Identity, err error) {
	if seen[id.PID] {
		return
	}
	seen[id.PID] = true
	o.Failures = append(o.Failures, ChildFailure{PID: id.PID, Name: id.Name, Err: err.Error()})
}

func terminatedMessage(id Identity) string {
	return fmt.Sprintf("Successfully terminated %s (PID %d)", id.Name, id.PID)
}

func stillRunningMessage(id Identity) string {
	return fmt.Sprintf("%s (PID %d) is still running after kill", id.Name, id.PID)
}

func inProgressMessage(pid int) string {
	return fmt.Sprintf("Termination of PID %d is already in progress.", pid)
}
