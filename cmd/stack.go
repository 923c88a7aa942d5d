package cmd

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/iamgilwell/procguard/internal/api"
	"github.com/iamgilwell/procguard/internal/config"
	"github.com/iamgilwell/procguard/internal/describe"
	"github.com/iamgilwell/procguard/internal/history"
	"github.com/iamgilwell/procguard/internal/metrics"
	"github.com/iamgilwell/procguard/internal/monitor"
	"github.com/iamgilwell/procguard/internal/notification"
	"github.com/iamgilwell/procguard/internal/process"
	"github.com/iamgilwell/procguard/internal/safety"
	"github.com/iamgilwell/procguard/internal/suppression"
)

// stack is every component a command may need, built from one config.
type stack struct {
	cfg        *config.Config
	notifier   *notification.Notifier
	auditor    *notification.Auditor
	history    *history.Store
	classifier *safety.Classifier
	consent    *safety.ConsentManager
	collector  *monitor.Collector
	monitor    *monitor.ProcessMonitor
	watcher    *process.RespawnWatcher
	controller *process.Controller
	engine     *suppression.Engine
	describer  describe.Resolver
	events     *fanout
}

type stackOptions struct {
	// watchRespawns starts a background respawn watch after every successful
	// termination. Watches end when ctx is done.
	watchRespawns bool
	// quiet keeps the notifier off the console.
	quiet bool
}

func newStack(ctx context.Context, cfg *config.Config, opts stackOptions) (*stack, error) {
	s := &stack{cfg: cfg, events: &fanout{}}

	notifier, err := notification.NewNotifier(cfg.Notifications.LogFile, cfg.Notifications.ColorEnabled, cfg.Notifications.Verbose)
	if err != nil {
		return nil, fmt.Errorf("creating notifier: %w", err)
	}
	if opts.quiet {
		notifier.SetOutput(nil)
	}
	s.notifier = notifier

	auditor, err := notification.NewAuditor(cfg.Notifications.AuditFile)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("creating auditor: %w", err)
	}
	s.auditor = auditor

	if cfg.History.Enabled {
		store, err := history.Open(cfg.History.DBPath)
		if err != nil {
			notifier.Warn(fmt.Sprintf("History disabled: %v", err))
		} else {
			s.history = store
		}
	}

	catalog, err := safety.LoadCatalog(cfg.Safety.CatalogFile)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("loading catalog: %w", err)
	}
	s.classifier = safety.NewClassifier(safety.Overrides{
		AlwaysCritical:   cfg.Safety.AlwaysCritical,
		CautionOverrides: cfg.Safety.CautionOverrides,
	}, catalog)
	s.consent = safety.NewConsentManager(cfg.Safety.ConsentLevel)

	s.collector = monitor.NewCollector(
		monitor.PsutilSource{NetCounters: cfg.Monitoring.NetCounters},
		monitor.DefaultServiceEnumerator(),
		s.classifier,
		monitor.WithServiceRefresh(cfg.Monitoring.ServiceRefreshCycles),
	)
	s.monitor = monitor.NewProcessMonitor(s.collector, cfg.Monitoring.ScanInterval)
	s.monitor.OnUpdate(metrics.ObserveSnapshot)
	s.monitor.OnError(func(err error) {
		metrics.IncrementCollectErrors()
		notifier.Error(err.Error())
	})

	signaler := process.Psutil{}
	s.watcher = process.NewRespawnWatcher(signaler, cfg.Termination.RespawnDelay)
	ctrlOpts := []process.Option{
		process.WithTimeout(cfg.Termination.Timeout),
		process.WithKillWait(cfg.Termination.KillWait),
		process.WithPollInterval(cfg.Termination.PollInterval),
		process.WithObserver(s.observeOutcome),
	}
	if opts.watchRespawns {
		ctrlOpts = append(ctrlOpts, process.WithRespawnWatch(ctx, s.watcher, s.observeRespawn))
	}
	s.controller = process.NewController(signaler, s.classifier, ctrlOpts...)

	ledger, err := suppression.OpenLedger(cfg.Suppression.LedgerFile)
	if errors.Is(err, suppression.ErrCorruptLedger) {
		notifier.Warn(fmt.Sprintf("Suppression ledger was unreadable and has been reset: %v", err))
	} else if err != nil {
		s.Close()
		return nil, fmt.Errorf("opening suppression ledger: %w", err)
	}
	backends := suppression.DefaultBackends(suppression.BackendConfig{
		HookDir:       cfg.Suppression.HookDir,
		AutostartDirs: cfg.Suppression.AutostartDirs,
	})
	s.engine = suppression.NewEngine(ledger, backends, suppression.WithObserver(s.observeSuppression))
	metrics.SetActiveSuppressionsSource(s.engine.ActiveCount)

	s.describer = newDescriber(cfg, s.classifier.Catalog(), notifier)

	return s, nil
}

func newDescriber(cfg *config.Config, catalog safety.Catalog, notifier *notification.Notifier) describe.Resolver {
	base := describe.NewCatalogResolver(catalog)
	if !cfg.Describe.AIEnabled || cfg.Anthropic.APIKey == "" {
		return base
	}
	cache, err := describe.NewCache(cfg.Describe.CacheSize, cfg.Describe.CacheTTL)
	if err != nil {
		notifier.Warn(fmt.Sprintf("AI descriptions disabled: %v", err))
		return base
	}
	return describe.NewAIResolver(cfg.Anthropic.APIKey, cfg.Anthropic.Model, cache, base,
		describe.WithRequestsPerMinute(cfg.Describe.MaxRequestsPerMin))
}

func (s *stack) observeOutcome(o process.Outcome) {
	s.notifier.Termination(o)
	s.auditor.LogTermination(o)
	metrics.ObserveTermination(o)
	if s.history != nil {
		if err := s.history.RecordTermination(context.Background(), o); err != nil {
			s.notifier.Warn(err.Error())
		}
	}
	s.events.outcome(o)
}

func (s *stack) observeRespawn(r process.Respawn) {
	s.notifier.Respawn(r)
	s.auditor.LogRespawn(r)
	metrics.ObserveRespawn(r)
	if s.history != nil {
		if err := s.history.RecordRespawn(context.Background(), r); err != nil {
			s.notifier.Warn(err.Error())
		}
	}
	s.events.respawn(r)
}

func (s *stack) observeSuppression(ev suppression.Event) {
	s.notifier.Suppression(ev)
	s.auditor.LogSuppression(ev)
	metrics.ObserveSuppression(ev)
	s.events.suppression(ev)
}

// historyReader returns the store as an interface value that is nil when
// history is disabled.
func (s *stack) historyReader() api.HistoryReader {
	if s.history == nil {
		return nil
	}
	return s.history
}

// Close releases files and the history database.
func (s *stack) Close() {
	if s.history != nil {
		s.history.Close()
	}
	if s.auditor != nil {
		s.auditor.Close()
	}
	if s.notifier != nil {
		s.notifier.Close()
	}
}

// fanout forwards engine events to subscribers added after construction.
type fanout struct {
	mu           sync.RWMutex
	outcomes     []func(process.Outcome)
	respawns     []func(process.Respawn)
	suppressions []func(suppression.Event)
}

func (f *fanout) onOutcome(fn func(process.Outcome)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.outcomes = append(f.outcomes, fn)
}

func (f *fanout) onRespawn(fn func(process.Respawn)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.respawns = append(f.respawns, fn)
}

func (f *fanout) onSuppression(fn func(suppression.Event)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.suppressions = append(f.suppressions, fn)
}

func (f *fanout) outcome(o process.Outcome) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	for _, fn := range f.outcomes {
		fn(o)
	}
}

func (f *fanout) respawn(r process.Respawn) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	for _, fn := range f.respawns {
		fn(r)
	}
}

func (f *fanout) suppression(ev suppression.Event) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	for _, fn := range f.suppressions {
		fn(ev)
	}
}
