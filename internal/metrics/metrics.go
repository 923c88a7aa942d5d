package metrics

import (
	"net/http"
	"runtime"
	"runtime/debug"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/iamgilwell/procguard/internal/monitor"
	"github.com/iamgilwell/procguard/internal/process"
	"github.com/iamgilwell/procguard/internal/suppression"
)

var (
	registry = prometheus.NewRegistry()

	terminations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "procguard",
		Name:      "terminations_total",
		Help:      "Termination requests by safety tier and final state.",
	}, []string{"tier", "state", "forced"})

	respawns = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "procguard",
		Name:      "respawns_total",
		Help:      "Processes detected reappearing after termination.",
	})

	suppressionEvents = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "procguard",
		Name:      "suppression_events_total",
		Help:      "Suppression apply, restore and forget operations by method and result.",
	}, []string{"action", "method", "result"})

	activeSource   func() int
	activeSourceMu sync.RWMutex

	activeSuppressions = prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "procguard",
		Name:      "suppressions_active",
		Help:      "Active entries in the suppression ledger.",
	}, func() float64 {
		activeSourceMu.RLock()
		defer activeSourceMu.RUnlock()
		if activeSource == nil {
			return 0
		}
		return float64(activeSource())
	})

	snapshotProcesses = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "procguard",
		Name:      "snapshot_processes",
		Help:      "Processes in the latest snapshot.",
	})

	snapshotTiers = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "procguard",
		Name:      "snapshot_processes_by_tier",
		Help:      "Processes in the latest snapshot by safety tier.",
	}, []string{"tier"})

	collectLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "procguard",
		Name:      "collect_duration_seconds",
		Help:      "Duration of process snapshot collection in seconds.",
		Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
	})

	collectErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "procguard",
		Name:      "collect_errors_total",
		Help:      "Failed snapshot collections.",
	})

	buildInfo = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "procguard",
		Name:      "build_info",
		Help:      "Build metadata for the running procguard binary.",
	}, []string{"go_version", "vcs_revision"})

	buildInfoOnce sync.Once
)

func init() {
	registry.MustRegister(terminations, respawns, suppressionEvents, activeSuppressions,
		snapshotProcesses, snapshotTiers, collectLatency, collectErrors, buildInfo)
}

// Registry returns the Prometheus registry containing all procguard metrics.
func Registry() *prometheus.Registry {
	return registry
}

// Handler serves the registry in the Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}

// ObserveTermination counts a termination outcome.
func ObserveTermination(o process.Outcome) {
	forced := "false"
	if o.Forced {
		forced = "true"
	}
	terminations.WithLabelValues(o.Safety.Tier.String(), o.State.String(), forced).Inc()
}

// ObserveRespawn counts a respawn detection.
func ObserveRespawn(process.Respawn) {
	respawns.Inc()
}

// ObserveSuppression counts a suppression engine event.
func ObserveSuppression(ev suppression.Event) {
	result := "success"
	if !ev.Success {
		result = "failure"
	}
	method := "unknown"
	if ev.Entry.Method != nil {
		method = string(ev.Entry.Kind())
	}
	suppressionEvents.WithLabelValues(string(ev.Action), method, result).Inc()
}

// SetActiveSuppressionsSource makes fn the source of the active ledger size.
// It is read at scrape time.
func SetActiveSuppressionsSource(fn func() int) {
	activeSourceMu.Lock()
	defer activeSourceMu.Unlock()
	activeSource = fn
}

// ObserveSnapshot records the size, tier mix and collection latency of a snapshot.
func ObserveSnapshot(snap *monitor.Snapshot) {
	if snap == nil {
		return
	}
	snapshotProcesses.Set(float64(snap.Len()))
	counts := map[string]int{"green": 0, "yellow": 0, "red": 0}
	for _, r := range snap.Processes {
		counts[r.Safety.Tier.String()]++
	}
	for tier, n := range counts {
		snapshotTiers.WithLabelValues(tier).Set(float64(n))
	}
	collectLatency.Observe(snap.Elapsed.Seconds())
}

// IncrementCollectErrors counts a failed collection.
func IncrementCollectErrors() {
	collectErrors.Inc()
}

// EmitBuildInfo publishes build metadata about the running binary.
func EmitBuildInfo() {
	buildInfoOnce.Do(func() {
		labels := prometheus.Labels{"go_version": runtime.Version(), "vcs_revision": ""}
		if info, ok := debug.ReadBuildInfo(); ok {
			if info.GoVersion != "" {
				labels["go_version"] = info.GoVersion
			}
			for _, setting := range info.Settings {
				if setting.Key == "vcs.revision" {
					labels["vcs_revision"] = setting.Value
				}
			}
		}
		buildInfo.With(labels).Set(1)
	})
}
