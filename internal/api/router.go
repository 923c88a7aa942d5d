package api

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/iamgilwell/procguard/internal/history"
	"github.com/iamgilwell/procguard/internal/metrics"
	"github.com/iamgilwell/procguard/internal/monitor"
	"github.com/iamgilwell/procguard/internal/process"
	"github.com/iamgilwell/procguard/internal/safety"
	"github.com/iamgilwell/procguard/internal/suppression"
)

// SnapshotSource provides the latest published process snapshot.
type SnapshotSource interface {
	Snapshot() *monitor.Snapshot
}

// Terminator runs termination requests.
type Terminator interface {
	Terminate(ctx context.Context, pid int, force bool) process.Outcome
	TerminateTree(ctx context.Context, pid int, force bool) process.Outcome
}

// Suppressor applies and reverses suppressions.
type Suppressor interface {
	Entries() []suppression.Entry
	Apply(ctx context.Context, kind suppression.Kind, target suppression.Target, detail string) (suppression.Entry, error)
	Restore(ctx context.Context, id int) (suppression.Entry, error)
	RestoreAll(ctx context.Context) []suppression.Result
}

// HistoryReader lists past terminations and respawns.
type HistoryReader interface {
	Terminations(ctx context.Context, name string, limit int) ([]history.Termination, error)
	Respawns(ctx context.Context, name string, limit int) ([]history.Respawn, error)
}

// Logger receives request and panic logs.
type Logger interface {
	Debug(msg string)
	Error(msg string)
}

// Deps are the components the HTTP surface drives. History, Logger and
// Consent may be nil; a nil Consent never refuses.
type Deps struct {
	Snapshots  SnapshotSource
	Terminator Terminator
	Suppressor Suppressor
	History    HistoryReader
	Logger     Logger
	Consent    *safety.ConsentManager
}

// Router is the procguard HTTP control surface.
type Router struct {
	*mux.Router
}

// NewRouter wires every route onto a new mux.
func NewRouter(deps Deps) *Router {
	r := mux.NewRouter()

	procHandler := &processHandler{snapshots: deps.Snapshots, terminator: deps.Terminator}
	suppHandler := &suppressionHandler{suppressor: deps.Suppressor}
	histHandler := &historyHandler{history: deps.History}

	r.HandleFunc("/health", healthCheck).Methods(http.MethodGet)
	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)

	// Mutations are refused in monitor-only mode.
	gate := consentGate(deps.Consent)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/processes", procHandler.list).Methods(http.MethodGet)
	api.HandleFunc("/processes/{pid:[0-9]+}", procHandler.get).Methods(http.MethodGet)
	api.HandleFunc("/processes/{pid:[0-9]+}/terminate", gate(procHandler.terminate)).Methods(http.MethodPost)
	api.HandleFunc("/suppressions", suppHandler.list).Methods(http.MethodGet)
	api.HandleFunc("/suppressions", gate(suppHandler.apply)).Methods(http.MethodPost)
	api.HandleFunc("/suppressions/restore-all", gate(suppHandler.restoreAll)).Methods(http.MethodPost)
	api.HandleFunc("/suppressions/{id:[0-9]+}/restore", gate(suppHandler.restore)).Methods(http.MethodPost)
	api.HandleFunc("/history", histHandler.list).Methods(http.MethodGet)

	r.Use(recovery(deps.Logger))
	r.Use(logging(deps.Logger))

	return &Router{Router: r}
}
