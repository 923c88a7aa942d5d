package api

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/iamgilwell/procguard/internal/safety"
)

// ErrMonitorOnly is returned for mutations while the consent level is monitor-only.
var ErrMonitorOnly = errors.New("monitor-only mode")

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func logging(log Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if log == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)
			log.Debug(fmt.Sprintf("%s %s %d %s", r.Method, r.URL.Path, rec.status, time.Since(start).Round(time.Microsecond)))
		})
	}
}

func recovery(log Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if v := recover(); v != nil {
					if log != nil {
						log.Error(fmt.Sprintf("panic serving %s %s: %v", r.Method, r.URL.Path, v))
					}
					writeJSON(w, http.StatusInternalServerError, ErrorResponse{
						Error:   fmt.Sprint(v),
						Message: "Internal server error",
					})
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// consentGate refuses the wrapped handler while consent is monitor-only.
// The level is read per request, so a level change applies immediately.
func consentGate(consent *safety.ConsentManager) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			if consent != nil && consent.IsMonitorOnly() {
				writeError(w, http.StatusForbidden, ErrMonitorOnly, "Monitor-only mode: terminations and suppressions are disabled.")
				return
			}
			next(w, r)
		}
	}
}
