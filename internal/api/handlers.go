package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"github.com/iamgilwell/procguard/internal/history"
	"github.com/iamgilwell/procguard/internal/monitor"
	"github.com/iamgilwell/procguard/internal/oserr"
	"github.com/iamgilwell/procguard/internal/process"
	"github.com/iamgilwell/procguard/internal/suppression"
)

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("Error encoding JSON response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, err error, message string) {
	writeJSON(w, status, ErrorResponse{
		Error:   err.Error(),
		Message: message,
	})
}

func healthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type processHandler struct {
	snapshots  SnapshotSource
	terminator Terminator
}

type processList struct {
	Taken     string                   `json:"taken,omitempty"`
	Count     int                      `json:"count"`
	Processes []*monitor.ProcessRecord `json:"processes"`
}

func (h *processHandler) list(w http.ResponseWriter, r *http.Request) {
	snap := h.snapshots.Snapshot()
	if snap == nil {
		writeError(w, http.StatusServiceUnavailable, errors.New("no snapshot yet"), "The first scan has not completed.")
		return
	}

	records := snap.Records()
	if name := r.URL.Query().Get("name"); name != "" {
		records = snap.ByName(name)
	}
	if tier := strings.ToLower(r.URL.Query().Get("tier")); tier != "" {
		filtered := records[:0:0]
		for _, rec := range records {
			if rec.Safety.Tier.String() == tier {
				filtered = append(filtered, rec)
			}
		}
		records = filtered
	}
	if records == nil {
		records = []*monitor.ProcessRecord{}
	}

	writeJSON(w, http.StatusOK, processList{
		Taken:     snap.Taken.Format("2006-01-02T15:04:05Z07:00"),
		Count:     len(records),
		Processes: records,
	})
}

func (h *processHandler) get(w http.ResponseWriter, r *http.Request) {
	pid, _ := strconv.Atoi(mux.Vars(r)["pid"])
	rec, ok := h.snapshots.Snapshot().Get(pid)
	if !ok {
		writeError(w, http.StatusNotFound, oserr.ErrNotFound, fmt.Sprintf("PID %d is not in the latest snapshot.", pid))
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h *processHandler) terminate(w http.ResponseWriter, r *http.Request) {
	pid, err := strconv.Atoi(mux.Vars(r)["pid"])
	if err != nil {
		writeError(w, http.StatusBadRequest, err, "Invalid PID")
		return
	}
	force, err := boolQuery(r, "force")
	if err != nil {
		writeError(w, http.StatusBadRequest, err, "Invalid force flag")
		return
	}
	tree, err := boolQuery(r, "tree")
	if err != nil {
		writeError(w, http.StatusBadRequest, err, "Invalid tree flag")
		return
	}

	var out process.Outcome
	if tree {
		out = h.terminator.TerminateTree(r.Context(), pid, force)
	} else {
		out = h.terminator.Terminate(r.Context(), pid, force)
	}
	writeJSON(w, outcomeStatus(out), out)
}

func outcomeStatus(o process.Outcome) int {
	switch {
	case o.Success:
		return http.StatusOK
	case o.State == process.StateBlocked, errors.Is(o.Err, oserr.ErrPermissionDenied):
		return http.StatusForbidden
	case o.State == process.StateInProgress:
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

func boolQuery(r *http.Request, key string) (bool, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return false, nil
	}
	return strconv.ParseBool(v)
}

type suppressionHandler struct {
	suppressor Suppressor
}

type applyRequest struct {
	Method      string `json:"method"`
	Detail      string `json:"detail"`
	ProcessName string `json:"process_name"`
	ExePath     string `json:"exe_path"`
}

type entryResponse struct {
	Success bool              `json:"success"`
	Message string            `json:"message"`
	Entry   suppression.Entry `json:"entry"`
}

type resultResponse struct {
	Success bool               `json:"success"`
	Message string             `json:"message"`
	Entry   *suppression.Entry `json:"entry,omitempty"`
}

func (h *suppressionHandler) list(w http.ResponseWriter, r *http.Request) {
	entries := h.suppressor.Entries()
	if entries == nil {
		entries = []suppression.Entry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func (h *suppressionHandler) apply(w http.ResponseWriter, r *http.Request) {
	var req applyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err, "Invalid request body")
		return
	}
	kind, err := suppression.ParseKind(strings.ToLower(req.Method))
	if err != nil {
		writeError(w, http.StatusBadRequest, err, "Method must be service, startup, task or ifeo.")
		return
	}
	if strings.TrimSpace(req.Detail) == "" {
		writeError(w, http.StatusBadRequest, errors.New("detail is required"), suppression.Describe(kind))
		return
	}

	target := suppression.Target{ProcessName: req.ProcessName, ExePath: req.ExePath}
	entry, err := h.suppressor.Apply(r.Context(), kind, target, req.Detail)
	if err != nil {
		writeError(w, errorStatus(err), err, suppression.Message(err))
		return
	}
	writeJSON(w, http.StatusCreated, entryResponse{Success: true, Message: entry.Method.AppliedMessage(), Entry: entry})
}

func (h *suppressionHandler) restore(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(mux.Vars(r)["id"])
	if err != nil {
		writeError(w, http.StatusBadRequest, err, "Invalid suppression id")
		return
	}
	entry, err := h.suppressor.Restore(r.Context(), id)
	if err != nil {
		writeError(w, errorStatus(err), err, suppression.Message(err))
		return
	}
	writeJSON(w, http.StatusOK, entryResponse{Success: true, Message: entry.Method.RestoredMessage(), Entry: entry})
}

func (h *suppressionHandler) restoreAll(w http.ResponseWriter, r *http.Request) {
	results := h.suppressor.RestoreAll(r.Context())
	out := make([]resultResponse, 0, len(results))
	status := http.StatusOK
	for _, res := range results {
		entry := res.Entry
		out = append(out, resultResponse{Success: res.Success, Message: res.Message, Entry: &entry})
		if !res.Success {
			status = http.StatusMultiStatus
		}
	}
	writeJSON(w, status, out)
}

func errorStatus(err error) int {
	switch {
	case errors.Is(err, oserr.ErrPermissionDenied):
		return http.StatusForbidden
	case errors.Is(err, oserr.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, oserr.ErrNotRestorable):
		return http.StatusConflict
	case errors.Is(err, oserr.ErrUnsupported):
		return http.StatusNotImplemented
	}
	return http.StatusBadGateway
}

type historyHandler struct {
	history HistoryReader
}

type historyResponse struct {
	Terminations []history.Termination `json:"terminations"`
	Respawns     []history.Respawn     `json:"respawns"`
}

func (h *historyHandler) list(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		writeError(w, http.StatusServiceUnavailable, errors.New("history disabled"), "History is disabled in the configuration.")
		return
	}
	name := r.URL.Query().Get("name")
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	terms, err := h.history.Terminations(r.Context(), name, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err, "Failed to read termination history")
		return
	}
	respawns, err := h.history.Respawns(r.Context(), name, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err, "Failed to read respawn history")
		return
	}
	if terms == nil {
		terms = []history.Termination{}
	}
	if respawns == nil {
		respawns = []history.Respawn{}
	}
	writeJSON(w, http.StatusOK, historyResponse{Terminations: terms, Respawns: respawns})
}
