package handlers

import (
	"errors"
	"net/http"

	"github.com/nomis52/nodeflow/history"
)

// HistoryHandler lists finished runs, most recent first.
type HistoryHandler struct {
	provider HistoryProvider
}

// NewHistoryHandler creates a new HistoryHandler.
func NewHistoryHandler(provider HistoryProvider) *HistoryHandler {
	return &HistoryHandler{
		provider: provider,
	}
}

// ServeHTTP implements http.Handler.
func (h *HistoryHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.provider.History())
}

// RunDetailHandler returns a single run, including node logs and the
// checkpoint ledger. The run ID is taken from the {id} path wildcard.
type RunDetailHandler struct {
	provider HistoryProvider
}

// NewRunDetailHandler creates a new RunDetailHandler.
func NewRunDetailHandler(provider HistoryProvider) *RunDetailHandler {
	return &RunDetailHandler{
		provider: provider,
	}
}

// ServeHTTP implements http.Handler.
func (h *RunDetailHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing run id")
		return
	}

	run, err := h.provider.Get(id)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, history.ErrRunNotFound) {
			status = http.StatusNotFound
		}
		writeError(w, status, "%v", err)
		return
	}

	writeJSON(w, http.StatusOK, run)
}
