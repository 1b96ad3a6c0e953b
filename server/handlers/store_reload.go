package handlers

import (
	"log/slog"
	"net/http"

	"github.com/nomis52/nodeflow/history"
)

// ReloadableStore is a history store backed by files that can change
// underneath it, such as history.DiskStore.
type ReloadableStore interface {
	Reload() error
	Runs() []history.Summary
}

// HistoryReloadResponse reports how many runs are known after a reload.
type HistoryReloadResponse struct {
	Runs int `json:"runs"`
}

// StoreReloadHandler re-reads the history directory, picking up run files
// that were added or removed by hand.
type StoreReloadHandler struct {
	logger *slog.Logger
	store  ReloadableStore
}

// NewStoreReloadHandler creates a new StoreReloadHandler.
func NewStoreReloadHandler(logger *slog.Logger, store ReloadableStore) *StoreReloadHandler {
	return &StoreReloadHandler{
		logger: logger,
		store:  store,
	}
}

// ServeHTTP implements http.Handler.
func (h *StoreReloadHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Reload(); err != nil {
		h.logger.Error("run history not reloaded", "error", err)
		writeError(w, http.StatusInternalServerError, "run history not reloaded: %v", err)
		return
	}

	n := len(h.store.Runs())
	h.logger.Info("run history reloaded", "runs", n)
	writeJSON(w, http.StatusOK, HistoryReloadResponse{Runs: n})
}
