package handlers

import (
	"log/slog"
	"net/http"
)

// ReloadResponse describes the graph that the next run will use.
type ReloadResponse struct {
	Nodes int    `json:"nodes"`
	Cron  string `json:"cron,omitempty"`
}

// ReloadHandler re-reads the config file. A run in progress keeps the graph
// it started with; the reloaded graph is used from the next run on.
type ReloadHandler struct {
	logger   *slog.Logger
	reloader GraphReloader
}

// NewReloadHandler creates a new ReloadHandler.
func NewReloadHandler(logger *slog.Logger, reloader GraphReloader) *ReloadHandler {
	return &ReloadHandler{
		logger:   logger,
		reloader: reloader,
	}
}

// ServeHTTP implements http.Handler.
func (h *ReloadHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if err := h.reloader.Reload(); err != nil {
		h.logger.Warn("graph not reloaded, keeping current config", "error", err)
		writeError(w, http.StatusUnprocessableEntity, "graph not reloaded: %v", err)
		return
	}

	resp := ReloadResponse{}
	if cfg := h.reloader.Config(); cfg != nil {
		resp.Nodes = len(cfg.Nodes)
		resp.Cron = cfg.Server.Cron
	}
	h.logger.Info("graph reloaded", "nodes", resp.Nodes)
	writeJSON(w, http.StatusOK, resp)
}
