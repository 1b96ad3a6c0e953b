package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nomis52/nodeflow/config"
	"github.com/nomis52/nodeflow/history"
)

type mockReloader struct {
	cfg *config.Config
	err error
}

func (m *mockReloader) Reload() error {
	return m.err
}

func (m *mockReloader) Config() *config.Config {
	return m.cfg
}

func TestReloadHandler(t *testing.T) {
	graph := &config.Config{
		Server: config.ServerConfig{Cron: "0 2 * * *"},
		Nodes: []config.NodeConfig{
			{Name: "fetch", Command: "true"},
			{Name: "upload", Parents: []string{"fetch"}, Command: "true"},
		},
	}

	tests := []struct {
		name       string
		reloader   *mockReloader
		wantStatus int
		wantBody   string
	}{
		{
			name:       "reloaded",
			reloader:   &mockReloader{cfg: graph},
			wantStatus: http.StatusOK,
			wantBody:   `"nodes":2`,
		},
		{
			name:       "bad config",
			reloader:   &mockReloader{cfg: graph, err: errors.New("config file not found")},
			wantStatus: http.StatusUnprocessableEntity,
			wantBody:   "graph not reloaded: config file not found",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			NewReloadHandler(slog.Default(), tt.reloader).ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/reload", nil))

			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Contains(t, w.Body.String(), tt.wantBody)
		})
	}
}

func TestReloadHandler_Response(t *testing.T) {
	reloader := &mockReloader{cfg: &config.Config{
		Server: config.ServerConfig{Cron: "*/5 * * * *"},
		Nodes:  []config.NodeConfig{{Name: "only", Command: "true"}},
	}}

	w := httptest.NewRecorder()
	NewReloadHandler(slog.Default(), reloader).ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/reload", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var resp ReloadResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, ReloadResponse{Nodes: 1, Cron: "*/5 * * * *"}, resp)
}

type mockReloadableStore struct {
	runs []history.Summary
	err  error
}

func (m *mockReloadableStore) Reload() error {
	return m.err
}

func (m *mockReloadableStore) Runs() []history.Summary {
	return m.runs
}

func TestStoreReloadHandler(t *testing.T) {
	tests := []struct {
		name       string
		store      *mockReloadableStore
		wantStatus int
		wantBody   string
	}{
		{
			name:       "success",
			store:      &mockReloadableStore{runs: []history.Summary{{ID: "a"}, {ID: "b"}}},
			wantStatus: http.StatusOK,
			wantBody:   `"runs":2`,
		},
		{
			name:       "error",
			store:      &mockReloadableStore{err: errors.New("permission denied")},
			wantStatus: http.StatusInternalServerError,
			wantBody:   "run history not reloaded: permission denied",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := NewStoreReloadHandler(slog.Default(), tt.store)

			w := httptest.NewRecorder()
			handler.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/history/reload", nil))

			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Contains(t, w.Body.String(), tt.wantBody)
		})
	}
}
