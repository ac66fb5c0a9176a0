package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"cryptoetl/internal/market/model"
	"cryptoetl/pkg/storage"

	"go.uber.org/zap"
)

const (
	defaultHistoryLimit = 100
	maxHistoryLimit     = 1000
)

// Runner triggers one pipeline run.
type Runner interface {
	Run(ctx context.Context, saveHistory bool) model.RunSummary
}

// LastRunReader returns the most recent summary, or nil.
type LastRunReader interface {
	Last(ctx context.Context) (*model.RunSummary, error)
}

type Deps struct {
	Runner    Runner
	LastRun   LastRunReader
	Snapshots storage.SnapshotReader
	History   storage.HistoryReader // nil when no history backend is configured
	Checks    map[string]storage.Pinger
	Metrics   http.Handler
	Logger    *zap.Logger
}

type handler struct {
	Deps
}

// NewHandler wires the routes.
func NewHandler(d Deps) http.Handler {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	h := &handler{Deps: d}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /runs", h.triggerRun)
	mux.HandleFunc("GET /runs/last", h.lastRun)
	mux.HandleFunc("GET /markets/latest", h.latest)
	mux.HandleFunc("GET /markets/{coin_id}/history", h.history)
	mux.HandleFunc("GET /healthz", h.health)
	if d.Metrics != nil {
		mux.Handle("GET /metrics", d.Metrics)
	}
	return mux
}

type runRequest struct {
	SaveHistory *bool `json:"save_history"`
}

func (h *handler) triggerRun(w http.ResponseWriter, r *http.Request) {
	saveHistory := true

	var req runRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.SaveHistory != nil {
		saveHistory = *req.SaveHistory
	}

	// the run outlives a dropped client connection
	summary := h.Runner.Run(context.WithoutCancel(r.Context()), saveHistory)
	h.Logger.Info("manual run finished",
		zap.String("run_id", summary.RunID),
		zap.String("status", string(summary.Status)))
	writeJSON(w, http.StatusOK, summary)
}

func (h *handler) lastRun(w http.ResponseWriter, r *http.Request) {
	if h.LastRun == nil {
		writeError(w, http.StatusNotFound, "no run recorded")
		return
	}
	last, err := h.LastRun.Last(r.Context())
	if err != nil {
		h.Logger.Error("failed to read last run", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if last == nil {
		writeError(w, http.StatusNotFound, "no run recorded")
		return
	}
	writeJSON(w, http.StatusOK, last)
}

func (h *handler) latest(w http.ResponseWriter, r *http.Request) {
	docs, err := h.Snapshots.ListSnapshots(r.Context())
	if err != nil {
		h.Logger.Error("failed to list snapshots", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	writeJSON(w, http.StatusOK, docs)
}

func (h *handler) history(w http.ResponseWriter, r *http.Request) {
	coinID := r.PathValue("coin_id")
	if coinID == "" {
		writeError(w, http.StatusBadRequest, "coin_id is required")
		return
	}
	if h.History == nil {
		writeError(w, http.StatusNotFound, "history is not enabled")
		return
	}

	limit := defaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxHistoryLimit)
	}

	docs, err := h.History.HistoryByCoin(r.Context(), coinID, limit)
	if err != nil {
		h.Logger.Error("failed to read history", zap.String("coin_id", coinID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	writeJSON(w, http.StatusOK, docs)
}

func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	overall := "healthy"
	checks := make(map[string]string, len(h.Checks))

	for name, p := range h.Checks {
		if err := p.Ping(r.Context()); err != nil {
			checks[name] = "unhealthy"
			overall = "degraded"
			h.Logger.Warn("health check failed", zap.String("check", name), zap.Error(err))
			continue
		}
		checks[name] = "healthy"
	}

	status := http.StatusOK
	if overall != "healthy" {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, map[string]any{"status": overall, "checks": checks})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
