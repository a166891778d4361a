package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"ipg-server/internal/history"
	"ipg-server/internal/session"
	"ipg-server/internal/shared/database"
	"ipg-server/internal/shared/response"
)

type HealthResponse struct {
	Status        string                 `json:"status"`
	Timestamp     string                 `json:"timestamp"`
	Database      string                 `json:"database"`
	Connections   int64                  `json:"connections"`
	DroppedFrames int64                  `json:"dropped_frames"`
	History       *history.RecorderStats `json:"history,omitempty"`
}

type SessionStats interface {
	Stats() session.Stats
}

type HistoryStats interface {
	Stats() history.RecorderStats
}

// HealthHandler reports liveness. The database and history recorder are
// optional; a nil db is reported as disabled.
type HealthHandler struct {
	db       *database.DB
	sessions SessionStats
	history  HistoryStats
}

func NewHealthHandler(db *database.DB, sessions SessionStats, recorder HistoryStats) *HealthHandler {
	return &HealthHandler{db: db, sessions: sessions, history: recorder}
}

func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	logger := slog.With("handler", "health")

	dbStatus := "disabled"
	if h.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.db.PingContext(ctx); err == nil {
			dbStatus = "connected"
		} else {
			dbStatus = "disconnected"
			logger.Warn("Database ping failed", "error", err)
		}
	}

	resp := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().Format(time.RFC3339),
		Database:  dbStatus,
	}
	if h.sessions != nil {
		stats := h.sessions.Stats()
		resp.Connections = stats.Connections
		resp.DroppedFrames = stats.DroppedFrames
	}
	if h.history != nil {
		stats := h.history.Stats()
		resp.History = &stats
	}

	response.Success(w, http.StatusOK, resp)
}
