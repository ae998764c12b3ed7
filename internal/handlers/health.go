package handlers

import (
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/aawaaz/citizen-report-server/internal/database"
	"github.com/aawaaz/citizen-report-server/internal/models"
)

const version = "1.0.0"

var startTime = time.Now()

// HealthHandler provides health check endpoints
type HealthHandler struct {
	db     *database.DB
	redis  redis.UniversalClient
	logger *zap.SugaredLogger
}

// NewHealthHandler creates a new health handler. rdb may be nil when the
// server runs without Redis.
func NewHealthHandler(db *database.DB, rdb redis.UniversalClient, logger *zap.SugaredLogger) *HealthHandler {
	return &HealthHandler{db: db, redis: rdb, logger: logger}
}

// Check handles GET /api/v1/health (liveness probe)
func (h *HealthHandler) Check(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, models.HealthStatus{
		Status:  "ok",
		Version: version,
		Uptime:  time.Since(startTime).String(),
	})
}

// Ready handles GET /api/v1/health/ready (readiness probe)
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	status := models.HealthStatus{
		Status:   "ready",
		Version:  version,
		Uptime:   time.Since(startTime).String(),
		Database: "connected",
	}
	ready := true

	if err := h.db.Ping(r.Context()); err != nil {
		h.logger.Warnw("Database ping failed", "error", err)
		status.Database = "disconnected"
		ready = false
	}
	if h.redis != nil {
		status.Redis = "connected"
		if err := h.redis.Ping(r.Context()).Err(); err != nil {
			h.logger.Warnw("Redis ping failed", "error", err)
			status.Redis = "disconnected"
			ready = false
		}
	}

	if !ready {
		status.Status = "not ready"
		respondJSON(w, http.StatusServiceUnavailable, status)
		return
	}
	respondJSON(w, http.StatusOK, status)
}
