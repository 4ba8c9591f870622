// Package handler provides HTTP handlers for all API endpoints. Handlers
// parse the request, call the engines or the notifications service, and map
// sentinel errors to status codes.
package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ovaria/pcos-tracker/internal/api/respond"
	"github.com/ovaria/pcos-tracker/internal/cache"
	"github.com/ovaria/pcos-tracker/internal/cycles"
	"github.com/ovaria/pcos-tracker/internal/notifications"
	"github.com/ovaria/pcos-tracker/internal/prediction"
)

// HealthChecker verifies the database. *db.Pool implements it.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Deps are the Handler's collaborators. DB may be nil in tests.
type Deps struct {
	DB            HealthChecker
	Cache         *cache.Cache
	Cycles        cycles.Store
	Notifications *notifications.Service
	Predictor     *prediction.Predictor
	PredictionTTL time.Duration
	Logger        *zap.Logger
	// Now defaults to time.Now.
	Now func() time.Time
}

// Handler holds shared dependencies for all endpoint handlers.
type Handler struct {
	db            HealthChecker
	cache         *cache.Cache
	cycles        cycles.Store
	notifications *notifications.Service
	predictor     *prediction.Predictor
	predictionTTL time.Duration
	logger        *zap.Logger
	now           func() time.Time
}

// New creates a Handler with shared dependencies.
func New(d Deps) *Handler {
	h := &Handler{
		db:            d.DB,
		cache:         d.Cache,
		cycles:        d.Cycles,
		notifications: d.Notifications,
		predictor:     d.Predictor,
		predictionTTL: d.PredictionTTL,
		logger:        d.Logger,
		now:           d.Now,
	}
	if h.now == nil {
		h.now = time.Now
	}
	if h.logger == nil {
		h.logger = zap.NewNop()
	}
	if h.cache == nil {
		h.cache = cache.New(false)
	}
	if h.predictor == nil {
		h.predictor = prediction.New(prediction.DefaultRules())
	}
	if h.predictionTTL <= 0 {
		h.predictionTTL = 10 * time.Minute
	}
	return h
}

// Root serves API info at /.
// @Summary API root info
// @Description Returns API name, version, status and docs location.
// @Tags meta
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router / [get]
func (h *Handler) Root(w http.ResponseWriter, r *http.Request) {
	respond.WriteJSONObject(w, http.StatusOK, map[string]any{
		"name":    "PCOS Tracker API",
		"version": "1.0.0",
		"status":  "running",
		"docs":    "/docs",
		"metrics": "/metrics",
	})
}

// HealthCheck returns basic health status.
// @Summary Health check
// @Description Returns basic health status and timestamp.
// @Tags health
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /health [get]
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	respond.WriteJSONObject(w, http.StatusOK, map[string]any{
		"status":    "healthy",
		"timestamp": h.now().UTC().Format(time.RFC3339),
	})
}

// HealthCheckDB verifies database connectivity.
// @Summary Database health check
// @Description Verifies Postgres connectivity.
// @Tags health
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Failure 503 {object} map[string]interface{}
// @Router /health/db [get]
func (h *Handler) HealthCheckDB(w http.ResponseWriter, r *http.Request) {
	if h.db == nil || h.db.HealthCheck(r.Context()) != nil {
		respond.WriteJSONObject(w, http.StatusServiceUnavailable, map[string]any{
			"status":    "unhealthy",
			"database":  "disconnected",
			"error":     "Database connection check failed",
			"timestamp": h.now().UTC().Format(time.RFC3339),
		})
		return
	}
	respond.WriteJSONObject(w, http.StatusOK, map[string]any{
		"status":    "healthy",
		"database":  "connected",
		"timestamp": h.now().UTC().Format(time.RFC3339),
	})
}

// HealthCheckCache returns cache statistics.
// @Summary Cache health check
// @Description Returns prediction cache statistics.
// @Tags health
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /health/cache [get]
func (h *Handler) HealthCheckCache(w http.ResponseWriter, r *http.Request) {
	respond.WriteJSONObject(w, http.StatusOK, map[string]any{
		"status":    "healthy",
		"cache":     h.cache.Stats(),
		"timestamp": h.now().UTC().Format(time.RFC3339),
	})
}

// --------------------------------------------------------------------------
// Helpers
// --------------------------------------------------------------------------

// pathUUID parses a uuid path parameter or writes a 400.
func pathUUID(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	raw := chi.URLParam(r, name)
	id, err := uuid.Parse(raw)
	if err != nil {
		respond.WriteErrorDetail(w, http.StatusBadRequest, "INVALID_ID",
			"Invalid "+name, "expected a UUID, got "+raw)
		return uuid.Nil, false
	}
	return id, true
}

// internalError logs err and writes a generic 500.
func (h *Handler) internalError(w http.ResponseWriter, r *http.Request, op string, err error) {
	h.logger.Error("Request failed",
		zap.String("op", op),
		zap.String("path", r.URL.Path),
		zap.Error(err))
	respond.WriteError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Internal server error")
}
