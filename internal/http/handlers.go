package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/kjstillabower/weather-watchlist-service/internal/lifecycle"
	"github.com/kjstillabower/weather-watchlist-service/internal/models"
	"github.com/kjstillabower/weather-watchlist-service/internal/service"
	"github.com/kjstillabower/weather-watchlist-service/internal/traffic"
)

const serviceName = "weather-watchlist-service"

// maxBodyBytes bounds POST /cities bodies.
const maxBodyBytes = 4 << 10

var validate = validator.New()

// WatchlistService is what the handlers need from the service layer.
type WatchlistService interface {
	AddCity(ctx context.Context, name string) (models.City, error)
	RemoveCity(ctx context.Context, name string) error
	ListCities(ctx context.Context) ([]models.City, error)
	ListReadings(ctx context.Context, limit int) ([]models.ReadingView, error)
	ListAlerts(ctx context.Context, limit int) ([]models.AlertView, error)
}

// HealthConfig holds the inputs for GET /health.
type HealthConfig struct {
	DegradedWindow   time.Duration
	DegradedErrorPct float64
	// StorePing checks database reachability. Required for a healthy status.
	StorePing func(ctx context.Context) error
	// CachePing, when set, is reported under checks.cache. Used when backend is memcached.
	CachePing func() error
	Version   string
}

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	watchlist        WatchlistService
	healthConfig     *HealthConfig
	logger           *zap.Logger
	healthStatusMu   sync.Mutex
	healthStatusPrev string
}

// NewHandler returns a new Handler.
func NewHandler(watchlist WatchlistService, healthConfig *HealthConfig, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		watchlist:    watchlist,
		healthConfig: healthConfig,
		logger:       logger,
	}
}

type addCityRequest struct {
	City string `json:"city" validate:"required"`
}

// ListWeather handles GET /weather.
func (h *Handler) ListWeather(w http.ResponseWriter, r *http.Request) {
	limit, ok := parseLimit(w, r)
	if !ok {
		return
	}
	readings, err := h.watchlist.ListReadings(r.Context(), limit)
	if err != nil {
		writeInternalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, readings)
}

// ListAlerts handles GET /alerts.
func (h *Handler) ListAlerts(w http.ResponseWriter, r *http.Request) {
	limit, ok := parseLimit(w, r)
	if !ok {
		return
	}
	alerts, err := h.watchlist.ListAlerts(r.Context(), limit)
	if err != nil {
		writeInternalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, alerts)
}

// ListCities handles GET /cities.
func (h *Handler) ListCities(w http.ResponseWriter, r *http.Request) {
	cities, err := h.watchlist.ListCities(r.Context())
	if err != nil {
		writeInternalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cities)
}

// AddCity handles POST /cities with body {"city": "..."}.
func (h *Handler) AddCity(w http.ResponseWriter, r *http.Request) {
	var req addCityRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_BODY", "request body must be JSON: {\"city\": string}")
		return
	}
	req.City = strings.TrimSpace(req.City)
	if err := validate.Struct(req); err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_CITY", "city is required")
		return
	}

	city, err := h.watchlist.AddCity(r.Context(), req.City)
	if err != nil {
		writeWatchlistError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, city)
}

// DeleteCity handles DELETE /cities/{city}.
func (h *Handler) DeleteCity(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["city"]
	if strings.TrimSpace(name) == "" {
		writeError(w, r, http.StatusBadRequest, "INVALID_CITY", "city is required")
		return
	}
	if err := h.watchlist.RemoveCity(r.Context(), name); err != nil {
		writeWatchlistError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"deleted": name})
}

// parseLimit reads the optional ?limit= query parameter. Writes a 400 and
// returns ok=false when it is not a non-negative integer.
func parseLimit(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		writeError(w, r, http.StatusBadRequest, "INVALID_LIMIT", "limit must be a non-negative integer")
		return 0, false
	}
	return n, true
}

// healthResult holds the computed health status and the HTTP code to return.
type healthResult struct {
	status     string
	statusCode int
	storeErr   error
}

// GetHealth handles GET /health.
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	result := h.computeHealthStatus(r.Context())

	h.healthStatusMu.Lock()
	prev := h.healthStatusPrev
	if prev != "" && prev != result.status {
		fields := []zap.Field{
			zap.String("previous_status", prev),
			zap.String("current_status", result.status),
		}
		if result.storeErr != nil {
			fields = append(fields, zap.NamedError("store_error", result.storeErr))
		}
		h.logger.Info("health status transition", fields...)
	}
	h.healthStatusPrev = result.status
	h.healthStatusMu.Unlock()

	checks := map[string]string{"store": "healthy"}
	if result.storeErr != nil || result.status == lifecycle.StatusStarting {
		checks["store"] = "unhealthy"
	}
	if h.healthConfig != nil && h.healthConfig.CachePing != nil {
		if h.healthConfig.CachePing() == nil {
			checks["cache"] = "healthy"
		} else {
			checks["cache"] = "unhealthy"
		}
	}
	version := "dev"
	if h.healthConfig != nil && h.healthConfig.Version != "" {
		version = h.healthConfig.Version
	}
	writeJSON(w, result.statusCode, map[string]interface{}{
		"status":    result.status,
		"service":   serviceName,
		"version":   version,
		"checks":    checks,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// computeHealthStatus evaluates shutdown, readiness, the store ping and the
// recent fetch failure rate, in that order.
func (h *Handler) computeHealthStatus(ctx context.Context) healthResult {
	var signals lifecycle.Signals
	if !lifecycle.IsShuttingDown() && lifecycle.IsReady() && h.healthConfig != nil {
		if h.healthConfig.StorePing != nil {
			signals.StoreErr = h.healthConfig.StorePing(ctx)
		}
		if h.healthConfig.DegradedWindow > 0 {
			signals.Failures, signals.Total = traffic.ErrorRate(h.healthConfig.DegradedWindow)
			signals.DegradedErrorPct = h.healthConfig.DegradedErrorPct
		}
	}

	status := lifecycle.Status(signals)
	code := http.StatusOK
	if status != lifecycle.StatusHealthy {
		code = http.StatusServiceUnavailable
	}
	return healthResult{status: status, statusCode: code, storeErr: signals.StoreErr}
}

// writeJSON writes v as JSON with the given status code.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes {"error":{"code","message","requestId"}}. requestId is the
// correlation ID when the middleware set one.
func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	corrID, _ := r.Context().Value("correlation_id").(string)
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]string{
			"code":      code,
			"message":   message,
			"requestId": corrID,
		},
	})
}

// writeWatchlistError maps service errors to status codes.
func writeWatchlistError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidCity):
		writeError(w, r, http.StatusBadRequest, "INVALID_CITY", err.Error())
	case errors.Is(err, service.ErrUnknownCity):
		writeError(w, r, http.StatusNotFound, "CITY_UNKNOWN", "city not found by weather provider")
	case errors.Is(err, service.ErrCityExists):
		writeError(w, r, http.StatusConflict, "CITY_EXISTS", "city already in watchlist")
	case errors.Is(err, service.ErrCityNotFound):
		writeError(w, r, http.StatusNotFound, "CITY_NOT_FOUND", "city not in watchlist")
	case errors.Is(err, service.ErrProviderUnavailable):
		requestLogger(r).Debug("provider unavailable", zap.Error(err))
		writeError(w, r, http.StatusServiceUnavailable, "UPSTREAM_UNAVAILABLE", "unable to verify city with weather provider")
	default:
		writeInternalError(w, r, err)
	}
}

// writeInternalError logs err and writes a 500 without leaking details.
func writeInternalError(w http.ResponseWriter, r *http.Request, err error) {
	requestLogger(r).Error("request failed", zap.Error(err))
	writeError(w, r, http.StatusInternalServerError, "INTERNAL_ERROR", "internal error")
}

// requestLogger returns the request-scoped logger or a no-op logger.
func requestLogger(r *http.Request) *zap.Logger {
	if logger, ok := r.Context().Value("logger").(*zap.Logger); ok && logger != nil {
		return logger
	}
	return zap.NewNop()
}
