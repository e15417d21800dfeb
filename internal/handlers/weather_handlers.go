package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"

	"weather-etl/internal/models"
	"weather-etl/internal/services"
	"weather-etl/pkg/logging"
	"weather-etl/pkg/metrics"
	"weather-etl/pkg/responseformat"
)

// HealthChecker reports whether the backing store is reachable
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// WeatherHandler handles weather API endpoints
type WeatherHandler struct {
	weatherService *services.WeatherService
	health         HealthChecker
	formatter      *responseformat.Formatter
	validate       *validator.Validate
	logger         *logging.StructuredLogger
	metrics        *metrics.Collector
}

// NewWeatherHandler creates a new weather handler
func NewWeatherHandler(
	weatherService *services.WeatherService,
	health HealthChecker,
	logger *logging.StructuredLogger,
	metricsCollector *metrics.Collector,
) *WeatherHandler {
	return &WeatherHandler{
		weatherService: weatherService,
		health:         health,
		formatter:      responseformat.NewFormatter(),
		validate:       newValidator(),
		logger:         logger,
		metrics:        metricsCollector,
	}
}

// ErrorResponse represents an API error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}

// IncompleteQueryResponse is returned with 200 when a required filter is missing
type IncompleteQueryResponse struct {
	Success string `json:"success"`
	Message string `json:"message"`
}

// weatherParams holds the raw query parameters shared by both read endpoints
type weatherParams struct {
	StartDate  string `query:"start_date" validate:"required,datetime=2006-01-02"`
	EndDate    string `query:"end_date" validate:"required,datetime=2006-01-02"`
	StationID  string `query:"station_id" validate:"required"`
	PageSize   string `query:"page_size"`
	PageNumber string `query:"page_number"`
}

// newValidator reports fields under their query parameter names
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		return f.Tag.Get("query")
	})
	return v
}

var errIncompleteQuery = errors.New("incomplete query params")

// parseQuery validates the request parameters. A missing required parameter
// yields errIncompleteQuery; a malformed one yields a descriptive error.
func (h *WeatherHandler) parseQuery(r *http.Request) (services.WeatherQuery, error) {
	values := r.URL.Query()
	params := weatherParams{
		StartDate:  values.Get("start_date"),
		EndDate:    values.Get("end_date"),
		StationID:  values.Get("station_id"),
		PageSize:   values.Get("page_size"),
		PageNumber: values.Get("page_number"),
	}

	if err := h.validate.Struct(params); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return services.WeatherQuery{}, err
		}
		for _, fe := range verrs {
			if fe.Tag() == "required" {
				return services.WeatherQuery{}, errIncompleteQuery
			}
		}
		fe := verrs[0]
		return services.WeatherQuery{}, &models.ValidationError{
			Field:   fe.Field(),
			Value:   fmt.Sprint(fe.Value()),
			Message: fmt.Sprintf("invalid %s format, expected YYYY-MM-DD", fe.Field()),
		}
	}

	// dates were validated above
	startDate, _ := models.ParseISODate(params.StartDate)
	endDate, _ := models.ParseISODate(params.EndDate)

	return services.WeatherQuery{
		StartDate:  startDate,
		EndDate:    endDate,
		StationID:  params.StationID,
		PageSize:   atoiOrZero(params.PageSize),
		PageNumber: atoiOrZero(params.PageNumber),
	}, nil
}

// atoiOrZero returns 0 for anything that is not an integer; the service
// replaces 0 with the configured default
func atoiOrZero(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return n
}

// GetWeather handles GET /api/weather
func (h *WeatherHandler) GetWeather(w http.ResponseWriter, r *http.Request) {
	const endpoint = "/api/weather"
	ctx := r.Context()
	timer := h.metrics.NewTimer(h.metrics.APIRequestDuration.WithLabelValues(endpoint))
	defer timer.ObserveDuration()

	query, ok := h.readQuery(w, r, endpoint)
	if !ok {
		return
	}

	page, err := h.weatherService.GetWeather(ctx, query)
	if err != nil {
		h.logger.Error(ctx, "[API_GET_WEATHER_ERROR] Failed to get weather records", logging.Fields{
			"station_id": query.StationID,
			"start_date": query.StartDate.String(),
			"end_date":   query.EndDate.String(),
		}, err)
		h.metrics.RecordAPIError("internal_error", endpoint)
		h.sendError(w, r, endpoint, "failed to retrieve weather records", http.StatusInternalServerError)
		return
	}

	h.metrics.RecordAPIRequest(endpoint, r.Method, "200")
	h.send(w, r, page, http.StatusOK)
}

// GetWeatherStats handles GET /api/weather/stats
func (h *WeatherHandler) GetWeatherStats(w http.ResponseWriter, r *http.Request) {
	const endpoint = "/api/weather/stats"
	ctx := r.Context()
	timer := h.metrics.NewTimer(h.metrics.APIRequestDuration.WithLabelValues(endpoint))
	defer timer.ObserveDuration()

	query, ok := h.readQuery(w, r, endpoint)
	if !ok {
		return
	}

	page, err := h.weatherService.GetWeatherStats(ctx, query)
	if err != nil {
		h.logger.Error(ctx, "[API_GET_STATS_ERROR] Failed to compute statistics", logging.Fields{
			"station_id": query.StationID,
			"start_date": query.StartDate.String(),
			"end_date":   query.EndDate.String(),
		}, err)
		h.metrics.RecordAPIError("internal_error", endpoint)
		h.sendError(w, r, endpoint, "failed to compute statistics", http.StatusInternalServerError)
		return
	}

	h.metrics.RecordAPIRequest(endpoint, r.Method, "200")
	h.send(w, r, page, http.StatusOK)
}

// readQuery parses the request and writes the response itself when it cannot
func (h *WeatherHandler) readQuery(w http.ResponseWriter, r *http.Request, endpoint string) (services.WeatherQuery, bool) {
	query, err := h.parseQuery(r)
	if err == nil {
		return query, true
	}

	if errors.Is(err, errIncompleteQuery) {
		h.metrics.RecordAPIRequest(endpoint, r.Method, "200")
		h.send(w, r, IncompleteQueryResponse{Success: "ok", Message: "Incomplete query params"}, http.StatusOK)
		return query, false
	}

	h.metrics.RecordAPIError("validation_error", endpoint)
	h.sendError(w, r, endpoint, err.Error(), http.StatusBadRequest)
	return query, false
}

// HealthCheck handles GET /health
func (h *WeatherHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	status := map[string]string{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	code := http.StatusOK

	if err := h.health.HealthCheck(ctx); err != nil {
		h.logger.Warn(ctx, "[HEALTH_CHECK] Database unreachable", logging.Fields{
			"error": err.Error(),
		})
		status["status"] = "unhealthy"
		status["error"] = err.Error()
		code = http.StatusServiceUnavailable
	}

	h.logger.Debug(ctx, "[HEALTH_CHECK] Health check requested", logging.Fields{
		"status": status["status"],
	})
	h.send(w, r, status, code)
}

// send writes data as JSON, or MessagePack when the client asks for it
func (h *WeatherHandler) send(w http.ResponseWriter, r *http.Request, data interface{}, statusCode int) {
	if err := h.formatter.WriteResponse(w, r, data, statusCode); err != nil {
		h.logger.Error(r.Context(), "[API_WRITE_ERROR] Failed to write response", logging.Fields{
			"path": r.URL.Path,
		}, err)
	}
}

// sendError sends an error response
func (h *WeatherHandler) sendError(w http.ResponseWriter, r *http.Request, endpoint, message string, statusCode int) {
	h.metrics.RecordAPIRequest(endpoint, r.Method, strconv.Itoa(statusCode))

	response := ErrorResponse{
		Error:   http.StatusText(statusCode),
		Message: message,
		Code:    statusCode,
	}

	h.send(w, r, response, statusCode)
}

// RegisterRoutes registers all weather API routes
func (h *WeatherHandler) RegisterRoutes(router *mux.Router) {
	router.Use(RequestID(h.logger))
	router.HandleFunc("/api/weather", h.GetWeather).Methods(http.MethodGet)
	router.HandleFunc("/api/weather/stats", h.GetWeatherStats).Methods(http.MethodGet)
	router.HandleFunc("/health", h.HealthCheck).Methods(http.MethodGet)
	router.HandleFunc("/api/docs/openapi.json", OpenAPISpec).Methods(http.MethodGet)
	router.HandleFunc("/swagger", SwaggerUI).Methods(http.MethodGet)
}
