package v1

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/binods1313/MutationMechanic-sub000/internal/profile"
	apierrors "github.com/binods1313/MutationMechanic-sub000/server/internal/errors"
	"github.com/binods1313/MutationMechanic-sub000/server/service/annotation"
	"github.com/binods1313/MutationMechanic-sub000/server/service/explain"
	"github.com/binods1313/MutationMechanic-sub000/server/service/history"
	"github.com/binods1313/MutationMechanic-sub000/server/service/preset"
	"github.com/binods1313/MutationMechanic-sub000/store/cache"
)

// APIV1Service serves the JSON API under /api/v1.
type APIV1Service struct {
	Profile           *profile.Profile
	HistoryService    *history.Service
	PresetService     *preset.Service
	AnnotationService *annotation.Aggregator
	ExplainService    *explain.Service
	// Cache is reported by /healthz when set.
	Cache *cache.TieredCache
	// Gatherer backs /metrics; nil disables the endpoint.
	Gatherer prometheus.Gatherer
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Code    apierrors.ErrorCode `json:"code"`
	Message string              `json:"message"`
}

// RegisterRoutes registers the API, health and metrics handlers.
func (s *APIV1Service) RegisterRoutes(echoServer *echo.Echo, middlewares ...echo.MiddlewareFunc) {
	echoServer.GET("/healthz", s.Healthz)
	if s.Gatherer != nil {
		echoServer.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(s.Gatherer, promhttp.HandlerOpts{})))
	}

	g := echoServer.Group("/api/v1", middlewares...)

	g.GET("/history", s.ListHistory)
	g.POST("/history", s.CreateHistoryRecord)
	g.DELETE("/history", s.ClearHistory)
	g.GET("/history/stats", s.GetHistoryStats)
	g.GET("/history/export", s.ExportHistory)
	g.GET("/history/feed", s.GetHistoryFeed)
	g.POST("/history/batchDelete", s.BatchDeleteHistory)
	g.POST("/history/batchArchive", s.BatchArchiveHistory)
	g.GET("/history/:id", s.GetHistoryRecord)
	g.PATCH("/history/:id", s.UpdateHistoryRecord)
	g.DELETE("/history/:id", s.DeleteHistoryRecord)

	g.GET("/presets", s.ListPresets)
	g.POST("/presets", s.SavePreset)
	g.POST("/presets/import", s.ImportPresets)
	g.GET("/presets/export", s.ExportPresets)
	g.DELETE("/presets/:id", s.DeletePreset)

	g.GET("/annotations", s.GetAnnotations)
	g.POST("/annotations/compare", s.CompareAnnotations)

	g.POST("/explain", s.Explain)
}

// Healthz reports liveness and which optional components are enabled.
func (s *APIV1Service) Healthz(c echo.Context) error {
	status := map[string]any{
		"status":  "ok",
		"durable": s.HistoryService != nil && s.HistoryService.Durable(),
		"explain": s.ExplainService != nil && s.ExplainService.Enabled(),
	}
	if s.Profile != nil {
		status["version"] = s.Profile.Version
	}
	if s.AnnotationService != nil {
		status["providers"] = s.AnnotationService.Providers()
	}
	if s.Cache != nil {
		status["cache"] = s.Cache.Stats()
	}
	return c.JSON(http.StatusOK, status)
}

// HTTPErrorHandler writes errors as ErrorResponse with the status of their code.
func HTTPErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	apiErr := toAPIError(err)
	status := apiErr.Code.HTTPStatus()
	var httpErr *echo.HTTPError
	if errors.As(err, &httpErr) {
		status = httpErr.Code
	}
	if status >= http.StatusInternalServerError {
		slog.Error("request failed", slog.String("path", c.Path()), slog.String("error", err.Error()))
	}

	var writeErr error
	if c.Request().Method == http.MethodHead {
		writeErr = c.NoContent(status)
	} else {
		writeErr = c.JSON(status, ErrorResponse{Code: apiErr.Code, Message: apiErr.Message})
	}
	if writeErr != nil {
		slog.Warn("failed to write error response", slog.String("error", writeErr.Error()))
	}
}

// toAPIError maps service errors onto API error codes.
func toAPIError(err error) *apierrors.APIError {
	var apiErr *apierrors.APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}
	var httpErr *echo.HTTPError
	if errors.As(err, &httpErr) {
		msg := http.StatusText(httpErr.Code)
		if m, ok := httpErr.Message.(string); ok {
			msg = m
		}
		return &apierrors.APIError{Code: codeForStatus(httpErr.Code), Message: msg, Cause: err}
	}

	switch {
	case errors.Is(err, history.ErrInvalidRecord),
		errors.Is(err, preset.ErrInvalidImport),
		errors.Is(err, preset.ErrInvalidPreset),
		errors.Is(err, annotation.ErrInvalidQuery),
		errors.Is(err, explain.ErrInvalidRequest):
		return apierrors.Wrap(err, apierrors.ErrCodeInvalidArgument, err.Error())
	case errors.Is(err, annotation.ErrNoData):
		return apierrors.Wrap(err, apierrors.ErrCodeNoData, err.Error())
	case errors.Is(err, cache.ErrQuotaExceeded):
		return apierrors.Wrap(err, apierrors.ErrCodeQuotaExceeded, "preset storage is full")
	case errors.Is(err, explain.ErrDisabled):
		return apierrors.Wrap(err, apierrors.ErrCodeServiceUnavailable, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return apierrors.Wrap(err, apierrors.ErrCodeTimeout, "operation timed out")
	default:
		return apierrors.Wrap(err, apierrors.ErrCodeInternal, "internal error")
	}
}

func codeForStatus(status int) apierrors.ErrorCode {
	switch status {
	case http.StatusBadRequest, http.StatusUnprocessableEntity, http.StatusRequestEntityTooLarge,
		http.StatusUnsupportedMediaType, http.StatusMethodNotAllowed:
		return apierrors.ErrCodeInvalidArgument
	case http.StatusNotFound:
		return apierrors.ErrCodeNotFound
	case http.StatusTooManyRequests:
		return apierrors.ErrCodeRateLimitExceeded
	case http.StatusServiceUnavailable:
		return apierrors.ErrCodeServiceUnavailable
	default:
		return apierrors.ErrCodeInternal
	}
}
