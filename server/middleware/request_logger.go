package middleware

import (
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/binods1313/MutationMechanic-sub000/server/internal/observability"
)

// RequestIDHeader carries the request id on requests and responses.
const RequestIDHeader = echo.HeaderXRequestID

// RequestLogger attaches a request context to every request, echoes its id in the
// response header, and logs the outcome with its duration.
func RequestLogger(logger *slog.Logger, metrics *observability.Metrics) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			var reqCtx *observability.RequestContext
			if id := req.Header.Get(RequestIDHeader); id != "" {
				reqCtx = observability.NewRequestContextWithID(logger, id, req.Method, c.Path())
			} else {
				reqCtx = observability.NewRequestContext(logger, req.Method, c.Path())
			}
			c.SetRequest(req.WithContext(observability.WithRequestContext(req.Context(), reqCtx)))
			c.Response().Header().Set(RequestIDHeader, reqCtx.RequestID)

			err := next(c)
			if err != nil {
				// Let the error handler write the response so the status is known.
				c.Error(err)
			}

			status := c.Response().Status
			metrics.RecordRequest(req.Method, c.Path(), status, reqCtx.Duration())
			attrs := []slog.Attr{
				slog.Int(observability.LogFieldStatus, status),
				slog.Int64(observability.LogFieldDuration, reqCtx.DurationMs()),
			}
			switch {
			case status >= http.StatusInternalServerError && err != nil:
				reqCtx.Error("request failed", err, attrs...)
			case status >= http.StatusBadRequest:
				reqCtx.Warn("request rejected", attrs...)
			default:
				reqCtx.Info("request completed", attrs...)
			}
			return nil
		}
	}
}
