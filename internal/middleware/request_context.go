package middleware

import (
	"log/slog"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/anonto42/vidtube/backend/internal/auth"
	"github.com/anonto42/vidtube/backend/internal/logging"
)

// RequestContext decorates the request context with a request id, a request-scoped
// logger and the caller details used by the session audit trail.
func RequestContext(base *slog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			requestID := req.Header.Get(echo.HeaderXRequestID)
			if requestID == "" {
				requestID = uuid.NewString()
			}
			c.Response().Header().Set(echo.HeaderXRequestID, requestID)

			reqLogger := base.With(
				slog.String("request_id", requestID),
				slog.String("method", req.Method),
				slog.String("path", req.URL.Path),
			)

			ctx := logging.WithLogger(req.Context(), reqLogger)
			ctx = logging.WithRequestID(ctx, requestID)
			ctx = auth.WithClient(ctx, auth.ClientInfo{
				IPAddress: c.RealIP(),
				UserAgent: req.UserAgent(),
			})
			c.SetRequest(req.WithContext(ctx))
			return next(c)
		}
	}
}
