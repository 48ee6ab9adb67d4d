package middleware

import (
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/GScandelari/curva-mestra-system-sub005/internal/platform/auth"
)

// Logger writes one line per request. Server errors log at error level and
// client errors at warn. Handlers reach a logger tagged with the request id
// through zerolog.Ctx(ctx).
func Logger(logger zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			rid, _ := c.Get("request_id").(string)
			reqLogger := logger.With().Str("request_id", rid).Logger()
			req := c.Request().WithContext(reqLogger.WithContext(c.Request().Context()))
			c.SetRequest(req)

			err := next(c)
			if err != nil {
				// let the error handler write the status before we read it
				c.Error(err)
			}

			status := c.Response().Status
			var evt *zerolog.Event
			switch {
			case status >= 500:
				evt = logger.Error().Err(err)
			case status >= 400:
				evt = logger.Warn()
			default:
				evt = logger.Info()
			}

			tenant, _ := c.Get("jwt_tenant_id").(string)
			evt.
				Str("request_id", rid).
				Str("tenant_id", tenant).
				Str("user_id", auth.UserIDFromContext(c.Request().Context())).
				Str("method", req.Method).
				Str("path", req.URL.Path).
				Str("route", c.Path()).
				Int("status", status).
				Dur("latency", time.Since(start)).
				Str("remote_ip", c.RealIP()).
				Msg("request")

			return err
		}
	}
}
