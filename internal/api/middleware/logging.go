package middleware

import (
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
)

// ServiceName is attached to every request log line.
const ServiceName = "research-registry"

// StructuredLogging logs each request through the default slog logger.
func StructuredLogging() gin.HandlerFunc {
	return LoggingMiddleware(slog.Default(), ServiceName)
}

// LoggingMiddleware emits one structured line per request. Identity keys are
// read after the handler chain runs, so auth applied on a route group is
// still reflected.
func LoggingMiddleware(logger *slog.Logger, serviceName string) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		status := c.Writer.Status()
		outcome, level := classifyStatus(status)

		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}

		attrs := []slog.Attr{
			slog.String("service", serviceName),
			slog.String("method", c.Request.Method),
			slog.String("path", path),
			slog.Int("status_code", status),
			slog.Int64("duration_ms", time.Since(start).Milliseconds()),
			slog.String("outcome", outcome),
		}
		for _, key := range []string{KeyCorrelationID, KeyUserID, KeyActor} {
			if v, ok := c.Get(key); ok {
				attrs = append(attrs, slog.Any(key, v))
			}
		}
		if len(c.Errors) > 0 {
			attrs = append(attrs, slog.String("errors", c.Errors.String()))
		}

		logger.LogAttrs(c.Request.Context(), level, "request processed", attrs...)
	}
}

func classifyStatus(status int) (string, slog.Level) {
	switch {
	case status >= 200 && status < 400:
		return "success", slog.LevelInfo
	case status >= 400 && status < 500:
		return "client_error", slog.LevelWarn
	case status >= 500:
		return "server_error", slog.LevelError
	default:
		return "unknown", slog.LevelInfo
	}
}
