package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"chatstream/internal/auth"
	"chatstream/internal/metrics"
)

// Logging writes one access log line per request and records request metrics.
func Logging(logger zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		latency := time.Since(start)
		statusCode := c.Writer.Status()
		metrics.RecordRequest(c.Request.Method, c.FullPath(), statusCode, latency.Seconds())

		logEvent := logger.Info()
		if statusCode >= 500 {
			logEvent = logger.Error()
		} else if statusCode >= 400 {
			logEvent = logger.Warn()
		}
		if requestID := RequestIDFromContext(c); requestID != "" {
			logEvent = logEvent.Str("request_id", requestID)
		}
		if auth.IsAdmin(c) {
			logEvent = logEvent.Bool("admin", true)
		}
		if trailer := c.Writer.Header().Get("X-Stream-Status"); trailer != "" {
			logEvent = logEvent.Str("stream_status", trailer)
		}

		logEvent.
			Str("client_ip", c.ClientIP()).
			Str("method", c.Request.Method).
			Str("path", path).
			Int("status", statusCode).
			Int("bytes", c.Writer.Size()).
			Dur("latency", latency).
			Msg(c.Errors.ByType(gin.ErrorTypePrivate).String())
	}
}
