package middleware

import (
	"math"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"chatstream/internal/metrics"
	"chatstream/internal/ratelimit"
)

// Throttle limits requests per client IP. A limiter error lets the request through.
func Throttle(limiter ratelimit.Limiter, logger zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		allowed, retryAfter, err := limiter.Allow(c.Request.Context(), rateKey(c))
		if err != nil {
			logger.Error().Err(err).Str("request_id", RequestIDFromContext(c)).Msg("rate limiter unavailable")
			c.Next()
			return
		}
		if !allowed {
			metrics.ThrottledTotal.Inc()
			c.Header("Retry-After", retryAfterSeconds(retryAfter))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "too many requests, please retry later"})
			return
		}
		c.Next()
	}
}

func rateKey(c *gin.Context) string {
	if ip := clientIP(c.ClientIP()); ip != "" {
		return "ip:" + ip
	}
	return "anonymous"
}

// clientIP normalizes IPv4-mapped IPv6 addresses.
func clientIP(raw string) string {
	if raw == "" {
		return ""
	}
	if ip := net.ParseIP(raw); ip != nil {
		if v4 := ip.To4(); v4 != nil {
			return v4.String()
		}
		return ip.String()
	}
	return raw
}

func retryAfterSeconds(d time.Duration) string {
	secs := int(math.Ceil(d.Seconds()))
	if secs < 1 {
		secs = 1
	}
	return strconv.Itoa(secs)
}
