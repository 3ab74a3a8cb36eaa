package middleware

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"finreport-backend/internal/shared/telemetry"
)

// Context keys handlers may set to enrich the request log.
const (
	ReportIDKey = "reportId"
	ActionKey   = "action"
)

// Logging emits a structured log per request.
func Logging() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method == http.MethodOptions {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()
		latency := time.Since(start)

		telemetry.Info("request.complete", map[string]any{
			"request_id":  RequestIDFromContext(c),
			"method":      c.Request.Method,
			"path":        c.Request.URL.Path,
			"status":      c.Writer.Status(),
			"duration_ms": float64(latency.Microseconds()) / 1000.0,
			"user_id":     UserIDFromContext(c),
			"report_id":   stringFromContext(c, ReportIDKey),
			"action":      stringFromContext(c, ActionKey),
			"bytes_out":   c.Writer.Size(),
			"client_ip":   c.ClientIP(),
			"user_agent":  c.Request.UserAgent(),
		})
	}
}
