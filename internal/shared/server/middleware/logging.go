package middleware

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"ingest-backend/internal/shared/telemetry"
)

// Logging emits a structured log per request.
func Logging() gin.HandlerFunc {
	return func(c *gin.Context) {
		if strings.EqualFold(c.Request.Method, "OPTIONS") {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()
		latency := time.Since(start)
		status := c.Writer.Status()
		reqID := RequestIDFromContext(c)

		ownerID, _ := c.Get(ownerIDKey)
		documentID, _ := c.Get("documentId")
		rejectReason := ""
		if raw, ok := c.Get("rejectReason"); ok {
			if s, ok := raw.(string); ok {
				rejectReason = s
			}
		}

		telemetry.Info("request.complete", map[string]any{
			"request_id":    reqID,
			"method":        c.Request.Method,
			"path":          c.Request.URL.Path,
			"status":        status,
			"reject_reason": rejectReason,
			"duration_ms":   float64(latency.Microseconds()) / 1000.0,
			"owner_id":      ownerID,
			"document_id":   documentID,
			"client_ip":     c.ClientIP(),
			"user_agent":    c.Request.UserAgent(),
		})
	}
}
