package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"ingest-backend/internal/shared/server/respond"
)

const ownerIDKey = "ownerId"

// Identity resolves the authenticated owner from the X-User-Id header set by
// the upstream identity boundary. The pipeline performs no authentication of
// its own; it only authorizes ownership on reads and writes.
func Identity() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method == http.MethodOptions {
			c.Status(http.StatusNoContent)
			return
		}

		ownerID := strings.TrimSpace(c.GetHeader("X-User-Id"))
		if ownerID == "" {
			respond.Error(c, http.StatusUnauthorized, "unauthorized", "Missing identity", nil)
			return
		}

		c.Set(ownerIDKey, ownerID)
		c.Next()
	}
}

// OwnerIDFromContext fetches the owner ID set by the Identity middleware.
func OwnerIDFromContext(c *gin.Context) string {
	if c == nil {
		return ""
	}
	val, _ := c.Get(ownerIDKey)
	if id, ok := val.(string); ok {
		return id
	}
	return ""
}
