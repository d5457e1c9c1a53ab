package mw

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// UserIDKey is the context key holding the caller ID.
const UserIDKey = "user_id"

// Identity reads the caller ID from header, set by the upstream identity
// provider, and rejects requests without one.
func Identity(header string) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := strings.TrimSpace(c.GetHeader(header))
		if userID == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing caller identity"})
			return
		}
		c.Set(UserIDKey, userID)
		c.Next()
	}
}

// UserID returns the caller ID stored by Identity.
func UserID(c *gin.Context) string {
	return c.GetString(UserIDKey)
}
