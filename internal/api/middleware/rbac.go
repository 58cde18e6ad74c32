package middleware

import (
	"slices"

	"github.com/gin-gonic/gin"

	"github.com/research-office/research-registry/internal/api/response"
)

// RequireRole rejects callers whose role is not in allowedRoles.
func RequireRole(allowedRoles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		v, exists := c.Get(KeyRole)
		if !exists {
			response.Forbidden(c, "user role not found in context")
			c.Abort()
			return
		}

		role, ok := v.(string)
		if !ok {
			response.Forbidden(c, "invalid role format")
			c.Abort()
			return
		}

		if !slices.Contains(allowedRoles, role) {
			response.Forbidden(c, "insufficient permissions")
			c.Abort()
			return
		}

		c.Next()
	}
}
