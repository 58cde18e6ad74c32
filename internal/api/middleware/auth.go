package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/research-office/research-registry/internal/api/response"
	"github.com/research-office/research-registry/internal/config"
	"github.com/research-office/research-registry/pkg/auth"
)

// Context keys set by AuthMiddleware and CorrelationMiddleware.
const (
	KeyUserID        = "user_id"
	KeyUserName      = "user_name"
	KeyRole          = "role"
	KeyActor         = "actor"
	KeyCorrelationID = "correlation_id"
)

// AuthMiddleware validates the bearer token and stores the caller identity
// on the gin context.
func AuthMiddleware(cfg *config.JWTConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			response.Unauthorized(c, "missing authorization header")
			c.Abort()
			return
		}

		const bearerPrefix = "Bearer "
		if !strings.HasPrefix(authHeader, bearerPrefix) {
			response.Unauthorized(c, "invalid authorization header format")
			c.Abort()
			return
		}

		claims, err := auth.ValidateToken(strings.TrimPrefix(authHeader, bearerPrefix), cfg.Secret)
		if err != nil {
			response.Unauthorized(c, "invalid token")
			c.Abort()
			return
		}

		c.Set(KeyUserID, claims.UserID)
		c.Set(KeyUserName, claims.Name)
		c.Set(KeyRole, claims.Role)
		c.Set(KeyActor, claims.Actor())

		c.Next()
	}
}

// UserID returns the authenticated user id, or uuid.Nil.
func UserID(c *gin.Context) uuid.UUID {
	id, _ := c.Get(KeyUserID)
	uid, _ := id.(uuid.UUID)
	return uid
}

// Actor returns the identity to record on history entries, falling back
// to def when the request carries none.
func Actor(c *gin.Context, def string) string {
	v, _ := c.Get(KeyActor)
	if actor, ok := v.(string); ok && actor != "" {
		return actor
	}
	return def
}
