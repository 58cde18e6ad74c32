package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// CorrelationHeader carries the request correlation id in both directions.
const CorrelationHeader = "X-Correlation-ID"

// CorrelationMiddleware propagates the caller's correlation id or mints one.
func CorrelationMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		correlationID := c.GetHeader(CorrelationHeader)
		if correlationID == "" {
			correlationID = uuid.New().String()
		}

		c.Set(KeyCorrelationID, correlationID)
		c.Header(CorrelationHeader, correlationID)

		c.Next()
	}
}
