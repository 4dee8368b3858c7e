package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/rikuduo/rikuduo/internal/common"
)

const RequestIDHeader = "X-Request-ID"

// RequestID attaches a ULID to every request, reusing the caller's id when
// one is supplied.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		rid := c.GetHeader(RequestIDHeader)
		if rid == "" {
			if id, err := common.NewULID(); err == nil {
				rid = id
			}
		}
		c.Set(RequestIDHeader, rid)
		c.Writer.Header().Set(RequestIDHeader, rid)
		c.Next()
	}
}
