package server

import (
	"math"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

// writeThrottle applies the shared write rate limit. A nil limiter admits
// everything, so the middleware costs nothing when rate limiting is off.
func (s *Server) writeThrottle() gin.HandlerFunc {
	return func(c *gin.Context) {
		allowed, retryAfter := s.writes.Allow(c.Request.Context())
		if !allowed {
			seconds := int(math.Ceil(retryAfter.Seconds()))
			if seconds < 1 {
				seconds = 1
			}
			c.Header("Retry-After", strconv.Itoa(seconds))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, errorResponse{Error: errorPayload{
				Type:    "rate_limited",
				Message: "write rate limit exceeded",
			}})
			return
		}
		c.Next()
	}
}
