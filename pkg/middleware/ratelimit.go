package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"chainvend.com/pkg/common"
	"chainvend.com/pkg/logger"
	"chainvend.com/pkg/metrics"
	"chainvend.com/pkg/ratelimit"
)

const codeTooManyRequests = 4029

// RateLimit throttles per client IP and route.
func RateLimit(store *ratelimit.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}

		if !store.Allow(c.ClientIP() + ":" + route) {
			// expected rejection, no stack
			logger.Warn(c.Request.Context(), "http rate limited",
				zap.String("ip", c.ClientIP()),
				zap.String("route", route),
			)
			metrics.RateLimitBlockTotal.WithLabelValues("http", route, "ip_route").Inc()
			common.Fail(c, http.StatusTooManyRequests, codeTooManyRequests, "too many requests")
			c.Abort()
			return
		}
		c.Next()
	}
}
