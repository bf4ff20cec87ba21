package common

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"chainvend.com/pkg/logger"
)

const (
	HeaderRequestID = "X-Request-Id"
	HeaderUserID    = "X-User-Id"
	CtxKeyRequestID = logger.RequestIdKey
	CtxKeyUserID    = "user_id"
)

func New() string { return uuid.NewString() }

func RequestIDFromGin(c *gin.Context) string {
	if v, ok := c.Get(CtxKeyRequestID); ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// UserIDFromGin is the caller identity set by the auth middleware, empty when absent.
func UserIDFromGin(c *gin.Context) string {
	return c.GetString(CtxKeyUserID)
}
