package middleware

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"

	"chainvend.com/pkg/common"
)

const maxRequestIDLen = 64

// ReqId keeps a caller supplied X-Request-Id when it looks sane and mints one otherwise.
// The id is echoed back and stored on both contexts so handlers and logs agree on it.
func ReqId() gin.HandlerFunc {
	return func(c *gin.Context) {
		rid := strings.TrimSpace(c.GetHeader(common.HeaderRequestID))
		if rid == "" || len(rid) > maxRequestIDLen || strings.ContainsAny(rid, " \t\r\n") {
			rid = common.New()
		}
		c.Set(common.CtxKeyRequestID, rid)
		c.Header(common.HeaderRequestID, rid)
		c.Request = c.Request.WithContext(context.WithValue(c.Request.Context(), common.CtxKeyRequestID, rid))
		c.Next()
	}
}
