package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"chainvend.com/pkg/common"
	"chainvend.com/pkg/xerr"
)

// RequireUser takes the caller identity from X-User-Id, set by the gateway in front of the
// service. Requests without it are rejected.
func RequireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		uid := strings.TrimSpace(c.GetHeader(common.HeaderUserID))
		if uid == "" || len(uid) > 64 {
			common.Fail(c, http.StatusUnauthorized, xerr.Unauthorized, xerr.MapErrMsg(xerr.Unauthorized))
			c.Abort()
			return
		}
		c.Set(common.CtxKeyUserID, uid)
		c.Next()
	}
}
