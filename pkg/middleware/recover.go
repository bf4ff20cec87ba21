package middleware

import (
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"chainvend.com/pkg/common"
	"chainvend.com/pkg/logger"
	"chainvend.com/pkg/xerr"
)

// Recover turns a handler panic into a 500 envelope. A purchase that panics mid flight keeps
// its PROCESSING row and ledger claim, so the log carries the caller and request id.
func Recover() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			r := recover()
			if r == nil {
				return
			}
			logger.Error(c.Request.Context(), "http panic",
				zap.String("method", c.Request.Method),
				zap.String("route", c.FullPath()),
				zap.String("user_id", common.UserIDFromGin(c)),
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()),
			)
			if !c.Writer.Written() {
				common.Fail(c, http.StatusInternalServerError, xerr.ServerCommonError, xerr.MapErrMsg(xerr.ServerCommonError))
			}
			c.Abort()
		}()
		c.Next()
	}
}
