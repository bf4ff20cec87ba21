package common

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"chainvend.com/pkg/logger"
	"chainvend.com/pkg/xerr"
)

// Response is the envelope of every HTTP answer.
type Response struct {
	Code    int         `json:"code"`
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Data    interface{} `json:"data"`
}

func Success(ctx *gin.Context, data interface{}) {
	SuccessMsg(ctx, http.StatusText(http.StatusOK), data)
}

func SuccessMsg(ctx *gin.Context, message string, data interface{}) {
	ctx.JSON(http.StatusOK, Response{
		Code:    http.StatusOK,
		Success: true,
		Message: message,
		Data:    data,
	})
}

func Fail(c *gin.Context, httpStatus int, code int, message string) {
	c.JSON(httpStatus, Response{
		Code:    code,
		Message: message,
		Data:    nil,
	})
}

// FailErr answers with the status and client-safe message of err's xerr code.
// 5xx answers are logged with the full cause, 4xx only at warn.
func FailErr(c *gin.Context, err error) {
	code := xerr.CodeOf(err)
	status := xerr.HTTPStatus(code)
	fields := []zap.Field{
		zap.String("method", c.Request.Method),
		zap.String("path", c.Request.URL.Path),
		zap.Int("biz_code", code),
		zap.Error(err),
	}
	if status >= http.StatusInternalServerError {
		logger.Error(c.Request.Context(), "http error", fields...)
	} else {
		logger.Warn(c.Request.Context(), "http rejected", fields...)
	}
	Fail(c, status, code, xerr.MessageOf(err))
}

// FailWithData is FailErr for flows that still have something to return, e.g. the id of
// the FAILED purchase a client may quote to support.
func FailWithData(c *gin.Context, err error, data interface{}) {
	code := xerr.CodeOf(err)
	status := xerr.HTTPStatus(code)
	logger.Warn(c.Request.Context(), "http failed with data",
		zap.String("path", c.Request.URL.Path), zap.Int("biz_code", code), zap.Error(err))
	c.JSON(status, Response{Code: code, Message: xerr.MessageOf(err), Data: data})
}
