package handler

import (
	"net/http"

	"shopadmin/internal/apperror"
	"shopadmin/pkg/logger"

	"github.com/gin-gonic/gin"
)

// Success 成功响应
func Success(c *gin.Context, message string, data interface{}) {
	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": message,
		"data":    data,
	})
}

// Fail 按错误类别返回对应的状态码，内部错误只记录日志不返回细节
func Fail(c *gin.Context, log *logger.Logger, action string, err error) {
	kind := apperror.KindOf(err)
	if kind == apperror.KindInternal || kind == apperror.KindUpstream {
		log.Error(action+"失败", "error", err, "path", c.Request.URL.Path)
	}
	code := kind.Code()
	c.JSON(code, gin.H{
		"code":    code,
		"message": apperror.Message(err),
	})
}

// FailWith 直接返回指定状态码与消息
func FailWith(c *gin.Context, code int, message string) {
	c.JSON(code, gin.H{
		"code":    code,
		"message": message,
	})
}
