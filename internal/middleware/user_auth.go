package middleware

import (
	"errors"
	"net/http"

	"shopadmin/internal/constants"
	"shopadmin/internal/model"
	"shopadmin/internal/repository"
	"shopadmin/pkg/logger"

	"github.com/gin-gonic/gin"
)

// IdentityKey 上下文中保存认证身份的键
const IdentityKey = "identity"

// authenticate 通过 Authorization 头解析身份，失败时已写入响应
func authenticate(c *gin.Context, users repository.UserRepository, log *logger.Logger) (*model.Identity, bool) {
	token := c.GetHeader("Authorization")
	if token == "" {
		abort(c, http.StatusUnauthorized, constants.ErrUnauthorized)
		return nil, false
	}

	user, err := users.GetByToken(c.Request.Context(), token)
	if errors.Is(err, repository.ErrNotFound) {
		abort(c, http.StatusUnauthorized, constants.ErrInvalidToken)
		return nil, false
	}
	if err != nil {
		log.Error("验证Token失败", "error", err)
		abort(c, http.StatusInternalServerError, "internal server error")
		return nil, false
	}
	return user.Identity(), true
}

func abort(c *gin.Context, code int, msg string) {
	c.AbortWithStatusJSON(code, gin.H{"code": code, "message": msg})
}

// UserAuth 用户认证中间件
func UserAuth(users repository.UserRepository, log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		identity, ok := authenticate(c, users, log)
		if !ok {
			return
		}
		c.Set(IdentityKey, identity)
		c.Next()
	}
}

// CurrentIdentity 取出认证中间件写入的身份
func CurrentIdentity(c *gin.Context) (*model.Identity, bool) {
	v, exists := c.Get(IdentityKey)
	if !exists {
		return nil, false
	}
	identity, ok := v.(*model.Identity)
	return identity, ok && identity != nil
}
