package middleware

import (
	"net/http"

	"shopadmin/internal/constants"
	"shopadmin/internal/repository"
	"shopadmin/pkg/logger"

	"github.com/gin-gonic/gin"
)

// AdminAuth 管理员认证中间件
func AdminAuth(users repository.UserRepository, log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		identity, ok := authenticate(c, users, log)
		if !ok {
			return
		}
		if !identity.IsAdmin() {
			abort(c, http.StatusForbidden, constants.ErrInsufficientPermission)
			return
		}
		c.Set(IdentityKey, identity)
		c.Next()
	}
}
