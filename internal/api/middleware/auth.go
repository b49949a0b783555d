package middleware

import (
	"Folio/internal/pkg/consts"
	"Folio/internal/pkg/response"
	"Folio/internal/pkg/security"
	"errors"

	"github.com/gin-gonic/gin"
)

// AuthMiddleware 验证 JWT 与黑名单，并将用户身份注入 Context
func AuthMiddleware(revoker security.Revoker) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := security.BearerToken(c.GetHeader("Authorization"))
		if !ok {
			response.Fail(c, response.Unauthorized, "Token 缺失或格式错误")
			c.Abort()
			return
		}

		claims, err := security.Authenticate(c.Request.Context(), token, revoker)
		if err != nil {
			if errors.Is(err, security.ErrTokenMalformed) {
				response.Fail(c, response.Unauthorized, "Token 缺失或格式错误")
			} else if errors.Is(err, security.ErrTokenRevoked) || errors.Is(err, security.ErrTokenInvalid) {
				response.Fail(c, response.Unauthorized, "Token 无效或已过期")
			} else {
				response.Fail(c, response.InternalServerError, "未知错误")
			}
			c.Abort()
			return
		}

		c.Set(consts.CtxUserID, claims.UserID)
		c.Set(consts.CtxRoles, claims.Roles)
		c.Next()
	}
}
