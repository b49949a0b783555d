package security

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const issuer = "Folio"

var (
	jwtSecret         = []byte("folio")
	jwtExpirationTime = 24 * time.Hour
)

// Configure 启动时由配置注入密钥与有效期
func Configure(secret string, expiration time.Duration) {
	if secret != "" {
		jwtSecret = []byte(secret)
	}
	if expiration > 0 {
		jwtExpirationTime = expiration
	}
}

// UserClaims Token 中携带的身份信息
type UserClaims struct {
	UserID uint64   `json:"user_id"`
	Roles  []string `json:"roles"`
	jwt.RegisteredClaims
}

// HasRole 是否拥有任一角色
func (c *UserClaims) HasRole(roles ...string) bool {
	for _, want := range roles {
		for _, have := range c.Roles {
			if want == have {
				return true
			}
		}
	}
	return false
}
