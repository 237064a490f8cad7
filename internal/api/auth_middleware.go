// internal/api/auth_middleware.go
package api

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/Corphon/DocDeck/internal/auth"
	"github.com/Corphon/DocDeck/internal/utils"
)

// AuthMiddleware 从 Bearer 令牌解析用户
// 未携带或无效的令牌降级为访客用户，用户身份随后作为参数传给服务层。
func AuthMiddleware(tokens *auth.TokenConfig) gin.HandlerFunc {
	logger := utils.GetLogger()
	return func(c *gin.Context) {
		token := strings.TrimSpace(strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer "))
		if token == "" {
			// 浏览器 WebSocket 无法设置请求头
			token = c.Query("access_token")
		}

		if token == "" || tokens == nil {
			setGuest(c)
			c.Next()
			return
		}

		parsed, err := auth.ParseToken(token, tokens)
		if err != nil {
			logger.Warn("令牌无效，降级为访客", map[string]interface{}{
				"path":  c.Request.URL.Path,
				"error": err.Error(),
			})
			setGuest(c)
			c.Set("auth_error", err.Error())
			c.Next()
			return
		}

		c.Set("user_id", parsed.UserID)
		c.Set("user_authenticated", true)
		c.Next()
	}
}

func setGuest(c *gin.Context) {
	c.Set("user_id", auth.GuestUserID)
	c.Set("user_authenticated", false)
}

// GetUserFromContext 返回当前用户及是否通过令牌认证
func GetUserFromContext(c *gin.Context) (string, bool) {
	userID := c.GetString("user_id")
	if userID == "" {
		return auth.GuestUserID, false
	}
	return userID, c.GetBool("user_authenticated")
}
