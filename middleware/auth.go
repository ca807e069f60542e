package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"friendline/utils"
)

// TokenCookie is the cookie the session token is issued in.
const TokenCookie = "jwt"

// AuthMiddleware accepts a bearer token or the session cookie and stores the
// authenticated user id in the context.
func AuthMiddleware(tokens *utils.TokenManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := extractToken(c)
		if !ok {
			utils.Unauthorized(c, "Unauthorized - No token provided")
			c.Abort()
			return
		}

		claims, err := tokens.ParseToken(token)
		if err != nil {
			utils.Unauthorized(c, "Unauthorized - Invalid token")
			c.Abort()
			return
		}

		c.Set("user_id", claims.UserID)
		c.Next()
	}
}

func extractToken(c *gin.Context) (string, bool) {
	if authHeader := c.GetHeader("Authorization"); authHeader != "" {
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
			return "", false
		}
		return parts[1], true
	}

	token, err := c.Cookie(TokenCookie)
	if err != nil || token == "" {
		return "", false
	}
	return token, true
}

func GetUserID(c *gin.Context) string {
	return c.GetString("user_id")
}
