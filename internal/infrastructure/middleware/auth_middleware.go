package middleware

import (
	"net/http"
	"strings"

	"bemore/internal/core/domain"
	"bemore/internal/core/services"
	"bemore/pkg/errors"

	"github.com/gin-gonic/gin"
)

func unauthorized(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"error": gin.H{
			"code":    string(errors.ErrCodeUnauthorized),
			"message": message,
		},
	})
}

func bearerToken(c *gin.Context) (string, bool) {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		return "", false
	}
	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || parts[0] != "Bearer" {
		return "", false
	}
	return parts[1], true
}

// SessionTokenMiddleware checks that the bearer token was issued for the
// session named by the :id route parameter.
func SessionTokenMiddleware(authService services.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetHeader("Authorization") == "" {
			unauthorized(c, "authorization header required")
			return
		}

		token, ok := bearerToken(c)
		if !ok {
			unauthorized(c, "invalid authorization header format")
			return
		}

		claims, err := authService.Authorize(token, domain.SessionID(c.Param("id")))
		if err != nil {
			unauthorized(c, err.Error())
			return
		}

		c.Set("session_id", claims.SessionID)
		c.Set("user_id", claims.UserID)
		c.Next()
	}
}

// OptionalSessionTokenMiddleware lets requests without a token through but
// rejects a token that does not belong to the session.
func OptionalSessionTokenMiddleware(authService services.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c)
		if !ok {
			c.Next()
			return
		}

		claims, err := authService.Authorize(token, domain.SessionID(c.Param("id")))
		if err != nil {
			unauthorized(c, err.Error())
			return
		}

		c.Set("session_id", claims.SessionID)
		c.Set("user_id", claims.UserID)
		c.Next()
	}
}
