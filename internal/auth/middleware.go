package auth

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"gympro/internal/api"
)

// bearerToken extracts the token from an "Authorization: Bearer <token>"
// header. Returns "" when the header is absent or malformed.
func bearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || strings.TrimSpace(parts[0]) != "Bearer" {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func abortUnauthorized(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, api.ErrorResponse{Error: msg})
}

// AuthMiddleware validates the bearer token and stores the caller's
// identity (user_id, user_email, user_role) on the request context.
func AuthMiddleware(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c)
		if token == "" {
			abortUnauthorized(c, "bearer token required")
			return
		}

		claims, err := ValidateToken(token, secret)
		if err != nil {
			if errors.Is(err, ErrTokenExpired) {
				abortUnauthorized(c, "token expired")
			} else {
				abortUnauthorized(c, "invalid token")
			}
			return
		}

		if claims.TokenType != "access" {
			abortUnauthorized(c, "access token required")
			return
		}

		c.Set("user_id", claims.UserID)
		c.Set("user_email", claims.Email)
		c.Set("user_role", claims.Role)

		c.Next()
	}
}

// RequireRole rejects requests whose token does not carry the given role.
// Must run after AuthMiddleware.
func RequireRole(role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		got, ok := c.Get("user_role")
		if !ok {
			abortUnauthorized(c, "role not found")
			return
		}

		roleStr, ok := got.(string)
		if !ok {
			abortUnauthorized(c, "role not found")
			return
		}

		if roleStr != role {
			c.AbortWithStatusJSON(http.StatusForbidden, api.ErrorResponse{Error: "insufficient permissions"})
			return
		}

		c.Next()
	}
}

// GetUserID reads the authenticated user's id set by AuthMiddleware.
func GetUserID(c *gin.Context) (int, bool) {
	v, ok := c.Get("user_id")
	if !ok {
		return 0, false
	}
	id, ok := v.(int)
	if !ok {
		return 0, false
	}
	return id, true
}
