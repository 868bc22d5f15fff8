package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/dranie18/propertypro/internal/models"
	"github.com/dranie18/propertypro/internal/services"
)

const (
	// ContextKeyUser holds the key for the authenticated user in Gin context.
	ContextKeyUser = "authUser"
	// ContextKeyToken holds the key for the bearer token in Gin context.
	ContextKeyToken = "authToken"
)

// AuthMiddleware creates a Gin middleware that resolves the bearer token to a
// user via the auth service, which also rejects revoked tokens.
func AuthMiddleware(authService services.IAuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authorization header required"})
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authorization header format must be Bearer {token}"})
			return
		}

		tokenString := parts[1]
		user, err := authService.Authenticate(c.Request.Context(), tokenString)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired token"})
			return
		}

		c.Set(ContextKeyUser, *user)
		c.Set(ContextKeyToken, tokenString)

		c.Next()
	}
}

// CurrentUser fetches the authenticated user set by AuthMiddleware.
func CurrentUser(c *gin.Context) (models.AuthUser, bool) {
	value, exists := c.Get(ContextKeyUser)
	if !exists {
		return models.AuthUser{}, false
	}
	user, ok := value.(models.AuthUser)
	return user, ok
}
