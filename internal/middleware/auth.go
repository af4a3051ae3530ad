package middleware

import (
	"net/http"
	"strings"

	"taskflow/backend/internal/auth"
	"taskflow/backend/internal/models"

	"github.com/gin-gonic/gin"
)

// ContextUserID is the gin context key holding the caller's id as a string.
const ContextUserID = "user_id"

type TokenVerifier interface {
	VerifyAccessToken(token string) (*models.Identity, error)
}

// BearerToken extracts the token from an "Authorization: Bearer ..." header.
func BearerToken(header string) (string, bool) {
	const prefix = "Bearer "
	if len(header) < len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", false
	}
	token := strings.TrimSpace(header[len(prefix):])
	return token, token != ""
}

// AuthMiddleware verifies the access token and stores the identity in the
// request context for the task provider.
func AuthMiddleware(verifier TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "missing_token",
				"message": "Authorization header is required",
			})
			return
		}

		tokenStr, ok := BearerToken(authHeader)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "invalid_token_format",
				"message": "Authorization header must use Bearer token",
			})
			return
		}

		identity, err := verifier.VerifyAccessToken(tokenStr)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "invalid_token",
				"message": "Token validation failed",
			})
			return
		}

		c.Request = c.Request.WithContext(auth.WithUser(c.Request.Context(), *identity))
		c.Set(ContextUserID, identity.ID.String())
		c.Next()
	}
}
