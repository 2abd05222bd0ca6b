// Package middleware provides gin middleware for request authentication.
package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/wenjiaqi8255/context-me/internal/auth"
	"github.com/wenjiaqi8255/context-me/internal/observability"
)

// userIDKey is the gin context key holding the authenticated user id
const userIDKey = "auth_user_id"

// AuthMiddleware validates extension bearer tokens and attaches the
// authenticated user to the request context
type AuthMiddleware struct {
	validator *auth.Validator
	enabled   bool
	logger    observability.Logger
}

// NewAuthMiddleware creates an auth middleware. When disabled it is a
// pass-through, for local development against the unauthenticated
// extension build.
func NewAuthMiddleware(validator *auth.Validator, enabled bool, logger observability.Logger) *AuthMiddleware {
	return &AuthMiddleware{
		validator: validator,
		enabled:   enabled,
		logger:    logger.WithPrefix("auth"),
	}
}

// RequireUser enforces a valid bearer token and stores its user id on the
// gin context. Handlers must use that id over anything in the body so a
// token for one user cannot spend another user's quota.
func (m *AuthMiddleware) RequireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !m.enabled {
			c.Next()
			return
		}

		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.JSON(http.StatusUnauthorized, gin.H{
				"success": false,
				"error":   "unauthorized",
				"message": "missing authorization header",
			})
			c.Abort()
			return
		}

		claims, err := m.validator.Validate(authHeader)
		if err != nil {
			m.logger.Warn("Rejected bearer token", map[string]interface{}{
				"error": err.Error(),
			})
			c.JSON(http.StatusUnauthorized, gin.H{
				"success": false,
				"error":   "unauthorized",
				"message": "invalid bearer token",
			})
			c.Abort()
			return
		}

		c.Set(userIDKey, claims.UserID)
		c.Next()
	}
}

// AuthenticatedUser returns the user id set by RequireUser, or "" when the
// request was not authenticated
func AuthenticatedUser(c *gin.Context) string {
	if v, ok := c.Get(userIDKey); ok {
		if id, ok := v.(string); ok {
			return id
		}
	}
	return ""
}
