package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/lalith-99/parley/internal/auth"
	"github.com/lalith-99/parley/internal/models"
)

// Context keys for values stored in gin.Context. Constants instead of
// inline strings so a typo fails to compile rather than silently
// returning nil.
const (
	ContextKeyIdentity = "identity"
	ContextKeyEmail    = "email"
)

// AuthMiddleware returns a Gin middleware that validates JWT tokens.
//
// It runs before the actual handlers: an invalid token aborts the chain
// with a 401, a valid one stores the caller's identity in the request
// context for handlers to pick up via GetIdentity.
//
// The secret comes in as a parameter so the middleware never imports
// the config package, and tests can pass any secret they like.
func AuthMiddleware(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "missing authorization header",
			})
			return
		}

		// Expected format: "Bearer <token>"
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "invalid authorization format, expected: Bearer <token>",
			})
			return
		}

		claims, err := auth.ParseToken(parts[1], secret)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "invalid or expired token",
			})
			return
		}

		c.Set(ContextKeyIdentity, claims.Identity())
		c.Set(ContextKeyEmail, claims.Email)

		c.Next()
	}
}

// GetIdentity extracts the authenticated participant identity from the
// request context. A zero Identity means the middleware never ran or
// the value was clobbered; callers treat that as unauthenticated.
func GetIdentity(c *gin.Context) models.Identity {
	val, exists := c.Get(ContextKeyIdentity)
	if !exists {
		return models.Identity{}
	}
	identity, ok := val.(models.Identity)
	if !ok {
		return models.Identity{}
	}
	return identity
}

func GetEmail(c *gin.Context) string {
	val, exists := c.Get(ContextKeyEmail)
	if !exists {
		return ""
	}
	email, ok := val.(string)
	if !ok {
		return ""
	}
	return email
}
