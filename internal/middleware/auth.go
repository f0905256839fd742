package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"rapidride/internal/domain"
	"rapidride/internal/identity"
)

const (
	accountKey = "account"
	claimsKey  = "claims"
)

// Authenticator resolves a bearer token to an account.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*identity.Claims, *domain.Account, error)
}

// Auth requires a valid bearer token that maps to an existing account.
func Auth(auth Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := BearerToken(c.GetHeader("Authorization"))
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "No token provided"})
			return
		}

		claims, account, err := auth.Authenticate(c.Request.Context(), token)
		switch {
		case errors.Is(err, identity.ErrNoAccount):
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "User not found. Please sign in again."})
			return
		case err != nil:
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired token"})
			return
		}

		c.Set(claimsKey, claims)
		c.Set(accountKey, account)
		annotateTransaction(c, account)
		c.Next()
	}
}

// RequireAdmin rejects callers without the admin role. It must follow Auth.
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		account := CurrentAccount(c)
		if account == nil || account.Role != domain.RoleAdmin {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Access denied. Admin only."})
			return
		}
		c.Next()
	}
}

// CurrentAccount returns the account set by Auth, or nil.
func CurrentAccount(c *gin.Context) *domain.Account {
	v, ok := c.Get(accountKey)
	if !ok {
		return nil
	}
	account, _ := v.(*domain.Account)
	return account
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) string {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
