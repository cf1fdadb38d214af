package http

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	ownerKey     = "owner"
	requestIDKey = "request_id"
)

// authMiddleware resolves the bearer token to an owner identity
func authMiddleware(accounts AccountService) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		scheme, token, ok := strings.Cut(header, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, Response{Error: "missing bearer token"})
			return
		}

		owner, err := accounts.Authenticate(strings.TrimSpace(token))
		if err != nil || owner == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, Response{Error: "invalid or expired token"})
			return
		}

		c.Set(ownerKey, owner)
		c.Next()
	}
}

// mustOwner returns the authenticated owner; the auth middleware guarantees it
// on every protected route.
func mustOwner(c *gin.Context) (string, bool) {
	owner := c.GetString(ownerKey)
	if owner == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, Response{Error: "not authenticated"})
		return "", false
	}
	return owner, true
}
