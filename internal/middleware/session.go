// Package middleware holds gin middleware for the orai HTTP surface.
package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Hexploration-Inc/orai/internal/session"
	"github.com/Hexploration-Inc/orai/internal/types"
)

const scopeContextKey = "requestScope"

// ScopeFromContext returns the scope RequireSession attached.
func ScopeFromContext(c *gin.Context) (types.RequestScope, bool) {
	v, ok := c.Get(scopeContextKey)
	if !ok {
		return types.RequestScope{}, false
	}
	scope, ok := v.(types.RequestScope)
	return scope, ok && scope.OwnerID != ""
}

// RequireSession resolves the session cookie into a request scope. Requests
// without a live session stop here with 401.
func RequireSession(binder *session.Binder) gin.HandlerFunc {
	return func(c *gin.Context) {
		value, err := c.Cookie(session.CookieName)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}
		scope, err := binder.Resolve(value)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}
		c.Set(scopeContextKey, scope)
		c.Next()
	}
}
