package mw

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"downtime-backend/internal/tenant"
)

// Tenant reads the tenant scope from header and stores it on the request
// context. Requests without a tenant are rejected; the wildcard is
// only accepted when allowWildcard is set.
func Tenant(header string, allowWildcard bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		scope, err := tenant.Parse(strings.TrimSpace(c.GetHeader(header)))
		if err != nil {
			abortTenant(c, http.StatusBadRequest, header+" header is required")
			return
		}
		if scope.All && !allowWildcard {
			abortTenant(c, http.StatusForbidden, "tenant wildcard is not allowed")
			return
		}

		c.Request = c.Request.WithContext(tenant.WithScope(c.Request.Context(), scope))
		c.Next()
	}
}

// Scope returns the scope stored by Tenant. It is the empty, invalid scope
// when the middleware did not run.
func Scope(c *gin.Context) tenant.Scope {
	s, err := tenant.FromContext(c.Request.Context())
	if err != nil {
		return tenant.Scope{}
	}
	return s
}

func abortTenant(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, gin.H{"error": gin.H{
		"code":    "VALIDATION",
		"message": message,
	}})
}

// scopeLabel names the scope of the request for cache keys and logs.
func scopeLabel(c *gin.Context) string {
	s := Scope(c)
	if s.All {
		return tenant.Wildcard
	}
	return s.TenantID
}
