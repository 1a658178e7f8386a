package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/craniometry-server/internal/domain"
)

// principalKey is the gin context key the Principal middleware stores
// the caller identity under.
const principalKey = "principal"

// Principal extracts the caller identity from the trusted headers the
// auth gateway injects. Requests without a user ID are rejected; this
// service never sees unauthenticated traffic in a correct deployment.
func Principal(cfg domain.AuthConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetHeader(cfg.UserIDHeader)
		if userID == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":          "missing caller identity",
				"correlation_id": c.GetString("correlation_id"),
			})
			return
		}

		c.Set(principalKey, domain.Principal{
			UserID:  userID,
			IsAdmin: c.GetHeader(cfg.RoleHeader) == cfg.AdminRole,
		})
		c.Next()
	}
}

// PrincipalFrom returns the Principal stored by the Principal middleware.
// The zero value is returned if the middleware did not run.
func PrincipalFrom(c *gin.Context) domain.Principal {
	if v, ok := c.Get(principalKey); ok {
		if p, ok := v.(domain.Principal); ok {
			return p
		}
	}
	return domain.Principal{}
}
