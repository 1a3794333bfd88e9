package middlewares

import (
	"github.com/geocoder89/holocron/internal/auth"
	"github.com/geocoder89/holocron/internal/domain/user"
	"github.com/gin-gonic/gin"
)

// RequireRole must run after RequireAuth.
func (m *AuthMiddleware) RequireRole(required user.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		role, ok := RoleFromContext(c)

		if !ok || role == "" {
			abortWithAuthError(c, auth.ErrNoToken)
			return
		}
		if role != required {
			abortWithAuthError(c, auth.ErrForbidden)
			return
		}
		c.Next()
	}
}
