package middlewares

import (
	"context"
	"errors"
	"strings"

	"github.com/geocoder89/holocron/internal/actorctx"
	"github.com/geocoder89/holocron/internal/auth"
	"github.com/geocoder89/holocron/internal/domain/user"
	"github.com/gin-gonic/gin"
)

// Keep this small interface so tests can fake it easily.
type Authenticator interface {
	Authenticate(ctx context.Context, raw string) (auth.Identity, error)
}

type AuthMiddleware struct {
	authn Authenticator
}

func NewAuthMiddleware(authn Authenticator) *AuthMiddleware {
	return &AuthMiddleware{authn: authn}
}

func (m *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok {
			abortWithAuthError(c, auth.ErrNoToken)
			return
		}

		id, err := m.authn.Authenticate(c.Request.Context(), raw)
		if err != nil {
			abortWithAuthError(c, err)
			return
		}

		// Stash identity on both the gin context and the request context
		c.Set(CtxUserID, id.UserID)
		c.Set(CtxRole, id.Role)
		c.Request = c.Request.WithContext(actorctx.WithIdentity(c.Request.Context(), id))

		c.Next()
	}
}

func bearerToken(header string) (string, bool) {
	scheme, raw, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}

	raw = strings.TrimSpace(raw)

	return raw, raw != ""
}

// Optional helpers so handlers don't need to know the magic keys.

func UserIDFromContext(c *gin.Context) (string, bool) {
	id, ok := c.Get(CtxUserID)
	if !ok {
		return "", false
	}
	s, ok := id.(string)
	return s, ok && s != ""
}

func RoleFromContext(c *gin.Context) (user.Role, bool) {
	v, ok := c.Get(CtxRole)
	if !ok {
		return "", false
	}
	role, ok := v.(user.Role)
	return role, ok
}

func IdentityFromContext(c *gin.Context) (auth.Identity, bool) {
	return actorctx.IdentityFrom(c.Request.Context())
}

func abortWithAuthError(c *gin.Context, err error) {
	var ae *auth.Error
	if !errors.As(err, &ae) {
		ae = auth.ErrInternal
	}
	abortWithError(c, ae.Status, ae.Code, ae.Message)
}

func abortWithError(c *gin.Context, status int, code, message string) {
	reqID, _ := c.Get(CtxRequestID)
	s, _ := reqID.(string)

	body := gin.H{
		"code":    code,
		"message": message,
	}
	if s != "" {
		body["requestId"] = s
	}

	c.AbortWithStatusJSON(status, gin.H{"error": body})
}
