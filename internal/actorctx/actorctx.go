package actorctx

import (
	"context"

	"github.com/geocoder89/holocron/internal/auth"
)

type ctxKey struct{}

// WithIdentity makes the authenticated caller visible to code that only
// receives a context.Context (services, stores, loggers).
func WithIdentity(ctx context.Context, id auth.Identity) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

func IdentityFrom(ctx context.Context) (auth.Identity, bool) {
	v, ok := ctx.Value(ctxKey{}).(auth.Identity)

	return v, ok && v.UserID != ""
}
