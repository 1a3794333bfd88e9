package actorctx

import (
	"context"
	"testing"

	"github.com/geocoder89/holocron/internal/auth"
	"github.com/geocoder89/holocron/internal/domain/user"
)

func TestIdentityRoundTrip(t *testing.T) {
	ctx := WithIdentity(context.Background(), auth.Identity{UserID: "u-1", Email: "a@b.co", Role: user.RoleAdmin})

	id, ok := IdentityFrom(ctx)
	if !ok || id.UserID != "u-1" || id.Role != user.RoleAdmin {
		t.Fatalf("got %+v ok=%v", id, ok)
	}

	if _, ok := IdentityFrom(context.Background()); ok {
		t.Fatal("empty context must not yield a user id")
	}
}
