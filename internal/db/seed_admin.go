package db

import (
	"context"
	"errors"

	"github.com/geocoder89/holocron/internal/domain/user"
)

type AdminStore interface {
	GetByEmail(ctx context.Context, email string) (user.User, error)
	Create(ctx context.Context, email, passwordHash string, role user.Role) (user.User, error)
}

type PasswordHasher interface {
	Hash(plain string) (string, error)
}

// EnsureAdminUser creates the configured admin account on first start. It is a
// no-op when no credentials are configured or the email already exists.
func EnsureAdminUser(ctx context.Context, store AdminStore, hasher PasswordHasher, email, password string) (created bool, err error) {
	if email == "" || password == "" {
		return false, nil
	}

	// check if the user exists
	_, err = store.GetByEmail(ctx, email)

	if err == nil {
		return false, nil
	}

	if !errors.Is(err, user.ErrNotFound) {
		return false, err
	}

	hash, err := hasher.Hash(password)

	if err != nil {
		return false, err
	}

	_, err = store.Create(ctx, email, hash, user.RoleAdmin)

	if errors.Is(err, user.ErrEmailTaken) {
		// another instance seeded it first
		return false, nil
	}

	return err == nil, err
}
