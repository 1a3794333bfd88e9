package memory

import (
	"context"
	"sync"
	"time"

	"github.com/geocoder89/holocron/internal/domain/user"
	"github.com/google/uuid"
)

// UsersRepo is an in-process credential store used by tests and by
// STORE_DRIVER=memory. Every method copies records in and out so callers
// never share the stored pointer.
type UsersRepo struct {
	mu      sync.RWMutex
	byID    map[string]user.User
	byEmail map[string]string
}

func NewUsersRepo() *UsersRepo {
	return &UsersRepo{
		byID:    make(map[string]user.User),
		byEmail: make(map[string]string),
	}
}

func (r *UsersRepo) Create(ctx context.Context, email, passwordHash string, role user.Role) (user.User, error) {
	email = user.NormalizeEmail(email)
	now := time.Now().UTC()

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byEmail[email]; ok {
		return user.User{}, user.ErrEmailTaken
	}

	u := user.User{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: passwordHash,
		Role:         role,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	r.byID[u.ID] = u
	r.byEmail[email] = u.ID

	return u, nil
}

func (r *UsersRepo) GetByEmail(ctx context.Context, email string) (user.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byEmail[user.NormalizeEmail(email)]
	if !ok {
		return user.User{}, user.ErrNotFound
	}

	return clone(r.byID[id]), nil
}

func (r *UsersRepo) GetByID(ctx context.Context, id string) (user.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.byID[id]
	if !ok {
		return user.User{}, user.ErrNotFound
	}

	return clone(u), nil
}

func (r *UsersRepo) SetRefreshTokenHash(ctx context.Context, id, hash string) error {
	return r.update(id, func(u *user.User) {
		u.RefreshTokenHash = &hash
	})
}

func (r *UsersRepo) SwapRefreshTokenHash(ctx context.Context, id, oldHash, newHash string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.byID[id]
	if !ok {
		return false, user.ErrNotFound
	}

	if u.RefreshTokenHash == nil || *u.RefreshTokenHash != oldHash {
		return false, nil
	}

	u.RefreshTokenHash = &newHash
	u.UpdatedAt = time.Now().UTC()
	r.byID[id] = u

	return true, nil
}

func (r *UsersRepo) ClearRefreshTokenHash(ctx context.Context, id string) error {
	return r.update(id, func(u *user.User) {
		u.RefreshTokenHash = nil
	})
}

// Delete removes a user; sessions of deleted users fail authentication.
func (r *UsersRepo) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.byID[id]
	if !ok {
		return user.ErrNotFound
	}

	delete(r.byEmail, u.Email)
	delete(r.byID, id)

	return nil
}

func (r *UsersRepo) Ping(ctx context.Context) error {
	return nil
}

func (r *UsersRepo) update(id string, fn func(u *user.User)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.byID[id]
	if !ok {
		return user.ErrNotFound
	}

	fn(&u)
	u.UpdatedAt = time.Now().UTC()
	r.byID[id] = u

	return nil
}

func clone(u user.User) user.User {
	if u.RefreshTokenHash != nil {
		h := *u.RefreshTokenHash
		u.RefreshTokenHash = &h
	}
	return u
}
