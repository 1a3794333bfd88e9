package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/geocoder89/holocron/internal/domain/user"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const uniqueViolation = "23505"

// Observer wraps a store operation for metrics; see observability.Prom.ObserveDB.
type Observer interface {
	ObserveDB(op string, fn func() error) error
}

type passthrough struct{}

func (passthrough) ObserveDB(_ string, fn func() error) error { return fn() }

type UsersRepo struct {
	pool *pgxpool.Pool
	obs  Observer
}

func NewUsersRepo(pool *pgxpool.Pool, obs Observer) *UsersRepo {
	if obs == nil {
		obs = passthrough{}
	}
	return &UsersRepo{pool: pool, obs: obs}
}

const userColumns = `id::text, email, password_hash, role, refresh_token_hash, created_at, updated_at`

func (r *UsersRepo) Create(ctx context.Context, email, passwordHash string, role user.Role) (user.User, error) {
	now := time.Now().UTC()

	u := user.User{
		ID:           uuid.NewString(),
		Email:        user.NormalizeEmail(email),
		PasswordHash: passwordHash,
		Role:         role,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	err := r.obs.ObserveDB("users.create", func() error {
		_, err := r.pool.Exec(ctx,
			`INSERT INTO users (id, email, password_hash, role, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			u.ID, u.Email, u.PasswordHash, string(u.Role), u.CreatedAt, u.UpdatedAt,
		)
		return err
	})

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return user.User{}, user.ErrEmailTaken
		}
		return user.User{}, err
	}

	return u, nil
}

func (r *UsersRepo) GetByEmail(ctx context.Context, email string) (user.User, error) {
	var u user.User

	err := r.obs.ObserveDB("users.get_by_email", func() error {
		return scanUser(r.pool.QueryRow(ctx,
			`SELECT `+userColumns+` FROM users WHERE email = $1`,
			user.NormalizeEmail(email),
		), &u)
	})

	return u, notFound(err)
}

func (r *UsersRepo) GetByID(ctx context.Context, id string) (user.User, error) {
	if _, err := uuid.Parse(id); err != nil {
		return user.User{}, user.ErrNotFound
	}

	var u user.User

	err := r.obs.ObserveDB("users.get_by_id", func() error {
		return scanUser(r.pool.QueryRow(ctx,
			`SELECT `+userColumns+` FROM users WHERE id = $1`,
			id,
		), &u)
	})

	return u, notFound(err)
}

func (r *UsersRepo) SetRefreshTokenHash(ctx context.Context, id, hash string) error {
	return r.updateByID(ctx, "users.set_refresh_hash", id,
		`UPDATE users SET refresh_token_hash = $2, updated_at = NOW() WHERE id = $1`,
		hash,
	)
}

// SwapRefreshTokenHash is a single conditional UPDATE, so two concurrent
// refreshes holding the same token cannot both win.
func (r *UsersRepo) SwapRefreshTokenHash(ctx context.Context, id, oldHash, newHash string) (bool, error) {
	if _, err := uuid.Parse(id); err != nil {
		return false, user.ErrNotFound
	}

	var tag pgconn.CommandTag

	err := r.obs.ObserveDB("users.swap_refresh_hash", func() error {
		var err error
		tag, err = r.pool.Exec(ctx,
			`UPDATE users
			SET refresh_token_hash = $3, updated_at = NOW()
			WHERE id = $1 AND refresh_token_hash = $2`,
			id, oldHash, newHash,
		)
		return err
	})

	if err != nil {
		return false, err
	}

	return tag.RowsAffected() == 1, nil
}

func (r *UsersRepo) ClearRefreshTokenHash(ctx context.Context, id string) error {
	return r.updateByID(ctx, "users.clear_refresh_hash", id,
		`UPDATE users SET refresh_token_hash = NULL, updated_at = NOW() WHERE id = $1`,
	)
}

func (r *UsersRepo) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// updateByID runs an UPDATE whose first parameter is the user id and maps
// "no row touched" to user.ErrNotFound.
func (r *UsersRepo) updateByID(ctx context.Context, op, id, sql string, args ...any) error {
	if _, err := uuid.Parse(id); err != nil {
		return user.ErrNotFound
	}

	var tag pgconn.CommandTag

	err := r.obs.ObserveDB(op, func() error {
		var err error
		tag, err = r.pool.Exec(ctx, sql, append([]any{id}, args...)...)
		return err
	})

	if err != nil {
		return err
	}

	if tag.RowsAffected() == 0 {
		return user.ErrNotFound
	}

	return nil
}

func scanUser(row pgx.Row, u *user.User) error {
	var role string

	err := row.Scan(
		&u.ID,
		&u.Email,
		&u.PasswordHash,
		&role,
		&u.RefreshTokenHash,
		&u.CreatedAt,
		&u.UpdatedAt,
	)

	u.Role = user.Role(role)

	return err
}

func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return user.ErrNotFound
	}
	return err
}
