package db

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

const usersSchema = `
CREATE TABLE IF NOT EXISTS users (
	id                 UUID PRIMARY KEY,
	email              TEXT NOT NULL UNIQUE,
	password_hash      TEXT NOT NULL,
	role               TEXT NOT NULL DEFAULT 'user' CHECK (role IN ('user', 'admin')),
	refresh_token_hash TEXT NULL,
	created_at         TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at         TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`

// EnsureSchema creates the users table when it does not exist yet.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, usersSchema)
	return err
}
