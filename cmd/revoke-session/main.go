// Command revoke-session force-logs-out a user by clearing their stored
// refresh token hash. Access tokens already issued stay valid until expiry.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/geocoder89/holocron/internal/config"
	"github.com/geocoder89/holocron/internal/domain/user"
	"github.com/geocoder89/holocron/internal/observability"
	"github.com/geocoder89/holocron/internal/repo"
)

func main() {
	email := flag.String("email", "", "email of the user whose session is revoked")
	flag.Parse()

	cfg := config.Load()
	log := observability.NewLogger(cfg.Env)

	if *email == "" {
		fmt.Fprintln(os.Stderr, "usage: revoke-session -email user@example.com")
		os.Exit(2)
	}

	if cfg.StoreDriver == "memory" {
		log.Error("revoke-session needs a persistent store", "driver", cfg.StoreDriver)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ctx, cancel := config.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	store, closeStore, err := repo.Open(ctx, cfg, nil, log)
	if err != nil {
		log.Error("credential store unavailable", "err", err)
		os.Exit(1)
	}
	defer closeStore()

	u, err := store.GetByEmail(ctx, user.NormalizeEmail(*email))
	if errors.Is(err, user.ErrNotFound) {
		log.Error("no such user", "email", *email)
		os.Exit(1)
	}
	if err != nil {
		log.Error("lookup failed", "err", err)
		os.Exit(1)
	}

	if !u.HasSession() {
		log.Info("user has no active session", "user_id", u.ID)
		return
	}

	if err := store.ClearRefreshTokenHash(ctx, u.ID); err != nil {
		log.Error("revoke failed", "user_id", u.ID, "err", err)
		os.Exit(1)
	}

	log.Info("session revoked", "user_id", u.ID, "email", u.Email)
}
