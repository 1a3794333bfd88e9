package repo

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/geocoder89/holocron/internal/auth"
	"github.com/geocoder89/holocron/internal/config"
	"github.com/geocoder89/holocron/internal/db"
	"github.com/geocoder89/holocron/internal/repo/memory"
	"github.com/geocoder89/holocron/internal/repo/mongodb"
	"github.com/geocoder89/holocron/internal/repo/postgres"
)

// Store is a credential store the API can report readiness for.
type Store interface {
	auth.UserStore
	Ping(ctx context.Context) error
}

// Observer is satisfied by observability.Prom.
type Observer interface {
	ObserveDB(op string, fn func() error) error
}

// Open connects the backend selected by cfg.StoreDriver and prepares its
// schema. The returned close func releases the connection.
func Open(ctx context.Context, cfg config.Config, obs Observer, log *slog.Logger) (Store, func(), error) {
	switch cfg.StoreDriver {
	case "postgres":
		pool, err := db.NewPool(ctx, cfg.DBURL, int32(cfg.DBMaxConns))
		if err != nil {
			return nil, nil, fmt.Errorf("postgres connect: %w", err)
		}

		if err := db.EnsureSchema(ctx, pool); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("postgres schema: %w", err)
		}

		log.Info("credential store ready", "driver", "postgres")
		return postgres.NewUsersRepo(pool, obs), pool.Close, nil

	case "mongo":
		client, err := mongodb.Connect(ctx, cfg.MongoURI)
		if err != nil {
			return nil, nil, fmt.Errorf("mongo connect: %w", err)
		}

		closeFn := func() { _ = client.Disconnect(context.Background()) }

		store := mongodb.NewUsersRepo(client, cfg.MongoDB, obs)
		if err := store.EnsureIndexes(ctx); err != nil {
			closeFn()
			return nil, nil, fmt.Errorf("mongo indexes: %w", err)
		}

		log.Info("credential store ready", "driver", "mongo", "database", cfg.MongoDB)
		return store, closeFn, nil

	case "memory":
		log.Warn("using in-memory credential store; data is lost on restart")
		return memory.NewUsersRepo(), func() {}, nil

	default:
		return nil, nil, fmt.Errorf("unknown STORE_DRIVER %q", cfg.StoreDriver)
	}
}
