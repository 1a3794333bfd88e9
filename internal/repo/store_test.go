package repo

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/geocoder89/holocron/internal/config"
	"github.com/geocoder89/holocron/internal/repo/memory"
	"github.com/stretchr/testify/require"
)

func TestOpen_Memory(t *testing.T) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	store, closeFn, err := Open(context.Background(), config.Config{StoreDriver: "memory"}, nil, log)
	require.NoError(t, err)
	defer closeFn()

	require.IsType(t, &memory.UsersRepo{}, store)
	require.NoError(t, store.Ping(context.Background()))
}

func TestOpen_UnknownDriver(t *testing.T) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	_, _, err := Open(context.Background(), config.Config{StoreDriver: "sqlite"}, nil, log)
	require.Error(t, err)
}
