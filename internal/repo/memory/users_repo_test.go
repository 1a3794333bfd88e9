package memory

import (
	"context"
	"sync"
	"testing"

	"github.com/geocoder89/holocron/internal/domain/user"
	"github.com/stretchr/testify/require"
)

func TestUsersRepo_CreateRejectsDuplicateEmail(t *testing.T) {
	ctx := context.Background()
	r := NewUsersRepo()

	_, err := r.Create(ctx, "a@b.com", "hash", user.RoleUser)
	require.NoError(t, err)

	_, err = r.Create(ctx, "A@B.com ", "hash", user.RoleUser)
	require.ErrorIs(t, err, user.ErrEmailTaken)
}

func TestUsersRepo_SwapIsCompareAndSwap(t *testing.T) {
	ctx := context.Background()
	r := NewUsersRepo()

	u, err := r.Create(ctx, "a@b.com", "hash", user.RoleUser)
	require.NoError(t, err)

	ok, err := r.SwapRefreshTokenHash(ctx, u.ID, "h1", "h2")
	require.NoError(t, err)
	require.False(t, ok, "no stored hash yet")

	require.NoError(t, r.SetRefreshTokenHash(ctx, u.ID, "h1"))

	ok, err = r.SwapRefreshTokenHash(ctx, u.ID, "h1", "h2")
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = r.SwapRefreshTokenHash(ctx, u.ID, "h1", "h3")
	require.NoError(t, err)
	require.False(t, ok, "stale hash must not swap")

	got, err := r.GetByID(ctx, u.ID)
	require.NoError(t, err)
	require.Equal(t, "h2", *got.RefreshTokenHash)
}

func TestUsersRepo_ConcurrentSwapHasSingleWinner(t *testing.T) {
	ctx := context.Background()
	r := NewUsersRepo()

	u, err := r.Create(ctx, "a@b.com", "hash", user.RoleUser)
	require.NoError(t, err)
	require.NoError(t, r.SetRefreshTokenHash(ctx, u.ID, "h0"))

	const n = 32
	var wg sync.WaitGroup
	results := make(chan bool, n)

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ok, err := r.SwapRefreshTokenHash(ctx, u.ID, "h0", "next")
			if err == nil {
				results <- ok
			}
		}(i)
	}
	wg.Wait()
	close(results)

	winners := 0
	for ok := range results {
		if ok {
			winners++
		}
	}
	require.Equal(t, 1, winners)
}

func TestUsersRepo_ClearAndMissingUser(t *testing.T) {
	ctx := context.Background()
	r := NewUsersRepo()

	u, err := r.Create(ctx, "a@b.com", "hash", user.RoleAdmin)
	require.NoError(t, err)
	require.NoError(t, r.SetRefreshTokenHash(ctx, u.ID, "h1"))
	require.NoError(t, r.ClearRefreshTokenHash(ctx, u.ID))

	got, err := r.GetByEmail(ctx, "a@b.com")
	require.NoError(t, err)
	require.Nil(t, got.RefreshTokenHash)
	require.False(t, got.HasSession())

	require.ErrorIs(t, r.ClearRefreshTokenHash(ctx, "missing"), user.ErrNotFound)
	_, err = r.GetByID(ctx, "missing")
	require.ErrorIs(t, err, user.ErrNotFound)
}
