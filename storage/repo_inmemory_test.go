package storage_test

import (
	"context"
	"testing"
	"time"

	apperrors "github.com/jrsteele09/fb-page-poster/internal/errors"
	"github.com/jrsteele09/fb-page-poster/storage"
	"github.com/stretchr/testify/require"
)

func TestInMemoryRepo(t *testing.T) {
	ctx := context.Background()

	t.Run("get missing", func(t *testing.T) {
		r := storage.NewInMemoryRepo()
		_, err := r.Get(ctx, "ws", "k")
		require.ErrorIs(t, err, apperrors.ErrNotFound)
	})

	t.Run("workspaces are isolated", func(t *testing.T) {
		r := storage.NewInMemoryRepo()
		require.NoError(t, r.Set(ctx, "ws-a", storage.TokenKey("s1"), "a"))
		require.NoError(t, r.Set(ctx, "ws-b", storage.TokenKey("s1"), "b"))

		v, err := r.Get(ctx, "ws-a", storage.TokenKey("s1"))
		require.NoError(t, err)
		require.Equal(t, "a", v)
	})

	t.Run("delete keys", func(t *testing.T) {
		r := storage.NewInMemoryRepo()
		require.NoError(t, r.Set(ctx, "ws", storage.TokenKey("s1"), "a"))
		require.NoError(t, r.Set(ctx, "ws", storage.TokenKey("s2"), "b"))
		require.NoError(t, r.Delete(ctx, "ws", storage.SessionKeys("s1")...))

		require.ElementsMatch(t, []string{storage.TokenKey("s2")}, r.Keys("ws"))
		require.NoError(t, r.Delete(ctx, "unknown", "k"))
	})

	t.Run("requires workspace", func(t *testing.T) {
		r := storage.NewInMemoryRepo()
		require.Error(t, r.Set(ctx, "", "k", "v"))
		_, err := r.Get(ctx, "", "k")
		require.Error(t, err)
	})

	t.Run("delete idle", func(t *testing.T) {
		now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
		r := storage.NewInMemoryRepo(storage.WithInMemoryNowFunc(func() time.Time { return now }))
		require.NoError(t, r.Set(ctx, "old", "k", "v"))
		now = now.Add(2 * time.Hour)
		require.NoError(t, r.Set(ctx, "fresh", "k", "v"))

		removed, err := r.DeleteIdle(ctx, now.Add(-time.Hour))
		require.NoError(t, err)
		require.Equal(t, 1, removed)
		require.Empty(t, r.Keys("old"))
		require.NotEmpty(t, r.Keys("fresh"))
	})

	t.Run("touch keeps a workspace alive", func(t *testing.T) {
		now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
		r := storage.NewInMemoryRepo(storage.WithInMemoryNowFunc(func() time.Time { return now }))
		require.NoError(t, r.Set(ctx, "read-only", "k", "v"))
		now = now.Add(2 * time.Hour)
		require.NoError(t, r.Touch(ctx, "read-only"))
		require.NoError(t, r.Touch(ctx, "unknown"))

		removed, err := r.DeleteIdle(ctx, now.Add(-time.Hour))
		require.NoError(t, err)
		require.Zero(t, removed)
		require.NotEmpty(t, r.Keys("read-only"))
		require.Empty(t, r.Keys("unknown"))
	})
}

func TestKeys(t *testing.T) {
	require.Equal(t, "token_abc", storage.TokenKey("abc"))
	require.Equal(t, "token_expiration_abc", storage.ExpirationKey("abc"))
	require.True(t, storage.IsSecretKey(storage.TokenKey("abc")))
	require.True(t, storage.IsSecretKey(storage.RefreshTokenKey("abc")))
	require.False(t, storage.IsSecretKey(storage.ExpirationKey("abc")))
	require.True(t, storage.IsSecretKey(storage.PagesKey("abc")))
	require.False(t, storage.IsSecretKey(storage.ProfileKey("abc")))

	keys := storage.SessionKeys("abc")
	for _, k := range []string{"token_abc", "refresh_token_abc", "token_expiration_abc", "profile_abc", "pages_abc", "profile_image_abc"} {
		require.Contains(t, keys, k)
	}
}
