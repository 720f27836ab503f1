package postgres_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	apperrors "github.com/jrsteele09/fb-page-poster/internal/errors"
	"github.com/jrsteele09/fb-page-poster/storage"
	"github.com/jrsteele09/fb-page-poster/storage/postgres"
	"github.com/stretchr/testify/require"
)

// Integration tests run only when POSTER_DATABASE_URL is set so "go test ./..." stays hermetic.

func newTestRepo(t *testing.T) *postgres.Repo {
	t.Helper()

	dsn := os.Getenv("POSTER_DATABASE_URL")
	if dsn == "" {
		t.Skip("POSTER_DATABASE_URL not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := postgres.NewPool(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	table := "workspace_kv_it_" + uuid.New().String()[:8]
	repo, err := postgres.New(pool, postgres.WithTable(table))
	require.NoError(t, err)
	require.NoError(t, repo.EnsureSchema(ctx))
	t.Cleanup(func() {
		_, _ = pool.Exec(context.Background(), "DROP TABLE IF EXISTS "+table)
	})
	return repo
}

func TestRepo_RoundTrip(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	ws := uuid.New().String()

	_, err := repo.Get(ctx, ws, storage.TokenKey("s1"))
	require.ErrorIs(t, err, apperrors.ErrNotFound)

	require.NoError(t, repo.Set(ctx, ws, storage.TokenKey("s1"), "a"))
	require.NoError(t, repo.Set(ctx, ws, storage.TokenKey("s1"), "b"))
	v, err := repo.Get(ctx, ws, storage.TokenKey("s1"))
	require.NoError(t, err)
	require.Equal(t, "b", v)

	require.NoError(t, repo.Delete(ctx, ws, storage.SessionKeys("s1")...))
	_, err = repo.Get(ctx, ws, storage.TokenKey("s1"))
	require.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestRepo_DeleteIdle(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.Set(ctx, "ws-old", storage.KeySessionsList, "[]"))
	require.NoError(t, repo.Set(ctx, "ws-old", storage.KeyActiveSessionID, ""))

	removed, err := repo.DeleteIdle(ctx, time.Now().Add(time.Minute))
	require.NoError(t, err)
	require.Equal(t, 1, removed)
}

func TestRepo_Touch(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.Set(ctx, "ws-touched", storage.KeySessionsList, "[]"))
	require.NoError(t, repo.Touch(ctx, "ws-touched"))
	require.NoError(t, repo.Touch(ctx, "ws-missing"))

	removed, err := repo.DeleteIdle(ctx, time.Now().Add(-time.Minute))
	require.NoError(t, err)
	require.Zero(t, removed)
}

func TestNew_Validation(t *testing.T) {
	_, err := postgres.New(nil)
	require.Error(t, err)

	_, err = postgres.New(nil, postgres.WithTable("Robert'); DROP"))
	require.Error(t, err)
}
