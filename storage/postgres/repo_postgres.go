// Package postgres stores workspaces in PostgreSQL so several service instances can share them.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	apperrors "github.com/jrsteele09/fb-page-poster/internal/errors"
	"github.com/jrsteele09/fb-page-poster/storage"
	pkgerrors "github.com/pkg/errors"
)

var _ storage.Repo = (*Repo)(nil)

var identPattern = regexp.MustCompile(`^[a-z_][a-z0-9_]{0,62}$`)

// Repo is a storage.Repo backed by a single key/value table.
//
// Repo does NOT own the pgx pool. The caller must close it.
type Repo struct {
	pool  *pgxpool.Pool
	table string
}

type Option func(*Repo) error

// WithTable overrides the table name (default: "workspace_kv").
func WithTable(table string) Option {
	return func(r *Repo) error {
		table = strings.TrimSpace(table)
		if !identPattern.MatchString(table) {
			return fmt.Errorf("postgres: invalid table identifier %q", table)
		}
		r.table = table
		return nil
	}
}

func New(pool *pgxpool.Pool, opts ...Option) (*Repo, error) {
	r := &Repo{pool: pool, table: "workspace_kv"}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(r); err != nil {
			return nil, err
		}
	}
	if r.pool == nil {
		return nil, errors.New("postgres: nil pool")
	}
	return r, nil
}

// NewPool builds a pgx pool and checks connectivity.
func NewPool(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "postgres.NewPool ParseConfig")
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "postgres.NewPool NewWithConfig")
	}

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, pkgerrors.Wrap(err, "postgres.NewPool Ping")
	}
	return pool, nil
}

// EnsureSchema creates the table when it does not exist.
func (r *Repo) EnsureSchema(ctx context.Context) error {
	_, err := r.pool.Exec(ctx, fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %[1]s (
	workspace_id TEXT NOT NULL,
	key          TEXT NOT NULL,
	value        TEXT NOT NULL,
	updated_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (workspace_id, key)
);
CREATE INDEX IF NOT EXISTS %[1]s_updated_at_idx ON %[1]s (workspace_id, updated_at);`, r.table))
	return pkgerrors.Wrap(err, "postgres.EnsureSchema")
}

func (r *Repo) Get(ctx context.Context, workspaceID, key string) (string, error) {
	var value string
	err := r.pool.QueryRow(ctx,
		fmt.Sprintf(`SELECT value FROM %s WHERE workspace_id = $1 AND key = $2`, r.table),
		workspaceID, key,
	).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", apperrors.ErrNotFound
	}
	if err != nil {
		return "", pkgerrors.Wrap(err, "postgres.Get")
	}
	return value, nil
}

func (r *Repo) Set(ctx context.Context, workspaceID, key, value string) error {
	if workspaceID == "" || key == "" {
		return errors.New("postgres: workspaceID and key are required")
	}
	_, err := r.pool.Exec(ctx, fmt.Sprintf(`
INSERT INTO %s (workspace_id, key, value, updated_at) VALUES ($1, $2, $3, now())
ON CONFLICT (workspace_id, key) DO UPDATE SET value = EXCLUDED.value, updated_at = now()`, r.table),
		workspaceID, key, value,
	)
	return pkgerrors.Wrap(err, "postgres.Set")
}

func (r *Repo) Delete(ctx context.Context, workspaceID string, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	_, err := r.pool.Exec(ctx,
		fmt.Sprintf(`DELETE FROM %s WHERE workspace_id = $1 AND key = ANY($2)`, r.table),
		workspaceID, keys,
	)
	return pkgerrors.Wrap(err, "postgres.Delete")
}

func (r *Repo) Touch(ctx context.Context, workspaceID string) error {
	_, err := r.pool.Exec(ctx,
		fmt.Sprintf(`UPDATE %s SET updated_at = now() WHERE workspace_id = $1`, r.table),
		workspaceID,
	)
	return pkgerrors.Wrap(err, "postgres.Touch")
}

// DeleteIdle removes whole workspaces whose newest row is older than before.
func (r *Repo) DeleteIdle(ctx context.Context, before time.Time) (int, error) {
	var removed int64
	err := r.pool.QueryRow(ctx, fmt.Sprintf(`
WITH idle AS (
	SELECT workspace_id FROM %[1]s GROUP BY workspace_id HAVING max(updated_at) < $1
), gone AS (
	DELETE FROM %[1]s WHERE workspace_id IN (SELECT workspace_id FROM idle) RETURNING workspace_id
)
SELECT count(DISTINCT workspace_id) FROM gone`, r.table), before).Scan(&removed)
	if err != nil {
		return 0, pkgerrors.Wrap(err, "postgres.DeleteIdle")
	}
	return int(removed), nil
}
