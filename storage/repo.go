// Package storage is the per-workspace key/value store that holds the session list and every
// piece of per-session state. One workspace corresponds to one browser session: every tab of
// that browser shares it through the workspace cookie.
package storage

import (
	"context"
	"time"
)

// Repo is the persisted layer. It is the single source of truth; in-memory views are rebuilt from it.
// Get returns errors.ErrNotFound when the key is absent.
type Repo interface {
	Get(ctx context.Context, workspaceID, key string) (string, error)
	Set(ctx context.Context, workspaceID, key, value string) error
	// Delete removes the given keys. Missing keys are not an error.
	Delete(ctx context.Context, workspaceID string, keys ...string) error
	// Touch marks the workspace as in use without changing it. Unknown workspaces are ignored.
	Touch(ctx context.Context, workspaceID string) error
	// DeleteIdle drops every workspace not written since before and reports how many workspaces went.
	DeleteIdle(ctx context.Context, before time.Time) (int, error)
}
