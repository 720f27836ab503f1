package storage

import (
	"context"
	"fmt"
	"sync"
	"time"

	apperrors "github.com/jrsteele09/fb-page-poster/internal/errors"
)

var _ Repo = (*InMemoryRepo)(nil)

type workspace struct {
	values    map[string]string
	updatedAt time.Time
}

// InMemoryRepo is a thread-safe in-memory implementation of Repo
type InMemoryRepo struct {
	mu         sync.RWMutex
	workspaces map[string]*workspace // workspaceID -> key -> value
	nowFunc    func() time.Time
}

type InMemoryOption func(*InMemoryRepo)

func WithInMemoryNowFunc(now func() time.Time) InMemoryOption {
	return func(r *InMemoryRepo) {
		r.nowFunc = now
	}
}

// NewInMemoryRepo creates a new in-memory workspace store
func NewInMemoryRepo(options ...InMemoryOption) *InMemoryRepo {
	r := &InMemoryRepo{
		workspaces: make(map[string]*workspace),
		nowFunc:    time.Now,
	}
	for _, opt := range options {
		opt(r)
	}
	return r
}

func (r *InMemoryRepo) Get(_ context.Context, workspaceID, key string) (string, error) {
	if workspaceID == "" {
		return "", fmt.Errorf("workspaceID is required")
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	ws, ok := r.workspaces[workspaceID]
	if !ok {
		return "", apperrors.ErrNotFound
	}
	value, ok := ws.values[key]
	if !ok {
		return "", apperrors.ErrNotFound
	}
	return value, nil
}

func (r *InMemoryRepo) Set(_ context.Context, workspaceID, key, value string) error {
	if workspaceID == "" {
		return fmt.Errorf("workspaceID is required")
	}
	if key == "" {
		return fmt.Errorf("key is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	ws, ok := r.workspaces[workspaceID]
	if !ok {
		ws = &workspace{values: make(map[string]string)}
		r.workspaces[workspaceID] = ws
	}
	ws.values[key] = value
	ws.updatedAt = r.nowFunc()
	return nil
}

func (r *InMemoryRepo) Delete(_ context.Context, workspaceID string, keys ...string) error {
	if workspaceID == "" {
		return fmt.Errorf("workspaceID is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	ws, ok := r.workspaces[workspaceID]
	if !ok {
		return nil
	}
	for _, key := range keys {
		delete(ws.values, key)
	}
	ws.updatedAt = r.nowFunc()

	if len(ws.values) == 0 {
		delete(r.workspaces, workspaceID)
	}
	return nil
}

func (r *InMemoryRepo) Touch(_ context.Context, workspaceID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if ws, ok := r.workspaces[workspaceID]; ok {
		ws.updatedAt = r.nowFunc()
	}
	return nil
}

func (r *InMemoryRepo) DeleteIdle(_ context.Context, before time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for id, ws := range r.workspaces {
		if ws.updatedAt.Before(before) {
			delete(r.workspaces, id)
			removed++
		}
	}
	return removed, nil
}

// Keys returns the keys currently held for a workspace. Used by tests and diagnostics.
func (r *InMemoryRepo) Keys(workspaceID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ws, ok := r.workspaces[workspaceID]
	if !ok {
		return nil
	}
	keys := make([]string, 0, len(ws.values))
	for k := range ws.values {
		keys = append(keys, k)
	}
	return keys
}
