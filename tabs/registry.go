package tabs

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/google/uuid"
	apperrors "github.com/jrsteele09/fb-page-poster/internal/errors"
	"github.com/jrsteele09/fb-page-poster/storage"
	"github.com/rs/zerolog/log"
)

// Registry persists the tab list and the active tab id of every workspace.
//
// The store is the canonical copy; every call reads it, mutates and writes it back.
// Registry does not lock: callers serialise mutations of one workspace.
type Registry struct {
	repo  storage.Repo
	newID func() string
}

type RegistryOption func(*Registry)

// WithIDFunc replaces the id generator (uuid by default).
func WithIDFunc(newID func() string) RegistryOption {
	return func(r *Registry) {
		r.newID = newID
	}
}

func NewRegistry(repo storage.Repo, options ...RegistryOption) *Registry {
	r := &Registry{
		repo:  repo,
		newID: func() string { return uuid.New().String() },
	}
	for _, opt := range options {
		opt(r)
	}
	return r
}

// Load hydrates the workspace on page load. A persisted list is restored; when there is
// none, or it is malformed, a single default session is created and persisted.
func (r *Registry) Load(ctx context.Context, workspaceID string) ([]Tab, error) {
	list, ok, err := r.read(ctx, workspaceID)
	if err != nil {
		return nil, err
	}
	if ok {
		return list, nil
	}

	tab := Tab{ID: r.newID(), Name: NextLabel(nil), Active: true}
	if err := r.write(ctx, workspaceID, []Tab{tab}, tab.ID); err != nil {
		return nil, err
	}
	return []Tab{tab}, nil
}

// List returns the tabs in creation order without creating a default one.
func (r *Registry) List(ctx context.Context, workspaceID string) ([]Tab, error) {
	list, _, err := r.read(ctx, workspaceID)
	return list, err
}

func (r *Registry) Get(ctx context.Context, workspaceID, id string) (Tab, error) {
	list, _, err := r.read(ctx, workspaceID)
	if err != nil {
		return Tab{}, err
	}
	i := indexOf(list, id)
	if i < 0 {
		return Tab{}, apperrors.ErrSessionNotFound
	}
	return list[i], nil
}

// ActiveID returns the active session id, or ErrNoActiveSession while the workspace has
// not been hydrated yet or holds no sessions.
func (r *Registry) ActiveID(ctx context.Context, workspaceID string) (string, error) {
	list, ok, err := r.read(ctx, workspaceID)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", apperrors.ErrNoActiveSession
	}
	for _, t := range list {
		if t.Active {
			return t.ID, nil
		}
	}
	return "", apperrors.ErrNoActiveSession
}

// Create appends a new empty session, makes it active and deactivates the rest.
// An empty label is replaced by the next free "Session n".
func (r *Registry) Create(ctx context.Context, workspaceID, label string) (Tab, error) {
	list, _, err := r.read(ctx, workspaceID)
	if err != nil {
		return Tab{}, err
	}

	label = strings.TrimSpace(label)
	if label == "" {
		label = NextLabel(list)
	}
	tab := Tab{ID: r.newID(), Name: label, Active: true}
	list = append(list, tab)
	markActive(list, tab.ID)

	if err := r.write(ctx, workspaceID, list, tab.ID); err != nil {
		return Tab{}, err
	}
	return tab, nil
}

// Remove deletes a session and every namespaced key it owns. When it was active the
// session before it becomes active, else the first remaining one, else none.
// The returned id is the active session after removal ("" when none).
func (r *Registry) Remove(ctx context.Context, workspaceID, id string) (string, error) {
	list, _, err := r.read(ctx, workspaceID)
	if err != nil {
		return "", err
	}
	i := indexOf(list, id)
	if i < 0 {
		return "", apperrors.ErrSessionNotFound
	}

	wasActive := list[i].Active
	activeID := ""
	for _, t := range list {
		if t.Active {
			activeID = t.ID
		}
	}
	list = append(list[:i:i], list[i+1:]...)

	if wasActive {
		activeID = ""
		switch {
		case i > 0:
			activeID = list[i-1].ID
		case len(list) > 0:
			activeID = list[0].ID
		}
	}
	markActive(list, activeID)

	if err := r.repo.Delete(ctx, workspaceID, storage.SessionKeys(id)...); err != nil {
		return "", apperrors.Wrapf(err, "purge session %s", id)
	}
	if err := r.write(ctx, workspaceID, list, activeID); err != nil {
		return "", err
	}
	return activeID, nil
}

// SetActive selects a session. Credentials and data are untouched.
func (r *Registry) SetActive(ctx context.Context, workspaceID, id string) (Tab, error) {
	list, _, err := r.read(ctx, workspaceID)
	if err != nil {
		return Tab{}, err
	}
	i := indexOf(list, id)
	if i < 0 {
		return Tab{}, apperrors.ErrSessionNotFound
	}
	markActive(list, id)
	if err := r.write(ctx, workspaceID, list, id); err != nil {
		return Tab{}, err
	}
	return list[i], nil
}

// read returns the persisted list and whether one was found. A malformed list is
// reported as absent so the registry recovers with a default session.
func (r *Registry) read(ctx context.Context, workspaceID string) ([]Tab, bool, error) {
	raw, err := r.repo.Get(ctx, workspaceID, storage.KeySessionsList)
	if apperrors.Is(err, apperrors.ErrNotFound) {
		return []Tab{}, false, nil
	}
	if err != nil {
		return nil, false, apperrors.Wrapf(err, "read sessions list")
	}

	var list []Tab
	if err := json.Unmarshal([]byte(raw), &list); err != nil {
		log.Warn().Err(err).Str("workspace", workspaceID).Msg("discarding malformed sessions list")
		return []Tab{}, false, nil
	}
	list = sanitize(list)

	activeID, err := r.repo.Get(ctx, workspaceID, storage.KeyActiveSessionID)
	if err != nil && !apperrors.Is(err, apperrors.ErrNotFound) {
		return nil, false, apperrors.Wrapf(err, "read active session")
	}
	if indexOf(list, activeID) < 0 {
		activeID = ""
		for _, t := range list {
			if t.Active {
				activeID = t.ID
				break
			}
		}
		if activeID == "" && len(list) > 0 {
			activeID = list[0].ID
		}
	}
	markActive(list, activeID)
	return list, true, nil
}

// write persists the list and active id. An empty list clears both keys so the next
// Load starts over with a default session.
func (r *Registry) write(ctx context.Context, workspaceID string, list []Tab, activeID string) error {
	if len(list) == 0 {
		return apperrors.Wrapf(
			r.repo.Delete(ctx, workspaceID, storage.KeySessionsList, storage.KeyActiveSessionID),
			"clear sessions list")
	}
	raw, err := json.Marshal(list)
	if err != nil {
		return apperrors.Wrapf(err, "encode sessions list")
	}
	if err := r.repo.Set(ctx, workspaceID, storage.KeySessionsList, string(raw)); err != nil {
		return apperrors.Wrapf(err, "write sessions list")
	}
	if err := r.repo.Set(ctx, workspaceID, storage.KeyActiveSessionID, activeID); err != nil {
		return apperrors.Wrapf(err, "write active session")
	}
	return nil
}

// sanitize drops entries without an id and duplicates of an earlier id.
func sanitize(list []Tab) []Tab {
	seen := make(map[string]struct{}, len(list))
	out := make([]Tab, 0, len(list))
	for _, t := range list {
		if t.ID == "" {
			continue
		}
		if _, dup := seen[t.ID]; dup {
			continue
		}
		seen[t.ID] = struct{}{}
		out = append(out, t)
	}
	return out
}
