package pagedata

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/jrsteele09/fb-page-poster/credentials"
	"github.com/jrsteele09/fb-page-poster/facebook"
	apperrors "github.com/jrsteele09/fb-page-poster/internal/errors"
	"github.com/jrsteele09/fb-page-poster/internal/metrics"
	"github.com/jrsteele09/fb-page-poster/storage"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
	"golang.org/x/sync/errgroup"
)

const (
	resourceProfile = "profile"
	resourcePages   = "pages"
)

// Fetcher reads session data from the broker.
type Fetcher interface {
	Profile(ctx context.Context, accessToken string) (facebook.Profile, error)
	Pages(ctx context.Context, accessToken string) ([]facebook.Page, error)
}

// Credentials is what the cache needs from the credential lifecycle.
type Credentials interface {
	Token(ctx context.Context, workspaceID, sessionID string) (*oauth2.Token, error)
	Refresh(ctx context.Context, workspaceID, sessionID, trigger string) error
	Logout(ctx context.Context, workspaceID, sessionID, notice string) error
}

// Data is the cached view of one session.
type Data struct {
	Profile Resource[facebook.Profile] `json:"profile"`
	Pages   Resource[[]facebook.Page]  `json:"pages"`
}

// entry tracks fetches in flight. generation changes whenever the session's data is
// invalidated so that late results of an older fetch are dropped.
type entry struct {
	generation uint64
	profile    Resource[facebook.Profile]
	pages      Resource[[]facebook.Page]
}

type Cache struct {
	repo    storage.Repo
	fetcher Fetcher
	creds   Credentials
	locks   *storage.WorkspaceLocks
	metrics *metrics.Metrics

	mu      sync.Mutex
	nextGen uint64
	entries map[string]map[string]*entry // workspaceID -> sessionID
}

type CacheOption func(*Cache)

func WithLocks(locks *storage.WorkspaceLocks) CacheOption {
	return func(c *Cache) {
		c.locks = locks
	}
}

func WithMetrics(m *metrics.Metrics) CacheOption {
	return func(c *Cache) {
		c.metrics = m
	}
}

func NewCache(repo storage.Repo, fetcher Fetcher, creds Credentials, options ...CacheOption) *Cache {
	c := &Cache{
		repo:    repo,
		fetcher: fetcher,
		creds:   creds,
		entries: make(map[string]map[string]*entry),
	}
	for _, opt := range options {
		opt(c)
	}
	if c.locks == nil {
		c.locks = storage.NewWorkspaceLocks()
	}
	return c
}

// LoadProfileAndPages fetches profile and pages concurrently with the session's token.
// Each resource is written as soon as its own fetch completes. A 401 on the profile
// triggers one refresh and retry; if that does not help the session is logged out.
func (c *Cache) LoadProfileAndPages(ctx context.Context, workspaceID, sessionID string) (Data, error) {
	tok, err := c.creds.Token(ctx, workspaceID, sessionID)
	if err != nil {
		return Data{}, err
	}
	gen := c.begin(workspaceID, sessionID)

	var profileErr, pagesErr error
	var g errgroup.Group
	g.Go(func() error {
		profileErr = c.fetchProfile(ctx, workspaceID, sessionID, gen, tok.AccessToken, true)
		return nil
	})
	g.Go(func() error {
		pagesErr = c.fetchPages(ctx, workspaceID, sessionID, gen, tok.AccessToken)
		return nil
	})
	_ = g.Wait()

	if apperrors.Is(profileErr, apperrors.ErrUnauthorized) {
		if err := c.recoverUnauthorized(ctx, workspaceID, sessionID, gen, pagesErr); err != nil {
			return Data{}, err
		}
	}
	return c.Snapshot(ctx, workspaceID, sessionID)
}

func (c *Cache) recoverUnauthorized(ctx context.Context, workspaceID, sessionID string, gen uint64, pagesErr error) error {
	logger := log.With().Str("workspace", workspaceID).Str("session", sessionID).Logger()

	err := c.creds.Refresh(ctx, workspaceID, sessionID, credentials.TriggerUnauthorized)
	if apperrors.Is(err, apperrors.ErrRefreshInProgress) {
		c.storeProfile(ctx, workspaceID, sessionID, gen, failed[facebook.Profile](apperrors.ErrUnauthorized.Error()))
		return nil
	}
	if err == nil {
		tok, tokErr := c.creds.Token(ctx, workspaceID, sessionID)
		if tokErr != nil {
			return tokErr
		}
		err = c.fetchProfile(ctx, workspaceID, sessionID, gen, tok.AccessToken, false)
		if apperrors.Is(pagesErr, apperrors.ErrUnauthorized) {
			_ = c.fetchPages(ctx, workspaceID, sessionID, gen, tok.AccessToken)
		}
		if !apperrors.Is(err, apperrors.ErrUnauthorized) {
			return nil
		}
	}

	logger.Warn().Err(err).Msg("profile still unauthorized, logging session out")
	if err := c.creds.Logout(ctx, workspaceID, sessionID, credentials.ExpiredNotice); err != nil {
		return err
	}
	return apperrors.ErrUnauthorized
}

// fetchProfile records the outcome. With deferUnauthorized a 401 is returned without being
// recorded so the caller can retry first.
func (c *Cache) fetchProfile(ctx context.Context, workspaceID, sessionID string, gen uint64, accessToken string, deferUnauthorized bool) error {
	profile, err := c.fetcher.Profile(ctx, accessToken)
	c.observe(resourceProfile, err)
	switch {
	case err == nil:
		c.storeProfile(ctx, workspaceID, sessionID, gen, loaded(profile))
	case deferUnauthorized && apperrors.Is(err, apperrors.ErrUnauthorized):
	default:
		log.Warn().Err(err).Str("session", sessionID).Msg("profile fetch failed")
		c.storeProfile(ctx, workspaceID, sessionID, gen, failed[facebook.Profile](err.Error()))
	}
	return err
}

func (c *Cache) fetchPages(ctx context.Context, workspaceID, sessionID string, gen uint64, accessToken string) error {
	pages, err := c.fetcher.Pages(ctx, accessToken)
	c.observe(resourcePages, err)
	if err != nil {
		log.Warn().Err(err).Str("session", sessionID).Msg("pages fetch failed")
		c.storePages(ctx, workspaceID, sessionID, gen, failed[[]facebook.Page](err.Error()))
		return err
	}
	c.storePages(ctx, workspaceID, sessionID, gen, loaded(pages))
	return nil
}

func (c *Cache) observe(resource string, err error) {
	if c.metrics != nil {
		c.metrics.Fetches.WithLabelValues(resource, metrics.Outcome(err)).Inc()
	}
}

// EnsureLoaded fetches when a session has a token but its profile or pages are missing and
// nothing is in flight. It reports whether a fetch ran.
func (c *Cache) EnsureLoaded(ctx context.Context, workspaceID, sessionID string) (bool, error) {
	if _, err := c.creds.Token(ctx, workspaceID, sessionID); err != nil {
		if apperrors.Is(err, apperrors.ErrMissingToken) {
			return false, nil
		}
		return false, err
	}
	data, err := c.Snapshot(ctx, workspaceID, sessionID)
	if err != nil {
		return false, err
	}
	if data.Profile.Status == Loading || data.Pages.Status == Loading {
		return false, nil
	}
	if data.Profile.Status == Loaded && data.Pages.Status == Loaded {
		return false, nil
	}
	_, err = c.LoadProfileAndPages(ctx, workspaceID, sessionID)
	return true, err
}

// Snapshot returns the session's data. Anything not in flight or failed is read from the store.
func (c *Cache) Snapshot(ctx context.Context, workspaceID, sessionID string) (Data, error) {
	data := Data{Profile: idle[facebook.Profile](), Pages: idle[[]facebook.Page]()}

	c.mu.Lock()
	if e := c.lookup(workspaceID, sessionID); e != nil {
		data.Profile = e.profile
		data.Pages = e.pages
	}
	c.mu.Unlock()

	if data.Profile.Status != Loading && data.Profile.Status != Failed {
		profile, err := readJSON[facebook.Profile](ctx, c.repo, workspaceID, storage.ProfileKey(sessionID))
		if err != nil {
			return data, err
		}
		data.Profile = loadedOrIdle(profile)
	}
	if data.Pages.Status != Loading && data.Pages.Status != Failed {
		pages, err := readJSON[[]facebook.Page](ctx, c.repo, workspaceID, storage.PagesKey(sessionID))
		if err != nil {
			return data, err
		}
		data.Pages = loadedOrIdle(pages)
	}
	return data, nil
}

// Invalidate clears the session's cached data and drops results of fetches in flight.
func (c *Cache) Invalidate(ctx context.Context, workspaceID, sessionID string) error {
	unlock := c.locks.Lock(workspaceID)
	defer unlock()
	return c.InvalidateLocked(ctx, workspaceID, sessionID)
}

// InvalidateLocked is Invalidate for callers already holding the workspace lock.
func (c *Cache) InvalidateLocked(ctx context.Context, workspaceID, sessionID string) error {
	c.mu.Lock()
	if sessions, ok := c.entries[workspaceID]; ok {
		delete(sessions, sessionID)
		if len(sessions) == 0 {
			delete(c.entries, workspaceID)
		}
	}
	c.mu.Unlock()
	return c.repo.Delete(ctx, workspaceID, storage.DataKeys(sessionID)...)
}

// Forget drops in-memory state of a purged workspace.
func (c *Cache) Forget(workspaceID string) {
	c.mu.Lock()
	delete(c.entries, workspaceID)
	c.mu.Unlock()
}

// begin marks both resources loading and returns the generation results must match.
func (c *Cache) begin(workspaceID, sessionID string) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	e := c.lookup(workspaceID, sessionID)
	if e == nil {
		c.nextGen++
		e = &entry{generation: c.nextGen}
		if c.entries[workspaceID] == nil {
			c.entries[workspaceID] = make(map[string]*entry)
		}
		c.entries[workspaceID][sessionID] = e
	}
	e.profile = loading[facebook.Profile]()
	e.pages = loading[[]facebook.Page]()
	return e.generation
}

func (c *Cache) lookup(workspaceID, sessionID string) *entry {
	return c.entries[workspaceID][sessionID]
}

// current reports whether results of generation gen may still be written. Must hold c.mu.
func (c *Cache) current(workspaceID, sessionID string, gen uint64) (*entry, bool) {
	e := c.lookup(workspaceID, sessionID)
	return e, e != nil && e.generation == gen
}

func (c *Cache) storeProfile(ctx context.Context, workspaceID, sessionID string, gen uint64, res Resource[facebook.Profile]) {
	var value any
	if res.Data != nil {
		value = *res.Data
	}
	c.store(ctx, workspaceID, sessionID, gen, storage.ProfileKey(sessionID), value, func(e *entry) {
		e.profile = res
	})
}

func (c *Cache) storePages(ctx context.Context, workspaceID, sessionID string, gen uint64, res Resource[[]facebook.Page]) {
	var value any
	if res.Data != nil {
		value = *res.Data
	}
	c.store(ctx, workspaceID, sessionID, gen, storage.PagesKey(sessionID), value, func(e *entry) {
		e.pages = res
	})
}

// store persists value (unless nil) and applies the in-memory update, unless the session
// was invalidated after the fetch started. Generations only change under the workspace lock.
func (c *Cache) store(ctx context.Context, workspaceID, sessionID string, gen uint64, key string, value any, apply func(*entry)) {
	unlock := c.locks.Lock(workspaceID)
	defer unlock()

	c.mu.Lock()
	_, ok := c.current(workspaceID, sessionID, gen)
	c.mu.Unlock()
	if !ok {
		log.Debug().Str("workspace", workspaceID).Str("session", sessionID).Str("key", key).Msg("dropping stale fetch result")
		return
	}

	if value != nil {
		raw, err := json.Marshal(value)
		if err == nil {
			err = c.repo.Set(ctx, workspaceID, key, string(raw))
		}
		if err != nil {
			log.Error().Err(err).Str("workspace", workspaceID).Str("key", key).Msg("persisting session data")
		}
	}

	c.mu.Lock()
	if e, ok := c.current(workspaceID, sessionID, gen); ok {
		apply(e)
	}
	c.mu.Unlock()
}

func readJSON[T any](ctx context.Context, repo storage.Repo, workspaceID, key string) (*T, error) {
	raw, err := repo.Get(ctx, workspaceID, key)
	if apperrors.Is(err, apperrors.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var v T
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		log.Warn().Err(err).Str("workspace", workspaceID).Str("key", key).Msg("ignoring malformed session data")
		return nil, nil
	}
	return &v, nil
}

func loadedOrIdle[T any](v *T) Resource[T] {
	if v == nil {
		return idle[T]()
	}
	return loaded(*v)
}
