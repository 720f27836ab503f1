// Package dashboard composes the session registry, the credential lifecycle, the data cache
// and post submission into the operations the HTTP layer exposes per workspace.
package dashboard

import (
	"context"
	"net/url"
	"sync"
	"time"

	"github.com/jrsteele09/fb-page-poster/credentials"
	apperrors "github.com/jrsteele09/fb-page-poster/internal/errors"
	"github.com/jrsteele09/fb-page-poster/internal/metrics"
	"github.com/jrsteele09/fb-page-poster/pagedata"
	"github.com/jrsteele09/fb-page-poster/posts"
	"github.com/jrsteele09/fb-page-poster/storage"
	"github.com/jrsteele09/fb-page-poster/tabs"
	"github.com/rs/zerolog/log"
)

const (
	defaultLoadTimeout = 2 * time.Minute
	touchInterval      = time.Minute
)

// SessionView is everything the UI renders for one session.
type SessionView struct {
	tabs.Tab
	Credential credentials.Status `json:"credential"`
	Data       pagedata.Data      `json:"data"`
}

// Workspace is the hydrated state of one browser session.
type Workspace struct {
	Sessions []tabs.Tab   `json:"sessions"`
	Active   *SessionView `json:"active,omitempty"`
}

type Service struct {
	repo     storage.Repo
	registry *tabs.Registry
	creds    *credentials.Manager
	cache    *pagedata.Cache
	posts    *posts.Service
	locks    *storage.WorkspaceLocks
	metrics  *metrics.Metrics

	loadTimeout time.Duration
	nowFunc     func() time.Time

	background sync.WaitGroup
	mu         sync.Mutex
	lastSeen   map[string]time.Time
	lastStored map[string]time.Time
}

type ServiceOption func(*Service)

func WithMetrics(m *metrics.Metrics) ServiceOption {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithLoadTimeout(d time.Duration) ServiceOption {
	return func(s *Service) {
		s.loadTimeout = d
	}
}

func WithNowFunc(nowFunc func() time.Time) ServiceOption {
	return func(s *Service) {
		s.nowFunc = nowFunc
	}
}

// NewService wires the parts together. locks must be the instance shared with creds and cache.
func NewService(repo storage.Repo, registry *tabs.Registry, creds *credentials.Manager, cache *pagedata.Cache, postService *posts.Service, locks *storage.WorkspaceLocks, options ...ServiceOption) *Service {
	s := &Service{
		repo:        repo,
		registry:    registry,
		creds:       creds,
		cache:       cache,
		posts:       postService,
		locks:       locks,
		loadTimeout: defaultLoadTimeout,
		nowFunc:     time.Now,
		lastSeen:    make(map[string]time.Time),
		lastStored:  make(map[string]time.Time),
	}
	for _, opt := range options {
		opt(s)
	}
	creds.OnLogout(func(ctx context.Context, workspaceID, sessionID string) {
		if err := cache.Invalidate(ctx, workspaceID, sessionID); err != nil {
			log.Error().Err(err).Str("workspace", workspaceID).Str("session", sessionID).Msg("invalidating session data")
		}
	})
	return s
}

// Bootstrap hydrates the workspace: restores or creates its sessions and returns the active
// session's view. Missing data of the active session is fetched in the background.
func (s *Service) Bootstrap(ctx context.Context, workspaceID string) (Workspace, error) {
	s.touch(ctx, workspaceID)

	unlock := s.locks.Lock(workspaceID)
	list, err := s.registry.Load(ctx, workspaceID)
	unlock()
	if err != nil {
		return Workspace{}, err
	}

	ws := Workspace{Sessions: list}
	for _, t := range list {
		if t.Active {
			view, err := s.view(ctx, workspaceID, t)
			if err != nil {
				return Workspace{}, err
			}
			ws.Active = &view
			s.ensureLoaded(ctx, workspaceID, t.ID)
		}
	}
	return ws, nil
}

func (s *Service) ListSessions(ctx context.Context, workspaceID string) ([]tabs.Tab, error) {
	s.touch(ctx, workspaceID)
	return s.registry.List(ctx, workspaceID)
}

func (s *Service) CreateSession(ctx context.Context, workspaceID, label string) (tabs.Tab, error) {
	s.touch(ctx, workspaceID)

	unlock := s.locks.Lock(workspaceID)
	defer unlock()
	tab, err := s.registry.Create(ctx, workspaceID, label)
	if err != nil {
		return tabs.Tab{}, err
	}
	if s.metrics != nil {
		s.metrics.SessionsCreated.Inc()
	}
	log.Info().Str("workspace", workspaceID).Str("session", tab.ID).Str("name", tab.Name).Msg("session created")
	return tab, nil
}

// RemoveSession deletes the session with all of its state and returns the id of the session
// that is active afterwards ("" when none remain).
func (s *Service) RemoveSession(ctx context.Context, workspaceID, sessionID string) (string, error) {
	s.touch(ctx, workspaceID)

	unlock := s.locks.Lock(workspaceID)
	defer unlock()
	activeID, err := s.registry.Remove(ctx, workspaceID, sessionID)
	if err != nil {
		return "", err
	}
	if err := s.cache.InvalidateLocked(ctx, workspaceID, sessionID); err != nil {
		return "", err
	}
	if s.metrics != nil {
		s.metrics.SessionsRemoved.Inc()
	}
	log.Info().Str("workspace", workspaceID).Str("session", sessionID).Str("active", activeID).Msg("session removed")
	return activeID, nil
}

// Activate selects a session and fetches its data in the background when it has a token
// but no data yet.
func (s *Service) Activate(ctx context.Context, workspaceID, sessionID string) (SessionView, error) {
	s.touch(ctx, workspaceID)

	unlock := s.locks.Lock(workspaceID)
	tab, err := s.registry.SetActive(ctx, workspaceID, sessionID)
	unlock()
	if err != nil {
		return SessionView{}, err
	}
	s.ensureLoaded(ctx, workspaceID, sessionID)
	return s.view(ctx, workspaceID, tab)
}

func (s *Service) Session(ctx context.Context, workspaceID, sessionID string) (SessionView, error) {
	s.touch(ctx, workspaceID)

	tab, err := s.registry.Get(ctx, workspaceID, sessionID)
	if err != nil {
		return SessionView{}, err
	}
	return s.view(ctx, workspaceID, tab)
}

// Login starts the OAuth flow for a session and returns the URL to send the browser to.
// The session becomes active so the redirect lands on it.
func (s *Service) Login(ctx context.Context, workspaceID, sessionID string) (string, error) {
	s.touch(ctx, workspaceID)

	unlock := s.locks.Lock(workspaceID)
	_, err := s.registry.SetActive(ctx, workspaceID, sessionID)
	unlock()
	if err != nil {
		return "", err
	}
	return s.creds.Login(ctx, workspaceID, sessionID)
}

// CompleteLogin handles the broker's redirect back. The token lands on whichever session is
// active at that moment; its data is then fetched in the background.
func (s *Service) CompleteLogin(ctx context.Context, workspaceID string, query url.Values) (credentials.Redirect, string, error) {
	s.touch(ctx, workspaceID)

	redirect := credentials.ParseRedirect(query)
	sessionID, err := s.creds.CompleteRedirect(ctx, workspaceID, redirect)
	if err != nil {
		return redirect, "", err
	}
	s.load(ctx, workspaceID, sessionID)
	return redirect, sessionID, nil
}

func (s *Service) Logout(ctx context.Context, workspaceID, sessionID string) (SessionView, error) {
	s.touch(ctx, workspaceID)

	tab, err := s.registry.Get(ctx, workspaceID, sessionID)
	if err != nil {
		return SessionView{}, err
	}
	if err := s.creds.Logout(ctx, workspaceID, sessionID, ""); err != nil {
		return SessionView{}, err
	}
	log.Info().Str("workspace", workspaceID).Str("session", sessionID).Msg("session logged out")
	return s.view(ctx, workspaceID, tab)
}

// Refresh renews the session's token on demand. When the broker refuses, the session is
// logged out with the expiry notice.
func (s *Service) Refresh(ctx context.Context, workspaceID, sessionID string) (SessionView, error) {
	s.touch(ctx, workspaceID)

	tab, err := s.registry.Get(ctx, workspaceID, sessionID)
	if err != nil {
		return SessionView{}, err
	}
	err = s.creds.Refresh(ctx, workspaceID, sessionID, credentials.TriggerManual)
	if apperrors.Is(err, apperrors.ErrRefreshFailed) {
		if logoutErr := s.creds.Logout(ctx, workspaceID, sessionID, credentials.ExpiredNotice); logoutErr != nil {
			return SessionView{}, logoutErr
		}
	}
	if err != nil {
		return SessionView{}, err
	}
	return s.view(ctx, workspaceID, tab)
}

// Reload refetches profile and pages and waits for both.
func (s *Service) Reload(ctx context.Context, workspaceID, sessionID string) (SessionView, error) {
	s.touch(ctx, workspaceID)

	tab, err := s.registry.Get(ctx, workspaceID, sessionID)
	if err != nil {
		return SessionView{}, err
	}
	if _, err := s.cache.LoadProfileAndPages(ctx, workspaceID, sessionID); err != nil {
		return SessionView{}, err
	}
	return s.view(ctx, workspaceID, tab)
}

// CreatePost posts to a page with the token of sessionID and nothing else.
func (s *Service) CreatePost(ctx context.Context, workspaceID, sessionID string, sub posts.Submission) (posts.Result, error) {
	s.touch(ctx, workspaceID)

	if _, err := s.registry.Get(ctx, workspaceID, sessionID); err != nil {
		return posts.Result{}, err
	}
	accessToken := ""
	tok, err := s.creds.Token(ctx, workspaceID, sessionID)
	switch {
	case err == nil:
		accessToken = tok.AccessToken
	case !apperrors.Is(err, apperrors.ErrMissingToken):
		return posts.Result{}, err
	}
	return s.posts.CreatePost(ctx, accessToken, sub)
}

// view builds the session view. Data of a session that is no longer logged in is dropped.
func (s *Service) view(ctx context.Context, workspaceID string, tab tabs.Tab) (SessionView, error) {
	status, err := s.creds.Status(ctx, workspaceID, tab.ID)
	if err != nil {
		return SessionView{}, err
	}
	if status.State != credentials.LoggedIn {
		if err := s.cache.Invalidate(ctx, workspaceID, tab.ID); err != nil {
			return SessionView{}, err
		}
	}
	data, err := s.cache.Snapshot(ctx, workspaceID, tab.ID)
	if err != nil {
		return SessionView{}, err
	}
	if p := data.Profile.Data; p != nil && p.PictureURL == "" && status.ProfileImage != "" {
		profile := *p
		profile.PictureURL = status.ProfileImage
		data.Profile.Data = &profile
	}
	return SessionView{Tab: tab, Credential: status, Data: data}, nil
}

func (s *Service) ensureLoaded(ctx context.Context, workspaceID, sessionID string) {
	s.goBackground(ctx, func(ctx context.Context) error {
		_, err := s.cache.EnsureLoaded(ctx, workspaceID, sessionID)
		return err
	})
}

func (s *Service) load(ctx context.Context, workspaceID, sessionID string) {
	s.goBackground(ctx, func(ctx context.Context) error {
		_, err := s.cache.LoadProfileAndPages(ctx, workspaceID, sessionID)
		return err
	})
}

// goBackground runs fn past the end of the request that started it.
func (s *Service) goBackground(ctx context.Context, fn func(ctx context.Context) error) {
	s.background.Add(1)
	go func() {
		defer s.background.Done()
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.loadTimeout)
		defer cancel()
		if err := fn(ctx); err != nil {
			log.Warn().Err(err).Msg("background session data load failed")
		}
	}()
}

// Wait blocks until background loads have finished.
func (s *Service) Wait() {
	s.background.Wait()
}

// touch records activity and refreshes the store's timestamp at most once per touchInterval.
func (s *Service) touch(ctx context.Context, workspaceID string) {
	now := s.nowFunc()
	s.mu.Lock()
	s.lastSeen[workspaceID] = now
	last, ok := s.lastStored[workspaceID]
	stale := !ok || now.Sub(last) >= touchInterval
	if stale {
		s.lastStored[workspaceID] = now
	}
	s.mu.Unlock()
	s.creds.Watch(workspaceID)

	if stale {
		if err := s.repo.Touch(ctx, workspaceID); err != nil {
			log.Warn().Err(err).Str("workspace", workspaceID).Msg("touching workspace")
		}
	}
}

// PurgeIdle deletes workspaces untouched since before and returns how many were removed
// from the store.
func (s *Service) PurgeIdle(ctx context.Context, before time.Time) (int, error) {
	n, err := s.repo.DeleteIdle(ctx, before)
	if err != nil {
		return 0, err
	}

	s.mu.Lock()
	var idle []string
	for ws, seen := range s.lastSeen {
		if seen.Before(before) {
			idle = append(idle, ws)
			delete(s.lastSeen, ws)
			delete(s.lastStored, ws)
		}
	}
	s.mu.Unlock()

	for _, ws := range idle {
		s.cache.Forget(ws)
		s.creds.Forget(ws)
	}
	if n > 0 {
		log.Info().Int("workspaces", n).Time("before", before).Msg("purged idle workspaces")
	}
	return n, nil
}

// RunJanitor purges workspaces idle for longer than ttl every interval until ctx is done.
func (s *Service) RunJanitor(ctx context.Context, interval, ttl time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.PurgeIdle(ctx, s.nowFunc().Add(-ttl)); err != nil {
				log.Error().Err(err).Msg("purging idle workspaces")
			}
		}
	}
}
