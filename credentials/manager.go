package credentials

import (
	"context"
	"strconv"
	"sync"
	"time"

	apperrors "github.com/jrsteele09/fb-page-poster/internal/errors"
	"github.com/jrsteele09/fb-page-poster/internal/metrics"
	"github.com/jrsteele09/fb-page-poster/storage"
	"github.com/jrsteele09/fb-page-poster/token"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
)

const (
	defaultRefreshThreshold = 5 * time.Minute
	defaultPollAttempts     = 20
	defaultPollInterval     = 100 * time.Millisecond
	defaultPendingTTL       = 10 * time.Minute

	// ExpiredNotice is recorded when a session is forced out because its token could not be renewed.
	ExpiredNotice = "Session expired. Please login again to continue"
)

// Broker is the part of the backend the credential lifecycle depends on.
type Broker interface {
	BeginLogin(ctx context.Context, next string) (string, error)
	Refresh(ctx context.Context, refreshToken string) (string, error)
}

// ActiveResolver answers which session of a workspace is active. It returns
// ErrNoActiveSession while the workspace has not been hydrated yet.
type ActiveResolver interface {
	ActiveID(ctx context.Context, workspaceID string) (string, error)
}

// LogoutHook runs after a session's credentials were cleared.
type LogoutHook func(ctx context.Context, workspaceID, sessionID string)

type Manager struct {
	repo        storage.Repo
	broker      Broker
	resolver    ActiveResolver
	locks       *storage.WorkspaceLocks
	callbackURL string

	refreshThreshold time.Duration
	pollAttempts     int
	pollInterval     time.Duration
	pendingTTL       time.Duration

	nowFunc   func() time.Time
	sleepFunc func(ctx context.Context, d time.Duration) error
	metrics   *metrics.Metrics
	onLogout  []LogoutHook

	mu         sync.Mutex
	refreshing map[string]struct{}
	watched    map[string]time.Time
}

type ManagerOption func(*Manager)

func WithNowFunc(nowFunc func() time.Time) ManagerOption {
	return func(m *Manager) {
		m.nowFunc = nowFunc
	}
}

// WithSleepFunc replaces the wait between active-session polls.
func WithSleepFunc(sleepFunc func(ctx context.Context, d time.Duration) error) ManagerOption {
	return func(m *Manager) {
		m.sleepFunc = sleepFunc
	}
}

func WithRefreshThreshold(d time.Duration) ManagerOption {
	return func(m *Manager) {
		m.refreshThreshold = d
	}
}

func WithRedirectPoll(attempts int, interval time.Duration) ManagerOption {
	return func(m *Manager) {
		m.pollAttempts = attempts
		m.pollInterval = interval
	}
}

func WithLocks(locks *storage.WorkspaceLocks) ManagerOption {
	return func(m *Manager) {
		m.locks = locks
	}
}

func WithMetrics(mt *metrics.Metrics) ManagerOption {
	return func(m *Manager) {
		m.metrics = mt
	}
}

func WithLogoutHook(hook LogoutHook) ManagerOption {
	return func(m *Manager) {
		m.onLogout = append(m.onLogout, hook)
	}
}

// OnLogout registers a hook. Call it before the Manager is used.
func (m *Manager) OnLogout(hook LogoutHook) {
	m.onLogout = append(m.onLogout, hook)
}

// NewManager creates a Manager. callbackURL is handed to the broker as the OAuth "next" target.
func NewManager(repo storage.Repo, broker Broker, resolver ActiveResolver, callbackURL string, options ...ManagerOption) *Manager {
	m := &Manager{
		repo:             repo,
		broker:           broker,
		resolver:         resolver,
		callbackURL:      callbackURL,
		refreshThreshold: defaultRefreshThreshold,
		pollAttempts:     defaultPollAttempts,
		pollInterval:     defaultPollInterval,
		pendingTTL:       defaultPendingTTL,
		nowFunc:          time.Now,
		sleepFunc:        sleepContext,
		refreshing:       make(map[string]struct{}),
		watched:          make(map[string]time.Time),
	}
	for _, opt := range options {
		opt(m)
	}
	if m.locks == nil {
		m.locks = storage.NewWorkspaceLocks()
	}
	return m
}

// Login marks the session as authenticating and returns the URL the browser must visit.
// A failed initiation leaves the session logged out.
func (m *Manager) Login(ctx context.Context, workspaceID, sessionID string) (string, error) {
	pendingSince := strconv.FormatInt(m.nowFunc().UnixMilli(), 10)
	if err := m.repo.Set(ctx, workspaceID, storage.AuthPendingKey(sessionID), pendingSince); err != nil {
		return "", err
	}
	m.Watch(workspaceID)

	redirectURL, err := m.broker.BeginLogin(ctx, m.callbackURL)
	if err != nil {
		log.Warn().Err(err).Str("workspace", workspaceID).Str("session", sessionID).Msg("login initiation failed")
		if delErr := m.repo.Delete(ctx, workspaceID, storage.AuthPendingKey(sessionID)); delErr != nil {
			log.Error().Err(delErr).Msg("clearing auth pending marker")
		}
		return "", err
	}
	return redirectURL, nil
}

// CompleteRedirect stores the token the broker handed back on the session that is active
// when the redirect arrives, and returns that session id. A redirect carrying an error
// mutates nothing.
func (m *Manager) CompleteRedirect(ctx context.Context, workspaceID string, redirect Redirect) (sessionID string, err error) {
	defer func() {
		if m.metrics != nil {
			m.metrics.Logins.WithLabelValues(metrics.Outcome(err)).Inc()
		}
	}()

	if redirect.Error != "" {
		return "", apperrors.Wrapf(apperrors.ErrRedirect, "%s", redirect.Error)
	}
	if redirect.AccessToken == "" {
		return "", apperrors.ErrMissingToken
	}
	expiry, err := token.DecodeExpiry(redirect.AccessToken)
	if err != nil {
		return "", err
	}

	sessionID, err = m.awaitActive(ctx, workspaceID)
	if err != nil {
		return "", err
	}

	unlock := m.locks.Lock(workspaceID)
	defer unlock()

	// The session may have been removed or switched while polling.
	if current, err := m.resolver.ActiveID(ctx, workspaceID); err != nil || current != sessionID {
		log.Warn().Str("workspace", workspaceID).Str("session", sessionID).Msg("session changed before the redirect was stored")
		return "", apperrors.Wrapf(apperrors.ErrSessionNotFound, "session %s", sessionID)
	}

	// The token goes last: a session only counts as logged in once everything else is stored.
	type entry struct{ key, value string }
	values := []entry{{storage.ExpirationKey(sessionID), strconv.FormatInt(expiry.UnixMilli(), 10)}}
	stale := []string{storage.AuthPendingKey(sessionID), storage.LastErrorKey(sessionID)}
	if redirect.RefreshToken != "" {
		values = append(values, entry{storage.RefreshTokenKey(sessionID), redirect.RefreshToken})
	} else {
		stale = append(stale, storage.RefreshTokenKey(sessionID))
	}
	if redirect.ProfileImage != "" {
		values = append(values, entry{storage.ProfileImageKey(sessionID), redirect.ProfileImage})
	}
	if redirect.RedirectURL != "" {
		values = append(values, entry{storage.KeyRedirectURL, redirect.RedirectURL})
	}
	values = append(values, entry{storage.TokenKey(sessionID), redirect.AccessToken})

	written := make([]string, 0, len(values))
	for _, v := range values {
		if err := m.repo.Set(ctx, workspaceID, v.key, v.value); err != nil {
			if delErr := m.repo.Delete(ctx, workspaceID, written...); delErr != nil {
				log.Error().Err(delErr).Str("workspace", workspaceID).Msg("rolling back partial redirect")
			}
			return "", err
		}
		written = append(written, v.key)
	}
	if err := m.repo.Delete(ctx, workspaceID, stale...); err != nil {
		return "", err
	}

	m.Watch(workspaceID)
	log.Info().Str("workspace", workspaceID).Str("session", sessionID).Time("expiry", expiry).Msg("token stored")
	return sessionID, nil
}

func (m *Manager) awaitActive(ctx context.Context, workspaceID string) (string, error) {
	for attempt := 0; attempt < m.pollAttempts; attempt++ {
		id, err := m.resolver.ActiveID(ctx, workspaceID)
		if err == nil {
			return id, nil
		}
		if !apperrors.Is(err, apperrors.ErrNoActiveSession) {
			return "", err
		}
		if attempt == m.pollAttempts-1 {
			break
		}
		if err := m.sleepFunc(ctx, m.pollInterval); err != nil {
			return "", err
		}
	}
	log.Error().Str("workspace", workspaceID).Int("attempts", m.pollAttempts).Msg("no active session for incoming token")
	return "", apperrors.ErrActiveSessionTimeout
}

// Logout clears the session's credentials. A non-empty notice is kept for the UI.
func (m *Manager) Logout(ctx context.Context, workspaceID, sessionID, notice string) error {
	unlock := m.locks.Lock(workspaceID)
	err := m.logoutLocked(ctx, workspaceID, sessionID, notice)
	unlock()
	if err != nil {
		return err
	}
	for _, hook := range m.onLogout {
		hook(ctx, workspaceID, sessionID)
	}
	return nil
}

func (m *Manager) logoutLocked(ctx context.Context, workspaceID, sessionID, notice string) error {
	if err := m.repo.Delete(ctx, workspaceID, storage.CredentialKeys(sessionID)...); err != nil {
		return err
	}
	if notice == "" {
		return m.repo.Delete(ctx, workspaceID, storage.LastErrorKey(sessionID))
	}
	return m.repo.Set(ctx, workspaceID, storage.LastErrorKey(sessionID), notice)
}

// Status derives the credential state of a session from the store.
func (m *Manager) Status(ctx context.Context, workspaceID, sessionID string) (Status, error) {
	var status Status

	notice, err := m.optional(ctx, workspaceID, storage.LastErrorKey(sessionID))
	if err != nil {
		return status, err
	}
	status.Notice = notice

	accessToken, err := m.optional(ctx, workspaceID, storage.TokenKey(sessionID))
	if err != nil {
		return status, err
	}
	if accessToken == "" {
		status.State = LoggedOut
		pending, err := m.optional(ctx, workspaceID, storage.AuthPendingKey(sessionID))
		if err != nil {
			return status, err
		}
		if since, ok := parseMillis(pending); ok && m.nowFunc().Sub(since) < m.pendingTTL {
			status.State = Authenticating
		}
		return status, nil
	}

	refreshToken, err := m.optional(ctx, workspaceID, storage.RefreshTokenKey(sessionID))
	if err != nil {
		return status, err
	}
	image, err := m.optional(ctx, workspaceID, storage.ProfileImageKey(sessionID))
	if err != nil {
		return status, err
	}
	status.HasRefreshToken = refreshToken != ""
	status.ProfileImage = image
	status.State = LoggedIn

	expiry, err := m.expiry(ctx, workspaceID, sessionID)
	if err != nil {
		return status, err
	}
	if !expiry.IsZero() {
		status.Expiry = &expiry
		if !m.nowFunc().Before(expiry) {
			status.State = Expired
		}
	}
	return status, nil
}

// Token returns the stored credential of a session, or ErrMissingToken.
func (m *Manager) Token(ctx context.Context, workspaceID, sessionID string) (*oauth2.Token, error) {
	accessToken, err := m.optional(ctx, workspaceID, storage.TokenKey(sessionID))
	if err != nil {
		return nil, err
	}
	if accessToken == "" {
		return nil, apperrors.ErrMissingToken
	}
	refreshToken, err := m.optional(ctx, workspaceID, storage.RefreshTokenKey(sessionID))
	if err != nil {
		return nil, err
	}
	expiry, err := m.expiry(ctx, workspaceID, sessionID)
	if err != nil {
		return nil, err
	}
	return &oauth2.Token{
		AccessToken:  accessToken,
		TokenType:    "Bearer",
		RefreshToken: refreshToken,
		Expiry:       expiry,
	}, nil
}

func (m *Manager) expiry(ctx context.Context, workspaceID, sessionID string) (time.Time, error) {
	raw, err := m.optional(ctx, workspaceID, storage.ExpirationKey(sessionID))
	if err != nil {
		return time.Time{}, err
	}
	expiry, ok := parseMillis(raw)
	if !ok && raw != "" {
		log.Warn().Str("workspace", workspaceID).Str("session", sessionID).Msg("ignoring malformed token expiration")
	}
	return expiry, nil
}

// optional reads a key, mapping absence to the empty string.
func (m *Manager) optional(ctx context.Context, workspaceID, key string) (string, error) {
	value, err := m.repo.Get(ctx, workspaceID, key)
	if apperrors.Is(err, apperrors.ErrNotFound) {
		return "", nil
	}
	return value, err
}

func parseMillis(raw string) (time.Time, bool) {
	if raw == "" {
		return time.Time{}, false
	}
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}, false
	}
	return time.UnixMilli(ms), true
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
