package credentials

import (
	"context"
	"strconv"
	"time"

	apperrors "github.com/jrsteele09/fb-page-poster/internal/errors"
	"github.com/jrsteele09/fb-page-poster/internal/metrics"
	"github.com/jrsteele09/fb-page-poster/storage"
	"github.com/jrsteele09/fb-page-poster/token"
	"github.com/rs/zerolog/log"
)

// Refresh triggers.
const (
	TriggerManual       = "manual"
	TriggerExpiry       = "expiry"
	TriggerUnauthorized = "unauthorized"
)

// Refresh exchanges the session's refresh token for a new access token. Only one refresh
// per session runs at a time; a concurrent call gets ErrRefreshInProgress. On failure the
// stored credential is left as it was.
func (m *Manager) Refresh(ctx context.Context, workspaceID, sessionID, trigger string) (err error) {
	flight := workspaceID + "/" + sessionID
	m.mu.Lock()
	if _, busy := m.refreshing[flight]; busy {
		m.mu.Unlock()
		return apperrors.ErrRefreshInProgress
	}
	m.refreshing[flight] = struct{}{}
	m.mu.Unlock()
	defer func() {
		m.mu.Lock()
		delete(m.refreshing, flight)
		m.mu.Unlock()
	}()

	defer func() {
		if m.metrics != nil {
			m.metrics.Refreshes.WithLabelValues(trigger, metrics.Outcome(err)).Inc()
		}
	}()

	refreshToken, err := m.optional(ctx, workspaceID, storage.RefreshTokenKey(sessionID))
	if err != nil {
		return err
	}
	if refreshToken == "" {
		return apperrors.ErrNoRefreshToken
	}

	accessToken, err := m.broker.Refresh(ctx, refreshToken)
	if err != nil {
		log.Warn().Err(err).Str("workspace", workspaceID).Str("session", sessionID).Str("trigger", trigger).Msg("token refresh failed")
		return err
	}

	unlock := m.locks.Lock(workspaceID)
	defer unlock()

	// A logout or a new login while the call was in flight wins over this result.
	current, err := m.optional(ctx, workspaceID, storage.RefreshTokenKey(sessionID))
	if err != nil {
		return err
	}
	if current != refreshToken {
		log.Info().Str("workspace", workspaceID).Str("session", sessionID).Msg("discarding refresh result for replaced credential")
		return nil
	}

	if err := m.repo.Set(ctx, workspaceID, storage.TokenKey(sessionID), accessToken); err != nil {
		return err
	}
	if expiry, decodeErr := token.DecodeExpiry(accessToken); decodeErr == nil {
		if err := m.repo.Set(ctx, workspaceID, storage.ExpirationKey(sessionID), strconv.FormatInt(expiry.UnixMilli(), 10)); err != nil {
			return err
		}
	}
	log.Info().Str("workspace", workspaceID).Str("session", sessionID).Str("trigger", trigger).Msg("token refreshed")
	return nil
}

// CheckExpiry refreshes the workspace's active session when its token expires within the
// refresh threshold. A failed renewal logs the session out with ExpiredNotice.
func (m *Manager) CheckExpiry(ctx context.Context, workspaceID string) (refreshed bool, err error) {
	sessionID, err := m.resolver.ActiveID(ctx, workspaceID)
	if apperrors.Is(err, apperrors.ErrNoActiveSession) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	accessToken, err := m.optional(ctx, workspaceID, storage.TokenKey(sessionID))
	if err != nil || accessToken == "" {
		return false, err
	}
	expiry, err := m.expiry(ctx, workspaceID, sessionID)
	if err != nil || expiry.IsZero() {
		return false, err
	}
	if expiry.Sub(m.nowFunc()) >= m.refreshThreshold {
		return false, nil
	}

	err = m.Refresh(ctx, workspaceID, sessionID, TriggerExpiry)
	switch {
	case err == nil:
		return true, nil
	case apperrors.Is(err, apperrors.ErrRefreshInProgress), apperrors.Is(err, apperrors.ErrNoRefreshToken):
		return false, nil
	case apperrors.Is(err, apperrors.ErrRefreshFailed):
		if logoutErr := m.Logout(ctx, workspaceID, sessionID, ExpiredNotice); logoutErr != nil {
			return false, logoutErr
		}
		return false, err
	default:
		return false, err
	}
}

// Watch registers a workspace with the periodic expiry check.
func (m *Manager) Watch(workspaceID string) {
	m.mu.Lock()
	m.watched[workspaceID] = m.nowFunc()
	m.mu.Unlock()
}

// Forget drops a workspace from the periodic expiry check.
func (m *Manager) Forget(workspaceID string) {
	m.mu.Lock()
	delete(m.watched, workspaceID)
	m.mu.Unlock()
}

// Run checks every watched workspace each interval until ctx is done. Workspaces not
// seen for idleTTL stop being checked.
func (m *Manager) Run(ctx context.Context, interval, idleTTL time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.checkWatched(ctx, idleTTL)
		}
	}
}

func (m *Manager) checkWatched(ctx context.Context, idleTTL time.Duration) {
	cutoff := m.nowFunc().Add(-idleTTL)

	m.mu.Lock()
	workspaces := make([]string, 0, len(m.watched))
	for ws, seen := range m.watched {
		if seen.Before(cutoff) {
			delete(m.watched, ws)
			continue
		}
		workspaces = append(workspaces, ws)
	}
	m.mu.Unlock()

	for _, ws := range workspaces {
		if refreshed, err := m.CheckExpiry(ctx, ws); err != nil {
			log.Warn().Err(err).Str("workspace", ws).Msg("expiry check failed")
		} else if refreshed {
			log.Debug().Str("workspace", ws).Msg("token renewed ahead of expiry")
		}
	}
}
