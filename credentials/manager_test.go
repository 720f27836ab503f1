package credentials_test

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jrsteele09/fb-page-poster/credentials"
	apperrors "github.com/jrsteele09/fb-page-poster/internal/errors"
	"github.com/jrsteele09/fb-page-poster/storage"
	"github.com/jrsteele09/fb-page-poster/tabs"
	"github.com/stretchr/testify/require"
)

const testWorkspace = "ws-1"

type fakeBroker struct {
	mu          sync.Mutex
	loginURL    string
	loginErr    error
	nextSeen    string
	refreshFunc func(refreshToken string) (string, error)
	refreshes   int32
}

func (b *fakeBroker) BeginLogin(_ context.Context, next string) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextSeen = next
	return b.loginURL, b.loginErr
}

func (b *fakeBroker) Refresh(_ context.Context, refreshToken string) (string, error) {
	atomic.AddInt32(&b.refreshes, 1)
	return b.refreshFunc(refreshToken)
}

type testFixture struct {
	now       time.Time
	repo      *storage.InMemoryRepo
	registry  *tabs.Registry
	broker    *fakeBroker
	manager   *credentials.Manager
	sleeps    int
	loggedOut []string
}

func setupTestFixture(t *testing.T, options ...credentials.ManagerOption) *testFixture {
	t.Helper()

	f := &testFixture{
		now:    time.Date(2030, 6, 1, 12, 0, 0, 0, time.UTC),
		repo:   storage.NewInMemoryRepo(),
		broker: &fakeBroker{loginURL: "https://facebook.example/dialog"},
	}
	n := 0
	f.registry = tabs.NewRegistry(f.repo, tabs.WithIDFunc(func() string {
		n++
		return fmt.Sprintf("id-%d", n)
	}))
	opts := append([]credentials.ManagerOption{
		credentials.WithNowFunc(func() time.Time { return f.now }),
		credentials.WithSleepFunc(func(context.Context, time.Duration) error {
			f.sleeps++
			return nil
		}),
		credentials.WithLogoutHook(func(_ context.Context, _, sessionID string) {
			f.loggedOut = append(f.loggedOut, sessionID)
		}),
	}, options...)
	f.manager = credentials.NewManager(f.repo, f.broker, f.registry, "http://localhost:3000/auth/callback", opts...)
	return f
}

func accessToken(t *testing.T, exp time.Time) string {
	t.Helper()
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"exp": exp.Unix()}).SignedString([]byte("broker"))
	require.NoError(t, err)
	return raw
}

func (f *testFixture) value(t *testing.T, key string) string {
	t.Helper()
	v, err := f.repo.Get(context.Background(), testWorkspace, key)
	if apperrors.Is(err, apperrors.ErrNotFound) {
		return ""
	}
	require.NoError(t, err)
	return v
}

func TestManager_Login(t *testing.T) {
	ctx := context.Background()

	t.Run("marks the session authenticating", func(t *testing.T) {
		f := setupTestFixture(t)
		list, err := f.registry.Load(ctx, testWorkspace)
		require.NoError(t, err)

		redirectURL, err := f.manager.Login(ctx, testWorkspace, list[0].ID)
		require.NoError(t, err)
		require.Equal(t, "https://facebook.example/dialog", redirectURL)
		require.Equal(t, "http://localhost:3000/auth/callback", f.broker.nextSeen)

		status, err := f.manager.Status(ctx, testWorkspace, list[0].ID)
		require.NoError(t, err)
		require.Equal(t, credentials.Authenticating, status.State)
	})

	t.Run("stale pending marker reads as logged out", func(t *testing.T) {
		f := setupTestFixture(t)
		list, err := f.registry.Load(ctx, testWorkspace)
		require.NoError(t, err)
		_, err = f.manager.Login(ctx, testWorkspace, list[0].ID)
		require.NoError(t, err)

		f.now = f.now.Add(time.Hour)
		status, err := f.manager.Status(ctx, testWorkspace, list[0].ID)
		require.NoError(t, err)
		require.Equal(t, credentials.LoggedOut, status.State)
	})

	t.Run("initiation failure leaves the session logged out", func(t *testing.T) {
		f := setupTestFixture(t)
		f.broker.loginErr = apperrors.ErrLoginFailed
		list, err := f.registry.Load(ctx, testWorkspace)
		require.NoError(t, err)

		_, err = f.manager.Login(ctx, testWorkspace, list[0].ID)
		require.ErrorIs(t, err, apperrors.ErrLoginFailed)

		status, err := f.manager.Status(ctx, testWorkspace, list[0].ID)
		require.NoError(t, err)
		require.Equal(t, credentials.LoggedOut, status.State)
	})
}

func TestManager_CompleteRedirect(t *testing.T) {
	ctx := context.Background()

	t.Run("stores the credential on the active session", func(t *testing.T) {
		f := setupTestFixture(t)
		first, err := f.registry.Load(ctx, testWorkspace)
		require.NoError(t, err)
		second, err := f.registry.Create(ctx, testWorkspace, "")
		require.NoError(t, err)
		_, err = f.manager.Login(ctx, testWorkspace, second.ID)
		require.NoError(t, err)

		exp := f.now.Add(time.Hour).Truncate(time.Second)
		tok := accessToken(t, exp)
		query := url.Values{
			"access_token":  {tok},
			"refresh_token": {"r-1"},
			"profile_image": {"https://img.example/me.png"},
			"redirect":      {"/compose"},
		}
		sessionID, err := f.manager.CompleteRedirect(ctx, testWorkspace, credentials.ParseRedirect(query))
		require.NoError(t, err)
		require.Equal(t, second.ID, sessionID)

		require.Equal(t, tok, f.value(t, storage.TokenKey(second.ID)))
		require.Equal(t, fmt.Sprint(exp.UnixMilli()), f.value(t, storage.ExpirationKey(second.ID)))
		require.Equal(t, "r-1", f.value(t, storage.RefreshTokenKey(second.ID)))
		require.Equal(t, "https://img.example/me.png", f.value(t, storage.ProfileImageKey(second.ID)))
		require.Equal(t, "/compose", f.value(t, storage.KeyRedirectURL))
		require.Empty(t, f.value(t, storage.AuthPendingKey(second.ID)))

		// the other session is untouched
		require.Empty(t, f.value(t, storage.TokenKey(first[0].ID)))

		status, err := f.manager.Status(ctx, testWorkspace, second.ID)
		require.NoError(t, err)
		require.Equal(t, credentials.LoggedIn, status.State)
		require.True(t, status.HasRefreshToken)
		require.True(t, exp.Equal(*status.Expiry))
	})

	t.Run("error parameter mutates nothing", func(t *testing.T) {
		f := setupTestFixture(t)
		_, err := f.registry.Load(ctx, testWorkspace)
		require.NoError(t, err)
		before := f.repo.Keys(testWorkspace)

		_, err = f.manager.CompleteRedirect(ctx, testWorkspace, credentials.ParseRedirect(url.Values{"error": {"access_denied"}}))
		require.ErrorIs(t, err, apperrors.ErrRedirect)
		require.ElementsMatch(t, before, f.repo.Keys(testWorkspace))
	})

	t.Run("undecodable token is rejected", func(t *testing.T) {
		f := setupTestFixture(t)
		_, err := f.registry.Load(ctx, testWorkspace)
		require.NoError(t, err)

		_, err = f.manager.CompleteRedirect(ctx, testWorkspace, credentials.Redirect{AccessToken: "opaque"})
		require.ErrorIs(t, err, apperrors.ErrTokenDecode)
	})

	t.Run("waits for the registry to be hydrated", func(t *testing.T) {
		f := setupTestFixture(t)
		calls := 0
		resolver := resolverFunc(func(ctx context.Context, ws string) (string, error) {
			calls++
			if calls < 3 {
				return "", apperrors.ErrNoActiveSession
			}
			return "late", nil
		})
		m := credentials.NewManager(f.repo, f.broker, resolver, "",
			credentials.WithSleepFunc(func(context.Context, time.Duration) error {
				f.sleeps++
				return nil
			}))

		sessionID, err := m.CompleteRedirect(ctx, testWorkspace, credentials.Redirect{AccessToken: accessToken(t, f.now.Add(time.Hour))})
		require.NoError(t, err)
		require.Equal(t, "late", sessionID)
		require.Equal(t, 2, f.sleeps)
	})

	t.Run("gives up after the poll bound", func(t *testing.T) {
		f := setupTestFixture(t)
		_, err := f.manager.CompleteRedirect(ctx, testWorkspace, credentials.Redirect{AccessToken: accessToken(t, f.now.Add(time.Hour))})
		require.ErrorIs(t, err, apperrors.ErrActiveSessionTimeout)
		require.Equal(t, 19, f.sleeps)
		require.Empty(t, f.repo.Keys(testWorkspace))
	})

	t.Run("session removed while waiting stores nothing", func(t *testing.T) {
		f := setupTestFixture(t)
		_, err := f.registry.Load(ctx, testWorkspace)
		require.NoError(t, err)
		second, err := f.registry.Create(ctx, testWorkspace, "")
		require.NoError(t, err)

		// the session is resolved, then closed before the credential lands
		resolved := false
		resolver := resolverFunc(func(ctx context.Context, ws string) (string, error) {
			id, err := f.registry.ActiveID(ctx, ws)
			if err != nil || resolved {
				return id, err
			}
			resolved = true
			_, err = f.registry.Remove(ctx, ws, id)
			return id, err
		})
		m := credentials.NewManager(f.repo, f.broker, resolver, "")

		_, err = m.CompleteRedirect(ctx, testWorkspace, credentials.Redirect{
			AccessToken:  accessToken(t, f.now.Add(time.Hour)),
			RefreshToken: "r-1",
		})
		require.ErrorIs(t, err, apperrors.ErrSessionNotFound)
		for _, key := range storage.SessionKeys(second.ID) {
			require.Empty(t, f.value(t, key))
		}
	})

	t.Run("failed write leaves no partial credential", func(t *testing.T) {
		f := setupTestFixture(t)
		list, err := f.registry.Load(ctx, testWorkspace)
		require.NoError(t, err)
		sessionID := list[0].ID
		repo := &failingRepo{InMemoryRepo: f.repo, failKey: storage.TokenKey(sessionID)}
		m := credentials.NewManager(repo, f.broker, f.registry, "")

		_, err = m.CompleteRedirect(ctx, testWorkspace, credentials.Redirect{
			AccessToken:  accessToken(t, f.now.Add(time.Hour)),
			RefreshToken: "r-1",
			ProfileImage: "https://img.example/me.png",
		})
		require.Error(t, err)
		require.Len(t, repo.attempts, 4)
		require.Equal(t, storage.TokenKey(sessionID), repo.attempts[3])
		require.Empty(t, f.value(t, storage.ExpirationKey(sessionID)))
		require.Empty(t, f.value(t, storage.RefreshTokenKey(sessionID)))
		require.Empty(t, f.value(t, storage.ProfileImageKey(sessionID)))
	})
}

// failingRepo fails every Set of failKey and records the keys written before it.
type failingRepo struct {
	*storage.InMemoryRepo
	failKey  string
	attempts []string
}

func (r *failingRepo) Set(ctx context.Context, workspaceID, key, value string) error {
	r.attempts = append(r.attempts, key)
	if key == r.failKey {
		return errors.New("disk full")
	}
	return r.InMemoryRepo.Set(ctx, workspaceID, key, value)
}

type resolverFunc func(ctx context.Context, workspaceID string) (string, error)

func (r resolverFunc) ActiveID(ctx context.Context, workspaceID string) (string, error) {
	return r(ctx, workspaceID)
}

func TestManager_Logout(t *testing.T) {
	ctx := context.Background()
	f := setupTestFixture(t)
	list, err := f.registry.Load(ctx, testWorkspace)
	require.NoError(t, err)
	other, err := f.registry.Create(ctx, testWorkspace, "")
	require.NoError(t, err)

	for _, id := range []string{list[0].ID, other.ID} {
		_, err = f.registry.SetActive(ctx, testWorkspace, id)
		require.NoError(t, err)
		_, err = f.manager.CompleteRedirect(ctx, testWorkspace, credentials.Redirect{AccessToken: accessToken(t, f.now.Add(time.Hour)), RefreshToken: "r-" + id})
		require.NoError(t, err)
	}

	require.NoError(t, f.manager.Logout(ctx, testWorkspace, list[0].ID, ""))
	require.Equal(t, []string{list[0].ID}, f.loggedOut)

	status, err := f.manager.Status(ctx, testWorkspace, list[0].ID)
	require.NoError(t, err)
	require.Equal(t, credentials.LoggedOut, status.State)
	_, err = f.manager.Token(ctx, testWorkspace, list[0].ID)
	require.ErrorIs(t, err, apperrors.ErrMissingToken)

	tok, err := f.manager.Token(ctx, testWorkspace, other.ID)
	require.NoError(t, err)
	require.Equal(t, "r-"+other.ID, tok.RefreshToken)
}

func TestManager_Refresh(t *testing.T) {
	ctx := context.Background()

	setup := func(t *testing.T) (*testFixture, string) {
		f := setupTestFixture(t)
		list, err := f.registry.Load(ctx, testWorkspace)
		require.NoError(t, err)
		_, err = f.manager.CompleteRedirect(ctx, testWorkspace, credentials.Redirect{AccessToken: accessToken(t, f.now.Add(4*time.Minute)), RefreshToken: "r-1"})
		require.NoError(t, err)
		return f, list[0].ID
	}

	t.Run("replaces token and expiry", func(t *testing.T) {
		f, id := setup(t)
		renewed := accessToken(t, f.now.Add(time.Hour))
		f.broker.refreshFunc = func(rt string) (string, error) {
			require.Equal(t, "r-1", rt)
			return renewed, nil
		}

		require.NoError(t, f.manager.Refresh(ctx, testWorkspace, id, credentials.TriggerManual))
		tok, err := f.manager.Token(ctx, testWorkspace, id)
		require.NoError(t, err)
		require.Equal(t, renewed, tok.AccessToken)
		require.Equal(t, f.now.Add(time.Hour).Unix(), tok.Expiry.Unix())
	})

	t.Run("failure keeps the old credential", func(t *testing.T) {
		f, id := setup(t)
		before, err := f.manager.Token(ctx, testWorkspace, id)
		require.NoError(t, err)
		f.broker.refreshFunc = func(string) (string, error) { return "", apperrors.ErrRefreshFailed }

		require.ErrorIs(t, f.manager.Refresh(ctx, testWorkspace, id, credentials.TriggerManual), apperrors.ErrRefreshFailed)
		after, err := f.manager.Token(ctx, testWorkspace, id)
		require.NoError(t, err)
		require.Equal(t, before, after)
	})

	t.Run("without refresh token", func(t *testing.T) {
		f := setupTestFixture(t)
		list, err := f.registry.Load(ctx, testWorkspace)
		require.NoError(t, err)
		require.ErrorIs(t, f.manager.Refresh(ctx, testWorkspace, list[0].ID, credentials.TriggerManual), apperrors.ErrNoRefreshToken)
	})

	t.Run("single flight per session", func(t *testing.T) {
		f, id := setup(t)
		release := make(chan struct{})
		started := make(chan struct{})
		f.broker.refreshFunc = func(string) (string, error) {
			close(started)
			<-release
			return accessToken(t, f.now.Add(time.Hour)), nil
		}

		done := make(chan error)
		go func() { done <- f.manager.Refresh(ctx, testWorkspace, id, credentials.TriggerManual) }()
		<-started
		require.ErrorIs(t, f.manager.Refresh(ctx, testWorkspace, id, credentials.TriggerManual), apperrors.ErrRefreshInProgress)
		close(release)
		require.NoError(t, <-done)
		require.EqualValues(t, 1, atomic.LoadInt32(&f.broker.refreshes))
	})

	t.Run("logout during refresh wins", func(t *testing.T) {
		f, id := setup(t)
		f.broker.refreshFunc = func(string) (string, error) {
			require.NoError(t, f.manager.Logout(ctx, testWorkspace, id, ""))
			return accessToken(t, f.now.Add(time.Hour)), nil
		}

		require.NoError(t, f.manager.Refresh(ctx, testWorkspace, id, credentials.TriggerManual))
		_, err := f.manager.Token(ctx, testWorkspace, id)
		require.ErrorIs(t, err, apperrors.ErrMissingToken)
	})
}

func TestManager_CheckExpiry(t *testing.T) {
	ctx := context.Background()

	t.Run("refreshes exactly once ahead of expiry", func(t *testing.T) {
		f := setupTestFixture(t)
		list, err := f.registry.Load(ctx, testWorkspace)
		require.NoError(t, err)
		_, err = f.manager.CompleteRedirect(ctx, testWorkspace, credentials.Redirect{AccessToken: accessToken(t, f.now.Add(4*time.Minute)), RefreshToken: "r-1"})
		require.NoError(t, err)
		f.broker.refreshFunc = func(string) (string, error) {
			return accessToken(t, f.now.Add(time.Hour)), nil
		}

		for i := 0; i < 5; i++ {
			_, err := f.manager.CheckExpiry(ctx, testWorkspace)
			require.NoError(t, err)
			f.now = f.now.Add(time.Minute)
		}
		require.EqualValues(t, 1, atomic.LoadInt32(&f.broker.refreshes))

		status, err := f.manager.Status(ctx, testWorkspace, list[0].ID)
		require.NoError(t, err)
		require.Equal(t, credentials.LoggedIn, status.State)
	})

	t.Run("far expiry is left alone", func(t *testing.T) {
		f := setupTestFixture(t)
		_, err := f.registry.Load(ctx, testWorkspace)
		require.NoError(t, err)
		_, err = f.manager.CompleteRedirect(ctx, testWorkspace, credentials.Redirect{AccessToken: accessToken(t, f.now.Add(time.Hour)), RefreshToken: "r-1"})
		require.NoError(t, err)

		refreshed, err := f.manager.CheckExpiry(ctx, testWorkspace)
		require.NoError(t, err)
		require.False(t, refreshed)
		require.EqualValues(t, 0, atomic.LoadInt32(&f.broker.refreshes))
	})

	t.Run("failed renewal logs out with a notice", func(t *testing.T) {
		f := setupTestFixture(t)
		list, err := f.registry.Load(ctx, testWorkspace)
		require.NoError(t, err)
		_, err = f.manager.CompleteRedirect(ctx, testWorkspace, credentials.Redirect{AccessToken: accessToken(t, f.now.Add(time.Minute)), RefreshToken: "r-1"})
		require.NoError(t, err)
		f.broker.refreshFunc = func(string) (string, error) { return "", apperrors.ErrRefreshFailed }

		_, err = f.manager.CheckExpiry(ctx, testWorkspace)
		require.ErrorIs(t, err, apperrors.ErrRefreshFailed)

		status, err := f.manager.Status(ctx, testWorkspace, list[0].ID)
		require.NoError(t, err)
		require.Equal(t, credentials.LoggedOut, status.State)
		require.Equal(t, credentials.ExpiredNotice, status.Notice)
		require.Equal(t, []string{list[0].ID}, f.loggedOut)
	})

	t.Run("passed expiry reads as expired", func(t *testing.T) {
		f := setupTestFixture(t)
		list, err := f.registry.Load(ctx, testWorkspace)
		require.NoError(t, err)
		_, err = f.manager.CompleteRedirect(ctx, testWorkspace, credentials.Redirect{AccessToken: accessToken(t, f.now.Add(time.Minute))})
		require.NoError(t, err)

		f.now = f.now.Add(2 * time.Minute)
		status, err := f.manager.Status(ctx, testWorkspace, list[0].ID)
		require.NoError(t, err)
		require.Equal(t, credentials.Expired, status.State)
	})
}
