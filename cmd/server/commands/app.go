package commands

import (
	"context"
	"fmt"

	"github.com/jrsteele09/fb-page-poster/credentials"
	"github.com/jrsteele09/fb-page-poster/dashboard"
	"github.com/jrsteele09/fb-page-poster/facebook"
	"github.com/jrsteele09/fb-page-poster/internal/config"
	"github.com/jrsteele09/fb-page-poster/internal/metrics"
	"github.com/jrsteele09/fb-page-poster/pagedata"
	"github.com/jrsteele09/fb-page-poster/posts"
	"github.com/jrsteele09/fb-page-poster/server"
	"github.com/jrsteele09/fb-page-poster/storage"
	"github.com/jrsteele09/fb-page-poster/storage/postgres"
	"github.com/jrsteele09/fb-page-poster/tabs"
	"github.com/rs/zerolog/log"
)

// app is the wired object graph shared by the commands.
type app struct {
	config    config.Config
	metrics   *metrics.Metrics
	creds     *credentials.Manager
	dashboard *dashboard.Service
	close     func()
}

func newApp(ctx context.Context, c config.Config) (*app, error) {
	repo, closeRepo, err := newRepo(ctx, c)
	if err != nil {
		return nil, err
	}

	m := metrics.New()
	locks := storage.NewWorkspaceLocks()
	client := facebook.NewClient(c.GetBackendURL(), facebook.WithTimeout(c.GetBackendTimeout()), facebook.WithMetrics(m))
	registry := tabs.NewRegistry(repo)
	creds := credentials.NewManager(repo, client, registry, c.GetPublicURL()+server.RouteAuthCallback,
		credentials.WithLocks(locks),
		credentials.WithMetrics(m),
		credentials.WithRefreshThreshold(c.GetRefreshThreshold()),
		credentials.WithRedirectPoll(c.GetRedirectPollAttempts(), c.GetRedirectPollInterval()),
	)
	cache := pagedata.NewCache(repo, client, creds, pagedata.WithLocks(locks), pagedata.WithMetrics(m))
	svc := dashboard.NewService(repo, registry, creds, cache, posts.NewService(client, posts.WithMetrics(m)), locks,
		dashboard.WithMetrics(m),
		dashboard.WithLoadTimeout(c.GetBackendTimeout()),
	)

	return &app{config: c, metrics: m, creds: creds, dashboard: svc, close: closeRepo}, nil
}

// newRepo picks the store from config and seals secrets at rest when a key is configured.
func newRepo(ctx context.Context, c config.Config) (storage.Repo, func(), error) {
	var (
		repo      storage.Repo
		closeRepo = func() {}
	)
	switch c.GetStore() {
	case config.StoreMemory:
		repo = storage.NewInMemoryRepo()
	case config.StorePostgres:
		pool, err := postgres.NewPool(ctx, c.GetDatabaseURL())
		if err != nil {
			return nil, nil, err
		}
		pg, err := postgres.New(pool)
		if err != nil {
			pool.Close()
			return nil, nil, err
		}
		if err := pg.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, nil, err
		}
		repo, closeRepo = pg, pool.Close
	default:
		return nil, nil, fmt.Errorf("unknown store %q", c.GetStore())
	}

	if key := c.GetTokenSealKey(); key != "" {
		sealed, err := storage.NewSealedRepo(repo, key)
		if err != nil {
			closeRepo()
			return nil, nil, err
		}
		repo = sealed
	} else if c.GetSecureCookies() {
		log.Warn().Msg("TOKEN_SEAL_KEY not set, tokens are stored unencrypted")
	}
	log.Info().Str("store", c.GetStore()).Bool("sealed", c.GetTokenSealKey() != "").Msg("store ready")
	return repo, closeRepo, nil
}
