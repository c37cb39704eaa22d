// Package app assembles the services shared by the server and the CLI.
package app

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/thoughtforge/thoughtsync/internal/api"
	"github.com/thoughtforge/thoughtsync/internal/auth"
	"github.com/thoughtforge/thoughtsync/internal/cache"
	"github.com/thoughtforge/thoughtsync/internal/clock"
	"github.com/thoughtforge/thoughtsync/internal/db"
	"github.com/thoughtforge/thoughtsync/internal/generation"
	"github.com/thoughtforge/thoughtsync/internal/governor"
	"github.com/thoughtforge/thoughtsync/internal/ids"
	"github.com/thoughtforge/thoughtsync/internal/localstore"
	"github.com/thoughtforge/thoughtsync/internal/persistence"
	"github.com/thoughtforge/thoughtsync/internal/ratelimit"
	"github.com/thoughtforge/thoughtsync/internal/realtime"
	"github.com/thoughtforge/thoughtsync/internal/remote"
	"github.com/thoughtforge/thoughtsync/internal/syncer"
	"github.com/thoughtforge/thoughtsync/pkg/config"
	"github.com/thoughtforge/thoughtsync/pkg/logging"
)

// App holds the wired services. Optional parts are nil when their
// configuration is absent.
type App struct {
	Config    *config.Config
	Clock     clock.Clock
	Store     *localstore.Store
	DB        *db.DB
	Cache     *cache.Cache
	Breaker   *remote.Breaker
	Broker    realtime.Broker
	Presence  realtime.PresenceChannel
	Governor  *governor.Governor
	Facade    *persistence.Facade
	Sync      *syncer.Engine
	Watcher   *syncer.AuthWatcher
	Limiter   *ratelimit.Limiter
	Generator *generation.Service
	Verifier  auth.Verifier

	kv     *localstore.SQLiteKV
	logger *zap.Logger
}

// Build connects every configured dependency. Close releases them.
func Build(cfg *config.Config, logger *zap.Logger) (_ *App, err error) {
	logger = logging.OrNop(logger)
	a := &App{Config: cfg, Clock: clock.Real{}, logger: logger}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	a.kv, err = localstore.OpenSQLite(cfg.Local.Path)
	if err != nil {
		return nil, err
	}
	a.Store = localstore.New(a.kv, logger)

	a.Cache, err = cache.New(&cfg.Redis, logger)
	if err != nil {
		return nil, err
	}
	if a.Cache != nil {
		a.Broker = realtime.NewRedisBroker(a.Cache, logger)
		a.Presence = realtime.NewRedisPresence(a.Cache, a.Clock, cfg.Realtime.PresenceTTL, logger)
	} else {
		a.Broker = realtime.NewHub()
		a.Presence = realtime.NewMemoryPresence()
	}

	gen := ids.NewGenerator(a.Clock, logger)
	a.Governor = governor.New(a.Clock, cfg.Governor.Linger, logger)

	var remoteRepo *persistence.RemoteRepository
	if cfg.Database.Configured() {
		a.DB, err = db.New(&cfg.Database, cfg.Logging.Level, logger)
		if err != nil {
			return nil, err
		}
		a.Breaker = remote.WithBreaker(remote.NewPostgresBackend(a.DB.DB, logger), remote.DefaultBreakerConfig(), logger)
		backend := remote.WithChangeFeed(a.Breaker, a.Broker, logger)
		remoteRepo = persistence.NewRemoteRepository(backend, a.Governor, governor.PolicyFromConfig(cfg.Governor), gen, a.Clock, logger)
	} else {
		logger.Info("No remote database configured, running local-only")
	}

	a.Facade = persistence.NewFacade(persistence.NewLocalRepository(a.Store, gen, a.Clock, logger), remoteRepo, logger)
	a.Sync = syncer.New(a.Store, remoteRepo, a.Governor, logger)
	a.Watcher = syncer.NewAuthWatcher(a.Sync, logger)
	a.Limiter = ratelimit.New(a.Store, a.Clock, cfg.RateLimit, logger)

	seed := uint64(time.Now().UnixNano())
	template := generation.NewTemplateEngine(rand.New(rand.NewPCG(seed, seed>>1|1)))
	var ai generation.Engine
	if remoteEngine := generation.NewRemoteEngine(cfg.Generation, logger); remoteEngine != nil {
		ai = remoteEngine
	}
	a.Generator = generation.NewService(template, ai, a.Limiter, a.Facade, logger)

	a.Verifier, err = auth.FromConfig(cfg.Auth)
	if err != nil {
		return nil, err
	}
	return a, nil
}

// APIDeps exposes the app to the HTTP layer.
func (a *App) APIDeps() api.Deps {
	checks := map[string]api.HealthCheck{
		"local": func(context.Context) error {
			_, err := a.Store.Thoughts()
			return err
		},
	}
	if a.DB != nil {
		checks["database"] = a.DB.Health
	}
	if a.Cache != nil {
		checks["redis"] = a.Cache.Health
	}
	if a.Breaker != nil {
		checks["breaker"] = func(context.Context) error {
			if state := a.Breaker.State(); state == gobreaker.StateOpen {
				return fmt.Errorf("breaker %s", state)
			}
			return nil
		}
	}
	return api.Deps{
		Facade:    a.Facade,
		Sync:      a.Sync,
		Generator: a.Generator,
		Verifier:  a.Verifier,
		Broker:    a.Broker,
		Presence:  a.Presence,
		Clock:     a.Clock,
		Realtime:  a.Config.Realtime,
		Health:    checks,
	}
}

// PrunePresence removes stale presence entries every interval until ctx
// ends. Only the Redis channel keeps entries that outlive their heartbeats.
func (a *App) PrunePresence(ctx context.Context, interval time.Duration) {
	rp, ok := a.Presence.(*realtime.RedisPresence)
	if !ok {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := rp.Prune(ctx); err != nil && !errors.Is(err, context.Canceled) {
				a.logger.Warn("presence prune failed", zap.Error(err))
			}
		}
	}
}

// Close releases connections in reverse order of Build.
func (a *App) Close() {
	if a.DB != nil {
		if err := a.DB.Close(); err != nil {
			a.logger.Warn("closing database", zap.Error(err))
		}
	}
	if a.Cache != nil {
		if err := a.Cache.Close(); err != nil {
			a.logger.Warn("closing redis", zap.Error(err))
		}
	}
	if a.kv != nil {
		if err := a.kv.Close(); err != nil {
			a.logger.Warn("closing local store", zap.Error(err))
		}
	}
}
