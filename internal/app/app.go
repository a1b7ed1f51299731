// Package app wires the exchange services from configuration and runs
// them: HTTP API, WebSocket hub and the contest scheduler.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/fanshares/exchange-core/internal/api"
	"github.com/fanshares/exchange-core/internal/catalog"
	"github.com/fanshares/exchange-core/internal/config"
	"github.com/fanshares/exchange-core/internal/contest"
	"github.com/fanshares/exchange-core/internal/cronrunner"
	"github.com/fanshares/exchange-core/internal/event"
	"github.com/fanshares/exchange-core/internal/feed"
	"github.com/fanshares/exchange-core/internal/ledger"
	"github.com/fanshares/exchange-core/internal/limits"
	"github.com/fanshares/exchange-core/internal/matching"
	"github.com/fanshares/exchange-core/internal/store"
	"github.com/fanshares/exchange-core/internal/vesting"
)

// App owns every long-lived component.
type App struct {
	cfg    config.Config
	logger *zap.Logger

	Store    store.Store
	Catalog  catalog.Catalog
	Hub      *api.WSHub
	Matching *matching.Engine
	Vesting  *vesting.Engine
	Contests *contest.Service
	Server   *api.Server

	closers []func() error
}

// New builds the application. The order books are rebuilt from resting
// orders before New returns.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &App{cfg: cfg, logger: logger}
	if err := a.setup(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) setup(ctx context.Context) error {
	st, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	a.Store = st

	var invalidate func(string)
	a.Catalog = catalog.NewStoreCatalog(st)
	if a.cfg.Catalog.CacheEnabled {
		cc, err := catalog.NewCachedCatalog(a.Catalog, catalog.CacheConfig{
			NumCounters: a.cfg.Catalog.NumCounters,
			MaxCost:     a.cfg.Catalog.MaxCost,
			BufferItems: a.cfg.Catalog.BufferItems,
			TTL:         a.cfg.Catalog.TTL,
		}, a.logger.Named("catalog"))
		if err != nil {
			return err
		}
		a.closers = append(a.closers, func() error { cc.Close(); return nil })
		a.Catalog = cc
		invalidate = cc.Invalidate
	}

	a.Hub = api.NewWSHub(a.cfg.WS.ClientBuffer, a.logger.Named("ws"))
	var events event.Publisher = a.Hub
	led := ledger.New()

	a.Matching = matching.New(matching.Deps{
		Store:   st,
		Catalog: a.Catalog,
		Ledger:  led,
		Limiter: limits.NewPositionLimiter(a.cfg.Limits.MaxPerPlayer, a.cfg.Limits.MaxPerTeam),
		Events:  events,
		Logger:  a.logger.Named("matching"),
	})
	if _, err := a.Matching.Restore(ctx); err != nil {
		return fmt.Errorf("restore order books: %w", err)
	}

	a.Vesting, err = vesting.New(vesting.Deps{
		Store:       st,
		Catalog:     a.Catalog,
		Ledger:      led,
		Events:      events,
		Logger:      a.logger.Named("vesting"),
		Tiers:       a.cfg.Vesting.Tiers,
		DefaultTier: a.cfg.Vesting.DefaultTier,
	})
	if err != nil {
		return fmt.Errorf("vesting engine: %w", err)
	}

	a.Contests = contest.New(contest.Deps{
		Store:   st,
		Catalog: a.Catalog,
		Feed: feed.NewRetrying(feed.NewStoreFeed(st), feed.RetryConfig{
			MaxAttempts: a.cfg.Contest.FeedMaxAttempts,
			BaseDelay:   a.cfg.Contest.FeedBaseDelay,
			MaxDelay:    a.cfg.Contest.FeedMaxDelay,
		}, a.logger.Named("feed")),
		Ledger:           led,
		Events:           events,
		Logger:           a.logger.Named("contest"),
		FetchConcurrency: a.cfg.Contest.FetchConcurrency,
	})

	a.Server = api.New(api.Deps{
		Store:      st,
		Ledger:     led,
		Matching:   a.Matching,
		Vesting:    a.Vesting,
		Contests:   a.Contests,
		Hub:        a.Hub,
		Logger:     a.logger.Named("api"),
		Invalidate: invalidate,
	})
	return nil
}

// openStore selects PostgreSQL when a DSN is configured, optionally behind
// the Redis cache, and the in-memory store otherwise.
func (a *App) openStore(ctx context.Context) (store.Store, error) {
	if a.cfg.DB.DSN == "" {
		a.logger.Warn("db.dsn not set, using in-memory store (data will not persist)")
		return store.NewMemoryStore(), nil
	}

	pg, err := store.OpenPostgres(ctx, a.cfg.DB.DSN, store.PoolConfig{
		MaxOpenConns:    a.cfg.DB.MaxOpenConns,
		MaxIdleConns:    a.cfg.DB.MaxIdleConns,
		ConnMaxLifetime: a.cfg.DB.ConnMaxLifetime,
	})
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, pg.Close)
	a.logger.Info("connected to PostgreSQL")

	if a.cfg.DB.AutoMigrate {
		if err := pg.Migrate(ctx); err != nil {
			return nil, fmt.Errorf("migrate: %w", err)
		}
		a.logger.Info("schema migrated")
	}

	if a.cfg.Redis.URL == "" {
		return pg, nil
	}
	opt, err := redis.ParseURL(a.cfg.Redis.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis.url: %w", err)
	}
	rdb := redis.NewClient(opt)
	a.closers = append(a.closers, rdb.Close)
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	a.logger.Info("Redis cache enabled", zap.Duration("ttl", a.cfg.Redis.TTL))
	return store.NewCachedStore(pg, rdb, a.cfg.Redis.TTL), nil
}

// Handler returns the HTTP handler with the configured middleware.
func (a *App) Handler() http.Handler {
	return a.Server.Routes(api.RouterOptions{
		AllowedOrigins: a.cfg.Server.AllowedOrigins,
		RequestTimeout: a.cfg.Server.RequestTimeout,
	})
}

// Scheduler registers the contest jobs: activation of open contests whose
// start has passed and the settlement sweep.
func (a *App) Scheduler(ctx context.Context) (*cronrunner.Runner, error) {
	cr := cronrunner.New(ctx, a.logger.Named("cron"))
	if _, err := cr.Add("contest-activate", a.cfg.Contest.ActivateSpec, func(ctx context.Context) error {
		n, err := a.Contests.Activate(ctx, time.Now().UTC())
		if n > 0 {
			a.logger.Info("contests activated", zap.Int("count", n))
		}
		return err
	}); err != nil {
		return nil, err
	}
	if _, err := cr.Add("contest-settle", a.cfg.Contest.SweepSpec, func(ctx context.Context) error {
		_, err := a.Contests.SweepDue(ctx, time.Now().UTC())
		return err
	}); err != nil {
		return nil, err
	}
	return cr, nil
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (a *App) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         a.cfg.Server.HTTPAddr,
		Handler:      a.Handler(),
		ReadTimeout:  a.cfg.Server.ReadTimeout,
		WriteTimeout: a.cfg.Server.WriteTimeout,
		IdleTimeout:  a.cfg.Server.IdleTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.Hub.Run(gctx)
		return nil
	})

	if a.cfg.Contest.CronEnabled {
		cr, err := a.Scheduler(gctx)
		if err != nil {
			return fmt.Errorf("schedule contest jobs: %w", err)
		}
		cr.Start()
		g.Go(func() error {
			<-gctx.Done()
			cr.Stop()
			return nil
		})
	}

	g.Go(func() error {
		a.logger.Info("exchange listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		a.logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http shutdown: %w", err)
		}
		return nil
	})

	return g.Wait()
}

// Close releases connections and caches in reverse order of creation.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
