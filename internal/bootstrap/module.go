package bootstrap

import (
	"context"
	"log/slog"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"go.uber.org/fx"
	"gorm.io/gorm"

	"reliability/internal/bootstrap/config"
	"reliability/internal/bootstrap/database"
	"reliability/internal/bootstrap/logging"
	"reliability/internal/errs"
	cacheinfra "reliability/internal/infrastructure/cache"
	"reliability/internal/infrastructure/clock"
	"reliability/internal/infrastructure/events"
	"reliability/internal/infrastructure/lock"
	"reliability/internal/infrastructure/metrics"
	sqliterepo "reliability/internal/infrastructure/persistence/sqlite/repository"
	sqliteuow "reliability/internal/infrastructure/persistence/sqlite/uow"
	"reliability/internal/infrastructure/profile"
	"reliability/internal/ports"
	"reliability/internal/usecase/reliability"
)

var Module = fx.Options(
	fx.Provide(provideConfig),
	fx.Provide(provideDatabase),
	fx.Provide(provideApp),
	fx.Provide(
		fx.Annotate(
			sqliterepo.NewReliabilityRepository,
			fx.As(new(ports.ReliabilityRepository)),
		),
	),
	fx.Provide(
		fx.Annotate(
			sqliteuow.NewUnitOfWork,
			fx.As(new(ports.UnitOfWork)),
		),
	),
	fx.Provide(
		fx.Annotate(
			lock.NewKeyedLocker,
			fx.As(new(ports.KeyLocker)),
		),
	),
	fx.Provide(provideRegistry),
	fx.Provide(provideMetrics),
	fx.Provide(provideCache),
	fx.Provide(provideProfileStore),
	fx.Provide(provideEvents),
	fx.Provide(provideService),
)

type configParams struct {
	fx.In

	Ctx        context.Context
	ConfigFile string `name:"configFile"`
}

func provideConfig(p configParams) (config.Config, error) {
	ctx := logging.WithAttrs(p.Ctx, slog.String("component", "bootstrap.fx"))
	return config.Load(ctx, p.ConfigFile)
}

func provideDatabase(lc fx.Lifecycle, ctx context.Context, cfg config.Config) (*gorm.DB, error) {
	logCtx := logging.WithAttrs(ctx, slog.String("component", "bootstrap.fx"))

	db, err := database.Open(logCtx, cfg.Database)
	if err != nil {
		return nil, err
	}

	lc.Append(fx.Hook{
		OnStop: func(_ context.Context) error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.Close()
		},
	})

	return db, nil
}

func provideApp(cfg config.Config, db *gorm.DB) *App {
	return &App{
		Config: cfg,
		DB:     db,
	}
}

func provideRegistry() *prometheus.Registry {
	return metrics.NewRegistry()
}

func provideMetrics(registry *prometheus.Registry) *metrics.Metrics {
	return metrics.New(registry)
}

func provideCache(ctx context.Context, cfg config.Config, db *gorm.DB, m *metrics.Metrics) ports.Cache {
	backend := strings.ToLower(strings.TrimSpace(cfg.Cache.Backend))
	logging.Info(
		logging.WithAttrs(ctx, slog.String("component", "bootstrap.fx")),
		"summary cache selected",
		slog.String("backend", backend),
	)

	switch backend {
	case cacheinfra.BackendSQLite:
		return cacheinfra.NewSQLiteCache(db, m)
	case cacheinfra.BackendNone, "":
		return cacheinfra.NoopCache{}
	default:
		return cacheinfra.NewMemoryCache(cfg.Cache.Size, cfg.Cache.TTL, m)
	}
}

func provideProfileStore(lc fx.Lifecycle, ctx context.Context, cfg config.Config) (*profile.Store, error) {
	store, err := profile.NewStore(cfg.Scoring.ProfileFile)
	if err != nil {
		return nil, err
	}
	if !cfg.Scoring.WatchProfile || store.Path() == "" {
		return store, nil
	}

	watchCtx, cancel := context.WithCancel(logging.WithAttrs(ctx, slog.String("component", "bootstrap.fx")))
	done := make(chan struct{})
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			go func() {
				defer close(done)
				if err := store.Watch(watchCtx); err != nil {
					logging.Error(watchCtx, "scoring profile watcher stopped", slog.Any("err", errs.Loggable(err)))
				}
			}()
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			cancel()
			select {
			case <-done:
			case <-stopCtx.Done():
			}
			return nil
		},
	})
	return store, nil
}

func provideEvents(lc fx.Lifecycle, ctx context.Context, cfg config.Config) (ports.EventPublisher, error) {
	url := strings.TrimSpace(cfg.Events.NATSURL)
	if url == "" {
		return events.Noop{}, nil
	}

	publisher, err := events.Connect(ctx, url, cfg.Events.SubjectPrefix)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{
		OnStop: func(_ context.Context) error {
			return publisher.Close()
		},
	})
	return publisher, nil
}

type serviceParams struct {
	fx.In

	Config   config.Config
	Repo     ports.ReliabilityRepository
	UOW      ports.UnitOfWork
	Locker   ports.KeyLocker
	Cache    ports.Cache
	Profiles *profile.Store
	Events   ports.EventPublisher
	Metrics  *metrics.Metrics
}

func provideService(p serviceParams) (*reliability.Service, error) {
	threshold, err := decimal.NewFromString(strings.TrimSpace(p.Config.Scoring.SignificantThreshold))
	if err != nil {
		return nil, errs.Wrapf(err, "parse scoring.significant_threshold %q", p.Config.Scoring.SignificantThreshold)
	}

	return reliability.NewService(p.Repo, p.UOW, p.Locker, reliability.Options{
		Cache:                 p.Cache,
		Clock:                 clock.System{},
		Profiles:              p.Profiles,
		Events:                p.Events,
		Metrics:               p.Metrics,
		DefaultScoringVersion: p.Config.Scoring.DefaultVersion,
		SignificantThreshold:  threshold,
		BatchConcurrency:      p.Config.Scoring.BatchConcurrency,
		SummaryTTL:            p.Config.Cache.TTL,
	}), nil
}
