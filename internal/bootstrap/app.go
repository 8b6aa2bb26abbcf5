package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"gorm.io/gorm"

	"reliability/internal/bootstrap/config"
	"reliability/internal/bootstrap/database"
	"reliability/internal/bootstrap/logging"
	"reliability/internal/errs"
	"reliability/internal/infrastructure/persistence/sqlite/model"
)

// App holds the loaded configuration and the open reliability database.
type App struct {
	Config config.Config
	DB     *gorm.DB
}

// TableStatus describes one reliability table after migration.
type TableStatus struct {
	Table string
	Rows  int64
}

// entityIndexes back the one-summary-per-entity and one-log-per-sequence rules.
var entityIndexes = []struct {
	model any
	name  string
}{
	{model: &model.Summary{}, name: "idx_reliability_entity"},
	{model: &model.AuditLog{}, name: "idx_reliability_logs_entity_sequence"},
}

func New(ctx context.Context, configFile string) (*App, error) {
	if err := requireLiveContext(ctx); err != nil {
		return nil, err
	}
	logCtx := logging.WithAttrs(ctx, slog.String("component", "bootstrap.app"))

	cfg, err := config.Load(logCtx, configFile)
	if err != nil {
		return nil, errs.Wrap(err, "load config")
	}
	db, err := database.Open(logCtx, cfg.Database)
	if err != nil {
		return nil, errs.Wrap(err, "open database")
	}

	logging.Info(logCtx, "reliability store opened",
		slog.String("database_dsn", cfg.Database.DSN),
		slog.String("scoring_profile", cfg.Scoring.ProfileFile),
		slog.String("cache_backend", cfg.Cache.Backend),
	)
	return &App{Config: cfg, DB: db}, nil
}

// Migrate creates or updates the reliability tables, checks the entity unique
// indexes and reports the row count of every table.
func (a *App) Migrate(ctx context.Context) ([]TableStatus, error) {
	if err := requireLiveContext(ctx); err != nil {
		return nil, err
	}
	logCtx := logging.WithAttrs(ctx, slog.String("component", "bootstrap.app"))
	db := a.DB.WithContext(ctx)

	tables := model.All()
	if err := db.AutoMigrate(tables...); err != nil {
		return nil, errs.Wrap(err, "auto migrate reliability tables")
	}

	migrator := db.Migrator()
	for _, index := range entityIndexes {
		if !migrator.HasIndex(index.model, index.name) {
			return nil, fmt.Errorf("unique index %s missing after migration", index.name)
		}
	}

	statuses := make([]TableStatus, 0, len(tables))
	for _, table := range tables {
		stmt := &gorm.Statement{DB: db}
		if err := stmt.Parse(table); err != nil {
			return nil, errs.Wrapf(err, "parse model %T", table)
		}
		var rows int64
		if err := db.Model(table).Count(&rows).Error; err != nil {
			return nil, errs.Wrapf(err, "count %s", stmt.Schema.Table)
		}
		statuses = append(statuses, TableStatus{Table: stmt.Schema.Table, Rows: rows})
		logging.Debug(logCtx, "reliability table ready", slog.String("table", stmt.Schema.Table), slog.Int64("rows", rows))
	}

	logging.Info(logCtx, "reliability schema migrated", slog.Int("tables", len(statuses)))
	return statuses, nil
}

func (a *App) Close(ctx context.Context) error {
	if ctx == nil {
		return errors.New("context is required")
	}
	if a.DB == nil {
		return nil
	}

	sqlDB, err := a.DB.DB()
	if err != nil {
		return errs.Wrap(err, "get sql db")
	}
	if err := sqlDB.Close(); err != nil {
		return errs.Wrap(err, "close sql db")
	}
	logging.Debug(logging.WithAttrs(ctx, slog.String("component", "bootstrap.app")), "reliability store closed")
	return nil
}

func requireLiveContext(ctx context.Context) error {
	if ctx == nil {
		return errors.New("context is required")
	}
	if err := ctx.Err(); err != nil {
		return errs.Wrap(err, "check context")
	}
	return nil
}
