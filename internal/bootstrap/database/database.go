package database

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	gormsqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"reliability/internal/bootstrap/config"
	"reliability/internal/bootstrap/logging"
	"reliability/internal/errs"
)

func Open(ctx context.Context, cfg config.DatabaseConfig) (*gorm.DB, error) {
	if ctx == nil {
		return nil, errors.New("context is required")
	}
	if err := ctx.Err(); err != nil {
		return nil, errs.Wrap(err, "check context")
	}

	logCtx := logging.WithAttrs(ctx, slog.String("component", "bootstrap.database"))

	switch strings.ToLower(cfg.Driver) {
	case "sqlite", "sqlite3":
		if err := ensureSQLiteDirectory(logCtx, cfg.DSN); err != nil {
			return nil, errs.Wrap(err, "ensure sqlite directory")
		}

		db, err := gorm.Open(gormsqlite.Open(cfg.DSN), &gorm.Config{
			TranslateError: true,
			Logger:         logger.Default.LogMode(logger.Silent),
		})
		if err != nil {
			return nil, errs.Wrap(err, "open sqlite db")
		}
		if err := configureSQLite(logCtx, db, cfg); err != nil {
			return nil, errs.Wrap(err, "configure sqlite db")
		}

		logging.Info(logCtx, "database opened", slog.String("driver", "sqlite"), slog.String("dsn", cfg.DSN))
		return db, nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}

// configureSQLite bounds the pool and sets pragmas. SQLite allows one writer at a time,
// so the default pool is a single connection and writers queue on the pool instead of
// failing with SQLITE_BUSY.
func configureSQLite(ctx context.Context, db *gorm.DB, cfg config.DatabaseConfig) error {
	sqlDB, err := db.DB()
	if err != nil {
		return errs.Wrap(err, "get sql db")
	}

	maxOpen := cfg.MaxOpenConns
	if maxOpen <= 0 {
		maxOpen = 1
	}
	sqlDB.SetMaxOpenConns(maxOpen)
	sqlDB.SetMaxIdleConns(maxOpen)

	pragmas := []string{"PRAGMA foreign_keys = ON"}
	if cfg.BusyTimeoutMS > 0 {
		pragmas = append(pragmas, fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeoutMS))
	}
	if !isMemoryDSN(cfg.DSN) {
		pragmas = append(pragmas, "PRAGMA journal_mode = WAL")
	}

	for _, pragma := range pragmas {
		if err := db.WithContext(ctx).Exec(pragma).Error; err != nil {
			return errs.Wrapf(err, "exec %q", pragma)
		}
	}

	logging.Debug(ctx, "sqlite configured", slog.Int("max_open_conns", maxOpen), slog.Int("pragmas", len(pragmas)))
	return nil
}

func isMemoryDSN(dsn string) bool {
	candidate := strings.ToLower(strings.TrimSpace(dsn))
	return candidate == ":memory:" || strings.Contains(candidate, ":memory:") || strings.Contains(candidate, "mode=memory")
}

func ensureSQLiteDirectory(ctx context.Context, dsn string) error {
	if ctx == nil {
		return errors.New("context is required")
	}
	if err := ctx.Err(); err != nil {
		return errs.Wrap(err, "check context")
	}

	candidate := strings.TrimSpace(dsn)
	if candidate == "" || isMemoryDSN(candidate) {
		return nil
	}

	if strings.HasPrefix(strings.ToLower(candidate), "file:") {
		candidate = candidate[len("file:"):]
	}
	if idx := strings.Index(candidate, "?"); idx >= 0 {
		candidate = candidate[:idx]
	}

	dir := filepath.Dir(candidate)
	if dir == "" || dir == "." {
		return nil
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errs.Wrapf(err, "create sqlite directory %q", dir)
	}

	logging.Info(ctx, "sqlite directory ensured", slog.String("dir", dir))
	return nil
}
