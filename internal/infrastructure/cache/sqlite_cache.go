package cache

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"reliability/internal/errs"
	"reliability/internal/infrastructure/persistence/sqlite/model"
	"reliability/internal/ports"
)

const expiresLayout = "2006-01-02T15:04:05.000000000Z07:00"

// SQLiteCache keeps entries in the reliability_cache table so several processes
// sharing one database see the same cache.
type SQLiteCache struct {
	db       *gorm.DB
	observer Observer
	now      func() time.Time
}

var _ ports.Cache = (*SQLiteCache)(nil)

func NewSQLiteCache(db *gorm.DB, observer Observer) *SQLiteCache {
	if observer == nil {
		observer = noopObserver{}
	}
	return &SQLiteCache{db: db, observer: observer, now: time.Now}
}

func (c *SQLiteCache) Get(ctx context.Context, key string) (string, bool, error) {
	if ctx == nil {
		return "", false, errors.New("context is required")
	}
	if err := ctx.Err(); err != nil {
		return "", false, errs.Wrap(err, "check context")
	}

	trimmedKey := strings.TrimSpace(key)
	if trimmedKey == "" {
		return "", false, errors.New("key is required")
	}

	var row model.CacheEntry
	if err := c.db.WithContext(ctx).Where("key = ?", trimmedKey).Take(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.observer.ObserveCacheMiss(BackendSQLite)
			return "", false, nil
		}
		return "", false, errs.Wrap(err, "query cache by key")
	}

	if row.ExpiresAt != "" && row.ExpiresAt <= c.now().UTC().Format(expiresLayout) {
		if err := c.Delete(ctx, trimmedKey); err != nil {
			return "", false, err
		}
		c.observer.ObserveCacheMiss(BackendSQLite)
		return "", false, nil
	}

	c.observer.ObserveCacheHit(BackendSQLite)
	return row.Value, true, nil
}

// Set stores value. A ttl <= 0 never expires.
func (c *SQLiteCache) Set(ctx context.Context, key string, value string, ttl time.Duration) error {
	if ctx == nil {
		return errors.New("context is required")
	}
	if err := ctx.Err(); err != nil {
		return errs.Wrap(err, "check context")
	}

	trimmedKey := strings.TrimSpace(key)
	if trimmedKey == "" {
		return errors.New("key is required")
	}

	now := c.now().UTC()
	row := model.CacheEntry{
		Key:       trimmedKey,
		Value:     value,
		UpdatedAt: now.Format(expiresLayout),
	}
	if ttl > 0 {
		row.ExpiresAt = now.Add(ttl).Format(expiresLayout)
	}

	if err := c.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "key"}},
		DoUpdates: clause.Assignments(map[string]any{
			"value":      row.Value,
			"expires_at": row.ExpiresAt,
			"updated_at": row.UpdatedAt,
		}),
	}).Create(&row).Error; err != nil {
		return errs.Wrap(err, "upsert cache key")
	}

	return nil
}

func (c *SQLiteCache) Delete(ctx context.Context, key string) error {
	if ctx == nil {
		return errors.New("context is required")
	}
	if err := ctx.Err(); err != nil {
		return errs.Wrap(err, "check context")
	}

	trimmedKey := strings.TrimSpace(key)
	if trimmedKey == "" {
		return errors.New("key is required")
	}

	if err := c.db.WithContext(ctx).Where("key = ?", trimmedKey).Delete(&model.CacheEntry{}).Error; err != nil {
		return errs.Wrap(err, "delete cache key")
	}
	return nil
}
