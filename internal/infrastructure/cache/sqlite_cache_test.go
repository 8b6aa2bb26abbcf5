package cache

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	gormsqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"reliability/internal/infrastructure/persistence/sqlite/model"
)

type countingObserver struct {
	hits   int
	misses int
}

func (o *countingObserver) ObserveCacheHit(string)  { o.hits++ }
func (o *countingObserver) ObserveCacheMiss(string) { o.misses++ }

func setupSQLiteCache(t *testing.T, observer Observer) *SQLiteCache {
	t.Helper()

	db, err := gorm.Open(gormsqlite.Open(filepath.Join(t.TempDir(), "cache.sqlite")), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("get sql db: %v", err)
	}
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := db.AutoMigrate(&model.CacheEntry{}); err != nil {
		t.Fatalf("auto migrate reliability_cache: %v", err)
	}

	return NewSQLiteCache(db, observer)
}

func TestSQLiteCacheSetGetDelete(t *testing.T) {
	observer := &countingObserver{}
	cache := setupSQLiteCache(t, observer)
	ctx := context.Background()
	key := "summary:Products:0b6c1b1e-7d2a-4c8e-9f3e-2a1d5c6b7e80"

	if err := cache.Set(ctx, key, `{"total_score":"0.8467"}`, 0); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	value, found, err := cache.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if !found || value != `{"total_score":"0.8467"}` {
		t.Fatalf("Get() = %q, found=%v", value, found)
	}

	if err := cache.Set(ctx, key, `{"total_score":"0.9000"}`, 0); err != nil {
		t.Fatalf("Set(update) error = %v", err)
	}
	value, found, err = cache.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if !found || value != `{"total_score":"0.9000"}` {
		t.Fatalf("Get() after update = %q, found=%v", value, found)
	}

	if err := cache.Delete(ctx, key); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	_, found, err = cache.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get() after delete error = %v", err)
	}
	if found {
		t.Fatalf("Get() expected found=false after delete")
	}
	if observer.hits != 2 || observer.misses != 1 {
		t.Fatalf("observer hits=%d misses=%d", observer.hits, observer.misses)
	}
}

func TestSQLiteCacheExpiresEntries(t *testing.T) {
	cache := setupSQLiteCache(t, nil)
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	cache.now = func() time.Time { return now }

	if err := cache.Set(ctx, "k", "v", time.Minute); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if _, found, _ := cache.Get(ctx, "k"); !found {
		t.Fatalf("Get() before expiry found=false")
	}

	now = now.Add(2 * time.Minute)
	if _, found, err := cache.Get(ctx, "k"); err != nil || found {
		t.Fatalf("Get() after expiry found=%v err=%v", found, err)
	}
}

func TestSQLiteCacheRejectsEmptyKey(t *testing.T) {
	cache := setupSQLiteCache(t, nil)
	ctx := context.Background()

	if err := cache.Set(ctx, "", "v", 0); err == nil {
		t.Fatalf("Set() expected error for empty key")
	}
	if _, _, err := cache.Get(ctx, ""); err == nil {
		t.Fatalf("Get() expected error for empty key")
	}
	if err := cache.Delete(ctx, ""); err == nil {
		t.Fatalf("Delete() expected error for empty key")
	}
}
