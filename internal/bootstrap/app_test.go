package bootstrap

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"reliability/internal/infrastructure/persistence/sqlite/model"
)

func newTestApp(t *testing.T) *App {
	t.Helper()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := "database:\n  dsn: " + filepath.Join(dir, "data", "reliability.sqlite") + "\ncache:\n  backend: none\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	app, err := New(context.Background(), path)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() {
		if err := app.Close(context.Background()); err != nil {
			t.Errorf("Close() error = %v", err)
		}
	})
	return app
}

func TestMigrateReportsReliabilityTables(t *testing.T) {
	app := newTestApp(t)
	ctx := context.Background()

	tables, err := app.Migrate(ctx)
	if err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	want := []string{"products_reliability_fields", "products_reliability", "products_reliability_logs", "reliability_cache"}
	if len(tables) != len(want) {
		t.Fatalf("Migrate() = %+v, want %d tables", tables, len(want))
	}
	for i, name := range want {
		if tables[i].Table != name || tables[i].Rows != 0 {
			t.Fatalf("tables[%d] = %+v, want empty %s", i, tables[i], name)
		}
	}

	if err := app.DB.Create(&model.CacheEntry{Key: "summary:x", Value: "{}", UpdatedAt: "2026-03-01T09:00:00.000000000Z"}).Error; err != nil {
		t.Fatalf("insert cache entry: %v", err)
	}
	again, err := app.Migrate(ctx)
	if err != nil {
		t.Fatalf("Migrate() second run error = %v", err)
	}
	if again[3].Rows != 1 {
		t.Fatalf("reliability_cache rows = %d, want 1", again[3].Rows)
	}
}

func TestMigrateRejectsCanceledContext(t *testing.T) {
	app := newTestApp(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := app.Migrate(ctx); err == nil {
		t.Fatal("Migrate() error = nil, want canceled context")
	}
}
