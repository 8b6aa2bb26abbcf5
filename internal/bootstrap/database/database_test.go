package database

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"reliability/internal/bootstrap/config"
)

func TestOpenCreatesDirectoryAndLimitsPool(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "nested", "state", "reliability.sqlite")

	db, err := Open(context.Background(), config.DatabaseConfig{
		Driver:        "sqlite",
		DSN:           dsn,
		MaxOpenConns:  1,
		BusyTimeoutMS: 1000,
	})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("DB() error = %v", err)
	}
	t.Cleanup(func() { _ = sqlDB.Close() })

	if _, err := os.Stat(filepath.Dir(dsn)); err != nil {
		t.Fatalf("sqlite directory not created: %v", err)
	}
	if got := sqlDB.Stats().MaxOpenConnections; got != 1 {
		t.Fatalf("MaxOpenConnections = %d, want 1", got)
	}
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	if _, err := Open(context.Background(), config.DatabaseConfig{Driver: "oracle", DSN: "x"}); err == nil {
		t.Fatalf("Open() expected error for unsupported driver")
	}
}

func TestIsMemoryDSN(t *testing.T) {
	cases := map[string]bool{
		":memory:":                   true,
		"file::memory:?cache=shared": true,
		"file:x?mode=memory":         true,
		"state/reliability.sqlite":   false,
	}
	for dsn, want := range cases {
		if got := isMemoryDSN(dsn); got != want {
			t.Fatalf("isMemoryDSN(%q) = %v, want %v", dsn, got, want)
		}
	}
}
