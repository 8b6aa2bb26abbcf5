package uow

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	gormsqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"reliability/internal/infrastructure/persistence/sqlite/model"
	"reliability/internal/ports"
)

func setupUnitOfWork(t *testing.T) (*UnitOfWork, *gorm.DB) {
	t.Helper()

	db, err := gorm.Open(gormsqlite.Open(filepath.Join(t.TempDir(), "uow.sqlite")), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("get sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	if err := db.AutoMigrate(&model.CacheEntry{}); err != nil {
		t.Fatalf("auto migrate: %v", err)
	}
	return NewUnitOfWork(db), db
}

func insertEntry(ctx context.Context, key string) error {
	tx, _ := ports.TxFromContext(ctx).(*gorm.DB)
	return tx.Create(&model.CacheEntry{Key: key, Value: "v", UpdatedAt: "now"}).Error
}

func TestWithTxRollsBackOnError(t *testing.T) {
	unitOfWork, db := setupUnitOfWork(t)
	boom := errors.New("boom")

	err := unitOfWork.WithTx(context.Background(), func(ctx context.Context) error {
		if err := insertEntry(ctx, "rolled-back"); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("WithTx() error = %v, want boom", err)
	}

	var count int64
	if err := db.Model(&model.CacheEntry{}).Count(&count).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 0 {
		t.Fatalf("rows after rollback = %d, want 0", count)
	}
}

func TestWithTxJoinsOuterTransaction(t *testing.T) {
	unitOfWork, db := setupUnitOfWork(t)

	err := unitOfWork.WithTx(context.Background(), func(outer context.Context) error {
		outerTx := ports.TxFromContext(outer)
		return unitOfWork.WithTx(outer, func(inner context.Context) error {
			if ports.TxFromContext(inner) != outerTx {
				t.Fatalf("inner WithTx opened a new transaction")
			}
			return insertEntry(inner, "joined")
		})
	})
	if err != nil {
		t.Fatalf("WithTx() error = %v", err)
	}

	var count int64
	if err := db.Model(&model.CacheEntry{}).Where("key = ?", "joined").Count(&count).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Fatalf("rows after commit = %d, want 1", count)
	}
}
