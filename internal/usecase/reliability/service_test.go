package reliability

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	gormsqlite "github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	domainreliability "reliability/internal/domain/reliability"
	"reliability/internal/infrastructure/persistence/sqlite/model"
	sqliterepo "reliability/internal/infrastructure/persistence/sqlite/repository"
	sqliteuow "reliability/internal/infrastructure/persistence/sqlite/uow"
	"reliability/internal/ports"
)

const (
	productModel = "Products"
	productA     = "0b6c1b1e-7d2a-4c8e-9f3e-2a1d5c6b7e80"
	productB     = "5f0e8d7c-1a2b-4c3d-8e9f-0a1b2c3d4e5f"
	productC     = "9a8b7c6d-5e4f-4a3b-9c2d-1e0f9a8b7c6d"
)

type testCache struct {
	mu   sync.Mutex
	data map[string]string
}

func newTestCache() *testCache {
	return &testCache{data: make(map[string]string)}
}

func (c *testCache) Get(_ context.Context, key string) (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.data[key]
	return v, ok, nil
}

func (c *testCache) Set(_ context.Context, key string, value string, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = value
	return nil
}

func (c *testCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, key)
	return nil
}

// tickClock advances one second per call so entries get distinct timestamps.
type tickClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTickClock() *tickClock {
	return &tickClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *tickClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []ports.LogAppendedEvent
}

func (p *recordingPublisher) PublishLogAppended(_ context.Context, event ports.LogAppendedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) Events() []ports.LogAppendedEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]ports.LogAppendedEvent(nil), p.events...)
}

type recordingMetrics struct {
	mu        sync.Mutex
	outcomes  map[string]int
	appended  int
	checksums map[bool]int
	conflicts int
}

func newRecordingMetrics() *recordingMetrics {
	return &recordingMetrics{outcomes: make(map[string]int), checksums: make(map[bool]int)}
}

func (m *recordingMetrics) ObserveRecompute(_ string, outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outcomes[outcome]++
}

func (m *recordingMetrics) ObserveLogAppended(string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.appended++
}

func (m *recordingMetrics) ObserveChecksum(valid bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checksums[valid]++
}

func (m *recordingMetrics) ObserveConflict(string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.conflicts++
}

type staticProfile struct {
	profile domainreliability.Profile
}

func (p staticProfile) Current() domainreliability.Profile { return p.profile }

// testLocker mirrors the in-process keyed locker.
type testLocker struct {
	mu   sync.Mutex
	held map[string]struct{}
}

func newTestLocker() *testLocker {
	return &testLocker{held: make(map[string]struct{})}
}

func (l *testLocker) TryLock(key string) (func(), bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, busy := l.held[key]; busy {
		return nil, false
	}
	l.held[key] = struct{}{}
	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.held, key)
			l.mu.Unlock()
		})
	}, true
}

type testEnv struct {
	service   *Service
	repo      *sqliterepo.ReliabilityRepository
	db        *gorm.DB
	cache     *testCache
	publisher *recordingPublisher
	metrics   *recordingMetrics
}

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := filepath.Join(t.TempDir(), "reliability.sqlite")
	db, err := gorm.Open(gormsqlite.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("get sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() {
		_ = sqlDB.Close()
	})
	if err := db.AutoMigrate(model.All()...); err != nil {
		t.Fatalf("auto migrate: %v", err)
	}
	return db
}

func setupService(t *testing.T, mutate func(*Options, *ports.ReliabilityRepository)) *testEnv {
	t.Helper()

	db := openTestDB(t)
	repo := sqliterepo.NewReliabilityRepository(db)
	env := &testEnv{
		repo:      repo,
		db:        db,
		cache:     newTestCache(),
		publisher: &recordingPublisher{},
		metrics:   newRecordingMetrics(),
	}

	opts := Options{
		Cache:                env.cache,
		Clock:                newTickClock(),
		Events:               env.publisher,
		Metrics:              env.metrics,
		SignificantThreshold: decimal.RequireFromString("0.1"),
	}
	var portRepo ports.ReliabilityRepository = repo
	if mutate != nil {
		mutate(&opts, &portRepo)
	}
	env.service = NewService(portRepo, sqliteuow.NewUnitOfWork(db), newTestLocker(), opts)
	return env
}

func ptr(value string) *string {
	return &value
}

func fixtureFields() []FieldScoreInput {
	return []FieldScoreInput{
		{Field: "title", Score: "0.95", Weight: ptr("0.300")},
		{Field: "description", Score: "0.80", Weight: ptr("0.250")},
		{Field: "manufacturer", Score: "0.75", Weight: ptr("0.200")},
	}
}

func mustScore(t *testing.T, svc *Service, foreignKey string, fields []FieldScoreInput) RecomputeResult {
	t.Helper()
	result, err := svc.Score(context.Background(), ScoreInput{
		Model:      productModel,
		ForeignKey: foreignKey,
		Fields:     fields,
		Source:     "import",
		Actor:      domainreliability.Actor{UserID: "user-7"},
	})
	if err != nil {
		t.Fatalf("Score() error = %v", err)
	}
	return result
}

func countLogs(t *testing.T, db *gorm.DB, foreignKey string) int64 {
	t.Helper()
	var count int64
	if err := db.Model(&model.AuditLog{}).Where("foreign_key = ?", foreignKey).Count(&count).Error; err != nil {
		t.Fatalf("count audit logs: %v", err)
	}
	return count
}
