package reliability

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	domainreliability "reliability/internal/domain/reliability"
	"reliability/internal/ports"
)

const (
	defaultScoringVersion = "v1"
	defaultSummaryTTL     = 5 * time.Minute
	defaultRecentLimit    = 20
	maxListLimit          = 1000
)

// ProfileProvider serves the current scoring profile.
type ProfileProvider interface {
	Current() domainreliability.Profile
}

type Service struct {
	repo     ports.ReliabilityRepository
	uow      ports.UnitOfWork
	locker   ports.KeyLocker
	cache    ports.Cache
	clock    ports.Clock
	profiles ProfileProvider
	events   ports.EventPublisher
	metrics  ports.Metrics
	newID    func() string

	defaultVersion       string
	significantThreshold decimal.Decimal
	batchConcurrency     int
	summaryTTL           time.Duration

	// cacheGeneration moves on every summary invalidation; guarded by cacheMu.
	cacheMu         sync.Mutex
	cacheGeneration uint64
}

// Options carries the optional collaborators of Service. Nil values fall back to
// no cache, no events, no metrics, the wall clock and an empty profile.
type Options struct {
	Cache                 ports.Cache
	Clock                 ports.Clock
	Profiles              ProfileProvider
	Events                ports.EventPublisher
	Metrics               ports.Metrics
	NewID                 func() string
	DefaultScoringVersion string
	SignificantThreshold  decimal.Decimal
	BatchConcurrency      int
	SummaryTTL            time.Duration
}

// NewService wires the reliability usecases. The locker guards per-entity writes.
func NewService(repo ports.ReliabilityRepository, uow ports.UnitOfWork, locker ports.KeyLocker, opts Options) *Service {
	service := &Service{
		repo:                 repo,
		uow:                  uow,
		locker:               locker,
		cache:                opts.Cache,
		clock:                opts.Clock,
		profiles:             opts.Profiles,
		events:               opts.Events,
		metrics:              opts.Metrics,
		newID:                opts.NewID,
		defaultVersion:       strings.TrimSpace(opts.DefaultScoringVersion),
		significantThreshold: opts.SignificantThreshold,
		batchConcurrency:     opts.BatchConcurrency,
		summaryTTL:           opts.SummaryTTL,
	}
	if service.clock == nil {
		service.clock = utcClock{}
	}
	if service.newID == nil {
		service.newID = uuid.NewString
	}
	if service.defaultVersion == "" {
		service.defaultVersion = defaultScoringVersion
	}
	if service.batchConcurrency <= 0 {
		service.batchConcurrency = 4
	}
	if service.summaryTTL <= 0 {
		service.summaryTTL = defaultSummaryTTL
	}
	return service
}

type FieldScoreInput struct {
	Field string
	Score string
	// Weight and MaxScore fall back to the profile defaults, then 0.000 and 1.00.
	Weight   *string
	MaxScore *string
	Notes    *string
}

type SetFieldScoreInput struct {
	Model      string
	ForeignKey string
	FieldScoreInput
}

type ScoreInput struct {
	Model      string
	ForeignKey string
	Fields     []FieldScoreInput
	Source     string
	Actor      domainreliability.Actor
	Message    string
}

type RecomputeInput struct {
	Model      string
	ForeignKey string
	Source     string
	Actor      domainreliability.Actor
	Message    string
}

type RecomputeResult struct {
	Summary           ports.SummaryRecord
	Changed           bool
	LogID             string
	Transition        domainreliability.Transition
	WeightSum         decimal.Decimal
	WeightSumExceeded bool
}

type BumpScoringVersionInput struct {
	Model      string
	ForeignKey string
	Version    string
	Source     string
	Actor      domainreliability.Actor
	Message    string
}

type RecomputeModelInput struct {
	Model       string
	Concurrency int
	Source      string
	Actor       domainreliability.Actor
	Message     string
}

type EntityFailure struct {
	ForeignKey string
	Err        string
}

type BatchResult struct {
	Model     string
	Total     int
	Changed   int
	Unchanged int
	Failed    int
	Failures  []EntityFailure
}

type AppendLogInput struct {
	Model             string
	ForeignKey        string
	ScoringVersion    string
	ToTotalScore      decimal.Decimal
	ToFieldScoresJSON string
	Source            string
	Actor             domainreliability.Actor
	Message           string
}

type VerifyChecksumInput struct {
	Model      string
	ForeignKey string
	LogID      string
}

type ChecksumResult struct {
	LogID    string
	Valid    bool
	Stored   string
	Computed string
}

type SignificantChangesInput struct {
	Model string
	// Threshold is a decimal string; empty uses the configured default.
	Threshold string
	Limit     int
}

type ChainReport struct {
	Model      string
	ForeignKey string
	Entries    int
	Valid      bool
	Breaks     []domainreliability.ChainBreak
}

type FieldStatsResult struct {
	Model string
	Field string
	domainreliability.FieldStats
}

type LogQuery struct {
	Model      string
	ForeignKey string
	Limit      int
	Offset     int
}

type utcClock struct{}

func (utcClock) Now() time.Time { return time.Now().UTC() }

func (s *Service) checkReady(ctx context.Context) error {
	if ctx == nil {
		return errors.New("context is required")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.repo == nil {
		return errors.New("reliability repository is required")
	}
	if s.uow == nil {
		return errors.New("reliability unit of work is required")
	}
	return nil
}

func (s *Service) profile() domainreliability.Profile {
	if s.profiles == nil {
		return domainreliability.Profile{}
	}
	return s.profiles.Current()
}

// scoringVersionForNewEntities prefers the profile's default over the configured one.
func (s *Service) scoringVersionForNewEntities() string {
	if version := s.profile().DefaultScoringVersion; version != "" {
		return version
	}
	return s.defaultVersion
}

func (s *Service) now() time.Time {
	return s.clock.Now().UTC()
}

func normalizeSource(source string) string {
	if trimmed := strings.TrimSpace(source); trimmed != "" {
		return trimmed
	}
	return domainreliability.SourceSystem
}

func optionalString(value string) *string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func derefString(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}

func clampLimit(limit int, fallback int) int {
	if limit <= 0 {
		return fallback
	}
	if limit > maxListLimit {
		return maxListLimit
	}
	return limit
}
