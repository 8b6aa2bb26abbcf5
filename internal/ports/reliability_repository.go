package ports

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrSummaryNotFound  = errors.New("reliability summary not found")
	ErrLogNotFound      = errors.New("reliability log not found")
	ErrRevisionConflict = errors.New("reliability summary revision conflict")
	// ErrDuplicateKey reports a unique index violation, e.g. two writers taking the
	// same log sequence or creating the same summary.
	ErrDuplicateKey = errors.New("reliability duplicate key")
)

type FieldScoreRecord struct {
	Model      string
	ForeignKey string
	Field      string
	Score      decimal.Decimal
	Weight     decimal.Decimal
	MaxScore   decimal.Decimal
	Notes      *string
	Created    time.Time
	Modified   time.Time
}

type FieldScoreUpsert struct {
	Model      string
	ForeignKey string
	Field      string
	Score      decimal.Decimal
	Weight     decimal.Decimal
	MaxScore   decimal.Decimal
	Notes      *string
	At         time.Time
}

type SummaryRecord struct {
	ID                  string
	Model               string
	ForeignKey          string
	TotalScore          decimal.Decimal
	CompletenessPercent decimal.Decimal
	FieldScoresJSON     string
	ScoringVersion      string
	LastSource          string
	LastCalculated      *time.Time
	UpdatedByUserID     *string
	UpdatedByService    *string
	Revision            int64
	Created             time.Time
	Modified            time.Time
}

type SummaryFilter struct {
	Model  string
	Limit  int
	Offset int
}

type AuditLogRecord struct {
	ID                  string
	Model               string
	ForeignKey          string
	Sequence            int64
	ScoringVersion      string
	FromTotalScore      *decimal.Decimal
	ToTotalScore        decimal.Decimal
	FromFieldScoresJSON *string
	ToFieldScoresJSON   string
	Source              string
	ActorUserID         *string
	ActorService        *string
	Message             *string
	ChecksumSHA256      string
	Created             time.Time
}

type AuditLogFilter struct {
	Model      string
	ForeignKey string
	// OnlyTransitions skips first entries, which have no from total.
	OnlyTransitions bool
	NewestFirst     bool
	Limit           int
	Offset          int
}

type FieldScoreRepository interface {
	UpsertFieldScore(ctx context.Context, input FieldScoreUpsert) (FieldScoreRecord, error)
	ListFieldScores(ctx context.Context, model string, foreignKey string) ([]FieldScoreRecord, error)
	ListFieldValues(ctx context.Context, model string, field string) ([]decimal.Decimal, error)
	ListScoredEntities(ctx context.Context, model string) ([]string, error)
}

type SummaryRepository interface {
	GetSummary(ctx context.Context, model string, foreignKey string) (SummaryRecord, error)
	CreateSummary(ctx context.Context, summary SummaryRecord) error
	// UpdateSummary writes summary only when the stored revision equals expectedRevision.
	UpdateSummary(ctx context.Context, summary SummaryRecord, expectedRevision int64) error
	ListSummaries(ctx context.Context, filter SummaryFilter) ([]SummaryRecord, error)
}

type AuditLogRepository interface {
	InsertLog(ctx context.Context, entry AuditLogRecord) error
	GetLog(ctx context.Context, model string, foreignKey string, logID string) (AuditLogRecord, error)
	LatestLog(ctx context.Context, model string, foreignKey string) (AuditLogRecord, error)
	ListLogs(ctx context.Context, filter AuditLogFilter) ([]AuditLogRecord, error)
}

type ReliabilityRepository interface {
	FieldScoreRepository
	SummaryRepository
	AuditLogRepository
}
