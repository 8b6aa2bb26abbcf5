package ports

import (
	"context"
	"time"
)

type Clock interface {
	Now() time.Time
}

// KeyLocker grants a non-blocking exclusive lock per key.
// TryLock returns ok=false immediately when the key is held.
type KeyLocker interface {
	TryLock(key string) (unlock func(), ok bool)
}

// LogAppendedEvent is published after an audit log entry is committed.
type LogAppendedEvent struct {
	LogID          string  `json:"log_id"`
	Model          string  `json:"model"`
	ForeignKey     string  `json:"foreign_key"`
	Sequence       int64   `json:"sequence"`
	ScoringVersion string  `json:"scoring_version"`
	FromTotalScore *string `json:"from_total_score"`
	ToTotalScore   string  `json:"to_total_score"`
	ChecksumSHA256 string  `json:"checksum_sha256"`
	Created        string  `json:"created"`
}

type EventPublisher interface {
	PublishLogAppended(ctx context.Context, event LogAppendedEvent) error
}

// Metrics records service outcomes. Implementations must be safe for concurrent use.
type Metrics interface {
	ObserveRecompute(model string, outcome string)
	ObserveLogAppended(model string)
	ObserveChecksum(valid bool)
	ObserveConflict(operation string)
}
