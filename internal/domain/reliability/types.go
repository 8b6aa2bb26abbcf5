// Package reliability holds the pure scoring rules: field validation, the weighted
// aggregate, the canonical snapshot encoding, the audit log checksum and the audit
// chain check. Nothing in here touches storage.
package reliability

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// SourceSystem is the default source recorded when a caller does not name one.
const SourceSystem = "system"

// TimestampLayout is the fixed-width UTC layout used for stored and hashed timestamps.
// Fixed width keeps lexical and chronological order identical.
const TimestampLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Fixed-point scales of the persisted columns.
const (
	ScoreScale   int32 = 2
	WeightScale  int32 = 3
	TotalScale   int32 = 4
	PercentScale int32 = 2
)

var (
	maxWeight       = decimal.NewFromInt(1)
	DefaultMaxScore = decimal.NewFromInt(1)
	hundred         = decimal.NewFromInt(100)
)

// EntityKey identifies one scored record.
type EntityKey struct {
	Model      string
	ForeignKey string
}

func (k EntityKey) String() string {
	return k.Model + ":" + k.ForeignKey
}

// Normalize trims whitespace and lowercases the UUID foreign key.
func (k EntityKey) Normalize() EntityKey {
	return EntityKey{
		Model:      strings.TrimSpace(k.Model),
		ForeignKey: strings.ToLower(strings.TrimSpace(k.ForeignKey)),
	}
}

// FieldValue is one field's contribution to an entity score.
type FieldValue struct {
	Field    string
	Score    decimal.Decimal
	Weight   decimal.Decimal
	MaxScore decimal.Decimal
}

// Actor identifies who triggered a transition.
type Actor struct {
	UserID  string
	Service string
}

func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

func ParseTimestamp(raw string) (time.Time, error) {
	return time.Parse(TimestampLayout, strings.TrimSpace(raw))
}

func FormatScore(d decimal.Decimal) string   { return d.StringFixed(ScoreScale) }
func FormatWeight(d decimal.Decimal) string  { return d.StringFixed(WeightScale) }
func FormatTotal(d decimal.Decimal) string   { return d.StringFixed(TotalScale) }
func FormatPercent(d decimal.Decimal) string { return d.StringFixed(PercentScale) }
