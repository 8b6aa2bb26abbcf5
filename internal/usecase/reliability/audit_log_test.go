package reliability

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	domainreliability "reliability/internal/domain/reliability"
	"reliability/internal/infrastructure/persistence/sqlite/model"
	"reliability/internal/ports"
)

func TestVerifyChecksumDetectsTampering(t *testing.T) {
	env := setupService(t, nil)
	ctx := context.Background()
	scored := mustScore(t, env.service, productA, fixtureFields())

	result, err := env.service.VerifyChecksum(ctx, VerifyChecksumInput{Model: productModel, ForeignKey: productA, LogID: scored.LogID})
	if err != nil {
		t.Fatalf("VerifyChecksum() error = %v", err)
	}
	if !result.Valid || result.Stored != result.Computed || len(result.Stored) != 64 {
		t.Fatalf("VerifyChecksum() = %+v", result)
	}

	if err := env.db.Model(&model.AuditLog{}).Where("id = ?", scored.LogID).Update("to_total_score", "0.9999").Error; err != nil {
		t.Fatalf("tamper audit log: %v", err)
	}

	tampered, err := env.service.VerifyChecksum(ctx, VerifyChecksumInput{Model: productModel, ForeignKey: productA, LogID: scored.LogID})
	if err != nil {
		t.Fatalf("VerifyChecksum(tampered) error = %v", err)
	}
	if tampered.Valid || tampered.Stored == tampered.Computed {
		t.Fatalf("VerifyChecksum(tampered) = %+v, want invalid", tampered)
	}
	if env.metrics.checksums[true] != 1 || env.metrics.checksums[false] != 1 {
		t.Fatalf("checksum metrics = %+v", env.metrics.checksums)
	}

	report, err := env.service.VerifyChain(ctx, productModel, productA)
	if err != nil {
		t.Fatalf("VerifyChain() error = %v", err)
	}
	if report.Valid || len(report.Breaks) != 1 || report.Breaks[0].Kind != domainreliability.BreakChecksumMismatch {
		t.Fatalf("VerifyChain() = %+v", report)
	}
}

func TestVerifyChecksumUnknownLog(t *testing.T) {
	env := setupService(t, nil)

	_, err := env.service.VerifyChecksum(context.Background(), VerifyChecksumInput{
		Model: productModel, ForeignKey: productA, LogID: "missing",
	})
	if !errors.Is(err, domainreliability.ErrNotFound) {
		t.Fatalf("VerifyChecksum() error = %v, want ErrNotFound", err)
	}
	if _, err := env.service.VerifyChain(context.Background(), productModel, productA); !errors.Is(err, domainreliability.ErrNotFound) {
		t.Fatalf("VerifyChain() error = %v, want ErrNotFound", err)
	}
}

func TestAppendLogChainsFromPrevious(t *testing.T) {
	env := setupService(t, nil)
	ctx := context.Background()
	mustScore(t, env.service, productA, fixtureFields())

	entry, err := env.service.AppendLog(ctx, AppendLogInput{
		Model:             productModel,
		ForeignKey:        productA,
		ScoringVersion:    "v1",
		ToTotalScore:      decimal.RequireFromString("0.5"),
		ToFieldScoresJSON: domainreliability.EmptySnapshot,
		Source:            "manual",
		Message:           "reset after audit",
	})
	if err != nil {
		t.Fatalf("AppendLog() error = %v", err)
	}
	if entry.Sequence != 2 || entry.FromTotalScore == nil || domainreliability.FormatTotal(*entry.FromTotalScore) != "0.8467" {
		t.Fatalf("AppendLog() = %+v", entry)
	}
	if entry.Message == nil || *entry.Message != "reset after audit" {
		t.Fatalf("AppendLog() message = %v", entry.Message)
	}

	result, err := env.service.VerifyChecksum(ctx, VerifyChecksumInput{Model: productModel, ForeignKey: productA, LogID: entry.ID})
	if err != nil {
		t.Fatalf("VerifyChecksum() error = %v", err)
	}
	if !result.Valid {
		t.Fatalf("VerifyChecksum() = %+v, want valid", result)
	}

	rejected := []struct {
		name  string
		input AppendLogInput
	}{
		{name: "bad snapshot", input: AppendLogInput{ToFieldScoresJSON: "not json", ToTotalScore: decimal.RequireFromString("0.5")}},
		{name: "blank snapshot", input: AppendLogInput{ToFieldScoresJSON: "  ", ToTotalScore: decimal.RequireFromString("0.5")}},
		{name: "negative total", input: AppendLogInput{ToFieldScoresJSON: domainreliability.EmptySnapshot, ToTotalScore: decimal.RequireFromString("-0.1")}},
		{name: "total above one", input: AppendLogInput{ToFieldScoresJSON: domainreliability.EmptySnapshot, ToTotalScore: decimal.RequireFromString("1.2")}},
	}
	for _, tt := range rejected {
		input := tt.input
		input.Model, input.ForeignKey, input.ScoringVersion = productModel, productA, "v1"
		if _, err := env.service.AppendLog(ctx, input); !errors.Is(err, domainreliability.ErrValidation) {
			t.Fatalf("AppendLog(%s) error = %v, want ErrValidation", tt.name, err)
		}
	}
	if got := countLogs(t, env.db, productA); got != 2 {
		t.Fatalf("audit logs = %d, want 2 after rejected appends", got)
	}
}

func TestWritesShareEntityAcrossUUIDSpellings(t *testing.T) {
	env := setupService(t, nil)
	ctx := context.Background()
	mustScore(t, env.service, productA, fixtureFields())

	braced := "{" + strings.ToUpper(productA) + "}"
	result, err := env.service.Score(ctx, ScoreInput{
		Model:      productModel,
		ForeignKey: braced,
		Fields:     []FieldScoreInput{{Field: "title", Score: "0.10", Weight: ptr("0.300")}},
	})
	if err != nil {
		t.Fatalf("Score(%s) error = %v", braced, err)
	}
	if result.Summary.ForeignKey != productA || result.Summary.Revision != 2 {
		t.Fatalf("Score(%s) summary = %s revision %d, want %s revision 2", braced, result.Summary.ForeignKey, result.Summary.Revision, productA)
	}
	if got := countLogs(t, env.db, productA); got != 2 {
		t.Fatalf("audit logs = %d, want 2 on one entity", got)
	}
}

func TestFindRecentLogsNewestFirst(t *testing.T) {
	env := setupService(t, nil)
	mustScore(t, env.service, productA, fixtureFields())
	mustScore(t, env.service, productA, []FieldScoreInput{{Field: "title", Score: "0.10", Weight: ptr("0.300")}})
	mustScore(t, env.service, productA, []FieldScoreInput{{Field: "title", Score: "0.20", Weight: ptr("0.300")}})

	logs, err := env.service.FindRecentLogs(context.Background(), productModel, productA, 2)
	if err != nil {
		t.Fatalf("FindRecentLogs() error = %v", err)
	}
	if len(logs) != 2 || logs[0].Sequence != 3 || logs[1].Sequence != 2 {
		t.Fatalf("FindRecentLogs() sequences = %v", sequences(logs))
	}
}

func TestFindSignificantChanges(t *testing.T) {
	env := setupService(t, nil)
	ctx := context.Background()

	// A: 0.8467 -> 0.5067, delta 0.34
	mustScore(t, env.service, productA, fixtureFields())
	mustScore(t, env.service, productA, []FieldScoreInput{{Field: "title", Score: "0.10", Weight: ptr("0.300")}})
	// B: 0.8467 -> 0.8667, delta 0.02
	mustScore(t, env.service, productB, fixtureFields())
	mustScore(t, env.service, productB, []FieldScoreInput{{Field: "description", Score: "0.86", Weight: ptr("0.250")}})

	changes, err := env.service.FindSignificantChanges(ctx, SignificantChangesInput{Model: productModel})
	if err != nil {
		t.Fatalf("FindSignificantChanges() error = %v", err)
	}
	if len(changes) != 1 || changes[0].ForeignKey != productA || changes[0].Sequence != 2 {
		t.Fatalf("FindSignificantChanges() = %+v", changes)
	}

	all, err := env.service.FindSignificantChanges(ctx, SignificantChangesInput{Model: productModel, Threshold: "0.01"})
	if err != nil {
		t.Fatalf("FindSignificantChanges(0.01) error = %v", err)
	}
	if len(all) != 2 || all[0].ForeignKey != productB {
		t.Fatalf("FindSignificantChanges(0.01) = %+v", all)
	}

	if _, err := env.service.FindSignificantChanges(ctx, SignificantChangesInput{Model: productModel, Threshold: "-0.1"}); !errors.Is(err, domainreliability.ErrValidation) {
		t.Fatalf("FindSignificantChanges(negative) error = %v, want ErrValidation", err)
	}
}

func TestGetFieldStats(t *testing.T) {
	env := setupService(t, nil)
	ctx := context.Background()
	mustScore(t, env.service, productA, []FieldScoreInput{{Field: "title", Score: "0.50", Weight: ptr("0.300")}})
	mustScore(t, env.service, productB, []FieldScoreInput{{Field: "title", Score: "1.00", Weight: ptr("0.300")}})
	mustScore(t, env.service, productC, []FieldScoreInput{{Field: "title", Score: "1.00", Weight: ptr("0.300")}})

	stats, err := env.service.GetFieldStats(ctx, productModel, "title")
	if err != nil {
		t.Fatalf("GetFieldStats() error = %v", err)
	}
	if stats.Count != 3 || domainreliability.FormatTotal(stats.Avg) != "0.8333" {
		t.Fatalf("GetFieldStats() = %+v", stats)
	}
	if domainreliability.FormatScore(stats.Min) != "0.50" || domainreliability.FormatScore(stats.Max) != "1.00" {
		t.Fatalf("GetFieldStats() min/max = %s/%s", stats.Min, stats.Max)
	}

	empty, err := env.service.GetFieldStats(ctx, productModel, "ean")
	if err != nil {
		t.Fatalf("GetFieldStats(ean) error = %v", err)
	}
	if empty.Count != 0 || !empty.Avg.IsZero() {
		t.Fatalf("GetFieldStats(ean) = %+v", empty)
	}
}

func sequences(logs []ports.AuditLogRecord) []int64 {
	out := make([]int64, 0, len(logs))
	for _, entry := range logs {
		out = append(out, entry.Sequence)
	}
	return out
}
