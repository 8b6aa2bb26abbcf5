package reliability

import (
	"context"
	"errors"
	"testing"

	domainreliability "reliability/internal/domain/reliability"
)

func TestRecomputeModel(t *testing.T) {
	env := setupService(t, nil)
	ctx := context.Background()

	for _, key := range []string{productA, productB, productC} {
		if _, err := env.service.SetFieldScore(ctx, SetFieldScoreInput{
			Model: productModel, ForeignKey: key,
			FieldScoreInput: FieldScoreInput{Field: "title", Score: "0.60", Weight: ptr("0.500")},
		}); err != nil {
			t.Fatalf("SetFieldScore(%s) error = %v", key, err)
		}
	}

	first, err := env.service.RecomputeModel(ctx, RecomputeModelInput{Model: productModel, Concurrency: 2, Source: "batch"})
	if err != nil {
		t.Fatalf("RecomputeModel() error = %v", err)
	}
	if first.Total != 3 || first.Changed != 3 || first.Failed != 0 {
		t.Fatalf("RecomputeModel() = %+v", first)
	}

	second, err := env.service.RecomputeModel(ctx, RecomputeModelInput{Model: productModel})
	if err != nil {
		t.Fatalf("RecomputeModel(again) error = %v", err)
	}
	if second.Total != 3 || second.Unchanged != 3 || second.Changed != 0 {
		t.Fatalf("RecomputeModel(again) = %+v", second)
	}

	summaries, err := env.service.ListSummaries(ctx, productModel, 10, 0)
	if err != nil {
		t.Fatalf("ListSummaries() error = %v", err)
	}
	if len(summaries) != 3 {
		t.Fatalf("ListSummaries() len = %d, want 3", len(summaries))
	}
	for _, summary := range summaries {
		if summary.LastSource != "batch" || domainreliability.FormatTotal(summary.TotalScore) != "0.6000" {
			t.Fatalf("summary = %+v", summary)
		}
	}
}

func TestRecomputeModelRejectsInput(t *testing.T) {
	env := setupService(t, nil)
	ctx := context.Background()

	if _, err := env.service.RecomputeModel(ctx, RecomputeModelInput{Model: " "}); !errors.Is(err, domainreliability.ErrValidation) {
		t.Fatalf("RecomputeModel(empty) error = %v, want ErrValidation", err)
	}
	if _, err := env.service.RecomputeModel(ctx, RecomputeModelInput{Model: productModel, Concurrency: -1}); !errors.Is(err, domainreliability.ErrValidation) {
		t.Fatalf("RecomputeModel(negative) error = %v, want ErrValidation", err)
	}

	empty, err := env.service.RecomputeModel(ctx, RecomputeModelInput{Model: productModel})
	if err != nil {
		t.Fatalf("RecomputeModel(no entities) error = %v", err)
	}
	if empty.Total != 0 {
		t.Fatalf("RecomputeModel(no entities) = %+v", empty)
	}
}

func TestRecomputeModelCanceled(t *testing.T) {
	env := setupService(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := env.service.RecomputeModel(ctx, RecomputeModelInput{Model: productModel}); !errors.Is(err, context.Canceled) {
		t.Fatalf("RecomputeModel() error = %v, want context.Canceled", err)
	}
}

func TestRunBatchCountsEntityFailures(t *testing.T) {
	env := setupService(t, nil)
	boom := errors.New("boom")

	result, err := env.service.runBatch(context.Background(), productModel, []string{productC, productA, productB}, 3,
		func(_ context.Context, foreignKey string) (bool, error) {
			switch foreignKey {
			case productA:
				return true, nil
			case productB:
				return false, nil
			default:
				return false, boom
			}
		})
	if err != nil {
		t.Fatalf("runBatch() error = %v", err)
	}
	if result.Changed != 1 || result.Unchanged != 1 || result.Failed != 1 {
		t.Fatalf("runBatch() = %+v", result)
	}
	if len(result.Failures) != 1 || result.Failures[0].ForeignKey != productC || result.Failures[0].Err != "boom" {
		t.Fatalf("runBatch() failures = %+v", result.Failures)
	}
}

func TestBumpModelScoringVersion(t *testing.T) {
	env := setupService(t, nil)
	ctx := context.Background()
	mustScore(t, env.service, productA, fixtureFields())
	mustScore(t, env.service, productB, fixtureFields())
	if _, err := env.service.BumpScoringVersion(ctx, BumpScoringVersionInput{Model: productModel, ForeignKey: productB, Version: "v2"}); err != nil {
		t.Fatalf("BumpScoringVersion() error = %v", err)
	}

	result, err := env.service.BumpModelScoringVersion(ctx, BumpScoringVersionInput{Model: productModel, Version: "v2"})
	if err != nil {
		t.Fatalf("BumpModelScoringVersion() error = %v", err)
	}
	if result.Total != 2 || result.Changed != 1 || result.Unchanged != 1 {
		t.Fatalf("BumpModelScoringVersion() = %+v", result)
	}

	summary, err := env.service.GetSummary(ctx, productModel, productA)
	if err != nil {
		t.Fatalf("GetSummary() error = %v", err)
	}
	if summary.ScoringVersion != "v2" {
		t.Fatalf("ScoringVersion = %s, want v2", summary.ScoringVersion)
	}
}
