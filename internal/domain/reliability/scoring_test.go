package reliability

import (
	"testing"

	"github.com/shopspring/decimal"
)

func dec(t *testing.T, raw string) decimal.Decimal {
	t.Helper()
	value, err := decimal.NewFromString(raw)
	if err != nil {
		t.Fatalf("decimal.NewFromString(%q) error = %v", raw, err)
	}
	return value
}

func fixtureValues(t *testing.T) []FieldValue {
	t.Helper()
	return []FieldValue{
		{Field: "title", Score: dec(t, "0.95"), Weight: dec(t, "0.300"), MaxScore: DefaultMaxScore},
		{Field: "description", Score: dec(t, "0.80"), Weight: dec(t, "0.250"), MaxScore: DefaultMaxScore},
		{Field: "manufacturer", Score: dec(t, "0.75"), Weight: dec(t, "0.200"), MaxScore: DefaultMaxScore},
	}
}

func TestComputeAggregateWeightedMean(t *testing.T) {
	got := ComputeAggregate(fixtureValues(t), nil)

	if FormatTotal(got.TotalScore) != "0.8467" {
		t.Fatalf("TotalScore = %s, want 0.8467", FormatTotal(got.TotalScore))
	}
	if FormatWeight(got.WeightSum) != "0.750" {
		t.Fatalf("WeightSum = %s, want 0.750", FormatWeight(got.WeightSum))
	}
	if got.WeightSumExceeded {
		t.Fatalf("WeightSumExceeded = true, want false")
	}
	if FormatPercent(got.CompletenessPercent) != "100.00" {
		t.Fatalf("CompletenessPercent = %s, want 100.00", FormatPercent(got.CompletenessPercent))
	}
}

func TestComputeAggregateZeroWeight(t *testing.T) {
	values := []FieldValue{
		{Field: "title", Score: dec(t, "0.90"), Weight: decimal.Zero, MaxScore: DefaultMaxScore},
		{Field: "ean", Score: dec(t, "0.40"), Weight: decimal.Zero, MaxScore: DefaultMaxScore},
	}

	got := ComputeAggregate(values, nil)
	if !got.TotalScore.IsZero() {
		t.Fatalf("TotalScore = %s, want 0", got.TotalScore)
	}
	if FormatTotal(got.TotalScore) != "0.0000" {
		t.Fatalf("FormatTotal() = %s", FormatTotal(got.TotalScore))
	}
}

func TestComputeAggregateEmpty(t *testing.T) {
	got := ComputeAggregate(nil, nil)
	if !got.TotalScore.IsZero() || !got.CompletenessPercent.IsZero() || got.KnownFields != 0 {
		t.Fatalf("ComputeAggregate(nil) = %+v", got)
	}
}

func TestComputeAggregateCompletenessUsesProfileFields(t *testing.T) {
	values := []FieldValue{
		{Field: "title", Score: dec(t, "0.95"), Weight: dec(t, "0.300"), MaxScore: DefaultMaxScore},
		{Field: "description", Score: decimal.Zero, Weight: dec(t, "0.250"), MaxScore: DefaultMaxScore},
	}

	got := ComputeAggregate(values, []string{"title", "description", "manufacturer"})
	if got.KnownFields != 3 || got.ScoredFields != 1 {
		t.Fatalf("KnownFields = %d ScoredFields = %d", got.KnownFields, got.ScoredFields)
	}
	if FormatPercent(got.CompletenessPercent) != "33.33" {
		t.Fatalf("CompletenessPercent = %s, want 33.33", FormatPercent(got.CompletenessPercent))
	}
}

func TestComputeAggregateFlagsWeightSumAboveOne(t *testing.T) {
	values := []FieldValue{
		{Field: "title", Score: dec(t, "1.00"), Weight: dec(t, "0.700"), MaxScore: DefaultMaxScore},
		{Field: "description", Score: dec(t, "0.50"), Weight: dec(t, "0.600"), MaxScore: DefaultMaxScore},
	}

	got := ComputeAggregate(values, nil)
	if !got.WeightSumExceeded {
		t.Fatalf("WeightSumExceeded = false, want true")
	}
	// (0.70 + 0.30) / 1.3
	if FormatTotal(got.TotalScore) != "0.7692" {
		t.Fatalf("TotalScore = %s, want 0.7692", FormatTotal(got.TotalScore))
	}
}

func TestComputeFieldStats(t *testing.T) {
	got := ComputeFieldStats([]decimal.Decimal{dec(t, "0.95"), dec(t, "0.80"), dec(t, "0.75")})
	if got.Count != 3 {
		t.Fatalf("Count = %d", got.Count)
	}
	if FormatTotal(got.Avg) != "0.8333" {
		t.Fatalf("Avg = %s, want 0.8333", FormatTotal(got.Avg))
	}
	if FormatScore(got.Min) != "0.75" || FormatScore(got.Max) != "0.95" {
		t.Fatalf("Min = %s Max = %s", FormatScore(got.Min), FormatScore(got.Max))
	}

	empty := ComputeFieldStats(nil)
	if empty.Count != 0 || !empty.Avg.IsZero() || !empty.Min.IsZero() || !empty.Max.IsZero() {
		t.Fatalf("ComputeFieldStats(nil) = %+v", empty)
	}
}

func TestNextTransition(t *testing.T) {
	total := dec(t, "0.8467")
	snapshot := `{"title":{"max_score":"1.00","score":"0.95","weight":"0.300"}}`
	stored := Observed{Exists: true, TotalScore: dec(t, "0.84670"), Snapshot: snapshot, ScoringVersion: "v1"}

	testCases := []struct {
		name    string
		prev    Observed
		version string
		want    Transition
	}{
		{name: "unscored", prev: Observed{}, version: "v1", want: TransitionInitial},
		{name: "unchanged", prev: stored, version: "v1", want: TransitionNone},
		{name: "version", prev: stored, version: "v2", want: TransitionVersionBump},
		{name: "total", prev: Observed{Exists: true, TotalScore: dec(t, "0.5"), Snapshot: snapshot, ScoringVersion: "v1"}, version: "v1", want: TransitionRecompute},
		{name: "snapshot", prev: Observed{Exists: true, TotalScore: total, Snapshot: EmptySnapshot, ScoringVersion: "v1"}, version: "v1", want: TransitionRecompute},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			if got := NextTransition(testCase.prev, total, snapshot, testCase.version); got != testCase.want {
				t.Fatalf("NextTransition() = %q, want %q", got, testCase.want)
			}
		})
	}

	if (Observed{}).State() != StateUnscored || stored.State() != StateScored {
		t.Fatalf("Observed.State() mismatch")
	}
}
