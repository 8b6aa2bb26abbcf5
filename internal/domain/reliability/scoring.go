package reliability

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Aggregate is the computed summary of one entity's field scores.
type Aggregate struct {
	TotalScore          decimal.Decimal
	CompletenessPercent decimal.Decimal
	WeightSum           decimal.Decimal
	WeightSumExceeded   bool
	ScoredFields        int
	KnownFields         int
}

// ComputeAggregate returns total = Σ(score·weight)/Σweight rounded to four places
// (zero when Σweight is zero) and completeness = scored/known·100 rounded to two places.
// Known fields are profileFields plus every field present in values.
func ComputeAggregate(values []FieldValue, profileFields []string) Aggregate {
	weighted := decimal.Zero
	weightSum := decimal.Zero
	known := make(map[string]struct{}, len(values)+len(profileFields))
	scored := 0

	for _, field := range profileFields {
		name := strings.TrimSpace(field)
		if name != "" {
			known[name] = struct{}{}
		}
	}
	for _, value := range values {
		known[value.Field] = struct{}{}
		weighted = weighted.Add(value.Score.Mul(value.Weight))
		weightSum = weightSum.Add(value.Weight)
		if value.Score.IsPositive() {
			scored++
		}
	}

	total := decimal.Zero
	if !weightSum.IsZero() {
		total = weighted.DivRound(weightSum, TotalScale)
	}

	completeness := decimal.Zero
	if len(known) > 0 {
		completeness = decimal.NewFromInt(int64(scored)).
			Mul(hundred).
			DivRound(decimal.NewFromInt(int64(len(known))), PercentScale)
	}

	return Aggregate{
		TotalScore:          total.Round(TotalScale),
		CompletenessPercent: completeness.Round(PercentScale),
		WeightSum:           weightSum,
		WeightSumExceeded:   weightSum.GreaterThan(maxWeight),
		ScoredFields:        scored,
		KnownFields:         len(known),
	}
}
