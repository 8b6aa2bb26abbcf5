package reliability

import "github.com/shopspring/decimal"

// FieldStats aggregates one field across every entity of a model.
type FieldStats struct {
	Avg   decimal.Decimal
	Min   decimal.Decimal
	Max   decimal.Decimal
	Count int
}

// ComputeFieldStats returns zero values for an empty input.
func ComputeFieldStats(scores []decimal.Decimal) FieldStats {
	if len(scores) == 0 {
		return FieldStats{Avg: decimal.Zero, Min: decimal.Zero, Max: decimal.Zero}
	}

	sum := decimal.Zero
	minScore := scores[0]
	maxScore := scores[0]
	for _, score := range scores {
		sum = sum.Add(score)
		if score.LessThan(minScore) {
			minScore = score
		}
		if score.GreaterThan(maxScore) {
			maxScore = score
		}
	}

	return FieldStats{
		Avg:   sum.DivRound(decimal.NewFromInt(int64(len(scores))), TotalScale),
		Min:   minScore,
		Max:   maxScore,
		Count: len(scores),
	}
}
