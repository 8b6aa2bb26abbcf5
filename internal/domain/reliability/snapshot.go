package reliability

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// EmptySnapshot is the canonical snapshot of an entity without field scores.
const EmptySnapshot = "{}"

// snapshotValue field order is alphabetical so the encoding is canonical.
type snapshotValue struct {
	MaxScore string `json:"max_score"`
	Score    string `json:"score"`
	Weight   string `json:"weight"`
}

// CanonicalSnapshot renders field values as the sorted, whitespace-free JSON object
// stored in field_scores_json and hashed into audit checksums.
func CanonicalSnapshot(values []FieldValue) (string, error) {
	snapshot := make(map[string]snapshotValue, len(values))
	for _, value := range values {
		name := strings.TrimSpace(value.Field)
		if name == "" {
			return "", &ValidationError{Field: "field", Reason: ErrFieldRequired.Error()}
		}
		if _, exists := snapshot[name]; exists {
			return "", invalid("field", "duplicate field %q in snapshot", name)
		}
		snapshot[name] = snapshotValue{
			MaxScore: FormatScore(value.MaxScore),
			Score:    FormatScore(value.Score),
			Weight:   FormatWeight(value.Weight),
		}
	}

	raw, err := json.Marshal(snapshot)
	if err != nil {
		return "", fmt.Errorf("marshal snapshot: %w", err)
	}
	return string(raw), nil
}

// ParseSnapshot decodes a stored snapshot back into field values sorted by field.
func ParseSnapshot(raw string) ([]FieldValue, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, nil
	}

	var snapshot map[string]snapshotValue
	if err := json.Unmarshal([]byte(trimmed), &snapshot); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}

	values := make([]FieldValue, 0, len(snapshot))
	for name, item := range snapshot {
		score, err := ParseDecimal("score", item.Score, ScoreScale)
		if err != nil {
			return nil, fmt.Errorf("snapshot field %q: %w", name, err)
		}
		weight, err := ParseDecimal("weight", item.Weight, WeightScale)
		if err != nil {
			return nil, fmt.Errorf("snapshot field %q: %w", name, err)
		}
		maxScore, err := ParseDecimal("max_score", item.MaxScore, ScoreScale)
		if err != nil {
			return nil, fmt.Errorf("snapshot field %q: %w", name, err)
		}
		values = append(values, FieldValue{Field: name, Score: score, Weight: weight, MaxScore: maxScore})
	}
	SortFieldValues(values)
	return values, nil
}

func SortFieldValues(values []FieldValue) {
	sort.Slice(values, func(i, j int) bool {
		return values[i].Field < values[j].Field
	})
}
