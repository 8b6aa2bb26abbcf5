package reliability

import (
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ValidateEntityKey checks that model is set and foreign key is a UUID. The key
// comes back with the foreign key in canonical lowercase hyphenated form.
func ValidateEntityKey(key EntityKey) (EntityKey, error) {
	key = key.Normalize()
	if key.Model == "" {
		return EntityKey{}, &ValidationError{Field: "model", Reason: ErrModelRequired.Error()}
	}
	if key.ForeignKey == "" {
		return EntityKey{}, &ValidationError{Field: "foreign_key", Reason: ErrForeignKeyRequired.Error()}
	}
	id, err := uuid.Parse(key.ForeignKey)
	if err != nil {
		return EntityKey{}, invalid("foreign_key", "must be a uuid, got %q", key.ForeignKey)
	}
	key.ForeignKey = id.String()
	return key, nil
}

func ValidateFieldName(field string) (string, error) {
	field = strings.TrimSpace(field)
	if field == "" {
		return "", &ValidationError{Field: "field", Reason: ErrFieldRequired.Error()}
	}
	if len(field) > 100 {
		return "", invalid("field", "must be at most 100 characters")
	}
	return field, nil
}

// ParseDecimal parses a fixed-point value and rejects more fractional digits than scale.
func ParseDecimal(name string, raw string, scale int32) (decimal.Decimal, error) {
	value, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return decimal.Decimal{}, invalid(name, "not a decimal: %q", raw)
	}
	if !value.Equal(value.Round(scale)) {
		return decimal.Decimal{}, invalid(name, "at most %d fractional digits allowed, got %s", scale, value.String())
	}
	return value, nil
}

// ValidateFieldValue enforces 0 <= score <= max_score, 0 <= weight <= 1 and max_score > 0.
func ValidateFieldValue(value FieldValue) (FieldValue, error) {
	field, err := ValidateFieldName(value.Field)
	if err != nil {
		return FieldValue{}, err
	}
	value.Field = field

	checks := []struct {
		name  string
		value decimal.Decimal
		scale int32
	}{
		{"score", value.Score, ScoreScale},
		{"weight", value.Weight, WeightScale},
		{"max_score", value.MaxScore, ScoreScale},
	}
	for _, check := range checks {
		if !check.value.Equal(check.value.Round(check.scale)) {
			return FieldValue{}, invalid(check.name, "at most %d fractional digits allowed, got %s", check.scale, check.value.String())
		}
	}

	if !value.MaxScore.IsPositive() {
		return FieldValue{}, invalid("max_score", "must be greater than 0, got %s", FormatScore(value.MaxScore))
	}
	if value.Score.IsNegative() {
		return FieldValue{}, invalid("score", "must not be negative, got %s", FormatScore(value.Score))
	}
	if value.Score.GreaterThan(value.MaxScore) {
		return FieldValue{}, invalid("score", "%s exceeds max_score %s", FormatScore(value.Score), FormatScore(value.MaxScore))
	}
	if value.Weight.IsNegative() {
		return FieldValue{}, invalid("weight", "must not be negative, got %s", FormatWeight(value.Weight))
	}
	if value.Weight.GreaterThan(maxWeight) {
		return FieldValue{}, invalid("weight", "must be at most %s, got %s", FormatWeight(maxWeight), FormatWeight(value.Weight))
	}
	return value, nil
}

// ValidateTotalScore keeps a total inside [0, 1].
func ValidateTotalScore(name string, total decimal.Decimal) error {
	if total.IsNegative() || total.GreaterThan(decimal.NewFromInt(1)) {
		return invalid(name, "must be between 0 and 1, got %s", FormatTotal(total))
	}
	return nil
}

// ValidateScoringVersion accepts short tags such as "v1" or "2026-03".
func ValidateScoringVersion(version string) (string, error) {
	version = strings.TrimSpace(version)
	if version == "" {
		return "", invalid("scoring_version", "is required")
	}
	if len(version) > 32 {
		return "", invalid("scoring_version", "must be at most 32 characters")
	}
	if strings.ContainsAny(version, " \t\r\n") {
		return "", invalid("scoring_version", "must not contain whitespace")
	}
	return version, nil
}
