package reliability

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func TestValidateEntityKey(t *testing.T) {
	key, err := ValidateEntityKey(EntityKey{Model: " Products ", ForeignKey: "0B6C1B1E-7D2A-4C8E-9F3E-2A1D5C6B7E80"})
	if err != nil {
		t.Fatalf("ValidateEntityKey() error = %v", err)
	}
	if key.Model != "Products" || key.ForeignKey != "0b6c1b1e-7d2a-4c8e-9f3e-2a1d5c6b7e80" {
		t.Fatalf("ValidateEntityKey() = %+v", key)
	}

	for _, spelling := range []string{
		"urn:uuid:0b6c1b1e-7d2a-4c8e-9f3e-2a1d5c6b7e80",
		"{0b6c1b1e-7d2a-4c8e-9f3e-2a1d5c6b7e80}",
		"0b6c1b1e7d2a4c8e9f3e2a1d5c6b7e80",
	} {
		alias, err := ValidateEntityKey(EntityKey{Model: "Products", ForeignKey: spelling})
		if err != nil {
			t.Fatalf("ValidateEntityKey(%q) error = %v", spelling, err)
		}
		if alias != key {
			t.Fatalf("ValidateEntityKey(%q) = %+v, want %+v", spelling, alias, key)
		}
	}

	for _, bad := range []EntityKey{
		{Model: "", ForeignKey: "0b6c1b1e-7d2a-4c8e-9f3e-2a1d5c6b7e80"},
		{Model: "Products", ForeignKey: ""},
		{Model: "Products", ForeignKey: "not-a-uuid"},
	} {
		_, err := ValidateEntityKey(bad)
		if !errors.Is(err, ErrValidation) {
			t.Fatalf("ValidateEntityKey(%+v) error = %v, want ErrValidation", bad, err)
		}
	}
}

func TestValidateFieldValue(t *testing.T) {
	testCases := []struct {
		name      string
		value     FieldValue
		wantField string
	}{
		{name: "valid", value: FieldValue{Field: "title", Score: dec(t, "0.95"), Weight: dec(t, "0.300"), MaxScore: DefaultMaxScore}},
		{name: "score at max", value: FieldValue{Field: "title", Score: dec(t, "5.00"), Weight: dec(t, "0.300"), MaxScore: dec(t, "5.00")}},
		{name: "negative score", value: FieldValue{Field: "title", Score: dec(t, "-0.01"), Weight: decimal.Zero, MaxScore: DefaultMaxScore}, wantField: "score"},
		{name: "score above max", value: FieldValue{Field: "title", Score: dec(t, "1.01"), Weight: decimal.Zero, MaxScore: DefaultMaxScore}, wantField: "score"},
		{name: "negative weight", value: FieldValue{Field: "title", Score: decimal.Zero, Weight: dec(t, "-0.100"), MaxScore: DefaultMaxScore}, wantField: "weight"},
		{name: "weight above one", value: FieldValue{Field: "title", Score: decimal.Zero, Weight: dec(t, "1.001"), MaxScore: DefaultMaxScore}, wantField: "weight"},
		{name: "zero max", value: FieldValue{Field: "title", Score: decimal.Zero, Weight: decimal.Zero, MaxScore: decimal.Zero}, wantField: "max_score"},
		{name: "score precision", value: FieldValue{Field: "title", Score: dec(t, "0.955"), Weight: decimal.Zero, MaxScore: DefaultMaxScore}, wantField: "score"},
		{name: "empty field", value: FieldValue{Field: "  ", Score: decimal.Zero, Weight: decimal.Zero, MaxScore: DefaultMaxScore}, wantField: "field"},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			_, err := ValidateFieldValue(testCase.value)
			if testCase.wantField == "" {
				if err != nil {
					t.Fatalf("ValidateFieldValue() error = %v", err)
				}
				return
			}
			var validationErr *ValidationError
			if !errors.As(err, &validationErr) {
				t.Fatalf("ValidateFieldValue() error = %v, want *ValidationError", err)
			}
			if validationErr.Field != testCase.wantField {
				t.Fatalf("ValidationError.Field = %q, want %q", validationErr.Field, testCase.wantField)
			}
			if !errors.Is(err, ErrValidation) {
				t.Fatalf("errors.Is(err, ErrValidation) = false")
			}
		})
	}
}

func TestParseDecimal(t *testing.T) {
	got, err := ParseDecimal("weight", " 0.3 ", WeightScale)
	if err != nil {
		t.Fatalf("ParseDecimal() error = %v", err)
	}
	if FormatWeight(got) != "0.300" {
		t.Fatalf("ParseDecimal() = %s", FormatWeight(got))
	}

	if _, err := ParseDecimal("weight", "0.3001", WeightScale); !errors.Is(err, ErrValidation) {
		t.Fatalf("ParseDecimal(precision) error = %v, want ErrValidation", err)
	}
	if _, err := ParseDecimal("weight", "abc", WeightScale); !errors.Is(err, ErrValidation) {
		t.Fatalf("ParseDecimal(abc) error = %v, want ErrValidation", err)
	}
}

func TestValidateTotalScore(t *testing.T) {
	tests := []struct {
		total   string
		wantErr bool
	}{
		{total: "0"},
		{total: "0.8467"},
		{total: "1"},
		{total: "-0.0001", wantErr: true},
		{total: "1.0001", wantErr: true},
	}
	for _, tt := range tests {
		err := ValidateTotalScore("to_total_score", decimal.RequireFromString(tt.total))
		if tt.wantErr != (err != nil) {
			t.Fatalf("ValidateTotalScore(%s) error = %v, wantErr %v", tt.total, err, tt.wantErr)
		}
		if err != nil && !errors.Is(err, ErrValidation) {
			t.Fatalf("ValidateTotalScore(%s) error = %v, want ErrValidation", tt.total, err)
		}
	}
}

func TestValidateScoringVersion(t *testing.T) {
	if got, err := ValidateScoringVersion(" v2 "); err != nil || got != "v2" {
		t.Fatalf("ValidateScoringVersion() = %q, %v", got, err)
	}
	for _, bad := range []string{"", "v 2"} {
		if _, err := ValidateScoringVersion(bad); !errors.Is(err, ErrValidation) {
			t.Fatalf("ValidateScoringVersion(%q) error = %v", bad, err)
		}
	}
}

func TestErrorTaxonomy(t *testing.T) {
	key := EntityKey{Model: "Products", ForeignKey: "0b6c1b1e-7d2a-4c8e-9f3e-2a1d5c6b7e80"}

	if err := NotFound("summary", key.String()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("NotFound() does not match ErrNotFound: %v", err)
	}
	conflict := Conflict(key, "entity locked")
	if !errors.Is(conflict, ErrConcurrencyConflict) {
		t.Fatalf("Conflict() does not match ErrConcurrencyConflict: %v", conflict)
	}
	var conflictErr *ConflictError
	if !errors.As(conflict, &conflictErr) || conflictErr.Entity != key {
		t.Fatalf("errors.As(ConflictError) = %+v", conflictErr)
	}
}
