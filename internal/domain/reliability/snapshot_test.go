package reliability

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func TestCanonicalSnapshotSortsAndFixesScale(t *testing.T) {
	values := []FieldValue{
		{Field: "title", Score: dec(t, "0.95"), Weight: dec(t, "0.3"), MaxScore: DefaultMaxScore},
		{Field: "description", Score: dec(t, "0.8"), Weight: dec(t, "0.25"), MaxScore: DefaultMaxScore},
	}

	got, err := CanonicalSnapshot(values)
	if err != nil {
		t.Fatalf("CanonicalSnapshot() error = %v", err)
	}
	want := `{"description":{"max_score":"1.00","score":"0.80","weight":"0.250"},"title":{"max_score":"1.00","score":"0.95","weight":"0.300"}}`
	if got != want {
		t.Fatalf("CanonicalSnapshot() = %s\nwant %s", got, want)
	}

	reversed := []FieldValue{values[1], values[0]}
	again, err := CanonicalSnapshot(reversed)
	if err != nil {
		t.Fatalf("CanonicalSnapshot(reversed) error = %v", err)
	}
	if again != got {
		t.Fatalf("CanonicalSnapshot() depends on input order: %s", again)
	}
}

func TestCanonicalSnapshotEmpty(t *testing.T) {
	got, err := CanonicalSnapshot(nil)
	if err != nil {
		t.Fatalf("CanonicalSnapshot(nil) error = %v", err)
	}
	if got != EmptySnapshot {
		t.Fatalf("CanonicalSnapshot(nil) = %q, want {}", got)
	}
}

func TestCanonicalSnapshotRejectsDuplicates(t *testing.T) {
	values := []FieldValue{
		{Field: "title", Score: decimal.Zero, Weight: decimal.Zero, MaxScore: DefaultMaxScore},
		{Field: "title", Score: decimal.Zero, Weight: decimal.Zero, MaxScore: DefaultMaxScore},
	}
	if _, err := CanonicalSnapshot(values); !errors.Is(err, ErrValidation) {
		t.Fatalf("CanonicalSnapshot(duplicates) error = %v, want ErrValidation", err)
	}
}

func TestParseSnapshotRoundTrip(t *testing.T) {
	raw := `{"title":{"max_score":"1.00","score":"0.95","weight":"0.300"},"ean":{"max_score":"2.00","score":"1.50","weight":"0.100"}}`

	values, err := ParseSnapshot(raw)
	if err != nil {
		t.Fatalf("ParseSnapshot() error = %v", err)
	}
	if len(values) != 2 || values[0].Field != "ean" || values[1].Field != "title" {
		t.Fatalf("ParseSnapshot() = %+v", values)
	}

	canonical, err := CanonicalSnapshot(values)
	if err != nil {
		t.Fatalf("CanonicalSnapshot() error = %v", err)
	}
	want := `{"ean":{"max_score":"2.00","score":"1.50","weight":"0.100"},"title":{"max_score":"1.00","score":"0.95","weight":"0.300"}}`
	if canonical != want {
		t.Fatalf("CanonicalSnapshot(ParseSnapshot()) = %s", canonical)
	}

	if _, err := ParseSnapshot("{not json"); err == nil {
		t.Fatalf("ParseSnapshot(invalid) expected error")
	}
}
