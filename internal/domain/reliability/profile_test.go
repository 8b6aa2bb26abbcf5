package reliability

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const testProfile = `
version = 1
default_scoring_version = "v2"
strict_models = true

[models.Products.fields.title]
weight = "0.300"

[models.Products.fields.description]
weight = "0.250"
max_score = "2.00"

[models.Brands.fields.name]
weight = "1.000"
`

func TestParseProfile(t *testing.T) {
	profile, err := ParseProfile([]byte(testProfile))
	if err != nil {
		t.Fatalf("ParseProfile() error = %v", err)
	}

	if profile.DefaultScoringVersion != "v2" || !profile.StrictModels {
		t.Fatalf("ParseProfile() = %+v", profile)
	}
	if got := strings.Join(profile.KnownFields("Products"), ","); got != "description,title" {
		t.Fatalf("KnownFields() = %q", got)
	}
	if got := strings.Join(profile.Models(), ","); got != "Brands,Products" {
		t.Fatalf("Models() = %q", got)
	}

	defaults, ok := profile.FieldDefaults("Products", "description")
	if !ok {
		t.Fatalf("FieldDefaults() ok = false")
	}
	if FormatWeight(defaults.Weight) != "0.250" || FormatScore(defaults.MaxScore) != "2.00" {
		t.Fatalf("FieldDefaults() = %s/%s", FormatWeight(defaults.Weight), FormatScore(defaults.MaxScore))
	}
	title, _ := profile.FieldDefaults("Products", "title")
	if FormatScore(title.MaxScore) != "1.00" {
		t.Fatalf("title max_score = %s, want 1.00", FormatScore(title.MaxScore))
	}

	if !profile.AcceptsModel("Products") || profile.AcceptsModel("Orders") {
		t.Fatalf("AcceptsModel() mismatch for strict profile")
	}
	if !(Profile{}).AcceptsModel("Orders") {
		t.Fatalf("zero Profile should accept every model")
	}
}

func TestParseProfileRejectsInvalid(t *testing.T) {
	testCases := map[string]string{
		"version":    "version = 2\n",
		"weight":     "version = 1\n[models.Products.fields.title]\nweight = \"1.500\"\n",
		"precision":  "version = 1\n[models.Products.fields.title]\nweight = \"0.3333\"\n",
		"max score":  "version = 1\n[models.Products.fields.title]\nmax_score = \"0\"\n",
		"scoring":    "version = 1\ndefault_scoring_version = \"v 1\"\n",
		"toml":       "version = \n",
	}

	for name, raw := range testCases {
		t.Run(name, func(t *testing.T) {
			if _, err := ParseProfile([]byte(raw)); err == nil {
				t.Fatalf("ParseProfile() expected error")
			}
		})
	}
}

func TestLoadProfile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scoring.toml")
	if err := os.WriteFile(path, []byte(testProfile), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	profile, err := LoadProfile(path)
	if err != nil {
		t.Fatalf("LoadProfile() error = %v", err)
	}
	if !profile.HasModel("Brands") {
		t.Fatalf("HasModel(Brands) = false")
	}

	if _, err := LoadProfile(" "); err == nil {
		t.Fatalf("LoadProfile(empty) expected error")
	}
}
