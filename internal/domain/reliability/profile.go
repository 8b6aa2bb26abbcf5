package reliability

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"github.com/shopspring/decimal"
)

const profileFormatVersion = 1

type profileFieldConfig struct {
	Weight   string `toml:"weight"`
	MaxScore string `toml:"max_score"`
}

type profileModelConfig struct {
	Fields map[string]profileFieldConfig `toml:"fields"`
}

type profileFile struct {
	Version               int                           `toml:"version"`
	DefaultScoringVersion string                        `toml:"default_scoring_version"`
	StrictModels          bool                          `toml:"strict_models"`
	Models                map[string]profileModelConfig `toml:"models"`
}

// FieldDefaults are the profile values applied when a caller omits weight or max score.
type FieldDefaults struct {
	Weight   decimal.Decimal
	MaxScore decimal.Decimal
}

// Profile is a parsed scoring profile: the known fields of each model and their
// default weights. The zero value knows no models and accepts every model.
type Profile struct {
	DefaultScoringVersion string
	StrictModels          bool
	models                map[string]map[string]FieldDefaults
}

func LoadProfile(path string) (Profile, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return Profile{}, errors.New("profile file is required")
	}

	raw, err := os.ReadFile(trimmed)
	if err != nil {
		return Profile{}, err
	}
	return ParseProfile(raw)
}

func ParseProfile(raw []byte) (Profile, error) {
	var file profileFile
	if err := toml.Unmarshal(raw, &file); err != nil {
		return Profile{}, fmt.Errorf("decode profile: %w", err)
	}
	if file.Version != profileFormatVersion {
		return Profile{}, fmt.Errorf("unsupported profile version %d: expected version = %d", file.Version, profileFormatVersion)
	}

	profile := Profile{
		DefaultScoringVersion: strings.TrimSpace(file.DefaultScoringVersion),
		StrictModels:          file.StrictModels,
		models:                make(map[string]map[string]FieldDefaults, len(file.Models)),
	}
	if profile.DefaultScoringVersion != "" {
		if _, err := ValidateScoringVersion(profile.DefaultScoringVersion); err != nil {
			return Profile{}, fmt.Errorf("default_scoring_version: %w", err)
		}
	}

	for modelName, model := range file.Models {
		modelName = strings.TrimSpace(modelName)
		if modelName == "" {
			return Profile{}, errors.New("models: empty model name")
		}
		fields := make(map[string]FieldDefaults, len(model.Fields))
		for fieldName, field := range model.Fields {
			defaults, err := parseFieldDefaults(modelName, fieldName, field)
			if err != nil {
				return Profile{}, err
			}
			fields[strings.TrimSpace(fieldName)] = defaults
		}
		profile.models[modelName] = fields
	}
	return profile, nil
}

func parseFieldDefaults(model string, field string, config profileFieldConfig) (FieldDefaults, error) {
	prefix := "models." + model + ".fields." + field
	if _, err := ValidateFieldName(field); err != nil {
		return FieldDefaults{}, fmt.Errorf("%s: %w", prefix, err)
	}

	defaults := FieldDefaults{Weight: decimal.Zero, MaxScore: DefaultMaxScore}
	if strings.TrimSpace(config.Weight) != "" {
		weight, err := ParseDecimal("weight", config.Weight, WeightScale)
		if err != nil {
			return FieldDefaults{}, fmt.Errorf("%s: %w", prefix, err)
		}
		defaults.Weight = weight
	}
	if strings.TrimSpace(config.MaxScore) != "" {
		maxScore, err := ParseDecimal("max_score", config.MaxScore, ScoreScale)
		if err != nil {
			return FieldDefaults{}, fmt.Errorf("%s: %w", prefix, err)
		}
		defaults.MaxScore = maxScore
	}

	if _, err := ValidateFieldValue(FieldValue{Field: field, Score: decimal.Zero, Weight: defaults.Weight, MaxScore: defaults.MaxScore}); err != nil {
		return FieldDefaults{}, fmt.Errorf("%s: %w", prefix, err)
	}
	return defaults, nil
}

func (p Profile) HasModel(model string) bool {
	_, ok := p.models[strings.TrimSpace(model)]
	return ok
}

// AcceptsModel reports whether scores may be recorded for model.
func (p Profile) AcceptsModel(model string) bool {
	return !p.StrictModels || p.HasModel(model)
}

// KnownFields returns the configured fields of model in sorted order.
func (p Profile) KnownFields(model string) []string {
	fields := p.models[strings.TrimSpace(model)]
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (p Profile) FieldDefaults(model string, field string) (FieldDefaults, bool) {
	fields, ok := p.models[strings.TrimSpace(model)]
	if !ok {
		return FieldDefaults{}, false
	}
	defaults, ok := fields[strings.TrimSpace(field)]
	return defaults, ok
}

func (p Profile) Models() []string {
	names := make([]string, 0, len(p.models))
	for name := range p.models {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
