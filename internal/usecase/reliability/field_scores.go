package reliability

import (
	"context"
	"log/slog"

	"github.com/shopspring/decimal"

	"reliability/internal/bootstrap/logging"
	domainreliability "reliability/internal/domain/reliability"
	"reliability/internal/errs"
	"reliability/internal/ports"
)

// SetFieldScore upserts one field score without recomputing the summary.
func (s *Service) SetFieldScore(ctx context.Context, input SetFieldScoreInput) (ports.FieldScoreRecord, error) {
	if err := s.checkReady(ctx); err != nil {
		return ports.FieldScoreRecord{}, err
	}

	key, err := s.acceptedEntity(input.Model, input.ForeignKey)
	if err != nil {
		return ports.FieldScoreRecord{}, err
	}
	value, err := resolveFieldValue(s.profile(), key.Model, input.FieldScoreInput)
	if err != nil {
		return ports.FieldScoreRecord{}, err
	}

	logCtx := s.entityContext(ctx, key)
	var stored ports.FieldScoreRecord
	if err := s.withEntityWrite(logCtx, key, "set_field_score", func(txCtx context.Context, _ *writeScope) error {
		record, upsertErr := s.repo.UpsertFieldScore(txCtx, ports.FieldScoreUpsert{
			Model:      key.Model,
			ForeignKey: key.ForeignKey,
			Field:      value.Field,
			Score:      value.Score,
			Weight:     value.Weight,
			MaxScore:   value.MaxScore,
			Notes:      optionalString(derefString(input.Notes)),
			At:         s.now(),
		})
		if upsertErr != nil {
			return upsertErr
		}
		stored = record
		return nil
	}); err != nil {
		return ports.FieldScoreRecord{}, err
	}

	logging.Info(logCtx, "field score set",
		slog.String("field", stored.Field),
		slog.String("score", domainreliability.FormatScore(stored.Score)),
		slog.String("weight", domainreliability.FormatWeight(stored.Weight)),
	)
	return stored, nil
}

// GetFieldScores returns the entity's field scores sorted by field.
func (s *Service) GetFieldScores(ctx context.Context, model string, foreignKey string) ([]ports.FieldScoreRecord, error) {
	if err := s.checkReady(ctx); err != nil {
		return nil, err
	}
	key, err := domainreliability.ValidateEntityKey(domainreliability.EntityKey{Model: model, ForeignKey: foreignKey})
	if err != nil {
		return nil, err
	}

	items, err := s.repo.ListFieldScores(ctx, key.Model, key.ForeignKey)
	if err != nil {
		return nil, errs.Wrap(err, "list field scores")
	}
	return items, nil
}

// GetFieldStats aggregates one field over every entity of model. No rows yields zeros.
func (s *Service) GetFieldStats(ctx context.Context, model string, field string) (FieldStatsResult, error) {
	if err := s.checkReady(ctx); err != nil {
		return FieldStatsResult{}, err
	}
	key := domainreliability.EntityKey{Model: model}.Normalize()
	if key.Model == "" {
		return FieldStatsResult{}, &domainreliability.ValidationError{Field: "model", Reason: domainreliability.ErrModelRequired.Error()}
	}
	fieldName, err := domainreliability.ValidateFieldName(field)
	if err != nil {
		return FieldStatsResult{}, err
	}

	scores, err := s.repo.ListFieldValues(ctx, key.Model, fieldName)
	if err != nil {
		return FieldStatsResult{}, errs.Wrap(err, "list field values")
	}
	return FieldStatsResult{
		Model:      key.Model,
		Field:      fieldName,
		FieldStats: domainreliability.ComputeFieldStats(scores),
	}, nil
}

// acceptedEntity validates the key and rejects models a strict profile does not know.
func (s *Service) acceptedEntity(model string, foreignKey string) (domainreliability.EntityKey, error) {
	key, err := domainreliability.ValidateEntityKey(domainreliability.EntityKey{Model: model, ForeignKey: foreignKey})
	if err != nil {
		return domainreliability.EntityKey{}, err
	}
	if !s.profile().AcceptsModel(key.Model) {
		return domainreliability.EntityKey{}, domainreliability.NotFound("model", key.Model)
	}
	return key, nil
}

func resolveFieldValue(profile domainreliability.Profile, model string, input FieldScoreInput) (domainreliability.FieldValue, error) {
	field, err := domainreliability.ValidateFieldName(input.Field)
	if err != nil {
		return domainreliability.FieldValue{}, err
	}

	defaults, ok := profile.FieldDefaults(model, field)
	if !ok {
		defaults = domainreliability.FieldDefaults{Weight: decimal.Zero, MaxScore: domainreliability.DefaultMaxScore}
	}

	score, err := domainreliability.ParseDecimal("score", input.Score, domainreliability.ScoreScale)
	if err != nil {
		return domainreliability.FieldValue{}, err
	}
	weight := defaults.Weight
	if input.Weight != nil {
		if weight, err = domainreliability.ParseDecimal("weight", *input.Weight, domainreliability.WeightScale); err != nil {
			return domainreliability.FieldValue{}, err
		}
	}
	maxScore := defaults.MaxScore
	if input.MaxScore != nil {
		if maxScore, err = domainreliability.ParseDecimal("max_score", *input.MaxScore, domainreliability.ScoreScale); err != nil {
			return domainreliability.FieldValue{}, err
		}
	}

	return domainreliability.ValidateFieldValue(domainreliability.FieldValue{
		Field:    field,
		Score:    score,
		Weight:   weight,
		MaxScore: maxScore,
	})
}
