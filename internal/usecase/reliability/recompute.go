package reliability

import (
	"context"
	"errors"
	"log/slog"

	"reliability/internal/bootstrap/logging"
	domainreliability "reliability/internal/domain/reliability"
	"reliability/internal/errs"
	"reliability/internal/ports"
)

type recomputeParams struct {
	source  string
	actor   domainreliability.Actor
	message string
	// version forces a scoring version; empty keeps the stored one.
	version string
}

// Recompute derives the entity's summary from its field scores. An unchanged
// total, snapshot and scoring version writes nothing.
func (s *Service) Recompute(ctx context.Context, input RecomputeInput) (RecomputeResult, error) {
	if err := s.checkReady(ctx); err != nil {
		return RecomputeResult{}, err
	}
	key, err := domainreliability.ValidateEntityKey(domainreliability.EntityKey{Model: input.Model, ForeignKey: input.ForeignKey})
	if err != nil {
		return RecomputeResult{}, err
	}

	logCtx := s.entityContext(ctx, key)
	params := recomputeParams{source: normalizeSource(input.Source), actor: input.Actor, message: input.Message}

	var result RecomputeResult
	err = s.withEntityWrite(logCtx, key, "recompute", func(txCtx context.Context, scope *writeScope) error {
		out, recomputeErr := s.recomputeTx(txCtx, key, params, scope)
		if recomputeErr != nil {
			return recomputeErr
		}
		result = out
		return nil
	})
	s.finishRecompute(logCtx, key, result, err)
	if err != nil {
		return RecomputeResult{}, err
	}
	return result, nil
}

// Score upserts every field and recomputes inside one lock and one transaction.
func (s *Service) Score(ctx context.Context, input ScoreInput) (RecomputeResult, error) {
	if err := s.checkReady(ctx); err != nil {
		return RecomputeResult{}, err
	}
	key, err := s.acceptedEntity(input.Model, input.ForeignKey)
	if err != nil {
		return RecomputeResult{}, err
	}
	if len(input.Fields) == 0 {
		return RecomputeResult{}, &domainreliability.ValidationError{Field: "fields", Reason: "at least one field score is required"}
	}

	profile := s.profile()
	values := make([]domainreliability.FieldValue, 0, len(input.Fields))
	notes := make([]*string, 0, len(input.Fields))
	seen := make(map[string]struct{}, len(input.Fields))
	for _, field := range input.Fields {
		value, resolveErr := resolveFieldValue(profile, key.Model, field)
		if resolveErr != nil {
			return RecomputeResult{}, resolveErr
		}
		if _, dup := seen[value.Field]; dup {
			return RecomputeResult{}, &domainreliability.ValidationError{Field: "fields", Reason: "duplicate field " + value.Field}
		}
		seen[value.Field] = struct{}{}
		values = append(values, value)
		notes = append(notes, optionalString(derefString(field.Notes)))
	}

	logCtx := s.entityContext(ctx, key)
	params := recomputeParams{source: normalizeSource(input.Source), actor: input.Actor, message: input.Message}

	var result RecomputeResult
	err = s.withEntityWrite(logCtx, key, "score", func(txCtx context.Context, scope *writeScope) error {
		now := s.now()
		for i, value := range values {
			if _, upsertErr := s.repo.UpsertFieldScore(txCtx, ports.FieldScoreUpsert{
				Model:      key.Model,
				ForeignKey: key.ForeignKey,
				Field:      value.Field,
				Score:      value.Score,
				Weight:     value.Weight,
				MaxScore:   value.MaxScore,
				Notes:      notes[i],
				At:         now,
			}); upsertErr != nil {
				return upsertErr
			}
		}
		out, recomputeErr := s.recomputeTx(txCtx, key, params, scope)
		if recomputeErr != nil {
			return recomputeErr
		}
		result = out
		return nil
	})
	s.finishRecompute(logCtx, key, result, err)
	if err != nil {
		return RecomputeResult{}, err
	}
	return result, nil
}

// BumpScoringVersion migrates one entity to version. It always writes a log entry,
// even when the total does not move.
func (s *Service) BumpScoringVersion(ctx context.Context, input BumpScoringVersionInput) (RecomputeResult, error) {
	if err := s.checkReady(ctx); err != nil {
		return RecomputeResult{}, err
	}
	key, err := domainreliability.ValidateEntityKey(domainreliability.EntityKey{Model: input.Model, ForeignKey: input.ForeignKey})
	if err != nil {
		return RecomputeResult{}, err
	}
	version, err := domainreliability.ValidateScoringVersion(input.Version)
	if err != nil {
		return RecomputeResult{}, err
	}

	logCtx := s.entityContext(ctx, key)
	params := recomputeParams{source: normalizeSource(input.Source), actor: input.Actor, message: input.Message, version: version}

	var result RecomputeResult
	err = s.withEntityWrite(logCtx, key, "bump_scoring_version", func(txCtx context.Context, scope *writeScope) error {
		current, getErr := s.repo.GetSummary(txCtx, key.Model, key.ForeignKey)
		if getErr != nil {
			if errors.Is(getErr, ports.ErrSummaryNotFound) {
				return domainreliability.NotFound("summary", key.String())
			}
			return errs.Wrap(getErr, "get summary")
		}
		if current.ScoringVersion == version {
			return &domainreliability.ValidationError{Field: "version", Reason: "entity is already on scoring version " + version}
		}

		out, recomputeErr := s.recomputeTx(txCtx, key, params, scope)
		if recomputeErr != nil {
			return recomputeErr
		}
		result = out
		return nil
	})
	s.finishRecompute(logCtx, key, result, err)
	if err != nil {
		return RecomputeResult{}, err
	}
	return result, nil
}

// BumpModelScoringVersion applies BumpScoringVersion to every summary of model.
// Entities already on version are skipped.
func (s *Service) BumpModelScoringVersion(ctx context.Context, input BumpScoringVersionInput) (BatchResult, error) {
	if err := s.checkReady(ctx); err != nil {
		return BatchResult{}, err
	}
	version, err := domainreliability.ValidateScoringVersion(input.Version)
	if err != nil {
		return BatchResult{}, err
	}

	summaries, err := s.listAllSummaries(ctx, input.Model)
	if err != nil {
		return BatchResult{}, err
	}

	keys := make([]string, 0, len(summaries))
	skipped := 0
	for _, summary := range summaries {
		if summary.ScoringVersion == version {
			skipped++
			continue
		}
		keys = append(keys, summary.ForeignKey)
	}

	result, err := s.runBatch(ctx, input.Model, keys, 0, func(batchCtx context.Context, foreignKey string) (bool, error) {
		entityInput := input
		entityInput.ForeignKey = foreignKey
		entityInput.Version = version
		out, bumpErr := s.BumpScoringVersion(batchCtx, entityInput)
		return out.Changed, bumpErr
	})
	result.Total += skipped
	result.Unchanged += skipped
	return result, err
}

// recomputeTx must run inside withEntityWrite.
func (s *Service) recomputeTx(ctx context.Context, key domainreliability.EntityKey, params recomputeParams, scope *writeScope) (RecomputeResult, error) {
	fields, err := s.repo.ListFieldScores(ctx, key.Model, key.ForeignKey)
	if err != nil {
		return RecomputeResult{}, errs.Wrap(err, "list field scores")
	}

	previous, err := s.repo.GetSummary(ctx, key.Model, key.ForeignKey)
	exists := true
	if err != nil {
		if !errors.Is(err, ports.ErrSummaryNotFound) {
			return RecomputeResult{}, errs.Wrap(err, "get summary")
		}
		exists = false
	}
	if len(fields) == 0 && !exists {
		return RecomputeResult{}, domainreliability.NotFound("scored entity", key.String())
	}

	values := make([]domainreliability.FieldValue, 0, len(fields))
	for _, field := range fields {
		values = append(values, domainreliability.FieldValue{
			Field:    field.Field,
			Score:    field.Score,
			Weight:   field.Weight,
			MaxScore: field.MaxScore,
		})
	}

	aggregate := domainreliability.ComputeAggregate(values, s.profile().KnownFields(key.Model))
	snapshot, err := domainreliability.CanonicalSnapshot(values)
	if err != nil {
		return RecomputeResult{}, err
	}

	version := params.version
	switch {
	case version != "":
	case exists:
		version = previous.ScoringVersion
	default:
		version = s.scoringVersionForNewEntities()
	}

	observed := domainreliability.Observed{Exists: exists}
	if exists {
		observed.TotalScore = previous.TotalScore
		observed.Snapshot = previous.FieldScoresJSON
		observed.ScoringVersion = previous.ScoringVersion
	}

	result := RecomputeResult{
		Summary:           previous,
		WeightSum:         aggregate.WeightSum,
		WeightSumExceeded: aggregate.WeightSumExceeded,
	}
	if aggregate.WeightSumExceeded {
		logging.Warn(ctx, "field weights sum above 1",
			slog.String("weight_sum", domainreliability.FormatWeight(aggregate.WeightSum)),
		)
	}

	transition := domainreliability.NextTransition(observed, aggregate.TotalScore, snapshot, version)
	if transition == domainreliability.TransitionNone {
		return result, nil
	}

	now := s.now()
	entry, err := s.appendLogTx(ctx, key, AppendLogInput{
		Model:             key.Model,
		ForeignKey:        key.ForeignKey,
		ScoringVersion:    version,
		ToTotalScore:      aggregate.TotalScore,
		ToFieldScoresJSON: snapshot,
		Source:            params.source,
		Actor:             params.actor,
		Message:           params.message,
	}, now)
	if err != nil {
		return RecomputeResult{}, err
	}
	scope.appended = append(scope.appended, entry)

	summary := ports.SummaryRecord{
		ID:                  previous.ID,
		Model:               key.Model,
		ForeignKey:          key.ForeignKey,
		TotalScore:          aggregate.TotalScore,
		CompletenessPercent: aggregate.CompletenessPercent,
		FieldScoresJSON:     snapshot,
		ScoringVersion:      version,
		LastSource:          params.source,
		LastCalculated:      &now,
		UpdatedByUserID:     optionalString(params.actor.UserID),
		UpdatedByService:    optionalString(params.actor.Service),
		Created:             previous.Created,
		Modified:            now,
	}
	if exists {
		summary.Revision = previous.Revision + 1
		if err := s.repo.UpdateSummary(ctx, summary, previous.Revision); err != nil {
			return RecomputeResult{}, err
		}
	} else {
		summary.ID = s.newID()
		summary.Revision = 1
		summary.Created = now
		if err := s.repo.CreateSummary(ctx, summary); err != nil {
			return RecomputeResult{}, err
		}
	}

	result.Summary = summary
	result.Changed = true
	result.LogID = entry.ID
	result.Transition = transition
	return result, nil
}

func (s *Service) finishRecompute(ctx context.Context, key domainreliability.EntityKey, result RecomputeResult, err error) {
	switch {
	case errors.Is(err, domainreliability.ErrConcurrencyConflict):
		s.observeRecompute(key.Model, "conflict")
	case errors.Is(err, domainreliability.ErrValidation), errors.Is(err, domainreliability.ErrNotFound):
		s.observeRecompute(key.Model, "rejected")
		logging.Warn(ctx, "recompute rejected", slog.Any("err", errs.Loggable(err)))
	case err != nil:
		s.observeRecompute(key.Model, "failed")
		logging.Error(ctx, "recompute failed", slog.Any("err", errs.Loggable(err)))
	case result.Changed:
		s.observeRecompute(key.Model, "changed")
		logging.Info(ctx, "summary recomputed",
			slog.String("transition", string(result.Transition)),
			slog.String("total_score", domainreliability.FormatTotal(result.Summary.TotalScore)),
			slog.String("completeness_percent", domainreliability.FormatPercent(result.Summary.CompletenessPercent)),
			slog.String("scoring_version", result.Summary.ScoringVersion),
			slog.String("log_id", result.LogID),
		)
	default:
		s.observeRecompute(key.Model, "unchanged")
		logging.Debug(ctx, "summary unchanged")
	}
}
