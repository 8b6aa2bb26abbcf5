package reliability

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"reliability/internal/bootstrap/logging"
	domainreliability "reliability/internal/domain/reliability"
	"reliability/internal/errs"
)

// RecomputeModel recomputes every entity of model that has field scores. Entity
// failures are counted in the result; only cancellation aborts the batch.
func (s *Service) RecomputeModel(ctx context.Context, input RecomputeModelInput) (BatchResult, error) {
	if err := s.checkReady(ctx); err != nil {
		return BatchResult{}, err
	}
	model := domainreliability.EntityKey{Model: input.Model}.Normalize().Model
	if model == "" {
		return BatchResult{}, &domainreliability.ValidationError{Field: "model", Reason: domainreliability.ErrModelRequired.Error()}
	}
	if input.Concurrency < 0 {
		return BatchResult{}, &domainreliability.ValidationError{Field: "concurrency", Reason: "must not be negative"}
	}

	keys, err := s.repo.ListScoredEntities(ctx, model)
	if err != nil {
		return BatchResult{}, errs.Wrap(err, "list scored entities")
	}

	return s.runBatch(ctx, model, keys, input.Concurrency, func(batchCtx context.Context, foreignKey string) (bool, error) {
		out, recomputeErr := s.Recompute(batchCtx, RecomputeInput{
			Model:      model,
			ForeignKey: foreignKey,
			Source:     input.Source,
			Actor:      input.Actor,
			Message:    input.Message,
		})
		return out.Changed, recomputeErr
	})
}

func (s *Service) runBatch(ctx context.Context, model string, keys []string, concurrency int, fn func(ctx context.Context, foreignKey string) (bool, error)) (BatchResult, error) {
	if concurrency <= 0 {
		concurrency = s.batchConcurrency
	}
	batchCtx := logging.WithAttrs(ctx, slog.String("component", "usecase.reliability.batch"), slog.String("model", model))

	result := BatchResult{Model: model, Total: len(keys)}
	var mu sync.Mutex

	group, groupCtx := errgroup.WithContext(batchCtx)
	group.SetLimit(concurrency)
	for _, foreignKey := range keys {
		group.Go(func() error {
			if err := groupCtx.Err(); err != nil {
				return err
			}
			changed, err := fn(groupCtx, foreignKey)
			if err != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
				return err
			}

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				result.Failed++
				result.Failures = append(result.Failures, EntityFailure{ForeignKey: foreignKey, Err: err.Error()})
			case changed:
				result.Changed++
			default:
				result.Unchanged++
			}
			return nil
		})
	}

	if err := group.Wait(); err != nil {
		logging.Warn(batchCtx, "batch aborted", slog.Any("err", errs.Loggable(err)))
		return result, errs.Wrap(err, "run batch")
	}

	sort.Slice(result.Failures, func(i, j int) bool {
		return result.Failures[i].ForeignKey < result.Failures[j].ForeignKey
	})
	logging.Info(batchCtx, "batch finished",
		slog.Int("total", result.Total),
		slog.Int("changed", result.Changed),
		slog.Int("unchanged", result.Unchanged),
		slog.Int("failed", result.Failed),
	)
	return result, nil
}
