package reliability

import (
	"context"
	"errors"

	domainreliability "reliability/internal/domain/reliability"
	"reliability/internal/errs"
	"reliability/internal/ports"
)

const summaryPageSize = 200

// GetSummary returns the entity's stored summary, served from cache when possible.
func (s *Service) GetSummary(ctx context.Context, model string, foreignKey string) (ports.SummaryRecord, error) {
	if err := s.checkReady(ctx); err != nil {
		return ports.SummaryRecord{}, err
	}
	key, err := domainreliability.ValidateEntityKey(domainreliability.EntityKey{Model: model, ForeignKey: foreignKey})
	if err != nil {
		return ports.SummaryRecord{}, err
	}

	if cached, ok := s.cachedSummary(ctx, key); ok {
		return cached, nil
	}

	generation := s.summaryGeneration()
	summary, err := s.repo.GetSummary(ctx, key.Model, key.ForeignKey)
	if err != nil {
		if errors.Is(err, ports.ErrSummaryNotFound) {
			return ports.SummaryRecord{}, domainreliability.NotFound("summary", key.String())
		}
		return ports.SummaryRecord{}, errs.Wrap(err, "get summary")
	}
	s.fillSummary(ctx, key, summary, generation)
	return summary, nil
}

// ListSummaries pages through summaries ordered by model and foreign key. An empty
// model lists every model.
func (s *Service) ListSummaries(ctx context.Context, model string, limit int, offset int) ([]ports.SummaryRecord, error) {
	if err := s.checkReady(ctx); err != nil {
		return nil, err
	}
	if offset < 0 {
		return nil, &domainreliability.ValidationError{Field: "offset", Reason: "must not be negative"}
	}

	items, err := s.repo.ListSummaries(ctx, ports.SummaryFilter{
		Model:  domainreliability.EntityKey{Model: model}.Normalize().Model,
		Limit:  clampLimit(limit, defaultRecentLimit),
		Offset: offset,
	})
	if err != nil {
		return nil, errs.Wrap(err, "list summaries")
	}
	return items, nil
}

func (s *Service) listAllSummaries(ctx context.Context, model string) ([]ports.SummaryRecord, error) {
	normalized := domainreliability.EntityKey{Model: model}.Normalize().Model
	if normalized == "" {
		return nil, &domainreliability.ValidationError{Field: "model", Reason: domainreliability.ErrModelRequired.Error()}
	}

	var all []ports.SummaryRecord
	for offset := 0; ; offset += summaryPageSize {
		if err := ctx.Err(); err != nil {
			return nil, errs.Wrap(err, "check context")
		}
		page, err := s.repo.ListSummaries(ctx, ports.SummaryFilter{Model: normalized, Limit: summaryPageSize, Offset: offset})
		if err != nil {
			return nil, errs.Wrap(err, "list summaries")
		}
		all = append(all, page...)
		if len(page) < summaryPageSize {
			return all, nil
		}
	}
}
