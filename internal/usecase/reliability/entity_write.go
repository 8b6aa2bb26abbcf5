package reliability

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"reliability/internal/bootstrap/logging"
	domainreliability "reliability/internal/domain/reliability"
	"reliability/internal/errs"
	"reliability/internal/ports"
)

// writeScope collects what must happen after a write transaction commits.
type writeScope struct {
	appended []ports.AuditLogRecord
}

// withEntityWrite runs fn in one transaction while holding the entity's write lock.
// A held lock, a stale summary revision and a taken log sequence all surface as
// ErrConcurrencyConflict.
func (s *Service) withEntityWrite(ctx context.Context, key domainreliability.EntityKey, operation string, fn func(txCtx context.Context, scope *writeScope) error) error {
	if s.locker == nil {
		return errors.New("reliability key locker is required")
	}

	unlock, ok := s.locker.TryLock(key.String())
	if !ok {
		s.observeConflict(operation)
		logging.Warn(ctx, "entity write rejected, lock held", slog.String("operation", operation))
		return domainreliability.Conflict(key, "another write holds the entity lock")
	}
	defer unlock()

	scope := &writeScope{}
	err := s.uow.WithTx(ctx, func(txCtx context.Context) error {
		return fn(txCtx, scope)
	})
	if err != nil {
		if errors.Is(err, ports.ErrRevisionConflict) || errors.Is(err, ports.ErrDuplicateKey) {
			s.observeConflict(operation)
			logging.Warn(ctx, "entity write lost a race", slog.String("operation", operation), slog.Any("err", errs.Loggable(err)))
			return domainreliability.Conflict(key, err.Error())
		}
		return err
	}

	s.invalidateSummary(ctx, key)
	for _, entry := range scope.appended {
		s.observeLogAppended(entry.Model)
		s.publishAppended(ctx, entry)
	}
	return nil
}

func (s *Service) publishAppended(ctx context.Context, entry ports.AuditLogRecord) {
	if s.events == nil {
		return
	}

	var fromTotal *string
	if entry.FromTotalScore != nil {
		value := domainreliability.FormatTotal(*entry.FromTotalScore)
		fromTotal = &value
	}
	event := ports.LogAppendedEvent{
		LogID:          entry.ID,
		Model:          entry.Model,
		ForeignKey:     entry.ForeignKey,
		Sequence:       entry.Sequence,
		ScoringVersion: entry.ScoringVersion,
		FromTotalScore: fromTotal,
		ToTotalScore:   domainreliability.FormatTotal(entry.ToTotalScore),
		ChecksumSHA256: entry.ChecksumSHA256,
		Created:        domainreliability.FormatTimestamp(entry.Created),
	}
	if err := s.events.PublishLogAppended(ctx, event); err != nil {
		logging.Warn(ctx, "publish log appended event failed", slog.String("log_id", entry.ID), slog.Any("err", errs.Loggable(err)))
	}
}

func summaryCacheKey(key domainreliability.EntityKey) string {
	return "summary:" + key.Model + ":" + key.ForeignKey
}

func (s *Service) cachedSummary(ctx context.Context, key domainreliability.EntityKey) (ports.SummaryRecord, bool) {
	if s.cache == nil {
		return ports.SummaryRecord{}, false
	}
	raw, found, err := s.cache.Get(ctx, summaryCacheKey(key))
	if err != nil {
		logging.Warn(ctx, "summary cache read failed", slog.Any("err", errs.Loggable(err)))
		return ports.SummaryRecord{}, false
	}
	if !found {
		return ports.SummaryRecord{}, false
	}
	var summary ports.SummaryRecord
	if err := json.Unmarshal([]byte(raw), &summary); err != nil {
		logging.Warn(ctx, "summary cache entry unreadable", slog.Any("err", errs.Loggable(err)))
		return ports.SummaryRecord{}, false
	}
	return summary, true
}

func (s *Service) summaryGeneration() uint64 {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	return s.cacheGeneration
}

// fillSummary caches a summary read outside the entity lock. A write that
// invalidated the cache after generation was taken may have committed a newer row,
// so the fill is dropped.
func (s *Service) fillSummary(ctx context.Context, key domainreliability.EntityKey, summary ports.SummaryRecord, generation uint64) {
	if s.cache == nil {
		return
	}
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	if s.cacheGeneration != generation {
		logging.Debug(ctx, "summary cache fill skipped, write in between", slog.Int64("revision", summary.Revision))
		return
	}
	s.storeSummary(ctx, key, summary)
}

func (s *Service) storeSummary(ctx context.Context, key domainreliability.EntityKey, summary ports.SummaryRecord) {
	raw, err := json.Marshal(summary)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, summaryCacheKey(key), string(raw), s.summaryTTL); err != nil {
		logging.Warn(ctx, "summary cache write failed", slog.Any("err", errs.Loggable(err)))
	}
}

func (s *Service) invalidateSummary(ctx context.Context, key domainreliability.EntityKey) {
	if s.cache == nil {
		return
	}
	s.cacheMu.Lock()
	s.cacheGeneration++
	s.cacheMu.Unlock()
	if err := s.cache.Delete(ctx, summaryCacheKey(key)); err != nil {
		logging.Warn(ctx, "summary cache invalidation failed", slog.Any("err", errs.Loggable(err)))
	}
}

func (s *Service) observeConflict(operation string) {
	if s.metrics != nil {
		s.metrics.ObserveConflict(operation)
	}
}

func (s *Service) observeLogAppended(model string) {
	if s.metrics != nil {
		s.metrics.ObserveLogAppended(model)
	}
}

func (s *Service) observeRecompute(model string, outcome string) {
	if s.metrics != nil {
		s.metrics.ObserveRecompute(model, outcome)
	}
}

func (s *Service) observeChecksum(valid bool) {
	if s.metrics != nil {
		s.metrics.ObserveChecksum(valid)
	}
}

func (s *Service) entityContext(ctx context.Context, key domainreliability.EntityKey) context.Context {
	ctx = logging.WithAttrs(ctx, slog.String("component", "usecase.reliability"))
	return logging.WithEntity(ctx, key.Model, key.ForeignKey)
}
