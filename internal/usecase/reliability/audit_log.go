package reliability

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"reliability/internal/bootstrap/logging"
	domainreliability "reliability/internal/domain/reliability"
	"reliability/internal/errs"
	"reliability/internal/ports"
)

const significantPageSize = 500

// AppendLog writes one audit entry without touching the summary. The sequence and
// the from values are taken from the entity's previous entry.
func (s *Service) AppendLog(ctx context.Context, input AppendLogInput) (ports.AuditLogRecord, error) {
	if err := s.checkReady(ctx); err != nil {
		return ports.AuditLogRecord{}, err
	}
	key, err := domainreliability.ValidateEntityKey(domainreliability.EntityKey{Model: input.Model, ForeignKey: input.ForeignKey})
	if err != nil {
		return ports.AuditLogRecord{}, err
	}
	if _, err := domainreliability.ValidateScoringVersion(input.ScoringVersion); err != nil {
		return ports.AuditLogRecord{}, err
	}
	if strings.TrimSpace(input.ToFieldScoresJSON) == "" {
		return ports.AuditLogRecord{}, &domainreliability.ValidationError{Field: "to_field_scores_json", Reason: "is required"}
	}
	if _, err := domainreliability.ParseSnapshot(input.ToFieldScoresJSON); err != nil {
		return ports.AuditLogRecord{}, &domainreliability.ValidationError{Field: "to_field_scores_json", Reason: err.Error()}
	}
	if err := domainreliability.ValidateTotalScore("to_total_score", input.ToTotalScore); err != nil {
		return ports.AuditLogRecord{}, err
	}

	logCtx := s.entityContext(ctx, key)
	var appended ports.AuditLogRecord
	if err := s.withEntityWrite(logCtx, key, "append_log", func(txCtx context.Context, scope *writeScope) error {
		entry, appendErr := s.appendLogTx(txCtx, key, input, s.now())
		if appendErr != nil {
			return appendErr
		}
		scope.appended = append(scope.appended, entry)
		appended = entry
		return nil
	}); err != nil {
		return ports.AuditLogRecord{}, err
	}
	return appended, nil
}

func (s *Service) appendLogTx(ctx context.Context, key domainreliability.EntityKey, input AppendLogInput, created time.Time) (ports.AuditLogRecord, error) {
	entry := ports.AuditLogRecord{
		ID:                s.newID(),
		Model:             key.Model,
		ForeignKey:        key.ForeignKey,
		Sequence:          1,
		ScoringVersion:    input.ScoringVersion,
		ToTotalScore:      input.ToTotalScore.Round(domainreliability.TotalScale),
		ToFieldScoresJSON: input.ToFieldScoresJSON,
		Source:            normalizeSource(input.Source),
		ActorUserID:       optionalString(input.Actor.UserID),
		ActorService:      optionalString(input.Actor.Service),
		Message:           optionalString(input.Message),
		Created:           created.UTC(),
	}

	previous, err := s.repo.LatestLog(ctx, key.Model, key.ForeignKey)
	switch {
	case err == nil:
		fromTotal := previous.ToTotalScore
		fromSnapshot := previous.ToFieldScoresJSON
		entry.Sequence = previous.Sequence + 1
		entry.FromTotalScore = &fromTotal
		entry.FromFieldScoresJSON = &fromSnapshot
	case errors.Is(err, ports.ErrLogNotFound):
	default:
		return ports.AuditLogRecord{}, errs.Wrap(err, "get latest audit log")
	}

	entry.ChecksumSHA256 = domainreliability.ComputeChecksum(logContent(entry))
	if err := s.repo.InsertLog(ctx, entry); err != nil {
		return ports.AuditLogRecord{}, err
	}
	return entry, nil
}

// VerifyChecksum recomputes the stored entry's checksum. A mismatch is a result, not an error.
func (s *Service) VerifyChecksum(ctx context.Context, input VerifyChecksumInput) (ChecksumResult, error) {
	if err := s.checkReady(ctx); err != nil {
		return ChecksumResult{}, err
	}
	key, err := domainreliability.ValidateEntityKey(domainreliability.EntityKey{Model: input.Model, ForeignKey: input.ForeignKey})
	if err != nil {
		return ChecksumResult{}, err
	}

	entry, err := s.repo.GetLog(ctx, key.Model, key.ForeignKey, input.LogID)
	if err != nil {
		if errors.Is(err, ports.ErrLogNotFound) {
			return ChecksumResult{}, domainreliability.NotFound("audit log", input.LogID)
		}
		return ChecksumResult{}, errs.Wrap(err, "get audit log")
	}

	computed, valid := domainreliability.VerifyChecksum(entry.ChecksumSHA256, logContent(entry))
	s.observeChecksum(valid)
	if !valid {
		logging.Warn(s.entityContext(ctx, key), "audit log checksum mismatch",
			slog.String("log_id", entry.ID),
			slog.Int64("sequence", entry.Sequence),
			slog.String("stored", entry.ChecksumSHA256),
			slog.String("computed", computed),
		)
	}
	return ChecksumResult{LogID: entry.ID, Valid: valid, Stored: entry.ChecksumSHA256, Computed: computed}, nil
}

// FindRecentLogs returns the entity's newest entries first.
func (s *Service) FindRecentLogs(ctx context.Context, model string, foreignKey string, limit int) ([]ports.AuditLogRecord, error) {
	if err := s.checkReady(ctx); err != nil {
		return nil, err
	}
	key, err := domainreliability.ValidateEntityKey(domainreliability.EntityKey{Model: model, ForeignKey: foreignKey})
	if err != nil {
		return nil, err
	}

	items, err := s.repo.ListLogs(ctx, ports.AuditLogFilter{
		Model:       key.Model,
		ForeignKey:  key.ForeignKey,
		NewestFirst: true,
		Limit:       clampLimit(limit, defaultRecentLimit),
	})
	if err != nil {
		return nil, errs.Wrap(err, "list recent audit logs")
	}
	return items, nil
}

// FindSignificantChanges returns transitions of model whose total moved by at
// least the threshold, newest first. First entries have no from total and never match.
func (s *Service) FindSignificantChanges(ctx context.Context, input SignificantChangesInput) ([]ports.AuditLogRecord, error) {
	if err := s.checkReady(ctx); err != nil {
		return nil, err
	}
	model := domainreliability.EntityKey{Model: input.Model}.Normalize().Model
	if model == "" {
		return nil, &domainreliability.ValidationError{Field: "model", Reason: domainreliability.ErrModelRequired.Error()}
	}

	threshold := s.significantThreshold
	if input.Threshold != "" {
		parsed, err := domainreliability.ParseDecimal("threshold", input.Threshold, domainreliability.TotalScale)
		if err != nil {
			return nil, err
		}
		threshold = parsed
	}
	if threshold.IsNegative() {
		return nil, &domainreliability.ValidationError{Field: "threshold", Reason: "must not be negative"}
	}
	limit := clampLimit(input.Limit, defaultRecentLimit)

	matches := make([]ports.AuditLogRecord, 0, limit)
	for offset := 0; len(matches) < limit; offset += significantPageSize {
		page, err := s.repo.ListLogs(ctx, ports.AuditLogFilter{
			Model:           model,
			OnlyTransitions: true,
			NewestFirst:     true,
			Limit:           significantPageSize,
			Offset:          offset,
		})
		if err != nil {
			return nil, errs.Wrap(err, "list audit log transitions")
		}
		for _, entry := range page {
			if isSignificant(entry, threshold) {
				matches = append(matches, entry)
				if len(matches) == limit {
					break
				}
			}
		}
		if len(page) < significantPageSize {
			break
		}
	}
	return matches, nil
}

func isSignificant(entry ports.AuditLogRecord, threshold decimal.Decimal) bool {
	if entry.FromTotalScore == nil {
		return false
	}
	return entry.ToTotalScore.Sub(*entry.FromTotalScore).Abs().GreaterThanOrEqual(threshold)
}

// VerifyChain checks every checksum of the entity and that each entry starts where
// the previous one ended.
func (s *Service) VerifyChain(ctx context.Context, model string, foreignKey string) (ChainReport, error) {
	if err := s.checkReady(ctx); err != nil {
		return ChainReport{}, err
	}
	key, err := domainreliability.ValidateEntityKey(domainreliability.EntityKey{Model: model, ForeignKey: foreignKey})
	if err != nil {
		return ChainReport{}, err
	}

	entries, err := s.repo.ListLogs(ctx, ports.AuditLogFilter{Model: key.Model, ForeignKey: key.ForeignKey})
	if err != nil {
		return ChainReport{}, errs.Wrap(err, "list audit logs")
	}
	if len(entries) == 0 {
		return ChainReport{}, domainreliability.NotFound("audit log", key.String())
	}

	links := make([]domainreliability.ChainLink, 0, len(entries))
	for _, entry := range entries {
		_, valid := domainreliability.VerifyChecksum(entry.ChecksumSHA256, logContent(entry))
		s.observeChecksum(valid)
		links = append(links, domainreliability.ChainLink{
			LogID:         entry.ID,
			Sequence:      entry.Sequence,
			FromTotal:     entry.FromTotalScore,
			ToTotal:       entry.ToTotalScore,
			ChecksumValid: valid,
		})
	}

	breaks := domainreliability.CheckChain(links)
	report := ChainReport{
		Model:      key.Model,
		ForeignKey: key.ForeignKey,
		Entries:    len(entries),
		Valid:      len(breaks) == 0,
		Breaks:     breaks,
	}
	if !report.Valid {
		logging.Warn(s.entityContext(ctx, key), "audit chain broken", slog.Int("breaks", len(breaks)))
	}
	return report, nil
}

// ListLogs pages through audit entries in chronological order.
func (s *Service) ListLogs(ctx context.Context, query LogQuery) ([]ports.AuditLogRecord, error) {
	if err := s.checkReady(ctx); err != nil {
		return nil, err
	}
	filter := ports.AuditLogFilter{
		Model:  domainreliability.EntityKey{Model: query.Model}.Normalize().Model,
		Limit:  clampLimit(query.Limit, maxListLimit),
		Offset: query.Offset,
	}
	if query.ForeignKey != "" {
		key, err := domainreliability.ValidateEntityKey(domainreliability.EntityKey{Model: query.Model, ForeignKey: query.ForeignKey})
		if err != nil {
			return nil, err
		}
		filter.ForeignKey = key.ForeignKey
	}

	items, err := s.repo.ListLogs(ctx, filter)
	if err != nil {
		return nil, errs.Wrap(err, "list audit logs")
	}
	return items, nil
}

func logContent(entry ports.AuditLogRecord) domainreliability.LogContent {
	return domainreliability.LogContent{
		Model:          entry.Model,
		ForeignKey:     entry.ForeignKey,
		Sequence:       entry.Sequence,
		ScoringVersion: entry.ScoringVersion,
		FromTotal:      entry.FromTotalScore,
		ToTotal:        entry.ToTotalScore,
		FromSnapshot:   entry.FromFieldScoresJSON,
		ToSnapshot:     entry.ToFieldScoresJSON,
		Source:         entry.Source,
		ActorUserID:    derefString(entry.ActorUserID),
		ActorService:   derefString(entry.ActorService),
		Message:        derefString(entry.Message),
		Created:        entry.Created,
	}
}
