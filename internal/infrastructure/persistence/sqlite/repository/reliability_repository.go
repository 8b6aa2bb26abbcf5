package repository

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"reliability/internal/errs"
	"reliability/internal/infrastructure/persistence/sqlite/model"
	"reliability/internal/ports"
)

// timestampLayout is fixed width so text ordering matches time ordering.
const timestampLayout = "2006-01-02T15:04:05.000000000Z07:00"

type ReliabilityRepository struct {
	db *gorm.DB
}

var _ ports.ReliabilityRepository = (*ReliabilityRepository)(nil)

func NewReliabilityRepository(db *gorm.DB) *ReliabilityRepository {
	return &ReliabilityRepository{db: db}
}

func (r *ReliabilityRepository) dbFromContext(ctx context.Context) (*gorm.DB, error) {
	if ctx == nil {
		return nil, errors.New("context is required")
	}

	tx := ports.TxFromContext(ctx)
	if tx == nil {
		return r.db.WithContext(ctx), nil
	}

	gormTx, ok := tx.(*gorm.DB)
	if !ok || gormTx == nil {
		return nil, fmt.Errorf("invalid tx in context: %T", tx)
	}
	return gormTx.WithContext(ctx), nil
}

func (r *ReliabilityRepository) UpsertFieldScore(ctx context.Context, input ports.FieldScoreUpsert) (ports.FieldScoreRecord, error) {
	if ports.TxFromContext(ctx) != nil {
		db, err := r.dbFromContext(ctx)
		if err != nil {
			return ports.FieldScoreRecord{}, err
		}

		at := formatTimestamp(input.At)
		row := model.FieldScore{
			Model:      input.Model,
			ForeignKey: input.ForeignKey,
			Field:      input.Field,
			Score:      input.Score.StringFixed(2),
			Weight:     input.Weight.StringFixed(3),
			MaxScore:   input.MaxScore.StringFixed(2),
			Notes:      input.Notes,
			Created:    at,
			Modified:   at,
		}
		if err := db.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "model"}, {Name: "foreign_key"}, {Name: "field"}},
			DoUpdates: clause.Assignments(map[string]any{
				"score":     row.Score,
				"weight":    row.Weight,
				"max_score": row.MaxScore,
				"notes":     row.Notes,
				"modified":  row.Modified,
			}),
		}).Create(&row).Error; err != nil {
			return ports.FieldScoreRecord{}, errs.Wrap(errs.WithStack(err), "upsert field score")
		}

		var stored model.FieldScore
		if err := db.
			Where("model = ? AND foreign_key = ? AND field = ?", input.Model, input.ForeignKey, input.Field).
			Take(&stored).Error; err != nil {
			return ports.FieldScoreRecord{}, errs.Wrap(errs.WithStack(err), "query upserted field score")
		}
		return mapFieldScore(stored)
	}

	var upserted ports.FieldScoreRecord
	if err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		txCtx := ports.WithTxContext(ctx, tx)
		record, err := r.UpsertFieldScore(txCtx, input)
		if err != nil {
			return err
		}
		upserted = record
		return nil
	}); err != nil {
		return ports.FieldScoreRecord{}, err
	}
	return upserted, nil
}

func (r *ReliabilityRepository) ListFieldScores(ctx context.Context, modelName string, foreignKey string) ([]ports.FieldScoreRecord, error) {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return nil, err
	}

	var rows []model.FieldScore
	if err := db.
		Where("model = ? AND foreign_key = ?", modelName, foreignKey).
		Order("field asc").
		Find(&rows).Error; err != nil {
		return nil, errs.Wrap(errs.WithStack(err), "query field scores")
	}

	items := make([]ports.FieldScoreRecord, 0, len(rows))
	for _, row := range rows {
		item, err := mapFieldScore(row)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}

func (r *ReliabilityRepository) ListFieldValues(ctx context.Context, modelName string, field string) ([]decimal.Decimal, error) {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return nil, err
	}

	var raw []string
	if err := db.Model(&model.FieldScore{}).
		Where("model = ? AND field = ?", modelName, field).
		Order("foreign_key asc").
		Pluck("score", &raw).Error; err != nil {
		return nil, errs.Wrap(errs.WithStack(err), "query field values")
	}

	values := make([]decimal.Decimal, 0, len(raw))
	for _, item := range raw {
		value, err := parseDecimal("score", item)
		if err != nil {
			return nil, err
		}
		values = append(values, value)
	}
	return values, nil
}

// ListScoredEntities returns every foreign key of model that has field scores or a summary.
func (r *ReliabilityRepository) ListScoredEntities(ctx context.Context, modelName string) ([]string, error) {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return nil, err
	}

	var fromFields []string
	if err := db.Model(&model.FieldScore{}).
		Where("model = ?", modelName).
		Distinct("foreign_key").
		Pluck("foreign_key", &fromFields).Error; err != nil {
		return nil, errs.Wrap(errs.WithStack(err), "query scored entities from fields")
	}

	var fromSummaries []string
	if err := db.Model(&model.Summary{}).
		Where("model = ?", modelName).
		Pluck("foreign_key", &fromSummaries).Error; err != nil {
		return nil, errs.Wrap(errs.WithStack(err), "query scored entities from summaries")
	}

	seen := make(map[string]struct{}, len(fromFields)+len(fromSummaries))
	keys := make([]string, 0, len(fromFields)+len(fromSummaries))
	for _, key := range append(fromFields, fromSummaries...) {
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys, nil
}

func (r *ReliabilityRepository) GetSummary(ctx context.Context, modelName string, foreignKey string) (ports.SummaryRecord, error) {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return ports.SummaryRecord{}, err
	}

	var row model.Summary
	if err := db.Where("model = ? AND foreign_key = ?", modelName, foreignKey).Take(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ports.SummaryRecord{}, ports.ErrSummaryNotFound
		}
		return ports.SummaryRecord{}, errs.Wrap(errs.WithStack(err), "query summary")
	}
	return mapSummary(row)
}

func (r *ReliabilityRepository) CreateSummary(ctx context.Context, summary ports.SummaryRecord) error {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return err
	}

	row := summaryRow(summary)
	if err := db.Create(&row).Error; err != nil {
		if isDuplicateKey(err) {
			return fmt.Errorf("%w: summary %s:%s", ports.ErrDuplicateKey, summary.Model, summary.ForeignKey)
		}
		return errs.Wrap(errs.WithStack(err), "insert summary")
	}
	return nil
}

func (r *ReliabilityRepository) UpdateSummary(ctx context.Context, summary ports.SummaryRecord, expectedRevision int64) error {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return err
	}

	row := summaryRow(summary)
	result := db.Model(&model.Summary{}).
		Where("id = ? AND revision = ?", summary.ID, expectedRevision).
		Updates(map[string]any{
			"total_score":          row.TotalScore,
			"completeness_percent": row.CompletenessPercent,
			"field_scores_json":    row.FieldScoresJSON,
			"scoring_version":      row.ScoringVersion,
			"last_source":          row.LastSource,
			"last_calculated":      row.LastCalculated,
			"updated_by_user_id":   row.UpdatedByUserID,
			"updated_by_service":   row.UpdatedByService,
			"revision":             row.Revision,
			"modified":             row.Modified,
		})
	if result.Error != nil {
		return errs.Wrap(errs.WithStack(result.Error), "update summary")
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: summary %s expected revision %d", ports.ErrRevisionConflict, summary.ID, expectedRevision)
	}
	return nil
}

func (r *ReliabilityRepository) ListSummaries(ctx context.Context, filter ports.SummaryFilter) ([]ports.SummaryRecord, error) {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return nil, err
	}

	query := db.Model(&model.Summary{})
	if modelName := strings.TrimSpace(filter.Model); modelName != "" {
		query = query.Where("model = ?", modelName)
	}
	query = query.Order("model asc").Order("foreign_key asc")
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}
	if filter.Offset > 0 {
		query = query.Offset(filter.Offset)
	}

	var rows []model.Summary
	if err := query.Find(&rows).Error; err != nil {
		return nil, errs.Wrap(errs.WithStack(err), "query summaries")
	}

	items := make([]ports.SummaryRecord, 0, len(rows))
	for _, row := range rows {
		item, err := mapSummary(row)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}

func (r *ReliabilityRepository) InsertLog(ctx context.Context, entry ports.AuditLogRecord) error {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return err
	}

	var fromTotal *string
	if entry.FromTotalScore != nil {
		value := entry.FromTotalScore.StringFixed(4)
		fromTotal = &value
	}

	row := model.AuditLog{
		ID:                  entry.ID,
		Model:               entry.Model,
		ForeignKey:          entry.ForeignKey,
		Sequence:            entry.Sequence,
		ScoringVersion:      entry.ScoringVersion,
		FromTotalScore:      fromTotal,
		ToTotalScore:        entry.ToTotalScore.StringFixed(4),
		FromFieldScoresJSON: entry.FromFieldScoresJSON,
		ToFieldScoresJSON:   datatypes.JSON(entry.ToFieldScoresJSON),
		Source:              entry.Source,
		ActorUserID:         entry.ActorUserID,
		ActorService:        entry.ActorService,
		Message:             entry.Message,
		ChecksumSHA256:      entry.ChecksumSHA256,
		Created:             formatTimestamp(entry.Created),
	}
	if err := db.Create(&row).Error; err != nil {
		if isDuplicateKey(err) {
			return fmt.Errorf("%w: log %s:%s sequence %d", ports.ErrDuplicateKey, entry.Model, entry.ForeignKey, entry.Sequence)
		}
		return errs.Wrap(errs.WithStack(err), "insert audit log")
	}
	return nil
}

func (r *ReliabilityRepository) GetLog(ctx context.Context, modelName string, foreignKey string, logID string) (ports.AuditLogRecord, error) {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return ports.AuditLogRecord{}, err
	}

	var row model.AuditLog
	if err := db.
		Where("id = ? AND model = ? AND foreign_key = ?", logID, modelName, foreignKey).
		Take(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ports.AuditLogRecord{}, ports.ErrLogNotFound
		}
		return ports.AuditLogRecord{}, errs.Wrap(errs.WithStack(err), "query audit log")
	}
	return mapAuditLog(row)
}

func (r *ReliabilityRepository) LatestLog(ctx context.Context, modelName string, foreignKey string) (ports.AuditLogRecord, error) {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return ports.AuditLogRecord{}, err
	}

	var row model.AuditLog
	if err := db.
		Where("model = ? AND foreign_key = ?", modelName, foreignKey).
		Order("sequence desc").
		Take(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ports.AuditLogRecord{}, ports.ErrLogNotFound
		}
		return ports.AuditLogRecord{}, errs.Wrap(errs.WithStack(err), "query latest audit log")
	}
	return mapAuditLog(row)
}

// ListLogs orders by sequence within one entity and by created time across entities.
func (r *ReliabilityRepository) ListLogs(ctx context.Context, filter ports.AuditLogFilter) ([]ports.AuditLogRecord, error) {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return nil, err
	}

	direction := "asc"
	if filter.NewestFirst {
		direction = "desc"
	}

	query := db.Model(&model.AuditLog{})
	if modelName := strings.TrimSpace(filter.Model); modelName != "" {
		query = query.Where("model = ?", modelName)
	}
	if foreignKey := strings.TrimSpace(filter.ForeignKey); foreignKey != "" {
		query = query.Where("foreign_key = ?", foreignKey).Order("sequence " + direction)
	} else {
		query = query.Order("created " + direction).Order("id " + direction)
	}
	if filter.OnlyTransitions {
		query = query.Where("from_total_score IS NOT NULL")
	}
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}
	if filter.Offset > 0 {
		query = query.Offset(filter.Offset)
	}

	var rows []model.AuditLog
	if err := query.Find(&rows).Error; err != nil {
		return nil, errs.Wrap(errs.WithStack(err), "query audit logs")
	}

	items := make([]ports.AuditLogRecord, 0, len(rows))
	for _, row := range rows {
		item, err := mapAuditLog(row)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}

func summaryRow(summary ports.SummaryRecord) model.Summary {
	var lastCalculated *string
	if summary.LastCalculated != nil {
		value := formatTimestamp(*summary.LastCalculated)
		lastCalculated = &value
	}
	return model.Summary{
		ID:                  summary.ID,
		Model:               summary.Model,
		ForeignKey:          summary.ForeignKey,
		TotalScore:          summary.TotalScore.StringFixed(4),
		CompletenessPercent: summary.CompletenessPercent.StringFixed(2),
		FieldScoresJSON:     datatypes.JSON(summary.FieldScoresJSON),
		ScoringVersion:      summary.ScoringVersion,
		LastSource:          summary.LastSource,
		LastCalculated:      lastCalculated,
		UpdatedByUserID:     summary.UpdatedByUserID,
		UpdatedByService:    summary.UpdatedByService,
		Revision:            summary.Revision,
		Created:             formatTimestamp(summary.Created),
		Modified:            formatTimestamp(summary.Modified),
	}
}

func mapFieldScore(row model.FieldScore) (ports.FieldScoreRecord, error) {
	score, err := parseDecimal("score", row.Score)
	if err != nil {
		return ports.FieldScoreRecord{}, err
	}
	weight, err := parseDecimal("weight", row.Weight)
	if err != nil {
		return ports.FieldScoreRecord{}, err
	}
	maxScore, err := parseDecimal("max_score", row.MaxScore)
	if err != nil {
		return ports.FieldScoreRecord{}, err
	}
	created, err := parseTimestamp("created", row.Created)
	if err != nil {
		return ports.FieldScoreRecord{}, err
	}
	modified, err := parseTimestamp("modified", row.Modified)
	if err != nil {
		return ports.FieldScoreRecord{}, err
	}
	return ports.FieldScoreRecord{
		Model:      row.Model,
		ForeignKey: row.ForeignKey,
		Field:      row.Field,
		Score:      score,
		Weight:     weight,
		MaxScore:   maxScore,
		Notes:      row.Notes,
		Created:    created,
		Modified:   modified,
	}, nil
}

func mapSummary(row model.Summary) (ports.SummaryRecord, error) {
	total, err := parseDecimal("total_score", row.TotalScore)
	if err != nil {
		return ports.SummaryRecord{}, err
	}
	completeness, err := parseDecimal("completeness_percent", row.CompletenessPercent)
	if err != nil {
		return ports.SummaryRecord{}, err
	}
	created, err := parseTimestamp("created", row.Created)
	if err != nil {
		return ports.SummaryRecord{}, err
	}
	modified, err := parseTimestamp("modified", row.Modified)
	if err != nil {
		return ports.SummaryRecord{}, err
	}

	var lastCalculated *time.Time
	if row.LastCalculated != nil {
		value, err := parseTimestamp("last_calculated", *row.LastCalculated)
		if err != nil {
			return ports.SummaryRecord{}, err
		}
		lastCalculated = &value
	}

	return ports.SummaryRecord{
		ID:                  row.ID,
		Model:               row.Model,
		ForeignKey:          row.ForeignKey,
		TotalScore:          total,
		CompletenessPercent: completeness,
		FieldScoresJSON:     string(row.FieldScoresJSON),
		ScoringVersion:      row.ScoringVersion,
		LastSource:          row.LastSource,
		LastCalculated:      lastCalculated,
		UpdatedByUserID:     row.UpdatedByUserID,
		UpdatedByService:    row.UpdatedByService,
		Revision:            row.Revision,
		Created:             created,
		Modified:            modified,
	}, nil
}

func mapAuditLog(row model.AuditLog) (ports.AuditLogRecord, error) {
	toTotal, err := parseDecimal("to_total_score", row.ToTotalScore)
	if err != nil {
		return ports.AuditLogRecord{}, err
	}
	created, err := parseTimestamp("created", row.Created)
	if err != nil {
		return ports.AuditLogRecord{}, err
	}

	var fromTotal *decimal.Decimal
	if row.FromTotalScore != nil {
		value, err := parseDecimal("from_total_score", *row.FromTotalScore)
		if err != nil {
			return ports.AuditLogRecord{}, err
		}
		fromTotal = &value
	}

	return ports.AuditLogRecord{
		ID:                  row.ID,
		Model:               row.Model,
		ForeignKey:          row.ForeignKey,
		Sequence:            row.Sequence,
		ScoringVersion:      row.ScoringVersion,
		FromTotalScore:      fromTotal,
		ToTotalScore:        toTotal,
		FromFieldScoresJSON: row.FromFieldScoresJSON,
		ToFieldScoresJSON:   string(row.ToFieldScoresJSON),
		Source:              row.Source,
		ActorUserID:         row.ActorUserID,
		ActorService:        row.ActorService,
		Message:             row.Message,
		ChecksumSHA256:      row.ChecksumSHA256,
		Created:             created,
	}, nil
}

func parseDecimal(column string, raw string) (decimal.Decimal, error) {
	value, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return decimal.Decimal{}, errs.Wrapf(err, "parse %s %q", column, raw)
	}
	return value, nil
}

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}

func parseTimestamp(column string, raw string) (time.Time, error) {
	value, err := time.Parse(timestampLayout, strings.TrimSpace(raw))
	if err != nil {
		return time.Time{}, errs.Wrapf(err, "parse %s %q", column, raw)
	}
	return value, nil
}

func isDuplicateKey(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
