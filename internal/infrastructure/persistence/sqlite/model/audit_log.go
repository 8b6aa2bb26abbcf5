package model

import "gorm.io/datatypes"

// AuditLog rows are insert-only.
type AuditLog struct {
	ID                  string         `gorm:"column:id;type:text;primaryKey"`
	Model               string         `gorm:"column:model;type:text;not null;uniqueIndex:idx_reliability_logs_entity_sequence,priority:1;index:idx_reliability_logs_model_created,priority:1"`
	ForeignKey          string         `gorm:"column:foreign_key;type:text;not null;uniqueIndex:idx_reliability_logs_entity_sequence,priority:2"`
	Sequence            int64          `gorm:"column:sequence;not null;uniqueIndex:idx_reliability_logs_entity_sequence,priority:3"`
	ScoringVersion      string         `gorm:"column:scoring_version;type:text;not null"`
	FromTotalScore      *string        `gorm:"column:from_total_score;type:text"`
	ToTotalScore        string         `gorm:"column:to_total_score;type:text;not null"`
	FromFieldScoresJSON *string        `gorm:"column:from_field_scores_json;type:text"`
	ToFieldScoresJSON   datatypes.JSON `gorm:"column:to_field_scores_json;type:text;not null"`
	Source              string         `gorm:"column:source;type:text;not null"`
	ActorUserID         *string        `gorm:"column:actor_user_id;type:text"`
	ActorService        *string        `gorm:"column:actor_service;type:text"`
	Message             *string        `gorm:"column:message;type:text"`
	ChecksumSHA256      string         `gorm:"column:checksum_sha256;type:text;not null"`
	Created             string         `gorm:"column:created;type:text;not null;index:idx_reliability_logs_model_created,priority:2"`
}

func (AuditLog) TableName() string {
	return "products_reliability_logs"
}
