package model

import "gorm.io/datatypes"

type Summary struct {
	ID                  string         `gorm:"column:id;type:text;primaryKey"`
	Model               string         `gorm:"column:model;type:text;not null;uniqueIndex:idx_reliability_entity,priority:1"`
	ForeignKey          string         `gorm:"column:foreign_key;type:text;not null;uniqueIndex:idx_reliability_entity,priority:2"`
	TotalScore          string         `gorm:"column:total_score;type:text;not null;default:'0.0000'"`
	CompletenessPercent string         `gorm:"column:completeness_percent;type:text;not null;default:'0.00'"`
	FieldScoresJSON     datatypes.JSON `gorm:"column:field_scores_json;type:text;not null"`
	ScoringVersion      string         `gorm:"column:scoring_version;type:text;not null"`
	LastSource          string         `gorm:"column:last_source;type:text;not null"`
	LastCalculated      *string        `gorm:"column:last_calculated;type:text"`
	UpdatedByUserID     *string        `gorm:"column:updated_by_user_id;type:text"`
	UpdatedByService    *string        `gorm:"column:updated_by_service;type:text"`
	Revision            int64          `gorm:"column:revision;not null;default:1"`
	Created             string         `gorm:"column:created;type:text;not null"`
	Modified            string         `gorm:"column:modified;type:text;not null"`
}

func (Summary) TableName() string {
	return "products_reliability"
}
