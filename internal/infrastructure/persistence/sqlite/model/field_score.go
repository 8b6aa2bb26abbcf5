package model

// FieldScore stores one field's score for one entity. Decimals are fixed-point text.
type FieldScore struct {
	Model      string  `gorm:"column:model;type:text;primaryKey;index:idx_reliability_fields_model_field,priority:1"`
	ForeignKey string  `gorm:"column:foreign_key;type:text;primaryKey"`
	Field      string  `gorm:"column:field;type:text;primaryKey;index:idx_reliability_fields_model_field,priority:2"`
	Score      string  `gorm:"column:score;type:text;not null;default:'0.00'"`
	Weight     string  `gorm:"column:weight;type:text;not null;default:'0.000'"`
	MaxScore   string  `gorm:"column:max_score;type:text;not null;default:'1.00'"`
	Notes      *string `gorm:"column:notes;type:text"`
	Created    string  `gorm:"column:created;type:text;not null"`
	Modified   string  `gorm:"column:modified;type:text;not null"`
}

func (FieldScore) TableName() string {
	return "products_reliability_fields"
}
