package model

// CacheEntry backs the SQLite read cache. An empty ExpiresAt never expires.
type CacheEntry struct {
	Key       string `gorm:"column:key;type:text;primaryKey"`
	Value     string `gorm:"column:value;type:text;not null"`
	ExpiresAt string `gorm:"column:expires_at;type:text;not null;default:''"`
	UpdatedAt string `gorm:"column:updated_at;type:text;not null"`
}

func (CacheEntry) TableName() string {
	return "reliability_cache"
}

// All returns every table the service owns, in migration order.
func All() []any {
	return []any{&FieldScore{}, &Summary{}, &AuditLog{}, &CacheEntry{}}
}
