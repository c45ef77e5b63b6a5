package model

import "time"

// CacheEntry is a cached value persisted by the database backend.
type CacheEntry struct {
	CacheKey  string     `json:"cache_key" gorm:"column:cache_key;primaryKey;size:512"`
	Value     []byte     `json:"value" gorm:"not null"`
	ExpiresAt *time.Time `json:"expires_at,omitempty" gorm:"index"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// TableName returns the table name for CacheEntry.
func (CacheEntry) TableName() string {
	return "cache_entries"
}

// Expired reports whether the entry is past its expiry at now.
func (e *CacheEntry) Expired(now time.Time) bool {
	return e.ExpiresAt != nil && !now.Before(*e.ExpiresAt)
}

// CacheTag links a tag key to an entry key.
type CacheTag struct {
	TagKey   string `json:"tag_key" gorm:"column:tag_key;primaryKey;size:512"`
	EntryKey string `json:"entry_key" gorm:"column:entry_key;primaryKey;size:512;index"`
}

// TableName returns the table name for CacheTag.
func (CacheTag) TableName() string {
	return "cache_tags"
}
