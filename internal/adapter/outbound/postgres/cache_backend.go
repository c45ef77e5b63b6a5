package postgres

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/uniedit/sitecache/internal/model"
	"github.com/uniedit/sitecache/internal/port/outbound"
)

// CacheBackendName is the registry name of the database backend.
const CacheBackendName = "database"

// cacheBackend implements outbound.CacheBackend on a relational database.
// Expiry is checked on read; expired rows stay until overwritten or deleted.
type cacheBackend struct {
	db  *gorm.DB
	now func() time.Time
}

// NewCacheBackend creates a database cache backend.
func NewCacheBackend(db *gorm.DB) outbound.CacheBackend {
	return &cacheBackend{db: db, now: time.Now}
}

// MigrateCache creates the cache tables.
func MigrateCache(db *gorm.DB) error {
	return db.AutoMigrate(&model.CacheEntry{}, &model.CacheTag{})
}

func unavailable(op string, err error) error {
	return outbound.Unavailable(CacheBackendName, op, err)
}

func (b *cacheBackend) Get(ctx context.Context, key string) ([]byte, error) {
	var entry model.CacheEntry
	err := b.db.WithContext(ctx).First(&entry, "cache_key = ?", key).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, outbound.ErrCacheMiss
	}
	if err != nil {
		return nil, unavailable("select", err)
	}
	if entry.Expired(b.now()) {
		return nil, outbound.ErrCacheMiss
	}
	return entry.Value, nil
}

func (b *cacheBackend) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	entry := &model.CacheEntry{
		CacheKey: key,
		Value:    value,
	}
	if ttl > 0 {
		expiresAt := b.now().Add(ttl)
		entry.ExpiresAt = &expiresAt
	}

	err := b.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "cache_key"}},
			DoUpdates: clause.AssignmentColumns([]string{"value", "expires_at", "updated_at"}),
		}).
		Create(entry).Error
	return unavailable("upsert", err)
}

func (b *cacheBackend) Delete(ctx context.Context, key string) error {
	err := b.db.WithContext(ctx).
		Where("cache_key = ?", key).
		Delete(&model.CacheEntry{}).Error
	return unavailable("delete", err)
}

func (b *cacheBackend) DeleteMultiple(ctx context.Context, keys []string) error {
	if len(keys) == 0 {
		return nil
	}
	err := b.db.WithContext(ctx).
		Where("cache_key IN ?", keys).
		Delete(&model.CacheEntry{}).Error
	return unavailable("delete", err)
}

func (b *cacheBackend) AddTagMembership(ctx context.Context, tagKey, entryKey string) error {
	err := b.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&model.CacheTag{TagKey: tagKey, EntryKey: entryKey}).Error
	return unavailable("insert tag", err)
}

func (b *cacheBackend) RemoveTagMembership(ctx context.Context, tagKey, entryKey string) error {
	err := b.db.WithContext(ctx).
		Where("tag_key = ? AND entry_key = ?", tagKey, entryKey).
		Delete(&model.CacheTag{}).Error
	return unavailable("delete tag", err)
}

// tagMember is a membership joined with the entry it points at.
// CacheKey is nil when the entry row is gone.
type tagMember struct {
	EntryKey  string
	CacheKey  *string
	ExpiresAt *time.Time
}

// IDsForTag returns the members of tagKey whose entries exist and are live.
// Memberships of missing or expired entries are deleted.
func (b *cacheBackend) IDsForTag(ctx context.Context, tagKey string) ([]string, error) {
	var rows []tagMember
	err := b.db.WithContext(ctx).
		Model(&model.CacheTag{}).
		Select("cache_tags.entry_key, cache_entries.cache_key, cache_entries.expires_at").
		Joins("LEFT JOIN cache_entries ON cache_entries.cache_key = cache_tags.entry_key").
		Where("cache_tags.tag_key = ?", tagKey).
		Order("cache_tags.entry_key").
		Scan(&rows).Error
	if err != nil {
		return nil, unavailable("select tag", err)
	}

	now := b.now()
	keys := make([]string, 0, len(rows))
	var stale []string
	for _, row := range rows {
		entry := model.CacheEntry{ExpiresAt: row.ExpiresAt}
		if row.CacheKey == nil || entry.Expired(now) {
			stale = append(stale, row.EntryKey)
			continue
		}
		keys = append(keys, row.EntryKey)
	}
	if len(stale) == 0 {
		return keys, nil
	}

	err = b.db.WithContext(ctx).
		Where("tag_key = ? AND entry_key IN ?", tagKey, stale).
		Delete(&model.CacheTag{}).Error
	if err != nil {
		return nil, unavailable("delete tag", err)
	}
	return keys, nil
}

func (b *cacheBackend) TagsForID(ctx context.Context, entryKey string) ([]string, error) {
	var tags []string
	err := b.db.WithContext(ctx).
		Model(&model.CacheTag{}).
		Where("entry_key = ?", entryKey).
		Order("tag_key").
		Pluck("tag_key", &tags).Error
	if err != nil {
		return nil, unavailable("select tag", err)
	}
	return tags, nil
}

func (b *cacheBackend) ClearTag(ctx context.Context, tagKey string) error {
	err := b.db.WithContext(ctx).
		Where("tag_key = ?", tagKey).
		Delete(&model.CacheTag{}).Error
	return unavailable("delete tag", err)
}

func (b *cacheBackend) Close() error {
	sqlDB, err := b.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Compile-time check
var _ outbound.CacheBackend = (*cacheBackend)(nil)
