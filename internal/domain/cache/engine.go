package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/uniedit/sitecache/internal/port/outbound"
	"github.com/uniedit/sitecache/internal/shared/tenant"
	"github.com/uniedit/sitecache/internal/utils/requestctx"
)

// Entry is a cache entry as stored by the engine.
type Entry struct {
	ID       string
	Value    []byte
	Tags     []string
	ExpireAt *time.Time
}

// Engine implements set/get/delete and tag invalidation over a backend.
//
// Writes are non-atomic replaces: Set deletes the old entry and its tag
// memberships before writing the new one, so a concurrent reader may observe
// a miss in between. Backend errors are always returned to the caller.
type Engine struct {
	backend outbound.CacheBackend
	tags    *TagIndex
	config  *Config
	logger  *zap.Logger
}

// NewEngine creates a new cache engine.
func NewEngine(backend outbound.CacheBackend, config *Config, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		backend: backend,
		tags:    NewTagIndex(backend),
		config:  config.withDefaults(),
		logger:  logger,
	}
}

func (e *Engine) namespace(site string) (namespace, error) {
	if site == "" {
		return namespace{}, tenant.ErrNoTenant
	}
	return namespace{site: site, sep: e.config.Separator}, nil
}

// Set stores value under id for ttl. A ttl <= 0 means the entry never expires.
func (e *Engine) Set(ctx context.Context, site, id string, value []byte, ttl time.Duration, tags []string) error {
	var expireAt time.Time
	if ttl > 0 {
		expireAt = e.config.Clock().Add(ttl)
	}
	return e.SetUntil(ctx, site, id, value, expireAt, tags)
}

// SetUntil stores value under id until expireAt. A zero expireAt means never.
// An expireAt in the past only removes the existing entry.
func (e *Engine) SetUntil(ctx context.Context, site, id string, value []byte, expireAt time.Time, tags []string) error {
	ns, err := e.namespace(site)
	if err != nil {
		return err
	}
	if id == "" {
		return ErrInvalidID
	}

	if err := e.delete(ctx, ns, id); err != nil {
		return fmt.Errorf("replace %q: %w", id, err)
	}

	now := e.config.Clock()
	if !expireAt.IsZero() && !now.Before(expireAt) {
		e.logger.Debug("Cache entry already expired, not stored",
			zap.String("site", site),
			zap.String("id", id),
		)
		return nil
	}

	tags = normalizeTags(tags)
	data, err := encodeRecord(value, tags, expireAt)
	if err != nil {
		return err
	}

	var ttl time.Duration
	if !expireAt.IsZero() {
		ttl = expireAt.Sub(now)
	}

	if err := e.backend.Set(ctx, ns.entryKey(id), data, ttl); err != nil {
		return fmt.Errorf("set %q: %w", id, err)
	}
	if err := e.tags.Attach(ctx, ns, id, tags); err != nil {
		return fmt.Errorf("set %q: %w", id, err)
	}

	e.logger.Debug("Cache entry stored",
		zap.String("site", site),
		zap.String("id", id),
		zap.Strings("tags", tags),
		zap.Duration("ttl", ttl),
	)
	return nil
}

// Get returns the value stored under id, or ErrNotFound when it is absent or expired.
func (e *Engine) Get(ctx context.Context, site, id string) ([]byte, error) {
	entry, err := e.Lookup(ctx, site, id)
	if err != nil {
		return nil, err
	}
	return entry.Value, nil
}

// Lookup returns the full entry stored under id.
func (e *Engine) Lookup(ctx context.Context, site, id string) (*Entry, error) {
	ns, err := e.namespace(site)
	if err != nil {
		return nil, err
	}
	if id == "" {
		return nil, ErrInvalidID
	}

	data, err := e.backend.Get(ctx, ns.entryKey(id))
	if err != nil {
		if errors.Is(err, outbound.ErrCacheMiss) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get %q: %w", id, err)
	}

	rec, err := decodeRecord(data)
	if err != nil {
		return nil, fmt.Errorf("get %q: %w", id, err)
	}
	if rec.expired(e.config.Clock()) {
		return nil, ErrNotFound
	}

	entry := &Entry{ID: id, Value: rec.Value, Tags: rec.Tags}
	if rec.ExpireAt != 0 {
		t := rec.expireTime()
		entry.ExpireAt = &t
	}
	return entry, nil
}

// Delete removes id and its tag memberships. Deleting an absent id is not an error.
func (e *Engine) Delete(ctx context.Context, site, id string) error {
	ns, err := e.namespace(site)
	if err != nil {
		return err
	}
	if id == "" {
		return ErrInvalidID
	}
	if err := e.delete(ctx, ns, id); err != nil {
		return fmt.Errorf("delete %q: %w", id, err)
	}
	return nil
}

func (e *Engine) delete(ctx context.Context, ns namespace, id string) error {
	if err := e.tags.Detach(ctx, ns, id); err != nil {
		return err
	}
	return e.backend.Delete(ctx, ns.entryKey(id))
}

// DeleteMultiple removes every id with the semantics of Delete.
//
// Keys are removed in batches. When the backend fails, the returned
// *BatchDeleteError lists the IDs confirmed deleted and those left unknown.
func (e *Engine) DeleteMultiple(ctx context.Context, site string, ids []string) error {
	ns, err := e.namespace(site)
	if err != nil {
		return err
	}
	for _, id := range ids {
		if id == "" {
			return ErrInvalidID
		}
	}

	size := e.config.BatchSize
	deleted := make([]string, 0, len(ids))
	for start := 0; start < len(ids); start += size {
		end := min(start+size, len(ids))
		batch := ids[start:end]

		if err := e.deleteBatch(ctx, ns, batch); err != nil {
			e.logger.With(requestctx.Fields(ctx)...).Warn("Cache batch delete interrupted",
				zap.String("site", site),
				zap.Int("confirmed", len(deleted)),
				zap.Int("unknown", len(ids)-len(deleted)),
				zap.Error(err),
			)
			return &BatchDeleteError{
				Deleted: deleted,
				Unknown: append([]string(nil), ids[start:]...),
				Err:     err,
			}
		}
		deleted = append(deleted, batch...)
	}
	return nil
}

func (e *Engine) deleteBatch(ctx context.Context, ns namespace, ids []string) error {
	keys := make([]string, len(ids))
	for i, id := range ids {
		if err := e.tags.Detach(ctx, ns, id); err != nil {
			return err
		}
		keys[i] = ns.entryKey(id)
	}
	return e.backend.DeleteMultiple(ctx, keys)
}

// DeleteByTag removes every entry currently tagged with tag and clears the tag.
// A tag without entries is a no-op.
func (e *Engine) DeleteByTag(ctx context.Context, site, tag string) error {
	ns, err := e.namespace(site)
	if err != nil {
		return err
	}

	ids, err := e.tags.Members(ctx, ns, tag)
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}

	for _, id := range ids {
		if err := e.delete(ctx, ns, id); err != nil {
			return fmt.Errorf("delete tag %q: %w", tag, err)
		}
	}
	if err := e.tags.Clear(ctx, ns, tag); err != nil {
		return err
	}

	e.logger.Debug("Cache tag invalidated",
		zap.String("site", site),
		zap.String("tag", tag),
		zap.Int("entries", len(ids)),
	)
	return nil
}

// Search always returns an empty result. Key-value backends have no general
// query capability; only lookup by ID and invalidation by tag are supported.
func (e *Engine) Search(ctx context.Context, site string, criteria map[string]string) ([]*Entry, error) {
	if _, err := e.namespace(site); err != nil {
		return nil, err
	}
	e.logger.Debug("Cache search is not supported, returning no entries",
		zap.String("site", site),
		zap.Any("criteria", criteria),
	)
	return []*Entry{}, nil
}

// Close closes the backend.
func (e *Engine) Close() error {
	return e.backend.Close()
}
