package guard

import (
	"context"
	"errors"
	"time"

	"github.com/uniedit/sitecache/internal/port/outbound"
	"github.com/uniedit/sitecache/internal/utils/metrics"
)

// meteredBackend records operation counts, latency and hit ratio.
type meteredBackend struct {
	next    outbound.CacheBackend
	name    string
	metrics *metrics.Metrics
}

// NewMetered wraps next with Prometheus instrumentation.
func NewMetered(next outbound.CacheBackend, name string, m *metrics.Metrics) outbound.CacheBackend {
	return &meteredBackend{next: next, name: name, metrics: m}
}

func (b *meteredBackend) observe(op string, start time.Time, err error) {
	result := "ok"
	switch {
	case err == nil:
	case errors.Is(err, outbound.ErrCacheMiss):
		result = "miss"
	default:
		result = "error"
	}
	b.metrics.RecordBackendOp(b.name, op, result, time.Since(start))
}

func (b *meteredBackend) Get(ctx context.Context, key string) ([]byte, error) {
	start := time.Now()
	data, err := b.next.Get(ctx, key)
	b.observe("get", start, err)

	switch {
	case err == nil:
		b.metrics.RecordCacheHit(b.name)
	case errors.Is(err, outbound.ErrCacheMiss):
		b.metrics.RecordCacheMiss(b.name)
	}
	return data, err
}

func (b *meteredBackend) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	start := time.Now()
	err := b.next.Set(ctx, key, value, ttl)
	b.observe("set", start, err)
	return err
}

func (b *meteredBackend) Delete(ctx context.Context, key string) error {
	start := time.Now()
	err := b.next.Delete(ctx, key)
	b.observe("delete", start, err)
	return err
}

func (b *meteredBackend) DeleteMultiple(ctx context.Context, keys []string) error {
	start := time.Now()
	err := b.next.DeleteMultiple(ctx, keys)
	b.observe("delete_multiple", start, err)
	return err
}

func (b *meteredBackend) AddTagMembership(ctx context.Context, tagKey, entryKey string) error {
	start := time.Now()
	err := b.next.AddTagMembership(ctx, tagKey, entryKey)
	b.observe("add_tag", start, err)
	return err
}

func (b *meteredBackend) RemoveTagMembership(ctx context.Context, tagKey, entryKey string) error {
	start := time.Now()
	err := b.next.RemoveTagMembership(ctx, tagKey, entryKey)
	b.observe("remove_tag", start, err)
	return err
}

func (b *meteredBackend) IDsForTag(ctx context.Context, tagKey string) ([]string, error) {
	start := time.Now()
	ids, err := b.next.IDsForTag(ctx, tagKey)
	b.observe("ids_for_tag", start, err)
	return ids, err
}

func (b *meteredBackend) TagsForID(ctx context.Context, entryKey string) ([]string, error) {
	start := time.Now()
	tags, err := b.next.TagsForID(ctx, entryKey)
	b.observe("tags_for_id", start, err)
	return tags, err
}

func (b *meteredBackend) ClearTag(ctx context.Context, tagKey string) error {
	start := time.Now()
	err := b.next.ClearTag(ctx, tagKey)
	b.observe("clear_tag", start, err)
	return err
}

func (b *meteredBackend) Close() error {
	return b.next.Close()
}

// Compile-time check
var _ outbound.CacheBackend = (*meteredBackend)(nil)
