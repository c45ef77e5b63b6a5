// Package guard wraps cache backends with a circuit breaker and metrics.
package guard

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"

	"github.com/uniedit/sitecache/internal/port/outbound"
	"github.com/uniedit/sitecache/internal/utils/metrics"
)

// BreakerConfig contains circuit breaker configuration.
type BreakerConfig struct {
	FailureThreshold    uint32
	MaxHalfOpenRequests uint32
	Interval            time.Duration
	Timeout             time.Duration
}

// DefaultBreakerConfig returns the default circuit breaker configuration.
func DefaultBreakerConfig() *BreakerConfig {
	return &BreakerConfig{
		FailureThreshold:    5,
		MaxHalfOpenRequests: 1,
		Interval:            0,
		Timeout:             30 * time.Second,
	}
}

// breakerBackend fails fast while the underlying backend keeps failing.
// Cache misses count as successes.
type breakerBackend struct {
	next    outbound.CacheBackend
	name    string
	breaker *gobreaker.CircuitBreaker[any]
}

// NewBreaker wraps next with a circuit breaker. m and logger may be nil.
func NewBreaker(next outbound.CacheBackend, name string, cfg *BreakerConfig, m *metrics.Metrics, logger *zap.Logger) outbound.CacheBackend {
	if cfg == nil {
		cfg = DefaultBreakerConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	threshold := cfg.FailureThreshold
	if threshold == 0 {
		threshold = DefaultBreakerConfig().FailureThreshold
	}

	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: cfg.MaxHalfOpenRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, outbound.ErrCacheMiss)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Cache backend circuit breaker state changed",
				zap.String("backend", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
			if m != nil {
				m.SetBreakerState(name, int(to))
			}
		},
	}
	if m != nil {
		m.SetBreakerState(name, int(gobreaker.StateClosed))
	}

	return &breakerBackend{
		next:    next,
		name:    name,
		breaker: gobreaker.NewCircuitBreaker[any](settings),
	}
}

func (b *breakerBackend) exec(op string, fn func() (any, error)) (any, error) {
	res, err := b.breaker.Execute(fn)
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, outbound.Unavailable(b.name, op, err)
	}
	return res, err
}

func (b *breakerBackend) do(op string, fn func() error) error {
	_, err := b.exec(op, func() (any, error) { return nil, fn() })
	return err
}

func (b *breakerBackend) strings(op string, fn func() ([]string, error)) ([]string, error) {
	res, err := b.exec(op, func() (any, error) { return fn() })
	if err != nil {
		return nil, err
	}
	out, _ := res.([]string)
	return out, nil
}

func (b *breakerBackend) Get(ctx context.Context, key string) ([]byte, error) {
	res, err := b.exec("get", func() (any, error) { return b.next.Get(ctx, key) })
	if err != nil {
		return nil, err
	}
	data, _ := res.([]byte)
	return data, nil
}

func (b *breakerBackend) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return b.do("set", func() error { return b.next.Set(ctx, key, value, ttl) })
}

func (b *breakerBackend) Delete(ctx context.Context, key string) error {
	return b.do("delete", func() error { return b.next.Delete(ctx, key) })
}

func (b *breakerBackend) DeleteMultiple(ctx context.Context, keys []string) error {
	return b.do("delete_multiple", func() error { return b.next.DeleteMultiple(ctx, keys) })
}

func (b *breakerBackend) AddTagMembership(ctx context.Context, tagKey, entryKey string) error {
	return b.do("add_tag", func() error { return b.next.AddTagMembership(ctx, tagKey, entryKey) })
}

func (b *breakerBackend) RemoveTagMembership(ctx context.Context, tagKey, entryKey string) error {
	return b.do("remove_tag", func() error { return b.next.RemoveTagMembership(ctx, tagKey, entryKey) })
}

func (b *breakerBackend) IDsForTag(ctx context.Context, tagKey string) ([]string, error) {
	return b.strings("ids_for_tag", func() ([]string, error) { return b.next.IDsForTag(ctx, tagKey) })
}

func (b *breakerBackend) TagsForID(ctx context.Context, entryKey string) ([]string, error) {
	return b.strings("tags_for_id", func() ([]string, error) { return b.next.TagsForID(ctx, entryKey) })
}

func (b *breakerBackend) ClearTag(ctx context.Context, tagKey string) error {
	return b.do("clear_tag", func() error { return b.next.ClearTag(ctx, tagKey) })
}

func (b *breakerBackend) Close() error {
	return b.next.Close()
}

// Compile-time check
var _ outbound.CacheBackend = (*breakerBackend)(nil)
