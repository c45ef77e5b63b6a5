package cache

import (
	"context"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/uniedit/sitecache/internal/adapter/outbound/memory"
	"github.com/uniedit/sitecache/internal/port/outbound"
)

// --- Mock implementations ---

type MockCacheBackend struct {
	mock.Mock
}

func (m *MockCacheBackend) Get(ctx context.Context, key string) ([]byte, error) {
	args := m.Called(ctx, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

func (m *MockCacheBackend) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	args := m.Called(ctx, key, value, ttl)
	return args.Error(0)
}

func (m *MockCacheBackend) Delete(ctx context.Context, key string) error {
	args := m.Called(ctx, key)
	return args.Error(0)
}

func (m *MockCacheBackend) DeleteMultiple(ctx context.Context, keys []string) error {
	args := m.Called(ctx, keys)
	return args.Error(0)
}

func (m *MockCacheBackend) AddTagMembership(ctx context.Context, tagKey, entryKey string) error {
	args := m.Called(ctx, tagKey, entryKey)
	return args.Error(0)
}

func (m *MockCacheBackend) RemoveTagMembership(ctx context.Context, tagKey, entryKey string) error {
	args := m.Called(ctx, tagKey, entryKey)
	return args.Error(0)
}

func (m *MockCacheBackend) IDsForTag(ctx context.Context, tagKey string) ([]string, error) {
	args := m.Called(ctx, tagKey)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func (m *MockCacheBackend) TagsForID(ctx context.Context, entryKey string) ([]string, error) {
	args := m.Called(ctx, entryKey)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func (m *MockCacheBackend) ClearTag(ctx context.Context, tagKey string) error {
	args := m.Called(ctx, tagKey)
	return args.Error(0)
}

func (m *MockCacheBackend) Close() error {
	args := m.Called()
	return args.Error(0)
}

var _ outbound.CacheBackend = (*MockCacheBackend)(nil)

// --- Fakes ---

// testClock is a manually advanced clock.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// lazyBackend never evicts: its own clock is frozen at construction.
func lazyBackend() *memory.Backend {
	frozen := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	return memory.New(memory.Options{Clock: func() time.Time { return frozen }})
}

// failingDeletes fails DeleteMultiple from the failAt-th call on.
type failingDeletes struct {
	outbound.CacheBackend
	failAt int
	calls  int
}

func (b *failingDeletes) DeleteMultiple(ctx context.Context, keys []string) error {
	b.calls++
	if b.calls >= b.failAt {
		return outbound.Unavailable("fake", "del", context.DeadlineExceeded)
	}
	return b.CacheBackend.DeleteMultiple(ctx, keys)
}

// gatedSet blocks every Set until release is closed, after signalling entered.
type gatedSet struct {
	outbound.CacheBackend
	entered chan struct{}
	release chan struct{}
}

func (b *gatedSet) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	close(b.entered)
	<-b.release
	return b.CacheBackend.Set(ctx, key, value, ttl)
}

func newEngine(backend outbound.CacheBackend, clock *testClock) *Engine {
	cfg := DefaultConfig()
	if clock != nil {
		cfg.Clock = clock.Now
	}
	return NewEngine(backend, cfg, nil)
}
