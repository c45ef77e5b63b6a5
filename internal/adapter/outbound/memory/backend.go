package memory

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/uniedit/sitecache/internal/port/outbound"
)

// Name is the registry name of the in-process backend.
const Name = "memory"

type entry struct {
	value     []byte
	expiresAt time.Time // zero means no expiration
}

func (e entry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}

// Backend is an in-process cache backend guarded by a single RWMutex.
// Expired values are evicted on access and by Sweep, together with their
// tag memberships.
type Backend struct {
	mu      sync.RWMutex
	values  map[string]entry
	members map[string]map[string]struct{} // tag key -> entry keys
	tagsOf  map[string]map[string]struct{} // entry key -> tag keys
	now     func() time.Time

	stop      chan struct{}
	closeOnce sync.Once
}

// Options controls construction of a Backend.
type Options struct {
	// Clock returns the current time. Defaults to time.Now.
	Clock func() time.Time
	// SweepInterval runs Sweep periodically until Close. Zero disables it.
	SweepInterval time.Duration
}

// New creates an empty in-memory backend.
func New(opts Options) *Backend {
	now := opts.Clock
	if now == nil {
		now = time.Now
	}
	b := &Backend{
		values:  make(map[string]entry),
		members: make(map[string]map[string]struct{}),
		tagsOf:  make(map[string]map[string]struct{}),
		now:     now,
		stop:    make(chan struct{}),
	}
	if opts.SweepInterval > 0 {
		go b.sweepLoop(opts.SweepInterval)
	}
	return b
}

func (b *Backend) Get(_ context.Context, key string) ([]byte, error) {
	b.mu.RLock()
	e, ok := b.values[key]
	b.mu.RUnlock()

	if !ok {
		return nil, outbound.ErrCacheMiss
	}
	if e.expired(b.now()) {
		b.mu.Lock()
		if cur, ok := b.values[key]; ok && cur.expiresAt.Equal(e.expiresAt) {
			b.evictLocked(key)
		}
		b.mu.Unlock()
		return nil, outbound.ErrCacheMiss
	}
	return slices.Clone(e.value), nil
}

func (b *Backend) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	e := entry{value: slices.Clone(value)}
	if ttl > 0 {
		e.expiresAt = b.now().Add(ttl)
	}

	b.mu.Lock()
	b.values[key] = e
	b.mu.Unlock()
	return nil
}

func (b *Backend) Delete(_ context.Context, key string) error {
	b.mu.Lock()
	delete(b.values, key)
	b.mu.Unlock()
	return nil
}

func (b *Backend) DeleteMultiple(_ context.Context, keys []string) error {
	b.mu.Lock()
	for _, key := range keys {
		delete(b.values, key)
	}
	b.mu.Unlock()
	return nil
}

func (b *Backend) AddTagMembership(_ context.Context, tagKey, entryKey string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	addMember(b.members, tagKey, entryKey)
	addMember(b.tagsOf, entryKey, tagKey)
	return nil
}

func (b *Backend) RemoveTagMembership(_ context.Context, tagKey, entryKey string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	removeMember(b.members, tagKey, entryKey)
	removeMember(b.tagsOf, entryKey, tagKey)
	return nil
}

// IDsForTag returns the members of tagKey whose values are present and live.
// Memberships of absent or expired values are dropped.
func (b *Backend) IDsForTag(_ context.Context, tagKey string) ([]string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	for entryKey := range b.members[tagKey] {
		e, ok := b.values[entryKey]
		switch {
		case !ok:
			removeMember(b.members, tagKey, entryKey)
			removeMember(b.tagsOf, entryKey, tagKey)
		case e.expired(now):
			b.evictLocked(entryKey)
		}
	}
	return setMembers(b.members[tagKey]), nil
}

func (b *Backend) TagsForID(_ context.Context, entryKey string) ([]string, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return setMembers(b.tagsOf[entryKey]), nil
}

func (b *Backend) ClearTag(_ context.Context, tagKey string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for entryKey := range b.members[tagKey] {
		removeMember(b.tagsOf, entryKey, tagKey)
	}
	delete(b.members, tagKey)
	return nil
}

// Len returns the number of stored values, expired or not.
func (b *Backend) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.values)
}

// Sweep evicts every expired value and its tag memberships.
// It returns the number of values evicted.
func (b *Backend) Sweep() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	evicted := 0
	for key, e := range b.values {
		if e.expired(now) {
			b.evictLocked(key)
			evicted++
		}
	}
	return evicted
}

func (b *Backend) sweepLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			b.Sweep()
		case <-b.stop:
			return
		}
	}
}

// Close stops the sweeper. Stored data stays readable.
func (b *Backend) Close() error {
	b.closeOnce.Do(func() { close(b.stop) })
	return nil
}

// evictLocked removes key and every membership pointing at it.
func (b *Backend) evictLocked(key string) {
	delete(b.values, key)
	for tagKey := range b.tagsOf[key] {
		removeMember(b.members, tagKey, key)
	}
	delete(b.tagsOf, key)
}

func addMember(sets map[string]map[string]struct{}, key, member string) {
	set, ok := sets[key]
	if !ok {
		set = make(map[string]struct{})
		sets[key] = set
	}
	set[member] = struct{}{}
}

func removeMember(sets map[string]map[string]struct{}, key, member string) {
	set, ok := sets[key]
	if !ok {
		return
	}
	delete(set, member)
	if len(set) == 0 {
		delete(sets, key)
	}
}

func setMembers(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for m := range set {
		out = append(out, m)
	}
	slices.Sort(out)
	return out
}

// Compile-time check
var _ outbound.CacheBackend = (*Backend)(nil)
