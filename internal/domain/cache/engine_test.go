package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uniedit/sitecache/internal/adapter/outbound/memory"
	"github.com/uniedit/sitecache/internal/port/outbound"
	"github.com/uniedit/sitecache/internal/shared/tenant"
)

func TestEngine_RoundTrip(t *testing.T) {
	ctx := context.Background()
	e := newEngine(memory.New(memory.Options{}), nil)

	require.NoError(t, e.Set(ctx, "shop1", "a", []byte("payload"), time.Minute, []string{"x", "y", "x"}))

	value, err := e.Get(ctx, "shop1", "a")
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), value)

	entry, err := e.Lookup(ctx, "shop1", "a")
	require.NoError(t, err)
	assert.Equal(t, "a", entry.ID)
	assert.Equal(t, []string{"x", "y"}, entry.Tags)
	require.NotNil(t, entry.ExpireAt)
}

func TestEngine_SessionScenario(t *testing.T) {
	ctx := context.Background()
	e := newEngine(memory.New(memory.Options{}), nil)

	require.NoError(t, e.Set(ctx, "shop1", "sess-42", []byte("payload"), 60*time.Second, []string{"session"}))

	value, err := e.Get(ctx, "shop1", "sess-42")
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), value)

	require.NoError(t, e.DeleteByTag(ctx, "shop1", "session"))

	_, err = e.Get(ctx, "shop1", "sess-42")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestEngine_TenantIsolation(t *testing.T) {
	ctx := context.Background()
	e := newEngine(memory.New(memory.Options{}), nil)

	require.NoError(t, e.Set(ctx, "shop1", "a", []byte("one"), 0, []string{"t"}))
	require.NoError(t, e.Set(ctx, "shop2", "a", []byte("two"), 0, []string{"t"}))

	t.Run("values are scoped", func(t *testing.T) {
		v1, err := e.Get(ctx, "shop1", "a")
		require.NoError(t, err)
		v2, err := e.Get(ctx, "shop2", "a")
		require.NoError(t, err)
		assert.Equal(t, []byte("one"), v1)
		assert.Equal(t, []byte("two"), v2)

		_, err = e.Get(ctx, "shop3", "a")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("deleteByTag stays in its site", func(t *testing.T) {
		require.NoError(t, e.DeleteByTag(ctx, "shop2", "t"))

		_, err := e.Get(ctx, "shop2", "a")
		assert.ErrorIs(t, err, ErrNotFound)
		v, err := e.Get(ctx, "shop1", "a")
		require.NoError(t, err)
		assert.Equal(t, []byte("one"), v)
	})

	t.Run("delete stays in its site", func(t *testing.T) {
		require.NoError(t, e.Delete(ctx, "shop3", "a"))
		_, err := e.Get(ctx, "shop1", "a")
		assert.NoError(t, err)
	})
}

func TestEngine_Validation(t *testing.T) {
	ctx := context.Background()
	e := newEngine(memory.New(memory.Options{}), nil)

	assert.ErrorIs(t, e.Set(ctx, "", "a", nil, 0, nil), tenant.ErrNoTenant)
	assert.ErrorIs(t, e.Set(ctx, "shop1", "", nil, 0, nil), ErrInvalidID)
	_, err := e.Get(ctx, "shop1", "")
	assert.ErrorIs(t, err, ErrInvalidID)
	assert.ErrorIs(t, e.Delete(ctx, "", "a"), tenant.ErrNoTenant)
	assert.ErrorIs(t, e.DeleteMultiple(ctx, "shop1", []string{"a", ""}), ErrInvalidID)
	assert.ErrorIs(t, e.DeleteByTag(ctx, "", "t"), tenant.ErrNoTenant)
}

func TestEngine_DeleteIsIdempotent(t *testing.T) {
	ctx := context.Background()
	e := newEngine(memory.New(memory.Options{}), nil)

	require.NoError(t, e.Delete(ctx, "shop1", "never-set"))

	require.NoError(t, e.Set(ctx, "shop1", "a", []byte("v"), 0, []string{"t"}))
	require.NoError(t, e.Delete(ctx, "shop1", "a"))
	require.NoError(t, e.Delete(ctx, "shop1", "a"))

	_, err := e.Get(ctx, "shop1", "a")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestEngine_DeleteRemovesTagMemberships(t *testing.T) {
	ctx := context.Background()
	backend := memory.New(memory.Options{})
	e := newEngine(backend, nil)

	require.NoError(t, e.Set(ctx, "shop1", "a", []byte("v"), 0, []string{"t1", "t2"}))
	require.NoError(t, e.Delete(ctx, "shop1", "a"))

	for _, tag := range []string{"shop1:t1", "shop1:t2"} {
		ids, err := backend.IDsForTag(ctx, tag)
		require.NoError(t, err)
		assert.Empty(t, ids)
	}
}

func TestEngine_TagConsistencyAfterReset(t *testing.T) {
	ctx := context.Background()
	e := newEngine(memory.New(memory.Options{}), nil)

	require.NoError(t, e.Set(ctx, "shop1", "a", []byte("v1"), 0, []string{"old"}))
	require.NoError(t, e.Set(ctx, "shop1", "a", []byte("v2"), 0, []string{"new"}))

	// The old tag no longer reaches the entry.
	require.NoError(t, e.DeleteByTag(ctx, "shop1", "old"))
	v, err := e.Get(ctx, "shop1", "a")
	require.NoError(t, err)
	assert.Equal(t, []byte("v2"), v)

	require.NoError(t, e.DeleteByTag(ctx, "shop1", "new"))
	_, err = e.Get(ctx, "shop1", "a")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestEngine_Expiry(t *testing.T) {
	ctx := context.Background()

	t.Run("expired entries read as not found on a lazy backend", func(t *testing.T) {
		clock := newTestClock()
		backend := lazyBackend()
		e := newEngine(backend, clock)

		require.NoError(t, e.Set(ctx, "shop1", "a", []byte("v"), time.Minute, nil))
		clock.Advance(time.Minute)

		_, err := e.Get(ctx, "shop1", "a")
		assert.ErrorIs(t, err, ErrNotFound)

		// The backend still holds the value.
		_, err = backend.Get(ctx, "shop1:a")
		assert.NoError(t, err)
	})

	t.Run("SetUntil in the past only deletes", func(t *testing.T) {
		clock := newTestClock()
		backend := memory.New(memory.Options{})
		e := newEngine(backend, clock)

		require.NoError(t, e.Set(ctx, "shop1", "a", []byte("v"), 0, []string{"t"}))
		require.NoError(t, e.SetUntil(ctx, "shop1", "a", []byte("v2"), clock.Now().Add(-time.Second), []string{"t"}))

		_, err := e.Get(ctx, "shop1", "a")
		assert.ErrorIs(t, err, ErrNotFound)
		assert.Equal(t, 0, backend.Len())
		ids, _ := backend.IDsForTag(ctx, "shop1:t")
		assert.Empty(t, ids)
	})

	t.Run("zero ttl never expires", func(t *testing.T) {
		clock := newTestClock()
		e := newEngine(memory.New(memory.Options{}), clock)

		require.NoError(t, e.Set(ctx, "shop1", "a", []byte("v"), 0, nil))
		clock.Advance(24 * 365 * time.Hour)

		entry, err := e.Lookup(ctx, "shop1", "a")
		require.NoError(t, err)
		assert.Nil(t, entry.ExpireAt)
	})
}

func TestEngine_DeleteMultiple(t *testing.T) {
	ctx := context.Background()

	t.Run("ignores ids that were never set", func(t *testing.T) {
		e := newEngine(memory.New(memory.Options{}), nil)
		require.NoError(t, e.Set(ctx, "shop1", "a", []byte("1"), 0, []string{"t"}))
		require.NoError(t, e.Set(ctx, "shop1", "b", []byte("2"), 0, nil))

		require.NoError(t, e.DeleteMultiple(ctx, "shop1", []string{"a", "b", "nonexistent"}))

		for _, id := range []string{"a", "b"} {
			_, err := e.Get(ctx, "shop1", id)
			assert.ErrorIs(t, err, ErrNotFound)
		}
	})

	t.Run("empty list is a no-op", func(t *testing.T) {
		e := newEngine(memory.New(memory.Options{}), nil)
		assert.NoError(t, e.DeleteMultiple(ctx, "shop1", nil))
	})

	t.Run("reports confirmed and unknown ids on failure", func(t *testing.T) {
		backend := &failingDeletes{CacheBackend: memory.New(memory.Options{}), failAt: 2}
		cfg := DefaultConfig()
		cfg.BatchSize = 2
		e := NewEngine(backend, cfg, nil)

		ids := []string{"a", "b", "c", "d", "e"}
		for _, id := range ids {
			require.NoError(t, e.Set(ctx, "shop1", id, []byte(id), 0, nil))
		}

		err := e.DeleteMultiple(ctx, "shop1", ids)
		require.Error(t, err)

		var batchErr *BatchDeleteError
		require.ErrorAs(t, err, &batchErr)
		assert.Equal(t, []string{"a", "b"}, batchErr.Deleted)
		assert.Equal(t, []string{"c", "d", "e"}, batchErr.Unknown)
		assert.ErrorIs(t, err, outbound.ErrBackendUnavailable)

		_, getErr := e.Get(ctx, "shop1", "a")
		assert.ErrorIs(t, getErr, ErrNotFound)
	})
}

func TestEngine_DeleteByTag(t *testing.T) {
	ctx := context.Background()

	t.Run("empty bucket is a no-op", func(t *testing.T) {
		e := newEngine(memory.New(memory.Options{}), nil)
		assert.NoError(t, e.DeleteByTag(ctx, "shop1", "unused"))
	})

	t.Run("removes every tagged entry and leaves others", func(t *testing.T) {
		e := newEngine(memory.New(memory.Options{}), nil)
		require.NoError(t, e.Set(ctx, "shop1", "a", []byte("1"), 0, []string{"page"}))
		require.NoError(t, e.Set(ctx, "shop1", "b", []byte("2"), 0, []string{"page", "nav"}))
		require.NoError(t, e.Set(ctx, "shop1", "c", []byte("3"), 0, []string{"nav"}))

		require.NoError(t, e.DeleteByTag(ctx, "shop1", "page"))

		for _, id := range []string{"a", "b"} {
			_, err := e.Get(ctx, "shop1", id)
			assert.ErrorIs(t, err, ErrNotFound)
		}
		_, err := e.Get(ctx, "shop1", "c")
		assert.NoError(t, err)
	})

	t.Run("backend errors are returned", func(t *testing.T) {
		backend := new(MockCacheBackend)
		backend.On("IDsForTag", ctx, "shop1:t").Return(nil, outbound.Unavailable("mock", "smembers", errors.New("down")))
		e := newEngine(backend, nil)

		err := e.DeleteByTag(ctx, "shop1", "t")
		assert.ErrorIs(t, err, outbound.ErrBackendUnavailable)
		backend.AssertExpectations(t)
	})
}

func TestEngine_Search(t *testing.T) {
	ctx := context.Background()
	e := newEngine(memory.New(memory.Options{}), nil)
	require.NoError(t, e.Set(ctx, "shop1", "a", []byte("v"), 0, []string{"t"}))

	entries, err := e.Search(ctx, "shop1", map[string]string{"tag": "t"})
	require.NoError(t, err)
	assert.NotNil(t, entries)
	assert.Empty(t, entries)
}

func TestEngine_CorruptRecord(t *testing.T) {
	ctx := context.Background()
	backend := memory.New(memory.Options{})
	e := newEngine(backend, nil)

	require.NoError(t, backend.Set(ctx, "shop1:a", []byte("not json"), 0))

	_, err := e.Get(ctx, "shop1", "a")
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
}

// Set is a non-atomic replace: a Get between the delete and the write sees a miss.
func TestEngine_ConcurrentGetDuringSetMayMiss(t *testing.T) {
	ctx := context.Background()
	inner := memory.New(memory.Options{})
	seed := newEngine(inner, nil)
	require.NoError(t, seed.Set(ctx, "shop1", "a", []byte("old"), 0, nil))

	gated := &gatedSet{
		CacheBackend: inner,
		entered:      make(chan struct{}),
		release:      make(chan struct{}),
	}
	e := newEngine(gated, nil)

	done := make(chan error, 1)
	go func() {
		done <- e.Set(ctx, "shop1", "a", []byte("new"), 0, nil)
	}()

	<-gated.entered
	_, err := e.Get(ctx, "shop1", "a")
	assert.ErrorIs(t, err, ErrNotFound, "old value is already gone, new one not yet written")

	close(gated.release)
	require.NoError(t, <-done)

	v, err := e.Get(ctx, "shop1", "a")
	require.NoError(t, err)
	assert.Equal(t, []byte("new"), v)
}

// Interleaved Sets may leave memberships from both calls; DeleteByTag
// resolves ids lazily and tolerates stale ones.
func TestEngine_StaleTagMembershipsAreTolerated(t *testing.T) {
	ctx := context.Background()
	backend := memory.New(memory.Options{})
	e := newEngine(backend, nil)

	require.NoError(t, e.Set(ctx, "shop1", "a", []byte("v2"), 0, []string{"t2"}))

	// Leftovers of a concurrent Set with tag t1, and of an entry since removed.
	require.NoError(t, backend.AddTagMembership(ctx, "shop1:t1", "shop1:a"))
	require.NoError(t, backend.AddTagMembership(ctx, "shop1:t1", "shop1:gone"))

	require.NoError(t, e.DeleteByTag(ctx, "shop1", "t1"))

	_, err := e.Get(ctx, "shop1", "a")
	assert.ErrorIs(t, err, ErrNotFound)
	ids, err := backend.IDsForTag(ctx, "shop1:t2")
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestEngine_ExpiredEntriesLeaveTheTagIndex(t *testing.T) {
	ctx := context.Background()
	clock := newTestClock()
	backend := memory.New(memory.Options{Clock: clock.Now})
	e := newEngine(backend, clock)

	require.NoError(t, e.Set(ctx, "shop1", "sess-42", []byte("s"), time.Minute, []string{"session"}))
	require.NoError(t, e.Set(ctx, "shop1", "home", []byte("h"), 0, []string{"session"}))
	clock.Advance(2 * time.Minute)

	ids, err := e.tags.Members(ctx, namespace{site: "shop1", sep: ":"}, "session")
	require.NoError(t, err)
	assert.Equal(t, []string{"home"}, ids)

	tags, err := backend.TagsForID(ctx, "shop1:sess-42")
	require.NoError(t, err)
	assert.Empty(t, tags)

	require.NoError(t, e.DeleteByTag(ctx, "shop1", "session"))
	_, err = e.Get(ctx, "shop1", "home")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestEngine_ConcurrentSets(t *testing.T) {
	ctx := context.Background()
	e := newEngine(memory.New(memory.Options{}), nil)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tag := fmt.Sprintf("t%d", i%2)
			_ = e.Set(ctx, "shop1", "a", []byte(tag), 0, []string{tag})
		}(i)
	}
	wg.Wait()

	v, err := e.Get(ctx, "shop1", "a")
	require.NoError(t, err)
	assert.Contains(t, []string{"t0", "t1"}, string(v))

	require.NoError(t, e.DeleteByTag(ctx, "shop1", "t0"))
	require.NoError(t, e.DeleteByTag(ctx, "shop1", "t1"))
	_, err = e.Get(ctx, "shop1", "a")
	assert.ErrorIs(t, err, ErrNotFound)
}
