package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uniedit/sitecache/internal/adapter/outbound/memory"
	"github.com/uniedit/sitecache/internal/port/outbound"
	"github.com/uniedit/sitecache/internal/shared/tenant"
)

// plainRecord has an ID and a modified flag but none of the cache fields.
type plainRecord struct {
	id string
}

func (r plainRecord) ID() string       { return r.id }
func (r plainRecord) IsModified() bool { return true }

func newTestManager(t *testing.T) (*Manager, context.Context) {
	t.Helper()
	engine := newEngine(memory.New(memory.Options{}), nil)
	m := NewManagerWithEngine(engine, tenant.NewContextProvider(), nil)
	return m, tenant.WithSiteID(context.Background(), "shop1")
}

func TestManager_CreateItem(t *testing.T) {
	m, ctx := newTestManager(t)

	t.Run("takes the site from context", func(t *testing.T) {
		item, err := m.CreateItem(ctx, ItemValues{ID: "a", Value: []byte("v"), SiteID: "shop2"})
		require.NoError(t, err)
		assert.Equal(t, "shop1", item.SiteID())
		assert.Empty(t, item.Tags())
		assert.Nil(t, item.ExpireAt())
		assert.True(t, item.IsModified())
	})

	t.Run("requires a site", func(t *testing.T) {
		_, err := m.CreateItem(context.Background(), ItemValues{ID: "a"})
		assert.ErrorIs(t, err, tenant.ErrNoTenant)
	})
}

func TestManager_SaveAndGet(t *testing.T) {
	m, ctx := newTestManager(t)

	expireAt := time.Now().Add(time.Hour).Truncate(time.Millisecond)
	item, err := m.CreateItem(ctx, ItemValues{
		ID:       "sess-42",
		Value:    []byte("payload"),
		Tags:     []string{"session"},
		ExpireAt: &expireAt,
	})
	require.NoError(t, err)

	require.NoError(t, m.SaveItem(ctx, item))
	assert.False(t, item.IsModified())

	got, err := m.GetItem(ctx, "sess-42")
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), got.Value())
	assert.Equal(t, []string{"session"}, got.Tags())
	require.NotNil(t, got.ExpireAt())
	assert.True(t, expireAt.Equal(*got.ExpireAt()))
	assert.Equal(t, "shop1", got.SiteID())
	assert.False(t, got.IsModified())

	require.NoError(t, m.DeleteByTag(ctx, "session"))
	_, err = m.GetItem(ctx, "sess-42")
	assert.ErrorIs(t, err, ErrItemNotFound)
}

func TestManager_SaveItem(t *testing.T) {
	t.Run("rejects records that are not cache items", func(t *testing.T) {
		m, ctx := newTestManager(t)

		err := m.SaveItem(ctx, plainRecord{id: "a"})
		assert.ErrorIs(t, err, ErrTypeMismatch)
	})

	t.Run("unmodified item makes zero backend calls", func(t *testing.T) {
		backend := new(MockCacheBackend)
		m := NewManagerWithEngine(newEngine(backend, nil), tenant.Static("shop1"), nil)

		item := NewItem(ItemValues{ID: "a", Value: []byte("v")})
		item.ClearModified()

		require.NoError(t, m.SaveItem(context.Background(), item))
		backend.AssertExpectations(t)
		assert.Empty(t, backend.Calls)
	})

	t.Run("unmodified item does not build the engine", func(t *testing.T) {
		builds := 0
		m := NewManager(func(context.Context) (*Engine, error) {
			builds++
			return newEngine(memory.New(memory.Options{}), nil), nil
		}, tenant.Static("shop1"), nil)

		item := NewItem(ItemValues{ID: "a"})
		item.ClearModified()

		require.NoError(t, m.SaveItem(context.Background(), item))
		assert.Equal(t, 0, builds)
	})

	t.Run("setters mark the item for saving again", func(t *testing.T) {
		m, ctx := newTestManager(t)
		item, err := m.CreateItem(ctx, ItemValues{ID: "a", Value: []byte("v1")})
		require.NoError(t, err)
		require.NoError(t, m.SaveItem(ctx, item))

		item.SetValue([]byte("v2"))
		assert.True(t, item.IsModified())
		require.NoError(t, m.SaveItem(ctx, item))

		got, err := m.GetItem(ctx, "a")
		require.NoError(t, err)
		assert.Equal(t, []byte("v2"), got.Value())
	})

	t.Run("rejects items of another site", func(t *testing.T) {
		m, ctx := newTestManager(t)
		item := NewItem(ItemValues{ID: "a", SiteID: "shop2"})

		err := m.SaveItem(ctx, item)
		assert.ErrorIs(t, err, ErrTenantMismatch)
		assert.True(t, item.IsModified())
	})

	t.Run("rejects empty id", func(t *testing.T) {
		m, ctx := newTestManager(t)
		assert.ErrorIs(t, m.SaveItem(ctx, NewItem(ItemValues{})), ErrInvalidID)
	})

	t.Run("keeps the modified flag when the backend fails", func(t *testing.T) {
		backend := new(MockCacheBackend)
		down := outbound.Unavailable("mock", "smembers", errors.New("connection refused"))
		backend.On("TagsForID", context.Background(), "shop1:a").Return(nil, down)
		m := NewManagerWithEngine(newEngine(backend, nil), tenant.Static("shop1"), nil)

		item := NewItem(ItemValues{ID: "a", Value: []byte("v")})
		err := m.SaveItem(context.Background(), item)

		assert.ErrorIs(t, err, outbound.ErrBackendUnavailable)
		assert.True(t, item.IsModified())
		backend.AssertExpectations(t)
	})
}

func TestManager_GetItem(t *testing.T) {
	t.Run("missing item carries the id", func(t *testing.T) {
		m, ctx := newTestManager(t)

		_, err := m.GetItem(ctx, "missing")
		require.Error(t, err)

		var notFound *ItemNotFoundError
		require.ErrorAs(t, err, &notFound)
		assert.Equal(t, "missing", notFound.ID)
		assert.ErrorIs(t, err, ErrItemNotFound)
		assert.ErrorIs(t, err, ErrNotFound)
		assert.Contains(t, err.Error(), "missing")
	})

	t.Run("other sites are invisible", func(t *testing.T) {
		m, ctx := newTestManager(t)
		item, err := m.CreateItem(ctx, ItemValues{ID: "a", Value: []byte("v")})
		require.NoError(t, err)
		require.NoError(t, m.SaveItem(ctx, item))

		_, err = m.GetItem(tenant.WithSiteID(context.Background(), "shop2"), "a")
		assert.ErrorIs(t, err, ErrItemNotFound)
	})

	t.Run("backend failure is not a miss", func(t *testing.T) {
		backend := new(MockCacheBackend)
		down := outbound.Unavailable("mock", "get", errors.New("timeout"))
		backend.On("Get", context.Background(), "shop1:a").Return(nil, down)
		m := NewManagerWithEngine(newEngine(backend, nil), tenant.Static("shop1"), nil)

		_, err := m.GetItem(context.Background(), "a")
		assert.ErrorIs(t, err, outbound.ErrBackendUnavailable)
		assert.NotErrorIs(t, err, ErrItemNotFound)
	})
}

func TestManager_DeleteItems(t *testing.T) {
	m, ctx := newTestManager(t)
	for _, id := range []string{"a", "b"} {
		item, err := m.CreateItem(ctx, ItemValues{ID: id, Value: []byte(id)})
		require.NoError(t, err)
		require.NoError(t, m.SaveItem(ctx, item))
	}

	other := tenant.WithSiteID(context.Background(), "shop2")
	require.NoError(t, m.DeleteItems(other, []string{"a"}))
	_, err := m.GetItem(ctx, "a")
	require.NoError(t, err)

	require.NoError(t, m.DeleteItems(ctx, []string{"a", "b", "nonexistent"}))
	for _, id := range []string{"a", "b"} {
		_, err := m.GetItem(ctx, id)
		assert.ErrorIs(t, err, ErrItemNotFound)
	}

	require.NoError(t, m.DeleteItem(ctx, "a"))
	assert.NoError(t, m.DeleteItems(ctx, nil))
}

func TestManager_SearchItems(t *testing.T) {
	m, ctx := newTestManager(t)
	item, err := m.CreateItem(ctx, ItemValues{ID: "a", Tags: []string{"t"}})
	require.NoError(t, err)
	require.NoError(t, m.SaveItem(ctx, item))

	items, total, err := m.SearchItems(ctx, map[string]string{"tag": "t"})
	require.NoError(t, err)
	assert.Empty(t, items)
	assert.Equal(t, 0, total)
}

func TestManager_LazyEngine(t *testing.T) {
	ctx := tenant.WithSiteID(context.Background(), "shop1")

	t.Run("failed build is retried", func(t *testing.T) {
		attempts := 0
		m := NewManager(func(context.Context) (*Engine, error) {
			attempts++
			if attempts == 1 {
				return nil, outbound.Unavailable("redis", "connect", errors.New("refused"))
			}
			return newEngine(memory.New(memory.Options{}), nil), nil
		}, tenant.NewContextProvider(), nil)

		_, err := m.GetItem(ctx, "a")
		assert.ErrorIs(t, err, outbound.ErrBackendUnavailable)

		_, err = m.GetItem(ctx, "a")
		assert.ErrorIs(t, err, ErrItemNotFound)
		assert.Equal(t, 2, attempts)

		_, err = m.GetItem(ctx, "b")
		assert.ErrorIs(t, err, ErrItemNotFound)
		assert.Equal(t, 2, attempts)
	})

	t.Run("concurrent first use builds once", func(t *testing.T) {
		var builds atomic.Int32
		release := make(chan struct{})
		m := NewManager(func(context.Context) (*Engine, error) {
			builds.Add(1)
			<-release
			return newEngine(memory.New(memory.Options{}), nil), nil
		}, tenant.NewContextProvider(), nil)

		var wg sync.WaitGroup
		engines := make([]*Engine, 8)
		for i := range engines {
			i := i
			wg.Add(1)
			go func() {
				defer wg.Done()
				engines[i], _ = m.Engine(ctx)
			}()
		}
		require.Eventually(t, func() bool { return builds.Load() == 1 }, time.Second, time.Millisecond)
		time.Sleep(10 * time.Millisecond)
		close(release)
		wg.Wait()

		assert.Equal(t, int32(1), builds.Load())
		for _, e := range engines {
			assert.Same(t, engines[0], e)
		}
	})

	t.Run("build outlives the caller's cancellation", func(t *testing.T) {
		m := NewManager(func(buildCtx context.Context) (*Engine, error) {
			if err := buildCtx.Err(); err != nil {
				return nil, err
			}
			return newEngine(memory.New(memory.Options{}), nil), nil
		}, tenant.NewContextProvider(), nil)

		cancelled, cancel := context.WithCancel(ctx)
		cancel()

		engine, err := m.Engine(cancelled)
		require.NoError(t, err)
		assert.NotNil(t, engine)
	})

	t.Run("missing factory", func(t *testing.T) {
		m := NewManager(nil, tenant.NewContextProvider(), nil)
		_, err := m.Engine(ctx)
		assert.Error(t, err)
	})

	t.Run("close only closes a built engine", func(t *testing.T) {
		m := NewManager(nil, tenant.NewContextProvider(), nil)
		assert.NoError(t, m.Close())

		backend := new(MockCacheBackend)
		backend.On("Close").Return(nil).Once()
		m = NewManagerWithEngine(newEngine(backend, nil), tenant.NewContextProvider(), nil)
		require.NoError(t, m.Close())
		require.NoError(t, m.Close())
		backend.AssertExpectations(t)
	})
}
