package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/uniedit/sitecache/internal/shared/tenant"
)

// EngineFactory builds the engine on first use.
type EngineFactory func(ctx context.Context) (*Engine, error)

// Manager translates cache items to engine calls, scoped to the caller's site.
type Manager struct {
	factory EngineFactory
	sites   tenant.Provider
	logger  *zap.Logger

	build  singleflight.Group
	mu     sync.Mutex
	engine *Engine
}

// NewManager creates a manager that builds its engine lazily through factory.
func NewManager(factory EngineFactory, sites tenant.Provider, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		factory: factory,
		sites:   sites,
		logger:  logger,
	}
}

// NewManagerWithEngine creates a manager around an existing engine.
func NewManagerWithEngine(engine *Engine, sites tenant.Provider, logger *zap.Logger) *Manager {
	m := NewManager(nil, sites, logger)
	m.engine = engine
	return m
}

// Engine returns the cache engine, building it on first use.
// Concurrent first callers share one build, which is detached from the
// cancellation of the caller that started it. A failed build is not
// remembered; the next call tries again.
func (m *Manager) Engine(ctx context.Context) (*Engine, error) {
	if engine := m.built(); engine != nil {
		return engine, nil
	}
	if m.factory == nil {
		return nil, errors.New("cache engine factory not configured")
	}

	buildCtx := context.WithoutCancel(ctx)
	v, err, _ := m.build.Do("engine", func() (any, error) {
		if engine := m.built(); engine != nil {
			return engine, nil
		}
		engine, err := m.factory(buildCtx)
		if err != nil {
			return nil, fmt.Errorf("build cache engine: %w", err)
		}
		m.mu.Lock()
		m.engine = engine
		m.mu.Unlock()
		return engine, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Engine), nil
}

func (m *Manager) built() *Engine {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.engine
}

// CreateItem creates a new item for the caller's site.
// Fields not supplied default to no tags and no expiry.
func (m *Manager) CreateItem(ctx context.Context, values ItemValues) (*Item, error) {
	site, err := m.sites.SiteID(ctx)
	if err != nil {
		return nil, err
	}
	values.SiteID = site
	return NewItem(values), nil
}

// SaveItem stores item. Unmodified items are skipped without touching the backend.
func (m *Manager) SaveItem(ctx context.Context, item Record) error {
	entity, ok := item.(Entity)
	if !ok {
		return fmt.Errorf("%w: got %T", ErrTypeMismatch, item)
	}
	if !entity.IsModified() {
		return nil
	}

	id := entity.ID()
	if id == "" {
		return ErrInvalidID
	}

	site, err := m.sites.SiteID(ctx)
	if err != nil {
		return err
	}
	if owner := entity.SiteID(); owner != "" && owner != site {
		return fmt.Errorf("%w: item %q", ErrTenantMismatch, id)
	}

	engine, err := m.Engine(ctx)
	if err != nil {
		return err
	}

	var expireAt time.Time
	if t := entity.ExpireAt(); t != nil {
		expireAt = *t
	}

	if err := engine.SetUntil(ctx, site, id, entity.Value(), expireAt, entity.Tags()); err != nil {
		return err
	}
	entity.ClearModified()
	return nil
}

// GetItem returns the item stored under id for the caller's site.
// A missing or expired item yields an *ItemNotFoundError.
func (m *Manager) GetItem(ctx context.Context, id string) (*Item, error) {
	site, err := m.sites.SiteID(ctx)
	if err != nil {
		return nil, err
	}
	engine, err := m.Engine(ctx)
	if err != nil {
		return nil, err
	}

	entry, err := engine.Lookup(ctx, site, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, &ItemNotFoundError{ID: id, Err: err}
		}
		return nil, err
	}

	return newItem(ItemValues{
		ID:       entry.ID,
		Value:    entry.Value,
		Tags:     entry.Tags,
		ExpireAt: entry.ExpireAt,
		SiteID:   site,
	}), nil
}

// DeleteItems removes the items with the given IDs from the caller's site.
func (m *Manager) DeleteItems(ctx context.Context, ids []string) error {
	site, err := m.sites.SiteID(ctx)
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}
	engine, err := m.Engine(ctx)
	if err != nil {
		return err
	}
	return engine.DeleteMultiple(ctx, site, ids)
}

// DeleteItem removes a single item from the caller's site.
func (m *Manager) DeleteItem(ctx context.Context, id string) error {
	return m.DeleteItems(ctx, []string{id})
}

// DeleteByTag removes every item of the caller's site tagged with tag.
func (m *Manager) DeleteByTag(ctx context.Context, tag string) error {
	site, err := m.sites.SiteID(ctx)
	if err != nil {
		return err
	}
	engine, err := m.Engine(ctx)
	if err != nil {
		return err
	}
	return engine.DeleteByTag(ctx, site, tag)
}

// SearchItems is not supported by key-value backends and always returns no items.
func (m *Manager) SearchItems(ctx context.Context, criteria map[string]string) ([]*Item, int, error) {
	site, err := m.sites.SiteID(ctx)
	if err != nil {
		return nil, 0, err
	}
	engine, err := m.Engine(ctx)
	if err != nil {
		return nil, 0, err
	}

	entries, err := engine.Search(ctx, site, criteria)
	if err != nil {
		return nil, 0, err
	}
	items := make([]*Item, 0, len(entries))
	for _, entry := range entries {
		items = append(items, newItem(ItemValues{
			ID:       entry.ID,
			Value:    entry.Value,
			Tags:     entry.Tags,
			ExpireAt: entry.ExpireAt,
			SiteID:   site,
		}))
	}
	return items, len(items), nil
}

// Close closes the engine if it was built.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.engine == nil {
		return nil
	}
	err := m.engine.Close()
	m.engine = nil
	if err != nil {
		m.logger.Warn("Failed to close cache backend", zap.Error(err))
	}
	return err
}
