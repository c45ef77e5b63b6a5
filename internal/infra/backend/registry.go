// Package backend selects and builds cache backends by name.
package backend

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/uniedit/sitecache/internal/adapter/outbound/guard"
	"github.com/uniedit/sitecache/internal/domain/cache"
	"github.com/uniedit/sitecache/internal/port/outbound"
	"github.com/uniedit/sitecache/internal/shared/config"
	"github.com/uniedit/sitecache/internal/utils/metrics"
)

// ErrUnknownBackend is returned when no constructor is registered under a name.
var ErrUnknownBackend = errors.New("unknown cache backend")

// Deps are the collaborators a constructor may use.
type Deps struct {
	Config  *config.Config
	Logger  *zap.Logger
	Metrics *metrics.Metrics
}

// Constructor builds a raw backend adapter.
type Constructor func(ctx context.Context, deps *Deps) (outbound.CacheBackend, error)

// Registry maps backend names to constructors.
type Registry struct {
	mu    sync.RWMutex
	ctors map[string]Constructor
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{ctors: make(map[string]Constructor)}
}

// Register adds a constructor. Names are case-insensitive and may be registered once.
func (r *Registry) Register(name string, ctor Constructor) error {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" {
		return errors.New("backend name must not be empty")
	}
	if ctor == nil {
		return fmt.Errorf("backend %q: nil constructor", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.ctors[key]; exists {
		return fmt.Errorf("backend %q already registered", key)
	}
	r.ctors[key] = ctor
	return nil
}

// Names returns the registered backend names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.ctors))
	for name := range r.ctors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Validate reports whether name is registered.
func (r *Registry) Validate(name string) error {
	_, err := r.lookup(name)
	return err
}

func (r *Registry) lookup(name string) (Constructor, error) {
	key := strings.ToLower(strings.TrimSpace(name))

	r.mu.RLock()
	ctor, ok := r.ctors[key]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w %q (available: %s)", ErrUnknownBackend, name, strings.Join(r.Names(), ", "))
	}
	return ctor, nil
}

// Open builds the named backend and wraps it with metrics and the
// circuit breaker when they are configured.
func (r *Registry) Open(ctx context.Context, name string, deps *Deps) (outbound.CacheBackend, error) {
	ctor, err := r.lookup(name)
	if err != nil {
		return nil, err
	}
	if deps == nil {
		deps = &Deps{}
	}
	if deps.Config == nil {
		deps.Config = &config.Config{}
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}

	b, err := ctor(ctx, deps)
	if err != nil {
		return nil, fmt.Errorf("open %s backend: %w", name, err)
	}

	if deps.Metrics != nil {
		b = guard.NewMetered(b, name, deps.Metrics)
	}
	if bc := deps.Config.Cache.Breaker; bc.Enabled {
		b = guard.NewBreaker(b, name, &guard.BreakerConfig{
			FailureThreshold:    bc.FailureThreshold,
			MaxHalfOpenRequests: bc.MaxHalfOpenRequests,
			Interval:            bc.Interval,
			Timeout:             bc.Timeout,
		}, deps.Metrics, deps.Logger)
	}

	deps.Logger.Info("Cache backend opened",
		zap.String("backend", name),
		zap.Bool("breaker", deps.Config.Cache.Breaker.Enabled),
	)
	return b, nil
}

// EngineFactory returns a factory that opens the configured backend on first use.
func EngineFactory(r *Registry, deps *Deps) cache.EngineFactory {
	return func(ctx context.Context) (*cache.Engine, error) {
		cfg := deps.Config.Cache
		b, err := r.Open(ctx, cfg.Backend, deps)
		if err != nil {
			return nil, err
		}
		return cache.NewEngine(b, &cache.Config{
			Separator: cfg.Separator,
			BatchSize: cfg.BatchSize,
		}, deps.Logger), nil
	}
}
