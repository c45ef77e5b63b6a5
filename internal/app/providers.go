package app

import (
	"github.com/google/wire"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	cachehttp "github.com/uniedit/sitecache/internal/adapter/inbound/http/cache"
	"github.com/uniedit/sitecache/internal/domain/cache"
	"github.com/uniedit/sitecache/internal/infra/backend"
	"github.com/uniedit/sitecache/internal/shared/config"
	"github.com/uniedit/sitecache/internal/shared/logger"
	"github.com/uniedit/sitecache/internal/shared/tenant"
	"github.com/uniedit/sitecache/internal/utils/metrics"
)

// ===== Infrastructure Providers =====

// InfraSet provides infrastructure dependencies.
var InfraSet = wire.NewSet(
	ProvideLogger,
	ProvidePrometheusRegistry,
	ProvideMetrics,
	ProvideBackendRegistry,
	ProvideBackendDeps,
)

// ProvideLogger creates a zap logger instance.
func ProvideLogger(cfg *config.Config) *zap.Logger {
	return logger.New(&logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
	})
}

// ProvidePrometheusRegistry creates the registry served on the metrics endpoint.
func ProvidePrometheusRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// ProvideMetrics creates a metrics instance.
func ProvideMetrics(cfg *config.Config, reg *prometheus.Registry) *metrics.Metrics {
	return metrics.New(cfg.Metrics.Namespace, reg)
}

// ProvideBackendRegistry creates the backend registry and checks the
// configured backend exists.
func ProvideBackendRegistry(cfg *config.Config) (*backend.Registry, error) {
	r := backend.Default()
	if err := r.Validate(cfg.Cache.Backend); err != nil {
		return nil, err
	}
	return r, nil
}

// ProvideBackendDeps collects what backend constructors need.
func ProvideBackendDeps(cfg *config.Config, log *zap.Logger, m *metrics.Metrics) *backend.Deps {
	deps := &backend.Deps{Config: cfg, Logger: log}
	if cfg.Metrics.Enabled {
		deps.Metrics = m
	}
	return deps
}

// ===== Cache Providers =====

// CacheSet provides the cache domain.
var CacheSet = wire.NewSet(
	ProvideEngineFactory,
	ProvideTenantProvider,
	ProvideCacheManager,
)

// ProvideEngineFactory opens the configured backend on first use.
func ProvideEngineFactory(r *backend.Registry, deps *backend.Deps) cache.EngineFactory {
	return backend.EngineFactory(r, deps)
}

// ProvideTenantProvider reads the site set by the HTTP middleware.
func ProvideTenantProvider() tenant.Provider {
	return tenant.NewContextProvider()
}

// ProvideCacheManager creates the cache manager.
func ProvideCacheManager(factory cache.EngineFactory, sites tenant.Provider, log *zap.Logger) *cache.Manager {
	return cache.NewManager(factory, sites, log)
}

// ===== HTTP Providers =====

// HTTPSet provides HTTP handlers.
var HTTPSet = wire.NewSet(
	cachehttp.NewHandler,
)

// AppSet combines all provider sets.
var AppSet = wire.NewSet(
	InfraSet,
	CacheSet,
	HTTPSet,
	NewApp,
)
