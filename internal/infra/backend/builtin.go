package backend

import (
	"context"
	"errors"

	"github.com/uniedit/sitecache/internal/adapter/outbound/memory"
	"github.com/uniedit/sitecache/internal/adapter/outbound/postgres"
	"github.com/uniedit/sitecache/internal/adapter/outbound/redis"
	"github.com/uniedit/sitecache/internal/port/outbound"
	sharedcache "github.com/uniedit/sitecache/internal/shared/cache"
	"github.com/uniedit/sitecache/internal/shared/database"
	apperrors "github.com/uniedit/sitecache/internal/shared/errors"
)

// Default returns a registry with the redis, memory and database backends.
func Default() *Registry {
	r := NewRegistry()
	_ = r.Register(redis.Name, openRedis)
	_ = r.Register(memory.Name, openMemory)
	_ = r.Register(postgres.CacheBackendName, openDatabase)
	return r
}

func openRedis(ctx context.Context, deps *Deps) (outbound.CacheBackend, error) {
	client, err := sharedcache.NewRedisClient(ctx, &deps.Config.Redis)
	if err != nil {
		return nil, outbound.Unavailable(redis.Name, "connect", err)
	}
	return redis.NewCacheBackend(client, deps.Config.Cache.KeyPrefix), nil
}

func openMemory(_ context.Context, deps *Deps) (outbound.CacheBackend, error) {
	return memory.New(memory.Options{SweepInterval: deps.Config.Cache.SweepInterval}), nil
}

func openDatabase(_ context.Context, deps *Deps) (outbound.CacheBackend, error) {
	db, err := database.New(&deps.Config.Database)
	if errors.Is(err, apperrors.ErrLibraryUnavailable) {
		return nil, err
	}
	if err != nil {
		return nil, outbound.Unavailable(postgres.CacheBackendName, "connect", err)
	}
	if deps.Config.Database.AutoMigrate {
		if err := postgres.MigrateCache(db); err != nil {
			_ = database.Close(db)
			return nil, outbound.Unavailable(postgres.CacheBackendName, "migrate", err)
		}
	}
	return postgres.NewCacheBackend(db), nil
}
