package cache

import (
	"strings"

	"hydrogen.im/hydrogen-worker/app/domain/assetcache"
	"hydrogen.im/hydrogen-worker/app/infrastructure/database"
	"hydrogen.im/hydrogen-worker/app/infrastructure/database/repository/cacherepo"
	"hydrogen.im/hydrogen-worker/app/utils/logger"
	"hydrogen.im/hydrogen-worker/config/environment_variables"
)

// Backend is a Storage that also provides the Locker matching its reach.
type Backend interface {
	assetcache.Storage
	Locker() assetcache.Locker
}

// NewCacheStorage creates a cache backend based on configuration
func NewCacheStorage() (Backend, func(), error) {
	env := environment_variables.Current()
	cacheType := strings.ToLower(env.CACHE_TYPE)

	var backend Backend
	switch cacheType {
	case "redis":
		storage, err := NewRedisCacheStorage(RedisOptions(env.CACHE_URL, env.CACHE_PASSWORD, env.CACHE_DB))
		if err != nil {
			logger.GetLogger().Errorf("redis cache unavailable, falling back to memory: %v", err)
			backend = NewMemoryCacheStorage()
		} else {
			backend = storage
		}
	case "valkey":
		opts, err := ValkeyOptions(env.CACHE_URL, env.CACHE_PASSWORD, env.CACHE_DB)
		var storage *ValkeyCacheStorage
		if err == nil {
			storage, err = NewValkeyCacheStorage(opts)
		}
		if err != nil {
			logger.GetLogger().Errorf("valkey cache unavailable, falling back to memory: %v", err)
			backend = NewMemoryCacheStorage()
		} else {
			backend = storage
		}
	case "sql":
		db, err := database.NewDB(env.DB_DSN, env.DB_READ_DSN)
		if err != nil {
			return nil, nil, err
		}
		backend = cacherepo.NewCacheGormRepository(db, NewLocalLocker())
	case "", "memory":
		backend = NewMemoryCacheStorage()
	default:
		logger.GetLogger().Warnf("unknown CACHE_TYPE %q, using memory", cacheType)
		backend = NewMemoryCacheStorage()
	}

	cleanup := func() {
		if err := backend.Close(); err != nil {
			logger.GetLogger().Warnf("failed to close cache storage: %v", err)
		}
	}
	return backend, cleanup, nil
}

func ProvideStorage(backend Backend) assetcache.Storage {
	return backend
}

func ProvideLocker(backend Backend) assetcache.Locker {
	return backend.Locker()
}
