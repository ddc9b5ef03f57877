package infrastructure

import (
	"github.com/google/wire"
	"hydrogen.im/hydrogen-worker/app/domain/assetcache"
	"hydrogen.im/hydrogen-worker/app/infrastructure/cache"
	"hydrogen.im/hydrogen-worker/app/utils/httpclients/origin"
)

var InfrastructureProvider = wire.NewSet(
	cache.NewCacheStorage,
	cache.ProvideStorage,
	cache.ProvideLocker,
	origin.NewClient,
	wire.Bind(new(assetcache.Fetcher), new(*origin.Client)),
)
