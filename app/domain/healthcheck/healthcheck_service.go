package healthcheck

import (
	"context"
	"sync"
	"time"

	"github.com/mileusna/crontab"
	"hydrogen.im/hydrogen-worker/app/domain/assetcache"
	"hydrogen.im/hydrogen-worker/app/utils/logger"
)

const checkTimeout = 5 * time.Second

type HealthcheckCrontabService struct {
	Storage assetcache.Storage

	mu      sync.RWMutex
	lastErr error
}

func NewService(storage assetcache.Storage) *HealthcheckCrontabService {
	return &HealthcheckCrontabService{
		Storage: storage,
	}
}

func (hs *HealthcheckCrontabService) Start(ctx context.Context, ctab *crontab.Crontab) {
	hs.CheckStorage(ctx)
	ctab.AddJob("*/2 * * * *", func() {
		hs.CheckStorage(ctx)
	})
}

// CheckStorage pings the cache backend and remembers the outcome.
func (hs *HealthcheckCrontabService) CheckStorage(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()
	err := hs.Storage.HealthCheck(ctx)
	if err != nil {
		logger.GetLogger().Warnf("healthcheck: cache storage unhealthy: %v", err)
	}
	hs.mu.Lock()
	hs.lastErr = err
	hs.mu.Unlock()
	return err
}

func (hs *HealthcheckCrontabService) LastError() error {
	hs.mu.RLock()
	defer hs.mu.RUnlock()
	return hs.lastErr
}
