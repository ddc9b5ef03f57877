package healthcheck

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"hydrogen.im/hydrogen-worker/app/infrastructure/cache"
)

type failingStorage struct {
	*cache.MemoryCacheStorage
	err error
}

func (f *failingStorage) HealthCheck(ctx context.Context) error {
	return f.err
}

func TestCheckStorageRemembersOutcome(t *testing.T) {
	storage := &failingStorage{MemoryCacheStorage: cache.NewMemoryCacheStorage(), err: errors.New("connection refused")}
	hs := NewService(storage)

	assert.Error(t, hs.CheckStorage(context.Background()))
	assert.EqualError(t, hs.LastError(), "connection refused")

	storage.err = nil
	assert.NoError(t, hs.CheckStorage(context.Background()))
	assert.NoError(t, hs.LastError())
}
