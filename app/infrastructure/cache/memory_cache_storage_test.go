package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"hydrogen.im/hydrogen-worker/app/domain/assetcache"
	"hydrogen.im/hydrogen-worker/app/domain/assetcache/assetcachetest"
)

func TestMemoryCacheStorage(t *testing.T) {
	assetcachetest.RunStorageConformance(t, func(t *testing.T) assetcache.Storage {
		return NewMemoryCacheStorage()
	})
}

func TestMemoryNamespaceReturnsCopies(t *testing.T) {
	ctx := context.Background()
	ns, err := NewMemoryCacheStorage().Open(ctx, "hydrogen-assets")
	require.NoError(t, err)

	resp := &assetcache.Response{Status: 200, Body: []byte("abc")}
	require.NoError(t, ns.Put(ctx, "k", resp))
	resp.Body[0] = 'x'

	got, err := ns.Match(ctx, "k")
	require.NoError(t, err)
	got.Body[1] = 'y'

	again, err := ns.Match(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), again.Body)
}

func TestLocalLockerSerializes(t *testing.T) {
	locker := NewLocalLocker()
	unlock, err := locker.Lock(context.Background(), "lifecycle")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = locker.Lock(ctx, "lifecycle")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	other, err := locker.Lock(context.Background(), "other")
	require.NoError(t, err)
	other()

	unlock()
	unlock()
	again, err := locker.Lock(context.Background(), "lifecycle")
	require.NoError(t, err)
	again()
}
