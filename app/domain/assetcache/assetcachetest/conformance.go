// Package assetcachetest holds the behaviour every assetcache.Storage backend
// must satisfy.
package assetcachetest

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"hydrogen.im/hydrogen-worker/app/domain/assetcache"
)

func RunStorageConformance(t *testing.T, newStorage func(t *testing.T) assetcache.Storage) {
	t.Run("OpenCreatesNamespace", func(t *testing.T) {
		ctx := context.Background()
		s := newStorage(t)

		has, err := s.Has(ctx, "hydrogen-assets")
		require.NoError(t, err)
		assert.False(t, has)

		ns, err := s.Open(ctx, "hydrogen-assets")
		require.NoError(t, err)
		assert.Equal(t, "hydrogen-assets", ns.Name())

		has, err = s.Has(ctx, "hydrogen-assets")
		require.NoError(t, err)
		assert.True(t, has)

		_, err = s.Open(ctx, "hydrogen-assets")
		require.NoError(t, err)
		names, err := s.Names(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"hydrogen-assets"}, names)
	})

	t.Run("PutMatchDelete", func(t *testing.T) {
		ctx := context.Background()
		s := newStorage(t)
		ns, err := s.Open(ctx, "hydrogen-media-thumbnails-v2")
		require.NoError(t, err)

		key := "https://hs.example.org/_matrix/media/r0/thumbnail/a/b?width=32&height=32"
		miss, err := ns.Match(ctx, key)
		require.NoError(t, err)
		assert.Nil(t, miss)

		header := http.Header{}
		header.Set("Content-Type", "image/png")
		require.NoError(t, ns.Put(ctx, key, &assetcache.Response{
			URL:    key,
			Status: 200,
			Header: header,
			Body:   []byte{0x89, 'P', 'N', 'G'},
		}))

		got, err := ns.Match(ctx, key)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, 200, got.Status)
		assert.Equal(t, "image/png", got.Header.Get("Content-Type"))
		assert.Equal(t, []byte{0x89, 'P', 'N', 'G'}, got.Body)
		assert.NotZero(t, got.StoredAt)

		require.NoError(t, ns.Put(ctx, key, &assetcache.Response{URL: key, Status: 404}))
		got, err = ns.Match(ctx, key)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, 404, got.Status)

		keys, err := ns.Keys(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{key}, keys)

		removed, err := ns.Delete(ctx, key)
		require.NoError(t, err)
		assert.True(t, removed)
		removed, err = ns.Delete(ctx, key)
		require.NoError(t, err)
		assert.False(t, removed)
	})

	t.Run("DeleteNamespaceDropsEntries", func(t *testing.T) {
		ctx := context.Background()
		s := newStorage(t)
		ns, err := s.Open(ctx, "hydrogen-assets-old")
		require.NoError(t, err)
		require.NoError(t, ns.Put(ctx, "https://app.example.org/index.html", &assetcache.Response{Status: 200, Body: []byte("old")}))
		_, err = s.Open(ctx, "hydrogen-assets")
		require.NoError(t, err)

		removed, err := s.Delete(ctx, "hydrogen-assets-old")
		require.NoError(t, err)
		assert.True(t, removed)

		names, err := s.Names(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"hydrogen-assets"}, names)

		reopened, err := s.Open(ctx, "hydrogen-assets-old")
		require.NoError(t, err)
		keys, err := reopened.Keys(ctx)
		require.NoError(t, err)
		assert.Empty(t, keys)

		removed, err = s.Delete(ctx, "missing")
		require.NoError(t, err)
		assert.False(t, removed)
	})

	t.Run("PutAfterDeleteRegistersNamespace", func(t *testing.T) {
		ctx := context.Background()
		s := newStorage(t)
		ns, err := s.Open(ctx, "hydrogen-assets-old")
		require.NoError(t, err)
		require.NoError(t, ns.Put(ctx, "https://app.example.org/index.html", &assetcache.Response{Status: 200, Body: []byte("old")}))

		removed, err := s.Delete(ctx, "hydrogen-assets-old")
		require.NoError(t, err)
		require.True(t, removed)

		// a late write through a handle opened before the delete
		require.NoError(t, ns.Put(ctx, "https://app.example.org/late.js", &assetcache.Response{Status: 200, Body: []byte("late")}))

		has, err := s.Has(ctx, "hydrogen-assets-old")
		require.NoError(t, err)
		assert.True(t, has)
		names, err := s.Names(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"hydrogen-assets-old"}, names)

		keys, err := ns.Keys(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"https://app.example.org/late.js"}, keys)

		removed, err = s.Delete(ctx, "hydrogen-assets-old")
		require.NoError(t, err)
		assert.True(t, removed)
		names, err = s.Names(ctx)
		require.NoError(t, err)
		assert.Empty(t, names)
	})

	t.Run("HealthCheck", func(t *testing.T) {
		assert.NoError(t, newStorage(t).HealthCheck(context.Background()))
	})
}
