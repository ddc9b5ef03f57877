package manifest

import (
	"errors"
	"fmt"
	"net/url"
	"slices"
	"strings"

	"hydrogen.im/hydrogen-worker/app/utils/functional"
)

const (
	HashedCacheName         = "hydrogen-assets"
	MediaThumbnailCacheName = "hydrogen-media-thumbnails-v2"
	unhashedCachePrefix     = "hydrogen-assets-"
)

var ErrMissingBuildHash = errors.New("manifest has no build hash")

// Manifest lists, per build, which scope-relative paths belong to which cache.
type Manifest struct {
	Version               string   `mapstructure:"version" json:"version"`
	BuildHash             string   `mapstructure:"build_hash" json:"build_hash"`
	UnhashedPrecached     []string `mapstructure:"unhashed_precached" json:"unhashed_precached"`
	HashedPrecached       []string `mapstructure:"hashed_precached" json:"hashed_precached"`
	HashedCachedOnRequest []string `mapstructure:"hashed_cached_on_request" json:"hashed_cached_on_request"`
}

func (m *Manifest) Validate() error {
	if m.BuildHash == "" {
		return ErrMissingBuildHash
	}
	for _, list := range [][]string{m.UnhashedPrecached, m.HashedPrecached, m.HashedCachedOnRequest} {
		for _, asset := range list {
			if strings.HasPrefix(asset, "/") || strings.Contains(asset, "://") {
				return fmt.Errorf("asset %q must be relative to the scope", asset)
			}
		}
	}
	return nil
}

// UnhashedCacheName changes with every build so an install never mixes
// mutable assets of two builds.
func (m *Manifest) UnhashedCacheName() string {
	return unhashedCachePrefix + m.BuildHash
}

// CacheNames are the only namespaces allowed to exist once this build is active.
func (m *Manifest) CacheNames() []string {
	return []string{m.UnhashedCacheName(), HashedCacheName, MediaThumbnailCacheName}
}

func (m *Manifest) IsCacheableOnRequest(asset string) bool {
	return slices.Contains(m.HashedCachedOnRequest, asset)
}

// HashedAssets is the authoritative set of paths for the hashed namespace.
func (m *Manifest) HashedAssets() []string {
	return functional.Distinct(append(slices.Clone(m.HashedPrecached), m.HashedCachedOnRequest...))
}

// HashedAssetURLs resolves HashedAssets against the scope.
func (m *Manifest) HashedAssetURLs(scope *url.URL) map[string]struct{} {
	urls := make(map[string]struct{})
	for _, asset := range m.HashedAssets() {
		urls[Resolve(scope, asset)] = struct{}{}
	}
	return urls
}

// Resolve returns the absolute URL of a scope-relative asset path.
func Resolve(scope *url.URL, asset string) string {
	ref, err := url.Parse(asset)
	if err != nil {
		return scope.String() + asset
	}
	return scope.ResolveReference(ref).String()
}

// AssetName returns the scope-relative name of an absolute URL, if the URL
// lies under the scope.
func AssetName(scope *url.URL, absolute string) (string, bool) {
	base := scope.String()
	if !strings.HasPrefix(absolute, base) {
		return "", false
	}
	return absolute[len(base):], true
}
