package interception

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"hydrogen.im/hydrogen-worker/app/domain/assetcache"
	"hydrogen.im/hydrogen-worker/app/domain/fetchscope"
	"hydrogen.im/hydrogen-worker/app/domain/manifest"
	"hydrogen.im/hydrogen-worker/app/utils/logger"
	"hydrogen.im/hydrogen-worker/config/environment_variables"
)

const (
	ThumbnailPathPrefix = "/_matrix/media/r0/thumbnail/"
	maxThumbnailSize    = 50
)

// ErrCanceled wraps the cause of an expected cancellation: the fetch scope
// was halted or the caller went away.
var ErrCanceled = errors.New("request canceled")

type Source string

const (
	SourceUnhashed  Source = "cache-unhashed"
	SourceHashed    Source = "cache-hashed"
	SourceThumbnail Source = "cache-thumbnail"
	SourceNetwork   Source = "network"
)

// ManifestSource yields the manifest of the active generation, or nil when
// no generation is active yet.
type ManifestSource interface {
	Active() *manifest.Manifest
}

type Result struct {
	Response *assetcache.Response
	Source   Source
}

type Handler struct {
	storage       assetcache.Storage
	fetcher       assetcache.Fetcher
	scope         *fetchscope.Scope
	manifests     ManifestSource
	base          *url.URL
	entryDocument string
}

func NewHandler(
	storage assetcache.Storage,
	fetcher assetcache.Fetcher,
	scope *fetchscope.Scope,
	manifests ManifestSource,
) (*Handler, error) {
	env := environment_variables.Current()
	base, err := env.ScopeURL()
	if err != nil {
		return nil, err
	}
	return NewHandlerWithBase(storage, fetcher, scope, manifests, base, env.ENTRY_DOCUMENT), nil
}

func NewHandlerWithBase(
	storage assetcache.Storage,
	fetcher assetcache.Fetcher,
	scope *fetchscope.Scope,
	manifests ManifestSource,
	base *url.URL,
	entryDocument string,
) *Handler {
	if entryDocument == "" {
		entryDocument = "index.html"
	}
	return &Handler{
		storage:       storage,
		fetcher:       fetcher,
		scope:         scope,
		manifests:     manifests,
		base:          base,
		entryDocument: entryDocument,
	}
}

func (h *Handler) Base() *url.URL {
	return h.base
}

// IsCacheableThumbnail reports whether u is a media thumbnail request with
// both dimensions at most 50.
func IsCacheableThumbnail(u *url.URL) bool {
	if !strings.HasPrefix(u.Path, ThumbnailPathPrefix) {
		return false
	}
	q := u.Query()
	width, err := strconv.Atoi(q.Get("width"))
	if err != nil {
		return false
	}
	height, err := strconv.Atoi(q.Get("height"))
	if err != nil {
		return false
	}
	return width <= maxThumbnailSize && height <= maxThumbnailSize
}

// Handle serves req from the caches of the active generation or from the
// network, persisting the response where the manifest allows it.
func (h *Handler) Handle(ctx context.Context, req *assetcache.Request) (*Result, error) {
	m := h.manifests.Active()
	if m == nil || !req.Cacheable() {
		resp, err := h.fetch(ctx, req, assetcache.FetchModeDefault)
		if err != nil {
			return nil, err
		}
		return &Result{Response: resp, Source: SourceNetwork}, nil
	}

	req = h.rewriteRoot(req)
	thumbnail := IsCacheableThumbnail(req.URL)

	cached, err := h.readCache(ctx, m, req, thumbnail)
	if err != nil {
		logger.FromContext(ctx).Errorf("cache lookup for %s failed: %v", req.Key(), err)
		return nil, err
	}
	if cached != nil {
		return cached, nil
	}

	mode := assetcache.FetchModeDefault
	if thumbnail {
		mode = assetcache.FetchModeCORS
	}
	resp, err := h.fetch(ctx, req, mode)
	if err != nil {
		return nil, err
	}
	if err := h.updateCache(ctx, m, req, resp, thumbnail); err != nil {
		logger.FromContext(ctx).Errorf("cache update for %s failed: %v", req.Key(), err)
		return nil, err
	}
	return &Result{Response: resp, Source: SourceNetwork}, nil
}

func (h *Handler) rewriteRoot(req *assetcache.Request) *assetcache.Request {
	u := req.URL
	if u.Scheme != h.base.Scheme || u.Host != h.base.Host || u.Path != h.base.Path {
		return req
	}
	entry := h.base.ResolveReference(&url.URL{Path: h.entryDocument})
	return &assetcache.Request{
		Method: http.MethodGet,
		URL:    entry,
		Header: req.Header,
	}
}

func (h *Handler) readCache(ctx context.Context, m *manifest.Manifest, req *assetcache.Request, thumbnail bool) (*Result, error) {
	key := req.Key()
	lookups := []struct {
		name   string
		source Source
	}{
		{m.UnhashedCacheName(), SourceUnhashed},
		{manifest.HashedCacheName, SourceHashed},
	}
	for _, l := range lookups {
		ns, err := h.storage.Open(ctx, l.name)
		if err != nil {
			return nil, err
		}
		resp, err := ns.Match(ctx, key)
		if err != nil {
			return nil, err
		}
		if resp != nil {
			return &Result{Response: resp, Source: l.source}, nil
		}
	}
	if !thumbnail {
		return nil, nil
	}

	ns, err := h.storage.Open(ctx, manifest.MediaThumbnailCacheName)
	if err != nil {
		return nil, err
	}
	resp, err := ns.Match(ctx, key)
	if err != nil {
		return nil, err
	}
	if resp == nil {
		return nil, nil
	}
	// error responses stored by older versions are dropped on sight
	if resp.Status >= 400 {
		if _, err := ns.Delete(ctx, key); err != nil {
			return nil, err
		}
		return nil, nil
	}
	return &Result{Response: resp, Source: SourceThumbnail}, nil
}

func (h *Handler) updateCache(ctx context.Context, m *manifest.Manifest, req *assetcache.Request, resp *assetcache.Response, thumbnail bool) error {
	if resp.Status >= 400 {
		return nil
	}
	key := req.Key()
	name := ""
	if thumbnail {
		name = manifest.MediaThumbnailCacheName
	} else if asset, ok := manifest.AssetName(h.base, key); ok && m.IsCacheableOnRequest(asset) {
		name = manifest.HashedCacheName
	}
	if name == "" {
		return nil
	}
	ns, err := h.storage.Open(ctx, name)
	if err != nil {
		return err
	}
	return ns.Put(ctx, key, resp)
}

func (h *Handler) fetch(ctx context.Context, req *assetcache.Request, mode assetcache.FetchMode) (*assetcache.Response, error) {
	fetchCtx, release := h.scope.Bind(ctx)
	defer release()
	if fetchCtx.Err() != nil {
		return nil, fmt.Errorf("%w: %w", ErrCanceled, context.Cause(fetchCtx))
	}

	resp, err := h.fetcher.Fetch(fetchCtx, req, mode)
	if err != nil {
		if fetchCtx.Err() != nil {
			return nil, fmt.Errorf("%w: %w", ErrCanceled, context.Cause(fetchCtx))
		}
		logger.FromContext(ctx).Errorf("fetch %s %s failed: %v", req.Method, req.Key(), err)
		return nil, err
	}
	return resp, nil
}
