package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"hydrogen.im/hydrogen-worker/app/domain/assetcache"
	"hydrogen.im/hydrogen-worker/app/domain/fetchscope"
	"hydrogen.im/hydrogen-worker/app/domain/manifest"
	"hydrogen.im/hydrogen-worker/app/domain/protocol"
	"hydrogen.im/hydrogen-worker/app/utils/logger"
	"hydrogen.im/hydrogen-worker/config"
	"hydrogen.im/hydrogen-worker/config/environment_variables"
)

type State string

const (
	StateParsed     State = "parsed"
	StateInstalling State = "installing"
	StateInstalled  State = "installed"
	StateActivating State = "activating"
	StateActivated  State = "activated"
	StateRedundant  State = "redundant"
)

const (
	lockName        = "lifecycle"
	installParallel = 8
)

var ErrInstallFetch = errors.New("install fetch failed")

// Generation is one deployed manifest and where it is in its lifecycle.
type Generation struct {
	Manifest    *manifest.Manifest
	State       State
	InstalledAt time.Time
	ActivatedAt time.Time
}

type Manager struct {
	storage   assetcache.Storage
	locker    assetcache.Locker
	fetcher   assetcache.Fetcher
	scope     *fetchscope.Scope
	registry  *protocol.Registry
	messenger *protocol.Messenger
	base      *url.URL

	// transition serializes Deploy, SkipWaiting and ActivateIfIdle within
	// the process; locker does the same across processes.
	transition sync.Mutex

	mu      sync.RWMutex
	active  *Generation
	waiting *Generation
}

func NewManager(
	storage assetcache.Storage,
	locker assetcache.Locker,
	fetcher assetcache.Fetcher,
	scope *fetchscope.Scope,
	registry *protocol.Registry,
	messenger *protocol.Messenger,
) (*Manager, error) {
	base, err := environment_variables.Current().ScopeURL()
	if err != nil {
		return nil, err
	}
	return NewManagerWithBase(storage, locker, fetcher, scope, registry, messenger, base), nil
}

func NewManagerWithBase(
	storage assetcache.Storage,
	locker assetcache.Locker,
	fetcher assetcache.Fetcher,
	scope *fetchscope.Scope,
	registry *protocol.Registry,
	messenger *protocol.Messenger,
	base *url.URL,
) *Manager {
	return &Manager{
		storage:   storage,
		locker:    locker,
		fetcher:   fetcher,
		scope:     scope,
		registry:  registry,
		messenger: messenger,
		base:      base,
	}
}

// Active returns the manifest of the active generation, or nil.
func (m *Manager) Active() *manifest.Manifest {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.active == nil {
		return nil
	}
	return m.active.Manifest
}

func (m *Manager) Version() protocol.VersionInfo {
	if mf := m.Active(); mf != nil {
		return protocol.VersionInfo{Version: mf.Version, BuildHash: mf.BuildHash}
	}
	return protocol.VersionInfo{Version: config.Version, BuildHash: config.BuildHash}
}

// Deploy installs mf as a new generation. It activates right away when no
// window is controlled by the current generation and waits otherwise.
// Deploying the build that is already active or waiting is a no-op.
func (m *Manager) Deploy(ctx context.Context, mf *manifest.Manifest) error {
	if err := mf.Validate(); err != nil {
		return err
	}
	unlock, err := m.lock(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	m.mu.Lock()
	if (m.active != nil && m.active.Manifest.BuildHash == mf.BuildHash) ||
		(m.waiting != nil && m.waiting.Manifest.BuildHash == mf.BuildHash) {
		m.mu.Unlock()
		return nil
	}
	gen := &Generation{Manifest: mf, State: StateInstalling}
	m.mu.Unlock()

	log := logger.GetLogger().WithField("build_hash", mf.BuildHash)
	log.Infof("installing version %s", mf.Version)
	if err := m.Install(ctx, mf); err != nil {
		m.setState(gen, StateRedundant)
		log.Errorf("install failed: %v", err)
		return err
	}

	m.mu.Lock()
	gen.State = StateInstalled
	gen.InstalledAt = time.Now()
	if m.waiting != nil {
		m.waiting.State = StateRedundant
	}
	m.waiting = gen
	m.mu.Unlock()

	if m.controlledWindows() > 0 {
		log.Infof("version %s installed, waiting for controlled windows to go away", mf.Version)
		return nil
	}
	return m.activate(ctx, gen)
}

// Install precaches mf. Unhashed assets are all fetched before any is
// written and overwrite what is stored. Hashed assets already present are
// not fetched again.
func (m *Manager) Install(ctx context.Context, mf *manifest.Manifest) error {
	responses := make([]*assetcache.Response, len(mf.UnhashedPrecached))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(installParallel)
	for i, asset := range mf.UnhashedPrecached {
		g.Go(func() error {
			resp, err := m.fetchAsset(gctx, asset)
			responses[i] = resp
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("precache unhashed assets: %w", err)
	}

	unhashed, err := m.storage.Open(ctx, mf.UnhashedCacheName())
	if err != nil {
		return err
	}
	for i, asset := range mf.UnhashedPrecached {
		if err := unhashed.Put(ctx, manifest.Resolve(m.base, asset), responses[i]); err != nil {
			return fmt.Errorf("store %s: %w", asset, err)
		}
	}

	hashed, err := m.storage.Open(ctx, manifest.HashedCacheName)
	if err != nil {
		return err
	}
	g, gctx = errgroup.WithContext(ctx)
	g.SetLimit(installParallel)
	for _, asset := range mf.HashedPrecached {
		g.Go(func() error {
			key := manifest.Resolve(m.base, asset)
			existing, err := hashed.Match(gctx, key)
			if err != nil {
				return err
			}
			if existing != nil {
				return nil
			}
			resp, err := m.fetchAsset(gctx, asset)
			if err != nil {
				return err
			}
			return hashed.Put(gctx, key, resp)
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("precache hashed assets: %w", err)
	}
	return nil
}

// SkipWaiting activates the waiting generation now, taking over windows
// still controlled by the previous one.
func (m *Manager) SkipWaiting(ctx context.Context) error {
	unlock, err := m.lock(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	m.mu.RLock()
	gen := m.waiting
	m.mu.RUnlock()
	if gen == nil {
		return nil
	}
	return m.activate(ctx, gen)
}

// ActivateIfIdle activates the waiting generation once no window is
// controlled by the previous one anymore.
func (m *Manager) ActivateIfIdle(ctx context.Context) error {
	m.mu.RLock()
	waiting := m.waiting != nil
	m.mu.RUnlock()
	if !waiting || m.controlledWindows() > 0 {
		return nil
	}
	return m.SkipWaiting(ctx)
}

func (m *Manager) activate(ctx context.Context, gen *Generation) error {
	m.mu.Lock()
	if m.active != nil {
		m.active.State = StateRedundant
	}
	gen.State = StateActivating
	m.active = gen
	if m.waiting == gen {
		m.waiting = nil
	}
	m.mu.Unlock()

	mf := gen.Manifest
	log := logger.GetLogger().WithField("build_hash", mf.BuildHash)
	m.claim(mf)
	m.scope.Renew()

	if err := m.purge(ctx, mf); err != nil {
		log.Errorf("purging old caches failed: %v", err)
		return err
	}

	m.mu.Lock()
	gen.State = StateActivated
	gen.ActivatedAt = time.Now()
	m.mu.Unlock()
	log.Infof("version %s activated", mf.Version)
	return nil
}

// Adopt puts a newly connected window under the active generation, the
// way a page loaded in scope is controlled from the start.
func (m *Manager) Adopt(c *protocol.Client) {
	if c.Type != protocol.ClientTypeWindow {
		return
	}
	if mf := m.Active(); mf != nil {
		c.SetController(mf.BuildHash)
	}
}

// claim takes control of every open window without waiting for a reload.
func (m *Manager) claim(mf *manifest.Manifest) {
	info := protocol.VersionInfo{Version: mf.Version, BuildHash: mf.BuildHash}
	for _, c := range m.registry.MatchAll(protocol.ClientTypeWindow) {
		if c.Controller() == mf.BuildHash {
			continue
		}
		c.SetController(mf.BuildHash)
		if err := m.messenger.Post(c, protocol.TypeControllerChange, info); err != nil {
			logger.GetLogger().Warnf("controllerChange to %s failed: %v", c.ID, err)
		}
	}
}

// purge drops every namespace mf does not know about and every hashed
// entry mf no longer lists.
func (m *Manager) purge(ctx context.Context, mf *manifest.Manifest) error {
	names, err := m.storage.Names(ctx)
	if err != nil {
		return err
	}
	keep := make(map[string]struct{})
	for _, name := range mf.CacheNames() {
		keep[name] = struct{}{}
	}
	for _, name := range names {
		if _, ok := keep[name]; ok {
			continue
		}
		if _, err := m.storage.Delete(ctx, name); err != nil {
			return fmt.Errorf("delete cache %s: %w", name, err)
		}
	}

	hashed, err := m.storage.Open(ctx, manifest.HashedCacheName)
	if err != nil {
		return err
	}
	keys, err := hashed.Keys(ctx)
	if err != nil {
		return err
	}
	allowed := mf.HashedAssetURLs(m.base)
	for _, key := range keys {
		if _, ok := allowed[key]; ok {
			continue
		}
		if _, err := hashed.Delete(ctx, key); err != nil {
			return fmt.Errorf("delete hashed entry %s: %w", key, err)
		}
	}
	return nil
}

func (m *Manager) fetchAsset(ctx context.Context, asset string) (*assetcache.Response, error) {
	u, err := url.Parse(manifest.Resolve(m.base, asset))
	if err != nil {
		return nil, err
	}
	resp, err := m.fetcher.Fetch(ctx, &assetcache.Request{Method: http.MethodGet, URL: u}, assetcache.FetchModeDefault)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrInstallFetch, u, err)
	}
	if !resp.OK() {
		return nil, fmt.Errorf("%w: %s returned %d", ErrInstallFetch, u, resp.Status)
	}
	return resp, nil
}

// controlledWindows counts windows controlled by the active generation.
func (m *Manager) controlledWindows() int {
	m.mu.RLock()
	active := m.active
	m.mu.RUnlock()
	if active == nil {
		return 0
	}
	n := 0
	for _, c := range m.registry.MatchAll(protocol.ClientTypeWindow) {
		if c.Controller() == active.Manifest.BuildHash {
			n++
		}
	}
	return n
}

func (m *Manager) lock(ctx context.Context) (func(), error) {
	m.transition.Lock()
	if m.locker == nil {
		return m.transition.Unlock, nil
	}
	unlock, err := m.locker.Lock(ctx, lockName)
	if err != nil {
		m.transition.Unlock()
		return nil, err
	}
	return func() {
		unlock()
		m.transition.Unlock()
	}, nil
}

func (m *Manager) setState(gen *Generation, state State) {
	m.mu.Lock()
	defer m.mu.Unlock()
	gen.State = state
}
