package cache

import (
	"context"
	"sort"
	"sync"

	"hydrogen.im/hydrogen-worker/app/domain/assetcache"
)

// MemoryCacheStorage keeps namespaces in process memory. Used for tests and
// for CACHE_TYPE=memory, where nothing survives a restart.
type MemoryCacheStorage struct {
	mu         sync.RWMutex
	namespaces map[string]map[string]*assetcache.Response
	locker     *LocalLocker
}

func NewMemoryCacheStorage() *MemoryCacheStorage {
	return &MemoryCacheStorage{
		namespaces: make(map[string]map[string]*assetcache.Response),
		locker:     NewLocalLocker(),
	}
}

func (m *MemoryCacheStorage) Open(ctx context.Context, name string) (assetcache.Namespace, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.namespaces[name]; !ok {
		m.namespaces[name] = make(map[string]*assetcache.Response)
	}
	return &memoryNamespace{storage: m, name: name}, nil
}

func (m *MemoryCacheStorage) Has(ctx context.Context, name string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.namespaces[name]
	return ok, nil
}

func (m *MemoryCacheStorage) Names(ctx context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.namespaces))
	for name := range m.namespaces {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (m *MemoryCacheStorage) Delete(ctx context.Context, name string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.namespaces[name]
	delete(m.namespaces, name)
	return ok, nil
}

func (m *MemoryCacheStorage) HealthCheck(ctx context.Context) error {
	return nil
}

func (m *MemoryCacheStorage) Close() error {
	return nil
}

func (m *MemoryCacheStorage) Locker() assetcache.Locker {
	return m.locker
}

// memoryNamespace is a handle bound by name, like a redis hash key. Entries
// live in the storage so a Put after a storage Delete registers the name again.
type memoryNamespace struct {
	storage *MemoryCacheStorage
	name    string
}

func (n *memoryNamespace) Name() string {
	return n.name
}

func (n *memoryNamespace) Match(ctx context.Context, key string) (*assetcache.Response, error) {
	n.storage.mu.RLock()
	defer n.storage.mu.RUnlock()
	resp, ok := n.storage.namespaces[n.name][key]
	if !ok {
		return nil, nil
	}
	return resp.Clone(), nil
}

func (n *memoryNamespace) Put(ctx context.Context, key string, resp *assetcache.Response) error {
	stored := resp.Clone().Stamp()
	n.storage.mu.Lock()
	defer n.storage.mu.Unlock()
	entries, ok := n.storage.namespaces[n.name]
	if !ok {
		entries = make(map[string]*assetcache.Response)
		n.storage.namespaces[n.name] = entries
	}
	entries[key] = stored
	return nil
}

func (n *memoryNamespace) Delete(ctx context.Context, key string) (bool, error) {
	n.storage.mu.Lock()
	defer n.storage.mu.Unlock()
	entries := n.storage.namespaces[n.name]
	_, ok := entries[key]
	delete(entries, key)
	return ok, nil
}

func (n *memoryNamespace) Keys(ctx context.Context) ([]string, error) {
	n.storage.mu.RLock()
	defer n.storage.mu.RUnlock()
	entries := n.storage.namespaces[n.name]
	keys := make([]string, 0, len(entries))
	for k := range entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

// LocalLocker is an in-process Locker keyed by name.
type LocalLocker struct {
	mu    sync.Mutex
	locks map[string]chan struct{}
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{locks: make(map[string]chan struct{})}
}

func (l *LocalLocker) Lock(ctx context.Context, name string) (func(), error) {
	l.mu.Lock()
	ch, ok := l.locks[name]
	if !ok {
		ch = make(chan struct{}, 1)
		l.locks[name] = ch
	}
	l.mu.Unlock()

	select {
	case ch <- struct{}{}:
		var once sync.Once
		return func() { once.Do(func() { <-ch }) }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
