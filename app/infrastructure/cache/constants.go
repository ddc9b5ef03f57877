package cache

const (
	CacheVersion       = "v1"
	NamespaceSetKey    = CacheVersion + ":caches"
	NamespaceKeyPrefix = CacheVersion + ":cache:"
	LockKeyPrefix      = CacheVersion + ":lock:"
)

func namespaceKey(name string) string {
	return NamespaceKeyPrefix + name
}
