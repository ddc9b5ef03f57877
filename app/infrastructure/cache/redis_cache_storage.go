package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	"github.com/redis/go-redis/v9"
	"hydrogen.im/hydrogen-worker/app/domain/assetcache"
	"hydrogen.im/hydrogen-worker/app/utils/logger"
)

// RedisCacheStorage stores every namespace as one hash, with the set of
// namespace names kept under NamespaceSetKey.
type RedisCacheStorage struct {
	client *redis.Client
	rs     *redsync.Redsync
}

// RedisOptions parses a redis URL and applies password and db overrides.
func RedisOptions(redisURL string, password string, db string) *redis.Options {
	if redisURL == "" {
		redisURL = "redis://localhost:6379"
	}
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		logger.GetLogger().Error(fmt.Sprintf("Failed to parse Redis URL: %v", err))
		// Fallback to default configuration
		opts = &redis.Options{
			Addr:     "localhost:6379",
			Password: "",
			DB:       0,
		}
	}
	if password != "" {
		opts.Password = password
	}
	if db != "" {
		if n, err := strconv.Atoi(db); err == nil {
			opts.DB = n
		}
	}
	return opts
}

// NewRedisCacheStorage connects with the given options and pings the server.
func NewRedisCacheStorage(opts *redis.Options) (*RedisCacheStorage, error) {
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	logger.GetLogger().Info("Successfully connected to Redis")

	return NewRedisCacheStorageFromClient(client), nil
}

func NewRedisCacheStorageFromClient(client *redis.Client) *RedisCacheStorage {
	return &RedisCacheStorage{
		client: client,
		rs:     redsync.New(goredis.NewPool(client)),
	}
}

func (r *RedisCacheStorage) Open(ctx context.Context, name string) (assetcache.Namespace, error) {
	if err := r.client.SAdd(ctx, NamespaceSetKey, name).Err(); err != nil {
		return nil, fmt.Errorf("failed to open cache %q: %w", name, err)
	}
	return &redisNamespace{client: r.client, name: name, key: namespaceKey(name)}, nil
}

func (r *RedisCacheStorage) Has(ctx context.Context, name string) (bool, error) {
	ok, err := r.client.SIsMember(ctx, NamespaceSetKey, name).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check cache %q: %w", name, err)
	}
	return ok, nil
}

func (r *RedisCacheStorage) Names(ctx context.Context) ([]string, error) {
	names, err := r.client.SMembers(ctx, NamespaceSetKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list caches: %w", err)
	}
	sort.Strings(names)
	return names, nil
}

func (r *RedisCacheStorage) Delete(ctx context.Context, name string) (bool, error) {
	var srem *redis.IntCmd
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		srem = pipe.SRem(ctx, NamespaceSetKey, name)
		pipe.Unlink(ctx, namespaceKey(name))
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("failed to delete cache %q: %w", name, err)
	}
	return srem.Val() > 0, nil
}

func (r *RedisCacheStorage) HealthCheck(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisCacheStorage) Close() error {
	return r.client.Close()
}

func (r *RedisCacheStorage) Locker() assetcache.Locker {
	return r
}

// Lock takes a redlock so that only one process sharing this Redis runs a
// lifecycle transition at a time.
func (r *RedisCacheStorage) Lock(ctx context.Context, name string) (func(), error) {
	mutex := r.rs.NewMutex(LockKeyPrefix+name, redsync.WithExpiry(5*time.Minute), redsync.WithTries(64))
	if err := mutex.LockContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to acquire lock %q: %w", name, err)
	}
	return func() {
		if _, err := mutex.UnlockContext(context.Background()); err != nil {
			logger.GetLogger().Warnf("failed to release lock %q: %v", name, err)
		}
	}, nil
}

type redisNamespace struct {
	client *redis.Client
	name   string
	key    string
}

func (n *redisNamespace) Name() string {
	return n.name
}

func (n *redisNamespace) Match(ctx context.Context, key string) (*assetcache.Response, error) {
	val, err := n.client.HGet(ctx, n.key, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get value: %w", err)
	}
	var resp assetcache.Response
	if err := json.Unmarshal(val, &resp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cached response: %w", err)
	}
	return &resp, nil
}

func (n *redisNamespace) Put(ctx context.Context, key string, resp *assetcache.Response) error {
	jsonValue, err := json.Marshal(resp.Clone().Stamp())
	if err != nil {
		return fmt.Errorf("failed to marshal value: %w", err)
	}
	// a concurrent storage Delete may have dropped the name since Open
	_, err = n.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.SAdd(ctx, NamespaceSetKey, n.name)
		pipe.HSet(ctx, n.key, key, jsonValue)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to store key: %w", err)
	}
	return nil
}

func (n *redisNamespace) Delete(ctx context.Context, key string) (bool, error) {
	removed, err := n.client.HDel(ctx, n.key, key).Result()
	if err != nil {
		return false, fmt.Errorf("failed to delete key: %w", err)
	}
	return removed > 0, nil
}

func (n *redisNamespace) Keys(ctx context.Context) ([]string, error) {
	keys, err := n.client.HKeys(ctx, n.key).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list keys: %w", err)
	}
	sort.Strings(keys)
	return keys, nil
}
