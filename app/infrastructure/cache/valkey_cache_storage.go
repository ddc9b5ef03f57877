package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/valkey-io/valkey-go"
	"hydrogen.im/hydrogen-worker/app/domain/assetcache"
)

// ValkeyCacheStorage uses the same key layout as RedisCacheStorage.
type ValkeyCacheStorage struct {
	client valkey.Client
	locker *LocalLocker
}

// parseValkeyURL parses a Valkey URL and returns address, password, database, and error
func parseValkeyURL(valkeyURL string) (address, password string, database int, err error) {
	// Default values
	database = -1 // -1 means no database specified

	// Handle plain address without protocol
	if !strings.Contains(valkeyURL, "://") {
		return valkeyURL, "", -1, nil
	}

	u, err := url.Parse(valkeyURL)
	if err != nil {
		return "", "", -1, fmt.Errorf("invalid URL format: %w", err)
	}

	address = u.Host
	if address == "" {
		return "", "", -1, fmt.Errorf("no host specified in URL")
	}

	if u.User != nil {
		password, _ = u.User.Password()
	}

	// Extract database from path
	if u.Path != "" && u.Path != "/" {
		dbStr := strings.TrimPrefix(u.Path, "/")
		if dbStr != "" {
			if db, parseErr := strconv.Atoi(dbStr); parseErr == nil {
				database = db
			}
		}
	}

	return address, password, database, nil
}

// ValkeyOptions builds client options from a URL plus password and db overrides.
func ValkeyOptions(valkeyURL string, password string, db string) (valkey.ClientOption, error) {
	if valkeyURL == "" {
		valkeyURL = "valkey://localhost:6379"
	}
	address, urlPassword, urlDB, err := parseValkeyURL(valkeyURL)
	if err != nil {
		return valkey.ClientOption{}, err
	}
	opts := valkey.ClientOption{
		InitAddress: []string{address},
	}
	if urlPassword != "" {
		opts.Password = urlPassword
	}
	if urlDB != -1 {
		opts.SelectDB = urlDB
	}
	if password != "" {
		opts.Password = password
	}
	if db != "" {
		if n, err := strconv.Atoi(db); err == nil {
			opts.SelectDB = n
		}
	}
	return opts, nil
}

func NewValkeyCacheStorage(opts valkey.ClientOption) (*ValkeyCacheStorage, error) {
	client, err := valkey.NewClient(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create valkey client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Do(ctx, client.B().Ping().Build()).Error(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to valkey: %w", err)
	}

	return &ValkeyCacheStorage{
		client: client,
		locker: NewLocalLocker(),
	}, nil
}

func (v *ValkeyCacheStorage) Open(ctx context.Context, name string) (assetcache.Namespace, error) {
	if err := v.client.Do(ctx, v.client.B().Sadd().Key(NamespaceSetKey).Member(name).Build()).Error(); err != nil {
		return nil, fmt.Errorf("failed to open cache %q: %w", name, err)
	}
	return &valkeyNamespace{client: v.client, name: name, key: namespaceKey(name)}, nil
}

func (v *ValkeyCacheStorage) Has(ctx context.Context, name string) (bool, error) {
	ok, err := v.client.Do(ctx, v.client.B().Sismember().Key(NamespaceSetKey).Member(name).Build()).AsBool()
	if err != nil {
		return false, fmt.Errorf("failed to check cache %q: %w", name, err)
	}
	return ok, nil
}

func (v *ValkeyCacheStorage) Names(ctx context.Context) ([]string, error) {
	names, err := v.client.Do(ctx, v.client.B().Smembers().Key(NamespaceSetKey).Build()).AsStrSlice()
	if err != nil {
		return nil, fmt.Errorf("failed to list caches: %w", err)
	}
	sort.Strings(names)
	return names, nil
}

func (v *ValkeyCacheStorage) Delete(ctx context.Context, name string) (bool, error) {
	results := v.client.DoMulti(ctx,
		v.client.B().Srem().Key(NamespaceSetKey).Member(name).Build(),
		v.client.B().Unlink().Key(namespaceKey(name)).Build(),
	)
	removed, err := results[0].AsInt64()
	if err != nil {
		return false, fmt.Errorf("failed to delete cache %q: %w", name, err)
	}
	if err := results[1].Error(); err != nil {
		return false, fmt.Errorf("failed to unlink cache %q: %w", name, err)
	}
	return removed > 0, nil
}

func (v *ValkeyCacheStorage) HealthCheck(ctx context.Context) error {
	return v.client.Do(ctx, v.client.B().Ping().Build()).Error()
}

func (v *ValkeyCacheStorage) Close() error {
	v.client.Close()
	return nil
}

func (v *ValkeyCacheStorage) Locker() assetcache.Locker {
	return v.locker
}

type valkeyNamespace struct {
	client valkey.Client
	name   string
	key    string
}

func (n *valkeyNamespace) Name() string {
	return n.name
}

func (n *valkeyNamespace) Match(ctx context.Context, key string) (*assetcache.Response, error) {
	val, err := n.client.Do(ctx, n.client.B().Hget().Key(n.key).Field(key).Build()).AsBytes()
	if err != nil {
		if valkey.IsValkeyNil(err) {
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

func (n *valkeyNamespace) Put(ctx context.Context, key string, resp *assetcache.Response) error {
	jsonValue, err := json.Marshal(resp.Clone().Stamp())
	if err != nil {
		return fmt.Errorf("failed to marshal value: %w", err)
	}
	return n.client.Dedicated(func(c valkey.DedicatedClient) error {
		results := c.DoMulti(ctx,
			c.B().Multi().Build(),
			c.B().Sadd().Key(NamespaceSetKey).Member(n.name).Build(),
			c.B().Hset().Key(n.key).FieldValue().FieldValue(key, string(jsonValue)).Build(),
			c.B().Exec().Build(),
		)
		for _, r := range results {
			if err := r.Error(); err != nil {
				return fmt.Errorf("failed to store key: %w", err)
			}
		}
		return nil
	})
}

func (n *valkeyNamespace) Delete(ctx context.Context, key string) (bool, error) {
	removed, err := n.client.Do(ctx, n.client.B().Hdel().Key(n.key).Field(key).Build()).AsInt64()
	if err != nil {
		return false, fmt.Errorf("failed to delete key: %w", err)
	}
	return removed > 0, nil
}

func (n *valkeyNamespace) Keys(ctx context.Context) ([]string, error) {
	keys, err := n.client.Do(ctx, n.client.B().Hkeys().Key(n.key).Build()).AsStrSlice()
	if err != nil {
		return nil, fmt.Errorf("failed to list keys: %w", err)
	}
	sort.Strings(keys)
	return keys, nil
}
