package resolve

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"

	"github.com/sells-group/holdings-cli/internal/model"
	"github.com/sells-group/holdings-cli/internal/store"
)

// Cache stores resolved results per request signature. Get returns nil, nil
// on a miss.
type Cache interface {
	Get(ctx context.Context, key string) (*model.HoldingsResult, error)
	Set(ctx context.Context, key string, res *model.HoldingsResult, ttl time.Duration) error
	Name() string
}

// Key derives the cache signature for one remote call.
func Key(ticker, source string, fields []string, bucket time.Time) string {
	sig := strings.Join([]string{
		strings.ToUpper(ticker),
		source,
		strings.Join(fields, ","),
		bucket.UTC().Format(time.RFC3339),
	}, "|")
	sum := sha256.Sum256([]byte(sig))
	return hex.EncodeToString(sum[:])
}

// Bucket truncates t to the cache time bucket.
func Bucket(t time.Time, size time.Duration) time.Time {
	if size <= 0 {
		return t.UTC()
	}
	return t.UTC().Truncate(size)
}

// MemoryCache is an in-process cache for a single analysis run or server.
type MemoryCache struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

type memoryEntry struct {
	res     model.HoldingsResult
	expires time.Time
}

// NewMemoryCache creates an empty MemoryCache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[string]memoryEntry), now: time.Now}
}

func (c *MemoryCache) Name() string { return "memory" }

func (c *MemoryCache) Get(_ context.Context, key string) (*model.HoldingsResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return nil, nil
	}
	if !c.now().Before(e.expires) {
		delete(c.entries, key)
		return nil, nil
	}
	res := e.res
	return &res, nil
}

func (c *MemoryCache) Set(_ context.Context, key string, res *model.HoldingsResult, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = memoryEntry{res: *res, expires: c.now().Add(ttl)}
	return nil
}

// StoreCache persists results in the run ledger database.
type StoreCache struct {
	st store.Store
}

// NewStoreCache wraps a ledger store.
func NewStoreCache(st store.Store) *StoreCache { return &StoreCache{st: st} }

func (c *StoreCache) Name() string { return "store" }

func (c *StoreCache) Get(ctx context.Context, key string) (*model.HoldingsResult, error) {
	entry, err := c.st.GetCachedResolution(ctx, key)
	if err != nil || entry == nil {
		return nil, err
	}
	var res model.HoldingsResult
	if err := json.Unmarshal(entry.Payload, &res); err != nil {
		return nil, eris.Wrap(err, "resolve: decode cached result")
	}
	return &res, nil
}

func (c *StoreCache) Set(ctx context.Context, key string, res *model.HoldingsResult, ttl time.Duration) error {
	payload, err := json.Marshal(res)
	if err != nil {
		return eris.Wrap(err, "resolve: encode cached result")
	}
	return c.st.SetCachedResolution(ctx, store.CacheEntry{
		Key:     key,
		Ticker:  res.Ticker,
		Source:  res.Source,
		Payload: payload,
	}, ttl)
}

const redisKeyPrefix = "holdings:resolve:"

// RedisCache shares results between processes.
type RedisCache struct {
	client *redis.Client
}

// NewRedisClient parses url and checks the connection.
func NewRedisClient(ctx context.Context, url string, poolSize int) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, eris.Wrap(err, "resolve: parse redis url")
	}
	if poolSize > 0 {
		opts.PoolSize = poolSize
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, eris.Wrap(err, "resolve: redis ping")
	}
	return client, nil
}

// NewRedisCache wraps an existing client.
func NewRedisCache(client *redis.Client) *RedisCache { return &RedisCache{client: client} }

func (c *RedisCache) Name() string { return "redis" }

func (c *RedisCache) Get(ctx context.Context, key string) (*model.HoldingsResult, error) {
	data, err := c.client.Get(ctx, redisKeyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "resolve: redis get")
	}
	var res model.HoldingsResult
	if err := json.Unmarshal(data, &res); err != nil {
		return nil, eris.Wrap(err, "resolve: decode cached result")
	}
	return &res, nil
}

func (c *RedisCache) Set(ctx context.Context, key string, res *model.HoldingsResult, ttl time.Duration) error {
	data, err := json.Marshal(res)
	if err != nil {
		return eris.Wrap(err, "resolve: encode cached result")
	}
	return eris.Wrap(c.client.Set(ctx, redisKeyPrefix+key, data, ttl).Err(), "resolve: redis set")
}
