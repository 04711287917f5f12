package monitor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	gocache "github.com/patrickmn/go-cache"

	"github.com/iafilius/ThreadPerfMonitor/src/types"
)

// SharedStore is an optional second-level cache holding raw response bodies so
// several viewers can share one backend fetch.
type SharedStore interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, raw []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// RedisStore implements SharedStore on a Redis server.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// RedisConfig holds connection settings for RedisStore.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

// NewRedisStore connects and pings Redis. A nil store and the error are returned
// when the server is unreachable so callers can continue without it.
func NewRedisStore(ctx context.Context, cfg RedisConfig) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: 10,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis %s not available: %w", cfg.Addr, err)
	}
	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "perfchart:"
	}
	return NewRedisStoreFromClient(client, prefix), nil
}

// NewRedisStoreFromClient wraps an existing client.
func NewRedisStoreFromClient(client *redis.Client, prefix string) *RedisStore {
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	b, err := s.client.Get(ctx, s.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return b, true, nil
}

func (s *RedisStore) Set(ctx context.Context, key string, raw []byte, ttl time.Duration) error {
	return s.client.Set(ctx, s.prefix+key, raw, ttl).Err()
}

func (s *RedisStore) Delete(ctx context.Context, key string) error {
	return s.client.Del(ctx, s.prefix+key).Err()
}

// Close releases the connection pool.
func (s *RedisStore) Close() error { return s.client.Close() }

// responseCache keeps decoded responses in memory. Returning the same pointer for
// a cached key keeps downstream memoisation stable.
type responseCache struct {
	c *gocache.Cache
}

func newResponseCache(ttl time.Duration) *responseCache {
	return &responseCache{c: gocache.New(ttl, 2*ttl)}
}

func (rc *responseCache) get(thread types.ThreadName) (*types.PerfChartData, bool) {
	v, ok := rc.c.Get(string(thread))
	if !ok {
		return nil, false
	}
	d, ok := v.(*types.PerfChartData)
	return d, ok
}

func (rc *responseCache) set(thread types.ThreadName, d *types.PerfChartData) {
	rc.c.Set(string(thread), d, gocache.DefaultExpiration)
}

func (rc *responseCache) delete(thread types.ThreadName) {
	rc.c.Delete(string(thread))
}
