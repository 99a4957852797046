package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/menta2k/cube-segmenter/pkg/types"
)

const keyPrefix = "segment:"

// Cache stores finished segmentations keyed by image hash and coordinate variant.
// Get returns nil, nil on a miss.
type Cache interface {
	Get(ctx context.Context, md5, variant string) (*types.Segmentation, error)
	Set(ctx context.Context, md5, variant string, seg types.Segmentation) error
}

// Config holds the Redis connection settings
type Config struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

// RedisCache is a Cache backed by Redis
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisCache creates a cache client. It does not connect until first use.
func NewRedisCache(cfg Config) *RedisCache {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	return &RedisCache{
		client: client,
		ttl:    cfg.TTL,
	}
}

// Key builds the Redis key for an image hash and coordinate variant
func Key(md5, variant string) string {
	return keyPrefix + md5 + ":" + variant
}

func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Get fetches a cached segmentation
func (c *RedisCache) Get(ctx context.Context, md5, variant string) (*types.Segmentation, error) {
	data, err := c.client.Get(ctx, Key(md5, variant)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("redis get: %w", err)
	}

	var seg types.Segmentation
	if err := json.Unmarshal(data, &seg); err != nil {
		return nil, fmt.Errorf("corrupt cache entry %s: %w", Key(md5, variant), err)
	}
	return &seg, nil
}

// Set stores a segmentation for the configured TTL
func (c *RedisCache) Set(ctx context.Context, md5, variant string, seg types.Segmentation) error {
	data, err := json.Marshal(seg)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, Key(md5, variant), data, c.ttl).Err()
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}

// Nop never hits
type Nop struct{}

func (Nop) Get(context.Context, string, string) (*types.Segmentation, error) { return nil, nil }

func (Nop) Set(context.Context, string, string, types.Segmentation) error { return nil }
