// Package cache keeps presigned download URLs in Redis so repeated downloads
// of the same object reuse one signature until it is close to expiring.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"
)

const keyPrefix = "objidx:presign:"

// PresignCache stores presigned URLs keyed by bucket/key.
type PresignCache struct {
	rdb redis.Cmdable
}

func NewPresignCache(rdb redis.Cmdable) *PresignCache {
	return &PresignCache{rdb: rdb}
}

// Connect parses a redis:// URL, pings the server and returns a cache bound
// to it together with the client's Close.
func Connect(ctx context.Context, rawURL string) (*PresignCache, func() error, error) {
	opt, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, nil, fmt.Errorf("could not parse redis URL: %w", err)
	}

	rdb := redis.NewClient(opt)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		rdb.Close()
		return nil, nil, fmt.Errorf("failed to connect to redis at %s: %w", opt.Addr, err)
	}

	return NewPresignCache(rdb), rdb.Close, nil
}

func cacheKey(bucket, key string) string {
	return keyPrefix + bucket + "/" + key
}

// Get returns the cached URL. ok is false on a miss.
func (c *PresignCache) Get(ctx context.Context, bucket, key string) (url string, ok bool, err error) {
	url, err = c.rdb.Get(ctx, cacheKey(bucket, key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("redis get: %w", err)
	}
	return url, true, nil
}

// Set stores url for ttl. A non-positive ttl is a no-op since the entry
// would outlive the signature.
func (c *PresignCache) Set(ctx context.Context, bucket, key, url string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	if err := c.rdb.Set(ctx, cacheKey(bucket, key), url, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}
