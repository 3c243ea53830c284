package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// EdgeCache keeps rendered responses in Redis. Every invalidation key is one
// hash whose fields are the variants rendered for it, so dropping the key
// drops every representation at once.
type EdgeCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewEdgeCache connects to Redis and verifies the connection.
func NewEdgeCache(redisURL string, ttl time.Duration) (*EdgeCache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return NewEdgeCacheWithClient(client, ttl), nil
}

func NewEdgeCacheWithClient(client *redis.Client, ttl time.Duration) *EdgeCache {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &EdgeCache{client: client, prefix: "sayit:", ttl: ttl}
}

func (c *EdgeCache) key(k string) string {
	return c.prefix + k
}

func typeField(variant string) string {
	return variant + "#type"
}

func (c *EdgeCache) Get(ctx context.Context, key, variant string) (Entry, bool, error) {
	values, err := c.client.HMGet(ctx, c.key(key), variant, typeField(variant)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Entry{}, false, nil
		}
		return Entry{}, false, fmt.Errorf("edge get %s: %w", key, err)
	}
	body, ok := values[0].(string)
	if !ok {
		return Entry{}, false, nil
	}
	contentType, _ := values[1].(string)
	return Entry{ContentType: contentType, Body: []byte(body)}, true, nil
}

func (c *EdgeCache) Put(ctx context.Context, key, variant string, entry Entry) error {
	k := c.key(key)
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, k, variant, entry.Body, typeField(variant), entry.ContentType)
		pipe.Expire(ctx, k, c.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("edge put %s: %w", key, err)
	}
	return nil
}

func (c *EdgeCache) Invalidate(ctx context.Context, keys []string) error {
	if len(keys) == 0 {
		return nil
	}
	prefixed := make([]string, len(keys))
	for i, k := range keys {
		prefixed[i] = c.key(k)
	}
	if err := c.client.Del(ctx, prefixed...).Err(); err != nil {
		return fmt.Errorf("edge invalidate: %w", err)
	}
	return nil
}

func (c *EdgeCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *EdgeCache) Close() error {
	return c.client.Close()
}
