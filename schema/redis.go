package schema

import (
	"context"
	"encoding/json"
	"path"
	"time"

	"github.com/effective-security/xlog"
	"github.com/redis/go-redis/v9"
)

// The redis cache shares translations across replicas. Keys are structured
// as `/<prefix>/schemacache/<hash>` where hash is the content hash of the
// serialized input schema. Misses and transport errors degrade to a cache
// miss; translation proceeds locally and the entry is rewritten.

const redisCacheTTL = 24 * time.Hour

type redisCache struct {
	client *redis.Client
	prefix string
}

// NewRedisCache returns a Cache backed by Redis.
func NewRedisCache(client *redis.Client, prefix string) Cache {
	return &redisCache{
		client: client,
		prefix: prefix,
	}
}

func (c *redisCache) key(hash string) string {
	return path.Join(c.prefix, "schemacache", hash)
}

func (c *redisCache) Get(ctx context.Context, key string) (*Translation, bool) {
	data, err := c.client.Get(ctx, c.key(key)).Result()
	if err != nil {
		if err != redis.Nil {
			logger.ContextKV(ctx, xlog.WARNING, "reason", "redis_get", "err", err.Error())
		}
		return nil, false
	}

	var t Translation
	if err := json.Unmarshal([]byte(data), &t); err != nil {
		logger.ContextKV(ctx, xlog.WARNING, "reason", "unmarshal translation", "err", err.Error())
		return nil, false
	}
	return &t, true
}

func (c *redisCache) Set(ctx context.Context, key string, value *Translation) {
	data, err := json.Marshal(value)
	if err != nil {
		logger.ContextKV(ctx, xlog.WARNING, "reason", "marshal translation", "err", err.Error())
		return
	}
	if err := c.client.Set(ctx, c.key(key), data, redisCacheTTL).Err(); err != nil {
		logger.ContextKV(ctx, xlog.WARNING, "reason", "redis_set", "err", err.Error())
	}
}
