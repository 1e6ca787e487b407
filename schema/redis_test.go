package schema_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/effective-security/mcpbridge/schema"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	rediscon "github.com/testcontainers/testcontainers-go/modules/redis"
)

func Test_RedisCache(t *testing.T) {
	ctx := context.Background()
	redisContainer, err := rediscon.Run(ctx, "redis:7",
		testcontainers.WithConfigModifier(func(config *container.Config) {
			config.Env = []string{
				"ALLOW_EMPTY_PASSWORD=yes",
			}
		}),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, redisContainer.Terminate(ctx))
	})

	state, err := redisContainer.State(ctx)
	require.NoError(t, err)
	require.True(t, state.Running)

	host, err := redisContainer.ConnectionString(ctx)
	require.NoError(t, err)

	options, err := redis.ParseURL(host)
	require.NoError(t, err)

	client := redis.NewClient(options)
	rs := client.Ping(ctx)
	require.NoError(t, rs.Err(), "failed to connect to Redis")

	prefix := fmt.Sprintf("test-%d", time.Now().Unix())
	cache := schema.NewRedisCache(client, prefix)

	_, ok := cache.Get(ctx, "missing")
	assert.False(t, ok)

	tr := schema.NewTranslator(schema.WithCache(cache))
	in := decode(t, `{
		"type": "object",
		"properties": {
			"tags": {"type": "array"}
		}
	}`)

	first := tr.Translate(ctx, in)
	require.True(t, first.Usable())
	assert.Equal(t, 1, first.PatchCount)

	// A second translator sharing the same Redis sees the cached entry.
	tr2 := schema.NewTranslator(schema.WithCache(schema.NewRedisCache(client, prefix)))
	second := tr2.Translate(ctx, decode(t, `{
		"type": "object",
		"properties": {
			"tags": {"type": "array"}
		}
	}`))
	require.True(t, second.Usable())
	assert.Equal(t, 1, second.PatchCount)

	stats := tr2.Stats()
	assert.Equal(t, uint64(0), stats.Traversals)
	assert.Equal(t, uint64(1), stats.CacheHits)
}
