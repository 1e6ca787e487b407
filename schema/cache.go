package schema

import (
	"context"
	"sync"
)

// Cache memoizes translations by the content hash of the serialized input.
// Implementations must be safe for concurrent use.
type Cache interface {
	Get(ctx context.Context, key string) (*Translation, bool)
	Set(ctx context.Context, key string, value *Translation)
}

type memoryCache struct {
	mu      sync.RWMutex
	entries map[string]*Translation
}

// NewMemoryCache returns an in-process Cache with no eviction. Tool schemas
// are small and few per deployment, so unbounded growth is acceptable here.
func NewMemoryCache() Cache {
	return &memoryCache{
		entries: make(map[string]*Translation),
	}
}

func (c *memoryCache) Get(_ context.Context, key string) (*Translation, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.entries[key]
	return t, ok
}

func (c *memoryCache) Set(_ context.Context, key string, value *Translation) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = value
}
