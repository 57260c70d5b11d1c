package hooks

import (
	"encoding/json"
	"fmt"
	"hash/fnv"
	"sync"
)

// resultCache stores dispatch results for deterministic events, keyed by
// (event, content hash of input). Cleared on handler table reload.
type resultCache struct {
	mu      sync.RWMutex
	entries map[string]any
}

func newResultCache() *resultCache {
	return &resultCache{entries: make(map[string]any)}
}

func cacheKey(event Event, input any) (string, bool) {
	b, err := json.Marshal(input)
	if err != nil {
		return "", false
	}
	h := fnv.New64a()
	_, _ = h.Write(b)
	return fmt.Sprintf("%s|%x", event, h.Sum64()), true
}

func (c *resultCache) get(key string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.entries[key]
	return v, ok
}

func (c *resultCache) put(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = value
}

func (c *resultCache) clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]any)
}
