package embedding

import (
	"container/list"
	"context"
	"sync"
)

// Cache maps input text to its embedding. Implementations are safe for concurrent use.
// A backend failure is reported as a miss; the cache never fails an embedding call.
type Cache interface {
	Get(ctx context.Context, text string) ([]float32, bool)
	Set(ctx context.Context, text string, vec []float32)
	Len(ctx context.Context) int
}

// FIFOCache is a bounded cache that evicts the oldest inserted entry.
// Lookups do not refresh an entry's position.
type FIFOCache struct {
	maxSize int
	entries map[string]*list.Element
	order   *list.List
	mu      sync.Mutex
}

type cacheEntry struct {
	key   string
	value []float32
}

// NewFIFOCache creates a cache holding at most maxSize entries.
// A maxSize of zero or less disables caching.
func NewFIFOCache(maxSize int) *FIFOCache {
	return &FIFOCache{
		maxSize: maxSize,
		entries: make(map[string]*list.Element),
		order:   list.New(),
	}
}

// Get returns a copy of the cached embedding for text if present.
func (c *FIFOCache) Get(_ context.Context, text string) ([]float32, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.entries[text]; ok {
		return cloneVector(elem.Value.(*cacheEntry).value), true
	}
	return nil, false
}

// Set stores the embedding for text. A new key evicts the oldest entry when the
// cache is full; an existing key keeps its insertion position.
func (c *FIFOCache) Set(_ context.Context, text string, vec []float32) {
	if c.maxSize <= 0 {
		return
	}
	value := cloneVector(vec)

	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.entries[text]; ok {
		elem.Value.(*cacheEntry).value = value
		return
	}
	for c.order.Len() >= c.maxSize {
		oldest := c.order.Front()
		c.order.Remove(oldest)
		delete(c.entries, oldest.Value.(*cacheEntry).key)
	}
	c.entries[text] = c.order.PushBack(&cacheEntry{key: text, value: value})
}

// Len returns the number of cached entries.
func (c *FIFOCache) Len(_ context.Context) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// cloneVector keeps cached vectors out of reach of callers.
func cloneVector(v []float32) []float32 {
	out := make([]float32, len(v))
	copy(out, v)
	return out
}
