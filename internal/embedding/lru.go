package embedding

import (
	"context"

	lru "github.com/hashicorp/golang-lru/v2"
)

// LRUCache is a bounded cache that evicts the least recently used entry.
type LRUCache struct {
	cache *lru.Cache[string, []float32]
}

// NewLRUCache creates an LRU cache holding at most maxSize entries.
func NewLRUCache(maxSize int) (*LRUCache, error) {
	c, err := lru.New[string, []float32](maxSize)
	if err != nil {
		return nil, err
	}
	return &LRUCache{cache: c}, nil
}

func (c *LRUCache) Get(_ context.Context, text string) ([]float32, bool) {
	v, ok := c.cache.Get(text)
	if !ok {
		return nil, false
	}
	return cloneVector(v), true
}

func (c *LRUCache) Set(_ context.Context, text string, vec []float32) {
	c.cache.Add(text, cloneVector(vec))
}

func (c *LRUCache) Len(_ context.Context) int {
	return c.cache.Len()
}
