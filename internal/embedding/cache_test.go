package embedding

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"
)

func TestFIFOCache_evictsOldestInserted(t *testing.T) {
	ctx := context.Background()
	c := NewFIFOCache(2)
	c.Set(ctx, "a", []float32{1})
	c.Set(ctx, "b", []float32{2})
	// Lookups do not refresh position.
	if _, ok := c.Get(ctx, "a"); !ok {
		t.Fatal("expected a")
	}
	c.Set(ctx, "c", []float32{3})

	if _, ok := c.Get(ctx, "a"); ok {
		t.Error("expected a to be evicted")
	}
	for _, k := range []string{"b", "c"} {
		if _, ok := c.Get(ctx, k); !ok {
			t.Errorf("expected %s to remain", k)
		}
	}
	if n := c.Len(ctx); n != 2 {
		t.Errorf("Len = %d, want 2", n)
	}
}

func TestFIFOCache_updateKeepsPosition(t *testing.T) {
	ctx := context.Background()
	c := NewFIFOCache(2)
	c.Set(ctx, "a", []float32{1})
	c.Set(ctx, "b", []float32{2})
	c.Set(ctx, "a", []float32{9})
	if v, _ := c.Get(ctx, "a"); v[0] != 9 {
		t.Errorf("a = %v, want updated value", v)
	}
	c.Set(ctx, "c", []float32{3})
	if _, ok := c.Get(ctx, "a"); ok {
		t.Error("updating a should not move it behind b")
	}
}

func TestFIFOCache_copiesValue(t *testing.T) {
	ctx := context.Background()
	c := NewFIFOCache(1)
	v := []float32{1, 2}
	c.Set(ctx, "a", v)
	v[0] = 42
	if got, _ := c.Get(ctx, "a"); got[0] != 1 {
		t.Errorf("cache aliased caller slice: %v", got)
	}
}

func TestFIFOCache_getReturnsCopy(t *testing.T) {
	ctx := context.Background()
	c := NewFIFOCache(1)
	c.Set(ctx, "a", []float32{1, 2})
	got, _ := c.Get(ctx, "a")
	got[0] = 999
	if again, _ := c.Get(ctx, "a"); again[0] != 1 {
		t.Errorf("cached vector changed through Get result: %v", again)
	}
}

func TestFIFOCache_disabled(t *testing.T) {
	ctx := context.Background()
	c := NewFIFOCache(0)
	c.Set(ctx, "a", []float32{1})
	if _, ok := c.Get(ctx, "a"); ok {
		t.Error("zero-size cache should never hit")
	}
}

func TestFIFOCache_concurrent(t *testing.T) {
	ctx := context.Background()
	c := NewFIFOCache(50)
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				key := fmt.Sprintf("%d-%d", g, i)
				c.Set(ctx, key, []float32{float32(i)})
				c.Get(ctx, key)
			}
		}(g)
	}
	wg.Wait()
	if n := c.Len(ctx); n != 50 {
		t.Errorf("Len = %d, want 50", n)
	}
}

func TestLRUCache_evictsLeastRecentlyUsed(t *testing.T) {
	ctx := context.Background()
	c, err := NewLRUCache(2)
	if err != nil {
		t.Fatal(err)
	}
	c.Set(ctx, "a", []float32{1})
	c.Set(ctx, "b", []float32{2})
	c.Get(ctx, "a")
	c.Set(ctx, "c", []float32{3})
	if _, ok := c.Get(ctx, "b"); ok {
		t.Error("expected b to be evicted")
	}
	if _, ok := c.Get(ctx, "a"); !ok {
		t.Error("expected recently used a to remain")
	}
}

func TestLRUCache_getReturnsCopy(t *testing.T) {
	ctx := context.Background()
	c, err := NewLRUCache(2)
	if err != nil {
		t.Fatal(err)
	}
	c.Set(ctx, "a", []float32{1})
	got, _ := c.Get(ctx, "a")
	got[0] = 999
	if again, _ := c.Get(ctx, "a"); again[0] != 1 {
		t.Errorf("cached vector changed through Get result: %v", again)
	}
}

func TestNewLRUCache_invalidSize(t *testing.T) {
	if _, err := NewLRUCache(0); err == nil {
		t.Error("expected error for zero size")
	}
}

func TestRedisCache(t *testing.T) {
	url := os.Getenv("KOTAE_TEST_REDIS_URL")
	if url == "" {
		t.Skip("KOTAE_TEST_REDIS_URL not set")
	}
	ctx := context.Background()
	prefix := fmt.Sprintf("kotae:test:%s:", t.Name())
	c, err := NewRedisCache(ctx, url, prefix, "m", 2, nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		c.client.Del(ctx, c.hashKey, c.orderKey)
		_ = c.Close()
	})

	c.Set(ctx, "a", []float32{1, 2})
	c.Set(ctx, "b", []float32{3})
	c.Set(ctx, "a", []float32{5, 6})
	c.Set(ctx, "c", []float32{4})

	if _, ok := c.Get(ctx, "a"); ok {
		t.Error("expected a to be evicted")
	}
	if v, ok := c.Get(ctx, "c"); !ok || v[0] != 4 {
		t.Errorf("c = %v, %v", v, ok)
	}
	if n := c.Len(ctx); n != 2 {
		t.Errorf("Len = %d, want 2", n)
	}
}

func TestParseRedisURL(t *testing.T) {
	opts, err := parseRedisURL("redis://user:pw@cache:6380/2")
	if err != nil {
		t.Fatal(err)
	}
	if opts.Addr != "cache:6380" || opts.DB != 2 || opts.Password != "pw" {
		t.Errorf("unexpected options: addr=%s db=%d", opts.Addr, opts.DB)
	}
	opts, err = parseRedisURL("")
	if err != nil || opts.Addr != "localhost:6379" {
		t.Errorf("default addr = %v, %v", opts, err)
	}
}
