package cache

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
)

func TestObjectCacheEvictsByCount(t *testing.T) {
	c, err := NewObjectCache(2)
	if err != nil {
		t.Fatalf("NewObjectCache failed: %v", err)
	}
	c.Add("a", 1)
	c.Add("b", 2)
	c.Add("c", 3) // evicts "a"

	if _, ok := c.Get("a"); ok {
		t.Error("oldest entry should have been evicted")
	}
	if v, ok := c.Get("c"); !ok || v.(int) != 3 {
		t.Errorf("Get(c) = %v, %v", v, ok)
	}
	if c.Len() != 2 {
		t.Errorf("Len = %d, want 2", c.Len())
	}
}

func TestArrayCacheComputesOnce(t *testing.T) {
	c := NewArrayCache(0)

	var calls atomic.Int64
	compute := func() (any, int64, error) {
		calls.Add(1)
		return []int32{1, 2, 3}, 12, nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := c.GetOrCompute("k", compute)
			if err != nil {
				t.Errorf("GetOrCompute failed: %v", err)
				return
			}
			if len(v.([]int32)) != 3 {
				t.Errorf("GetOrCompute = %v", v)
			}
		}()
	}
	wg.Wait()

	if n := calls.Load(); n != 1 {
		t.Errorf("compute ran %d times, want 1", n)
	}
	if c.Len() != 1 {
		t.Errorf("Len = %d, want 1", c.Len())
	}
}

func TestArrayCacheErrorNotMemoized(t *testing.T) {
	c := NewArrayCache(0)

	boom := errors.New("decode failed")
	fails := func() (any, int64, error) { return nil, 0, boom }

	if _, err := c.GetOrCompute("k", fails); !errors.Is(err, boom) {
		t.Fatalf("GetOrCompute error = %v, want %v", err, boom)
	}
	if c.Len() != 0 {
		t.Errorf("failed computation left %d entries", c.Len())
	}

	// A later request retries and can succeed.
	v, err := c.GetOrCompute("k", func() (any, int64, error) { return "ok", 2, nil })
	if err != nil {
		t.Fatalf("retry failed: %v", err)
	}
	if v.(string) != "ok" {
		t.Errorf("retry = %v", v)
	}
}

func TestArrayCacheEvictsByBytes(t *testing.T) {
	c := NewArrayCache(100)

	put := func(key string, size int64) {
		t.Helper()
		if _, err := c.GetOrCompute(key, func() (any, int64, error) { return key, size, nil }); err != nil {
			t.Fatalf("GetOrCompute(%s) failed: %v", key, err)
		}
	}

	put("a", 40)
	put("b", 40)
	put("c", 40) // over budget: "a" is least recently used

	if _, ok := c.Get("a"); ok {
		t.Error("a should have been evicted")
	}
	if _, ok := c.Get("b"); !ok {
		t.Error("b should still be cached")
	}
	if c.Bytes() != 80 {
		t.Errorf("Bytes = %d, want 80", c.Bytes())
	}

	// Touching "b" protects it; "c" goes next.
	c.Get("b")
	put("d", 40)
	if _, ok := c.Get("c"); ok {
		t.Error("c should have been evicted after b was touched")
	}
	if _, ok := c.Get("b"); !ok {
		t.Error("b should have survived")
	}
}

func TestArrayCacheKeysOrder(t *testing.T) {
	c := NewArrayCache(0)
	c.GetOrCompute("first", func() (any, int64, error) { return 1, 1, nil })
	c.GetOrCompute("second", func() (any, int64, error) { return 2, 1, nil })

	keys := c.Keys()
	if len(keys) != 2 || keys[0] != "second" || keys[1] != "first" {
		t.Errorf("Keys = %v, want [second first]", keys)
	}
}
