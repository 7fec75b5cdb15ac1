package lru

import (
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestBasicGetPut(t *testing.T) {
	c := New[string, int](2, 0)

	c.Put("a", 1)
	c.Put("b", 2)

	if v, ok := c.Get("a"); !ok || v != 1 {
		t.Fatalf("expected a=1, got %v %v", v, ok)
	}
	if v, ok := c.Get("b"); !ok || v != 2 {
		t.Fatalf("expected b=2, got %v %v", v, ok)
	}
	if _, ok := c.Get("missing"); ok {
		t.Fatal("expected miss")
	}
}

func TestEviction(t *testing.T) {
	c := New[string, int](2, 0)

	c.Put("a", 1)
	c.Put("b", 2)

	// Access "a" so "b" becomes LRU.
	c.Get("a")

	if evicted := c.Put("c", 3); !evicted {
		t.Fatal("expected an eviction")
	}
	if _, ok := c.Get("b"); ok {
		t.Fatal("expected 'b' to be evicted")
	}
	if v, ok := c.Get("a"); !ok || v != 1 {
		t.Fatalf("expected a=1 after eviction, got %v %v", v, ok)
	}
	if c.Len() != 2 {
		t.Fatalf("expected len 2, got %d", c.Len())
	}
}

func TestUpdateDoesNotEvict(t *testing.T) {
	c := New[string, int](1, 0)
	c.Put("a", 1)
	if evicted := c.Put("a", 2); evicted {
		t.Fatal("update must not evict")
	}
	if v, _ := c.Get("a"); v != 2 {
		t.Fatalf("expected a=2, got %d", v)
	}
}

func TestDelete(t *testing.T) {
	c := New[string, int](2, 0)
	c.Put("a", 1)
	if !c.Delete("a") {
		t.Fatal("expected delete to report presence")
	}
	if c.Delete("a") {
		t.Fatal("second delete must report absence")
	}
	if c.Len() != 0 {
		t.Fatalf("expected empty cache, got %d", c.Len())
	}
}

func TestExpiry(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	c := New[string, int](4, time.Minute)
	c.now = func() time.Time { return now }

	c.Put("a", 1)
	now = now.Add(59 * time.Second)
	if _, ok := c.Get("a"); !ok {
		t.Fatal("entry expired early")
	}

	now = now.Add(time.Second)
	if _, ok := c.Get("a"); ok {
		t.Fatal("entry should have expired")
	}
	if c.Len() != 0 {
		t.Fatalf("expired entry should be dropped on read, len=%d", c.Len())
	}

	// Rewriting refreshes the deadline.
	c.Put("b", 1)
	now = now.Add(50 * time.Second)
	c.Put("b", 2)
	now = now.Add(50 * time.Second)
	if v, ok := c.Get("b"); !ok || v != 2 {
		t.Fatalf("expected refreshed b=2, got %v %v", v, ok)
	}
}

func TestCapacityPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic for zero capacity")
		}
	}()
	New[string, int](0, 0)
}

func TestConcurrentAccess(t *testing.T) {
	c := New[string, int](64, time.Hour)
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				key := fmt.Sprintf("k%d", (g*500+i)%100)
				c.Put(key, i)
				c.Get(key)
				if i%7 == 0 {
					c.Delete(key)
				}
			}
		}(g)
	}
	wg.Wait()
	if c.Len() > 64 {
		t.Fatalf("cache exceeded capacity: %d", c.Len())
	}
}
