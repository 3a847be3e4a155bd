package cache

import (
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestGetPut(t *testing.T) {
	c := New[string, int](2, 0)

	c.Put("a", 1)
	c.Put("b", 2)

	if v, ok := c.Get("a"); !ok || v != 1 {
		t.Fatalf("expected a=1, got %v %v", v, ok)
	}
	if _, ok := c.Get("missing"); ok {
		t.Fatal("expected miss")
	}
}

func TestEvictsLeastRecentlyUsed(t *testing.T) {
	c := New[string, int](2, 0)

	c.Put("a", 1)
	c.Put("b", 2)
	c.Get("a")

	if evicted := c.Put("c", 3); !evicted {
		t.Fatal("expected an eviction")
	}
	if _, ok := c.Get("b"); ok {
		t.Fatal("expected 'b' to be evicted")
	}
	if _, ok := c.Get("a"); !ok {
		t.Fatal("expected 'a' to survive")
	}
}

func TestUpdateDoesNotEvict(t *testing.T) {
	c := New[string, int](1, 0)
	c.Put("a", 1)
	if evicted := c.Put("a", 2); evicted {
		t.Fatal("update should not evict")
	}
	if v, _ := c.Get("a"); v != 2 {
		t.Fatalf("expected a=2, got %d", v)
	}
}

func TestExpiry(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c := New[string, int](4, time.Minute)
	c.SetClock(func() time.Time { return now })

	c.Put("a", 1)
	now = now.Add(30 * time.Second)
	c.Put("b", 2)

	if _, ok := c.Get("a"); !ok {
		t.Fatal("expected 'a' before expiry")
	}

	now = now.Add(30 * time.Second)
	if _, ok := c.Get("a"); ok {
		t.Fatal("expected 'a' to be expired")
	}
	if c.Len() != 1 {
		t.Fatalf("expired entry should be dropped on access, len=%d", c.Len())
	}

	now = now.Add(time.Minute)
	if n := c.PurgeExpired(); n != 1 {
		t.Fatalf("expected 1 purged, got %d", n)
	}
	if c.Len() != 0 {
		t.Fatalf("expected empty cache, len=%d", c.Len())
	}
}

func TestDelete(t *testing.T) {
	c := New[string, int](2, 0)
	c.Put("a", 1)
	if !c.Delete("a") {
		t.Fatal("expected delete to report existing key")
	}
	if c.Delete("a") {
		t.Fatal("second delete should report missing key")
	}
}

func TestNewPanicsOnZeroCapacity(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic")
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
				key := fmt.Sprintf("k%d", (g*i)%100)
				c.Put(key, i)
				c.Get(key)
			}
		}(g)
	}
	wg.Wait()

	if c.Len() > 64 {
		t.Fatalf("cache exceeded capacity: %d", c.Len())
	}
}
