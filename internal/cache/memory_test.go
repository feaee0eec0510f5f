package cache

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestMemoryTier_BasicOperations(t *testing.T) {
	m := newMemoryTier(1024)
	now := time.Now()

	if err := m.put("a", []byte("alpha"), now); err != nil {
		t.Fatalf("put failed: %v", err)
	}
	got, ok := m.get("a")
	if !ok || string(got) != "alpha" {
		t.Fatalf("get = %q, %v", got, ok)
	}

	m.remove("a")
	if _, ok := m.get("a"); ok {
		t.Error("key still present after remove")
	}

	s := m.snapshot()
	if s.Hits != 1 || s.Misses != 1 || s.Size != 0 || s.Items != 0 {
		t.Errorf("unexpected stats %+v", s)
	}
}

func TestMemoryTier_LRUEviction(t *testing.T) {
	m := newMemoryTier(30)
	now := time.Now()

	for _, k := range []string{"a", "b", "c"} {
		if err := m.put(k, make([]byte, 10), now); err != nil {
			t.Fatal(err)
		}
	}
	// touch a so b is the oldest
	m.get("a")
	if err := m.put("d", make([]byte, 10), now); err != nil {
		t.Fatal(err)
	}

	if _, ok := m.get("b"); ok {
		t.Error("least recently used entry not evicted")
	}
	for _, k := range []string{"a", "c", "d"} {
		if _, ok := m.get(k); !ok {
			t.Errorf("entry %s evicted", k)
		}
	}
	if s := m.snapshot(); s.Evictions != 1 || s.Size != 30 {
		t.Errorf("unexpected stats %+v", s)
	}
}

func TestMemoryTier_ItemTooLarge(t *testing.T) {
	m := newMemoryTier(10)
	now := time.Now()

	if err := m.put("k", []byte("old"), now); err != nil {
		t.Fatal(err)
	}
	if err := m.put("k", make([]byte, 11), now); !errors.Is(err, ErrItemTooLarge) {
		t.Fatalf("expected ErrItemTooLarge, got %v", err)
	}
	if _, ok := m.get("k"); ok {
		t.Error("stale value kept after a rejected overwrite")
	}
}

func TestMemoryTier_Overwrite(t *testing.T) {
	m := newMemoryTier(100)
	now := time.Now()

	_ = m.put("k", make([]byte, 40), now)
	_ = m.put("k", make([]byte, 10), now)

	if s := m.snapshot(); s.Size != 10 || s.Items != 1 {
		t.Errorf("size accounting wrong after overwrite: %+v", s)
	}
}

func TestMemoryTier_Prune(t *testing.T) {
	m := newMemoryTier(100)
	base := time.Now()

	_ = m.put("old", []byte("x"), base.Add(-2*time.Hour))
	_ = m.put("new", []byte("y"), base)

	if n := m.prune(base.Add(-time.Hour)); n != 1 {
		t.Fatalf("pruned %d entries, want 1", n)
	}
	if _, ok := m.get("old"); ok {
		t.Error("expired entry survived prune")
	}
	if _, ok := m.get("new"); !ok {
		t.Error("fresh entry pruned")
	}
}

func TestMemoryTier_ConcurrentAccess(t *testing.T) {
	m := newMemoryTier(1 << 20)
	var wg sync.WaitGroup

	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				key := fmt.Sprintf("k-%d-%d", id, j%10)
				_ = m.put(key, []byte(key), time.Now())
				m.get(key)
			}
		}(i)
	}
	wg.Wait()

	if s := m.snapshot(); s.Items != 80 {
		t.Errorf("items = %d, want 80", s.Items)
	}
}
