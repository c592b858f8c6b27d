package cache

import (
	"context"
	"testing"
	"time"
)

type fakeClock struct{ t time.Time }

func (f *fakeClock) now() time.Time { return f.t }
func (f *fakeClock) advance(d time.Duration) { f.t = f.t.Add(d) }

func newTestCache(size int, ttl time.Duration) (*LRUCache[int], *fakeClock) {
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	c := NewLRUCache[int](size, ttl)
	c.now = clock.now
	return c, clock
}

func TestLRUEvictsLeastRecentlyUsed(t *testing.T) {
	c, _ := newTestCache(2, time.Minute)
	c.Set("a", 1)
	c.Set("b", 2)
	if _, ok := c.Get("a"); !ok {
		t.Fatalf("a should be present")
	}
	c.Set("c", 3)

	if _, ok := c.Get("b"); ok {
		t.Fatalf("b should have been evicted")
	}
	if v, ok := c.Get("a"); !ok || v != 1 {
		t.Fatalf("a = %d, %v", v, ok)
	}
	if c.Size() != 2 || c.Stats().Evictions != 1 {
		t.Fatalf("size=%d stats=%+v", c.Size(), c.Stats())
	}
}

func TestLRUExpiry(t *testing.T) {
	c, clock := newTestCache(10, 100*time.Millisecond)
	c.Set("row", 42)
	if v, ok := c.Get("row"); !ok || v != 42 {
		t.Fatalf("expected hit, got %d %v", v, ok)
	}
	clock.advance(100 * time.Millisecond)
	if _, ok := c.Get("row"); ok {
		t.Fatalf("entry should expire at its TTL")
	}

	c.Set("x", 1)
	c.Set("y", 2)
	clock.advance(time.Second)
	c.Set("z", 3)
	if n := c.CleanExpired(); n != 2 {
		t.Fatalf("CleanExpired = %d, want 2", n)
	}
	if c.Size() != 1 {
		t.Fatalf("size = %d, want 1", c.Size())
	}
	st := c.Stats()
	if st.Hits != 1 || st.Misses != 1 {
		t.Fatalf("unexpected stats: %+v", st)
	}
}

func TestLRUUpdateAndClear(t *testing.T) {
	c, _ := newTestCache(3, time.Minute)
	c.Set("a", 1)
	c.Set("a", 2)
	if v, _ := c.Get("a"); v != 2 || c.Size() != 1 {
		t.Fatalf("update failed: v=%d size=%d", v, c.Size())
	}
	c.Delete("a")
	c.Delete("missing")
	c.Set("b", 1)
	c.Clear()
	if c.Size() != 0 {
		t.Fatalf("clear left %d entries", c.Size())
	}
}

func TestManagerSweep(t *testing.T) {
	c, clock := newTestCache(10, time.Second)
	c.Set("a", 1)
	m := NewManager(nil)
	m.Register(c)

	if n := m.Sweep(); n != 0 {
		t.Fatalf("nothing should be expired yet, removed %d", n)
	}
	clock.advance(2 * time.Second)
	if n := m.Sweep(); n != 1 {
		t.Fatalf("Sweep = %d, want 1", n)
	}

	m.Start(context.Background(), 10*time.Millisecond)
	m.Start(context.Background(), 10*time.Millisecond)
	m.Stop()
	m.Stop()
}
