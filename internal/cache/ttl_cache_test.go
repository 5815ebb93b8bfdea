package cache

import (
	"testing"
	"time"
)

func TestTTLCacheGetSet(t *testing.T) {
	c := NewTTL[string, string](time.Minute)

	if _, ok := c.Get("siglum"); ok {
		t.Error("Get on empty cache should miss")
	}

	c.Set("siglum", "payload")
	v, ok := c.Get("siglum")
	if !ok {
		t.Fatal("Get after Set should hit")
	}
	if v != "payload" {
		t.Errorf("Get = %q, want %q", v, "payload")
	}
}

func TestTTLCacheExpiry(t *testing.T) {
	c := NewTTL[string, int](10 * time.Millisecond)
	c.Set("a", 1)

	if _, ok := c.Get("a"); !ok {
		t.Fatal("entry should be live immediately after Set")
	}

	time.Sleep(20 * time.Millisecond)
	if _, ok := c.Get("a"); ok {
		t.Error("entry should expire after TTL")
	}

	// A fresh Set revives the key.
	c.Set("a", 2)
	if v, ok := c.Get("a"); !ok || v != 2 {
		t.Errorf("Get after re-Set = %d, %v; want 2, true", v, ok)
	}
}

func TestTTLCachePerEntryExpiry(t *testing.T) {
	c := NewTTL[string, int](30 * time.Millisecond)
	c.Set("old", 1)
	time.Sleep(20 * time.Millisecond)
	c.Set("new", 2)
	time.Sleep(15 * time.Millisecond)

	// "old" has outlived its TTL; "new" has not.
	if _, ok := c.Get("old"); ok {
		t.Error("old entry should have expired")
	}
	if _, ok := c.Get("new"); !ok {
		t.Error("new entry should still be live")
	}
}

func TestTTLCacheDeleteAndInvalidate(t *testing.T) {
	c := NewTTL[string, int](time.Minute)
	c.Set("a", 1)
	c.Set("b", 2)

	c.Delete("a")
	if _, ok := c.Get("a"); ok {
		t.Error("deleted entry should miss")
	}
	if c.Len() != 1 {
		t.Errorf("Len = %d, want 1", c.Len())
	}

	c.Invalidate()
	if c.Len() != 0 {
		t.Errorf("Len after Invalidate = %d, want 0", c.Len())
	}
}
