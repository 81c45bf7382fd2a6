package cache

import (
	"testing"
	"time"
)

func TestGetSetRoundTrip(t *testing.T) {
	c := New(time.Minute)

	if _, ok := c.Get("missing"); ok {
		t.Fatal("expected a miss on an empty cache")
	}

	c.Set("gotsport-sample:Thunder 2012B", 42)
	id, ok := c.Get("gotsport-sample:Thunder 2012B")
	if !ok || id != 42 {
		t.Fatalf("Get = (%d, %v), want (42, true)", id, ok)
	}
}

func TestEntryExpires(t *testing.T) {
	c := New(time.Millisecond)
	c.Set("key", 1)
	time.Sleep(5 * time.Millisecond)

	if _, ok := c.Get("key"); ok {
		t.Fatal("expected the entry to have expired")
	}
}

func TestInvalidate(t *testing.T) {
	c := New(time.Minute)
	c.Set("key", 1)
	c.Invalidate("key")

	if _, ok := c.Get("key"); ok {
		t.Fatal("expected Invalidate to remove the entry")
	}
}

func TestStats(t *testing.T) {
	c := New(time.Minute)
	c.Set("a", 1)
	c.Set("b", 2)

	total, active := c.Stats()
	if total != 2 || active != 2 {
		t.Fatalf("Stats = (%d, %d), want (2, 2)", total, active)
	}
}
