package dedup

import (
	"testing"
	"time"
)

func TestSeenOrMarkFirstSeenReturnsFalse(t *testing.T) {
	idx := New(time.Hour, 10)
	now := time.Now()
	if idx.SeenOrMark("a", now) {
		t.Fatal("first sighting of id should return false")
	}
	if !idx.SeenOrMark("a", now) {
		t.Fatal("second sighting within horizon should return true")
	}
}

func TestSeenOrMarkExpiresPastHorizon(t *testing.T) {
	idx := New(time.Minute, 10)
	start := time.Now()
	idx.SeenOrMark("a", start)

	past := start.Add(2 * time.Minute)
	if idx.SeenOrMark("a", past) {
		t.Fatal("id past horizon should be treated as unseen")
	}
	if !idx.SeenOrMark("a", past) {
		t.Fatal("id just re-marked should now be seen")
	}
}

func TestIndexEvictsAtCapacity(t *testing.T) {
	idx := New(time.Hour, 2)
	now := time.Now()
	idx.SeenOrMark("a", now)
	idx.SeenOrMark("b", now.Add(time.Second))
	idx.SeenOrMark("c", now.Add(2*time.Second))

	if idx.Len() > 2 {
		t.Errorf("expected capacity to cap Len() at 2, got %d", idx.Len())
	}
	if idx.SeenOrMark("a", now.Add(3*time.Second)) {
		t.Fatal("expected 'a' to have been evicted to make room for 'c'")
	}
}

func TestFilterPreservesOrderAndMarksAll(t *testing.T) {
	idx := New(time.Hour, 10)
	now := time.Now()
	kept := idx.Filter([]string{"a", "b", "a"}, now)
	if !kept[0] || !kept[1] {
		t.Fatal("expected first sightings of a and b to be kept")
	}
	if kept[2] {
		t.Fatal("expected the repeated 'a' within the same batch to be dropped")
	}
}

func TestGCRemovesExpiredEntries(t *testing.T) {
	idx := New(time.Minute, 10)
	start := time.Now()
	idx.SeenOrMark("a", start)
	idx.SeenOrMark("b", start)

	removed := idx.GC(start.Add(2 * time.Minute))
	if removed != 2 {
		t.Errorf("expected GC to remove 2 expired entries, got %d", removed)
	}
	if idx.Len() != 0 {
		t.Errorf("expected empty index after GC, got len %d", idx.Len())
	}
}
