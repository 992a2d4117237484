package prefetch

import (
	"testing"
	"time"
)

func TestMarkStartedSuppressesDuplicates(t *testing.T) {
	c := NewCache(time.Minute, nil)
	if !c.MarkStarted("user-1") {
		t.Fatalf("first kickoff should proceed")
	}
	if c.MarkStarted("user-1") {
		t.Fatalf("duplicate kickoff should be suppressed")
	}
	if !c.MarkStarted("user-2") {
		t.Fatalf("other users are independent")
	}
}

func TestExpiredEntryCountsAsMiss(t *testing.T) {
	now := time.Now()
	clock := func() time.Time { return now }
	c := NewCache(time.Minute, func() time.Time { return clock() })

	if !c.MarkStarted("user-1") {
		t.Fatalf("first kickoff should proceed")
	}
	if !c.Started("user-1") {
		t.Fatalf("fresh entry should be a hit")
	}

	now = now.Add(2 * time.Minute)
	if c.Started("user-1") {
		t.Fatalf("expired entry should be a miss")
	}
	if !c.MarkStarted("user-1") {
		t.Fatalf("expired entry should allow a new kickoff")
	}
}

func TestForgetDropsEntry(t *testing.T) {
	c := NewCache(time.Minute, nil)
	c.MarkStarted("user-1")
	c.Forget("user-1")
	if c.Started("user-1") {
		t.Fatalf("forgotten entry should be a miss")
	}
}

func TestNilCacheIsSafe(t *testing.T) {
	var c *Cache
	if !c.MarkStarted("user-1") {
		t.Fatalf("nil cache should never suppress")
	}
	if c.Started("user-1") {
		t.Fatalf("nil cache should always miss")
	}
	c.Forget("user-1")
}

func TestEmptyUserNeverCached(t *testing.T) {
	c := NewCache(time.Minute, nil)
	if !c.MarkStarted("") {
		t.Fatalf("empty user should not be suppressed")
	}
	if c.Started("") {
		t.Fatalf("empty user should always miss")
	}
}
