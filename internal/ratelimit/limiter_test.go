package ratelimit

import (
	"testing"
	"time"
)

// fakeClock returns a settable time source.
func fakeClock(start time.Time) (*time.Time, func() time.Time) {
	cur := start
	return &cur, func() time.Time { return cur }
}

func TestSlidingWindow(t *testing.T) {
	l := New(true, 3)
	cur, clock := fakeClock(time.Unix(1_700_000_000, 0))
	l.SetClock(clock)

	for i := 0; i < 3; i++ {
		if !l.Allow("c1") {
			t.Fatalf("request %d rejected inside limit", i)
		}
		*cur = cur.Add(time.Second)
	}
	if l.Allow("c1") {
		t.Fatalf("fourth request admitted inside window")
	}

	// Past the window from the first request, one slot frees up.
	*cur = cur.Add(61 * time.Second)
	if !l.Allow("c1") {
		t.Fatalf("request rejected after window expired")
	}
}

func TestRejectionIsNotRecorded(t *testing.T) {
	l := New(true, 1)
	cur, clock := fakeClock(time.Unix(1_700_000_000, 0))
	l.SetClock(clock)

	if !l.Allow("c1") {
		t.Fatalf("first request rejected")
	}
	for i := 0; i < 10; i++ {
		if l.Allow("c1") {
			t.Fatalf("over-limit request admitted")
		}
	}
	// Only the single admitted timestamp should age out.
	*cur = cur.Add(window + time.Second)
	if !l.Allow("c1") {
		t.Fatalf("rejections were recorded against the window")
	}
}

func TestClientsAreIndependent(t *testing.T) {
	l := New(true, 1)
	if !l.Allow("a") {
		t.Fatalf("client a rejected")
	}
	if !l.Allow("b") {
		t.Fatalf("client b rejected after a used its slot")
	}
	if l.Allow("a") {
		t.Fatalf("client a admitted over limit")
	}
}

func TestDisabledLimiter(t *testing.T) {
	l := New(false, 1)
	for i := 0; i < 100; i++ {
		if !l.Allow("c1") {
			t.Fatalf("disabled limiter rejected request %d", i)
		}
	}
	if l.Tracked() != 0 {
		t.Fatalf("disabled limiter kept state: %d clients", l.Tracked())
	}
}

func TestEvictIdle(t *testing.T) {
	l := New(true, 5)
	cur, clock := fakeClock(time.Unix(1_700_000_000, 0))
	l.SetClock(clock)

	l.Allow("old")
	*cur = cur.Add(2 * window)
	l.Allow("fresh")
	l.EvictIdle()
	if got := l.Tracked(); got != 1 {
		t.Fatalf("expected 1 tracked client after eviction, got %d", got)
	}
}
