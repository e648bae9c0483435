// ABOUTME: Tests for the sliding-window rate limiter.
// ABOUTME: Uses an injected clock to verify window expiry without sleeping.

package ratelimit

import (
	"testing"
	"time"
)

func TestAllowWithinLimit(t *testing.T) {
	w := New(time.Minute)
	for i := 0; i < 3; i++ {
		if !w.Allow("k", 3) {
			t.Fatalf("call %d should be allowed", i)
		}
	}
	if w.Allow("k", 3) {
		t.Error("fourth call should be rejected")
	}
	if w.Count("k") != 3 {
		t.Errorf("expected 3 recorded events, got %d", w.Count("k"))
	}
}

func TestAllowUnlimited(t *testing.T) {
	w := New(time.Minute)
	for i := 0; i < 100; i++ {
		if !w.Allow("k", 0) {
			t.Fatal("limit <= 0 should never reject")
		}
	}
}

func TestKeysAreIndependent(t *testing.T) {
	w := New(time.Minute)
	if !w.Allow("a", 1) {
		t.Fatal("first call for a should be allowed")
	}
	if w.Allow("a", 1) {
		t.Error("second call for a should be rejected")
	}
	if !w.Allow("b", 1) {
		t.Error("call for b should be unaffected by a")
	}
}

func TestWindowExpiry(t *testing.T) {
	w := New(time.Minute)
	current := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	w.now = func() time.Time { return current }

	if !w.Allow("k", 1) {
		t.Fatal("first call should be allowed")
	}
	if w.Allow("k", 1) {
		t.Error("second call inside the window should be rejected")
	}

	current = current.Add(61 * time.Second)
	if !w.Allow("k", 1) {
		t.Error("call after window expiry should be allowed")
	}
}

func TestReset(t *testing.T) {
	w := New(time.Minute)
	if !w.Allow("k", 1) {
		t.Fatal("first call should be allowed")
	}
	w.Reset("k")
	if !w.Allow("k", 1) {
		t.Error("call after reset should be allowed")
	}
}
