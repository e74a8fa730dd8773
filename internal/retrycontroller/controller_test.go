package retrycontroller

import (
	"testing"
	"time"
)

func newTestController(t *testing.T, fixedNow time.Time) *Controller {
	t.Helper()
	c := New(Config{})
	c.now = func() time.Time { return fixedNow }
	return c
}

// TestS4RetryControllerWalk walks spec.md's S4 scenario with the default
// config: five consecutive recordFailure calls on the same server leave it
// in BACKING_OFF (below the default maxConsecutiveFailures of 10) with
// nextRetryAt = now + 480s, and resetFailureState restores HEALTHY.
func TestS4RetryControllerWalk(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c := newTestController(t, now)

	var st State
	for i := 0; i < 5; i++ {
		st = c.RecordFailure(1)
	}

	if st.ConsecutiveFailures != 5 {
		t.Fatalf("consecutiveFailures = %d, want 5", st.ConsecutiveFailures)
	}
	if st.Status != StatusBackingOff {
		t.Fatalf("status = %s, want BACKING_OFF (maxConsecutiveFailures defaults to 10)", st.Status)
	}

	// five failures is still below the default maxConsecutiveFailures=10,
	// so nextRetryAt follows the backoff branch: 30 * 2^(5-1) = 480s,
	// clamped to maxBackoffMinutes*60 = 1800s -> 480s.
	wantDelay := 30 * 16 * time.Second
	gotDelay := st.NextRetryAt.Sub(now)
	if gotDelay != wantDelay {
		t.Fatalf("nextRetryAt delay = %s, want %s", gotDelay, wantDelay)
	}

	c.ResetFailureState(1)
	got, tracked := c.GetFailureState(1)
	if tracked {
		t.Fatal("expected server to be untracked after reset")
	}
	if got.Status != StatusHealthy {
		t.Fatalf("status after reset = %s, want HEALTHY", got.Status)
	}
}

// TestDormantAtMaxConsecutiveFailures exercises the literal S4 wording
// ("5 consecutive... DORMANT") against a controller configured with
// maxConsecutiveFailures=5 so the dormant branch is actually reached,
// covering testable property 3's n >= maxConsecutiveFailures case.
func TestDormantAtMaxConsecutiveFailures(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c := New(Config{MaxConsecutiveFailures: 5})
	c.now = func() time.Time { return now }

	var st State
	for i := 0; i < 5; i++ {
		st = c.RecordFailure(7)
	}

	if st.Status != StatusDormant {
		t.Fatalf("status = %s, want DORMANT", st.Status)
	}
	wantRetry := now.Add(60 * time.Minute)
	if !st.NextRetryAt.Equal(wantRetry) {
		t.Fatalf("nextRetryAt = %s, want %s", st.NextRetryAt, wantRetry)
	}
}

// TestCalculateNextRetryBounds covers testable property 3 across the full
// backoff range.
func TestCalculateNextRetryBounds(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c := New(Config{MaxConsecutiveFailures: 10, BackoffMultiplier: 2, MaxBackoffMinutes: 30, DormantRetryMinutes: 60})
	c.now = func() time.Time { return now }

	for n := 1; n < 10; n++ {
		next := c.calculateNextRetry(n, now)
		if !next.After(now) {
			t.Fatalf("n=%d: nextRetry %s is not after now", n, next)
		}
		if next.After(now.Add(30 * time.Minute)) {
			t.Fatalf("n=%d: nextRetry %s exceeds maxBackoffMinutes bound", n, next)
		}
	}

	atMax := c.calculateNextRetry(10, now)
	want := now.Add(60 * time.Minute)
	if !atMax.Equal(want) {
		t.Fatalf("n=10: nextRetry = %s, want %s", atMax, want)
	}
}

// TestShouldRetryTransitions covers testable property 4: shouldRetry is
// false immediately after a failure and true once nextRetryAt has passed.
func TestShouldRetryTransitions(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c := New(Config{})
	c.now = func() time.Time { return now }

	c.RecordFailure(3)
	if c.ShouldRetry(3) {
		t.Fatal("expected shouldRetry == false immediately after recordFailure")
	}

	st, _ := c.GetFailureState(3)
	c.now = func() time.Time { return st.NextRetryAt.Add(time.Second) }
	if !c.ShouldRetry(3) {
		t.Fatal("expected shouldRetry == true once nextRetryAt has passed")
	}
}

func TestShouldRetryUntrackedServerIsHealthy(t *testing.T) {
	c := New(Config{})
	if !c.ShouldRetry(999) {
		t.Fatal("expected an untracked server to be retry-eligible")
	}
}

func TestGetStatsBackoffPlusDormantEqualsTotal(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c := New(Config{MaxConsecutiveFailures: 3})
	c.now = func() time.Time { return now }

	for i := 0; i < 1; i++ {
		c.RecordFailure(1) // BACKING_OFF
	}
	for i := 0; i < 3; i++ {
		c.RecordFailure(2) // DORMANT
	}

	stats := c.GetStats()
	if stats.BackingOffServers+stats.DormantServers != stats.TotalServersInFailureState {
		t.Fatalf("backingOff(%d) + dormant(%d) != total(%d)", stats.BackingOffServers, stats.DormantServers, stats.TotalServersInFailureState)
	}
	if stats.BackingOffServers != 1 || stats.DormantServers != 1 {
		t.Fatalf("unexpected split: %+v", stats)
	}
}
