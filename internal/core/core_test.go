package core

import (
	"testing"
	"time"
)

func TestStatus_Terminal(t *testing.T) {
	cases := []struct {
		status   Status
		terminal bool
	}{
		{StatusPending, false},
		{StatusSent, false},
		{StatusSuccess, true},
		{StatusError, true},
		{StatusNoResponse, true},
	}

	for _, c := range cases {
		if got := c.status.Terminal(); got != c.terminal {
			t.Errorf("%s.Terminal() = %v, expected %v", c.status, got, c.terminal)
		}
	}
}

func TestFakeClock_Advance(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := NewFakeClock(start)

	if !clock.Now().Equal(start) {
		t.Errorf("Now() = %v, expected %v", clock.Now(), start)
	}

	clock.Advance(1 * time.Hour)
	expected := start.Add(1 * time.Hour)
	if !clock.Now().Equal(expected) {
		t.Errorf("after Advance(1h), Now() = %v, expected %v", clock.Now(), expected)
	}
}

func TestFakeClock_Since(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := NewFakeClock(start)

	if clock.Since(start) != 0 {
		t.Errorf("Since(start) = %v, expected 0", clock.Since(start))
	}

	clock.Advance(200 * time.Millisecond)
	if clock.Since(start) != 200*time.Millisecond {
		t.Errorf("after Advance(200ms), Since(start) = %v, expected 200ms", clock.Since(start))
	}
}

func TestRealClock_Since(t *testing.T) {
	clock := RealClock{}
	start := clock.Now()
	time.Sleep(10 * time.Millisecond)

	if elapsed := clock.Since(start); elapsed < 10*time.Millisecond {
		t.Errorf("Since() = %v, expected >= 10ms", elapsed)
	}
}
