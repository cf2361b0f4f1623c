package correlate

import (
	"context"
	"time"

	"wasim/internal/core"
)

// defaultPollInterval is the fallback re-check cadence. Completion is
// normally signalled by the tracker's notify channel; the tick only guards
// against a missed pulse.
const defaultPollInterval = 100 * time.Millisecond

// Reason tells how a wait ended.
type Reason string

const (
	// ReasonCompleted means every tracked unit reached a terminal state
	// before the deadline.
	ReasonCompleted Reason = "completed"
	// ReasonTimeout means the deadline elapsed; unresolved units were
	// finalized as no_response.
	ReasonTimeout Reason = "timeout"
	// ReasonCancelled means the caller aborted the run; unresolved units
	// are returned in their last observed state, not forced to no_response.
	ReasonCancelled Reason = "cancelled"
)

// Waiter blocks a run until completion, deadline, or cancellation.
type Waiter struct {
	Tracker *Tracker
	// PollInterval overrides the fallback tick. Zero means the default.
	PollInterval time.Duration
}

// Await returns the finalized results the moment every tracked unit is
// terminal, when the deadline elapses (unresolved units become
// no_response), or when ctx is cancelled (partial results, unresolved
// units untouched — an aborted run is not a timed-out run).
func (w *Waiter) Await(ctx context.Context, deadline time.Duration) ([]core.RunResult, Reason) {
	if w.Tracker.Complete() {
		return w.Tracker.Snapshot(), ReasonCompleted
	}

	poll := w.PollInterval
	if poll <= 0 {
		poll = defaultPollInterval
	}

	timer := time.NewTimer(deadline)
	defer timer.Stop()
	tick := time.NewTicker(poll)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			return w.Tracker.Snapshot(), ReasonCancelled
		case <-timer.C:
			w.Tracker.FinalizeTimeout()
			return w.Tracker.Snapshot(), ReasonTimeout
		case <-w.Tracker.Changed():
			if w.Tracker.Complete() {
				return w.Tracker.Snapshot(), ReasonCompleted
			}
		case <-tick.C:
			if w.Tracker.Complete() {
				return w.Tracker.Snapshot(), ReasonCompleted
			}
		}
	}
}
