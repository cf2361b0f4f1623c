package dispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"wasim/internal/core"
	"wasim/internal/correlate"
	"wasim/internal/metrics"
)

// Session runs a full stress test: dispatch, correlation, bounded wait,
// aggregation. One Session can execute many runs sequentially; each run
// gets a fresh tracker and store subscription.
type Session struct {
	Dispatcher *Dispatcher
	Store      core.Store
	Clock      core.Clock
	// OnProgress, when set, receives (resolved, total) after every unit
	// state change, for incremental display.
	OnProgress func(resolved, total int)
	// OnDispatchDone, when set, is called once the send phase finishes and
	// only the wait for replies remains.
	OnDispatchDone func()
	// PollInterval overrides the waiter's fallback tick in tests.
	PollInterval time.Duration
}

// Report is the complete outcome of one run.
type Report struct {
	RunID   string           `json:"runId"`
	Reason  correlate.Reason `json:"reason"`
	Summary metrics.Summary  `json:"summary"`
	Results []core.RunResult `json:"results"`
}

// Execute performs one stress run. It returns an error only for invalid
// configuration or a store that cannot support correlation; everything
// else lands in the report.
func (s *Session) Execute(ctx context.Context, cfg RunConfig) (*Report, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.normalize()

	clock := s.Clock
	if clock == nil {
		clock = core.RealClock{}
	}

	tracker := correlate.NewTracker(clock)
	tracker.OnChange = s.OnProgress

	// Subscribe before dispatching: replies can start arriving while later
	// waves are still being sent, and the feed has no replay.
	cancelSub, err := s.Store.Subscribe(ctx, tracker.Observe)
	if err != nil {
		return nil, fmt.Errorf("run aborted, correlation unavailable: %w", err)
	}
	defer cancelSub()

	started := clock.Now()

	if _, err := s.Dispatcher.Run(ctx, cfg, tracker); err != nil {
		return nil, err
	}
	if s.OnDispatchDone != nil {
		s.OnDispatchDone()
	}

	waiter := &correlate.Waiter{Tracker: tracker, PollInterval: s.PollInterval}
	results, reason := waiter.Await(ctx, cfg.Deadline)

	summary := metrics.Summarize(results, clock.Since(started))
	summary.ClockSkewCount = tracker.SkewCount()

	return &Report{
		RunID:   uuid.NewString(),
		Reason:  reason,
		Summary: summary,
		Results: results,
	}, nil
}
