// Package correlate matches asynchronous inbound replies back to the
// dispatch units that caused them, keyed by synthetic phone number, and
// drives the bounded wait for run completion.
package correlate

import (
	"strings"
	"sync"

	"wasim/internal/core"
)

// Tracker holds the per-run correlation state. It is the single writer of
// RunResult fields once units exist: the dispatcher reports send outcomes
// through it and the store subscription feeds inbound records into it, so
// the two phases can safely overlap.
type Tracker struct {
	clock core.Clock

	mu       sync.Mutex
	byPhone  map[string]*core.RunResult
	ordered  []*core.RunResult
	resolved int
	skew     int

	// notify is pulsed on every transition into a terminal state.
	notify chan struct{}

	// OnChange, when set, is called with (resolved, total) after every
	// state change. Used to stream progress to a display layer. Set it
	// before dispatch starts; it runs outside the tracker lock.
	OnChange func(resolved, total int)
}

// NewTracker creates an empty tracker for one run.
func NewTracker(clock core.Clock) *Tracker {
	return &Tracker{
		clock:   clock,
		byPhone: make(map[string]*core.RunResult),
		notify:  make(chan struct{}, 1),
	}
}

// Track registers a unit. Phone numbers are unique within a run; a
// duplicate registration is a generator defect and panics loudly rather
// than silently corrupting correlation.
func (t *Tracker) Track(res *core.RunResult) {
	t.mu.Lock()
	if _, dup := t.byPhone[res.Phone]; dup {
		t.mu.Unlock()
		panic("correlate: duplicate phone in run: " + res.Phone)
	}
	t.byPhone[res.Phone] = res
	t.ordered = append(t.ordered, res)
	resolved, total := t.resolved, len(t.ordered)
	t.mu.Unlock()

	t.changed(resolved, total)
}

// MarkSent transitions a unit from pending to sent. If a reply already
// bound the unit (the flow answered before our HTTP call returned), the
// terminal state wins and only the HTTP outcome text is recorded.
func (t *Tracker) MarkSent(phone, outcome string) {
	t.transition(phone, outcome, core.StatusSent)
}

// MarkSendError records a failed send. The unit becomes terminal and never
// transitions again, even if a reply later arrives for its phone.
func (t *Tracker) MarkSendError(phone, outcome string) {
	t.transition(phone, outcome, core.StatusError)
}

func (t *Tracker) transition(phone, outcome string, to core.Status) {
	t.mu.Lock()
	res, ok := t.byPhone[phone]
	if !ok {
		t.mu.Unlock()
		return
	}
	res.HTTPOutcome = outcome
	if !res.Status.Terminal() {
		res.Status = to
		if to.Terminal() {
			res.ResolvedAt = t.clock.Now()
			t.resolved++
		}
	}
	resolved, total := t.resolved, len(t.ordered)
	t.mu.Unlock()

	if to.Terminal() {
		t.pulse()
	}
	t.changed(resolved, total)
}

// Observe consumes one store record. Inbound records for a tracked,
// not-yet-matched phone bind to that unit: first match wins, later replies
// for the same phone are ignored for this run. Records for unknown phones
// (previous runs, real traffic) are ignored.
func (t *Tracker) Observe(rec core.Record) {
	if rec.Direction != core.DirectionInbound {
		return
	}

	t.mu.Lock()
	res, ok := t.byPhone[rec.Phone]
	if !ok || res.Status.Terminal() || res.MatchedReply != "" {
		t.mu.Unlock()
		return
	}

	latency := t.clock.Since(res.SentAt)
	if latency < 0 {
		// Only possible with a skewed external clock; flag it instead of
		// reporting a nonsense band.
		t.skew++
	}

	res.MatchedReply = rec.Body
	res.LatencyMs = latency.Milliseconds()
	res.ResolvedAt = t.clock.Now()
	if isErrorReply(rec.Body) {
		res.Status = core.StatusError
	} else {
		res.Status = core.StatusSuccess
	}
	t.resolved++
	resolved, total := t.resolved, len(t.ordered)
	t.mu.Unlock()

	t.pulse()
	t.changed(resolved, total)
}

// isErrorReply classifies a reply body by substring, the convention the
// automation flows under test follow for failure messages.
func isErrorReply(body string) bool {
	lower := strings.ToLower(body)
	return strings.Contains(lower, "error") || strings.Contains(lower, "fail")
}

// Complete reports whether every tracked unit is terminal.
func (t *Tracker) Complete() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.resolved == len(t.ordered)
}

// Progress returns the resolved and total unit counts.
func (t *Tracker) Progress() (resolved, total int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.resolved, len(t.ordered)
}

// SkewCount returns how many replies arrived with negative latency.
func (t *Tracker) SkewCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.skew
}

// Changed returns the channel pulsed on every terminal transition.
func (t *Tracker) Changed() <-chan struct{} {
	return t.notify
}

// FinalizeTimeout moves every still-unresolved unit to no_response. Called
// by the waiter when the deadline elapses; terminal units are untouched.
func (t *Tracker) FinalizeTimeout() {
	t.mu.Lock()
	for _, res := range t.ordered {
		if !res.Status.Terminal() {
			res.Status = core.StatusNoResponse
			res.ResolvedAt = t.clock.Now()
			t.resolved++
		}
	}
	resolved, total := t.resolved, len(t.ordered)
	t.mu.Unlock()

	t.changed(resolved, total)
}

// Snapshot copies the current results in enumeration order.
func (t *Tracker) Snapshot() []core.RunResult {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]core.RunResult, len(t.ordered))
	for i, res := range t.ordered {
		out[i] = *res
	}
	return out
}

func (t *Tracker) pulse() {
	select {
	case t.notify <- struct{}{}:
	default:
	}
}

func (t *Tracker) changed(resolved, total int) {
	if t.OnChange != nil {
		t.OnChange(resolved, total)
	}
}
