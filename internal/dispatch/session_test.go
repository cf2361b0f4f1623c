package dispatch

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"wasim/internal/core"
	"wasim/internal/correlate"
	"wasim/internal/payload"
	"wasim/internal/store"
)

// replyingFlow simulates the downstream automation: it extracts the sender
// from each webhook payload and posts a reply into the store after delay.
type replyingFlow struct {
	store   core.Store
	delay   time.Duration
	reply   string
	silence bool
}

func (f *replyingFlow) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		in, ok := payload.ExtractInbound(body)
		w.WriteHeader(http.StatusOK)
		if !ok || f.silence {
			return
		}
		go func() {
			time.Sleep(f.delay)
			_ = f.store.Append(context.Background(), core.Record{
				Phone:     in.Phone,
				Body:      f.reply,
				Timestamp: time.Now(),
				Direction: core.DirectionInbound,
			})
		}()
	}
}

func testSession(st core.Store) *Session {
	return &Session{
		Dispatcher:   testDispatcher(st),
		Store:        st,
		PollInterval: 10 * time.Millisecond,
	}
}

func TestSession_AllRepliesArrive(t *testing.T) {
	st := store.NewMemory()
	flow := &replyingFlow{store: st, delay: 20 * time.Millisecond, reply: "done"}
	srv := httptest.NewServer(flow.handler())
	defer srv.Close()

	cfg := RunConfig{
		WebhookURL:      srv.URL,
		Users:           3,
		MessagesPerUser: 1,
		Deadline:        5 * time.Second,
	}

	start := time.Now()
	report, err := testSession(st).Execute(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	if report.Reason != correlate.ReasonCompleted {
		t.Errorf("reason = %s, expected completed", report.Reason)
	}
	if report.Summary.SuccessCount != 3 {
		t.Errorf("SuccessCount = %d, expected 3", report.Summary.SuccessCount)
	}
	if report.Summary.TotalDispatched != 3 {
		t.Errorf("TotalDispatched = %d, expected 3", report.Summary.TotalDispatched)
	}
	// Completion notification, not deadline expiry, must end the wait.
	if elapsed := time.Since(start); elapsed > 3*time.Second {
		t.Errorf("run took %v, expected early completion well before the deadline", elapsed)
	}
	for _, res := range report.Results {
		if res.MatchedReply != "done" {
			t.Errorf("unit %s MatchedReply = %q", res.Phone, res.MatchedReply)
		}
		if res.LatencyMs < 0 {
			t.Errorf("unit %s has no latency", res.Phone)
		}
	}
	if report.RunID == "" {
		t.Error("report has no run id")
	}
}

func TestSession_DeadlineExpiryMarksNoResponse(t *testing.T) {
	st := store.NewMemory()
	flow := &replyingFlow{store: st, silence: true}
	srv := httptest.NewServer(flow.handler())
	defer srv.Close()

	cfg := RunConfig{
		WebhookURL:      srv.URL,
		Users:           3,
		MessagesPerUser: 1,
		Deadline:        200 * time.Millisecond,
	}

	report, err := testSession(st).Execute(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	if report.Reason != correlate.ReasonTimeout {
		t.Errorf("reason = %s, expected timeout", report.Reason)
	}
	if report.Summary.NoResponseCount != 3 {
		t.Errorf("NoResponseCount = %d, expected 3", report.Summary.NoResponseCount)
	}
	sum := report.Summary.SuccessCount + report.Summary.ErrorCount + report.Summary.NoResponseCount
	if sum != report.Summary.TotalDispatched {
		t.Errorf("success+error+noResponse = %d, total = %d", sum, report.Summary.TotalDispatched)
	}
}

func TestSession_ErrorReplyClassified(t *testing.T) {
	st := store.NewMemory()
	flow := &replyingFlow{store: st, delay: 10 * time.Millisecond, reply: "Error: downstream flow failed"}
	srv := httptest.NewServer(flow.handler())
	defer srv.Close()

	cfg := RunConfig{
		WebhookURL:      srv.URL,
		Users:           2,
		MessagesPerUser: 1,
		Deadline:        5 * time.Second,
	}

	report, err := testSession(st).Execute(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	if report.Summary.ErrorCount != 2 {
		t.Errorf("ErrorCount = %d, expected 2", report.Summary.ErrorCount)
	}
	for _, res := range report.Results {
		if res.Status != core.StatusError {
			t.Errorf("status = %s, expected error", res.Status)
		}
		if res.MatchedReply == "" {
			t.Error("error reply body not bound to the unit")
		}
	}
}

func TestSession_UnreachableTargetCompletesImmediately(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	st := store.NewMemory()
	cfg := RunConfig{
		WebhookURL:      url,
		Users:           2,
		MessagesPerUser: 1,
		Deadline:        30 * time.Second,
	}

	start := time.Now()
	report, err := testSession(st).Execute(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	// Every unit fails at send, so the run is complete without waiting
	// anywhere near the deadline.
	if report.Reason != correlate.ReasonCompleted {
		t.Errorf("reason = %s, expected completed", report.Reason)
	}
	if report.Summary.ErrorCount != 2 {
		t.Errorf("ErrorCount = %d, expected 2", report.Summary.ErrorCount)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("run took %v, expected immediate completion", elapsed)
	}
}

func TestSession_CancellationReturnsPartialState(t *testing.T) {
	st := store.NewMemory()
	flow := &replyingFlow{store: st, silence: true}
	srv := httptest.NewServer(flow.handler())
	defer srv.Close()

	cfg := RunConfig{
		WebhookURL:      srv.URL,
		Users:           2,
		MessagesPerUser: 1,
		Deadline:        30 * time.Second,
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(150 * time.Millisecond)
		cancel()
	}()

	report, err := testSession(st).Execute(ctx, cfg)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	if report.Reason != correlate.ReasonCancelled {
		t.Errorf("reason = %s, expected cancelled", report.Reason)
	}
	// Cancellation is not a timeout: units keep their sent status instead of
	// being forced to no_response.
	for _, res := range report.Results {
		if res.Status != core.StatusSent {
			t.Errorf("status = %s, expected sent after cancellation", res.Status)
		}
	}
	if report.Summary.UnresolvedCount != len(report.Results) {
		t.Errorf("UnresolvedCount = %d, results = %d", report.Summary.UnresolvedCount, len(report.Results))
	}
}

func TestSession_DispatchDoneFiresBeforeWait(t *testing.T) {
	st := store.NewMemory()
	flow := &replyingFlow{store: st, silence: true}
	srv := httptest.NewServer(flow.handler())
	defer srv.Close()

	sess := testSession(st)
	var dispatchDone bool
	var doneAt time.Time
	sess.OnDispatchDone = func() {
		dispatchDone = true
		doneAt = time.Now()
	}

	cfg := RunConfig{
		WebhookURL:      srv.URL,
		Users:           2,
		MessagesPerUser: 1,
		Deadline:        200 * time.Millisecond,
	}

	start := time.Now()
	if _, err := sess.Execute(context.Background(), cfg); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	if !dispatchDone {
		t.Fatal("OnDispatchDone never called")
	}
	// The callback marks the start of the wait phase, so it must fire well
	// before the deadline elapses.
	if doneAt.Sub(start) > 150*time.Millisecond {
		t.Errorf("OnDispatchDone fired %v after start, expected before the wait phase", doneAt.Sub(start))
	}
}

// rewindClock runs backwards, standing in for a skewed external clock:
// every reading lands before the send timestamps already handed out.
type rewindClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *rewindClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(-time.Second)
	return c.now
}

func (c *rewindClock) Since(t time.Time) time.Duration {
	return c.Now().Sub(t)
}

func TestSession_ClockSkewSurfacesInSummary(t *testing.T) {
	st := store.NewMemory()
	flow := &replyingFlow{store: st, delay: 5 * time.Millisecond, reply: "ok"}
	srv := httptest.NewServer(flow.handler())
	defer srv.Close()

	clock := &rewindClock{now: time.Now()}
	sess := testSession(st)
	sess.Clock = clock
	sess.Dispatcher.Clock = clock

	cfg := RunConfig{
		WebhookURL:      srv.URL,
		Users:           2,
		MessagesPerUser: 1,
		Deadline:        5 * time.Second,
	}

	report, err := sess.Execute(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	if report.Summary.ClockSkewCount != 2 {
		t.Errorf("ClockSkewCount = %d, expected 2", report.Summary.ClockSkewCount)
	}
	// Skewed replies still resolve their units.
	if report.Summary.SuccessCount != 2 {
		t.Errorf("SuccessCount = %d, expected 2", report.Summary.SuccessCount)
	}
	// Negative latencies never feed the bands.
	if report.Summary.Bands.Under30s != 0 {
		t.Errorf("Bands.Under30s = %d, expected 0", report.Summary.Bands.Under30s)
	}
}

func TestSession_ProgressCallbackObservesResolution(t *testing.T) {
	st := store.NewMemory()
	flow := &replyingFlow{store: st, delay: 10 * time.Millisecond, reply: "ok"}
	srv := httptest.NewServer(flow.handler())
	defer srv.Close()

	progress := make(chan [2]int, 64)
	sess := testSession(st)
	sess.OnProgress = func(resolved, total int) {
		select {
		case progress <- [2]int{resolved, total}:
		default:
		}
	}

	cfg := RunConfig{
		WebhookURL:      srv.URL,
		Users:           2,
		MessagesPerUser: 1,
		Deadline:        5 * time.Second,
	}
	if _, err := sess.Execute(context.Background(), cfg); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	var last [2]int
	for {
		select {
		case p := <-progress:
			last = p
			continue
		default:
		}
		break
	}
	if last != [2]int{2, 2} {
		t.Errorf("final progress = %v, expected [2 2]", last)
	}
}
