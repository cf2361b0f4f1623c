package progress

import (
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"
)

// Reporter prints run progress to the terminal once a second. Updates are
// pushed by the correlation layer; rendering stays on the ticker goroutine
// so high reply rates never flood the output.
type Reporter struct {
	startTime time.Time
	resolved  atomic.Int64
	total     atomic.Int64
	sentDone  atomic.Bool
	ticker    *time.Ticker
	stopCh    chan struct{}
	stopped   atomic.Bool
	quiet     bool
	output    io.Writer
	mu        sync.Mutex
}

func NewReporter(quiet bool) *Reporter {
	return &Reporter{
		quiet:  quiet,
		output: os.Stderr,
	}
}

func (r *Reporter) SetOutput(w io.Writer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.output = w
}

// Update records the current resolved/total counters. Safe to call from
// any goroutine.
func (r *Reporter) Update(resolved, total int) {
	r.resolved.Store(int64(resolved))
	r.total.Store(int64(total))
}

// MarkDispatchDone switches the display from the send phase to the wait
// phase.
func (r *Reporter) MarkDispatchDone() {
	r.sentDone.Store(true)
}

func (r *Reporter) Start() {
	if r.quiet {
		return
	}
	r.startTime = time.Now()
	r.stopCh = make(chan struct{})
	r.ticker = time.NewTicker(1 * time.Second)
	go r.run()
}

func (r *Reporter) run() {
	for {
		select {
		case <-r.stopCh:
			return
		case <-r.ticker.C:
			r.printProgress()
		}
	}
}

func (r *Reporter) printProgress() {
	resolved := r.resolved.Load()
	total := r.total.Load()
	elapsed := time.Since(r.startTime).Round(time.Second)
	mins := int(elapsed.Minutes())
	secs := int(elapsed.Seconds()) % 60
	pct := 0.0
	if total > 0 {
		pct = float64(resolved) / float64(total) * 100
	}
	phase := "sending"
	if r.sentDone.Load() {
		phase = "waiting"
	}
	r.mu.Lock()
	fmt.Fprintf(r.output, "\033[K[%02d:%02d] %s | Resolved: %d/%d (%.1f%%)",
		mins, secs, phase, resolved, total, pct)
	r.mu.Unlock()
}

func (r *Reporter) Stop() {
	if r.quiet || r.stopped.Swap(true) {
		return
	}
	if r.ticker != nil {
		r.ticker.Stop()
	}
	if r.stopCh != nil {
		close(r.stopCh)
	}
	r.mu.Lock()
	fmt.Fprintf(r.output, "\033[K")
	r.mu.Unlock()
}

func (r *Reporter) Print(message string) {
	if r.quiet {
		return
	}
	r.mu.Lock()
	fmt.Fprintf(r.output, "\033[K%s\n", message)
	r.mu.Unlock()
}

func (r *Reporter) Printf(format string, args ...interface{}) {
	if r.quiet {
		return
	}
	r.mu.Lock()
	fmt.Fprintf(r.output, "\033[K"+format+"\n", args...)
	r.mu.Unlock()
}
