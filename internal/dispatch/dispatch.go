package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"wasim/internal/core"
	"wasim/internal/identity"
	"wasim/internal/payload"
	"wasim/internal/ratelimit"
)

const (
	// persistChunkSize bounds one bulk write to the store.
	persistChunkSize = 500
	// maxDebugBodySize limits response body read for debug logging.
	maxDebugBodySize = 4096
)

// Sink receives the lifecycle of every dispatch unit. The correlation
// tracker implements it; all RunResult mutations go through the sink so
// reply binding can run concurrently with the send phase.
type Sink interface {
	// Track registers a freshly created unit before its HTTP call is issued.
	Track(res *core.RunResult)
	// MarkSent records an accepted send (HTTP 2xx).
	MarkSent(phone, outcome string)
	// MarkSendError records a failed send (non-2xx or transport error).
	MarkSendError(phone, outcome string)
}

// Dispatcher posts synthetic webhook payloads for a run.
type Dispatcher struct {
	Client *http.Client
	Store  core.Store
	Gen    identity.Generator
	Clock  core.Clock
	Debug  *DebugLogger
	Logger *log.Logger
}

// Outcome is the send-phase result of a run.
type Outcome struct {
	// Results holds one entry per attempted unit, enumeration order.
	Results []*core.RunResult
	// ErrorCount is the number of units that failed at send time.
	ErrorCount int
	// PersistDegraded is set when outbound markers could not be written;
	// the run proceeds without that bookkeeping.
	PersistDegraded bool
}

// Run enumerates the user x message matrix message-major and sends every
// unit. It returns once all sends have completed (or ctx was cancelled)
// and the outbound records are persisted. Per-unit failures are recorded,
// never propagated; only invalid configuration fails the call.
func (d *Dispatcher) Run(ctx context.Context, cfg RunConfig, sink Sink) (*Outcome, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.normalize()

	limiter := ratelimit.New(cfg.RPS)
	total := cfg.Total()

	// Slots are pre-indexed so workers write without a shared lock.
	results := make([]*core.RunResult, total)
	outbound := make([]core.Record, total)
	var errorCount atomic.Int64

	workers := cfg.Concurrency
	if workers > cfg.Users {
		workers = cfg.Users
	}

	for m := 0; m < cfg.MessagesPerUser; m++ {
		if ctx.Err() != nil {
			break
		}

		body := cfg.SampleMessages[m%len(cfg.SampleMessages)]

		jobs := make(chan int)
		var wg sync.WaitGroup
		for w := 0; w < workers; w++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for u := range jobs {
					idx := m*cfg.Users + u
					unit := d.sendUnit(ctx, cfg, limiter, u, body, sink)
					if unit.result == nil {
						continue // cancelled before the unit existed
					}
					results[idx] = unit.result
					outbound[idx] = unit.record
					if unit.result.Status == core.StatusError {
						errorCount.Add(1)
					}
				}
			}()
		}

	enqueue:
		for u := 0; u < cfg.Users; u++ {
			select {
			case jobs <- u:
			case <-ctx.Done():
				break enqueue
			}
		}
		close(jobs)
		wg.Wait()

		if cfg.WaveDelay > 0 && m < cfg.MessagesPerUser-1 {
			select {
			case <-time.After(cfg.WaveDelay):
			case <-ctx.Done():
			}
		}
	}

	out := &Outcome{}
	var pending []core.Record
	for i, res := range results {
		if res == nil {
			continue
		}
		out.Results = append(out.Results, res)
		pending = append(pending, outbound[i])
	}
	out.ErrorCount = int(errorCount.Load())

	// Bulk-persist outbound markers. This completes before the caller
	// starts the wait phase, so correlation never observes a half-written
	// run. A store failure here degrades the log, not the run: latency is
	// computed from in-memory send times.
	for start := 0; start < len(pending); start += persistChunkSize {
		end := start + persistChunkSize
		if end > len(pending) {
			end = len(pending)
		}
		if err := d.Store.AppendBulk(ctx, pending[start:end]); err != nil {
			d.logf("persisting outbound records: %v", err)
			out.PersistDegraded = true
			break
		}
	}

	return out, nil
}

type sentUnit struct {
	result *core.RunResult
	record core.Record
}

// sendUnit creates and sends one dispatch unit. All failure modes end up
// in the unit's RunResult.
func (d *Dispatcher) sendUnit(ctx context.Context, cfg RunConfig, limiter *ratelimit.Limiter, userOrdinal int, body string, sink Sink) sentUnit {
	if err := limiter.Wait(ctx); err != nil {
		return sentUnit{}
	}

	phone := d.Gen.PhoneID()
	name := identity.DisplayName(userOrdinal + 1)
	sentAt := d.Clock.Now()

	res := &core.RunResult{
		Phone:       phone,
		DisplayName: name,
		SentMessage: body,
		Status:      core.StatusPending,
		LatencyMs:   -1,
		SentAt:      sentAt,
	}
	sink.Track(res)

	rec := core.Record{
		Phone:     phone,
		Body:      body,
		Timestamp: sentAt,
		Direction: core.DirectionOutbound,
		SentAtMs:  sentAt.UnixMilli(),
	}

	env := payload.TextMessage(payload.Input{
		PhoneID:     phone,
		DisplayName: name,
		MessageID:   d.Gen.MessageID(),
		Body:        body,
		Timestamp:   sentAt,
	})
	buf, err := json.Marshal(env)
	if err != nil {
		// Envelope marshalling cannot fail for valid inputs; treat it as a
		// unit error rather than crashing the run.
		sink.MarkSendError(phone, "encoding payload: "+err.Error())
		return sentUnit{result: res, record: rec}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.WebhookURL, bytes.NewReader(buf))
	if err != nil {
		sink.MarkSendError(phone, err.Error())
		return sentUnit{result: res, record: rec}
	}
	req.Header.Set("Content-Type", "application/json")

	d.Debug.LogSend(phone, req, buf)

	start := time.Now()
	resp, err := d.client().Do(req)
	duration := time.Since(start)

	if err != nil {
		d.Debug.LogError(phone, err.Error(), duration)
		sink.MarkSendError(phone, err.Error())
		return sentUnit{result: res, record: rec}
	}
	defer resp.Body.Close()

	var respBody []byte
	if d.Debug != nil {
		respBody, _ = io.ReadAll(io.LimitReader(resp.Body, maxDebugBodySize))
	}
	_, _ = io.Copy(io.Discard, resp.Body) // drain for connection reuse

	d.Debug.LogResponse(phone, resp, respBody, duration)

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		sink.MarkSent(phone, resp.Status)
	} else {
		sink.MarkSendError(phone, "HTTP "+resp.Status)
	}
	return sentUnit{result: res, record: rec}
}

func (d *Dispatcher) client() *http.Client {
	if d.Client != nil {
		return d.Client
	}
	return http.DefaultClient
}

func (d *Dispatcher) logf(format string, args ...any) {
	if d.Logger != nil {
		d.Logger.Printf(format, args...)
		return
	}
	log.Printf("dispatch: "+format, args...)
}
