// Package core defines the shared types of the simulator: the message log
// record, the per-unit run result and its status lifecycle, and the store
// interface the dispatch and correlation layers depend on.
package core

import (
	"context"
	"time"
)

// Direction tells whether a record was produced by the simulator (outbound,
// towards the automation flow) or by the flow calling back in (inbound).
type Direction string

const (
	DirectionOutbound Direction = "outbound"
	DirectionInbound  Direction = "inbound"
)

// Record is one entry in the message log.
type Record struct {
	Phone     string    `json:"phone"`
	Body      string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
	Direction Direction `json:"direction"`
	// SentAtMs is the wall-clock send instant in milliseconds, set on
	// outbound records only. Latency is never computed from it; it exists
	// for offline inspection of the log.
	SentAtMs int64 `json:"sentAt,omitempty"`
}

// Store is the message log collaborator. Implementations must tolerate
// concurrent writers; the correlation layer filters by its own tracked
// phone set rather than trusting global store state.
type Store interface {
	// Append writes a single record.
	Append(ctx context.Context, rec Record) error
	// AppendBulk writes many records at once. Used by the dispatcher so the
	// whole run's outbound markers become visible before waiting starts.
	AppendBulk(ctx context.Context, recs []Record) error
	// ByPhone returns all records for one phone, oldest first.
	ByPhone(ctx context.Context, phone string) ([]Record, error)
	// Subscribe registers fn for every record appended after the call.
	// The returned function tears the subscription down; it must be called
	// at the end of every run so observers do not leak across runs.
	Subscribe(ctx context.Context, fn func(Record)) (func(), error)
}

// Status is the per-unit lifecycle state.
//
// pending -> sent -> success | error | no_response
//
// error can also be entered directly from pending when the HTTP send itself
// fails. success, error and no_response are terminal.
type Status string

const (
	StatusPending    Status = "pending"
	StatusSent       Status = "sent"
	StatusSuccess    Status = "success"
	StatusError      Status = "error"
	StatusNoResponse Status = "no_response"
)

// Terminal reports whether no further transition may leave s.
func (s Status) Terminal() bool {
	switch s {
	case StatusSuccess, StatusError, StatusNoResponse:
		return true
	}
	return false
}

// RunResult is the outcome record for one dispatch unit. It is created by
// the dispatcher before the HTTP call is issued, mutated by the correlation
// tracker as replies arrive, and finalized by the waiter.
type RunResult struct {
	Phone       string `json:"phone"`
	DisplayName string `json:"userName"`
	SentMessage string `json:"message"`
	Status      Status `json:"status"`
	// HTTPOutcome holds the response status line for the send, or the
	// transport error text when the call never completed.
	HTTPOutcome  string `json:"httpOutcome,omitempty"`
	MatchedReply string `json:"matchedReply,omitempty"`
	// LatencyMs is the time between issuing the send and observing the
	// matched reply. -1 until a reply is bound.
	LatencyMs int64 `json:"latencyMs"`
	// SentAt carries Go's monotonic reading; latency is computed against it,
	// not against any persisted timestamp.
	SentAt     time.Time `json:"sentAt"`
	ResolvedAt time.Time `json:"resolvedAt,omitempty"`
}
