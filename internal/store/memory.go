package store

import (
	"context"
	"sync"

	"wasim/internal/core"
)

// Memory is an in-process message log. It backs single-process deployments
// (simulator and flow target in one binary) and tests.
type Memory struct {
	mu      sync.Mutex
	records []core.Record
	subs    map[int]func(core.Record)
	nextSub int
}

// NewMemory creates an empty in-memory log.
func NewMemory() *Memory {
	return &Memory{subs: make(map[int]func(core.Record))}
}

func (s *Memory) Append(_ context.Context, rec core.Record) error {
	s.mu.Lock()
	s.records = append(s.records, rec)
	subs := make([]func(core.Record), 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	s.mu.Unlock()

	// Deliver outside the lock: subscribers may call back into the store.
	for _, fn := range subs {
		fn(rec)
	}
	return nil
}

func (s *Memory) AppendBulk(ctx context.Context, recs []core.Record) error {
	for _, rec := range recs {
		if err := s.Append(ctx, rec); err != nil {
			return err
		}
	}
	return nil
}

func (s *Memory) ByPhone(_ context.Context, phone string) ([]core.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var recs []core.Record
	for _, rec := range s.records {
		if rec.Phone == phone {
			recs = append(recs, rec)
		}
	}
	return recs, nil
}

func (s *Memory) Subscribe(_ context.Context, fn func(core.Record)) (func(), error) {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.mu.Unlock()

	cancel := func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
	return cancel, nil
}

// Len returns the total number of records. Used by tests.
func (s *Memory) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}
