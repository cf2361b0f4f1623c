// Package store implements the message log: an append-only record of
// outbound and inbound messages, queryable by phone and observable as a
// live feed. The Redis implementation backs multi-process deployments; the
// memory implementation covers single-process runs and tests.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/redis/go-redis/v9"

	"wasim/internal/core"
)

// Redis is a message log backed by Redis lists plus a pub/sub live feed.
//
// Keys:
//
//	<prefix>:log              list of all records, append order
//	<prefix>:phone:<phone>    per-phone index, append order
//	<prefix>:feed             pub/sub channel carrying each record
type Redis struct {
	client *redis.Client
	prefix string
}

// NewRedis connects a message log to the Redis at addr.
func NewRedis(addr, password string, db int, prefix string) *Redis {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return NewRedisWithClient(client, prefix)
}

// NewRedisWithClient wraps an existing client. Used by tests (miniredis)
// and callers that manage the client lifecycle themselves.
func NewRedisWithClient(client *redis.Client, prefix string) *Redis {
	if prefix == "" {
		prefix = "wasim"
	}
	return &Redis{client: client, prefix: prefix}
}

// Ping verifies the connection. Called at process start so a dead store
// fails the run before any dispatch happens.
func (s *Redis) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("store: pinging redis: %w", err)
	}
	return nil
}

// Close releases the underlying client.
func (s *Redis) Close() error {
	return s.client.Close()
}

func (s *Redis) logKey() string               { return s.prefix + ":log" }
func (s *Redis) phoneKey(phone string) string { return s.prefix + ":phone:" + phone }
func (s *Redis) feedChannel() string          { return s.prefix + ":feed" }

func (s *Redis) Append(ctx context.Context, rec core.Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("store: encoding record: %w", err)
	}

	pipe := s.client.Pipeline()
	pipe.RPush(ctx, s.logKey(), data)
	pipe.RPush(ctx, s.phoneKey(rec.Phone), data)
	pipe.Publish(ctx, s.feedChannel(), data)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("store: appending record: %w", err)
	}
	return nil
}

// AppendBulk writes all records in one pipeline round trip.
func (s *Redis) AppendBulk(ctx context.Context, recs []core.Record) error {
	if len(recs) == 0 {
		return nil
	}

	pipe := s.client.Pipeline()
	for _, rec := range recs {
		data, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("store: encoding record: %w", err)
		}
		pipe.RPush(ctx, s.logKey(), data)
		pipe.RPush(ctx, s.phoneKey(rec.Phone), data)
		pipe.Publish(ctx, s.feedChannel(), data)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("store: bulk append of %d records: %w", len(recs), err)
	}
	return nil
}

func (s *Redis) ByPhone(ctx context.Context, phone string) ([]core.Record, error) {
	raw, err := s.client.LRange(ctx, s.phoneKey(phone), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("store: reading records for %s: %w", phone, err)
	}

	recs := make([]core.Record, 0, len(raw))
	for _, item := range raw {
		var rec core.Record
		if err := json.Unmarshal([]byte(item), &rec); err != nil {
			// A malformed entry (e.g. written by another tool) is skipped
			// rather than poisoning the whole read.
			log.Printf("store: skipping malformed record for %s: %v", phone, err)
			continue
		}
		recs = append(recs, rec)
	}
	return recs, nil
}

// Subscribe delivers every record published after the call to fn on a
// dedicated goroutine. The returned cancel function stops delivery and
// closes the pub/sub connection.
func (s *Redis) Subscribe(ctx context.Context, fn func(core.Record)) (func(), error) {
	sub := s.client.Subscribe(ctx, s.feedChannel())
	// Force the subscription to be established before returning, so no
	// record published after Subscribe returns can be missed.
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("store: subscribing to feed: %w", err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for msg := range sub.Channel() {
			var rec core.Record
			if err := json.Unmarshal([]byte(msg.Payload), &rec); err != nil {
				log.Printf("store: skipping malformed feed message: %v", err)
				continue
			}
			fn(rec)
		}
	}()

	cancel := func() {
		_ = sub.Close()
		<-done
	}
	return cancel, nil
}
