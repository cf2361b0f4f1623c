// Package dispatch generates the synthetic message load of a stress run:
// it enumerates the user x message matrix, posts each payload to the target
// webhook, records per-unit outcomes, and persists the outbound markers.
package dispatch

import (
	"errors"
	"fmt"
	"time"

	"wasim/internal/config"
)

// Bounds enforced at the run boundary.
const (
	MaxUsers    = 10_000_000
	MaxMessages = 10
)

const (
	defaultConcurrency = 32
	defaultDeadline    = 10 * time.Minute
)

// ErrInvalidConfig marks run parameters rejected before any dispatch.
var ErrInvalidConfig = errors.New("invalid run config")

// RunConfig describes one stress run.
//
// Enumeration is message-major: wave m delivers message m for every user,
// then waits WaveDelay before wave m+1, simulating synchronized message
// waves. Users within a wave are sent concurrently with no ordering
// guarantee.
type RunConfig struct {
	WebhookURL      string
	Users           int
	MessagesPerUser int
	// WaveDelay is the pause between message waves. Zero means back to back.
	WaveDelay time.Duration
	// Deadline bounds the wait for inbound replies after dispatch.
	Deadline time.Duration
	// Concurrency caps simultaneous outbound calls within a wave.
	Concurrency int
	// RPS optionally caps the global send rate. Zero means unlimited.
	RPS int
	// SampleMessages rotates per wave: wave m sends message m modulo the
	// list length.
	SampleMessages []string
}

// Validate rejects out-of-bounds parameters. It must pass before any side
// effect occurs.
func (c *RunConfig) Validate() error {
	if c.WebhookURL == "" {
		return fmt.Errorf("%w: webhookUrl is required", ErrInvalidConfig)
	}
	if c.Users < 1 || c.Users > MaxUsers {
		return fmt.Errorf("%w: users must be between 1 and %d, got %d", ErrInvalidConfig, MaxUsers, c.Users)
	}
	if c.MessagesPerUser < 1 || c.MessagesPerUser > MaxMessages {
		return fmt.Errorf("%w: messagesPerUser must be between 1 and %d, got %d", ErrInvalidConfig, MaxMessages, c.MessagesPerUser)
	}
	if c.WaveDelay < 0 {
		return fmt.Errorf("%w: waveDelay must be >= 0", ErrInvalidConfig)
	}
	return nil
}

// normalize fills optional fields after validation.
func (c *RunConfig) normalize() {
	if c.Concurrency <= 0 {
		c.Concurrency = defaultConcurrency
	}
	if c.Deadline <= 0 {
		c.Deadline = defaultDeadline
	}
	if len(c.SampleMessages) == 0 {
		c.SampleMessages = config.DefaultSampleMessages
	}
}

// Total returns the number of dispatch units the run will produce.
func (c *RunConfig) Total() int {
	return c.Users * c.MessagesPerUser
}
