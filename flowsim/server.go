// Package flowsim is a stand-in for the automation flow behind the
// webhook: it accepts WhatsApp-style payloads and posts a reply to the
// simulator's callback after a configurable delay.
package flowsim

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"sync/atomic"
	"time"

	"wasim/internal/payload"
)

// Options tune the simulated flow's behavior.
type Options struct {
	// CallbackURL is where replies are posted (the simulator's
	// /api/receive endpoint). Empty means ack only, never reply.
	CallbackURL string
	// MinDelay/MaxDelay bound the reply delay; equal values give a fixed
	// delay.
	MinDelay time.Duration
	MaxDelay time.Duration
	// FailRate is the percentage [0,100] of webhook calls rejected with a
	// 500 and never replied to.
	FailRate int
	// ErrorRate is the percentage [0,100] of replies carrying an error
	// body instead of the normal one.
	ErrorRate int
	// ReplyText is the normal reply body.
	ReplyText string
}

// Server simulates the flow under test.
type Server struct {
	opts   Options
	mux    *http.ServeMux
	client *http.Client

	received atomic.Int64
	replied  atomic.Int64
	failed   atomic.Int64
}

func NewServer(opts Options) *Server {
	if opts.ReplyText == "" {
		opts.ReplyText = "Mensaje procesado"
	}
	if opts.MaxDelay < opts.MinDelay {
		opts.MaxDelay = opts.MinDelay
	}
	s := &Server{
		opts:   opts,
		mux:    http.NewServeMux(),
		client: &http.Client{Timeout: 10 * time.Second},
	}
	s.registerHandlers()
	return s
}

// Handler returns the http.Handler for the server.
func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) registerHandlers() {
	s.mux.HandleFunc("/health", s.handleHealth)
	s.mux.HandleFunc("/webhook", s.handleWebhook)
	s.mux.HandleFunc("/stats", s.handleStats)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, `{"status":"ok"}`)
}

// handleWebhook accepts a WhatsApp-style envelope, acks it, and schedules
// the reply. The ack is what the dispatcher's send-phase sees; the reply
// arrives later through the callback, like a real flow.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "failed to read body", http.StatusInternalServerError)
		return
	}

	in, ok := payload.ExtractInbound(body)
	if !ok {
		http.Error(w, "unrecognized payload", http.StatusBadRequest)
		return
	}
	s.received.Add(1)

	if s.opts.FailRate > 0 && rand.Intn(100) < s.opts.FailRate {
		s.failed.Add(1)
		http.Error(w, "simulated flow failure", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, `{"status":"queued"}`)

	if s.opts.CallbackURL == "" {
		return
	}
	go s.reply(in.Phone)
}

func (s *Server) reply(phone string) {
	time.Sleep(s.replyDelay())

	text := s.opts.ReplyText
	if s.opts.ErrorRate > 0 && rand.Intn(100) < s.opts.ErrorRate {
		text = "Error: simulated flow failure"
	}

	buf, err := json.Marshal(map[string]string{
		"phone":   phone,
		"message": text,
	})
	if err != nil {
		return
	}

	resp, err := s.client.Post(s.opts.CallbackURL, "application/json", bytes.NewReader(buf))
	if err != nil {
		return
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	s.replied.Add(1)
}

func (s *Server) replyDelay() time.Duration {
	if s.opts.MaxDelay <= s.opts.MinDelay {
		return s.opts.MinDelay
	}
	spread := s.opts.MaxDelay - s.opts.MinDelay
	return s.opts.MinDelay + time.Duration(rand.Int63n(int64(spread)))
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	response := map[string]interface{}{
		"received": s.received.Load(),
		"replied":  s.replied.Load(),
		"failed":   s.failed.Load(),
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(response)
}
