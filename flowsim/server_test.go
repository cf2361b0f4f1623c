package flowsim

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"wasim/internal/payload"
)

const sampleEnvelope = `{
	"object": "whatsapp_business_account",
	"entry": [{"changes": [{"value": {
		"contacts": [{"profile": {"name": "User1"}, "wa_id": "54911123456789012"}],
		"messages": [{"from": "54911123456789012", "id": "wamid.1", "text": {"body": "hola"}, "type": "text"}]
	}}]}]
}`

// callbackRecorder collects reply bodies posted to it.
type callbackRecorder struct {
	mu     sync.Mutex
	bodies []string
}

func (c *callbackRecorder) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		c.mu.Lock()
		c.bodies = append(c.bodies, string(body))
		c.mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}
}

func (c *callbackRecorder) wait(t *testing.T, n int) []string {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		c.mu.Lock()
		got := len(c.bodies)
		c.mu.Unlock()
		if got >= n {
			c.mu.Lock()
			defer c.mu.Unlock()
			return append([]string(nil), c.bodies...)
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("expected %d callbacks", n)
	return nil
}

func TestHealthEndpoint(t *testing.T) {
	server := NewServer(Options{})
	ts := httptest.NewServer(server.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/health")
	if err != nil {
		t.Fatalf("GET /health failed: %v", err)
	}
	resp.Body.Close()

	if resp.StatusCode != 200 {
		t.Errorf("expected status 200, got %d", resp.StatusCode)
	}
}

func TestWebhookAcceptsEnvelopeAndReplies(t *testing.T) {
	callback := &callbackRecorder{}
	cb := httptest.NewServer(callback.handler())
	defer cb.Close()

	server := NewServer(Options{
		CallbackURL: cb.URL,
		ReplyText:   "listo",
	})
	ts := httptest.NewServer(server.Handler())
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/webhook", "application/json", strings.NewReader(sampleEnvelope))
	if err != nil {
		t.Fatalf("POST /webhook failed: %v", err)
	}
	resp.Body.Close()

	if resp.StatusCode != 200 {
		t.Fatalf("expected status 200, got %d", resp.StatusCode)
	}

	bodies := callback.wait(t, 1)
	in, ok := payload.ExtractInbound([]byte(bodies[0]))
	if !ok {
		t.Fatalf("callback body not parseable: %s", bodies[0])
	}
	if in.Phone != "54911123456789012" {
		t.Errorf("reply phone = %q", in.Phone)
	}
	if in.Body != "listo" {
		t.Errorf("reply body = %q", in.Body)
	}
}

func TestWebhookRejectsGarbage(t *testing.T) {
	server := NewServer(Options{})
	ts := httptest.NewServer(server.Handler())
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/webhook", "application/json", strings.NewReader(`{"nope":true}`))
	if err != nil {
		t.Fatalf("POST /webhook failed: %v", err)
	}
	resp.Body.Close()

	if resp.StatusCode != 400 {
		t.Errorf("expected status 400, got %d", resp.StatusCode)
	}
}

func TestWebhookReplyDelay(t *testing.T) {
	callback := &callbackRecorder{}
	cb := httptest.NewServer(callback.handler())
	defer cb.Close()

	server := NewServer(Options{
		CallbackURL: cb.URL,
		MinDelay:    100 * time.Millisecond,
		MaxDelay:    100 * time.Millisecond,
	})
	ts := httptest.NewServer(server.Handler())
	defer ts.Close()

	start := time.Now()
	resp, err := http.Post(ts.URL+"/webhook", "application/json", strings.NewReader(sampleEnvelope))
	if err != nil {
		t.Fatalf("POST /webhook failed: %v", err)
	}
	resp.Body.Close()

	// The ack must not wait for the reply delay.
	if acked := time.Since(start); acked > 50*time.Millisecond {
		t.Errorf("ack took %v, expected immediate", acked)
	}

	callback.wait(t, 1)
	if elapsed := time.Since(start); elapsed < 100*time.Millisecond {
		t.Errorf("reply arrived after %v, expected at least 100ms", elapsed)
	}
}

func TestWebhookFailRate100(t *testing.T) {
	callback := &callbackRecorder{}
	cb := httptest.NewServer(callback.handler())
	defer cb.Close()

	server := NewServer(Options{
		CallbackURL: cb.URL,
		FailRate:    100,
	})
	ts := httptest.NewServer(server.Handler())
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/webhook", "application/json", strings.NewReader(sampleEnvelope))
	if err != nil {
		t.Fatalf("POST /webhook failed: %v", err)
	}
	resp.Body.Close()

	if resp.StatusCode != 500 {
		t.Errorf("expected status 500, got %d", resp.StatusCode)
	}

	// A failed call never replies.
	time.Sleep(50 * time.Millisecond)
	callback.mu.Lock()
	replies := len(callback.bodies)
	callback.mu.Unlock()
	if replies != 0 {
		t.Errorf("got %d replies after a failed call", replies)
	}
}

func TestWebhookErrorRate100(t *testing.T) {
	callback := &callbackRecorder{}
	cb := httptest.NewServer(callback.handler())
	defer cb.Close()

	server := NewServer(Options{
		CallbackURL: cb.URL,
		ErrorRate:   100,
	})
	ts := httptest.NewServer(server.Handler())
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/webhook", "application/json", strings.NewReader(sampleEnvelope))
	if err != nil {
		t.Fatalf("POST /webhook failed: %v", err)
	}
	resp.Body.Close()

	bodies := callback.wait(t, 1)
	in, _ := payload.ExtractInbound([]byte(bodies[0]))
	if !strings.HasPrefix(in.Body, "Error:") {
		t.Errorf("expected error reply, got %q", in.Body)
	}
}

func TestStatsEndpoint(t *testing.T) {
	server := NewServer(Options{})
	ts := httptest.NewServer(server.Handler())
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/webhook", "application/json", strings.NewReader(sampleEnvelope))
	if err != nil {
		t.Fatalf("POST /webhook failed: %v", err)
	}
	resp.Body.Close()

	resp, err = http.Get(ts.URL + "/stats")
	if err != nil {
		t.Fatalf("GET /stats failed: %v", err)
	}
	defer resp.Body.Close()

	var stats map[string]int64
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		t.Fatalf("decoding stats: %v", err)
	}
	if stats["received"] != 1 {
		t.Errorf("received = %d, expected 1", stats["received"])
	}
}
