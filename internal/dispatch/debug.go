package dispatch

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"
)

const maxBodyLogSize = 1024 // Max bytes to log for request/response bodies

// DebugLogger logs per-unit HTTP traffic when verbose mode is on. A nil
// *DebugLogger is silent, so call sites need no guards.
type DebugLogger struct {
	out io.Writer
	mu  sync.Mutex
}

// NewDebugLogger creates a debug logger writing to out.
func NewDebugLogger(out io.Writer) *DebugLogger {
	return &DebugLogger{out: out}
}

// LogSend logs the outbound webhook call for one unit.
func (d *DebugLogger) LogSend(phone string, req *http.Request, body []byte) {
	if d == nil {
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "\n[%s] >>> %s %s\n", phone, req.Method, req.URL.String())
	if len(body) > 0 {
		fmt.Fprintf(&buf, "  Body: %s\n", truncateBody(body))
	}
	fmt.Fprint(d.out, buf.String())
}

// LogResponse logs the webhook's HTTP response for one unit.
func (d *DebugLogger) LogResponse(phone string, resp *http.Response, body []byte, duration time.Duration) {
	if d == nil {
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "[%s] <<< %d %s (%s)\n",
		phone, resp.StatusCode, http.StatusText(resp.StatusCode), duration.Round(time.Millisecond))
	if len(body) > 0 {
		fmt.Fprintf(&buf, "  Body: %s\n", truncateBody(body))
	}
	fmt.Fprint(d.out, buf.String())
}

// LogError logs a transport failure for one unit.
func (d *DebugLogger) LogError(phone string, errMsg string, duration time.Duration) {
	if d == nil {
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	fmt.Fprintf(d.out, "[%s] !!! ERROR (%s)\n  %s\n", phone, duration.Round(time.Millisecond), errMsg)
}

// truncateBody truncates a body to maxBodyLogSize and indicates if truncated.
func truncateBody(body []byte) string {
	if len(body) <= maxBodyLogSize {
		return string(body)
	}
	return string(body[:maxBodyLogSize]) + fmt.Sprintf("... (truncated, %d bytes total)", len(body))
}
