package metrics

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"
)

// FormatText writes a summary in human-readable form.
func FormatText(w io.Writer, s Summary) {
	if s.TotalDispatched == 0 {
		fmt.Fprintln(w, "No units dispatched")
		return
	}

	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "wasim - Stress Test Results")
	fmt.Fprintln(w, "===========================")
	fmt.Fprintln(w, "")
	fmt.Fprintf(w, "Duration:       %v\n", (time.Duration(s.WallClockMs) * time.Millisecond).Round(time.Millisecond))
	fmt.Fprintf(w, "Dispatched:     %s\n", formatNumber(s.TotalDispatched))
	fmt.Fprintf(w, "Success:        %s\n", formatNumber(s.SuccessCount))
	fmt.Fprintf(w, "Errors:         %s\n", formatNumber(s.ErrorCount))
	fmt.Fprintf(w, "No response:    %s\n", formatNumber(s.NoResponseCount))
	if s.UnresolvedCount > 0 {
		fmt.Fprintf(w, "Unresolved:     %s (run cancelled)\n", formatNumber(s.UnresolvedCount))
	}
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Replies within (cumulative):")
	fmt.Fprintf(w, "  < 1s:   %s\n", formatNumber(s.Bands.Under1s))
	fmt.Fprintf(w, "  < 5s:   %s\n", formatNumber(s.Bands.Under5s))
	fmt.Fprintf(w, "  < 30s:  %s\n", formatNumber(s.Bands.Under30s))

	if s.Bands.Under30s > 0 || s.Latency.MaxMs > 0 {
		fmt.Fprintln(w, "")
		fmt.Fprintln(w, "Reply latency:")
		fmt.Fprintf(w, "  Min:    %s\n", formatMs(s.Latency.MinMs))
		fmt.Fprintf(w, "  Avg:    %s\n", formatMs(s.Latency.AvgMs))
		fmt.Fprintf(w, "  P50:    %s\n", formatMs(s.Latency.P50Ms))
		fmt.Fprintf(w, "  P90:    %s\n", formatMs(s.Latency.P90Ms))
		fmt.Fprintf(w, "  P95:    %s\n", formatMs(s.Latency.P95Ms))
		fmt.Fprintf(w, "  P99:    %s\n", formatMs(s.Latency.P99Ms))
		fmt.Fprintf(w, "  Max:    %s\n", formatMs(s.Latency.MaxMs))
	}

	if s.ClockSkewCount > 0 {
		fmt.Fprintf(w, "\nWARNING: %d replies observed with negative latency (clock skew)\n", s.ClockSkewCount)
	}
}

// FormatJSON writes a summary as indented JSON.
func FormatJSON(w io.Writer, s Summary) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(s)
}

// formatMs renders a millisecond value like the CLI output expects.
func formatMs(ms int64) string {
	d := time.Duration(ms) * time.Millisecond
	if d < time.Second {
		return fmt.Sprintf("%dms", ms)
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	return d.Round(time.Second).String()
}

// formatNumber adds thousand separators for readability.
func formatNumber(n int) string {
	str := strconv.Itoa(n)
	if len(str) <= 3 {
		return str
	}

	var result []byte
	for i, digit := range []byte(str) {
		if i > 0 && (len(str)-i)%3 == 0 {
			result = append(result, ',')
		}
		result = append(result, digit)
	}
	return string(result)
}
