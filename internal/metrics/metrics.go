// Package metrics aggregates finalized run results into a summary.
package metrics

import (
	"sort"
	"time"

	"wasim/internal/core"
)

// Latency band thresholds. Bands are cumulative: a 400ms reply counts in
// all three, answering "how many completed within X" rather than slicing a
// histogram. This is deliberate; do not convert to discrete buckets.
const (
	Band1s  = 1 * time.Second
	Band5s  = 5 * time.Second
	Band30s = 30 * time.Second
)

// Bands holds the cumulative latency band counts over matched replies.
type Bands struct {
	Under1s  int `json:"under1s"`
	Under5s  int `json:"under5s"`
	Under30s int `json:"under30s"`
}

// LatencyStats are distribution statistics over matched-reply latencies,
// in milliseconds.
type LatencyStats struct {
	MinMs int64 `json:"minMs"`
	AvgMs int64 `json:"avgMs"`
	MaxMs int64 `json:"maxMs"`
	P50Ms int64 `json:"p50Ms"`
	P90Ms int64 `json:"p90Ms"`
	P95Ms int64 `json:"p95Ms"`
	P99Ms int64 `json:"p99Ms"`
}

// Summary is the aggregated outcome of one run.
type Summary struct {
	TotalDispatched int `json:"totalDispatched"`
	SuccessCount    int `json:"successCount"`
	ErrorCount      int `json:"errorCount"`
	NoResponseCount int `json:"noResponseCount"`
	// UnresolvedCount is non-zero only for cancelled runs, whose pending
	// and sent units are returned as-is.
	UnresolvedCount int          `json:"unresolvedCount,omitempty"`
	Bands           Bands        `json:"latencyBands"`
	Latency         LatencyStats `json:"latency"`
	WallClockMs     int64        `json:"wallClockMs"`
	// ClockSkewCount flags replies observed with negative latency.
	ClockSkewCount int `json:"clockSkewCount,omitempty"`
}

// Summarize computes a Summary from a finalized result set. Pure function:
// calling it twice over the same set yields the identical Summary.
func Summarize(results []core.RunResult, wallClock time.Duration) Summary {
	s := Summary{
		TotalDispatched: len(results),
		WallClockMs:     wallClock.Milliseconds(),
	}

	var latencies []int64
	for _, res := range results {
		switch res.Status {
		case core.StatusSuccess:
			s.SuccessCount++
		case core.StatusError:
			s.ErrorCount++
		case core.StatusNoResponse:
			s.NoResponseCount++
		default:
			s.UnresolvedCount++
		}

		if res.LatencyMs < 0 {
			continue
		}
		latencies = append(latencies, res.LatencyMs)

		d := time.Duration(res.LatencyMs) * time.Millisecond
		if d < Band1s {
			s.Bands.Under1s++
		}
		if d < Band5s {
			s.Bands.Under5s++
		}
		if d < Band30s {
			s.Bands.Under30s++
		}
	}

	s.Latency = computeLatencyStats(latencies)
	return s
}

func computeLatencyStats(latencies []int64) LatencyStats {
	if len(latencies) == 0 {
		return LatencyStats{}
	}

	sorted := make([]int64, len(latencies))
	copy(sorted, latencies)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	var total int64
	for _, l := range sorted {
		total += l
	}

	return LatencyStats{
		MinMs: sorted[0],
		MaxMs: sorted[len(sorted)-1],
		AvgMs: total / int64(len(sorted)),
		P50Ms: percentile(sorted, 0.50),
		P90Ms: percentile(sorted, 0.90),
		P95Ms: percentile(sorted, 0.95),
		P99Ms: percentile(sorted, 0.99),
	}
}

// percentile uses the nearest-rank method over an ascending-sorted slice.
func percentile(sorted []int64, p float64) int64 {
	if len(sorted) == 0 {
		return 0
	}
	if p <= 0 {
		return sorted[0]
	}
	if p >= 1 {
		return sorted[len(sorted)-1]
	}
	index := int(float64(len(sorted)-1) * p)
	return sorted[index]
}
