package workflow

import (
	"sync"
	"time"

	"github.com/example/ekyc-capture/internal/kyc"
)

// MetricsSummary represents aggregated verification insights for this process.
type MetricsSummary struct {
	TotalSubmissions int64            `json:"total_submissions"`
	Matches          int64            `json:"matches"`
	Mismatches       int64            `json:"mismatches"`
	Failures         int64            `json:"failures"`
	FailuresByKind   map[string]int64 `json:"failures_by_kind"`
	MatchRate        float64          `json:"match_rate"`
	AverageLatencyMs float64          `json:"average_latency_ms"`
}

type metrics struct {
	mu         sync.Mutex
	total      int64
	matches    int64
	mismatches int64
	failures   map[kyc.ErrorKind]int64
	latency    time.Duration
}

func newMetrics() *metrics {
	return &metrics{failures: make(map[kyc.ErrorKind]int64)}
}

func (m *metrics) record(result *kyc.VerificationResult, err error, latency time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.total++
	m.latency += latency
	switch {
	case err != nil:
		m.failures[kyc.FailureOf(err).Kind]++
	case result != nil && result.Similarity:
		m.matches++
	default:
		m.mismatches++
	}
}

func (m *metrics) summary() MetricsSummary {
	m.mu.Lock()
	defer m.mu.Unlock()

	summary := MetricsSummary{
		TotalSubmissions: m.total,
		Matches:          m.matches,
		Mismatches:       m.mismatches,
		FailuresByKind:   make(map[string]int64, len(m.failures)),
	}
	for kind, count := range m.failures {
		summary.Failures += count
		summary.FailuresByKind[kind.String()] = count
	}

	if m.total > 0 {
		summary.MatchRate = float64(m.matches) / float64(m.total)
		summary.AverageLatencyMs = float64(m.latency.Microseconds()) / 1000 / float64(m.total)
	}
	return summary
}
