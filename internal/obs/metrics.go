package obs

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	pipelineOnce sync.Once

	// TrackLookupsTotal counts tracking lookups by classification result.
	TrackLookupsTotal *prometheus.CounterVec
	// TrackLookupLatency records carrier lookup latency in milliseconds.
	TrackLookupLatency prometheus.Histogram
	// TokenRefreshTotal counts OAuth token exchanges by outcome.
	TokenRefreshTotal *prometheus.CounterVec
	// CandidateRowsDiscarded counts transaction rows dropped for unparsable dates.
	CandidateRowsDiscarded prometheus.Counter
)

// MustRegisterPipelineMetrics initialises and registers the pipeline's
// Prometheus collectors. Safe to call more than once.
func MustRegisterPipelineMetrics(namespace string, reg prometheus.Registerer) {
	pipelineOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		TrackLookupsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "track_lookups_total",
			Help:      "Count of tracking lookups by classification result.",
		}, []string{"result"})
		TrackLookupLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "track_lookup_duration_ms",
			Help:      "Latency of carrier tracking lookups in milliseconds.",
			Buckets:   []float64{25, 50, 100, 250, 500, 1000, 2500, 5000, 10000},
		})
		TokenRefreshTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "token_refresh_total",
			Help:      "Count of OAuth token exchanges by outcome.",
		}, []string{"result"})
		CandidateRowsDiscarded = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "candidate_rows_discarded_total",
			Help:      "Transaction rows dropped because no date format matched.",
		})
		reg.MustRegister(TrackLookupsTotal, TrackLookupLatency, TokenRefreshTotal, CandidateRowsDiscarded)
	})
}

// ObserveTrackLookup records one lookup outcome. Nil-safe so library code can
// call it before metrics registration (tests mostly skip registration).
func ObserveTrackLookup(result string, durationMS float64) {
	if TrackLookupsTotal != nil {
		TrackLookupsTotal.WithLabelValues(result).Inc()
	}
	if TrackLookupLatency != nil {
		TrackLookupLatency.Observe(durationMS)
	}
}

// ObserveTokenRefresh records one token exchange outcome.
func ObserveTokenRefresh(result string) {
	if TokenRefreshTotal != nil {
		TokenRefreshTotal.WithLabelValues(result).Inc()
	}
}

// AddDiscardedRows records rows dropped during candidate selection.
func AddDiscardedRows(n int) {
	if CandidateRowsDiscarded != nil && n > 0 {
		CandidateRowsDiscarded.Add(float64(n))
	}
}
