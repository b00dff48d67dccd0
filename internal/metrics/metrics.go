// Package metrics defines the prometheus collectors for the snapshot cache,
// the element matcher and tracking requests.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// cacheLookupsTotal counts snapshot lookups.
	// Labels: result (hit, miss, shared)
	cacheLookupsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "codetracker",
		Subsystem: "cache",
		Name:      "lookups_total",
		Help:      "Snapshot cache lookups by result",
	}, []string{"result"})

	// parsesTotal counts parser invocations by outcome.
	// Labels: outcome (ok, absent, parse_error, unsupported, timeout, error)
	parsesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "codetracker",
		Subsystem: "cache",
		Name:      "parses_total",
		Help:      "Snapshot computations by outcome",
	}, []string{"outcome"})

	parseSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "codetracker",
		Subsystem: "cache",
		Name:      "parse_seconds",
		Help:      "Time to fetch and parse one file revision",
		Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
	})

	comparisonsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "codetracker",
		Subsystem: "matcher",
		Name:      "token_comparisons_total",
		Help:      "Token-level body comparisons performed by the matcher",
	})

	// ambiguitiesTotal counts matches accepted with a tied runner-up.
	ambiguitiesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "codetracker",
		Subsystem: "matcher",
		Name:      "ambiguities_total",
		Help:      "Matches accepted with an equally scored alternative",
	})

	// tracksTotal counts finished tracking requests.
	// Labels: termination (introduced, root_reached, incomplete, unsupported, cancelled, error)
	tracksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "codetracker",
		Subsystem: "tracker",
		Name:      "requests_total",
		Help:      "Tracking requests by termination reason",
	}, []string{"termination"})

	trackSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "codetracker",
		Subsystem: "tracker",
		Name:      "request_seconds",
		Help:      "End-to-end tracking request latency",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
	})

	historyLength = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "codetracker",
		Subsystem: "tracker",
		Name:      "history_versions",
		Help:      "Element versions per returned history",
		Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
	})
)

// RecordCacheLookup records a snapshot lookup result.
func RecordCacheLookup(result string) {
	cacheLookupsTotal.WithLabelValues(result).Inc()
}

// RecordParse records one snapshot computation.
func RecordParse(outcome string, d time.Duration) {
	parsesTotal.WithLabelValues(outcome).Inc()
	parseSeconds.Observe(d.Seconds())
}

// RecordComparison records one token-level comparison.
func RecordComparison() {
	comparisonsTotal.Inc()
}

// RecordAmbiguity records an ambiguous match.
func RecordAmbiguity() {
	ambiguitiesTotal.Inc()
}

// RecordTrack records a finished tracking request.
func RecordTrack(termination string, versions int, d time.Duration) {
	tracksTotal.WithLabelValues(termination).Inc()
	trackSeconds.Observe(d.Seconds())
	historyLength.Observe(float64(versions))
}

// Handler serves the default registry in the prometheus text format.
func Handler() http.Handler {
	return promhttp.Handler()
}
