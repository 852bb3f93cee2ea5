// Package metrics exposes the Prometheus instruments for the billing
// pipeline. Everything registers on the default registry; the server mounts
// promhttp on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ScansTotal counts prescription scans by outcome:
// "extracted", "degraded", "rejected".
var ScansTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "medscan",
	Subsystem: "scan",
	Name:      "requests_total",
	Help:      "Total prescription scan requests by outcome.",
}, []string{"outcome"})

// ExtractionSeconds tracks vision extraction latency, cache hits excluded.
var ExtractionSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
	Namespace: "medscan",
	Subsystem: "scan",
	Name:      "extraction_seconds",
	Help:      "Latency of external vision extraction calls.",
	Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 20, 40},
})

// ExtractionCacheHits counts scans answered from the extraction cache.
var ExtractionCacheHits = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "medscan",
	Subsystem: "scan",
	Name:      "extraction_cache_hits_total",
	Help:      "Scans served from the extraction cache.",
})

// ConfirmationsTotal counts bill confirmations by outcome:
// "confirmed", "unauthorized", "invalid_state", "insufficient_stock", "error".
var ConfirmationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "medscan",
	Subsystem: "bill",
	Name:      "confirmations_total",
	Help:      "Total bill confirmation attempts by outcome.",
}, []string{"outcome"})

// UnmatchedMedicines counts extracted mentions that found no catalog entry.
var UnmatchedMedicines = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "medscan",
	Subsystem: "scan",
	Name:      "unmatched_medicines_total",
	Help:      "Extracted medicine mentions with no inventory match.",
})
