package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	recordsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rasctl",
			Subsystem: "ghes",
			Name:      "records_total",
			Help:      "Error records attempted, by section kind and outcome.",
		},
		[]string{"source", "kind", "outcome"},
	)
	recordBytes = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "rasctl",
			Subsystem: "ghes",
			Name:      "record_bytes",
			Help:      "Encoded record size in bytes for successful writes.",
			Buckets:   []float64{96, 192, 256, 384, 512, 768, 1024},
		},
		[]string{"kind"},
	)
	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rasctl",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total testbench HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "rasctl",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Testbench HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(recordsTotal, recordBytes, httpRequests, httpDuration)
	})
}

// Outcome labels for RecordCPER.
const (
	OutcomeWritten        = "written"
	OutcomeNotAcked       = "not_acknowledged"
	OutcomeTooLarge       = "too_large"
	OutcomeUnknownSource  = "unknown_source"
	OutcomeRegionUnlinked = "region_unlinked"
)

// RecordCPER counts one record attempt.
func RecordCPER(source, kind, outcome string) {
	RegisterMetrics()
	recordsTotal.WithLabelValues(source, kind, outcome).Inc()
}

// RecordCPERBytes observes the encoded size of a successfully written record.
func RecordCPERBytes(kind string, n int) {
	RegisterMetrics()
	recordBytes.WithLabelValues(kind).Observe(float64(n))
}

// RecordHTTPRequest counts one testbench HTTP request.
func RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(method, path, statusLabel).Observe(duration.Seconds())
}
