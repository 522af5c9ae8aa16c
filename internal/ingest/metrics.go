package ingest

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	resultSuccess = "success"
	resultFailure = "failure"
	resultInvalid = "invalid"
)

// Metrics counts the records sent and how long they took.
// A nil *Metrics records nothing.
type Metrics struct {
	records  *prometheus.CounterVec
	duration prometheus.Histogram
}

// NewMetrics registers the record metrics in reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)

	m := &Metrics{
		records: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "solr_ingest_records_total",
				Help: "Number of records processed, by result.",
			}, []string{"result"},
		),
		duration: f.NewHistogram(
			prometheus.HistogramOpts{
				Name: "solr_ingest_record_duration_seconds",
				Help: "Time taken to index a single record.",
				// Single document updates skew small unless something is wrong. Max of 10.24.
				Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
			},
		),
	}
	// Expose every result, even when zero.
	for _, r := range []string{resultSuccess, resultFailure, resultInvalid} {
		m.records.WithLabelValues(r)
	}

	return m
}

func (m *Metrics) observeRecord(result string) {
	if m == nil {
		return
	}
	m.records.WithLabelValues(result).Inc()
}

func (m *Metrics) observeDuration(d time.Duration) {
	if m == nil {
		return
	}
	m.duration.Observe(d.Seconds())
}

// InstrumentTransport returns rt wrapped to count and time every HTTP request sent to the backend.
// http.DefaultTransport is wrapped if rt is nil.
func InstrumentTransport(reg prometheus.Registerer, rt http.RoundTripper) http.RoundTripper {
	if rt == nil {
		rt = http.DefaultTransport
	}
	f := promauto.With(reg)

	requests := f.NewCounterVec(
		prometheus.CounterOpts{
			Name: "solr_ingest_http_requests_total",
			Help: "Number of HTTP requests sent to the backend.",
		}, []string{"code", "method"},
	)
	duration := f.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "solr_ingest_http_request_duration_seconds",
			Help:    "Latencies of HTTP requests sent to the backend.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
		}, []string{"code", "method"},
	)

	return promhttp.InstrumentRoundTripperCounter(requests,
		promhttp.InstrumentRoundTripperDuration(duration, rt),
	)
}

// WriteFile writes every metric gathered by g to path, in the textfile collector format.
func WriteFile(g prometheus.Gatherer, path string) error {
	if err := prometheus.WriteToTextfile(path, g); err != nil {
		return fmt.Errorf("failed to write metrics file: %v", err)
	}
	slog.Debug("Metrics written", "file", path)
	return nil
}
