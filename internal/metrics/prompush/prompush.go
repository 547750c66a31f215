// Package prompush pushes run metrics to a Prometheus Pushgateway.
//
// Extraction runs are short-lived, so there is no scrape endpoint; metrics
// are collected on a private registry and pushed once when the run ends.
package prompush

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

// DefaultJob is the Pushgateway job used when none is configured.
const DefaultJob = "fines_extract"

// Backend implements metrics.Recorder.
type Backend struct {
	gatewayURL string
	jobName    string
	reg        *prometheus.Registry

	documents *prometheus.CounterVec   // fines_documents_total
	records   prometheus.Counter       // fines_records_total
	duration  *prometheus.HistogramVec // fines_document_duration_seconds
}

// NewBackend builds a backend pushing to gatewayURL under jobName.
func NewBackend(jobName, gatewayURL string) (*Backend, error) {
	if gatewayURL == "" {
		return nil, fmt.Errorf("prompush: gateway URL is required")
	}
	if jobName == "" {
		jobName = DefaultJob
	}

	reg := prometheus.NewRegistry()

	documents := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fines_documents_total",
			Help: "Statement documents processed, partitioned by outcome.",
		},
		[]string{"status"},
	)
	records := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "fines_records_total",
			Help: "Infraction records extracted.",
		},
	)
	duration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fines_document_duration_seconds",
			Help:    "Time spent reading and matching one document.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		},
		[]string{"status"},
	)

	if err := reg.Register(documents); err != nil {
		return nil, fmt.Errorf("prompush: register documents counter: %w", err)
	}
	if err := reg.Register(records); err != nil {
		return nil, fmt.Errorf("prompush: register records counter: %w", err)
	}
	if err := reg.Register(duration); err != nil {
		return nil, fmt.Errorf("prompush: register duration histogram: %w", err)
	}

	return &Backend{
		gatewayURL: gatewayURL,
		jobName:    jobName,
		reg:        reg,
		documents:  documents,
		records:    records,
		duration:   duration,
	}, nil
}

func (b *Backend) ObserveDocument(status string, d time.Duration) {
	b.documents.WithLabelValues(status).Inc()
	b.duration.WithLabelValues(status).Observe(d.Seconds())
}

func (b *Backend) AddRecords(n int) {
	if n > 0 {
		b.records.Add(float64(n))
	}
}

// Flush pushes the registry to the Pushgateway, replacing the job's group.
func (b *Backend) Flush() error {
	if err := push.New(b.gatewayURL, b.jobName).Gatherer(b.reg).Push(); err != nil {
		return fmt.Errorf("prompush: push to %s: %w", b.gatewayURL, err)
	}
	return nil
}
