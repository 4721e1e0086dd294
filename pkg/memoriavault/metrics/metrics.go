// Package metrics exports ingestion and search metrics to Prometheus.
package metrics

import (
	"errors"
	"fmt"
	"time"

	promclient "github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	ingestions     *promclient.CounterVec
	ingestDuration *promclient.HistogramVec
	stepDuration   *promclient.HistogramVec
	degradations   *promclient.CounterVec
	searches       *promclient.CounterVec
	searchDuration promclient.Histogram
	sweptBlobs     promclient.Counter
	uploadedBytes  promclient.Counter
}

// New registers the collectors under namespace on reg (the default
// registerer when nil). Registering twice reuses the existing collectors.
func New(namespace string, reg promclient.Registerer) (*Metrics, error) {
	if namespace == "" {
		namespace = "memoriavault"
	}
	if reg == nil {
		reg = promclient.DefaultRegisterer
	}

	m := &Metrics{
		ingestions: promclient.NewCounterVec(promclient.CounterOpts{
			Namespace: namespace,
			Name:      "ingestions_total",
			Help:      "Uploads processed, by media type and outcome.",
		}, []string{"media_type", "outcome"}),
		ingestDuration: promclient.NewHistogramVec(promclient.HistogramOpts{
			Namespace: namespace,
			Name:      "ingest_duration_seconds",
			Help:      "End-to-end ingestion latency.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"media_type"}),
		stepDuration: promclient.NewHistogramVec(promclient.HistogramOpts{
			Namespace: namespace,
			Name:      "ingest_step_duration_seconds",
			Help:      "Latency of each ingestion step.",
			Buckets:   promclient.DefBuckets,
		}, []string{"step"}),
		degradations: promclient.NewCounterVec(promclient.CounterOpts{
			Namespace: namespace,
			Name:      "ingest_degradations_total",
			Help:      "Non-fatal step failures that left a record field absent.",
		}, []string{"step"}),
		searches: promclient.NewCounterVec(promclient.CounterOpts{
			Namespace: namespace,
			Name:      "searches_total",
			Help:      "Search requests, by outcome.",
		}, []string{"outcome"}),
		searchDuration: promclient.NewHistogram(promclient.HistogramOpts{
			Namespace: namespace,
			Name:      "search_duration_seconds",
			Help:      "Search latency.",
			Buckets:   promclient.DefBuckets,
		}),
		sweptBlobs: promclient.NewCounter(promclient.CounterOpts{
			Namespace: namespace,
			Name:      "orphan_blobs_swept_total",
			Help:      "Blobs removed because no record references them.",
		}),
		uploadedBytes: promclient.NewCounter(promclient.CounterOpts{
			Namespace: namespace,
			Name:      "uploaded_bytes_total",
			Help:      "Bytes of media persisted.",
		}),
	}

	var err error
	if m.ingestions, err = register(reg, m.ingestions); err != nil {
		return nil, err
	}
	if m.ingestDuration, err = register(reg, m.ingestDuration); err != nil {
		return nil, err
	}
	if m.stepDuration, err = register(reg, m.stepDuration); err != nil {
		return nil, err
	}
	if m.degradations, err = register(reg, m.degradations); err != nil {
		return nil, err
	}
	if m.searches, err = register(reg, m.searches); err != nil {
		return nil, err
	}
	if m.searchDuration, err = register(reg, m.searchDuration); err != nil {
		return nil, err
	}
	if m.sweptBlobs, err = register(reg, m.sweptBlobs); err != nil {
		return nil, err
	}
	if m.uploadedBytes, err = register(reg, m.uploadedBytes); err != nil {
		return nil, err
	}
	return m, nil
}

// register registers c, or returns the already registered collector of the
// same type.
func register[C promclient.Collector](reg promclient.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var are promclient.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, fmt.Errorf("register collector: %w", err)
	}
	return c, nil
}

// ObserveIngest records one finished ingestion.
func (m *Metrics) ObserveIngest(mediaType, outcome string, d time.Duration, size int) {
	if m == nil {
		return
	}
	m.ingestions.WithLabelValues(mediaType, outcome).Inc()
	m.ingestDuration.WithLabelValues(mediaType).Observe(d.Seconds())
	if outcome == "ok" {
		m.uploadedBytes.Add(float64(size))
	}
}

// ObserveStep records the latency of one ingestion step.
func (m *Metrics) ObserveStep(step string, d time.Duration) {
	if m == nil {
		return
	}
	m.stepDuration.WithLabelValues(step).Observe(d.Seconds())
}

// Degraded counts a non-fatal step failure.
func (m *Metrics) Degraded(step string) {
	if m == nil {
		return
	}
	m.degradations.WithLabelValues(step).Inc()
}

// ObserveSearch records one search.
func (m *Metrics) ObserveSearch(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.searches.WithLabelValues(outcome).Inc()
	m.searchDuration.Observe(d.Seconds())
}

// Swept counts removed orphan blobs.
func (m *Metrics) Swept(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.sweptBlobs.Add(float64(n))
}
