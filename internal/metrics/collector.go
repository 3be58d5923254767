// Package metrics exposes transfer counters over Prometheus and feeds
// the progress tracker.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"manifest2cloud/internal/progress"
)

// Collector collects and exposes transfer metrics.
type Collector struct {
	registry *prometheus.Registry

	objectsTotal *prometheus.CounterVec
	bytesTotal   *prometheus.CounterVec
	duration     *prometheus.HistogramVec

	progressTracker *progress.Tracker
}

// New creates a collector on its own registry, so tests can build as
// many collectors as they like without duplicate registration.
func New() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		objectsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "transfer_objects_total",
				Help: "Total number of objects processed",
			},
			[]string{"destination", "status"},
		),
		bytesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "transfer_bytes_total",
				Help: "Total bytes settled per destination",
			},
			[]string{"destination"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "transfer_object_duration_seconds",
				Help:    "Time taken to settle one object on one destination",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"destination"},
		),
		progressTracker: progress.NewTracker(),
	}

	c.registry.MustRegister(c.objectsTotal)
	c.registry.MustRegister(c.bytesTotal)
	c.registry.MustRegister(c.duration)

	return c
}

// IncSucceeded counts one uploaded object on a destination.
func (c *Collector) IncSucceeded(destination string, bytes int64) {
	c.objectsTotal.WithLabelValues(destination, "success").Inc()
	c.bytesTotal.WithLabelValues(destination).Add(float64(bytes))
	c.progressTracker.AddSucceeded(bytes)
}

// IncFailed counts one object that failed a destination after retries.
func (c *Collector) IncFailed(destination string) {
	c.objectsTotal.WithLabelValues(destination, "failed").Inc()
	c.progressTracker.AddFailed()
}

// IncSkipped counts one object that needed no byte movement, either a
// passthrough or an idempotent re-run against an existing object.
func (c *Collector) IncSkipped(destination string, bytes int64) {
	c.objectsTotal.WithLabelValues(destination, "skipped").Inc()
	c.bytesTotal.WithLabelValues(destination).Add(float64(bytes))
	c.progressTracker.AddSkipped(bytes)
}

// ObserveDuration records how long one destination took to settle.
func (c *Collector) ObserveDuration(destination string, d time.Duration) {
	c.duration.WithLabelValues(destination).Observe(d.Seconds())
}

// SetTotals seeds the progress tracker with the planned workload.
func (c *Collector) SetTotals(objects, bytes int64) {
	c.progressTracker.SetTotal(objects, bytes)
}

// Tracker returns the progress tracker fed by this collector.
func (c *Collector) Tracker() *progress.Tracker {
	return c.progressTracker
}

// Handler serves this collector's registry.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// StartServer serves /metrics on addr until the listener fails.
func (c *Collector) StartServer(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())
	return http.ListenAndServe(addr, mux)
}
