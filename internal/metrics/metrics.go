// Package metrics exposes discovery and HTTP metrics in Prometheus format.
// Each Collector owns its registry; nothing is registered globally.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/muurk/dantescan/internal/discovery"
)

const namespace = "dantescan"

// Resolution outcome label values.
const (
	OutcomeResolved   = "resolved"
	OutcomeUnresolved = "unresolved"
)

// Collector records discovery engine events. It implements discovery.Observer.
type Collector struct {
	registry *prometheus.Registry

	resolutions        *prometheus.CounterVec
	resolutionDuration prometheus.Histogram
	publishes          prometheus.Counter
	devices            prometheus.Gauge
	generation         prometheus.Gauge
	buildDuration      prometheus.Histogram
	httpRequests       *prometheus.CounterVec
	httpDuration       *prometheus.HistogramVec
}

var _ discovery.Observer = (*Collector)(nil)

// New creates a Collector with all metrics registered on a fresh registry,
// alongside the Go runtime and process collectors.
func New() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		resolutions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "resolutions_total",
				Help:      "Device address resolutions by outcome.",
			},
			[]string{"outcome"},
		),
		resolutionDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "resolution_duration_seconds",
				Help:      "Time spent resolving one device address.",
				Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 3, 5},
			},
		),
		publishes: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "snapshot_publishes_total",
				Help:      "Device snapshots published.",
			},
		),
		devices: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "snapshot_devices",
				Help:      "Devices in the current snapshot.",
			},
		),
		generation: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "snapshot_generation",
				Help:      "Generation of the current snapshot.",
			},
		),
		buildDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "snapshot_build_duration_seconds",
				Help:      "Time spent building and publishing a snapshot.",
				Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
			},
		),
		httpRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests.",
			},
			[]string{"method", "path", "status"},
		),
		httpDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request duration in seconds.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
	}

	c.registry.MustRegister(
		c.resolutions,
		c.resolutionDuration,
		c.publishes,
		c.devices,
		c.generation,
		c.buildDuration,
		c.httpRequests,
		c.httpDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	// Both outcomes are exported before the first observation
	c.resolutions.WithLabelValues(OutcomeResolved)
	c.resolutions.WithLabelValues(OutcomeUnresolved)
	return c
}

// Registry returns the registry the metrics are registered on.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

// Resolved implements discovery.Observer.
func (c *Collector) Resolved(res discovery.Resolution) {
	outcome := OutcomeResolved
	if res.Err != nil {
		outcome = OutcomeUnresolved
	}
	c.resolutions.WithLabelValues(outcome).Inc()
	c.resolutionDuration.Observe(res.Elapsed.Seconds())
}

// Published implements discovery.Observer.
func (c *Collector) Published(snap *discovery.Snapshot, elapsed time.Duration) {
	c.publishes.Inc()
	c.devices.Set(float64(snap.Len()))
	c.generation.Set(float64(snap.Generation))
	c.buildDuration.Observe(elapsed.Seconds())
}

// ObserveHTTP records one served request.
func (c *Collector) ObserveHTTP(method, path string, status int, elapsed time.Duration) {
	c.httpRequests.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	c.httpDuration.WithLabelValues(method, path).Observe(elapsed.Seconds())
}
