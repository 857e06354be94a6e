// Package metrics exposes Prometheus collectors for the store, the search
// indexer, commit notifications and the HTTP facade.
//
// Every method is safe on a nil *Metrics, so components can be built
// without metrics in tests.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/roach88/nexus/internal/resource"
)

const namespace = "nexus"

// Metrics holds the collectors, registered on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	writes          *prometheus.CounterVec
	writeDuration   *prometheus.HistogramVec
	indexed         *prometheus.CounterVec
	indexQueue      *prometheus.GaugeVec
	notifications   *prometheus.CounterVec
	attachmentBytes prometheus.Counter
	requests        *prometheus.CounterVec
}

// New creates and registers all collectors, plus the Go runtime and
// process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		writes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "writes_total",
			Help:      "Resource store write operations by kind, operation and outcome.",
		}, []string{"kind", "op", "outcome"}),
		writeDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "write_duration_seconds",
			Help:      "Latency of resource store writes.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"op"}),
		indexed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "index",
			Name:      "revisions_total",
			Help:      "Revisions processed by the search indexer.",
		}, []string{"outcome"}),
		indexQueue: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "index",
			Name:      "queue_depth",
			Help:      "Revisions waiting to be indexed, per shard.",
		}, []string{"shard"}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notify",
			Name:      "events_total",
			Help:      "Commit notifications by outcome.",
		}, []string{"outcome"}),
		attachmentBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "attach",
			Name:      "bytes_total",
			Help:      "Attachment bytes stored.",
		}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by method, route and status.",
		}, []string{"method", "route", "status"}),
	}

	m.registry.MustRegister(
		m.writes,
		m.writeDuration,
		m.indexed,
		m.indexQueue,
		m.notifications,
		m.attachmentBytes,
		m.requests,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the registry the collectors live on.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveWrite records a store write. The outcome label is "ok" or the
// error's category.
func (m *Metrics) ObserveWrite(kind resource.Kind, op string, err error, d time.Duration) {
	if m == nil {
		return
	}
	m.writes.WithLabelValues(string(kind), op, Outcome(err)).Inc()
	m.writeDuration.WithLabelValues(op).Observe(d.Seconds())
}

// Indexed counts an indexing attempt.
func (m *Metrics) Indexed(err error) {
	if m == nil {
		return
	}
	m.indexed.WithLabelValues(Outcome(err)).Inc()
}

// SetQueueDepth reports a shard's backlog.
func (m *Metrics) SetQueueDepth(shard, depth int) {
	if m == nil {
		return
	}
	m.indexQueue.WithLabelValues(strconv.Itoa(shard)).Set(float64(depth))
}

// Notified counts a commit notification; outcome is "published", "dropped" or "failed".
func (m *Metrics) Notified(outcome string) {
	if m == nil {
		return
	}
	m.notifications.WithLabelValues(outcome).Inc()
}

// AttachmentStored adds to the stored attachment byte count.
func (m *Metrics) AttachmentStored(n int64) {
	if m == nil {
		return
	}
	m.attachmentBytes.Add(float64(n))
}

// ObserveRequest counts an HTTP request.
func (m *Metrics) ObserveRequest(method, route string, status int) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
}

// Outcome labels an operation result.
func Outcome(err error) string {
	if err == nil {
		return "ok"
	}
	return resource.CategoryOf(err).String()
}
