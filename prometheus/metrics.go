// Package prometheus exposes delivery and run metrics in the Prometheus
// exposition format.
package prometheus

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/fwojciec/harvest"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "harvest"

// Delivery results used as the "result" label.
const (
	ResultSuccess  = "success"
	ResultRejected = "rejected"
	ResultError    = "error"
)

// Metrics holds the collectors for one process. Each Metrics owns its
// registry, so tests can create as many as they like.
type Metrics struct {
	registry *prometheus.Registry
	source   string

	deliveries *prometheus.CounterVec
	units      *prometheus.CounterVec
	latency    *prometheus.HistogramVec
	pages      *prometheus.CounterVec
	status     *prometheus.GaugeVec

	mu    sync.Mutex
	queue func() int
}

// NewMetrics creates metrics labelled with source and registers them
// alongside the Go and process collectors.
func NewMetrics(source string) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		source:   source,
		deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deliveries_total",
			Help:      "Delivery attempts by result.",
		}, []string{"source", "result"}),
		units: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "units_total",
			Help:      "Sub-units (photos) reported by the ingest API, by kind.",
		}, []string{"source", "kind"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "delivery_duration_seconds",
			Help:      "Time spent delivering one item.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"source"}),
		pages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pages_total",
			Help:      "Pages fully processed by the delivery worker.",
		}, []string{"source"}),
		status: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "status",
			Help:      "1 for the current worker status, 0 otherwise.",
		}, []string{"status"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.deliveries,
		m.units,
		m.latency,
		m.pages,
		m.status,
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_depth",
			Help:      "Items waiting in the delivery queue.",
		}, m.queueDepth),
	)
	m.SetStatus(harvest.StatusIdle)
	return m
}

// Handler returns an HTTP handler for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// Registry returns the Prometheus registry for custom registration.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveQueue sets the function reporting the queue depth. A new run
// replaces the previous run's queue; nil reports zero.
func (m *Metrics) ObserveQueue(fn func() int) {
	m.mu.Lock()
	m.queue = fn
	m.mu.Unlock()
}

func (m *Metrics) queueDepth() float64 {
	m.mu.Lock()
	fn := m.queue
	m.mu.Unlock()
	if fn == nil {
		return 0
	}
	return float64(fn())
}

// SetStatus marks status as current. It matches control.WithStatusHook.
func (m *Metrics) SetStatus(status harvest.Status) {
	for _, s := range []harvest.Status{harvest.StatusIdle, harvest.StatusBusy} {
		v := 0.0
		if s == status {
			v = 1
		}
		m.status.WithLabelValues(string(s)).Set(v)
	}
}

// PageDone counts a processed page. It matches harvest.ProgressFunc.
func (m *Metrics) PageDone(harvest.Stats) {
	m.pages.WithLabelValues(m.source).Inc()
}

// Deliverer wraps next, recording the result, units and latency of
// every delivery.
func (m *Metrics) Deliverer(next harvest.Deliverer) harvest.Deliverer {
	return harvest.DeliverFunc(func(ctx context.Context, item *harvest.Item) (harvest.Outcome, error) {
		begin := time.Now()
		out, err := next.Deliver(ctx, item)
		m.latency.WithLabelValues(m.source).Observe(time.Since(begin).Seconds())

		result := ResultSuccess
		switch {
		case err != nil:
			result = ResultError
		case !out.Success:
			result = ResultRejected
		}
		m.deliveries.WithLabelValues(m.source, result).Inc()
		if out.Delivered > 0 {
			m.units.WithLabelValues(m.source, "delivered").Add(float64(out.Delivered))
		}
		if out.Failed > 0 {
			m.units.WithLabelValues(m.source, "failed").Add(float64(out.Failed))
		}
		return out, err
	})
}
