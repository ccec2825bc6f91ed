package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusMetrics is a MetricsClient backed by ad-hoc registered
// Prometheus collectors, created on first use per metric name. Labels seen
// across calls for a given name must stay consistent (a Prometheus
// requirement); mismatches are logged to the provided Logger rather than
// panicking.
type PrometheusMetrics struct {
	registry *prometheus.Registry
	logger   Logger

	mu         sync.Mutex
	counters   map[string]*prometheus.CounterVec
	histograms map[string]*prometheus.HistogramVec
	gauges     map[string]*prometheus.GaugeVec
}

// NewPrometheusMetrics creates a MetricsClient registered against registry.
// If registry is nil, prometheus.NewRegistry() is used so cachekit never
// pollutes the default global registry unless the caller explicitly passes
// it in.
func NewPrometheusMetrics(registry *prometheus.Registry, logger Logger) *PrometheusMetrics {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	if logger == nil {
		logger = NewNoopLogger()
	}
	return &PrometheusMetrics{
		registry:   registry,
		logger:     logger,
		counters:   make(map[string]*prometheus.CounterVec),
		histograms: make(map[string]*prometheus.HistogramVec),
		gauges:     make(map[string]*prometheus.GaugeVec),
	}
}

// Registry exposes the underlying registry so callers can wire
// promhttp.HandlerFor themselves.
func (p *PrometheusMetrics) Registry() *prometheus.Registry { return p.registry }

func (p *PrometheusMetrics) IncrementCounter(name string, value float64, labels map[string]string) {
	p.mu.Lock()
	c, ok := p.counters[name]
	if !ok {
		c = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cachekit",
			Name:      name,
			Help:      name + " counter",
		}, labelNames(labels))
		if err := p.registry.Register(c); err != nil {
			p.mu.Unlock()
			p.logger.Warn("failed to register counter", map[string]interface{}{"name": name, "error": err.Error()})
			return
		}
		p.counters[name] = c
	}
	p.mu.Unlock()
	c.With(labels).Add(value)
}

func (p *PrometheusMetrics) RecordHistogram(name string, value float64, labels map[string]string) {
	p.mu.Lock()
	h, ok := p.histograms[name]
	if !ok {
		h = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "cachekit",
			Name:      name,
			Help:      name + " histogram",
			Buckets:   prometheus.DefBuckets,
		}, labelNames(labels))
		if err := p.registry.Register(h); err != nil {
			p.mu.Unlock()
			p.logger.Warn("failed to register histogram", map[string]interface{}{"name": name, "error": err.Error()})
			return
		}
		p.histograms[name] = h
	}
	p.mu.Unlock()
	h.With(labels).Observe(value)
}

func (p *PrometheusMetrics) SetGauge(name string, value float64, labels map[string]string) {
	p.mu.Lock()
	g, ok := p.gauges[name]
	if !ok {
		g = prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "cachekit",
			Name:      name,
			Help:      name + " gauge",
		}, labelNames(labels))
		if err := p.registry.Register(g); err != nil {
			p.mu.Unlock()
			p.logger.Warn("failed to register gauge", map[string]interface{}{"name": name, "error": err.Error()})
			return
		}
		p.gauges[name] = g
	}
	p.mu.Unlock()
	g.With(labels).Set(value)
}

func labelNames(labels map[string]string) []string {
	names := make([]string, 0, len(labels))
	for k := range labels {
		names = append(names, k)
	}
	return names
}
