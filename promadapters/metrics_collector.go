// Package promadapters provides a Prometheus implementation of circulation.MetricsCollector.
package promadapters

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/AntonStoeckl/library-lending-simulation/circulation"
)

const (
	helpDuration = "Lending operation duration in seconds"
	helpCounter  = "Lending operation counter"
	helpValue    = "Lending current value"
)

// MetricsCollector implements circulation.MetricsCollector with Prometheus vectors:
//   - RecordDuration -> HistogramVec with the default buckets
//   - IncrementCounter -> CounterVec
//   - RecordValue -> GaugeVec
//
// A vector is registered on first use of a metric name, and the label names of that first call
// become its fixed label set. Later calls fill missing labels with "" and drop unknown ones.
type MetricsCollector struct {
	registerer prometheus.Registerer
	namespace  string

	mu         sync.Mutex
	histograms map[string]*vector[*prometheus.HistogramVec]
	counters   map[string]*vector[*prometheus.CounterVec]
	gauges     map[string]*vector[*prometheus.GaugeVec]
}

type vector[V prometheus.Collector] struct {
	vec        V
	labelNames []string
}

// Option configures a MetricsCollector.
type Option func(*MetricsCollector)

// WithNamespace prefixes every metric name with namespace and an underscore.
func WithNamespace(namespace string) Option {
	return func(m *MetricsCollector) {
		m.namespace = namespace
	}
}

// NewMetricsCollector creates a collector that registers its vectors with registerer.
func NewMetricsCollector(registerer prometheus.Registerer, options ...Option) *MetricsCollector {
	m := &MetricsCollector{
		registerer: registerer,
		histograms: make(map[string]*vector[*prometheus.HistogramVec]),
		counters:   make(map[string]*vector[*prometheus.CounterVec]),
		gauges:     make(map[string]*vector[*prometheus.GaugeVec]),
	}

	for _, option := range options {
		option(m)
	}

	return m
}

// RecordDuration observes duration in seconds.
func (m *MetricsCollector) RecordDuration(metric string, duration time.Duration, labels map[string]string) {
	m.mu.Lock()
	v, ok := m.histograms[metric]
	if !ok {
		v, ok = register(m, metric, labels, func(labelNames []string) *prometheus.HistogramVec {
			return prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: m.namespace,
				Name:      metric,
				Help:      helpDuration,
				Buckets:   prometheus.DefBuckets,
			}, labelNames)
		})
		if ok {
			m.histograms[metric] = v
		}
	}
	m.mu.Unlock()

	if !ok {
		return
	}

	v.vec.WithLabelValues(v.values(labels)...).Observe(duration.Seconds())
}

// IncrementCounter adds one to a counter.
func (m *MetricsCollector) IncrementCounter(metric string, labels map[string]string) {
	m.mu.Lock()
	v, ok := m.counters[metric]
	if !ok {
		v, ok = register(m, metric, labels, func(labelNames []string) *prometheus.CounterVec {
			return prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: m.namespace,
				Name:      metric,
				Help:      helpCounter,
			}, labelNames)
		})
		if ok {
			m.counters[metric] = v
		}
	}
	m.mu.Unlock()

	if !ok {
		return
	}

	v.vec.WithLabelValues(v.values(labels)...).Inc()
}

// RecordValue sets a gauge.
func (m *MetricsCollector) RecordValue(metric string, value float64, labels map[string]string) {
	m.mu.Lock()
	v, ok := m.gauges[metric]
	if !ok {
		v, ok = register(m, metric, labels, func(labelNames []string) *prometheus.GaugeVec {
			return prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: m.namespace,
				Name:      metric,
				Help:      helpValue,
			}, labelNames)
		})
		if ok {
			m.gauges[metric] = v
		}
	}
	m.mu.Unlock()

	if !ok {
		return
	}

	v.vec.WithLabelValues(v.values(labels)...).Set(value)
}

// register creates and registers a vector. A vector already registered under the same
// descriptor, e.g. by a second collector on the same registry, is reused.
// It reports false if the registry rejects the vector.
func register[V prometheus.Collector](
	m *MetricsCollector,
	metric string,
	labels map[string]string,
	newVec func(labelNames []string) V,
) (*vector[V], bool) {
	labelNames := sortedLabelNames(labels)
	vec := newVec(labelNames)

	if err := m.registerer.Register(vec); err != nil {
		are := prometheus.AlreadyRegisteredError{}
		if !errors.As(err, &are) {
			return nil, false
		}

		existing, ok := are.ExistingCollector.(V)
		if !ok {
			return nil, false
		}
		vec = existing
	}

	return &vector[V]{vec: vec, labelNames: labelNames}, true
}

func (v *vector[V]) values(labels map[string]string) []string {
	values := make([]string, len(v.labelNames))
	for i, name := range v.labelNames {
		values[i] = labels[name]
	}

	return values
}

func sortedLabelNames(labels map[string]string) []string {
	names := make([]string, 0, len(labels))
	for name := range labels {
		names = append(names, name)
	}
	sort.Strings(names)

	return names
}

var _ circulation.MetricsCollector = (*MetricsCollector)(nil)
