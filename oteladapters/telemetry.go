package oteladapters

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"text/tabwriter"

	"go.opentelemetry.io/otel/codes"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// InProcessTelemetry holds SDK meter and tracer providers that keep their data in memory.
// Metrics are pulled with a manual reader, spans are aggregated by name as they end.
type InProcessTelemetry struct {
	reader         *sdkmetric.ManualReader
	meterProvider  *sdkmetric.MeterProvider
	tracerProvider *sdktrace.TracerProvider
	spans          *spanAggregator
	metrics        *MetricsCollector
	tracing        *TracingCollector
}

// NewInProcessTelemetry creates the providers and the collectors built on them.
func NewInProcessTelemetry(instrumentationName string) *InProcessTelemetry {
	reader := sdkmetric.NewManualReader()
	meterProvider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	spans := newSpanAggregator()
	tracerProvider := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithSpanProcessor(spans),
	)

	return &InProcessTelemetry{
		reader:         reader,
		meterProvider:  meterProvider,
		tracerProvider: tracerProvider,
		spans:          spans,
		metrics:        NewMetricsCollector(meterProvider.Meter(instrumentationName)),
		tracing:        NewTracingCollector(tracerProvider.Tracer(instrumentationName)),
	}
}

// Metrics returns the metrics collector recording into the in-memory reader.
func (t *InProcessTelemetry) Metrics() *MetricsCollector {
	return t.metrics
}

// Tracing returns the tracing collector whose spans are aggregated in memory.
func (t *InProcessTelemetry) Tracing() *TracingCollector {
	return t.tracing
}

// Digest collects the current metrics and span counts.
func (t *InProcessTelemetry) Digest(ctx context.Context) (Digest, error) {
	rm := metricdata.ResourceMetrics{}
	if err := t.reader.Collect(ctx, &rm); err != nil {
		return Digest{}, err
	}

	digest := Digest{
		Spans:      t.spans.counts(),
		Counters:   make(map[string]int64),
		Histograms: make(map[string]HistogramDigest),
		Gauges:     make(map[string]float64),
	}

	for _, scopeMetrics := range rm.ScopeMetrics {
		for _, m := range scopeMetrics.Metrics {
			switch data := m.Data.(type) {
			case metricdata.Sum[int64]:
				for _, dp := range data.DataPoints {
					digest.Counters[m.Name] += dp.Value
				}

			case metricdata.Histogram[float64]:
				h := digest.Histograms[m.Name]
				for _, dp := range data.DataPoints {
					h.Count += dp.Count
					h.SumSeconds += dp.Sum
				}
				digest.Histograms[m.Name] = h

			case metricdata.Gauge[float64]:
				for _, dp := range data.DataPoints {
					digest.Gauges[m.Name] = dp.Value
				}
			}
		}
	}

	return digest, nil
}

// Shutdown shuts down both providers.
func (t *InProcessTelemetry) Shutdown(ctx context.Context) error {
	return errors.Join(t.tracerProvider.Shutdown(ctx), t.meterProvider.Shutdown(ctx))
}

// Digest summarizes what a run recorded. Counters are summed over all label sets.
type Digest struct {
	Spans      map[string]SpanCount
	Counters   map[string]int64
	Histograms map[string]HistogramDigest
	Gauges     map[string]float64
}

// SpanCount counts ended spans of one name.
type SpanCount struct {
	Total  int
	Errors int
}

// HistogramDigest is the number and sum of recorded durations.
type HistogramDigest struct {
	Count      uint64
	SumSeconds float64
}

// WriteTo prints the digest as a table.
func (d Digest) WriteTo(w io.Writer) (int64, error) {
	b := strings.Builder{}
	b.WriteString("Telemetry\n")

	tw := tabwriter.NewWriter(&b, 0, 4, 2, ' ', 0)
	for _, name := range sortedKeys(d.Spans) {
		fmt.Fprintf(tw, "  span\t%s\t%d\terrors: %d\n", name, d.Spans[name].Total, d.Spans[name].Errors)
	}

	for _, name := range sortedKeys(d.Counters) {
		fmt.Fprintf(tw, "  counter\t%s\t%d\t\n", name, d.Counters[name])
	}

	for _, name := range sortedKeys(d.Histograms) {
		h := d.Histograms[name]
		mean := 0.0
		if h.Count > 0 {
			mean = h.SumSeconds / float64(h.Count) * 1000
		}
		fmt.Fprintf(tw, "  histogram\t%s\t%d\tmean: %.3fms\n", name, h.Count, mean)
	}

	for _, name := range sortedKeys(d.Gauges) {
		fmt.Fprintf(tw, "  gauge\t%s\t%g\t\n", name, d.Gauges[name])
	}
	_ = tw.Flush()

	n, err := io.WriteString(w, b.String())

	return int64(n), err
}

// spanAggregator is a SpanProcessor that counts ended spans by name.
type spanAggregator struct {
	mu     sync.Mutex
	byName map[string]SpanCount
}

func newSpanAggregator() *spanAggregator {
	return &spanAggregator{byName: make(map[string]SpanCount)}
}

func (a *spanAggregator) OnStart(context.Context, sdktrace.ReadWriteSpan) {}

func (a *spanAggregator) OnEnd(span sdktrace.ReadOnlySpan) {
	a.mu.Lock()
	defer a.mu.Unlock()

	count := a.byName[span.Name()]
	count.Total++
	if span.Status().Code == codes.Error {
		count.Errors++
	}
	a.byName[span.Name()] = count
}

func (a *spanAggregator) Shutdown(context.Context) error { return nil }

func (a *spanAggregator) ForceFlush(context.Context) error { return nil }

func (a *spanAggregator) counts() map[string]SpanCount {
	a.mu.Lock()
	defer a.mu.Unlock()

	counts := make(map[string]SpanCount, len(a.byName))
	for name, count := range a.byName {
		counts[name] = count
	}

	return counts
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	return keys
}

var _ sdktrace.SpanProcessor = (*spanAggregator)(nil)
