package oteladapters_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/AntonStoeckl/library-lending-simulation/oteladapters"
)

func givenMetricsCollector() (*oteladapters.MetricsCollector, *sdkmetric.ManualReader) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	return oteladapters.NewMetricsCollector(provider.Meter("test")), reader
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()

	var resourceMetrics metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &resourceMetrics), "Failed to collect metrics")

	return resourceMetrics
}

func Test_MetricsCollector_RecordDuration(t *testing.T) {
	// arrange
	collector, reader := givenMetricsCollector()

	// act
	collector.RecordDuration("lending_borrow_duration_seconds", 150*time.Millisecond, map[string]string{
		"operation": "borrow",
		"status":    "success",
	})

	// assert
	histogram := findHistogramMetric(t, collect(t, reader), "lending_borrow_duration_seconds")
	require.Len(t, histogram.DataPoints, 1)
	dataPoint := histogram.DataPoints[0]
	assert.Equal(t, uint64(1), dataPoint.Count)
	assert.InDelta(t, 0.15, dataPoint.Sum, 0.001)

	expectedAttrs := attribute.NewSet(
		attribute.String("operation", "borrow"),
		attribute.String("status", "success"),
	)
	assert.True(t, dataPoint.Attributes.Equals(&expectedAttrs))
}

func Test_MetricsCollector_IncrementCounter_SeparatesLabelSets(t *testing.T) {
	// arrange
	collector, reader := givenMetricsCollector()
	success := map[string]string{"operation": "borrow", "outcome": "success"}
	unavailable := map[string]string{"operation": "borrow", "outcome": "unavailable"}

	// act
	collector.IncrementCounter("lending_operations_total", success)
	collector.IncrementCounter("lending_operations_total", success)
	collector.IncrementCounter("lending_operations_total", unavailable)

	// assert
	counter := findCounterMetric(t, collect(t, reader), "lending_operations_total")
	require.Len(t, counter.DataPoints, 2)

	byOutcome := make(map[string]int64)
	for _, dp := range counter.DataPoints {
		outcome, _ := dp.Attributes.Value("outcome")
		byOutcome[outcome.AsString()] = dp.Value
	}
	assert.Equal(t, int64(2), byOutcome["success"])
	assert.Equal(t, int64(1), byOutcome["unavailable"])
}

func Test_MetricsCollector_RecordValue_KeepsTheLastValue(t *testing.T) {
	// arrange
	collector, reader := givenMetricsCollector()

	// act
	collector.RecordValue("lending_loans_outstanding", 3, nil)
	collector.RecordValue("lending_loans_outstanding", 5, nil)

	// assert
	gauge := findGaugeMetric(t, collect(t, reader), "lending_loans_outstanding")
	require.Len(t, gauge.DataPoints, 1)
	assert.InDelta(t, 5.0, gauge.DataPoints[0].Value, 0.0001)
}

func Test_MetricsCollector_ContextMethods(t *testing.T) {
	// arrange
	collector, reader := givenMetricsCollector()
	ctx := context.Background()

	// act
	collector.RecordDurationContext(ctx, "lending_return_duration_seconds", time.Millisecond, nil)
	collector.IncrementCounterContext(ctx, "lending_invariant_violations_total", nil)
	collector.RecordValueContext(ctx, "lending_loans_outstanding", 1, nil)

	// assert
	resourceMetrics := collect(t, reader)
	assert.Len(t, findHistogramMetric(t, resourceMetrics, "lending_return_duration_seconds").DataPoints, 1)
	assert.Equal(t, int64(1), findCounterMetric(t, resourceMetrics, "lending_invariant_violations_total").DataPoints[0].Value)
	assert.Len(t, findGaugeMetric(t, resourceMetrics, "lending_loans_outstanding").DataPoints, 1)
}

func Test_MetricsCollector_ConcurrentUse(t *testing.T) {
	// arrange
	collector, reader := givenMetricsCollector()
	wg := sync.WaitGroup{}

	// act
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				collector.IncrementCounter("lending_operations_total", map[string]string{"operation": "borrow"})
			}
		}()
	}
	wg.Wait()

	// assert
	counter := findCounterMetric(t, collect(t, reader), "lending_operations_total")
	require.Len(t, counter.DataPoints, 1)
	assert.Equal(t, int64(1000), counter.DataPoints[0].Value)
}

func findHistogramMetric(t *testing.T, resourceMetrics metricdata.ResourceMetrics, name string) *metricdata.Histogram[float64] {
	t.Helper()
	for _, scopeMetrics := range resourceMetrics.ScopeMetrics {
		for _, metric := range scopeMetrics.Metrics {
			if metric.Name == name {
				if h, ok := metric.Data.(metricdata.Histogram[float64]); ok {
					return &h
				}
			}
		}
	}
	t.Fatalf("Histogram metric %s not found", name)
	return nil
}

func findCounterMetric(t *testing.T, resourceMetrics metricdata.ResourceMetrics, name string) *metricdata.Sum[int64] {
	t.Helper()
	for _, scopeMetrics := range resourceMetrics.ScopeMetrics {
		for _, metric := range scopeMetrics.Metrics {
			if metric.Name == name {
				if c, ok := metric.Data.(metricdata.Sum[int64]); ok {
					return &c
				}
			}
		}
	}
	t.Fatalf("Counter metric %s not found", name)
	return nil
}

func findGaugeMetric(t *testing.T, resourceMetrics metricdata.ResourceMetrics, name string) *metricdata.Gauge[float64] {
	t.Helper()
	for _, scopeMetrics := range resourceMetrics.ScopeMetrics {
		for _, metric := range scopeMetrics.Metrics {
			if metric.Name == name {
				if g, ok := metric.Data.(metricdata.Gauge[float64]); ok {
					return &g
				}
			}
		}
	}
	t.Fatalf("Gauge metric %s not found", name)
	return nil
}
