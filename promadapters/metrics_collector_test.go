package promadapters_test

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AntonStoeckl/library-lending-simulation/circulation"
	"github.com/AntonStoeckl/library-lending-simulation/promadapters"
	. "github.com/AntonStoeckl/library-lending-simulation/testutil/helper" //nolint:revive
)

func gather(t *testing.T, registry *prometheus.Registry, name string) *dto.MetricFamily {
	t.Helper()

	families, err := registry.Gather()
	require.NoError(t, err)

	for _, family := range families {
		if family.GetName() == name {
			return family
		}
	}

	t.Fatalf("metric family %s not found", name)
	return nil
}

func labelValue(metric *dto.Metric, name string) string {
	for _, pair := range metric.GetLabel() {
		if pair.GetName() == name {
			return pair.GetValue()
		}
	}

	return ""
}

func Test_MetricsCollector_RecordDuration(t *testing.T) {
	// arrange
	registry := prometheus.NewRegistry()
	collector := promadapters.NewMetricsCollector(registry)

	// act
	collector.RecordDuration("lending_borrow_duration_seconds", 250*time.Millisecond, map[string]string{
		"operation": "borrow",
		"status":    "success",
	})

	// assert
	family := gather(t, registry, "lending_borrow_duration_seconds")
	assert.Equal(t, dto.MetricType_HISTOGRAM, family.GetType())
	require.Len(t, family.GetMetric(), 1)
	histogram := family.GetMetric()[0].GetHistogram()
	assert.Equal(t, uint64(1), histogram.GetSampleCount())
	assert.InDelta(t, 0.25, histogram.GetSampleSum(), 0.0001)
	assert.Equal(t, "borrow", labelValue(family.GetMetric()[0], "operation"))
}

func Test_MetricsCollector_IncrementCounter(t *testing.T) {
	// arrange
	registry := prometheus.NewRegistry()
	collector := promadapters.NewMetricsCollector(registry, promadapters.WithNamespace("librarysim"))

	// act
	collector.IncrementCounter("lending_operations_total", map[string]string{"operation": "borrow", "outcome": "success"})
	collector.IncrementCounter("lending_operations_total", map[string]string{"operation": "borrow", "outcome": "success"})
	collector.IncrementCounter("lending_operations_total", map[string]string{"operation": "return", "outcome": "not_borrowed"})

	// assert
	family := gather(t, registry, "librarysim_lending_operations_total")
	require.Len(t, family.GetMetric(), 2)

	byOutcome := make(map[string]float64)
	for _, metric := range family.GetMetric() {
		byOutcome[labelValue(metric, "outcome")] = metric.GetCounter().GetValue()
	}
	assert.InDelta(t, 2.0, byOutcome["success"], 0.0001)
	assert.InDelta(t, 1.0, byOutcome["not_borrowed"], 0.0001)
}

func Test_MetricsCollector_RecordValue_WithoutLabels(t *testing.T) {
	// arrange
	registry := prometheus.NewRegistry()
	collector := promadapters.NewMetricsCollector(registry)

	// act
	collector.RecordValue("lending_loans_outstanding", 4, nil)
	collector.RecordValue("lending_loans_outstanding", 2, nil)

	// assert
	family := gather(t, registry, "lending_loans_outstanding")
	require.Len(t, family.GetMetric(), 1)
	assert.InDelta(t, 2.0, family.GetMetric()[0].GetGauge().GetValue(), 0.0001)
}

func Test_MetricsCollector_LabelSetIsFixedAtFirstUse(t *testing.T) {
	// arrange
	registry := prometheus.NewRegistry()
	collector := promadapters.NewMetricsCollector(registry)
	collector.IncrementCounter("lending_persist_failures_total", map[string]string{"error_type": "persist_failed"})

	// act
	collector.IncrementCounter("lending_persist_failures_total", map[string]string{"error_type": "persist_failed", "extra": "x"})
	collector.IncrementCounter("lending_persist_failures_total", nil)

	// assert
	family := gather(t, registry, "lending_persist_failures_total")
	require.Len(t, family.GetMetric(), 2)
	for _, metric := range family.GetMetric() {
		require.Len(t, metric.GetLabel(), 1)
		assert.Equal(t, "error_type", metric.GetLabel()[0].GetName())
	}
}

func Test_MetricsCollector_TwoCollectorsShareARegistry(t *testing.T) {
	// arrange
	registry := prometheus.NewRegistry()
	first := promadapters.NewMetricsCollector(registry)
	second := promadapters.NewMetricsCollector(registry)

	// act
	first.IncrementCounter("lending_operations_total", map[string]string{"operation": "borrow"})
	second.IncrementCounter("lending_operations_total", map[string]string{"operation": "borrow"})

	// assert
	family := gather(t, registry, "lending_operations_total")
	require.Len(t, family.GetMetric(), 1)
	assert.InDelta(t, 2.0, family.GetMetric()[0].GetCounter().GetValue(), 0.0001)
}

func Test_MetricsCollector_WithLendingService(t *testing.T) {
	// arrange
	registry := prometheus.NewRegistry()
	service := GivenLendingService(t, []circulation.Book{GivenBook(t, "Dune", "Frank Herbert", 2)},
		circulation.WithMetrics(promadapters.NewMetricsCollector(registry)),
	)

	// act
	GivenBorrowed(t, service, "Dune", "P1")
	GivenBorrowed(t, service, "Dune", "P2")

	// assert
	histogram := gather(t, registry, "lending_borrow_duration_seconds").GetMetric()[0].GetHistogram()
	assert.Equal(t, uint64(2), histogram.GetSampleCount())
	assert.InDelta(t, 2.0, gather(t, registry, "lending_loans_outstanding").GetMetric()[0].GetGauge().GetValue(), 0.0001)
}
