package oteladapters_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/AntonStoeckl/library-lending-simulation/circulation"
	"github.com/AntonStoeckl/library-lending-simulation/oteladapters"
	. "github.com/AntonStoeckl/library-lending-simulation/testutil/helper" //nolint:revive
)

func givenTracingCollector() (*oteladapters.TracingCollector, *tracetest.InMemoryExporter) {
	exporter := tracetest.NewInMemoryExporter()
	provider := trace.NewTracerProvider(trace.WithSyncer(exporter))

	return oteladapters.NewTracingCollector(provider.Tracer("test")), exporter
}

func spanAttribute(span tracetest.SpanStub, key string) (string, bool) {
	for _, attr := range span.Attributes {
		if string(attr.Key) == key {
			return attr.Value.AsString(), true
		}
	}

	return "", false
}

func Test_TracingCollector_StartAndFinishSpan(t *testing.T) {
	// arrange
	collector, exporter := givenTracingCollector()

	// act
	ctx, span := collector.StartSpan(context.Background(), "lending.borrow", map[string]string{
		"title":     "Dune",
		"patron_id": "P1",
	})
	collector.FinishSpan(span, "success", map[string]string{"outcome": "success"})

	// assert
	assert.NotEqual(t, context.Background(), ctx)
	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "lending.borrow", spans[0].Name)
	assert.Equal(t, codes.Ok, spans[0].Status.Code)

	title, ok := spanAttribute(spans[0], "title")
	assert.True(t, ok)
	assert.Equal(t, "Dune", title)

	outcome, ok := spanAttribute(spans[0], "outcome")
	assert.True(t, ok)
	assert.Equal(t, "success", outcome)
}

func Test_TracingCollector_StatusMapping(t *testing.T) {
	testCases := []struct {
		status       string
		expectedCode codes.Code
	}{
		{status: "success", expectedCode: codes.Ok},
		{status: "ok", expectedCode: codes.Ok},
		{status: "error", expectedCode: codes.Error},
		{status: "canceled", expectedCode: codes.Error},
		{status: "timeout", expectedCode: codes.Error},
		{status: "unavailable", expectedCode: codes.Unset},
	}

	for _, tc := range testCases {
		t.Run(tc.status, func(t *testing.T) {
			// arrange
			collector, exporter := givenTracingCollector()
			_, span := collector.StartSpan(context.Background(), "lending.return", nil)

			// act
			collector.FinishSpan(span, tc.status, nil)

			// assert
			spans := exporter.GetSpans()
			require.Len(t, spans, 1)
			assert.Equal(t, tc.expectedCode, spans[0].Status.Code)
		})
	}
}

func Test_TracingCollector_UnknownStatusIsKeptAsAttribute(t *testing.T) {
	// arrange
	collector, exporter := givenTracingCollector()
	_, span := collector.StartSpan(context.Background(), "lending.borrow", nil)

	// act
	collector.FinishSpan(span, "unavailable", nil)

	// assert
	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Contains(t, spans[0].Attributes, attribute.String("status", "unavailable"))
}

func Test_TracingCollector_FinishSpan_IgnoresForeignSpanContexts(t *testing.T) {
	// arrange
	collector, exporter := givenTracingCollector()
	_, foreign := NewTracingCollectorSpy().StartSpan(context.Background(), "other", nil)

	// act
	collector.FinishSpan(foreign, "success", nil)

	// assert
	assert.Empty(t, exporter.GetSpans())
}

func Test_TracingCollector_WithLendingService(t *testing.T) {
	// arrange
	collector, exporter := givenTracingCollector()
	service := GivenLendingService(t, nil, circulation.WithTracing(collector))
	require.NoError(t, service.AddBook(context.Background(), GivenBook(t, "Dune", "Frank Herbert", 1)))

	// act
	_, err := service.Borrow(context.Background(), "Dune", "P1")
	require.NoError(t, err)
	_, err = service.ReturnBook(context.Background(), "Dune", "P1")
	require.NoError(t, err)

	// assert
	spans := exporter.GetSpans()
	require.Len(t, spans, 2)
	assert.Equal(t, "lending.borrow", spans[0].Name)
	assert.Equal(t, "lending.return", spans[1].Name)
	for _, span := range spans {
		assert.Equal(t, codes.Ok, span.Status.Code)
	}
}
