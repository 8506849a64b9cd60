package oteladapters_test

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AntonStoeckl/library-lending-simulation/circulation"
	"github.com/AntonStoeckl/library-lending-simulation/oteladapters"
	. "github.com/AntonStoeckl/library-lending-simulation/testutil/helper" //nolint:revive
)

func Test_InProcessTelemetry_DigestOfALendingSession(t *testing.T) {
	// setup
	telemetry := oteladapters.NewInProcessTelemetry("librarysim-test")
	defer func() { _ = telemetry.Shutdown(context.Background()) }()

	// arrange
	service := GivenLendingService(t, []circulation.Book{GivenBook(t, "Dune", "Frank Herbert", 1)},
		circulation.WithMetrics(telemetry.Metrics()),
		circulation.WithTracing(telemetry.Tracing()),
	)
	ctx := context.Background()

	// act
	GivenBorrowed(t, service, "Dune", "P1")
	_, err := service.Borrow(ctx, "Dune", "P2")
	require.NoError(t, err)
	_, err = service.ReturnBook(ctx, "Dune", "P1")
	require.NoError(t, err)

	digest, digestErr := telemetry.Digest(ctx)

	// assert
	require.NoError(t, digestErr)
	assert.Equal(t, oteladapters.SpanCount{Total: 2}, digest.Spans["lending.borrow"])
	assert.Equal(t, oteladapters.SpanCount{Total: 1}, digest.Spans["lending.return"])
	assert.Equal(t, uint64(2), digest.Histograms["lending_borrow_duration_seconds"].Count)
	assert.Equal(t, uint64(1), digest.Histograms["lending_return_duration_seconds"].Count)
	assert.Equal(t, int64(4), digest.Counters["lending_operations_total"], "add_book plus three lending operations")
	assert.InDelta(t, 0.0, digest.Gauges["lending_loans_outstanding"], 0.0001)
}

func Test_Digest_WriteTo(t *testing.T) {
	// arrange
	digest := oteladapters.Digest{
		Spans:      map[string]oteladapters.SpanCount{"lending.borrow": {Total: 4, Errors: 1}},
		Counters:   map[string]int64{"lending_operations_total": 4},
		Histograms: map[string]oteladapters.HistogramDigest{"lending_borrow_duration_seconds": {Count: 4, SumSeconds: 0.004}},
		Gauges:     map[string]float64{"lending_loans_outstanding": 2},
	}
	buf := bytes.Buffer{}

	// act
	n, err := digest.WriteTo(&buf)

	// assert
	require.NoError(t, err)
	assert.Equal(t, int64(buf.Len()), n)
	output := buf.String()
	assert.Contains(t, output, "Telemetry")
	assert.Contains(t, output, "lending.borrow")
	assert.Contains(t, output, "errors: 1")
	assert.Contains(t, output, "mean: 1.000ms")
	assert.Contains(t, output, "lending_loans_outstanding")
}
