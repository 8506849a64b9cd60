package oteladapters_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel/log/noop"

	"github.com/AntonStoeckl/library-lending-simulation/circulation"
	"github.com/AntonStoeckl/library-lending-simulation/oteladapters"
	. "github.com/AntonStoeckl/library-lending-simulation/testutil/helper" //nolint:revive
)

func Test_NewSlogBridgeLogger_Construction(t *testing.T) {
	logger := oteladapters.NewSlogBridgeLogger("test")
	assert.NotNil(t, logger)
}

func Test_NewSlogBridgeLoggerWithProvider_DoesNotPanicWithNoopProvider(t *testing.T) {
	// arrange
	logger := oteladapters.NewSlogBridgeLoggerWithProvider("test", noop.NewLoggerProvider())

	// act + assert
	assert.NotPanics(t, func() {
		logger.InfoContext(context.Background(), "book borrowed", "title", "Dune")
	})
}

func Test_SlogBridgeLogger_AllLevels(t *testing.T) {
	// arrange
	var buf bytes.Buffer
	handler := slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	logger := oteladapters.NewSlogBridgeLoggerWithHandler(handler)
	ctx := context.Background()

	// act
	logger.DebugContext(ctx, "debug message")
	logger.InfoContext(ctx, "info message")
	logger.WarnContext(ctx, "warn message")
	logger.ErrorContext(ctx, "error message")

	// assert
	output := buf.String()
	assert.Contains(t, output, `"level":"DEBUG","msg":"debug message"`)
	assert.Contains(t, output, `"level":"INFO","msg":"info message"`)
	assert.Contains(t, output, `"level":"WARN","msg":"warn message"`)
	assert.Contains(t, output, `"level":"ERROR","msg":"error message"`)
}

func Test_SlogBridgeLogger_AsLendingServiceLogger(t *testing.T) {
	// arrange
	var buf bytes.Buffer
	logger := oteladapters.NewSlogBridgeLoggerWithHandler(slog.NewJSONHandler(&buf, nil))
	service := GivenLendingService(t, []circulation.Book{GivenBook(t, "Dune", "Frank Herbert", 1)},
		circulation.WithContextualLogger(logger),
	)

	// act
	GivenBorrowed(t, service, "Dune", "P1")

	// assert
	assert.Contains(t, buf.String(), `"msg":"book borrowed"`)
	assert.Contains(t, buf.String(), `"patron_id":"P1"`)
}

func Test_OTelLogger_AllLevelsWithNoopLogger(t *testing.T) {
	// arrange
	logger := oteladapters.NewOTelLogger(noop.NewLoggerProvider().Logger("test"))
	ctx := context.Background()

	// act + assert
	assert.NotPanics(t, func() {
		logger.DebugContext(ctx, "debug message", "count", 1)
		logger.InfoContext(ctx, "info message", "title", "Dune")
		logger.WarnContext(ctx, "warn message", "dangling")
		logger.ErrorContext(ctx, "error message", "error", errors.New("boom"))
	})
}
