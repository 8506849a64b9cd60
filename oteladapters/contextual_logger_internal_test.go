package oteladapters

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/log"
)

func Test_ToLogAttributes_KeepsValueTypes(t *testing.T) {
	// act
	attrs := toLogAttributes([]any{
		"title", "Dune",
		"available_copies", 2,
		"sequence_number", uint64(7),
		"ratio", 0.5,
		"voided", true,
		"duration", 1500 * time.Millisecond,
		"error", errors.New("boom"),
	})

	// assert
	require.Len(t, attrs, 7)
	assert.True(t, log.String("title", "Dune").Equal(attrs[0]), "%v", attrs[0])
	assert.True(t, log.Int("available_copies", 2).Equal(attrs[1]), "%v", attrs[1])
	assert.True(t, log.String("sequence_number", "7").Equal(attrs[2]), "%v", attrs[2])
	assert.True(t, log.Float64("ratio", 0.5).Equal(attrs[3]), "%v", attrs[3])
	assert.True(t, log.Bool("voided", true).Equal(attrs[4]), "%v", attrs[4])
	assert.True(t, log.Int64("duration", 1500).Equal(attrs[5]), "%v", attrs[5])
	assert.True(t, log.String("error", "boom").Equal(attrs[6]), "%v", attrs[6])
}

func Test_ToLogAttributes_BadKeys(t *testing.T) {
	// act
	attrs := toLogAttributes([]any{42, "title", "Dune", "dangling"})

	// assert
	require.Len(t, attrs, 3)
	assert.True(t, log.Int(badKey, 42).Equal(attrs[0]), "%v", attrs[0])
	assert.True(t, log.String("title", "Dune").Equal(attrs[1]), "%v", attrs[1])
	assert.True(t, log.String(badKey, "dangling").Equal(attrs[2]), "%v", attrs[2])
}
