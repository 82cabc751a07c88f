package engine

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatMetricsListsAllKeys(t *testing.T) {
	out := FormatMetrics()
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, len(metricKeys))
	for i, k := range metricKeys {
		assert.True(t, strings.HasPrefix(lines[i], k+" "), "line %d = %q, want key %q", i, lines[i], k)
	}
}

func TestIncrFailureByKind(t *testing.T) {
	before := GetMetrics()

	IncrFailure("not_found")
	IncrFailure("disabled")
	IncrFailure("rate_limited")
	IncrFailure("invalid")
	IncrFailure("internal")
	IncrFailure("something-else")

	after := GetMetrics()
	assert.Equal(t, before["errors_not_found"]+1, after["errors_not_found"])
	assert.Equal(t, before["errors_disabled"]+1, after["errors_disabled"])
	assert.Equal(t, before["errors_rate_limited"]+1, after["errors_rate_limited"])
	assert.Equal(t, before["errors_invalid"]+1, after["errors_invalid"])
	assert.Equal(t, before["errors_internal"]+2, after["errors_internal"])
}

func TestIncrBatchRequests(t *testing.T) {
	before := GetMetrics()
	IncrBatchRequests(3)
	after := GetMetrics()
	assert.Equal(t, before["batch_requests"]+1, after["batch_requests"])
	assert.Equal(t, before["batch_items"]+3, after["batch_items"])
}

func TestTrackOperationReturnsError(t *testing.T) {
	want := errors.New("boom")
	err := TrackOperation(context.Background(), "test", func(context.Context) error { return want })
	assert.ErrorIs(t, err, want)
}
