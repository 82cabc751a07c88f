package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"
)

// Metrics tracks operational counters across the engine.
var metrics struct {
	TranscriptRequests atomic.Int64
	LanguagesRequests  atomic.Int64
	BatchRequests      atomic.Int64
	BatchItems         atomic.Int64
	UpstreamRequests   atomic.Int64
	UpstreamErrors     atomic.Int64
	ErrNotFound        atomic.Int64
	ErrDisabled        atomic.Int64
	ErrRateLimited     atomic.Int64
	ErrInvalid         atomic.Int64
	ErrInternal        atomic.Int64
}

// metricKeys fixes the output order of FormatMetrics.
var metricKeys = []string{
	"transcript_requests", "languages_requests",
	"batch_requests", "batch_items",
	"upstream_requests", "upstream_errors",
	"errors_not_found", "errors_disabled", "errors_rate_limited",
	"errors_invalid", "errors_internal",
	"cache_hits", "cache_misses",
}

// GetMetrics returns a snapshot of all metrics including cache stats.
func GetMetrics() map[string]int64 {
	hits, misses := CacheStats()
	return map[string]int64{
		"transcript_requests": metrics.TranscriptRequests.Load(),
		"languages_requests":  metrics.LanguagesRequests.Load(),
		"batch_requests":      metrics.BatchRequests.Load(),
		"batch_items":         metrics.BatchItems.Load(),
		"upstream_requests":   metrics.UpstreamRequests.Load(),
		"upstream_errors":     metrics.UpstreamErrors.Load(),
		"errors_not_found":    metrics.ErrNotFound.Load(),
		"errors_disabled":     metrics.ErrDisabled.Load(),
		"errors_rate_limited": metrics.ErrRateLimited.Load(),
		"errors_invalid":      metrics.ErrInvalid.Load(),
		"errors_internal":     metrics.ErrInternal.Load(),
		"cache_hits":          hits,
		"cache_misses":        misses,
	}
}

// FormatMetrics returns metrics as a simple text format for HTTP endpoint.
func FormatMetrics() string {
	m := GetMetrics()
	var sb strings.Builder
	for _, k := range metricKeys {
		fmt.Fprintf(&sb, "%s %d\n", k, m[k])
	}
	return sb.String()
}

// Incrementors for the transcripts sub-package.
func IncrTranscriptRequests() { metrics.TranscriptRequests.Add(1) }
func IncrLanguagesRequests()  { metrics.LanguagesRequests.Add(1) }
func IncrBatchRequests(items int) {
	metrics.BatchRequests.Add(1)
	metrics.BatchItems.Add(int64(items))
}

// Incrementors for the sources sub-package.
func IncrUpstreamRequests() { metrics.UpstreamRequests.Add(1) }
func IncrUpstreamErrors()   { metrics.UpstreamErrors.Add(1) }

// IncrFailure counts a failed operation under its error kind name
// (not_found, disabled, rate_limited, invalid, internal).
func IncrFailure(kind string) {
	switch kind {
	case "not_found":
		metrics.ErrNotFound.Add(1)
	case "disabled":
		metrics.ErrDisabled.Add(1)
	case "rate_limited":
		metrics.ErrRateLimited.Add(1)
	case "invalid":
		metrics.ErrInvalid.Add(1)
	default:
		metrics.ErrInternal.Add(1)
	}
}

// TrackOperation logs a warning if an operation takes longer than threshold.
func TrackOperation(ctx context.Context, name string, fn func(context.Context) error) error {
	start := time.Now()
	err := fn(ctx)
	elapsed := time.Since(start)
	if elapsed > 5*time.Second {
		slog.Warn("slow operation", slog.String("op", name), slog.Duration("elapsed", elapsed))
	}
	return err
}
