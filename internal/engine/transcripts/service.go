// Package transcripts implements the transcript operations served over REST and MCP:
// single fetch, language listing, and batch fetch with per-item failure isolation.
package transcripts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/anatolykoptev/go_transcript/internal/engine"
	"github.com/anatolykoptev/go_transcript/internal/engine/sources"
	"golang.org/x/sync/errgroup"
)

// Provider retrieves transcripts from the video platform.
// Empty langs means "default languages, then any available track".
type Provider interface {
	Fetch(ctx context.Context, videoID string, langs []string) (*engine.Transcript, error)
	List(ctx context.Context, videoID string) ([]engine.TrackInfo, error)
}

// Service wraps a Provider with timeouts, caching, metrics and error classification.
// Errors returned by Fetch and Languages are *Error.
type Service struct {
	provider    Provider
	timeout     time.Duration
	concurrency int
	maxItems    int
}

// NewService returns a Service configured from engine.Cfg.
func NewService(p Provider) *Service {
	return &Service{
		provider:    p,
		timeout:     engine.Cfg.FetchTimeout,
		concurrency: engine.Cfg.BatchConcurrency,
		maxItems:    engine.Cfg.BatchMaxItems,
	}
}

// MaxBatchItems is the largest accepted batch; 0 means unlimited.
func (s *Service) MaxBatchItems() int { return s.maxItems }

// Fetch returns the transcript for videoID in the first available language of langs.
func (s *Service) Fetch(ctx context.Context, videoID string, langs []string) (*engine.Transcript, error) {
	engine.IncrTranscriptRequests()
	return s.fetch(ctx, videoID, langs)
}

func (s *Service) fetch(ctx context.Context, videoID string, langs []string) (*engine.Transcript, error) {
	videoID = strings.TrimSpace(videoID)
	if videoID == "" {
		return nil, s.fail("fetch", videoID, fmt.Errorf("%w: video id is required", sources.ErrInvalidVideoID))
	}
	langs = engine.NormLangs(langs)

	key := engine.CacheKey("transcript", videoID, strings.Join(langs, ","))
	if tr, ok := engine.CacheLoadJSON[engine.Transcript](ctx, key); ok {
		return &tr, nil
	}

	var tr *engine.Transcript
	err := s.withTimeout(ctx, "transcript_fetch", func(ctx context.Context) error {
		var err error
		tr, err = s.provider.Fetch(ctx, videoID, langs)
		return err
	})
	if err != nil {
		return nil, s.fail("fetch", videoID, err)
	}
	if tr == nil {
		return nil, s.fail("fetch", videoID, errors.New("provider returned no transcript"))
	}
	if tr.Segments == nil {
		tr.Segments = []engine.TranscriptSegment{}
	}

	engine.CacheStoreJSON(ctx, key, *tr)
	return tr, nil
}

// Languages lists the caption tracks available for videoID.
func (s *Service) Languages(ctx context.Context, videoID string) (*engine.LanguagesOutput, error) {
	engine.IncrLanguagesRequests()

	videoID = strings.TrimSpace(videoID)
	if videoID == "" {
		return nil, s.fail("list", videoID, fmt.Errorf("%w: video id is required", sources.ErrInvalidVideoID))
	}

	key := engine.CacheKey("languages", videoID)
	if out, ok := engine.CacheLoadJSON[engine.LanguagesOutput](ctx, key); ok {
		return &out, nil
	}

	var tracks []engine.TrackInfo
	err := s.withTimeout(ctx, "transcript_list", func(ctx context.Context) error {
		var err error
		tracks, err = s.provider.List(ctx, videoID)
		return err
	})
	if err != nil {
		return nil, s.fail("list", videoID, err)
	}
	if tracks == nil {
		tracks = []engine.TrackInfo{}
	}

	out := engine.LanguagesOutput{VideoID: videoID, AvailableTranscripts: tracks}
	engine.CacheStoreJSON(ctx, key, out)
	return &out, nil
}

// Batch fetches every item independently. The result has one entry per item, in
// input order; a failing item yields Success=false with its error text and never
// affects the others.
func (s *Service) Batch(ctx context.Context, items []engine.BatchRequestItem) []engine.BatchResultItem {
	engine.IncrBatchRequests(len(items))
	results := make([]engine.BatchResultItem, len(items))

	var g errgroup.Group
	g.SetLimit(max(s.concurrency, 1))
	for i, item := range items {
		g.Go(func() error {
			results[i] = s.batchItem(ctx, item)
			return nil
		})
	}
	_ = g.Wait()

	slog.Info("transcripts: batch done",
		slog.Int("items", len(items)), slog.Int("failed", countFailed(results)))
	return results
}

func (s *Service) batchItem(ctx context.Context, item engine.BatchRequestItem) (res engine.BatchResultItem) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("transcripts: batch item panic", slog.String("id", item.ID), slog.Any("panic", r))
			res = engine.BatchResultItem{Error: fmt.Sprintf("An error occurred while fetching the transcript: %v", r)}
		}
	}()

	tr, err := s.fetch(ctx, item.ID, item.Languages)
	if err != nil {
		return engine.BatchResultItem{Error: Detail(err)}
	}
	return engine.BatchResultItem{
		Success:    true,
		Transcript: tr.Segments,
		Language:   tr.LanguageCode,
	}
}

// withTimeout runs fn under the per-call timeout.
func (s *Service) withTimeout(ctx context.Context, op string, fn func(context.Context) error) error {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	return engine.TrackOperation(ctx, op, fn)
}

// fail classifies err, records it and returns the *Error.
func (s *Service) fail(op, videoID string, err error) *Error {
	e := newError(op, videoID, err)
	engine.IncrFailure(e.Kind.String())
	if e.Kind == KindInternal {
		slog.Error("transcripts: "+op+" failed", slog.String("id", videoID), slog.Any("error", err))
	} else {
		slog.Info("transcripts: "+op+" failed", slog.String("id", videoID),
			slog.String("kind", e.Kind.String()), slog.Any("error", err))
	}
	return e
}

func countFailed(results []engine.BatchResultItem) int {
	n := 0
	for _, r := range results {
		if !r.Success {
			n++
		}
	}
	return n
}
