package sources

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/anatolykoptev/go_transcript/internal/engine"
)

// YouTube transcript fetching.
// Primary:  watch page ytInitialPlayerResponse → captionTracks → timedtext XML
// Fallback: ANDROID Innertube /player → captionTracks (when the page has no usable tracks)
// Last:     WEB /next → /get_transcript engagement panel (any-language requests only)

// errPoTokenOnly reports that every caption track needs a browser PoToken.
var errPoTokenOnly = errors.New("all caption tracks require a PoToken")

// Fetch returns the transcript of videoID in the first available language of langs.
// With no langs it tries the configured default languages and then falls back to
// any available track (manual before auto-generated).
func (y *YouTube) Fetch(ctx context.Context, videoID string, langs []string) (*engine.Transcript, error) {
	langs = engine.NormLangs(langs)
	anyLanguage := len(langs) == 0
	if anyLanguage {
		langs = y.defaultLanguages()
	}

	tr, err := y.fetchFromTracks(ctx, videoID, langs, anyLanguage)
	if err == nil || !anyLanguage || !engagementFallbackAllowed(err) {
		return tr, err
	}

	panel, panelErr := y.fetchViaEngagementPanel(ctx, videoID)
	if panelErr != nil {
		slog.Debug("youtube: engagement panel fallback failed",
			slog.String("id", videoID), slog.Any("err", panelErr))
		return nil, err
	}
	slog.Info("youtube: transcript served from engagement panel",
		slog.String("id", videoID), slog.Any("player_err", err))
	return panel, nil
}

// engagementFallbackAllowed reports whether a player-based failure may still be
// recovered through the engagement panel. Definitive answers are not retried.
func engagementFallbackAllowed(err error) bool {
	switch {
	case errors.Is(err, ErrInvalidVideoID),
		errors.Is(err, ErrVideoUnavailable),
		errors.Is(err, ErrTranscriptsDisabled),
		errors.Is(err, ErrNoTranscriptFound),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return false
	}
	return true
}

// fetchFromTracks resolves the caption tracks of videoID and downloads the best one.
func (y *YouTube) fetchFromTracks(ctx context.Context, videoID string, langs []string, anyLanguage bool) (*engine.Transcript, error) {
	player, err := y.player(ctx, videoID)
	if err != nil {
		return nil, err
	}
	tracks, err := captionTracks(videoID, player)
	if err != nil {
		return nil, err
	}

	usable := make([]captionTrack, 0, len(tracks))
	for _, t := range tracks {
		if !needsPoToken(t.BaseURL) {
			usable = append(usable, t)
		}
	}
	if len(usable) == 0 {
		return nil, fmt.Errorf("video %s: %w", videoID, errPoTokenOnly)
	}

	track, ok := pickBestTrack(usable, langs, anyLanguage)
	if !ok {
		return nil, fmt.Errorf("%w: video %s has no transcript in %s (available: %s)",
			ErrNoTranscriptFound, videoID, strings.Join(langs, ", "), strings.Join(trackCodes(tracks), ", "))
	}

	segments, err := y.fetchTimedText(ctx, track.BaseURL)
	if err != nil {
		return nil, err
	}
	return &engine.Transcript{
		VideoID:      videoID,
		Language:     track.Name.String(),
		LanguageCode: track.LanguageCode,
		IsGenerated:  track.Kind == "asr",
		Segments:     segments,
	}, nil
}

// List returns every caption track of videoID in the order YouTube reports them.
func (y *YouTube) List(ctx context.Context, videoID string) ([]engine.TrackInfo, error) {
	player, err := y.player(ctx, videoID)
	if err != nil {
		return nil, err
	}
	tracks, err := captionTracks(videoID, player)
	if err != nil {
		return nil, err
	}
	out := make([]engine.TrackInfo, 0, len(tracks))
	for _, t := range tracks {
		out = append(out, engine.TrackInfo{
			Language:       t.Name.String(),
			LanguageCode:   t.LanguageCode,
			IsGenerated:    t.Kind == "asr",
			IsTranslatable: t.IsTranslatable,
		})
	}
	return out, nil
}

// validateVideoID rejects empty IDs and full URLs.
func validateVideoID(videoID string) error {
	if strings.TrimSpace(videoID) == "" {
		return fmt.Errorf("%w: video id is empty", ErrInvalidVideoID)
	}
	if strings.HasPrefix(videoID, "http://") || strings.HasPrefix(videoID, "https://") {
		return fmt.Errorf("%w: %q is a URL, pass the video ID instead", ErrInvalidVideoID, videoID)
	}
	return nil
}

// player discovers the player response for videoID, preferring the watch page and
// falling back to the ANDROID client when the page has no usable caption tracks.
func (y *YouTube) player(ctx context.Context, videoID string) (*innertubePlayerResp, error) {
	if err := validateVideoID(videoID); err != nil {
		return nil, err
	}

	page, pageErr := y.watchPagePlayer(ctx, videoID)
	if pageErr == nil && (!page.playable() || page.hasUsableTracks()) {
		return page, nil
	}
	if errors.Is(pageErr, ErrRequestBlocked) {
		return nil, pageErr
	}
	if pageErr != nil {
		slog.Warn("youtube: watch page failed, trying android player",
			slog.String("id", videoID), slog.Any("err", pageErr))
	}

	android, err := y.postAndroidPlayer(ctx, videoID)
	switch {
	case err == nil && (page == nil || android.hasUsableTracks()):
		return android, nil
	case page != nil:
		if err != nil {
			slog.Debug("youtube: android player failed, using watch page response",
				slog.String("id", videoID), slog.Any("err", err))
		}
		return page, nil
	default:
		return nil, errors.Join(fmt.Errorf("watch page: %w", pageErr), err)
	}
}

// watchPagePlayer scrapes the watch page HTML and decodes ytInitialPlayerResponse.
func (y *YouTube) watchPagePlayer(ctx context.Context, videoID string) (*innertubePlayerResp, error) {
	watchURL := y.baseURL() + ytWatchPath + "?v=" + url.QueryEscape(videoID)

	resp, err := y.do(ctx, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, watchURL, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("User-Agent", engine.RandomUserAgent())
		req.Header.Set("Accept-Language", "en-US,en;q=0.9")
		req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
		// Skips the EU consent interstitial.
		req.Header.Set("Cookie", "CONSENT=YES+cb")
		return req, nil
	})
	if err != nil {
		return nil, fmt.Errorf("watch page: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxWatchPageBytes))
	if err != nil {
		return nil, fmt.Errorf("read watch page: %w", err)
	}
	return parseWatchPage(videoID, body)
}

// parseWatchPage extracts the player response from watch page HTML.
func parseWatchPage(videoID string, body []byte) (*innertubePlayerResp, error) {
	idx := strings.Index(string(body), ytInitialPlayerResponseMarker)
	if idx < 0 {
		if strings.Contains(string(body), ytRecaptchaMarker) {
			return nil, fmt.Errorf("%w: captcha challenge for video %s", ErrRequestBlocked, videoID)
		}
		return nil, errors.New("ytInitialPlayerResponse not found in watch page")
	}
	jsonData := extractJSON(body[idx+len(ytInitialPlayerResponseMarker):])
	if jsonData == nil {
		return nil, errors.New("failed to extract ytInitialPlayerResponse JSON")
	}

	var playerResp innertubePlayerResp
	if err := json.Unmarshal(jsonData, &playerResp); err != nil {
		return nil, fmt.Errorf("decode ytInitialPlayerResponse: %w", err)
	}
	return &playerResp, nil
}

// captionTracks checks playability and returns the caption tracks of a player response.
func captionTracks(videoID string, p *innertubePlayerResp) ([]captionTrack, error) {
	if err := checkPlayability(videoID, p.PlayabilityStatus); err != nil {
		return nil, err
	}
	tracks := p.tracks()
	if len(tracks) == 0 {
		return nil, fmt.Errorf("%w: video %s", ErrTranscriptsDisabled, videoID)
	}
	return tracks, nil
}

// checkPlayability maps a non-OK playabilityStatus to a failure.
func checkPlayability(videoID string, ps *playabilityStatus) error {
	if ps == nil || ps.Status == "" || ps.Status == "OK" {
		return nil
	}
	reason := strings.TrimSpace(ps.Reason)
	switch {
	case strings.Contains(strings.ToLower(reason), "not a bot"):
		return fmt.Errorf("%w: %s", ErrRequestBlocked, reason)
	case ps.Status == "ERROR":
		if reason == "" {
			reason = "video is unavailable"
		}
		return fmt.Errorf("%w: video %s: %s", ErrVideoUnavailable, videoID, reason)
	default:
		return fmt.Errorf("video %s is unplayable (%s): %s", videoID, ps.Status, reason)
	}
}

// needsPoToken reports whether a caption track URL requires a PoToken (browser-only).
// Tracks with &exp=xpe cannot be fetched server-side.
func needsPoToken(baseURL string) bool {
	return strings.Contains(baseURL, "&exp=xpe")
}

// pickBestTrack selects a track for the given language preferences:
//  1. manual track in preferred order
//  2. auto-generated track in preferred order
//  3. with anyLanguage: first manual track, then first track
func pickBestTrack(tracks []captionTrack, langs []string, anyLanguage bool) (captionTrack, bool) {
	for _, lang := range langs {
		for _, t := range tracks {
			if strings.EqualFold(t.LanguageCode, lang) && t.Kind != "asr" {
				return t, true
			}
		}
	}
	for _, lang := range langs {
		for _, t := range tracks {
			if strings.EqualFold(t.LanguageCode, lang) {
				return t, true
			}
		}
	}
	if !anyLanguage || len(tracks) == 0 {
		return captionTrack{}, false
	}
	for _, t := range tracks {
		if t.Kind != "asr" {
			return t, true
		}
	}
	return tracks[0], true
}

func trackCodes(tracks []captionTrack) []string {
	codes := make([]string, 0, len(tracks))
	for _, t := range tracks {
		codes = append(codes, t.LanguageCode)
	}
	return codes
}

// fetchTimedText fetches and parses a YouTube timedtext XML caption URL.
func (y *YouTube) fetchTimedText(ctx context.Context, baseURL string) ([]engine.TranscriptSegment, error) {
	// srv3 is the richer format 3; the legacy format is simpler to parse and
	// carries the same cues.
	baseURL = strings.Replace(baseURL, "&fmt=srv3", "", 1)

	resp, err := y.do(ctx, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("User-Agent", engine.UserAgentChrome)
		req.Header.Set("Accept-Language", "en-US,en;q=0.9")
		return req, nil
	})
	if err != nil {
		return nil, fmt.Errorf("fetch timedtext: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxTimedTextBytes))
	if err != nil {
		return nil, fmt.Errorf("read timedtext: %w", err)
	}
	return parseTimedText(body)
}

// parseTimedText converts timedtext XML into ordered segments. Blank cues are
// dropped and negative offsets are clamped to zero.
func parseTimedText(body []byte) ([]engine.TranscriptSegment, error) {
	if len(strings.TrimSpace(string(body))) == 0 {
		return []engine.TranscriptSegment{}, nil
	}

	var tt ytTimedText
	if err := xml.Unmarshal(body, &tt); err != nil {
		return nil, fmt.Errorf("parse timedtext XML: %w", err)
	}

	segments := make([]engine.TranscriptSegment, 0, len(tt.Lines))
	for _, line := range tt.Lines {
		text := engine.CleanCaption(line.Text)
		if text == "" {
			continue
		}
		segments = append(segments, engine.TranscriptSegment{
			Text:     text,
			Start:    parseSeconds(line.Start),
			Duration: parseSeconds(line.Dur),
		})
	}
	if len(segments) > 0 || tt.Body == nil {
		return segments, nil
	}

	for _, p := range tt.Body.Paras {
		text := engine.CleanCaption(p.Text)
		if text == "" {
			continue
		}
		segments = append(segments, engine.TranscriptSegment{
			Text:     text,
			Start:    nonNegative(float64(p.T) / 1000),
			Duration: nonNegative(float64(p.D) / 1000),
		})
	}
	return segments, nil
}

func parseSeconds(s string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0
	}
	return nonNegative(v)
}

func nonNegative(v float64) float64 {
	if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}
