package sources

// YouTube implementation is split across files by responsibility:
//   youtube.go           : provider type, construction, failure sentinels
//   youtube_innertube.go : Innertube API types, constants, and low-level HTTP primitives
//   youtube_transcript.go: player response discovery, track selection, timedtext parsing
//   youtube_engagement.go: WEB /next + /get_transcript fallback

import (
	"errors"
	"net/http"
	"strings"

	"github.com/anatolykoptev/go_transcript/internal/engine"
)

// Failures reported by YouTube. Callers match them with errors.Is; the wrapped
// message carries the video ID and any upstream reason.
var (
	ErrInvalidVideoID      = errors.New("invalid video id")
	ErrVideoUnavailable    = errors.New("video unavailable")
	ErrTranscriptsDisabled = errors.New("transcripts disabled")
	ErrNoTranscriptFound   = errors.New("no transcript found")
	ErrRequestBlocked      = errors.New("request blocked by youtube")
)

// YouTube fetches caption tracks straight from youtube.com.
// The zero value uses engine.Cfg at call time.
type YouTube struct {
	BaseURL    string       // default engine.Cfg.YouTubeBaseURL
	HTTPClient *http.Client // default engine.Cfg.HTTPClient
	Languages  []string     // default engine.Cfg.Languages
}

// NewYouTube returns a provider bound to the current engine configuration.
func NewYouTube() *YouTube {
	return &YouTube{
		BaseURL:    engine.Cfg.YouTubeBaseURL,
		HTTPClient: engine.Cfg.HTTPClient,
		Languages:  engine.Cfg.Languages,
	}
}

func (y *YouTube) baseURL() string {
	if y.BaseURL != "" {
		return strings.TrimRight(y.BaseURL, "/")
	}
	return strings.TrimRight(engine.Cfg.YouTubeBaseURL, "/")
}

func (y *YouTube) client() *http.Client {
	if y.HTTPClient != nil {
		return y.HTTPClient
	}
	return engine.Cfg.HTTPClient
}

func (y *YouTube) defaultLanguages() []string {
	if len(y.Languages) > 0 {
		return y.Languages
	}
	return engine.Cfg.Languages
}
