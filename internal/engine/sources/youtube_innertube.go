package sources

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/anatolykoptev/go_transcript/internal/engine"
)

// YouTube Innertube API: low-level constants, types, and HTTP primitives.
// All higher-level logic lives in youtube_transcript.go.

const (
	ytWatchPath      = "/watch"
	ytPlayerPath     = "/youtubei/v1/player"
	ytAndroidVersion = "20.10.38"
	ytAndroidUA      = "com.google.android.youtube/" + ytAndroidVersion + " (Linux; U; Android 11) gzip"

	// ytInitialPlayerResponseMarker marks the start of the player response JSON in watch page HTML.
	ytInitialPlayerResponseMarker = "ytInitialPlayerResponse = "
	ytRecaptchaMarker             = `class="g-recaptcha"`

	maxWatchPageBytes = 6 * 1024 * 1024
	maxPlayerBytes    = 3 * 1024 * 1024
	maxTimedTextBytes = 4 * 1024 * 1024
)

// --- ANDROID client types (/player endpoint) ---

type innertubeReq struct {
	VideoID        string       `json:"videoId"`
	Context        innertubeCtx `json:"context"`
	RacyCheckOk    bool         `json:"racyCheckOk"`
	ContentCheckOk bool         `json:"contentCheckOk"`
}

type innertubeCtx struct {
	Client innertubeClient `json:"client"`
}

type innertubeClient struct {
	ClientName        string `json:"clientName"`
	ClientVersion     string `json:"clientVersion"`
	AndroidSdkVersion int    `json:"androidSdkVersion,omitempty"`
	Hl                string `json:"hl,omitempty"`
	Gl                string `json:"gl,omitempty"`
}

// innertubePlayerResp is the subset of a player response we read, shared by the
// watch page (ytInitialPlayerResponse) and the ANDROID /player endpoint.
type innertubePlayerResp struct {
	Captions *struct {
		PlayerCaptionsTracklistRenderer struct {
			CaptionTracks []captionTrack `json:"captionTracks"`
		} `json:"playerCaptionsTracklistRenderer"`
	} `json:"captions"`
	PlayabilityStatus *playabilityStatus `json:"playabilityStatus"`
}

type playabilityStatus struct {
	Status string `json:"status"`
	Reason string `json:"reason"`
}

type captionTrack struct {
	BaseURL        string   `json:"baseUrl"`
	Name           textRuns `json:"name"`
	LanguageCode   string   `json:"languageCode"`
	Kind           string   `json:"kind"` // "asr" = auto-generated
	IsTranslatable bool     `json:"isTranslatable"`
}

// textRuns is YouTube's localized text: either simpleText or a list of runs.
type textRuns struct {
	SimpleText string `json:"simpleText"`
	Runs       []struct {
		Text string `json:"text"`
	} `json:"runs"`
}

func (t textRuns) String() string {
	if t.SimpleText != "" {
		return t.SimpleText
	}
	var sb strings.Builder
	for _, r := range t.Runs {
		sb.WriteString(r.Text)
	}
	return sb.String()
}

// tracks returns the caption tracks, or nil when the response has none.
func (p *innertubePlayerResp) tracks() []captionTrack {
	if p == nil || p.Captions == nil {
		return nil
	}
	return p.Captions.PlayerCaptionsTracklistRenderer.CaptionTracks
}

// playable reports whether playabilityStatus is OK (or absent).
func (p *innertubePlayerResp) playable() bool {
	return p.PlayabilityStatus == nil || p.PlayabilityStatus.Status == "" || p.PlayabilityStatus.Status == "OK"
}

// hasUsableTracks reports whether at least one track can be fetched server-side.
func (p *innertubePlayerResp) hasUsableTracks() bool {
	for _, t := range p.tracks() {
		if !needsPoToken(t.BaseURL) {
			return true
		}
	}
	return false
}

// --- Timedtext XML types ---

// ytTimedText covers both the legacy format (<transcript><text start dur>, seconds)
// and format 3 (<timedtext><body><p t d>, milliseconds).
type ytTimedText struct {
	Lines []ytLine `xml:"text"`
	Body  *struct {
		Paras []ytPara `xml:"p"`
	} `xml:"body"`
}

type ytLine struct {
	Start string `xml:"start,attr"`
	Dur   string `xml:"dur,attr"`
	Text  string `xml:",chardata"`
}

type ytPara struct {
	T    int64  `xml:"t,attr"`
	D    int64  `xml:"d,attr"`
	Text string `xml:",innerxml"`
}

// extractJSON extracts a complete JSON object starting at b[0] == '{' by tracking brace depth.
func extractJSON(b []byte) []byte {
	if len(b) == 0 || b[0] != '{' {
		return nil
	}
	depth := 0
	inStr := false
	escaped := false
	for i, c := range b {
		if inStr {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inStr = false
			}
			continue
		}
		switch c {
		case '"':
			inStr = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return b[:i+1]
			}
		}
	}
	return nil
}

// upstreamStatusError is a non-200 response from YouTube other than 429.
type upstreamStatusError struct {
	StatusCode int
	Snippet    string
}

func (e *upstreamStatusError) Error() string {
	if engine.IsRetryableStatus(e.StatusCode) {
		return fmt.Sprintf("upstream temporarily unavailable (HTTP %d)", e.StatusCode)
	}
	if e.Snippet == "" {
		return fmt.Sprintf("upstream HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("upstream HTTP %d: %s", e.StatusCode, e.Snippet)
}

// do sends one logical upstream request: waits on the shared limiter, retries
// transient network errors and 5xx responses, and turns 429 into
// ErrRequestBlocked without retrying. On success the caller owns resp.Body.
func (y *YouTube) do(ctx context.Context, build func() (*http.Request, error)) (*http.Response, error) {
	if err := engine.WaitUpstream(ctx); err != nil {
		return nil, err
	}
	engine.IncrUpstreamRequests()

	resp, err := engine.RetryHTTP(ctx, engine.DefaultRetryConfig, func() (*http.Response, error) {
		req, err := build()
		if err != nil {
			return nil, err
		}
		resp, err := y.client().Do(req)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode == http.StatusTooManyRequests {
			resp.Body.Close()
			return nil, fmt.Errorf("%w: upstream HTTP 429", ErrRequestBlocked)
		}
		return resp, nil
	})
	if err != nil {
		engine.IncrUpstreamErrors()
		return nil, err
	}

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		resp.Body.Close()
		engine.IncrUpstreamErrors()
		return nil, &upstreamStatusError{
			StatusCode: resp.StatusCode,
			Snippet:    engine.TruncateRunes(strings.TrimSpace(string(snippet)), 120, "..."),
		}
	}
	return resp, nil
}

// postAndroidPlayer POSTs to the Innertube /player endpoint as the ANDROID client.
func (y *YouTube) postAndroidPlayer(ctx context.Context, videoID string) (*innertubePlayerResp, error) {
	reqBody, err := json.Marshal(innertubeReq{
		VideoID: videoID,
		Context: innertubeCtx{
			Client: innertubeClient{
				ClientName:        "ANDROID",
				ClientVersion:     ytAndroidVersion,
				AndroidSdkVersion: 30,
				Hl:                "en",
				Gl:                "US",
			},
		},
		RacyCheckOk:    true,
		ContentCheckOk: true,
	})
	if err != nil {
		return nil, err
	}

	resp, err := y.do(ctx, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, y.baseURL()+ytPlayerPath+"?prettyPrint=false", bytes.NewReader(reqBody))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("User-Agent", ytAndroidUA)
		req.Header.Set("X-Youtube-Client-Name", "3")
		req.Header.Set("X-Youtube-Client-Version", ytAndroidVersion)
		return req, nil
	})
	if err != nil {
		return nil, fmt.Errorf("android innertube: %w", err)
	}
	defer resp.Body.Close()

	var playerResp innertubePlayerResp
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxPlayerBytes)).Decode(&playerResp); err != nil {
		return nil, fmt.Errorf("decode player: %w", err)
	}
	return &playerResp, nil
}
