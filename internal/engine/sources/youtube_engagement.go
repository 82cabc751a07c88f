package sources

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/anatolykoptev/go_transcript/internal/engine"
)

// Engagement panel transcripts: WEB /next → getTranscriptEndpoint token → /get_transcript.
// Works from datacenter IPs where the player endpoints are blocked or only expose
// PoToken tracks, but only yields YouTube's default transcript language.

const (
	ytNextPath          = "/youtubei/v1/next"
	ytGetTranscriptPath = "/youtubei/v1/get_transcript"
	ytWebVersion        = "2.20250222.10.00"
)

// getTranscriptRE extracts the continuation token from a raw /next JSON response.
var getTranscriptRE = regexp.MustCompile(`"getTranscriptEndpoint":\{"params":"([^"]+)"`)

type ytWebClientCtx struct {
	ClientName    string `json:"clientName"`
	ClientVersion string `json:"clientVersion"`
	VisitorData   string `json:"visitorData,omitempty"`
	Hl            string `json:"hl,omitempty"`
	Gl            string `json:"gl,omitempty"`
}

type ytWebUser struct {
	EnableSafetyMode bool `json:"enableSafetyMode"`
}

type ytWebReqCtx struct {
	UseSsl bool `json:"useSsl"`
}

type ytTranscriptSegment struct {
	TranscriptSegmentRenderer *struct {
		StartMs string   `json:"startMs"`
		EndMs   string   `json:"endMs"`
		Snippet textRuns `json:"snippet"`
	} `json:"transcriptSegmentRenderer"`
}

type ytLanguageMenuItem struct {
	Title    string `json:"title"`
	Selected bool   `json:"selected"`
}

// ytGetTranscriptResp is the subset of a /get_transcript response we read.
type ytGetTranscriptResp struct {
	Actions []struct {
		UpdateEngagementPanelAction *struct {
			Content struct {
				TranscriptRenderer struct {
					Content struct {
						TranscriptSearchPanelRenderer struct {
							Body struct {
								TranscriptSegmentListRenderer struct {
									InitialSegments []ytTranscriptSegment `json:"initialSegments"`
								} `json:"transcriptSegmentListRenderer"`
							} `json:"body"`
							Footer struct {
								TranscriptFooterRenderer struct {
									LanguageMenu struct {
										SortFilterSubMenuRenderer struct {
											SubMenuItems []ytLanguageMenuItem `json:"subMenuItems"`
										} `json:"sortFilterSubMenuRenderer"`
									} `json:"languageMenu"`
								} `json:"transcriptFooterRenderer"`
							} `json:"footer"`
						} `json:"transcriptSearchPanelRenderer"`
					} `json:"content"`
				} `json:"transcriptRenderer"`
			} `json:"content"`
		} `json:"updateEngagementPanelAction"`
	} `json:"actions"`
}

func extractTranscriptToken(data []byte) (string, error) {
	if m := getTranscriptRE.FindSubmatch(data); len(m) >= 2 {
		// /next URL-encodes the params; /get_transcript expects raw base64.
		decoded, err := url.QueryUnescape(string(m[1]))
		if err != nil {
			return string(m[1]), nil
		}
		return decoded, nil
	}
	return "", errors.New("getTranscriptEndpoint not found in engagement panels")
}

// generateVisitorData creates a random 11-char visitor ID for Innertube requests.
func generateVisitorData() string {
	const chars = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789-_"
	b := make([]byte, 11)
	for i := range b {
		b[i] = chars[rand.IntN(len(chars))] //nolint:gosec // non-cryptographic use
	}
	return string(b)
}

func ytWebClient(visitorData string) ytWebClientCtx {
	return ytWebClientCtx{
		ClientName:    "WEB",
		ClientVersion: ytWebVersion,
		VisitorData:   visitorData,
		Hl:            "en",
		Gl:            "US",
	}
}

// ytWebContext builds the standard WEB client context for /next.
func ytWebContext(visitorData string) map[string]any {
	return map[string]any{
		"client":  ytWebClient(visitorData),
		"user":    ytWebUser{EnableSafetyMode: false},
		"request": ytWebReqCtx{UseSsl: true},
	}
}

// postInnerTubeWEB POSTs to an Innertube endpoint with WEB client headers and
// returns the raw body.
func (y *YouTube) postInnerTubeWEB(ctx context.Context, path string, payload any, visitorData string) ([]byte, error) {
	bodyBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	resp, err := y.do(ctx, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, y.baseURL()+path+"?prettyPrint=false", bytes.NewReader(bodyBytes))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "*/*")
		req.Header.Set("User-Agent", engine.UserAgentChrome)
		req.Header.Set("X-Youtube-Client-Name", "1")
		req.Header.Set("X-Youtube-Client-Version", ytWebVersion)
		req.Header.Set("X-Goog-Visitor-Id", visitorData)
		req.Header.Set("Origin", "https://www.youtube.com")
		req.Header.Set("Referer", "https://www.youtube.com/")
		return req, nil
	})
	if err != nil {
		return nil, fmt.Errorf("innertube WEB [%s]: %w", path, err)
	}
	defer resp.Body.Close()
	return io.ReadAll(io.LimitReader(resp.Body, maxPlayerBytes))
}

// fetchViaEngagementPanel fetches the default transcript of videoID via
// POST /next (continuation token) and POST /get_transcript (segments).
func (y *YouTube) fetchViaEngagementPanel(ctx context.Context, videoID string) (*engine.Transcript, error) {
	visitorData := generateVisitorData()

	nextData, err := y.postInnerTubeWEB(ctx, ytNextPath, map[string]any{
		"videoId": videoID,
		"context": ytWebContext(visitorData),
	}, visitorData)
	if err != nil {
		return nil, fmt.Errorf("/next: %w", err)
	}

	token, err := extractTranscriptToken(nextData)
	if err != nil {
		return nil, fmt.Errorf("token: %w", err)
	}

	data, err := y.postInnerTubeWEB(ctx, ytGetTranscriptPath, map[string]any{
		"params":  token,
		"context": map[string]any{"client": ytWebClient(visitorData)},
	}, visitorData)
	if err != nil {
		return nil, fmt.Errorf("/get_transcript: %w", err)
	}

	var resp ytGetTranscriptResp
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("decode transcript: %w", err)
	}
	segments, language := parseEngagementTranscript(resp)
	if len(segments) == 0 {
		return nil, errors.New("empty transcript segments")
	}
	return &engine.Transcript{
		VideoID:     videoID,
		Language:    language,
		IsGenerated: strings.Contains(strings.ToLower(language), "auto-generated"),
		Segments:    segments,
	}, nil
}

// parseEngagementTranscript converts /get_transcript segments (milliseconds) into
// ordered segments and returns the selected language menu title.
func parseEngagementTranscript(resp ytGetTranscriptResp) ([]engine.TranscriptSegment, string) {
	segments := []engine.TranscriptSegment{}
	var language string
	for _, action := range resp.Actions {
		if action.UpdateEngagementPanelAction == nil {
			continue
		}
		panel := action.UpdateEngagementPanelAction.Content.TranscriptRenderer.Content.TranscriptSearchPanelRenderer
		for _, item := range panel.Footer.TranscriptFooterRenderer.LanguageMenu.SortFilterSubMenuRenderer.SubMenuItems {
			if item.Selected && language == "" {
				language = item.Title
			}
		}
		for _, seg := range panel.Body.TranscriptSegmentListRenderer.InitialSegments {
			r := seg.TranscriptSegmentRenderer
			if r == nil {
				continue
			}
			text := engine.CleanCaption(r.Snippet.String())
			if text == "" {
				continue
			}
			start := parseMillis(r.StartMs)
			segments = append(segments, engine.TranscriptSegment{
				Text:     text,
				Start:    start,
				Duration: nonNegative(parseMillis(r.EndMs) - start),
			})
		}
	}
	return segments, language
}

func parseMillis(s string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0
	}
	return nonNegative(v / 1000)
}
