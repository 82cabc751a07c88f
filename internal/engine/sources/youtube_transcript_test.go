package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const legacyTimedText = `<?xml version="1.0" encoding="utf-8" ?><transcript>` +
	`<text start="0.24" dur="4.4">Today we&amp;#39;re going to be looking at</text>` +
	`<text start="4.64" dur="2.1">&lt;font color=&quot;#E5E5E5&quot;&gt;Go&lt;/font&gt; &amp;amp; HTTP</text>` +
	`<text start="6.74" dur="1">   </text>` +
	`<text start="7.74" dur="1.5">the end</text>` +
	`</transcript>`

// fakeYouTube serves a watch page, the ANDROID /player endpoint and timedtext.
type fakeYouTube struct {
	srv *httptest.Server

	watchStatus  int
	watchBody    func(base string) string
	playerBody   func(base string) string
	playerStatus int
	timedText    map[string]string // lang → XML

	// watchFailures answers the first n watch requests with 503.
	watchFailures int32
	// nextBody and transcriptBody back the WEB engagement panel endpoints; empty means 404.
	nextBody       string
	transcriptBody string

	watchHits  atomic.Int32
	playerHits atomic.Int32
	panelHits  atomic.Int32
}

func newFakeYouTube(t *testing.T) *fakeYouTube {
	t.Helper()
	f := &fakeYouTube{timedText: map[string]string{}}
	mux := http.NewServeMux()
	mux.HandleFunc("/watch", func(w http.ResponseWriter, r *http.Request) {
		if f.watchHits.Add(1) <= f.watchFailures {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		if f.watchStatus != 0 {
			w.WriteHeader(f.watchStatus)
			return
		}
		fmt.Fprint(w, f.watchBody(f.srv.URL))
	})
	mux.HandleFunc("/youtubei/v1/player", func(w http.ResponseWriter, r *http.Request) {
		f.playerHits.Add(1)
		if f.playerStatus != 0 {
			w.WriteHeader(f.playerStatus)
			return
		}
		if f.playerBody == nil {
			fmt.Fprint(w, `{"playabilityStatus":{"status":"OK"}}`)
			return
		}
		fmt.Fprint(w, f.playerBody(f.srv.URL))
	})
	mux.HandleFunc("/youtubei/v1/next", func(w http.ResponseWriter, r *http.Request) {
		f.panelHits.Add(1)
		if f.nextBody == "" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		fmt.Fprint(w, f.nextBody)
	})
	mux.HandleFunc("/youtubei/v1/get_transcript", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Params string `json:"params"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Params != "CgtkUXc0dzlXZ1hjUQ==" || f.transcriptBody == "" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		fmt.Fprint(w, f.transcriptBody)
	})
	mux.HandleFunc("/api/timedtext", func(w http.ResponseWriter, r *http.Request) {
		body, ok := f.timedText[r.URL.Query().Get("lang")]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		fmt.Fprint(w, body)
	})
	f.srv = httptest.NewServer(mux)
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeYouTube) provider() *YouTube {
	return &YouTube{BaseURL: f.srv.URL, HTTPClient: f.srv.Client(), Languages: []string{"en"}}
}

type fakeTrack struct {
	lang, name, kind string
	poToken          bool
}

func playerJSON(base, status, reason string, tracks ...fakeTrack) string {
	resp := map[string]any{
		"playabilityStatus": map[string]any{"status": status, "reason": reason},
	}
	if len(tracks) > 0 {
		var list []map[string]any
		for _, tr := range tracks {
			u := base + "/api/timedtext?v=vid&lang=" + tr.lang + "&fmt=srv3"
			if tr.poToken {
				u += "&exp=xpe"
			}
			list = append(list, map[string]any{
				"baseUrl":        u,
				"name":           map[string]any{"simpleText": tr.name},
				"languageCode":   tr.lang,
				"kind":           tr.kind,
				"isTranslatable": true,
			})
		}
		resp["captions"] = map[string]any{
			"playerCaptionsTracklistRenderer": map[string]any{"captionTracks": list},
		}
	}
	b, _ := json.Marshal(resp)
	return string(b)
}

func watchPage(player string) string {
	return `<!DOCTYPE html><html><body><script>var ytInitialPlayerResponse = ` + player +
		`;var meta = {"a":"}"};</script></body></html>`
}

func TestFetchDefaultLanguage(t *testing.T) {
	f := newFakeYouTube(t)
	f.watchBody = func(base string) string {
		return watchPage(playerJSON(base, "OK", "",
			fakeTrack{lang: "de", name: "German (auto-generated)", kind: "asr"},
			fakeTrack{lang: "en", name: "English"},
		))
	}
	f.timedText["en"] = legacyTimedText

	tr, err := f.provider().Fetch(context.Background(), "vid", nil)
	require.NoError(t, err)

	assert.Equal(t, "en", tr.LanguageCode)
	assert.Equal(t, "English", tr.Language)
	assert.False(t, tr.IsGenerated)
	require.Len(t, tr.Segments, 3)
	assert.Equal(t, "Today we're going to be looking at", tr.Segments[0].Text)
	assert.InDelta(t, 0.24, tr.Segments[0].Start, 1e-9)
	assert.InDelta(t, 4.4, tr.Segments[0].Duration, 1e-9)
	assert.Equal(t, "Go & HTTP", tr.Segments[1].Text)
	assert.Equal(t, "the end", tr.Segments[2].Text)
	for i := 1; i < len(tr.Segments); i++ {
		assert.GreaterOrEqual(t, tr.Segments[i].Start, tr.Segments[i-1].Start)
	}
	assert.EqualValues(t, 0, f.playerHits.Load(), "android player should not be needed")
}

func TestFetchFallsBackToAnyLanguage(t *testing.T) {
	f := newFakeYouTube(t)
	f.watchBody = func(base string) string {
		return watchPage(playerJSON(base, "OK", "",
			fakeTrack{lang: "es", name: "Spanish (auto-generated)", kind: "asr"},
			fakeTrack{lang: "fr", name: "French"},
		))
	}
	f.timedText["fr"] = legacyTimedText

	tr, err := f.provider().Fetch(context.Background(), "vid", nil)
	require.NoError(t, err)
	assert.Equal(t, "fr", tr.LanguageCode)
}

func TestFetchExplicitLanguage(t *testing.T) {
	f := newFakeYouTube(t)
	f.watchBody = func(base string) string {
		return watchPage(playerJSON(base, "OK", "",
			fakeTrack{lang: "en", name: "English"},
			fakeTrack{lang: "de", name: "German (auto-generated)", kind: "asr"},
		))
	}
	f.timedText["de"] = legacyTimedText

	tr, err := f.provider().Fetch(context.Background(), "vid", []string{"fr", "DE"})
	require.NoError(t, err)
	assert.Equal(t, "de", tr.LanguageCode)
	assert.True(t, tr.IsGenerated)
}

func TestFetchExplicitLanguageMissing(t *testing.T) {
	f := newFakeYouTube(t)
	f.watchBody = func(base string) string {
		return watchPage(playerJSON(base, "OK", "", fakeTrack{lang: "en", name: "English"}))
	}

	_, err := f.provider().Fetch(context.Background(), "vid", []string{"fr"})
	require.ErrorIs(t, err, ErrNoTranscriptFound)
	assert.Contains(t, err.Error(), "available: en")
}

func TestFetchVideoUnavailable(t *testing.T) {
	f := newFakeYouTube(t)
	f.watchBody = func(base string) string {
		return watchPage(playerJSON(base, "ERROR", "This video is unavailable"))
	}

	_, err := f.provider().Fetch(context.Background(), "nope", nil)
	require.ErrorIs(t, err, ErrVideoUnavailable)
	assert.EqualValues(t, 0, f.playerHits.Load())
}

func TestFetchTranscriptsDisabled(t *testing.T) {
	f := newFakeYouTube(t)
	f.watchBody = func(base string) string {
		return watchPage(playerJSON(base, "OK", ""))
	}

	_, err := f.provider().Fetch(context.Background(), "vid", nil)
	require.ErrorIs(t, err, ErrTranscriptsDisabled)
	assert.EqualValues(t, 1, f.playerHits.Load(), "android player should be tried once")
}

func TestFetchBlockedByStatus(t *testing.T) {
	f := newFakeYouTube(t)
	f.watchStatus = http.StatusTooManyRequests

	_, err := f.provider().Fetch(context.Background(), "vid", nil)
	require.ErrorIs(t, err, ErrRequestBlocked)
	assert.EqualValues(t, 0, f.playerHits.Load())
}

func TestFetchBlockedByBotCheck(t *testing.T) {
	f := newFakeYouTube(t)
	f.watchBody = func(base string) string {
		return watchPage(playerJSON(base, "LOGIN_REQUIRED", "Sign in to confirm you’re not a bot"))
	}

	_, err := f.provider().Fetch(context.Background(), "vid", nil)
	require.ErrorIs(t, err, ErrRequestBlocked)
}

func TestFetchBlockedByCaptcha(t *testing.T) {
	f := newFakeYouTube(t)
	f.watchBody = func(string) string {
		return `<html><form><div class="g-recaptcha" data-sitekey="x"></div></form></html>`
	}

	_, err := f.provider().Fetch(context.Background(), "vid", nil)
	require.ErrorIs(t, err, ErrRequestBlocked)
}

func TestFetchInvalidVideoID(t *testing.T) {
	f := newFakeYouTube(t)

	for _, id := range []string{"", "   ", "https://www.youtube.com/watch?v=dQw4w9WgXcQ"} {
		_, err := f.provider().Fetch(context.Background(), id, nil)
		assert.ErrorIs(t, err, ErrInvalidVideoID, "id %q", id)
	}
	assert.EqualValues(t, 0, f.watchHits.Load())
}

func TestFetchPoTokenTracksUseAndroidPlayer(t *testing.T) {
	f := newFakeYouTube(t)
	f.watchBody = func(base string) string {
		return watchPage(playerJSON(base, "OK", "", fakeTrack{lang: "en", name: "English", poToken: true}))
	}
	f.playerBody = func(base string) string {
		return playerJSON(base, "OK", "", fakeTrack{lang: "en", name: "English"})
	}
	f.timedText["en"] = legacyTimedText

	tr, err := f.provider().Fetch(context.Background(), "vid", nil)
	require.NoError(t, err)
	assert.Len(t, tr.Segments, 3)
	assert.EqualValues(t, 1, f.playerHits.Load())
}

func TestFetchWatchPageBrokenUsesAndroidPlayer(t *testing.T) {
	f := newFakeYouTube(t)
	f.watchBody = func(string) string { return "<html>nothing here</html>" }
	f.playerBody = func(base string) string {
		return playerJSON(base, "OK", "", fakeTrack{lang: "en", name: "English"})
	}
	f.timedText["en"] = legacyTimedText

	tr, err := f.provider().Fetch(context.Background(), "vid", nil)
	require.NoError(t, err)
	assert.Equal(t, "en", tr.LanguageCode)
}

func TestFetchBothDiscoveryPathsFail(t *testing.T) {
	f := newFakeYouTube(t)
	f.watchBody = func(string) string { return "<html>nothing here</html>" }
	f.playerStatus = http.StatusForbidden

	_, err := f.provider().Fetch(context.Background(), "vid", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "watch page")
	assert.Contains(t, err.Error(), "HTTP 403")
}

func TestList(t *testing.T) {
	f := newFakeYouTube(t)
	f.watchBody = func(base string) string {
		return watchPage(playerJSON(base, "OK", "",
			fakeTrack{lang: "en", name: "English"},
			fakeTrack{lang: "en", name: "English (auto-generated)", kind: "asr"},
		))
	}

	tracks, err := f.provider().List(context.Background(), "vid")
	require.NoError(t, err)
	require.Len(t, tracks, 2)
	assert.Equal(t, "English", tracks[0].Language)
	assert.False(t, tracks[0].IsGenerated)
	assert.True(t, tracks[1].IsGenerated)
	for _, tr := range tracks {
		assert.NotEmpty(t, tr.LanguageCode)
		assert.True(t, tr.IsTranslatable)
	}
}

func TestListTranscriptsDisabled(t *testing.T) {
	f := newFakeYouTube(t)
	f.watchBody = func(base string) string {
		return watchPage(playerJSON(base, "OK", ""))
	}

	_, err := f.provider().List(context.Background(), "vid")
	require.ErrorIs(t, err, ErrTranscriptsDisabled)
}

func TestParseTimedTextFormat3(t *testing.T) {
	body := `<?xml version="1.0" encoding="utf-8" ?><timedtext format="3"><body>` +
		`<p t="1500" d="2000"><s>hello</s><s> world</s></p>` +
		`<p t="3500" d="1000">again</p>` +
		`</body></timedtext>`

	segs, err := parseTimedText([]byte(body))
	require.NoError(t, err)
	require.Len(t, segs, 2)
	assert.Equal(t, "hello world", segs[0].Text)
	assert.InDelta(t, 1.5, segs[0].Start, 1e-9)
	assert.InDelta(t, 2.0, segs[0].Duration, 1e-9)
	assert.Equal(t, "again", segs[1].Text)
}

func TestParseTimedTextEdgeCases(t *testing.T) {
	segs, err := parseTimedText(nil)
	require.NoError(t, err)
	assert.Empty(t, segs)

	segs, err = parseTimedText([]byte(`<transcript><text start="-1" dur="NaN">x</text></transcript>`))
	require.NoError(t, err)
	require.Len(t, segs, 1)
	assert.Zero(t, segs[0].Start)
	assert.Zero(t, segs[0].Duration)

	_, err = parseTimedText([]byte("<transcript><text"))
	assert.Error(t, err)
}

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"simple", `{"a":1};rest`, `{"a":1}`},
		{"nested", `{"a":{"b":{}}} tail`, `{"a":{"b":{}}}`},
		{"brace in string", `{"a":"}{"};`, `{"a":"}{"}`},
		{"escaped quote", `{"a":"say \"}\" ok"};x`, `{"a":"say \"}\" ok"}`},
		{"escaped backslash", `{"a":"c:\\"};x`, `{"a":"c:\\"}`},
		{"not object", `[1,2]`, ""},
		{"unterminated", `{"a":1`, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, string(extractJSON([]byte(tt.in))))
		})
	}
}

func TestPickBestTrack(t *testing.T) {
	tracks := []captionTrack{
		{LanguageCode: "en", Kind: "asr"},
		{LanguageCode: "de"},
		{LanguageCode: "en"},
	}
	tests := []struct {
		name     string
		langs    []string
		any      bool
		wantLang string
		wantKind string
		wantOK   bool
	}{
		{"manual preferred over asr", []string{"en"}, false, "en", "", true},
		{"order of preference", []string{"de", "en"}, false, "de", "", true},
		{"missing without fallback", []string{"fr"}, false, "", "", false},
		{"missing with fallback takes first manual", []string{"fr"}, true, "de", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := pickBestTrack(tracks, tt.langs, tt.any)
			assert.Equal(t, tt.wantOK, ok)
			if ok {
				assert.Equal(t, tt.wantLang, got.LanguageCode)
				assert.Equal(t, tt.wantKind, got.Kind)
			}
		})
	}

	got, ok := pickBestTrack([]captionTrack{{LanguageCode: "ja", Kind: "asr"}}, []string{"en"}, true)
	assert.True(t, ok)
	assert.Equal(t, "ja", got.LanguageCode)
}

func TestCheckPlayability(t *testing.T) {
	assert.NoError(t, checkPlayability("v", nil))
	assert.NoError(t, checkPlayability("v", &playabilityStatus{Status: "OK"}))
	assert.ErrorIs(t, checkPlayability("v", &playabilityStatus{Status: "ERROR"}), ErrVideoUnavailable)

	err := checkPlayability("v", &playabilityStatus{Status: "UNPLAYABLE", Reason: "members only"})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrVideoUnavailable)
	assert.True(t, strings.Contains(err.Error(), "members only"))
}

const nextWithTranscriptToken = `{"engagementPanels":[{"engagementPanelSectionListRenderer":{"content":` +
	`{"continuationItemRenderer":{"continuationEndpoint":{"getTranscriptEndpoint":{"params":"CgtkUXc0dzlXZ1hjUQ%3D%3D"}}}}}}]}`

const engagementTranscript = `{"actions":[{"updateEngagementPanelAction":{"content":{"transcriptRenderer":{"content":` +
	`{"transcriptSearchPanelRenderer":{"body":{"transcriptSegmentListRenderer":{"initialSegments":[` +
	`{"transcriptSegmentRenderer":{"startMs":"0","endMs":"1540","snippet":{"runs":[{"text":"Hey there"}]}}},` +
	`{"transcriptSectionHeaderRenderer":{"startMs":"1540"}},` +
	`{"transcriptSegmentRenderer":{"startMs":"1540","endMs":"5700","snippet":{"runs":[{"text":"how &amp; "},{"text":"why"}]}}},` +
	`{"transcriptSegmentRenderer":{"startMs":"6000","endMs":"5000","snippet":{"runs":[{"text":"  "}]}}}` +
	`]}},"footer":{"transcriptFooterRenderer":{"languageMenu":{"sortFilterSubMenuRenderer":{"subMenuItems":[` +
	`{"title":"English (auto-generated)","selected":true},{"title":"German","selected":false}]}}}}}}}}}}]}`

func TestFetchRetriesTransientWatchPageFailure(t *testing.T) {
	f := newFakeYouTube(t)
	f.watchFailures = 1
	f.watchBody = func(base string) string {
		return watchPage(playerJSON(base, "OK", "", fakeTrack{lang: "en", name: "English"}))
	}
	f.timedText["en"] = legacyTimedText

	tr, err := f.provider().Fetch(context.Background(), "vid", nil)
	require.NoError(t, err)
	assert.Len(t, tr.Segments, 3)
	assert.EqualValues(t, 2, f.watchHits.Load())
	assert.EqualValues(t, 0, f.playerHits.Load())
}

func TestFetchEngagementPanelWhenOnlyPoTokenTracks(t *testing.T) {
	f := newFakeYouTube(t)
	f.watchBody = func(base string) string {
		return watchPage(playerJSON(base, "OK", "", fakeTrack{lang: "en", name: "English", poToken: true}))
	}
	f.playerBody = func(base string) string {
		return playerJSON(base, "OK", "", fakeTrack{lang: "en", name: "English", poToken: true})
	}
	f.nextBody = nextWithTranscriptToken
	f.transcriptBody = engagementTranscript

	tr, err := f.provider().Fetch(context.Background(), "dQw4w9WgXcQ", nil)
	require.NoError(t, err)
	assert.Equal(t, "dQw4w9WgXcQ", tr.VideoID)
	assert.Equal(t, "English (auto-generated)", tr.Language)
	assert.True(t, tr.IsGenerated)
	require.Len(t, tr.Segments, 2)
	assert.Equal(t, "Hey there", tr.Segments[0].Text)
	assert.InDelta(t, 0, tr.Segments[0].Start, 1e-9)
	assert.InDelta(t, 1.54, tr.Segments[0].Duration, 1e-9)
	assert.Equal(t, "how & why", tr.Segments[1].Text)
	assert.InDelta(t, 1.54, tr.Segments[1].Start, 1e-9)
	assert.InDelta(t, 4.16, tr.Segments[1].Duration, 1e-9)
	assert.EqualValues(t, 1, f.panelHits.Load())
}

func TestFetchEngagementPanelWhenPlayerPathsFail(t *testing.T) {
	f := newFakeYouTube(t)
	f.watchBody = func(string) string { return "<html>nothing here</html>" }
	f.playerStatus = http.StatusForbidden
	f.nextBody = nextWithTranscriptToken
	f.transcriptBody = engagementTranscript

	tr, err := f.provider().Fetch(context.Background(), "dQw4w9WgXcQ", nil)
	require.NoError(t, err)
	assert.Len(t, tr.Segments, 2)
}

func TestFetchEngagementPanelFailureKeepsPlayerError(t *testing.T) {
	f := newFakeYouTube(t)
	f.watchStatus = http.StatusTooManyRequests
	f.nextBody = `{"engagementPanels":[]}`

	_, err := f.provider().Fetch(context.Background(), "vid", nil)
	assert.ErrorIs(t, err, ErrRequestBlocked)
	assert.EqualValues(t, 1, f.panelHits.Load())
}

func TestFetchEngagementPanelSkipped(t *testing.T) {
	f := newFakeYouTube(t)
	f.nextBody = nextWithTranscriptToken
	f.transcriptBody = engagementTranscript

	// Explicit languages cannot be honoured by the default-language panel.
	f.watchBody = func(base string) string {
		return watchPage(playerJSON(base, "OK", "", fakeTrack{lang: "en", name: "English", poToken: true}))
	}
	_, err := f.provider().Fetch(context.Background(), "vid", []string{"de"})
	require.Error(t, err)

	// Definitive answers are final.
	f.watchBody = func(base string) string { return watchPage(playerJSON(base, "OK", "")) }
	_, err = f.provider().Fetch(context.Background(), "vid", nil)
	assert.ErrorIs(t, err, ErrTranscriptsDisabled)

	assert.EqualValues(t, 0, f.panelHits.Load())
}

func TestExtractTranscriptToken(t *testing.T) {
	token, err := extractTranscriptToken([]byte(nextWithTranscriptToken))
	require.NoError(t, err)
	assert.Equal(t, "CgtkUXc0dzlXZ1hjUQ==", token)

	_, err = extractTranscriptToken([]byte(`{"engagementPanels":[]}`))
	assert.Error(t, err)
}

func TestGenerateVisitorData(t *testing.T) {
	v := generateVisitorData()
	assert.Len(t, v, 11)
	assert.NotContains(t, v, "=")
}
