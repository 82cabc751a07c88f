package engine

import "encoding/json"

// --- Core transcript types ---

// TranscriptSegment is one timed caption entry. Start and Duration are seconds.
type TranscriptSegment struct {
	Text     string  `json:"text"`
	Start    float64 `json:"start"`
	Duration float64 `json:"duration"`
}

// Transcript is a fetched caption track.
type Transcript struct {
	VideoID      string              `json:"video_id"`
	Language     string              `json:"language"`
	LanguageCode string              `json:"language_code"`
	IsGenerated  bool                `json:"is_generated"`
	Segments     []TranscriptSegment `json:"segments"`
}

// TrackInfo describes one available caption track.
type TrackInfo struct {
	Language       string `json:"language"`
	LanguageCode   string `json:"language_code"`
	IsGenerated    bool   `json:"is_generated"`
	IsTranslatable bool   `json:"is_translatable"`
}

// --- Request / response types (JSON) ---

type BatchRequestItem struct {
	ID        string   `json:"id" jsonschema:"YouTube video ID (not the full URL)"`
	Languages []string `json:"languages,omitempty" jsonschema:"Preferred language codes in priority order"`
}

// BatchResultItem carries either Transcript (Success) or Error, never both.
type BatchResultItem struct {
	Success    bool                `json:"success"`
	Transcript []TranscriptSegment `json:"transcript,omitempty"`
	Language   string              `json:"language,omitempty"`
	Error      string              `json:"error,omitempty"`
}

// MarshalJSON always emits transcript (possibly []) for successes and omits it
// for failures.
func (r BatchResultItem) MarshalJSON() ([]byte, error) {
	type wire struct {
		Success    bool                 `json:"success"`
		Transcript *[]TranscriptSegment `json:"transcript,omitempty"`
		Language   string               `json:"language,omitempty"`
		Error      string               `json:"error,omitempty"`
	}
	w := wire{Success: r.Success, Language: r.Language, Error: r.Error}
	if r.Success {
		segs := r.Transcript
		if segs == nil {
			segs = []TranscriptSegment{}
		}
		w.Transcript = &segs
	}
	return json.Marshal(w)
}

type LanguagesOutput struct {
	VideoID              string      `json:"video_id"`
	AvailableTranscripts []TrackInfo `json:"available_transcripts"`
}

// --- MCP tool inputs / outputs ---

type TranscriptFetchInput struct {
	VideoID   string   `json:"video_id" jsonschema:"YouTube video ID (not the full URL)"`
	Languages []string `json:"languages,omitempty" jsonschema:"Preferred language codes in priority order (default: server languages, then any available)"`
}

type TranscriptFetchOutput struct {
	VideoID  string              `json:"video_id"`
	Language string              `json:"language"`
	Segments []TranscriptSegment `json:"segments"`
}

type TranscriptLanguagesInput struct {
	VideoID string `json:"video_id" jsonschema:"YouTube video ID"`
}

type TranscriptBatchInput struct {
	Items []BatchRequestItem `json:"items" jsonschema:"Videos to fetch, processed independently"`
}

type TranscriptBatchOutput struct {
	Results []BatchResultItem `json:"results"`
}
