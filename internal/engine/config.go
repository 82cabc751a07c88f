package engine

import (
	"net/http"
	"time"
)

// Config holds all engine configuration, injected from main.
type Config struct {
	YouTubeBaseURL       string
	Languages            []string // default preferred transcript languages
	FetchTimeout         time.Duration
	BatchConcurrency     int
	BatchMaxItems        int
	UpstreamRPS          float64 // <= 0 disables the upstream limiter
	UpstreamBurst        int
	CacheMaxEntries      int
	CacheCleanupInterval time.Duration
	HTTPClient           *http.Client
}

// DefaultYouTubeBaseURL is used when YouTubeBaseURL is empty.
const DefaultYouTubeBaseURL = "https://www.youtube.com"

var cfg = Config{
	YouTubeBaseURL:   DefaultYouTubeBaseURL,
	Languages:        []string{"en"},
	FetchTimeout:     20 * time.Second,
	BatchConcurrency: 4,
	BatchMaxItems:    100,
	HTTPClient:       http.DefaultClient,
}

// Cfg exposes the engine configuration for sub-packages (sources, transcripts).
// Always points to the current cfg value.
var Cfg = &cfg

// Init initializes the engine with the given configuration.
// Zero values fall back to the defaults above.
func Init(c Config) {
	if c.YouTubeBaseURL == "" {
		c.YouTubeBaseURL = DefaultYouTubeBaseURL
	}
	if len(c.Languages) == 0 {
		c.Languages = []string{"en"}
	}
	if c.FetchTimeout <= 0 {
		c.FetchTimeout = 20 * time.Second
	}
	if c.BatchConcurrency <= 0 {
		c.BatchConcurrency = 1
	}
	if c.HTTPClient == nil {
		c.HTTPClient = http.DefaultClient
	}
	cfg = c
	Cfg = &cfg
	InitRateLimit(c.UpstreamRPS, c.UpstreamBurst)
}
