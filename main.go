// go_transcript: YouTube transcript REST API and MCP server.
//
// Serves GET /transcript/{video_id}, GET /transcript/{video_id}/languages and
// POST /transcript/batch over HTTP. When MCP_PORT is set, the same operations
// are exposed as the MCP tools transcript_fetch, transcript_languages and
// transcript_batch.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/anatolykoptev/go-kit/env"
	"github.com/anatolykoptev/go-mcpserver"
	"github.com/anatolykoptev/go_transcript/internal/api"
	"github.com/anatolykoptev/go_transcript/internal/engine"
	"github.com/anatolykoptev/go_transcript/internal/engine/sources"
	"github.com/anatolykoptev/go_transcript/internal/engine/transcripts"
	"github.com/anatolykoptev/go_transcript/internal/transcriptserver"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

var version = "dev"

func main() {
	_ = godotenv.Load()
	initLogger()
	initEngine()

	svc := transcripts.NewService(sources.NewYouTube())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if mcpPort := env.Str("MCP_PORT", ""); mcpPort != "" {
		go runMCP(svc, mcpPort)
	}

	if err := runHTTP(ctx, svc, env.Str("PORT", "8000")); err != nil {
		slog.Error("server failed", slog.Any("error", err))
		os.Exit(1)
	}
}

func initLogger() {
	var level slog.Level
	if err := level.UnmarshalText([]byte(env.Str("LOG_LEVEL", "info"))); err != nil {
		level = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
	if level > slog.LevelDebug {
		gin.SetMode(gin.ReleaseMode)
	}
}

func initEngine() {
	c := engine.Config{
		YouTubeBaseURL:       env.Str("YOUTUBE_BASE_URL", engine.DefaultYouTubeBaseURL),
		Languages:            env.List("TRANSCRIPT_LANGUAGES", "en"),
		FetchTimeout:         env.Duration("FETCH_TIMEOUT", 20*time.Second),
		BatchConcurrency:     env.Int("BATCH_CONCURRENCY", 4),
		BatchMaxItems:        env.Int("BATCH_MAX_ITEMS", 100),
		UpstreamRPS:          env.Float("UPSTREAM_RPS", 5),
		UpstreamBurst:        env.Int("UPSTREAM_BURST", 5),
		CacheMaxEntries:      env.Int("CACHE_MAX_ENTRIES", 1000),
		CacheCleanupInterval: env.Duration("CACHE_CLEANUP_INTERVAL", 300*time.Second),
		HTTPClient: &http.Client{
			Timeout: 15 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:        20,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     60 * time.Second,
			},
		},
	}
	engine.Init(c)

	cacheTTL := env.Duration("CACHE_TTL", 0)
	engine.InitCache(env.Str("REDIS_URL", ""), cacheTTL, c.CacheMaxEntries, c.CacheCleanupInterval)

	slog.Info("engine initialized",
		slog.String("languages", strings.Join(engine.Cfg.Languages, ",")),
		slog.Duration("fetch_timeout", engine.Cfg.FetchTimeout),
		slog.Int("batch_concurrency", engine.Cfg.BatchConcurrency),
		slog.Bool("cache", engine.CacheEnabled()),
	)
}

// runHTTP serves the REST API until ctx is cancelled, then drains in-flight requests.
func runHTTP(ctx context.Context, svc *transcripts.Service, port string) error {
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           api.NewRouter(svc, version),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("starting go_transcript", slog.String("port", port), slog.String("version", version))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), env.Duration("SHUTDOWN_TIMEOUT", 10*time.Second))
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	engine.CloseCache()
	return nil
}

func runMCP(svc *transcripts.Service, port string) {
	server := mcp.NewServer(&mcp.Implementation{
		Name:    "go_transcript",
		Version: version,
	}, nil)

	transcriptserver.RegisterTools(server, svc)
	slog.Info("tools registered", slog.Int("count", 3), slog.String("mcp_port", port))

	if err := mcpserver.Run(server, mcpserver.Config{
		Name:         "go_transcript",
		Version:      version,
		Port:         port,
		WriteTimeout: 600 * time.Second,
		Metrics:      engine.FormatMetrics,
	}); err != nil {
		slog.Error("mcp server failed", slog.Any("error", err))
	}
}
