// Package api serves the transcript operations over REST with gin.
package api

import (
	"log/slog"
	"time"

	"github.com/anatolykoptev/go_transcript/internal/engine/transcripts"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const requestIDHeader = "X-Request-ID"

// NewRouter constructs a Gin engine with all routes registered.
func NewRouter(svc *transcripts.Service, version string) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger())

	h := &handlers{svc: svc, version: version}
	registerInfoRoutes(r, h)
	registerTranscriptRoutes(r, h)
	return r
}

// registerInfoRoutes registers root, health, metrics and API description endpoints.
func registerInfoRoutes(r *gin.Engine, h *handlers) {
	r.GET("/", h.handleRoot)
	r.GET("/health", handleHealth)
	r.GET("/metrics", handleMetrics)
	r.GET("/openapi.yaml", handleOpenAPI)
}

// registerTranscriptRoutes registers the transcript endpoints.
func registerTranscriptRoutes(r *gin.Engine, h *handlers) {
	r.GET("/transcript/:video_id", h.handleTranscript)
	r.GET("/transcript/:video_id/languages", h.handleLanguages)
	r.POST("/transcript/batch", h.handleBatch)
}

// requestLogger tags each request with an ID and logs one line per request;
// health checks log at debug.
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Header(requestIDHeader, id)
		c.Next()

		level := slog.LevelInfo
		if c.Request.URL.Path == "/health" {
			level = slog.LevelDebug
		}
		slog.Log(c.Request.Context(), level, "http request",
			slog.String("method", c.Request.Method),
			slog.String("path", c.Request.URL.Path),
			slog.Int("status", c.Writer.Status()),
			slog.Duration("elapsed", time.Since(start)),
			slog.String("client", c.ClientIP()),
			slog.String("request_id", id),
		)
	}
}
