package api

import (
	_ "embed"
	"fmt"
	"net/http"

	"github.com/anatolykoptev/go_transcript/internal/engine"
	"github.com/anatolykoptev/go_transcript/internal/engine/transcripts"
	"github.com/anatolykoptev/go_transcript/internal/toolutil"
	"github.com/gin-gonic/gin"
)

//go:embed openapi.yaml
var openapiSpec []byte

type handlers struct {
	svc     *transcripts.Service
	version string
}

// StatusCode maps a failure kind to its HTTP status.
func StatusCode(k transcripts.Kind) int {
	switch k {
	case transcripts.KindDisabled:
		return http.StatusForbidden
	case transcripts.KindNotFound, transcripts.KindInvalid:
		return http.StatusNotFound
	case transcripts.KindRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

func (h *handlers) handleRoot(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"message": "YouTube Transcript API Server",
		"version": h.version,
		"docs":    "/openapi.yaml",
		"health":  "/health",
	})
}

func handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}

func handleMetrics(c *gin.Context) {
	c.String(http.StatusOK, engine.FormatMetrics())
}

func handleOpenAPI(c *gin.Context) {
	c.Data(http.StatusOK, "application/yaml", openapiSpec)
}

// handleTranscript returns the raw segment list of one video.
// GET /transcript/:video_id?languages=de,en
func (h *handlers) handleTranscript(c *gin.Context) {
	langs := engine.SplitLangs(c.Query("languages"))
	tr, err := h.svc.Fetch(c.Request.Context(), c.Param("video_id"), langs)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, tr.Segments)
}

// handleLanguages lists the caption tracks of one video.
// GET /transcript/:video_id/languages
func (h *handlers) handleLanguages(c *gin.Context) {
	out, err := h.svc.Languages(c.Request.Context(), c.Param("video_id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

// batchItemBody is one request item as sent on the wire; ID is a pointer so a
// missing key can be told apart from an empty string.
type batchItemBody struct {
	ID        *string  `json:"id"`
	Languages []string `json:"languages"`
}

// handleBatch fetches a list of videos. Item failures are reported in the
// payload; the response is 200 whenever the body is a valid list.
// POST /transcript/batch
func (h *handlers) handleBatch(c *gin.Context) {
	var body []batchItemBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"detail": fmt.Sprintf("request body must be a JSON array of {\"id\": string} objects: %v", err),
		})
		return
	}
	if body == nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"detail": "request body must be a JSON array, got null"})
		return
	}
	if err := toolutil.CheckBatchSize(len(body), h.svc.MaxBatchItems()); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"detail": err.Error()})
		return
	}

	items := make([]engine.BatchRequestItem, len(body))
	for i, b := range body {
		if b.ID == nil {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"detail": fmt.Sprintf("item %d: field \"id\" is required", i)})
			return
		}
		items[i] = engine.BatchRequestItem{ID: *b.ID, Languages: b.Languages}
	}
	c.JSON(http.StatusOK, h.svc.Batch(c.Request.Context(), items))
}

// respondError writes the {detail} body with the status of err's kind.
func respondError(c *gin.Context, err error) {
	c.JSON(StatusCode(transcripts.Classify(err)), gin.H{"detail": transcripts.Detail(err)})
}
