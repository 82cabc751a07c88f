// Package toolutil provides shared helpers for the transcript MCP tools.
package toolutil

import (
	"fmt"
	"strings"

	"github.com/anatolykoptev/go_transcript/internal/engine/transcripts"
)

// RequireVideoID rejects a blank video ID before any upstream work.
func RequireVideoID(id string) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("video_id is required")
	}
	return nil
}

// CheckBatchSize enforces the batch item limit; limit <= 0 means unlimited.
func CheckBatchSize(n, limit int) error {
	if limit > 0 && n > limit {
		return fmt.Errorf("batch has %d items, the maximum is %d", n, limit)
	}
	return nil
}

// ToolError turns a service failure into the message shown to the MCP client:
// the failure kind followed by the same detail the REST API returns.
func ToolError(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %s", transcripts.Classify(err), transcripts.Detail(err))
}
