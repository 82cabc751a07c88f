package transcripts

import (
	"context"
	"errors"
	"fmt"

	"github.com/anatolykoptev/go_transcript/internal/engine/sources"
)

// Kind is the failure taxonomy exposed to callers.
type Kind int

const (
	KindInternal Kind = iota
	KindNotFound
	KindDisabled
	KindRateLimited
	KindInvalid
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindDisabled:
		return "disabled"
	case KindRateLimited:
		return "rate_limited"
	case KindInvalid:
		return "invalid"
	default:
		return "internal"
	}
}

// Classify maps a provider error to its Kind. Unknown errors are KindInternal.
func Classify(err error) Kind {
	var e *Error
	switch {
	case err == nil:
		return KindInternal
	case errors.As(err, &e):
		return e.Kind
	case errors.Is(err, sources.ErrTranscriptsDisabled):
		return KindDisabled
	case errors.Is(err, sources.ErrVideoUnavailable), errors.Is(err, sources.ErrNoTranscriptFound):
		return KindNotFound
	case errors.Is(err, sources.ErrRequestBlocked):
		return KindRateLimited
	case errors.Is(err, sources.ErrInvalidVideoID):
		return KindInvalid
	default:
		return KindInternal
	}
}

// Error is a classified failure for one video.
type Error struct {
	Kind    Kind
	VideoID string
	Op      string // "fetch" or "list"
	Err     error
}

func newError(op, videoID string, err error) *Error {
	return &Error{Kind: Classify(err), VideoID: videoID, Op: op, Err: err}
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.VideoID, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Detail is the user-facing message for the failure.
func (e *Error) Detail() string {
	switch {
	case errors.Is(e.Err, sources.ErrVideoUnavailable):
		return fmt.Sprintf("Video with ID '%s' is not available", e.VideoID)
	case errors.Is(e.Err, sources.ErrNoTranscriptFound):
		return fmt.Sprintf("No transcript found for video ID '%s'", e.VideoID)
	case e.Kind == KindDisabled:
		return fmt.Sprintf("Transcripts are disabled for video ID '%s'", e.VideoID)
	case e.Kind == KindRateLimited:
		return "Request blocked. Please try again later."
	case e.Kind == KindInvalid && e.VideoID == "":
		return "Video ID is required"
	case e.Kind == KindInvalid:
		return fmt.Sprintf("Invalid video ID '%s': pass the video ID, not the full URL", e.VideoID)
	case errors.Is(e.Err, context.DeadlineExceeded):
		return fmt.Sprintf("Timed out while fetching the transcript for video ID '%s'", e.VideoID)
	case e.Op == "list":
		return fmt.Sprintf("An error occurred while fetching transcript list: %v", e.Err)
	default:
		return fmt.Sprintf("An error occurred while fetching the transcript: %v", e.Err)
	}
}

// Detail returns the user-facing message for any error returned by Service.
func Detail(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Detail()
	}
	return fmt.Sprintf("An error occurred while fetching the transcript: %v", err)
}
