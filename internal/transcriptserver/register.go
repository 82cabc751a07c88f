// Package transcriptserver exposes the transcript operations as MCP tools.
package transcriptserver

import (
	"context"

	"github.com/anatolykoptev/go_transcript/internal/engine"
	"github.com/anatolykoptev/go_transcript/internal/engine/transcripts"
	"github.com/anatolykoptev/go_transcript/internal/toolutil"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// RegisterTools registers the transcript tools on the given MCP server:
// transcript_fetch, transcript_languages, transcript_batch.
func RegisterTools(server *mcp.Server, svc *transcripts.Service) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "transcript_fetch",
		Description: "Fetch the timed transcript of a YouTube video. Returns ordered segments (text, start and duration in seconds) in the first available preferred language. Without languages, the server default languages are tried, then any available track.",
		Annotations: &mcp.ToolAnnotations{ReadOnlyHint: true},
	}, fetchHandler(svc))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "transcript_languages",
		Description: "List the caption tracks available for a YouTube video: language name, language code, whether it is auto-generated, and whether it can be translated.",
		Annotations: &mcp.ToolAnnotations{ReadOnlyHint: true},
	}, languagesHandler(svc))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "transcript_batch",
		Description: "Fetch transcripts for several YouTube videos at once. Every item is processed independently and returns either success with segments or an error message; results keep the input order.",
		Annotations: &mcp.ToolAnnotations{ReadOnlyHint: true},
	}, batchHandler(svc))
}

func fetchHandler(svc *transcripts.Service) mcp.ToolHandlerFor[engine.TranscriptFetchInput, engine.TranscriptFetchOutput] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input engine.TranscriptFetchInput) (*mcp.CallToolResult, engine.TranscriptFetchOutput, error) {
		if err := toolutil.RequireVideoID(input.VideoID); err != nil {
			return nil, engine.TranscriptFetchOutput{}, err
		}
		tr, err := svc.Fetch(ctx, input.VideoID, input.Languages)
		if err != nil {
			return nil, engine.TranscriptFetchOutput{}, toolutil.ToolError(err)
		}
		return nil, engine.TranscriptFetchOutput{
			VideoID:  tr.VideoID,
			Language: tr.LanguageCode,
			Segments: tr.Segments,
		}, nil
	}
}

func languagesHandler(svc *transcripts.Service) mcp.ToolHandlerFor[engine.TranscriptLanguagesInput, engine.LanguagesOutput] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input engine.TranscriptLanguagesInput) (*mcp.CallToolResult, engine.LanguagesOutput, error) {
		if err := toolutil.RequireVideoID(input.VideoID); err != nil {
			return nil, engine.LanguagesOutput{}, err
		}
		out, err := svc.Languages(ctx, input.VideoID)
		if err != nil {
			return nil, engine.LanguagesOutput{}, toolutil.ToolError(err)
		}
		return nil, *out, nil
	}
}

func batchHandler(svc *transcripts.Service) mcp.ToolHandlerFor[engine.TranscriptBatchInput, engine.TranscriptBatchOutput] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input engine.TranscriptBatchInput) (*mcp.CallToolResult, engine.TranscriptBatchOutput, error) {
		if err := toolutil.CheckBatchSize(len(input.Items), svc.MaxBatchItems()); err != nil {
			return nil, engine.TranscriptBatchOutput{}, err
		}
		return nil, engine.TranscriptBatchOutput{Results: svc.Batch(ctx, input.Items)}, nil
	}
}
