// Package mcpserver exposes transcript tools over the Model Context Protocol.
//
// Each tool is a struct holding the app service, with Definition returning
// the mcp.Tool schema and Handle serving calls.
package mcpserver

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"sayit/api/internal/app"
	"sayit/api/internal/export"
	"sayit/api/internal/search"
)

// ReconcileTool handles the reconcile_speech tool.
type ReconcileTool struct {
	service *app.Service
}

func NewReconcileTool(service *app.Service) *ReconcileTool {
	return &ReconcileTool{service: service}
}

func (t *ReconcileTool) Definition() mcp.Tool {
	return mcp.NewTool("reconcile_speech",
		mcp.WithDescription(
			"Replace the transcript of a speech with new Markdown. Paragraphs that survived the edit keep their section IDs; "+
				"speakers are marked with '### Name:' lines.",
		),
		mcp.WithString("filename",
			mcp.Required(),
			mcp.Description("Speech filename, e.g. 2024-01-01-budget-talk"),
		),
		mcp.WithString("markdown",
			mcp.Required(),
			mcp.Description("Full transcript in Markdown"),
		),
		mcp.WithString("author",
			mcp.Description("Name recorded on the archived revision"),
		),
	)
}

func (t *ReconcileTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	filename := req.GetString("filename", "")
	markdown := req.GetString("markdown", "")
	if strings.TrimSpace(filename) == "" || strings.TrimSpace(markdown) == "" {
		return mcp.NewToolResultError("'filename' and 'markdown' are required"), nil
	}

	outcome, err := t.service.Reconcile(ctx, filename, markdown, req.GetString("author", ""))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("reconcile failed: %s", describe(err))), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Reconciled %s (%s): %d inserted, %d updated, %d deleted.\n",
		outcome.Filename, outcome.DisplayName, outcome.Inserted, outcome.Updated, outcome.Deleted)
	if len(outcome.Pruned) > 0 {
		fmt.Fprintf(&b, "Pruned speakers: %s\n", strings.Join(outcome.Pruned, ", "))
	}
	if outcome.Revision != nil {
		fmt.Fprintf(&b, "Archived revision %s.\n", outcome.Revision.Hash)
	}
	return mcp.NewToolResultText(b.String()), nil
}

// SpeechTool handles the get_speech tool.
type SpeechTool struct {
	service *app.Service
}

func NewSpeechTool(service *app.Service) *SpeechTool {
	return &SpeechTool{service: service}
}

func (t *SpeechTool) Definition() mcp.Tool {
	return mcp.NewTool("get_speech",
		mcp.WithDescription("Fetch a speech, or a single section by numeric ID, as Markdown or Akoma Ntoso."),
		mcp.WithString("key",
			mcp.Required(),
			mcp.Description("Speech filename or section ID"),
		),
		mcp.WithString("format",
			mcp.Description("md (default) or an"),
			mcp.Enum(string(export.FormatMD), string(export.FormatAN)),
		),
	)
}

func (t *SpeechTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	key := strings.TrimSpace(req.GetString("key", ""))
	if key == "" {
		return mcp.NewToolResultError("'key' is required"), nil
	}
	format, err := export.ParseFormat(req.GetString("format", string(export.FormatMD)))
	if err != nil || (format != export.FormatMD && format != export.FormatAN) {
		return mcp.NewToolResultError("'format' must be md or an"), nil
	}

	entry, err := t.service.Document(ctx, key, format)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("get %s failed: %s", key, describe(err))), nil
	}
	return mcp.NewToolResultText(string(entry.Body)), nil
}

// SearchTool handles the search_sections tool.
type SearchTool struct {
	service *app.Service
}

func NewSearchTool(service *app.Service) *SearchTool {
	return &SearchTool{service: service}
}

func (t *SearchTool) Definition() mcp.Tool {
	return mcp.NewTool("search_sections",
		mcp.WithDescription("Search transcript sections and speakers."),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("Words to look for"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Max sections (default: 20, max: 100)"),
		),
		mcp.WithNumber("offset",
			mcp.Description("Sections to skip"),
		),
	)
}

func (t *SearchTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query := req.GetString("query", "")
	if strings.TrimSpace(query) == "" {
		return mcp.NewToolResultError("'query' is required"), nil
	}

	resp := t.service.Search(ctx, search.Query{
		Text:         query,
		SectionLimit: intArg(req, "limit", 0),
		Offset:       intArg(req, "offset", 0),
	}.Normalized())

	if len(resp.Speakers) == 0 && len(resp.Sections) == 0 {
		return mcp.NewToolResultText("No sections found matching your query."), nil
	}

	var b strings.Builder
	if len(resp.Speakers) > 0 {
		b.WriteString("Speakers:\n")
		for _, sp := range resp.Speakers {
			fmt.Fprintf(&b, "- %s (%s)\n", sp.Name, sp.RoutePathname)
		}
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "Found %d sections:\n\n", resp.Total)
	for i, hit := range resp.Sections {
		speaker := hit.SpeakerName
		if speaker == "" {
			speaker = "narration"
		}
		fmt.Fprintf(&b, "[%d] #%d %s - %s\n    %s\n\n", i+1, hit.SectionID, hit.DisplayName, speaker, hit.Snippet)
	}
	return mcp.NewToolResultText(b.String()), nil
}

// intArg reads a JSON number argument, returning defaultVal when absent.
func intArg(req mcp.CallToolRequest, key string, defaultVal int) int {
	v, ok := req.GetArguments()[key].(float64)
	if !ok {
		return defaultVal
	}
	return int(v)
}

func describe(err error) string {
	var domainErr *app.DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Message
	}
	return err.Error()
}
