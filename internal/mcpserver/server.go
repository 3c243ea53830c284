package mcpserver

import (
	"github.com/mark3labs/mcp-go/server"

	"sayit/api/internal/app"
)

const instructions = `Tools for editing and reading speech transcripts.
Transcripts are Markdown; a line "### Name:" starts the paragraphs of a speaker.
Use get_speech before reconcile_speech so edits start from the current text.`

// New builds the MCP server with every transcript tool registered.
func New(service *app.Service, version string) *server.MCPServer {
	s := server.NewMCPServer(
		"sayit",
		version,
		server.WithToolCapabilities(true),
		server.WithRecovery(),
		server.WithInstructions(instructions),
	)

	reconcileTool := NewReconcileTool(service)
	s.AddTool(reconcileTool.Definition(), reconcileTool.Handle)

	speechTool := NewSpeechTool(service)
	s.AddTool(speechTool.Definition(), speechTool.Handle)

	searchTool := NewSearchTool(service)
	s.AddTool(searchTool.Definition(), searchTool.Handle)

	return s
}
