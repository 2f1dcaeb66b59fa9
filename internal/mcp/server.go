package mcpserver

import (
	"encoding/json"
	"fmt"
	"log"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"storedesign/internal/service"
)

// Server exposes the store-design editor to AI agents over MCP; every
// tool delegates to the DesignService so agent edits flow through the
// same session, autosave and conflict machinery as user edits.
type Server struct {
	mcp    *server.MCPServer
	design *service.DesignService
}

// New creates and configures a new MCP server with the layout tools.
func New(design *service.DesignService) *Server {
	s := &Server{design: design}

	s.mcp = server.NewMCPServer(
		"storedesign-mcp",
		"1.0.0",
		server.WithToolCapabilities(true),
	)

	s.registerLayoutTools()
	s.registerBackupTools()
	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	log.Println("[MCP] Starting stdio server...")
	return server.ServeStdio(s.mcp)
}

// ── Helpers ────────────────────────────────────────────────

// textResult creates a simple text tool result.
func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal result: %w", err)
	}
	return textResult(string(data)), nil
}

func getInt(args map[string]any, key string, fallback int) int {
	if v, ok := args[key].(float64); ok {
		return int(v)
	}
	return fallback
}

func boolPtr(v bool) *bool { return &v }
