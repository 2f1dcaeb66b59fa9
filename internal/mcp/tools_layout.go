package mcpserver

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"storedesign/internal/editor"
)

func (s *Server) registerLayoutTools() {
	// ── list_blocks ────────────────────────────────────
	s.mcp.AddTool(mcp.NewTool("list_blocks",
		mcp.WithDescription("List the store page's blocks in render order, with their payloads and positions"),
	), s.handleListBlocks)

	// ── add_block ──────────────────────────────────────
	s.mcp.AddTool(mcp.NewTool("add_block",
		mcp.WithDescription("Insert a new block with a render-safe default payload. Subsequent blocks shift down."),
		mcp.WithString("type",
			mcp.Description("Block type: text, grid, featured, banner, list, masonry"),
			mcp.Required(),
		),
		mcp.WithNumber("position", mcp.Description("Insert position (default: end of page)")),
	), s.handleAddBlock)

	// ── update_block ───────────────────────────────────
	s.mcp.AddTool(mcp.NewTool("update_block",
		mcp.WithDescription("Merge a partial update into a block's data payload and presentation overrides"),
		mcp.WithString("blockId", mcp.Description("Block ID"), mcp.Required()),
		mcp.WithObject("data", mcp.Description("Payload fields to merge (e.g. {\"text_content\": \"Hello\"})")),
		mcp.WithString("spacing", mcp.Description("Spacing override (optional)")),
		mcp.WithString("backgroundColor", mcp.Description("Background color override (optional)")),
		mcp.WithString("textAlignment", mcp.Description("Text alignment override (optional)")),
	), s.handleUpdateBlock)

	// ── delete_block (destructive) ─────────────────────
	s.mcp.AddTool(mcp.NewTool("delete_block",
		mcp.WithDescription("🛑 DESTRUCTIVE: Delete a block from the page."),
		mcp.WithString("blockId", mcp.Description("Block ID to delete"), mcp.Required()),
		mcp.WithToolAnnotation(mcp.ToolAnnotation{DestructiveHint: boolPtr(true)}),
	), s.handleDeleteBlock)

	// ── move_block ─────────────────────────────────────
	s.mcp.AddTool(mcp.NewTool("move_block",
		mcp.WithDescription("Move a block to a new position; the page is renumbered densely"),
		mcp.WithString("blockId", mcp.Description("Block ID"), mcp.Required()),
		mcp.WithNumber("position", mcp.Description("Target position"), mcp.Required()),
	), s.handleMoveBlock)

	// ── save_layout ────────────────────────────────────
	s.mcp.AddTool(mcp.NewTool("save_layout",
		mcp.WithDescription("Save outstanding changes immediately, skipping the autosave debounce"),
	), s.handleSaveLayout)

	// ── save_status ────────────────────────────────────
	s.mcp.AddTool(mcp.NewTool("save_status",
		mcp.WithDescription("Report the current save status: state machine phase, pending changes, version"),
	), s.handleSaveStatus)
}

// ── Handlers ───────────────────────────────────────────────

func (s *Server) handleListBlocks(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(s.design.Blocks())
}

func (s *Server) handleAddBlock(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	blockType, _ := args["type"].(string)
	if blockType == "" {
		return nil, fmt.Errorf("type is required")
	}
	at := getInt(args, "position", len(s.design.Blocks()))

	block, err := s.design.AddBlock(blockType, at)
	if err != nil {
		return nil, err
	}
	return jsonResult(block)
}

func (s *Server) handleUpdateBlock(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	blockID, _ := args["blockId"].(string)
	if blockID == "" {
		return nil, fmt.Errorf("blockId is required")
	}

	patch := editor.BlockPatch{}
	if data, ok := args["data"].(map[string]any); ok {
		patch.Data = data
	}
	if v, ok := args["spacing"].(string); ok {
		patch.Spacing = &v
	}
	if v, ok := args["backgroundColor"].(string); ok {
		patch.BackgroundColor = &v
	}
	if v, ok := args["textAlignment"].(string); ok {
		patch.TextAlignment = &v
	}

	if !s.design.UpdateBlock(blockID, patch) {
		return nil, fmt.Errorf("block not found: %s", blockID)
	}
	return textResult(fmt.Sprintf("Block %s updated", blockID)), nil
}

func (s *Server) handleDeleteBlock(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	blockID, _ := args["blockId"].(string)
	if blockID == "" {
		return nil, fmt.Errorf("blockId is required")
	}
	if !s.design.DeleteBlock(blockID) {
		return nil, fmt.Errorf("block not found: %s", blockID)
	}
	return textResult(fmt.Sprintf("Block %s deleted", blockID)), nil
}

func (s *Server) handleMoveBlock(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	blockID, _ := args["blockId"].(string)
	if blockID == "" {
		return nil, fmt.Errorf("blockId is required")
	}
	to := getInt(args, "position", -1)
	if to < 0 {
		return nil, fmt.Errorf("position is required")
	}
	if !s.design.MoveBlock(blockID, to) {
		return nil, fmt.Errorf("block not found: %s", blockID)
	}
	return textResult(fmt.Sprintf("Block %s moved to position %d", blockID, to)), nil
}

func (s *Server) handleSaveLayout(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if err := s.design.SaveNow(ctx); err != nil {
		return nil, fmt.Errorf("save layout: %w", err)
	}
	return jsonResult(s.design.Status())
}

func (s *Server) handleSaveStatus(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	status := s.design.Status()
	return jsonResult(map[string]any{
		"status": status,
		"label":  status.Label(),
	})
}
