package mcpserver

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
)

func (s *Server) registerBackupTools() {
	// ── create_backup ──────────────────────────────────
	s.mcp.AddTool(mcp.NewTool("create_backup",
		mcp.WithDescription("Snapshot the current layout into the backup ring"),
		mcp.WithString("reason", mcp.Description("Why the backup was taken (optional)")),
	), s.handleCreateBackup)

	// ── list_backups ───────────────────────────────────
	s.mcp.AddTool(mcp.NewTool("list_backups",
		mcp.WithDescription("List recent layout backups, newest first"),
	), s.handleListBackups)

	// ── restore_backup (destructive) ───────────────────
	s.mcp.AddTool(mcp.NewTool("restore_backup",
		mcp.WithDescription("🛑 DESTRUCTIVE: Replace the current layout with a backup snapshot. The current layout is backed up first."),
		mcp.WithString("backupId", mcp.Description("Backup ID to restore"), mcp.Required()),
		mcp.WithToolAnnotation(mcp.ToolAnnotation{DestructiveHint: boolPtr(true)}),
	), s.handleRestoreBackup)

	// ── validate_layout ────────────────────────────────
	s.mcp.AddTool(mcp.NewTool("validate_layout",
		mcp.WithDescription("Run integrity checks on the current layout (duplicate ids/positions, missing fields)"),
	), s.handleValidateLayout)

	// ── recover_layout (destructive) ───────────────────
	s.mcp.AddTool(mcp.NewTool("recover_layout",
		mcp.WithDescription("🛑 DESTRUCTIVE: Rebuild a structurally damaged layout by stripping broken blocks and renumbering, falling back to the newest valid backup. The damaged layout is backed up first."),
		mcp.WithToolAnnotation(mcp.ToolAnnotation{DestructiveHint: boolPtr(true)}),
	), s.handleRecoverLayout)
}

func (s *Server) handleCreateBackup(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	reason, _ := req.GetArguments()["reason"].(string)
	entry := s.design.CreateBackup(reason)
	return jsonResult(map[string]any{
		"id":        entry.ID,
		"reason":    entry.Reason,
		"timestamp": entry.Timestamp,
		"blocks":    len(entry.Blocks),
	})
}

func (s *Server) handleListBackups(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	type summary struct {
		ID        string `json:"id"`
		Reason    string `json:"reason"`
		Timestamp string `json:"timestamp"`
		Blocks    int    `json:"blocks"`
	}
	var out []summary
	for _, e := range s.design.ListBackups() {
		out = append(out, summary{
			ID:        e.ID,
			Reason:    e.Reason,
			Timestamp: e.Timestamp.Format("2006-01-02 15:04:05"),
			Blocks:    len(e.Blocks),
		})
	}
	return jsonResult(out)
}

func (s *Server) handleRestoreBackup(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	backupID, _ := req.GetArguments()["backupId"].(string)
	if backupID == "" {
		return nil, fmt.Errorf("backupId is required")
	}
	if err := s.design.RestoreBackup(backupID); err != nil {
		return nil, err
	}
	return textResult(fmt.Sprintf("Backup %s restored", backupID)), nil
}

func (s *Server) handleValidateLayout(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(s.design.ValidateIntegrity())
}

func (s *Server) handleRecoverLayout(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	blocks, err := s.design.RecoverLayout()
	if err != nil {
		return nil, err
	}
	return textResult(fmt.Sprintf("Layout recovered: %d block(s)", len(blocks))), nil
}
