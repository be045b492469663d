package mcpserver

import (
	"context"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"notedb/internal/domain"
)

func (s *Server) registerRowTools() {
	s.mcp.AddTool(mcp.NewTool("create_row",
		mcp.WithDescription("Create a row. Columns not given get their type default."),
		mcp.WithString("databaseId", mcp.Description("Database ID"), mcp.Required()),
		mcp.WithString("fieldsJSON", mcp.Description(`Optional JSON object keyed by column id or name, e.g. {"Name":"Write docs","Points":3}`)),
		mcp.WithString("body", mcp.Description("Optional markdown body")),
	), s.handleCreateRow)

	s.mcp.AddTool(mcp.NewTool("update_row",
		mcp.WithDescription("Update some fields and/or the body of a row. Fields not given are left alone."),
		mcp.WithString("databaseId", mcp.Description("Database ID"), mcp.Required()),
		mcp.WithString("rowId", mcp.Description("Row ID"), mcp.Required()),
		mcp.WithString("fieldsJSON", mcp.Description("JSON object keyed by column id or name")),
		mcp.WithString("body", mcp.Description("New markdown body")),
	), s.handleUpdateRow)

	s.mcp.AddTool(mcp.NewTool("delete_row",
		mcp.WithDescription("🛑 DESTRUCTIVE: Delete a row."),
		mcp.WithString("databaseId", mcp.Description("Database ID"), mcp.Required()),
		mcp.WithString("rowId", mcp.Description("Row ID"), mcp.Required()),
		mcp.WithToolAnnotation(mcp.ToolAnnotation{DestructiveHint: boolPtr(true)}),
	), s.handleDeleteRow)

	s.mcp.AddTool(mcp.NewTool("create_row_from_template",
		mcp.WithDescription("Create a row from a template. Templates whose title pattern has a {{title}} placeholder need a title."),
		mcp.WithString("databaseId", mcp.Description("Database ID"), mcp.Required()),
		mcp.WithString("templateId", mcp.Description("Template ID"), mcp.Required()),
		mcp.WithString("title", mcp.Description("Title substituted into the template's title pattern")),
	), s.handleCreateRowFromTemplate)
}

func (s *Server) handleCreateRow(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sess, err := s.session(ctx, req)
	if err != nil {
		return s.failure(err)
	}
	var raw map[string]any
	if _, err := parseJSONArg(req.GetArguments(), "fieldsJSON", &raw); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	fields, err := decodeFields(sess.Schema(), raw)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	var body *string
	if b, ok := req.GetArguments()["body"].(string); ok {
		body = &b
	}

	created, err := sess.CreateRow(ctx, fields, body)
	if err != nil {
		return s.failure(err)
	}
	return s.withNotices(namedRow(sess.Schema(), created.Row))
}

func (s *Server) handleUpdateRow(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sess, err := s.session(ctx, req)
	if err != nil {
		return s.failure(err)
	}
	rowID := req.GetString("rowId", "")
	if rowID == "" {
		return nil, fmt.Errorf("rowId is required")
	}
	var raw map[string]any
	if _, err := parseJSONArg(req.GetArguments(), "fieldsJSON", &raw); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	fields, err := decodeFields(sess.Schema(), raw)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var row *domain.DatabaseRow
	for colID, v := range fields {
		if row, err = sess.EditCell(ctx, rowID, colID, v); err != nil {
			return s.failure(err)
		}
	}
	if body, ok := req.GetArguments()["body"].(string); ok {
		if row, err = sess.EditBody(ctx, rowID, body); err != nil {
			return s.failure(err)
		}
	}
	if row == nil {
		current, ok := sess.Row(rowID)
		if !ok {
			return mcp.NewToolResultError(fmt.Sprintf("row %s: %v", rowID, domain.ErrRowNotFound)), nil
		}
		row = current
	}
	return s.withNotices(namedRow(sess.Schema(), row))
}

func (s *Server) handleDeleteRow(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sess, err := s.session(ctx, req)
	if err != nil {
		return s.failure(err)
	}
	rowID := req.GetString("rowId", "")
	if rowID == "" {
		return nil, fmt.Errorf("rowId is required")
	}
	if err := sess.DeleteRow(ctx, rowID); err != nil {
		return s.failure(err)
	}
	return textResult(fmt.Sprintf("Row %s deleted", rowID)), nil
}

func (s *Server) handleCreateRowFromTemplate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sess, err := s.session(ctx, req)
	if err != nil {
		return s.failure(err)
	}
	var title *string
	if t, ok := req.GetArguments()["title"].(string); ok {
		title = &t
	}
	created, err := sess.ApplyTemplate(ctx, req.GetString("templateId", ""), title)
	if errors.Is(err, domain.ErrTitleRequired) {
		return mcp.NewToolResultError("This template needs a title: pass the title argument."), nil
	}
	if err != nil {
		return s.failure(err)
	}
	return s.withNotices(map[string]any{
		"row":        namedRow(sess.Schema(), created.Row),
		"editColumn": created.EditColumn,
		"cursorLine": created.CursorLine,
	})
}
