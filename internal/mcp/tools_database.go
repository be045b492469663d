package mcpserver

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"notedb/internal/domain"
)

func (s *Server) registerDatabaseTools() {
	s.mcp.AddTool(mcp.NewTool("list_databases",
		mcp.WithDescription("List all databases with their row counts"),
	), s.handleListDatabases)

	s.mcp.AddTool(mcp.NewTool("create_database",
		mcp.WithDescription("Create a database. Column types: text, number, date, select, multiSelect, checkbox, url, relation, rollup."),
		mcp.WithString("name", mcp.Description("Database name"), mcp.Required()),
		mcp.WithString("columnsJSON", mcp.Description(`Optional JSON array of columns, e.g. [{"name":"Status","type":"select","options":["todo","done"]}]. Ids are assigned when omitted.`)),
	), s.handleCreateDatabase)

	s.mcp.AddTool(mcp.NewTool("get_database",
		mcp.WithDescription("Get a database's schema and rows. Row fields are keyed by column name."),
		mcp.WithString("databaseId", mcp.Description("Database ID"), mcp.Required()),
	), s.handleGetDatabase)

	s.mcp.AddTool(mcp.NewTool("delete_database",
		mcp.WithDescription("🛑 DESTRUCTIVE: Delete a database with all its rows."),
		mcp.WithString("databaseId", mcp.Description("Database ID"), mcp.Required()),
		mcp.WithToolAnnotation(mcp.ToolAnnotation{DestructiveHint: boolPtr(true)}),
	), s.handleDeleteDatabase)

	s.mcp.AddTool(mcp.NewTool("add_column",
		mcp.WithDescription("Add a column. Existing rows get the type's default value."),
		mcp.WithString("databaseId", mcp.Description("Database ID"), mcp.Required()),
		mcp.WithString("name", mcp.Description("Column name"), mcp.Required()),
		mcp.WithString("type", mcp.Description("Column type"), mcp.Required()),
		mcp.WithString("options", mcp.Description("Comma-separated options for select and multiSelect")),
		mcp.WithString("target", mcp.Description("Target database ID (relation)")),
		mcp.WithString("relationColumn", mcp.Description("Relation column id or name (rollup)")),
		mcp.WithString("targetColumn", mcp.Description("Column id in the target database (rollup)")),
		mcp.WithString("aggregate", mcp.Description("count, sum, average, min, max or percentChecked (rollup)")),
	), s.handleAddColumn)

	s.mcp.AddTool(mcp.NewTool("remove_column",
		mcp.WithDescription("🛑 DESTRUCTIVE: Remove a column and its values from every row."),
		mcp.WithString("databaseId", mcp.Description("Database ID"), mcp.Required()),
		mcp.WithString("column", mcp.Description("Column id or name"), mcp.Required()),
		mcp.WithToolAnnotation(mcp.ToolAnnotation{DestructiveHint: boolPtr(true)}),
	), s.handleRemoveColumn)

	s.mcp.AddTool(mcp.NewTool("rename_column",
		mcp.WithDescription("Rename a column. Its id and values are unchanged."),
		mcp.WithString("databaseId", mcp.Description("Database ID"), mcp.Required()),
		mcp.WithString("column", mcp.Description("Column id or name"), mcp.Required()),
		mcp.WithString("name", mcp.Description("New name"), mcp.Required()),
	), s.handleRenameColumn)

	s.mcp.AddTool(mcp.NewTool("move_column",
		mcp.WithDescription("Move a column to a new position in display order"),
		mcp.WithString("databaseId", mcp.Description("Database ID"), mcp.Required()),
		mcp.WithString("column", mcp.Description("Column id or name"), mcp.Required()),
		mcp.WithNumber("index", mcp.Description("Zero-based target position"), mcp.Required()),
	), s.handleMoveColumn)

	s.mcp.AddTool(mcp.NewTool("list_templates",
		mcp.WithDescription("List a database's row templates and whether each needs a title"),
		mcp.WithString("databaseId", mcp.Description("Database ID"), mcp.Required()),
	), s.handleListTemplates)
}

func (s *Server) handleListDatabases(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	infos, err := s.databases.ListDatabases(ctx)
	if err != nil {
		return nil, fmt.Errorf("list databases: %w", err)
	}
	return jsonResult(infos)
}

func (s *Server) handleCreateDatabase(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name := req.GetString("name", "")
	var cols []domain.ColumnDef
	if _, err := parseJSONArg(req.GetArguments(), "columnsJSON", &cols); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	info, err := s.databases.CreateDatabase(ctx, name, cols)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(info)
}

func (s *Server) handleGetDatabase(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sess, err := s.session(ctx, req)
	if err != nil {
		return s.failure(err)
	}
	schema := sess.Schema()
	rows := sess.Rows()
	out := make([]rowJSON, len(rows))
	for i, r := range rows {
		out[i] = namedRow(schema, r)
	}
	return jsonResult(map[string]any{
		"id":     sess.DatabaseID(),
		"schema": schema,
		"rows":   out,
	})
}

func (s *Server) handleDeleteDatabase(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	dbID := req.GetString("databaseId", "")
	if dbID == "" {
		return nil, fmt.Errorf("databaseId is required")
	}
	if err := s.databases.DeleteDatabase(ctx, dbID); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return textResult(fmt.Sprintf("Database %s deleted", dbID)), nil
}

func (s *Server) handleAddColumn(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sess, err := s.session(ctx, req)
	if err != nil {
		return s.failure(err)
	}
	col := domain.ColumnDef{
		Name:              req.GetString("name", ""),
		Type:              domain.ColumnType(req.GetString("type", "")),
		Target:            req.GetString("target", ""),
		TargetColumnID:    req.GetString("targetColumn", ""),
		AggregateFunction: domain.AggregateFunction(req.GetString("aggregate", "")),
	}
	if opts := req.GetString("options", ""); opts != "" {
		for _, o := range strings.Split(opts, ",") {
			if o = strings.TrimSpace(o); o != "" {
				col.Options = append(col.Options, o)
			}
		}
	}
	if rel := req.GetString("relationColumn", ""); rel != "" {
		relCol, err := resolveColumn(sess.Schema(), rel)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		col.RelationColumnID = relCol.ID
	}

	if err := sess.AddColumn(ctx, col); err != nil {
		return s.failure(err)
	}
	return s.withNotices(sess.Schema())
}

func (s *Server) handleRemoveColumn(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sess, err := s.session(ctx, req)
	if err != nil {
		return s.failure(err)
	}
	col, err := resolveColumn(sess.Schema(), req.GetString("column", ""))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := sess.RemoveColumn(ctx, col.ID); err != nil {
		return s.failure(err)
	}
	return s.withNotices(sess.Schema())
}

func (s *Server) handleRenameColumn(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sess, err := s.session(ctx, req)
	if err != nil {
		return s.failure(err)
	}
	col, err := resolveColumn(sess.Schema(), req.GetString("column", ""))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	name := strings.TrimSpace(req.GetString("name", ""))
	if name == "" {
		return mcp.NewToolResultError("name is required"), nil
	}
	if err := sess.RenameColumn(ctx, col.ID, name); err != nil {
		return s.failure(err)
	}
	return s.withNotices(sess.Schema())
}

func (s *Server) handleMoveColumn(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sess, err := s.session(ctx, req)
	if err != nil {
		return s.failure(err)
	}
	col, err := resolveColumn(sess.Schema(), req.GetString("column", ""))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := sess.MoveColumn(ctx, col.ID, req.GetInt("index", 0)); err != nil {
		return s.failure(err)
	}
	return s.withNotices(sess.Schema())
}

func (s *Server) handleListTemplates(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	dbID := req.GetString("databaseId", "")
	if dbID == "" {
		return nil, fmt.Errorf("databaseId is required")
	}
	infos, err := s.databases.ListRowTemplates(ctx, dbID)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(infos)
}
