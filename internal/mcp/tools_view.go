package mcpserver

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"

	"notedb/internal/domain"
	"notedb/internal/view"
)

func (s *Server) registerViewTools() {
	s.mcp.AddTool(mcp.NewTool("render_view",
		mcp.WithDescription("Render a database as a table, board or calendar. Overrides apply to this render only."),
		mcp.WithString("databaseId", mcp.Description("Database ID (ignored when block is given)")),
		mcp.WithString("block", mcp.Description(`Optional JSONC block body, e.g. {"databaseId":"...","mode":"board"}`)),
		mcp.WithString("viewId", mcp.Description("Persisted view to start from")),
		mcp.WithString("mode", mcp.Description("table, board or calendar")),
		mcp.WithString("groupBy", mcp.Description("Select column id for board lanes")),
		mcp.WithString("dateColumn", mcp.Description("Date column id for the calendar")),
		mcp.WithString("month", mcp.Description("Calendar month as YYYY-MM")),
	), s.handleRenderView)

	s.mcp.AddTool(mcp.NewTool("move_card",
		mcp.WithDescription("Move a board card to another lane. An empty lane means uncategorized."),
		mcp.WithString("databaseId", mcp.Description("Database ID"), mcp.Required()),
		mcp.WithString("rowId", mcp.Description("Row ID"), mcp.Required()),
		mcp.WithString("lane", mcp.Description("Target option of the group-by column")),
	), s.handleMoveCard)

	s.mcp.AddTool(mcp.NewTool("drop_on_day",
		mcp.WithDescription("Move a calendar card to another day"),
		mcp.WithString("databaseId", mcp.Description("Database ID"), mcp.Required()),
		mcp.WithString("rowId", mcp.Description("Row ID"), mcp.Required()),
		mcp.WithString("day", mcp.Description("Day as YYYY-MM-DD"), mcp.Required()),
	), s.handleDropOnDay)

	s.mcp.AddTool(mcp.NewTool("create_on_day",
		mcp.WithDescription("Create a row dated on a calendar day"),
		mcp.WithString("databaseId", mcp.Description("Database ID"), mcp.Required()),
		mcp.WithString("day", mcp.Description("Day as YYYY-MM-DD"), mcp.Required()),
	), s.handleCreateOnDay)

	s.mcp.AddTool(mcp.NewTool("set_view_config",
		mcp.WithDescription("Change and persist the active view's configuration. Only the given settings change."),
		mcp.WithString("databaseId", mcp.Description("Database ID"), mcp.Required()),
		mcp.WithString("viewId", mcp.Description("Persisted view to make active first")),
		mcp.WithString("kind", mcp.Description("table, board or calendar")),
		mcp.WithString("groupBy", mcp.Description("Select column id or name for the board")),
		mcp.WithString("dateColumn", mcp.Description("Date column id or name for the calendar")),
		mcp.WithString("filtersJSON", mcp.Description(`JSON array of {column, operator, value}; [] clears`)),
		mcp.WithString("filterLogic", mcp.Description("and (default) or or")),
		mcp.WithString("sortsJSON", mcp.Description(`JSON array of {column, direction}; [] clears`)),
		mcp.WithString("clickHeader", mcp.Description("Column id to cycle the header sort on (asc, desc, off)")),
		mcp.WithString("quickFilterColumn", mcp.Description("Column id for a quick filter")),
		mcp.WithString("quickFilterText", mcp.Description("Quick filter text; empty clears")),
	), s.handleSetViewConfig)
}

func (s *Server) handleRenderView(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var cfg view.BlockConfig
	if body := req.GetString("block", ""); body != "" {
		parsed, err := view.ParseBlock([]byte(body))
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		cfg = parsed
	} else {
		cfg = view.BlockConfig{
			DatabaseID: req.GetString("databaseId", ""),
			Mode:       domain.ViewKind(req.GetString("mode", "")),
			ViewID:     req.GetString("viewId", ""),
			GroupBy:    req.GetString("groupBy", ""),
			DateColumn: req.GetString("dateColumn", ""),
			Month:      req.GetString("month", ""),
		}
	}
	if err := cfg.Validate(); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	sess, err := s.sessions.Get(ctx, cfg.DatabaseID)
	if err != nil {
		return s.failure(err)
	}
	rendered, err := view.RenderBlock(ctx, sess, cfg)
	if err != nil {
		return s.failure(err)
	}
	return s.withNotices(rendered)
}

func (s *Server) handleMoveCard(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sess, err := s.session(ctx, req)
	if err != nil {
		return s.failure(err)
	}
	pm, err := sess.MoveCard(ctx, req.GetString("rowId", ""), req.GetString("lane", ""))
	if err != nil {
		return s.failure(err)
	}
	return s.withNotices(pm)
}

func (s *Server) handleDropOnDay(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sess, err := s.session(ctx, req)
	if err != nil {
		return s.failure(err)
	}
	pm, err := sess.DropOnDay(ctx, req.GetString("rowId", ""), req.GetString("day", ""))
	if err != nil {
		return s.failure(err)
	}
	return s.withNotices(pm)
}

func (s *Server) handleCreateOnDay(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sess, err := s.session(ctx, req)
	if err != nil {
		return s.failure(err)
	}
	created, err := sess.CreateOnDay(ctx, req.GetString("day", ""))
	if err != nil {
		return s.failure(err)
	}
	return s.withNotices(namedRow(sess.Schema(), created.Row))
}

func (s *Server) handleSetViewConfig(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sess, err := s.session(ctx, req)
	if err != nil {
		return s.failure(err)
	}
	args := req.GetArguments()

	if id := req.GetString("viewId", ""); id != "" {
		if err := sess.SelectView(id); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
	}
	if kind := req.GetString("kind", ""); kind != "" {
		if err := sess.SetViewKind(ctx, domain.ViewKind(kind)); err != nil {
			return s.failure(err)
		}
	}
	if key := req.GetString("groupBy", ""); key != "" {
		col, err := resolveColumn(sess.Schema(), key)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		if err := sess.SetGroupBy(ctx, col.ID); err != nil {
			return s.failure(err)
		}
	}
	if key := req.GetString("dateColumn", ""); key != "" {
		col, err := resolveColumn(sess.Schema(), key)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		if err := sess.SetDateColumn(ctx, col.ID); err != nil {
			return s.failure(err)
		}
	}

	var filters []domain.FilterCondition
	if set, err := parseJSONArg(args, "filtersJSON", &filters); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	} else if set {
		logic := domain.FilterLogic(req.GetString("filterLogic", string(domain.LogicAnd)))
		if err := sess.SetFilters(ctx, filters, logic); err != nil {
			return s.failure(err)
		}
	}
	var sorts []domain.SortRule
	if set, err := parseJSONArg(args, "sortsJSON", &sorts); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	} else if set {
		if err := sess.SetSorts(ctx, sorts); err != nil {
			return s.failure(err)
		}
	}
	if col := req.GetString("clickHeader", ""); col != "" {
		if err := sess.ClickHeader(ctx, col); err != nil {
			return s.failure(err)
		}
	}
	if col := req.GetString("quickFilterColumn", ""); col != "" {
		if err := sess.SetQuickFilter(ctx, col, req.GetString("quickFilterText", "")); err != nil {
			return s.failure(err)
		}
	}
	return s.withNotices(sess.View())
}
