package mcpserver

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"notedb/internal/etl"
)

func (s *Server) registerImportTools() {
	s.mcp.AddTool(mcp.NewTool("list_imports",
		mcp.WithDescription("List the configured import jobs and the ones currently running"),
	), s.handleListImports)

	s.mcp.AddTool(mcp.NewTool("list_import_sources",
		mcp.WithDescription("List available import source types with their configuration fields"),
	), s.handleListImportSources)

	s.mcp.AddTool(mcp.NewTool("run_import",
		mcp.WithDescription("🛑 DESTRUCTIVE: Run a configured import job. Jobs in replace mode clear the target database first."),
		mcp.WithString("job", mcp.Description("Import job name"), mcp.Required()),
		mcp.WithToolAnnotation(mcp.ToolAnnotation{DestructiveHint: boolPtr(true)}),
	), s.handleRunImport)

	s.mcp.AddTool(mcp.NewTool("import_history",
		mcp.WithDescription("Show recent runs of an import job"),
		mcp.WithString("job", mcp.Description("Import job name"), mcp.Required()),
		mcp.WithNumber("limit", mcp.Description("Number of runs (default 20)")),
	), s.handleImportHistory)

	s.mcp.AddTool(mcp.NewTool("preview_import_source",
		mcp.WithDescription("Preview records from a source without writing anything"),
		mcp.WithString("sourceType", mcp.Description("Source type"), mcp.Required()),
		mcp.WithString("sourceConfigJSON", mcp.Description("Source configuration as JSON"), mcp.Required()),
		mcp.WithNumber("maxRows", mcp.Description("Number of records (default 10)")),
	), s.handlePreviewImportSource)
}

func (s *Server) handleListImports(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(map[string]any{
		"jobs":    s.imports.ListJobs(),
		"running": s.imports.Running(),
	})
}

func (s *Server) handleListImportSources(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(s.imports.ListSources())
}

func (s *Server) handleRunImport(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name := req.GetString("job", "")
	if name == "" {
		return nil, fmt.Errorf("job is required")
	}
	result, err := s.imports.RunJob(ctx, name)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("run import: %v", err)), nil
	}
	return jsonResult(result)
}

func (s *Server) handleImportHistory(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name := req.GetString("job", "")
	if name == "" {
		return nil, fmt.Errorf("job is required")
	}
	logs, err := s.imports.ListRunLogs(ctx, name, req.GetInt("limit", 20))
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	return jsonResult(logs)
}

func (s *Server) handlePreviewImportSource(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sourceType := req.GetString("sourceType", "")
	var cfg etl.SourceConfig
	set, err := parseJSONArg(req.GetArguments(), "sourceConfigJSON", &cfg)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if sourceType == "" || !set {
		return nil, fmt.Errorf("sourceType and sourceConfigJSON are required")
	}

	preview, err := s.imports.Preview(ctx, sourceType, cfg, req.GetInt("maxRows", 10))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("preview source: %v", err)), nil
	}
	return jsonResult(preview)
}
