package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"notedb/internal/service"
	"notedb/internal/view"
)

// Server is the MCP server for notedb.
// It exposes tools, resources, and prompts so agents can read and edit
// databases through the same sessions a host editor would use.
type Server struct {
	mcp *server.MCPServer
	log *zap.SugaredLogger

	// Services (injected from app layer)
	databases *service.DatabaseService
	sessions  *service.SessionService
	imports   *service.ImportService
	notices   *view.NoticeLog
}

// Deps holds all dependencies passed from the app layer to the MCP server.
type Deps struct {
	Databases *service.DatabaseService
	Sessions  *service.SessionService
	Imports   *service.ImportService // optional
	// Notices must be the notifier the sessions report to.
	Notices *view.NoticeLog
	Logger  *zap.SugaredLogger
	Version string
}

// New creates and configures a new MCP server with all tools and resources.
func New(deps Deps) *Server {
	log := deps.Logger
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	notices := deps.Notices
	if notices == nil {
		notices = &view.NoticeLog{}
	}
	version := deps.Version
	if version == "" {
		version = "dev"
	}
	s := &Server{
		log:       log.Named("mcp"),
		databases: deps.Databases,
		sessions:  deps.Sessions,
		imports:   deps.Imports,
		notices:   notices,
	}

	s.mcp = server.NewMCPServer(
		"notedb",
		version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(true, false),
		server.WithPromptCapabilities(true),
	)

	s.registerDatabaseTools()
	s.registerRowTools()
	s.registerViewTools()
	if s.imports != nil {
		s.registerImportTools()
	}
	s.registerResources()
	s.registerPrompts()

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	s.log.Info("starting stdio server")
	return server.ServeStdio(s.mcp)
}

// MCPServer exposes the underlying server, e.g. for in-process clients.
func (s *Server) MCPServer() *server.MCPServer { return s.mcp }

// ── Helpers ────────────────────────────────────────────────

// session returns the live view session for the databaseId argument.
func (s *Server) session(ctx context.Context, req mcp.CallToolRequest) (*view.Session, error) {
	dbID := req.GetString("databaseId", "")
	if dbID == "" {
		return nil, fmt.Errorf("databaseId is required")
	}
	return s.sessions.Get(ctx, dbID)
}

// textResult creates a simple text tool result.
func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

// jsonResult serializes v to JSON and wraps it in a text tool result.
func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal result: %w", err)
	}
	return textResult(string(data)), nil
}

// withNotices attaches notices raised by sessions during the call.
func (s *Server) withNotices(v any) (*mcp.CallToolResult, error) {
	notices := s.notices.Drain()
	if len(notices) == 0 {
		return jsonResult(v)
	}
	return jsonResult(map[string]any{"result": v, "notices": notices})
}

// failure turns a session error into a tool error carrying its notices, so
// the agent sees the same message a user would.
func (s *Server) failure(err error) (*mcp.CallToolResult, error) {
	notices := s.notices.Drain()
	if len(notices) == 0 {
		return mcp.NewToolResultError(err.Error()), nil
	}
	msg := err.Error()
	for _, n := range notices {
		msg += fmt.Sprintf("\n[%s] %s", n.Level, n.Message)
	}
	return mcp.NewToolResultError(msg), nil
}

func boolPtr(v bool) *bool { return &v }
