package mcpserver

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
)

func (s *Server) registerPrompts() {
	s.mcp.AddPrompt(mcp.NewPrompt("task_board",
		mcp.WithPromptDescription("Guide through creating a task database with a board view"),
		mcp.WithArgument("topic",
			mcp.ArgumentDescription("What the tasks are about"),
			mcp.RequiredArgument(),
		),
	), s.handleTaskBoardPrompt)

	s.mcp.AddPrompt(mcp.NewPrompt("project_rollup",
		mcp.WithPromptDescription("Link a projects database to a tasks database and summarize tasks per project"),
		mcp.WithArgument("tasksDatabaseId",
			mcp.ArgumentDescription("Existing tasks database ID"),
			mcp.RequiredArgument(),
		),
	), s.handleProjectRollupPrompt)

	s.mcp.AddPrompt(mcp.NewPrompt("import_data",
		mcp.WithPromptDescription("Preview an import source and run a configured job"),
		mcp.WithArgument("job",
			mcp.ArgumentDescription("Import job name"),
			mcp.RequiredArgument(),
		),
	), s.handleImportDataPrompt)
}

func userPrompt(description, text string) *mcp.GetPromptResult {
	return &mcp.GetPromptResult{
		Description: description,
		Messages: []mcp.PromptMessage{
			{
				Role:    mcp.RoleUser,
				Content: mcp.TextContent{Type: "text", Text: text},
			},
		},
	}
}

func (s *Server) handleTaskBoardPrompt(ctx context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	topic := req.Params.Arguments["topic"]
	return userPrompt(fmt.Sprintf("Create a task board for: %s", topic), fmt.Sprintf(`Create a task board about "%s". Follow these steps:

1. Use create_database with a text "Name" column, a select "Status" column (options: todo, doing, done), a number "Points" column and a date "Due" column
2. Add a few rows with create_row
3. Switch the view to a board grouped by Status with set_view_config (kind "board", groupBy "Status")
4. Show the result with render_view

Move cards between lanes with move_card.`, topic)), nil
}

func (s *Server) handleProjectRollupPrompt(ctx context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	tasksID := req.Params.Arguments["tasksDatabaseId"]
	return userPrompt("Summarize tasks per project", fmt.Sprintf(`Summarize the tasks in database %s per project. Follow these steps:

1. Use get_database on %s to find its number columns
2. Create a "Projects" database with a text "Name" column
3. Add a relation column "Tasks" targeting %s with add_column
4. Add rollup columns with add_column: relationColumn "Tasks", aggregate "count", and aggregate "sum" over a number column
5. Link tasks to projects with update_row (the relation value is a list of task row ids)
6. Render the projects table with render_view

Rollup cells show "-" when nothing is linked and "error" when the target database cannot be read.`, tasksID, tasksID, tasksID)), nil
}

func (s *Server) handleImportDataPrompt(ctx context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	job := req.Params.Arguments["job"]
	return userPrompt(fmt.Sprintf("Run the %s import", job), fmt.Sprintf(`Import data with job "%s". Follow these steps:

1. Use list_imports to check the job's source, target and sync mode
2. Use preview_import_source with the job's source to see a few records
3. Run it with run_import
4. Check import_history and render the target database with render_view`, job)), nil
}
