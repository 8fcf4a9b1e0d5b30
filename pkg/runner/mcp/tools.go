package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

func registerTools(srv *server.MCPServer, svc *Service) {
	registerListTasksTool(srv, svc)
	registerCreateTaskTool(srv, svc)
	registerToggleTaskTool(srv, svc)
	registerDeleteTaskTool(srv, svc)
	registerListListsTool(srv, svc)
	registerCreateListTool(srv, svc)
	registerDeleteListTool(srv, svc)
	registerListNotesTool(srv, svc)
	registerCreateNoteTool(srv, svc)
	registerImportTasksTool(srv, svc)
}

func registerListTasksTool(srv *server.MCPServer, svc *Service) {
	tool := mcp.NewTool(
		"list_tasks",
		mcp.WithDescription("List tasks, newest first."),
		mcp.WithString("list",
			mcp.Description("Optional list id or name to filter by."),
		),
		mcp.WithBoolean("important",
			mcp.Description("Only starred tasks."),
		),
		mcp.WithBoolean("hide_completed",
			mcp.Description("Drop completed tasks."),
		),
		mcp.WithString("query",
			mcp.Description("Case-insensitive match against title and notes."),
		),
	)

	srv.AddTool(tool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var args struct {
			List          string `json:"list"`
			Important     bool   `json:"important"`
			HideCompleted bool   `json:"hide_completed"`
			Query         string `json:"query"`
		}
		if err := request.BindArguments(&args); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("invalid arguments: %v", err)), nil
		}

		tasks, err := svc.ListTasks(ctx, ListTasksOptions{
			List:          args.List,
			Important:     args.Important,
			HideCompleted: args.HideCompleted,
			Query:         args.Query,
		})
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return toJSONResult(map[string]any{
			"tasks": tasks,
			"count": len(tasks),
		})
	})
}

func registerCreateTaskTool(srv *server.MCPServer, svc *Service) {
	tool := mcp.NewTool(
		"create_task",
		mcp.WithDescription("Create a task. Without a list it lands in the default list."),
		mcp.WithString("title",
			mcp.Required(),
			mcp.Description("Task title."),
		),
		mcp.WithString("list",
			mcp.Description("List id or name."),
		),
		mcp.WithString("notes",
			mcp.Description("Free text notes."),
		),
		mcp.WithString("due",
			mcp.Description("Optional RFC3339 timestamp or YYYY-MM-DD date."),
		),
		mcp.WithBoolean("important",
			mcp.Description("Star the task."),
		),
		mcp.WithArray("steps",
			mcp.Description("Checklist step titles, in order."),
			mcp.Items(map[string]any{"type": "string"}),
		),
	)

	srv.AddTool(tool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var args struct {
			Title     string   `json:"title"`
			List      string   `json:"list"`
			Notes     string   `json:"notes"`
			Due       string   `json:"due"`
			Important bool     `json:"important"`
			Steps     []string `json:"steps"`
		}
		if err := request.BindArguments(&args); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("invalid arguments: %v", err)), nil
		}

		dto, err := svc.CreateTask(ctx, CreateTaskOptions{
			Title:     args.Title,
			List:      args.List,
			Notes:     args.Notes,
			Due:       args.Due,
			Important: args.Important,
			Steps:     args.Steps,
		})
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return toJSONResult(dto)
	})
}

func registerToggleTaskTool(srv *server.MCPServer, svc *Service) {
	tool := mcp.NewTool(
		"toggle_task",
		mcp.WithDescription("Flip a task between open and completed."),
		mcp.WithString("id",
			mcp.Required(),
			mcp.Description("Task identifier."),
		),
	)

	srv.AddTool(tool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := request.RequireString("id")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		dto, err := svc.ToggleTask(ctx, id)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return toJSONResult(dto)
	})
}

func registerDeleteTaskTool(srv *server.MCPServer, svc *Service) {
	tool := mcp.NewTool(
		"delete_task",
		mcp.WithDescription("Delete a task and its steps."),
		mcp.WithString("id",
			mcp.Required(),
			mcp.Description("Task identifier."),
		),
	)

	srv.AddTool(tool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := request.RequireString("id")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		if err := svc.DeleteTask(ctx, id); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return toJSONResult(map[string]any{"deleted": id})
	})
}

func registerListListsTool(srv *server.MCPServer, svc *Service) {
	tool := mcp.NewTool(
		"list_lists",
		mcp.WithDescription("List task lists with open and total task counts."),
	)

	srv.AddTool(tool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		lists, err := svc.ListLists(ctx)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return toJSONResult(map[string]any{
			"lists": lists,
			"count": len(lists),
		})
	})
}

func registerCreateListTool(srv *server.MCPServer, svc *Service) {
	tool := mcp.NewTool(
		"create_list",
		mcp.WithDescription("Create a task list."),
		mcp.WithString("name",
			mcp.Required(),
			mcp.Description("List name."),
		),
		mcp.WithString("color",
			mcp.Description("Optional hex color such as #3b82f6."),
		),
	)

	srv.AddTool(tool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		name, err := request.RequireString("name")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		dto, err := svc.CreateList(ctx, name, request.GetString("color", ""))
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return toJSONResult(dto)
	})
}

func registerDeleteListTool(srv *server.MCPServer, svc *Service) {
	tool := mcp.NewTool(
		"delete_list",
		mcp.WithDescription("Delete a list. Its tasks move to another list unless cascade is set. The default list cannot be deleted."),
		mcp.WithString("list",
			mcp.Required(),
			mcp.Description("List id or name."),
		),
		mcp.WithString("move_to",
			mcp.Description("List receiving the tasks; defaults to the default list."),
		),
		mcp.WithBoolean("cascade",
			mcp.Description("Delete the tasks instead of moving them."),
		),
	)

	srv.AddTool(tool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		list, err := request.RequireString("list")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		moveTo := request.GetString("move_to", "")
		cascade := request.GetBool("cascade", false)
		if err := svc.DeleteList(ctx, list, moveTo, cascade); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return toJSONResult(map[string]any{"deleted": list, "cascade": cascade})
	})
}

func registerListNotesTool(srv *server.MCPServer, svc *Service) {
	tool := mcp.NewTool(
		"list_notes",
		mcp.WithDescription("List notes with excerpts, newest first."),
		mcp.WithString("tag",
			mcp.Description("Only notes carrying this #tag."),
		),
		mcp.WithString("query",
			mcp.Description("Case-insensitive match against title and content."),
		),
	)

	srv.AddTool(tool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		notes, err := svc.ListNotes(ctx, request.GetString("tag", ""), request.GetString("query", ""))
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return toJSONResult(map[string]any{
			"notes": notes,
			"count": len(notes),
		})
	})
}

func registerCreateNoteTool(srv *server.MCPServer, svc *Service) {
	tool := mcp.NewTool(
		"create_note",
		mcp.WithDescription("Create a Markdown note. #tags in the content are indexed."),
		mcp.WithString("title",
			mcp.Description("Note title; blank becomes Untitled."),
		),
		mcp.WithString("content",
			mcp.Description("Markdown body."),
		),
	)

	srv.AddTool(tool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		dto, err := svc.CreateNote(ctx, request.GetString("title", ""), request.GetString("content", ""))
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return toJSONResult(dto)
	})
}

func registerImportTasksTool(srv *server.MCPServer, svc *Service) {
	tool := mcp.NewTool(
		"import_tasks",
		mcp.WithDescription("Import tasks from Markdown or plain text. Top level items become tasks and their children become steps."),
		mcp.WithString("text",
			mcp.Required(),
			mcp.Description("Text to import."),
		),
		mcp.WithString("list",
			mcp.Description("Target list id or name; defaults to the default list."),
		),
	)

	srv.AddTool(tool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		text, err := request.RequireString("text")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		dto, err := svc.ImportTasks(ctx, text, request.GetString("list", ""))
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return toJSONResult(dto)
	})
}

func toJSONResult(data any) (*mcp.CallToolResult, error) {
	b, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("marshal error: %v", err)), nil
	}
	return mcp.NewToolResultText(string(b)), nil
}
