package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

func registerResources(srv *server.MCPServer, svc *Service) {
	srv.AddResource(
		mcp.NewResource("taskpad://lists", "Lists",
			mcp.WithResourceDescription("All task lists with counts."),
			mcp.WithMIMEType("application/json"),
		),
		jsonResource(func(ctx context.Context, _ mcp.ReadResourceRequest) (any, error) {
			lists, err := svc.ListLists(ctx)
			if err != nil {
				return nil, err
			}
			return map[string]any{"lists": lists, "count": len(lists)}, nil
		}),
	)

	srv.AddResourceTemplate(
		mcp.NewResourceTemplate("taskpad://lists/{list}", "List Tasks",
			mcp.WithTemplateDescription("Tasks that belong to a list, by id or name."),
			mcp.WithTemplateMIMEType("application/json"),
		),
		jsonResource(func(ctx context.Context, request mcp.ReadResourceRequest) (any, error) {
			list := argument(request, "list")
			if list == "" {
				return nil, fmt.Errorf("list is required")
			}
			tasks, err := svc.ListTasks(ctx, ListTasksOptions{List: list})
			if err != nil {
				return nil, err
			}
			return map[string]any{"list": list, "count": len(tasks), "tasks": tasks}, nil
		}),
	)

	srv.AddResourceTemplate(
		mcp.NewResourceTemplate("taskpad://notes/{id}", "Note",
			mcp.WithTemplateDescription("A note with its Markdown content."),
			mcp.WithTemplateMIMEType("application/json"),
		),
		jsonResource(func(ctx context.Context, request mcp.ReadResourceRequest) (any, error) {
			id := argument(request, "id")
			if id == "" {
				return nil, fmt.Errorf("note id is required")
			}
			note, err := svc.NoteByID(ctx, id)
			if err != nil {
				return nil, err
			}
			return map[string]any{"note": note}, nil
		}),
	)
}

// jsonResource adapts fn into a resource handler that answers with one JSON
// document at the requested URI.
func jsonResource(fn func(context.Context, mcp.ReadResourceRequest) (any, error)) func(context.Context, mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		payload, err := fn(ctx, request)
		if err != nil {
			return nil, err
		}
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      request.Params.URI,
				MIMEType: "application/json",
				Text:     string(data),
			},
		}, nil
	}
}

// argument reads a template variable, which mcp-go may deliver as a string
// or a single element slice.
func argument(request mcp.ReadResourceRequest, name string) string {
	switch v := request.Params.Arguments[name].(type) {
	case string:
		return v
	case []string:
		if len(v) > 0 {
			return v[0]
		}
	}
	return ""
}
