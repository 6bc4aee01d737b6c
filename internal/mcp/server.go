package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cast"

	"github.com/joescharf/issues/internal/models"
	"github.com/joescharf/issues/internal/store"
)

// Server exposes the issue store as MCP tools.
type Server struct {
	store   store.Store
	version string
}

// NewServer creates the MCP server wrapper.
func NewServer(s store.Store, version string) *Server {
	return &Server{store: s, version: version}
}

// MCPServer returns a configured mcp-go server with all tools registered.
func (s *Server) MCPServer() *server.MCPServer {
	srv := server.NewMCPServer("issues", s.version, server.WithToolCapabilities(true))

	srv.AddTool(s.listIssuesTool())
	srv.AddTool(s.createIssueTool())
	srv.AddTool(s.updateIssueTool())
	srv.AddTool(s.deleteIssueTool())
	srv.AddTool(s.listProjectsTool())

	return srv
}

// ServeStdio starts the stdio transport, blocking until ctx is cancelled.
func (s *Server) ServeStdio(ctx context.Context) error {
	stdioServer := server.NewStdioServer(s.MCPServer())
	return stdioServer.Listen(ctx, os.Stdin, os.Stdout)
}

// textFieldOptions declares the optional string issue fields shared by
// several tools.
func textFieldOptions(verb string) []mcp.ToolOption {
	return []mcp.ToolOption{
		mcp.WithString(models.FieldTitle, mcp.Description(verb+" issue title")),
		mcp.WithString(models.FieldText, mcp.Description(verb+" issue text")),
		mcp.WithString(models.FieldCreatedBy, mcp.Description(verb+" author")),
		mcp.WithString(models.FieldAssignedTo, mcp.Description(verb+" assignee")),
		mcp.WithString(models.FieldStatusText, mcp.Description(verb+" free-form status text")),
	}
}

// fieldsFrom copies the tool arguments into store fields, dropping the
// routing keys.
func fieldsFrom(args map[string]any) store.Fields {
	fields := make(store.Fields, len(args))
	for k, v := range args {
		if k == "project" || k == models.FieldID {
			continue
		}
		fields[k] = v
	}
	return fields
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// issues_list
func (s *Server) listIssuesTool() (mcp.Tool, server.ToolHandlerFunc) {
	opts := []mcp.ToolOption{
		mcp.WithDescription("List issues in a project. Every supplied filter must match; text filters are case-insensitive. Returns a JSON array."),
		mcp.WithString("project", mcp.Required(), mcp.Description("Project name")),
		mcp.WithString(models.FieldID, mcp.Description("Exact issue id")),
		mcp.WithString(models.FieldOpen, mcp.Description(`Open state: "", "0" or "false" select closed issues, anything else open ones`)),
		mcp.WithString(models.FieldCreatedOn, mcp.Description("Creation time, ISO-8601")),
		mcp.WithString(models.FieldUpdatedOn, mcp.Description("Last update time, ISO-8601")),
	}
	opts = append(opts, textFieldOptions("Filter by")...)
	return mcp.NewTool("issues_list", opts...), s.handleListIssues
}

func (s *Server) handleListIssues(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	project, err := request.RequireString("project")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: project"), nil
	}

	filters := store.Filters{}
	for k, v := range request.GetArguments() {
		if k == "project" {
			continue
		}
		if v == nil {
			filters[k] = ""
			continue
		}
		filters[k] = cast.ToString(v)
	}

	issues, err := s.store.ListIssues(ctx, project, filters)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to list issues: %v", err)), nil
	}
	return jsonResult(issues)
}

// issues_create
func (s *Server) createIssueTool() (mcp.Tool, server.ToolHandlerFunc) {
	opts := []mcp.ToolOption{
		mcp.WithDescription("Create an issue. issue_title, issue_text and created_by are required. Returns the created issue as JSON."),
		mcp.WithString("project", mcp.Required(), mcp.Description("Project name; created on first use")),
		mcp.WithBoolean(models.FieldOpen, mcp.Description("Initial open state; only false creates a closed issue")),
	}
	opts = append(opts, textFieldOptions("The")...)
	return mcp.NewTool("issues_create", opts...), s.handleCreateIssue
}

func (s *Server) handleCreateIssue(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	project, err := request.RequireString("project")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: project"), nil
	}

	issue, err := s.store.AddIssue(ctx, project, fieldsFrom(request.GetArguments()))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(issue)
}

// issues_update
func (s *Server) updateIssueTool() (mcp.Tool, server.ToolHandlerFunc) {
	opts := []mcp.ToolOption{
		mcp.WithDescription("Update an issue. Only non-empty text fields overwrite; open accepts booleans, numbers or strings (\"\", \"0\", \"false\" close the issue)."),
		mcp.WithString("project", mcp.Required(), mcp.Description("Project name")),
		mcp.WithString(models.FieldID, mcp.Required(), mcp.Description("Issue id")),
		mcp.WithString(models.FieldOpen, mcp.Description("New open state")),
	}
	opts = append(opts, textFieldOptions("New")...)
	return mcp.NewTool("issues_update", opts...), s.handleUpdateIssue
}

func (s *Server) handleUpdateIssue(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	project, err := request.RequireString("project")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: project"), nil
	}
	id := request.GetString(models.FieldID, "")

	if err := s.store.UpdateIssue(ctx, project, id, fieldsFrom(request.GetArguments())); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(map[string]string{"result": "successfully updated", models.FieldID: id})
}

// issues_delete
func (s *Server) deleteIssueTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("issues_delete",
		mcp.WithDescription("Delete an issue from a project."),
		mcp.WithString("project", mcp.Required(), mcp.Description("Project name")),
		mcp.WithString(models.FieldID, mcp.Required(), mcp.Description("Issue id")),
	)
	return tool, s.handleDeleteIssue
}

func (s *Server) handleDeleteIssue(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	project, err := request.RequireString("project")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: project"), nil
	}
	id := request.GetString(models.FieldID, "")

	if err := s.store.DeleteIssue(ctx, project, id); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(map[string]string{"result": "successfully deleted", models.FieldID: id})
}

// issues_projects
func (s *Server) listProjectsTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("issues_projects",
		mcp.WithDescription("List projects with their total and open issue counts."),
	)
	return tool, s.handleListProjects
}

func (s *Server) handleListProjects(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	projects, err := s.store.ListProjects(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to list projects: %v", err)), nil
	}
	return jsonResult(projects)
}
