// Package mcp exposes the meeting tools to AI clients over the Model Context
// Protocol. Authentication and workspace resolution happen in the HTTP
// middleware; handlers read both from the request context.
package mcp

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/meetingintel/server/internal/auth"
	"github.com/meetingintel/server/internal/domain"
	"github.com/meetingintel/server/internal/tools"
	"github.com/meetingintel/server/internal/workspace"
)

// Server owns the MCP tool registrations.
type Server struct {
	tools    *tools.Service
	resolver *workspace.Resolver
	logger   *zap.Logger
	mcp      *server.MCPServer
}

// NewServer registers every tool on a fresh MCP server.
func NewServer(service *tools.Service, resolver *workspace.Resolver, version string, logger *zap.Logger) *Server {
	s := &Server{
		tools:    service,
		resolver: resolver,
		logger:   logger,
		mcp: server.NewMCPServer("meetingintel", version,
			server.WithToolCapabilities(true),
		),
	}
	s.registerTools()
	return s
}

// HTTPServer returns the streamable HTTP transport for mounting on a router.
func (s *Server) HTTPServer() *server.StreamableHTTPServer {
	return server.NewStreamableHTTPServer(s.mcp, server.WithStateLess(true))
}

func (s *Server) registerTools() {
	workspaceArg := mcp.WithString("workspace", mcp.Description("Workspace slug or id; defaults to your default workspace"))

	s.mcp.AddTool(mcp.NewTool("list_workspaces",
		mcp.WithDescription("List the workspaces you belong to and which one is active"),
		workspaceArg,
	), s.handleListWorkspaces)

	s.mcp.AddTool(mcp.NewTool("list_meetings",
		mcp.WithDescription("List recent meetings, newest first"),
		workspaceArg,
		mcp.WithNumber("limit", mcp.Description("Maximum meetings to return (default 20, max 100)")),
		mcp.WithNumber("days_back", mcp.Description("Only meetings from the last N days")),
	), s.handleListMeetings)

	s.mcp.AddTool(mcp.NewTool("get_meeting",
		mcp.WithDescription("Get one meeting with its linked decisions and actions"),
		workspaceArg,
		mcp.WithNumber("meeting_id", mcp.Required(), mcp.Description("Meeting id")),
	), s.handleGetMeeting)

	s.mcp.AddTool(mcp.NewTool("search_meetings",
		mcp.WithDescription("Search meeting titles and notes"),
		workspaceArg,
		mcp.WithString("query", mcp.Required(), mcp.Description("Search text, at least 2 characters")),
		mcp.WithNumber("limit", mcp.Description("Maximum results (default 20, max 50)")),
	), s.handleSearchMeetings)

	s.mcp.AddTool(mcp.NewTool("create_meeting",
		mcp.WithDescription("Create a meeting"),
		workspaceArg,
		mcp.WithString("title", mcp.Required(), mcp.Description("Meeting title")),
		mcp.WithString("meeting_date", mcp.Description("Date as YYYY-MM-DD")),
		mcp.WithString("attendees", mcp.Description("Comma-separated attendee names")),
		mcp.WithString("notes", mcp.Description("Meeting notes")),
	), s.handleCreateMeeting)

	s.mcp.AddTool(mcp.NewTool("update_meeting",
		mcp.WithDescription("Update fields of an existing meeting"),
		workspaceArg,
		mcp.WithNumber("meeting_id", mcp.Required(), mcp.Description("Meeting id")),
		mcp.WithString("title", mcp.Description("New title")),
		mcp.WithString("meeting_date", mcp.Description("New date as YYYY-MM-DD")),
		mcp.WithString("attendees", mcp.Description("Comma-separated attendee names")),
		mcp.WithString("notes", mcp.Description("New notes")),
	), s.handleUpdateMeeting)

	s.mcp.AddTool(mcp.NewTool("delete_meeting",
		mcp.WithDescription("Delete a meeting; linked records are kept with the link cleared"),
		workspaceArg,
		mcp.WithNumber("meeting_id", mcp.Required(), mcp.Description("Meeting id")),
	), s.handleDeleteMeeting)

	s.mcp.AddTool(mcp.NewTool("list_actions",
		mcp.WithDescription("List action items with optional filters"),
		workspaceArg,
		mcp.WithString("status", mcp.Description("Filter by status: Open, Complete or Parked")),
		mcp.WithString("owner", mcp.Description("Filter by owner name")),
		mcp.WithNumber("meeting_id", mcp.Description("Filter by meeting")),
		mcp.WithNumber("limit", mcp.Description("Maximum actions to return (default 20, max 200)")),
	), s.handleListActions)

	s.mcp.AddTool(mcp.NewTool("get_action",
		mcp.WithDescription("Get one action item"),
		workspaceArg,
		mcp.WithNumber("action_id", mcp.Required(), mcp.Description("Action id")),
	), s.handleGetAction)

	s.mcp.AddTool(mcp.NewTool("create_action",
		mcp.WithDescription("Create an open action item"),
		workspaceArg,
		mcp.WithString("description", mcp.Required(), mcp.Description("What needs doing")),
		mcp.WithString("owner", mcp.Description("Who owns it")),
		mcp.WithString("due_date", mcp.Description("Due date as YYYY-MM-DD")),
		mcp.WithNumber("meeting_id", mcp.Description("Meeting to link the action to")),
	), s.handleCreateAction)

	s.mcp.AddTool(mcp.NewTool("update_action",
		mcp.WithDescription("Update fields of an existing action"),
		workspaceArg,
		mcp.WithNumber("action_id", mcp.Required(), mcp.Description("Action id")),
		mcp.WithString("description", mcp.Description("New description")),
		mcp.WithString("owner", mcp.Description("New owner")),
		mcp.WithString("status", mcp.Description("New status: Open, Complete or Parked")),
		mcp.WithString("due_date", mcp.Description("New due date as YYYY-MM-DD")),
	), s.handleUpdateAction)

	s.mcp.AddTool(mcp.NewTool("complete_action",
		mcp.WithDescription("Mark an action Complete"),
		workspaceArg,
		mcp.WithNumber("action_id", mcp.Required(), mcp.Description("Action id")),
	), s.handleCompleteAction)

	s.mcp.AddTool(mcp.NewTool("park_action",
		mcp.WithDescription("Mark an action Parked"),
		workspaceArg,
		mcp.WithNumber("action_id", mcp.Required(), mcp.Description("Action id")),
	), s.handleParkAction)

	s.mcp.AddTool(mcp.NewTool("delete_action",
		mcp.WithDescription("Delete an action item"),
		workspaceArg,
		mcp.WithNumber("action_id", mcp.Required(), mcp.Description("Action id")),
	), s.handleDeleteAction)

	s.mcp.AddTool(mcp.NewTool("list_decisions",
		mcp.WithDescription("List recorded decisions"),
		workspaceArg,
		mcp.WithNumber("meeting_id", mcp.Description("Filter by meeting")),
		mcp.WithNumber("limit", mcp.Description("Maximum decisions to return (default 20, max 200)")),
	), s.handleListDecisions)

	s.mcp.AddTool(mcp.NewTool("create_decision",
		mcp.WithDescription("Record a decision"),
		workspaceArg,
		mcp.WithString("description", mcp.Required(), mcp.Description("What was decided")),
		mcp.WithString("decided_by", mcp.Description("Who made the call")),
		mcp.WithNumber("meeting_id", mcp.Description("Meeting to link the decision to")),
	), s.handleCreateDecision)

	s.mcp.AddTool(mcp.NewTool("delete_decision",
		mcp.WithDescription("Delete a decision"),
		workspaceArg,
		mcp.WithNumber("decision_id", mcp.Required(), mcp.Description("Decision id")),
	), s.handleDeleteDecision)
}

// workspaceContext returns the request's workspace, re-resolving when the
// tool call names a different workspace than the middleware default.
func (s *Server) workspaceContext(ctx context.Context, args map[string]any) (*workspace.Context, error) {
	wctx, ok := workspace.FromContext(ctx)
	requested := argString(args, "workspace")
	if ok && requested == "" {
		return wctx, nil
	}

	principal, havePrincipal := auth.PrincipalFromContext(ctx)
	if !havePrincipal {
		return nil, fmt.Errorf("%w: request is not authenticated", domain.ErrUnauthenticated)
	}
	return s.resolver.Resolve(ctx, principal, requested)
}

func (s *Server) handleListWorkspaces(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	wctx, err := s.workspaceContext(ctx, request.GetArguments())
	if err != nil {
		return toolError(err), nil
	}

	type view struct {
		ID       int64  `json:"id"`
		Slug     string `json:"slug"`
		Name     string `json:"name"`
		Role     string `json:"role"`
		Archived bool   `json:"archived"`
		Active   bool   `json:"active"`
	}
	views := make([]view, 0, len(wctx.Memberships))
	for _, m := range wctx.Memberships {
		views = append(views, view{
			ID:       m.WorkspaceID,
			Slug:     m.Slug,
			Name:     m.Name,
			Role:     string(m.Role),
			Archived: m.IsArchived,
			Active:   m.WorkspaceID == wctx.Active.WorkspaceID,
		})
	}
	return toolJSON(map[string]any{"workspaces": views, "count": len(views)})
}

func (s *Server) handleListMeetings(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	wctx, err := s.workspaceContext(ctx, args)
	if err != nil {
		return toolError(err), nil
	}
	meetings, err := s.tools.ListMeetings(ctx, wctx, tools.ListMeetingsInput{
		Limit:    argInt(args, "limit"),
		DaysBack: argInt(args, "days_back"),
	})
	if err != nil {
		return toolError(err), nil
	}
	return toolJSON(map[string]any{"meetings": meetings, "count": len(meetings)})
}

func (s *Server) handleGetMeeting(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	wctx, err := s.workspaceContext(ctx, args)
	if err != nil {
		return toolError(err), nil
	}
	id, err := requiredID(args, "meeting_id")
	if err != nil {
		return toolError(err), nil
	}
	detail, err := s.tools.GetMeeting(ctx, wctx, id)
	if err != nil {
		return toolError(err), nil
	}
	return toolJSON(detail)
}

func (s *Server) handleSearchMeetings(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	wctx, err := s.workspaceContext(ctx, args)
	if err != nil {
		return toolError(err), nil
	}
	meetings, err := s.tools.SearchMeetings(ctx, wctx, tools.SearchMeetingsInput{
		Query: argString(args, "query"),
		Limit: argInt(args, "limit"),
	})
	if err != nil {
		return toolError(err), nil
	}
	return toolJSON(map[string]any{"meetings": meetings, "count": len(meetings)})
}

func (s *Server) handleCreateMeeting(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	wctx, err := s.workspaceContext(ctx, args)
	if err != nil {
		return toolError(err), nil
	}
	meeting, err := s.tools.CreateMeeting(ctx, wctx, tools.CreateMeetingInput{
		Title:       argString(args, "title"),
		MeetingDate: argString(args, "meeting_date"),
		Attendees:   splitList(argString(args, "attendees")),
		Notes:       argString(args, "notes"),
	})
	if err != nil {
		return toolError(err), nil
	}
	return toolJSON(meeting)
}

func (s *Server) handleUpdateMeeting(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	wctx, err := s.workspaceContext(ctx, args)
	if err != nil {
		return toolError(err), nil
	}
	id, err := requiredID(args, "meeting_id")
	if err != nil {
		return toolError(err), nil
	}
	in := tools.UpdateMeetingInput{
		Title:       argStringPtr(args, "title"),
		MeetingDate: argStringPtr(args, "meeting_date"),
		Notes:       argStringPtr(args, "notes"),
	}
	if attendees := argStringPtr(args, "attendees"); attendees != nil {
		in.Attendees = splitList(*attendees)
	}
	meeting, err := s.tools.UpdateMeeting(ctx, wctx, id, in)
	if err != nil {
		return toolError(err), nil
	}
	return toolJSON(meeting)
}

func (s *Server) handleDeleteMeeting(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	wctx, err := s.workspaceContext(ctx, args)
	if err != nil {
		return toolError(err), nil
	}
	id, err := requiredID(args, "meeting_id")
	if err != nil {
		return toolError(err), nil
	}
	if err := s.tools.DeleteMeeting(ctx, wctx, id); err != nil {
		return toolError(err), nil
	}
	return toolJSON(map[string]any{"deleted": id})
}

func (s *Server) handleListActions(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	wctx, err := s.workspaceContext(ctx, args)
	if err != nil {
		return toolError(err), nil
	}
	actions, err := s.tools.ListActions(ctx, wctx, tools.ListActionsInput{
		Status:    argString(args, "status"),
		Owner:     argString(args, "owner"),
		MeetingID: argIDPtr(args, "meeting_id"),
		Limit:     argInt(args, "limit"),
	})
	if err != nil {
		return toolError(err), nil
	}
	return toolJSON(map[string]any{"actions": actions, "count": len(actions)})
}

func (s *Server) handleGetAction(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	wctx, err := s.workspaceContext(ctx, args)
	if err != nil {
		return toolError(err), nil
	}
	id, err := requiredID(args, "action_id")
	if err != nil {
		return toolError(err), nil
	}
	action, err := s.tools.GetAction(ctx, wctx, id)
	if err != nil {
		return toolError(err), nil
	}
	return toolJSON(action)
}

func (s *Server) handleCreateAction(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	wctx, err := s.workspaceContext(ctx, args)
	if err != nil {
		return toolError(err), nil
	}
	action, err := s.tools.CreateAction(ctx, wctx, tools.CreateActionInput{
		Description: argString(args, "description"),
		Owner:       argString(args, "owner"),
		DueDate:     argString(args, "due_date"),
		MeetingID:   argIDPtr(args, "meeting_id"),
	})
	if err != nil {
		return toolError(err), nil
	}
	return toolJSON(action)
}

func (s *Server) handleUpdateAction(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	wctx, err := s.workspaceContext(ctx, args)
	if err != nil {
		return toolError(err), nil
	}
	id, err := requiredID(args, "action_id")
	if err != nil {
		return toolError(err), nil
	}
	action, err := s.tools.UpdateAction(ctx, wctx, id, tools.UpdateActionInput{
		Description: argStringPtr(args, "description"),
		Owner:       argStringPtr(args, "owner"),
		Status:      argStringPtr(args, "status"),
		DueDate:     argStringPtr(args, "due_date"),
	})
	if err != nil {
		return toolError(err), nil
	}
	return toolJSON(action)
}

func (s *Server) handleCompleteAction(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return s.statusChange(ctx, request, s.tools.CompleteAction)
}

func (s *Server) handleParkAction(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return s.statusChange(ctx, request, s.tools.ParkAction)
}

func (s *Server) statusChange(
	ctx context.Context,
	request mcp.CallToolRequest,
	change func(context.Context, *workspace.Context, int64) (*tools.Action, error),
) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	wctx, err := s.workspaceContext(ctx, args)
	if err != nil {
		return toolError(err), nil
	}
	id, err := requiredID(args, "action_id")
	if err != nil {
		return toolError(err), nil
	}
	action, err := change(ctx, wctx, id)
	if err != nil {
		return toolError(err), nil
	}
	return toolJSON(action)
}

func (s *Server) handleDeleteAction(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	wctx, err := s.workspaceContext(ctx, args)
	if err != nil {
		return toolError(err), nil
	}
	id, err := requiredID(args, "action_id")
	if err != nil {
		return toolError(err), nil
	}
	if err := s.tools.DeleteAction(ctx, wctx, id); err != nil {
		return toolError(err), nil
	}
	return toolJSON(map[string]any{"deleted": id})
}

func (s *Server) handleListDecisions(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	wctx, err := s.workspaceContext(ctx, args)
	if err != nil {
		return toolError(err), nil
	}
	decisions, err := s.tools.ListDecisions(ctx, wctx, tools.ListDecisionsInput{
		MeetingID: argIDPtr(args, "meeting_id"),
		Limit:     argInt(args, "limit"),
	})
	if err != nil {
		return toolError(err), nil
	}
	return toolJSON(map[string]any{"decisions": decisions, "count": len(decisions)})
}

func (s *Server) handleCreateDecision(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	wctx, err := s.workspaceContext(ctx, args)
	if err != nil {
		return toolError(err), nil
	}
	decision, err := s.tools.CreateDecision(ctx, wctx, tools.CreateDecisionInput{
		Description: argString(args, "description"),
		DecidedBy:   argString(args, "decided_by"),
		MeetingID:   argIDPtr(args, "meeting_id"),
	})
	if err != nil {
		return toolError(err), nil
	}
	return toolJSON(decision)
}

func (s *Server) handleDeleteDecision(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	wctx, err := s.workspaceContext(ctx, args)
	if err != nil {
		return toolError(err), nil
	}
	id, err := requiredID(args, "decision_id")
	if err != nil {
		return toolError(err), nil
	}
	if err := s.tools.DeleteDecision(ctx, wctx, id); err != nil {
		return toolError(err), nil
	}
	return toolJSON(map[string]any{"deleted": id})
}
