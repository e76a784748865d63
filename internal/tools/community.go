// Package tools implements the MCP tool surface of the gateway.
//
// The gateway exposes a single "community" tool: a mode selector plus
// a flat set of optional parameters. The tool handler fills the
// dispatch request verbatim and hands it to the router — all
// validation, resolution, and synthesis happen behind the dispatch
// boundary, and every failure comes back inside the result payload as
// an {"error": message} envelope rather than a protocol error.
package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"commbridge/internal/dispatch"
)

// CommunityTool handles the community MCP tool.
type CommunityTool struct {
	router *dispatch.Router
}

// NewCommunityTool creates a CommunityTool backed by the given router.
func NewCommunityTool(router *dispatch.Router) *CommunityTool {
	return &CommunityTool{router: router}
}

// Definition returns the MCP tool definition for registration.
func (t *CommunityTool) Definition() mcp.Tool {
	return mcp.NewTool("community",
		mcp.WithDescription(
			"Interact with the community platform. Select a mode: "+
				"dashboard (health overview and attention list), "+
				"analytics (engagement metrics — see the metric parameter), "+
				"members (list or get), channels, threads (per channel), "+
				"events (list, attendance, create), courses (list, progress), "+
				"post (create a thread), dm (direct message a member), "+
				"manage (remove, reactivate, history). "+
				"Channels and members accept human names or emails — they are "+
				"resolved to IDs automatically.",
		),
		mcp.WithString("mode",
			mcp.Required(),
			mcp.Description("One of: dashboard, analytics, members, channels, threads, events, courses, post, dm, manage"),
		),
		mcp.WithString("action",
			mcp.Description("Mode-specific action (members: get; events: attendance, create; courses: progress; manage: remove, reactivate, history)"),
		),
		mcp.WithString("channel",
			mcp.Description("Channel name or ID (threads, post)"),
		),
		mcp.WithString("user",
			mcp.Description("Member name, email, or ID (members get, dm, manage)"),
		),
		mcp.WithString("event_id",
			mcp.Description("Event ID (events attendance)"),
		),
		mcp.WithString("course_id",
			mcp.Description("Course ID (courses progress)"),
		),
		mcp.WithString("metric",
			mcp.Description("Analytics metric: engagement_scores, channel_activity, event_metrics, course_progress, member_segments, growth, top_contributors"),
		),
		mcp.WithString("title",
			mcp.Description("Thread title (post)"),
		),
		mcp.WithString("content",
			mcp.Description("Thread body (post)"),
		),
		mcp.WithString("message",
			mcp.Description("Message body (dm)"),
		),
		mcp.WithString("name",
			mcp.Description("Event name (events create)"),
		),
		mcp.WithString("starts_at",
			mcp.Description("Event start time, RFC 3339 (events create)"),
		),
		mcp.WithNumber("duration_minutes",
			mcp.Description("Event duration in minutes (events create)"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Page size / result cap (default 20, applied after sorting)"),
		),
		mcp.WithNumber("offset",
			mcp.Description("Pagination offset (members)"),
		),
		mcp.WithString("detail",
			mcp.Description("Member projection detail: summary (default) or full"),
		),
	)
}

// Handle processes the community tool call.
func (t *CommunityTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	mode := req.GetString("mode", "")
	if mode == "" {
		return mcp.NewToolResultError("'mode' is required"), nil
	}

	result := t.router.Handle(ctx, dispatch.Request{
		Mode:     mode,
		Action:   req.GetString("action", ""),
		Channel:  req.GetString("channel", ""),
		User:     req.GetString("user", ""),
		EventID:  req.GetString("event_id", ""),
		CourseID: req.GetString("course_id", ""),
		Metric:   req.GetString("metric", ""),
		Title:    req.GetString("title", ""),
		Content:  req.GetString("content", ""),
		Message:  req.GetString("message", ""),
		Name:     req.GetString("name", ""),
		StartsAt: req.GetString("starts_at", ""),
		Duration: intArg(req, "duration_minutes", 0),
		Limit:    intArg(req, "limit", 0),
		Offset:   intArg(req, "offset", 0),
		Detail:   req.GetString("detail", ""),
	})

	payload, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("encoding result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(payload)), nil
}
