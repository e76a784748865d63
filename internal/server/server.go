// Package server wires the gateway components and creates the MCP
// server instance.
//
// This is the composition root: it builds the transport client, the
// typed API layer, the resolver and synthesis components, and injects
// them into the tool handler. No business logic lives here — only
// wiring.
package server

import (
	"log/slog"
	"os"

	"github.com/mark3labs/mcp-go/server"

	"commbridge/internal/analytics"
	"commbridge/internal/audit"
	"commbridge/internal/community"
	"commbridge/internal/config"
	"commbridge/internal/dashboard"
	"commbridge/internal/dispatch"
	"commbridge/internal/resolve"
	"commbridge/internal/tools"
	"commbridge/internal/transport"
)

// Version is set at build time via ldflags.
var Version = "dev"

// New creates and configures the MCP server with the community tool
// registered. The returned cleanup function closes the audit store and
// must be called on shutdown; it is always non-nil and safe to call
// even when audit init failed.
func New(cfg *config.Config) (*server.MCPServer, func(), error) {
	// Logs go to stderr — stdout belongs to the stdio transport.
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	tc := transport.New(transport.Options{
		BaseURL: cfg.BaseURL,
		Token:   cfg.Token,
		TTL:     cfg.CacheTTL,
		Timeout: cfg.Timeout,
		Logger:  logger,
	})
	api := community.NewAPI(tc)
	resolver := resolve.New(api)
	dash := dashboard.New(api, logger)
	analyzer := analytics.New(api, logger)

	// Audit is an independent subsystem: if it fails to initialize the
	// gateway keeps working and manage/history reports it unavailable.
	cleanup := func() {}
	auditLog, auditErr := audit.New(cfg.AuditDBPath)
	if auditErr != nil {
		logger.Warn("audit subsystem disabled", "error", auditErr)
		auditLog = nil
	} else {
		cleanup = func() {
			if err := auditLog.Close(); err != nil {
				logger.Warn("audit store close", "error", err)
			}
		}
	}

	router := dispatch.New(api, resolver, dash, analyzer, auditLog, logger)

	s := server.NewMCPServer(
		"commbridge",
		Version,
		server.WithToolCapabilities(true),
		server.WithRecovery(),
		server.WithInstructions(serverInstructions()),
	)

	communityTool := tools.NewCommunityTool(router)
	s.AddTool(communityTool.Definition(), communityTool.Handle)

	return s, cleanup, nil
}

// serverInstructions tells the AI client how to use the gateway.
func serverInstructions() string {
	return `You have access to commbridge, a gateway to a community platform.

Everything goes through the single "community" tool. Pick a mode:

- dashboard: health overview — attention list (recent threads, new
  members, at-risk members), upcoming events, recent activity, summary
  counters. Start here when asked "how is the community doing?".
- analytics: one metric per call via the metric parameter:
  engagement_scores, channel_activity, event_metrics, course_progress,
  member_segments, growth, top_contributors. Use limit to cap ranked
  outputs (default 20).
- members: paginated listing (limit/offset; the response carries
  has_more and next_offset), or action=get with user for one member.
  detail=full adds profile fields.
- channels / threads / events / courses: raw listings. threads needs a
  channel; events supports action=attendance (with event_id) and
  action=create; courses supports action=progress.
- post / dm / manage: mutations. post needs channel, title, content.
  dm needs user and message. manage needs action (remove, reactivate,
  history) and user for the member actions.

Names are resolved for you: pass "general" or "Alex Chen" or an email
instead of IDs. If a name is ambiguous, the error lists each candidate
as "name (email)" — retry with the email or ID. If a channel is not
found, the error suggests similar channel names.

Failures never abort the tool call: look for an "error" key in the
result payload. Rate-limit errors are transient — wait and retry.
Reads are cached for about a minute, so tight polling loops are cheap
but may return slightly stale data.`
}
