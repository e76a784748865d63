// Package dispatch routes an inbound {mode, action, params} request to
// the correct handler and converts every failure into the uniform
// {"error": message} envelope. The tool call itself always succeeds at
// the protocol level; failure lives only inside the envelope.
//
// The inbound parameter bag is flat; each mode's handler receives its
// own narrow parameter struct, constructed and validated here at the
// dispatch boundary — missing-field checks never happen deep inside a
// handler, and they never reach the network layer.
package dispatch

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"commbridge/internal/analytics"
	"commbridge/internal/apierr"
	"commbridge/internal/audit"
	"commbridge/internal/community"
	"commbridge/internal/dashboard"
	"commbridge/internal/format"
	"commbridge/internal/resolve"
)

// DefaultPageSize is the members-mode page size.
const DefaultPageSize = 20

// timeNow is a package-level variable for testability.
var timeNow = time.Now

// Request is the flat inbound parameter bag. The MCP layer fills it
// verbatim; the router narrows it per mode.
type Request struct {
	Mode     string
	Action   string
	Channel  string
	User     string
	EventID  string
	CourseID string
	Metric   string
	Title    string
	Content  string
	Message  string
	Name     string
	StartsAt string
	Duration int
	Limit    int
	Offset   int
	Detail   string
}

// Router dispatches requests over the synthesis and passthrough modes.
type Router struct {
	api       *community.API
	resolver  *resolve.Resolver
	dashboard *dashboard.Builder
	analytics *analytics.Analyzer
	auditLog  *audit.Store // nil when the audit subsystem is disabled
	logger    *slog.Logger
}

// New creates a Router. auditLog may be nil.
func New(
	api *community.API,
	resolver *resolve.Resolver,
	db *dashboard.Builder,
	an *analytics.Analyzer,
	auditLog *audit.Store,
	logger *slog.Logger,
) *Router {
	return &Router{
		api:       api,
		resolver:  resolver,
		dashboard: db,
		analytics: an,
		auditLog:  auditLog,
		logger:    logger,
	}
}

// Handle runs one request. It never returns an error: every failure is
// translated into the {"error": message} envelope.
func (r *Router) Handle(ctx context.Context, req Request) map[string]any {
	start := timeNow()
	result, err := r.route(ctx, req)
	r.record(req, err, timeNow().Sub(start))

	if err != nil {
		r.logger.Warn("request failed",
			"mode", req.Mode,
			"action", req.Action,
			"error", err)
		return map[string]any{"error": apierr.Message(err)}
	}
	return result
}

func (r *Router) route(ctx context.Context, req Request) (map[string]any, error) {
	switch req.Mode {
	case "dashboard":
		return r.dashboard.Build(ctx)
	case "analytics":
		return r.analytics.Compute(ctx, req.Metric, req.Limit)
	case "members":
		return r.handleMembers(ctx, req)
	case "channels":
		return r.handleChannels(ctx)
	case "threads":
		return r.handleThreads(ctx, req)
	case "events":
		return r.handleEvents(ctx, req)
	case "courses":
		return r.handleCourses(ctx, req)
	case "post":
		return r.handlePost(ctx, req)
	case "dm":
		return r.handleDM(ctx, req)
	case "manage":
		return r.handleManage(ctx, req)
	default:
		return nil, &apierr.NotFoundError{
			Resource: "mode",
			Input:    req.Mode,
			Suggestions: []string{
				"dashboard", "analytics", "members", "channels", "threads",
				"events", "courses", "post", "dm", "manage",
			},
		}
	}
}

// record appends to the audit log, best-effort.
func (r *Router) record(req Request, err error, elapsed time.Duration) {
	if r.auditLog == nil {
		return
	}
	e := audit.Entry{
		Mode:       req.Mode,
		Action:     req.Action,
		Outcome:    "ok",
		DurationMS: elapsed.Milliseconds(),
	}
	if err != nil {
		e.Outcome = "error"
		e.Detail = apierr.Message(err)
	}
	if recErr := r.auditLog.Record(e); recErr != nil {
		r.logger.Warn("audit record failed", "error", recErr)
	}
}

// ─── members ────────────────────────────────────────────────────────────────

type membersParams struct {
	action string
	user   string
	detail string
	limit  int
	offset int
}

func (r *Router) handleMembers(ctx context.Context, req Request) (map[string]any, error) {
	p := membersParams{
		action: req.Action,
		user:   req.User,
		detail: req.Detail,
		limit:  req.Limit,
		offset: req.Offset,
	}
	if p.limit <= 0 {
		p.limit = DefaultPageSize
	}
	if p.detail == "" {
		p.detail = "summary"
	}

	if p.action == "get" {
		if p.user == "" {
			return nil, &apierr.ValidationError{Fields: []string{"user"}}
		}
		u, err := r.resolver.User(ctx, p.user)
		if err != nil {
			return nil, err
		}
		return map[string]any{"member": format.ProjectUser(u, p.detail)}, nil
	}

	users, err := r.api.ListAllMembers(ctx)
	if err != nil {
		return nil, err
	}

	// Re-paginate the full in-memory list by limit/offset.
	total := len(users)
	offset := p.offset
	if offset < 0 {
		offset = 0
	}
	if offset > total {
		offset = total
	}
	end := offset + p.limit
	if end > total {
		end = total
	}
	page := users[offset:end]

	members := make([]map[string]any, len(page))
	for i := range page {
		members[i] = format.ProjectUser(&page[i], p.detail)
	}

	out := map[string]any{
		"members": members,
		"count":   len(page),
		"total":   total,
	}
	if end < total {
		out["has_more"] = true
		out["next_offset"] = end
	} else {
		out["has_more"] = false
	}
	return out, nil
}

// ─── channels & threads ─────────────────────────────────────────────────────

func (r *Router) handleChannels(ctx context.Context) (map[string]any, error) {
	channels, err := r.api.ListChannels(ctx)
	if err != nil {
		return nil, err
	}
	rows := make([]map[string]any, len(channels))
	for i, ch := range channels {
		rows[i] = map[string]any{"id": ch.ID, "name": ch.Name}
	}
	return map[string]any{"channels": rows, "count": len(rows)}, nil
}

type threadsParams struct {
	channel string
	limit   int
}

func (r *Router) handleThreads(ctx context.Context, req Request) (map[string]any, error) {
	p := threadsParams{channel: req.Channel, limit: req.Limit}
	if p.channel == "" {
		return nil, &apierr.ValidationError{Fields: []string{"channel"}}
	}
	if p.limit <= 0 {
		p.limit = DefaultPageSize
	}

	channelID, err := r.resolver.Channel(ctx, p.channel)
	if err != nil {
		return nil, err
	}
	threads, err := r.api.ListThreads(ctx, channelID)
	if err != nil {
		return nil, err
	}

	sort.Slice(threads, func(i, j int) bool {
		return threads[i].CreatedAt.After(threads[j].CreatedAt)
	})
	if len(threads) > p.limit {
		threads = threads[:p.limit]
	}

	now := timeNow()
	rows := make([]map[string]any, len(threads))
	for i, t := range threads {
		rows[i] = map[string]any{
			"id":       t.ID,
			"title":    t.Title,
			"author":   t.AuthorID,
			"preview":  format.Preview(t.Content, 0),
			"age":      format.RelativeTime(t.CreatedAt, now),
			"comments": len(t.Comments),
		}
	}
	return map[string]any{"channel_id": channelID, "threads": rows, "count": len(rows)}, nil
}

// ─── events ─────────────────────────────────────────────────────────────────

type eventsParams struct {
	action   string
	eventID  string
	name     string
	startsAt string
	duration int
}

func (r *Router) handleEvents(ctx context.Context, req Request) (map[string]any, error) {
	p := eventsParams{
		action:   req.Action,
		eventID:  req.EventID,
		name:     req.Name,
		startsAt: req.StartsAt,
		duration: req.Duration,
	}

	switch p.action {
	case "attendance":
		if p.eventID == "" {
			return nil, &apierr.ValidationError{Fields: []string{"event_id"}}
		}
		records, err := r.api.Attendance(ctx, p.eventID)
		if err != nil {
			return nil, err
		}
		return map[string]any{
			"event_id":  p.eventID,
			"attendees": len(records),
			"records":   records,
		}, nil

	case "create":
		var missing []string
		if p.name == "" {
			missing = append(missing, "name")
		}
		if p.startsAt == "" {
			missing = append(missing, "starts_at")
		}
		if len(missing) > 0 {
			return nil, &apierr.ValidationError{Fields: missing}
		}
		e, err := r.api.CreateEvent(ctx, p.name, p.startsAt, p.duration)
		if err != nil {
			return nil, err
		}
		return map[string]any{"created": true, "event_id": e.ID, "name": e.Name}, nil

	default:
		events, err := r.api.ListEvents(ctx)
		if err != nil {
			return nil, err
		}
		now := timeNow()
		rows := make([]map[string]any, len(events))
		for i, e := range events {
			rows[i] = map[string]any{
				"id":        e.ID,
				"name":      e.Name,
				"starts_at": e.StartsAt,
				"upcoming":  e.StartsAt.After(now),
			}
		}
		return map[string]any{"events": rows, "count": len(rows)}, nil
	}
}

// ─── courses ────────────────────────────────────────────────────────────────

func (r *Router) handleCourses(ctx context.Context, req Request) (map[string]any, error) {
	if req.Action == "progress" {
		result, err := r.analytics.Compute(ctx, "course_progress", req.Limit)
		if err != nil {
			return nil, err
		}
		if req.CourseID != "" {
			result = filterCourse(result, req.CourseID)
		}
		return result, nil
	}

	courses, err := r.api.ListCourses(ctx)
	if err != nil {
		return nil, err
	}
	rows := make([]map[string]any, len(courses))
	for i, c := range courses {
		rows[i] = map[string]any{
			"id":      c.ID,
			"name":    c.Name,
			"lessons": len(c.LessonIDs),
		}
	}
	return map[string]any{"courses": rows, "count": len(rows)}, nil
}

// filterCourse narrows a course_progress payload to one course.
func filterCourse(result map[string]any, courseID string) map[string]any {
	rows, ok := result["courses"].([]map[string]any)
	if !ok {
		return result
	}
	for _, row := range rows {
		if row["course_id"] == courseID {
			return map[string]any{"metric": "course_progress", "courses": []map[string]any{row}}
		}
	}
	return map[string]any{"metric": "course_progress", "courses": []map[string]any{}}
}

// ─── thin passthroughs ──────────────────────────────────────────────────────

func (r *Router) handlePost(ctx context.Context, req Request) (map[string]any, error) {
	var missing []string
	if req.Channel == "" {
		missing = append(missing, "channel")
	}
	if req.Title == "" {
		missing = append(missing, "title")
	}
	if req.Content == "" {
		missing = append(missing, "content")
	}
	if len(missing) > 0 {
		return nil, &apierr.ValidationError{Fields: missing}
	}

	channelID, err := r.resolver.Channel(ctx, req.Channel)
	if err != nil {
		return nil, err
	}
	t, err := r.api.CreateThread(ctx, channelID, req.Title, req.Content)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"posted":     true,
		"thread_id":  t.ID,
		"channel_id": channelID,
	}, nil
}

func (r *Router) handleDM(ctx context.Context, req Request) (map[string]any, error) {
	var missing []string
	if req.User == "" {
		missing = append(missing, "user")
	}
	if req.Message == "" {
		missing = append(missing, "message")
	}
	if len(missing) > 0 {
		return nil, &apierr.ValidationError{Fields: missing}
	}

	u, err := r.resolver.User(ctx, req.User)
	if err != nil {
		return nil, err
	}
	if err := r.api.SendDirectMessage(ctx, u.ID, req.Message); err != nil {
		return nil, err
	}
	return map[string]any{"sent": true, "recipient": u.Name, "user_id": u.ID}, nil
}

func (r *Router) handleManage(ctx context.Context, req Request) (map[string]any, error) {
	switch req.Action {
	case "history":
		if r.auditLog == nil {
			return map[string]any{"history": []any{}, "note": "audit log unavailable"}, nil
		}
		entries, err := r.auditLog.Recent(req.Limit)
		if err != nil {
			return nil, err
		}
		return map[string]any{"history": entries, "count": len(entries)}, nil

	case "remove", "reactivate":
		if req.User == "" {
			return nil, &apierr.ValidationError{Fields: []string{"user"}}
		}
		u, err := r.resolver.User(ctx, req.User)
		if err != nil {
			return nil, err
		}
		if req.Action == "remove" {
			err = r.api.RemoveMember(ctx, u.ID)
		} else {
			err = r.api.ReactivateMember(ctx, u.ID)
		}
		if err != nil {
			return nil, err
		}
		return map[string]any{"action": req.Action, "user_id": u.ID, "name": u.Name, "done": true}, nil

	default:
		return nil, &apierr.NotFoundError{
			Resource:    "manage action",
			Input:       req.Action,
			Suggestions: []string{"remove", "reactivate", "history"},
		}
	}
}
