// Package dashboard builds the community health overview: a
// prioritized attention list, upcoming events, recent activity, and
// summary counters, all synthesized from concurrent upstream fetches.
package dashboard

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"commbridge/internal/aggregate"
	"commbridge/internal/community"
	"commbridge/internal/format"
)

const (
	// recentThreadWindow defines a "recent" thread.
	recentThreadWindow = 7 * 24 * time.Hour

	// atRiskWindow: a member with past activity but no thread inside
	// this window is flagged at-risk.
	atRiskWindow = 30 * 24 * time.Hour

	maxNewMembers     = 5
	maxAtRiskMembers  = 5
	maxAttentionItems = 15
	maxUpcomingEvents = 5
	maxRecentActivity = 10
)

// timeNow is a package-level variable for testability.
var timeNow = time.Now

// Builder assembles the dashboard view.
type Builder struct {
	api    *community.API
	logger *slog.Logger
}

// New creates a Builder.
func New(api *community.API, logger *slog.Logger) *Builder {
	return &Builder{api: api, logger: logger}
}

// Build fetches users, channels, events, courses, and notifications
// concurrently, aggregates threads across the first channels, and
// reduces everything into a single JSON-serializable payload.
//
// The notifications fetch is best-effort: its failure alone never
// fails the dashboard. A channel whose thread fetch fails contributes
// no threads but the call still succeeds.
func (b *Builder) Build(ctx context.Context) (map[string]any, error) {
	var (
		users    []community.User
		channels []community.Channel
		events   []community.Event
		courses  []community.Course
		notes    []community.Notification
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		users, err = b.api.ListAllMembers(gctx)
		return err
	})
	g.Go(func() (err error) {
		channels, err = b.api.ListChannels(gctx)
		return err
	})
	g.Go(func() (err error) {
		events, err = b.api.ListEvents(gctx)
		return err
	})
	g.Go(func() (err error) {
		courses, err = b.api.ListCourses(gctx)
		return err
	})
	g.Go(func() error {
		n, err := b.api.ListNotifications(gctx)
		if err != nil {
			b.logger.Warn("notifications fetch failed, omitting", "error", err)
			return nil
		}
		notes = n
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	groups := aggregate.Collect(ctx, b.logger, channels, aggregate.DefaultParentLimit,
		func(ch community.Channel) string { return ch.Name },
		func(ctx context.Context, ch community.Channel) ([]community.Thread, error) {
			return b.api.ListThreads(ctx, ch.ID)
		})
	threads := aggregate.Flatten(groups)

	now := timeNow()
	usersByID := indexUsers(users)
	authorship := threadAuthorship(threads)

	attention := b.attentionList(threads, users, usersByID, authorship, now)
	recentCount := countRecent(threads, now)
	newMembers := filterNewMembers(users)
	atRisk := filterAtRisk(users, authorship, now)

	return map[string]any{
		"summary": map[string]any{
			"total_members":   len(users),
			"new_members":     len(newMembers),
			"at_risk_members": len(atRisk),
			"channels":        len(channels),
			"upcoming_events": countUpcoming(events, now),
			"courses":         len(courses),
			"recent_threads":  recentCount,
		},
		"attention":       attention,
		"upcoming_events": upcomingEvents(events, now),
		"recent_activity": recentActivity(threads, usersByID, now),
		"notifications":   notificationItems(notes, now),
	}, nil
}

// ─── Attention list ─────────────────────────────────────────────────────────

// attentionList composes recent threads first, then up to 5 new
// members, then up to 5 at-risk members, truncated to 15 entries.
// Composition order is preserved — the list is never globally
// re-ranked by recency.
func (b *Builder) attentionList(
	threads []aggregate.Item[community.Channel, community.Thread],
	users []community.User,
	usersByID map[string]community.User,
	authorship map[string]lastAuthored,
	now time.Time,
) []map[string]any {
	var items []map[string]any

	for _, t := range threads {
		if now.Sub(t.Child.CreatedAt) > recentThreadWindow {
			continue
		}
		author := usersByID[t.Child.AuthorID].Name
		items = append(items, map[string]any{
			"type":    "recent_thread",
			"id":      t.Child.ID,
			"channel": t.Parent.Name,
			"author":  author,
			"preview": format.Preview(t.Child.Content, 0),
			"age":     format.RelativeTime(t.Child.CreatedAt, now),
		})
	}

	newMembers := filterNewMembers(users)
	for i, u := range newMembers {
		if i >= maxNewMembers {
			break
		}
		items = append(items, map[string]any{
			"type":  "new_member",
			"id":    u.ID,
			"name":  u.Name,
			"email": u.Email,
		})
	}

	atRisk := filterAtRisk(users, authorship, now)
	for i, u := range atRisk {
		if i >= maxAtRiskMembers {
			break
		}
		items = append(items, map[string]any{
			"type":  "at_risk",
			"id":    u.ID,
			"name":  u.Name,
			"email": u.Email,
		})
	}

	if len(items) > maxAttentionItems {
		items = items[:maxAttentionItems]
	}
	return items
}

// ─── Member heuristics ──────────────────────────────────────────────────────

// filterNewMembers returns users with zero lesson completions. The
// upstream API exposes no join timestamp, so this is a documented
// proxy for recent joins, not ground truth.
func filterNewMembers(users []community.User) []community.User {
	var out []community.User
	for _, u := range users {
		if len(u.Lessons) == 0 {
			out = append(out, u)
		}
	}
	return out
}

// lastAuthored tracks a user's thread authorship across the
// aggregated channels.
type lastAuthored struct {
	count  int
	latest time.Time
}

func threadAuthorship(threads []aggregate.Item[community.Channel, community.Thread]) map[string]lastAuthored {
	byAuthor := make(map[string]lastAuthored)
	for _, t := range threads {
		la := byAuthor[t.Child.AuthorID]
		la.count++
		if t.Child.CreatedAt.After(la.latest) {
			la.latest = t.Child.CreatedAt
		}
		byAuthor[t.Child.AuthorID] = la
	}
	return byAuthor
}

// filterAtRisk returns users with some lifetime activity signal (a
// completed lesson or prior thread authorship) but no thread inside
// the at-risk window.
func filterAtRisk(users []community.User, authorship map[string]lastAuthored, now time.Time) []community.User {
	var out []community.User
	for _, u := range users {
		la := authorship[u.ID]
		hadSignal := len(u.Lessons) > 0 || la.count > 0
		if !hadSignal {
			continue
		}
		if la.count > 0 && now.Sub(la.latest) <= atRiskWindow {
			continue
		}
		out = append(out, u)
	}
	return out
}

// ─── Events & activity ──────────────────────────────────────────────────────

func countUpcoming(events []community.Event, now time.Time) int {
	n := 0
	for _, e := range events {
		if e.StartsAt.After(now) {
			n++
		}
	}
	return n
}

// upcomingEvents returns the next 5 future events, ascending by start
// time. Full RSVP counts need a per-event attendance fetch, which the
// note points callers to.
func upcomingEvents(events []community.Event, now time.Time) []map[string]any {
	var future []community.Event
	for _, e := range events {
		if e.StartsAt.After(now) {
			future = append(future, e)
		}
	}
	sort.Slice(future, func(i, j int) bool {
		return future[i].StartsAt.Before(future[j].StartsAt)
	})
	if len(future) > maxUpcomingEvents {
		future = future[:maxUpcomingEvents]
	}

	out := make([]map[string]any, len(future))
	for i, e := range future {
		out[i] = map[string]any{
			"id":        e.ID,
			"name":      e.Name,
			"starts_at": e.StartsAt,
			"note":      "RSVP counts require an events attendance fetch",
		}
	}
	return out
}

func countRecent(threads []aggregate.Item[community.Channel, community.Thread], now time.Time) int {
	n := 0
	for _, t := range threads {
		if now.Sub(t.Child.CreatedAt) <= recentThreadWindow {
			n++
		}
	}
	return n
}

// recentActivity returns the 10 newest aggregated threads, descending
// by creation time, independent of the attention list.
func recentActivity(
	threads []aggregate.Item[community.Channel, community.Thread],
	usersByID map[string]community.User,
	now time.Time,
) []map[string]any {
	sorted := make([]aggregate.Item[community.Channel, community.Thread], len(threads))
	copy(sorted, threads)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Child.CreatedAt.After(sorted[j].Child.CreatedAt)
	})
	if len(sorted) > maxRecentActivity {
		sorted = sorted[:maxRecentActivity]
	}

	out := make([]map[string]any, len(sorted))
	for i, t := range sorted {
		out[i] = map[string]any{
			"id":      t.Child.ID,
			"channel": t.Parent.Name,
			"author":  usersByID[t.Child.AuthorID].Name,
			"preview": format.Preview(t.Child.Content, 0),
			"age":     format.RelativeTime(t.Child.CreatedAt, now),
		}
	}
	return out
}

func notificationItems(notes []community.Notification, now time.Time) []map[string]any {
	out := make([]map[string]any, len(notes))
	for i, n := range notes {
		out[i] = map[string]any{
			"id":      n.ID,
			"message": n.Message,
			"age":     format.RelativeTime(n.CreatedAt, now),
		}
	}
	return out
}

func indexUsers(users []community.User) map[string]community.User {
	byID := make(map[string]community.User, len(users))
	for _, u := range users {
		byID[u.ID] = u
	}
	return byID
}
