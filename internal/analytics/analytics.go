// Package analytics computes cross-cutting engagement metrics over the
// community resource graph. A single entry point dispatches on the
// requested metric name; each metric independently fetches exactly the
// data it needs — there is no shared precomputation across metrics
// within one call beyond the transport cache.
package analytics

import (
	"context"
	"log/slog"
	"math"
	"sort"
	"time"

	"commbridge/internal/aggregate"
	"commbridge/internal/apierr"
	"commbridge/internal/community"
)

// DefaultLimit caps sorted outputs when the caller does not ask for a
// specific limit. Limits apply after sorting, never before.
const DefaultLimit = 20

// activityWindow is the recency window for the "active" segment.
const activityWindow = 30 * 24 * time.Hour

// Engagement score weights.
const (
	weightThread = 3
	weightLesson = 2
	weightEvent  = 5
)

// timeNow is a package-level variable for testability.
var timeNow = time.Now

// Metrics lists every supported metric name.
var Metrics = []string{
	"engagement_scores",
	"channel_activity",
	"event_metrics",
	"course_progress",
	"member_segments",
	"growth",
	"top_contributors",
}

// Analyzer computes analytics metrics via the API layer.
type Analyzer struct {
	api    *community.API
	logger *slog.Logger
}

// New creates an Analyzer.
func New(api *community.API, logger *slog.Logger) *Analyzer {
	return &Analyzer{api: api, logger: logger}
}

// Compute dispatches on metric and returns the computed payload.
// An empty metric defaults to engagement_scores; an unknown one fails
// with the full metric list as suggestions.
func (a *Analyzer) Compute(ctx context.Context, metric string, limit int) (map[string]any, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	switch metric {
	case "", "engagement_scores":
		return a.engagementScores(ctx, limit)
	case "channel_activity":
		return a.channelActivity(ctx)
	case "event_metrics":
		return a.eventMetrics(ctx)
	case "course_progress":
		return a.courseProgress(ctx)
	case "member_segments":
		return a.memberSegments(ctx)
	case "growth":
		return a.growth(ctx)
	case "top_contributors":
		return a.topContributors(ctx, limit)
	default:
		return nil, &apierr.NotFoundError{
			Resource:    "metric",
			Input:       metric,
			Suggestions: Metrics,
		}
	}
}

// roundPct rounds a percentage half-up to the nearest integer.
func roundPct(x float64) int {
	return int(math.Floor(x + 0.5))
}

// allThreads aggregates threads across every channel, fault-tolerant
// per channel.
func (a *Analyzer) allThreads(ctx context.Context) ([]aggregate.Item[community.Channel, community.Thread], error) {
	channels, err := a.api.ListChannels(ctx)
	if err != nil {
		return nil, err
	}
	groups := aggregate.Collect(ctx, a.logger, channels, 0,
		func(ch community.Channel) string { return ch.Name },
		func(ctx context.Context, ch community.Channel) ([]community.Thread, error) {
			return a.api.ListThreads(ctx, ch.ID)
		})
	return aggregate.Flatten(groups), nil
}

// allAttendance aggregates attendance per event, fault-tolerant per
// event, preserving the upstream event order.
func (a *Analyzer) allAttendance(ctx context.Context) ([]aggregate.Group[community.Event, community.AttendanceRecord], error) {
	events, err := a.api.ListEvents(ctx)
	if err != nil {
		return nil, err
	}
	groups := aggregate.Collect(ctx, a.logger, events, 0,
		func(e community.Event) string { return e.Name },
		func(ctx context.Context, e community.Event) ([]community.AttendanceRecord, error) {
			return a.api.Attendance(ctx, e.ID)
		})
	return groups, nil
}

// threadCounts tallies threads per author ID.
func threadCounts(threads []aggregate.Item[community.Channel, community.Thread]) map[string]int {
	counts := make(map[string]int)
	for _, t := range threads {
		counts[t.Child.AuthorID]++
	}
	return counts
}

// latestThreadByAuthor records each author's newest thread time.
func latestThreadByAuthor(threads []aggregate.Item[community.Channel, community.Thread]) map[string]time.Time {
	latest := make(map[string]time.Time)
	for _, t := range threads {
		if t.Child.CreatedAt.After(latest[t.Child.AuthorID]) {
			latest[t.Child.AuthorID] = t.Child.CreatedAt
		}
	}
	return latest
}

// eventsAttended tallies distinct events attended per user.
func eventsAttended(groups []aggregate.Group[community.Event, community.AttendanceRecord]) map[string]int {
	attended := make(map[string]int)
	for _, grp := range groups {
		seen := make(map[string]bool)
		for _, rec := range grp.Items {
			if !seen[rec.UserID] {
				seen[rec.UserID] = true
				attended[rec.UserID]++
			}
		}
	}
	return attended
}

// ─── engagement_scores ──────────────────────────────────────────────────────

// engagementScores ranks members by a weighted activity score:
// 3 per thread authored, 2 per lesson completed, 5 per event attended.
func (a *Analyzer) engagementScores(ctx context.Context, limit int) (map[string]any, error) {
	users, err := a.api.ListAllMembers(ctx)
	if err != nil {
		return nil, err
	}
	threads, err := a.allThreads(ctx)
	if err != nil {
		return nil, err
	}
	attendance, err := a.allAttendance(ctx)
	if err != nil {
		return nil, err
	}

	byAuthor := threadCounts(threads)
	attended := eventsAttended(attendance)

	type scored struct {
		user     community.User
		threads  int
		lessons  int
		attended int
		score    int
	}
	rows := make([]scored, 0, len(users))
	for _, u := range users {
		s := scored{
			user:     u,
			threads:  byAuthor[u.ID],
			lessons:  len(u.Lessons),
			attended: attended[u.ID],
		}
		s.score = weightThread*s.threads + weightLesson*s.lessons + weightEvent*s.attended
		rows = append(rows, s)
	}
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].score > rows[j].score })
	if len(rows) > limit {
		rows = rows[:limit]
	}

	scores := make([]map[string]any, len(rows))
	for i, r := range rows {
		scores[i] = map[string]any{
			"user_id":         r.user.ID,
			"name":            r.user.Name,
			"score":           r.score,
			"threads":         r.threads,
			"lessons":         r.lessons,
			"events_attended": r.attended,
		}
	}
	return map[string]any{"metric": "engagement_scores", "scores": scores}, nil
}

// ─── channel_activity ───────────────────────────────────────────────────────

// channelActivity reports thread volume per channel plus each
// channel's top 5 authors, channels sorted by thread count descending.
func (a *Analyzer) channelActivity(ctx context.Context) (map[string]any, error) {
	users, err := a.api.ListAllMembers(ctx)
	if err != nil {
		return nil, err
	}
	channels, err := a.api.ListChannels(ctx)
	if err != nil {
		return nil, err
	}
	groups := aggregate.Collect(ctx, a.logger, channels, 0,
		func(ch community.Channel) string { return ch.Name },
		func(ctx context.Context, ch community.Channel) ([]community.Thread, error) {
			return a.api.ListThreads(ctx, ch.ID)
		})

	names := userNames(users)
	rows := make([]map[string]any, 0, len(groups))
	for _, grp := range groups {
		perAuthor := make(map[string]int)
		for _, t := range grp.Items {
			perAuthor[t.AuthorID]++
		}
		rows = append(rows, map[string]any{
			"channel":     grp.Parent.Name,
			"channel_id":  grp.Parent.ID,
			"threads":     len(grp.Items),
			"top_authors": topN(perAuthor, names, 5),
		})
	}
	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i]["threads"].(int) > rows[j]["threads"].(int)
	})
	return map[string]any{"metric": "channel_activity", "channels": rows}, nil
}

// ─── event_metrics ──────────────────────────────────────────────────────────

// eventMetrics reports per-event attendance, in upstream event order,
// plus community-wide repeat-attendee stats.
func (a *Analyzer) eventMetrics(ctx context.Context) (map[string]any, error) {
	groups, err := a.allAttendance(ctx)
	if err != nil {
		return nil, err
	}

	rows := make([]map[string]any, 0, len(groups))
	eventsPerUser := make(map[string]int)
	for _, grp := range groups {
		attendees := make(map[string]bool)
		for _, rec := range grp.Items {
			attendees[rec.UserID] = true
		}
		for id := range attendees {
			eventsPerUser[id]++
		}

		invited := len(grp.Parent.InvitedUsers)
		row := map[string]any{
			"event":     grp.Parent.Name,
			"event_id":  grp.Parent.ID,
			"attendees": len(attendees),
			"invited":   invited,
		}
		if invited > 0 {
			row["attendance_rate"] = roundPct(float64(len(attendees)) / float64(invited) * 100)
		} else {
			row["attendance_rate"] = nil
		}
		rows = append(rows, row)
	}

	repeat := 0
	for _, n := range eventsPerUser {
		if n > 1 {
			repeat++
		}
	}
	summary := map[string]any{
		"distinct_attendees": len(eventsPerUser),
		"repeat_attendees":   repeat,
	}
	if len(eventsPerUser) > 0 {
		summary["repeat_pct"] = roundPct(float64(repeat) / float64(len(eventsPerUser)) * 100)
	}

	return map[string]any{
		"metric":  "event_metrics",
		"events":  rows,
		"summary": summary,
	}, nil
}

// ─── course_progress ────────────────────────────────────────────────────────

// courseProgress derives per-course enrollment, average completion
// percentage over enrolled members, and the stalled-member list.
// A member is enrolled once they complete at least one of the course's
// lessons; progress is never stored on the course itself.
func (a *Analyzer) courseProgress(ctx context.Context) (map[string]any, error) {
	users, err := a.api.ListAllMembers(ctx)
	if err != nil {
		return nil, err
	}
	courses, err := a.api.ListCourses(ctx)
	if err != nil {
		return nil, err
	}

	rows := make([]map[string]any, 0, len(courses))
	for _, course := range courses {
		lessonSet := make(map[string]bool, len(course.LessonIDs))
		for _, id := range course.LessonIDs {
			lessonSet[id] = true
		}
		total := len(course.LessonIDs)

		enrolled := 0
		sumPct := 0.0
		var stalled []map[string]any
		for _, u := range users {
			completed := 0
			for _, l := range u.Lessons {
				if lessonSet[l.LessonID] {
					completed++
				}
			}
			if completed == 0 {
				continue
			}
			enrolled++
			if total > 0 {
				sumPct += float64(completed) / float64(total) * 100
			}
			if completed < total {
				stalled = append(stalled, map[string]any{
					"user_id":   u.ID,
					"name":      u.Name,
					"completed": completed,
					"remaining": total - completed,
				})
			}
		}

		row := map[string]any{
			"course":          course.Name,
			"course_id":       course.ID,
			"lessons":         total,
			"enrolled":        enrolled,
			"stalled_members": stalled,
		}
		if enrolled > 0 {
			row["avg_completion_pct"] = roundPct(sumPct / float64(enrolled))
		} else {
			row["avg_completion_pct"] = 0
		}
		rows = append(rows, row)
	}
	return map[string]any{"metric": "course_progress", "courses": rows}, nil
}

// ─── member_segments ────────────────────────────────────────────────────────

// memberSegments partitions every member into exactly one of four
// buckets. The if/else chain guarantees the partition: the four sets
// are pairwise disjoint and cover the whole user list.
func (a *Analyzer) memberSegments(ctx context.Context) (map[string]any, error) {
	users, err := a.api.ListAllMembers(ctx)
	if err != nil {
		return nil, err
	}
	threads, err := a.allThreads(ctx)
	if err != nil {
		return nil, err
	}

	counts := threadCounts(threads)
	latest := latestThreadByAuthor(threads)
	now := timeNow()

	segments := map[string][]map[string]any{
		"new": {}, "active": {}, "at_risk": {}, "churned": {},
	}
	for _, u := range users {
		lessons := len(u.Lessons)
		threadsEver := counts[u.ID]
		recentThread := threadsEver > 0 && now.Sub(latest[u.ID]) <= activityWindow

		var bucket string
		switch {
		case lessons == 0 && threadsEver == 0 && len(u.Groups) == 0:
			bucket = "churned"
		case lessons >= 1 && threadsEver == 0:
			bucket = "at_risk"
		case lessons >= 1 || recentThread:
			bucket = "active"
		case len(u.Groups) >= 1:
			bucket = "new"
		default:
			// No lessons, no groups, only stale threads: they showed
			// up once, so they are not churned by the definition above.
			bucket = "active"
		}
		segments[bucket] = append(segments[bucket], map[string]any{
			"user_id": u.ID,
			"name":    u.Name,
			"email":   u.Email,
		})
	}

	return map[string]any{
		"metric":   "member_segments",
		"segments": segments,
		"counts": map[string]int{
			"new":     len(segments["new"]),
			"active":  len(segments["active"]),
			"at_risk": len(segments["at_risk"]),
			"churned": len(segments["churned"]),
		},
	}, nil
}

// ─── growth ─────────────────────────────────────────────────────────────────

// growth builds a histogram of members per distinct group-membership
// count, ascending by group count, plus the zero-lesson member count.
func (a *Analyzer) growth(ctx context.Context) (map[string]any, error) {
	users, err := a.api.ListAllMembers(ctx)
	if err != nil {
		return nil, err
	}

	histogram := make(map[int]int)
	zeroLessons := 0
	for _, u := range users {
		histogram[len(u.Groups)]++
		if len(u.Lessons) == 0 {
			zeroLessons++
		}
	}

	counts := make([]int, 0, len(histogram))
	for n := range histogram {
		counts = append(counts, n)
	}
	sort.Ints(counts)

	rows := make([]map[string]any, len(counts))
	for i, n := range counts {
		rows[i] = map[string]any{"group_count": n, "members": histogram[n]}
	}
	return map[string]any{
		"metric":              "growth",
		"group_histogram":     rows,
		"zero_lesson_members": zeroLessons,
	}, nil
}

// ─── top_contributors ───────────────────────────────────────────────────────

// topContributors ranks members by thread count across all channels.
func (a *Analyzer) topContributors(ctx context.Context, limit int) (map[string]any, error) {
	users, err := a.api.ListAllMembers(ctx)
	if err != nil {
		return nil, err
	}
	threads, err := a.allThreads(ctx)
	if err != nil {
		return nil, err
	}

	rows := topN(threadCounts(threads), userNames(users), limit)
	return map[string]any{"metric": "top_contributors", "contributors": rows}, nil
}

// ─── shared helpers ─────────────────────────────────────────────────────────

func userNames(users []community.User) map[string]string {
	names := make(map[string]string, len(users))
	for _, u := range users {
		names[u.ID] = u.Name
	}
	return names
}

// topN ranks the count map descending and resolves IDs to display
// names, falling back to the raw ID for unknown authors.
func topN(counts map[string]int, names map[string]string, limit int) []map[string]any {
	type row struct {
		id    string
		count int
	}
	rows := make([]row, 0, len(counts))
	for id, n := range counts {
		rows = append(rows, row{id: id, count: n})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].count != rows[j].count {
			return rows[i].count > rows[j].count
		}
		return rows[i].id < rows[j].id
	})
	if len(rows) > limit {
		rows = rows[:limit]
	}

	out := make([]map[string]any, len(rows))
	for i, r := range rows {
		name := names[r.id]
		if name == "" {
			name = r.id
		}
		out[i] = map[string]any{"user_id": r.id, "name": name, "threads": r.count}
	}
	return out
}
