// Package community defines the upstream resource types and the typed
// API wrappers over the transport client.
//
// Upstream payloads are open-ended: every struct here is a partial
// view decoded defensively — unknown fields are ignored, absent
// optional fields default to zero values, and synthesis code never
// touches raw JSON directly.
package community

import "time"

// User is a community member. Email is the only globally unique field;
// display-name collisions are expected and handled as ambiguity by the
// resolver, never as an error.
type User struct {
	ID          string             `json:"id"`
	Email       string             `json:"email"`
	Name        string             `json:"name"`
	Role        string             `json:"role,omitempty"`
	Status      string             `json:"status,omitempty"`
	Bio         string             `json:"bio,omitempty"`
	AvatarURL   string             `json:"avatar_url,omitempty"`
	SocialLinks map[string]string  `json:"social_links,omitempty"`
	Groups      []string           `json:"groups,omitempty"`
	Lessons     []LessonCompletion `json:"completed_lessons,omitempty"`
}

// LessonCompletion records one finished lesson.
type LessonCompletion struct {
	LessonID    string    `json:"lesson_id"`
	CompletedAt time.Time `json:"completed_at,omitempty"`
}

// Channel is a discussion space. Names are assumed unique per
// community but not enforced upstream.
type Channel struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Thread is a top-level post in a channel with optional nested
// comments.
type Thread struct {
	ID        string    `json:"id"`
	ChannelID string    `json:"channel_id,omitempty"`
	AuthorID  string    `json:"author_id"`
	Title     string    `json:"title,omitempty"`
	Content   string    `json:"content,omitempty"` // rich text (HTML)
	CreatedAt time.Time `json:"created_at"`
	Comments  []Comment `json:"comments,omitempty"`
}

// Comment is a reply on a thread; replies nest one more level.
type Comment struct {
	ID        string    `json:"id"`
	AuthorID  string    `json:"author_id"`
	Content   string    `json:"content,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	Replies   []Comment `json:"replies,omitempty"`
}

// Event is a scheduled community event. Attendance lives on a separate
// sub-resource keyed by event ID.
type Event struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	StartsAt        time.Time `json:"starts_at"`
	DurationMinutes int       `json:"duration_minutes,omitempty"`
	InvitedUsers    []string  `json:"invited_users,omitempty"`
	InvitedGroups   []string  `json:"invited_groups,omitempty"`
}

// AttendanceRecord is one user's attendance at one event.
type AttendanceRecord struct {
	UserID string `json:"user_id"`
	Status string `json:"status,omitempty"`
}

// Course is an ordered lesson sequence. Progress is derived from user
// lesson completions, never stored on the course.
type Course struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	LessonIDs []string `json:"lessons,omitempty"`
}

// Notification is a community-level notice shown on the dashboard.
type Notification struct {
	ID        string    `json:"id"`
	Message   string    `json:"message,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// CompletedLessonSet returns the user's completed lesson IDs as a set.
func (u *User) CompletedLessonSet() map[string]bool {
	set := make(map[string]bool, len(u.Lessons))
	for _, l := range u.Lessons {
		set[l.LessonID] = true
	}
	return set
}
