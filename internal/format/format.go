// Package format holds pure presentation helpers: HTML-to-text
// previews, single-unit relative times, and user projections. Nothing
// here fetches data.
package format

import (
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"

	"commbridge/internal/community"
)

// DefaultPreviewLength caps thread previews.
const DefaultPreviewLength = 150

// stripPolicy removes every tag. StrictPolicy keeps text content only,
// which is exactly what previews need.
var stripPolicy = bluemonday.StrictPolicy()

// StripHTML removes markup, unescapes entities, and collapses
// whitespace. For previews only — never for content that will be
// re-submitted upstream.
func StripHTML(s string) string {
	text := html.UnescapeString(stripPolicy.Sanitize(s))
	return strings.Join(strings.Fields(text), " ")
}

// Preview strips markup and truncates to maxLen characters, appending
// "..." when truncated. maxLen <= 0 means DefaultPreviewLength.
// Truncation counts runes, never bytes, so multibyte content is not
// split mid-character.
func Preview(s string, maxLen int) string {
	if maxLen <= 0 {
		maxLen = DefaultPreviewLength
	}
	text := StripHTML(s)
	runes := []rune(text)
	if len(runes) <= maxLen {
		return text
	}
	return string(runes[:maxLen]) + "..."
}

// RelativeTime renders now-t as a single rounded-down unit: minutes
// under an hour, hours under a day, days otherwise. Never a compound
// like "1h 5m".
func RelativeTime(t, now time.Time) string {
	d := now.Sub(t)
	if d < 0 {
		d = 0
	}
	switch {
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	}
}

// ProjectUser builds the summary view of a user; full detail adds the
// profile fields. Pure projection — never fetches.
func ProjectUser(u *community.User, detail string) map[string]any {
	out := map[string]any{
		"id":                u.ID,
		"name":              u.Name,
		"email":             u.Email,
		"role":              u.Role,
		"status":            u.Status,
		"group_count":       len(u.Groups),
		"lessons_completed": len(u.Lessons),
	}
	if detail == "full" {
		out["bio"] = u.Bio
		out["groups"] = u.Groups
		out["social_links"] = u.SocialLinks
		out["avatar_url"] = u.AvatarURL
	}
	return out
}
