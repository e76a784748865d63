// Package resolve translates human-supplied identifiers — channel
// names, member names, emails — into canonical resource IDs.
//
// The upstream API has no fuzzy search, so name resolution is a full
// collection fetch plus local filtering. That is O(community size) per
// call, masked by the transport cache for repeated calls within the
// freshness window.
package resolve

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"commbridge/internal/apierr"
	"commbridge/internal/community"
)

// Resolver performs read-only, cache-backed lookups via the API layer.
type Resolver struct {
	api *community.API
}

// New creates a Resolver.
func New(api *community.API) *Resolver {
	return &Resolver{api: api}
}

// IsResourceID reports whether input already looks like a canonical
// resource identifier (hyphenated hex, UUID shape). Matching inputs
// are trusted without an existence check.
func IsResourceID(input string) bool {
	_, err := uuid.Parse(input)
	return err == nil && len(input) == 36
}

// Channel resolves input to a channel ID.
//
// ID-shaped input passes through unchanged. Otherwise the full channel
// list is fetched and matched case-insensitively: exact name first,
// then substring matches become suggestions on the NotFound error. An
// empty suggestion list falls back to every channel name.
func (r *Resolver) Channel(ctx context.Context, input string) (string, error) {
	if IsResourceID(input) {
		return input, nil
	}

	channels, err := r.api.ListChannels(ctx)
	if err != nil {
		return "", err
	}

	needle := strings.ToLower(strings.TrimSpace(input))
	var suggestions []string
	for _, ch := range channels {
		name := strings.ToLower(ch.Name)
		if name == needle {
			return ch.ID, nil
		}
		if strings.Contains(name, needle) {
			suggestions = append(suggestions, ch.Name)
		}
	}

	if len(suggestions) == 0 {
		for _, ch := range channels {
			suggestions = append(suggestions, ch.Name)
		}
	}
	return "", &apierr.NotFoundError{
		Resource:    "channel",
		Input:       input,
		Suggestions: suggestions,
	}
}

// User resolves input to a full user record.
//
// ID-shaped input is fetched directly (one GET — a malformed but
// well-shaped ID surfaces the upstream 404). Input containing "@" goes
// through the exact-match email endpoint; multiple hits are surfaced
// as Ambiguous rather than silently picking the first. Anything else
// is a case-insensitive substring match over the full member list:
// zero matches is NotFound, one match wins, several are Ambiguous with
// every candidate listed as "name (email)".
func (r *Resolver) User(ctx context.Context, input string) (*community.User, error) {
	input = strings.TrimSpace(input)

	if IsResourceID(input) {
		return r.api.GetUser(ctx, input)
	}

	if strings.Contains(input, "@") {
		users, err := r.api.LookupUserByEmail(ctx, input)
		if err != nil {
			return nil, err
		}
		switch len(users) {
		case 0:
			return nil, &apierr.NotFoundError{Resource: "user", Input: input}
		case 1:
			return &users[0], nil
		default:
			return nil, &apierr.AmbiguousError{Input: input, Candidates: candidates(users)}
		}
	}

	members, err := r.api.ListAllMembers(ctx)
	if err != nil {
		return nil, err
	}

	needle := strings.ToLower(input)
	var matches []community.User
	for _, m := range members {
		if strings.Contains(strings.ToLower(m.Name), needle) {
			matches = append(matches, m)
		}
	}

	switch len(matches) {
	case 0:
		return nil, &apierr.NotFoundError{Resource: "user", Input: input}
	case 1:
		return &matches[0], nil
	default:
		return nil, &apierr.AmbiguousError{Input: input, Candidates: candidates(matches)}
	}
}

func candidates(users []community.User) []string {
	out := make([]string, len(users))
	for i, u := range users {
		out[i] = fmt.Sprintf("%s (%s)", u.Name, u.Email)
	}
	return out
}
