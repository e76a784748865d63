// Package apierr defines the error taxonomy shared by the transport,
// resolver, and dispatch layers.
//
// Each kind is a distinct type so callers can branch with errors.As,
// following the typed-error pattern used elsewhere in the codebase.
// Message(err) renders the single user-facing string that the dispatch
// layer places in the {"error": ...} envelope.
package apierr

import (
	"errors"
	"fmt"
	"strings"
)

// ValidationError is a locally-detected missing or invalid parameter.
// It never reaches the network layer.
type ValidationError struct {
	Fields []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("missing required parameter(s): %s", strings.Join(e.Fields, ", "))
}

// NotFoundError reports a lookup that matched nothing. Suggestions
// carries similar names when the resolver can compute them.
type NotFoundError struct {
	Resource    string
	Input       string
	Suggestions []string
}

func (e *NotFoundError) Error() string {
	msg := fmt.Sprintf("%s not found: %q", e.Resource, e.Input)
	if len(e.Suggestions) > 0 {
		msg += ". Did you mean: " + strings.Join(e.Suggestions, ", ")
	}
	return msg
}

// AmbiguousError reports a lookup that matched more than one resource.
// The resolver never auto-selects; Candidates lists every match so the
// caller can disambiguate.
type AmbiguousError struct {
	Input      string
	Candidates []string
}

func (e *AmbiguousError) Error() string {
	return fmt.Sprintf("multiple matches for %q: %s. Disambiguate by email or ID",
		e.Input, strings.Join(e.Candidates, "; "))
}

// RateLimitedError means upstream returned 429 and the retry budget is
// exhausted. Transient: the caller may retry later.
type RateLimitedError struct {
	Path string
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limited by upstream API on %s after retries; try again later", e.Path)
}

// UnauthorizedError means upstream returned 401 — the bearer token is
// missing, expired, or wrong. Not retryable.
type UnauthorizedError struct{}

func (e *UnauthorizedError) Error() string {
	return "unauthorized: check the API token configuration"
}

// UpstreamError is any other non-2xx upstream response.
type UpstreamError struct {
	Status int
	Detail string
}

func (e *UpstreamError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("upstream API error (HTTP %d)", e.Status)
	}
	return fmt.Sprintf("upstream API error (HTTP %d): %s", e.Status, e.Detail)
}

// TimeoutError is a transport-level timeout. The retry policy does not
// retry it (only 429 is retried); the caller may.
type TimeoutError struct {
	Path string
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("request to %s timed out", e.Path)
}

// IsNotFound reports whether err is a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// IsAmbiguous reports whether err is an AmbiguousError.
func IsAmbiguous(err error) bool {
	var amb *AmbiguousError
	return errors.As(err, &amb)
}

// IsRateLimited reports whether err is a RateLimitedError.
func IsRateLimited(err error) bool {
	var rl *RateLimitedError
	return errors.As(err, &rl)
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// Message renders err as the user-facing envelope string. Every error
// in the taxonomy already carries an actionable message; anything else
// is surfaced with an "unexpected error" prefix so programming faults
// are distinguishable from domain conditions.
func Message(err error) string {
	switch {
	case err == nil:
		return ""
	case IsValidation(err), IsNotFound(err), IsAmbiguous(err), IsRateLimited(err):
		return err.Error()
	}
	var ue *UpstreamError
	if errors.As(err, &ue) {
		return ue.Error()
	}
	var ua *UnauthorizedError
	if errors.As(err, &ua) {
		return ua.Error()
	}
	var te *TimeoutError
	if errors.As(err, &te) {
		return te.Error()
	}
	return "unexpected error: " + err.Error()
}
