package transport

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"strings"

	"commbridge/internal/apierr"
)

// classifyStatus maps a non-2xx upstream response to the error
// taxonomy. The body may be non-JSON or malformed; detail extraction
// degrades gracefully.
func classifyStatus(status int, path string, body []byte) error {
	switch status {
	case 429:
		return &apierr.RateLimitedError{Path: path}
	case 401:
		return &apierr.UnauthorizedError{}
	case 404:
		return &apierr.NotFoundError{Resource: "resource", Input: path}
	default:
		return &apierr.UpstreamError{Status: status, Detail: errorDetail(body)}
	}
}

// classifyTransport maps a failed round trip (no HTTP response) to the
// taxonomy. Timeouts get their own kind; everything else propagates
// wrapped so Message() reports it as unexpected.
func classifyTransport(err error, path string) error {
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return &apierr.TimeoutError{Path: path}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &apierr.TimeoutError{Path: path}
	}
	return err
}

// errorDetail pulls a human-readable message out of an upstream error
// body. Tries {"error": ...} and {"message": ...}; falls back to a
// truncated copy of the raw body.
func errorDetail(body []byte) string {
	var envelope struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil {
		if envelope.Error != "" {
			return envelope.Error
		}
		if envelope.Message != "" {
			return envelope.Message
		}
	}
	detail := strings.TrimSpace(string(body))
	if len(detail) > 200 {
		detail = detail[:200] + "..."
	}
	return detail
}
