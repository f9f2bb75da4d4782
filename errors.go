package livia

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"syscall"
	"time"
)

type ErrLLM struct {
	Provider string
	Message  string
}

func (e *ErrLLM) Error() string {
	return fmt.Sprintf("%s: %s", e.Provider, e.Message)
}

// ErrHTTP carries a non-2xx response from the LLM provider or the chat
// platform. RetryAfter is parsed from the Retry-After header when present.
type ErrHTTP struct {
	Status     int
	Body       string
	RetryAfter time.Duration
}

func (e *ErrHTTP) Error() string {
	return fmt.Sprintf("http %d: %s", e.Status, e.Body)
}

// ErrResource marks a local resource failure (temp file, oversized media)
// during attachment handling.
type ErrResource struct {
	Op  string
	Err error
}

func (e *ErrResource) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ErrResource) Unwrap() error { return e.Err }

// ParseRetryAfter parses a Retry-After header value: either delta-seconds or
// an HTTP date. Returns 0 when absent or unparseable.
func ParseRetryAfter(v string) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}

// ErrorCategory folds any error into the handling classes the engine acts on.
type ErrorCategory int

const (
	// CatInternal is the default for unexpected errors.
	CatInternal ErrorCategory = iota
	// CatTransient errors are retried: connection resets, timeouts,
	// rate limits, 5xx.
	CatTransient
	// CatContextOverflow means the model rejected the request for context
	// length. The mail route gets one narrowed retry; everything else
	// surfaces a fixed message.
	CatContextOverflow
	// CatProvider covers non-retryable provider rejections: auth, schema,
	// model not found.
	CatProvider
	// CatPlatformAuth means the chat platform refused the operation:
	// missing permission, unknown channel, revoked token.
	CatPlatformAuth
	// CatResource covers local media and temp-file failures.
	CatResource
)

func (c ErrorCategory) String() string {
	switch c {
	case CatTransient:
		return "transient"
	case CatContextOverflow:
		return "context-overflow"
	case CatProvider:
		return "provider"
	case CatPlatformAuth:
		return "platform-auth"
	case CatResource:
		return "resource"
	default:
		return "internal"
	}
}

// contextOverflowMarkers appear in provider error bodies when the request
// exceeds the model's context window.
var contextOverflowMarkers = []string{
	"context_length_exceeded",
	"maximum context length",
	"context window",
}

// platformAuthErrors are the chat-platform error codes that indicate a
// permission or addressing problem rather than a transient fault.
var platformAuthErrors = map[string]bool{
	"invalid_auth":      true,
	"not_authed":        true,
	"account_inactive":  true,
	"token_revoked":     true,
	"missing_scope":     true,
	"not_in_channel":    true,
	"channel_not_found": true,
	"is_archived":       true,
	"restricted_action": true,
}

// Category classifies err per the engine's error taxonomy. nil maps to
// CatInternal and should not be passed.
func Category(err error) ErrorCategory {
	if err == nil {
		return CatInternal
	}

	var he *ErrHTTP
	if errors.As(err, &he) {
		body := strings.ToLower(he.Body)
		for _, m := range contextOverflowMarkers {
			if strings.Contains(body, m) {
				return CatContextOverflow
			}
		}
		if platformAuthErrors[strings.TrimSpace(body)] {
			return CatPlatformAuth
		}
		switch {
		case he.Status == 408 || he.Status == 409 || he.Status == 429 || he.Status >= 500:
			return CatTransient
		case he.Status == 400 || he.Status == 401 || he.Status == 403 || he.Status == 404:
			return CatProvider
		}
		return CatInternal
	}

	var re *ErrResource
	if errors.As(err, &re) {
		return CatResource
	}

	var le *ErrLLM
	if errors.As(err, &le) {
		msg := strings.ToLower(le.Message)
		for _, m := range contextOverflowMarkers {
			if strings.Contains(msg, m) {
				return CatContextOverflow
			}
		}
		return CatProvider
	}

	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return CatTransient
	}
	if errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.EPIPE) {
		return CatTransient
	}

	return CatInternal
}

// statusOf extracts the HTTP status code from an ErrHTTP, or 0.
func statusOf(err error) int {
	var e *ErrHTTP
	if errors.As(err, &e) {
		return e.Status
	}
	return 0
}

// retryAfterOf extracts the Retry-After duration from an ErrHTTP, or 0.
func retryAfterOf(err error) time.Duration {
	var e *ErrHTTP
	if errors.As(err, &e) {
		return e.RetryAfter
	}
	return 0
}
