package livia

import (
	"context"
	"errors"
	"fmt"
	"io"
	"syscall"
	"testing"
	"time"
)

func TestErrLLMError(t *testing.T) {
	tests := []struct {
		provider string
		message  string
		want     string
	}{
		{"openai", "model not found", "openai: model not found"},
		{"openai", "invalid schema", "openai: invalid schema"},
	}
	for _, tt := range tests {
		e := &ErrLLM{Provider: tt.provider, Message: tt.message}
		if got := e.Error(); got != tt.want {
			t.Errorf("ErrLLM{%q, %q}.Error() = %q, want %q", tt.provider, tt.message, got, tt.want)
		}
	}
}

func TestErrHTTPError(t *testing.T) {
	tests := []struct {
		status int
		body   string
		want   string
	}{
		{429, "too many requests", "http 429: too many requests"},
		{500, "internal server error", "http 500: internal server error"},
	}
	for _, tt := range tests {
		e := &ErrHTTP{Status: tt.status, Body: tt.body}
		if got := e.Error(); got != tt.want {
			t.Errorf("ErrHTTP{%d, %q}.Error() = %q, want %q", tt.status, tt.body, got, tt.want)
		}
	}
}

func TestErrResourceUnwrap(t *testing.T) {
	inner := errors.New("disk full")
	e := &ErrResource{Op: "write temp", Err: inner}
	if !errors.Is(e, inner) {
		t.Error("ErrResource should unwrap to the inner error")
	}
	if got := e.Error(); got != "write temp: disk full" {
		t.Errorf("Error() = %q", got)
	}
}

func TestParseRetryAfter(t *testing.T) {
	if d := ParseRetryAfter("30"); d != 30*time.Second {
		t.Errorf("ParseRetryAfter(30) = %v, want 30s", d)
	}
	if d := ParseRetryAfter(""); d != 0 {
		t.Errorf("ParseRetryAfter(\"\") = %v, want 0", d)
	}
	if d := ParseRetryAfter("not-a-number"); d != 0 {
		t.Errorf("ParseRetryAfter(garbage) = %v, want 0", d)
	}
	future := time.Now().Add(90 * time.Second).UTC().Format("Mon, 02 Jan 2006 15:04:05 GMT")
	if d := ParseRetryAfter(future); d <= 80*time.Second || d > 90*time.Second {
		t.Errorf("ParseRetryAfter(http-date) = %v, want ~90s", d)
	}
}

func TestCategoryHTTP(t *testing.T) {
	tests := []struct {
		status int
		body   string
		want   ErrorCategory
	}{
		{429, "too many requests", CatTransient},
		{503, "upstream down", CatTransient},
		{408, "timeout", CatTransient},
		{409, "conflict", CatTransient},
		{400, "bad request", CatProvider},
		{401, "unauthorized", CatProvider},
		{404, "model not found", CatProvider},
		{400, "This model's maximum context length is 128000 tokens", CatContextOverflow},
		{400, "context_length_exceeded", CatContextOverflow},
		{403, "missing_scope", CatPlatformAuth},
		{400, "channel_not_found", CatPlatformAuth},
	}
	for _, tt := range tests {
		err := &ErrHTTP{Status: tt.status, Body: tt.body}
		if got := Category(err); got != tt.want {
			t.Errorf("Category(http %d %q) = %v, want %v", tt.status, tt.body, got, tt.want)
		}
	}
}

func TestCategoryWrapped(t *testing.T) {
	wrapped := fmt.Errorf("call failed: %w", &ErrHTTP{Status: 500, Body: "boom"})
	if got := Category(wrapped); got != CatTransient {
		t.Errorf("Category(wrapped 500) = %v, want transient", got)
	}

	if got := Category(&ErrResource{Op: "download", Err: errors.New("no space")}); got != CatResource {
		t.Errorf("Category(ErrResource) = %v, want resource", got)
	}
	if got := Category(&ErrLLM{Provider: "openai", Message: "bad schema"}); got != CatProvider {
		t.Errorf("Category(ErrLLM) = %v, want provider", got)
	}
	// Streamed responses can fail mid-flight with an overflow code instead
	// of an HTTP 400.
	if got := Category(&ErrLLM{Provider: "openai", Message: "context_length_exceeded: too long"}); got != CatContextOverflow {
		t.Errorf("Category(ErrLLM overflow) = %v, want context-overflow", got)
	}
}

func TestCategoryNetwork(t *testing.T) {
	for _, err := range []error{
		context.DeadlineExceeded,
		io.ErrUnexpectedEOF,
		syscall.ECONNRESET,
		syscall.EPIPE,
	} {
		if got := Category(err); got != CatTransient {
			t.Errorf("Category(%v) = %v, want transient", err, got)
		}
	}
	if got := Category(errors.New("something odd")); got != CatInternal {
		t.Errorf("Category(unknown) = %v, want internal", got)
	}
}

func TestCategoryString(t *testing.T) {
	if CatContextOverflow.String() != "context-overflow" {
		t.Errorf("String() = %q", CatContextOverflow.String())
	}
	if CatInternal.String() != "internal" {
		t.Errorf("String() = %q", CatInternal.String())
	}
}
