// Package openai implements livia's provider interfaces over the OpenAI
// REST API: Provider on the streamed Responses endpoint, FileStore on the
// files and vector-store endpoints, and Transcriber on audio transcriptions.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	livia "github.com/lucastzuka/livia"
)

const defaultBaseURL = "https://api.openai.com/v1"

// defaultTranscribeModel is the speech-to-text model used by Transcribe.
const defaultTranscribeModel = "whisper-1"

// Client talks to the OpenAI API. One Client serves all three interfaces;
// it is safe for concurrent use.
type Client struct {
	apiKey          string
	baseURL         string
	client          *http.Client
	name            string
	transcribeModel string
	logger          *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL overrides the API base URL (e.g. a proxy, or a compatible
// server). The endpoint paths are appended to it.
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = u }
}

// WithHTTPClient replaces the HTTP client, e.g. to set timeouts.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.client = hc }
}

// WithTranscribeModel overrides the speech-to-text model.
func WithTranscribeModel(model string) Option {
	return func(c *Client) { c.transcribeModel = model }
}

// WithLogger sets the structured logger. Defaults to a no-op logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// New creates a Client with the given API key.
func New(apiKey string, opts ...Option) *Client {
	c := &Client{
		apiKey:          apiKey,
		baseURL:         defaultBaseURL,
		client:          &http.Client{Timeout: 5 * time.Minute},
		name:            "openai",
		transcribeModel: defaultTranscribeModel,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = slog.New(discardHandler{})
	}
	return c
}

// discardHandler discards all log output; Enabled reports false for all levels.
type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (d discardHandler) WithAttrs([]slog.Attr) slog.Handler      { return d }
func (d discardHandler) WithGroup(string) slog.Handler           { return d }

// Name returns the provider name.
func (c *Client) Name() string { return c.name }

// sendJSON marshals body and POSTs it to path. The caller owns the response
// body on success; non-2xx statuses are folded into an ErrHTTP.
func (c *Client) sendJSON(ctx context.Context, path string, body any) (*http.Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, &livia.ErrLLM{Provider: c.name, Message: fmt.Sprintf("marshal request: %v", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, &livia.ErrLLM{Provider: c.name, Message: fmt.Sprintf("create request: %v", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		return nil, httpErr(resp)
	}
	return resp, nil
}

// httpErr reads the response body into an ErrHTTP so the governor and the
// error taxonomy can classify the failure. Retry-After is parsed when the
// server provides it.
func httpErr(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	return &livia.ErrHTTP{
		Status:     resp.StatusCode,
		Body:       string(body),
		RetryAfter: livia.ParseRetryAfter(resp.Header.Get("Retry-After")),
	}
}

// Compile-time interface checks.
var (
	_ livia.Provider    = (*Client)(nil)
	_ livia.FileStore   = (*Client)(nil)
	_ livia.Transcriber = (*Client)(nil)
)
