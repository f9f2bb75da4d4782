package slack

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	livia "github.com/lucastzuka/livia"
)

const defaultAPIURL = "https://slack.com/api"

// Client talks to the Slack Web API with the bot token. It is safe for
// concurrent use.
type Client struct {
	botToken string
	appToken string
	baseURL  string
	client   *http.Client
	logger   *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithAppToken sets the app-level token used by Socket Mode.
func WithAppToken(token string) Option {
	return func(c *Client) { c.appToken = token }
}

// WithBaseURL overrides the API base URL, used by tests.
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = strings.TrimSuffix(u, "/") }
}

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.client = hc }
}

// WithLogger sets the structured logger. Defaults to a no-op logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// New creates a Client with the given bot token.
func New(botToken string, opts ...Option) *Client {
	c := &Client{
		botToken: botToken,
		baseURL:  defaultAPIURL,
		client:   &http.Client{Timeout: 30 * time.Second},
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

// Compile-time check that Client implements the platform interface.
var _ livia.Frontend = (*Client)(nil)

// PostMessage posts text, optionally into a thread, and returns the new
// message's ts.
func (c *Client) PostMessage(ctx context.Context, channel, threadTS, text string) (string, error) {
	body := map[string]any{
		"channel":      channel,
		"text":         text,
		"unfurl_links": false,
	}
	if threadTS != "" {
		body["thread_ts"] = threadTS
	}
	var res postMessageResponse
	if err := c.callJSON(ctx, "chat.postMessage", body, &res); err != nil {
		return "", err
	}
	return res.TS, nil
}

// PostFormatted renders Markdown to mrkdwn before posting.
func (c *Client) PostFormatted(ctx context.Context, channel, threadTS, text string) (string, error) {
	return c.PostMessage(ctx, channel, threadTS, Render(text))
}

// EditMessage replaces the text of an existing message.
func (c *Client) EditMessage(ctx context.Context, channel, ts, text string) error {
	body := map[string]any{
		"channel": channel,
		"ts":      ts,
		"text":    text,
	}
	return c.callJSON(ctx, "chat.update", body, nil)
}

// EditFormatted renders Markdown to mrkdwn before editing.
func (c *Client) EditFormatted(ctx context.Context, channel, ts, text string) error {
	return c.EditMessage(ctx, channel, ts, Render(text))
}

// DeleteMessage removes a message.
func (c *Client) DeleteMessage(ctx context.Context, channel, ts string) error {
	body := map[string]any{
		"channel": channel,
		"ts":      ts,
	}
	return c.callJSON(ctx, "chat.delete", body, nil)
}

// UploadFile pushes data into a channel or thread. Slack's external upload
// is three steps: reserve an upload URL, POST the bytes to it, then
// complete the upload to share the file.
func (c *Client) UploadFile(ctx context.Context, channel, threadTS, filename, title string, data []byte) error {
	var res uploadURLResponse
	params := url.Values{
		"filename": {filename},
		"length":   {strconv.Itoa(len(data))},
	}
	if err := c.callForm(ctx, "files.getUploadURLExternal", params, &res); err != nil {
		return err
	}

	if err := c.postBytes(ctx, res.UploadURL, data); err != nil {
		return err
	}

	body := map[string]any{
		"files":      []map[string]string{{"id": res.FileID, "title": title}},
		"channel_id": channel,
	}
	if threadTS != "" {
		body["thread_ts"] = threadTS
	}
	return c.callJSON(ctx, "files.completeUploadExternal", body, nil)
}

// ThreadReplies returns up to limit messages of a thread, oldest first.
func (c *Client) ThreadReplies(ctx context.Context, channel, threadTS string, limit int) ([]livia.PlatformMessage, error) {
	params := url.Values{
		"channel": {channel},
		"ts":      {threadTS},
		"limit":   {strconv.Itoa(limit)},
	}
	var res repliesResponse
	if err := c.callForm(ctx, "conversations.replies", params, &res); err != nil {
		return nil, err
	}
	return res.Messages, nil
}

// UserInfo resolves a user id to display names.
func (c *Client) UserInfo(ctx context.Context, userID string) (livia.UserProfile, error) {
	var res userInfoResponse
	if err := c.callForm(ctx, "users.info", url.Values{"user": {userID}}, &res); err != nil {
		return livia.UserProfile{}, err
	}
	profile := livia.UserProfile{
		DisplayName: res.User.Profile.DisplayName,
		RealName:    res.User.Profile.RealName,
	}
	if profile.RealName == "" {
		profile.RealName = res.User.RealName
	}
	return profile, nil
}

// ChannelInfo resolves a channel id, reporting whether it is a DM.
func (c *Client) ChannelInfo(ctx context.Context, channelID string) (livia.ChannelInfo, error) {
	var res channelInfoResponse
	if err := c.callForm(ctx, "conversations.info", url.Values{"channel": {channelID}}, &res); err != nil {
		return livia.ChannelInfo{}, err
	}
	return res.Channel, nil
}

// AuthTest returns the bot's own user id.
func (c *Client) AuthTest(ctx context.Context) (string, error) {
	var res authTestResponse
	if err := c.callForm(ctx, "auth.test", url.Values{}, &res); err != nil {
		return "", err
	}
	return res.UserID, nil
}

// DownloadFile fetches a url_private with the bot credential.
func (c *Client) DownloadFile(ctx context.Context, fileURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fileURL, nil)
	if err != nil {
		return nil, fmt.Errorf("slack: create download request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.botToken)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return nil, &livia.ErrHTTP{Status: resp.StatusCode, Body: string(body)}
	}
	return io.ReadAll(resp.Body)
}

// connectionsOpen requests a Socket Mode websocket URL. This is the one
// call authenticated with the app-level token instead of the bot token.
func (c *Client) connectionsOpen(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/apps.connections.open", nil)
	if err != nil {
		return "", fmt.Errorf("slack: create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.appToken)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("slack: read apps.connections.open response: %w", err)
	}
	var env apiEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return "", fmt.Errorf("slack: decode apps.connections.open envelope: %w", err)
	}
	if !env.OK {
		return "", &livia.ErrHTTP{Status: resp.StatusCode, Body: env.Error}
	}
	var res connectionsOpenResponse
	if err := json.Unmarshal(raw, &res); err != nil {
		return "", fmt.Errorf("slack: decode apps.connections.open result: %w", err)
	}
	return res.URL, nil
}

// callJSON posts a JSON body to a Web API method and decodes the result.
func (c *Client) callJSON(ctx context.Context, method string, body any, result any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("slack: marshal %s request: %w", method, err)
	}
	return c.call(ctx, method, "application/json; charset=utf-8", func() io.Reader {
		return bytes.NewReader(payload)
	}, result)
}

// callForm posts form parameters to a Web API method and decodes the
// result. Slack's read methods only accept form encoding.
func (c *Client) callForm(ctx context.Context, method string, params url.Values, result any) error {
	encoded := params.Encode()
	return c.call(ctx, method, "application/x-www-form-urlencoded", func() io.Reader {
		return strings.NewReader(encoded)
	}, result)
}

// call runs one Web API request. A 429 is retried once after honoring
// Retry-After; the body factory re-creates the request body for the
// retry. ok:false envelopes map to ErrHTTP with the error code as body,
// which is what the error taxonomy classifies on.
func (c *Client) call(ctx context.Context, method, contentType string, body func() io.Reader, result any) error {
	resp, err := c.post(ctx, method, contentType, body())
	if err != nil {
		return err
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		wait := livia.ParseRetryAfter(resp.Header.Get("Retry-After"))
		resp.Body.Close()
		if wait <= 0 {
			wait = time.Second
		}
		c.logger.Warn("slack rate limited, retrying once", "method", method, "wait", wait)
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return ctx.Err()
		}
		if resp, err = c.post(ctx, method, contentType, body()); err != nil {
			return err
		}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("slack: read %s response: %w", method, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &livia.ErrHTTP{
			Status:     resp.StatusCode,
			Body:       string(raw),
			RetryAfter: livia.ParseRetryAfter(resp.Header.Get("Retry-After")),
		}
	}

	var env apiEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("slack: decode %s envelope: %w", method, err)
	}
	if !env.OK {
		return &livia.ErrHTTP{Status: resp.StatusCode, Body: env.Error}
	}
	if result != nil {
		if err := json.Unmarshal(raw, result); err != nil {
			return fmt.Errorf("slack: decode %s result: %w", method, err)
		}
	}
	return nil
}

func (c *Client) post(ctx context.Context, method, contentType string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/"+method, body)
	if err != nil {
		return nil, fmt.Errorf("slack: create %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", "Bearer "+c.botToken)
	return c.client.Do(req)
}

// postBytes sends raw file bytes to a pre-signed upload URL. No auth
// header; the URL itself carries the grant.
func (c *Client) postBytes(ctx context.Context, uploadURL string, data []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, uploadURL, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("slack: create upload request: %w", err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return &livia.ErrHTTP{Status: resp.StatusCode, Body: string(raw)}
	}
	return nil
}
