package livia

import "encoding/json"

// --- Inbound platform types ---

// Event is one inbound chat-platform event, flattened by the frontend
// adapter. Fields mirror the platform's event payload.
type Event struct {
	Type     string    `json:"type"`
	SubType  string    `json:"subtype,omitempty"`
	Channel  string    `json:"channel"`
	User     string    `json:"user"`
	BotID    string    `json:"bot_id,omitempty"`
	Text     string    `json:"text"`
	TS       string    `json:"ts"`
	ThreadTS string    `json:"thread_ts,omitempty"`
	Files    []FileRef `json:"files,omitempty"`
}

// FileRef describes a file attached to an event. URLPrivate requires the bot
// credential to download.
type FileRef struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	MIMEType   string `json:"mimetype"`
	Size       int64  `json:"size"`
	URLPrivate string `json:"url_private"`
}

// PlatformMessage is one message returned by the thread-replies call.
type PlatformMessage struct {
	User  string `json:"user"`
	BotID string `json:"bot_id,omitempty"`
	Text  string `json:"text"`
	TS    string `json:"ts"`
}

// UserProfile is the subset of the platform user record the engine needs.
type UserProfile struct {
	DisplayName string `json:"display_name"`
	RealName    string `json:"real_name"`
}

// Name returns the best display name available.
func (u UserProfile) Name() string {
	if u.DisplayName != "" {
		return u.DisplayName
	}
	return u.RealName
}

// ChannelInfo is the subset of the platform channel record the engine needs.
type ChannelInfo struct {
	ID   string `json:"id"`
	IsIM bool   `json:"is_im"`
}

// --- Engine types ---

// Request is the unit of work the router hands to the orchestrator.
// Immutable once built; each Request owns exactly one editable reply message.
type Request struct {
	ID       string // correlation id
	Channel  string
	ThreadTS string // thread root; empty for a top-level DM exchange
	TS       string // originating message ts
	User     string
	Text     string // cleaned text, mention token stripped
	IsDM     bool

	Images    []FileRef
	Audio     []FileRef
	Documents []FileRef

	ModelOverride string
	ForceThinking bool // set by the +think command
}

// ThreadKey identifies the conversation Request belongs to: channel plus
// thread root, or just the channel for top-level DMs.
func (r Request) ThreadKey() string {
	return threadKey(r.Channel, r.ThreadTS)
}

func threadKey(channel, threadTS string) string {
	if threadTS == "" {
		return channel
	}
	return channel + "|" + threadTS
}

// Turn is one per-message record in a thread's reconstructed history.
type Turn struct {
	Author string
	Text   string
	TS     string
}

// ToolCall records an invocation observed on the streaming channel.
// Server is the MCP server label when the call came from a hosted MCP tool.
type ToolCall struct {
	ID     string          `json:"id"`
	Name   string          `json:"name"`
	Server string          `json:"server,omitempty"`
	Args   json.RawMessage `json:"args,omitempty"`
	Output string          `json:"output,omitempty"`
	Err    string          `json:"error,omitempty"`
}

// Usage holds token counts reported by the provider for one response.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Total returns input plus output tokens.
func (u Usage) Total() int { return u.InputTokens + u.OutputTokens }

// Add accumulates another usage record.
func (u *Usage) Add(o Usage) {
	u.InputTokens += o.InputTokens
	u.OutputTokens += o.OutputTokens
}

// GeneratedImage is a base64 image payload produced by the image-generation
// tool, delivered to the thread as a file upload.
type GeneratedImage struct {
	B64    string
	Name   string
	Prompt string // revised prompt reported by the provider
}

// Result is what a pipeline run produces: the final text, every tool call
// observed on the stream, token usage, the effective model, and any
// generated images.
type Result struct {
	Text      string
	ToolCalls []ToolCall
	Usage     Usage
	Model     string
	Images    []GeneratedImage
}
