package livia

import (
	"context"
	"encoding/json"
	"strings"
)

// StreamEventType identifies the kind of streaming event.
type StreamEventType string

const (
	// EventTextDelta carries an incremental text chunk from the LLM.
	EventTextDelta StreamEventType = "text-delta"
	// EventToolCall signals a tool invocation was observed on the stream.
	EventToolCall StreamEventType = "tool-call"
	// EventToolOutput carries the output of a completed hosted tool call.
	EventToolOutput StreamEventType = "tool-output"
	// EventMessageDone carries the complete text of a finished message
	// output item, which may differ from the accumulated deltas.
	EventMessageDone StreamEventType = "message-done"
	// EventImage carries a completed image generation payload (base64).
	EventImage StreamEventType = "image"
)

// StreamEvent is a typed event emitted while a response streams.
// The provider adapter is the single place wire items are mapped into this
// shape; pipelines and the presenter only ever see StreamEvents.
type StreamEvent struct {
	// Type identifies the event kind.
	Type StreamEventType `json:"type"`
	// ID is the provider's item or call id, when it exposes one.
	ID string `json:"id,omitempty"`
	// Name is the tool name (tool-call, tool-output) or image filename.
	Name string `json:"name,omitempty"`
	// Server is the MCP server label for hosted MCP calls.
	Server string `json:"server,omitempty"`
	// Content carries the text delta, tool output, message text, or
	// base64 image payload depending on Type.
	Content string `json:"content,omitempty"`
	// Args carries tool call arguments (tool-call only).
	Args json.RawMessage `json:"args,omitempty"`
}

// AsToolCall converts a tool-call or tool-output event into the engine's
// ToolCall record.
func (ev StreamEvent) AsToolCall() ToolCall {
	tc := ToolCall{ID: ev.ID, Name: ev.Name, Server: ev.Server, Args: ev.Args}
	if ev.Type == EventToolOutput {
		tc.Output = ev.Content
	}
	return tc
}

// streamer drives one governed, streamed provider call, forwarding events to
// the sink while maintaining the authoritative accumulated text. Both
// pipelines run their provider calls through it.
type streamer struct {
	provider Provider
	governor *Governor
}

// respond runs one streamed call under the named pool. base is the text
// accumulated by earlier turns: deltas append to it, and a message-done item
// replaces everything after it. Each governed retry attempt gets a fresh
// channel and rewinds the sink to base, so a half-streamed failed attempt
// cannot leave stale text on screen.
func (s *streamer) respond(ctx context.Context, pool string, body ResponseRequest, sink StreamSink, base string) (Result, error) {
	return Govern(ctx, s.governor, pool, func(ctx context.Context) (Result, error) {
		ch := make(chan StreamEvent, 64)
		done := make(chan struct{})

		var acc strings.Builder
		acc.WriteString(base)

		go func() {
			defer close(done)
			for ev := range ch {
				switch ev.Type {
				case EventTextDelta:
					acc.WriteString(ev.Content)
					sink.OnDelta(ctx, ev.Content, acc.String())
				case EventToolCall, EventToolOutput:
					sink.OnToolCall(ctx, ev.AsToolCall())
				case EventMessageDone:
					// The finished item is authoritative for its own
					// turn; earlier turns' text stays.
					if full := base + ev.Content; full != acc.String() {
						acc.Reset()
						acc.WriteString(full)
						sink.OnDelta(ctx, "", full)
					}
				}
			}
		}()

		res, err := s.provider.Respond(ctx, body, ch)
		<-done
		return res, err
	})
}
