package livia

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// StreamSink receives pipeline progress. Pipelines call OnDelta with the
// authoritative accumulated text (so a retried attempt can rewind the
// display) and OnToolCall for every invocation observed on the stream.
type StreamSink interface {
	OnDelta(ctx context.Context, delta, accumulated string)
	OnToolCall(ctx context.Context, tc ToolCall)
}

// Edit gating: a streaming edit happens when enough new text arrived, enough
// time passed, or the pipeline flushes with an empty delta.
const (
	editMinChars    = 10
	editMinInterval = 500 * time.Millisecond
)

// Circuit breaker limits. Once any trips, the presenter stops consuming and
// the last successful edit stands as the final message.
const (
	breakerMaxStream = 120 * time.Second
	breakerMaxChars  = 8000
	breakerMaxEdits  = 200
)

const placeholderText = ":hourglass_flowing_sand: pensando..."

// Presenter owns the single editable chat message of one request. It posts
// the placeholder, rewrites the message as deltas arrive (header first, then
// header plus formatted text), and performs the final edit. All methods are
// safe for concurrent use, though a request normally drives them from one
// goroutine.
type Presenter struct {
	frontend Frontend
	logger   *slog.Logger

	channel  string
	threadTS string
	base     TagInput

	mu          sync.Mutex
	ts          string // editable message ts; set by Begin
	calls       []ToolCall
	accumulated string
	sentLen     int // len(accumulated) at last edit
	lastEdit    time.Time
	editCount   int
	streamStart time.Time // first delta; zero until streaming begins
	tripped     bool
	finalized   bool
}

// NewPresenter creates a presenter for one request's reply message. base
// carries everything tag derivation needs before any tool runs: models,
// media flags and the user text.
func NewPresenter(fe Frontend, channel, threadTS string, base TagInput, logger *slog.Logger) *Presenter {
	if logger == nil {
		logger = nopLogger
	}
	return &Presenter{frontend: fe, logger: logger, channel: channel, threadTS: threadTS, base: base}
}

// MessageTS returns the editable message ts, or "" before Begin.
func (p *Presenter) MessageTS() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ts
}

// tags derives the current tag set under p.mu.
func (p *Presenter) tagsLocked() []string {
	in := p.base
	in.ToolCalls = p.calls
	in.ResponseText = p.accumulated
	return DeriveTags(in)
}

// Begin posts the placeholder with the initial tag header. Must be called
// exactly once, before any pipeline runs.
func (p *Presenter) Begin(ctx context.Context) error {
	p.mu.Lock()
	header := RenderHeader(p.tagsLocked())
	p.mu.Unlock()

	ts, err := p.frontend.PostMessage(ctx, p.channel, p.threadTS, header+"\n\n"+placeholderText)
	if err != nil {
		return err
	}
	p.mu.Lock()
	p.ts = ts
	p.mu.Unlock()
	return nil
}

// Progress rewrites the placeholder body while pre-processing runs (document
// ingestion). No-op once streaming has begun.
func (p *Presenter) Progress(ctx context.Context, msg string) {
	p.mu.Lock()
	if p.ts == "" || !p.streamStart.IsZero() || p.tripped {
		p.mu.Unlock()
		return
	}
	header := RenderHeader(p.tagsLocked())
	ts := p.ts
	p.mu.Unlock()

	if err := p.frontend.EditMessage(ctx, p.channel, ts, header+"\n\n"+msg); err != nil {
		p.logger.Warn("progress edit failed", "channel", p.channel, "ts", ts, "error", err)
	}
}

// OnDelta implements StreamSink. The first delta replaces the placeholder
// with the header alone; subsequent deltas rewrite the message under the
// edit gating rules. An empty delta forces a flush.
func (p *Presenter) OnDelta(ctx context.Context, delta, accumulated string) {
	p.mu.Lock()
	if p.ts == "" || p.tripped || p.finalized {
		p.mu.Unlock()
		return
	}

	first := p.streamStart.IsZero()
	if first {
		p.streamStart = time.Now()
	}
	p.accumulated = accumulated

	if p.breakerLocked() {
		p.mu.Unlock()
		return
	}

	switch {
	case first:
		p.editLocked(ctx, RenderHeader(p.tagsLocked()))
	case delta == "",
		len(accumulated)-p.sentLen >= editMinChars,
		time.Since(p.lastEdit) >= editMinInterval:
		p.editLocked(ctx, RenderHeader(p.tagsLocked())+"\n\n"+accumulated)
	}
	p.mu.Unlock()
}

// OnToolCall implements StreamSink. The tag set is recomputed from the
// accumulated calls on the next edit.
func (p *Presenter) OnToolCall(_ context.Context, tc ToolCall) {
	p.mu.Lock()
	p.calls = appendCall(p.calls, tc)
	p.mu.Unlock()
}

// editLocked performs one streaming edit. Callers hold p.mu. Formatted
// rendering happens platform-side via EditFormatted; failures are logged and
// the next gated edit retries naturally.
func (p *Presenter) editLocked(ctx context.Context, text string) {
	p.editCount++
	p.sentLen = len(p.accumulated)
	p.lastEdit = time.Now()
	if err := p.frontend.EditFormatted(ctx, p.channel, p.ts, text); err != nil {
		p.logger.Warn("stream edit failed",
			"channel", p.channel,
			"ts", p.ts,
			"edits", p.editCount,
			"error", err)
	}
}

// breakerLocked evaluates the circuit breaker under p.mu, tripping it when
// any limit is exceeded. Trips are logged once.
func (p *Presenter) breakerLocked() bool {
	if p.tripped {
		return true
	}
	var reason string
	switch {
	case !p.streamStart.IsZero() && time.Since(p.streamStart) > breakerMaxStream:
		reason = "stream time"
	case len(p.accumulated) > breakerMaxChars:
		reason = "length"
	case p.editCount > breakerMaxEdits:
		reason = "edit count"
	case hasRecentRepetition(p.accumulated):
		reason = "repetition"
	}
	if reason == "" {
		return false
	}
	p.tripped = true
	p.logger.Error("circuit breaker tripped",
		"channel", p.channel,
		"ts", p.ts,
		"reason", reason,
		"chars", len(p.accumulated),
		"edits", p.editCount)
	return true
}

// Tripped reports whether the circuit breaker has tripped.
func (p *Presenter) Tripped() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.tripped
}

// Finalize performs the one final edit: header from the complete tool-call
// record, the full formatted text, and an optional footer (the memory-limit
// warning). If the final edit fails, exactly one fallback message is posted
// into the thread. A tripped breaker keeps the last successful edit instead.
func (p *Presenter) Finalize(ctx context.Context, text string, calls []ToolCall, footer string) error {
	p.mu.Lock()
	if p.ts == "" || p.finalized {
		p.mu.Unlock()
		return nil
	}
	p.finalized = true
	if p.tripped {
		p.mu.Unlock()
		return nil
	}
	for _, tc := range calls {
		p.calls = appendCall(p.calls, tc)
	}
	p.accumulated = text
	header := RenderHeader(p.tagsLocked())
	ts := p.ts
	p.mu.Unlock()

	full := header + "\n\n" + text + footer
	if err := p.frontend.EditFormatted(ctx, p.channel, ts, full); err != nil {
		p.logger.Warn("final edit failed, posting fallback",
			"channel", p.channel,
			"ts", ts,
			"error", err)
		_, postErr := p.frontend.PostFormatted(ctx, p.channel, p.threadTS, full)
		return postErr
	}
	return nil
}

// FinalizeError replaces the message with a fixed error text. Same fallback
// contract as Finalize.
func (p *Presenter) FinalizeError(ctx context.Context, msg string) error {
	p.mu.Lock()
	if p.ts == "" || p.finalized {
		p.mu.Unlock()
		return nil
	}
	p.finalized = true
	if p.tripped {
		p.mu.Unlock()
		return nil
	}
	ts := p.ts
	p.mu.Unlock()

	if err := p.frontend.EditMessage(ctx, p.channel, ts, msg); err != nil {
		_, postErr := p.frontend.PostMessage(ctx, p.channel, p.threadTS, msg)
		return postErr
	}
	return nil
}

// appendCall adds tc unless an identical call (same id and name) is already
// recorded. Hosted tools may surface the same call as added and done events.
func appendCall(calls []ToolCall, tc ToolCall) []ToolCall {
	for i := range calls {
		if calls[i].ID == tc.ID && calls[i].Name == tc.Name {
			if tc.Output != "" && calls[i].Output == "" {
				calls[i].Output = tc.Output
			}
			return calls
		}
	}
	return append(calls, tc)
}
