package observer

import (
	"context"
	"errors"
	"testing"

	livia "github.com/lucastzuka/livia"
)

// ---------------------------------------------------------------------------
// Mock implementations
// ---------------------------------------------------------------------------

// mockProvider for observer tests.
type mockProvider struct {
	name   string
	events []livia.StreamEvent
	result livia.Result
	err    error
}

func (m *mockProvider) Name() string { return m.name }
func (m *mockProvider) Respond(_ context.Context, _ livia.ResponseRequest, ch chan<- livia.StreamEvent) (livia.Result, error) {
	for _, ev := range m.events {
		ch <- ev
	}
	close(ch)
	return m.result, m.err
}

// mockFrontend for observer tests. Records which methods were called.
type mockFrontend struct {
	calls []string
	ts    string
	msgs  []livia.PlatformMessage
	err   error
}

func (m *mockFrontend) PostMessage(_ context.Context, _, _, _ string) (string, error) {
	m.calls = append(m.calls, "post_message")
	return m.ts, m.err
}
func (m *mockFrontend) PostFormatted(_ context.Context, _, _, _ string) (string, error) {
	m.calls = append(m.calls, "post_formatted")
	return m.ts, m.err
}
func (m *mockFrontend) EditMessage(_ context.Context, _, _, _ string) error {
	m.calls = append(m.calls, "edit_message")
	return m.err
}
func (m *mockFrontend) EditFormatted(_ context.Context, _, _, _ string) error {
	m.calls = append(m.calls, "edit_formatted")
	return m.err
}
func (m *mockFrontend) DeleteMessage(_ context.Context, _, _ string) error {
	m.calls = append(m.calls, "delete_message")
	return m.err
}
func (m *mockFrontend) UploadFile(_ context.Context, _, _, _, _ string, _ []byte) error {
	m.calls = append(m.calls, "upload_file")
	return m.err
}
func (m *mockFrontend) ThreadReplies(_ context.Context, _, _ string, _ int) ([]livia.PlatformMessage, error) {
	m.calls = append(m.calls, "thread_replies")
	return m.msgs, m.err
}
func (m *mockFrontend) UserInfo(_ context.Context, _ string) (livia.UserProfile, error) {
	m.calls = append(m.calls, "user_info")
	return livia.UserProfile{DisplayName: "bruno"}, m.err
}
func (m *mockFrontend) ChannelInfo(_ context.Context, _ string) (livia.ChannelInfo, error) {
	m.calls = append(m.calls, "channel_info")
	return livia.ChannelInfo{ID: "C1"}, m.err
}
func (m *mockFrontend) AuthTest(_ context.Context) (string, error) {
	m.calls = append(m.calls, "auth_test")
	return "UBOT", m.err
}
func (m *mockFrontend) DownloadFile(_ context.Context, _ string) ([]byte, error) {
	m.calls = append(m.calls, "download_file")
	return []byte("dados"), m.err
}

// testInstruments creates a no-op Instruments using the global OTEL providers
// (which are no-ops by default). This is safe for testing delegation behavior
// without any real OTEL backend.
func testInstruments(t *testing.T) *Instruments {
	t.Helper()
	inst, err := newInstruments(nil)
	if err != nil {
		t.Fatalf("newInstruments: %v", err)
	}
	return inst
}

// ---------------------------------------------------------------------------
// ObservedProvider tests
// ---------------------------------------------------------------------------

func TestObservedProviderName(t *testing.T) {
	inner := &mockProvider{name: "openai"}
	op := WrapProvider(inner, testInstruments(t))

	got := op.Name()
	if got != "openai" {
		t.Errorf("Name() = %q, want %q", got, "openai")
	}
}

func TestObservedProviderRespond(t *testing.T) {
	want := livia.Result{
		Text:  "Olá time",
		Usage: livia.Usage{InputTokens: 10, OutputTokens: 5},
		Model: "gpt-4.1-2025-04-14",
	}
	inner := &mockProvider{
		name: "openai",
		events: []livia.StreamEvent{
			{Type: livia.EventTextDelta, Content: "Olá"},
			{Type: livia.EventTextDelta, Content: " time"},
			{Type: livia.EventMessageDone, Content: "Olá time"},
		},
		result: want,
	}
	op := WrapProvider(inner, testInstruments(t))

	ch := make(chan livia.StreamEvent, 10)
	got, err := op.Respond(context.Background(), livia.ResponseRequest{Model: "gpt-4.1"}, ch)
	if err != nil {
		t.Fatalf("Respond returned unexpected error: %v", err)
	}

	// Respond only returns after the forwarding goroutine drained the
	// inner channel and closed ours.
	var events []livia.StreamEvent
	for ev := range ch {
		events = append(events, ev)
	}
	if len(events) != 3 {
		t.Fatalf("received %d events, want 3", len(events))
	}
	if events[0].Content != "Olá" || events[1].Content != " time" {
		t.Errorf("deltas = %q, %q, want Olá, ' time'", events[0].Content, events[1].Content)
	}
	if events[2].Type != livia.EventMessageDone {
		t.Errorf("events[2].Type = %q, want %q", events[2].Type, livia.EventMessageDone)
	}
	if got.Text != want.Text {
		t.Errorf("Text = %q, want %q", got.Text, want.Text)
	}
	if got.Usage != want.Usage {
		t.Errorf("Usage = %+v, want %+v", got.Usage, want.Usage)
	}
	if got.Model != want.Model {
		t.Errorf("Model = %q, want %q", got.Model, want.Model)
	}
}

func TestObservedProviderRespondError(t *testing.T) {
	wantErr := errors.New("provider unavailable")
	inner := &mockProvider{name: "openai", err: wantErr}
	op := WrapProvider(inner, testInstruments(t))

	ch := make(chan livia.StreamEvent, 1)
	_, err := op.Respond(context.Background(), livia.ResponseRequest{Model: "gpt-4.1"}, ch)
	if !errors.Is(err, wantErr) {
		t.Errorf("Respond error = %v, want %v", err, wantErr)
	}
	if _, open := <-ch; open {
		t.Error("expected channel closed after error")
	}
}

// ---------------------------------------------------------------------------
// ObservedFrontend tests
// ---------------------------------------------------------------------------

func TestObservedFrontendDelegates(t *testing.T) {
	inner := &mockFrontend{ts: "111.222"}
	of := WrapFrontend(inner, testInstruments(t))
	ctx := context.Background()

	ts, err := of.PostMessage(ctx, "C1", "", "oi")
	if err != nil {
		t.Fatalf("PostMessage returned unexpected error: %v", err)
	}
	if ts != "111.222" {
		t.Errorf("PostMessage ts = %q, want %q", ts, "111.222")
	}

	profile, err := of.UserInfo(ctx, "U1")
	if err != nil {
		t.Fatalf("UserInfo returned unexpected error: %v", err)
	}
	if profile.DisplayName != "bruno" {
		t.Errorf("DisplayName = %q, want %q", profile.DisplayName, "bruno")
	}

	botID, err := of.AuthTest(ctx)
	if err != nil {
		t.Fatalf("AuthTest returned unexpected error: %v", err)
	}
	if botID != "UBOT" {
		t.Errorf("AuthTest = %q, want %q", botID, "UBOT")
	}

	want := []string{"post_message", "user_info", "auth_test"}
	if len(inner.calls) != len(want) {
		t.Fatalf("calls = %v, want %v", inner.calls, want)
	}
	for i := range want {
		if inner.calls[i] != want[i] {
			t.Errorf("calls[%d] = %q, want %q", i, inner.calls[i], want[i])
		}
	}
}

func TestObservedFrontendThreadReplies(t *testing.T) {
	inner := &mockFrontend{msgs: []livia.PlatformMessage{
		{User: "U1", Text: "primeira", TS: "111.100"},
		{BotID: "B9", Text: "resposta", TS: "111.200"},
	}}
	of := WrapFrontend(inner, testInstruments(t))

	msgs, err := of.ThreadReplies(context.Background(), "C1", "111.100", 50)
	if err != nil {
		t.Fatalf("ThreadReplies returned unexpected error: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("received %d messages, want 2", len(msgs))
	}
	if msgs[0].User != "U1" || msgs[1].BotID != "B9" {
		t.Errorf("messages = %+v", msgs)
	}
}

func TestObservedFrontendError(t *testing.T) {
	wantErr := errors.New("canal inacessível")
	inner := &mockFrontend{err: wantErr}
	of := WrapFrontend(inner, testInstruments(t))

	err := of.EditMessage(context.Background(), "C1", "111.222", "novo texto")
	if !errors.Is(err, wantErr) {
		t.Errorf("EditMessage error = %v, want %v", err, wantErr)
	}
}

// ---------------------------------------------------------------------------
// Tracer tests
// ---------------------------------------------------------------------------

func TestTracerSpanLifecycle(t *testing.T) {
	tracer := NewTracer()

	ctx, span := tracer.Start(context.Background(), "engine.handle",
		livia.StringAttr("channel", "C1"),
		livia.IntAttr("attempt", 1),
		livia.BoolAttr("is_dm", false),
	)
	if ctx == nil {
		t.Fatal("Start returned nil context")
	}
	if span == nil {
		t.Fatal("Start returned nil span")
	}

	// No-op backend: the full lifecycle must still be safe to drive.
	span.SetAttr(livia.StringAttr("thread", "111.222"))
	span.Event("tool completed", livia.StringAttr("tool", "everhour"))
	span.Error(errors.New("falha simulada"))
	span.End()
}
