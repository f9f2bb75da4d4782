package livia

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
)

// fakeFrontend records every platform operation and serves canned lookups.
// Zero value is usable; set the err/data fields to script behavior.
type fakeFrontend struct {
	mu     sync.Mutex
	ops    []frontendOp
	nextTS int

	postErr    error
	editErr    error
	uploadErr  error
	replies    []PlatformMessage
	repliesErr error
	users      map[string]UserProfile
	userCalls  map[string]int
	channels   map[string]ChannelInfo
	files      map[string][]byte
	botUserID  string
}

type frontendOp struct {
	kind    string
	channel string
	ts      string
	thread  string
	text    string
	name    string
	data    []byte
}

func (f *fakeFrontend) record(op frontendOp) {
	f.mu.Lock()
	f.ops = append(f.ops, op)
	f.mu.Unlock()
}

func (f *fakeFrontend) post(kind, channel, threadTS, text string) (string, error) {
	f.mu.Lock()
	err := f.postErr
	f.nextTS++
	ts := fmt.Sprintf("1700000000.%06d", f.nextTS)
	f.mu.Unlock()
	if err != nil {
		return "", err
	}
	f.record(frontendOp{kind: kind, channel: channel, ts: ts, thread: threadTS, text: text})
	return ts, nil
}

func (f *fakeFrontend) PostMessage(_ context.Context, channel, threadTS, text string) (string, error) {
	return f.post("post", channel, threadTS, text)
}

func (f *fakeFrontend) PostFormatted(_ context.Context, channel, threadTS, text string) (string, error) {
	return f.post("post_formatted", channel, threadTS, text)
}

func (f *fakeFrontend) edit(kind, channel, ts, text string) error {
	f.mu.Lock()
	err := f.editErr
	f.mu.Unlock()
	if err != nil {
		return err
	}
	f.record(frontendOp{kind: kind, channel: channel, ts: ts, text: text})
	return nil
}

func (f *fakeFrontend) EditMessage(_ context.Context, channel, ts, text string) error {
	return f.edit("edit", channel, ts, text)
}

func (f *fakeFrontend) EditFormatted(_ context.Context, channel, ts, text string) error {
	return f.edit("edit_formatted", channel, ts, text)
}

func (f *fakeFrontend) DeleteMessage(_ context.Context, channel, ts string) error {
	f.record(frontendOp{kind: "delete", channel: channel, ts: ts})
	return nil
}

func (f *fakeFrontend) UploadFile(_ context.Context, channel, threadTS, filename, title string, data []byte) error {
	f.mu.Lock()
	err := f.uploadErr
	f.mu.Unlock()
	if err != nil {
		return err
	}
	f.record(frontendOp{kind: "upload", channel: channel, thread: threadTS, name: filename, text: title, data: data})
	return nil
}

func (f *fakeFrontend) ThreadReplies(_ context.Context, channel, threadTS string, limit int) ([]PlatformMessage, error) {
	f.record(frontendOp{kind: "replies", channel: channel, ts: threadTS})
	if f.repliesErr != nil {
		return nil, f.repliesErr
	}
	if limit > 0 && limit < len(f.replies) {
		return f.replies[:limit], nil
	}
	return f.replies, nil
}

func (f *fakeFrontend) UserInfo(_ context.Context, userID string) (UserProfile, error) {
	f.mu.Lock()
	if f.userCalls == nil {
		f.userCalls = make(map[string]int)
	}
	f.userCalls[userID]++
	u, ok := f.users[userID]
	f.mu.Unlock()
	if !ok {
		return UserProfile{}, errors.New("user_not_found")
	}
	return u, nil
}

func (f *fakeFrontend) ChannelInfo(_ context.Context, channelID string) (ChannelInfo, error) {
	f.record(frontendOp{kind: "channel_info", channel: channelID})
	if c, ok := f.channels[channelID]; ok {
		return c, nil
	}
	return ChannelInfo{ID: channelID}, nil
}

func (f *fakeFrontend) AuthTest(_ context.Context) (string, error) {
	return f.botUserID, nil
}

func (f *fakeFrontend) DownloadFile(_ context.Context, url string) ([]byte, error) {
	f.record(frontendOp{kind: "download", name: url})
	f.mu.Lock()
	data, ok := f.files[url]
	f.mu.Unlock()
	if !ok {
		return nil, errors.New("download: not found")
	}
	return data, nil
}

// opsOf returns recorded operations of one kind.
func (f *fakeFrontend) opsOf(kind string) []frontendOp {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []frontendOp
	for _, op := range f.ops {
		if op.kind == kind {
			out = append(out, op)
		}
	}
	return out
}

// opCount returns the total number of recorded operations.
func (f *fakeFrontend) opCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.ops)
}

// lastEdit returns the text of the most recent edit of either kind.
func (f *fakeFrontend) lastEdit() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.ops) - 1; i >= 0; i-- {
		if strings.HasPrefix(f.ops[i].kind, "edit") {
			return f.ops[i].text
		}
	}
	return ""
}

var _ Frontend = (*fakeFrontend)(nil)

// scriptedResponse is one provider turn: the events streamed into the
// channel, then the returned result or error.
type scriptedResponse struct {
	events []StreamEvent
	result Result
	err    error
}

// fakeProvider pops scripted responses in order and records every request.
type fakeProvider struct {
	mu     sync.Mutex
	script []scriptedResponse
	reqs   []ResponseRequest
	idx    int
}

func (f *fakeProvider) Name() string { return "fake" }

func (f *fakeProvider) Respond(_ context.Context, req ResponseRequest, ch chan<- StreamEvent) (Result, error) {
	f.mu.Lock()
	f.reqs = append(f.reqs, req)
	var s scriptedResponse
	if f.idx < len(f.script) {
		s = f.script[f.idx]
		f.idx++
	} else {
		s = scriptedResponse{result: Result{Text: "exhausted"}}
	}
	f.mu.Unlock()

	for _, ev := range s.events {
		ch <- ev
	}
	close(ch)
	return s.result, s.err
}

// requests returns a copy of the recorded requests.
func (f *fakeProvider) requests() []ResponseRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]ResponseRequest(nil), f.reqs...)
}

var _ Provider = (*fakeProvider)(nil)

// textResponse scripts a single-message response: deltas for each chunk,
// then a result carrying the joined text.
func textResponse(chunks ...string) scriptedResponse {
	var events []StreamEvent
	for _, c := range chunks {
		events = append(events, StreamEvent{Type: EventTextDelta, Content: c})
	}
	return scriptedResponse{events: events, result: Result{Text: strings.Join(chunks, "")}}
}

// fakeFileStore records uploads and vector store operations.
type fakeFileStore struct {
	mu        sync.Mutex
	uploads   []string
	stores    []string
	added     map[string][]string
	uploadErr error
	createErr error
	addErr    error
}

func (f *fakeFileStore) UploadFile(_ context.Context, filename string, _ []byte, purpose string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.uploadErr != nil {
		return "", f.uploadErr
	}
	f.uploads = append(f.uploads, filename+":"+purpose)
	return fmt.Sprintf("file-%d", len(f.uploads)), nil
}

func (f *fakeFileStore) CreateVectorStore(_ context.Context, name string, _ int) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return "", f.createErr
	}
	f.stores = append(f.stores, name)
	return fmt.Sprintf("vs-%d", len(f.stores)), nil
}

func (f *fakeFileStore) AddVectorStoreFiles(_ context.Context, storeID string, fileIDs []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.addErr != nil {
		return f.addErr
	}
	if f.added == nil {
		f.added = make(map[string][]string)
	}
	f.added[storeID] = append(f.added[storeID], fileIDs...)
	return nil
}

var _ FileStore = (*fakeFileStore)(nil)

// fakeTranscriber returns a fixed transcription and records filenames.
type fakeTranscriber struct {
	mu    sync.Mutex
	text  string
	err   error
	calls []string
}

func (f *fakeTranscriber) Transcribe(_ context.Context, filename string, _ []byte, _ string) (string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, filename)
	f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	return f.text, nil
}

var _ Transcriber = (*fakeTranscriber)(nil)

// collectSink records everything a pipeline pushed at it.
type collectSink struct {
	mu          sync.Mutex
	deltas      []string
	accumulated string
	calls       []ToolCall
}

func (c *collectSink) OnDelta(_ context.Context, delta, accumulated string) {
	c.mu.Lock()
	c.deltas = append(c.deltas, delta)
	c.accumulated = accumulated
	c.mu.Unlock()
}

func (c *collectSink) OnToolCall(_ context.Context, tc ToolCall) {
	c.mu.Lock()
	c.calls = append(c.calls, tc)
	c.mu.Unlock()
}

func (c *collectSink) text() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.accumulated
}

var _ StreamSink = (*collectSink)(nil)

// testGovernor returns a governor with millisecond backoffs and no rate
// windows so retry paths run fast.
func testGovernor() *Governor {
	fast := func(env Envelope) Envelope {
		env.PerMinute = 0
		env.PerHour = 0
		env.MinBackoff = time.Millisecond
		env.MaxBackoff = 2 * time.Millisecond
		return env
	}
	return NewGovernor(
		WithPool(PoolLLM, fast(DefaultLLMEnvelope())),
		WithPool(PoolIntegration, fast(DefaultIntegrationEnvelope())),
	)
}

// testModels is the model set used across tests.
var testModels = Models{Text: "gpt-4.1", Vision: "gpt-4o", Reasoner: "o3"}
