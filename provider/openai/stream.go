package openai

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"strings"

	livia "github.com/lucastzuka/livia"
)

// --- Responses API stream wire types ---

// wireEvent is the union of the SSE payloads the engine cares about. Type
// selects which fields are populated; unknown event types are skipped.
type wireEvent struct {
	Type      string        `json:"type"`
	ItemID    string        `json:"item_id"`
	Delta     string        `json:"delta"`
	Text      string        `json:"text"`
	Name      string        `json:"name"`
	Arguments string        `json:"arguments"`
	Item      *wireOutItem  `json:"item"`
	Response  *wireResponse `json:"response"`

	// type == "error"
	Code    string `json:"code"`
	Message string `json:"message"`
}

// wireOutItem is one response output item as it appears in
// response.output_item.added/done events.
type wireOutItem struct {
	ID            string `json:"id"`
	Type          string `json:"type"`
	Status        string `json:"status"`
	CallID        string `json:"call_id"`
	Name          string `json:"name"`
	Arguments     string `json:"arguments"`
	ServerLabel   string `json:"server_label"`
	Output        string `json:"output"`
	Result        string `json:"result"`
	RevisedPrompt string `json:"revised_prompt"`
	Error         string `json:"error"`
}

type wireResponse struct {
	ID     string     `json:"id"`
	Model  string     `json:"model"`
	Status string     `json:"status"`
	Usage  *wireUsage `json:"usage"`
	Error  *wireError `json:"error"`
}

type wireUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

type wireError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *wireError) String() string {
	switch {
	case e == nil:
		return "response failed"
	case e.Code != "" && e.Message != "":
		return e.Code + ": " + e.Message
	case e.Message != "":
		return e.Message
	default:
		return e.Code
	}
}

// streamSSE reads the /responses SSE stream, forwards decoded StreamEvents
// to ch, and returns the accumulated Result. ch is closed before returning.
//
// Expected frames:
//
//	data: {"type":"response.output_text.delta","item_id":"msg_1","delta":"..."}
//	data: {"type":"response.completed","response":{...}}
//	data: [DONE]
func (c *Client) streamSSE(ctx context.Context, body io.Reader, ch chan<- livia.StreamEvent) (livia.Result, error) {
	defer close(ch)

	scanner := bufio.NewScanner(body)
	// Image generation items carry megabyte-scale base64 payloads.
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	acc := newAccumulator()

	send := func(ev livia.StreamEvent) error {
		select {
		case ch <- ev:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		data := strings.TrimPrefix(line, "data: ")
		if data == "[DONE]" {
			break
		}

		var ev wireEvent
		if err := json.Unmarshal([]byte(data), &ev); err != nil {
			// Skip malformed frames.
			continue
		}

		for _, out := range acc.apply(ev) {
			if err := send(out); err != nil {
				return livia.Result{}, err
			}
		}
		if acc.failed != nil {
			break
		}
	}

	if err := scanner.Err(); err != nil {
		return livia.Result{}, err
	}
	if acc.failed != nil {
		return livia.Result{}, acc.failedErr(c.name)
	}
	return acc.result(), nil
}

// accumulator folds the event stream into the final Result while producing
// the engine-facing StreamEvents for each frame.
type accumulator struct {
	textOrder []string
	texts     map[string]*strings.Builder

	callOrder []string // item ids, stream order
	calls     map[string]*livia.ToolCall

	images []livia.GeneratedImage
	usage  livia.Usage
	model  string
	failed *wireError
}

func newAccumulator() *accumulator {
	return &accumulator{
		texts: make(map[string]*strings.Builder),
		calls: make(map[string]*livia.ToolCall),
	}
}

// apply folds one wire event and returns the StreamEvents to forward.
func (a *accumulator) apply(ev wireEvent) []livia.StreamEvent {
	switch ev.Type {
	case "response.output_text.delta":
		a.text(ev.ItemID).WriteString(ev.Delta)
		return []livia.StreamEvent{{Type: livia.EventTextDelta, ID: ev.ItemID, Content: ev.Delta}}

	case "response.output_text.done":
		// The done text is authoritative for its item; re-emit the whole
		// message so the consumer can replace what it accumulated.
		a.text(ev.ItemID).Reset()
		a.text(ev.ItemID).WriteString(ev.Text)
		return []livia.StreamEvent{{Type: livia.EventMessageDone, ID: ev.ItemID, Content: a.joinedText()}}

	case "response.output_item.added":
		return a.itemAdded(ev.Item)

	case "response.output_item.done":
		return a.itemDone(ev.Item)

	case "response.function_call_arguments.delta":
		if tc := a.calls[ev.ItemID]; tc != nil {
			tc.Args = append(tc.Args, ev.Delta...)
		}
		return nil

	case "response.function_call_arguments.done":
		if tc := a.calls[ev.ItemID]; tc != nil {
			tc.Args = json.RawMessage(ev.Arguments)
			if ev.Name != "" {
				tc.Name = ev.Name
			}
		}
		return nil

	case "response.completed":
		if ev.Response != nil {
			a.model = ev.Response.Model
			if ev.Response.Usage != nil {
				a.usage = livia.Usage{
					InputTokens:  ev.Response.Usage.InputTokens,
					OutputTokens: ev.Response.Usage.OutputTokens,
				}
			}
		}
		return nil

	case "response.failed", "response.incomplete":
		if ev.Response != nil && ev.Response.Error != nil {
			a.failed = ev.Response.Error
		} else {
			a.failed = &wireError{Code: ev.Type}
		}
		return nil

	case "error":
		a.failed = &wireError{Code: ev.Code, Message: ev.Message}
		return nil
	}
	return nil
}

// itemAdded registers a new output item. Tool items produce an immediate
// tool-call event so the presenter can update the tag header before the
// call finishes.
func (a *accumulator) itemAdded(item *wireOutItem) []livia.StreamEvent {
	if item == nil {
		return nil
	}
	switch item.Type {
	case "message":
		a.text(item.ID)
		return nil

	case "function_call":
		tc := a.call(item.ID, livia.ToolCall{ID: item.CallID, Name: item.Name})
		if item.Arguments != "" {
			tc.Args = json.RawMessage(item.Arguments)
		}
		return []livia.StreamEvent{{Type: livia.EventToolCall, ID: tc.ID, Name: tc.Name}}

	case "mcp_call":
		tc := a.call(item.ID, livia.ToolCall{ID: item.ID, Name: item.Name, Server: item.ServerLabel})
		return []livia.StreamEvent{{Type: livia.EventToolCall, ID: tc.ID, Name: tc.Name, Server: tc.Server}}

	case "web_search_call", "file_search_call", "image_generation_call":
		tc := a.call(item.ID, livia.ToolCall{ID: item.ID, Name: item.Type})
		return []livia.StreamEvent{{Type: livia.EventToolCall, ID: tc.ID, Name: tc.Name}}
	}
	return nil
}

// itemDone finalizes an output item: argument payloads become authoritative,
// MCP outputs surface, and finished image generations yield their payload.
func (a *accumulator) itemDone(item *wireOutItem) []livia.StreamEvent {
	if item == nil {
		return nil
	}
	switch item.Type {
	case "function_call":
		tc := a.call(item.ID, livia.ToolCall{ID: item.CallID, Name: item.Name})
		if item.CallID != "" {
			tc.ID = item.CallID
		}
		if item.Name != "" {
			tc.Name = item.Name
		}
		if item.Arguments != "" {
			tc.Args = json.RawMessage(item.Arguments)
		}
		return []livia.StreamEvent{{Type: livia.EventToolCall, ID: tc.ID, Name: tc.Name, Args: tc.Args}}

	case "mcp_call":
		tc := a.call(item.ID, livia.ToolCall{ID: item.ID, Name: item.Name, Server: item.ServerLabel})
		if item.Error != "" {
			tc.Err = item.Error
			return nil
		}
		tc.Output = item.Output
		if tc.Output == "" {
			return nil
		}
		return []livia.StreamEvent{{
			Type:    livia.EventToolOutput,
			ID:      tc.ID,
			Name:    tc.Name,
			Server:  tc.Server,
			Content: tc.Output,
		}}

	case "image_generation_call":
		a.call(item.ID, livia.ToolCall{ID: item.ID, Name: item.Type})
		if item.Result == "" {
			return nil
		}
		a.images = append(a.images, livia.GeneratedImage{B64: item.Result, Prompt: item.RevisedPrompt})
		return []livia.StreamEvent{{Type: livia.EventImage, ID: item.ID, Content: item.Result}}
	}
	return nil
}

// text returns the builder for a message item, registering it on first use.
func (a *accumulator) text(itemID string) *strings.Builder {
	if b, ok := a.texts[itemID]; ok {
		return b
	}
	b := &strings.Builder{}
	a.texts[itemID] = b
	a.textOrder = append(a.textOrder, itemID)
	return b
}

// call returns the tool-call record for an item, registering seed on first
// use.
func (a *accumulator) call(itemID string, seed livia.ToolCall) *livia.ToolCall {
	if tc, ok := a.calls[itemID]; ok {
		return tc
	}
	tc := seed
	a.calls[itemID] = &tc
	a.callOrder = append(a.callOrder, itemID)
	return &tc
}

func (a *accumulator) joinedText() string {
	var b strings.Builder
	for _, id := range a.textOrder {
		b.WriteString(a.texts[id].String())
	}
	return b.String()
}

func (a *accumulator) failedErr(provider string) error {
	msg := a.failed.String()
	return &livia.ErrLLM{Provider: provider, Message: msg}
}

func (a *accumulator) result() livia.Result {
	res := livia.Result{
		Text:   a.joinedText(),
		Usage:  a.usage,
		Model:  a.model,
		Images: a.images,
	}
	for _, id := range a.callOrder {
		res.ToolCalls = append(res.ToolCalls, *a.calls[id])
	}
	return res
}
