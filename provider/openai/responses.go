package openai

import (
	"context"
	"encoding/json"

	livia "github.com/lucastzuka/livia"
)

// --- Responses API wire types ---

// wireRequest is the /responses request body.
type wireRequest struct {
	Model           string     `json:"model"`
	Instructions    string     `json:"instructions,omitempty"`
	Input           []wireItem `json:"input"`
	Tools           []wireTool `json:"tools,omitempty"`
	ToolChoice      string     `json:"tool_choice,omitempty"`
	MaxOutputTokens int        `json:"max_output_tokens,omitempty"`
	Stream          bool       `json:"stream,omitempty"`
	Store           bool       `json:"store"`
}

// wireItem is one input item: a role message or a function-call echo.
type wireItem struct {
	Type    string     `json:"type"`
	Role    string     `json:"role,omitempty"`
	Content []wirePart `json:"content,omitempty"`

	CallID    string `json:"call_id,omitempty"`
	Name      string `json:"name,omitempty"`
	Arguments string `json:"arguments,omitempty"`
	Output    string `json:"output,omitempty"`
}

// wirePart is one piece of message content.
type wirePart struct {
	Type     string `json:"type"`
	Text     string `json:"text,omitempty"`
	ImageURL string `json:"image_url,omitempty"`
	Detail   string `json:"detail,omitempty"`
}

// wireTool is the union of the tool shapes the Responses API accepts. Type
// selects which optional fields are set.
type wireTool struct {
	Type string `json:"type"`

	// function
	Name        string          `json:"name,omitempty"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`

	// web_search
	SearchContextSize string `json:"search_context_size,omitempty"`

	// file_search
	VectorStoreIDs []string `json:"vector_store_ids,omitempty"`

	// mcp
	ServerLabel     string            `json:"server_label,omitempty"`
	ServerURL       string            `json:"server_url,omitempty"`
	RequireApproval string            `json:"require_approval,omitempty"`
	Headers         map[string]string `json:"headers,omitempty"`

	// image_generation
	Size       string `json:"size,omitempty"`
	Quality    string `json:"quality,omitempty"`
	Background string `json:"background,omitempty"`
}

// buildBody maps the engine's provider-neutral request onto the wire shape.
// Responses are never stored server-side; thread context is rebuilt from the
// chat platform on every request.
func buildBody(req livia.ResponseRequest) wireRequest {
	body := wireRequest{
		Model:           req.Model,
		Instructions:    req.Instructions,
		Input:           make([]wireItem, 0, len(req.Input)),
		ToolChoice:      req.ToolChoice,
		MaxOutputTokens: req.MaxOutputTokens,
		Stream:          true,
		Store:           false,
	}

	for _, in := range req.Input {
		item := wireItem{
			Type:      in.Type,
			Role:      in.Role,
			CallID:    in.CallID,
			Name:      in.Name,
			Arguments: in.Arguments,
			Output:    in.Output,
		}
		for _, p := range in.Content {
			item.Content = append(item.Content, wirePart{
				Type:     p.Type,
				Text:     p.Text,
				ImageURL: p.ImageURL,
				Detail:   p.Detail,
			})
		}
		body.Input = append(body.Input, item)
	}

	for _, t := range req.Tools {
		body.Tools = append(body.Tools, wireTool{
			Type:              t.Type,
			Name:              t.Name,
			Description:       t.Description,
			Parameters:        t.Parameters,
			SearchContextSize: t.SearchContextSize,
			VectorStoreIDs:    t.VectorStoreIDs,
			ServerLabel:       t.ServerLabel,
			ServerURL:         t.ServerURL,
			RequireApproval:   t.RequireApproval,
			Headers:           t.Headers,
		})
		if t.Type == "image_generation" {
			last := &body.Tools[len(body.Tools)-1]
			last.Size = t.Size
			last.Quality = t.Quality
			last.Background = t.Background
		}
	}

	return body
}

// Respond implements livia.Provider: one streamed call to /responses.
// Events are decoded into StreamEvents as they arrive; ch is closed before
// returning.
func (c *Client) Respond(ctx context.Context, req livia.ResponseRequest, ch chan<- livia.StreamEvent) (livia.Result, error) {
	resp, err := c.sendJSON(ctx, "/responses", buildBody(req))
	if err != nil {
		close(ch)
		return livia.Result{}, err
	}
	defer resp.Body.Close()

	res, err := c.streamSSE(ctx, resp.Body, ch)
	if err != nil {
		return livia.Result{}, err
	}
	if res.Model == "" {
		res.Model = req.Model
	}
	return res, nil
}
