package livia

import (
	"context"
	"encoding/json"
)

// Provider abstracts the LLM backend's streamed Responses surface.
// provider/openai implements it over the OpenAI Responses API.
type Provider interface {
	// Respond sends one request and streams events into ch. ch is always
	// closed before returning. The returned Result carries the accumulated
	// text, every observed tool call, and token usage. Hosted tools
	// (web search, file search, MCP, image generation) run provider-side
	// within the single streamed response; only function calls require a
	// follow-up turn from the caller.
	Respond(ctx context.Context, req ResponseRequest, ch chan<- StreamEvent) (Result, error)
	// Name returns the provider name (e.g. "openai").
	Name() string
}

// FileStore abstracts the provider's file and vector-store API, used by the
// document ingestor.
type FileStore interface {
	// UploadFile uploads raw bytes under filename with the given purpose
	// and returns the provider file id.
	UploadFile(ctx context.Context, filename string, data []byte, purpose string) (string, error)
	// CreateVectorStore creates an ephemeral vector store that expires
	// expiresDays after last activity. Returns the store id.
	CreateVectorStore(ctx context.Context, name string, expiresDays int) (string, error)
	// AddVectorStoreFiles attaches uploaded files to an existing store.
	AddVectorStoreFiles(ctx context.Context, storeID string, fileIDs []string) error
}

// Transcriber abstracts the audio transcription endpoint.
type Transcriber interface {
	// Transcribe uploads audio bytes and returns plain text. language is a
	// BCP-47 hint (e.g. "pt").
	Transcribe(ctx context.Context, filename string, data []byte, language string) (string, error)
}

// --- Request types ---

// ResponseRequest is one call to the provider's Responses surface.
// The shape is provider-neutral; the adapter owns the wire encoding.
type ResponseRequest struct {
	Model           string
	Instructions    string
	Input           []InputItem
	Tools           []ToolSpec
	ToolChoice      string // "", "auto" or "required"
	MaxOutputTokens int
}

// InputItem is one element of a request's input list: a role message, or a
// function-call echo plus its output when continuing a tool loop.
type InputItem struct {
	Type    string        // "message", "function_call", "function_call_output"
	Role    string        // message only: "user", "assistant", "system"
	Content []ContentPart // message only

	// function_call / function_call_output
	CallID    string
	Name      string
	Arguments string
	Output    string
}

// ContentPart is a piece of multimodal message content.
type ContentPart struct {
	Type     string // "input_text" or "input_image"
	Text     string
	ImageURL string
	Detail   string // input_image only
}

// UserText builds a plain-text user message item.
func UserText(text string) InputItem {
	return InputItem{Type: "message", Role: "user", Content: []ContentPart{TextPart(text)}}
}

// UserContent builds a user message item from mixed content parts.
func UserContent(parts ...ContentPart) InputItem {
	return InputItem{Type: "message", Role: "user", Content: parts}
}

// TextPart builds an input_text content part.
func TextPart(text string) ContentPart {
	return ContentPart{Type: "input_text", Text: text}
}

// ImagePart builds an input_image content part with low detail, which is
// what the vision models accept for chat-scale images.
func ImagePart(url string) ContentPart {
	return ContentPart{Type: "input_image", ImageURL: url, Detail: "low"}
}

// FunctionCallItem echoes a function call back into the input list when
// continuing the loop after executing it locally.
func FunctionCallItem(tc ToolCall) InputItem {
	return InputItem{Type: "function_call", CallID: tc.ID, Name: tc.Name, Arguments: string(tc.Args)}
}

// FunctionOutputItem carries a local function result back to the provider.
func FunctionOutputItem(callID, output string) InputItem {
	return InputItem{Type: "function_call_output", CallID: callID, Output: output}
}

// --- Tool specs ---

// ToolSpec describes one tool made available to a response. Type selects
// which of the remaining fields apply; the adapter maps each type to its
// wire form.
type ToolSpec struct {
	Type string // "function", "web_search", "file_search", "mcp", "image_generation"

	// function
	Name        string
	Description string
	Parameters  json.RawMessage

	// web_search
	SearchContextSize string

	// file_search
	VectorStoreIDs []string

	// mcp
	ServerLabel     string
	ServerURL       string
	RequireApproval string
	Headers         map[string]string

	// image_generation
	Size       string
	Quality    string
	Background string
}

// FunctionTool declares a locally-executed function tool.
func FunctionTool(name, description string, parameters json.RawMessage) ToolSpec {
	return ToolSpec{Type: "function", Name: name, Description: description, Parameters: parameters}
}

// WebSearchTool declares the provider-hosted web search tool.
func WebSearchTool(contextSize string) ToolSpec {
	return ToolSpec{Type: "web_search", SearchContextSize: contextSize}
}

// FileSearchTool declares the provider-hosted file search tool bound to the
// given vector stores.
func FileSearchTool(storeIDs ...string) ToolSpec {
	return ToolSpec{Type: "file_search", VectorStoreIDs: storeIDs}
}

// MCPTool declares a hosted MCP gateway tool. All invocations are
// pre-authorized, so approval is always "never".
func MCPTool(serverLabel, serverURL, credential string) ToolSpec {
	spec := ToolSpec{
		Type:            "mcp",
		ServerLabel:     serverLabel,
		ServerURL:       serverURL,
		RequireApproval: "never",
	}
	if credential != "" {
		spec.Headers = map[string]string{"Authorization": "Bearer " + credential}
	}
	return spec
}

// ImageGenTool declares the provider-hosted image generation tool.
func ImageGenTool() ToolSpec {
	return ToolSpec{Type: "image_generation", Size: "auto", Quality: "high", Background: "auto"}
}
