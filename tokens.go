package livia

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// contextWindows maps model names to their context window in tokens.
var contextWindows = map[string]int{
	"gpt-4.1":      1047576,
	"gpt-4.1-mini": 1047576,
	"gpt-4.1-nano": 1047576,
	"gpt-4o":       128000,
	"gpt-4o-mini":  128000,
	"o3":           200000,
	"o3-mini":      200000,
	"o4-mini":      200000,
}

const defaultContextWindow = 128000

// ContextWindow returns the model's context window in tokens, falling back
// to a conservative default for unknown models.
func ContextWindow(model string) int {
	if n, ok := contextWindows[model]; ok {
		return n
	}
	return defaultContextWindow
}

// TokenCounter counts text tokens with the model's tiktoken encoding.
// Encodings are cached per model; lookups after the first are lock-cheap.
// Safe for concurrent use.
type TokenCounter struct {
	mu        sync.RWMutex
	encodings map[string]*tiktoken.Tiktoken
}

// NewTokenCounter creates an empty counter.
func NewTokenCounter() *TokenCounter {
	return &TokenCounter{encodings: make(map[string]*tiktoken.Tiktoken)}
}

// Count returns the token count of text under the model's encoding. When no
// encoding is available (unknown model and no cl100k_base data), it falls
// back to the chars/4 estimate.
func (c *TokenCounter) Count(model, text string) int {
	if text == "" {
		return 0
	}
	enc := c.encoding(model)
	if enc == nil {
		return len(text)/4 + 1
	}
	return len(enc.Encode(text, nil, nil))
}

func (c *TokenCounter) encoding(model string) *tiktoken.Tiktoken {
	c.mu.RLock()
	enc, ok := c.encodings[model]
	c.mu.RUnlock()
	if ok {
		return enc
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if enc, ok := c.encodings[model]; ok {
		return enc
	}

	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		enc, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			enc = nil
		}
	}
	c.encodings[model] = enc
	return enc
}
