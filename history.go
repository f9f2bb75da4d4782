package livia

import (
	"context"
	"log/slog"
	"strings"
	"sync"
)

// History defaults. The margin absorbs formatting overhead the per-line
// count misses; the reserve keeps room for the model's answer.
const (
	historyReplyLimit   = 100
	historyTokenMargin  = 1000
	historyTokenReserve = 4000
)

// HistoryBuilder reconstructs a thread's transcript from the chat platform,
// resolves author display names, and trims the result to the target model's
// context budget. Safe for concurrent use; the name cache is shared.
type HistoryBuilder struct {
	frontend Frontend
	tokens   *TokenCounter
	logger   *slog.Logger

	limit   int
	margin  int
	reserve int

	mu    sync.RWMutex
	names map[string]string
}

// NewHistoryBuilder creates a builder with the documented defaults.
func NewHistoryBuilder(fe Frontend, counter *TokenCounter, logger *slog.Logger) *HistoryBuilder {
	if logger == nil {
		logger = nopLogger
	}
	return &HistoryBuilder{
		frontend: fe,
		tokens:   counter,
		logger:   logger,
		limit:    historyReplyLimit,
		margin:   historyTokenMargin,
		reserve:  historyTokenReserve,
		names:    make(map[string]string),
	}
}

// Build returns the formatted thread history trimmed to fit model's context
// budget, oldest retained message first, and whether any history was found.
// Platform errors fail soft: the caller proceeds without history.
func (h *HistoryBuilder) Build(ctx context.Context, channel, threadTS, model string) (string, bool) {
	if threadTS == "" {
		return "", false
	}

	replies, err := h.frontend.ThreadReplies(ctx, channel, threadTS, h.limit)
	if err != nil {
		h.logger.Warn("thread history unavailable",
			"channel", channel,
			"thread", threadTS,
			"error", err)
		return "", false
	}

	lines := make([]string, 0, len(replies))
	for _, m := range replies {
		text := strings.TrimSpace(m.Text)
		if text == "" {
			continue
		}
		lines = append(lines, "["+h.authorName(ctx, m)+"]: "+text)
	}
	if len(lines) == 0 {
		return "", false
	}

	// Accumulate newest-first until the budget would overflow, then emit
	// the kept lines in their original order.
	budget := ContextWindow(model) - h.reserve
	total := 0
	keepFrom := len(lines)
	for i := len(lines) - 1; i >= 0; i-- {
		n := h.tokens.Count(model, lines[i])
		if total+n+h.margin > budget {
			break
		}
		total += n
		keepFrom = i
	}
	if keepFrom == len(lines) {
		return "", false
	}
	return strings.Join(lines[keepFrom:], "\n"), true
}

// authorName resolves a message author to a display name, caching lookups.
// Bot-authored messages without a user id show as the bot name.
func (h *HistoryBuilder) authorName(ctx context.Context, m PlatformMessage) string {
	if m.User == "" {
		if m.BotID != "" {
			return "livia"
		}
		return "desconhecido"
	}

	h.mu.RLock()
	name, ok := h.names[m.User]
	h.mu.RUnlock()
	if ok {
		return name
	}

	profile, err := h.frontend.UserInfo(ctx, m.User)
	if err != nil {
		// Not cached: the lookup may succeed next time.
		return m.User
	}
	name = profile.Name()
	if name == "" {
		name = m.User
	}

	h.mu.Lock()
	h.names[m.User] = name
	h.mu.Unlock()
	return name
}
