package livia

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// selfEchoPhrases are prefixes that identify the bot's own output arriving
// back as an inbound event (bridged workspaces, message_changed replays).
// All phrases are stored lowercase and matched after normalization.
var selfEchoPhrases = []string{
	"`⛭",
	"⛭",
	":hourglass_flowing_sand: pensando",
	"⏳ pensando",
	"📄 processando documentos",
}

// normalizeText lowercases and NFKC-normalizes s so width and compatibility
// variants match the stored phrases.
func normalizeText(s string) string {
	return strings.ToLower(norm.NFKC.String(s))
}

// IsSelfEcho reports whether text looks like one of the bot's own messages.
func IsSelfEcho(text string) bool {
	t := strings.TrimSpace(normalizeText(text))
	for _, p := range selfEchoPhrases {
		if strings.HasPrefix(t, p) {
			return true
		}
	}
	return false
}

// collapseSpaces folds runs of whitespace into single spaces so formatting
// churn between edits cannot hide a repetition.
func collapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// hasRecentRepetition reports whether the last 50 characters of s appear
// verbatim somewhere in the 100 characters preceding them. This is the
// streaming loop guard: a model stuck emitting the same clause trips it.
func hasRecentRepetition(s string) bool {
	const tail = 50
	const window = 100

	rs := []rune(collapseSpaces(s))
	if len(rs) <= tail {
		return false
	}

	last := string(rs[len(rs)-tail:])
	start := len(rs) - tail - window
	if start < 0 {
		start = 0
	}
	prior := string(rs[start : len(rs)-tail])
	return strings.Contains(prior, last)
}
