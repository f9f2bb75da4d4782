package livia

import (
	"strings"
	"testing"
)

func TestIsSelfEcho(t *testing.T) {
	tests := []struct {
		text string
		want bool
	}{
		{"`⛭ gpt-4.1` `WebSearch`\n\nresposta", true},
		{"⛭ gpt-4.1", true},
		{":hourglass_flowing_sand: pensando...", true},
		{"  ⏳ Pensando...", true},
		{"📄 processando documentos...", true},
		{"oi, tudo bem?", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := IsSelfEcho(tt.text); got != tt.want {
			t.Errorf("IsSelfEcho(%q) = %v, want %v", tt.text, got, tt.want)
		}
	}
}

func TestNormalizeTextNFKC(t *testing.T) {
	// Fullwidth and composed forms must fold to the plain phrase.
	if got := normalizeText("ＰＥＮＳＡＮＤＯ"); got != "pensando" {
		t.Errorf("normalizeText fullwidth = %q", got)
	}
}

func TestCollapseSpaces(t *testing.T) {
	if got := collapseSpaces("a  b\n\nc\t d"); got != "a b c d" {
		t.Errorf("collapseSpaces = %q", got)
	}
}

func TestHasRecentRepetition(t *testing.T) {
	if hasRecentRepetition("curto") {
		t.Error("short text cannot repeat")
	}

	looping := strings.Repeat("abcdefghij", 16)
	if !hasRecentRepetition(looping) {
		t.Error("looping text should be detected")
	}

	var b strings.Builder
	for i := 0; i < 40; i++ {
		b.WriteString(strings.Repeat(string(rune('a'+i%26)), 5))
		b.WriteByte('0' + byte(i%10))
	}
	if hasRecentRepetition(b.String()) {
		t.Errorf("varied text flagged as repetition: %q", b.String())
	}

	// Whitespace churn must not hide the repetition.
	spaced := strings.Repeat("abcdefghij ", 8) + strings.Repeat("abcdefghij\n\n", 8)
	if !hasRecentRepetition(spaced) {
		t.Error("whitespace variation should not defeat detection")
	}
}
