package livia

import "testing"

func TestContextWindow(t *testing.T) {
	tests := map[string]int{
		"gpt-4.1":       1047576,
		"gpt-4o":        128000,
		"o3":            200000,
		"unknown-model": defaultContextWindow,
	}
	for model, want := range tests {
		if got := ContextWindow(model); got != want {
			t.Errorf("ContextWindow(%q) = %d, want %d", model, got, want)
		}
	}
}

func TestTokenCounterCount(t *testing.T) {
	c := NewTokenCounter()

	if got := c.Count("gpt-4o", ""); got != 0 {
		t.Errorf("Count(empty) = %d, want 0", got)
	}

	short := c.Count("gpt-4o", "oi")
	long := c.Count("gpt-4o", "uma frase consideravelmente mais longa do que a anterior, com muito mais conteúdo")
	if short <= 0 {
		t.Errorf("Count(short) = %d, want > 0", short)
	}
	if long <= short {
		t.Errorf("longer text counted %d tokens, shorter %d", long, short)
	}
}

func TestTokenCounterCachesEncoding(t *testing.T) {
	c := NewTokenCounter()
	first := c.Count("gpt-4o", "mesmo texto")
	second := c.Count("gpt-4o", "mesmo texto")
	if first != second {
		t.Errorf("counts differ across calls: %d vs %d", first, second)
	}
}

func TestTokenCounterUnknownModelFallsBack(t *testing.T) {
	c := NewTokenCounter()
	if got := c.Count("made-up-model-v9", "qualquer texto serve aqui"); got <= 0 {
		t.Errorf("Count = %d, want positive estimate", got)
	}
}
