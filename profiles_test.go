package livia

import (
	"strings"
	"testing"
)

func TestProfileForKnownServices(t *testing.T) {
	for _, svc := range Services {
		p := ProfileFor(ServiceBySlug(svc.Slug))
		if p.Instructions == "" {
			t.Errorf("%s: empty instructions", svc.Slug)
		}
		if !strings.HasPrefix(p.Instructions, profilePreamble) {
			t.Errorf("%s: instructions missing the shared preamble", svc.Slug)
		}
	}
}

func TestProfileMailNarrows(t *testing.T) {
	p := ProfileFor(ServiceBySlug("mail"))
	if !p.NarrowsOnOverflow() {
		t.Fatal("mail profile must have a narrowed mode")
	}
	if !strings.Contains(p.Narrowed, "no máximo duas frases") {
		t.Errorf("narrowed = %q", p.Narrowed)
	}
	if !strings.Contains(p.Narrowed, "Nunca retorne o corpo") {
		t.Errorf("narrowed = %q", p.Narrowed)
	}
}

func TestProfileOthersDoNotNarrow(t *testing.T) {
	for _, slug := range []string{"calendar", "time-tracker", "docs", "file-drive"} {
		if ProfileFor(ServiceBySlug(slug)).NarrowsOnOverflow() {
			t.Errorf("%s: unexpected narrowed mode", slug)
		}
	}
}

func TestGenericProfileNamesService(t *testing.T) {
	p := GenericProfile(ServiceBySlug("time-tracker"))
	if !strings.Contains(p.Instructions, "Everhour") {
		t.Errorf("instructions = %q, want the display name", p.Instructions)
	}
	if !strings.Contains(p.Instructions, "registro e consulta de horas") {
		t.Errorf("instructions = %q, want the description", p.Instructions)
	}
	if p.NarrowsOnOverflow() {
		t.Error("generic profile must not narrow")
	}
}

func TestServiceInstructionsCoverTable(t *testing.T) {
	// Every registered service should have hand-written rules; the generic
	// fallback exists for failures, not for gaps in the table.
	for _, svc := range Services {
		if _, ok := serviceInstructions[svc.Slug]; !ok {
			t.Errorf("%s: no service instructions", svc.Slug)
		}
	}
}
