package openai

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestTranscribe(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/audio/transcriptions" {
			t.Errorf("expected path /audio/transcriptions, got %s", r.URL.Path)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatalf("parse multipart: %v", err)
		}
		if got := r.FormValue("model"); got != "whisper-1" {
			t.Errorf("expected model whisper-1, got %q", got)
		}
		if got := r.FormValue("language"); got != "pt" {
			t.Errorf("expected language pt, got %q", got)
		}
		if got := r.FormValue("response_format"); got != "text" {
			t.Errorf("expected response_format text, got %q", got)
		}
		f, hdr, err := r.FormFile("file")
		if err != nil {
			t.Fatalf("form file: %v", err)
		}
		defer f.Close()
		if hdr.Filename != "voz.m4a" {
			t.Errorf("expected filename voz.m4a, got %q", hdr.Filename)
		}
		data, _ := io.ReadAll(f)
		if len(data) != 4 {
			t.Errorf("expected 4 audio bytes, got %d", len(data))
		}

		// response_format=text returns the transcript as the raw body.
		w.Write([]byte("Bom dia, tudo bem?\n"))
	}))
	defer srv.Close()

	c := New("test-key", WithBaseURL(srv.URL))

	text, err := c.Transcribe(context.Background(), "voz.m4a", []byte{0, 1, 2, 3}, "pt-BR")
	if err != nil {
		t.Fatalf("Transcribe returned error: %v", err)
	}
	if text != "Bom dia, tudo bem?" {
		t.Errorf("expected trimmed transcript, got %q", text)
	}
}

func TestTranscribe_CustomModel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatalf("parse multipart: %v", err)
		}
		if got := r.FormValue("model"); got != "gpt-4o-transcribe" {
			t.Errorf("expected model gpt-4o-transcribe, got %q", got)
		}
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	c := New("test-key", WithBaseURL(srv.URL), WithTranscribeModel("gpt-4o-transcribe"))

	if _, err := c.Transcribe(context.Background(), "a.ogg", []byte{1}, "pt"); err != nil {
		t.Fatalf("Transcribe returned error: %v", err)
	}
}

func TestIsoLanguage(t *testing.T) {
	tests := []struct {
		tag  string
		want string
	}{
		{"pt-BR", "pt"},
		{"pt", "pt"},
		{"EN-us", "en"},
		{" es ", "es"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := isoLanguage(tt.tag); got != tt.want {
			t.Errorf("isoLanguage(%q) = %q, want %q", tt.tag, got, tt.want)
		}
	}
}
