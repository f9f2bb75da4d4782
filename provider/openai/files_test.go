package openai

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	livia "github.com/lucastzuka/livia"
)

func TestUploadFile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/files" {
			t.Errorf("expected path /files, got %s", r.URL.Path)
		}
		if !strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
			t.Errorf("expected multipart content-type, got %s", r.Header.Get("Content-Type"))
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatalf("parse multipart: %v", err)
		}
		if got := r.FormValue("purpose"); got != "assistants" {
			t.Errorf("expected purpose assistants, got %q", got)
		}
		f, hdr, err := r.FormFile("file")
		if err != nil {
			t.Fatalf("form file: %v", err)
		}
		defer f.Close()
		if hdr.Filename != "relatorio.pdf" {
			t.Errorf("expected filename relatorio.pdf, got %q", hdr.Filename)
		}
		data, _ := io.ReadAll(f)
		if string(data) != "%PDF-1.4" {
			t.Errorf("unexpected file payload: %q", data)
		}

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"file-abc","object":"file"}`))
	}))
	defer srv.Close()

	c := New("test-key", WithBaseURL(srv.URL))

	id, err := c.UploadFile(context.Background(), "relatorio.pdf", []byte("%PDF-1.4"), "assistants")
	if err != nil {
		t.Fatalf("UploadFile returned error: %v", err)
	}
	if id != "file-abc" {
		t.Errorf("expected file id file-abc, got %q", id)
	}
}

func TestUploadFile_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusRequestEntityTooLarge)
		w.Write([]byte(`{"error":{"message":"file too large"}}`))
	}))
	defer srv.Close()

	c := New("test-key", WithBaseURL(srv.URL))

	_, err := c.UploadFile(context.Background(), "big.pdf", []byte("x"), "assistants")
	if err == nil {
		t.Fatal("expected error for 413 response")
	}
	httpErr, ok := err.(*livia.ErrHTTP)
	if !ok {
		t.Fatalf("expected *livia.ErrHTTP, got %T", err)
	}
	if httpErr.Status != http.StatusRequestEntityTooLarge {
		t.Errorf("expected status 413, got %d", httpErr.Status)
	}
}

func TestCreateVectorStore(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/vector_stores" {
			t.Errorf("expected path /vector_stores, got %s", r.URL.Path)
		}
		var body struct {
			Name         string `json:"name"`
			ExpiresAfter *struct {
				Anchor string `json:"anchor"`
				Days   int    `json:"days"`
			} `json:"expires_after"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if body.Name != "livia-C1-111.222" {
			t.Errorf("expected store name livia-C1-111.222, got %q", body.Name)
		}
		if body.ExpiresAfter == nil {
			t.Fatal("expected expires_after to be set")
		}
		if body.ExpiresAfter.Anchor != "last_active_at" || body.ExpiresAfter.Days != 2 {
			t.Errorf("unexpected expiry: %+v", body.ExpiresAfter)
		}

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"vs-xyz","object":"vector_store"}`))
	}))
	defer srv.Close()

	c := New("test-key", WithBaseURL(srv.URL))

	id, err := c.CreateVectorStore(context.Background(), "livia-C1-111.222", 2)
	if err != nil {
		t.Fatalf("CreateVectorStore returned error: %v", err)
	}
	if id != "vs-xyz" {
		t.Errorf("expected store id vs-xyz, got %q", id)
	}
}

func TestCreateVectorStore_NoExpiry(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		if strings.Contains(string(raw), "expires_after") {
			t.Errorf("expected expires_after to be omitted, body: %s", raw)
		}
		w.Write([]byte(`{"id":"vs-1"}`))
	}))
	defer srv.Close()

	c := New("test-key", WithBaseURL(srv.URL))

	if _, err := c.CreateVectorStore(context.Background(), "permanente", 0); err != nil {
		t.Fatalf("CreateVectorStore returned error: %v", err)
	}
}

func TestAddVectorStoreFiles(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/vector_stores/vs-xyz/file_batches" {
			t.Errorf("expected file_batches path, got %s", r.URL.Path)
		}
		var body struct {
			FileIDs []string `json:"file_ids"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if len(body.FileIDs) != 2 || body.FileIDs[0] != "file-1" || body.FileIDs[1] != "file-2" {
			t.Errorf("unexpected file ids: %v", body.FileIDs)
		}
		w.Write([]byte(`{"id":"batch-1","status":"in_progress"}`))
	}))
	defer srv.Close()

	c := New("test-key", WithBaseURL(srv.URL))

	err := c.AddVectorStoreFiles(context.Background(), "vs-xyz", []string{"file-1", "file-2"})
	if err != nil {
		t.Fatalf("AddVectorStoreFiles returned error: %v", err)
	}
}
