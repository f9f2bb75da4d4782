package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"

	livia "github.com/lucastzuka/livia"
)

// UploadFile implements livia.FileStore: multipart POST to /files. Returns
// the provider file id.
func (c *Client) UploadFile(ctx context.Context, filename string, data []byte, purpose string) (string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if err := w.WriteField("purpose", purpose); err != nil {
		return "", err
	}
	part, err := w.CreateFormFile("file", filename)
	if err != nil {
		return "", err
	}
	if _, err := part.Write(data); err != nil {
		return "", err
	}
	if err := w.Close(); err != nil {
		return "", err
	}

	resp, err := c.sendMultipart(ctx, "/files", &buf, w.FormDataContentType())
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var out struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", &livia.ErrLLM{Provider: c.name, Message: fmt.Sprintf("decode file upload: %v", err)}
	}
	if out.ID == "" {
		return "", &livia.ErrLLM{Provider: c.name, Message: "file upload returned no id"}
	}
	return out.ID, nil
}

// CreateVectorStore implements livia.FileStore. The store expires
// expiresDays after its last activity; thread indexes are ephemeral by
// construction.
func (c *Client) CreateVectorStore(ctx context.Context, name string, expiresDays int) (string, error) {
	body := struct {
		Name         string `json:"name"`
		ExpiresAfter *struct {
			Anchor string `json:"anchor"`
			Days   int    `json:"days"`
		} `json:"expires_after,omitempty"`
	}{Name: name}
	if expiresDays > 0 {
		body.ExpiresAfter = &struct {
			Anchor string `json:"anchor"`
			Days   int    `json:"days"`
		}{Anchor: "last_active_at", Days: expiresDays}
	}

	resp, err := c.sendJSON(ctx, "/vector_stores", body)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var out struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", &livia.ErrLLM{Provider: c.name, Message: fmt.Sprintf("decode vector store: %v", err)}
	}
	if out.ID == "" {
		return "", &livia.ErrLLM{Provider: c.name, Message: "vector store create returned no id"}
	}
	return out.ID, nil
}

// AddVectorStoreFiles implements livia.FileStore: one file batch attaching
// the uploaded files to the store. Indexing continues provider-side after
// the batch is accepted.
func (c *Client) AddVectorStoreFiles(ctx context.Context, storeID string, fileIDs []string) error {
	body := struct {
		FileIDs []string `json:"file_ids"`
	}{FileIDs: fileIDs}

	resp, err := c.sendJSON(ctx, "/vector_stores/"+storeID+"/file_batches", body)
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

// sendMultipart POSTs a prepared multipart body to path. Same error contract
// as sendJSON.
func (c *Client) sendMultipart(ctx context.Context, path string, body io.Reader, contentType string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, body)
	if err != nil {
		return nil, &livia.ErrLLM{Provider: c.name, Message: fmt.Sprintf("create request: %v", err)}
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		return nil, httpErr(resp)
	}
	return resp, nil
}
