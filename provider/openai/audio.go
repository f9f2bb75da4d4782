package openai

import (
	"bytes"
	"context"
	"io"
	"mime/multipart"
	"strings"
)

// Transcribe implements livia.Transcriber: multipart POST to
// /audio/transcriptions with response_format=text, so the body is the
// transcript itself.
func (c *Client) Transcribe(ctx context.Context, filename string, data []byte, language string) (string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if err := w.WriteField("model", c.transcribeModel); err != nil {
		return "", err
	}
	if lang := isoLanguage(language); lang != "" {
		if err := w.WriteField("language", lang); err != nil {
			return "", err
		}
	}
	if err := w.WriteField("response_format", "text"); err != nil {
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

	resp, err := c.sendMultipart(ctx, "/audio/transcriptions", &buf, w.FormDataContentType())
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	text, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(text)), nil
}

// isoLanguage reduces a BCP-47 tag to the ISO-639-1 code the transcription
// endpoint expects ("pt-BR" becomes "pt").
func isoLanguage(tag string) string {
	tag = strings.TrimSpace(tag)
	if i := strings.IndexByte(tag, '-'); i >= 0 {
		tag = tag[:i]
	}
	return strings.ToLower(tag)
}
