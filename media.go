package livia

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"net/http"
	"path"
	"regexp"
	"strings"
)

// maxAudioBytes caps audio attachments accepted for transcription. Larger
// files are rejected before any download happens.
const maxAudioBytes = 25 << 20 // 25 MiB

// transcribeLanguage is the language hint passed to the transcription
// endpoint. The team speaks Brazilian Portuguese.
const transcribeLanguage = "pt-BR"

var audioExtensions = map[string]bool{
	"mp3": true, "wav": true, "m4a": true, "ogg": true, "flac": true,
	"mp4": true, "mpeg": true, "mpga": true, "webm": true,
}

var documentExtensions = map[string]bool{
	"pdf": true, "csv": true, "xls": true, "xlsx": true,
	"doc": true, "docx": true, "txt": true,
}

func fileExt(name string) string {
	return strings.ToLower(strings.TrimPrefix(path.Ext(name), "."))
}

func isImageFile(f FileRef) bool {
	return strings.HasPrefix(f.MIMEType, "image/")
}

func isAudioFile(f FileRef) bool {
	if strings.HasPrefix(f.MIMEType, "audio/") {
		return true
	}
	return audioExtensions[fileExt(f.Name)]
}

func isDocumentFile(f FileRef) bool {
	if isImageFile(f) || isAudioFile(f) {
		return false
	}
	return documentExtensions[fileExt(f.Name)]
}

// splitFiles buckets an event's attachments into the three media classes the
// engine handles. Files that fit none of them are ignored.
func splitFiles(files []FileRef) (images, audio, docs []FileRef) {
	for _, f := range files {
		switch {
		case isImageFile(f):
			images = append(images, f)
		case isAudioFile(f):
			audio = append(audio, f)
		case isDocumentFile(f):
			docs = append(docs, f)
		}
	}
	return images, audio, docs
}

// Inline image URL detection. Three passes: direct image extensions, known
// image hosts, and extension-anywhere-in-path for CDN URLs with query params.
var imageURLPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)https?://[^\s<>|]+\.(?:png|jpe?g|gif|webp|bmp)(?:\?[^\s<>|]*)?`),
	regexp.MustCompile(`(?i)https?://(?:[a-z0-9-]+\.)*(?:imgur\.com|giphy\.com|gstatic\.com|googleusercontent\.com|unsplash\.com|pbs\.twimg\.com)/[^\s<>|]+`),
	regexp.MustCompile(`(?i)https?://[^\s<>|]+/[^\s<>|]*\.(?:png|jpe?g|gif|webp)[^\s<>|]*`),
}

// ExtractImageURLs returns the inline image URLs found in text, in order of
// first appearance, de-duplicated, with trailing punctuation stripped.
func ExtractImageURLs(text string) []string {
	if text == "" {
		return nil
	}
	seen := make(map[string]bool)
	var urls []string
	for _, re := range imageURLPatterns {
		for _, m := range re.FindAllString(text, -1) {
			u := strings.TrimRight(m, "),.;!?")
			if !seen[u] {
				seen[u] = true
				urls = append(urls, u)
			}
		}
	}
	return urls
}

// MediaProcessor downloads attachments with the bot credential, turns images
// into URLs the vision endpoint can load, and transcribes audio. Downloads
// and transcription calls run under the governor's llm pool.
type MediaProcessor struct {
	frontend    Frontend
	transcriber Transcriber
	governor    *Governor
	logger      *slog.Logger
}

// NewMediaProcessor creates a MediaProcessor. transcriber may be nil, in
// which case audio attachments produce failure markers instead of text.
func NewMediaProcessor(fe Frontend, tr Transcriber, g *Governor, logger *slog.Logger) *MediaProcessor {
	if logger == nil {
		logger = nopLogger
	}
	return &MediaProcessor{frontend: fe, transcriber: tr, governor: g, logger: logger}
}

// CollectImages produces the image URLs for a request: platform-private
// attachments are downloaded and inlined as data URLs (the vision endpoint
// cannot present the bot credential itself), then inline URLs from the text
// are appended. Download failures skip the file; the request proceeds.
func (m *MediaProcessor) CollectImages(ctx context.Context, req Request) []string {
	var urls []string
	for _, f := range req.Images {
		data, err := m.frontend.DownloadFile(ctx, f.URLPrivate)
		if err != nil {
			m.logger.Warn("image download failed",
				"request", req.ID,
				"file", f.Name,
				"error", err)
			continue
		}
		mime := f.MIMEType
		if mime == "" {
			mime = http.DetectContentType(data)
		}
		urls = append(urls, "data:"+mime+";base64,"+base64.StdEncoding.EncodeToString(data))
	}
	return append(urls, ExtractImageURLs(req.Text)...)
}

// TranscribeAudio downloads and transcribes each audio attachment, returning
// one prompt line per file. Oversized files and failures produce explicit
// markers so the model can still respond to what it got.
func (m *MediaProcessor) TranscribeAudio(ctx context.Context, req Request) []string {
	if len(req.Audio) == 0 {
		return nil
	}
	lines := make([]string, 0, len(req.Audio))
	for _, f := range req.Audio {
		text, err := m.transcribeOne(ctx, req.ID, f)
		if err != nil {
			m.logger.Warn("transcription failed",
				"request", req.ID,
				"file", f.Name,
				"error", err)
			lines = append(lines, fmt.Sprintf("🎵 Áudio '%s': [falha na transcrição]", f.Name))
			continue
		}
		lines = append(lines, fmt.Sprintf("🎵 Áudio '%s': %s", f.Name, text))
	}
	return lines
}

func (m *MediaProcessor) transcribeOne(ctx context.Context, reqID string, f FileRef) (string, error) {
	if f.Size > maxAudioBytes {
		return "", &ErrResource{Op: "audio " + f.Name, Err: fmt.Errorf("%d bytes exceeds the %d byte transcription limit", f.Size, maxAudioBytes)}
	}
	if m.transcriber == nil {
		return "", &ErrResource{Op: "audio " + f.Name, Err: fmt.Errorf("no transcriber configured")}
	}

	data, err := m.frontend.DownloadFile(ctx, f.URLPrivate)
	if err != nil {
		return "", err
	}
	if int64(len(data)) > maxAudioBytes {
		return "", &ErrResource{Op: "audio " + f.Name, Err: fmt.Errorf("downloaded %d bytes exceeds the transcription limit", len(data))}
	}

	return Govern(ctx, m.governor, PoolLLM, func(ctx context.Context) (string, error) {
		return m.transcriber.Transcribe(ctx, f.Name, data, transcribeLanguage)
	})
}
