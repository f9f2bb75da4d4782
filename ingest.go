package livia

import (
	"context"
	"fmt"
	"log/slog"
)

// filePurpose is the provider file-store purpose under which documents are
// uploaded so the file-search tool can index them.
const filePurpose = "assistants"

// vectorStoreTTLDays is the last-active expiry of a thread's vector index.
// The provider evicts the index this many days after its last use; the
// engine never assumes it survives a restart.
const vectorStoreTTLDays = 1

// ingestProgressMsg is shown in the placeholder while documents upload.
const ingestProgressMsg = "📄 processando documentos..."

// ingestFailureNote is appended to the prompt when ingestion fails so the
// model can acknowledge the documents it cannot read.
const ingestFailureNote = "(não foi possível processar os documentos anexados; responda sem eles)"

// DocIngestor uploads attached documents to the provider file store and
// binds them to the request thread's ephemeral vector index. Ingestion
// completes before the agent run so the file-search tool sees the new files.
type DocIngestor struct {
	frontend Frontend
	store    FileStore
	registry *ThreadRegistry
	governor *Governor
	logger   *slog.Logger
}

// NewDocIngestor creates a DocIngestor. store may be nil, which disables
// ingestion (every request degrades gracefully).
func NewDocIngestor(fe Frontend, store FileStore, reg *ThreadRegistry, g *Governor, logger *slog.Logger) *DocIngestor {
	if logger == nil {
		logger = nopLogger
	}
	return &DocIngestor{frontend: fe, store: store, registry: reg, governor: g, logger: logger}
}

// Ingest uploads req's documents and attaches them to the thread's vector
// index, creating the index on first use. It returns the vector store id and
// a note for the prompt: empty on success, a degradation note when ingestion
// failed (the agent proceeds without file context). progress, when non-nil,
// is called once before the uploads start so the user sees activity.
func (d *DocIngestor) Ingest(ctx context.Context, req Request, progress func(string)) (storeID, note string) {
	if len(req.Documents) == 0 {
		return d.registry.Get(req.ThreadKey()).VectorStore(), ""
	}
	if d.store == nil {
		return "", ingestFailureNote
	}
	if progress != nil {
		progress(ingestProgressMsg)
	}

	fileIDs := make([]string, 0, len(req.Documents))
	for _, f := range req.Documents {
		id, err := d.uploadOne(ctx, f)
		if err != nil {
			d.logger.Warn("document upload failed",
				"request", req.ID,
				"file", f.Name,
				"error", err)
			continue
		}
		fileIDs = append(fileIDs, id)
	}
	if len(fileIDs) == 0 {
		return "", ingestFailureNote
	}

	state := d.registry.Get(req.ThreadKey())
	storeID = state.VectorStore()
	if storeID == "" {
		name := fmt.Sprintf("livia-%s-%s", req.Channel, req.ThreadTS)
		id, err := Govern(ctx, d.governor, PoolLLM, func(ctx context.Context) (string, error) {
			return d.store.CreateVectorStore(ctx, name, vectorStoreTTLDays)
		})
		if err != nil {
			d.logger.Error("vector store create failed",
				"request", req.ID,
				"thread", req.ThreadKey(),
				"error", err)
			return "", ingestFailureNote
		}
		storeID = id
		state.SetVectorStore(id)
	}

	if err := d.governor.Execute(ctx, PoolLLM, func(ctx context.Context) error {
		return d.store.AddVectorStoreFiles(ctx, storeID, fileIDs)
	}); err != nil {
		d.logger.Error("vector store attach failed",
			"request", req.ID,
			"store", storeID,
			"error", err)
		return "", ingestFailureNote
	}

	d.logger.Info("documents ingested",
		"request", req.ID,
		"thread", req.ThreadKey(),
		"store", storeID,
		"files", len(fileIDs))
	return storeID, ""
}

func (d *DocIngestor) uploadOne(ctx context.Context, f FileRef) (string, error) {
	data, err := d.frontend.DownloadFile(ctx, f.URLPrivate)
	if err != nil {
		return "", err
	}
	return Govern(ctx, d.governor, PoolLLM, func(ctx context.Context) (string, error) {
		return d.store.UploadFile(ctx, f.Name, data, filePurpose)
	})
}
