// Package kb maintains the knowledge base collections: bulk import of the
// configured markdown paths, caller-driven document writes, and the
// time-gated auto-refresh the sync path piggybacks on.
package kb

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/openclaw/recall/internal/chunk"
	"github.com/openclaw/recall/internal/config"
	"github.com/openclaw/recall/internal/embed"
	"github.com/openclaw/recall/internal/logging"
	"github.com/openclaw/recall/internal/store"
)

// Store is the persistence surface the importer needs. *store.Store
// satisfies it.
type Store interface {
	// KBDocHash returns the stored content hash for a document.
	KBDocHash(ctx context.Context, docID string) (string, bool, error)

	// ReplaceKBDocument atomically swaps a document and its chunk set.
	ReplaceKBDocument(ctx context.Context, doc store.KBDocument, chunks []store.KBChunk) error

	// KBDocIDs lists document ids, optionally restricted by source type.
	KBDocIDs(ctx context.Context, types []store.KBSourceType) ([]string, error)

	// DeleteKBDocuments removes documents and their chunks.
	DeleteKBDocuments(ctx context.Context, docIDs []string) (int64, error)

	// MetaGet and MetaSet carry the last-refresh bookkeeping.
	MetaGet(ctx context.Context, key string) (string, bool, error)
	MetaSet(ctx context.Context, key, value string) error
}

// RefreshResult summarizes one import pass.
type RefreshResult struct {
	// Documents is the number of documents written (changed or forced).
	Documents int

	// Chunks is the number of chunks written for those documents.
	Chunks int

	// Skipped is the number of unchanged documents left alone.
	Skipped int

	// Failed is the number of files that errored or exceeded the size cap.
	Failed int

	// DeletedDocs and DeletedChunks count stale file-sourced documents
	// removed because their file left the import set.
	DeletedDocs   int
	DeletedChunks int64

	Duration time.Duration
}

// AddRequest is a caller-provided document for AddDocument.
type AddRequest struct {
	// Title names the document (required).
	Title string

	// Content is the document body (required).
	Content string

	// SourceType is manual, url, or api; empty means manual. File-sourced
	// documents belong to the importer and are rejected here.
	SourceType store.KBSourceType

	// URL records the origin of url-sourced documents and, when set,
	// becomes the identity the document id derives from.
	URL string

	// Tags drive the metadata pre-filter on KB searches.
	Tags []string
}

// Dependencies wire an Importer.
type Dependencies struct {
	// Store is the persistence layer (required).
	Store Store

	// Chunker splits documents into token windows (required). Callers
	// construct it with the KB window (600/100).
	Chunker *chunk.Chunker

	// Provider computes embeddings in managed mode. Nil leaves chunks
	// pending.
	Provider embed.Provider

	// Retry overrides embedding retry behavior; zero uses the default
	// three-attempt backoff.
	Retry embed.RetryConfig

	// Config supplies the KB settings and embedding mode (required).
	Config *config.MongoConfig

	Logger *slog.Logger
}

// Importer runs knowledge base imports against one store.
type Importer struct {
	store    Store
	chunker  *chunk.Chunker
	provider embed.Provider
	mode     config.EmbeddingMode
	retry    embed.RetryConfig

	enabled     bool
	importPaths []string
	maxDocSize  int64
	refreshGap  time.Duration

	logger *slog.Logger
}

// NewImporter validates dependencies and builds an Importer.
func NewImporter(deps Dependencies) (*Importer, error) {
	if deps.Store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if deps.Chunker == nil {
		return nil, fmt.Errorf("chunker is required")
	}
	if deps.Config == nil {
		return nil, fmt.Errorf("config is required")
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	retry := deps.Retry
	if retry.MaxAttempts <= 0 {
		retry = embed.DefaultRetryConfig()
	}
	kb := deps.Config.KB
	return &Importer{
		store:       deps.Store,
		chunker:     deps.Chunker,
		provider:    deps.Provider,
		mode:        deps.Config.EmbeddingMode,
		retry:       retry,
		enabled:     kb.Enabled,
		importPaths: kb.AutoImportPaths,
		maxDocSize:  kb.MaxDocumentSize,
		refreshGap:  time.Duration(kb.AutoRefreshHours) * time.Hour,
		logger:      logging.ForSubsystem(logger, "kb"),
	}, nil
}

func (im *Importer) canEmbed() bool {
	return im.mode == config.EmbeddingManaged && im.provider != nil
}

// Refresh imports every configured path and removes file-sourced documents
// whose file left the import set. Per-file errors are logged and counted,
// not returned; only the stale cleanup can fail the pass.
func (im *Importer) Refresh(ctx context.Context, force bool) (*RefreshResult, error) {
	start := time.Now()
	result := &RefreshResult{}
	if !im.enabled {
		return result, nil
	}

	files := im.enumerate()
	im.logger.Info("knowledge base refresh started",
		slog.Int("files", len(files)),
		slog.Bool("force", force))

	valid := make(map[string]bool, len(files))
	for _, path := range files {
		docID := store.KBDocID(path)
		valid[docID] = true
		if err := im.importFile(ctx, path, docID, force, result); err != nil {
			result.Failed++
			im.logger.Warn("kb import failed, keeping stored document",
				slog.String("path", path),
				slog.Any("error", err))
		}
	}

	if err := im.cleanupStale(ctx, valid, result); err != nil {
		return result, err
	}

	if err := im.store.MetaSet(ctx, store.MetaKBLastRefresh, time.Now().UTC().Format(time.RFC3339)); err != nil {
		im.logger.Warn("recording kb refresh time failed", slog.Any("error", err))
	}

	result.Duration = time.Since(start)
	im.logger.Info("knowledge base refresh finished",
		slog.Int("documents", result.Documents),
		slog.Int("chunks", result.Chunks),
		slog.Int("skipped", result.Skipped),
		slog.Int("failed", result.Failed),
		slog.Int("deletedDocs", result.DeletedDocs),
		slog.Duration("duration", result.Duration))
	return result, nil
}

// MaybeRefresh runs Refresh when the configured interval has elapsed since
// the recorded last refresh. A zero interval disables auto-refresh.
func (im *Importer) MaybeRefresh(ctx context.Context) (*RefreshResult, error) {
	if !im.enabled || im.refreshGap <= 0 {
		return nil, nil
	}

	raw, found, err := im.store.MetaGet(ctx, store.MetaKBLastRefresh)
	if err != nil {
		return nil, fmt.Errorf("read kb refresh time: %w", err)
	}
	if found {
		last, err := time.Parse(time.RFC3339, raw)
		if err == nil && time.Since(last) < im.refreshGap {
			return nil, nil
		}
		if err != nil {
			im.logger.Warn("unparseable kb refresh time, refreshing",
				slog.String("value", raw))
		}
	}
	return im.Refresh(ctx, false)
}

// AddDocument writes a caller-provided document. It returns the document
// id and the number of chunks stored.
func (im *Importer) AddDocument(ctx context.Context, req AddRequest) (string, int, error) {
	if strings.TrimSpace(req.Title) == "" {
		return "", 0, fmt.Errorf("title is required")
	}
	if strings.TrimSpace(req.Content) == "" {
		return "", 0, fmt.Errorf("content is required")
	}
	srcType := req.SourceType
	if srcType == "" {
		srcType = store.KBSourceManual
	}
	switch srcType {
	case store.KBSourceManual, store.KBSourceURL, store.KBSourceAPI:
	default:
		return "", 0, fmt.Errorf("source type %q is not caller-writable", srcType)
	}
	if im.maxDocSize > 0 && int64(len(req.Content)) > im.maxDocSize {
		return "", 0, fmt.Errorf("document exceeds size limit (%d > %d bytes)",
			len(req.Content), im.maxDocSize)
	}

	identity := req.Title
	if req.URL != "" {
		identity = req.URL
	}
	docID := store.KBDocID(identity)

	doc := store.KBDocument{
		DocID:     docID,
		Title:     strings.TrimSpace(req.Title),
		Source:    store.KBSource{Type: srcType, URL: req.URL},
		Hash:      store.ContentHash([]byte(req.Content)),
		Tags:      req.Tags,
		UpdatedAt: time.Now().UTC(),
	}
	chunks := im.buildChunks(ctx, docID, doc.Title, req.Content)
	if err := im.store.ReplaceKBDocument(ctx, doc, chunks); err != nil {
		return "", 0, fmt.Errorf("replace document: %w", err)
	}

	im.logger.Info("knowledge base document stored",
		slog.String("docId", docID),
		slog.String("title", doc.Title),
		slog.String("sourceType", string(srcType)),
		slog.Int("chunks", len(chunks)))
	return docID, len(chunks), nil
}

// importFile ingests one markdown file from the import set.
func (im *Importer) importFile(ctx context.Context, path, docID string, force bool, result *RefreshResult) error {
	fi, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat: %w", err)
	}
	if im.maxDocSize > 0 && fi.Size() > im.maxDocSize {
		im.logger.Warn("kb document exceeds size limit, skipping",
			slog.String("path", path),
			slog.Int64("size", fi.Size()),
			slog.Int64("limit", im.maxDocSize))
		result.Failed++
		return nil
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read: %w", err)
	}

	hash := store.ContentHash(content)
	stored, found, err := im.store.KBDocHash(ctx, docID)
	if err != nil {
		return fmt.Errorf("hash lookup: %w", err)
	}
	if found && stored == hash && !force {
		result.Skipped++
		return nil
	}

	doc := store.KBDocument{
		DocID:     docID,
		Title:     titleFor(path, string(content)),
		Source:    store.KBSource{Type: store.KBSourceFile, Path: path},
		Hash:      hash,
		UpdatedAt: time.Now().UTC(),
	}
	chunks := im.buildChunks(ctx, docID, path, string(content))
	if err := im.store.ReplaceKBDocument(ctx, doc, chunks); err != nil {
		return fmt.Errorf("replace document: %w", err)
	}

	result.Documents++
	result.Chunks += len(chunks)
	return nil
}

// buildChunks splits and, in managed mode, embeds a document body. An
// embedding failure downgrades the chunks to failed status; the document
// still lands and the next sync's re-attempt pass picks the chunks up.
func (im *Importer) buildChunks(ctx context.Context, docID, path, content string) []store.KBChunk {
	now := time.Now().UTC()
	pieces := im.chunker.Split(path, content)

	chunks := make([]store.KBChunk, len(pieces))
	texts := make([]string, len(pieces))
	for i, p := range pieces {
		chunks[i] = store.KBChunk{
			ID:              store.KBChunkID(docID, p.StartLine, p.EndLine),
			DocID:           docID,
			Path:            path,
			Text:            p.Text,
			StartLine:       p.StartLine,
			EndLine:         p.EndLine,
			EmbeddingStatus: embed.StatusPending,
			UpdatedAt:       now,
		}
		texts[i] = p.Text
	}

	if len(chunks) == 0 || !im.canEmbed() {
		return chunks
	}

	vectors, err := embed.RetryEmbedding(ctx, im.retry, im.provider.EmbedBatch, texts)
	if err != nil {
		im.logger.Warn("embedding failed, storing kb chunks without vectors",
			slog.String("docId", docID),
			slog.Any("error", err))
		for i := range chunks {
			chunks[i].EmbeddingStatus = embed.StatusFailed
		}
		return chunks
	}
	for i := range chunks {
		chunks[i].Embedding = vectors[i]
		chunks[i].EmbeddingStatus = embed.StatusSuccess
	}
	return chunks
}

// cleanupStale removes file-sourced documents whose file is gone from the
// import set. Manual, url, and api documents are never touched.
func (im *Importer) cleanupStale(ctx context.Context, valid map[string]bool, result *RefreshResult) error {
	stored, err := im.store.KBDocIDs(ctx, []store.KBSourceType{store.KBSourceFile})
	if err != nil {
		return fmt.Errorf("stale kb cleanup: %w", err)
	}

	var stale []string
	for _, id := range stored {
		if !valid[id] {
			stale = append(stale, id)
		}
	}
	if len(stale) == 0 {
		return nil
	}

	deleted, err := im.store.DeleteKBDocuments(ctx, stale)
	if err != nil {
		return fmt.Errorf("stale kb cleanup: %w", err)
	}
	result.DeletedDocs = len(stale)
	result.DeletedChunks = deleted
	im.logger.Info("stale kb documents cleaned up",
		slog.Int("documents", len(stale)),
		slog.Int64("chunks", deleted))
	return nil
}

// enumerate resolves the configured import paths to markdown files, in a
// stable order with duplicates dropped.
func (im *Importer) enumerate() []string {
	var files []string
	seen := make(map[string]bool)
	add := func(p string) {
		p = filepath.ToSlash(p)
		if !seen[p] {
			seen[p] = true
			files = append(files, p)
		}
	}

	for _, root := range im.importPaths {
		fi, err := os.Stat(root)
		if err != nil {
			im.logger.Warn("kb import path unavailable",
				slog.String("path", root),
				slog.Any("error", err))
			continue
		}
		if !fi.IsDir() {
			if isMarkdown(root) {
				add(root)
			} else {
				im.logger.Warn("kb import path is not markdown, skipping",
					slog.String("path", root))
			}
			continue
		}
		for _, p := range walkMarkdown(root, im.logger) {
			add(p)
		}
	}
	return files
}
