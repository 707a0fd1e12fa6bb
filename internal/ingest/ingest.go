// Package ingest keeps the chunk store in step with the filesystem. A sync
// enumerates memory files and session transcripts, skips unchanged files by
// whole-file hash, chunks and embeds the rest, replaces each file's chunk
// set atomically, and finishes with a stale-path cleanup.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/openclaw/recall/internal/chunk"
	"github.com/openclaw/recall/internal/config"
	"github.com/openclaw/recall/internal/embed"
	"github.com/openclaw/recall/internal/logging"
	"github.com/openclaw/recall/internal/store"
)

// Store is the persistence surface a sync needs. *store.Store satisfies it.
type Store interface {
	// FileHash returns the stored whole-file hash for a path.
	FileHash(ctx context.Context, path string) (string, bool, error)

	// ReplaceFileChunks atomically swaps a file's chunk set and metadata.
	ReplaceFileChunks(ctx context.Context, meta store.FileMeta, chunks []store.Chunk) error

	// StoredPaths lists every tracked path for the given sources.
	StoredPaths(ctx context.Context, sources []store.Source) ([]string, error)

	// ExpiredPaths lists tracked paths of one source last written before
	// cutoff.
	ExpiredPaths(ctx context.Context, source store.Source, cutoff time.Time) ([]string, error)

	// DeletePaths removes chunks and metadata for paths, returning the
	// chunk count removed.
	DeletePaths(ctx context.Context, paths []string) (int64, error)

	// FailedChunks pages chunks awaiting an embedding re-attempt.
	FailedChunks(ctx context.Context, limit int) ([]store.Chunk, error)

	// MarkEmbedded stores vectors for repaired chunks.
	MarkEmbedded(ctx context.Context, ids []string, vectors [][]float32, model string) error
}

// Progress is one per-file progress record. The terminal record has
// Completed == Total.
type Progress struct {
	Completed int
	Total     int
	Label     string
}

// ProgressFunc receives progress records on the sync path; keep it fast.
type ProgressFunc func(Progress)

// Options control one sync run.
type Options struct {
	// Force re-ingests files even when their hash is unchanged.
	Force bool

	// Reason tags the run in logs ("watcher", "startup", "cli", ...).
	Reason string

	// Progress, when set, receives one record per processed file.
	Progress ProgressFunc
}

// Result summarizes a sync run.
type Result struct {
	// Files is the number of files written (changed or forced).
	Files int

	// Chunks is the number of chunks written for those files.
	Chunks int

	// Skipped is the number of unchanged files left alone.
	Skipped int

	// Failed is the number of files that errored and were left as-is.
	Failed int

	// Repaired is the number of chunks fixed by the embedding re-attempt
	// pass.
	Repaired int

	// DeletedFiles and DeletedChunks count the stale-cleanup removals.
	DeletedFiles  int
	DeletedChunks int64

	Duration time.Duration
}

// Dependencies wire a Syncer.
type Dependencies struct {
	// Store is the persistence layer (required).
	Store Store

	// Chunker splits files into token windows (required).
	Chunker *chunk.Chunker

	// Provider computes embeddings in managed mode. Nil leaves chunks
	// pending and search falls back to text tiers.
	Provider embed.Provider

	// Retry overrides embedding retry behavior; zero uses the default
	// three-attempt backoff.
	Retry embed.RetryConfig

	// Config supplies embedding mode, extra paths, session settings, and
	// the memory TTL (required).
	Config *config.Config

	// Workspace is the agent workspace directory (required).
	Workspace string

	// AgentID enables session transcript sync when non-empty.
	AgentID string

	Logger *slog.Logger
}

// Syncer runs the ingest phases against one workspace.
type Syncer struct {
	store     Store
	chunker   *chunk.Chunker
	provider  embed.Provider
	mode      config.EmbeddingMode
	retry     embed.RetryConfig
	workspace string
	agentID   string

	extraPaths       []string
	sessionsDir      string
	maxSessionChunks int
	memoryTTL        time.Duration

	logger *slog.Logger
}

// NewSyncer validates dependencies and builds a Syncer.
func NewSyncer(deps Dependencies) (*Syncer, error) {
	if deps.Store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if deps.Chunker == nil {
		return nil, fmt.Errorf("chunker is required")
	}
	if deps.Config == nil {
		return nil, fmt.Errorf("config is required")
	}
	if deps.Workspace == "" {
		return nil, fmt.Errorf("workspace is required")
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	retry := deps.Retry
	if retry.MaxAttempts <= 0 {
		retry = embed.DefaultRetryConfig()
	}
	mongo := deps.Config.MongoDB
	return &Syncer{
		store:            deps.Store,
		chunker:          deps.Chunker,
		provider:         deps.Provider,
		mode:             mongo.EmbeddingMode,
		retry:            retry,
		workspace:        deps.Workspace,
		agentID:          deps.AgentID,
		extraPaths:       mongo.ExtraPaths,
		sessionsDir:      mongo.EffectiveSessionsDir(deps.AgentID),
		maxSessionChunks: mongo.MaxSessionChunks,
		memoryTTL:        time.Duration(mongo.MemoryTTLDays) * 24 * time.Hour,
		logger:           logging.ForSubsystem(logger, "ingest"),
	}, nil
}

// canEmbed reports whether chunks get client-side vectors.
func (s *Syncer) canEmbed() bool {
	return s.mode == config.EmbeddingManaged && s.provider != nil
}

// sessionsEnabled reports whether session transcripts are in scope.
func (s *Syncer) sessionsEnabled() bool {
	return s.agentID != ""
}

// Sync runs the full pipeline: embedding re-attempt, file enumeration,
// per-file replace, stale cleanup. Per-file errors are logged and counted,
// not returned; only the final cleanup phase can fail the run.
func (s *Syncer) Sync(ctx context.Context, opts Options) (*Result, error) {
	start := time.Now()
	result := &Result{}

	s.logger.Info("memory sync started",
		slog.String("reason", opts.Reason),
		slog.Bool("force", opts.Force))

	if s.canEmbed() {
		repaired, err := s.retryFailedEmbeddings(ctx)
		if err != nil {
			s.logger.Warn("embedding re-attempt pass failed", slog.Any("error", err))
		}
		result.Repaired = repaired
	}

	entries := s.enumerate()
	report := opts.Progress
	if report == nil {
		report = func(Progress) {}
	}

	valid := make(map[string]bool, len(entries))
	for i, e := range entries {
		valid[e.path] = true
		if err := s.syncFile(ctx, e, opts.Force, result); err != nil {
			result.Failed++
			s.logger.Warn("file sync failed, keeping stored chunks",
				slog.String("path", e.path),
				slog.Any("error", err))
		}
		report(Progress{Completed: i + 1, Total: len(entries), Label: e.path})
	}

	if err := s.cleanupStale(ctx, valid, result); err != nil {
		return result, err
	}

	result.Duration = time.Since(start)
	s.logger.Info("memory sync finished",
		slog.Int("files", result.Files),
		slog.Int("chunks", result.Chunks),
		slog.Int("skipped", result.Skipped),
		slog.Int("failed", result.Failed),
		slog.Int64("deletedChunks", result.DeletedChunks),
		slog.Duration("duration", result.Duration))
	return result, nil
}

// syncFile runs phases B through E for one file.
func (s *Syncer) syncFile(ctx context.Context, e entry, force bool, result *Result) error {
	content, err := os.ReadFile(e.abs)
	if err != nil {
		return fmt.Errorf("read: %w", err)
	}

	hash := store.ContentHash(content)
	stored, found, err := s.store.FileHash(ctx, e.path)
	if err != nil {
		return fmt.Errorf("hash lookup: %w", err)
	}
	if found && stored == hash && !force {
		result.Skipped++
		return nil
	}

	text := string(content)
	if e.source == store.SourceSessions {
		text = transcriptText(content)
	}

	pieces := s.chunker.Split(e.path, text)
	if e.source == store.SourceSessions && len(pieces) > s.maxSessionChunks {
		// Sessions keep only the most recent window of the transcript.
		pieces = pieces[len(pieces)-s.maxSessionChunks:]
	}

	chunks := s.buildChunks(ctx, e, pieces)
	meta := store.FileMeta{
		Path:      e.path,
		Source:    e.source,
		Hash:      hash,
		ModTime:   e.mtime,
		Size:      e.size,
		UpdatedAt: time.Now().UTC(),
	}
	if err := s.store.ReplaceFileChunks(ctx, meta, chunks); err != nil {
		return fmt.Errorf("replace chunks: %w", err)
	}

	result.Files++
	result.Chunks += len(chunks)
	return nil
}

// buildChunks turns split pieces into store documents, embedding them in
// managed mode. Embedding failure downgrades the whole file to failed
// status; the chunks are stored anyway so text search keeps working.
func (s *Syncer) buildChunks(ctx context.Context, e entry, pieces []chunk.Chunk) []store.Chunk {
	now := time.Now().UTC()
	chunks := make([]store.Chunk, len(pieces))
	for i, p := range pieces {
		chunks[i] = store.Chunk{
			ID:              p.ID(),
			Path:            e.path,
			Source:          e.source,
			StartLine:       p.StartLine,
			EndLine:         p.EndLine,
			Hash:            store.ContentHash([]byte(p.Text)),
			Text:            p.Text,
			EmbeddingStatus: embed.StatusPending,
			UpdatedAt:       now,
		}
	}
	if !s.canEmbed() || len(chunks) == 0 {
		return chunks
	}

	texts := make([]string, len(pieces))
	for i, p := range pieces {
		texts[i] = p.Text
	}
	vecs, err := embed.RetryEmbedding(ctx, s.retry, s.provider.EmbedBatch, texts)
	if err != nil {
		s.logger.Warn("embedding failed, storing chunks without vectors",
			slog.String("path", e.path),
			slog.Int("chunks", len(chunks)),
			slog.Any("error", err))
		for i := range chunks {
			chunks[i].EmbeddingStatus = embed.StatusFailed
		}
		return chunks
	}

	model := s.provider.Model()
	for i := range chunks {
		chunks[i].Embedding = vecs[i]
		chunks[i].EmbeddingStatus = embed.StatusSuccess
		chunks[i].Model = model
	}
	return chunks
}

// cleanupStale removes tracked paths that no longer exist on disk, plus
// memory entries older than the configured TTL. Only sources enumerated
// this run are candidates, so a memory-only run never deletes sessions.
func (s *Syncer) cleanupStale(ctx context.Context, valid map[string]bool, result *Result) error {
	sources := []store.Source{store.SourceMemory}
	if s.sessionsEnabled() {
		sources = append(sources, store.SourceSessions)
	}

	stored, err := s.store.StoredPaths(ctx, sources)
	if err != nil {
		return fmt.Errorf("stale cleanup: %w", err)
	}

	staleSet := make(map[string]bool)
	var stale []string
	for _, p := range stored {
		if !valid[p] && !staleSet[p] {
			staleSet[p] = true
			stale = append(stale, p)
		}
	}

	if s.memoryTTL > 0 {
		cutoff := time.Now().UTC().Add(-s.memoryTTL)
		expired, err := s.store.ExpiredPaths(ctx, store.SourceMemory, cutoff)
		if err != nil {
			return fmt.Errorf("stale cleanup: %w", err)
		}
		for _, p := range expired {
			if !staleSet[p] {
				staleSet[p] = true
				stale = append(stale, p)
			}
		}
	}

	if len(stale) == 0 {
		return nil
	}

	deleted, err := s.store.DeletePaths(ctx, stale)
	if err != nil {
		return fmt.Errorf("stale cleanup: %w", err)
	}
	result.DeletedFiles = len(stale)
	result.DeletedChunks = deleted
	s.logger.Info("stale paths cleaned up",
		slog.Int("files", len(stale)),
		slog.Int64("chunks", deleted))
	return nil
}
