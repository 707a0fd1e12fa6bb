// Package memory assembles the store, embedding, ingest, watch, and search
// layers into the agent-facing backend. A Manager owns one MongoDB client
// and serves concurrent searches while keeping the chunk store in step
// with the workspace.
package memory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/openclaw/recall/internal/config"
	"github.com/openclaw/recall/internal/embed"
	"github.com/openclaw/recall/internal/ingest"
	"github.com/openclaw/recall/internal/kb"
	"github.com/openclaw/recall/internal/search"
	"github.com/openclaw/recall/internal/store"
	"github.com/openclaw/recall/internal/watcher"
)

// ErrClosed is returned by operations invoked after Close.
var ErrClosed = errors.New("memory backend is closed")

// Backend is the capability set agents program against. Manager is the
// MongoDB implementation. Optional write support is discovered by
// asserting for StructuredWriter.
type Backend interface {
	// Search fans a query out over memory chunks, knowledge-base chunks,
	// and structured entries, returning one merged ranked list.
	Search(ctx context.Context, query string, opts SearchOptions) ([]search.Result, error)

	// ReadFile returns memory file content with optional line windowing.
	ReadFile(ctx context.Context, req ReadFileRequest) (*FileContent, error)

	// Status reports backend state without touching the database.
	Status() Status

	// Sync runs one ingest pass; concurrent callers share a single run.
	Sync(ctx context.Context, opts SyncOptions) (*SyncResult, error)

	// ProbeEmbeddingAvailability checks whether semantic search can serve
	// queries right now.
	ProbeEmbeddingAvailability(ctx context.Context) (bool, error)

	// ProbeVectorAvailability reports whether vector indexes answered the
	// capability probe at open time.
	ProbeVectorAvailability() bool

	// Close stops watchers, waits for in-flight syncs, and releases the
	// client. Idempotent.
	Close(ctx context.Context) error
}

// StructuredWriter is the optional write surface for typed entries.
type StructuredWriter interface {
	WriteStructuredMemory(ctx context.Context, entry store.StructuredEntry) error
}

// SearchOptions tune one search call.
type SearchOptions struct {
	// MaxResults caps the merged list (default 10).
	MaxResults int

	// MinScore drops merged hits below the floor. Zero applies the 0.1
	// default; negative disables the floor entirely.
	MinScore float64

	// SessionKey narrows chunk hits to one session transcript.
	SessionKey string
}

// SyncOptions control one sync run.
type SyncOptions struct {
	// Force re-ingests files even when their hashes are unchanged.
	Force bool

	// Reason tags the run in logs ("watcher", "startup", "cli", ...).
	Reason string

	// Progress, when set, receives one record per processed file.
	Progress ingest.ProgressFunc
}

// SyncResult bundles the ingest pass with the knowledge-base refresh that
// may have piggybacked on it.
type SyncResult struct {
	Ingest *ingest.Result

	// KB is nil when no refresh ran this pass.
	KB *kb.RefreshResult
}

// ReadFileRequest selects a file and an optional line window.
type ReadFileRequest struct {
	Path string

	// From is the 1-based first line; zero means the top of the file.
	From int

	// Lines bounds the window; zero means through the end of the file.
	Lines int
}

// FileContent is a windowed file read.
type FileContent struct {
	// Path is the resolved absolute path that was read.
	Path    string
	Content string

	// From is the 1-based first line of the window.
	From int

	// Lines is the number of lines returned; Total counts the whole file.
	Lines int
	Total int
}

// Status is a non-blocking snapshot of backend state.
type Status struct {
	Backend   string
	Provider  string
	Model     string
	Files     int64
	Chunks    int64
	Dirty     bool
	Closed    bool
	Workspace string
	Sources   []string

	// Custom carries backend-specific detail: deployment profile,
	// embedding mode, fusion method, and detected capabilities.
	Custom map[string]any
}

// searcher runs one target search. *search.Dispatcher satisfies it.
type searcher interface {
	Search(ctx context.Context, target search.Target, q search.Query) ([]search.Result, error)
}

// syncRunner runs one ingest pass. *ingest.Syncer satisfies it.
type syncRunner interface {
	Sync(ctx context.Context, opts ingest.Options) (*ingest.Result, error)
	Paths() []string
}

// kbImporter is the knowledge-base surface. *kb.Importer satisfies it.
type kbImporter interface {
	Refresh(ctx context.Context, force bool) (*kb.RefreshResult, error)
	MaybeRefresh(ctx context.Context) (*kb.RefreshResult, error)
	AddDocument(ctx context.Context, req kb.AddRequest) (string, int, error)
}

// managerStore is the store surface the manager calls directly.
// *store.Store satisfies it.
type managerStore interface {
	Count(ctx context.Context, base string) (int64, error)
	ChunkCounts(ctx context.Context) (map[store.Source]int64, error)
	EmbeddingStatusCounts(ctx context.Context, base string) (map[embed.Status]int64, error)
	CollectionCounts(ctx context.Context) (map[string]int64, error)
	IndexAccesses(ctx context.Context, base string) (int64, error)
	StoredPaths(ctx context.Context, sources []store.Source) ([]string, error)
	UpsertStructured(ctx context.Context, entry store.StructuredEntry) error
	Close(ctx context.Context) error
}

// Manager is the MongoDB memory backend.
type Manager struct {
	cfg       *config.Config
	agentID   string
	workspace string

	st         managerStore
	dispatcher searcher
	syncer     syncRunner
	kb         kbImporter
	provider   embed.Provider
	retry      embed.RetryConfig
	caps       store.Capabilities
	embedMode  config.EmbeddingMode

	memoryTarget     search.Target
	kbTarget         search.Target
	structuredTarget search.Target
	kbEnabled        bool
	sessionsDir      string
	extraPaths       []string

	fsWatcher *watcher.FSWatcher
	csWatcher *watcher.ChangeStreamWatcher

	syncGroup singleflight.Group
	opWG      sync.WaitGroup

	mu         sync.Mutex
	dirty      bool
	closed     bool
	fileCount  int64
	chunkCount int64

	logger *slog.Logger
}

var (
	_ Backend          = (*Manager)(nil)
	_ StructuredWriter = (*Manager)(nil)
)

// markDirty records that the store may lag the filesystem.
func (m *Manager) markDirty() {
	m.mu.Lock()
	m.dirty = true
	m.mu.Unlock()
}

func (m *Manager) clearDirty() {
	m.mu.Lock()
	m.dirty = false
	m.mu.Unlock()
}

// snapshotDirty reports whether a sync is due. Closed backends are never
// dirty; nothing will run the sync.
func (m *Manager) snapshotDirty() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.dirty && !m.closed
}

func (m *Manager) isClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// beginOp registers a store-mutating operation so Close can await it. The
// caller must release the waitgroup entry. A false return means the
// backend is closed and the operation must not run.
func (m *Manager) beginOp() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return false
	}
	m.opWG.Add(1)
	return true
}

// Close stops the watchers, waits for in-flight operations, and releases
// the MongoDB client. Idempotent.
func (m *Manager) Close(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	if m.fsWatcher != nil {
		if err := m.fsWatcher.Close(); err != nil {
			m.logger.Warn("filesystem watcher close failed", slog.Any("error", err))
		}
	}
	if m.csWatcher != nil {
		if err := m.csWatcher.Close(); err != nil {
			m.logger.Warn("change stream close failed", slog.Any("error", err))
		}
	}
	m.opWG.Wait()

	if m.provider != nil {
		if err := m.provider.Close(); err != nil {
			m.logger.Warn("embedding provider close failed", slog.Any("error", err))
		}
	}
	if err := m.st.Close(ctx); err != nil {
		return fmt.Errorf("close store: %w", err)
	}
	m.logger.Info("memory backend closed")
	return nil
}
