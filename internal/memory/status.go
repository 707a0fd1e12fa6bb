package memory

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/openclaw/recall/internal/config"
	"github.com/openclaw/recall/internal/embed"
	"github.com/openclaw/recall/internal/store"
)

// Status reports backend state without touching the database.
func (m *Manager) Status() Status {
	m.mu.Lock()
	dirty, closed := m.dirty, m.closed
	files, chunks := m.fileCount, m.chunkCount
	m.mu.Unlock()

	mongoCfg := &m.cfg.MongoDB
	s := Status{
		Backend:   string(config.BackendMongoDB),
		Files:     files,
		Chunks:    chunks,
		Dirty:     dirty,
		Closed:    closed,
		Workspace: m.workspace,
		Sources:   []string{string(store.SourceMemory)},
		Custom: map[string]any{
			"deploymentProfile": string(mongoCfg.DeploymentProfile),
			"embeddingMode":     string(mongoCfg.EmbeddingMode),
			"fusionMethod":      string(mongoCfg.FusionMethod),
			"quantization":      string(mongoCfg.Quantization),
			"vectorSearch":      m.caps.VectorSearch,
			"textSearch":        m.caps.TextSearch,
			"serverFusion":      m.caps.ServerFusion(),
			"watcher":           m.fsWatcher != nil,
		},
	}
	if m.sessionsDir != "" {
		s.Sources = append(s.Sources, string(store.SourceSessions))
	}
	if m.kbEnabled {
		s.Sources = append(s.Sources, string(store.SourceKB))
	}
	switch {
	case m.provider != nil:
		s.Provider = m.provider.ID()
		s.Model = m.provider.Model()
	case m.embedMode == config.EmbeddingAutomated:
		s.Provider = "atlas"
		s.Model = mongoCfg.AutoEmbeddingModel
	}
	return s
}

// StatsOptions tune a Stats call.
type StatsOptions struct {
	// ValidPaths, when set, enables stale-path detection against the
	// caller's enumeration of the filesystem.
	ValidPaths []string
}

// Stats is a deep store inspection. Individual metrics degrade to zero
// values when their queries fail; only an unreachable store fails the
// call.
type Stats struct {
	SourceCounts    map[store.Source]int64
	EmbeddingStatus map[embed.Status]int64
	EmbeddedRatio   float64
	CacheEntries    int64
	Collections     map[string]int64
	IndexAccesses   map[string]int64
	StalePaths      []string
}

// Stats aggregates store-side metrics: per-source chunk counts, the
// embedding status rollup across chunk collections, cache size, document
// counts, and index access totals.
func (m *Manager) Stats(ctx context.Context, opts StatsOptions) (*Stats, error) {
	if m.isClosed() {
		return nil, ErrClosed
	}
	sourceCounts, err := m.st.ChunkCounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("chunk counts: %w", err)
	}
	out := &Stats{
		SourceCounts:    sourceCounts,
		EmbeddingStatus: make(map[embed.Status]int64),
		IndexAccesses:   make(map[string]int64),
	}

	for _, base := range []string{store.CollChunks, store.CollKBChunks} {
		counts, err := m.st.EmbeddingStatusCounts(ctx, base)
		if err != nil {
			m.logger.Warn("embedding status unavailable",
				slog.String("collection", base), slog.Any("error", err))
			continue
		}
		for status, n := range counts {
			out.EmbeddingStatus[status] += n
		}
	}
	var embedded, total int64
	for status, n := range out.EmbeddingStatus {
		total += n
		if status == embed.StatusSuccess {
			embedded += n
		}
	}
	if total > 0 {
		out.EmbeddedRatio = float64(embedded) / float64(total)
	}

	if n, err := m.st.Count(ctx, store.CollCache); err == nil {
		out.CacheEntries = n
	} else {
		m.logger.Warn("cache count unavailable", slog.Any("error", err))
	}

	if colls, err := m.st.CollectionCounts(ctx); err == nil {
		out.Collections = colls
	} else {
		m.logger.Warn("collection counts unavailable", slog.Any("error", err))
	}

	// $indexStats needs privileges some deployments withhold; absent
	// entries mean the server would not answer.
	for _, base := range []string{store.CollChunks, store.CollKBChunks, store.CollStructured} {
		n, err := m.st.IndexAccesses(ctx, base)
		if err != nil {
			continue
		}
		out.IndexAccesses[base] = n
	}

	if len(opts.ValidPaths) > 0 {
		stored, err := m.st.StoredPaths(ctx, []store.Source{store.SourceMemory, store.SourceSessions})
		if err != nil {
			m.logger.Warn("stale scan unavailable", slog.Any("error", err))
		} else {
			valid := make(map[string]bool, len(opts.ValidPaths))
			for _, p := range opts.ValidPaths {
				valid[filepath.ToSlash(p)] = true
			}
			for _, p := range stored {
				if !valid[p] {
					out.StalePaths = append(out.StalePaths, p)
				}
			}
			sort.Strings(out.StalePaths)
		}
	}
	return out, nil
}

// ValidPaths enumerates the stored identities the current filesystem
// would sync. Pass the result to Stats for stale-path detection.
func (m *Manager) ValidPaths() []string {
	if m.isClosed() {
		return nil
	}
	return m.syncer.Paths()
}

// ProbeEmbeddingAvailability checks whether semantic search can serve
// queries right now. Automated mode trusts the detected vector
// capability; managed mode embeds a one-token probe and surfaces the
// provider error.
func (m *Manager) ProbeEmbeddingAvailability(ctx context.Context) (bool, error) {
	if m.isClosed() {
		return false, ErrClosed
	}
	if m.embedMode != config.EmbeddingManaged {
		return m.caps.VectorSearch, nil
	}
	if m.provider == nil {
		return false, fmt.Errorf("no embedding provider configured")
	}
	if _, err := m.provider.EmbedBatch(ctx, []string{"ping"}); err != nil {
		return false, fmt.Errorf("probe embedding: %w", err)
	}
	return true, nil
}

// ProbeVectorAvailability reports whether vector indexes answered the
// capability probe at open time.
func (m *Manager) ProbeVectorAvailability() bool {
	return m.caps.VectorSearch
}

// WriteStructuredMemory upserts one typed entry keyed by
// (agent, type, key). Managed mode embeds the value inline; an embedding
// failure stores the entry with a failed status for later repair.
func (m *Manager) WriteStructuredMemory(ctx context.Context, entry store.StructuredEntry) error {
	if !m.beginOp() {
		return ErrClosed
	}
	defer m.opWG.Done()

	if entry.Type == "" {
		return fmt.Errorf("type is required")
	}
	if strings.TrimSpace(entry.Key) == "" {
		return fmt.Errorf("key is required")
	}
	if strings.TrimSpace(entry.Value) == "" {
		return fmt.Errorf("value is required")
	}
	if entry.AgentID == "" {
		entry.AgentID = m.agentID
	}
	if entry.Confidence < 0 {
		entry.Confidence = 0
	} else if entry.Confidence > 1 {
		entry.Confidence = 1
	}

	now := time.Now().UTC()
	entry.ID = store.StructuredID(entry.AgentID, entry.Type, entry.Key)
	entry.CreatedAt = now
	entry.UpdatedAt = now

	entry.Embedding = nil
	entry.EmbeddingStatus = embed.StatusPending
	if m.embedMode == config.EmbeddingManaged && m.provider != nil {
		vecs, err := embed.RetryEmbedding(ctx, m.retry, m.provider.EmbedBatch, []string{entry.EmbeddingText()})
		if err != nil {
			m.logger.Warn("structured embedding failed, stored without vector",
				slog.Any("error", err))
			entry.EmbeddingStatus = embed.StatusFailed
		} else {
			entry.Embedding = vecs[0]
			entry.EmbeddingStatus = embed.StatusSuccess
		}
	}

	if err := m.st.UpsertStructured(ctx, entry); err != nil {
		return fmt.Errorf("write structured memory: %w", err)
	}
	m.logger.Info("structured memory written",
		slog.String("type", string(entry.Type)),
		slog.String("key", entry.Key))
	return nil
}
