package memory

import (
	"context"
	"errors"
	"log/slog"

	"github.com/openclaw/recall/internal/ingest"
	"github.com/openclaw/recall/internal/kb"
	"github.com/openclaw/recall/internal/store"
)

// Sync runs one ingest pass and, when the refresh interval has elapsed, a
// knowledge-base import. Concurrent callers collapse onto a single run
// and share its result. The dirty flag clears when the run starts and
// returns if ingest fails, so the next search retries.
func (m *Manager) Sync(ctx context.Context, opts SyncOptions) (*SyncResult, error) {
	if !m.beginOp() {
		return nil, ErrClosed
	}
	defer m.opWG.Done()

	v, err, _ := m.syncGroup.Do("sync", func() (any, error) {
		return m.runSync(ctx, opts)
	})
	res, _ := v.(*SyncResult)
	return res, err
}

func (m *Manager) runSync(ctx context.Context, opts SyncOptions) (*SyncResult, error) {
	m.clearDirty()

	ingestRes, err := m.syncer.Sync(ctx, ingest.Options{
		Force:    opts.Force,
		Reason:   opts.Reason,
		Progress: opts.Progress,
	})
	if err != nil {
		m.markDirty()
		return nil, err
	}
	m.refreshCounts(ctx, ingestRes)

	out := &SyncResult{Ingest: ingestRes}
	if m.kb != nil {
		kbRes, err := m.kb.MaybeRefresh(ctx)
		if err != nil {
			m.logger.Warn("knowledge base auto-refresh failed", slog.Any("error", err))
		} else {
			out.KB = kbRes
		}
	}
	return out, nil
}

// backgroundSync kicks a non-blocking sync; failures land in the log.
func (m *Manager) backgroundSync(reason string) {
	go func() {
		if _, err := m.Sync(context.Background(), SyncOptions{Reason: reason}); err != nil && !errors.Is(err, ErrClosed) {
			m.logger.Warn("background sync failed",
				slog.String("reason", reason),
				slog.Any("error", err))
		}
	}()
}

// refreshCounts prefers authoritative collection counts and falls back to
// deltas from the sync result when the store cannot answer. The delta for
// files overstates when changed files rewrite in place; the authoritative
// path corrects it on the next healthy count.
func (m *Manager) refreshCounts(ctx context.Context, res *ingest.Result) {
	files, ferr := m.st.Count(ctx, store.CollFiles)
	chunks, cerr := m.st.Count(ctx, store.CollChunks)

	m.mu.Lock()
	defer m.mu.Unlock()
	if ferr == nil {
		m.fileCount = files
	} else {
		m.fileCount += int64(res.Files) - int64(res.DeletedFiles)
	}
	if cerr == nil {
		m.chunkCount = chunks
	} else {
		m.chunkCount += int64(res.Chunks) - res.DeletedChunks
	}
	if m.fileCount < 0 {
		m.fileCount = 0
	}
	if m.chunkCount < 0 {
		m.chunkCount = 0
	}
}

// RefreshKB forces a knowledge-base import pass regardless of the
// auto-refresh interval.
func (m *Manager) RefreshKB(ctx context.Context, force bool) (*kb.RefreshResult, error) {
	if !m.beginOp() {
		return nil, ErrClosed
	}
	defer m.opWG.Done()
	return m.kb.Refresh(ctx, force)
}

// AddKBDocument stores one caller-supplied knowledge-base document.
func (m *Manager) AddKBDocument(ctx context.Context, req kb.AddRequest) (string, int, error) {
	if !m.beginOp() {
		return "", 0, ErrClosed
	}
	defer m.opWG.Done()
	return m.kb.AddDocument(ctx, req)
}
