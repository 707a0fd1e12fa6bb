package ingest

import (
	"context"
	"log/slog"

	"github.com/openclaw/recall/internal/embed"
)

// Re-attempt paging bounds. One pass repairs at most a page; the rest wait
// for the next sync.
const (
	retryPageSize  = 100
	retryBatchSize = 20
)

// retryFailedEmbeddings re-embeds chunks stuck in failed status, oldest
// first. Batches that fail again stay failed for the next cycle.
func (s *Syncer) retryFailedEmbeddings(ctx context.Context) (int, error) {
	chunks, err := s.store.FailedChunks(ctx, retryPageSize)
	if err != nil || len(chunks) == 0 {
		return 0, err
	}

	model := s.provider.Model()
	repaired := 0
	for start := 0; start < len(chunks); start += retryBatchSize {
		batch := chunks[start:min(start+retryBatchSize, len(chunks))]

		ids := make([]string, len(batch))
		texts := make([]string, len(batch))
		for i, c := range batch {
			ids[i] = c.ID
			texts[i] = c.Text
		}

		vecs, err := embed.RetryEmbedding(ctx, s.retry, s.provider.EmbedBatch, texts)
		if err != nil {
			s.logger.Debug("re-attempt batch still failing",
				slog.Int("chunks", len(batch)),
				slog.Any("error", err))
			continue
		}
		if err := s.store.MarkEmbedded(ctx, ids, vecs, model); err != nil {
			s.logger.Warn("marking repaired chunks failed", slog.Any("error", err))
			continue
		}
		repaired += len(batch)
	}

	if repaired > 0 {
		s.logger.Info("re-attempt pass repaired chunks", slog.Int("chunks", repaired))
	}
	return repaired, nil
}
