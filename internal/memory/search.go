package memory

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/openclaw/recall/internal/config"
	"github.com/openclaw/recall/internal/search"
)

// DefaultMinScore filters noise from merged results unless the caller
// overrides the floor.
const DefaultMinScore = 0.1

// Search fans the query out over memory chunks, knowledge-base chunks,
// and structured entries, then merges one ranked list. A dirty workspace
// triggers a background sync; the search itself never waits on it. A
// memory-collection failure fails the call; kb and structured failures
// degrade to partial results.
func (m *Manager) Search(ctx context.Context, query string, opts SearchOptions) ([]search.Result, error) {
	query = strings.TrimSpace(query)
	if query == "" || m.isClosed() {
		return []search.Result{}, nil
	}

	if m.snapshotDirty() {
		m.backgroundSync("search")
	}

	maxResults := opts.MaxResults
	if maxResults <= 0 {
		maxResults = search.DefaultMaxResults
	}
	minScore := opts.MinScore
	switch {
	case minScore == 0:
		minScore = DefaultMinScore
	case minScore < 0:
		minScore = 0
	}

	q := search.Query{Text: query, MaxResults: maxResults}
	if m.embedMode == config.EmbeddingManaged && m.provider != nil {
		vec, err := m.provider.EmbedQuery(ctx, query)
		if err != nil {
			m.logger.Warn("query embedding failed, text tiers only", slog.Any("error", err))
		} else {
			q.Vector = vec
		}
	}

	memQ := q
	if opts.SessionKey != "" {
		memQ.Filters.Path = m.sessionPath(opts.SessionKey)
		if memQ.Filters.Path == "" {
			m.logger.Warn("session filter ignored, sessions directory unknown",
				slog.String("sessionKey", opts.SessionKey))
		}
	}
	structQ := q
	structQ.Filters.AgentID = m.agentID

	var memHits, kbHits, structHits []search.Result
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		hits, err := m.dispatcher.Search(gctx, m.memoryTarget, memQ)
		if err != nil {
			return fmt.Errorf("memory search: %w", err)
		}
		memHits = hits
		return nil
	})
	if m.kbEnabled {
		g.Go(func() error {
			hits, err := m.dispatcher.Search(gctx, m.kbTarget, q)
			if err != nil {
				m.logger.Warn("knowledge base search failed", slog.Any("error", err))
				return nil
			}
			kbHits = hits
			return nil
		})
	}
	g.Go(func() error {
		hits, err := m.dispatcher.Search(gctx, m.structuredTarget, structQ)
		if err != nil {
			m.logger.Warn("structured search failed", slog.Any("error", err))
			return nil
		}
		structHits = hits
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return search.Merge(maxResults, minScore, memHits, kbHits, structHits), nil
}

// sessionPath maps a session key to its stored transcript path. Ingest
// stores transcripts under their slash-normalized absolute path.
func (m *Manager) sessionPath(key string) string {
	if m.sessionsDir == "" {
		return ""
	}
	return filepath.ToSlash(filepath.Join(m.sessionsDir, key+".jsonl"))
}
