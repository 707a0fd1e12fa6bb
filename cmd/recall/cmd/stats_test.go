package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openclaw/recall/internal/embed"
	"github.com/openclaw/recall/internal/memory"
	"github.com/openclaw/recall/internal/store"
)

func TestCollectStats_MapsStoreMetrics(t *testing.T) {
	// Given: store metrics with typed source and status keys
	stats := &memory.Stats{
		SourceCounts: map[store.Source]int64{
			store.SourceMemory:   40,
			store.SourceSessions: 7,
		},
		EmbeddingStatus: map[embed.Status]int64{
			embed.StatusSuccess: 44,
			embed.StatusPending: 3,
		},
		EmbeddedRatio: 0.936,
		CacheEntries:  51,
		Collections:   map[string]int64{"memory_chunks": 47, "kb_documents": 2},
		IndexAccesses: map[string]int64{"chunk_vector_idx": 12},
		StalePaths:    []string{"memory/gone.md"},
	}

	// When: collecting the renderable view
	info := collectStats(stats)

	// Then: typed keys flatten to strings and counters carry over
	assert.Equal(t, int64(40), info.Sources["memory"])
	assert.Equal(t, int64(7), info.Sources["sessions"])
	assert.Equal(t, int64(44), info.EmbeddingStatus["success"])
	assert.Equal(t, int64(3), info.EmbeddingStatus["pending"])
	assert.InDelta(t, 0.936, info.EmbeddedRatio, 1e-9)
	assert.Equal(t, int64(51), info.CacheEntries)
	assert.Equal(t, int64(47), info.Collections["memory_chunks"])
	assert.Equal(t, int64(12), info.IndexAccesses["chunk_vector_idx"])
	assert.Equal(t, []string{"memory/gone.md"}, info.StalePaths)
}

func TestCollectStats_EmptyMetrics(t *testing.T) {
	// Given: a backend with nothing stored yet
	stats := &memory.Stats{
		SourceCounts:    map[store.Source]int64{},
		EmbeddingStatus: map[embed.Status]int64{},
	}

	// When: collecting
	info := collectStats(stats)

	// Then: the view has empty maps, not nils
	require.NotNil(t, info.Sources)
	require.NotNil(t, info.EmbeddingStatus)
	assert.Empty(t, info.Sources)
	assert.Empty(t, info.StalePaths)
}

func TestStatsCmd_HasJSONFlag(t *testing.T) {
	// Given: the stats command
	rootCmd := NewRootCmd()
	statsCmd, _, err := rootCmd.Find([]string{"stats"})
	require.NoError(t, err)

	// Then: json flag exists and defaults off
	flag := statsCmd.Flags().Lookup("json")
	assert.NotNil(t, flag)
	assert.Equal(t, "false", flag.DefValue)
}
