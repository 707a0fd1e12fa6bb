package ui

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatsRenderer_Render(t *testing.T) {
	// Given: a populated metrics snapshot
	buf := &bytes.Buffer{}
	r := NewStatsRenderer(buf, true)
	info := StatsInfo{
		Sources:         map[string]int64{"memory": 340, "kb": 120, "sessions": 80},
		EmbeddingStatus: map[string]int64{"done": 510, "pending": 30},
		EmbeddedRatio:   0.944,
		CacheEntries:    512,
		Collections:     map[string]int64{"chunks": 340, "files": 12},
		IndexAccesses:   map[string]int64{"chunks": 1042},
		StalePaths:      []string{"memory/old.md"},
	}

	// When: rendering
	err := r.Render(info)

	// Then: all sections appear with sorted keys
	require.NoError(t, err)
	out := buf.String()
	assert.Contains(t, out, "Memory Stats")
	assert.Contains(t, out, "Chunks by source:")
	assert.Less(t, strings.Index(out, "kb:"), strings.Index(out, "memory:"))
	assert.Less(t, strings.Index(out, "memory:"), strings.Index(out, "sessions:"))
	assert.Contains(t, out, "Embedding status:")
	assert.Contains(t, out, "Embedded: 94.4%")
	assert.Contains(t, out, "Cache entries: 512")
	assert.Contains(t, out, "Collections:")
	assert.Contains(t, out, "Index accesses:")
	assert.Contains(t, out, "Stale paths (1):")
	assert.Contains(t, out, "memory/old.md")
}

func TestStatsRenderer_Render_Empty(t *testing.T) {
	// Given: an empty snapshot
	buf := &bytes.Buffer{}
	r := NewStatsRenderer(buf, true)

	// When: rendering
	err := r.Render(StatsInfo{})

	// Then: only the header and cache line print
	require.NoError(t, err)
	out := buf.String()
	assert.Contains(t, out, "Memory Stats")
	assert.Contains(t, out, "Cache entries: 0")
	assert.NotContains(t, out, "Chunks by source")
	assert.NotContains(t, out, "Embedding status")
	assert.NotContains(t, out, "Stale paths")
}

func TestStatsRenderer_Render_FullCoverage(t *testing.T) {
	// Given: full embedding coverage
	buf := &bytes.Buffer{}
	r := NewStatsRenderer(buf, true)
	info := StatsInfo{
		EmbeddingStatus: map[string]int64{"done": 40},
		EmbeddedRatio:   1.0,
	}

	// When: rendering
	err := r.Render(info)

	// Then: ratio shows 100.0%
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "Embedded: 100.0%")
}

func TestStatsRenderer_RenderJSON(t *testing.T) {
	// Given: a metrics snapshot
	buf := &bytes.Buffer{}
	r := NewStatsRenderer(buf, true)
	info := StatsInfo{
		Sources:       map[string]int64{"memory": 10},
		EmbeddedRatio: 0.5,
		CacheEntries:  3,
	}

	// When: rendering JSON
	err := r.RenderJSON(info)

	// Then: output round-trips
	require.NoError(t, err)
	var got StatsInfo
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, int64(10), got.Sources["memory"])
	assert.InDelta(t, 0.5, got.EmbeddedRatio, 0.001)
	assert.Equal(t, int64(3), got.CacheEntries)
	assert.Empty(t, got.StalePaths)
}
