package ui

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleStatus() StatusInfo {
	return StatusInfo{
		Workspace:          "/home/user/project",
		Backend:            "mongodb",
		Profile:            "atlas-default",
		State:              "clean",
		Files:              12,
		Chunks:             340,
		Sources:            []string{"memory", "sessions", "kb"},
		EmbeddingMode:      "automated",
		Provider:           "atlas",
		Model:              "voyage-3-large",
		Dimensions:         1024,
		EmbeddingAvailable: true,
		VectorSearch:       true,
		TextSearch:         true,
		ServerFusion:       true,
		Fusion:             "scoreFusion",
		Quantization:       "scalar",
		Watcher:            "active",
	}
}

func TestStatusRenderer_Render(t *testing.T) {
	// Given: a full status snapshot
	buf := &bytes.Buffer{}
	r := NewStatusRenderer(buf, true)

	// When: rendering
	err := r.Render(sampleStatus())

	// Then: every section appears
	require.NoError(t, err)
	out := buf.String()
	assert.Contains(t, out, "Memory Status: /home/user/project")
	assert.Contains(t, out, "Backend: mongodb (atlas-default)")
	assert.Contains(t, out, "State:   clean")
	assert.Contains(t, out, "Files:   12")
	assert.Contains(t, out, "Chunks:  340")
	assert.Contains(t, out, "Sources: memory, sessions, kb")
	assert.Contains(t, out, "Mode:     automated")
	assert.Contains(t, out, "Provider: atlas")
	assert.Contains(t, out, "Model:    voyage-3-large (1024 dims)")
	assert.Contains(t, out, "Status:   available")
	assert.Contains(t, out, "Vector: available")
	assert.Contains(t, out, "Text:   available")
	assert.Contains(t, out, "Fusion: scoreFusion (server-side)")
	assert.Contains(t, out, "Quantization: scalar")
	assert.Contains(t, out, "Watcher: active")
}

func TestStatusRenderer_Render_Minimal(t *testing.T) {
	// Given: a bare community snapshot with no embedding provider
	buf := &bytes.Buffer{}
	r := NewStatusRenderer(buf, true)
	info := StatusInfo{
		Workspace: "/ws",
		Backend:   "mongodb",
		State:     "dirty",
		Fusion:    "rrf",
	}

	// When: rendering
	err := r.Render(info)

	// Then: optional lines are omitted and fallbacks apply
	require.NoError(t, err)
	out := buf.String()
	assert.Contains(t, out, "Backend: mongodb\n")
	assert.Contains(t, out, "State:   dirty")
	assert.Contains(t, out, "Provider: none")
	assert.Contains(t, out, "Status:   unavailable")
	assert.Contains(t, out, "Fusion: rrf\n")
	assert.NotContains(t, out, "Watcher")
	assert.NotContains(t, out, "server-side")
	assert.NotContains(t, out, "Quantization")
	assert.NotContains(t, out, "Mode:")
	assert.NotContains(t, out, "Sources:")
}

func TestStatusRenderer_RenderJSON(t *testing.T) {
	// Given: a status snapshot
	buf := &bytes.Buffer{}
	r := NewStatusRenderer(buf, true)

	// When: rendering JSON
	err := r.RenderJSON(sampleStatus())

	// Then: output round-trips with the expected fields
	require.NoError(t, err)
	var got StatusInfo
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, "/home/user/project", got.Workspace)
	assert.Equal(t, "atlas-default", got.Profile)
	assert.Equal(t, int64(340), got.Chunks)
	assert.True(t, got.ServerFusion)
	assert.Equal(t, "active", got.Watcher)
}

func TestStatusRenderer_RenderState_Unknown(t *testing.T) {
	// Given: a renderer
	r := NewStatusRenderer(&bytes.Buffer{}, true)

	// When: rendering an unrecognized state
	got := r.renderState("mystery")

	// Then: passes through unchanged
	assert.Equal(t, "mystery", got)
}
