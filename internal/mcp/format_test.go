package mcp

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/openclaw/recall/internal/search"
)

func TestFormatSearchResults_Empty(t *testing.T) {
	// Given: no results
	var results []search.Result

	// When: formatting
	out := FormatSearchResults("deploy window", results)

	// Then: returns a no-results message naming the query
	assert.Equal(t, `No results found for "deploy window"`, out)
}

func TestFormatSearchResults_SingleMemoryHit(t *testing.T) {
	// Given: one memory chunk hit
	results := []search.Result{
		{
			Kind:      search.KindMemory,
			Snippet:   "Deploys happen on Tuesdays after standup.",
			Score:     0.82,
			Path:      "memory/infra.md",
			Source:    "memory",
			StartLine: 3,
			EndLine:   9,
		},
	}

	// When: formatting
	out := FormatSearchResults("deploy", results)

	// Then: header, singular count, origin with line range, snippet
	assert.Contains(t, out, `## Search Results for "deploy"`)
	assert.Contains(t, out, "Found 1 result\n")
	assert.NotContains(t, out, "Found 1 results")
	assert.Contains(t, out, "### 1. memory/infra.md:3-9 (score: 0.82)")
	assert.Contains(t, out, "Deploys happen on Tuesdays after standup.")
}

func TestFormatSearchResults_MixedKinds(t *testing.T) {
	// Given: memory, kb, and structured hits
	results := []search.Result{
		{
			Kind:      search.KindMemory,
			Snippet:   "memory snippet",
			Score:     0.9,
			Path:      "MEMORY.md",
			StartLine: 1,
			EndLine:   4,
		},
		{
			Kind:      search.KindKB,
			Snippet:   "kb snippet",
			Score:     0.8,
			Path:      "docs/runbook.md",
			DocID:     "doc-1",
			StartLine: 10,
			EndLine:   20,
		},
		{
			Kind:    search.KindStructured,
			Snippet: "use mongodb",
			Score:   0.7,
			Type:    "decision",
			Key:     "db-choice",
			Tags:    []string{"infra", "storage"},
		},
	}

	// When: formatting
	out := FormatSearchResults("db", results)

	// Then: plural count and each origin style
	assert.Contains(t, out, "Found 3 results")
	assert.Contains(t, out, "### 1. MEMORY.md:1-4 (score: 0.90)")
	assert.Contains(t, out, "### 2. kb docs/runbook.md:10-20 (score: 0.80)")
	assert.Contains(t, out, "### 3. [decision] db-choice (score: 0.70)")
	assert.Contains(t, out, "**Tags:** `infra`, `storage`")
}

func TestFormatSearchResults_KBWithoutPathUsesDocID(t *testing.T) {
	// Given: a kb hit from a manually added document (no file path)
	results := []search.Result{
		{
			Kind:    search.KindKB,
			Snippet: "pasted content",
			Score:   0.5,
			DocID:   "kb_9f2c",
		},
	}

	// When: formatting
	out := FormatSearchResults("paste", results)

	// Then: the document id anchors the origin
	assert.Contains(t, out, "### 1. kb kb_9f2c (score: 0.50)")
}

func TestFormatSearchResults_SeparatesEntries(t *testing.T) {
	// Given: two hits
	results := []search.Result{
		{Kind: search.KindMemory, Snippet: "first", Score: 0.9, Path: "a.md", StartLine: 1, EndLine: 1},
		{Kind: search.KindMemory, Snippet: "second", Score: 0.8, Path: "b.md", StartLine: 1, EndLine: 1},
	}

	// When: formatting
	out := FormatSearchResults("q", results)

	// Then: a rule separates the entries
	first := strings.Index(out, "first")
	rule := strings.Index(out, "\n---\n")
	second := strings.Index(out, "second")
	assert.True(t, first < rule && rule < second, "expected rule between entries: %s", out)
}

func TestFormatFileContent_Window(t *testing.T) {
	// Given: a windowed read
	out := FormatFileContent(&ReadFileOutput{
		Path:    "/ws/MEMORY.md",
		Content: "alpha\nbeta\ngamma",
		From:    2,
		Lines:   3,
		Total:   10,
	})

	// Then: header, range line, content with trailing newline
	assert.Contains(t, out, "## /ws/MEMORY.md")
	assert.Contains(t, out, "Lines 2-4 of 10")
	assert.Contains(t, out, "alpha\nbeta\ngamma\n")
}

func TestFormatFileContent_EmptyRange(t *testing.T) {
	// Given: a window past the end of the file
	out := FormatFileContent(&ReadFileOutput{
		Path:  "/ws/MEMORY.md",
		From:  50,
		Lines: 0,
		Total: 10,
	})

	// Then: explains the empty range instead of rendering nothing
	assert.Contains(t, out, "No content in the requested range (10 lines total).")
}

func TestFormatStatus(t *testing.T) {
	// Given: a status snapshot
	out := FormatStatus(&StatusOutput{
		Backend:   "mongodb",
		Files:     5,
		Chunks:    120,
		Dirty:     true,
		Sources:   []string{"memory", "sessions", "kb"},
		Workspace: WorkspaceInfo{Path: "/home/u/ws"},
		Embeddings: EmbeddingInfo{
			Mode:      "automated",
			Provider:  "atlas",
			Model:     "voyage-3-large",
			Available: true,
		},
		Search: SearchCapabilities{
			Profile:      "atlas-default",
			VectorSearch: true,
			TextSearch:   true,
			ServerFusion: true,
			Fusion:       "scoreFusion",
		},
	})

	// Then: every section renders
	assert.Contains(t, out, "## Memory Status")
	assert.Contains(t, out, "**Backend:** mongodb (atlas-default profile)")
	assert.Contains(t, out, "**Workspace:** /home/u/ws")
	assert.Contains(t, out, "**Indexed:** 5 files, 120 chunks")
	assert.Contains(t, out, "**State:** dirty (sync pending)")
	assert.Contains(t, out, "**Sources:** memory, sessions, kb")
	assert.Contains(t, out, "**Embeddings:** automated mode, atlas (voyage-3-large), available")
	assert.Contains(t, out, "**Vector search:** yes")
	assert.Contains(t, out, "**Fusion:** scoreFusion (server-side)")
}

func TestFormatStatus_CleanWithoutServerFusion(t *testing.T) {
	// Given: a clean community deployment
	out := FormatStatus(&StatusOutput{
		Backend: "mongodb",
		Embeddings: EmbeddingInfo{
			Mode:     "managed",
			Provider: "voyage",
			Model:    "voyage-3-large",
		},
		Search: SearchCapabilities{
			Profile: "community",
			Fusion:  "rrf",
		},
	})

	// Then: clean state, unavailable embeddings, no server-side suffix
	assert.Contains(t, out, "**State:** clean")
	assert.Contains(t, out, "unavailable")
	assert.Contains(t, out, "**Fusion:** rrf\n")
	assert.NotContains(t, out, "server-side")
}

func TestFormatSyncResult(t *testing.T) {
	// Given: a sync pass that pruned files and refreshed the kb
	out := FormatSyncResult(&SyncOutput{
		Files:         3,
		Chunks:        41,
		Skipped:       7,
		Failed:        1,
		DeletedFiles:  2,
		DeletedChunks: 18,
		KBDocuments:   4,
		KBChunks:      30,
		DurationMS:    420,
	})

	// Then: all counters render
	assert.Contains(t, out, "## Sync Complete")
	assert.Contains(t, out, "**Files:** 3 ingested, 7 skipped, 1 failed")
	assert.Contains(t, out, "**Chunks:** 41 written")
	assert.Contains(t, out, "**Pruned:** 2 files, 18 chunks")
	assert.Contains(t, out, "**Knowledge base:** 4 documents, 30 chunks")
	assert.Contains(t, out, "**Duration:** 420ms")
}

func TestFormatSyncResult_QuietPass(t *testing.T) {
	// Given: a pass with nothing pruned and no kb refresh
	out := FormatSyncResult(&SyncOutput{Skipped: 12, DurationMS: 35})

	// Then: the optional lines stay out
	assert.NotContains(t, out, "Pruned")
	assert.NotContains(t, out, "Knowledge base")
	assert.Contains(t, out, "**Files:** 0 ingested, 12 skipped, 0 failed")
}

func TestClampLimit(t *testing.T) {
	tests := []struct {
		name     string
		limit    int
		expected int
	}{
		{"zero uses default", 0, 10},
		{"negative uses default", -5, 10},
		{"within range passes", 25, 25},
		{"at max passes", 50, 50},
		{"above max clamps down", 500, 50},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, clampLimit(tt.limit, 10, 1, 50))
		})
	}
}
