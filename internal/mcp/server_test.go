package mcp

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openclaw/recall/internal/ingest"
	"github.com/openclaw/recall/internal/kb"
	"github.com/openclaw/recall/internal/memory"
	"github.com/openclaw/recall/internal/search"
	"github.com/openclaw/recall/internal/store"
)

// fakeBackend implements memory.Backend for testing. Unset function
// fields fall back to benign defaults.
type fakeBackend struct {
	SearchFn func(ctx context.Context, query string, opts memory.SearchOptions) ([]search.Result, error)
	ReadFn   func(ctx context.Context, req memory.ReadFileRequest) (*memory.FileContent, error)
	StatusFn func() memory.Status
	SyncFn   func(ctx context.Context, opts memory.SyncOptions) (*memory.SyncResult, error)
	ProbeFn  func(ctx context.Context) (bool, error)
}

func (f *fakeBackend) Search(ctx context.Context, query string, opts memory.SearchOptions) ([]search.Result, error) {
	if f.SearchFn != nil {
		return f.SearchFn(ctx, query, opts)
	}
	return nil, nil
}

func (f *fakeBackend) ReadFile(ctx context.Context, req memory.ReadFileRequest) (*memory.FileContent, error) {
	if f.ReadFn != nil {
		return f.ReadFn(ctx, req)
	}
	return &memory.FileContent{Path: req.Path}, nil
}

func (f *fakeBackend) Status() memory.Status {
	if f.StatusFn != nil {
		return f.StatusFn()
	}
	return memory.Status{Backend: "mongodb"}
}

func (f *fakeBackend) Sync(ctx context.Context, opts memory.SyncOptions) (*memory.SyncResult, error) {
	if f.SyncFn != nil {
		return f.SyncFn(ctx, opts)
	}
	return &memory.SyncResult{}, nil
}

func (f *fakeBackend) ProbeEmbeddingAvailability(ctx context.Context) (bool, error) {
	if f.ProbeFn != nil {
		return f.ProbeFn(ctx)
	}
	return true, nil
}

func (f *fakeBackend) ProbeVectorAvailability() bool { return true }

func (f *fakeBackend) Close(ctx context.Context) error { return nil }

// writerBackend adds structured write support on top of fakeBackend.
type writerBackend struct {
	fakeBackend
	WriteFn func(ctx context.Context, entry store.StructuredEntry) error
	entries []store.StructuredEntry
}

func (w *writerBackend) WriteStructuredMemory(ctx context.Context, entry store.StructuredEntry) error {
	if w.WriteFn != nil {
		return w.WriteFn(ctx, entry)
	}
	w.entries = append(w.entries, entry)
	return nil
}

func newTestServer(t *testing.T, backend memory.Backend) *Server {
	t.Helper()
	s, err := NewServer(backend, t.TempDir(), nil)
	require.NoError(t, err)
	return s
}

func asMCPError(t *testing.T, err error) *MCPError {
	t.Helper()
	var mcpErr *MCPError
	require.ErrorAs(t, err, &mcpErr)
	return mcpErr
}

func TestNewServer_RequiresBackend(t *testing.T) {
	// When: constructing without a backend
	s, err := NewServer(nil, "", nil)

	// Then: construction fails
	require.Error(t, err)
	assert.Nil(t, s)
	assert.Contains(t, err.Error(), "backend is required")
}

func TestNewServer_WorkspaceFromStatus(t *testing.T) {
	// Given: a backend that knows its workspace
	dir := t.TempDir()
	backend := &fakeBackend{
		StatusFn: func() memory.Status {
			return memory.Status{Backend: "mongodb", Workspace: dir}
		},
	}

	// When: constructing without an explicit workspace
	s, err := NewServer(backend, "", nil)
	require.NoError(t, err)

	// Then: the workspace comes from the backend status
	assert.Equal(t, dir, s.workspace)
}

func TestNewServer_ExplicitWorkspaceWins(t *testing.T) {
	// Given: a backend reporting some other workspace
	backend := &fakeBackend{
		StatusFn: func() memory.Status {
			return memory.Status{Workspace: "/elsewhere"}
		},
	}

	// When: constructing with an explicit workspace
	s, err := NewServer(backend, "/explicit", nil)
	require.NoError(t, err)

	// Then: the explicit path is kept
	assert.Equal(t, "/explicit", s.workspace)
}

func TestServerInfo(t *testing.T) {
	s := newTestServer(t, &fakeBackend{})

	name, ver := s.Info()
	assert.Equal(t, "recall", name)
	assert.NotEmpty(t, ver)

	hasTools, hasResources := s.Capabilities()
	assert.True(t, hasTools)
	assert.True(t, hasResources)
	assert.NotNil(t, s.MCPServer())
}

func TestListTools_ReadOnlyBackend(t *testing.T) {
	// Given: a backend without structured write support
	s := newTestServer(t, &fakeBackend{})

	// When: listing tools
	tools := s.ListTools()

	// Then: the four read-side tools are present, memory_write is not
	require.Len(t, tools, 4)
	names := make([]string, 0, len(tools))
	for _, tool := range tools {
		names = append(names, tool.Name)
		assert.NotEmpty(t, tool.Description)
	}
	assert.Equal(t, []string{"memory_search", "memory_read_file", "memory_status", "memory_sync"}, names)
}

func TestListTools_WriterBackend(t *testing.T) {
	// Given: a backend that supports structured writes
	s := newTestServer(t, &writerBackend{})

	// When: listing tools
	tools := s.ListTools()

	// Then: memory_write is registered as well
	require.Len(t, tools, 5)
	assert.Equal(t, "memory_write", tools[4].Name)
}

func TestCallTool_UnknownTool(t *testing.T) {
	s := newTestServer(t, &fakeBackend{})

	_, err := s.CallTool(context.Background(), "nonexistent", nil)

	mcpErr := asMCPError(t, err)
	assert.Equal(t, ErrCodeMethodNotFound, mcpErr.Code)
	assert.Contains(t, mcpErr.Message, "nonexistent")
}

func TestCallTool_Search_FormatsMarkdown(t *testing.T) {
	// Given: a backend with one hit
	backend := &fakeBackend{
		SearchFn: func(_ context.Context, _ string, _ memory.SearchOptions) ([]search.Result, error) {
			return []search.Result{
				{Kind: search.KindMemory, Snippet: "Deploys happen Tuesdays", Score: 0.8, Path: "memory/infra.md", StartLine: 1, EndLine: 3},
			}, nil
		},
	}
	s := newTestServer(t, backend)

	// When: calling memory_search
	out, err := s.CallTool(context.Background(), "memory_search", map[string]any{"query": "deploy"})
	require.NoError(t, err)

	// Then: the response is formatted markdown
	text, ok := out.(string)
	require.True(t, ok)
	assert.Contains(t, text, `## Search Results for "deploy"`)
	assert.Contains(t, text, "Deploys happen Tuesdays")
}

func TestCallTool_Search_PassesOptions(t *testing.T) {
	// Given: a backend that records the options it receives
	var gotQuery string
	var gotOpts memory.SearchOptions
	backend := &fakeBackend{
		SearchFn: func(_ context.Context, query string, opts memory.SearchOptions) ([]search.Result, error) {
			gotQuery = query
			gotOpts = opts
			return nil, nil
		},
	}
	s := newTestServer(t, backend)

	// When: calling with a limit above the cap and a session filter
	_, err := s.CallTool(context.Background(), "memory_search", map[string]any{
		"query":       "  deploy  ",
		"max_results": float64(500),
		"min_score":   0.3,
		"session_key": "sess-1",
	})
	require.NoError(t, err)

	// Then: the query is trimmed and the limit clamped to the cap
	assert.Equal(t, "deploy", gotQuery)
	assert.Equal(t, maxSearchResults, gotOpts.MaxResults)
	assert.InDelta(t, 0.3, gotOpts.MinScore, 1e-9)
	assert.Equal(t, "sess-1", gotOpts.SessionKey)
}

func TestCallTool_Search_DefaultLimit(t *testing.T) {
	// Given: a backend that records the options it receives
	var gotOpts memory.SearchOptions
	backend := &fakeBackend{
		SearchFn: func(_ context.Context, _ string, opts memory.SearchOptions) ([]search.Result, error) {
			gotOpts = opts
			return nil, nil
		},
	}
	s := newTestServer(t, backend)

	// When: calling without max_results
	_, err := s.CallTool(context.Background(), "memory_search", map[string]any{"query": "deploy"})
	require.NoError(t, err)

	// Then: the merger default applies
	assert.Equal(t, search.DefaultMaxResults, gotOpts.MaxResults)
}

func TestCallTool_Search_EmptyQuery(t *testing.T) {
	s := newTestServer(t, &fakeBackend{})

	_, err := s.CallTool(context.Background(), "memory_search", map[string]any{"query": "   "})

	mcpErr := asMCPError(t, err)
	assert.Equal(t, ErrCodeInvalidParams, mcpErr.Code)
	assert.Contains(t, mcpErr.Message, "query parameter is required")
}

func TestCallTool_Search_ClosedBackend(t *testing.T) {
	// Given: a backend that has been closed
	backend := &fakeBackend{
		SearchFn: func(_ context.Context, _ string, _ memory.SearchOptions) ([]search.Result, error) {
			return nil, fmt.Errorf("memory search: %w", memory.ErrClosed)
		},
	}
	s := newTestServer(t, backend)

	// When: searching
	_, err := s.CallTool(context.Background(), "memory_search", map[string]any{"query": "deploy"})

	// Then: the closed state maps to its dedicated code
	mcpErr := asMCPError(t, err)
	assert.Equal(t, ErrCodeBackendClosed, mcpErr.Code)
}

func TestCallTool_Search_FailureHidesDetail(t *testing.T) {
	// Given: a backend failing with an internal error
	backend := &fakeBackend{
		SearchFn: func(_ context.Context, _ string, _ memory.SearchOptions) ([]search.Result, error) {
			return nil, errors.New("aggregation pipeline exploded")
		},
	}
	s := newTestServer(t, backend)

	// When: searching
	_, err := s.CallTool(context.Background(), "memory_search", map[string]any{"query": "deploy"})

	// Then: the client sees the generic search failure only
	mcpErr := asMCPError(t, err)
	assert.Equal(t, ErrCodeSearchFailed, mcpErr.Code)
	assert.Equal(t, "Search failed.", mcpErr.Message)
	assert.NotContains(t, mcpErr.Message, "aggregation")
}

func TestCallTool_ReadFile_CoercesWindow(t *testing.T) {
	// Given: a backend that records the read request
	var gotReq memory.ReadFileRequest
	backend := &fakeBackend{
		ReadFn: func(_ context.Context, req memory.ReadFileRequest) (*memory.FileContent, error) {
			gotReq = req
			return &memory.FileContent{Path: req.Path, Content: "alpha\nbeta", From: 10, Lines: 2, Total: 40}, nil
		},
	}
	s := newTestServer(t, backend)

	// When: calling with JSON-decoded numeric arguments
	out, err := s.CallTool(context.Background(), "memory_read_file", map[string]any{
		"path":  "MEMORY.md",
		"from":  float64(10),
		"lines": float64(5),
	})
	require.NoError(t, err)

	// Then: the window reaches the backend and the response is markdown
	assert.Equal(t, memory.ReadFileRequest{Path: "MEMORY.md", From: 10, Lines: 5}, gotReq)
	text, ok := out.(string)
	require.True(t, ok)
	assert.Contains(t, text, "## MEMORY.md")
	assert.Contains(t, text, "Lines 10-11 of 40")
}

func TestCallTool_ReadFile_MissingPath(t *testing.T) {
	s := newTestServer(t, &fakeBackend{})

	_, err := s.CallTool(context.Background(), "memory_read_file", map[string]any{})

	mcpErr := asMCPError(t, err)
	assert.Equal(t, ErrCodeInvalidParams, mcpErr.Code)
	assert.Equal(t, "path required", mcpErr.Message)
}

func TestCallTool_ReadFile_DenialIsOpaque(t *testing.T) {
	// Given: a backend denying a read outside the memory surface
	backend := &fakeBackend{
		ReadFn: func(_ context.Context, _ memory.ReadFileRequest) (*memory.FileContent, error) {
			return nil, fmt.Errorf("read file: %w", memory.ErrPathRequired)
		},
	}
	s := newTestServer(t, backend)

	// When: reading a path the policy rejects
	_, err := s.CallTool(context.Background(), "memory_read_file", map[string]any{"path": "../../etc/passwd"})

	// Then: the denial is indistinguishable from a missing path
	mcpErr := asMCPError(t, err)
	assert.Equal(t, ErrCodeInvalidParams, mcpErr.Code)
	assert.Equal(t, "path required", mcpErr.Message)
	assert.NotContains(t, mcpErr.Message, "etc")
}

func TestCallTool_Status_ExtractsCapabilities(t *testing.T) {
	// Given: a backend with a full capability snapshot
	backend := &fakeBackend{
		StatusFn: func() memory.Status {
			return memory.Status{
				Backend:  "mongodb",
				Provider: "voyageai",
				Model:    "voyage-3-large",
				Files:    12,
				Chunks:   340,
				Dirty:    true,
				Sources:  []string{"memory", "sessions"},
				Custom: map[string]any{
					"deploymentProfile": "atlas-default",
					"embeddingMode":     "automated",
					"vectorSearch":      true,
					"textSearch":        true,
					"serverFusion":      true,
					"fusionMethod":      "scoreFusion",
					"quantization":      "binary",
				},
			}
		},
	}
	s := newTestServer(t, backend)

	// When: calling memory_status
	out, err := s.CallTool(context.Background(), "memory_status", nil)
	require.NoError(t, err)

	// Then: the custom capability map is lifted into typed fields
	status, ok := out.(*StatusOutput)
	require.True(t, ok)
	assert.Equal(t, "mongodb", status.Backend)
	assert.Equal(t, int64(12), status.Files)
	assert.Equal(t, int64(340), status.Chunks)
	assert.True(t, status.Dirty)
	assert.Equal(t, "automated", status.Embeddings.Mode)
	assert.Equal(t, "voyageai", status.Embeddings.Provider)
	assert.True(t, status.Embeddings.Available)
	assert.Equal(t, "atlas-default", status.Search.Profile)
	assert.True(t, status.Search.VectorSearch)
	assert.True(t, status.Search.ServerFusion)
	assert.Equal(t, "scoreFusion", status.Search.Fusion)
	assert.Equal(t, "binary", status.Search.Quantization)
	assert.Equal(t, s.workspace, status.Workspace.Path)
}

func TestCallTool_Status_ProbeFailure(t *testing.T) {
	// Given: a backend whose embedding probe fails
	backend := &fakeBackend{
		ProbeFn: func(_ context.Context) (bool, error) {
			return false, errors.New("probe timeout")
		},
	}
	s := newTestServer(t, backend)

	// When: calling memory_status
	out, err := s.CallTool(context.Background(), "memory_status", nil)

	// Then: the tool still answers, reporting embeddings unavailable
	require.NoError(t, err)
	status := out.(*StatusOutput)
	assert.False(t, status.Embeddings.Available)
}

func TestCallTool_Status_DefaultsProviderNone(t *testing.T) {
	// Given: a backend with no embedding provider configured
	backend := &fakeBackend{
		StatusFn: func() memory.Status {
			return memory.Status{Backend: "mongodb"}
		},
	}
	s := newTestServer(t, backend)

	// When: calling memory_status
	out, err := s.CallTool(context.Background(), "memory_status", nil)
	require.NoError(t, err)

	// Then: the provider reads "none" instead of an empty string
	status := out.(*StatusOutput)
	assert.Equal(t, "none", status.Embeddings.Provider)
}

func TestCallTool_Sync_ReportsCounters(t *testing.T) {
	// Given: a backend that records sync options and reports counters
	var gotOpts memory.SyncOptions
	backend := &fakeBackend{
		SyncFn: func(_ context.Context, opts memory.SyncOptions) (*memory.SyncResult, error) {
			gotOpts = opts
			return &memory.SyncResult{
				Ingest: &ingest.Result{
					Files:         3,
					Chunks:        41,
					Skipped:       7,
					Failed:        1,
					DeletedFiles:  2,
					DeletedChunks: 18,
					Duration:      420 * time.Millisecond,
				},
				KB: &kb.RefreshResult{Documents: 4, Chunks: 30},
			}, nil
		},
	}
	s := newTestServer(t, backend)

	// When: forcing a sync over MCP
	out, err := s.CallTool(context.Background(), "memory_sync", map[string]any{"force": true})
	require.NoError(t, err)

	// Then: the force flag and reason reach the backend
	assert.True(t, gotOpts.Force)
	assert.Equal(t, "mcp", gotOpts.Reason)

	// And: the summary carries the counters
	text, ok := out.(string)
	require.True(t, ok)
	assert.Contains(t, text, "**Files:** 3 ingested, 7 skipped, 1 failed")
	assert.Contains(t, text, "**Chunks:** 41 written")
	assert.Contains(t, text, "**Pruned:** 2 files, 18 chunks")
	assert.Contains(t, text, "**Knowledge base:** 4 documents, 30 chunks")
	assert.Contains(t, text, "**Duration:** 420ms")
}

func TestCallTool_Sync_NilResult(t *testing.T) {
	// Given: a backend returning no counters at all
	backend := &fakeBackend{
		SyncFn: func(_ context.Context, _ memory.SyncOptions) (*memory.SyncResult, error) {
			return nil, nil
		},
	}
	s := newTestServer(t, backend)

	// When: syncing
	out, err := s.CallTool(context.Background(), "memory_sync", nil)

	// Then: the summary renders zeros instead of panicking
	require.NoError(t, err)
	assert.Contains(t, out.(string), "**Files:** 0 ingested, 0 skipped, 0 failed")
}

func TestCallTool_Sync_Failure(t *testing.T) {
	backend := &fakeBackend{
		SyncFn: func(_ context.Context, _ memory.SyncOptions) (*memory.SyncResult, error) {
			return nil, errors.New("bulk write lost connection")
		},
	}
	s := newTestServer(t, backend)

	_, err := s.CallTool(context.Background(), "memory_sync", nil)

	mcpErr := asMCPError(t, err)
	assert.Equal(t, ErrCodeSyncFailed, mcpErr.Code)
	assert.Equal(t, "Sync failed.", mcpErr.Message)
}

func TestCallTool_Write_NoWriterBackend(t *testing.T) {
	// Given: a server over a read-only backend
	s := newTestServer(t, &fakeBackend{})

	// When: calling memory_write anyway
	_, err := s.CallTool(context.Background(), "memory_write", map[string]any{
		"type": "decision", "key": "k", "value": "v",
	})

	// Then: the tool does not exist for this backend
	mcpErr := asMCPError(t, err)
	assert.Equal(t, ErrCodeMethodNotFound, mcpErr.Code)
}

func TestCallTool_Write_StoresEntry(t *testing.T) {
	// Given: a writable backend
	backend := &writerBackend{}
	s := newTestServer(t, backend)

	// When: writing a decision with mixed-type tags and no confidence
	out, err := s.CallTool(context.Background(), "memory_write", map[string]any{
		"type":    "decision",
		"key":     "db-choice",
		"value":   "use mongodb",
		"context": "evaluated postgres and mongodb",
		"tags":    []interface{}{"infra", float64(7), "storage"},
	})
	require.NoError(t, err)

	// Then: the entry is stored with defaults applied
	require.Len(t, backend.entries, 1)
	entry := backend.entries[0]
	assert.Equal(t, store.StructuredDecision, entry.Type)
	assert.Equal(t, "db-choice", entry.Key)
	assert.Equal(t, "use mongodb", entry.Value)
	assert.Equal(t, "evaluated postgres and mongodb", entry.Context)
	assert.Equal(t, []string{"infra", "storage"}, entry.Tags)
	assert.InDelta(t, 1.0, entry.Confidence, 1e-9)
	assert.Equal(t, "mcp", entry.Source)
	assert.Equal(t, "Stored decision 'db-choice'.", out)
}

func TestCallTool_Write_KeepsExplicitConfidence(t *testing.T) {
	backend := &writerBackend{}
	s := newTestServer(t, backend)

	_, err := s.CallTool(context.Background(), "memory_write", map[string]any{
		"type": "fact", "key": "tz", "value": "team is UTC+2", "confidence": 0.4,
	})
	require.NoError(t, err)

	require.Len(t, backend.entries, 1)
	assert.InDelta(t, 0.4, backend.entries[0].Confidence, 1e-9)
}

func TestCallTool_Write_InvalidType(t *testing.T) {
	s := newTestServer(t, &writerBackend{})

	_, err := s.CallTool(context.Background(), "memory_write", map[string]any{
		"type": "wish", "key": "k", "value": "v",
	})

	mcpErr := asMCPError(t, err)
	assert.Equal(t, ErrCodeInvalidParams, mcpErr.Code)
	assert.Contains(t, mcpErr.Message, "type must be one of")
}

func TestCallTool_Write_MissingKeyAndValue(t *testing.T) {
	s := newTestServer(t, &writerBackend{})

	// Missing key
	_, err := s.CallTool(context.Background(), "memory_write", map[string]any{
		"type": "fact", "value": "v",
	})
	assert.Equal(t, ErrCodeInvalidParams, asMCPError(t, err).Code)

	// Missing value
	_, err = s.CallTool(context.Background(), "memory_write", map[string]any{
		"type": "fact", "key": "k",
	})
	assert.Equal(t, ErrCodeInvalidParams, asMCPError(t, err).Code)
}

func TestCallTool_Write_Failure(t *testing.T) {
	backend := &writerBackend{
		WriteFn: func(_ context.Context, _ store.StructuredEntry) error {
			return errors.New("duplicate key race")
		},
	}
	s := newTestServer(t, backend)

	_, err := s.CallTool(context.Background(), "memory_write", map[string]any{
		"type": "fact", "key": "k", "value": "v",
	})

	mcpErr := asMCPError(t, err)
	assert.Equal(t, ErrCodeWriteFailed, mcpErr.Code)
	assert.Equal(t, "Structured memory write failed.", mcpErr.Message)
}

func TestServe_UnknownTransport(t *testing.T) {
	s := newTestServer(t, &fakeBackend{})

	err := s.Serve(context.Background(), "carrier-pigeon")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown transport")
	assert.Contains(t, err.Error(), "stdio")
}

func TestClose(t *testing.T) {
	s := newTestServer(t, &fakeBackend{})
	assert.NoError(t, s.Close())
}
