package mcp

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openclaw/recall/internal/memory"
)

// seedWorkspace lays out a memory surface under a temp dir and returns it.
func seedWorkspace(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "MEMORY.md"), []byte("# root\n"), 0o644))
	memDir := filepath.Join(dir, "memory")
	require.NoError(t, os.MkdirAll(filepath.Join(memDir, "notes"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(memDir, "infra.md"), []byte("deploy notes\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(memDir, "notes", "standup.md"), []byte("tuesday\n"), 0o644))
	// Non-markdown files stay off the resource surface.
	require.NoError(t, os.WriteFile(filepath.Join(memDir, "scratch.txt"), []byte("ignored\n"), 0o644))
	return dir
}

func newResourceServer(t *testing.T, workspace string, backend memory.Backend) *Server {
	t.Helper()
	s, err := NewServer(backend, workspace, nil)
	require.NoError(t, err)
	return s
}

func TestRegisterResources(t *testing.T) {
	// Given: a workspace with a root file and two notes
	dir := seedWorkspace(t)
	s := newResourceServer(t, dir, &fakeBackend{})

	// When: registering resources
	err := s.RegisterResources(context.Background())

	// Then: registration succeeds
	require.NoError(t, err)
}

func TestRegisterResources_RequiresWorkspace(t *testing.T) {
	// Given: a server whose backend reports no workspace either
	s, err := NewServer(&fakeBackend{}, "", nil)
	require.NoError(t, err)

	// When: registering resources
	err = s.RegisterResources(context.Background())

	// Then: registration fails
	require.Error(t, err)
	assert.Contains(t, err.Error(), "workspace")
}

func TestListResources(t *testing.T) {
	// Given: a seeded workspace
	dir := seedWorkspace(t)
	s := newResourceServer(t, dir, &fakeBackend{})

	// When: listing resources
	resources, cursor, err := s.ListResources(context.Background(), "")
	require.NoError(t, err)

	// Then: markdown files appear in sorted order, status last, no cursor
	assert.Empty(t, cursor)
	require.Len(t, resources, 4)
	assert.Equal(t, "memory://MEMORY.md", resources[0].URI)
	assert.Equal(t, "memory://memory/infra.md", resources[1].URI)
	assert.Equal(t, "memory://memory/notes/standup.md", resources[2].URI)
	assert.Equal(t, statusResourceURI, resources[3].URI)
	assert.Equal(t, "text/markdown", resources[0].MIMEType)
	assert.Equal(t, "application/json", resources[3].MIMEType)

	// And: the scratch file is absent
	for _, r := range resources {
		assert.NotContains(t, r.URI, "scratch")
	}
}

func TestReadResource_DelegatesToBackend(t *testing.T) {
	// Given: a backend that records the read request
	dir := seedWorkspace(t)
	var gotReq memory.ReadFileRequest
	backend := &fakeBackend{
		ReadFn: func(_ context.Context, req memory.ReadFileRequest) (*memory.FileContent, error) {
			gotReq = req
			return &memory.FileContent{Path: req.Path, Content: "deploy notes\n"}, nil
		},
	}
	s := newResourceServer(t, dir, backend)

	// When: reading a file resource
	content, err := s.ReadResource(context.Background(), "memory://memory/infra.md")
	require.NoError(t, err)

	// Then: the read went through the backend with the relative path
	assert.Equal(t, "memory/infra.md", gotReq.Path)
	assert.Equal(t, "memory://memory/infra.md", content.URI)
	assert.Equal(t, "deploy notes\n", content.Content)
	assert.Equal(t, "text/markdown", content.MIMEType)
}

func TestReadResource_Status(t *testing.T) {
	// Given: a backend with a capability snapshot
	dir := seedWorkspace(t)
	backend := &fakeBackend{
		StatusFn: func() memory.Status {
			return memory.Status{
				Backend: "mongodb",
				Files:   2,
				Custom:  map[string]any{"deploymentProfile": "community"},
			}
		},
	}
	s := newResourceServer(t, dir, backend)

	// When: reading the status resource
	content, err := s.ReadResource(context.Background(), statusResourceURI)
	require.NoError(t, err)

	// Then: the payload is the status snapshot as JSON
	assert.Equal(t, "application/json", content.MIMEType)
	var status StatusOutput
	require.NoError(t, json.Unmarshal([]byte(content.Content), &status))
	assert.Equal(t, "mongodb", status.Backend)
	assert.Equal(t, int64(2), status.Files)
	assert.Equal(t, "community", status.Search.Profile)
}

func TestReadResource_UnknownScheme(t *testing.T) {
	dir := seedWorkspace(t)
	s := newResourceServer(t, dir, &fakeBackend{})

	_, err := s.ReadResource(context.Background(), "file:///etc/passwd")

	mcpErr := asMCPError(t, err)
	assert.Equal(t, ErrCodeMethodNotFound, mcpErr.Code)
}

func TestReadResource_EmptyPath(t *testing.T) {
	dir := seedWorkspace(t)
	s := newResourceServer(t, dir, &fakeBackend{})

	_, err := s.ReadResource(context.Background(), "memory://")

	mcpErr := asMCPError(t, err)
	assert.Equal(t, ErrCodeMethodNotFound, mcpErr.Code)
}

func TestReadResource_BackendDenial(t *testing.T) {
	// Given: a backend denying the read
	dir := seedWorkspace(t)
	backend := &fakeBackend{
		ReadFn: func(_ context.Context, _ memory.ReadFileRequest) (*memory.FileContent, error) {
			return nil, memory.ErrPathRequired
		},
	}
	s := newResourceServer(t, dir, backend)

	// When: reading a resource the policy rejects
	_, err := s.ReadResource(context.Background(), "memory://memory/infra.md")

	// Then: the same opaque denial as the tool path
	mcpErr := asMCPError(t, err)
	assert.Equal(t, ErrCodeInvalidParams, mcpErr.Code)
}

func TestHandleReadResource_FileTooLarge(t *testing.T) {
	// Given: a backend serving content past the resource cap
	dir := seedWorkspace(t)
	backend := &fakeBackend{
		ReadFn: func(_ context.Context, req memory.ReadFileRequest) (*memory.FileContent, error) {
			return &memory.FileContent{
				Path:    req.Path,
				Content: strings.Repeat("x", MaxResourceSize+1),
			}, nil
		},
	}
	s := newResourceServer(t, dir, backend)

	// When: serving the resource
	_, err := s.handleReadResource(context.Background(), "MEMORY.md")

	// Then: the oversized payload is refused
	mcpErr := asMCPError(t, err)
	assert.Equal(t, ErrCodeFileTooLarge, mcpErr.Code)
	assert.Contains(t, mcpErr.Message, "too large")
}

func TestHandleReadResource_ReturnsContents(t *testing.T) {
	// Given: a backend serving a small file
	dir := seedWorkspace(t)
	s := newResourceServer(t, dir, &fakeBackend{
		ReadFn: func(_ context.Context, req memory.ReadFileRequest) (*memory.FileContent, error) {
			return &memory.FileContent{Path: req.Path, Content: "# root\n"}, nil
		},
	})

	// When: serving the resource
	res, err := s.handleReadResource(context.Background(), "MEMORY.md")
	require.NoError(t, err)

	// Then: one contents entry with URI, MIME type, and text
	require.Len(t, res.Contents, 1)
	assert.Equal(t, "memory://MEMORY.md", res.Contents[0].URI)
	assert.Equal(t, "text/markdown", res.Contents[0].MIMEType)
	assert.Equal(t, "# root\n", res.Contents[0].Text)
}

func TestMimeTypeForPath(t *testing.T) {
	tests := []struct {
		path     string
		expected string
	}{
		{"MEMORY.md", "text/markdown"},
		{"memory/notes/standup.md", "text/markdown"},
		{"sessions/2026-08-01.jsonl", "application/x-ndjson"},
		{"scratch.txt", "text/plain"},
		{"no-extension", "text/plain"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.expected, mimeTypeForPath(tt.path))
		})
	}
}

func TestHumanSize(t *testing.T) {
	tests := []struct {
		bytes    int64
		expected string
	}{
		{512, "512 B"},
		{2048, "2.0 KB"},
		{3 * 1024 * 1024, "3.0 MB"},
		{int64(5) * 1024 * 1024 * 1024, "5.0 GB"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			assert.Equal(t, tt.expected, humanSize(tt.bytes))
		})
	}
}
