package memory

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeMemoryFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestReadFile_WholeFile(t *testing.T) {
	f := newFixture(t)
	writeMemoryFile(t, filepath.Join(f.m.workspace, "MEMORY.md"), "# Memory\nalpha\nbeta\n")

	got, err := f.m.ReadFile(context.Background(), ReadFileRequest{Path: "MEMORY.md"})
	require.NoError(t, err)

	assert.Equal(t, "# Memory\nalpha\nbeta", got.Content)
	assert.Equal(t, 1, got.From)
	assert.Equal(t, 3, got.Lines)
	assert.Equal(t, 3, got.Total)
	assert.Equal(t, filepath.Join(f.m.workspace, "MEMORY.md"), got.Path)
}

func TestReadFile_LineWindow(t *testing.T) {
	f := newFixture(t)
	path := filepath.Join(f.m.workspace, "memory", "notes.md")
	writeMemoryFile(t, path, "one\ntwo\nthree\nfour\nfive\n")

	tests := []struct {
		name    string
		from    int
		lines   int
		content string
		count   int
	}{
		{name: "middle window", from: 2, lines: 2, content: "two\nthree", count: 2},
		{name: "from to eof", from: 4, lines: 0, content: "four\nfive", count: 2},
		{name: "window past eof clips", from: 4, lines: 10, content: "four\nfive", count: 2},
		{name: "from past eof is empty", from: 9, lines: 2, content: "", count: 0},
		{name: "zero from means top", from: 0, lines: 1, content: "one", count: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := f.m.ReadFile(context.Background(), ReadFileRequest{
				Path:  "memory/notes.md",
				From:  tt.from,
				Lines: tt.lines,
			})
			require.NoError(t, err)
			assert.Equal(t, tt.content, got.Content)
			assert.Equal(t, tt.count, got.Lines)
			assert.Equal(t, 5, got.Total)
		})
	}
}

func TestReadFile_CRLFNormalized(t *testing.T) {
	f := newFixture(t)
	writeMemoryFile(t, filepath.Join(f.m.workspace, "MEMORY.md"), "one\r\ntwo\r\n")

	got, err := f.m.ReadFile(context.Background(), ReadFileRequest{Path: "MEMORY.md"})
	require.NoError(t, err)
	assert.Equal(t, "one\ntwo", got.Content)
	assert.Equal(t, 2, got.Total)
}

func TestReadFile_AbsolutePathInsideWorkspace(t *testing.T) {
	f := newFixture(t)
	abs := filepath.Join(f.m.workspace, "memory", "deep", "note.md")
	writeMemoryFile(t, abs, "content\n")

	got, err := f.m.ReadFile(context.Background(), ReadFileRequest{Path: abs})
	require.NoError(t, err)
	assert.Equal(t, "content", got.Content)
}

func TestReadFile_DenialsAreOpaque(t *testing.T) {
	f := newFixture(t)
	outside := t.TempDir()
	writeMemoryFile(t, filepath.Join(outside, "secret.md"), "secret\n")
	writeMemoryFile(t, filepath.Join(f.m.workspace, "notes.txt"), "plain\n")
	require.NoError(t, os.MkdirAll(filepath.Join(f.m.workspace, "dir.md"), 0o755))

	tests := []struct {
		name string
		path string
	}{
		{name: "empty path", path: ""},
		{name: "whitespace path", path: "   "},
		{name: "non markdown", path: "notes.txt"},
		{name: "missing file", path: "memory/never-written.md"},
		{name: "relative escape", path: "../" + filepath.Base(outside) + "/secret.md"},
		{name: "absolute outside", path: filepath.Join(outside, "secret.md")},
		{name: "directory named like markdown", path: "dir.md"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.m.ReadFile(context.Background(), ReadFileRequest{Path: tt.path})
			assert.ErrorIs(t, err, ErrPathRequired)
		})
	}
}

func TestReadFile_SymlinkDenied(t *testing.T) {
	f := newFixture(t)
	outside := t.TempDir()
	target := filepath.Join(outside, "target.md")
	writeMemoryFile(t, target, "hidden\n")
	writeMemoryFile(t, filepath.Join(f.m.workspace, "MEMORY.md"), "visible\n")

	link := filepath.Join(f.m.workspace, "memory", "link.md")
	require.NoError(t, os.MkdirAll(filepath.Dir(link), 0o755))
	if err := os.Symlink(target, link); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}
	_, err := f.m.ReadFile(context.Background(), ReadFileRequest{Path: "memory/link.md"})
	assert.ErrorIs(t, err, ErrPathRequired, "symlink out of the workspace")

	inLink := filepath.Join(f.m.workspace, "memory", "inlink.md")
	require.NoError(t, os.Symlink(filepath.Join(f.m.workspace, "MEMORY.md"), inLink))
	_, err = f.m.ReadFile(context.Background(), ReadFileRequest{Path: "memory/inlink.md"})
	assert.ErrorIs(t, err, ErrPathRequired, "even in-tree symlinks are denied")
}

func TestReadFile_SymlinkedParentDenied(t *testing.T) {
	f := newFixture(t)
	outside := t.TempDir()
	writeMemoryFile(t, filepath.Join(outside, "doc.md"), "hidden\n")

	linkDir := filepath.Join(f.m.workspace, "memory", "linked")
	require.NoError(t, os.MkdirAll(filepath.Dir(linkDir), 0o755))
	if err := os.Symlink(outside, linkDir); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}

	_, err := f.m.ReadFile(context.Background(), ReadFileRequest{Path: "memory/linked/doc.md"})
	assert.ErrorIs(t, err, ErrPathRequired)
}

func TestReadFile_ExtraPathFile(t *testing.T) {
	f := newFixture(t)
	outside := t.TempDir()
	shared := filepath.Join(outside, "shared.md")
	writeMemoryFile(t, shared, "team notes\n")
	writeMemoryFile(t, filepath.Join(outside, "sibling.md"), "not shared\n")
	f.m.extraPaths = []string{shared}

	got, err := f.m.ReadFile(context.Background(), ReadFileRequest{Path: shared})
	require.NoError(t, err)
	assert.Equal(t, "team notes", got.Content)

	_, err = f.m.ReadFile(context.Background(), ReadFileRequest{Path: filepath.Join(outside, "sibling.md")})
	assert.ErrorIs(t, err, ErrPathRequired, "siblings of an extra file stay outside the surface")
}

func TestReadFile_ExtraPathDirectory(t *testing.T) {
	f := newFixture(t)
	extraDir := t.TempDir()
	writeMemoryFile(t, filepath.Join(extraDir, "docs", "guide.md"), "guide\n")
	f.m.extraPaths = []string{extraDir}

	got, err := f.m.ReadFile(context.Background(), ReadFileRequest{
		Path: filepath.Join(extraDir, "docs", "guide.md"),
	})
	require.NoError(t, err)
	assert.Equal(t, "guide", got.Content)
}

func TestReadFile_CancelledContext(t *testing.T) {
	f := newFixture(t)
	writeMemoryFile(t, filepath.Join(f.m.workspace, "MEMORY.md"), "content\n")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := f.m.ReadFile(ctx, ReadFileRequest{Path: "MEMORY.md"})
	assert.ErrorIs(t, err, context.Canceled)
}
