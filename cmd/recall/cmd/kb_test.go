package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKBCmd_HasSubcommands(t *testing.T) {
	// Given: the kb command group
	rootCmd := NewRootCmd()
	kbCmd, _, err := rootCmd.Find([]string{"kb"})
	require.NoError(t, err)

	// When: checking available subcommands
	var names []string
	for _, sub := range kbCmd.Commands() {
		names = append(names, sub.Name())
	}

	// Then: add and refresh exist
	assert.Contains(t, names, "add")
	assert.Contains(t, names, "refresh")
}

func TestKBAddCmd_RequiresTitle(t *testing.T) {
	// Given: kb add without --title
	rootCmd := NewRootCmd()
	buf := &bytes.Buffer{}
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetIn(strings.NewReader("some content"))
	rootCmd.SetArgs([]string{"kb", "add"})

	// When: executing
	err := rootCmd.Execute()

	// Then: the required-flag error fires before any backend work
	require.Error(t, err)
	assert.Contains(t, err.Error(), "title")
}

func TestKBAddCmd_Flags(t *testing.T) {
	// Given: the kb add command
	rootCmd := NewRootCmd()
	addCmd, _, err := rootCmd.Find([]string{"kb", "add"})
	require.NoError(t, err)

	// Then: flags exist with their shorthands
	title := addCmd.Flags().Lookup("title")
	require.NotNil(t, title)
	assert.Equal(t, "t", title.Shorthand)

	file := addCmd.Flags().Lookup("file")
	require.NotNil(t, file)
	assert.Equal(t, "f", file.Shorthand)

	assert.NotNil(t, addCmd.Flags().Lookup("url"))
	assert.NotNil(t, addCmd.Flags().Lookup("tag"))
}

func TestKBRefreshCmd_HasForceFlag(t *testing.T) {
	// Given: the kb refresh command
	rootCmd := NewRootCmd()
	refreshCmd, _, err := rootCmd.Find([]string{"kb", "refresh"})
	require.NoError(t, err)

	// Then: force flag exists and defaults off
	flag := refreshCmd.Flags().Lookup("force")
	require.NotNil(t, flag)
	assert.Equal(t, "f", flag.Shorthand)
	assert.Equal(t, "false", flag.DefValue)
}

func TestReadKBContent_FromFile(t *testing.T) {
	// Given: a file with document content
	dir := t.TempDir()
	path := filepath.Join(dir, "doc.md")
	require.NoError(t, os.WriteFile(path, []byte("# Runbook\n\nStep one."), 0o644))

	// When: reading with the file flag set
	content, err := readKBContent(newKBAddCmd(), path)

	// Then: the file content comes back
	require.NoError(t, err)
	assert.Equal(t, "# Runbook\n\nStep one.", string(content))
}

func TestReadKBContent_FromStdin(t *testing.T) {
	// Given: content piped to the command
	cmd := newKBAddCmd()
	cmd.SetIn(strings.NewReader("piped content"))

	// When: reading without a file flag
	content, err := readKBContent(cmd, "")

	// Then: stdin content comes back
	require.NoError(t, err)
	assert.Equal(t, "piped content", string(content))
}

func TestReadKBContent_MissingFile(t *testing.T) {
	// Given: a path that does not exist
	dir := t.TempDir()

	// When: reading
	_, err := readKBContent(newKBAddCmd(), filepath.Join(dir, "absent.md"))

	// Then: a read error surfaces
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read content")
}
