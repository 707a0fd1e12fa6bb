package mcp

import (
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// DescribeWorkspace inspects the memory surface rooted at a workspace.
func DescribeWorkspace(root string) WorkspaceInfo {
	info := WorkspaceInfo{
		Name: filepath.Base(root),
		Path: root,
	}

	files, err := memoryFiles(root)
	if err != nil {
		return info
	}
	info.NoteFiles = len(files)
	for _, f := range files {
		if f == "MEMORY.md" || f == "memory.md" {
			info.HasRootFile = true
			break
		}
	}
	return info
}

// memoryFiles lists the markdown files that make up the memory surface:
// MEMORY.md or memory.md at the root plus everything under memory/. Paths
// come back workspace-relative and slash-separated, the same shape the
// chunk store records.
func memoryFiles(root string) ([]string, error) {
	var files []string
	for _, name := range []string{"MEMORY.md", "memory.md"} {
		st, err := os.Stat(filepath.Join(root, name))
		if err == nil && st.Mode().IsRegular() {
			files = append(files, name)
		}
	}

	memDir := filepath.Join(root, "memory")
	err := filepath.WalkDir(memDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		// Symlinks are excluded here because the read policy would deny
		// them anyway.
		if !d.Type().IsRegular() || !strings.EqualFold(filepath.Ext(path), ".md") {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		files = append(files, filepath.ToSlash(rel))
		return nil
	})
	if err != nil && !os.IsNotExist(err) {
		return nil, err
	}

	sort.Strings(files)
	return files, nil
}
