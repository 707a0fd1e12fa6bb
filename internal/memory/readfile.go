package memory

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrPathRequired rejects file reads the path policy denies. One opaque
// error covers empty, missing, non-markdown, symlinked, and escaping
// paths so filesystem layout never leaks to the caller.
var ErrPathRequired = errors.New("path required")

// ReadFile returns memory file content with optional line windowing.
// Paths resolve against the workspace; configured extra paths are also
// readable. Only regular .md files are served; symlinks are denied.
func (m *Manager) ReadFile(ctx context.Context, req ReadFileRequest) (*FileContent, error) {
	if m.isClosed() {
		return nil, ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	cand, err := m.resolvePath(req.Path)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(cand)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrPathRequired
		}
		return nil, fmt.Errorf("read memory file: %w", err)
	}

	text := strings.ReplaceAll(string(data), "\r\n", "\n")
	all := strings.Split(text, "\n")
	if n := len(all); n > 0 && all[n-1] == "" {
		all = all[:n-1]
	}
	total := len(all)

	from := req.From
	if from <= 0 {
		from = 1
	}
	start := from - 1
	if start > total {
		start = total
	}
	end := total
	if req.Lines > 0 && start+req.Lines < end {
		end = start + req.Lines
	}
	window := all[start:end]

	return &FileContent{
		Path:    cand,
		Content: strings.Join(window, "\n"),
		From:    from,
		Lines:   len(window),
		Total:   total,
	}, nil
}

// resolvePath enforces the read policy: markdown only, workspace or
// extra-path containment, regular files only, no symlink escape.
func (m *Manager) resolvePath(path string) (string, error) {
	path = strings.TrimSpace(path)
	if path == "" || !strings.EqualFold(filepath.Ext(path), ".md") {
		return "", ErrPathRequired
	}
	cand := path
	if !filepath.IsAbs(cand) {
		cand = filepath.Join(m.workspace, cand)
	}
	cand = filepath.Clean(cand)

	var root string
	for _, r := range append([]string{m.workspace}, m.extraPaths...) {
		if within(r, cand) {
			root = r
			break
		}
	}
	if root == "" {
		return "", ErrPathRequired
	}

	fi, err := os.Lstat(cand)
	if err != nil || !fi.Mode().IsRegular() {
		return "", ErrPathRequired
	}

	// A parent directory could still be a link out of the surface.
	realRoot, err := filepath.EvalSymlinks(root)
	if err != nil {
		return "", ErrPathRequired
	}
	realCand, err := filepath.EvalSymlinks(cand)
	if err != nil {
		return "", ErrPathRequired
	}
	if !within(realRoot, realCand) {
		return "", ErrPathRequired
	}
	return cand, nil
}

// within reports whether path sits at or under root, lexically.
func within(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	if rel == "." {
		return true
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
