package kb

import (
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// walkMarkdown collects .md files under root in path order. A missing root
// is not an error; the directory is simply absent.
func walkMarkdown(root string, logger *slog.Logger) []string {
	var files []string
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			logger.Warn("walk error", slog.String("path", p), slog.Any("error", err))
			return nil
		}
		if !d.IsDir() && isMarkdown(p) {
			files = append(files, p)
		}
		return nil
	})
	if err != nil && !os.IsNotExist(err) {
		logger.Warn("walk failed", slog.String("root", root), slog.Any("error", err))
	}
	sort.Strings(files)
	return files
}

func isMarkdown(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".md")
}

// titleFor derives a document title: the first markdown heading, else the
// file name without extension.
func titleFor(path, content string) string {
	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "#") {
			if title := strings.TrimSpace(strings.TrimLeft(trimmed, "#")); title != "" {
				return title
			}
		}
	}
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
