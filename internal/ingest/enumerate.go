package ingest

import (
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/openclaw/recall/internal/store"
)

// entry is one file scheduled for sync. path is the stored identity:
// workspace-relative for workspace files, absolute for extra paths and
// session transcripts, always slash-separated.
type entry struct {
	abs    string
	path   string
	source store.Source
	mtime  time.Time
	size   int64
}

// enumerate walks the memory surface and, when an agent id is set, the
// session transcripts. Unreadable paths are logged and skipped; enumeration
// itself never fails the sync.
func (s *Syncer) enumerate() []entry {
	var entries []entry
	seen := make(map[string]bool)
	add := func(e entry) {
		if !seen[e.path] {
			seen[e.path] = true
			entries = append(entries, e)
		}
	}

	for _, name := range []string{"MEMORY.md", "memory.md"} {
		abs := filepath.Join(s.workspace, name)
		if fi, err := os.Stat(abs); err == nil && fi.Mode().IsRegular() {
			add(entry{abs: abs, path: name, source: store.SourceMemory, mtime: fi.ModTime(), size: fi.Size()})
		}
	}

	memDir := filepath.Join(s.workspace, "memory")
	for _, e := range s.walkMarkdown(memDir, func(abs string) string {
		rel, err := filepath.Rel(s.workspace, abs)
		if err != nil {
			return filepath.ToSlash(abs)
		}
		return filepath.ToSlash(rel)
	}) {
		add(e)
	}

	for _, p := range s.extraPaths {
		fi, err := os.Stat(p)
		if err != nil {
			s.logger.Warn("extra path unavailable", slog.String("path", p), slog.Any("error", err))
			continue
		}
		if fi.IsDir() {
			for _, e := range s.walkMarkdown(p, filepath.ToSlash) {
				add(e)
			}
			continue
		}
		if !isMarkdown(p) {
			s.logger.Warn("extra path is not a markdown file, skipping", slog.String("path", p))
			continue
		}
		add(entry{abs: p, path: filepath.ToSlash(p), source: store.SourceMemory, mtime: fi.ModTime(), size: fi.Size()})
	}

	if s.sessionsEnabled() {
		entries = append(entries, s.enumerateSessions(seen)...)
	}
	return entries
}

// Paths returns the stored identities the current filesystem would sync.
// Stale-path detection compares these against what the store holds.
func (s *Syncer) Paths() []string {
	entries := s.enumerate()
	paths := make([]string, 0, len(entries))
	for _, e := range entries {
		paths = append(paths, e.path)
	}
	return paths
}

// walkMarkdown collects .md files under root, identity-mapped through
// pathOf. A missing root is not an error; the directory is simply absent.
func (s *Syncer) walkMarkdown(root string, pathOf func(string) string) []entry {
	var entries []entry
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			s.logger.Warn("walk error", slog.String("path", p), slog.Any("error", err))
			return nil
		}
		if d.IsDir() || !isMarkdown(p) {
			return nil
		}
		fi, err := d.Info()
		if err != nil {
			return nil
		}
		entries = append(entries, entry{
			abs:    p,
			path:   pathOf(p),
			source: store.SourceMemory,
			mtime:  fi.ModTime(),
			size:   fi.Size(),
		})
		return nil
	})
	if err != nil && !os.IsNotExist(err) {
		s.logger.Warn("walk failed", slog.String("root", root), slog.Any("error", err))
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].path < entries[j].path })
	return entries
}

// enumerateSessions lists *.jsonl transcripts in the sessions directory.
func (s *Syncer) enumerateSessions(seen map[string]bool) []entry {
	dir, err := os.ReadDir(s.sessionsDir)
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Warn("sessions dir unavailable", slog.String("dir", s.sessionsDir), slog.Any("error", err))
		}
		return nil
	}

	var entries []entry
	for _, d := range dir {
		if d.IsDir() || !strings.HasSuffix(d.Name(), ".jsonl") {
			continue
		}
		fi, err := d.Info()
		if err != nil {
			continue
		}
		abs := filepath.Join(s.sessionsDir, d.Name())
		path := filepath.ToSlash(abs)
		if seen[path] {
			continue
		}
		seen[path] = true
		entries = append(entries, entry{
			abs:    abs,
			path:   path,
			source: store.SourceSessions,
			mtime:  fi.ModTime(),
			size:   fi.Size(),
		})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].path < entries[j].path })
	return entries
}

func isMarkdown(p string) bool {
	return strings.EqualFold(filepath.Ext(p), ".md")
}
