package watcher

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// fileStamp is the change-detection fingerprint the polling fallback keeps
// per file.
type fileStamp struct {
	mtime time.Time
	size  int64
}

// pollLoop scans the watch surface on a fixed cadence and synthesizes
// events from snapshot diffs. It serves platforms where fsnotify cannot
// initialize; behavior downstream of the event is identical.
func (w *FSWatcher) pollLoop() {
	prev := w.snapshot()
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.done:
			return
		case <-ticker.C:
			next := w.snapshot()
			if w.diff(prev, next) {
				w.schedule()
			}
			prev = next
		}
	}
}

// snapshot stamps every file on the watch surface.
func (w *FSWatcher) snapshot() map[string]fileStamp {
	stamps := make(map[string]fileStamp)
	for p := range w.rootFiles {
		if fi, err := os.Stat(p); err == nil && fi.Mode().IsRegular() {
			stamps[p] = fileStamp{mtime: fi.ModTime(), size: fi.Size()}
		}
	}
	for _, dir := range w.rootDirs {
		_ = filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
			if err != nil || d.IsDir() || !strings.EqualFold(filepath.Ext(p), ".md") {
				return nil
			}
			if fi, err := d.Info(); err == nil {
				stamps[p] = fileStamp{mtime: fi.ModTime(), size: fi.Size()}
			}
			return nil
		})
	}
	return stamps
}

// diff emits per-file events for changes between snapshots and reports
// whether anything changed.
func (w *FSWatcher) diff(prev, next map[string]fileStamp) bool {
	changed := false
	emit := func(path string, op Op) {
		changed = true
		if w.onEvent != nil {
			w.onEvent(Event{Path: path, Op: op})
		}
	}

	for p, stamp := range next {
		old, ok := prev[p]
		switch {
		case !ok:
			emit(p, OpAdd)
		case old != stamp:
			emit(p, OpChange)
		}
	}
	for p := range prev {
		if _, ok := next[p]; !ok {
			emit(p, OpUnlink)
		}
	}
	return changed
}
