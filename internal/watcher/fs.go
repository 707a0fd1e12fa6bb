package watcher

import (
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/openclaw/recall/internal/logging"
)

// Op classifies a filesystem event.
type Op string

const (
	OpAdd    Op = "add"
	OpChange Op = "change"
	OpUnlink Op = "unlink"
)

// Event is one relevant filesystem change.
type Event struct {
	Path string
	Op   Op
}

// DefaultDebounce is how long the filesystem watcher waits for a burst to
// settle before firing the sync callback.
const DefaultDebounce = 500 * time.Millisecond

// defaultPollInterval drives the mtime scanner used when fsnotify cannot
// initialize.
const defaultPollInterval = 5 * time.Second

// Config wires an FSWatcher.
type Config struct {
	// Workspace is the directory holding MEMORY.md, memory.md, and the
	// memory/ tree (required).
	Workspace string

	// ExtraPaths are additional watched files or directories.
	ExtraPaths []string

	// Debounce overrides the quiet window (default: 500ms).
	Debounce time.Duration

	// PollInterval overrides the fallback scanner cadence (default: 5s).
	PollInterval time.Duration

	// OnEvent fires once per relevant raw event, before debouncing.
	// Callers use it to flip their dirty flag immediately. Optional.
	OnEvent func(Event)

	// OnSync fires once per quiet window (required).
	OnSync func()

	Logger *slog.Logger
}

// FSWatcher watches the memory surface and fires a debounced callback.
// When fsnotify cannot initialize it degrades to mtime polling.
type FSWatcher struct {
	fsw          *fsnotify.Watcher
	workspace    string
	rootFiles    map[string]bool // exact watched file paths
	rootDirs     []string        // recursively watched directories
	debounce     time.Duration
	pollInterval time.Duration
	onEvent      func(Event)
	onSync       func()
	logger       *slog.Logger

	mu     sync.Mutex
	timer  *time.Timer
	closed bool
	done   chan struct{}
}

// NewFSWatcher builds a watcher over the workspace memory surface. The
// watcher is inert until Start.
func NewFSWatcher(cfg Config) (*FSWatcher, error) {
	if cfg.Workspace == "" {
		return nil, fmt.Errorf("workspace is required")
	}
	if cfg.OnSync == nil {
		return nil, fmt.Errorf("sync callback is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}

	w := &FSWatcher{
		workspace:    cfg.Workspace,
		rootFiles:    make(map[string]bool),
		debounce:     cfg.Debounce,
		pollInterval: cfg.PollInterval,
		onEvent:      cfg.OnEvent,
		onSync:       cfg.OnSync,
		logger:       logging.ForSubsystem(logger, "watcher"),
		done:         make(chan struct{}),
	}

	for _, name := range []string{"MEMORY.md", "memory.md"} {
		w.rootFiles[filepath.Join(cfg.Workspace, name)] = true
	}
	w.rootDirs = append(w.rootDirs, filepath.Join(cfg.Workspace, "memory"))
	for _, p := range cfg.ExtraPaths {
		if fi, err := os.Stat(p); err == nil && fi.IsDir() {
			w.rootDirs = append(w.rootDirs, p)
		} else {
			w.rootFiles[p] = true
		}
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		w.logger.Warn("fsnotify unavailable, falling back to polling",
			slog.Any("error", err))
		return w, nil
	}
	w.fsw = fsw
	return w, nil
}

// Start registers the watch surface and begins delivering callbacks.
func (w *FSWatcher) Start() error {
	if w.fsw == nil {
		go w.pollLoop()
		return nil
	}

	// The workspace root covers creates of MEMORY.md and memory.md; each
	// memory directory tree is added recursively.
	if err := w.fsw.Add(w.workspace); err != nil {
		return fmt.Errorf("watch workspace: %w", err)
	}
	for _, dir := range w.rootDirs {
		w.addRecursive(dir)
	}
	for p := range w.rootFiles {
		// Covered by the workspace watch when inside it; extra files need
		// their parent directory watched so recreates are seen.
		if filepath.Dir(p) != w.workspace {
			if err := w.fsw.Add(filepath.Dir(p)); err != nil {
				w.logger.Warn("watch extra path failed",
					slog.String("path", p), slog.Any("error", err))
			}
		}
	}

	go w.loop()
	return nil
}

// addRecursive watches dir and every subdirectory. Missing directories are
// fine; they get picked up if created later under a watched parent.
func (w *FSWatcher) addRecursive(dir string) {
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if err := w.fsw.Add(p); err != nil {
				w.logger.Warn("watch dir failed", slog.String("dir", p), slog.Any("error", err))
			}
		}
		return nil
	})
	if err != nil && !os.IsNotExist(err) {
		w.logger.Warn("watch walk failed", slog.String("dir", dir), slog.Any("error", err))
	}
}

func (w *FSWatcher) loop() {
	for {
		select {
		case <-w.done:
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handle(ev)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			// Watch errors are not fatal; keep watching.
			w.logger.Warn("watch error", slog.Any("error", err))
		}
	}
}

func (w *FSWatcher) handle(ev fsnotify.Event) {
	op := mapOp(ev.Op)
	if op == "" {
		return
	}

	// A directory created under a watched tree needs its own watch, and
	// may already contain files written before the watch landed.
	if ev.Op.Has(fsnotify.Create) {
		if fi, err := os.Stat(ev.Name); err == nil && fi.IsDir() {
			if w.underRootDir(ev.Name) {
				w.addRecursive(ev.Name)
				w.schedule()
			}
			return
		}
	}

	if !w.relevant(ev.Name) {
		return
	}
	if w.onEvent != nil {
		w.onEvent(Event{Path: ev.Name, Op: op})
	}
	w.schedule()
}

// relevant reports whether a path belongs to the watch surface: one of the
// root files, or a markdown file under a watched directory.
func (w *FSWatcher) relevant(path string) bool {
	if w.rootFiles[path] {
		return true
	}
	return w.underRootDir(path) && strings.EqualFold(filepath.Ext(path), ".md")
}

func (w *FSWatcher) underRootDir(path string) bool {
	for _, dir := range w.rootDirs {
		if path == dir || strings.HasPrefix(path, dir+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

// schedule arms the debounce timer; a burst keeps pushing it back so only
// the final event fires the callback.
func (w *FSWatcher) schedule() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.onSync)
}

// Close stops watching and cancels any pending callback. Idempotent.
func (w *FSWatcher) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	if w.timer != nil {
		w.timer.Stop()
	}
	w.mu.Unlock()

	close(w.done)
	if w.fsw != nil {
		return w.fsw.Close()
	}
	return nil
}

func mapOp(op fsnotify.Op) Op {
	switch {
	case op.Has(fsnotify.Create):
		return OpAdd
	case op.Has(fsnotify.Write):
		return OpChange
	case op.Has(fsnotify.Remove), op.Has(fsnotify.Rename):
		return OpUnlink
	default:
		// Chmod and friends do not change content.
		return ""
	}
}
