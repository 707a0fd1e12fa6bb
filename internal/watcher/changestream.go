package watcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/openclaw/recall/internal/logging"
)

// DefaultChangeStreamDebounce is the quiet window for pooling change
// stream notifications before the callback fires.
const DefaultChangeStreamDebounce = 1000 * time.Millisecond

// notReplicaSetCode is the server error MongoDB returns when change
// streams are requested on a standalone deployment.
const notReplicaSetCode = 40573

// ChangeSource is the slice of the collection API the watcher opens its
// stream on. *mongo.Collection satisfies it.
type ChangeSource interface {
	Watch(ctx context.Context, pipeline interface{}, opts ...*options.ChangeStreamOptions) (*mongo.ChangeStream, error)
}

// ChangeStreamConfig configures a ChangeStreamWatcher.
type ChangeStreamConfig struct {
	// Collection is the chunks collection to watch.
	Collection ChangeSource

	// Debounce is the quiet window before OnPaths fires. Zero means
	// DefaultChangeStreamDebounce.
	Debounce time.Duration

	// OnPaths receives the distinct paths touched since the last
	// callback. Required.
	OnPaths func(paths []string)

	Logger *slog.Logger
}

// ChangeStreamWatcher follows a MongoDB change stream on the chunks
// collection and reports which stored paths other writers touched. On
// standalone deployments, where change streams are unsupported, Start
// detects the condition and the watcher stays inert.
type ChangeStreamWatcher struct {
	coll     ChangeSource
	debounce time.Duration
	onPaths  func([]string)
	logger   *slog.Logger

	mu      sync.Mutex
	pending map[string]struct{}
	timer   *time.Timer
	closed  bool

	cancel context.CancelFunc
	done   chan struct{}
}

// changeEvent is the slice of the change stream document we care about.
type changeEvent struct {
	OperationType string `bson:"operationType"`
	DocumentKey   struct {
		ID string `bson:"_id"`
	} `bson:"documentKey"`
	FullDocument struct {
		Path string `bson:"path"`
	} `bson:"fullDocument"`
}

// NewChangeStreamWatcher validates cfg and builds an unstarted watcher.
func NewChangeStreamWatcher(cfg ChangeStreamConfig) (*ChangeStreamWatcher, error) {
	if cfg.Collection == nil {
		return nil, errors.New("collection is required")
	}
	if cfg.OnPaths == nil {
		return nil, errors.New("paths callback is required")
	}
	debounce := cfg.Debounce
	if debounce <= 0 {
		debounce = DefaultChangeStreamDebounce
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &ChangeStreamWatcher{
		coll:     cfg.Collection,
		debounce: debounce,
		onPaths:  cfg.OnPaths,
		logger:   logging.ForSubsystem(logger, "watcher"),
		pending:  make(map[string]struct{}),
		done:     make(chan struct{}),
	}, nil
}

// Start opens the change stream and begins consuming events. When the
// deployment does not support change streams the watcher logs at debug
// level and returns nil without starting anything.
func (w *ChangeStreamWatcher) Start(ctx context.Context) error {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.D{
			{Key: "operationType", Value: bson.D{
				{Key: "$in", Value: bson.A{"insert", "update", "replace", "delete"}},
			}},
		}}},
	}
	opts := options.ChangeStream().SetFullDocument(options.UpdateLookup)

	stream, err := w.coll.Watch(ctx, pipeline, opts)
	if err != nil {
		if isNotReplicaSet(err) {
			w.logger.Debug("change streams unavailable, filesystem watch only")
			return nil
		}
		return fmt.Errorf("open change stream: %w", err)
	}

	// The stream's lifetime belongs to Close, not the startup context.
	streamCtx, cancel := context.WithCancel(context.Background())
	w.cancel = cancel
	go w.consume(streamCtx, stream)
	return nil
}

// consume drains the stream until it errors or the watcher closes.
func (w *ChangeStreamWatcher) consume(ctx context.Context, stream *mongo.ChangeStream) {
	defer close(w.done)
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = stream.Close(closeCtx)
	}()

	for stream.Next(ctx) {
		var ev changeEvent
		if err := stream.Decode(&ev); err != nil {
			w.logger.Warn("change event decode failed", "error", err)
			continue
		}
		w.observe(ev.OperationType, ev.DocumentKey.ID, ev.FullDocument.Path)
	}

	if err := stream.Err(); err != nil && ctx.Err() == nil {
		if isNotReplicaSet(err) {
			w.logger.Debug("change streams unavailable, filesystem watch only")
			return
		}
		w.logger.Warn("change stream ended", "error", err)
	}
}

// observe pools the path touched by one change event and arms the
// debounce timer. Delete events carry no full document, so the path is
// recovered from the composite chunk id.
func (w *ChangeStreamWatcher) observe(op, id, path string) {
	if path == "" && op == "delete" {
		path = pathFromChunkID(id)
	}
	if path == "" {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	w.pending[path] = struct{}{}
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.flush)
}

// flush hands the pooled paths to the callback and resets the pool.
func (w *ChangeStreamWatcher) flush() {
	w.mu.Lock()
	if w.closed || len(w.pending) == 0 {
		w.mu.Unlock()
		return
	}
	paths := make([]string, 0, len(w.pending))
	for p := range w.pending {
		paths = append(paths, p)
	}
	w.pending = make(map[string]struct{})
	w.mu.Unlock()

	w.onPaths(paths)
}

// Close stops the stream and the debounce timer. Safe to call multiple
// times and on a watcher that never started.
func (w *ChangeStreamWatcher) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	if w.timer != nil {
		w.timer.Stop()
	}
	cancel := w.cancel
	w.mu.Unlock()

	if cancel != nil {
		cancel()
		<-w.done
	}
	return nil
}

// pathFromChunkID recovers a stored path from the composite chunk id
// "{path}:{startLine}:{endLine}". Paths may themselves contain colons,
// so only the last two segments are stripped.
func pathFromChunkID(id string) string {
	i := strings.LastIndex(id, ":")
	if i < 0 {
		return id
	}
	j := strings.LastIndex(id[:i], ":")
	if j < 0 {
		return id
	}
	return id[:j]
}

// isNotReplicaSet reports whether err is MongoDB rejecting change
// streams on a standalone deployment.
func isNotReplicaSet(err error) bool {
	if err == nil {
		return false
	}
	var srvErr mongo.ServerError
	if errors.As(err, &srvErr) && srvErr.HasErrorCode(notReplicaSetCode) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "not a replica set") ||
		strings.Contains(msg, "only supported on replica sets")
}
