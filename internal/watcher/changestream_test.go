package watcher

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// watchStub records the Watch call and fails with a canned error. The
// driver's ChangeStream cannot be constructed outside a live deployment,
// so only the open path is exercised through it; event pooling is tested
// against observe directly.
type watchStub struct {
	err      error
	calls    int
	pipeline interface{}
	opts     []*options.ChangeStreamOptions
}

func (s *watchStub) Watch(_ context.Context, pipeline interface{}, opts ...*options.ChangeStreamOptions) (*mongo.ChangeStream, error) {
	s.calls++
	s.pipeline = pipeline
	s.opts = opts
	return nil, s.err
}

func newCSWatcher(t *testing.T, src ChangeSource, debounce time.Duration, onPaths func([]string)) *ChangeStreamWatcher {
	t.Helper()
	if onPaths == nil {
		onPaths = func([]string) {}
	}
	w, err := NewChangeStreamWatcher(ChangeStreamConfig{
		Collection: src,
		Debounce:   debounce,
		OnPaths:    onPaths,
		Logger:     discardLogger(),
	})
	require.NoError(t, err)
	return w
}

func TestNewChangeStreamWatcher_Validation(t *testing.T) {
	_, err := NewChangeStreamWatcher(ChangeStreamConfig{OnPaths: func([]string) {}})
	require.ErrorContains(t, err, "collection is required")

	_, err = NewChangeStreamWatcher(ChangeStreamConfig{Collection: &watchStub{}})
	require.ErrorContains(t, err, "paths callback is required")
}

func TestNewChangeStreamWatcher_DefaultDebounce(t *testing.T) {
	w := newCSWatcher(t, &watchStub{}, 0, nil)
	assert.Equal(t, DefaultChangeStreamDebounce, w.debounce)
}

func TestChangeStreamWatcher_StartSendsMatchPipeline(t *testing.T) {
	stub := &watchStub{err: errors.New("probe")}
	w := newCSWatcher(t, stub, 0, nil)

	_ = w.Start(context.Background())

	require.Equal(t, 1, stub.calls)
	want := mongo.Pipeline{
		{{Key: "$match", Value: bson.D{
			{Key: "operationType", Value: bson.D{
				{Key: "$in", Value: bson.A{"insert", "update", "replace", "delete"}},
			}},
		}}},
	}
	assert.Equal(t, want, stub.pipeline)
	require.Len(t, stub.opts, 1)
	require.NotNil(t, stub.opts[0].FullDocument)
	assert.Equal(t, options.UpdateLookup, *stub.opts[0].FullDocument)
}

func TestChangeStreamWatcher_StartNotReplicaSetStaysQuiet(t *testing.T) {
	stub := &watchStub{err: mongo.CommandError{
		Code:    40573,
		Message: "The $changeStream stage is only supported on replica sets",
	}}
	w := newCSWatcher(t, stub, 0, nil)

	require.NoError(t, w.Start(context.Background()))
	require.NoError(t, w.Close())
}

func TestChangeStreamWatcher_StartOtherErrorPropagates(t *testing.T) {
	stub := &watchStub{err: errors.New("network unreachable")}
	w := newCSWatcher(t, stub, 0, nil)

	err := w.Start(context.Background())
	require.ErrorContains(t, err, "open change stream")
}

func TestChangeStreamWatcher_ObservePoolsPathsAcrossEvents(t *testing.T) {
	received := make(chan []string, 1)
	w := newCSWatcher(t, &watchStub{}, 40*time.Millisecond, func(paths []string) {
		received <- paths
	})

	w.observe("insert", "MEMORY.md:1:10", "MEMORY.md")
	w.observe("update", "MEMORY.md:11:20", "MEMORY.md")
	w.observe("replace", "memory/notes.md:1:5", "memory/notes.md")
	w.observe("delete", "memory/old.md:1:5", "")

	select {
	case paths := <-received:
		assert.ElementsMatch(t,
			[]string{"MEMORY.md", "memory/notes.md", "memory/old.md"}, paths)
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for pooled paths")
	}

	// The pool drained; nothing else fires without new events.
	select {
	case paths := <-received:
		t.Fatalf("unexpected second callback: %v", paths)
	case <-time.After(150 * time.Millisecond):
	}
}

func TestChangeStreamWatcher_ObserveIgnoresPathlessNonDelete(t *testing.T) {
	fired := make(chan []string, 1)
	w := newCSWatcher(t, &watchStub{}, 30*time.Millisecond, func(paths []string) {
		fired <- paths
	})

	// An update whose post-image lookup raced a delete has no path to
	// report.
	w.observe("update", "MEMORY.md:1:10", "")

	select {
	case paths := <-fired:
		t.Fatalf("unexpected callback: %v", paths)
	case <-time.After(150 * time.Millisecond):
	}
}

func TestChangeStreamWatcher_CloseCancelsPendingFlush(t *testing.T) {
	fired := make(chan []string, 1)
	w := newCSWatcher(t, &watchStub{}, 200*time.Millisecond, func(paths []string) {
		fired <- paths
	})

	w.observe("insert", "MEMORY.md:1:10", "MEMORY.md")
	require.NoError(t, w.Close())

	select {
	case paths := <-fired:
		t.Fatalf("callback fired after close: %v", paths)
	case <-time.After(400 * time.Millisecond):
	}

	// Events after close are dropped.
	w.observe("insert", "MEMORY.md:1:10", "MEMORY.md")
	assert.Empty(t, w.pending)
}

func TestChangeStreamWatcher_CloseIsIdempotent(t *testing.T) {
	w := newCSWatcher(t, &watchStub{}, 0, nil)
	require.NoError(t, w.Close())
	require.NoError(t, w.Close())
}

func TestPathFromChunkID(t *testing.T) {
	tests := []struct {
		name string
		id   string
		want string
	}{
		{name: "workspace file", id: "MEMORY.md:1:40", want: "MEMORY.md"},
		{name: "nested file", id: "memory/notes/team.md:12:80", want: "memory/notes/team.md"},
		{name: "colons in path", id: "C:/work/notes.md:3:9", want: "C:/work/notes.md"},
		{name: "single colon", id: "odd:id", want: "odd:id"},
		{name: "no colons", id: "opaque", want: "opaque"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, pathFromChunkID(tt.id))
		})
	}
}

func TestIsNotReplicaSet(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{
			name: "server code",
			err:  mongo.CommandError{Code: 40573, Message: "unsupported"},
			want: true,
		},
		{
			name: "wrapped server code",
			err:  fmt.Errorf("open: %w", mongo.CommandError{Code: 40573}),
			want: true,
		},
		{
			name: "replica set message",
			err:  errors.New("The $changeStream stage is only supported on replica sets"),
			want: true,
		},
		{name: "standalone message", err: errors.New("node is not a replica set member"), want: true},
		{name: "unrelated server error", err: mongo.CommandError{Code: 8000, Message: "rate limited"}, want: false},
		{name: "unrelated error", err: errors.New("connection refused"), want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isNotReplicaSet(tt.err))
		})
	}
}
