package ingest

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/himanishpuri/codematch/pkg/trackstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatchIngestsDroppedFiles(t *testing.T) {
	dir := t.TempDir()
	store := &fakeAdder{}
	ing := New(store, WithSettleDelay(20*time.Millisecond), WithLogger(quietLogger()))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- ing.Watch(ctx, dir) }()

	// Give the watcher time to register before dropping files.
	time.Sleep(100 * time.Millisecond)

	writeFile(t, dir, ".hidden.json", singleFP)
	writeFile(t, dir, "partial.json.tmp", singleFP)
	writeFile(t, dir, "notes.txt", singleFP)

	tmp := writeFile(t, dir, "drop.tmp", multiFP)
	require.NoError(t, os.Rename(tmp, filepath.Join(dir, "drop.json")))

	require.Eventually(t, func() bool {
		return len(store.names()) == 2
	}, 3*time.Second, 20*time.Millisecond)

	// Nothing else shows up once the ignored files had their chance.
	time.Sleep(100 * time.Millisecond)
	assert.ElementsMatch(t, []string{"First", "Second"}, store.names())

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Watch did not return after cancel")
	}
}

func TestWatchMissingDir(t *testing.T) {
	ing := New(&fakeAdder{}, WithLogger(quietLogger()))
	err := ing.Watch(context.Background(), filepath.Join(t.TempDir(), "absent"))
	assert.Error(t, err)
}

func TestWantEvent(t *testing.T) {
	cases := []struct {
		event fsnotify.Event
		want  bool
	}{
		{fsnotify.Event{Name: "/in/a.json", Op: fsnotify.Create}, true},
		{fsnotify.Event{Name: "/in/a.JSON", Op: fsnotify.Write}, true},
		{fsnotify.Event{Name: "/in/a.json", Op: fsnotify.Remove}, false},
		{fsnotify.Event{Name: "/in/a.json", Op: fsnotify.Chmod}, false},
		{fsnotify.Event{Name: "/in/.a.json", Op: fsnotify.Create}, false},
		{fsnotify.Event{Name: "/in/a.json.tmp", Op: fsnotify.Create}, false},
		{fsnotify.Event{Name: "/in/a.txt", Op: fsnotify.Create}, false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, wantEvent(tc.event), tc.event.String())
	}
}

// gatedAdder holds every AddTrack until release is closed.
type gatedAdder struct {
	inflight atomic.Int32
	added    atomic.Int32
	release  chan struct{}
}

func (g *gatedAdder) AddTrack(ctx context.Context, _ trackstore.Fingerprint, _ string) (uint, error) {
	g.inflight.Add(1)
	defer g.inflight.Add(-1)
	select {
	case <-g.release:
	case <-ctx.Done():
		return 0, ctx.Err()
	}
	return uint(g.added.Add(1)), nil
}

func TestWatchIngestsWithWorkers(t *testing.T) {
	dir := t.TempDir()
	store := &gatedAdder{release: make(chan struct{})}
	ing := New(store,
		WithWorkers(2),
		WithSettleDelay(20*time.Millisecond),
		WithLogger(quietLogger()),
	)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- ing.Watch(ctx, dir) }()
	time.Sleep(100 * time.Millisecond)

	writeFile(t, dir, "a.json", singleFP)
	writeFile(t, dir, "b.json", singleFP)

	require.Eventually(t, func() bool {
		return store.inflight.Load() == 2
	}, 3*time.Second, 10*time.Millisecond, "both files should be ingesting at once")

	close(store.release)
	require.Eventually(t, func() bool {
		return store.added.Load() == 2
	}, 3*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Watch did not return after cancel")
	}
}

func TestDeliverStopsWhenWatchReturns(t *testing.T) {
	ready := make(chan string)
	done := make(chan struct{})
	returned := make(chan struct{})

	go func() {
		deliver(context.Background(), done, ready, "late.json")
		close(returned)
	}()

	close(done)
	select {
	case <-returned:
	case <-time.After(time.Second):
		t.Fatal("deliver blocked after the watch loop was gone")
	}
}

func TestDeliverHandsOffName(t *testing.T) {
	ready := make(chan string, 1)
	deliver(context.Background(), make(chan struct{}), ready, "x.json")
	assert.Equal(t, "x.json", <-ready)
}
