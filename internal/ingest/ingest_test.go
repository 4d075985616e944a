package ingest

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/himanishpuri/codematch/pkg/logger"
	"github.com/himanishpuri/codematch/pkg/trackstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errRejected = errors.New("rejected")

type fakeAdder struct {
	mu      sync.Mutex
	nextID  uint
	added   []Record
	rejects string
}

func (f *fakeAdder) AddTrack(_ context.Context, fp trackstore.Fingerprint, artistID string) (uint, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if fp.Track == f.rejects {
		return 0, errRejected
	}
	f.nextID++
	f.added = append(f.added, Record{Fingerprint: fp, ArtistID: artistID})
	return f.nextID, nil
}

func (f *fakeAdder) names() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	names := make([]string, 0, len(f.added))
	for _, r := range f.added {
		names = append(names, r.Track)
	}
	return names
}

func quietLogger() *logger.Logger {
	return logger.New(logger.Config{Level: logger.FATAL, Output: io.Discard})
}

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

const singleFP = `{"track": "Solo", "length": "180", "codever": "4.12", "codes": [1, 2], "times": [0, 10], "artist_id": "AR1"}`

const multiFP = `[
  {"track": "First", "length": 200, "codever": "4.12", "codes": [3], "times": [5]},
  {"track": "Second", "length": 201.7, "codever": "4.12", "codes": [4, 5], "times": [0, 1]}
]`

func TestReadFingerprints(t *testing.T) {
	dir := t.TempDir()

	t.Run("single object", func(t *testing.T) {
		recs, err := ReadFingerprints(writeFile(t, dir, "one.json", singleFP))
		require.NoError(t, err)
		require.Len(t, recs, 1)
		assert.Equal(t, "Solo", recs[0].Track)
		assert.Equal(t, "AR1", recs[0].ArtistID)
		assert.Equal(t, []uint32{1, 2}, recs[0].Codes)
		secs, err := recs[0].LengthSeconds()
		require.NoError(t, err)
		assert.Equal(t, 180, secs)
	})

	t.Run("array", func(t *testing.T) {
		recs, err := ReadFingerprints(writeFile(t, dir, "many.json", multiFP))
		require.NoError(t, err)
		require.Len(t, recs, 2)
		assert.Equal(t, "Second", recs[1].Track)
		assert.Empty(t, recs[1].ArtistID)
	})

	t.Run("empty", func(t *testing.T) {
		_, err := ReadFingerprints(writeFile(t, dir, "empty.json", "  \n"))
		assert.Error(t, err)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := ReadFingerprints(writeFile(t, dir, "bad.json", "{not json"))
		assert.Error(t, err)
	})

	t.Run("missing", func(t *testing.T) {
		_, err := ReadFingerprints(filepath.Join(dir, "nope.json"))
		assert.ErrorIs(t, err, os.ErrNotExist)
	})
}

func TestIngestFiles(t *testing.T) {
	dir := t.TempDir()
	store := &fakeAdder{rejects: "Broken"}
	ing := New(store, WithWorkers(2), WithLogger(quietLogger()))

	paths := []string{
		writeFile(t, dir, "one.json", singleFP),
		writeFile(t, dir, "many.json", multiFP),
		writeFile(t, dir, "bad.json", "{"),
		writeFile(t, dir, "rejected.json", `{"track": "Broken", "length": 1, "codever": "4.12", "codes": [], "times": []}`),
	}

	summary, err := ing.IngestFiles(context.Background(), paths)
	require.NoError(t, err)

	assert.Equal(t, 4, summary.Files)
	assert.Equal(t, 3, summary.Tracks)
	assert.Len(t, summary.TrackIDs, 3)
	assert.ElementsMatch(t, []string{"Solo", "First", "Second"}, store.names())

	require.Len(t, summary.Failed, 2)
	failed := map[string]error{}
	for _, fe := range summary.Failed {
		failed[filepath.Base(fe.Path)] = fe
	}
	assert.Contains(t, failed, "bad.json")
	assert.ErrorIs(t, failed["rejected.json"], errRejected)
}

func TestIngestFilesCanceled(t *testing.T) {
	dir := t.TempDir()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ing := New(&fakeAdder{}, WithLogger(quietLogger()))
	summary, err := ing.IngestFiles(ctx, []string{writeFile(t, dir, "one.json", singleFP)})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, summary.Files)
}

func TestIngestFileKeepsEarlierTracks(t *testing.T) {
	dir := t.TempDir()
	store := &fakeAdder{rejects: "Second"}
	ing := New(store, WithLogger(quietLogger()))

	ids, err := ing.ingestFile(context.Background(), writeFile(t, dir, "many.json", multiFP))
	assert.ErrorIs(t, err, errRejected)
	assert.Equal(t, []uint{1}, ids)
	assert.Equal(t, []string{"First"}, store.names())
}
