// Package ingest loads fingerprint JSON files into a track store, either as
// a one-shot batch or by watching a drop folder.
package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/himanishpuri/codematch/pkg/logger"
	"github.com/himanishpuri/codematch/pkg/trackstore"
	"golang.org/x/sync/errgroup"
)

// Adder is the part of the track store the ingester writes to.
type Adder interface {
	AddTrack(ctx context.Context, fp trackstore.Fingerprint, artistID string) (uint, error)
}

// Record is one fingerprint as it appears in an ingest file.
type Record struct {
	trackstore.Fingerprint
	ArtistID string `json:"artist_id,omitempty"`
}

// ReadFingerprints decodes a file holding either a single fingerprint object
// or an array of them.
func ReadFingerprints(path string) ([]Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, fmt.Errorf("%s: empty file", path)
	}

	if data[0] == '[' {
		var records []Record
		if err := json.Unmarshal(data, &records); err != nil {
			return nil, fmt.Errorf("decoding %s: %w", path, err)
		}
		return records, nil
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", path, err)
	}
	return []Record{rec}, nil
}

type Ingester struct {
	store   Adder
	log     trackstore.Logger
	workers int
	settle  time.Duration
}

type Option func(*Ingester)

// WithWorkers bounds how many files are ingested at once.
func WithWorkers(n int) Option {
	return func(i *Ingester) {
		if n > 0 {
			i.workers = n
		}
	}
}

// WithSettleDelay sets how long Watch waits after the last event on a file
// before reading it.
func WithSettleDelay(d time.Duration) Option {
	return func(i *Ingester) {
		if d > 0 {
			i.settle = d
		}
	}
}

func WithLogger(log trackstore.Logger) Option {
	return func(i *Ingester) {
		i.log = log
	}
}

func New(store Adder, opts ...Option) *Ingester {
	i := &Ingester{
		store:   store,
		workers: 4,
		settle:  500 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(i)
	}
	if i.log == nil {
		i.log = logger.GetLogger().WithPrefix("ingest:")
	}
	return i
}

// FileError records why one file could not be fully ingested.
type FileError struct {
	Path string
	Err  error
}

func (e FileError) Error() string { return e.Path + ": " + e.Err.Error() }

func (e FileError) Unwrap() error { return e.Err }

type Summary struct {
	Files    int
	Tracks   int
	TrackIDs []uint
	Failed   []FileError
}

func (s *Summary) record(path string, ids []uint, err error) {
	s.Files++
	s.Tracks += len(ids)
	s.TrackIDs = append(s.TrackIDs, ids...)
	if err != nil {
		s.Failed = append(s.Failed, FileError{Path: path, Err: err})
	}
}

// IngestFiles adds every fingerprint in paths. A file that fails is recorded
// in the summary and the rest continue; the returned error is non-nil only
// when ctx ends first.
func (i *Ingester) IngestFiles(ctx context.Context, paths []string) (Summary, error) {
	start := time.Now()

	var (
		mu      sync.Mutex
		summary Summary
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(i.workers)

	for _, path := range paths {
		if gctx.Err() != nil {
			break
		}
		path := path
		g.Go(func() error {
			ids, err := i.ingestFile(gctx, path)
			mu.Lock()
			summary.record(path, ids, err)
			mu.Unlock()
			return nil
		})
	}
	g.Wait()

	i.log.Infof("ingested %s tracks from %s files in %v (%d failed)",
		humanize.Comma(int64(summary.Tracks)), humanize.Comma(int64(summary.Files)),
		time.Since(start).Round(time.Millisecond), len(summary.Failed))

	return summary, ctx.Err()
}

// ingestFile adds the file's fingerprints in order and stops at the first
// failure. Tracks added before the failure stay in the store.
func (i *Ingester) ingestFile(ctx context.Context, path string) ([]uint, error) {
	records, err := ReadFingerprints(path)
	if err != nil {
		i.log.Errorf("%v", err)
		return nil, err
	}

	ids := make([]uint, 0, len(records))
	for n, rec := range records {
		id, err := i.store.AddTrack(ctx, rec.Fingerprint, rec.ArtistID)
		if err != nil {
			err = fmt.Errorf("fingerprint %d (%q): %w", n, rec.Track, err)
			i.log.Errorf("%s: %v", path, err)
			return ids, err
		}
		i.log.Debugf("%s: added %q as track %d", path, rec.Track, id)
		ids = append(ids, id)
	}
	return ids, nil
}
