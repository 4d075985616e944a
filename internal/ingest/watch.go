package ingest

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/sync/errgroup"
)

// Watch ingests JSON files created or rewritten in dir until ctx ends. Each
// file is read once it has been quiet for the settle delay; up to the
// configured number of workers ingest files at the same time.
func (i *Ingester) Watch(ctx context.Context, dir string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watching %s: %w", dir, err)
	}
	i.log.Infof("watching %s for fingerprint files", dir)

	var g errgroup.Group
	g.SetLimit(i.workers)
	defer g.Wait()

	ready := make(chan string)
	done := make(chan struct{})
	pending := make(map[string]*time.Timer)
	defer func() {
		close(done)
		for _, t := range pending {
			t.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !wantEvent(event) {
				continue
			}
			name := event.Name
			if t, ok := pending[name]; ok {
				t.Reset(i.settle)
				continue
			}
			pending[name] = time.AfterFunc(i.settle, func() {
				deliver(ctx, done, ready, name)
			})

		case name := <-ready:
			if _, ok := pending[name]; !ok {
				continue
			}
			delete(pending, name)
			g.Go(func() error {
				ids, err := i.ingestFile(ctx, name)
				if err == nil {
					i.log.Infof("%s: added %d tracks", filepath.Base(name), len(ids))
				}
				return nil
			})

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			i.log.Errorf("watcher error: %v", err)
		}
	}
}

// deliver hands a settled file name to the watch loop. It gives up once the
// loop has returned or ctx has ended.
func deliver(ctx context.Context, done <-chan struct{}, ready chan<- string, name string) {
	select {
	case ready <- name:
	case <-done:
	case <-ctx.Done():
	}
}

func wantEvent(event fsnotify.Event) bool {
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
		return false
	}
	base := filepath.Base(event.Name)
	if strings.HasPrefix(base, ".") || strings.HasSuffix(base, ".tmp") {
		return false
	}
	return strings.EqualFold(filepath.Ext(base), ".json")
}
