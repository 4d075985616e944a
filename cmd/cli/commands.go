package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/himanishpuri/codematch/internal/config"
	"github.com/himanishpuri/codematch/internal/ingest"
	"github.com/himanishpuri/codematch/pkg/trackstore"
)

func handleAdd(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("add", flag.ContinueOnError)
	artist := fs.String("artist", "", "Artist ID for fingerprints that do not carry one")
	files, err := parseCommand(fs, args)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return errors.New("usage: codematch add <fingerprint.json>... [-artist <id>]")
	}

	for _, path := range files {
		records, err := ingest.ReadFingerprints(path)
		if err != nil {
			return err
		}
		for _, rec := range records {
			artistID := rec.ArtistID
			if artistID == "" {
				artistID = *artist
			}

			id, err := a.store.AddTrack(ctx, rec.Fingerprint, artistID)
			if err != nil {
				return fmt.Errorf("adding %q from %s: %w", rec.Track, path, err)
			}
			fmt.Printf("✅ Added \"%s\" (ID: %d, %s codes)\n", rec.Track, id, humanize.Comma(int64(len(rec.Codes))))
		}
	}
	return nil
}

func handleMatch(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("match", flag.ContinueOnError)
	n := fs.Int("n", 0, "Number of candidates (default: match.max_results)")
	files, err := parseCommand(fs, args)
	if err != nil {
		return err
	}
	if len(files) != 1 {
		return errors.New("usage: codematch match <fingerprint.json> [-n <results>]")
	}

	records, err := ingest.ReadFingerprints(files[0])
	if err != nil {
		return err
	}

	for _, rec := range records {
		start := time.Now()
		matches, err := a.store.MatchFingerprint(ctx, rec.Fingerprint, *n)
		if err != nil {
			return err
		}
		a.log.Infof("matched %q against the store in %v", rec.Track, time.Since(start).Round(time.Millisecond))

		if len(matches) == 0 {
			fmt.Printf("\n❌ No matches for \"%s\"\n", rec.Track)
			continue
		}

		fmt.Printf("\n🎵 Top matches for \"%s\" (%s query codes):\n\n", rec.Track, humanize.Comma(int64(len(rec.Codes))))
		for i, m := range matches {
			name := "(unknown)"
			if t, err := a.store.GetTrack(ctx, m.TrackID); err == nil {
				name = t.Name
			}
			fmt.Printf("%d. \"%s\" (ID: %d)\n", i+1, name, m.TrackID)
			fmt.Printf("   Score: %d overlapping codes\n", m.Score)
		}
	}
	return nil
}

func handleGet(ctx context.Context, a *app, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: codematch get <track_id>")
	}
	id, err := parseTrackID(args[0])
	if err != nil {
		return err
	}

	track, err := a.store.GetTrack(ctx, id)
	if err != nil {
		return err
	}
	return printTrack(ctx, a, track)
}

func handleFind(ctx context.Context, a *app, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: codematch find <name_pattern>")
	}

	track, err := a.store.GetTrackByName(ctx, args[0])
	if errors.Is(err, trackstore.ErrTrackNotFound) {
		fmt.Printf("\n📭 No track matches %q\n", args[0])
		return nil
	}
	if err != nil {
		return err
	}
	return printTrack(ctx, a, track)
}

func handleList(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("list", flag.ContinueOnError)
	offset := fs.Int("offset", 0, "Tracks to skip")
	limit := fs.Int("limit", 50, "Maximum tracks to show")
	if _, err := parseCommand(fs, args); err != nil {
		return err
	}

	tracks, err := a.store.ListTracks(ctx, *offset, *limit)
	if err != nil {
		return err
	}
	if len(tracks) == 0 {
		fmt.Println("\n📭 No tracks in database")
		return nil
	}

	fmt.Printf("\n📚 Showing %d track(s):\n\n", len(tracks))
	for _, t := range tracks {
		fmt.Printf("%6d  %-40s %d:%02d  v%s  %s\n", t.ID, t.Name, t.Length/60, t.Length%60,
			t.CodeVersion, humanize.Time(t.ImportDate))
	}
	return nil
}

func handleRename(ctx context.Context, a *app, args []string) error {
	if len(args) != 2 {
		return errors.New("usage: codematch rename <track_id> <new_name>")
	}
	id, err := parseTrackID(args[0])
	if err != nil {
		return err
	}

	ok, err := a.store.UpdateTrack(ctx, id, args[1])
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("no track with ID %d", id)
	}
	fmt.Printf("✅ Renamed track %d to \"%s\"\n", id, args[1])
	return nil
}

func handleDelete(ctx context.Context, a *app, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: codematch delete <track_id>")
	}
	id, err := parseTrackID(args[0])
	if err != nil {
		return err
	}

	deleted, err := a.store.DeleteTrack(ctx, id)
	if err != nil {
		return err
	}
	fmt.Printf("✅ Deleted track %d\n", deleted)
	return nil
}

func handleDeleteName(ctx context.Context, a *app, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: codematch delete-name <exact_name>")
	}

	deleted, err := a.store.DeleteTrackByName(ctx, args[0])
	if errors.Is(err, trackstore.ErrAmbiguousTrackName) {
		return fmt.Errorf("%q names more than one track; delete by ID instead", args[0])
	}
	if err != nil {
		return err
	}
	fmt.Printf("✅ Deleted \"%s\" (ID: %d)\n", args[0], deleted)
	return nil
}

func handleIngest(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("ingest", flag.ContinueOnError)
	workers := fs.Int("workers", a.cfg.Ingest.Workers, "Files ingested concurrently")
	files, err := parseCommand(fs, args)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return errors.New("usage: codematch ingest <file>... [-workers <n>]")
	}

	ing := ingest.New(a.store,
		ingest.WithWorkers(*workers),
		ingest.WithLogger(a.log.WithPrefix("ingest:")),
	)

	summary, err := ing.IngestFiles(ctx, files)
	fmt.Printf("\n📥 %s track(s) from %d file(s)\n", humanize.Comma(int64(summary.Tracks)), summary.Files)
	for _, fe := range summary.Failed {
		fmt.Printf("   ⚠️  %v\n", fe)
	}
	if err != nil {
		return err
	}
	if len(summary.Failed) > 0 {
		return fmt.Errorf("%d file(s) failed", len(summary.Failed))
	}
	return nil
}

func handleWatch(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("watch", flag.ContinueOnError)
	metricsAddr := fs.String("metrics-addr", "", "Serve Prometheus metrics on this address (e.g. :9464)")
	dirs, err := parseCommand(fs, args)
	if err != nil {
		return err
	}
	if len(dirs) != 1 {
		return errors.New("usage: codematch watch <dir> [-metrics-addr <addr>]")
	}

	if *metricsAddr != "" {
		srv := startMetricsServer(*metricsAddr, a.registry, a.log)
		defer shutdownMetricsServer(srv, a.log)
	}

	ing := ingest.New(a.store,
		ingest.WithWorkers(a.cfg.Ingest.Workers),
		ingest.WithSettleDelay(time.Duration(a.cfg.Ingest.SettleMillis)*time.Millisecond),
		ingest.WithLogger(a.log.WithPrefix("ingest:")),
	)

	fmt.Printf("👀 Watching %s (Ctrl+C to stop)\n", dirs[0])
	return ing.Watch(ctx, dirs[0])
}

func handleInitConfig(_ context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("init-config", flag.ContinueOnError)
	force := fs.Bool("force", false, "Overwrite an existing file")
	paths, err := parseCommand(fs, args)
	if err != nil {
		return err
	}

	path := configPath
	if len(paths) > 0 {
		path = paths[0]
	}
	if _, err := os.Stat(path); err == nil && !*force {
		return fmt.Errorf("%s already exists (use -force to overwrite)", path)
	}

	if err := config.DefaultConfig().SaveToFile(path); err != nil {
		return err
	}
	fmt.Printf("✅ Wrote default config to %s\n", path)
	a.log.Debugf("config written to %s", path)
	return nil
}

func parseTrackID(s string) (uint, error) {
	id, err := strconv.ParseUint(strings.TrimSpace(s), 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("invalid track ID %q", s)
	}
	return uint(id), nil
}

func printTrack(ctx context.Context, a *app, t *trackstore.Track) error {
	codes, err := a.store.CodeCount(ctx, t.ID)
	if err != nil {
		return err
	}

	fmt.Printf("\n🎵 \"%s\"\n", t.Name)
	fmt.Printf("   ID:       %d\n", t.ID)
	fmt.Printf("   Length:   %d:%02d\n", t.Length/60, t.Length%60)
	fmt.Printf("   Version:  %s\n", t.CodeVersion)
	if t.ArtistID != "" {
		fmt.Printf("   Artist:   %s\n", t.ArtistID)
	}
	fmt.Printf("   Codes:    %s\n", humanize.Comma(codes))
	fmt.Printf("   Imported: %s (%s)\n", t.ImportDate.Format(time.RFC3339), humanize.Time(t.ImportDate))
	return nil
}
