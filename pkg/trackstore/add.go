package trackstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// AddTrack validates fp, then stores the track and all of its codes in one
// transaction and returns the new track id. Repeated codes within fp are
// stored once. artistID may be empty.
func (s *DBStore) AddTrack(ctx context.Context, fp Fingerprint, artistID string) (id uint, err error) {
	defer s.observe("add_track", time.Now(), &err)

	length, err := fp.Validate()
	if err != nil {
		return 0, err
	}

	row := trackRow{
		Name:        fp.Track,
		Length:      length,
		CodeVersion: strings.TrimSpace(fp.CodeVersion),
		ImportDate:  time.Now().UTC(),
	}
	if a := strings.TrimSpace(artistID); a != "" {
		row.ArtistID = &a
	}

	var written int64
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit(clause.Associations).Create(&row).Error; err != nil {
			return fmt.Errorf("inserting track: %w", err)
		}
		n, err := s.loader.load(ctx, tx, row.ID, &fp)
		if err != nil {
			return fmt.Errorf("loading codes for track %d: %w", row.ID, err)
		}
		written = n
		return nil
	})
	if err != nil {
		return 0, err
	}

	s.metrics.CodesIngested.WithLabelValues(string(s.cfg.Strategy)).Add(float64(written))
	s.log.Infof("added track %d %q: %s codes submitted, %s rows written (%s)",
		row.ID, row.Name, humanize.Comma(int64(len(fp.Codes))), humanize.Comma(written), s.cfg.Strategy)
	return row.ID, nil
}
