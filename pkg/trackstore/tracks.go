package trackstore

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// GetTrack looks a track up by id.
func (s *DBStore) GetTrack(ctx context.Context, id uint) (track *Track, err error) {
	defer s.observe("get_track", time.Now(), &err)

	var rows []trackRow
	if err = s.db.WithContext(ctx).Where("id = ?", id).Limit(2).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("querying track %d: %w", id, err)
	}
	switch len(rows) {
	case 0:
		return nil, fmt.Errorf("track %d: %w", id, ErrTrackNotFound)
	case 1:
		return rows[0].toTrack(), nil
	default:
		return nil, fmt.Errorf("track %d: %w", id, ErrCorruptTrack)
	}
}

// GetTrackByName returns the lowest-id track whose name matches the SQL
// LIKE pattern.
func (s *DBStore) GetTrackByName(ctx context.Context, pattern string) (track *Track, err error) {
	defer s.observe("get_track_by_name", time.Now(), &err)

	var rows []trackRow
	err = s.db.WithContext(ctx).
		Where("name LIKE ?", pattern).
		Order("id").
		Limit(1).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("querying track by name %q: %w", pattern, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("track %q: %w", pattern, ErrTrackNotFound)
	}
	return rows[0].toTrack(), nil
}

// ListTracks returns tracks ordered by id. A limit <= 0 returns all rows
// after offset.
func (s *DBStore) ListTracks(ctx context.Context, offset, limit int) (tracks []Track, err error) {
	defer s.observe("list_tracks", time.Now(), &err)

	q := s.db.WithContext(ctx).Order("id")
	if offset > 0 {
		q = q.Offset(offset)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}

	var rows []trackRow
	if err = q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("listing tracks: %w", err)
	}
	tracks = make([]Track, len(rows))
	for i := range rows {
		tracks[i] = *rows[i].toTrack()
	}
	return tracks, nil
}

// CodeCount returns how many codes are stored for track id.
func (s *DBStore) CodeCount(ctx context.Context, id uint) (n int64, err error) {
	defer s.observe("code_count", time.Now(), &err)

	if err = s.db.WithContext(ctx).Model(&codeRow{}).Where("track_id = ?", id).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("counting codes of track %d: %w", id, err)
	}
	return n, nil
}

// UpdateTrack renames a track and reports whether exactly one row matched.
// An unknown id is false without an error; more than one matched row is
// ErrCorruptTrack.
func (s *DBStore) UpdateTrack(ctx context.Context, id uint, name string) (ok bool, err error) {
	defer s.observe("update_track", time.Now(), &err)

	res := s.db.WithContext(ctx).Model(&trackRow{}).Where("id = ?", id).Update("name", name)
	if err = res.Error; err != nil {
		return false, fmt.Errorf("updating track %d: %w", id, err)
	}
	switch {
	case res.RowsAffected == 0:
		s.log.Debugf("rename of track %d matched no rows", id)
		return false, nil
	case res.RowsAffected > 1:
		return false, fmt.Errorf("track %d: %w", id, ErrCorruptTrack)
	}
	return true, nil
}

// DeleteTrack removes a track and its codes. It fails with ErrTrackNotFound
// unless exactly one track row was deleted.
func (s *DBStore) DeleteTrack(ctx context.Context, id uint) (deleted uint, err error) {
	defer s.observe("delete_track", time.Now(), &err)

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return deleteTrackTx(tx, id)
	})
	if err != nil {
		return 0, err
	}
	s.log.Infof("deleted track %d", id)
	return id, nil
}

// DeleteTrackByName deletes the single track named exactly name. Nothing is
// deleted when the name is unknown or shared by several tracks.
func (s *DBStore) DeleteTrackByName(ctx context.Context, name string) (deleted uint, err error) {
	defer s.observe("delete_track_by_name", time.Now(), &err)

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var ids []uint
		if err := tx.Model(&trackRow{}).Where("name = ?", name).Limit(2).Pluck("id", &ids).Error; err != nil {
			return fmt.Errorf("resolving track %q: %w", name, err)
		}
		switch len(ids) {
		case 0:
			return fmt.Errorf("track %q: %w", name, ErrTrackNotFound)
		case 1:
			deleted = ids[0]
			return deleteTrackTx(tx, deleted)
		default:
			return fmt.Errorf("track %q: %w", name, ErrAmbiguousTrackName)
		}
	})
	if err != nil {
		return 0, err
	}
	s.log.Infof("deleted track %d %q", deleted, name)
	return deleted, nil
}

func deleteTrackTx(tx *gorm.DB, id uint) error {
	if err := tx.Where("track_id = ?", id).Delete(&codeRow{}).Error; err != nil {
		return fmt.Errorf("deleting codes of track %d: %w", id, err)
	}
	res := tx.Where("id = ?", id).Delete(&trackRow{})
	if res.Error != nil {
		return fmt.Errorf("deleting track %d: %w", id, res.Error)
	}
	switch {
	case res.RowsAffected == 0:
		return fmt.Errorf("track %d: %w", id, ErrTrackNotFound)
	case res.RowsAffected > 1:
		return fmt.Errorf("track %d: %w", id, ErrCorruptTrack)
	}
	return nil
}
