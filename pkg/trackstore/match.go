package trackstore

import (
	"context"
	"fmt"
	"time"
)

type scoreRow struct {
	TrackID uint `gorm:"column:track_id"`
	Score   int  `gorm:"column:score"`
}

// MatchFingerprint ranks stored tracks by how many of the query's distinct
// codes they hold and returns at most maxResults of them, best first. Ties
// are ordered by ascending track id. Each match carries the overlapping
// codes with their stored times, ordered by time.
func (s *DBStore) MatchFingerprint(ctx context.Context, fp Fingerprint, maxResults int) (matches []Match, err error) {
	start := time.Now()
	defer func() {
		s.metrics.Observe("match_fingerprint", start, err)
		if err == nil {
			s.metrics.MatchCandidates.Observe(float64(len(matches)))
		}
	}()

	if maxResults <= 0 {
		maxResults = s.cfg.MaxResults
	}
	codes := uniqueCodes(fp.Codes)
	if len(codes) == 0 {
		return []Match{}, nil
	}
	if len(codes) > s.cfg.MaxQueryCodes {
		return nil, fmt.Errorf("%w: %d distinct codes exceeds the limit of %d",
			ErrInvalidFingerprint, len(codes), s.cfg.MaxQueryCodes)
	}

	db := s.db.WithContext(ctx)

	var scored []scoreRow
	err = db.Model(&codeRow{}).
		Select("track_id, COUNT(*) AS score").
		Where("code IN ?", codes).
		Group("track_id").
		Order("score DESC, track_id").
		Limit(maxResults).
		Scan(&scored).Error
	if err != nil {
		return nil, fmt.Errorf("scoring candidates: %w", err)
	}
	if len(scored) == 0 {
		return []Match{}, nil
	}

	matches = make([]Match, len(scored))
	ids := make([]uint, len(scored))
	index := make(map[uint]int, len(scored))
	for i, sc := range scored {
		matches[i] = Match{
			TrackID: sc.TrackID,
			Score:   sc.Score,
			Codes:   make([]uint32, 0, sc.Score),
			Times:   make([]uint32, 0, sc.Score),
		}
		ids[i] = sc.TrackID
		index[sc.TrackID] = i
	}

	var rows []codeRow
	err = db.Where("code IN ? AND track_id IN ?", codes, ids).
		Order("track_id, time").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("fetching candidate codes: %w", err)
	}

	for _, r := range rows {
		i, ok := index[r.TrackID]
		if !ok {
			continue
		}
		matches[i].Codes = append(matches[i].Codes, r.Code)
		matches[i].Times = append(matches[i].Times, r.Time)
	}

	s.log.Debugf("matched %d query codes against %d candidates", len(codes), len(matches))
	return matches, nil
}

// uniqueCodes drops repeated codes, keeping first-seen order.
func uniqueCodes(codes []uint32) []uint32 {
	seen := make(map[uint32]struct{}, len(codes))
	out := make([]uint32, 0, len(codes))
	for _, c := range codes {
		if _, dup := seen[c]; dup {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	return out
}
