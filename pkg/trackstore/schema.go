package trackstore

import "time"

type trackRow struct {
	ID          uint      `gorm:"primaryKey;autoIncrement"`
	Name        string    `gorm:"size:255;not null;index:idx_tracks_name"`
	Length      int       `gorm:"not null"`
	CodeVersion string    `gorm:"size:32;not null"`
	ArtistID    *string   `gorm:"size:64;index:idx_tracks_artist"`
	ImportDate  time.Time `gorm:"not null"`
	Codes       []codeRow `gorm:"foreignKey:TrackID;constraint:OnDelete:CASCADE"`
}

func (trackRow) TableName() string { return "tracks" }

func (r *trackRow) toTrack() *Track {
	t := &Track{
		ID:          r.ID,
		Name:        r.Name,
		Length:      r.Length,
		CodeVersion: r.CodeVersion,
		ImportDate:  r.ImportDate,
	}
	if r.ArtistID != nil {
		t.ArtistID = *r.ArtistID
	}
	return t
}

// codeRow is keyed by (code, track_id): a track stores each code once, and
// the leading code column serves the IN lookups of the match query.
type codeRow struct {
	Code    uint32 `gorm:"primaryKey;autoIncrement:false"`
	TrackID uint   `gorm:"primaryKey;autoIncrement:false;index:idx_codes_track"`
	Time    uint32 `gorm:"not null"`
}

func (codeRow) TableName() string { return "codes" }

func codeRows(trackID uint, fp *Fingerprint) []codeRow {
	rows := make([]codeRow, len(fp.Codes))
	for i, code := range fp.Codes {
		rows[i] = codeRow{Code: code, TrackID: trackID, Time: fp.Times[i]}
	}
	return rows
}
