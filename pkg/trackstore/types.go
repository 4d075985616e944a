package trackstore

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Track is a stored track's metadata.
type Track struct {
	ID          uint      `json:"id"`
	Name        string    `json:"name"`
	Length      int       `json:"length"`
	CodeVersion string    `json:"code_version"`
	ArtistID    string    `json:"artist_id,omitempty"`
	ImportDate  time.Time `json:"import_date"`
}

// Fingerprint is a sequence of (code, time) pairs with the metadata of the
// track it was extracted from. Codes[i] was observed at Times[i].
type Fingerprint struct {
	Track       string      `json:"track"`
	Length      json.Number `json:"length"`
	CodeVersion string      `json:"codever"`
	Codes       []uint32    `json:"codes"`
	Times       []uint32    `json:"times"`
}

// Match is one candidate track for a query fingerprint. Score is the number
// of stored codes of the track found in the query; Codes and Times hold
// those codes and their stored offsets.
type Match struct {
	TrackID uint     `json:"track_id"`
	Score   int      `json:"score"`
	Codes   []uint32 `json:"codes"`
	Times   []uint32 `json:"times"`
}

// Strategy selects how AddTrack writes codes.
type Strategy string

const (
	StrategyBatch Strategy = "batch"
	StrategyFile  Strategy = "file"
)

// ParseStrategy maps "batch" or "file", case-insensitively, to a Strategy.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(strings.ToLower(strings.TrimSpace(s))) {
	case StrategyBatch:
		return StrategyBatch, nil
	case StrategyFile:
		return StrategyFile, nil
	}
	return "", fmt.Errorf("unknown ingest strategy %q (want %q or %q)", s, StrategyBatch, StrategyFile)
}

// LengthSeconds coerces Length to a positive whole number of seconds.
// Fractional values are truncated.
func (fp *Fingerprint) LengthSeconds() (int, error) {
	s := strings.TrimSpace(fp.Length.String())
	if s == "" {
		return 0, fmt.Errorf("%w: length is required", ErrInvalidFingerprint)
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		f, ferr := strconv.ParseFloat(s, 64)
		if ferr != nil {
			return 0, fmt.Errorf("%w: length %q is not a number", ErrInvalidFingerprint, s)
		}
		n = int64(f)
	}
	if n <= 0 || n > int64(^uint32(0)>>1) {
		return 0, fmt.Errorf("%w: length %q must be a positive integer", ErrInvalidFingerprint, s)
	}
	return int(n), nil
}

// Validate checks everything AddTrack needs and returns the normalized
// length.
func (fp *Fingerprint) Validate() (int, error) {
	length, err := fp.LengthSeconds()
	if err != nil {
		return 0, err
	}
	if strings.TrimSpace(fp.CodeVersion) == "" {
		return 0, fmt.Errorf("%w: code version is required", ErrInvalidFingerprint)
	}
	if len(fp.Codes) != len(fp.Times) {
		return 0, fmt.Errorf("%w: %d codes but %d times", ErrInvalidFingerprint, len(fp.Codes), len(fp.Times))
	}
	return length, nil
}
