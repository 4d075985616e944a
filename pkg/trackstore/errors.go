package trackstore

import "errors"

var (
	ErrTrackNotFound      = errors.New("track not found")
	ErrAmbiguousTrackName = errors.New("track name matches more than one track")
	ErrCorruptTrack       = errors.New("track id matches more than one row")
	ErrInvalidFingerprint = errors.New("invalid fingerprint")
)
