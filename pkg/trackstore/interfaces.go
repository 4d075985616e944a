package trackstore

import "context"

// Store is the data-access surface used by the matching service.
type Store interface {
	MatchFingerprint(ctx context.Context, fp Fingerprint, maxResults int) ([]Match, error)
	GetTrack(ctx context.Context, id uint) (*Track, error)
	GetTrackByName(ctx context.Context, pattern string) (*Track, error)
	AddTrack(ctx context.Context, fp Fingerprint, artistID string) (uint, error)
	UpdateTrack(ctx context.Context, id uint, name string) (bool, error)
	DeleteTrack(ctx context.Context, id uint) (uint, error)
	DeleteTrackByName(ctx context.Context, name string) (uint, error)
	ListTracks(ctx context.Context, offset, limit int) ([]Track, error)
	CodeCount(ctx context.Context, id uint) (int64, error)
	Disconnect() error
}

type Logger interface {
	Debugf(format string, args ...any)
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
}

var _ Store = (*DBStore)(nil)
