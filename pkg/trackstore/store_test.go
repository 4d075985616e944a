package trackstore

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/himanishpuri/codematch/internal/metrics"
	"github.com/himanishpuri/codematch/pkg/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

var strategies = []Strategy{StrategyBatch, StrategyFile}

func quietLogger() *logger.Logger {
	return logger.New(logger.Config{Level: logger.ERROR, Output: io.Discard})
}

// setupTestStore opens a store on a fresh SQLite file and returns it with
// the directory the file strategy spools into.
func setupTestStore(t *testing.T, opts ...Option) (*DBStore, string) {
	t.Helper()

	dir := t.TempDir()
	spool := filepath.Join(dir, "spool")
	require.NoError(t, os.MkdirAll(spool, 0o755))

	base := []Option{
		WithDriver(DriverSQLite),
		WithDSN(filepath.Join(dir, "test_codematch.sqlite3")),
		WithTempDir(spool),
		WithBatchSize(7),
		WithLogger(quietLogger()),
		WithMetrics(metrics.NewStore(prometheus.NewRegistry())),
	}
	s, err := Open(append(base, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { s.Disconnect() })
	return s, spool
}

func fingerprint(name string, codes ...uint32) Fingerprint {
	times := make([]uint32, len(codes))
	for i := range codes {
		times[i] = uint32(i * 10)
	}
	return Fingerprint{
		Track:       name,
		Length:      "180",
		CodeVersion: "4.12",
		Codes:       codes,
		Times:       times,
	}
}

func codeRange(from, to uint32) []uint32 {
	out := make([]uint32, 0, to-from+1)
	for c := from; c <= to; c++ {
		out = append(out, c)
	}
	return out
}

func TestOpenCreatesDatabase(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "codes.db")

	s, err := Open(WithDSN(path), WithLogger(quietLogger()))
	require.NoError(t, err)
	defer s.Disconnect()

	_, err = os.Stat(path)
	assert.NoError(t, err)
	assert.True(t, s.db.Migrator().HasTable("tracks"))
	assert.True(t, s.db.Migrator().HasTable("codes"))
	assert.True(t, s.db.Migrator().HasIndex(&codeRow{}, "idx_codes_track"))
}

func TestOpenRejectsBadConfig(t *testing.T) {
	cases := map[string][]Option{
		"driver":      {WithDriver("postgres")},
		"dsn":         {WithDSN("")},
		"strategy":    {WithStrategy("stream")},
		"batch size":  {WithBatchSize(0)},
		"max results": {WithMaxResults(0)},
	}
	for name, opts := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Open(append(opts, WithLogger(quietLogger()))...)
			assert.Error(t, err)
		})
	}
}

func TestNewWithInjectedDB(t *testing.T) {
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "injected.db")), &gorm.Config{
		Logger: gormlogger.Discard,
	})
	require.NoError(t, err)

	s, err := New(db, WithLogger(quietLogger()))
	require.NoError(t, err)
	defer s.Disconnect()

	id, err := s.AddTrack(context.Background(), fingerprint("Injected", 1, 2, 3), "")
	require.NoError(t, err)

	track, err := s.GetTrack(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "Injected", track.Name)
}

func TestDisconnectTwice(t *testing.T) {
	s, _ := setupTestStore(t)
	assert.NoError(t, s.Disconnect())
	assert.NoError(t, s.Disconnect())
	assert.NoError(t, s.Close())
}

func TestOperationsAreObserved(t *testing.T) {
	m := metrics.NewStore(prometheus.NewRegistry())
	s, _ := setupTestStore(t, WithMetrics(m))
	ctx := context.Background()

	_, err := s.AddTrack(ctx, fingerprint("Observed", 1, 2, 2, 3), "")
	require.NoError(t, err)
	_, err = s.DeleteTrack(ctx, 999)
	require.Error(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.OperationsTotal.WithLabelValues("add_track", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.OperationsTotal.WithLabelValues("delete_track", "error")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.CodesIngested.WithLabelValues("batch")))
}
