package trackstore

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/himanishpuri/codematch/internal/metrics"
	"github.com/himanishpuri/codematch/pkg/logger"
	"gorm.io/gorm"
)

// DBStore is the GORM-backed Store. It is safe for concurrent use; all
// state lives in the connection pool.
type DBStore struct {
	db      *gorm.DB
	sqlDB   *sql.DB
	cfg     *Config
	log     Logger
	metrics *metrics.Store
	loader  codeLoader

	closeOnce sync.Once
	closeErr  error
}

// Open connects to the configured database, creates the schema if needed
// and returns a ready store.
func Open(opts ...Option) (*DBStore, error) {
	cfg := buildConfig(opts)
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid store config: %w", err)
	}

	dial, err := dialector(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, err
	}

	db, err := gorm.Open(dial, &gorm.Config{
		Logger: newGormLogger(cfg.Logger, cfg.SlowQueryThreshold, cfg.TraceSQL),
	})
	if err != nil {
		return nil, fmt.Errorf("opening %s db: %w", cfg.Driver, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("getting sql.DB from gorm: %w", err)
	}
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	s, err := newStore(db, sqlDB, cfg)
	if err != nil {
		sqlDB.Close()
		return nil, err
	}
	s.log.Infof("opened %s track store", cfg.Driver)
	return s, nil
}

// New wraps an existing GORM handle. Driver and DSN options are ignored;
// the dialect is taken from db. Disconnect closes db's pool.
func New(db *gorm.DB, opts ...Option) (*DBStore, error) {
	cfg := buildConfig(opts)
	cfg.Driver = db.Dialector.Name()
	cfg.DSN = "injected"
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid store config: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("getting sql.DB from gorm: %w", err)
	}
	return newStore(db, sqlDB, cfg)
}

func buildConfig(opts []Option) *Config {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.GetLogger().WithPrefix("trackstore:")
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.NewStore(nil)
	}
	return cfg
}

func newStore(db *gorm.DB, sqlDB *sql.DB, cfg *Config) (*DBStore, error) {
	if err := migrate(db); err != nil {
		return nil, err
	}
	return &DBStore{
		db:      db,
		sqlDB:   sqlDB,
		cfg:     cfg,
		log:     cfg.Logger,
		metrics: cfg.Metrics,
		loader:  newCodeLoader(cfg, db.Dialector.Name()),
	}, nil
}

func migrate(db *gorm.DB) error {
	if db.Dialector.Name() == DriverMySQL {
		db = db.Set("gorm:table_options", "ENGINE=InnoDB")
	}
	if err := db.AutoMigrate(&trackRow{}, &codeRow{}); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}

// Disconnect releases the connection pool. Later calls return the first
// call's result.
func (s *DBStore) Disconnect() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.sqlDB.Close()
		if s.closeErr == nil {
			s.log.Debugf("track store disconnected")
		}
	})
	return s.closeErr
}

// Close is Disconnect, for io.Closer.
func (s *DBStore) Close() error {
	return s.Disconnect()
}

func (s *DBStore) observe(operation string, start time.Time, err *error) {
	s.metrics.Observe(operation, start, *err)
}
