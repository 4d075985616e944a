package trackstore

import (
	"fmt"
	"time"

	"github.com/himanishpuri/codematch/internal/metrics"
)

// Config holds the settings a store is opened with.
type Config struct {
	Driver string
	DSN    string

	Strategy  Strategy
	TempDir   string
	BatchSize int

	MaxResults    int
	MaxQueryCodes int

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration

	SlowQueryThreshold time.Duration
	TraceSQL           bool

	Logger  Logger
	Metrics *metrics.Store
}

// Option configures a store.
type Option func(*Config)

// WithDriver selects DriverSQLite or DriverMySQL.
func WithDriver(driver string) Option {
	return func(c *Config) {
		c.Driver = driver
	}
}

// WithDSN sets the data source: a file path for SQLite, a go-sql-driver
// DSN for MySQL.
func WithDSN(dsn string) Option {
	return func(c *Config) {
		c.DSN = dsn
	}
}

// WithStrategy selects how AddTrack writes codes.
func WithStrategy(s Strategy) Option {
	return func(c *Config) {
		c.Strategy = s
	}
}

// WithTempDir sets where StrategyFile spools code files. Empty means
// os.TempDir().
func WithTempDir(dir string) Option {
	return func(c *Config) {
		c.TempDir = dir
	}
}

// WithBatchSize sets the code rows per insert statement, at most
// MaxBatchSize for the driver.
func WithBatchSize(n int) Option {
	return func(c *Config) {
		c.BatchSize = n
	}
}

// WithMaxResults sets the candidate count used when MatchFingerprint is
// called with maxResults <= 0.
func WithMaxResults(n int) Option {
	return func(c *Config) {
		c.MaxResults = n
	}
}

// WithMaxQueryCodes caps the distinct codes a match query may carry.
func WithMaxQueryCodes(n int) Option {
	return func(c *Config) {
		c.MaxQueryCodes = n
	}
}

// WithPool sets the connection pool limits.
func WithPool(maxOpen, maxIdle int, lifetime time.Duration) Option {
	return func(c *Config) {
		c.MaxOpenConns = maxOpen
		c.MaxIdleConns = maxIdle
		c.ConnMaxLifetime = lifetime
	}
}

// WithSlowQueryThreshold logs statements slower than d at warn level.
func WithSlowQueryThreshold(d time.Duration) Option {
	return func(c *Config) {
		c.SlowQueryThreshold = d
	}
}

// WithSQLTrace logs every statement at debug level.
func WithSQLTrace(on bool) Option {
	return func(c *Config) {
		c.TraceSQL = on
	}
}

// WithLogger sets the store logger.
func WithLogger(log Logger) Option {
	return func(c *Config) {
		c.Logger = log
	}
}

// WithMetrics sets the collectors the store records into.
func WithMetrics(m *metrics.Store) Option {
	return func(c *Config) {
		c.Metrics = m
	}
}

func defaultConfig() *Config {
	return &Config{
		Driver:             DriverSQLite,
		DSN:                "codematch.sqlite3",
		Strategy:           StrategyBatch,
		BatchSize:          1000,
		MaxResults:         10,
		MaxQueryCodes:      20000,
		MaxOpenConns:       25,
		MaxIdleConns:       5,
		ConnMaxLifetime:    time.Hour,
		SlowQueryThreshold: 500 * time.Millisecond,
	}
}

func (c *Config) validate() error {
	if c.Driver != DriverSQLite && c.Driver != DriverMySQL {
		return fmt.Errorf("unsupported driver %q", c.Driver)
	}
	if c.DSN == "" {
		return fmt.Errorf("dsn cannot be empty")
	}
	if _, err := ParseStrategy(string(c.Strategy)); err != nil {
		return err
	}
	if c.BatchSize < 1 {
		return fmt.Errorf("batch size must be at least 1")
	}
	if limit := MaxBatchSize(c.Driver); c.BatchSize > limit {
		return fmt.Errorf("batch size %d exceeds the %s limit of %d rows per statement", c.BatchSize, c.Driver, limit)
	}
	if c.MaxResults < 1 {
		return fmt.Errorf("max results must be at least 1")
	}
	if c.MaxQueryCodes < 1 {
		return fmt.Errorf("max query codes must be at least 1")
	}
	// The candidate fetch binds every query code plus every candidate id.
	if limit := maxBindVars(c.Driver); c.MaxQueryCodes+c.MaxResults > limit {
		return fmt.Errorf("max query codes plus max results exceeds the %s limit of %d parameters", c.Driver, limit)
	}
	return nil
}
