package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/himanishpuri/codematch/pkg/logger"
	"github.com/himanishpuri/codematch/pkg/trackstore"
	"github.com/joho/godotenv"
)

// Config is the process configuration for the codematch tools.
type Config struct {
	Database DatabaseConfig `toml:"database"`
	Ingest   IngestConfig   `toml:"ingest"`
	Match    MatchConfig    `toml:"match"`
	Logging  LoggingConfig  `toml:"logging"`
}

type DatabaseConfig struct {
	Driver                 string `toml:"driver"`
	DSN                    string `toml:"dsn"`
	MaxOpenConns           int    `toml:"max_open_conns"`
	MaxIdleConns           int    `toml:"max_idle_conns"`
	ConnMaxLifetimeMinutes int    `toml:"conn_max_lifetime_minutes"`
	SlowQueryMillis        int    `toml:"slow_query_ms"`
}

type IngestConfig struct {
	Strategy     string `toml:"strategy"`
	TempDir      string `toml:"temp_dir"`
	BatchSize    int    `toml:"batch_size"`
	Workers      int    `toml:"workers"`
	SettleMillis int    `toml:"settle_ms"`
}

type MatchConfig struct {
	MaxResults    int `toml:"max_results"`
	MaxQueryCodes int `toml:"max_query_codes"`
}

type LoggingConfig struct {
	Level    string `toml:"level"`
	Colorize bool   `toml:"colorize"`
	TraceSQL bool   `toml:"trace_sql"`
}

func DefaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Driver:                 trackstore.DriverSQLite,
			DSN:                    "codematch.sqlite3",
			MaxOpenConns:           25,
			MaxIdleConns:           5,
			ConnMaxLifetimeMinutes: 60,
			SlowQueryMillis:        500,
		},
		Ingest: IngestConfig{
			Strategy:     string(trackstore.StrategyBatch),
			BatchSize:    1000,
			Workers:      4,
			SettleMillis: 500,
		},
		Match: MatchConfig{
			MaxResults:    10,
			MaxQueryCodes: 20000,
		},
		Logging: LoggingConfig{
			Level:    "info",
			Colorize: true,
		},
	}
}

// Load reads configPath over the defaults, then applies a .env file in the
// working directory and CODEMATCH_* environment variables. A missing config
// file is not an error.
func Load(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	if configPath != "" {
		if _, err := toml.DecodeFile(configPath, cfg); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	strs := map[string]*string{
		"CODEMATCH_DB_DRIVER":       &c.Database.Driver,
		"CODEMATCH_DB_DSN":          &c.Database.DSN,
		"CODEMATCH_INGEST_STRATEGY": &c.Ingest.Strategy,
		"CODEMATCH_TEMP_DIR":        &c.Ingest.TempDir,
		"CODEMATCH_LOG_LEVEL":       &c.Logging.Level,
	}
	for key, dst := range strs {
		if v, ok := os.LookupEnv(key); ok {
			*dst = v
		}
	}

	ints := map[string]*int{
		"CODEMATCH_DB_MAX_OPEN_CONNS": &c.Database.MaxOpenConns,
		"CODEMATCH_INGEST_BATCH_SIZE": &c.Ingest.BatchSize,
		"CODEMATCH_INGEST_WORKERS":    &c.Ingest.Workers,
		"CODEMATCH_MATCH_MAX_RESULTS": &c.Match.MaxResults,
	}
	for key, dst := range ints {
		v, ok := os.LookupEnv(key)
		if !ok {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %q is not an integer", key, v)
		}
		*dst = n
	}
	return nil
}

// SaveToFile writes the configuration as TOML, creating parent directories.
func (c *Config) SaveToFile(configPath string) error {
	if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	file, err := os.Create(configPath)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer file.Close()

	header := `# codematch configuration
# database.driver is "sqlite" (dsn is a file path) or "mysql" (dsn is user:pass@tcp(host:3306)/db).
# ingest.strategy is "batch" or "file"; the file strategy on MySQL needs local_infile=1 on the server.

`
	if _, err := file.WriteString(header); err != nil {
		return fmt.Errorf("failed to write config header: %w", err)
	}
	if err := toml.NewEncoder(file).Encode(c); err != nil {
		return fmt.Errorf("failed to encode config to TOML: %w", err)
	}
	return nil
}

func (c *Config) Validate() error {
	if c.Database.Driver != trackstore.DriverSQLite && c.Database.Driver != trackstore.DriverMySQL {
		return fmt.Errorf("invalid database driver: %s (must be sqlite or mysql)", c.Database.Driver)
	}
	if c.Database.DSN == "" {
		return fmt.Errorf("database dsn cannot be empty")
	}
	if c.Database.MaxOpenConns < 1 {
		return fmt.Errorf("database max open conns must be at least 1")
	}
	if _, err := trackstore.ParseStrategy(c.Ingest.Strategy); err != nil {
		return err
	}
	if c.Ingest.BatchSize < 1 {
		return fmt.Errorf("ingest batch size must be at least 1")
	}
	if limit := trackstore.MaxBatchSize(c.Database.Driver); c.Ingest.BatchSize > limit {
		return fmt.Errorf("ingest batch size %d exceeds the %s limit of %d", c.Ingest.BatchSize, c.Database.Driver, limit)
	}
	if c.Ingest.Workers < 1 {
		return fmt.Errorf("ingest workers must be at least 1")
	}
	if c.Match.MaxResults < 1 {
		return fmt.Errorf("match max results must be at least 1")
	}
	if c.Match.MaxQueryCodes < 1 {
		return fmt.Errorf("match max query codes must be at least 1")
	}
	if _, err := logger.ParseLevel(c.Logging.Level); err != nil {
		return err
	}
	return nil
}

// StoreOptions translates the configuration into track store options.
func (c *Config) StoreOptions() []trackstore.Option {
	strategy, _ := trackstore.ParseStrategy(c.Ingest.Strategy)
	return []trackstore.Option{
		trackstore.WithDriver(c.Database.Driver),
		trackstore.WithDSN(c.Database.DSN),
		trackstore.WithStrategy(strategy),
		trackstore.WithTempDir(c.Ingest.TempDir),
		trackstore.WithBatchSize(c.Ingest.BatchSize),
		trackstore.WithMaxResults(c.Match.MaxResults),
		trackstore.WithMaxQueryCodes(c.Match.MaxQueryCodes),
		trackstore.WithPool(c.Database.MaxOpenConns, c.Database.MaxIdleConns,
			time.Duration(c.Database.ConnMaxLifetimeMinutes)*time.Minute),
		trackstore.WithSlowQueryThreshold(time.Duration(c.Database.SlowQueryMillis) * time.Millisecond),
		trackstore.WithSQLTrace(c.Logging.TraceSQL),
	}
}

// NewLogger builds the process logger described by the logging section.
func (c *Config) NewLogger() *logger.Logger {
	cfg := logger.DefaultConfig()
	cfg.Level, _ = logger.ParseLevel(c.Logging.Level)
	cfg.Colorize = c.Logging.Colorize && logger.ColorSupported(os.Stderr)
	return logger.New(cfg)
}
