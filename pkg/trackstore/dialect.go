package trackstore

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/glebarez/sqlite"
	mysqldriver "github.com/go-sql-driver/mysql"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
)

const (
	DriverSQLite = "sqlite"
	DriverMySQL  = "mysql"
)

// Bound parameters allowed in one statement: SQLite's default
// SQLITE_MAX_VARIABLE_NUMBER and MySQL's 16-bit placeholder count.
const (
	sqliteMaxVars = 32766
	mysqlMaxVars  = 65535
	codeRowVars   = 3
)

func maxBindVars(driver string) int {
	if driver == DriverMySQL {
		return mysqlMaxVars
	}
	return sqliteMaxVars
}

// MaxBatchSize is the largest number of code rows one insert may carry on
// driver.
func MaxBatchSize(driver string) int {
	return maxBindVars(driver) / codeRowVars
}

func dialector(driver, dsn string) (gorm.Dialector, error) {
	switch driver {
	case DriverSQLite:
		full, err := sqliteDSN(dsn)
		if err != nil {
			return nil, err
		}
		return sqlite.Open(full), nil
	case DriverMySQL:
		full, err := mysqlDSN(dsn)
		if err != nil {
			return nil, err
		}
		return mysql.Open(full), nil
	}
	return nil, fmt.Errorf("unsupported driver %q", driver)
}

var sqlitePragmas = []string{
	"_pragma=foreign_keys(1)",
	"_pragma=busy_timeout(5000)",
	"_pragma=journal_mode(WAL)",
}

// sqliteDSN creates the database directory and appends the connection
// pragmas.
func sqliteDSN(path string) (string, error) {
	file := path
	if i := strings.IndexByte(path, '?'); i >= 0 {
		file = path[:i]
	}
	if dir := filepath.Dir(file); dir != "." && !strings.HasPrefix(file, ":memory:") {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", fmt.Errorf("creating db dir: %w", err)
		}
	}

	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + strings.Join(sqlitePragmas, "&"), nil
}

// mysqlDSN forces the options the store relies on: parseTime for
// import_date, and clientFoundRows so an UPDATE that leaves the name
// unchanged still reports its matched row.
func mysqlDSN(dsn string) (string, error) {
	cfg, err := mysqldriver.ParseDSN(dsn)
	if err != nil {
		return "", fmt.Errorf("parsing mysql dsn: %w", err)
	}
	cfg.ParseTime = true
	cfg.ClientFoundRows = true
	return cfg.FormatDSN(), nil
}
