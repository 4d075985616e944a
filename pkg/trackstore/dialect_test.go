package trackstore

import (
	"path/filepath"
	"strings"
	"testing"

	mysqldriver "github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMySQLDSN(t *testing.T) {
	cases := []struct {
		name string
		dsn  string
		db   string
	}{
		{"bare", "echo:pw@tcp(db:3306)/echoprint", "echoprint"},
		{"explicit false", "echo:pw@tcp(db:3306)/echoprint?parseTime=false&clientFoundRows=false", "echoprint"},
		{"extra params", "echo:pw@tcp(db:3306)/fp?charset=utf8mb4&loc=UTC", "fp"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			out, err := mysqlDSN(tc.dsn)
			require.NoError(t, err)
			assert.Contains(t, out, "parseTime=true")
			assert.Contains(t, out, "clientFoundRows=true")

			cfg, err := mysqldriver.ParseDSN(out)
			require.NoError(t, err)
			assert.True(t, cfg.ParseTime)
			assert.True(t, cfg.ClientFoundRows)
			assert.Equal(t, tc.db, cfg.DBName)
			assert.Equal(t, "echo", cfg.User)
		})
	}
}

func TestMySQLDSNRejectsGarbage(t *testing.T) {
	_, err := mysqlDSN("echo:pw@tcp(db:3306)echoprint")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parsing mysql dsn")
}

func TestSQLiteDSN(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "a", "b")
	out, err := sqliteDSN(filepath.Join(dir, "codes.db"))
	require.NoError(t, err)
	assert.DirExists(t, dir)
	assert.True(t, strings.HasPrefix(out, filepath.Join(dir, "codes.db")+"?_pragma=foreign_keys(1)"))

	out, err = sqliteDSN(filepath.Join(dir, "codes.db") + "?cache=shared")
	require.NoError(t, err)
	assert.Contains(t, out, "?cache=shared&_pragma=foreign_keys(1)")
}

func TestDialectorUnknownDriver(t *testing.T) {
	_, err := dialector("postgres", "x")
	assert.Error(t, err)
}
