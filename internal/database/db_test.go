package database

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOpenDefaultsToSQLite(t *testing.T) {
	db, err := Open(Config{})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, sqlDB.Ping())
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := Open(Config{Driver: "oracle"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "unsupported database driver")
}

func TestMigrateCreatesSchema(t *testing.T) {
	db, err := Open(Config{Driver: "sqlite", DSN: "file::memory:"})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, Migrate(db))

	for _, table := range []string{"users", "sessions", "verification_codes", "trusted_devices", "audit_logs"} {
		require.Truef(t, db.Migrator().HasTable(table), "expected table %s", table)
	}
}

func TestBuildPostgresDSN(t *testing.T) {
	dsn, err := buildPostgresDSN(Config{
		Driver:   "postgres",
		User:     "mithaq",
		Password: "secret",
		Name:     "mithaq",
	})
	require.NoError(t, err)
	require.Contains(t, dsn, "host=localhost")
	require.Contains(t, dsn, "port=5432")
	require.Contains(t, dsn, "sslmode=disable")

	_, err = buildPostgresDSN(Config{Driver: "postgres"})
	require.Error(t, err)
}

func TestBuildMySQLDSN(t *testing.T) {
	dsn, err := buildMySQLDSN(Config{
		Driver:   "mysql",
		User:     "mithaq",
		Password: "secret",
		Name:     "mithaq",
		Host:     "db.internal",
		Port:     3307,
	})
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(dsn, "mithaq:secret@tcp(db.internal:3307)/mithaq?"))
	require.Contains(t, dsn, "parseTime=True")

	_, err = buildMySQLDSN(Config{Driver: "mysql"})
	require.Error(t, err)
}
