package migrate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/malone1029/nia-results-tracker-sub003/internal/db"
)

func TestMigrateIsIdempotent(t *testing.T) {
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	defer conn.Close()

	v, err := Version(conn)
	require.Error(t, err, "schema_version does not exist before the first run")
	assert.Zero(t, v)

	require.NoError(t, Migrate(conn, "sqlite"))
	first, err := Version(conn)
	require.NoError(t, err)
	latest, err := Latest("sqlite")
	require.NoError(t, err)
	assert.Equal(t, latest, first)

	require.NoError(t, Migrate(conn, "sqlite"))
	second, err := Version(conn)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	var n int
	require.NoError(t, conn.QueryRow(`SELECT COUNT(*) FROM readiness_snapshots`).Scan(&n))
	assert.Zero(t, n)
}

func TestLoadMigrationsPerDialect(t *testing.T) {
	for _, dialect := range []string{"sqlite", "postgres"} {
		ms, err := loadMigrations(dialect)
		require.NoError(t, err, dialect)
		require.NotEmpty(t, ms, dialect)
		for i := 1; i < len(ms); i++ {
			assert.Less(t, ms[i-1].Version, ms[i].Version)
		}
	}
	_, err := loadMigrations("oracle")
	assert.Error(t, err)
}
