package db

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRebind(t *testing.T) {
	q := `SELECT id FROM processes WHERE owner=? AND status='draft?' AND category_id=?`
	assert.Equal(t, q, Rebind("sqlite", q))
	assert.Equal(t, `SELECT id FROM processes WHERE owner=$1 AND status='draft?' AND category_id=$2`, Rebind("postgres", q))
}

func TestDialect(t *testing.T) {
	assert.Equal(t, "postgres", Dialect("postgres"))
	assert.Equal(t, "sqlite", Dialect(""))
	assert.Equal(t, "sqlite", Dialect("sqlite"))
}

func TestOpenSQLiteCreatesWorkspaceFile(t *testing.T) {
	dir := t.TempDir()
	conn, err := Open(Config{Workspace: dir})
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.Ping())
	assert.FileExists(t, filepath.Join(dir, ".hub", "hub.db"))

	var fk int
	require.NoError(t, conn.QueryRow(`PRAGMA foreign_keys`).Scan(&fk))
	assert.Equal(t, 1, fk)
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := Open(Config{Driver: "mysql"})
	require.Error(t, err)
	_, err = Open(Config{Driver: "postgres"})
	require.Error(t, err)
}
