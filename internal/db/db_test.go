package db

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpen_MigratesToCurrentVersion(t *testing.T) {
	dir := t.TempDir()

	conn, err := Open(dir)
	require.NoError(t, err)

	v, err := GetUserVersion(conn)
	require.NoError(t, err)
	assert.Equal(t, CurrentSchemaVersion, v)

	for _, table := range []string{"memories", "tasks"} {
		var name string
		err := conn.QueryRow(`SELECT name FROM sqlite_master WHERE type='table' AND name=?`, table).Scan(&name)
		require.NoError(t, err, table)
	}
	require.NoError(t, conn.Close())

	// Reopening is idempotent.
	conn, err = Open(dir)
	require.NoError(t, err)
	defer conn.Close()
	v, err = GetUserVersion(conn)
	require.NoError(t, err)
	assert.Equal(t, CurrentSchemaVersion, v)
}
