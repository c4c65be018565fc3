package db

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpen_CreatesSchemaOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "audit.db")

	database, err := Open(path)
	require.NoError(t, err)

	var tables int
	err = database.QueryRow(`
		SELECT COUNT(*) FROM sqlite_master
		WHERE type='table' AND name IN ('schema_version', 'issuances', 'audit_logs')
	`).Scan(&tables)
	require.NoError(t, err)
	assert.Equal(t, 3, tables)
	require.NoError(t, database.Close())

	// reopening an initialized database is a no-op
	database, err = Open(path)
	require.NoError(t, err)
	defer database.Close()

	var versions int
	require.NoError(t, database.QueryRow(`SELECT COUNT(*) FROM schema_version`).Scan(&versions))
	assert.Equal(t, 1, versions)
}
