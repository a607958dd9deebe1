package database

import (
	"context"
	"io"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSQLiteDSN(t *testing.T) {
	dsn := sqliteDSN("/tmp/mirror.db")
	assert.Equal(t, "/tmp/mirror.db?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(ON)", dsn)

	dsn = sqliteDSN("file:mirror.db?mode=rwc")
	assert.Contains(t, dsn, "mode=rwc&_pragma=busy_timeout(5000)")
}

func TestNewSQLite_OpensAndPings(t *testing.T) {
	log := logrus.New()
	log.SetOutput(io.Discard)

	db, err := NewSQLite(context.Background(), filepath.Join(t.TempDir(), "mirror.db"), log)
	require.NoError(t, err)
	defer db.Close()

	var mode string
	require.NoError(t, db.QueryRow("PRAGMA journal_mode").Scan(&mode))
	assert.Equal(t, "wal", mode)
}
