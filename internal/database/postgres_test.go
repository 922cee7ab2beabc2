package database

import (
	"context"
	"errors"
	"io/fs"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrationsAreEmbedded(t *testing.T) {
	names, err := fs.Glob(migrationsFS, "migrations/*.sql")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{
		"migrations/0001_create_cases.up.sql",
		"migrations/0001_create_cases.down.sql",
	}, names)

	up, err := fs.ReadFile(migrationsFS, "migrations/0001_create_cases.up.sql")
	require.NoError(t, err)
	for _, col := range []string{"turns", "symptom_frame", "triage", "action", "summary", "status", "version"} {
		assert.Contains(t, string(up), col)
	}
}

func TestPing(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectPing()
	assert.NoError(t, Ping(db)(context.Background()))

	mock.ExpectPing().WillReturnError(errors.New("connection refused"))
	assert.Error(t, Ping(db)(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}
