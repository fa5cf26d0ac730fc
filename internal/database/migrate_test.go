package database

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeMigrations(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	files := map[string]string{
		"000001_init.up.sql":   "CREATE TABLE a (id INT);",
		"000001_init.down.sql": "DROP TABLE a;",
		"000002_more.up.sql":   "CREATE TABLE b (id INT);",
		"000002_more.down.sql": "DROP TABLE b;",
		"README.md":            "ignored",
	}
	for name, body := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
	}
	return dir
}

func discardLog() *logrus.Entry {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logrus.NewEntry(logger)
}

func TestMigrateUpRunsInOrder(t *testing.T) {
	db, mock := newMock(t)
	dir := writeMigrations(t)

	mock.ExpectExec("CREATE TABLE a").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE TABLE b").WillReturnResult(sqlmock.NewResult(0, 0))

	n, err := Migrate(context.Background(), db, dir, "up", discardLog())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrateDownRunsReversed(t *testing.T) {
	db, mock := newMock(t)
	dir := writeMigrations(t)

	mock.ExpectExec("DROP TABLE b").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("DROP TABLE a").WillReturnResult(sqlmock.NewResult(0, 0))

	n, err := Migrate(context.Background(), db, dir, "down", discardLog())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrateRejectsDirection(t *testing.T) {
	db, _ := newMock(t)
	_, err := Migrate(context.Background(), db, t.TempDir(), "sideways", discardLog())
	assert.Error(t, err)
}
