package store

import (
	"bytes"
	"context"
	"database/sql"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xtxerr/sensorlog/internal/errors"
	"github.com/xtxerr/sensorlog/internal/logging"
)

func TestOpen_CreatesNewDatabase(t *testing.T) {
	for _, driver := range SupportedDrivers {
		t.Run(driver, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "test.db")

			db, err := Open(path, Options{Driver: driver})
			require.NoError(t, err)
			defer db.Close()

			_, err = os.Stat(path)
			assert.NoError(t, err, "database file was not created")
			assert.Equal(t, driver, db.Driver())
		})
	}
}

func TestOpen_AdvisoryOnlyForNewFile(t *testing.T) {
	var logs bytes.Buffer
	prev := logging.Logger
	logging.InitWriter(&logs, slog.LevelInfo, false)
	t.Cleanup(func() {
		if prev != nil {
			logging.InitWithHandler(prev.Handler())
		}
	})

	path := filepath.Join(t.TempDir(), "test.db")

	db, err := Open(path, Options{ReadOnly: true})
	require.NoError(t, err)
	require.NoError(t, db.Close())
	assert.Contains(t, logs.String(), "no prior database, created a new one")

	logs.Reset()
	db, err = Open(path, Options{})
	require.NoError(t, err)
	require.NoError(t, db.Close())
	assert.NotContains(t, logs.String(), "no prior database")
}

func TestOpen_WALMode(t *testing.T) {
	for _, driver := range SupportedDrivers {
		t.Run(driver, func(t *testing.T) {
			db, err := Open(filepath.Join(t.TempDir(), "test.db"), Options{Driver: driver})
			require.NoError(t, err)
			defer db.Close()

			var mode string
			require.NoError(t, db.X().Get(&mode, "PRAGMA journal_mode"))
			assert.Equal(t, "wal", mode)
		})
	}
}

func TestOpen_UnsupportedDriver(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "test.db"), Options{Driver: "postgres"})
	assert.ErrorIs(t, err, errors.ErrUnsupportedType)
}

func TestClose_Idempotent(t *testing.T) {
	db, err := Open(filepath.Join(t.TempDir(), "test.db"), DefaultOptions())
	require.NoError(t, err)

	require.NoError(t, db.Close())
	require.NoError(t, db.Close())

	_, err = db.tableNames(context.Background())
	assert.ErrorIs(t, err, errors.ErrStoreClosed)
}

func TestTransaction_RollsBack(t *testing.T) {
	ctx := context.Background()
	db, err := Open(filepath.Join(t.TempDir(), "test.db"), DefaultOptions())
	require.NoError(t, err)
	defer db.Close()

	_, err = db.X().Exec(`CREATE TABLE t (v REAL)`)
	require.NoError(t, err)

	boom := errors.New("boom")
	err = db.Transaction(ctx, func(tx *sql.Tx) error {
		if _, err := tx.Exec(`INSERT INTO t VALUES (1)`); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	var n int
	require.NoError(t, db.X().Get(&n, `SELECT COUNT(*) FROM t`))
	assert.Zero(t, n)
}

func TestReadOnly_RejectsWrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	w, err := Open(path, DefaultOptions())
	require.NoError(t, err)
	defer w.Close()

	_, err = w.X().Exec(`CREATE TABLE t (v REAL)`)
	require.NoError(t, err)

	r, err := Open(path, Options{ReadOnly: true})
	require.NoError(t, err)
	defer r.Close()

	_, err = r.X().Exec(`INSERT INTO t VALUES (1)`)
	assert.Error(t, err)
}
