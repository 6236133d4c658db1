package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xtxerr/sensorlog/internal/errors"
)

func TestReader_MostRecent(t *testing.T) {
	for _, driver := range SupportedDrivers {
		t.Run(driver, func(t *testing.T) {
			w, path := testWriter(t, driver)
			writeRecords(t, w, "SensorData", 100, 200, 300, 400)
			r := testReader(t, path, driver)

			rows, err := r.MostRecent(context.Background(), "SensorData", 3)
			require.NoError(t, err)
			assert.Equal(t, []int64{400, 300, 200}, timestamps(t, rows))

			rows, err = r.MostRecent(context.Background(), "SensorData", 10)
			require.NoError(t, err)
			assert.Equal(t, []int64{400, 300, 200, 100}, timestamps(t, rows))
		})
	}
}

func TestReader_MostRecentInvalidCount(t *testing.T) {
	w, path := testWriter(t, "sqlite3")
	writeRecords(t, w, "SensorData", 100)
	r := testReader(t, path, "sqlite3")

	for _, count := range []int{0, -1} {
		_, err := r.MostRecent(context.Background(), "SensorData", count)
		assert.ErrorIs(t, err, errors.ErrInvalidCount)
	}
}

func TestReader_AllRowsInsertionOrder(t *testing.T) {
	w, path := testWriter(t, "sqlite3")
	writeRecords(t, w, "SensorData", 300, 100)
	writeRecords(t, w, "SensorData", 200)

	rows, err := testReader(t, path, "sqlite3").AllRows(context.Background(), "SensorData")
	require.NoError(t, err)
	assert.Equal(t, []int64{300, 100, 200}, timestamps(t, rows))
}

func TestReader_RangeByTime(t *testing.T) {
	for _, driver := range SupportedDrivers {
		t.Run(driver, func(t *testing.T) {
			w, path := testWriter(t, driver)
			writeRecords(t, w, "SensorData", 100, 200, 300, 400, 500)
			r := testReader(t, path, driver)

			rows, err := r.RangeByTime(context.Background(), "SensorData", 100, 400,
				[]string{"unix_time", "water_temp", "pH"})
			require.NoError(t, err)

			want := []Row{
				{200.0, 19.25, 7.2},
				{300.0, 19.25, 7.3},
			}
			if diff := cmp.Diff(want, rows, cmpopts.EquateApprox(0, 1e-9)); diff != "" {
				t.Errorf("RangeByTime mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestReader_RangeByTimeBoundsExclusive(t *testing.T) {
	w, path := testWriter(t, "sqlite3")
	writeRecords(t, w, "SensorData", 100, 200, 300)
	r := testReader(t, path, "sqlite3")

	rows, err := r.RangeByTime(context.Background(), "SensorData", 100, 200, []string{"unix_time"})
	require.NoError(t, err)
	assert.Empty(t, rows)

	rows, err = r.RangeByTime(context.Background(), "SensorData", 99, 301, []string{"unix_time"})
	require.NoError(t, err)
	assert.Equal(t, []int64{100, 200, 300}, timestamps(t, rows))
}

func TestReader_QueryErrors(t *testing.T) {
	ctx := context.Background()
	w, path := testWriter(t, "sqlite3")
	writeRecords(t, w, "SensorData", 100)
	r := testReader(t, path, "sqlite3")

	_, err := r.RangeByTime(ctx, "SensorData", 0, 1000, nil)
	assert.ErrorIs(t, err, errors.ErrEmptyColumns)

	_, err = r.RangeByTime(ctx, "SensorData", 0, 1000, []string{"pH", "salinity"})
	assert.ErrorIs(t, err, errors.ErrColumnNotFound)

	_, err = r.AllRows(ctx, "Missing")
	assert.ErrorIs(t, err, errors.ErrTableNotFound)

	_, err = r.MostRecent(ctx, "bad name", 1)
	assert.ErrorIs(t, err, errors.ErrInvalidName)

	for _, err := range []error{
		errors.ErrEmptyColumns, errors.ErrColumnNotFound, errors.ErrTableNotFound,
	} {
		assert.True(t, errors.IsQueryError(err))
	}
}

func TestReader_NeverCreatesTables(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "absent.db")

	r, err := OpenReader(path, DefaultOptions())
	require.NoError(t, err)
	defer r.Close()

	_, err = r.AllRows(ctx, "SensorData")
	assert.ErrorIs(t, err, errors.ErrTableNotFound)

	tables, err := r.Tables(ctx)
	require.NoError(t, err)
	assert.Empty(t, tables)

	_, err = os.Stat(path)
	assert.NoError(t, err)
}
