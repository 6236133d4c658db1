package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xtxerr/sensorlog/internal/errors"
	"github.com/xtxerr/sensorlog/internal/schema"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "test.db"), DefaultOptions())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestRegistry_DeclareCreatesTable(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	reg := NewRegistry(db)

	require.NoError(t, reg.Declare(ctx, map[string]schema.TableSpec{"SensorData": sensorData}))

	cols, err := db.tableColumns(ctx, "SensorData")
	require.NoError(t, err)
	require.Len(t, cols, 7)
	assert.Equal(t, "unix_time", cols[0].Name)
	assert.Equal(t, "REAL", cols[0].Type)
	assert.Equal(t, "distance", cols[6].Name)

	assert.Equal(t, []string{"SensorData"}, reg.Tables())
}

func TestRegistry_DeclareIdempotent(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	reg := NewRegistry(db)

	specs := map[string]schema.TableSpec{"SensorData": sensorData}
	require.NoError(t, reg.Declare(ctx, specs))
	require.NoError(t, reg.Declare(ctx, specs))

	names, err := db.tableNames(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"SensorData"}, names)
}

func TestRegistry_DeclareMismatchSkipsOnlyThatTable(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	reg := NewRegistry(db)

	bad := schema.TableSpec{
		Names: sensorData.Names,
		Types: sensorData.Types[:6],
	}
	good := schema.TableSpec{
		Names: []string{"unix_time", "pH"},
		Types: []schema.ColumnType{schema.TypeTimestamp, schema.TypeReal},
	}

	err := reg.Declare(ctx, map[string]schema.TableSpec{
		"SensorData": bad,
		"Tank":       good,
	})
	require.ErrorIs(t, err, errors.ErrSchemaMismatch)

	names, err := db.tableNames(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Tank"}, names)

	_, ok := reg.Table("SensorData")
	assert.False(t, ok)
}

func TestRegistry_DailyTemplate(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	reg := NewRegistry(db)

	require.NoError(t, reg.Declare(ctx, map[string]schema.TableSpec{"DAILY": sensorData}))

	// Nothing is created until a day table is first used.
	names, err := db.tableNames(ctx)
	require.NoError(t, err)
	assert.Empty(t, names)

	tmpl, ok := reg.Table("DAILY")
	require.True(t, ok)
	assert.Equal(t, 7, tmpl.Width())

	day := schema.Resolve("DAILY", time.Date(2026, time.October, 19, 8, 0, 0, 0, time.Local))
	table, err := reg.Ensure(ctx, day)
	require.NoError(t, err)
	assert.Equal(t, day, table.Name)
	assert.Equal(t, sensorData.Names, append([]string{table.TimestampColumn()}, table.ChannelNames()...))

	names, err = db.tableNames(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{day}, names)
}

func TestRegistry_EnsureUnknown(t *testing.T) {
	ctx := context.Background()
	reg := NewRegistry(openTestDB(t))

	_, err := reg.Ensure(ctx, "Nope")
	assert.ErrorIs(t, err, errors.ErrTableNotFound)

	// Day tables need a DAILY declaration.
	_, err = reg.Ensure(ctx, "_10_19_2026")
	assert.ErrorIs(t, err, errors.ErrTableNotFound)
}

func TestRegistry_Load(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "test.db")

	db, err := Open(path, DefaultOptions())
	require.NoError(t, err)
	require.NoError(t, NewRegistry(db).Declare(ctx, map[string]schema.TableSpec{"SensorData": sensorData}))
	require.NoError(t, db.Close())

	db, err = Open(path, DefaultOptions())
	require.NoError(t, err)
	defer db.Close()

	reg := NewRegistry(db)
	require.NoError(t, reg.Load(ctx))

	table, err := reg.Ensure(ctx, "SensorData")
	require.NoError(t, err)
	assert.Equal(t, 7, table.Width())
	assert.Equal(t, schema.TypeTimestamp, table.Columns[0].Type)
}

func TestRegistry_DeclareColumnDrift(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "test.db")

	narrow := schema.TableSpec{
		Names: []string{"unix_time", "a"},
		Types: []schema.ColumnType{schema.TypeTimestamp, schema.TypeReal},
	}
	wide := schema.TableSpec{
		Names: []string{"unix_time", "a", "b"},
		Types: []schema.ColumnType{schema.TypeTimestamp, schema.TypeReal, schema.TypeReal},
	}

	db, err := Open(path, DefaultOptions())
	require.NoError(t, err)
	require.NoError(t, NewRegistry(db).Declare(ctx, map[string]schema.TableSpec{"T": narrow}))
	require.NoError(t, db.Close())

	db, err = Open(path, DefaultOptions())
	require.NoError(t, err)
	defer db.Close()

	// A channel was added to T in the config since it was created.
	reg := NewRegistry(db)
	require.NoError(t, reg.Load(ctx))
	err = reg.Declare(ctx, map[string]schema.TableSpec{"T": wide, "Good": wide})
	require.ErrorIs(t, err, errors.ErrSchemaMismatch)
	assert.Contains(t, err.Error(), "table T exists with columns (unix_time, a)")

	table, ok := reg.Table("T")
	require.True(t, ok)
	assert.Equal(t, 2, table.Width(), "cache must follow the stored columns")

	cols, err := db.tableColumns(ctx, "T")
	require.NoError(t, err)
	assert.Len(t, cols, 2, "existing table must not be altered")

	good, ok := reg.Table("Good")
	require.True(t, ok)
	assert.Equal(t, 3, good.Width())
}
