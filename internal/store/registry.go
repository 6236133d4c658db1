package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/xtxerr/sensorlog/config"
	"github.com/xtxerr/sensorlog/internal/errors"
	"github.com/xtxerr/sensorlog/internal/schema"
)

// Registry declares logical tables, creates their backing tables on demand
// and caches their column lists. Tables are never dropped.
//
// Registry is safe for concurrent use.
type Registry struct {
	db *DB

	mu     sync.RWMutex
	tables map[string]schema.Table
	daily  *schema.Table
}

// NewRegistry creates a registry over db.
func NewRegistry(db *DB) *Registry {
	return &Registry{
		db:     db,
		tables: make(map[string]schema.Table),
	}
}

// Load caches the tables that already exist in the store so records can be
// written to them without being declared again in this process.
func (r *Registry) Load(ctx context.Context) error {
	names, err := r.db.tableNames(ctx)
	if err != nil {
		return err
	}

	for _, name := range names {
		cols, err := r.db.tableColumns(ctx, name)
		if err != nil {
			return err
		}
		table, err := tableFromColumns(name, cols)
		if err != nil {
			log.Debug("skipping table not shaped like a log table", "table", name, "error", err)
			continue
		}

		r.mu.Lock()
		if _, ok := r.tables[name]; !ok {
			r.tables[name] = table
		}
		r.mu.Unlock()
	}

	return nil
}

// tableFromColumns rebuilds a table definition from physical columns.
func tableFromColumns(name string, cols []Column) (schema.Table, error) {
	spec := schema.TableSpec{
		Names: make([]string, len(cols)),
		Types: make([]schema.ColumnType, len(cols)),
	}
	for i, c := range cols {
		spec.Names[i] = c.Name
		switch strings.ToUpper(c.Type) {
		case "INTEGER":
			spec.Types[i] = schema.TypeInteger
		case "TEXT":
			spec.Types[i] = schema.TypeText
		default:
			spec.Types[i] = schema.TypeReal
		}
	}
	if len(spec.Types) > 0 && spec.Types[0] == schema.TypeReal {
		spec.Types[0] = schema.TypeTimestamp
	}
	return spec.Validate(name)
}

// Declare validates every table declaration and creates each table that is
// absent. A declaration that fails validation is reported and skipped; the
// others still proceed. The returned error joins every failure.
//
// Declaring an existing table again leaves its schema untouched but
// refreshes the cached column list. If the existing columns differ from the
// declaration, the cache follows the store and the declaration is reported
// as a schema mismatch. The DAILY alias is kept as a template
// from which each day's table is created on first use.
func (r *Registry) Declare(ctx context.Context, specs map[string]schema.TableSpec) error {
	names := make([]string, 0, len(specs))
	for name := range specs {
		names = append(names, name)
	}
	sort.Strings(names)

	var errs []error
	for _, name := range names {
		if err := r.declare(ctx, name, specs[name]); err != nil {
			log.Warn("table declaration skipped", "table", name, "error", err)
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

func (r *Registry) declare(ctx context.Context, name string, spec schema.TableSpec) error {
	if name == config.DailyAlias {
		table, err := spec.ValidateLogical(name)
		if err != nil {
			return err
		}

		r.mu.Lock()
		r.daily = &table
		r.mu.Unlock()
		return nil
	}

	table, err := spec.Validate(name)
	if err != nil {
		return err
	}

	if err := r.create(ctx, table); err != nil {
		return err
	}

	r.mu.Lock()
	r.tables[name] = table
	r.mu.Unlock()

	return nil
}

// create issues CREATE TABLE IF NOT EXISTS. When the table already exists
// with other columns it is left untouched: the cache is refreshed from its
// physical columns and an error wrapping ErrSchemaMismatch is returned.
func (r *Registry) create(ctx context.Context, table schema.Table) error {
	if err := r.db.checkOpen(); err != nil {
		return err
	}

	if _, err := r.db.db.ExecContext(ctx, table.CreateSQL()); err != nil {
		return fmt.Errorf("create table %s: %w", table.Name, err)
	}

	cols, err := r.db.tableColumns(ctx, table.Name)
	if err != nil {
		return err
	}
	if sameColumns(cols, table) {
		return nil
	}

	r.cachePhysical(table.Name, cols)
	declared := append([]string{table.TimestampColumn()}, table.ChannelNames()...)
	return fmt.Errorf("table %s exists with columns (%s), declared (%s): %w",
		table.Name, columnList(cols), strings.Join(declared, ", "), errors.ErrSchemaMismatch)
}

// cachePhysical replaces the cached definition of name with the one its
// physical columns describe, or forgets it if they describe no log table.
func (r *Registry) cachePhysical(name string, cols []Column) {
	r.mu.Lock()
	defer r.mu.Unlock()

	table, err := tableFromColumns(name, cols)
	if err != nil {
		delete(r.tables, name)
		return
	}
	r.tables[name] = table
}

func columnList(cols []Column) string {
	names := make([]string, len(cols))
	for i, c := range cols {
		names[i] = c.Name
	}
	return strings.Join(names, ", ")
}

func sameColumns(cols []Column, table schema.Table) bool {
	if len(cols) != table.Width() {
		return false
	}
	for i, c := range cols {
		if !strings.EqualFold(c.Name, table.Columns[i].Name) {
			return false
		}
	}
	return true
}

// Ensure returns the definition of a physical table, creating it from the
// DAILY template when name is a day table that does not exist yet.
func (r *Registry) Ensure(ctx context.Context, name string) (schema.Table, error) {
	r.mu.RLock()
	table, ok := r.tables[name]
	daily := r.daily
	r.mu.RUnlock()

	if ok {
		return table, nil
	}

	if daily == nil || !schema.IsDailyTable(name) {
		return schema.Table{}, errors.NewTableNotFound(name)
	}

	table = daily.Rename(name)
	if err := r.create(ctx, table); err != nil {
		return schema.Table{}, err
	}

	r.mu.Lock()
	r.tables[name] = table
	r.mu.Unlock()

	log.Info("created daily table", "table", name)
	return table, nil
}

// Table returns the definition for a logical table name. For the DAILY
// alias this is the template shared by every day table.
func (r *Registry) Table(name string) (schema.Table, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if name == config.DailyAlias {
		if r.daily == nil {
			return schema.Table{}, false
		}
		return *r.daily, true
	}
	table, ok := r.tables[name]
	return table, ok
}

// Tables returns the known physical table names, sorted.
func (r *Registry) Tables() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.tables))
	for name := range r.tables {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
