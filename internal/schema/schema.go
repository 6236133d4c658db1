// Package schema describes logged tables: their ordered, typed columns and
// the mapping from semantic column types to the store's native types.
//
// A table's first column is always its timestamp. The remaining columns are
// channels, filled in declared order by the aggregator.
package schema

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/xtxerr/sensorlog/internal/errors"
)

// ColumnType is the semantic type of a column.
type ColumnType int

const (
	// TypeReal is a floating point measurement.
	TypeReal ColumnType = iota
	// TypeInteger is an integer measurement.
	TypeInteger
	// TypeText is a free-form string.
	TypeText
	// TypeTimestamp is unix seconds, stored as a real.
	TypeTimestamp
)

// String returns the config spelling of the type.
func (t ColumnType) String() string {
	switch t {
	case TypeReal:
		return "real"
	case TypeInteger:
		return "integer"
	case TypeText:
		return "text"
	case TypeTimestamp:
		return "timestamp"
	default:
		return fmt.Sprintf("ColumnType(%d)", int(t))
	}
}

// NativeType returns the column type used in CREATE TABLE.
func (t ColumnType) NativeType() string {
	switch t {
	case TypeInteger:
		return "INTEGER"
	case TypeText:
		return "TEXT"
	default:
		return "REAL"
	}
}

// Numeric reports whether values of this type are numbers.
func (t ColumnType) Numeric() bool {
	return t != TypeText
}

// typeNames covers the spellings accepted in table declarations, including
// the ones older logger configs used.
var typeNames = map[string]ColumnType{
	"real":      TypeReal,
	"float":     TypeReal,
	"float64":   TypeReal,
	"double":    TypeReal,
	"int":       TypeInteger,
	"integer":   TypeInteger,
	"str":       TypeText,
	"text":      TypeText,
	"string":    TypeText,
	"datetime":  TypeTimestamp,
	"timestamp": TypeTimestamp,
}

// ParseColumnType parses a declared type name. Matching is case-insensitive.
func ParseColumnType(s string) (ColumnType, error) {
	t, ok := typeNames[strings.ToLower(strings.TrimSpace(s))]
	if !ok {
		return 0, fmt.Errorf("%q: %w", s, errors.ErrInvalidType)
	}
	return t, nil
}

// UnmarshalText lets ColumnType be decoded straight from YAML.
func (t *ColumnType) UnmarshalText(text []byte) error {
	parsed, err := ParseColumnType(string(text))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (t ColumnType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// ColumnSpec is one named, typed column.
type ColumnSpec struct {
	Name string
	Type ColumnType
}

// identPattern restricts table and column names to plain SQL identifiers.
var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ValidateName checks that name can be used as a table or column identifier.
func ValidateName(name string) error {
	if !identPattern.MatchString(name) {
		return fmt.Errorf("%q: %w", name, errors.ErrInvalidName)
	}
	return nil
}

// Quote returns name as a quoted SQL identifier.
func Quote(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// TableSpec is a table declaration as written in configuration: parallel
// lists of column names and column types.
type TableSpec struct {
	Names []string     `yaml:"names"`
	Types []ColumnType `yaml:"types"`
}

// Table is a validated table definition.
type Table struct {
	Name    string
	Columns []ColumnSpec
}

// Validate checks the declaration and returns the table it describes.
//
// The name and type lists must have the same length, every name must be a
// plain identifier used once, and the first column must hold the timestamp.
func (s TableSpec) Validate(name string) (Table, error) {
	if err := ValidateName(name); err != nil {
		return Table{}, fmt.Errorf("table: %w", err)
	}
	if len(s.Names) != len(s.Types) {
		return Table{}, fmt.Errorf("table %s has %d column names and %d column types: %w",
			name, len(s.Names), len(s.Types), errors.ErrSchemaMismatch)
	}
	if len(s.Names) == 0 {
		return Table{}, fmt.Errorf("table %s: %w", name, errors.ErrMissingTimestamp)
	}
	if t := s.Types[0]; t != TypeTimestamp && t != TypeInteger {
		return Table{}, fmt.Errorf("table %s column %s is %s: %w", name, s.Names[0], t, errors.ErrMissingTimestamp)
	}

	seen := make(map[string]bool, len(s.Names))
	cols := make([]ColumnSpec, len(s.Names))
	for i, n := range s.Names {
		if err := ValidateName(n); err != nil {
			return Table{}, fmt.Errorf("table %s column %d: %w", name, i, err)
		}
		key := strings.ToLower(n)
		if seen[key] {
			return Table{}, fmt.Errorf("table %s column %s: %w", name, n, errors.ErrDuplicateColumn)
		}
		seen[key] = true
		cols[i] = ColumnSpec{Name: n, Type: s.Types[i]}
	}

	return Table{Name: name, Columns: cols}, nil
}

// Rename returns a copy of the table under another name. Used to turn the
// DAILY template into a concrete day table.
func (t Table) Rename(name string) Table {
	cols := make([]ColumnSpec, len(t.Columns))
	copy(cols, t.Columns)
	return Table{Name: name, Columns: cols}
}

// TimestampColumn returns the name of the leading timestamp column.
func (t Table) TimestampColumn() string {
	return t.Columns[0].Name
}

// Channels returns the non-timestamp columns in declared order.
func (t Table) Channels() []ColumnSpec {
	return t.Columns[1:]
}

// ChannelNames returns the channel names in declared order.
func (t Table) ChannelNames() []string {
	names := make([]string, 0, len(t.Columns)-1)
	for _, c := range t.Channels() {
		names = append(names, c.Name)
	}
	return names
}

// Width is the number of columns, timestamp included.
func (t Table) Width() int {
	return len(t.Columns)
}

// CreateSQL returns the CREATE TABLE IF NOT EXISTS statement for the table.
func (t Table) CreateSQL() string {
	var b strings.Builder
	b.WriteString("CREATE TABLE IF NOT EXISTS ")
	b.WriteString(Quote(t.Name))
	b.WriteString(" (")
	for i, c := range t.Columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(Quote(c.Name))
		b.WriteByte(' ')
		b.WriteString(c.Type.NativeType())
	}
	b.WriteString(")")
	return b.String()
}

// InsertSQL returns a positional INSERT covering every column.
func (t Table) InsertSQL() string {
	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(Quote(t.Name))
	b.WriteString(" VALUES (")
	for i := range t.Columns {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteByte('?')
	}
	b.WriteString(")")
	return b.String()
}
