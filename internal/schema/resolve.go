package schema

import (
	"regexp"
	"time"

	"github.com/xtxerr/sensorlog/config"
)

// dailyLayout renders a date as MM_DD_YYYY.
const dailyLayout = "01_02_2006"

var dailyPattern = regexp.MustCompile(`^_\d{2}_\d{2}_\d{4}$`)

// DailyTableName returns the concrete table for the day containing t,
// e.g. "_10_19_2026".
func DailyTableName(t time.Time) string {
	return "_" + t.Format(dailyLayout)
}

// IsDailyTable reports whether name looks like a resolved DAILY table.
func IsDailyTable(name string) bool {
	return dailyPattern.MatchString(name)
}

// Resolve maps a logical table name to the physical one. The DAILY alias
// becomes the day table for now; any other name is returned unchanged.
func Resolve(aliasOrName string, now time.Time) string {
	if aliasOrName == config.DailyAlias {
		return DailyTableName(now)
	}
	return aliasOrName
}

// ValidateLogical validates s under a logical table name. The DAILY alias
// is checked as a day table and the result keeps the alias as its name, to
// serve as the template for every day.
func (s TableSpec) ValidateLogical(name string) (Table, error) {
	if name != config.DailyAlias {
		return s.Validate(name)
	}
	table, err := s.Validate(DailyTableName(time.Now()))
	if err != nil {
		return Table{}, err
	}
	table.Name = config.DailyAlias
	return table, nil
}
