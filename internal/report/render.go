package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/xtxerr/sensorlog/internal/store"
)

// RenderRows writes rows as CSV with a header line. NULL renders as an
// empty field.
func RenderRows(w io.Writer, columns []string, rows []store.Row) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(columns); err != nil {
		return err
	}

	record := make([]string, len(columns))
	for _, row := range rows {
		for i := range record {
			record[i] = ""
			if i < len(row) {
				record[i] = formatValue(row[i])
			}
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}

func formatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case int64:
		return strconv.FormatInt(x, 10)
	case string:
		return x
	default:
		return fmt.Sprint(x)
	}
}

// RenderSummary writes rep as an aligned table.
func RenderSummary(w io.Writer, rep *Report) error {
	fmt.Fprintf(w, "%s: %d rows from %s to %s\n",
		rep.Table, rep.Rows,
		rep.Start.UTC().Format(time.RFC3339),
		rep.End.UTC().Format(time.RFC3339))

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "column\tcount\tmissing\tmin\tmean\tmax\tp50\tp95\t")
	for _, s := range rep.Columns {
		p50, p95 := "-", "-"
		if s.HasPercentiles {
			p50, p95 = formatStat(s.P50), formatStat(s.P95)
		}
		fmt.Fprintf(tw, "%s\t%d\t%d\t%s\t%s\t%s\t%s\t%s\t\n",
			s.Column, s.Count, s.Missing,
			formatStat(s.Min), formatStat(s.Mean), formatStat(s.Max),
			p50, p95)
	}
	return tw.Flush()
}

func formatStat(v float64) string {
	if math.IsNaN(v) {
		return "-"
	}
	return strconv.FormatFloat(v, 'f', 2, 64)
}
