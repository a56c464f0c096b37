package render

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/vitebski/booking-admin/pkg/models"
)

// Rows writes a row set in the requested format: table, json or csv
func Rows(w io.Writer, set *models.RowSet, format string) error {
	switch format {
	case "json":
		return JSON(w, set)
	case "csv":
		return WriteCSV(w, set)
	default:
		return Table(w, set)
	}
}

// Table renders a row set as a boxed table
func Table(w io.Writer, set *models.RowSet) error {
	if len(set.Columns) == 0 {
		_, _ = fmt.Fprintln(w, "(no columns)")
		return nil
	}
	if len(set.Rows) == 0 {
		_, _ = fmt.Fprintln(w, "(0 rows)")
		return nil
	}

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)

	headerRow := make(table.Row, len(set.Columns))
	for i, col := range set.Columns {
		headerRow[i] = col
	}
	t.AppendHeader(headerRow)

	for _, result := range set.Rows {
		row := make(table.Row, len(set.Columns))
		for i, col := range set.Columns {
			row[i] = FormatValue(result[col])
		}
		t.AppendRow(row)
	}

	t.Render()
	_, _ = fmt.Fprintf(w, "(%d rows)\n", len(set.Rows))
	return nil
}

// JSON writes the rows as an indented array of objects
func JSON(w io.Writer, set *models.RowSet) error {
	rows := make([]map[string]string, 0, len(set.Rows))
	for _, row := range set.Rows {
		out := make(map[string]string, len(set.Columns))
		for _, col := range set.Columns {
			out[col] = FormatValue(row[col])
		}
		rows = append(rows, out)
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(rows)
}

// WriteCSV writes a header line and one record per row in column order.
// NULL becomes an empty cell.
func WriteCSV(w io.Writer, set *models.RowSet) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(set.Columns); err != nil {
		return err
	}
	for _, row := range set.Rows {
		record := make([]string, len(set.Columns))
		for i, col := range set.Columns {
			if row[col] != nil {
				record[i] = FormatValue(row[col])
			}
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// Columns renders the column catalog of a table
func Columns(w io.Writer, columns []models.Column) {
	if len(columns) == 0 {
		_, _ = fmt.Fprintln(w, "(no columns)")
		return
	}

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"#", "column", "type", "nullable", "default", "max length"})
	for _, col := range columns {
		def := ""
		if col.Default != nil {
			def = *col.Default
		}
		maxLen := ""
		if col.MaxLength != nil {
			maxLen = fmt.Sprintf("%d", *col.MaxLength)
		}
		t.AppendRow(table.Row{col.Position, col.Name, col.SQLType, col.Nullable, def, maxLen})
	}
	t.Render()
}

// Fields renders the input form for a table
func Fields(w io.Writer, fields []models.Field) {
	if len(fields) == 0 {
		_, _ = fmt.Fprintln(w, "(nothing to render)")
		return
	}

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"field", "input", "required", "notes"})
	for _, f := range fields {
		var notes []string
		if f.ReadOnly {
			notes = append(notes, "assigned by the database")
		}
		if len(f.Options) > 0 {
			notes = append(notes, "one of "+strings.Join(f.Options, ", "))
		}
		if f.Column.MaxLength != nil && f.Kind == models.KindText {
			notes = append(notes, fmt.Sprintf("max %d chars", *f.Column.MaxLength))
		}
		t.AppendRow(table.Row{f.Column.Name, f.Kind.String(), f.Required, strings.Join(notes, "; ")})
	}
	t.Render()
}

// Tables lists table names one per line
func Tables(w io.Writer, names []string) {
	for _, name := range names {
		_, _ = fmt.Fprintln(w, name)
	}
}

// Record prints a single row as column: value lines
func Record(w io.Writer, columns []string, row models.Row) {
	width := 0
	for _, col := range columns {
		if len(col) > width {
			width = len(col)
		}
	}
	for _, col := range columns {
		_, _ = fmt.Fprintf(w, "%-*s  %s\n", width, col, FormatValue(row[col]))
	}
}

// FormatValue renders a stored value for display
func FormatValue(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return "NULL"
	case []byte:
		return string(val)
	case time.Time:
		switch {
		case val.Year() == 0:
			return val.Format("15:04:05")
		case val.Hour() == 0 && val.Minute() == 0 && val.Second() == 0 && val.Nanosecond() == 0:
			return val.Format("2006-01-02")
		default:
			return val.Format(time.RFC3339)
		}
	default:
		return fmt.Sprintf("%v", v)
	}
}
