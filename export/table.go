package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"
)

// DisplayLimit is how many rows are printed to the console.
const DisplayLimit = 100

// Table is a rectangular view of a record set.
type Table struct {
	Headers []string
	Rows    [][]string
}

// Len returns the number of data rows.
func (t *Table) Len() int { return len(t.Rows) }

// BuildTable flattens the records, takes the sorted union of their keys as
// columns (renamed with FormatColumnName) and writes missing fields as "".
func BuildTable(records []map[string]any) *Table {
	flat := make([]map[string]any, len(records))
	keySet := map[string]struct{}{}
	for i, r := range records {
		flat[i] = Flatten(r, DefaultSeparator)
		for k := range flat[i] {
			keySet[k] = struct{}{}
		}
	}
	keys := make([]string, 0, len(keySet))
	for k := range keySet {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	// Two raw keys can format to the same name; they share one column and the
	// value of the last key in sorted order wins.
	var headers []string
	column := map[string]int{}
	keyCol := make(map[string]int, len(keys))
	for _, k := range keys {
		name := FormatColumnName(k)
		idx, ok := column[name]
		if !ok {
			idx = len(headers)
			column[name] = idx
			headers = append(headers, name)
		}
		keyCol[k] = idx
	}

	rows := make([][]string, len(flat))
	for i, rec := range flat {
		row := make([]string, len(headers))
		for _, k := range keys {
			if v, ok := rec[k]; ok {
				row[keyCol[k]] = FormatCell(v)
			}
		}
		rows[i] = row
	}
	return &Table{Headers: headers, Rows: rows}
}

// FormatCell renders one value; nil becomes "" and arrays or objects become JSON.
func FormatCell(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case json.Number:
		return x.String()
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case []any, map[string]any:
		b, err := json.Marshal(x)
		if err != nil {
			return fmt.Sprint(x)
		}
		return string(b)
	default:
		return fmt.Sprint(x)
	}
}

// WriteCSV writes a header row and one row per record.
func WriteCSV(w io.Writer, t *Table) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(t.Headers); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}
	if err := cw.WriteAll(t.Rows); err != nil {
		return fmt.Errorf("failed to write CSV rows: %w", err)
	}
	return nil
}

// WriteJSON writes the raw records as an indented JSON array.
func WriteJSON(w io.Writer, records []map[string]any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if records == nil {
		records = []map[string]any{}
	}
	if err := enc.Encode(records); err != nil {
		return fmt.Errorf("failed to encode records: %w", err)
	}
	return nil
}

// RenderTable prints at most limit rows (all rows when limit <= 0).
func RenderTable(w io.Writer, t *Table, limit int) {
	rows := t.Rows
	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}

	table := tablewriter.NewWriter(w)
	table.SetHeader(t.Headers)
	table.SetAutoFormatHeaders(false)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAutoWrapText(false)
	table.SetRowLine(false)
	for _, r := range rows {
		clean := make([]string, len(r))
		for i, c := range r {
			clean[i] = strings.ReplaceAll(c, "\n", " ")
		}
		table.Append(clean)
	}
	table.Render()

	if len(rows) < len(t.Rows) {
		_, _ = fmt.Fprintf(w, "Showing first %d of %d records\n", len(rows), len(t.Rows))
	}
}
