// Package reformat cleans up contact CSV exports: readable column names,
// a source column, contact number validation and local update times.
package reformat

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/habedi/booksync/export"
	"github.com/rs/zerolog/log"
)

const (
	NotAvailable    = "Not available"
	DefaultSource   = "XeroDataSource"
	DefaultTimezone = "Asia/Kolkata"

	SourceColumn          = "Source"
	ContactNumberColumn   = "Contact_Number"
	ContactValidateColumn = "Contact_Number_Validate"
	UpdatedDateColumn     = "Updated_Date_U_T_C"

	sourceIndex   = 1
	validateIndex = 3
	validLength   = 10
)

// ErrEmptyInput is returned for a file with no header row.
var ErrEmptyInput = errors.New("input CSV has no header row")

// MissingColumnError names a column the reformatter needs but the input lacks.
type MissingColumnError struct {
	Column string
}

func (e *MissingColumnError) Error() string {
	return fmt.Sprintf("input CSV has no %s column", e.Column)
}

var digits = regexp.MustCompile(`\d+`)

// Options controls one reformat run. The zero value uses DefaultSource and UTC.
type Options struct {
	Source   string
	Location *time.Location
}

// DefaultOptions returns the source and timezone the contact exports use.
func DefaultOptions() (Options, error) {
	loc, err := time.LoadLocation(DefaultTimezone)
	if err != nil {
		return Options{}, fmt.Errorf("failed to load timezone %s: %w", DefaultTimezone, err)
	}
	return Options{Source: DefaultSource, Location: loc}, nil
}

// Stats summarizes a processed file.
type Stats struct {
	Rows    int
	Valid   int
	Invalid int
}

// Process reads a CSV from r and writes the reformatted CSV to w.
func Process(r io.Reader, w io.Writer, opts Options) (*Stats, error) {
	if opts.Source == "" {
		opts.Source = DefaultSource
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}

	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV: %w", err)
	}
	if len(records) == 0 || len(records[0]) == 0 {
		return nil, ErrEmptyInput
	}

	header := make([]string, len(records[0]))
	for i, h := range records[0] {
		header[i] = export.FormatColumnName(strings.TrimPrefix(h, "\ufeff"))
	}
	numberCol := indexOf(header, ContactNumberColumn)
	if numberCol < 0 {
		return nil, &MissingColumnError{Column: ContactNumberColumn}
	}
	dateCol := indexOf(header, UpdatedDateColumn)
	if dateCol < 0 {
		return nil, &MissingColumnError{Column: UpdatedDateColumn}
	}

	rows := records[1:]
	for i, row := range rows {
		if len(row) > len(header) {
			return nil, fmt.Errorf("row %d has %d fields, header has %d", i+2, len(row), len(header))
		}
		rows[i] = fillEmpty(row, len(header))
	}

	// Source goes in before the validation column, so the validation index
	// counts the inserted Source column.
	header = insertAt(header, sourceIndex, SourceColumn)
	if dateCol >= sourceIndex {
		dateCol++
	}
	if numberCol >= sourceIndex {
		numberCol++
	}
	header = insertAt(header, validateIndex, ContactValidateColumn)
	if dateCol >= validateIndex {
		dateCol++
	}

	stats := &Stats{Rows: len(rows)}
	out := csv.NewWriter(w)
	if err := out.Write(header); err != nil {
		return nil, fmt.Errorf("failed to write CSV: %w", err)
	}
	for _, row := range rows {
		row = insertAt(row, sourceIndex, opts.Source)
		verdict := ValidateContactNumber(row[numberCol])
		if verdict == "Valid" {
			stats.Valid++
		} else {
			stats.Invalid++
		}
		row = insertAt(row, validateIndex, verdict)
		row[dateCol] = ConvertDate(row[dateCol], opts.Location)
		if err := out.Write(row); err != nil {
			return nil, fmt.Errorf("failed to write CSV: %w", err)
		}
	}
	out.Flush()
	if err := out.Error(); err != nil {
		return nil, fmt.Errorf("failed to write CSV: %w", err)
	}
	return stats, nil
}

// ProcessFile reformats inPath into <outDir>/<name>_<timestamp>.csv and returns
// the written path. An empty outDir writes next to the input.
func ProcessFile(inPath, outDir string, opts Options, now time.Time) (string, *Stats, error) {
	in, err := os.Open(inPath)
	if err != nil {
		return "", nil, err
	}
	defer in.Close()

	if outDir == "" {
		outDir = filepath.Dir(inPath)
	}
	base := strings.TrimSuffix(filepath.Base(inPath), filepath.Ext(inPath))
	outPath := filepath.Join(outDir, export.FileName(base, now, "csv"))

	out, err := os.Create(outPath)
	if err != nil {
		return "", nil, fmt.Errorf("failed to create %s: %w", outPath, err)
	}
	stats, err := Process(in, out, opts)
	if cerr := out.Close(); err == nil && cerr != nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(outPath)
		return "", nil, fmt.Errorf("%s: %w", inPath, err)
	}

	log.Info().Str("input", inPath).Str("output", outPath).
		Int("rows", stats.Rows).Int("invalid_numbers", stats.Invalid).
		Msg("Reformatted CSV")
	return outPath, stats, nil
}

// ValidateContactNumber reports "Valid" for exactly ten characters.
func ValidateContactNumber(s string) string {
	if len([]rune(s)) == validLength {
		return "Valid"
	}
	return "Invalid"
}

// ConvertDate turns a Xero /Date(1700000000000+0000)/ value (or bare epoch
// milliseconds) into RFC3339 in loc. Values without a usable number become "".
func ConvertDate(v string, loc *time.Location) string {
	m := digits.FindString(v)
	if m == "" {
		return ""
	}
	ms, err := strconv.ParseInt(m, 10, 64)
	if err != nil {
		return ""
	}
	return time.UnixMilli(ms).In(loc).Format(time.RFC3339)
}

func fillEmpty(row []string, width int) []string {
	out := make([]string, width)
	for i := range out {
		if i < len(row) && strings.TrimSpace(row[i]) != "" {
			out[i] = row[i]
		} else {
			out[i] = NotAvailable
		}
	}
	return out
}

// insertAt inserts v at index i, appending when i is past the end.
func insertAt(s []string, i int, v string) []string {
	if i > len(s) {
		i = len(s)
	}
	s = append(s, "")
	copy(s[i+1:], s[i:])
	s[i] = v
	return s
}

func indexOf(s []string, v string) int {
	for i, x := range s {
		if x == v {
			return i
		}
	}
	return -1
}
