package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"inbox2excel/internal/extraction"
)

// DefaultFileName is the download name of spreadsheet exports.
const DefaultFileName = "extraction_inbox2excel.xlsx"

// DateLayout formats record dates in tabular output.
const DateLayout = "2006-01-02 15:04"

// Writer serializes extraction records.
type Writer interface {
	Write(w io.Writer, records []extraction.Record) error
	ContentType() string
	Extension() string
}

// ForFormat returns the writer for a format name (xlsx, csv or json).
func ForFormat(format string) (Writer, error) {
	switch strings.ToLower(strings.TrimPrefix(strings.TrimSpace(format), ".")) {
	case "", "xlsx", "excel":
		return XLSXWriter{}, nil
	case "csv":
		return CSVWriter{}, nil
	case "json":
		return JSONWriter{}, nil
	}
	return nil, fmt.Errorf("unsupported export format %q", format)
}

// FileName returns the download name for a writer.
func FileName(w Writer) string {
	return strings.TrimSuffix(DefaultFileName, ".xlsx") + w.Extension()
}

// Columns returns the field keys across all records in first-seen order.
func Columns(records []extraction.Record) []string {
	var cols []string
	seen := make(map[string]bool)
	for _, rec := range records {
		for _, key := range rec.ExtractedData.Keys() {
			if !seen[key] {
				seen[key] = true
				cols = append(cols, key)
			}
		}
	}
	return cols
}

var fixedColumns = []string{"Subject", "Sender", "Date"}

// Header returns the full header row. A field column whose name repeats an
// earlier header cell, ignoring case, is labelled <name>_<n>.
func Header(fieldCols []string) []string {
	header := make([]string, 0, len(fixedColumns)+len(fieldCols))
	taken := make(map[string]bool)
	for _, col := range fixedColumns {
		header = append(header, col)
		taken[strings.ToLower(col)] = true
	}
	for _, col := range fieldCols {
		label := col
		for n := 2; taken[strings.ToLower(label)]; n++ {
			label = fmt.Sprintf("%s_%d", col, n)
		}
		taken[strings.ToLower(label)] = true
		header = append(header, label)
	}
	return header
}

// Row returns the cells of one record. Fields a record lacks are left empty.
func Row(rec extraction.Record, fieldCols []string) []string {
	row := make([]string, 0, len(fixedColumns)+len(fieldCols))
	row = append(row, rec.Subject, rec.Sender, formatDate(rec.Date))
	for _, col := range fieldCols {
		v, _ := rec.ExtractedData.Get(col)
		row = append(row, v)
	}
	return row
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(DateLayout)
}

// CSVWriter writes records as comma separated values.
type CSVWriter struct{}

func (CSVWriter) ContentType() string { return "text/csv; charset=utf-8" }
func (CSVWriter) Extension() string   { return ".csv" }

func (CSVWriter) Write(w io.Writer, records []extraction.Record) error {
	cols := Columns(records)
	cw := csv.NewWriter(w)
	if err := cw.Write(Header(cols)); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}
	for _, rec := range records {
		if err := cw.Write(Row(rec, cols)); err != nil {
			return fmt.Errorf("failed to write CSV row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// JSONWriter writes records as an indented JSON array.
type JSONWriter struct{}

func (JSONWriter) ContentType() string { return "application/json" }
func (JSONWriter) Extension() string   { return ".json" }

func (JSONWriter) Write(w io.Writer, records []extraction.Record) error {
	if records == nil {
		records = []extraction.Record{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(records)
}
