package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"unicode/utf8"

	"inbox2excel/internal/database"
	"inbox2excel/internal/export"
	"inbox2excel/internal/extraction"
	"inbox2excel/internal/quota"
)

// OutputFormatter handles different output formats
type OutputFormatter struct {
	format string
	quiet  bool
	out    io.Writer
	errOut io.Writer
}

// NewOutputFormatter creates a new output formatter
func NewOutputFormatter(format string, quiet bool) *OutputFormatter {
	return &OutputFormatter{
		format: format,
		quiet:  quiet,
		out:    os.Stdout,
		errOut: os.Stderr,
	}
}

// SetOutput redirects regular and error output
func (f *OutputFormatter) SetOutput(out, errOut io.Writer) {
	f.out = out
	f.errOut = errOut
}

// PrintRecords prints extracted records, one row per email
func (f *OutputFormatter) PrintRecords(records []extraction.Record) error {
	if f.quiet {
		fmt.Fprintf(f.out, "%d\n", len(records))
		return nil
	}

	switch f.format {
	case "json":
		if records == nil {
			records = []extraction.Record{}
		}
		return json.NewEncoder(f.out).Encode(records)
	case "table":
		return f.printRecordsTable(records)
	default:
		return fmt.Errorf("unsupported format: %s", f.format)
	}
}

// PrintSummary prints per-field match counts
func (f *OutputFormatter) PrintSummary(summary []extraction.FieldSummary) error {
	if f.quiet {
		return nil
	}

	switch f.format {
	case "json":
		return json.NewEncoder(f.out).Encode(summary)
	case "table":
		w := tabwriter.NewWriter(f.out, 0, 0, 2, ' ', 0)
		defer w.Flush()
		fmt.Fprintln(w, "FIELD\tMATCHED\tNOT FOUND")
		for _, s := range summary {
			fmt.Fprintf(w, "%s\t%d\t%d\n", s.Key, s.Matched, s.NotFound)
		}
		return nil
	default:
		return fmt.Errorf("unsupported format: %s", f.format)
	}
}

// PrintFilters prints saved filters
func (f *OutputFormatter) PrintFilters(filters []database.SavedFilter) error {
	if f.quiet {
		for _, filter := range filters {
			fmt.Fprintf(f.out, "%d\n", filter.ID)
		}
		return nil
	}

	switch f.format {
	case "json":
		if filters == nil {
			filters = []database.SavedFilter{}
		}
		return json.NewEncoder(f.out).Encode(filters)
	case "table":
		return f.printFiltersTable(filters)
	default:
		return fmt.Errorf("unsupported format: %s", f.format)
	}
}

// PrintRuns prints stored extraction runs
func (f *OutputFormatter) PrintRuns(runs []database.ExtractionRun) error {
	if f.quiet {
		for _, run := range runs {
			fmt.Fprintf(f.out, "%d\n", run.ID)
		}
		return nil
	}

	switch f.format {
	case "json":
		if runs == nil {
			runs = []database.ExtractionRun{}
		}
		return json.NewEncoder(f.out).Encode(runs)
	case "table":
		if len(runs) == 0 {
			fmt.Fprintln(f.out, "No extraction runs found.")
			return nil
		}
		w := tabwriter.NewWriter(f.out, 0, 0, 2, ' ', 0)
		defer w.Flush()
		fmt.Fprintln(w, "ID\tPROVIDER\tRECORDS\tFIELDS\tCREATED")
		for _, run := range runs {
			fmt.Fprintf(w, "%d\t%s\t%d\t%s\t%s\n",
				run.ID,
				run.Provider,
				run.RecordCount,
				truncate(strings.Join(extraction.FieldKeys(run.Rules), ","), 30),
				run.CreatedAt.Format("2006-01-02 15:04"))
		}
		return nil
	default:
		return fmt.Errorf("unsupported format: %s", f.format)
	}
}

// PrintUsage prints the monthly usage of the current plan
func (f *OutputFormatter) PrintUsage(usage *quota.Usage) error {
	if f.quiet {
		fmt.Fprintf(f.out, "%d\n", usage.Remaining)
		return nil
	}

	switch f.format {
	case "json":
		return json.NewEncoder(f.out).Encode(usage)
	case "table":
		fmt.Fprintf(f.out, "Plan: %s\n", usage.Plan)
		fmt.Fprintf(f.out, "Period: %s\n", usage.Period)
		fmt.Fprintf(f.out, "Extractions: %d / %d (%d remaining)\n", usage.Used, usage.Limit, usage.Remaining)
		fmt.Fprintf(f.out, "Max filters: %d\n", usage.MaxFilters)
		fmt.Fprintf(f.out, "Max fields per filter: %d\n", usage.MaxFieldsPerFilter)
		return nil
	default:
		return fmt.Errorf("unsupported format: %s", f.format)
	}
}

// PrintSuccess prints a success message
func (f *OutputFormatter) PrintSuccess(message string) {
	if !f.quiet {
		fmt.Fprintf(f.out, "✓ %s\n", message)
	}
}

// PrintError prints an error message
func (f *OutputFormatter) PrintError(err error) {
	if !f.quiet {
		fmt.Fprintf(f.errOut, "✗ Error: %v\n", err)
	}
}

// PrintInfo prints an informational message
func (f *OutputFormatter) PrintInfo(message string) {
	if !f.quiet {
		fmt.Fprintf(f.out, "ℹ %s\n", message)
	}
}

// printRecordsTable prints records in table format
func (f *OutputFormatter) printRecordsTable(records []extraction.Record) error {
	if len(records) == 0 {
		fmt.Fprintln(f.out, "No emails matched.")
		return nil
	}

	cols := export.Columns(records)

	w := tabwriter.NewWriter(f.out, 0, 0, 2, ' ', 0)
	defer w.Flush()

	header := export.Header(cols)
	fmt.Fprintln(w, strings.ToUpper(strings.Join(header[:3], "\t"))+"\t"+strings.Join(cols, "\t"))

	for _, rec := range records {
		row := export.Row(rec, cols)
		row[0] = truncate(row[0], 30)
		row[1] = truncate(row[1], 25)
		for i := 3; i < len(row); i++ {
			row[i] = truncate(oneLine(row[i]), 30)
		}
		fmt.Fprintln(w, strings.Join(row, "\t"))
	}

	return nil
}

// printFiltersTable prints saved filters in table format
func (f *OutputFormatter) printFiltersTable(filters []database.SavedFilter) error {
	if len(filters) == 0 {
		fmt.Fprintln(f.out, "No saved filters found.")
		return nil
	}

	w := tabwriter.NewWriter(f.out, 0, 0, 2, ' ', 0)
	defer w.Flush()

	fmt.Fprintln(w, "ID\tNAME\tSUBJECT\tSENDER\tFIELDS\tUPDATED")
	for _, filter := range filters {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%d\t%s\n",
			filter.ID,
			truncate(filter.Name, 20),
			truncate(filter.Subject, 25),
			truncate(filter.Sender, 25),
			len(filter.ExtractionRules),
			filter.UpdatedAt.Format("2006-01-02"))
	}

	return nil
}

// oneLine flattens line and paragraph captures for single-row display
func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// truncate truncates a string to the specified number of characters
func truncate(s string, maxLen int) string {
	if utf8.RuneCountInString(s) <= maxLen {
		return s
	}
	r := []rune(s)
	return string(r[:maxLen-3]) + "..."
}
