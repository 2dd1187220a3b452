package cli

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"inbox2excel/internal/database"
	"inbox2excel/internal/extraction"
	"inbox2excel/internal/quota"
)

func testRecords() []extraction.Record {
	return []extraction.Record{
		{
			Subject: "Invoice 42",
			Sender:  "billing@shop.test",
			Date:    time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC),
			ExtractedData: extraction.Fields{
				{Key: "Amount", Value: "99.90"},
				{Key: "Address", Value: "12 rue\nde la Paix"},
			},
		},
		{
			Subject:       "Invoice 43",
			Sender:        "billing@shop.test",
			Date:          time.Date(2026, 3, 3, 9, 30, 0, 0, time.UTC),
			ExtractedData: extraction.Fields{{Key: "Amount", Value: ""}},
		},
	}
}

func newTestFormatter(format string, quiet bool) (*OutputFormatter, *bytes.Buffer, *bytes.Buffer) {
	var out, errOut bytes.Buffer
	f := NewOutputFormatter(format, quiet)
	f.SetOutput(&out, &errOut)
	return f, &out, &errOut
}

func TestOutputFormatterPrintRecords(t *testing.T) {
	tests := []struct {
		name     string
		format   string
		quiet    bool
		contains []string
	}{
		{
			name:     "table format",
			format:   "table",
			contains: []string{"SUBJECT", "SENDER", "DATE", "Amount", "Address", "Invoice 42", "99.90", "2026-03-02 09:30", "12 rue de la Paix"},
		},
		{
			name:     "json format",
			format:   "json",
			contains: []string{`"subject":"Invoice 42"`, `"extractedData":{"Amount":"99.90"`},
		},
		{
			name:     "quiet mode",
			format:   "table",
			quiet:    true,
			contains: []string{"2"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			formatter, out, _ := newTestFormatter(tt.format, tt.quiet)
			if err := formatter.PrintRecords(testRecords()); err != nil {
				t.Fatalf("PrintRecords failed: %v", err)
			}

			output := out.String()
			for _, expected := range tt.contains {
				if !strings.Contains(output, expected) {
					t.Errorf("Output should contain '%s', but got: %s", expected, output)
				}
			}
		})
	}
}

func TestOutputFormatterPrintRecords_Empty(t *testing.T) {
	formatter, out, _ := newTestFormatter("table", false)
	formatter.PrintRecords(nil)
	if !strings.Contains(out.String(), "No emails matched.") {
		t.Errorf("Expected empty message, got: %s", out.String())
	}

	formatter, out, _ = newTestFormatter("json", false)
	formatter.PrintRecords(nil)
	if strings.TrimSpace(out.String()) != "[]" {
		t.Errorf("Expected empty JSON array, got: %s", out.String())
	}
}

func TestOutputFormatterPrintRecords_UnsupportedFormat(t *testing.T) {
	formatter, _, _ := newTestFormatter("yaml", false)
	if err := formatter.PrintRecords(testRecords()); err == nil {
		t.Error("Expected error for unsupported format")
	}
}

func TestOutputFormatterPrintSummary(t *testing.T) {
	formatter, out, _ := newTestFormatter("table", false)
	err := formatter.PrintSummary([]extraction.FieldSummary{{Key: "Amount", Matched: 1, NotFound: 1}})
	if err != nil {
		t.Fatalf("PrintSummary failed: %v", err)
	}

	for _, expected := range []string{"FIELD", "MATCHED", "NOT FOUND", "Amount"} {
		if !strings.Contains(out.String(), expected) {
			t.Errorf("Output should contain '%s', but got: %s", expected, out.String())
		}
	}
}

func TestOutputFormatterPrintFilters(t *testing.T) {
	filters := []database.SavedFilter{
		{
			ID:              3,
			Name:            "Invoices",
			Subject:         "Invoice",
			ExtractionRules: []extraction.ExtractionRule{{Keyword: "Total"}},
			UpdatedAt:       time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		},
	}

	formatter, out, _ := newTestFormatter("table", false)
	formatter.PrintFilters(filters)
	for _, expected := range []string{"ID", "NAME", "FIELDS", "Invoices", "2026-03-01"} {
		if !strings.Contains(out.String(), expected) {
			t.Errorf("Output should contain '%s', but got: %s", expected, out.String())
		}
	}

	formatter, out, _ = newTestFormatter("table", true)
	formatter.PrintFilters(filters)
	if strings.TrimSpace(out.String()) != "3" {
		t.Errorf("Expected filter ID in quiet mode, got: %s", out.String())
	}

	formatter, out, _ = newTestFormatter("table", false)
	formatter.PrintFilters(nil)
	if !strings.Contains(out.String(), "No saved filters found.") {
		t.Errorf("Expected empty message, got: %s", out.String())
	}
}

func TestOutputFormatterPrintRuns(t *testing.T) {
	runs := []database.ExtractionRun{
		{
			ID:          7,
			Provider:    "outlook",
			Rules:       []extraction.ExtractionRule{{FieldName: "Amount", Keyword: "Total"}},
			RecordCount: 12,
			CreatedAt:   time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC),
		},
	}

	formatter, out, _ := newTestFormatter("table", false)
	formatter.PrintRuns(runs)
	for _, expected := range []string{"PROVIDER", "outlook", "12", "Amount", "2026-03-02 08:00"} {
		if !strings.Contains(out.String(), expected) {
			t.Errorf("Output should contain '%s', but got: %s", expected, out.String())
		}
	}

	formatter, out, _ = newTestFormatter("table", false)
	formatter.PrintRuns(nil)
	if !strings.Contains(out.String(), "No extraction runs found.") {
		t.Errorf("Expected empty message, got: %s", out.String())
	}
}

func TestOutputFormatterPrintUsage(t *testing.T) {
	usage := quota.Summarize(quota.PlanOrDefault("pro"), "2026-03", 100)

	formatter, out, _ := newTestFormatter("table", false)
	formatter.PrintUsage(&usage)
	for _, expected := range []string{"Plan: pro", "Period: 2026-03", "Extractions: 100 / 2500 (2400 remaining)"} {
		if !strings.Contains(out.String(), expected) {
			t.Errorf("Output should contain '%s', but got: %s", expected, out.String())
		}
	}

	formatter, out, _ = newTestFormatter("table", true)
	formatter.PrintUsage(&usage)
	if strings.TrimSpace(out.String()) != "2400" {
		t.Errorf("Expected remaining count in quiet mode, got: %s", out.String())
	}
}

func TestOutputFormatterMessages(t *testing.T) {
	tests := []struct {
		name     string
		quiet    bool
		expected string
	}{
		{name: "normal mode", quiet: false, expected: "✓ Filter deleted\n"},
		{name: "quiet mode", quiet: true, expected: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			formatter, out, errOut := newTestFormatter("table", tt.quiet)
			formatter.PrintSuccess("Filter deleted")
			if out.String() != tt.expected {
				t.Errorf("Expected '%s', got '%s'", tt.expected, out.String())
			}

			formatter.PrintError(errors.New("boom"))
			if tt.quiet && errOut.Len() != 0 {
				t.Errorf("Expected no error output in quiet mode, got '%s'", errOut.String())
			}
			if !tt.quiet && !strings.Contains(errOut.String(), "✗ Error: boom") {
				t.Errorf("Expected error on stderr, got '%s'", errOut.String())
			}
		})
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		input    string
		maxLen   int
		expected string
	}{
		{"short", 10, "short"},
		{"exactly ten", 11, "exactly ten"},
		{"this is a long subject", 10, "this is..."},
		{"Prénom Réservé", 9, "Prénom..."},
	}

	for _, tt := range tests {
		if got := truncate(tt.input, tt.maxLen); got != tt.expected {
			t.Errorf("truncate(%q, %d) = %q, want %q", tt.input, tt.maxLen, got, tt.expected)
		}
	}
}
