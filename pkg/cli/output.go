package cli

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
)

// OutputFormat represents the output format for command results.
type OutputFormat string

const (
	// FormatText is an aligned plain text table (default).
	FormatText OutputFormat = "text"
	// FormatJSON is indented JSON.
	FormatJSON OutputFormat = "json"
	// FormatCSV is CSV with a header row.
	FormatCSV OutputFormat = "csv"
)

// ParseOutputFormat validates a --format flag value.
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch f := OutputFormat(strings.ToLower(s)); f {
	case FormatText, FormatJSON, FormatCSV:
		return f, nil
	case "":
		return FormatText, nil
	}
	return "", NewConfigError("format", fmt.Sprintf("unknown output format %q (text, json, csv)", s))
}

// Table is implemented by command results that render as rows.
type Table interface {
	Header() []string
	Rows() [][]string
}

// Formatter formats command output.
type Formatter interface {
	FormatTo(w io.Writer, data interface{}) error
}

// TextFormatter renders a Table with aligned columns and anything else
// with %v.
type TextFormatter struct{}

// FormatTo writes data to w.
func (f *TextFormatter) FormatTo(w io.Writer, data interface{}) error {
	t, ok := data.(Table)
	if !ok {
		_, err := fmt.Fprintf(w, "%v\n", data)
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, strings.Join(t.Header(), "\t"))
	for _, row := range t.Rows() {
		fmt.Fprintln(tw, strings.Join(row, "\t"))
	}
	return tw.Flush()
}

// JSONFormatter formats output as JSON.
type JSONFormatter struct {
	Indent bool
}

// FormatTo writes data to w in JSON format.
func (f *JSONFormatter) FormatTo(w io.Writer, data interface{}) error {
	encoder := json.NewEncoder(w)
	if f.Indent {
		encoder.SetIndent("", "  ")
	}
	return encoder.Encode(data)
}

// CSVFormatter formats a Table as CSV.
type CSVFormatter struct{}

// FormatTo writes data to w in CSV format. data must implement Table.
func (f *CSVFormatter) FormatTo(w io.Writer, data interface{}) error {
	t, ok := data.(Table)
	if !ok {
		return fmt.Errorf("csv output not supported for %T", data)
	}

	csvWriter := csv.NewWriter(w)
	if err := csvWriter.Write(t.Header()); err != nil {
		return err
	}
	if err := csvWriter.WriteAll(t.Rows()); err != nil {
		return err
	}
	return csvWriter.Error()
}

// NewFormatter creates a new formatter for the specified format.
func NewFormatter(format OutputFormat) Formatter {
	switch format {
	case FormatJSON:
		return &JSONFormatter{Indent: true}
	case FormatCSV:
		return &CSVFormatter{}
	default:
		return &TextFormatter{}
	}
}
