package cli

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

type modelTable [][]string

func (m modelTable) Header() []string { return []string{"ID", "TYPE"} }
func (m modelTable) Rows() [][]string { return m }

func TestParseOutputFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    OutputFormat
		wantErr bool
	}{
		{"", FormatText, false},
		{"text", FormatText, false},
		{"JSON", FormatJSON, false},
		{"csv", FormatCSV, false},
		{"xml", "", true},
	}
	for _, tt := range tests {
		got, err := ParseOutputFormat(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseOutputFormat(%q) error = %v", tt.in, err)
		}
		if got != tt.want {
			t.Errorf("ParseOutputFormat(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestTextFormatter(t *testing.T) {
	var buf bytes.Buffer
	table := modelTable{{"ibit", "unified_login"}, {"bit-agent", "app_key"}}

	if err := (&TextFormatter{}).FormatTo(&buf, table); err != nil {
		t.Fatalf("FormatTo() error = %v", err)
	}

	want := "ID         TYPE\n" +
		"ibit       unified_login\n" +
		"bit-agent  app_key\n"
	if buf.String() != want {
		t.Errorf("FormatTo() =\n%s\nwant\n%s", buf.String(), want)
	}

	buf.Reset()
	if err := (&TextFormatter{}).FormatTo(&buf, "plain"); err != nil {
		t.Fatalf("FormatTo() error = %v", err)
	}
	if buf.String() != "plain\n" {
		t.Errorf("FormatTo() = %q", buf.String())
	}
}

func TestJSONFormatter(t *testing.T) {
	var buf bytes.Buffer
	data := map[string]int{"calls": 3}

	if err := (&JSONFormatter{Indent: true}).FormatTo(&buf, data); err != nil {
		t.Fatalf("FormatTo() error = %v", err)
	}
	var got map[string]int
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if got["calls"] != 3 {
		t.Errorf("got %v", got)
	}
	if !strings.Contains(buf.String(), "\n  ") {
		t.Error("expected indented output")
	}
}

func TestCSVFormatter(t *testing.T) {
	var buf bytes.Buffer
	table := modelTable{{"ibit", "unified_login"}, {"a,b", "app_key"}}

	if err := (&CSVFormatter{}).FormatTo(&buf, table); err != nil {
		t.Fatalf("FormatTo() error = %v", err)
	}
	want := "ID,TYPE\nibit,unified_login\n\"a,b\",app_key\n"
	if buf.String() != want {
		t.Errorf("FormatTo() = %q, want %q", buf.String(), want)
	}

	if err := (&CSVFormatter{}).FormatTo(&buf, "not a table"); err == nil {
		t.Error("expected error for non-table data")
	}
}

func TestNewFormatter(t *testing.T) {
	if _, ok := NewFormatter(FormatJSON).(*JSONFormatter); !ok {
		t.Error("json format should give *JSONFormatter")
	}
	if _, ok := NewFormatter(FormatCSV).(*CSVFormatter); !ok {
		t.Error("csv format should give *CSVFormatter")
	}
	if _, ok := NewFormatter("other").(*TextFormatter); !ok {
		t.Error("unknown format should fall back to *TextFormatter")
	}
}
