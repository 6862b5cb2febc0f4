package main

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
)

// OutputFormat selects how command results are rendered.
type OutputFormat string

const (
	FormatTable OutputFormat = "table"
	FormatJSON  OutputFormat = "json"
	FormatCSV   OutputFormat = "csv"
	FormatRaw   OutputFormat = "raw"
)

// Formatter renders command results in the format selected by --output:
// a padded table, JSON keyed by the column headers, CSV records, or bare
// values.
type Formatter struct {
	format OutputFormat
	writer io.Writer
}

// NewFormatter creates a formatter writing to stdout.
func NewFormatter(format string) *Formatter {
	return &Formatter{
		format: OutputFormat(format),
		writer: os.Stdout,
	}
}

func (f *Formatter) Printf(format string, args ...interface{}) {
	fmt.Fprintf(f.writer, format, args...)
}

func (f *Formatter) Println(args ...interface{}) {
	fmt.Fprintln(f.writer, args...)
}

// PrintTable renders rows under the given column headers.
func (f *Formatter) PrintTable(headers []string, rows [][]string) error {
	switch f.format {
	case FormatJSON:
		records := make([]map[string]string, 0, len(rows))
		for _, row := range rows {
			record := make(map[string]string, len(headers))
			for i, h := range headers {
				if i < len(row) {
					record[columnKey(h)] = row[i]
				}
			}
			records = append(records, record)
		}
		return f.encodeJSON(records)

	case FormatCSV:
		w := csv.NewWriter(f.writer)
		keys := make([]string, len(headers))
		for i, h := range headers {
			keys[i] = columnKey(h)
		}
		if err := w.Write(keys); err != nil {
			return err
		}
		return w.WriteAll(rows)

	case FormatRaw:
		for _, row := range rows {
			fmt.Fprintln(f.writer, strings.Join(row, " "))
		}
		return nil

	default:
		f.printPadded(headers, rows)
		return nil
	}
}

// PrintKeyValue renders key-value pairs in the given key order.
func (f *Formatter) PrintKeyValue(pairs map[string]interface{}, order []string) error {
	switch f.format {
	case FormatJSON:
		record := make(map[string]interface{}, len(order))
		for _, key := range order {
			if val, ok := pairs[key]; ok {
				record[columnKey(key)] = val
			}
		}
		return f.encodeJSON(record)

	case FormatCSV:
		w := csv.NewWriter(f.writer)
		for _, key := range order {
			if val, ok := pairs[key]; ok {
				if err := w.Write([]string{columnKey(key), fmt.Sprintf("%v", val)}); err != nil {
					return err
				}
			}
		}
		w.Flush()
		return w.Error()

	case FormatRaw:
		for _, key := range order {
			if val, ok := pairs[key]; ok {
				fmt.Fprintln(f.writer, val)
			}
		}
		return nil

	default:
		maxKeyLen := 0
		for _, key := range order {
			if len(key) > maxKeyLen {
				maxKeyLen = len(key)
			}
		}
		for _, key := range order {
			if val, ok := pairs[key]; ok {
				fmt.Fprintf(f.writer, "%-*s: %v\n", maxKeyLen, key, val)
			}
		}
		return nil
	}
}

func (f *Formatter) encodeJSON(v interface{}) error {
	enc := json.NewEncoder(f.writer)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (f *Formatter) printPadded(headers []string, rows [][]string) {
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = len(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			if i < len(widths) && len(cell) > widths[i] {
				widths[i] = len(cell)
			}
		}
	}

	for i, h := range headers {
		fmt.Fprintf(f.writer, "%-*s ", widths[i], h)
	}
	fmt.Fprintln(f.writer)

	for i := range headers {
		fmt.Fprint(f.writer, strings.Repeat("-", widths[i]), " ")
	}
	fmt.Fprintln(f.writer)

	for _, row := range rows {
		for i, cell := range row {
			if i < len(widths) {
				fmt.Fprintf(f.writer, "%-*s ", widths[i], cell)
			}
		}
		fmt.Fprintln(f.writer)
	}
}

// columnKey turns a display header into a machine-friendly field name.
func columnKey(h string) string {
	return strings.ReplaceAll(strings.ToLower(h), " ", "_")
}
