// Package output formats qhist command results.
//
// Output supports multiple formats:
//   - table: Human-readable tables (default)
//   - json: Machine-readable JSON
//   - yaml: Machine-readable YAML
//   - quiet: Identifiers only, one per line
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"
	"text/tabwriter"

	"qhist/internal/cli/style"

	"gopkg.in/yaml.v3"
)

// Format represents an output format.
type Format string

const (
	FormatTable Format = "table"
	FormatJSON  Format = "json"
	FormatYAML  Format = "yaml"
	FormatQuiet Format = "quiet"
)

// Formats lists the accepted format names.
var Formats = []Format{FormatTable, FormatJSON, FormatYAML, FormatQuiet}

// ParseFormat parses a format string.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "table":
		return FormatTable, nil
	case "json":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	case "quiet", "q":
		return FormatQuiet, nil
	}
	return "", fmt.Errorf("unknown output format %q, supported: %v", s, Formats)
}

// Writer handles formatted output based on the configured format.
type Writer struct {
	format Format
	out    io.Writer
	err    io.Writer
	color  bool
	styles *style.Styles
}

// NewWriter creates a writer for stdout and stderr.
func NewWriter(format Format) *Writer {
	w := &Writer{
		format: format,
		out:    os.Stdout,
		err:    os.Stderr,
		color:  true,
	}
	w.styles = style.New(w.out, w.color)
	return w
}

// WithOutput sets the output writer.
func (w *Writer) WithOutput(out io.Writer) *Writer {
	w.out = out
	w.styles = style.New(out, w.color)
	return w
}

// WithError sets the error writer.
func (w *Writer) WithError(err io.Writer) *Writer {
	w.err = err
	return w
}

// WithColor enables or disables styled messages.
func (w *Writer) WithColor(color bool) *Writer {
	w.color = color
	w.styles = style.New(w.out, color)
	return w
}

// Format returns the current format.
func (w *Writer) Format() Format {
	return w.format
}

// Out returns the output stream.
func (w *Writer) Out() io.Writer {
	return w.out
}

// Write outputs data according to the configured format.
func (w *Writer) Write(data any) error {
	switch w.format {
	case FormatJSON:
		return w.writeJSON(data)
	case FormatYAML:
		return w.writeYAML(data)
	case FormatQuiet:
		return w.writeQuiet(data)
	default:
		return w.writeTable(data)
	}
}

func (w *Writer) writeJSON(data any) error {
	encoder := json.NewEncoder(w.out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(data)
}

func (w *Writer) writeYAML(data any) error {
	enc := yaml.NewEncoder(w.out)
	enc.SetIndent(2)
	if err := enc.Encode(data); err != nil {
		return err
	}
	return enc.Close()
}

func (w *Writer) writeQuiet(data any) error {
	switch v := data.(type) {
	case string:
		fmt.Fprintln(w.out, v)
	case []string:
		for _, s := range v {
			fmt.Fprintln(w.out, s)
		}
	case Identifiable:
		fmt.Fprintln(w.out, v.Identifier())
	case Listing:
		for _, id := range v.Identifiers() {
			fmt.Fprintln(w.out, id)
		}
	case fmt.Stringer:
		fmt.Fprintln(w.out, v.String())
	default:
		return w.writeJSON(data)
	}
	return nil
}

func (w *Writer) writeTable(data any) error {
	switch v := data.(type) {
	case Tabular:
		return w.renderTable(v.TableData())
	case string:
		fmt.Fprintln(w.out, v)
	default:
		return w.writeJSON(data)
	}
	return nil
}

func (w *Writer) renderTable(t *Table) error {
	if t == nil || len(t.Headers) == 0 {
		return nil
	}

	tw := tabwriter.NewWriter(w.out, 0, 0, 2, ' ', 0)

	headers := make([]string, len(t.Headers))
	for i, h := range t.Headers {
		headers[i] = strings.ToUpper(h)
	}
	fmt.Fprintln(tw, strings.Join(headers, "\t"))

	for _, row := range t.Rows {
		fmt.Fprintln(tw, strings.Join(row, "\t"))
	}

	return tw.Flush()
}

// Println writes a line to output.
func (w *Writer) Println(a ...any) {
	fmt.Fprintln(w.out, a...)
}

// Printf writes formatted output.
func (w *Writer) Printf(format string, a ...any) {
	fmt.Fprintf(w.out, format, a...)
}

// Errorf writes an error message.
func (w *Writer) Errorf(format string, a ...any) {
	fmt.Fprintf(w.err, format, a...)
}

// Success writes a success message. It is suppressed in machine formats.
func (w *Writer) Success(message string) {
	if w.machine() {
		return
	}
	fmt.Fprintln(w.out, w.styles.Success.Render("✓ "+message))
}

// Warn writes a warning to the error stream.
func (w *Writer) Warn(message string) {
	fmt.Fprintln(w.err, w.styles.Warning.Render("⚠ "+message))
}

// Info writes an informational message. It is suppressed in machine formats.
func (w *Writer) Info(message string) {
	if w.machine() {
		return
	}
	fmt.Fprintln(w.out, w.styles.Info.Render("ℹ "+message))
}

func (w *Writer) machine() bool {
	return slices.Contains([]Format{FormatJSON, FormatYAML, FormatQuiet}, w.format)
}

// Identifiable is an object with an identifier, printed in quiet mode.
type Identifiable interface {
	Identifier() string
}

// Listing is a collection printed one identifier per line in quiet mode.
type Listing interface {
	Identifiers() []string
}

// Tabular is an object that can be rendered as a table.
type Tabular interface {
	TableData() *Table
}

// Table represents tabular data.
type Table struct {
	Headers []string
	Rows    [][]string
}

// NewTable creates a new table with headers.
func NewTable(headers ...string) *Table {
	return &Table{
		Headers: headers,
		Rows:    make([][]string, 0),
	}
}

// AddRow adds a row to the table.
func (t *Table) AddRow(cells ...string) *Table {
	t.Rows = append(t.Rows, cells)
	return t
}

// TableData implements Tabular for Table.
func (t *Table) TableData() *Table {
	return t
}
