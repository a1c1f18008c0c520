// Package api renders command results for the terminal or for scripts.
package api

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// OutputFormat defines the output format for CLI commands.
type OutputFormat string

const (
	OutputFormatText OutputFormat = "text"
	OutputFormatYAML OutputFormat = "yaml"
	OutputFormatJSON OutputFormat = "json"
)

// DefaultOutput is the default output format.
var DefaultOutput OutputFormat = OutputFormatText

// ParseOutputFormat validates a --output flag value.
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch OutputFormat(s) {
	case "":
		return DefaultOutput, nil
	case OutputFormatText, OutputFormatYAML, OutputFormatJSON:
		return OutputFormat(s), nil
	default:
		return "", fmt.Errorf("unknown output format %q (want text, yaml or json)", s)
	}
}

// Texter is implemented by results that have a human-readable rendering.
type Texter interface {
	Text() string
}

// Printer writes command results in one format.
type Printer struct {
	Out    io.Writer
	Format OutputFormat
}

// NewPrinter returns a printer writing to stdout.
func NewPrinter(format OutputFormat) *Printer {
	return &Printer{Out: os.Stdout, Format: format}
}

// Structured reports whether output is meant for machines. Commands print
// human-friendly chatter only when this is false.
func (p *Printer) Structured() bool {
	return p.Format == OutputFormatJSON || p.Format == OutputFormatYAML
}

// Print writes data in the printer's format. In text mode, values that
// implement Texter render themselves and the rest fall back to YAML.
func (p *Printer) Print(data any) error {
	return OutputTo(p.Out, p.Format, data)
}

// OutputTo writes data to the given writer in the specified format.
func OutputTo(w io.Writer, format OutputFormat, data any) error {
	switch format {
	case OutputFormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(data)
	case OutputFormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(data)
	case OutputFormatText, "":
		if t, ok := data.(Texter); ok {
			_, err := io.WriteString(w, t.Text())
			return err
		}
		if s, ok := data.(string); ok {
			_, err := fmt.Fprintln(w, s)
			return err
		}
		return OutputTo(w, OutputFormatYAML, data)
	default:
		return fmt.Errorf("unknown output format: %s", format)
	}
}
