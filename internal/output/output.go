// Package output renders sanitized log entries as text or JSON lines.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/bimmerbailey/logctx/internal/config"
)

// Format represents an output format type.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
)

// ParseFormat converts a string to a Format, defaulting to text.
func ParseFormat(s string) Format {
	switch strings.ToLower(s) {
	case "json":
		return FormatJSON
	default:
		return FormatText
	}
}

// Writer handles writing formatted output.
type Writer struct {
	w      io.Writer
	format Format
	color  bool
}

// New creates a new output Writer. Colors are resolved once from mode and w.
func New(w io.Writer, format Format, mode ColorMode) *Writer {
	return &Writer{
		w:      w,
		format: format,
		color:  format == FormatText && shouldColorize(mode, w),
	}
}

// jsonEntry is the JSON lines shape of an entry.
type jsonEntry struct {
	Line          int               `json:"line,omitempty"`
	Category      config.Category   `json:"category"`
	CorrelationID string            `json:"correlation_id,omitempty"`
	Message       string            `json:"message"`
	Fields        map[string]string `json:"fields,omitempty"`
}

// WriteEntry writes a single entry as one line.
func (wr *Writer) WriteEntry(entry config.LogEntry) error {
	if wr.format == FormatJSON {
		return json.NewEncoder(wr.w).Encode(jsonEntry{
			Line:          entry.Line,
			Category:      entry.Category,
			CorrelationID: entry.CorrelationID,
			Message:       entry.Message,
			Fields:        entry.Fields,
		})
	}
	_, err := fmt.Fprintln(wr.w, FormatEntry(entry, wr.color))
	return err
}

// WriteEntries writes entries in order, stopping at the first error.
func (wr *Writer) WriteEntries(entries []config.LogEntry) error {
	for _, e := range entries {
		if err := wr.WriteEntry(e); err != nil {
			return err
		}
	}
	return nil
}

// WriteJSON outputs any value as indented JSON.
func (wr *Writer) WriteJSON(v interface{}) error {
	enc := json.NewEncoder(wr.w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
