// Package parser classifies sanitized task log lines.
//
// It recognizes JSON log lines and plain text lines, and extracts the
// category, the correlation id and the message from each. It only ever
// sees text that has already been through a logctx.Context.
package parser

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/bimmerbailey/logctx/internal/config"
)

// Format represents a detected line format.
type Format string

const (
	FormatJSON Format = "json"
	FormatText Format = "text"
)

// DetectFormat returns the format of a single line.
func DetectFormat(line string) Format {
	trimmed := strings.TrimSpace(line)
	if strings.HasPrefix(trimmed, "{") && json.Valid([]byte(trimmed)) {
		return FormatJSON
	}
	return FormatText
}

// Parser turns lines into entries.
type Parser struct {
	maxLine int
}

// New creates a Parser. maxLine bounds the length of a single line read
// by Parse; zero means 1 MiB.
func New(maxLine int) *Parser {
	if maxLine <= 0 {
		maxLine = 1024 * 1024
	}
	return &Parser{maxLine: maxLine}
}

// Parse reads entries from r, one per non-blank line.
func (p *Parser) Parse(r io.Reader) ([]config.LogEntry, error) {
	var entries []config.LogEntry
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, min(64*1024, p.maxLine)), p.maxLine)

	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		entries = append(entries, p.ParseLine(line, lineNum))
	}

	return entries, scanner.Err()
}

// ParseLine classifies a single line.
func (p *Parser) ParseLine(line string, lineNum int) config.LogEntry {
	entry := config.LogEntry{
		Raw:      line,
		Line:     lineNum,
		Category: config.CategoryUnknown,
	}

	if p.tryParseJSON(line, &entry) {
		return entry
	}

	entry.Category = extractCategory(line)
	entry.CorrelationID = correlationPattern.FindString(line)
	entry.Message = line
	return entry
}

var (
	messageKeys     = []string{"message", "msg", "text"}
	categoryKeys    = []string{"category", "level", "severity", "lvl"}
	correlationKeys = []string{"correlation_id", "correlationId", "CorrelationId"}
)

// tryParseJSON attempts to parse the line as a JSON log entry.
func (p *Parser) tryParseJSON(line string, entry *config.LogEntry) bool {
	if len(line) == 0 || line[0] != '{' {
		return false
	}

	var data map[string]interface{}
	if err := json.Unmarshal([]byte(line), &data); err != nil {
		return false
	}

	known := make(map[string]bool)
	pick := func(keys []string) string {
		for _, key := range keys {
			if v, ok := data[key].(string); ok {
				known[key] = true
				return v
			}
		}
		return ""
	}

	entry.Message = pick(messageKeys)
	entry.Category = config.ParseCategory(pick(categoryKeys))
	entry.CorrelationID = pick(correlationKeys)

	for k, v := range data {
		if known[k] {
			continue
		}
		if entry.Fields == nil {
			entry.Fields = make(map[string]string)
		}
		switch val := v.(type) {
		case string:
			entry.Fields[k] = val
		case nil:
			entry.Fields[k] = ""
		default:
			entry.Fields[k] = fmt.Sprint(val)
		}
	}

	return true
}

var (
	// categoryPattern matches a bare or bracketed category name.
	categoryPattern = regexp.MustCompile(`(?i)\b(TRACE|VERBOSE|DEBUG|INFO|PLANNED|NOTE|ABANDONED|WAIT|PROGRESS|FINISHED|WARN(?:ING)?|ERROR|FATAL|CRITICAL)\b`)

	// correlationPattern matches an id produced by logctx, root first.
	correlationPattern = regexp.MustCompile(`\b[0-9a-f]{32}(?:/[0-9a-f]{32})*\b`)
)

func extractCategory(line string) config.Category {
	match := categoryPattern.FindString(line)
	if match == "" {
		return config.CategoryUnknown
	}
	return config.ParseCategory(match)
}
