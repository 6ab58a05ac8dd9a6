package output

import (
	"os"

	"github.com/bimmerbailey/logctx/internal/config"
	"golang.org/x/term"
)

// ANSI color codes
const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
	colorGray   = "\033[90m"
	colorBold   = "\033[1m"
)

// ColorMode determines when to use colored output.
type ColorMode int

const (
	ColorAuto   ColorMode = iota // Auto-detect based on TTY
	ColorAlways                  // Always use colors
	ColorNever                   // Never use colors
)

// ParseColorMode maps "auto", "always" and "never" to a ColorMode.
func ParseColorMode(s string) ColorMode {
	switch s {
	case "always":
		return ColorAlways
	case "never":
		return ColorNever
	default:
		return ColorAuto
	}
}

func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

// shouldColorize determines if output should be colorized based on mode and TTY detection.
func shouldColorize(mode ColorMode, w interface{}) bool {
	switch mode {
	case ColorAlways:
		return true
	case ColorNever:
		return false
	case ColorAuto:
		if f, ok := w.(*os.File); ok {
			return isTerminal(f)
		}
		return false
	}
	return false
}

// categoryColor returns the escape sequence for a category, or "" for the
// default color.
func categoryColor(c config.Category) string {
	switch c {
	case config.CategoryTrace, config.CategoryVerbose:
		return colorGray
	case config.CategoryPlanned, config.CategoryProgress:
		return colorCyan
	case config.CategoryFinished:
		return colorGreen
	case config.CategoryAbandoned, config.CategoryWarning:
		return colorYellow
	case config.CategoryError:
		return colorRed
	case config.CategoryFatal:
		return colorBold + colorRed
	default:
		return ""
	}
}

// ColorizeLine applies the category color to an entire line.
func ColorizeLine(c config.Category, line string) string {
	code := categoryColor(c)
	if code == "" {
		return line
	}
	return code + line + colorReset
}

// FormatEntry formats a single log entry with optional coloring.
func FormatEntry(entry config.LogEntry, colorize bool) string {
	if colorize {
		return ColorizeLine(entry.Category, entry.Raw)
	}
	return entry.Raw
}
