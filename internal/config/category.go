package config

import (
	"encoding/json"
	"strings"
)

// Category classifies a task log line. Values are ordered by severity
// and leave gaps so categories can be added between existing ones.
type Category int

const (
	CategoryUnknown   Category = 0
	CategoryTrace     Category = 1
	CategoryVerbose   Category = 100
	CategoryInfo      Category = 200
	CategoryPlanned   Category = 201
	CategoryNote      Category = 210
	CategoryAbandoned Category = 220
	CategoryWait      Category = 225
	CategoryProgress  Category = 230
	CategoryFinished  Category = 240
	CategoryWarning   Category = 300
	CategoryError     Category = 400
	CategoryFatal     Category = 500
)

// Categories lists every known category in severity order.
func Categories() []Category {
	return []Category{
		CategoryTrace, CategoryVerbose, CategoryInfo, CategoryPlanned,
		CategoryNote, CategoryAbandoned, CategoryWait, CategoryProgress,
		CategoryFinished, CategoryWarning, CategoryError, CategoryFatal,
	}
}

// String returns the upper-case name of a Category.
func (c Category) String() string {
	switch c {
	case CategoryTrace:
		return "TRACE"
	case CategoryVerbose:
		return "VERBOSE"
	case CategoryInfo:
		return "INFO"
	case CategoryPlanned:
		return "PLANNED"
	case CategoryNote:
		return "NOTE"
	case CategoryAbandoned:
		return "ABANDONED"
	case CategoryWait:
		return "WAIT"
	case CategoryProgress:
		return "PROGRESS"
	case CategoryFinished:
		return "FINISHED"
	case CategoryWarning:
		return "WARNING"
	case CategoryError:
		return "ERROR"
	case CategoryFatal:
		return "FATAL"
	default:
		return "UNKNOWN"
	}
}

// AtLeast reports whether c is at least as severe as min. Unknown
// categories pass every filter, since they cannot be classified.
func (c Category) AtLeast(min Category) bool {
	if c == CategoryUnknown || min == CategoryUnknown {
		return true
	}
	return c >= min
}

// MarshalJSON implements json.Marshaler for Category.
func (c Category) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.String())
}

// UnmarshalJSON implements json.Unmarshaler for Category.
func (c *Category) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*c = ParseCategory(s)
	return nil
}

// ParseCategory converts a name or common level alias to a Category.
func ParseCategory(s string) Category {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trace", "trc":
		return CategoryTrace
	case "verbose", "debug", "dbg", "vrb":
		return CategoryVerbose
	case "info", "inf", "information":
		return CategoryInfo
	case "planned":
		return CategoryPlanned
	case "note":
		return CategoryNote
	case "abandoned":
		return CategoryAbandoned
	case "wait":
		return CategoryWait
	case "progress":
		return CategoryProgress
	case "finished":
		return CategoryFinished
	case "warn", "warning", "wrn":
		return CategoryWarning
	case "error", "err":
		return CategoryError
	case "fatal", "critical", "crit":
		return CategoryFatal
	default:
		return CategoryUnknown
	}
}

// LogEntry is a single sanitized log line.
type LogEntry struct {
	Raw           string            `json:"raw"`
	Category      Category          `json:"category"`
	CorrelationID string            `json:"correlation_id,omitempty"`
	Message       string            `json:"message"`
	Fields        map[string]string `json:"fields,omitempty"`
	Line          int               `json:"line"`
}
