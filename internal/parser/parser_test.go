package parser

import (
	"errors"
	"strings"
	"testing"

	"github.com/bimmerbailey/logctx/internal/config"
)

const (
	rootID  = "0123456789abcdef0123456789abcdef"
	childID = rootID + "/fedcba9876543210fedcba9876543210"
)

func TestDetectFormat(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  Format
	}{
		{"JSON log", `{"category": "info", "message": "test"}`, FormatJSON},
		{"JSON with leading space", `  {"message": "x"}`, FormatJSON},
		{"broken JSON", `{"message": `, FormatText},
		{"text log", "2025-01-26 10:00:01 ERROR Something went wrong", FormatText},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DetectFormat(tt.input); got != tt.want {
				t.Errorf("DetectFormat() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestParser_ParseJSON(t *testing.T) {
	p := New(0)

	tests := []struct {
		name            string
		input           string
		wantCategory    config.Category
		wantMessage     string
		wantCorrelation string
		checkFields     map[string]string
	}{
		{
			name:            "category and correlation id",
			input:           `{"category": "Planned", "correlation_id": "` + childID + `", "message": "deploying", "step": "2"}`,
			wantCategory:    config.CategoryPlanned,
			wantMessage:     "deploying",
			wantCorrelation: childID,
			checkFields:     map[string]string{"step": "2"},
		},
		{
			name:         "non string fields",
			input:        `{"level": "error", "msg": "failed", "exit_code": 1, "retry": true, "detail": null}`,
			wantCategory: config.CategoryError,
			wantMessage:  "failed",
			checkFields:  map[string]string{"exit_code": "1", "retry": "true", "detail": ""},
		},
		{
			name:            "alternative field names",
			input:           `{"severity": "warning", "text": "slow", "correlationId": "` + rootID + `"}`,
			wantCategory:    config.CategoryWarning,
			wantMessage:     "slow",
			wantCorrelation: rootID,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entry := p.ParseLine(tt.input, 1)

			if entry.Category != tt.wantCategory {
				t.Errorf("Category = %v, want %v", entry.Category, tt.wantCategory)
			}
			if entry.Message != tt.wantMessage {
				t.Errorf("Message = %q, want %q", entry.Message, tt.wantMessage)
			}
			if entry.CorrelationID != tt.wantCorrelation {
				t.Errorf("CorrelationID = %q, want %q", entry.CorrelationID, tt.wantCorrelation)
			}
			if entry.Raw != tt.input {
				t.Errorf("Raw = %q, want %q", entry.Raw, tt.input)
			}
			for key, want := range tt.checkFields {
				if got, ok := entry.Fields[key]; !ok {
					t.Errorf("expected field %q not found", key)
				} else if got != want {
					t.Errorf("Field %q = %q, want %q", key, got, want)
				}
			}
		})
	}
}

func TestParser_ParseText(t *testing.T) {
	p := New(0)

	tests := []struct {
		name            string
		input           string
		wantCategory    config.Category
		wantCorrelation string
	}{
		{"bracketed category", "[Warning] disk almost full", config.CategoryWarning, ""},
		{"category after timestamp", "2025-01-26 10:00:01 ERROR step failed", config.CategoryError, ""},
		{"correlation id", childID + " Info deploying release 1.2.3", config.CategoryInfo, childID},
		{"masked secret", "Verbose using password <redacted>", config.CategoryVerbose, ""},
		{"no category", "plain line", config.CategoryUnknown, ""},
		{"word inside identifier", "errorHandler started", config.CategoryUnknown, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entry := p.ParseLine(tt.input, 3)
			if entry.Category != tt.wantCategory {
				t.Errorf("Category = %v, want %v", entry.Category, tt.wantCategory)
			}
			if entry.CorrelationID != tt.wantCorrelation {
				t.Errorf("CorrelationID = %q, want %q", entry.CorrelationID, tt.wantCorrelation)
			}
			if entry.Message != tt.input || entry.Line != 3 {
				t.Errorf("unexpected entry %+v", entry)
			}
		})
	}
}

func TestParser_Parse(t *testing.T) {
	input := "Info one\n\n   \nError two\n{\"category\":\"fatal\",\"message\":\"three\"}\n"
	entries, err := New(0).Parse(strings.NewReader(input))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}

	wantLines := []int{1, 4, 5}
	wantCats := []config.Category{config.CategoryInfo, config.CategoryError, config.CategoryFatal}
	for i, e := range entries {
		if e.Line != wantLines[i] || e.Category != wantCats[i] {
			t.Errorf("entry %d = line %d %v, want line %d %v", i, e.Line, e.Category, wantLines[i], wantCats[i])
		}
	}
}

type errReader struct{}

func (errReader) Read([]byte) (int, error) { return 0, errors.New("read failed") }

func TestParser_ParseReadError(t *testing.T) {
	if _, err := New(0).Parse(errReader{}); err == nil {
		t.Fatal("expected read error")
	}
}

func TestParser_ParseLineTooLong(t *testing.T) {
	_, err := New(16).Parse(strings.NewReader(strings.Repeat("x", 64) + "\n"))
	if err == nil {
		t.Fatal("expected error for overlong line")
	}
}

func BenchmarkParser_ParseLine(b *testing.B) {
	p := New(0)
	line := childID + " Info deploying package Acme.Web 1.2.3 to web-01 using <redacted>"
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		p.ParseLine(line, i)
	}
}
