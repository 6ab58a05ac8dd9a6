package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/viper"
)

func TestParseCategory(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  Category
	}{
		{"trace", "trace", CategoryTrace},
		{"verbose", "verbose", CategoryVerbose},
		{"debug alias", "debug", CategoryVerbose},
		{"info", "info", CategoryInfo},
		{"planned", "planned", CategoryPlanned},
		{"note", "note", CategoryNote},
		{"abandoned", "abandoned", CategoryAbandoned},
		{"wait", "wait", CategoryWait},
		{"progress", "progress", CategoryProgress},
		{"finished", "finished", CategoryFinished},
		{"warning", "warning", CategoryWarning},
		{"warn alias", "warn", CategoryWarning},
		{"error", "error", CategoryError},
		{"fatal", "fatal", CategoryFatal},
		{"critical alias", "critical", CategoryFatal},

		{"uppercase", "ERROR", CategoryError},
		{"mixed case", "Warning", CategoryWarning},
		{"surrounding space", "  info ", CategoryInfo},

		{"empty string", "", CategoryUnknown},
		{"invalid", "invalid", CategoryUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseCategory(tt.input)
			if got != tt.want {
				t.Errorf("ParseCategory(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestCategory_StringRoundTrip(t *testing.T) {
	for _, c := range Categories() {
		if got := ParseCategory(c.String()); got != c {
			t.Errorf("ParseCategory(%q) = %v, want %v", c.String(), got, c)
		}
	}
	if got := Category(99).String(); got != "UNKNOWN" {
		t.Errorf("Category(99).String() = %q, want UNKNOWN", got)
	}
}

func TestCategory_Ordering(t *testing.T) {
	cats := Categories()
	for i := 1; i < len(cats); i++ {
		if cats[i-1] >= cats[i] {
			t.Errorf("%v (%d) should sort before %v (%d)", cats[i-1], cats[i-1], cats[i], cats[i])
		}
	}
	if CategoryTrace != 1 || CategoryInfo != 200 || CategoryFatal != 500 {
		t.Error("category values must stay stable")
	}
}

func TestCategory_AtLeast(t *testing.T) {
	tests := []struct {
		c, min Category
		want   bool
	}{
		{CategoryError, CategoryWarning, true},
		{CategoryWarning, CategoryWarning, true},
		{CategoryInfo, CategoryWarning, false},
		{CategoryProgress, CategoryInfo, true},
		{CategoryUnknown, CategoryError, true},
		{CategoryTrace, CategoryUnknown, true},
	}
	for _, tt := range tests {
		if got := tt.c.AtLeast(tt.min); got != tt.want {
			t.Errorf("%v.AtLeast(%v) = %v, want %v", tt.c, tt.min, got, tt.want)
		}
	}
}

func TestCategory_JSON(t *testing.T) {
	got, err := CategoryError.MarshalJSON()
	if err != nil {
		t.Fatalf("MarshalJSON() error = %v", err)
	}
	if string(got) != `"ERROR"` {
		t.Errorf("MarshalJSON() = %s, want \"ERROR\"", got)
	}

	var c Category
	if err := c.UnmarshalJSON([]byte(`"planned"`)); err != nil {
		t.Fatalf("UnmarshalJSON() error = %v", err)
	}
	if c != CategoryPlanned {
		t.Errorf("UnmarshalJSON() got %v, want %v", c, CategoryPlanned)
	}
}

func newViper() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	return v
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(newViper())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Format != "text" {
		t.Errorf("Format = %q, want text", cfg.Format)
	}
	if cfg.Masking.Token != "<redacted>" {
		t.Errorf("Masking.Token = %q, want <redacted>", cfg.Masking.Token)
	}
	if cfg.Masking.MinLength != 4 {
		t.Errorf("Masking.MinLength = %d, want 4", cfg.Masking.MinLength)
	}
	if cfg.Sanitize.ChunkSize != DefaultChunkSize {
		t.Errorf("Sanitize.ChunkSize = %d, want %d", cfg.Sanitize.ChunkSize, DefaultChunkSize)
	}
	if cfg.Tail.Lines != DefaultTailLines {
		t.Errorf("Tail.Lines = %d, want %d", cfg.Tail.Lines, DefaultTailLines)
	}
}

func TestLoad_FromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "logctx.yaml")
	content := `format: json
masking:
  token: "[MASKED]"
  min_length: 6
  values:
    - hunter22
    - s3cr3t-token
sanitize:
  chunk_size: 128
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	v := newViper()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		t.Fatalf("ReadInConfig() error = %v", err)
	}
	cfg, err := Load(v)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Format != "json" || cfg.Masking.Token != "[MASKED]" || cfg.Masking.MinLength != 6 || cfg.Sanitize.ChunkSize != 128 {
		t.Errorf("unexpected config: %+v", cfg)
	}
	if strings.Join(cfg.Masking.Values, ",") != "hunter22,s3cr3t-token" {
		t.Errorf("Masking.Values = %v", cfg.Masking.Values)
	}
}

func TestLoad_ValuesFromCommaSeparatedString(t *testing.T) {
	v := newViper()
	v.Set("masking.values", "hunter22,s3cr3t-token")

	cfg, err := Load(v)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(cfg.Masking.Values) != 2 || cfg.Masking.Values[1] != "s3cr3t-token" {
		t.Errorf("Masking.Values = %v", cfg.Masking.Values)
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value interface{}
	}{
		{"format", "format", "xml"},
		{"empty token", "masking.token", ""},
		{"min length", "masking.min_length", 0},
		{"max nodes", "masking.max_nodes", -1},
		{"chunk size", "sanitize.chunk_size", 0},
		{"tail lines", "tail.lines", -5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := newViper()
			v.Set(tt.key, tt.value)
			if _, err := Load(v); err == nil {
				t.Errorf("Load() with %s=%v expected error", tt.key, tt.value)
			}
		})
	}
}

func TestSensitiveValues_WithFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "values.yaml")
	if err := os.WriteFile(path, []byte("- from-file-1\n- from-file-2\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg := Config{Masking: MaskingConfig{Values: []string{"inline"}, ValuesFile: path}}
	values, err := cfg.SensitiveValues()
	if err != nil {
		t.Fatalf("SensitiveValues() error = %v", err)
	}
	if strings.Join(values, ",") != "inline,from-file-1,from-file-2" {
		t.Errorf("SensitiveValues() = %v", values)
	}

	cfg.Masking.ValuesFile = filepath.Join(dir, "missing.yaml")
	if _, err := cfg.SensitiveValues(); err == nil {
		t.Error("expected error for missing values file")
	}
}
