// Package config provides configuration types and helpers for logctx.
package config

import (
	"github.com/bimmerbailey/logctx/internal/masking"
	"github.com/cockroachdb/errors"
	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

// Config holds the application-wide configuration.
type Config struct {
	Format   string         `mapstructure:"format"`
	Verbose  bool           `mapstructure:"verbose"`
	Masking  MaskingConfig  `mapstructure:"masking"`
	Sanitize SanitizeConfig `mapstructure:"sanitize"`
	Tail     TailConfig     `mapstructure:"tail"`
}

// MaskingConfig controls what is masked and how.
type MaskingConfig struct {
	// Token replaces every masked value.
	Token string `mapstructure:"token"`

	// MinLength is the shortest value, in runes, that is masked.
	MinLength int `mapstructure:"min_length"`

	// MaxNodes bounds the index built for one value set.
	MaxNodes int `mapstructure:"max_nodes"`

	// Values are sensitive values known up front. A comma separated
	// LOGCTX_MASKING_VALUES is split into a list.
	Values []string `mapstructure:"values"`

	// ValuesFile names a YAML file of further values, see LoadValuesFile.
	ValuesFile string `mapstructure:"values_file"`
}

// SanitizeConfig holds settings for the sanitize command.
type SanitizeConfig struct {
	// ChunkSize is the size of the fragments read from each input.
	ChunkSize int `mapstructure:"chunk_size"`
}

// TailConfig holds settings for the tail command.
type TailConfig struct {
	Lines int `mapstructure:"lines"`
}

// Default values.
const (
	DefaultFormat    = "text"
	DefaultChunkSize = 32 * 1024
	DefaultTailLines = 10
)

// SetDefaults registers the default of every key on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("format", DefaultFormat)
	v.SetDefault("verbose", false)
	v.SetDefault("masking.token", masking.DefaultToken)
	v.SetDefault("masking.min_length", masking.DefaultMinLength)
	v.SetDefault("masking.max_nodes", masking.DefaultMaxNodes)
	v.SetDefault("masking.values", []string{})
	v.SetDefault("masking.values_file", "")
	v.SetDefault("sanitize.chunk_size", DefaultChunkSize)
	v.SetDefault("tail.lines", DefaultTailLines)
}

// Load decodes the configuration held by v and validates it.
func Load(v *viper.Viper) (Config, error) {
	var cfg Config
	hook := viper.DecodeHook(mapstructure.StringToSliceHookFunc(","))
	if err := v.Unmarshal(&cfg, hook); err != nil {
		return cfg, errors.Wrap(err, "decoding configuration")
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	switch c.Format {
	case "text", "json":
	default:
		return errors.Newf("unsupported format %q (want text or json)", c.Format)
	}
	if c.Masking.Token == "" {
		return errors.New("masking.token must not be empty")
	}
	if c.Masking.MinLength < 1 {
		return errors.Newf("masking.min_length must be at least 1, got %d", c.Masking.MinLength)
	}
	if c.Masking.MaxNodes < 1 {
		return errors.Newf("masking.max_nodes must be positive, got %d", c.Masking.MaxNodes)
	}
	if c.Sanitize.ChunkSize < 1 {
		return errors.Newf("sanitize.chunk_size must be positive, got %d", c.Sanitize.ChunkSize)
	}
	if c.Tail.Lines < 0 {
		return errors.Newf("tail.lines must not be negative, got %d", c.Tail.Lines)
	}
	return nil
}

// SensitiveValues returns the configured values followed by those in
// ValuesFile, if set.
func (c Config) SensitiveValues() ([]string, error) {
	values := append([]string(nil), c.Masking.Values...)
	if c.Masking.ValuesFile == "" {
		return values, nil
	}
	fromFile, err := LoadValuesFile(c.Masking.ValuesFile)
	if err != nil {
		return nil, err
	}
	return append(values, fromFile...), nil
}
