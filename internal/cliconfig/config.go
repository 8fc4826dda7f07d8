package cliconfig

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/bft-labs/sraship/internal/domain"
	"github.com/bft-labs/sraship/internal/format"
	"github.com/bft-labs/sraship/internal/tool"
)

// Defaults.
const (
	DefaultBatchSize = 1000
	DefaultThreads   = 1
	DefaultLibType   = "A"
	DefaultLogLevel  = "info"
)

// Config holds CLI configuration for sraship.
type Config struct {
	Pipeline string

	SRAAccession string
	ArchiveDir   string

	Threads     int
	Index       string
	Output      string
	AlignerArgs string
	LibType     string

	BatchSize int
	MaxReads  int64
	Format    string
	WorkDir   string

	LogLevel    string
	MetricsFile string
	WatchOutput bool
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	return Config{
		ArchiveDir: ".",
		Threads:    DefaultThreads,
		LibType:    DefaultLibType,
		BatchSize:  DefaultBatchSize,
		Format:     format.Default,
		LogLevel:   DefaultLogLevel,
	}
}

// Validate checks the configuration for errors and sets derived defaults.
func (c *Config) Validate() error {
	if c.Pipeline == "" {
		return invalid("pipeline is required")
	}
	if c.Pipeline != tool.Mock {
		if _, err := tool.Lookup(c.Pipeline); err != nil {
			return err
		}
	}

	if c.SRAAccession == "" {
		return invalid("sra-accession is required")
	}
	if c.ArchiveDir == "" {
		c.ArchiveDir = "."
	}

	if c.Pipeline != tool.Mock {
		if c.Index == "" {
			return invalid("index is required for pipeline %s", c.Pipeline)
		}
		if c.Output == "" {
			return invalid("output is required for pipeline %s", c.Pipeline)
		}
	}

	if c.Threads <= 0 {
		return invalid("threads must be positive")
	}
	if c.BatchSize <= 0 {
		return invalid("batch size must be positive")
	}
	if c.MaxReads < 0 {
		return invalid("max reads must not be negative")
	}

	if c.Format == "" {
		c.Format = format.Default
	}
	if _, err := format.Lookup(c.Format); err != nil {
		return invalid("%v", err)
	}

	if c.LibType == "" {
		c.LibType = DefaultLibType
	}

	c.LogLevel = strings.ToLower(c.LogLevel)
	if c.LogLevel == "" {
		c.LogLevel = DefaultLogLevel
	}
	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		return invalid("log level: %v", err)
	}

	return nil
}

// Level returns the configured log level, or info if it does not parse.
func (c Config) Level() zerolog.Level {
	lvl, err := zerolog.ParseLevel(strings.ToLower(c.LogLevel))
	if err != nil || c.LogLevel == "" {
		return zerolog.InfoLevel
	}
	return lvl
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", domain.ErrInvalidConfig, fmt.Sprintf(format, args...))
}

// configSetter helps apply configuration values while respecting flag precedence.
// It only applies values if the corresponding flag hasn't been explicitly set.
type configSetter struct {
	changed map[string]bool
}

// newConfigSetter creates a new setter with the given changed flags map.
func newConfigSetter(changed map[string]bool) *configSetter {
	return &configSetter{changed: changed}
}

// setString sets a string value if not empty and flag not changed.
func (s *configSetter) setString(flag, value string, dst *string) {
	if value == "" || s.changed[flag] {
		return
	}
	*dst = value
}

// setInt sets an int value if positive and flag not changed.
func (s *configSetter) setInt(flag string, value int, dst *int) {
	if value <= 0 || s.changed[flag] {
		return
	}
	*dst = value
}

// setInt64 sets an int64 value if positive and flag not changed.
func (s *configSetter) setInt64(flag string, value int64, dst *int64) {
	if value <= 0 || s.changed[flag] {
		return
	}
	*dst = value
}

// setBool sets a bool value from a pointer if not nil and flag not changed.
func (s *configSetter) setBool(flag string, value *bool, dst *bool) {
	if value == nil || s.changed[flag] {
		return
	}
	*dst = *value
}

// setIntFromString parses a string to int and sets the destination if valid.
// Used for environment variables that come as strings.
func (s *configSetter) setIntFromString(flag, value string, dst *int) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	i, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	if i <= 0 {
		return nil
	}
	*dst = i
	return nil
}

// setInt64FromString is setIntFromString for int64 values.
func (s *configSetter) setInt64FromString(flag, value string, dst *int64) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	i, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	if i <= 0 {
		return nil
	}
	*dst = i
	return nil
}

// setBoolFromString parses a string to bool and sets the destination.
// Accepts "true", "1" as true, anything else as false.
// Used for environment variables that come as strings.
func (s *configSetter) setBoolFromString(flag, value string, dst *bool) {
	if value == "" || s.changed[flag] {
		return
	}
	*dst = value == "true" || value == "1"
}
