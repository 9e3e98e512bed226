package scriptbox

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultMaxCallDepth    = 100
	DefaultMaxIterations   = 10000
	DefaultMaxValueLength  = 1 << 20
	DefaultMaxNestingDepth = 200
	DefaultCacheSize       = 128
	DefaultListenAddress   = ":8080"
)

// Limits bound the resources a single script run may consume. Zero or
// negative fields fall back to the defaults.
type Limits struct {
	// MaxCallDepth is the deepest allowed chain of active function calls
	MaxCallDepth int `json:"max_call_depth,omitempty" yaml:"max_call_depth,omitempty"`

	// MaxIterations is the number of iterations each loop may run
	MaxIterations int `json:"max_iterations,omitempty" yaml:"max_iterations,omitempty"`

	// MaxValueLength caps string length in characters and array length in
	// elements
	MaxValueLength int `json:"max_value_length,omitempty" yaml:"max_value_length,omitempty"`

	// MaxNestingDepth caps how deeply blocks and expressions may nest in source
	MaxNestingDepth int `json:"max_nesting_depth,omitempty" yaml:"max_nesting_depth,omitempty"`
}

// DefaultLimits returns the limits used when none are configured.
func DefaultLimits() Limits {
	return Limits{}.WithDefaults()
}

// WithDefaults returns a copy of l with unset fields filled in.
func (l Limits) WithDefaults() Limits {
	if l.MaxCallDepth <= 0 {
		l.MaxCallDepth = DefaultMaxCallDepth
	}
	if l.MaxIterations <= 0 {
		l.MaxIterations = DefaultMaxIterations
	}
	if l.MaxValueLength <= 0 {
		l.MaxValueLength = DefaultMaxValueLength
	}
	if l.MaxNestingDepth <= 0 {
		l.MaxNestingDepth = DefaultMaxNestingDepth
	}
	return l
}

// RecorderConfig selects where run records are written.
type RecorderConfig struct {
	// Driver is one of "", "null", "file", "sqlite", "postgres" or "mysql"
	Driver string `json:"driver,omitempty" yaml:"driver,omitempty"`

	// Directory is used by the file driver
	Directory string `json:"directory,omitempty" yaml:"directory,omitempty"`

	// DSN is used by the database drivers
	DSN string `json:"dsn,omitempty" yaml:"dsn,omitempty"`

	// Retention is how long the HTTP service keeps recorded runs, for
	// example "720h". Zero keeps them forever.
	Retention time.Duration `json:"retention,omitempty" yaml:"retention,omitempty"`

	// PruneInterval is how often expired runs are deleted
	PruneInterval time.Duration `json:"prune_interval,omitempty" yaml:"prune_interval,omitempty"`
}

// Config is the host configuration used by the command line tool and the
// HTTP service.
type Config struct {
	Limits    Limits         `json:"limits" yaml:"limits"`
	Globals   map[string]any `json:"globals,omitempty" yaml:"globals,omitempty"`
	LogLevel  string         `json:"log_level,omitempty" yaml:"log_level,omitempty"`
	LogFormat string         `json:"log_format,omitempty" yaml:"log_format,omitempty"`
	Recorder  RecorderConfig `json:"recorder" yaml:"recorder"`
	Listen    string         `json:"listen,omitempty" yaml:"listen,omitempty"`
	CacheSize int            `json:"cache_size,omitempty" yaml:"cache_size,omitempty"`
}

// WithDefaults returns a copy of c with unset fields filled in.
func (c Config) WithDefaults() Config {
	c.Limits = c.Limits.WithDefaults()
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.LogFormat == "" {
		c.LogFormat = "text"
	}
	if c.Listen == "" {
		c.Listen = DefaultListenAddress
	}
	if c.CacheSize <= 0 {
		c.CacheSize = DefaultCacheSize
	}
	return c
}

// Validate checks the configuration for unsupported values.
func (c Config) Validate() error {
	switch c.Recorder.Driver {
	case "", "null":
	case "file":
		if c.Recorder.Directory == "" {
			return fmt.Errorf("recorder directory required for file driver")
		}
	case "sqlite", "postgres", "mysql":
		if c.Recorder.DSN == "" {
			return fmt.Errorf("recorder dsn required for %s driver", c.Recorder.Driver)
		}
	default:
		return fmt.Errorf("unknown recorder driver %q", c.Recorder.Driver)
	}
	if c.Recorder.Retention < 0 || c.Recorder.PruneInterval < 0 {
		return fmt.Errorf("recorder retention and prune interval must not be negative")
	}
	switch c.LogFormat {
	case "", "text", "json":
	default:
		return fmt.Errorf("unknown log format %q", c.LogFormat)
	}
	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// LoadConfigFile loads a configuration from a YAML file
func LoadConfigFile(path string) (Config, error) {
	yamlData, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config file: %w", err)
	}
	return LoadConfigString(string(yamlData))
}

// LoadConfigString loads a configuration from a YAML string
func LoadConfigString(data string) (Config, error) {
	var cfg Config
	if err := yaml.Unmarshal([]byte(data), &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}
