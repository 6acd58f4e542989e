// Package config loads the lineage.yaml project file.
package config

import (
	"bytes"
	"os"
	"path/filepath"

	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/roach88/lineage/internal/errors"
	"github.com/roach88/lineage/internal/schema"
)

// FileName is the project file looked up by default.
const FileName = "lineage.yaml"

// Config is the project configuration.
type Config struct {
	// Database is the SQLite file path. Relative paths resolve against the
	// config file's directory.
	Database string `yaml:"database"`

	// SchemaDir holds the CUE class declarations.
	SchemaDir string `yaml:"schema_dir"`

	// BaseClass names the common root class.
	BaseClass string `yaml:"base_class"`

	// LogLevel is a zap level name: debug, info, warn, error.
	LogLevel string `yaml:"log_level"`

	Cache CacheConfig `yaml:"cache"`
}

// CacheConfig controls the lookup cache.
type CacheConfig struct {
	// Enabled defaults to true.
	Enabled *bool `yaml:"enabled"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	c := &Config{}
	c.applyDefaults()
	return c
}

// Load reads and validates a config file. Unknown keys are rejected.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read config")
	}

	var c Config
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&c); err != nil {
		return nil, errors.Wrapf(err, "parse %s", path)
	}

	c.applyDefaults()
	c.resolvePaths(filepath.Dir(path))
	if err := c.Validate(); err != nil {
		return nil, errors.Wrapf(err, "invalid config %s", path)
	}
	return &c, nil
}

// LoadOrDefault loads path when it exists and falls back to Default.
func LoadOrDefault(path string) (*Config, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}
	return Load(path)
}

func (c *Config) applyDefaults() {
	if c.Database == "" {
		c.Database = "lineage.db"
	}
	if c.SchemaDir == "" {
		c.SchemaDir = "schema"
	}
	if c.BaseClass == "" {
		c.BaseClass = schema.DefaultRootClass
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.Cache.Enabled == nil {
		enabled := true
		c.Cache.Enabled = &enabled
	}
}

func (c *Config) resolvePaths(base string) {
	if c.Database != ":memory:" && !filepath.IsAbs(c.Database) {
		c.Database = filepath.Join(base, c.Database)
	}
	if !filepath.IsAbs(c.SchemaDir) {
		c.SchemaDir = filepath.Join(base, c.SchemaDir)
	}
}

// Validate checks field values.
func (c *Config) Validate() error {
	if _, err := zapcore.ParseLevel(c.LogLevel); err != nil {
		return errors.Newf("log_level: unknown level %q", c.LogLevel)
	}
	if c.BaseClass == "" {
		return errors.New("base_class: must not be empty")
	}
	return nil
}

// Level returns the parsed log level.
func (c *Config) Level() zapcore.Level {
	lvl, err := zapcore.ParseLevel(c.LogLevel)
	if err != nil {
		return zapcore.InfoLevel
	}
	return lvl
}

// CacheEnabled reports whether the lookup cache is on.
func (c *Config) CacheEnabled() bool {
	return c.Cache.Enabled == nil || *c.Cache.Enabled
}
