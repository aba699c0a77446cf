// internal/config/config.go
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Host string `json:"host" yaml:"host"`
		Port int    `json:"port" yaml:"port"`
	} `json:"server" yaml:"server"`

	Database struct {
		Path string `json:"path" yaml:"path"`
	} `json:"database" yaml:"database"`

	Diff    DiffConfig    `json:"diff" yaml:"diff"`
	Archive ArchiveConfig `json:"archive" yaml:"archive"`

	Environment string `json:"environment" yaml:"environment"` // dev, prod
	LogLevel    string `json:"log_level" yaml:"log_level"`     // debug, info, warn, error
}

// DiffConfig holds defaults for release diff requests.
type DiffConfig struct {
	TagPrefix string   `json:"tag_prefix" yaml:"tag_prefix"`
	Order     string   `json:"order" yaml:"order"`
	Timeout   Duration `json:"timeout" yaml:"timeout"`
	Excludes  []string `json:"excludes" yaml:"excludes"`
}

type ArchiveConfig struct {
	CacheSize        int `json:"cache_size" yaml:"cache_size"`
	CompressionLevel int `json:"compression_level" yaml:"compression_level"`
}

// Duration is a time.Duration that reads "30s" style strings from JSON and YAML.
type Duration time.Duration

func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("duration must be a string: %w", err)
	}
	return d.parse(s)
}

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	return d.parse(s)
}

func (d *Duration) parse(s string) error {
	if s == "" {
		*d = 0
		return nil
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("parsing duration %q: %w", s, err)
	}
	*d = Duration(v)
	return nil
}

func Default() *Config {
	cfg := &Config{
		Environment: "development",
		LogLevel:    "info",
	}
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = 8080
	cfg.Database.Path = "data"
	cfg.Diff.Order = "semver"
	cfg.Diff.Timeout = Duration(2 * time.Minute)
	cfg.Archive.CacheSize = 128
	cfg.Archive.CompressionLevel = 2
	return cfg
}

// PathForEnv returns the config file for RELDIFF_ENV, defaulting to development.
func PathForEnv() string {
	env := os.Getenv("RELDIFF_ENV")
	if env == "" {
		env = "development"
	}
	return fmt.Sprintf("config/config.%s.json", env)
}

// Load reads a JSON or YAML config file on top of Default.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	cfg := Default()
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing yaml config: %w", err)
		}
	default:
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing json config: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	switch strings.ToLower(c.Diff.Order) {
	case "", "semver", "semantic-version", "lexicographic", "none":
	default:
		return fmt.Errorf("invalid diff.order %q", c.Diff.Order)
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server.port %d", c.Server.Port)
	}
	if c.Diff.Timeout < 0 {
		return fmt.Errorf("diff.timeout must not be negative")
	}
	if c.Archive.CacheSize < 0 {
		return fmt.Errorf("archive.cache_size must not be negative")
	}
	if c.Archive.CompressionLevel < 0 || c.Archive.CompressionLevel > 4 {
		return fmt.Errorf("archive.compression_level must be between 0 and 4")
	}
	return nil
}
