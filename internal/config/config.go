// Package config loads ddr settings from defaults, an optional config
// file, DDR_* environment variables and command-line flags, in increasing
// order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Git configures repository acquisition and commits.
type Git struct {
	SourceTemplate string        `mapstructure:"source_template"`
	DestTemplate   string        `mapstructure:"dest_template"`
	Agent          string        `mapstructure:"agent"`
	Timeout        time.Duration `mapstructure:"timeout"`
}

// Batch configures the orchestrator.
type Batch struct {
	Workers       int           `mapstructure:"workers"`
	RecordTimeout time.Duration `mapstructure:"record_timeout"`
}

// Vocab locates controlled vocabularies.
type Vocab struct {
	TopicsPath string `mapstructure:"topics_path"`
}

// Ledger locates the run ledger. An empty path disables it.
type Ledger struct {
	Path string `mapstructure:"path"`
}

// Log configures the logger.
type Log struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
}

// Config is the effective configuration.
type Config struct {
	Git    Git    `mapstructure:"git"`
	Batch  Batch  `mapstructure:"batch"`
	Vocab  Vocab  `mapstructure:"vocab"`
	Ledger Ledger `mapstructure:"ledger"`
	Log    Log    `mapstructure:"log"`

	// File is the config file that was read, if any.
	File string `mapstructure:"-"`
}

// EnvPrefix prefixes environment overrides, e.g. DDR_BATCH_WORKERS.
const EnvPrefix = "DDR"

// SearchPaths lists the directories searched for ddr.yaml or ddr.toml.
func SearchPaths() []string {
	var paths []string
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "ddr"))
	}
	return append(paths, "/etc/ddr")
}

// NewViper returns a viper instance with defaults and environment
// bindings. Callers bind flags to it before calling Load.
func NewViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads the config file and decodes the effective configuration.
// With an empty path the search paths are tried and a missing file is
// not an error; an explicit path must exist.
func Load(v *viper.Viper, path string) (*Config, error) {
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("ddr")
		for _, p := range SearchPaths() {
			v.AddConfigPath(p)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.File = v.ConfigFileUsed()
	cfg.normalize()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the configuration with no file, environment or flags.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	_ = v.Unmarshal(&cfg)
	cfg.normalize()
	return &cfg
}

func (c *Config) normalize() {
	c.Log.Level = strings.ToLower(strings.TrimSpace(c.Log.Level))
	c.Log.Format = strings.ToLower(strings.TrimSpace(c.Log.Format))
	c.Vocab.TopicsPath = expandHome(c.Vocab.TopicsPath)
	c.Ledger.Path = expandHome(c.Ledger.Path)
	c.Log.File = expandHome(c.Log.File)
}

func expandHome(p string) string {
	if p == "~" || strings.HasPrefix(p, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(p, "~"))
		}
	}
	return p
}
