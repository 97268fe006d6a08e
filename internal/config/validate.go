package config

import (
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateGit(); err != nil {
		return err
	}
	if err := c.validateBatch(); err != nil {
		return err
	}
	return c.validateLog()
}

func (c *Config) validateGit() error {
	for key, tmpl := range map[string]string{
		"git.source_template": c.Git.SourceTemplate,
		"git.dest_template":   c.Git.DestTemplate,
	} {
		if !strings.Contains(tmpl, "{id}") {
			return fmt.Errorf("%s must contain {id}, got %q", key, tmpl)
		}
	}
	if c.Git.Timeout < 0 {
		return fmt.Errorf("git.timeout must not be negative")
	}
	return nil
}

func (c *Config) validateBatch() error {
	if c.Batch.Workers < 1 {
		return fmt.Errorf("batch.workers must be at least 1, got %d", c.Batch.Workers)
	}
	if c.Batch.RecordTimeout < 0 {
		return fmt.Errorf("batch.record_timeout must not be negative")
	}
	return nil
}

func (c *Config) validateLog() error {
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level: unsupported value %q", c.Log.Level)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("log.format: unsupported value %q", c.Log.Format)
	}
	if c.Log.MaxSizeMB < 0 || c.Log.MaxBackups < 0 {
		return fmt.Errorf("log.max_size_mb and log.max_backups must not be negative")
	}
	return nil
}
