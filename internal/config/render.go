package config

import (
	"bytes"
	"fmt"
	"io"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// view is the rendered form of Config. Durations are written as strings
// so that the output can be read back as a config file.
type view struct {
	Git struct {
		SourceTemplate string `yaml:"source_template" toml:"source_template"`
		DestTemplate   string `yaml:"dest_template" toml:"dest_template"`
		Agent          string `yaml:"agent" toml:"agent"`
		Timeout        string `yaml:"timeout" toml:"timeout"`
	} `yaml:"git" toml:"git"`
	Batch struct {
		Workers       int    `yaml:"workers" toml:"workers"`
		RecordTimeout string `yaml:"record_timeout" toml:"record_timeout"`
	} `yaml:"batch" toml:"batch"`
	Vocab struct {
		TopicsPath string `yaml:"topics_path" toml:"topics_path"`
	} `yaml:"vocab" toml:"vocab"`
	Ledger struct {
		Path string `yaml:"path" toml:"path"`
	} `yaml:"ledger" toml:"ledger"`
	Log struct {
		Level      string `yaml:"level" toml:"level"`
		Format     string `yaml:"format" toml:"format"`
		File       string `yaml:"file" toml:"file"`
		MaxSizeMB  int    `yaml:"max_size_mb" toml:"max_size_mb"`
		MaxBackups int    `yaml:"max_backups" toml:"max_backups"`
	} `yaml:"log" toml:"log"`
}

func (c *Config) view() view {
	var v view
	v.Git.SourceTemplate = c.Git.SourceTemplate
	v.Git.DestTemplate = c.Git.DestTemplate
	v.Git.Agent = c.Git.Agent
	v.Git.Timeout = c.Git.Timeout.String()
	v.Batch.Workers = c.Batch.Workers
	v.Batch.RecordTimeout = c.Batch.RecordTimeout.String()
	v.Vocab.TopicsPath = c.Vocab.TopicsPath
	v.Ledger.Path = c.Ledger.Path
	v.Log.Level = c.Log.Level
	v.Log.Format = c.Log.Format
	v.Log.File = c.Log.File
	v.Log.MaxSizeMB = c.Log.MaxSizeMB
	v.Log.MaxBackups = c.Log.MaxBackups
	return v
}

// Render writes the configuration as "yaml" or "toml".
func (c *Config) Render(w io.Writer, format string) error {
	v := c.view()
	switch format {
	case "yaml", "yml", "":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return fmt.Errorf("encode yaml: %w", err)
		}
		return enc.Close()
	case "toml":
		var buf bytes.Buffer
		if err := toml.NewEncoder(&buf).Encode(v); err != nil {
			return fmt.Errorf("encode toml: %w", err)
		}
		_, err := w.Write(buf.Bytes())
		return err
	default:
		return fmt.Errorf("unsupported format %q (want yaml or toml)", format)
	}
}
