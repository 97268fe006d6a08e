package config

import (
	"time"

	"github.com/spf13/viper"
)

const (
	defaultSourceTemplate = "git@mits.densho.org:{id}.git"
	defaultDestTemplate   = "{id}"
	defaultAgent          = "ddr-batch"
	defaultGitTimeout     = 2 * time.Minute
	defaultWorkers        = 1
	defaultRecordTimeout  = 30 * time.Second
	defaultLedgerPath     = "~/.local/share/ddr/ledger.db"
	defaultLogLevel       = "info"
	defaultLogFormat      = "text"
	defaultLogMaxSizeMB   = 50
	defaultLogMaxBackups  = 5
)

func setDefaults(v *viper.Viper) {
	v.SetDefault("git.source_template", defaultSourceTemplate)
	v.SetDefault("git.dest_template", defaultDestTemplate)
	v.SetDefault("git.agent", defaultAgent)
	v.SetDefault("git.timeout", defaultGitTimeout)
	v.SetDefault("batch.workers", defaultWorkers)
	v.SetDefault("batch.record_timeout", defaultRecordTimeout)
	v.SetDefault("vocab.topics_path", "")
	v.SetDefault("ledger.path", defaultLedgerPath)
	v.SetDefault("log.level", defaultLogLevel)
	v.SetDefault("log.format", defaultLogFormat)
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", defaultLogMaxSizeMB)
	v.SetDefault("log.max_backups", defaultLogMaxBackups)
}
