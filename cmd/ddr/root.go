package main

import (
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/CamJohns/ddr-cmdln/internal/config"
	"github.com/CamJohns/ddr-cmdln/internal/logging"
	"github.com/CamJohns/ddr-cmdln/internal/pipeline"
)

// flagKeys maps command-line flags to config keys. Flags override the
// config file and environment when set.
var flagKeys = map[string]string{
	"log-level":       "log.level",
	"log-format":      "log.format",
	"log-file":        "log.file",
	"source-template": "git.source_template",
	"dest-template":   "git.dest_template",
	"agent":           "git.agent",
	"git-timeout":     "git.timeout",
	"workers":         "batch.workers",
	"record-timeout":  "batch.record_timeout",
	"vocab":           "vocab.topics_path",
	"ledger":          "ledger.path",
}

// commandContext carries what every subcommand needs once flags are parsed.
type commandContext struct {
	configFlag string
	stdout     io.Writer
	stderr     io.Writer

	cfg    *config.Config
	logger *slog.Logger
	closer io.Closer
}

func (c *commandContext) load(cmd *cobra.Command) error {
	v := config.NewViper()
	if err := bindFlags(v, cmd); err != nil {
		return err
	}
	cfg, err := config.Load(v, strings.TrimSpace(c.configFlag))
	if err != nil {
		return pipeline.NewConfigurationError("config", err.Error())
	}
	logger, closer, err := logging.NewFromConfig(cfg, c.stderr)
	if err != nil {
		return pipeline.NewConfigurationError("log", err.Error())
	}
	c.cfg = cfg
	c.logger = logger
	c.closer = closer
	if cfg.File != "" {
		logger.Debug("loaded config", "file", cfg.File)
	}
	return nil
}

func (c *commandContext) close() {
	if c.closer != nil {
		_ = c.closer.Close()
		c.closer = nil
	}
}

func bindFlags(v *viper.Viper, cmd *cobra.Command) error {
	for name, key := range flagKeys {
		f := cmd.Flags().Lookup(name)
		if f == nil {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return err
		}
	}
	return nil
}

func newRootCommand(stdout, stderr io.Writer) *cobra.Command {
	ctx := &commandContext{stdout: stdout, stderr: stderr}
	defaults := config.Default()

	rootCmd := &cobra.Command{
		Use:   "ddr",
		Short: "Batch maintenance of DDR collection repositories",
		Long: `ddr clones DDR collection repositories, repairs and backfills their
metadata documents, and commits each collection only when every document
in it was processed successfully.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return ctx.load(cmd)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			ctx.close()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)

	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&ctx.configFlag, "config", "c", "", "Configuration file path (default: search ~/.config/ddr, /etc/ddr)")
	pf.String("log-level", defaults.Log.Level, "Log level: debug, info, warn, error")
	pf.String("log-format", defaults.Log.Format, "Log format: text or json")
	pf.String("log-file", "", "Also write logs to this file, rotated by size")

	rootCmd.AddCommand(newBatchCommand(ctx))
	rootCmd.AddCommand(newProcessCommand(ctx))
	rootCmd.AddCommand(newExportCommand(ctx))
	rootCmd.AddCommand(newRunsCommand(ctx))
	rootCmd.AddCommand(newConfigCommand(ctx))

	return rootCmd
}
