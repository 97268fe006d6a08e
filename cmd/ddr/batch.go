package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/CamJohns/ddr-cmdln/internal/batch"
	"github.com/CamJohns/ddr-cmdln/internal/config"
	"github.com/CamJohns/ddr-cmdln/internal/ledger"
	"github.com/CamJohns/ddr-cmdln/internal/pipeline"
	"github.com/CamJohns/ddr-cmdln/internal/vcs/git"
)

func newBatchCommand(ctx *commandContext) *cobra.Command {
	var (
		flags    runFlags
		baseDir  string
		idsFile  string
		keep     bool
		csvPath  string
		noLedger bool
	)
	defaults := config.Default()

	cmd := &cobra.Command{
		Use:   "batch --basedir DIR --ids FILE",
		Short: "Clone, process and optionally commit a list of collections",
		Long: `Process every collection listed in the ids file.

Each collection is cloned into the base directory, its documents are
filtered and transformed, and with --commit the written documents are
committed in one commit, but only when every document succeeded. The
working copy is removed afterwards unless --keep is given.

The run is recorded in the ledger (see 'ddr runs') unless --no-ledger.`,
		Example: `  ddr batch --ids ids.txt --basedir /tmp/ddr --repair-topics
  ddr batch --ids ids.txt --basedir /tmp/ddr --backfill-created --commit -u "Jane Doe" -m jane@example.org`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if idsFile == "" {
				return pipeline.NewConfigurationError("ids", "--ids is required")
			}
			ids, err := readIDs(idsFile)
			if err != nil {
				return err
			}
			tc, err := flags.transformConfig()
			if err != nil {
				return err
			}
			if err := git.CheckVersion(); err != nil {
				return pipeline.NewConfigurationError("git", err.Error())
			}

			proc, err := ctx.newProcessor(tc.RepairTopics)
			if err != nil {
				return err
			}

			cfg := ctx.cfg
			res, err := batch.Run(cmd.Context(), batch.Options{
				IDs:            ids,
				BaseDir:        baseDir,
				SourceTemplate: cfg.Git.SourceTemplate,
				DestTemplate:   cfg.Git.DestTemplate,
				Commit:         flags.commitConfig(cfg),
				Transform:      tc,
				Keep:           keep,
				Workers:        cfg.Batch.Workers,
				Cloner:         &git.Cloner{Timeout: cfg.Git.Timeout},
				Processor:      proc,
				Logger:         ctx.logger,
			})
			if err != nil {
				return err
			}

			if !noLedger && cfg.Ledger.Path != "" {
				ctx.recordRun(res)
			}
			if csvPath != "" {
				if err := writeCSVFile(csvPath, res); err != nil {
					ctx.logger.Warn("failed to write csv report", "path", csvPath, "error", err)
					fmt.Fprintf(ctx.stderr, "warning: csv report not written: %v\n", err)
				}
			}
			if flags.json {
				return batch.WriteJSON(ctx.stdout, res)
			}
			renderBatchResult(ctx.stdout, res)
			return nil
		},
	}

	flags.register(cmd, defaults)
	fs := cmd.Flags()
	fs.StringVarP(&baseDir, "basedir", "b", "", "Directory that receives the working copies")
	fs.StringVar(&idsFile, "ids", "", "File listing collection identifiers, one per line")
	fs.BoolVarP(&keep, "keep", "k", false, "Keep working copies after processing")
	fs.IntP("workers", "w", defaults.Batch.Workers, "Collections processed at once")
	fs.String("source-template", defaults.Git.SourceTemplate, "Clone URL template; {id} is the collection identifier")
	fs.String("dest-template", defaults.Git.DestTemplate, "Working copy path template, relative to --basedir")
	fs.Duration("git-timeout", defaults.Git.Timeout, "Time limit for one clone")
	fs.StringVar(&csvPath, "csv", "", "Write one row per document to this CSV file")
	fs.String("ledger", defaults.Ledger.Path, "Run ledger database")
	fs.BoolVar(&noLedger, "no-ledger", false, "Do not record the run in the ledger")

	return cmd
}

// recordRun writes the run to the ledger. Failures are reported, never fatal.
func (c *commandContext) recordRun(res *batch.Result) {
	db, err := ledger.Open(c.cfg.Ledger.Path)
	if err != nil {
		c.logger.Warn("ledger unavailable", "path", c.cfg.Ledger.Path, "error", err)
		return
	}
	defer db.Close()

	if err := db.RecordRun(context.Background(), res); err != nil {
		c.logger.Warn("failed to record run", "run_id", res.RunID, "error", err)
		return
	}
	c.logger.Debug("recorded run", "run_id", res.RunID, "ledger", db.Path())
}

func writeCSVFile(path string, res *batch.Result) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := batch.WriteCSV(f, res); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
