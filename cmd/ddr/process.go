package main

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/CamJohns/ddr-cmdln/internal/config"
	"github.com/CamJohns/ddr-cmdln/internal/pipeline"
)

func newProcessCommand(ctx *commandContext) *cobra.Command {
	var flags runFlags

	cmd := &cobra.Command{
		Use:   "process PATH",
		Short: "Process one existing collection working copy",
		Long: `Process the collection at PATH (its directory or collection.json) in place.

Nothing is cloned or removed. With --commit the written documents are
committed only when every document succeeded and the working copy had no
staged or modified files beforehand.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tc, err := flags.transformConfig()
			if err != nil {
				return err
			}
			proc, err := ctx.newProcessor(tc.RepairTopics)
			if err != nil {
				return err
			}

			res, err := proc.Process(cmd.Context(), args[0], tc, flags.commitConfig(ctx.cfg))
			if res == nil || pipeline.IsConfigurationError(err) {
				return err
			}

			if flags.json {
				enc := json.NewEncoder(ctx.stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(res)
			}
			renderCollectionResult(ctx.stdout, res)
			return nil
		},
	}

	flags.register(cmd, config.Default())
	return cmd
}
