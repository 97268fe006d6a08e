package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/CamJohns/ddr-cmdln/internal/pipeline"
	"github.com/CamJohns/ddr-cmdln/internal/ui"
)

func newConfigCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect configuration",
	}
	cmd.AddCommand(newConfigShowCommand(ctx))
	return cmd
}

func newConfigShowCommand(ctx *commandContext) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		Long: `Print the configuration after defaults, config file, DDR_* environment
variables and flags have been applied. The output is a valid config file.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			switch format {
			case "yaml", "toml":
			default:
				return pipeline.NewConfigurationError("format", fmt.Sprintf("unsupported value %q (want yaml or toml)", format))
			}
			src := "defaults and environment"
			if ctx.cfg.File != "" {
				src = ctx.cfg.File
			}
			fmt.Fprintf(ctx.stderr, "%s\n", ui.RenderMuted("# from "+src))
			return ctx.cfg.Render(ctx.stdout, format)
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "yaml", "Output format: yaml or toml")
	return cmd
}
