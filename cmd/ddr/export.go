package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/CamJohns/ddr-cmdln/internal/export"
	"github.com/CamJohns/ddr-cmdln/internal/identifier"
	"github.com/CamJohns/ddr-cmdln/internal/pipeline"
	"github.com/CamJohns/ddr-cmdln/internal/record"
)

func newExportCommand(ctx *commandContext) *cobra.Command {
	var model string

	cmd := &cobra.Command{
		Use:   "export PATH CSV",
		Short: "Write every document of one model in a collection to CSV",
		Long: `Export the documents of one model found below the collection at PATH
(its directory or collection.json) to the CSV file at CSV.

The first column is the document identifier. The remaining columns are the
field names in the order they are first seen. Documents that cannot be
loaded are skipped and listed on stderr.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := identifier.ParseModel(model)
			if err != nil {
				return pipeline.NewConfigurationError("model", err.Error())
			}
			root := args[0]
			if filepath.Base(root) == identifier.CollectionDocument {
				root = filepath.Dir(root)
			}
			csvPath := args[1]

			if err := os.MkdirAll(filepath.Dir(csvPath), 0o755); err != nil {
				return fmt.Errorf("create output directory: %w", err)
			}
			f, err := os.Create(csvPath)
			if err != nil {
				return fmt.Errorf("create %s: %w", csvPath, err)
			}
			store := record.NewStore(record.WithLogger(ctx.logger))
			res, err := export.Write(f, store, root, m, ctx.logger)
			if cerr := f.Close(); err == nil {
				err = cerr
			}
			if err != nil {
				_ = os.Remove(csvPath)
				if errors.Is(err, record.ErrNotFound) {
					return pipeline.NewConfigurationError("path", err.Error())
				}
				return fmt.Errorf("export %s: %w", root, err)
			}

			for _, s := range res.Skipped {
				fmt.Fprintf(ctx.stderr, "skipped %s: %s\n", s.Path, s.Error)
			}
			fmt.Fprintf(ctx.stdout, "Exported %d %s documents (%d columns) to %s\n",
				res.Rows, res.Model, len(res.Columns), csvPath)
			return nil
		},
	}

	cmd.Flags().StringVarP(&model, "model", "M", string(identifier.ModelEntity), "Model to export: collection, entity, segment, file")
	return cmd
}
