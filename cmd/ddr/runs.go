package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
	"github.com/spf13/cobra"

	"github.com/CamJohns/ddr-cmdln/internal/batch"
	"github.com/CamJohns/ddr-cmdln/internal/config"
	"github.com/CamJohns/ddr-cmdln/internal/ledger"
	"github.com/CamJohns/ddr-cmdln/internal/pipeline"
	"github.com/CamJohns/ddr-cmdln/internal/ui"
)

func newRunsCommand(ctx *commandContext) *cobra.Command {
	var (
		limit int
		since string
		runID string
	)

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recorded batch runs",
		Long: `List batch runs recorded in the ledger, newest first.

--since accepts a date (2024-03-01), an RFC 3339 time or a phrase such as
"last week" or "3 days ago". --run shows the collections and failures of
one run.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if ctx.cfg.Ledger.Path == "" {
				return pipeline.NewConfigurationError("ledger", "no ledger path configured")
			}
			db, err := ledger.Open(ctx.cfg.Ledger.Path)
			if err != nil {
				return pipeline.NewConfigurationError("ledger", err.Error())
			}
			defer db.Close()

			if runID != "" {
				return showRun(cmd, ctx, db, runID)
			}

			var cutoff time.Time
			if since != "" {
				cutoff, err = parseSince(since, time.Now())
				if err != nil {
					return pipeline.NewConfigurationError("since", err.Error())
				}
			}

			runs, err := db.Runs(cmd.Context(), 0)
			if err != nil {
				return err
			}
			var rows [][]string
			for _, r := range runs {
				if !cutoff.IsZero() && r.Started.Before(cutoff) {
					continue
				}
				if limit > 0 && len(rows) == limit {
					break
				}
				rows = append(rows, []string{
					r.ID,
					r.Started.Local().Format("2006-01-02 15:04"),
					r.User,
					strconv.Itoa(r.CollectionsAttempted),
					strconv.Itoa(r.CollectionsCommitted),
					strconv.Itoa(r.ObjectsAttempted),
					strconv.Itoa(r.ObjectsFailed),
					batch.FormatRate(r.FailureRate),
					batch.FormatDuration(r.Elapsed),
				})
			}
			if len(rows) == 0 {
				fmt.Fprintln(ctx.stdout, ui.RenderMuted("No runs recorded."))
				return nil
			}
			fmt.Fprintln(ctx.stdout, renderTable(
				[]string{"Run", "Started", "User", "Collections", "Committed", "Objects", "Failed", "Failure rate", "Time"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignRight, alignRight, alignRight, alignRight},
			))
			return nil
		},
	}

	fs := cmd.Flags()
	fs.IntVarP(&limit, "limit", "n", 20, "Show at most this many runs (0 for all)")
	fs.StringVar(&since, "since", "", "Only runs started after this time")
	fs.StringVar(&runID, "run", "", "Show the collections and failures of one run")
	fs.String("ledger", config.Default().Ledger.Path, "Run ledger database")
	return cmd
}

func showRun(cmd *cobra.Command, ctx *commandContext, db *ledger.DB, id string) error {
	run, err := db.GetRun(cmd.Context(), id)
	if err != nil {
		return pipeline.NewConfigurationError("run", err.Error())
	}
	cols, err := db.Collections(cmd.Context(), id)
	if err != nil {
		return err
	}
	failures, err := db.Failures(cmd.Context(), id)
	if err != nil {
		return err
	}

	fmt.Fprintf(ctx.stdout, "%s %s\n", ui.RenderAccent("Batch run"), ui.RenderMuted(run.ID))
	fmt.Fprintf(ctx.stdout, "  %-16s %s\n", "Started:", run.Started.Local().Format(time.RFC1123))
	if run.User != "" {
		fmt.Fprintf(ctx.stdout, "  %-16s %s <%s>\n", "Identity:", run.User, run.Mail)
	}
	fmt.Fprintf(ctx.stdout, "  %-16s %s\n\n", "Transforms:", run.Transforms)

	rows := make([][]string, 0, len(cols))
	for _, c := range cols {
		rows = append(rows, []string{
			c.Collection,
			strconv.Itoa(c.Attempted),
			strconv.Itoa(c.Failed),
			strconv.Itoa(c.FilesUpdated),
			renderCommitStatus(pipeline.CommitStatus(c.CommitStatus)),
			c.Error,
		})
	}
	fmt.Fprintln(ctx.stdout, renderTable(
		[]string{"Collection", "Objects", "Failed", "Updated", "Commit", "Error"},
		rows,
		[]columnAlignment{alignLeft, alignRight, alignRight, alignRight, alignLeft, alignLeft},
	))
	renderFailures(ctx.stdout, failures)
	return nil
}

// parseSince resolves an absolute date or a natural-language phrase
// relative to now.
func parseSince(s string, now time.Time) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"} {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t, nil
		}
	}

	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	r, err := w.Parse(s, now)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse %q: %w", s, err)
	}
	if r == nil {
		return time.Time{}, fmt.Errorf("unrecognised time %q", s)
	}
	return r.Time, nil
}
