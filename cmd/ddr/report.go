package main

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/CamJohns/ddr-cmdln/internal/batch"
	"github.com/CamJohns/ddr-cmdln/internal/pipeline"
	"github.com/CamJohns/ddr-cmdln/internal/ui"
)

// maxListedFailures caps the failure list in the human report; the CSV
// and JSON reports carry all of them.
const maxListedFailures = 20

func renderCommitStatus(s pipeline.CommitStatus) string {
	switch s {
	case pipeline.CommitCommitted:
		return ui.RenderPass(string(s))
	case pipeline.CommitFailed, pipeline.CommitSkippedFailures, pipeline.CommitNotReached:
		return ui.RenderFail(string(s))
	case pipeline.CommitDryRun:
		return ui.RenderWarn(string(s))
	default:
		return ui.RenderMuted(string(s))
	}
}

func collectionRows(results []*pipeline.CollectionResult) [][]string {
	rows := make([][]string, 0, len(results))
	for _, c := range results {
		acquired := ui.RenderPass("yes")
		if !c.Acquired {
			acquired = ui.RenderFail("no")
		}
		rows = append(rows, []string{
			c.Collection,
			acquired,
			strconv.Itoa(c.Attempted),
			strconv.Itoa(c.Saved),
			strconv.Itoa(c.Failed),
			strconv.Itoa(c.Skipped),
			strconv.Itoa(c.FilesUpdated),
			renderCommitStatus(c.Commit),
			batch.FormatDuration(c.Elapsed),
		})
	}
	return rows
}

var collectionHeaders = []string{"Collection", "Acquired", "Objects", "Saved", "Failed", "Skipped", "Updated", "Commit", "Time"}
var collectionAligns = []columnAlignment{alignLeft, alignLeft, alignRight, alignRight, alignRight, alignRight, alignRight, alignLeft, alignRight}

func renderFailures(w io.Writer, failures []batch.Failure) {
	if len(failures) == 0 {
		return
	}
	width := ui.Width(w, 0)
	fmt.Fprintf(w, "\n%s\n", ui.RenderFail(fmt.Sprintf("Failures (%d)", len(failures))))
	for i, f := range failures {
		if i == maxListedFailures {
			fmt.Fprintf(w, "  %s\n", ui.RenderMuted(fmt.Sprintf("... and %d more", len(failures)-i)))
			break
		}
		subject := f.Collection
		if f.ID != "" {
			subject = f.ID
		}
		kind := ""
		if f.Kind != "" {
			kind = "[" + string(f.Kind) + "] "
		}
		line := fmt.Sprintf("  %s %s%s", subject, kind, f.Error)
		if width > 0 {
			line = text.Trim(line, width)
		}
		fmt.Fprintln(w, line)
	}
}

// renderBatchResult writes the human report. The summary block is always
// printed, including for runs without failures.
func renderBatchResult(w io.Writer, res *batch.Result) {
	fmt.Fprintf(w, "%s %s\n\n", ui.RenderAccent("Batch run"), ui.RenderMuted(res.RunID))
	if len(res.Collections) > 0 {
		fmt.Fprintln(w, renderTable(collectionHeaders, collectionRows(res.Collections), collectionAligns))
	}
	renderFailures(w, res.Failures)

	s := res.Summary()
	lines := [][2]string{
		{"Collections", fmt.Sprintf("%d attempted, %d acquired, %d succeeded, %d committed",
			res.CollectionsAttempted, res.CollectionsAcquired, res.CollectionsSucceeded, res.CollectionsCommitted)},
		{"Attempted", strconv.Itoa(s.Attempted)},
		{"Succeeded", strconv.Itoa(s.Succeeded)},
		{"Failed", strconv.Itoa(s.Failed)},
		{"Skipped", strconv.Itoa(res.ObjectsSkipped)},
		{"Files updated", strconv.Itoa(res.FilesUpdated)},
		{"Failure rate", s.FailureRate + " of saved, " + batch.FormatRate(res.AttemptFailureRate) + " of attempted"},
		{"Average time", s.Average},
		{"Min/p50/p95/max", res.Timing.Spread()},
		{"Wall time", batch.FormatDuration(res.Elapsed)},
	}

	marker := ui.RenderPass("✓")
	if !res.Succeeded() {
		marker = ui.RenderFail("✗")
	}
	fmt.Fprintf(w, "\n%s %s\n", marker, ui.RenderAccent("Summary"))
	for _, l := range lines {
		fmt.Fprintf(w, "  %-16s %s\n", l[0]+":", l[1])
	}
}

// renderCollectionResult writes the human report for one collection.
func renderCollectionResult(w io.Writer, res *pipeline.CollectionResult) {
	fmt.Fprintln(w, renderTable(collectionHeaders, collectionRows([]*pipeline.CollectionResult{res}), collectionAligns))

	var failures []batch.Failure
	if res.Error != "" {
		failures = append(failures, batch.Failure{Collection: res.Collection, Error: res.Error})
	}
	for _, o := range res.Objects {
		if !o.OK {
			failures = append(failures, batch.Failure{Collection: res.Collection, ID: o.ID, Kind: o.Kind, Error: o.Error})
		}
	}
	renderFailures(w, failures)

	if res.CommitMessage != "" {
		fmt.Fprintf(w, "\n  %-16s %s\n", "Commit:", res.CommitMessage)
	}
	if res.CommitHash != "" {
		fmt.Fprintf(w, "  %-16s %s\n", "Hash:", res.CommitHash)
	}
	durations := make([]time.Duration, len(res.Objects))
	for i, o := range res.Objects {
		durations[i] = o.Elapsed
	}
	fmt.Fprintf(w, "  %-16s %d attempted, %d succeeded, %d failed, %s failure rate\n", "Objects:",
		res.Attempted, res.Saved, res.Failed, batch.FormatRate(batch.FailureRate(res.Failed, res.Saved)))
	fmt.Fprintf(w, "  %-16s %s\n", "Average time:", batch.NewTiming(durations).Average())
}
