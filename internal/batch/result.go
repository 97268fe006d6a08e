package batch

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/CamJohns/ddr-cmdln/internal/pipeline"
)

// NotAvailable is shown for statistics with no samples.
const NotAvailable = "n/a"

// Failure describes one failed object or collection.
type Failure struct {
	Collection string             `json:"collection"`
	ID         string             `json:"id,omitempty"`
	Kind       pipeline.ErrorKind `json:"kind,omitempty"`
	Error      string             `json:"error"`
}

// Timing summarises per-object durations.
type Timing struct {
	Count int           `json:"count"`
	Min   time.Duration `json:"min_ns"`
	Mean  time.Duration `json:"mean_ns"`
	P50   time.Duration `json:"p50_ns"`
	P95   time.Duration `json:"p95_ns"`
	Max   time.Duration `json:"max_ns"`
}

// NewTiming summarises durations. Percentiles use the nearest-rank
// method on a sorted copy.
func NewTiming(durations []time.Duration) Timing {
	n := len(durations)
	if n == 0 {
		return Timing{}
	}
	sorted := slices.Clone(durations)
	slices.Sort(sorted)

	var total time.Duration
	for _, d := range sorted {
		total += d
	}
	return Timing{
		Count: n,
		Min:   sorted[0],
		Mean:  total / time.Duration(n),
		P50:   nearestRank(sorted, 50),
		P95:   nearestRank(sorted, 95),
		Max:   sorted[n-1],
	}
}

// nearestRank returns the smallest sample with at least pct percent of
// samples at or below it.
func nearestRank(sorted []time.Duration, pct int) time.Duration {
	rank := (pct*len(sorted) + 99) / 100
	return sorted[max(rank, 1)-1]
}

// Average returns the mean duration, or NotAvailable with no samples.
func (t Timing) Average() string {
	if t.Count == 0 {
		return NotAvailable
	}
	return FormatDuration(t.Mean)
}

// Spread renders min, p50, p95 and max, or NotAvailable with no samples.
func (t Timing) Spread() string {
	if t.Count == 0 {
		return NotAvailable
	}
	parts := make([]string, 0, 4)
	for _, d := range []time.Duration{t.Min, t.P50, t.P95, t.Max} {
		parts = append(parts, FormatDuration(d))
	}
	return strings.Join(parts, " / ")
}

// Result is the aggregate outcome of a batch run. It is built by folding
// collection results in input order and is read-only once finalised.
type Result struct {
	RunID    string            `json:"run_id"`
	Started  time.Time         `json:"started"`
	Finished time.Time         `json:"finished"`
	Identity pipeline.Identity `json:"identity"`

	Commit    bool   `json:"commit"`
	DryRun    bool   `json:"dry_run"`
	Keep      bool   `json:"keep"`
	Transform string `json:"transform"`

	CollectionsAttempted int `json:"collections_attempted"`
	CollectionsAcquired  int `json:"collections_acquired"`
	CollectionsSucceeded int `json:"collections_succeeded"`
	CollectionsCommitted int `json:"collections_committed"`

	ObjectsAttempted int `json:"objects_attempted"`
	ObjectsSaved     int `json:"objects_saved"`
	ObjectsFailed    int `json:"objects_failed"`
	ObjectsSkipped   int `json:"objects_skipped"`
	FilesUpdated     int `json:"files_updated"`

	// FailureRate is ObjectsFailed / ObjectsSaved, 0 when nothing was saved.
	FailureRate float64 `json:"failure_rate"`
	// AttemptFailureRate is ObjectsFailed / ObjectsAttempted.
	AttemptFailureRate float64 `json:"attempt_failure_rate"`

	Timing   Timing        `json:"timing"`
	Elapsed  time.Duration `json:"elapsed_ns"`
	Failures []Failure     `json:"failures"`

	Collections []*pipeline.CollectionResult `json:"collections"`

	durations []time.Duration
	finalised bool
}

// add folds one collection result into the totals.
func (r *Result) add(c *pipeline.CollectionResult) {
	if r.finalised {
		panic("batch: result modified after finalise")
	}
	r.Collections = append(r.Collections, c)
	r.CollectionsAttempted++
	if c.Acquired {
		r.CollectionsAcquired++
	}
	if c.Succeeded() {
		r.CollectionsSucceeded++
	}
	if c.Commit == pipeline.CommitCommitted {
		r.CollectionsCommitted++
	}

	r.ObjectsAttempted += c.Attempted
	r.ObjectsSaved += c.Saved
	r.ObjectsFailed += c.Failed
	r.ObjectsSkipped += c.Skipped
	r.FilesUpdated += c.FilesUpdated

	if c.Error != "" {
		r.Failures = append(r.Failures, Failure{Collection: c.Collection, Error: c.Error})
	}
	for _, o := range c.Objects {
		r.durations = append(r.durations, o.Elapsed)
		if !o.OK {
			r.Failures = append(r.Failures, Failure{
				Collection: c.Collection,
				ID:         o.ID,
				Kind:       o.Kind,
				Error:      o.Error,
			})
		}
	}
	if c.Commit == pipeline.CommitFailed {
		r.Failures = append(r.Failures, Failure{Collection: c.Collection, Error: c.CommitMessage})
	}
}

// finalise derives the statistics. Later calls are no-ops.
func (r *Result) finalise(finished time.Time) {
	if r.finalised {
		return
	}
	r.Finished = finished
	r.Elapsed = finished.Sub(r.Started)
	r.FailureRate = FailureRate(r.ObjectsFailed, r.ObjectsSaved)
	r.AttemptFailureRate = FailureRate(r.ObjectsFailed, r.ObjectsAttempted)
	r.Timing = NewTiming(r.durations)
	r.finalised = true
}

// Durations returns the recorded per-object durations in fold order.
func (r *Result) Durations() []time.Duration {
	out := make([]time.Duration, len(r.durations))
	copy(out, r.durations)
	return out
}

// Succeeded reports whether every collection succeeded.
func (r *Result) Succeeded() bool {
	return r.CollectionsSucceeded == r.CollectionsAttempted
}

// FailureRate divides failures by base, returning 0 for an empty base.
func FailureRate(failures, base int) float64 {
	if base == 0 {
		return 0
	}
	return float64(failures) / float64(base)
}

// FormatRate renders a rate as a percentage.
func FormatRate(r float64) string {
	return fmt.Sprintf("%.2f%%", r*100)
}

var durationUnits = []struct {
	size   time.Duration
	suffix string
}{
	{time.Second, "s"},
	{time.Millisecond, "ms"},
	{time.Microsecond, "µs"},
}

// FormatDuration renders d with two decimals in the largest unit that
// fits, or in whole nanoseconds below a microsecond.
func FormatDuration(d time.Duration) string {
	for _, u := range durationUnits {
		if d >= u.size {
			return strconv.FormatFloat(float64(d)/float64(u.size), 'f', 2, 64) + u.suffix
		}
	}
	return strconv.FormatInt(int64(d), 10) + "ns"
}

// Summary is the fixed set of totals every report shows.
type Summary struct {
	Attempted   int
	Succeeded   int
	Failed      int
	FailureRate string
	Average     string
}

// Summary returns the totals shown at the end of every run.
func (r *Result) Summary() Summary {
	return Summary{
		Attempted:   r.ObjectsAttempted,
		Succeeded:   r.ObjectsSaved,
		Failed:      r.ObjectsFailed,
		FailureRate: FormatRate(r.FailureRate),
		Average:     r.Timing.Average(),
	}
}
