// Package batch runs the collection processor over a list of collections:
// each one is cloned into a working copy, processed, optionally committed
// and removed again, and the outcomes are folded into one Result.
package batch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/CamJohns/ddr-cmdln/internal/identifier"
	"github.com/CamJohns/ddr-cmdln/internal/pipeline"
	"github.com/CamJohns/ddr-cmdln/internal/processor"
	"github.com/CamJohns/ddr-cmdln/internal/transform"
	"github.com/CamJohns/ddr-cmdln/internal/vcs"
	"github.com/CamJohns/ddr-cmdln/internal/vcs/git"
)

// Template placeholders.
const (
	PlaceholderID = "{id}"

	DefaultSourceTemplate = "git@mits.densho.org:{id}.git"
	DefaultDestTemplate   = "{id}"
)

// ErrLocked is returned when another run holds a working copy.
var ErrLocked = errors.New("working copy is locked by another run")

// CollectionProcessor processes one collection working copy.
type CollectionProcessor interface {
	Process(ctx context.Context, collectionPath string, tc transform.Config, cc pipeline.CommitConfig) (*pipeline.CollectionResult, error)
}

// Options configures a batch run.
type Options struct {
	// IDs are collection identifiers, processed in this order.
	IDs []string

	// BaseDir holds the working copies. It must exist.
	BaseDir string

	// SourceTemplate is the clone URL; {id} is replaced by the identifier.
	SourceTemplate string

	// DestTemplate is the working copy path, relative to BaseDir unless
	// absolute; {id} is replaced by the identifier.
	DestTemplate string

	Commit    pipeline.CommitConfig
	Transform transform.Config

	// Keep leaves working copies in place after processing.
	Keep bool

	// Workers is the number of collections processed at once. Records
	// within a collection are always sequential.
	Workers int

	// RunID identifies the run in reports and the ledger. Generated when
	// empty.
	RunID string

	Cloner    vcs.Cloner
	Processor CollectionProcessor
	Logger    *slog.Logger

	now func() time.Time
}

// Validate checks the options. Every error is a ConfigurationError.
func (o Options) Validate() error {
	if len(o.IDs) == 0 {
		return pipeline.NewConfigurationError("ids", "no collection identifiers given")
	}
	seen := make(map[string]bool, len(o.IDs))
	for _, raw := range o.IDs {
		id, err := identifier.Parse(raw)
		if err != nil {
			return pipeline.NewConfigurationError("ids", err.Error())
		}
		if id.Model() != identifier.ModelCollection {
			return pipeline.NewConfigurationError("ids", fmt.Sprintf("%s is a %s, not a collection", id, id.Model()))
		}
		if seen[id.String()] {
			return pipeline.NewConfigurationError("ids", fmt.Sprintf("%s listed more than once", id))
		}
		seen[id.String()] = true
	}

	if strings.TrimSpace(o.BaseDir) == "" {
		return pipeline.NewConfigurationError("basedir", "no base directory given")
	}
	info, err := os.Stat(o.BaseDir)
	if err != nil {
		return pipeline.NewConfigurationError("basedir", err.Error())
	}
	if !info.IsDir() {
		return pipeline.NewConfigurationError("basedir", o.BaseDir+" is not a directory")
	}

	for name, tmpl := range map[string]string{"source_template": o.SourceTemplate, "dest_template": o.DestTemplate} {
		if tmpl != "" && !strings.Contains(tmpl, PlaceholderID) {
			return pipeline.NewConfigurationError(name, fmt.Sprintf("%q has no %s placeholder", tmpl, PlaceholderID))
		}
	}

	if o.Workers < 0 {
		return pipeline.NewConfigurationError("workers", "must not be negative")
	}
	if err := o.Commit.Validate(); err != nil {
		return err
	}
	if err := o.Transform.Validate(); err != nil {
		return pipeline.NewConfigurationError("transform", err.Error())
	}
	return nil
}

func (o Options) withDefaults() Options {
	if o.SourceTemplate == "" {
		o.SourceTemplate = DefaultSourceTemplate
	}
	if o.DestTemplate == "" {
		o.DestTemplate = DefaultDestTemplate
	}
	if o.Workers == 0 {
		o.Workers = 1
	}
	if o.RunID == "" {
		o.RunID = uuid.NewString()
	}
	if o.Logger == nil {
		o.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if o.Cloner == nil {
		o.Cloner = &git.Cloner{}
	}
	if o.Processor == nil {
		o.Processor = processor.New(processor.WithLogger(o.Logger))
	}
	if o.now == nil {
		o.now = time.Now
	}
	return o
}

// SourceURL expands the source template for id.
func (o Options) SourceURL(id string) string {
	tmpl := o.SourceTemplate
	if tmpl == "" {
		tmpl = DefaultSourceTemplate
	}
	return strings.ReplaceAll(tmpl, PlaceholderID, id)
}

// DestPath expands the destination template for id.
func (o Options) DestPath(id string) string {
	tmpl := o.DestTemplate
	if tmpl == "" {
		tmpl = DefaultDestTemplate
	}
	p := strings.ReplaceAll(tmpl, PlaceholderID, id)
	if !filepath.IsAbs(p) {
		p = filepath.Join(o.BaseDir, p)
	}
	return filepath.Clean(p)
}

// Run processes every collection in opts.IDs and returns the finalised
// result. The only error is a ConfigurationError, returned before any
// collection is touched; collection failures are recorded in the result.
//
// Cancelling ctx stops new collections from starting. Collections not
// started are absent from the result.
func Run(ctx context.Context, opts Options) (*Result, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	opts = opts.withDefaults()
	logger := opts.Logger.With("component", "batch", "run_id", opts.RunID)

	res := &Result{
		RunID:     opts.RunID,
		Started:   opts.now(),
		Identity:  opts.Commit.Identity,
		Commit:    opts.Commit.Commit,
		DryRun:    opts.Commit.DryRun,
		Keep:      opts.Keep,
		Transform: opts.Transform.String(),
	}

	logger.Info("batch started",
		"collections", len(opts.IDs),
		"workers", opts.Workers,
		"commit", opts.Commit.Commit,
		"transforms", opts.Transform.String(),
	)

	results := make([]*pipeline.CollectionResult, len(opts.IDs))

	var g errgroup.Group
	g.SetLimit(opts.Workers)
	for i, id := range opts.IDs {
		if ctx.Err() != nil {
			logger.Warn("batch interrupted", "started", i, "remaining", len(opts.IDs)-i)
			break
		}
		i, id := i, id
		g.Go(func() error {
			results[i] = runCollection(ctx, opts, logger, id)
			return nil
		})
	}
	_ = g.Wait()

	for _, cr := range results {
		if cr != nil {
			res.add(cr)
		}
	}
	res.finalise(opts.now())

	logger.Info("batch finished",
		"collections", res.CollectionsAttempted,
		"succeeded", res.CollectionsSucceeded,
		"committed", res.CollectionsCommitted,
		"objects", res.ObjectsAttempted,
		"failed", res.ObjectsFailed,
		"failure_rate", FormatRate(res.FailureRate),
		"elapsed", res.Elapsed,
	)
	return res, nil
}

// runCollection acquires, processes and releases one working copy. It
// never returns nil.
func runCollection(ctx context.Context, opts Options, logger *slog.Logger, id string) (res *pipeline.CollectionResult) {
	start := opts.now()
	dest := opts.DestPath(id)
	url := opts.SourceURL(id)
	logger = logger.With("collection", id)

	res = &pipeline.CollectionResult{
		Collection: id,
		Path:       dest,
		Commit:     pipeline.CommitNotReached,
	}
	defer func() { res.Elapsed = opts.now().Sub(start) }()

	acquireFailed := func(err error) *pipeline.CollectionResult {
		aerr := &pipeline.AcquisitionError{Collection: id, URL: url, Err: err}
		logger.Error("failed to acquire working copy", "error", aerr,
			"retryable", vcs.IsRetryable(err), "action_required", vcs.IsUserActionRequired(err))
		res.Error = aerr.Error()
		return res
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return acquireFailed(err)
	}
	lock := flock.New(dest + ".lock")
	ok, err := lock.TryLock()
	if err != nil {
		return acquireFailed(fmt.Errorf("lock %s: %w", dest, err))
	}
	if !ok {
		return acquireFailed(ErrLocked)
	}
	defer func() {
		if err := lock.Unlock(); err != nil {
			logger.Warn("failed to release working copy lock", "error", err)
		}
		_ = os.Remove(lock.Path())
	}()

	logger.Info("cloning collection", "url", url, "dest", dest)
	if err := opts.Cloner.Clone(ctx, url, dest); err != nil {
		return acquireFailed(err)
	}
	if !opts.Keep {
		defer func() {
			if err := opts.Cloner.Remove(dest); err != nil {
				logger.Warn("failed to remove working copy", "dest", dest, "error", err)
				return
			}
			logger.Debug("removed working copy", "dest", dest)
		}()
	}

	pr, err := opts.Processor.Process(ctx, dest, opts.Transform, opts.Commit)
	if pr != nil {
		res = pr
		res.Collection = id
		res.Path = dest
	}
	res.Acquired = true
	if err != nil {
		res.Error = err.Error()
		logger.Error("collection failed", "error", err, "fatal", vcs.IsFatal(err))
	}
	return res
}
