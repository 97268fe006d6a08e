// Package processor runs the transform set over every record of one
// collection working copy and commits the result when every record
// succeeded.
package processor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/CamJohns/ddr-cmdln/internal/identifier"
	"github.com/CamJohns/ddr-cmdln/internal/pipeline"
	"github.com/CamJohns/ddr-cmdln/internal/record"
	"github.com/CamJohns/ddr-cmdln/internal/transform"
	"github.com/CamJohns/ddr-cmdln/internal/vcs"
	"github.com/CamJohns/ddr-cmdln/internal/vocab"
)

// Opener opens the repository holding a working copy.
type Opener func(path string) (vcs.VCS, error)

// Processor processes single collections. It holds no per-run state and
// may be shared between goroutines working on different collections.
type Processor struct {
	open          Opener
	repairer      *vocab.Repairer
	recordTimeout time.Duration
	logger        *slog.Logger
	now           func() time.Time
}

// Option configures a Processor.
type Option func(*Processor)

// WithOpener sets how repositories are opened. Defaults to the
// registered git backend.
func WithOpener(o Opener) Option {
	return func(p *Processor) {
		if o != nil {
			p.open = o
		}
	}
}

// WithRepairer sets the topic repairer.
func WithRepairer(r *vocab.Repairer) Option {
	return func(p *Processor) {
		p.repairer = r
	}
}

// WithRecordTimeout bounds the transform of a single record. Zero means
// no limit.
func WithRecordTimeout(d time.Duration) Option {
	return func(p *Processor) {
		p.recordTimeout = d
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Processor) {
		if l != nil {
			p.logger = l
		}
	}
}

// New creates a Processor.
func New(opts ...Option) *Processor {
	p := &Processor{
		open: func(path string) (vcs.VCS, error) {
			return vcs.Open(vcs.TypeGit, path)
		},
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// run is the state of one Process call.
type run struct {
	*Processor
	logger *slog.Logger
	store  *record.Store
	set    *transform.Set
	repo   vcs.VCS
	dryRun bool
}

// Process handles the collection whose working copy is at collectionPath
// (the collection directory or its collection.json).
//
// A ConfigurationError is returned, with a nil result, before anything is
// read. Collection-level failures (resolution, root load, discovery, a
// dirty working copy) return a result with Error set together with the
// error. Object-level failures never produce an error; they are recorded
// in the result and void the commit.
func (p *Processor) Process(ctx context.Context, collectionPath string, tc transform.Config, cc pipeline.CommitConfig) (*pipeline.CollectionResult, error) {
	if err := cc.Validate(); err != nil {
		return nil, err
	}
	if err := tc.Validate(); err != nil {
		return nil, pipeline.NewConfigurationError("transform", err.Error())
	}

	start := p.now()
	res := &pipeline.CollectionResult{
		Path:     collectionPath,
		Acquired: true,
		Commit:   pipeline.CommitNotReached,
	}
	defer func() { res.Elapsed = p.now().Sub(start) }()

	fail := func(err error) (*pipeline.CollectionResult, error) {
		res.Error = err.Error()
		return res, err
	}

	rootPath, err := filepath.Abs(collectionPath)
	if err != nil {
		return fail(&pipeline.LoadError{Path: collectionPath, Err: err})
	}
	if filepath.Base(rootPath) != identifier.CollectionDocument {
		rootPath = filepath.Join(rootPath, identifier.CollectionDocument)
	}
	cid, _, err := identifier.FromPath(rootPath)
	if err == nil && cid.Model() != identifier.ModelCollection {
		err = fmt.Errorf("%s is a %s, not a collection", cid, cid.Model())
	}
	if err != nil {
		return fail(&pipeline.LoadError{Path: rootPath, Err: err})
	}
	res.Collection = cid.String()
	collectionDir := filepath.Dir(rootPath)

	r := &run{
		Processor: p,
		logger:    p.logger.With("component", "processor", "collection", cid.String()),
		dryRun:    cc.DryRun,
	}
	r.store = record.NewStore(record.WithLogger(r.logger))

	needRepo := (cc.Commit && !cc.DryRun) || tc.BackfillCreated
	if needRepo {
		repo, err := p.open(collectionDir)
		if err != nil {
			return fail(&pipeline.LoadError{ID: cid.String(), Path: collectionDir, Err: err})
		}
		r.repo = repo
	}
	if cc.Commit && !cc.DryRun {
		if err := checkClean(r.repo); err != nil {
			return fail(&pipeline.LoadError{ID: cid.String(), Path: collectionDir, Err: err})
		}
	}

	setOpts := []transform.Option{transform.WithRepairer(p.repairer), transform.WithLogger(r.logger)}
	if r.repo != nil {
		setOpts = append(setOpts, transform.WithHistory(r.repo))
	}
	set, err := transform.NewSet(tc, r.store, setOpts...)
	if err != nil {
		return nil, pipeline.NewConfigurationError("transform", err.Error())
	}
	r.set = set

	root, err := r.store.LoadFresh(rootPath)
	if err != nil {
		return fail(&pipeline.LoadError{ID: cid.String(), Path: rootPath, Err: err})
	}

	paths, err := r.store.Discover(collectionDir, nil, true, true)
	if err != nil {
		return fail(&pipeline.LoadError{ID: cid.String(), Path: collectionDir, Err: err})
	}
	paths = rootFirst(paths, rootPath)

	r.logger.Info("processing collection",
		"documents", len(paths),
		"transforms", tc.String(),
		"commit", cc.Commit,
		"dry_run", cc.DryRun,
	)

	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			r.logger.Warn("collection interrupted", "error", err, "processed", res.Attempted)
			return fail(fmt.Errorf("interrupted after %d of %d documents: %w", res.Attempted+res.Skipped, len(paths), err))
		}

		var preloaded *record.Record
		if path == rootPath {
			preloaded = root
		}
		obj, skipped := r.processOne(ctx, path, preloaded)
		if skipped {
			res.Skipped++
			continue
		}
		res.Add(obj)
	}

	r.commit(ctx, res, cc)

	r.logger.Info("collection processed",
		"attempted", res.Attempted,
		"saved", res.Saved,
		"failed", res.Failed,
		"skipped", res.Skipped,
		"files_updated", res.FilesUpdated,
		"commit", string(res.Commit),
	)
	return res, nil
}

// processOne loads, transforms and writes one document. The bool result
// is true when the document was filtered out.
func (r *run) processOne(ctx context.Context, path string, rec *record.Record) (pipeline.ObjectResult, bool) {
	start := r.now()
	elapsed := func() time.Duration { return r.now().Sub(start) }

	id, _, err := identifier.FromPath(path)
	if err != nil {
		return pipeline.Failed("", "", path, &pipeline.LoadError{Path: path, Err: err}, elapsed()), false
	}
	if skip, reason := r.set.Skip(id); skip {
		r.logger.Debug("skipping document", "id", id.String(), "reason", reason)
		return pipeline.ObjectResult{}, true
	}

	sid, model := id.String(), id.Model().String()
	failed := func(err error) (pipeline.ObjectResult, bool) {
		r.logger.Warn("document failed", "id", sid, "error", err)
		return pipeline.Failed(sid, model, path, err, elapsed()), false
	}

	if rec == nil {
		rec, err = r.store.Load(path)
		if err != nil {
			return failed(&pipeline.LoadError{ID: sid, Path: path, Err: err})
		}
	}

	rctx := ctx
	if r.recordTimeout > 0 {
		var cancel context.CancelFunc
		rctx, cancel = context.WithTimeout(ctx, r.recordTimeout)
		defer cancel()
	}

	changes, err := r.set.Apply(rctx, rec)
	if err == nil && errors.Is(rctx.Err(), context.DeadlineExceeded) {
		err = fmt.Errorf("record timeout of %s exceeded", r.recordTimeout)
	}
	if errors.Is(err, transform.ErrChildren) {
		return failed(&pipeline.ChildrenError{ID: sid, Err: err})
	}
	if err != nil {
		return failed(&pipeline.TransformError{ID: sid, Err: err})
	}

	changed := changes.Any()
	if changed && !r.dryRun {
		written, err := r.store.Save(rec)
		if err != nil {
			return failed(&pipeline.SaveError{ID: sid, Path: path, Err: err})
		}
		changed = written
	}

	return pipeline.Succeeded(sid, model, path, changed, elapsed()), false
}

// commit applies the commit gate to a fully processed collection.
func (r *run) commit(ctx context.Context, res *pipeline.CollectionResult, cc pipeline.CommitConfig) {
	changed := res.ChangedPaths()

	switch {
	case !res.AllSucceeded():
		res.Commit = pipeline.CommitSkippedFailures
		res.CommitMessage = fmt.Sprintf("%d of %d documents failed", res.Failed, res.Attempted)
		return
	case cc.DryRun:
		res.Commit = pipeline.CommitDryRun
		res.CommitMessage = fmt.Sprintf("%d documents would change", len(changed))
		return
	case !cc.Commit:
		res.Commit = pipeline.CommitNotRequested
		return
	case len(changed) == 0:
		res.Commit = pipeline.CommitNothing
		return
	}

	msg := cc.Message(res.Collection, len(changed))
	err := r.repo.Commit(ctx, vcs.CommitOptions{
		Message:   msg,
		Paths:     changed,
		Author:    cc.Identity.String(),
		NoVerify:  cc.NoVerify,
		NoGPGSign: cc.NoGPGSign,
	})
	switch {
	case errors.Is(err, vcs.ErrNothingToCommit):
		res.Commit = pipeline.CommitNothing
		return
	case err != nil:
		cerr := &pipeline.CommitError{Collection: res.Collection, Err: err}
		r.logger.Error("commit failed", "error", cerr)
		res.Commit = pipeline.CommitFailed
		res.CommitMessage = cerr.Error()
		return
	}

	res.Commit = pipeline.CommitCommitted
	res.CommitMessage = strings.SplitN(msg, "\n", 2)[0]
	if hash, err := r.repo.HeadCommit(); err == nil {
		res.CommitHash = hash
	}
	r.logger.Info("committed collection", "files", len(changed), "hash", res.CommitHash)
}

// checkClean refuses working copies with staged or modified files.
func checkClean(repo vcs.StatusReader) error {
	statuses, err := repo.Status()
	if err != nil {
		return err
	}
	var dirty []string
	for _, s := range statuses {
		if s.Dirty() {
			dirty = append(dirty, s.Path)
		}
	}
	if len(dirty) > 0 {
		return fmt.Errorf("%w: %s", vcs.ErrDirtyWorkspace, strings.Join(dirty, ", "))
	}
	return nil
}

// rootFirst moves the collection document to the front.
func rootFirst(paths []string, root string) []string {
	out := make([]string, 0, len(paths))
	out = append(out, root)
	for _, p := range paths {
		if p != root {
			out = append(out, p)
		}
	}
	return out
}
