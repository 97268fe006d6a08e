// Package transform applies the per-record mutations of a batch run.
//
// Filters decide whether a record is in scope at all; mutations change a
// loaded record in place. The order is fixed: filters, child loading for
// entities and segments, topic repair, creation-date backfill.
package transform

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"slices"
	"strings"

	"github.com/CamJohns/ddr-cmdln/internal/identifier"
	"github.com/CamJohns/ddr-cmdln/internal/record"
	"github.com/CamJohns/ddr-cmdln/internal/vcs"
	"github.com/CamJohns/ddr-cmdln/internal/vocab"
)

var (
	// ErrBadPattern is returned for malformed include or exclude globs.
	ErrBadPattern = errors.New("bad glob pattern")

	// ErrChildren is returned by Apply when an entity or segment has a
	// child document that cannot be loaded. The child fails on its own
	// as well.
	ErrChildren = errors.New("load children")
)

// Config toggles the transforms of a run.
type Config struct {
	// Include keeps only identifiers matching this glob. Empty keeps all.
	Include string `json:"include,omitempty"`

	// Exclude drops identifiers matching this glob. Empty drops none.
	Exclude string `json:"exclude,omitempty"`

	// Models keeps only these model types. Empty keeps all.
	Models []identifier.Model `json:"models,omitempty"`

	RepairTopics    bool `json:"repair_topics"`
	BackfillCreated bool `json:"backfill_created"`
}

// Validate checks the glob patterns and model names.
func (c Config) Validate() error {
	for _, p := range []string{c.Include, c.Exclude} {
		if p == "" {
			continue
		}
		if _, err := path.Match(p, ""); err != nil {
			return fmt.Errorf("%w: %q", ErrBadPattern, p)
		}
	}
	for _, m := range c.Models {
		if !m.Valid() {
			return fmt.Errorf("unknown model %q", m)
		}
	}
	return nil
}

// String summarises the config for logs and reports.
func (c Config) String() string {
	var parts []string
	if c.Include != "" {
		parts = append(parts, "include="+c.Include)
	}
	if c.Exclude != "" {
		parts = append(parts, "exclude="+c.Exclude)
	}
	if len(c.Models) > 0 {
		names := make([]string, len(c.Models))
		for i, m := range c.Models {
			names[i] = m.String()
		}
		parts = append(parts, "models="+strings.Join(names, ","))
	}
	if c.RepairTopics {
		parts = append(parts, "repair-topics")
	}
	if c.BackfillCreated {
		parts = append(parts, "backfill-created")
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, " ")
}

// FilterInclude reports whether id is kept by an include pattern: it
// matches. An empty pattern keeps everything.
func FilterInclude(id identifier.Identifier, pattern string) bool {
	if pattern == "" {
		return true
	}
	ok, err := path.Match(pattern, id.String())
	return err == nil && ok
}

// FilterExclude reports whether id is kept by an exclude pattern: it
// does not match. For a non-empty pattern it is the complement of
// FilterInclude; an empty pattern keeps everything.
func FilterExclude(id identifier.Identifier, pattern string) bool {
	if pattern == "" {
		return true
	}
	return !FilterInclude(id, pattern)
}

// FilterModel reports whether m is in allowed. An empty set allows all.
func FilterModel(m identifier.Model, allowed []identifier.Model) bool {
	return len(allowed) == 0 || slices.Contains(allowed, m)
}

// RepairTopics replaces the record's topics with the repaired value.
// Records without a topics slot, and models other than entity and
// segment, are left alone.
func RepairTopics(rec *record.Record, r *vocab.Repairer) (bool, error) {
	switch rec.Model() {
	case identifier.ModelEntity, identifier.ModelSegment:
	default:
		return false, nil
	}
	if !rec.HasTopics() {
		return false, nil
	}

	repaired, changed, err := r.RepairRaw(rec.Topics())
	if err != nil {
		return false, fmt.Errorf("repair topics: %w", err)
	}
	if !changed {
		return false, nil
	}
	return rec.SetTopics(repaired), nil
}

// BackfillCreated sets record_created to the author time of the earliest
// commit touching the record's document. Models without a creation slot
// and documents with no history are left alone.
func BackfillCreated(ctx context.Context, rec *record.Record, h vcs.History) (bool, error) {
	if !rec.HasCreatedSlot() {
		return false, nil
	}

	t, err := h.EarliestCommit(ctx, rec.Path)
	if errors.Is(err, vcs.ErrNoHistory) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("backfill record_created: %w", err)
	}

	if cur := rec.Created(); cur != nil && cur.Format(record.DatetimeFormat) == t.Format(record.DatetimeFormat) {
		return false, nil
	}
	return rec.SetCreated(t), nil
}

// Changes lists what Apply modified.
type Changes struct {
	Topics  bool
	Created bool
}

// Any reports whether anything changed.
func (c Changes) Any() bool {
	return c.Topics || c.Created
}

// Set applies a Config to records.
type Set struct {
	cfg      Config
	store    *record.Store
	repairer *vocab.Repairer
	history  vcs.History
	logger   *slog.Logger
}

// Option configures a Set.
type Option func(*Set)

// WithRepairer sets the topic repairer. Defaults to a repairer with no
// vocabulary.
func WithRepairer(r *vocab.Repairer) Option {
	return func(s *Set) {
		if r != nil {
			s.repairer = r
		}
	}
}

// WithHistory sets the history used for creation-date backfill.
func WithHistory(h vcs.History) Option {
	return func(s *Set) {
		s.history = h
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Set) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewSet validates cfg and builds a Set. Backfill requires a history.
func NewSet(cfg Config, store *record.Store, opts ...Option) (*Set, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s := &Set{
		cfg:      cfg,
		store:    store,
		repairer: vocab.NewRepairer(nil),
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(s)
	}
	if cfg.BackfillCreated && s.history == nil {
		return nil, errors.New("creation-date backfill needs a version history")
	}
	return s, nil
}

// Config returns the set's configuration.
func (s *Set) Config() Config {
	return s.cfg
}

// Skip reports whether id is filtered out, and why.
func (s *Set) Skip(id identifier.Identifier) (bool, string) {
	switch {
	case !FilterInclude(id, s.cfg.Include):
		return true, "not included"
	case !FilterExclude(id, s.cfg.Exclude):
		return true, "excluded"
	case !FilterModel(id.Model(), s.cfg.Models):
		return true, "model " + id.Model().String()
	}
	return false, ""
}

// Apply runs the enabled mutations on rec in order.
func (s *Set) Apply(ctx context.Context, rec *record.Record) (Changes, error) {
	var ch Changes

	switch rec.Model() {
	case identifier.ModelEntity, identifier.ModelSegment:
		if _, err := s.store.Children(rec, true); err != nil {
			return ch, fmt.Errorf("%w: %w", ErrChildren, err)
		}
	}

	if err := ctx.Err(); err != nil {
		return ch, err
	}

	if s.cfg.RepairTopics {
		changed, err := RepairTopics(rec, s.repairer)
		if err != nil {
			return ch, err
		}
		ch.Topics = changed
	}

	if s.cfg.BackfillCreated {
		changed, err := BackfillCreated(ctx, rec, s.history)
		if err != nil {
			return ch, err
		}
		ch.Created = changed
	}

	if ch.Any() {
		s.logger.Debug("transformed record",
			"id", rec.ID.String(),
			"topics", ch.Topics,
			"created", ch.Created,
		)
	}
	return ch, nil
}
