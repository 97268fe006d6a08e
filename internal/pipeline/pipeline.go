// Package pipeline holds the types shared by the collection processor and
// the batch orchestrator: commit identity, per-object results, collection
// results and the error taxonomy.
package pipeline

import (
	"fmt"
	"net/mail"
	"strings"
	"time"
)

// DefaultAgent tags commits made by the batch pipeline.
const DefaultAgent = "ddr-batch"

// Identity is the author of commits.
type Identity struct {
	User string `json:"user"`
	Mail string `json:"mail"`
}

// String formats the identity as a commit author.
func (i Identity) String() string {
	return fmt.Sprintf("%s <%s>", i.User, i.Mail)
}

// CommitConfig decides whether and as whom a collection is committed.
type CommitConfig struct {
	Commit   bool     `json:"commit"`
	Identity Identity `json:"identity"`

	// Agent is written into the commit message as "@agent: <Agent>".
	Agent string `json:"agent,omitempty"`

	// DryRun runs transforms but writes and commits nothing.
	DryRun bool `json:"dry_run,omitempty"`

	// NoVerify skips repository commit hooks.
	NoVerify  bool `json:"no_verify,omitempty"`
	NoGPGSign bool `json:"no_gpg_sign,omitempty"`
}

// Validate returns a ConfigurationError when a commit is requested
// without a usable identity.
func (c CommitConfig) Validate() error {
	if !c.Commit {
		return nil
	}
	user := strings.TrimSpace(c.Identity.User)
	addr := strings.TrimSpace(c.Identity.Mail)
	if user == "" {
		return NewConfigurationError("user", "commit requested without a user")
	}
	if addr == "" {
		return NewConfigurationError("mail", "commit requested without a mail address")
	}
	if _, err := mail.ParseAddress(c.Identity.String()); err != nil {
		return NewConfigurationError("mail", fmt.Sprintf("invalid author %q: %v", c.Identity.String(), err))
	}
	return nil
}

// AgentTag returns the agent, falling back to DefaultAgent.
func (c CommitConfig) AgentTag() string {
	if c.Agent == "" {
		return DefaultAgent
	}
	return c.Agent
}

// Message builds the commit message for a collection.
func (c CommitConfig) Message(collection string, files int) string {
	noun := "files"
	if files == 1 {
		noun = "file"
	}
	return fmt.Sprintf("Batch update %s: %d %s\n\n@agent: %s", collection, files, noun, c.AgentTag())
}

// ErrorKind classifies a failed object.
type ErrorKind string

const (
	KindLoad      ErrorKind = "load"
	KindTransform ErrorKind = "transform"
	KindSave      ErrorKind = "save"
	KindChildren  ErrorKind = "children"
)

// ObjectResult is the outcome of processing one record.
type ObjectResult struct {
	ID      string        `json:"id"`
	Model   string        `json:"model,omitempty"`
	Path    string        `json:"path"`
	OK      bool          `json:"ok"`
	Changed bool          `json:"changed"`
	Elapsed time.Duration `json:"elapsed_ns"`
	Kind    ErrorKind     `json:"kind,omitempty"`
	Error   string        `json:"error,omitempty"`
}

// Succeeded builds a successful result.
func Succeeded(id, model, path string, changed bool, elapsed time.Duration) ObjectResult {
	return ObjectResult{ID: id, Model: model, Path: path, OK: true, Changed: changed, Elapsed: elapsed}
}

// Failed builds a failed result from an object-level error.
func Failed(id, model, path string, err error, elapsed time.Duration) ObjectResult {
	return ObjectResult{
		ID:      id,
		Model:   model,
		Path:    path,
		Elapsed: elapsed,
		Kind:    KindOf(err),
		Error:   err.Error(),
	}
}

// CommitStatus is the commit outcome of one collection.
type CommitStatus string

const (
	// CommitCommitted means the written documents were committed.
	CommitCommitted CommitStatus = "committed"
	// CommitNotRequested means the run did not ask for a commit.
	CommitNotRequested CommitStatus = "not-requested"
	// CommitSkippedFailures means at least one object failed.
	CommitSkippedFailures CommitStatus = "skipped-failures"
	// CommitNothing means no document changed.
	CommitNothing CommitStatus = "nothing-to-commit"
	// CommitFailed means the version-history write failed.
	CommitFailed CommitStatus = "failed"
	// CommitDryRun means nothing was written.
	CommitDryRun CommitStatus = "dry-run"
	// CommitNotReached means the collection failed before its commit gate.
	CommitNotReached CommitStatus = "not-reached"
)

// CollectionResult is the outcome of processing one collection.
type CollectionResult struct {
	Collection string `json:"collection"`
	Path       string `json:"path"`

	Acquired bool `json:"acquired"`
	// Error is set when the collection failed as a whole: acquisition
	// or loading of its root.
	Error string `json:"error,omitempty"`

	Attempted    int `json:"attempted"`
	Saved        int `json:"saved"`
	Failed       int `json:"failed"`
	Skipped      int `json:"skipped"`
	FilesUpdated int `json:"files_updated"`

	Commit        CommitStatus `json:"commit"`
	CommitMessage string       `json:"commit_message,omitempty"`
	CommitHash    string       `json:"commit_hash,omitempty"`

	Objects []ObjectResult `json:"objects"`
	Elapsed time.Duration  `json:"elapsed_ns"`
}

// Add records an object result and updates the counts.
func (r *CollectionResult) Add(o ObjectResult) {
	r.Objects = append(r.Objects, o)
	r.Attempted++
	if !o.OK {
		r.Failed++
		return
	}
	r.Saved++
	if o.Changed {
		r.FilesUpdated++
	}
}

// AllSucceeded reports whether no object failed.
func (r *CollectionResult) AllSucceeded() bool {
	return r.Failed == 0
}

// Succeeded reports whether the collection was processed without any
// collection-level or object-level failure.
func (r *CollectionResult) Succeeded() bool {
	return r.Acquired && r.Error == "" && r.Failed == 0 && r.Commit != CommitFailed
}

// ChangedPaths lists the documents written during the run.
func (r *CollectionResult) ChangedPaths() []string {
	var paths []string
	for _, o := range r.Objects {
		if o.OK && o.Changed {
			paths = append(paths, o.Path)
		}
	}
	return paths
}
