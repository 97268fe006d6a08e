// Package vcs defines the version control operations the collection
// pipeline relies on.
//
// # Architecture
//
// Collection repositories are plain git repositories. The pipeline needs
// a small set of capabilities from them, each expressed as its own
// interface so that callers depend only on what they use:
//   - Committer: stage and commit written documents under an author
//   - History: earliest commit that touched a document
//   - StatusReader: working-copy status, used to refuse dirty repositories
//   - Cloner: acquire and release a working copy of a remote repository
//
// VCS groups the per-repository capabilities. Backends register a
// constructor with Register and are opened with Open.
//
// # Usage
//
//	import _ "github.com/CamJohns/ddr-cmdln/internal/vcs/git" // registers git
//
//	repo, err := vcs.Open(vcs.TypeGit, collectionPath)
//	if err != nil {
//	    return err
//	}
//	err = repo.Commit(ctx, vcs.CommitOptions{
//	    Message: "Batch update\n\n@agent: ddr-batch",
//	    Paths:   written,
//	    Author:  "Jane Doe <jane@example.org>",
//	})
package vcs

import (
	"context"
	"time"
)

// Type represents the VCS backend type
type Type string

const (
	// TypeGit indicates a git repository
	TypeGit Type = "git"
)

// String returns the string representation of the VCS type
func (t Type) String() string {
	return string(t)
}

// Committer records changes in version history.
type Committer interface {
	// Commit stages opts.Paths and commits them in one commit.
	// Returns ErrNothingToCommit when the paths carry no changes.
	Commit(ctx context.Context, opts CommitOptions) error
}

// History answers questions about a document's past.
type History interface {
	// EarliestCommit returns the author time of the oldest commit that
	// touched path. Returns ErrNoHistory when the path was never committed.
	EarliestCommit(ctx context.Context, path string) (time.Time, error)
}

// StatusReader reports working-copy changes.
type StatusReader interface {
	// HasChanges returns true if there are uncommitted changes.
	// If paths are specified, only checks those paths.
	HasChanges(paths ...string) (bool, error)

	// Status returns the status of files in the working directory.
	// If paths are specified, only checks those paths.
	Status(paths ...string) ([]FileStatus, error)
}

// Cloner acquires and releases working copies.
type Cloner interface {
	// Clone copies the repository at url into dest. dest must not exist
	// or be an empty directory; otherwise ErrDestinationExists.
	Clone(ctx context.Context, url, dest string) error

	// Remove deletes the working copy at dest.
	Remove(dest string) error
}

// VCS is one opened repository.
type VCS interface {
	Committer
	History
	StatusReader

	// Name returns the VCS type
	Name() Type

	// Version returns the VCS binary version string
	Version() (string, error)

	// RepoRoot returns the repository root directory path.
	RepoRoot() (string, error)

	// Add stages files for commit.
	Add(paths []string) error

	// HeadCommit returns the commit hash HEAD points at.
	HeadCommit() (string, error)
}

// FileStatus represents the status of a file in the working directory
type FileStatus struct {
	// Path is the file path relative to repository root
	Path string

	// Status is the working directory status
	Status StatusCode

	// StagedCode is the staging area status
	StagedCode StatusCode
}

// Dirty reports whether the file is staged or modified. Untracked and
// ignored files do not count.
func (s FileStatus) Dirty() bool {
	for _, c := range []StatusCode{s.Status, s.StagedCode} {
		switch c {
		case StatusUnmodified, StatusUntracked, StatusIgnored:
		default:
			return true
		}
	}
	return false
}

// StatusCode represents file status codes
type StatusCode string

const (
	StatusUnmodified StatusCode = " " // No changes
	StatusModified   StatusCode = "M" // Modified
	StatusAdded      StatusCode = "A" // Added/new file
	StatusDeleted    StatusCode = "D" // Deleted
	StatusRenamed    StatusCode = "R" // Renamed
	StatusCopied     StatusCode = "C" // Copied
	StatusUntracked  StatusCode = "?" // Untracked
	StatusIgnored    StatusCode = "!" // Ignored
	StatusConflict   StatusCode = "U" // Unmerged/conflict
)

// CommitOptions configures a commit operation
type CommitOptions struct {
	// Message is the commit message (required)
	Message string

	// Paths specifies files to commit. Empty = all staged changes.
	Paths []string

	// Author overrides the commit author (optional, format: "Name <email>")
	Author string

	// NoGPGSign disables GPG signing
	NoGPGSign bool

	// NoVerify skips pre-commit hooks
	NoVerify bool
}
