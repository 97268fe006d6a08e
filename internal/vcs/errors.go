package vcs

import "errors"

// Common errors returned by VCS operations.
//
// These errors can be checked using errors.Is():
//
//	if errors.Is(err, vcs.ErrNoHistory) {
//	    // document was never committed
//	}
var (
	// ErrNotInVCS is returned when the operation requires being inside
	// a VCS repository but none was found.
	ErrNotInVCS = errors.New("not in a VCS repository")

	// ErrVCSNotAvailable is returned when the git binary is not
	// installed or not in PATH.
	ErrVCSNotAvailable = errors.New("VCS binary not available")

	// ErrNotRegistered is returned by Open for a backend type that has
	// no registered constructor.
	ErrNotRegistered = errors.New("VCS backend not registered")

	// ErrNoHistory is returned when a path has no commits touching it.
	ErrNoHistory = errors.New("no commit history for path")

	// ErrNothingToCommit is returned when a commit is requested but the
	// given paths carry no changes.
	ErrNothingToCommit = errors.New("nothing to commit")

	// ErrCloneFailed is returned when a working copy cannot be cloned.
	ErrCloneFailed = errors.New("clone failed")

	// ErrDestinationExists is returned when a clone destination already
	// holds files.
	ErrDestinationExists = errors.New("clone destination already exists")

	// ErrConflicts is returned when an operation cannot complete
	// due to unresolved conflicts.
	ErrConflicts = errors.New("unresolved conflicts")

	// ErrDirtyWorkspace is returned when an operation requires
	// a clean working copy but there are staged or modified files.
	ErrDirtyWorkspace = errors.New("working copy has uncommitted changes")

	// ErrTimeout is returned when a VCS operation exceeds its timeout.
	ErrTimeout = errors.New("operation timed out")
)

// IsRetryable returns true if the error is likely to succeed on retry.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	// Timeouts are often transient
	if errors.Is(err, ErrTimeout) {
		return true
	}

	// A half-written destination is removed before the next attempt
	if errors.Is(err, ErrCloneFailed) && !errors.Is(err, ErrDestinationExists) {
		return true
	}

	return false
}

// IsUserActionRequired returns true if the error requires user
// intervention to resolve.
func IsUserActionRequired(err error) bool {
	if err == nil {
		return false
	}

	return errors.Is(err, ErrConflicts) ||
		errors.Is(err, ErrDirtyWorkspace) ||
		errors.Is(err, ErrDestinationExists)
}

// IsFatal returns true if the error indicates a non-recoverable state.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}

	// Not in VCS means we can't do anything
	if errors.Is(err, ErrNotInVCS) {
		return true
	}

	// Binary not available means we can't execute commands
	if errors.Is(err, ErrVCSNotAvailable) {
		return true
	}

	return errors.Is(err, ErrNotRegistered)
}
