package pipeline

import (
	"errors"
	"fmt"
)

// ConfigurationError reports an invalid combination of options. It is
// raised before any collection is touched.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	if e.Field == "" {
		return "configuration error: " + e.Reason
	}
	return fmt.Sprintf("configuration error: %s: %s", e.Field, e.Reason)
}

// NewConfigurationError builds a ConfigurationError.
func NewConfigurationError(field, reason string) error {
	return &ConfigurationError{Field: field, Reason: reason}
}

// IsConfigurationError reports whether err is or wraps a ConfigurationError.
func IsConfigurationError(err error) bool {
	var ce *ConfigurationError
	return errors.As(err, &ce)
}

// AcquisitionError reports that a working copy could not be set up.
type AcquisitionError struct {
	Collection string
	URL        string
	Err        error
}

func (e *AcquisitionError) Error() string {
	return fmt.Sprintf("acquire %s from %s: %v", e.Collection, e.URL, e.Err)
}

func (e *AcquisitionError) Unwrap() error { return e.Err }

// LoadError reports a document that could not be read or resolved.
type LoadError struct {
	ID   string
	Path string
	Err  error
}

func (e *LoadError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("load %s: %v", e.Path, e.Err)
	}
	return fmt.Sprintf("load %s: %v", e.ID, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// TransformError reports a failed mutation.
type TransformError struct {
	ID  string
	Err error
}

func (e *TransformError) Error() string {
	return fmt.Sprintf("transform %s: %v", e.ID, e.Err)
}

func (e *TransformError) Unwrap() error { return e.Err }

// ChildrenError reports a parent whose child documents could not all be
// loaded. The failing child is reported separately with its own error.
type ChildrenError struct {
	ID  string
	Err error
}

func (e *ChildrenError) Error() string {
	return fmt.Sprintf("children of %s: %v", e.ID, e.Err)
}

func (e *ChildrenError) Unwrap() error { return e.Err }

// SaveError reports a document that could not be written.
type SaveError struct {
	ID   string
	Path string
	Err  error
}

func (e *SaveError) Error() string {
	return fmt.Sprintf("save %s: %v", e.ID, e.Err)
}

func (e *SaveError) Unwrap() error { return e.Err }

// CommitError reports a failed version-history write. Documents already
// written stay written.
type CommitError struct {
	Collection string
	Err        error
}

func (e *CommitError) Error() string {
	return fmt.Sprintf("commit %s: %v", e.Collection, e.Err)
}

func (e *CommitError) Unwrap() error { return e.Err }

// KindOf classifies an object-level error.
func KindOf(err error) ErrorKind {
	var (
		le *LoadError
		te *TransformError
		se *SaveError
		ce *ChildrenError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &ce):
		return KindChildren
	case errors.As(err, &le):
		return KindLoad
	case errors.As(err, &te):
		return KindTransform
	case errors.As(err, &se):
		return KindSave
	}
	return KindTransform
}
