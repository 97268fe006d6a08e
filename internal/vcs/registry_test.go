package vcs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// mockVCS is a mock VCS implementation for testing
type mockVCS struct {
	name     Type
	repoRoot string
}

func (m *mockVCS) Name() Type                                           { return m.name }
func (m *mockVCS) Version() (string, error)                             { return "mock-1.0.0", nil }
func (m *mockVCS) RepoRoot() (string, error)                            { return m.repoRoot, nil }
func (m *mockVCS) HasChanges(paths ...string) (bool, error)             { return false, nil }
func (m *mockVCS) Status(paths ...string) ([]FileStatus, error)         { return nil, nil }
func (m *mockVCS) Add(paths []string) error                             { return nil }
func (m *mockVCS) Commit(ctx context.Context, opts CommitOptions) error { return nil }
func (m *mockVCS) HeadCommit() (string, error)                          { return "abc123", nil }
func (m *mockVCS) EarliestCommit(ctx context.Context, path string) (time.Time, error) {
	return time.Time{}, ErrNoHistory
}

// newMockVCS creates a mock VCS constructor
func newMockVCS(name Type) VCSConstructor {
	return func(repoRoot string) (VCS, error) {
		return &mockVCS{name: name, repoRoot: repoRoot}, nil
	}
}

// testTypeCounter generates unique test type names
var testTypeCounter int64

func uniqueTestType(prefix string) Type {
	n := atomic.AddInt64(&testTypeCounter, 1)
	return Type(fmt.Sprintf("%s-%d", prefix, n))
}

func TestRegisterAndOpen(t *testing.T) {
	typeName := uniqueTestType("register-test")

	Register(typeName, newMockVCS(typeName))

	v, err := Open(typeName, "/test/repo")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	if v.Name() != typeName {
		t.Errorf("Expected VCS name '%s', got '%s'", typeName, v.Name())
	}
	root, _ := v.RepoRoot()
	if root != "/test/repo" {
		t.Errorf("Expected repo root '/test/repo', got '%s'", root)
	}
}

func TestOpenUnregistered(t *testing.T) {
	_, err := Open(uniqueTestType("missing"), "/test/repo")
	if !errors.Is(err, ErrNotRegistered) {
		t.Errorf("Expected ErrNotRegistered, got %v", err)
	}
	if !IsFatal(err) {
		t.Error("Expected unregistered backend to be fatal")
	}
}

func TestRegisterPanicsOnNil(t *testing.T) {
	typeName := uniqueTestType("nil-test")

	defer func() {
		if r := recover(); r == nil {
			t.Error("Expected panic when registering nil constructor")
		}
	}()

	Register(typeName, nil)
}

func TestRegisterPanicsOnDuplicate(t *testing.T) {
	typeName := uniqueTestType("dup-test")

	Register(typeName, newMockVCS(typeName))

	defer func() {
		if r := recover(); r == nil {
			t.Error("Expected panic when registering duplicate type")
		}
	}()

	Register(typeName, newMockVCS(typeName))
}

func TestConcurrentRegistration(t *testing.T) {
	var wg sync.WaitGroup
	types := make([]Type, 20)
	for i := range types {
		types[i] = uniqueTestType("concurrent")
	}

	for _, typ := range types {
		wg.Add(1)
		go func(typ Type) {
			defer wg.Done()
			Register(typ, newMockVCS(typ))
		}(typ)
	}
	wg.Wait()

	for _, typ := range types {
		v, err := Open(typ, "/test/repo")
		if err != nil {
			t.Errorf("Open(%s) failed: %v", typ, err)
			continue
		}
		if v.Name() != typ {
			t.Errorf("Open(%s) returned backend %s", typ, v.Name())
		}
	}
}

func TestFileStatusDirty(t *testing.T) {
	tests := []struct {
		name   string
		status FileStatus
		dirty  bool
	}{
		{"clean", FileStatus{Status: StatusUnmodified, StagedCode: StatusUnmodified}, false},
		{"untracked", FileStatus{Status: StatusUntracked, StagedCode: StatusUntracked}, false},
		{"ignored", FileStatus{Status: StatusIgnored, StagedCode: StatusIgnored}, false},
		{"modified", FileStatus{Status: StatusModified, StagedCode: StatusUnmodified}, true},
		{"staged", FileStatus{Status: StatusUnmodified, StagedCode: StatusAdded}, true},
		{"conflict", FileStatus{Status: StatusConflict, StagedCode: StatusConflict}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.status.Dirty(); got != tt.dirty {
				t.Errorf("Dirty() = %v, want %v", got, tt.dirty)
			}
		})
	}
}

func TestErrorClassification(t *testing.T) {
	wrapped := fmt.Errorf("clone ddr-test-1: %w", ErrCloneFailed)
	if !IsRetryable(wrapped) {
		t.Error("Expected clone failure to be retryable")
	}
	exists := fmt.Errorf("%w: %w", ErrCloneFailed, ErrDestinationExists)
	if IsRetryable(exists) {
		t.Error("Expected existing destination not to be retryable")
	}
	if !IsUserActionRequired(exists) {
		t.Error("Expected existing destination to need user action")
	}
	if !IsRetryable(ErrTimeout) {
		t.Error("Expected timeout to be retryable")
	}
	if IsRetryable(nil) || IsFatal(nil) || IsUserActionRequired(nil) {
		t.Error("Expected nil to classify as nothing")
	}
	if !IsFatal(fmt.Errorf("git: %w", ErrVCSNotAvailable)) {
		t.Error("Expected missing binary to be fatal")
	}
}
