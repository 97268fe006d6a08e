// Package git provides the git implementation of the vcs interfaces.
//
// Every operation shells out to the git binary. A Git value is bound to
// one repository; Cloner works on working-copy directories and needs no
// repository.
package git

import (
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/mod/semver"

	"github.com/CamJohns/ddr-cmdln/internal/vcs"
)

// DefaultTimeout bounds a single git invocation.
const DefaultTimeout = 2 * time.Minute

// MinVersion is the oldest git release whose log --follow and porcelain
// status output the backend relies on.
const MinVersion = "2.20.0"

// Git implements vcs.VCS for git repositories.
type Git struct {
	// repoRoot is the repository root directory path
	repoRoot string

	// timeout bounds each git command; zero means no limit
	timeout time.Duration
}

var _ vcs.VCS = (*Git)(nil)

// Option configures a Git.
type Option func(*Git)

// WithTimeout sets the per-command timeout.
func WithTimeout(d time.Duration) Option {
	return func(g *Git) {
		g.timeout = d
	}
}

// New creates a new Git VCS instance for the given repository.
// The path should be somewhere within a git repository.
func New(path string, opts ...Option) (*Git, error) {
	g := &Git{timeout: DefaultTimeout}
	for _, opt := range opts {
		opt(g)
	}

	if err := g.detect(path); err != nil {
		return nil, err
	}

	return g, nil
}

// Name returns the VCS type (git)
func (g *Git) Name() vcs.Type {
	return vcs.TypeGit
}

// Version returns the git version string
func (g *Git) Version() (string, error) {
	return Version()
}

// Version returns the version of the git binary on PATH.
func Version() (string, error) {
	output, err := exec.Command("git", "--version").Output()
	if err != nil {
		return "", fmt.Errorf("failed to get git version: %w", err)
	}

	// Output format: "git version 2.39.0"
	return strings.TrimPrefix(vcs.TrimOutput(output), "git version "), nil
}

// CheckVersion verifies that the installed git is at least MinVersion.
func CheckVersion() error {
	v, err := Version()
	if err != nil {
		return fmt.Errorf("%w: %v", vcs.ErrVCSNotAvailable, err)
	}
	if !VersionAtLeast(v, MinVersion) {
		return fmt.Errorf("%w: git %s is older than %s", vcs.ErrVCSNotAvailable, v, MinVersion)
	}
	return nil
}

// VersionAtLeast compares git version strings such as "2.39.3 (Apple
// Git-146)" or "2.43.0.windows.1". Unparseable versions compare as too old.
func VersionAtLeast(version, min string) bool {
	return semver.Compare(canonicalVersion(version), canonicalVersion(min)) >= 0
}

func canonicalVersion(v string) string {
	v, _, _ = strings.Cut(strings.TrimSpace(v), " ")
	parts := strings.SplitN(v, ".", 4)
	if len(parts) > 3 {
		parts = parts[:3]
	}
	c := "v" + strings.Join(parts, ".")
	if !semver.IsValid(c) {
		return ""
	}
	return semver.Canonical(c)
}

// RepoRoot returns the repository root directory path
func (g *Git) RepoRoot() (string, error) {
	if g.repoRoot == "" {
		return "", vcs.ErrNotInVCS
	}
	return g.repoRoot, nil
}

// IsInVCS returns true if inside a git repository
func (g *Git) IsInVCS() bool {
	return g.repoRoot != ""
}

// Exec executes a raw git command in the repository root.
func (g *Git) Exec(ctx context.Context, args ...string) ([]byte, error) {
	output, err := vcs.ExecContext(ctx, g.timeout, g.repoRoot, "git", args...)
	if err != nil {
		return output, fmt.Errorf("git %s failed: %w", strings.Join(args, " "), err)
	}
	return output, nil
}

// relPaths converts paths to repository-relative form. Paths outside the
// repository are rejected.
func (g *Git) relPaths(paths []string) ([]string, error) {
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		if !filepath.IsAbs(p) {
			out = append(out, p)
			continue
		}
		resolved := normalizeRepoRoot(p)
		if !vcs.IsSubPath(g.repoRoot, resolved) {
			return nil, fmt.Errorf("path %s is outside repository %s", p, g.repoRoot)
		}
		rel, err := vcs.RelativePath(g.repoRoot, resolved)
		if err != nil {
			return nil, err
		}
		out = append(out, rel)
	}
	return out, nil
}
