package git

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/CamJohns/ddr-cmdln/internal/vcs"
)

// detect populates git repository information
func (g *Git) detect(path string) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve path: %w", err)
	}
	if info, err := os.Stat(absPath); err == nil && !info.IsDir() {
		absPath = filepath.Dir(absPath)
	}

	if _, err := exec.LookPath("git"); err != nil {
		return vcs.ErrVCSNotAvailable
	}

	cmd := exec.Command("git", "rev-parse", "--show-toplevel")
	cmd.Dir = absPath

	output, err := cmd.Output()
	if err != nil {
		return fmt.Errorf("%w: %s", vcs.ErrNotInVCS, absPath)
	}

	root := vcs.TrimOutput(output)
	if root == "" {
		return fmt.Errorf("%w: %s is a bare repository", vcs.ErrNotInVCS, absPath)
	}

	g.repoRoot = normalizeRepoRoot(root)
	return nil
}

// normalizeRepoRoot resolves symlinks so that paths compare equal
// regardless of how the caller spelled them. Missing trailing components
// are kept as given.
func normalizeRepoRoot(path string) string {
	path = filepath.Clean(filepath.FromSlash(path))

	if resolved, err := filepath.EvalSymlinks(path); err == nil {
		return resolved
	}

	dir, base := filepath.Split(path)
	if dir == "" || dir == path {
		return path
	}
	return filepath.Join(normalizeRepoRoot(filepath.Clean(dir)), base)
}
