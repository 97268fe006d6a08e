package git

import (
	"context"
	"fmt"
	"time"

	"github.com/CamJohns/ddr-cmdln/internal/vcs"
)

// EarliestCommit returns the author time of the oldest commit that
// touched path, following renames.
func (g *Git) EarliestCommit(ctx context.Context, path string) (time.Time, error) {
	rel, err := g.relPaths([]string{path})
	if err != nil {
		return time.Time{}, err
	}

	lines, err := vcs.ExecLines(ctx, g.timeout, g.repoRoot,
		"git", "log", "--follow", "--format=%aI", "--", rel[0])
	if err != nil {
		// unborn HEAD has no log at all
		if vcs.GetExitCode(err) == 128 {
			return time.Time{}, fmt.Errorf("%w: %s", vcs.ErrNoHistory, rel[0])
		}
		return time.Time{}, fmt.Errorf("git log %s failed: %w", rel[0], err)
	}
	if len(lines) == 0 {
		return time.Time{}, fmt.Errorf("%w: %s", vcs.ErrNoHistory, rel[0])
	}

	// newest first
	oldest := lines[len(lines)-1]
	t, err := time.Parse(time.RFC3339, oldest)
	if err != nil {
		return time.Time{}, fmt.Errorf("unexpected git date %q: %w", oldest, err)
	}
	return t, nil
}
