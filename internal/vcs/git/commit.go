package git

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"os"
	"os/exec"
	"strings"

	"github.com/CamJohns/ddr-cmdln/internal/vcs"
)

// HasChanges returns true if there are uncommitted changes
// If paths are specified, only checks those paths
func (g *Git) HasChanges(paths ...string) (bool, error) {
	statuses, err := g.Status(paths...)
	if err != nil {
		return false, err
	}
	return len(statuses) > 0, nil
}

// Add stages files for commit
func (g *Git) Add(paths []string) error {
	if len(paths) == 0 {
		return nil
	}

	rel, err := g.relPaths(paths)
	if err != nil {
		return err
	}

	args := append([]string{"add", "--"}, rel...)
	if _, err := g.Exec(context.Background(), args...); err != nil {
		return err
	}

	return nil
}

// Status returns the status of files in the working directory
func (g *Git) Status(paths ...string) ([]vcs.FileStatus, error) {
	rel, err := g.relPaths(paths)
	if err != nil {
		return nil, err
	}

	args := []string{"status", "--porcelain"}
	if len(rel) > 0 {
		args = append(args, "--")
		args = append(args, rel...)
	}

	output, err := g.Exec(context.Background(), args...)
	if err != nil {
		return nil, err
	}

	return parseStatus(string(output)), nil
}

// parseStatus parses porcelain v1 output: XY filename
// X = staged status, Y = unstaged status
func parseStatus(output string) []vcs.FileStatus {
	var statuses []vcs.FileStatus
	for _, line := range strings.Split(output, "\n") {
		if len(line) < 4 {
			continue
		}

		path := strings.TrimSpace(line[3:])
		if _, to, ok := strings.Cut(path, " -> "); ok {
			path = to
		}

		statuses = append(statuses, vcs.FileStatus{
			Path:       strings.Trim(path, `"`),
			Status:     parseStatusCode(line[1:2]),
			StagedCode: parseStatusCode(line[0:1]),
		})
	}
	return statuses
}

// parseStatusCode converts git status code to vcs.StatusCode
func parseStatusCode(code string) vcs.StatusCode {
	switch code {
	case " ":
		return vcs.StatusUnmodified
	case "M":
		return vcs.StatusModified
	case "A":
		return vcs.StatusAdded
	case "D":
		return vcs.StatusDeleted
	case "R":
		return vcs.StatusRenamed
	case "C":
		return vcs.StatusCopied
	case "?":
		return vcs.StatusUntracked
	case "!":
		return vcs.StatusIgnored
	case "U":
		return vcs.StatusConflict
	default:
		return vcs.StatusUnmodified
	}
}

// Commit stages opts.Paths and commits them. When an author is given it
// is also used as committer, so commits work in clones without a
// configured user.
func (g *Git) Commit(ctx context.Context, opts vcs.CommitOptions) error {
	if opts.Message == "" {
		return fmt.Errorf("commit message is required")
	}

	rel, err := g.relPaths(opts.Paths)
	if err != nil {
		return err
	}

	if len(rel) > 0 {
		if err := g.Add(rel); err != nil {
			return err
		}
	}

	staged, err := g.hasStaged(ctx, rel)
	if err != nil {
		return err
	}
	if !staged {
		return vcs.ErrNothingToCommit
	}

	args := []string{"commit", "--quiet", "-m", opts.Message}

	env := os.Environ()
	if opts.Author != "" {
		addr, err := mail.ParseAddress(opts.Author)
		if err != nil {
			return fmt.Errorf("invalid commit author %q: %w", opts.Author, err)
		}
		args = append(args, "--author", opts.Author)
		env = append(env,
			"GIT_COMMITTER_NAME="+addr.Name,
			"GIT_COMMITTER_EMAIL="+addr.Address,
		)
	}

	if opts.NoGPGSign {
		args = append(args, "--no-gpg-sign")
	}

	if opts.NoVerify {
		args = append(args, "--no-verify")
	}

	// Add paths with -- to ensure they're treated as paths
	if len(rel) > 0 {
		args = append(args, "--")
		args = append(args, rel...)
	}

	cmdCtx := ctx
	if g.timeout > 0 {
		var cancel context.CancelFunc
		cmdCtx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(cmdCtx, "git", args...)
	cmd.Dir = g.repoRoot
	cmd.Env = env

	output, err := cmd.CombinedOutput()
	if err != nil {
		if errors.Is(cmdCtx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("git commit: %w", vcs.ErrTimeout)
		}
		return fmt.Errorf("git commit failed: %w\n%s", err, string(output))
	}

	return nil
}

// hasStaged reports whether the index differs from HEAD for paths.
func (g *Git) hasStaged(ctx context.Context, paths []string) (bool, error) {
	args := []string{"diff", "--cached", "--quiet"}
	if len(paths) > 0 {
		args = append(args, "--")
		args = append(args, paths...)
	}

	_, err := vcs.ExecContext(ctx, g.timeout, g.repoRoot, "git", args...)
	if err == nil {
		return false, nil
	}
	if vcs.GetExitCode(err) == 1 {
		return true, nil
	}
	return false, fmt.Errorf("git diff --cached failed: %w", err)
}
