package git

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/CamJohns/ddr-cmdln/internal/vcs"
)

// Cloner acquires and releases git working copies. The zero value is
// usable and applies DefaultTimeout.
type Cloner struct {
	// Timeout bounds one clone; zero means DefaultTimeout, negative
	// means no limit.
	Timeout time.Duration
}

var _ vcs.Cloner = (*Cloner)(nil)

func (c *Cloner) timeout() time.Duration {
	switch {
	case c.Timeout == 0:
		return DefaultTimeout
	case c.Timeout < 0:
		return 0
	}
	return c.Timeout
}

// Clone clones url into dest. dest must be missing or an empty
// directory. A failed clone leaves nothing behind.
func (c *Cloner) Clone(ctx context.Context, url, dest string) error {
	dest, err := filepath.Abs(dest)
	if err != nil {
		return fmt.Errorf("%w: %v", vcs.ErrCloneFailed, err)
	}

	empty, err := isEmptyDir(dest)
	if err != nil {
		return fmt.Errorf("%w: %v", vcs.ErrCloneFailed, err)
	}
	if !empty {
		return fmt.Errorf("%w: %w: %s", vcs.ErrCloneFailed, vcs.ErrDestinationExists, dest)
	}

	parent := filepath.Dir(dest)
	if err := os.MkdirAll(parent, 0o755); err != nil {
		return fmt.Errorf("%w: %v", vcs.ErrCloneFailed, err)
	}

	_, err = vcs.ExecContext(ctx, c.timeout(), parent, "git", "clone", "--quiet", url, dest)
	if err != nil {
		_ = os.RemoveAll(dest)
		return fmt.Errorf("%w: %s: %w", vcs.ErrCloneFailed, url, err)
	}

	return nil
}

// Remove deletes the working copy at dest. It refuses to delete a
// directory that is not the root of a git working copy. A missing dest
// is not an error.
func (c *Cloner) Remove(dest string) error {
	if _, err := os.Stat(dest); errors.Is(err, fs.ErrNotExist) {
		return nil
	}

	if _, err := os.Stat(filepath.Join(dest, ".git")); err != nil {
		return fmt.Errorf("refusing to remove %s: not a git working copy", dest)
	}

	if err := os.RemoveAll(dest); err != nil {
		return fmt.Errorf("failed to remove working copy: %w", err)
	}
	return nil
}

// isEmptyDir reports whether path is missing or an empty directory.
func isEmptyDir(path string) (bool, error) {
	entries, err := os.ReadDir(path)
	if errors.Is(err, fs.ErrNotExist) {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	return len(entries) == 0, nil
}
