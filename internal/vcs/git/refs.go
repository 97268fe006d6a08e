package git

import (
	"context"
	"fmt"

	"github.com/CamJohns/ddr-cmdln/internal/vcs"
)

// GetCommitHash returns the commit hash for the given reference
func (g *Git) GetCommitHash(ref string) (string, error) {
	output, err := g.Exec(context.Background(), "rev-parse", "--verify", "--quiet", ref+"^{commit}")
	if err != nil {
		return "", fmt.Errorf("failed to resolve ref %s: %w", ref, err)
	}

	return vcs.TrimOutput(output), nil
}

// HeadCommit returns the commit hash HEAD points at.
func (g *Git) HeadCommit() (string, error) {
	return g.GetCommitHash("HEAD")
}
