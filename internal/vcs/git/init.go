package git

import "github.com/CamJohns/ddr-cmdln/internal/vcs"

// init registers the git backend so that vcs.Open(vcs.TypeGit, path)
// works for any importer of this package.
func init() {
	vcs.Register(vcs.TypeGit, func(path string) (vcs.VCS, error) {
		return New(path)
	})
}
