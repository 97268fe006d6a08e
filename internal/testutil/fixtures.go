// Package testutil builds collection repositories on disk for tests.
package testutil

import (
	"encoding/json"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/CamJohns/ddr-cmdln/internal/identifier"
)

// Doc describes one metadata document to write.
type Doc struct {
	ID     string
	Fields map[string]any
}

// WriteDocs writes docs below base using the repository layout and
// returns their absolute paths in the order given.
func WriteDocs(t testing.TB, base string, docs ...Doc) []string {
	t.Helper()

	paths := make([]string, 0, len(docs))
	for _, d := range docs {
		id := identifier.MustParse(d.ID)
		fields := map[string]any{}
		if id.Model() != identifier.ModelFile {
			fields["id"] = d.ID
		}
		for k, v := range d.Fields {
			fields[k] = v
		}
		data, err := json.MarshalIndent(fields, "", "  ")
		if err != nil {
			t.Fatalf("marshal %s: %v", d.ID, err)
		}
		path := id.PathAbs(base)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatalf("mkdir for %s: %v", d.ID, err)
		}
		if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
			t.Fatalf("write %s: %v", d.ID, err)
		}
		paths = append(paths, path)
	}
	return paths
}

// RequireGit skips the test when the git binary is not installed.
func RequireGit(t testing.TB) {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not available")
	}
}

// Git runs a git command in dir and fails the test on error.
func Git(t testing.TB, dir string, args ...string) string {
	t.Helper()
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(),
		"GIT_CONFIG_GLOBAL=/dev/null",
		"GIT_CONFIG_NOSYSTEM=1",
	)
	out, err := cmd.CombinedOutput()
	if err != nil {
		t.Fatalf("git %v failed: %v\n%s", args, err, out)
	}
	return string(out)
}

// InitRepo turns dir into a git repository with a configured test user
// and commits everything currently in it.
func InitRepo(t testing.TB, dir string) {
	t.Helper()
	RequireGit(t)

	Git(t, dir, "init", "-q")
	Git(t, dir, "config", "user.name", "Test User")
	Git(t, dir, "config", "user.email", "test@example.com")
	Git(t, dir, "config", "commit.gpgsign", "false")
	Git(t, dir, "add", "-A")
	Git(t, dir, "commit", "-q", "--allow-empty", "-m", "initial")
}
