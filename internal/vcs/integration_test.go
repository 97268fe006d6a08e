package vcs_test

import (
	"errors"
	"testing"

	"github.com/CamJohns/ddr-cmdln/internal/vcs"
	// Import implementations to trigger auto-registration
	_ "github.com/CamJohns/ddr-cmdln/internal/vcs/git"
)

// TestRegistrationIntegration verifies that the git implementation
// registers itself via its init() function.
func TestRegistrationIntegration(t *testing.T) {
	_, err := vcs.Open(vcs.TypeGit, t.TempDir())
	if errors.Is(err, vcs.ErrNotRegistered) {
		t.Fatal("Expected git to be auto-registered")
	}
}
