package identifier

import (
	"errors"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseModels(t *testing.T) {
	tests := []struct {
		id    string
		model Model
		parts Parts
	}{
		{"ddr-test-123", ModelCollection, Parts{Repo: "ddr", Org: "test", CID: 123}},
		{"ddr-test-123-1", ModelEntity, Parts{Repo: "ddr", Org: "test", CID: 123, EID: 1}},
		{"ddr-test-123-1-2", ModelSegment, Parts{Repo: "ddr", Org: "test", CID: 123, EID: 1, SID: 2}},
		{"ddr-test-123-1-master-a1b2c3d4e5", ModelFile,
			Parts{Repo: "ddr", Org: "test", CID: 123, EID: 1, Role: "master", SHA1: "a1b2c3d4e5"}},
		{"ddr-densho-10-4-2-mezzanine-0123456789", ModelFile,
			Parts{Repo: "ddr", Org: "densho", CID: 10, EID: 4, SID: 2, Role: "mezzanine", SHA1: "0123456789"}},
	}

	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			i, err := Parse(tt.id)
			require.NoError(t, err)
			assert.Equal(t, tt.id, i.String())
			assert.Equal(t, tt.model, i.Model())
			assert.Equal(t, tt.parts, i.Parts())
			assert.Equal(t, "ddr-"+tt.parts.Org+"-"+strconv.Itoa(tt.parts.CID), i.CollectionID())
		})
	}
}

func TestParseInvalid(t *testing.T) {
	bad := []string{
		"",
		"ddr-test",
		"ddr-test-abc",
		"ddr-test-0",
		"ddr-test-01",
		"DDR-test-1",
		"ddr-test-1-2-3-4",
		"ddr-test-1-master-abc",
		"ddr-test-1-1-master",
		"ddr-test-1-1-master-XYZ",
		"ddr-test-1-1-master-abc-def",
	}
	for _, id := range bad {
		t.Run(id, func(t *testing.T) {
			_, err := Parse(id)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalid))
		})
	}
}

func TestParent(t *testing.T) {
	tests := []struct {
		id     string
		parent string
	}{
		{"ddr-test-123-1", "ddr-test-123"},
		{"ddr-test-123-1-2", "ddr-test-123-1"},
		{"ddr-test-123-1-master-abc123", "ddr-test-123-1"},
		{"ddr-test-123-1-2-transcript-abc123", "ddr-test-123-1-2"},
	}
	for _, tt := range tests {
		p, ok := MustParse(tt.id).Parent()
		require.True(t, ok, tt.id)
		assert.Equal(t, tt.parent, p.String())
	}

	_, ok := MustParse("ddr-test-123").Parent()
	assert.False(t, ok)
}

func TestPaths(t *testing.T) {
	base := filepath.FromSlash("/var/www/media/ddr")
	tests := []struct {
		id   string
		path string
	}{
		{"ddr-test-123", "ddr-test-123/collection.json"},
		{"ddr-test-123-1", "ddr-test-123/files/ddr-test-123-1/entity.json"},
		{"ddr-test-123-1-2", "ddr-test-123/files/ddr-test-123-1/files/ddr-test-123-1-2/entity.json"},
		{"ddr-test-123-1-master-abc123", "ddr-test-123/files/ddr-test-123-1/files/ddr-test-123-1-master-abc123.json"},
		{"ddr-test-123-1-2-gloss-abc123",
			"ddr-test-123/files/ddr-test-123-1/files/ddr-test-123-1-2/files/ddr-test-123-1-2-gloss-abc123.json"},
	}
	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			i := MustParse(tt.id)
			want := filepath.Join(base, filepath.FromSlash(tt.path))
			assert.Equal(t, want, i.PathAbs(base))

			back, gotBase, err := FromPath(want)
			require.NoError(t, err)
			assert.Equal(t, i, back)
			assert.Equal(t, base, gotBase)
		})
	}
}

func TestFromPathRejectsMismatchedLayout(t *testing.T) {
	_, _, err := FromPath(filepath.FromSlash("/tmp/ddr-test-123/files/collection.json"))
	require.Error(t, err)

	_, _, err = FromPath(filepath.FromSlash("/tmp/ddr-test-123/files/ddr-test-123-1/notes.txt"))
	require.Error(t, err)

	_, _, err = FromPath(filepath.FromSlash("/tmp/ddr-test-124/files/ddr-test-123-1/entity.json"))
	require.Error(t, err)
}

func TestParseModel(t *testing.T) {
	m, err := ParseModel(" Entity ")
	require.NoError(t, err)
	assert.Equal(t, ModelEntity, m)

	_, err = ParseModel("issue")
	assert.ErrorIs(t, err, ErrInvalid)
}
