package vocab

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseText(t *testing.T) {
	tests := []struct {
		in   string
		want Topic
		ok   bool
	}{
		{"Journalism [120]", Topic{Term: "Journalism", ID: "120"}, true},
		{"  Journalism   and  media [121] ", Topic{Term: "Journalism and media", ID: "121"}, true},
		{"Café [7]", Topic{Term: "Café", ID: "7"}, true},
		{"term:Journalism|id:120", Topic{Term: "Journalism", ID: "120"}, true},
		{"120", Topic{ID: "120"}, true},
		{"Journalism", Topic{}, false},
		{"", Topic{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ParseText(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRepairShapes(t *testing.T) {
	r := NewRepairer(nil)

	got, err := r.Repair(json.RawMessage(`["Journalism [120]", {"term": "Farming", "id": 45}, 9, null]`))
	require.NoError(t, err)
	assert.Equal(t, Topics{
		{Term: "Journalism", ID: "120"},
		{Term: "Farming", ID: "45"},
		{ID: "9"},
	}, got)

	got, err = r.Repair(json.RawMessage(`"Journalism [120]; Farming [45]"`))
	require.NoError(t, err)
	assert.Equal(t, []string{"120", "45"}, got.IDs())

	got, err = r.Repair(json.RawMessage(`null`))
	require.NoError(t, err)
	assert.Empty(t, got)

	_, err = r.Repair(json.RawMessage(`true`))
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestRepairDropsEmptyAndDuplicates(t *testing.T) {
	r := NewRepairer(nil)
	got, err := r.Repair(json.RawMessage(`["A [1]", "", {"term": "no id"}, "A again [1]", "B [2]"]`))
	require.NoError(t, err)
	assert.Equal(t, Topics{{Term: "A", ID: "1"}, {Term: "B", ID: "2"}}, got)
}

func TestRepairNormalises(t *testing.T) {
	r := NewRepairer(nil)
	// "e" followed by a combining acute accent composes to U+00E9.
	got, err := r.Repair(json.RawMessage(`[{"term": "Cafe\u0301\t Society", "id": "3"}]`))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Caf\u00e9 Society", got[0].Term)
}

func TestRepairUsesVocabulary(t *testing.T) {
	path := filepath.Join(t.TempDir(), "topics.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
  "id": "topics",
  "terms": [
    {"id": 120, "title": "Journalism and Media"},
    {"id": "45", "term": "Agriculture"},
    {"title": "orphan"}
  ]
}`), 0o644))

	v, err := LoadVocabulary(path)
	require.NoError(t, err)
	assert.Len(t, v, 2)

	r := NewRepairer(v)
	got, err := r.Repair(json.RawMessage(`["Journalism [120]", "Farming [45]", "Other [99]"]`))
	require.NoError(t, err)
	assert.Equal(t, Topics{
		{Term: "Journalism and Media", ID: "120"},
		{Term: "Agriculture", ID: "45"},
		{Term: "Other", ID: "99"},
	}, got)
}

func TestLoadVocabularyErrors(t *testing.T) {
	_, err := LoadVocabulary(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)

	bad := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte("{"), 0o644))
	_, err = LoadVocabulary(bad)
	assert.Error(t, err)
}

func TestRepairRaw(t *testing.T) {
	r := NewRepairer(nil)

	out, changed, err := r.RepairRaw(json.RawMessage(`["Journalism [120]"]`))
	require.NoError(t, err)
	assert.True(t, changed)
	assert.JSONEq(t, `[{"term": "Journalism", "id": "120"}]`, string(out))

	out2, changed, err := r.RepairRaw(out)
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, string(out), string(out2))

	_, changed, err = r.RepairRaw(json.RawMessage(`[
    {"term": "Journalism", "id": "120"}
  ]`))
	require.NoError(t, err)
	assert.False(t, changed)
}
