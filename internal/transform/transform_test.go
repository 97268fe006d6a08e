package transform

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CamJohns/ddr-cmdln/internal/identifier"
	"github.com/CamJohns/ddr-cmdln/internal/record"
	"github.com/CamJohns/ddr-cmdln/internal/testutil"
	"github.com/CamJohns/ddr-cmdln/internal/vcs"
	"github.com/CamJohns/ddr-cmdln/internal/vocab"
)

type fakeHistory struct {
	times map[string]time.Time
	err   error
	calls int
}

func (f *fakeHistory) EarliestCommit(_ context.Context, path string) (time.Time, error) {
	f.calls++
	if f.err != nil {
		return time.Time{}, f.err
	}
	t, ok := f.times[filepath.Base(filepath.Dir(path))+"/"+filepath.Base(path)]
	if !ok {
		return time.Time{}, vcs.ErrNoHistory
	}
	return t, nil
}

func ids(t *testing.T, ss ...string) []identifier.Identifier {
	t.Helper()
	out := make([]identifier.Identifier, len(ss))
	for i, s := range ss {
		out[i] = identifier.MustParse(s)
	}
	return out
}

func TestIncludeExcludeComplement(t *testing.T) {
	all := ids(t,
		"ddr-test-123",
		"ddr-test-123-1",
		"ddr-test-123-2",
		"ddr-test-123-1-master-a1b2c3d4e5",
		"ddr-test-124-1",
		"ddr-densho-10-1",
	)
	const pattern = "ddr-test-123-*"

	var included, excluded []string
	for _, id := range all {
		if FilterInclude(id, pattern) {
			included = append(included, id.String())
		}
		if FilterExclude(id, pattern) {
			excluded = append(excluded, id.String())
		}
	}

	assert.Equal(t, []string{
		"ddr-test-123-1",
		"ddr-test-123-2",
		"ddr-test-123-1-master-a1b2c3d4e5",
	}, included)
	assert.Equal(t, []string{
		"ddr-test-123",
		"ddr-test-124-1",
		"ddr-densho-10-1",
	}, excluded)
	assert.Len(t, all, len(included)+len(excluded))
}

func TestEmptyPatternsKeepEverything(t *testing.T) {
	id := identifier.MustParse("ddr-test-1-1")
	assert.True(t, FilterInclude(id, ""))
	assert.True(t, FilterExclude(id, ""))
	assert.True(t, FilterModel(id.Model(), nil))
	assert.False(t, FilterModel(id.Model(), []identifier.Model{identifier.ModelFile}))
}

func TestConfigValidate(t *testing.T) {
	assert.NoError(t, Config{Include: "ddr-*", Exclude: "*-master-*"}.Validate())
	assert.ErrorIs(t, Config{Include: "ddr-["}.Validate(), ErrBadPattern)
	assert.Error(t, Config{Models: []identifier.Model{"widget"}}.Validate())
	assert.Equal(t, "none", Config{}.String())
	assert.Equal(t, "include=ddr-* models=entity,file repair-topics",
		Config{Include: "ddr-*", Models: []identifier.Model{identifier.ModelEntity, identifier.ModelFile}, RepairTopics: true}.String())
}

func TestSkip(t *testing.T) {
	s, err := NewSet(Config{
		Include: "ddr-test-123*",
		Exclude: "*-master-*",
		Models:  []identifier.Model{identifier.ModelEntity, identifier.ModelFile},
	}, record.NewStore())
	require.NoError(t, err)

	tests := []struct {
		id     string
		skip   bool
		reason string
	}{
		{"ddr-test-123-1", false, ""},
		{"ddr-test-124-1", true, "not included"},
		{"ddr-test-123-1-master-a1b2c3d4e5", true, "excluded"},
		{"ddr-test-123-1-mezzanine-a1b2c3d4e5", false, ""},
		{"ddr-test-123", true, "model collection"},
	}
	for _, tt := range tests {
		skip, reason := s.Skip(identifier.MustParse(tt.id))
		assert.Equal(t, tt.skip, skip, tt.id)
		assert.Equal(t, tt.reason, reason, tt.id)
	}
}

func TestNewSetRequiresHistoryForBackfill(t *testing.T) {
	_, err := NewSet(Config{BackfillCreated: true}, record.NewStore())
	assert.Error(t, err)

	_, err = NewSet(Config{BackfillCreated: true}, record.NewStore(), WithHistory(&fakeHistory{}))
	assert.NoError(t, err)
}

func loadAll(t *testing.T) (*record.Store, map[string]*record.Record) {
	t.Helper()
	base := t.TempDir()
	paths := testutil.WriteDocs(t, base,
		testutil.Doc{ID: "ddr-test-123", Fields: map[string]any{"title": "C", "record_created": "2020-01-01T00:00:00"}},
		testutil.Doc{ID: "ddr-test-123-1", Fields: map[string]any{"topics": []any{"Journalism [120]", "Journalism [120]"}}},
		testutil.Doc{ID: "ddr-test-123-1-1", Fields: map[string]any{"topics": []any{map[string]any{"term": "Farming", "id": "45"}}}},
		testutil.Doc{ID: "ddr-test-123-1-master-a1b2c3d4e5", Fields: map[string]any{"topics": "ignored"}},
	)
	store := record.NewStore()
	recs := map[string]*record.Record{}
	for _, p := range paths {
		r, err := store.Load(p)
		require.NoError(t, err)
		recs[r.ID.String()] = r
	}
	return store, recs
}

func TestRepairTopics(t *testing.T) {
	_, recs := loadAll(t)
	r := vocab.NewRepairer(nil)

	changed, err := RepairTopics(recs["ddr-test-123-1"], r)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.JSONEq(t, `[{"term": "Journalism", "id": "120"}]`, string(recs["ddr-test-123-1"].Topics()))

	// already in canonical form
	changed, err = RepairTopics(recs["ddr-test-123-1-1"], r)
	require.NoError(t, err)
	assert.False(t, changed)

	// files and collections have no topics slot
	changed, err = RepairTopics(recs["ddr-test-123-1-master-a1b2c3d4e5"], r)
	require.NoError(t, err)
	assert.False(t, changed)
	changed, err = RepairTopics(recs["ddr-test-123"], r)
	require.NoError(t, err)
	assert.False(t, changed)
}

func TestRepairTopicsMalformed(t *testing.T) {
	_, recs := loadAll(t)
	rec := recs["ddr-test-123-1"]
	require.True(t, rec.SetTopics(json.RawMessage(`true`)))

	_, err := RepairTopics(rec, vocab.NewRepairer(nil))
	assert.ErrorIs(t, err, vocab.ErrMalformed)
}

func TestBackfillCreated(t *testing.T) {
	_, recs := loadAll(t)
	first := time.Date(2013, 9, 17, 14, 38, 59, 0, time.UTC)
	h := &fakeHistory{times: map[string]time.Time{
		"ddr-test-123/collection.json": first,
		"ddr-test-123-1/entity.json":   first,
	}}
	ctx := context.Background()

	changed, err := BackfillCreated(ctx, recs["ddr-test-123"], h)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.True(t, first.Equal(*recs["ddr-test-123"].Created()))

	// same value again is not a change
	changed, err = BackfillCreated(ctx, recs["ddr-test-123"], h)
	require.NoError(t, err)
	assert.False(t, changed)

	// no history leaves the slot alone
	changed, err = BackfillCreated(ctx, recs["ddr-test-123-1-1"], h)
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Nil(t, recs["ddr-test-123-1-1"].Created())

	// files have no creation slot and never hit the history
	calls := h.calls
	changed, err = BackfillCreated(ctx, recs["ddr-test-123-1-master-a1b2c3d4e5"], h)
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, calls, h.calls)
}

func TestBackfillCreatedHistoryError(t *testing.T) {
	_, recs := loadAll(t)
	boom := errors.New("git exploded")

	_, err := BackfillCreated(context.Background(), recs["ddr-test-123-1"], &fakeHistory{err: boom})
	assert.ErrorIs(t, err, boom)
}

func TestApplyLoadsChildrenAndRunsInOrder(t *testing.T) {
	store, recs := loadAll(t)
	h := &fakeHistory{times: map[string]time.Time{
		"ddr-test-123-1/entity.json": time.Date(2014, 1, 1, 0, 0, 0, 0, time.UTC),
	}}

	s, err := NewSet(Config{RepairTopics: true, BackfillCreated: true}, store, WithHistory(h))
	require.NoError(t, err)

	entity := recs["ddr-test-123-1"]
	ch, err := s.Apply(context.Background(), entity)
	require.NoError(t, err)
	assert.True(t, ch.Topics)
	assert.True(t, ch.Created)
	assert.True(t, ch.Any())
	assert.True(t, entity.ChildrenLoaded())
	assert.Len(t, entity.Children(), 2)

	// collections do not load children
	coll := recs["ddr-test-123"]
	_, err = s.Apply(context.Background(), coll)
	require.NoError(t, err)
	assert.False(t, coll.ChildrenLoaded())
}

func TestApplyBrokenChild(t *testing.T) {
	store, recs := loadAll(t)
	require.NoError(t, os.WriteFile(recs["ddr-test-123-1-1"].Path, []byte("{"), 0o644))

	s, err := NewSet(Config{RepairTopics: true}, store)
	require.NoError(t, err)

	ch, err := s.Apply(context.Background(), recs["ddr-test-123-1"])
	assert.ErrorIs(t, err, ErrChildren)
	assert.False(t, ch.Any())
}

func TestApplyHonoursCancellation(t *testing.T) {
	store, recs := loadAll(t)
	s, err := NewSet(Config{RepairTopics: true}, store)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = s.Apply(ctx, recs["ddr-test-123-1"])
	assert.ErrorIs(t, err, context.Canceled)
}
