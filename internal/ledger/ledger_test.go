package ledger

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CamJohns/ddr-cmdln/internal/batch"
	"github.com/CamJohns/ddr-cmdln/internal/pipeline"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "nested", "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func sampleResult(id string, started time.Time) *batch.Result {
	return &batch.Result{
		RunID:                id,
		Started:              started,
		Finished:             started.Add(90 * time.Second),
		Identity:             pipeline.Identity{User: "Jane Doe", Mail: "jane@example.org"},
		Commit:               true,
		Transform:            "repair-topics",
		CollectionsAttempted: 2,
		CollectionsSucceeded: 1,
		CollectionsCommitted: 1,
		ObjectsAttempted:     5,
		ObjectsSaved:         4,
		ObjectsFailed:        1,
		FilesUpdated:         3,
		FailureRate:          0.25,
		Elapsed:              90 * time.Second,
		Collections: []*pipeline.CollectionResult{
			{Collection: "ddr-test-1", Acquired: true, Attempted: 3, Saved: 3, FilesUpdated: 2,
				Commit: pipeline.CommitCommitted, CommitMessage: "Batch update ddr-test-1: 2 files",
				CommitHash: "0123456789abcdef0123456789abcdef01234567", Elapsed: 1500 * time.Millisecond},
			{Collection: "ddr-test-2", Acquired: true, Attempted: 2, Saved: 1, Failed: 1, FilesUpdated: 1,
				Commit: pipeline.CommitSkippedFailures, CommitMessage: "1 of 2 documents failed"},
		},
		Failures: []batch.Failure{
			{Collection: "ddr-test-2", ID: "ddr-test-2-2", Kind: pipeline.KindLoad, Error: "load ddr-test-2-2: bad json"},
		},
	}
}

func TestOpenCreatesSchema(t *testing.T) {
	db := openTestDB(t)

	for _, table := range []string{"runs", "collections", "failures"} {
		var count int
		err := db.conn.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?`, table).Scan(&count)
		require.NoError(t, err)
		assert.Equal(t, 1, count, "table %s", table)
	}

	// reopening an existing ledger keeps it usable
	path := db.Path()
	require.NoError(t, db.Close())
	again, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, again.Close())
}

func TestRecordRunRoundTrip(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	started := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, db.RecordRun(ctx, sampleResult("run-1", started)))

	run, err := db.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, "Jane Doe", run.User)
	assert.True(t, run.Commit)
	assert.False(t, run.DryRun)
	assert.Equal(t, 4, run.ObjectsSaved)
	assert.InDelta(t, 0.25, run.FailureRate, 1e-9)
	assert.Equal(t, 90*time.Second, run.Elapsed)
	assert.True(t, run.Started.Equal(started))

	cols, err := db.Collections(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, cols, 2)
	assert.Equal(t, "ddr-test-1", cols[0].Collection)
	assert.Equal(t, "committed", cols[0].CommitStatus)
	assert.Equal(t, 1500*time.Millisecond, cols[0].Elapsed)
	assert.Equal(t, "skipped-failures", cols[1].CommitStatus)
	assert.Empty(t, cols[1].CommitHash)

	failures, err := db.Failures(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, failures, 1)
	assert.Equal(t, pipeline.KindLoad, failures[0].Kind)
	assert.Equal(t, "ddr-test-2-2", failures[0].ID)
}

func TestRecordRunDuplicateRollsBack(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	started := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, db.RecordRun(ctx, sampleResult("run-1", started)))
	require.Error(t, db.RecordRun(ctx, sampleResult("run-1", started)))

	cols, err := db.Collections(ctx, "run-1")
	require.NoError(t, err)
	assert.Len(t, cols, 2)
}

func TestRunsNewestFirst(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		// sub-second offsets check that stored times sort correctly
		started := base.Add(time.Duration(i)*time.Second + time.Duration(i*100)*time.Millisecond)
		require.NoError(t, db.RecordRun(ctx, sampleResult(fmt.Sprintf("run-%d", i), started)))
	}

	runs, err := db.Runs(ctx, 0)
	require.NoError(t, err)
	require.Len(t, runs, 3)
	assert.Equal(t, "run-2", runs[0].ID)
	assert.Equal(t, "run-0", runs[2].ID)

	runs, err = db.Runs(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, runs, 2)
}

func TestGetRunNotFound(t *testing.T) {
	db := openTestDB(t)
	_, err := db.GetRun(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrRunNotFound)
}
