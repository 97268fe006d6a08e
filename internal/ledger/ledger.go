// Package ledger keeps an audit trail of batch runs in an embedded SQLite
// database.
//
// Each run is one row in runs, with one row per collection in collections
// and one row per failed object or collection in failures. The database
// uses WAL mode so that `ddr runs` can read while a batch writes.
package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/CamJohns/ddr-cmdln/internal/batch"
	"github.com/CamJohns/ddr-cmdln/internal/pipeline"
)

// ErrRunNotFound is returned when a run id is not in the ledger.
var ErrRunNotFound = errors.New("run not found")

// timeLayout has a fixed width so that stored times sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// DB is an open ledger.
type DB struct {
	conn *sql.DB
	path string
}

// Open opens or creates the ledger at path and ensures its schema.
//
// The caller must call Close when done.
func Open(path string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create ledger directory: %w", err)
	}

	conn, err := sql.Open("sqlite3", "file:"+path)
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger: %w", err)
	}
	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping ledger: %w", err)
	}
	conn.SetMaxOpenConns(4)

	db := &DB{conn: conn, path: path}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := conn.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}
	if err := db.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// Path returns the database file path.
func (db *DB) Path() string {
	return db.path
}

// Close checkpoints the WAL and closes the database.
func (db *DB) Close() error {
	if db.conn == nil {
		return nil
	}
	_, _ = db.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	if err := db.conn.Close(); err != nil {
		return fmt.Errorf("failed to close ledger: %w", err)
	}
	db.conn = nil
	return nil
}

func (db *DB) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		started TEXT NOT NULL,
		finished TEXT NOT NULL,
		user TEXT,
		mail TEXT,
		commit_requested INTEGER NOT NULL DEFAULT 0,
		dry_run INTEGER NOT NULL DEFAULT 0,
		keep INTEGER NOT NULL DEFAULT 0,
		transforms TEXT NOT NULL DEFAULT '',
		collections_attempted INTEGER NOT NULL DEFAULT 0,
		collections_succeeded INTEGER NOT NULL DEFAULT 0,
		collections_committed INTEGER NOT NULL DEFAULT 0,
		objects_attempted INTEGER NOT NULL DEFAULT 0,
		objects_saved INTEGER NOT NULL DEFAULT 0,
		objects_failed INTEGER NOT NULL DEFAULT 0,
		files_updated INTEGER NOT NULL DEFAULT 0,
		failure_rate REAL NOT NULL DEFAULT 0,
		elapsed_ms INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS collections (
		run_id TEXT NOT NULL,
		position INTEGER NOT NULL,
		collection TEXT NOT NULL,
		acquired INTEGER NOT NULL DEFAULT 0,
		error TEXT,
		attempted INTEGER NOT NULL DEFAULT 0,
		saved INTEGER NOT NULL DEFAULT 0,
		failed INTEGER NOT NULL DEFAULT 0,
		skipped INTEGER NOT NULL DEFAULT 0,
		files_updated INTEGER NOT NULL DEFAULT 0,
		commit_status TEXT NOT NULL,
		commit_message TEXT,
		commit_hash TEXT,
		elapsed_ms INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (run_id, position),
		FOREIGN KEY (run_id) REFERENCES runs(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS failures (
		run_id TEXT NOT NULL,
		collection TEXT NOT NULL,
		object_id TEXT,
		kind TEXT,
		error TEXT NOT NULL,
		FOREIGN KEY (run_id) REFERENCES runs(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started);
	CREATE INDEX IF NOT EXISTS idx_collections_name ON collections(collection);
	CREATE INDEX IF NOT EXISTS idx_failures_run ON failures(run_id);
	`
	if _, err := db.conn.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to initialize ledger schema: %w", err)
	}
	return nil
}

// RecordRun stores a finalised batch result in one transaction.
func (db *DB) RecordRun(ctx context.Context, r *batch.Result) (err error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	_, err = tx.ExecContext(ctx, `
	INSERT INTO runs (
		id, started, finished, user, mail, commit_requested, dry_run, keep,
		transforms, collections_attempted, collections_succeeded,
		collections_committed, objects_attempted, objects_saved,
		objects_failed, files_updated, failure_rate, elapsed_ms
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.RunID,
		r.Started.UTC().Format(timeLayout),
		r.Finished.UTC().Format(timeLayout),
		r.Identity.User,
		r.Identity.Mail,
		r.Commit,
		r.DryRun,
		r.Keep,
		r.Transform,
		r.CollectionsAttempted,
		r.CollectionsSucceeded,
		r.CollectionsCommitted,
		r.ObjectsAttempted,
		r.ObjectsSaved,
		r.ObjectsFailed,
		r.FilesUpdated,
		r.FailureRate,
		r.Elapsed.Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert run %s: %w", r.RunID, err)
	}

	for i, c := range r.Collections {
		_, err = tx.ExecContext(ctx, `
		INSERT INTO collections (
			run_id, position, collection, acquired, error, attempted, saved,
			failed, skipped, files_updated, commit_status, commit_message,
			commit_hash, elapsed_ms
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			r.RunID, i, c.Collection, c.Acquired, nullString(c.Error),
			c.Attempted, c.Saved, c.Failed, c.Skipped, c.FilesUpdated,
			string(c.Commit), nullString(c.CommitMessage), nullString(c.CommitHash),
			c.Elapsed.Milliseconds(),
		)
		if err != nil {
			return fmt.Errorf("failed to insert collection %s: %w", c.Collection, err)
		}
	}

	for _, f := range r.Failures {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO failures (run_id, collection, object_id, kind, error) VALUES (?, ?, ?, ?, ?)`,
			r.RunID, f.Collection, nullString(f.ID), nullString(string(f.Kind)), f.Error,
		)
		if err != nil {
			return fmt.Errorf("failed to insert failure for %s: %w", f.Collection, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit run %s: %w", r.RunID, err)
	}
	return nil
}

// Run is a stored run summary.
type Run struct {
	ID                   string
	Started              time.Time
	Finished             time.Time
	User                 string
	Mail                 string
	Commit               bool
	DryRun               bool
	Transforms           string
	CollectionsAttempted int
	CollectionsSucceeded int
	CollectionsCommitted int
	ObjectsAttempted     int
	ObjectsSaved         int
	ObjectsFailed        int
	FilesUpdated         int
	FailureRate          float64
	Elapsed              time.Duration
}

const runColumns = `
	id, started, finished, user, mail, commit_requested, dry_run, transforms,
	collections_attempted, collections_succeeded, collections_committed,
	objects_attempted, objects_saved, objects_failed, files_updated,
	failure_rate, elapsed_ms`

// Runs returns the most recent runs, newest first. A limit of zero or
// less returns every run.
func (db *DB) Runs(ctx context.Context, limit int) ([]Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs ORDER BY started DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate runs: %w", err)
	}
	return runs, nil
}

// GetRun returns one run by id.
func (db *DB) GetRun(ctx context.Context, id string) (*Run, error) {
	row := db.conn.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return &run, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(s scanner) (Run, error) {
	var (
		run               Run
		started, finished string
		user, mail        sql.NullString
		elapsedMs         int64
	)
	err := s.Scan(
		&run.ID, &started, &finished, &user, &mail, &run.Commit, &run.DryRun,
		&run.Transforms, &run.CollectionsAttempted, &run.CollectionsSucceeded,
		&run.CollectionsCommitted, &run.ObjectsAttempted, &run.ObjectsSaved,
		&run.ObjectsFailed, &run.FilesUpdated, &run.FailureRate, &elapsedMs,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return run, err
		}
		return run, fmt.Errorf("failed to scan run: %w", err)
	}
	run.User = user.String
	run.Mail = mail.String
	run.Elapsed = time.Duration(elapsedMs) * time.Millisecond
	if run.Started, err = time.Parse(timeLayout, started); err != nil {
		return run, fmt.Errorf("run %s: bad started time: %w", run.ID, err)
	}
	if run.Finished, err = time.Parse(timeLayout, finished); err != nil {
		return run, fmt.Errorf("run %s: bad finished time: %w", run.ID, err)
	}
	return run, nil
}

// Collection is a stored collection outcome.
type Collection struct {
	Collection    string
	Acquired      bool
	Error         string
	Attempted     int
	Saved         int
	Failed        int
	Skipped       int
	FilesUpdated  int
	CommitStatus  string
	CommitMessage string
	CommitHash    string
	Elapsed       time.Duration
}

// Collections returns the collections of a run in processing order.
func (db *DB) Collections(ctx context.Context, runID string) ([]Collection, error) {
	rows, err := db.conn.QueryContext(ctx, `
	SELECT collection, acquired, error, attempted, saved, failed, skipped,
		files_updated, commit_status, commit_message, commit_hash, elapsed_ms
	FROM collections WHERE run_id = ? ORDER BY position`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query collections: %w", err)
	}
	defer rows.Close()

	var out []Collection
	for rows.Next() {
		var (
			c               Collection
			cerr, msg, hash sql.NullString
			elapsedMs       int64
		)
		if err := rows.Scan(&c.Collection, &c.Acquired, &cerr, &c.Attempted, &c.Saved,
			&c.Failed, &c.Skipped, &c.FilesUpdated, &c.CommitStatus, &msg, &hash, &elapsedMs); err != nil {
			return nil, fmt.Errorf("failed to scan collection: %w", err)
		}
		c.Error = cerr.String
		c.CommitMessage = msg.String
		c.CommitHash = hash.String
		c.Elapsed = time.Duration(elapsedMs) * time.Millisecond
		out = append(out, c)
	}
	return out, rows.Err()
}

// Failures returns the failures recorded for a run.
func (db *DB) Failures(ctx context.Context, runID string) ([]batch.Failure, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT collection, object_id, kind, error FROM failures WHERE run_id = ? ORDER BY rowid`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query failures: %w", err)
	}
	defer rows.Close()

	var out []batch.Failure
	for rows.Next() {
		var (
			f        batch.Failure
			id, kind sql.NullString
		)
		if err := rows.Scan(&f.Collection, &id, &kind, &f.Error); err != nil {
			return nil, fmt.Errorf("failed to scan failure: %w", err)
		}
		f.ID = id.String
		f.Kind = pipeline.ErrorKind(kind.String)
		out = append(out, f)
	}
	return out, rows.Err()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
