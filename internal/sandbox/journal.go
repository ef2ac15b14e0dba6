package sandbox

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/replbox/replbox/pkg/types"
)

const journalSchema = `
CREATE TABLE IF NOT EXISTS executions (
    seq INTEGER PRIMARY KEY AUTOINCREMENT,
    kind TEXT NOT NULL,
    started_at TEXT NOT NULL,
    duration_ms INTEGER NOT NULL,
    ok INTEGER NOT NULL,
    detail TEXT NOT NULL DEFAULT ''
);
`

// Journal is the per-sandbox SQLite database recording what ran in the
// session. It exists for the lifetime of its sandbox and is removed at
// teardown.
type Journal struct {
	db   *sql.DB
	path string
}

// OpenJournal opens (or creates) the journal database for a sandbox.
func OpenJournal(tmpRoot, sandboxID string) (*Journal, error) {
	if tmpRoot == "" {
		tmpRoot = os.TempDir()
	}
	dbPath := filepath.Join(tmpRoot, "replbox_journal_"+sandboxID+".db")
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	if _, err := db.Exec(journalSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply journal schema: %w", err)
	}
	return &Journal{db: db, path: dbPath}, nil
}

// RecordExecute logs one code execution. For failed user code the detail
// column carries the exception name.
func (j *Journal) RecordExecute(started time.Time, duration time.Duration, rec *types.Execution) error {
	ok := rec.Error == nil
	detail := ""
	if rec.Error != nil {
		detail = rec.Error.Name
	}
	return j.insert("execute", started, duration, ok, detail)
}

// RecordInstall logs one package installation attempt.
func (j *Journal) RecordInstall(started time.Time, duration time.Duration, pkg string, ok bool) error {
	return j.insert("install", started, duration, ok, pkg)
}

func (j *Journal) insert(kind string, started time.Time, duration time.Duration, ok bool, detail string) error {
	okInt := 0
	if ok {
		okInt = 1
	}
	_, err := j.db.Exec(
		`INSERT INTO executions (kind, started_at, duration_ms, ok, detail) VALUES (?, ?, ?, ?, ?)`,
		kind, started.UTC().Format(time.RFC3339Nano), duration.Milliseconds(), okInt, detail)
	if err != nil {
		return fmt.Errorf("record %s: %w", kind, err)
	}
	return nil
}

// List returns every journal row in execution order.
func (j *Journal) List() ([]types.ExecutionSummary, error) {
	rows, err := j.db.Query(
		`SELECT seq, kind, started_at, duration_ms, ok, detail FROM executions ORDER BY seq ASC`)
	if err != nil {
		return nil, fmt.Errorf("query journal: %w", err)
	}
	defer rows.Close()

	summaries := []types.ExecutionSummary{}
	for rows.Next() {
		var s types.ExecutionSummary
		var ok int
		if err := rows.Scan(&s.Seq, &s.Kind, &s.StartedAt, &s.DurationMS, &ok, &s.Detail); err != nil {
			return nil, err
		}
		s.OK = ok != 0
		summaries = append(summaries, s)
	}
	return summaries, rows.Err()
}

// Close closes the database connection.
func (j *Journal) Close() error {
	return j.db.Close()
}

// Remove closes the journal and deletes its files, including the WAL
// side files a non-checkpointed close leaves behind.
func (j *Journal) Remove() error {
	err := j.db.Close()
	for _, p := range []string{j.path, j.path + "-wal", j.path + "-shm"} {
		if rerr := os.Remove(p); rerr != nil && !os.IsNotExist(rerr) && err == nil {
			err = rerr
		}
	}
	return err
}
