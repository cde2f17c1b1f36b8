package history

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/mineops/walletback/internal/backup"
)

// Store persists backup run history in a local sqlite database.
type Store struct {
	db *sql.DB
}

// Open opens (creating if necessary) the history database at dbPath.
func Open(dbPath string) (*Store, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create history directory: %w", err)
	}

	dsn, err := buildSQLiteDSN(dbPath)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}

	// A backup run writes from one goroutine; no need for a pool.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping history database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, err
	}

	return store, nil
}

func buildSQLiteDSN(dbPath string) (string, error) {
	absPath, err := filepath.Abs(dbPath)
	if err != nil {
		return "", fmt.Errorf("failed to resolve history path: %w", err)
	}

	// Ensure forward slashes for the SQLite file URI
	absPath = strings.ReplaceAll(absPath, "\\", "/")

	// Apply pragmas on every connection
	return fmt.Sprintf("file:%s?_pragma=foreign_keys(ON)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)", absPath), nil
}

func (s *Store) migrate() error {
	schema := `
CREATE TABLE IF NOT EXISTS runs (
	id            TEXT PRIMARY KEY,
	started_at    INTEGER NOT NULL,
	duration_ms   INTEGER NOT NULL,
	archive       TEXT NOT NULL DEFAULT '',
	archive_bytes INTEGER NOT NULL DEFAULT 0,
	succeeded     INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS host_results (
	run_id      TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	position    INTEGER NOT NULL,
	host        TEXT NOT NULL,
	succeeded   INTEGER NOT NULL,
	error       TEXT NOT NULL DEFAULT '',
	duration_ms INTEGER NOT NULL,
	PRIMARY KEY (run_id, position)
);
CREATE INDEX IF NOT EXISTS idx_host_results_host ON host_results(host);
`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create history schema: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// RecordRun persists one backup report and its per-host results.
func (s *Store) RecordRun(report *backup.Report) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin history transaction: %w", err)
	}
	defer tx.Rollback()

	var archiveName string
	var archiveBytes int64
	if report.Archive != nil {
		archiveName = report.Archive.Filename
		archiveBytes = report.Archive.SizeBytes
	}

	_, err = tx.Exec(
		`INSERT INTO runs (id, started_at, duration_ms, archive, archive_bytes, succeeded) VALUES (?, ?, ?, ?, ?, ?)`,
		report.RunID,
		report.StartedAt.Unix(),
		report.Duration.Milliseconds(),
		archiveName,
		archiveBytes,
		boolInt(report.Succeeded()),
	)
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}

	results := report.Results
	if report.Mirror != nil {
		results = append(append([]backup.HostResult{}, results...), *report.Mirror)
	}

	for i, result := range results {
		errText := ""
		if result.Err != nil {
			errText = result.Err.Error()
		}

		_, err = tx.Exec(
			`INSERT INTO host_results (run_id, position, host, succeeded, error, duration_ms) VALUES (?, ?, ?, ?, ?, ?)`,
			report.RunID, i, result.Host, boolInt(result.Succeeded), errText, result.Duration.Milliseconds(),
		)
		if err != nil {
			return fmt.Errorf("failed to insert host result: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit history transaction: %w", err)
	}
	return nil
}

// Run is one recorded backup run.
type Run struct {
	ID           string
	StartedAt    int64 // Unix timestamp
	DurationMS   int64
	Archive      string
	ArchiveBytes int64
	Succeeded    bool
}

// ListRuns returns the most recent runs, newest first.
func (s *Store) ListRuns(limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.Query(
		`SELECT id, started_at, duration_ms, archive, archive_bytes, succeeded FROM runs ORDER BY started_at DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var run Run
		var succeeded int
		if err := rows.Scan(&run.ID, &run.StartedAt, &run.DurationMS, &run.Archive, &run.ArchiveBytes, &succeeded); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		run.Succeeded = succeeded != 0
		runs = append(runs, run)
	}

	return runs, rows.Err()
}

// HostOutcome is one recorded per-host result.
type HostOutcome struct {
	Host       string
	Succeeded  bool
	Error      string
	DurationMS int64
}

// RunResults returns the per-host outcomes of one run in dispatch order.
func (s *Store) RunResults(runID string) ([]HostOutcome, error) {
	rows, err := s.db.Query(
		`SELECT host, succeeded, error, duration_ms FROM host_results WHERE run_id = ? ORDER BY position`,
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query host results: %w", err)
	}
	defer rows.Close()

	var outcomes []HostOutcome
	for rows.Next() {
		var outcome HostOutcome
		var succeeded int
		if err := rows.Scan(&outcome.Host, &succeeded, &outcome.Error, &outcome.DurationMS); err != nil {
			return nil, fmt.Errorf("failed to scan host result: %w", err)
		}
		outcome.Succeeded = succeeded != 0
		outcomes = append(outcomes, outcome)
	}

	return outcomes, rows.Err()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
