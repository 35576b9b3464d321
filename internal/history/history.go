// Package history persists bench runs to SQLite so repeated harness
// invocations accumulate a queryable record alongside the CSV
// reports.
package history

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/ledgerbench/ledgerbench/internal/report"
)

// Entry is one persisted bench run.
type Entry struct {
	ID          int64
	StartedAt   time.Time
	TxCount     int
	PackageSize int
	TimeoutMS   int
	ExpectedTxs int
	// Unfound holds per-node unfound counts, indexed by validator id.
	Unfound []int
	// Killed marks which node processes had to be force-killed at
	// teardown, indexed by validator id.
	Killed []bool
}

// Store is a SQLite-backed bench-run history.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the history database at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create history directory: %w", err)
	}

	dsn := fmt.Sprintf("%s?_journal=WAL&_sync=NORMAL", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open history database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect to history database: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate history database: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS bench_runs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		started_at DATETIME NOT NULL,
		tx_count INTEGER NOT NULL,
		package_size INTEGER NOT NULL,
		tx_timeout_ms INTEGER NOT NULL,
		expected_txs INTEGER NOT NULL,
		unfound TEXT NOT NULL,
		killed TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_bench_runs_started_at ON bench_runs(started_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Insert records one finished bench run.
func (s *Store) Insert(run report.BenchRun, killed []bool, startedAt time.Time) error {
	unfoundJSON, err := json.Marshal(run.Unfound)
	if err != nil {
		return err
	}
	killedJSON, err := json.Marshal(killed)
	if err != nil {
		return err
	}

	_, err = s.db.Exec(`
		INSERT INTO bench_runs (started_at, tx_count, package_size, tx_timeout_ms, expected_txs, unfound, killed)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		startedAt, run.TxCount, run.PackageSize, run.TimeoutMS, run.ExpectedTxs(),
		string(unfoundJSON), string(killedJSON),
	)
	if err != nil {
		return fmt.Errorf("insert bench run: %w", err)
	}
	return nil
}

// List returns the most recent bench runs, newest first.
func (s *Store) List(limit int) ([]Entry, error) {
	rows, err := s.db.Query(`
		SELECT id, started_at, tx_count, package_size, tx_timeout_ms, expected_txs, unfound, killed
		FROM bench_runs ORDER BY started_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list bench runs: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var unfoundJSON, killedJSON string
		if err := rows.Scan(&e.ID, &e.StartedAt, &e.TxCount, &e.PackageSize,
			&e.TimeoutMS, &e.ExpectedTxs, &unfoundJSON, &killedJSON); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(unfoundJSON), &e.Unfound); err != nil {
			return nil, fmt.Errorf("bench run %d has corrupt unfound column: %w", e.ID, err)
		}
		if err := json.Unmarshal([]byte(killedJSON), &e.Killed); err != nil {
			return nil, fmt.Errorf("bench run %d has corrupt killed column: %w", e.ID, err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}
