// Package journal keeps an append-only audit trail of progress triggers.
//
// Every trigger outcome, applied or skipped, becomes one row in a SQLite
// database under the cache directory. The state files only hold the
// latest 20 milestones per task; the journal is where the full history
// and the reasons for skipped updates end up.
package journal

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// DBFile is the journal database filename inside the data dir.
const DBFile = "journal.db"

// openDB is a package-level var to allow test injection.
var openDB = sql.Open

// newID and timeNow are swapped by tests.
var (
	newID   = uuid.NewString
	timeNow = time.Now
)

// Outcome values.
const (
	OutcomeApplied = "applied"
	OutcomeSkipped = "skipped"
	OutcomeFailed  = "failed"
)

// Entry is one journaled trigger outcome.
type Entry struct {
	ID               string  `json:"id" yaml:"id"`
	ReqID            string  `json:"req_id" yaml:"req_id"`
	TaskID           string  `json:"task_id" yaml:"task_id"`
	Kind             string  `json:"kind" yaml:"kind"`
	Outcome          string  `json:"outcome" yaml:"outcome"`
	Reason           string  `json:"reason,omitempty" yaml:"reason,omitempty"`
	PreviousStatus   string  `json:"previous_status,omitempty" yaml:"previous_status,omitempty"`
	Status           string  `json:"status,omitempty" yaml:"status,omitempty"`
	PreviousProgress float64 `json:"previous_progress" yaml:"previous_progress"`
	Progress         float64 `json:"progress" yaml:"progress"`
	Confidence       float64 `json:"confidence" yaml:"confidence"`
	CreatedAt        string  `json:"created_at" yaml:"created_at"`
}

// Filter narrows Recent. Zero values match everything.
type Filter struct {
	ReqID   string
	TaskID  string
	Outcome string
	Limit   int
}

// Config holds journal configuration.
type Config struct {
	DataDir string
	// MaxResults caps Recent when the filter carries no limit.
	MaxResults int
	// Retain is how many entries Prune keeps.
	Retain int
}

// DefaultConfig returns the default configuration rooted at dataDir.
func DefaultConfig(dataDir string) Config {
	return Config{
		DataDir:    dataDir,
		MaxResults: 50,
		Retain:     5000,
	}
}

// Store is the SQLite-backed journal. It is safe for concurrent use.
type Store struct {
	db  *sql.DB
	cfg Config
}

// New creates the data directory if needed, opens SQLite in WAL mode and
// runs migrations.
func New(cfg Config) (*Store, error) {
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("journal: create data dir: %w", err)
	}

	db, err := openDB("sqlite", filepath.Join(cfg.DataDir, DBFile))
	if err != nil {
		return nil, fmt.Errorf("journal: open database: %w", err)
	}
	// One connection keeps the pragmas below in effect for every statement
	// and serializes writers from concurrent triggers.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("journal: pragma %q: %w", p, err)
		}
	}

	s := &Store{db: db, cfg: cfg}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("journal: migration: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
		CREATE TABLE IF NOT EXISTS entries (
			seq               INTEGER PRIMARY KEY AUTOINCREMENT,
			id                TEXT    NOT NULL UNIQUE,
			req_id            TEXT    NOT NULL,
			task_id           TEXT    NOT NULL,
			kind              TEXT    NOT NULL,
			outcome           TEXT    NOT NULL,
			reason            TEXT    NOT NULL DEFAULT '',
			previous_status   TEXT    NOT NULL DEFAULT '',
			status            TEXT    NOT NULL DEFAULT '',
			previous_progress REAL    NOT NULL DEFAULT 0,
			progress          REAL    NOT NULL DEFAULT 0,
			confidence        REAL    NOT NULL DEFAULT 0,
			created_at        TEXT    NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_entries_task ON entries(req_id, task_id);
		CREATE INDEX IF NOT EXISTS idx_entries_outcome ON entries(outcome);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Record stores e and returns it with ID and CreatedAt filled in.
func (s *Store) Record(e Entry) (Entry, error) {
	if e.ReqID == "" || e.TaskID == "" || e.Kind == "" || e.Outcome == "" {
		return e, fmt.Errorf("journal: requirement, task, kind and outcome are required")
	}
	if e.ID == "" {
		e.ID = newID()
	}
	if e.CreatedAt == "" {
		e.CreatedAt = timeNow().UTC().Format(time.RFC3339)
	}

	_, err := s.db.Exec(
		`INSERT INTO entries (id, req_id, task_id, kind, outcome, reason, previous_status, status,
		                      previous_progress, progress, confidence, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.ReqID, e.TaskID, e.Kind, e.Outcome, e.Reason, e.PreviousStatus, e.Status,
		e.PreviousProgress, e.Progress, e.Confidence, e.CreatedAt,
	)
	if err != nil {
		return e, fmt.Errorf("journal: insert entry: %w", err)
	}
	return e, nil
}

// Recent returns the newest entries matching f, newest first.
func (s *Store) Recent(f Filter) ([]Entry, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = s.cfg.MaxResults
	}

	var where []string
	var args []any
	if f.ReqID != "" {
		where = append(where, "req_id = ?")
		args = append(args, f.ReqID)
	}
	if f.TaskID != "" {
		where = append(where, "task_id = ?")
		args = append(args, f.TaskID)
	}
	if f.Outcome != "" {
		where = append(where, "outcome = ?")
		args = append(args, f.Outcome)
	}

	query := `SELECT id, req_id, task_id, kind, outcome, reason, previous_status, status,
	                 previous_progress, progress, confidence, created_at
	          FROM entries`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY seq DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("journal: query entries: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(
			&e.ID, &e.ReqID, &e.TaskID, &e.Kind, &e.Outcome, &e.Reason, &e.PreviousStatus, &e.Status,
			&e.PreviousProgress, &e.Progress, &e.Confidence, &e.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("journal: scan entry: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Count returns the number of entries per outcome.
func (s *Store) Count() (map[string]int, error) {
	rows, err := s.db.Query(`SELECT outcome, COUNT(*) FROM entries GROUP BY outcome`)
	if err != nil {
		return nil, fmt.Errorf("journal: count entries: %w", err)
	}
	defer func() { _ = rows.Close() }()

	counts := map[string]int{}
	for rows.Next() {
		var outcome string
		var n int
		if err := rows.Scan(&outcome, &n); err != nil {
			return nil, fmt.Errorf("journal: scan count: %w", err)
		}
		counts[outcome] = n
	}
	return counts, rows.Err()
}

// Prune deletes all but the newest cfg.Retain entries and reports how
// many rows were removed. A non-positive Retain disables pruning.
func (s *Store) Prune() (int64, error) {
	if s.cfg.Retain <= 0 {
		return 0, nil
	}
	res, err := s.db.Exec(
		`DELETE FROM entries WHERE seq <= (SELECT COALESCE(MAX(seq), 0) FROM entries) - ?`,
		s.cfg.Retain,
	)
	if err != nil {
		return 0, fmt.Errorf("journal: prune: %w", err)
	}
	return res.RowsAffected()
}
