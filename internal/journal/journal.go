// Package journal keeps an append-only audit trail of status transitions in
// a local SQLite database. It is read by `kano-init status --history` and is
// never consulted to decide where a run resumes.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"kanoinit/internal/logging"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// DefaultPath is where the journal lives on a device.
const DefaultPath = "/var/cache/kano-init/journal.db"

// Transition is one recorded stage change.
type Transition struct {
	ID       int64
	RunID    uuid.UUID
	From     string
	To       string
	Username string
	At       time.Time
}

// Journal appends and lists transitions.
type Journal struct {
	db     *sql.DB
	dbPath string
	mu     sync.Mutex
}

// Open creates or opens the journal at dbPath.
func Open(dbPath string) (*Journal, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}
	db.SetMaxOpenConns(1)

	j := &Journal{db: db, dbPath: dbPath}
	if err := j.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	logging.Journal("journal opened: %s", dbPath)
	return j, nil
}

func (j *Journal) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS transitions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		from_stage TEXT NOT NULL,
		to_stage TEXT NOT NULL,
		username TEXT NOT NULL DEFAULT '',
		at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_transitions_run ON transitions(run_id);
	`
	_, err := j.db.Exec(schema)
	return err
}

// Path returns the database file path.
func (j *Journal) Path() string { return j.dbPath }

// Close closes the database.
func (j *Journal) Close() error {
	return j.db.Close()
}

// Record appends t. A zero At is stamped with the current time.
func (j *Journal) Record(ctx context.Context, t Transition) error {
	if t.At.IsZero() {
		t.At = time.Now()
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	_, err := j.db.ExecContext(ctx,
		`INSERT INTO transitions (run_id, from_stage, to_stage, username, at) VALUES (?, ?, ?, ?, ?)`,
		t.RunID.String(), t.From, t.To, t.Username, t.At.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("recording transition: %w", err)
	}
	logging.Journal("run %s: %s -> %s", t.RunID, t.From, t.To)
	return nil
}

// Recent returns up to limit transitions, newest first.
func (j *Journal) Recent(ctx context.Context, limit int) ([]Transition, error) {
	if limit <= 0 {
		limit = 20
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	rows, err := j.db.QueryContext(ctx,
		`SELECT id, run_id, from_stage, to_stage, username, at FROM transitions ORDER BY id DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying transitions: %w", err)
	}
	defer rows.Close()

	var out []Transition
	for rows.Next() {
		var (
			t     Transition
			runID string
			at    int64
		)
		if err := rows.Scan(&t.ID, &runID, &t.From, &t.To, &t.Username, &at); err != nil {
			return nil, fmt.Errorf("scanning transition: %w", err)
		}
		t.RunID, err = uuid.Parse(runID)
		if err != nil {
			return nil, fmt.Errorf("bad run id %q: %w", runID, err)
		}
		t.At = time.Unix(0, at)
		out = append(out, t)
	}
	return out, rows.Err()
}

// Run tags transitions from one process invocation with a shared id.
type Run struct {
	ID      uuid.UUID
	journal *Journal
}

// NewRun starts a run with a fresh id.
func (j *Journal) NewRun() *Run {
	return &Run{ID: uuid.New(), journal: j}
}

// Record appends a transition under the run's id. Failures are logged and
// swallowed: the journal is an audit trail, not a checkpoint.
func (r *Run) Record(from, to, username string) {
	err := r.journal.Record(context.Background(), Transition{
		RunID:    r.ID,
		From:     from,
		To:       to,
		Username: username,
	})
	if err != nil {
		logging.Get(logging.CategoryJournal).Warn("journal write failed: %v", err)
	}
}
