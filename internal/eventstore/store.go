package eventstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/loqalabs/loqa-callsynth/internal/config"
	"github.com/loqalabs/loqa-callsynth/internal/logging"
	_ "modernc.org/sqlite"
)

// Run statuses.
const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Run event types.
const (
	EventRunStarted    = "run.started"
	EventTurnScheduled = "turn.scheduled"
	EventRunCompleted  = "run.completed"
	EventRunFailed     = "run.failed"
)

// ErrRunNotFound is returned by GetRun for unknown run ids.
var ErrRunNotFound = errors.New("run not found")

// Run is one call assembly.
type Run struct {
	ID         string
	RequestID  string
	Language   string
	Turns      int
	Status     string
	Artifact   string
	Duration   float64
	Error      string
	CreatedAt  time.Time
	FinishedAt time.Time
}

// RunEvent is a timestamped entry in a run's ledger.
type RunEvent struct {
	ID        int64
	RunID     string
	Type      string
	Payload   []byte
	CreatedAt time.Time
}

// Outcome closes a run.
type Outcome struct {
	RunID    string
	Status   string
	Artifact string
	Duration float64
	Error    string
}

// Store wraps a SQLite-backed run ledger.
type Store struct {
	db    *sql.DB
	cfg   config.EventStoreConfig
	log   *slog.Logger
	clock func() time.Time
}

// Open initializes the store according to config.
func Open(ctx context.Context, cfg config.EventStoreConfig, log *slog.Logger) (*Store, error) {
	if cfg.RetentionMode == "ephemeral" {
		return &Store{cfg: cfg, log: log, clock: time.Now}, nil
	}

	dir := filepath.Dir(cfg.Path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)&_pragma=busy_timeout(5000)", cfg.Path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	s := &Store{db: db, cfg: cfg, log: log, clock: time.Now}

	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}

	if cfg.VacuumOnStart {
		if err := s.vacuum(ctx); err != nil {
			log.Warn("event store vacuum failed", logging.Err(err))
		}
	}

	if err := s.Prune(ctx); err != nil {
		log.Warn("event store prune on start failed", logging.Err(err))
	}

	return s, nil
}

// Timestamps are unix milliseconds so retention comparisons stay numeric.
func (s *Store) initSchema(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	ddl := `
CREATE TABLE IF NOT EXISTS runs (
    run_id TEXT PRIMARY KEY,
    request_id TEXT,
    language TEXT,
    turns INTEGER NOT NULL DEFAULT 0,
    status TEXT NOT NULL,
    artifact TEXT,
    duration_seconds REAL NOT NULL DEFAULT 0,
    error TEXT,
    created_at INTEGER NOT NULL,
    finished_at INTEGER
);
CREATE TABLE IF NOT EXISTS run_events (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    run_id TEXT NOT NULL,
    event_type TEXT NOT NULL,
    payload BLOB,
    created_at INTEGER NOT NULL,
    FOREIGN KEY(run_id) REFERENCES runs(run_id) ON DELETE CASCADE
);
CREATE INDEX IF NOT EXISTS idx_run_events_run ON run_events(run_id, id);
CREATE INDEX IF NOT EXISTS idx_runs_created ON runs(created_at);
`
	_, err := s.db.ExecContext(ctx, ddl)
	return err
}

func (s *Store) vacuum(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	_, err := s.db.ExecContext(ctx, "VACUUM")
	return err
}

func (s *Store) disabled() bool {
	return s == nil || s.cfg.RetentionMode == "ephemeral" || s.db == nil
}

// Close releases underlying resources.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// StartRun inserts the run row in running state.
func (s *Store) StartRun(ctx context.Context, run Run) error {
	if s.disabled() {
		return nil
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = s.clock()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs(run_id, request_id, language, turns, status, created_at)
		 VALUES(?, ?, ?, ?, ?, ?)`,
		run.ID, run.RequestID, run.Language, run.Turns, StatusRunning, run.CreatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("insert run %s: %w", run.ID, err)
	}
	return nil
}

// AppendRunEvent writes an event into a run's ledger.
func (s *Store) AppendRunEvent(ctx context.Context, evt RunEvent) error {
	if s.disabled() {
		return nil
	}
	if evt.CreatedAt.IsZero() {
		evt.CreatedAt = s.clock()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO run_events(run_id, event_type, payload, created_at) VALUES(?, ?, ?, ?)`,
		evt.RunID, evt.Type, evt.Payload, evt.CreatedAt.UnixMilli())
	return err
}

// FinishRun records the outcome of a run.
func (s *Store) FinishRun(ctx context.Context, out Outcome) error {
	if s.disabled() {
		return nil
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, artifact = ?, duration_seconds = ?, error = ?, finished_at = ? WHERE run_id = ?`,
		out.Status, out.Artifact, out.Duration, out.Error, s.clock().UnixMilli(), out.RunID)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("finish run %s: %w", out.RunID, ErrRunNotFound)
	}
	return nil
}

const runColumns = `run_id, COALESCE(request_id, ''), COALESCE(language, ''), turns, status,
	COALESCE(artifact, ''), duration_seconds, COALESCE(error, ''), created_at, COALESCE(finished_at, 0)`

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (Run, error) {
	var r Run
	var created, finished int64
	if err := row.Scan(&r.ID, &r.RequestID, &r.Language, &r.Turns, &r.Status, &r.Artifact, &r.Duration, &r.Error, &created, &finished); err != nil {
		return Run{}, err
	}
	r.CreatedAt = time.UnixMilli(created).UTC()
	if finished > 0 {
		r.FinishedAt = time.UnixMilli(finished).UTC()
	}
	return r, nil
}

// GetRun loads a single run.
func (s *Store) GetRun(ctx context.Context, runID string) (Run, error) {
	if s.disabled() {
		return Run{}, ErrRunNotFound
	}
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE run_id = ?`, runID)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, ErrRunNotFound
	}
	return r, err
}

// ListRuns returns up to limit runs, newest first.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if s.disabled() {
		return nil, nil
	}
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `SELECT `+runColumns+` FROM runs ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// ListRunEvents retrieves up to limit events for a run in insertion order.
func (s *Store) ListRunEvents(ctx context.Context, runID string, limit int) ([]RunEvent, error) {
	if s.disabled() {
		return nil, nil
	}
	if limit <= 0 {
		limit = 1000
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, run_id, event_type, payload, created_at
		 FROM run_events WHERE run_id = ? ORDER BY id ASC LIMIT ?`, runID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []RunEvent
	for rows.Next() {
		var e RunEvent
		var created int64
		if err := rows.Scan(&e.ID, &e.RunID, &e.Type, &e.Payload, &created); err != nil {
			return nil, err
		}
		e.CreatedAt = time.UnixMilli(created).UTC()
		events = append(events, e)
	}
	return events, rows.Err()
}

// Prune applies configured retention (called on startup and can be scheduled).
func (s *Store) Prune(ctx context.Context) (err error) {
	if s.disabled() {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	if s.cfg.RetentionDays > 0 {
		cutoff := s.clock().Add(-time.Duration(s.cfg.RetentionDays) * 24 * time.Hour).UnixMilli()
		if _, err = tx.ExecContext(ctx, `DELETE FROM run_events WHERE run_id IN (SELECT run_id FROM runs WHERE created_at < ?)`, cutoff); err != nil {
			return err
		}
		if _, err = tx.ExecContext(ctx, `DELETE FROM runs WHERE created_at < ?`, cutoff); err != nil {
			return err
		}
	}
	if s.cfg.MaxRuns > 0 {
		keep := `SELECT run_id FROM runs ORDER BY created_at DESC, rowid DESC LIMIT ?`
		if _, err = tx.ExecContext(ctx, `DELETE FROM run_events WHERE run_id NOT IN (`+keep+`)`, s.cfg.MaxRuns); err != nil {
			return err
		}
		if _, err = tx.ExecContext(ctx, `DELETE FROM runs WHERE run_id NOT IN (`+keep+`)`, s.cfg.MaxRuns); err != nil {
			return err
		}
	}
	err = tx.Commit()
	return err
}

// Ensure checks the store's mode matches its connection state.
func (s *Store) Ensure() error {
	if s.cfg.RetentionMode == "ephemeral" && s.db != nil {
		return errors.New("ephemeral store should not have database connection")
	}
	return nil
}
