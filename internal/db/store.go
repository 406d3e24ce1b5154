package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Store persists runs, their event timeline, and arbitration decisions.
type Store struct {
	db *sql.DB
}

// NewStore creates a store on an open database handle.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// DB returns the underlying database handle.
func (s *Store) DB() *sql.DB {
	return s.db
}

// ErrNotFound is returned when a run id does not exist.
var ErrNotFound = errors.New("run not found")

// RunRecord is one row of the runs table.
type RunRecord struct {
	ID          string
	CreatedAt   string
	UpdatedAt   string
	Story       string
	Status      string
	Attempt     int
	MaxAttempts int
	SourcePath  string
	TestPath    string
	RunDir      string
}

// EventRecord is one row of the run event timeline.
type EventRecord struct {
	Seq       int
	CreatedAt string
	Phase     string
	Message   string
}

// DecisionRecord is one persisted arbitration ruling.
type DecisionRecord struct {
	Attempt   int
	Verdict   string
	Rationale string
	ExitCode  int
	TimedOut  bool
	CreatedAt string
}

// RunUpdate mutates the mutable columns of a run. Nil pointer fields
// leave the stored values untouched.
type RunUpdate struct {
	Status     string
	Attempt    int
	Story      *string
	SourcePath *string
	TestPath   *string
}

// Event is a timeline entry recorded alongside an update.
type Event struct {
	Phase   string
	Message string
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339)
}

// CreateRun inserts the run row and its run_started event in one
// transaction.
func (s *Store) CreateRun(ctx context.Context, rec RunRecord) error {
	ts := now()
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin create run: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO runs(run_id, created_at, updated_at, story, status, attempt, max_attempts, source_path, test_path, run_dir)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, ts, ts, rec.Story, rec.Status, rec.Attempt, rec.MaxAttempts,
		nullableString(rec.SourcePath), nullableString(rec.TestPath), rec.RunDir); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("insert run: %w", err)
	}
	if err := insertEvent(ctx, tx, rec.ID, "generating", "run started"); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit create run: %w", err)
	}
	return nil
}

// UpdateRun applies a run update and an optional timeline event in one
// transaction.
func (s *Store) UpdateRun(ctx context.Context, runID string, update RunUpdate, event *Event) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin update run: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE runs SET status=?, attempt=?, updated_at=?,
		story=COALESCE(?, story),
		source_path=COALESCE(?, source_path), test_path=COALESCE(?, test_path) WHERE run_id=?`,
		update.Status, update.Attempt, now(), nullableStringPtr(update.Story),
		nullableStringPtr(update.SourcePath), nullableStringPtr(update.TestPath), runID); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("update run: %w", err)
	}
	if event != nil {
		if err := insertEvent(ctx, tx, runID, event.Phase, event.Message); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit update run: %w", err)
	}
	return nil
}

// RecordEvent appends one timeline entry.
func (s *Store) RecordEvent(ctx context.Context, runID, phase, message string) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin record event: %w", err)
	}
	if err := insertEvent(ctx, tx, runID, phase, message); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit record event: %w", err)
	}
	return nil
}

// RecordDecision persists one arbitration ruling together with its
// timeline event.
func (s *Store) RecordDecision(ctx context.Context, runID string, d DecisionRecord) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin record decision: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO run_decisions(run_id, attempt, verdict, rationale, exit_code, timed_out, created_at)
		VALUES(?, ?, ?, ?, ?, ?, ?)`,
		runID, d.Attempt, d.Verdict, d.Rationale, d.ExitCode, boolInt(d.TimedOut), now()); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("insert decision: %w", err)
	}
	if err := insertEvent(ctx, tx, runID, "arbitrating", fmt.Sprintf("%s: %s", d.Verdict, d.Rationale)); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit record decision: %w", err)
	}
	return nil
}

// GetRun loads one run row.
func (s *Store) GetRun(ctx context.Context, runID string) (RunRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT run_id, created_at, updated_at, story, status, attempt, max_attempts,
		COALESCE(source_path, ''), COALESCE(test_path, ''), run_dir FROM runs WHERE run_id=?`, runID)
	var rec RunRecord
	err := row.Scan(&rec.ID, &rec.CreatedAt, &rec.UpdatedAt, &rec.Story, &rec.Status,
		&rec.Attempt, &rec.MaxAttempts, &rec.SourcePath, &rec.TestPath, &rec.RunDir)
	if errors.Is(err, sql.ErrNoRows) {
		return RunRecord{}, fmt.Errorf("%w: %s", ErrNotFound, runID)
	}
	if err != nil {
		return RunRecord{}, fmt.Errorf("read run: %w", err)
	}
	return rec, nil
}

// ListRuns returns runs newest first. limit <= 0 means no limit.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	query := `SELECT run_id, created_at, updated_at, story, status, attempt, max_attempts,
		COALESCE(source_path, ''), COALESCE(test_path, ''), run_dir FROM runs ORDER BY created_at DESC, run_id DESC`
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var out []RunRecord
	for rows.Next() {
		var rec RunRecord
		if err := rows.Scan(&rec.ID, &rec.CreatedAt, &rec.UpdatedAt, &rec.Story, &rec.Status,
			&rec.Attempt, &rec.MaxAttempts, &rec.SourcePath, &rec.TestPath, &rec.RunDir); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return out, nil
}

// ListEvents returns the run's timeline in sequence order.
func (s *Store) ListEvents(ctx context.Context, runID string) ([]EventRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT seq, created_at, phase, message FROM run_events WHERE run_id=? ORDER BY seq`, runID)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var out []EventRecord
	for rows.Next() {
		var ev EventRecord
		if err := rows.Scan(&ev.Seq, &ev.CreatedAt, &ev.Phase, &ev.Message); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return out, nil
}

// ListDecisions returns the run's arbitration rulings in attempt order.
func (s *Store) ListDecisions(ctx context.Context, runID string) ([]DecisionRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT attempt, verdict, rationale, exit_code, timed_out, created_at
		FROM run_decisions WHERE run_id=? ORDER BY attempt, id`, runID)
	if err != nil {
		return nil, fmt.Errorf("list decisions: %w", err)
	}
	defer rows.Close()

	var out []DecisionRecord
	for rows.Next() {
		var d DecisionRecord
		var timedOut int
		if err := rows.Scan(&d.Attempt, &d.Verdict, &d.Rationale, &d.ExitCode, &timedOut, &d.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan decision: %w", err)
		}
		d.TimedOut = timedOut != 0
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate decisions: %w", err)
	}
	return out, nil
}

// DeleteRun removes a run row; events and decisions cascade.
func (s *Store) DeleteRun(ctx context.Context, runID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM runs WHERE run_id=?`, runID); err != nil {
		return fmt.Errorf("delete run: %w", err)
	}
	return nil
}

// PurgeRuns removes every run row; events and decisions cascade.
func (s *Store) PurgeRuns(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM runs`); err != nil {
		return fmt.Errorf("purge runs: %w", err)
	}
	return nil
}

func insertEvent(ctx context.Context, tx *sql.Tx, runID, phase, message string) error {
	var seq int
	row := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), 0) FROM run_events WHERE run_id=?`, runID)
	if err := row.Scan(&seq); err != nil {
		return fmt.Errorf("read event seq: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO run_events(run_id, seq, created_at, phase, message) VALUES(?, ?, ?, ?, ?)`,
		runID, seq+1, now(), phase, message); err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nullableStringPtr(value *string) any {
	if value == nil {
		return nil
	}
	return *value
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
