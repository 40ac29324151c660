package state

import (
	"crypto/rand"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/oklog/ulid/v2"
)

// Run statuses written by the store itself. Finished runs carry the
// overall phase status name (Passed, Failed, Error, Skipped).
const (
	StatusRunning     = "Running"
	StatusInterrupted = "Interrupted"
)

// Run is the persisted summary of one orchestration run.
type Run struct {
	ID            string          `json:"id"`
	Command       string          `json:"command"`
	Workspace     string          `json:"workspace"`
	Status        string          `json:"status"`
	PID           int             `json:"pid"`
	ErrorCount    int             `json:"error_count"`
	ResolvedCount int             `json:"resolved_count"`
	StartedAt     time.Time       `json:"started_at"`
	FinishedAt    *time.Time      `json:"finished_at,omitempty"`
	Report        json.RawMessage `json:"report,omitempty"`
}

// Duration returns how long the run took, or zero while it is still running.
func (r *Run) Duration() time.Duration {
	if r.FinishedAt == nil {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// RunError is one classified error recorded against a run.
type RunError struct {
	ID       string `json:"id"`
	RunID    string `json:"run_id"`
	Phase    string `json:"phase"`
	Category string `json:"category"`
	Severity string `json:"severity"`
	Message  string `json:"message"`
	Resolved bool   `json:"resolved"`
}

// RunFilter narrows ListRuns.
type RunFilter struct {
	Workspace string
	Limit     int
}

// NewID returns a new sortable row ID.
func NewID() string {
	return ulid.MustNew(ulid.Timestamp(time.Now()), rand.Reader).String()
}

// Run CRUD operations

// BeginRun inserts r in the Running state. Missing ID, PID and StartedAt
// are filled in.
func (db *DB) BeginRun(r *Run) error {
	if r.ID == "" {
		r.ID = NewID()
	}
	if r.PID == 0 {
		r.PID = os.Getpid()
	}
	if r.StartedAt.IsZero() {
		r.StartedAt = time.Now()
	}
	r.Status = StatusRunning

	_, err := db.Exec(`
		INSERT INTO runs (id, command, workspace, status, pid, started_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, r.ID, r.Command, r.Workspace, r.Status, r.PID, formatTime(r.StartedAt))
	if err != nil {
		return fmt.Errorf("begin run: %w", err)
	}
	return nil
}

// FinishRun stores the final status, counts, report and errors of a run
// previously started with BeginRun.
func (db *DB) FinishRun(r *Run, errs []RunError) error {
	if r.FinishedAt == nil {
		now := time.Now()
		r.FinishedAt = &now
	}

	return db.Transaction(func(tx *sql.Tx) error {
		res, err := tx.Exec(`
			UPDATE runs SET status = ?, error_count = ?, resolved_count = ?, finished_at = ?, report = ?
			WHERE id = ?
		`, r.Status, r.ErrorCount, r.ResolvedCount, formatTime(*r.FinishedAt), nullableJSON(r.Report), r.ID)
		if err != nil {
			return fmt.Errorf("finish run: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("finish run: run %s not found", r.ID)
		}

		for _, e := range errs {
			if e.ID == "" {
				e.ID = NewID()
			}
			_, err := tx.Exec(`
				INSERT INTO run_errors (id, run_id, phase, category, severity, message, resolved)
				VALUES (?, ?, ?, ?, ?, ?, ?)
			`, e.ID, r.ID, e.Phase, e.Category, e.Severity, e.Message, e.Resolved)
			if err != nil {
				return fmt.Errorf("record run error: %w", err)
			}
		}
		return nil
	})
}

// RecordRun stores a completed run in one call.
func (db *DB) RecordRun(r *Run, errs []RunError) error {
	status := r.Status
	if err := db.BeginRun(r); err != nil {
		return err
	}
	r.Status = status
	return db.FinishRun(r, errs)
}

// GetRun retrieves a run by ID. Returns nil, nil when it does not exist.
func (db *DB) GetRun(id string) (*Run, error) {
	row := db.QueryRow(`
		SELECT id, command, workspace, status, pid, error_count, resolved_count, started_at, finished_at, report
		FROM runs WHERE id = ?
	`, id)

	r, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	return r, nil
}

// ListRuns returns runs newest first.
func (db *DB) ListRuns(filter RunFilter) ([]Run, error) {
	query := `
		SELECT id, command, workspace, status, pid, error_count, resolved_count, started_at, finished_at, report
		FROM runs`
	var args []any
	if filter.Workspace != "" {
		query += " WHERE workspace = ?"
		args = append(args, filter.Workspace)
	}
	query += " ORDER BY started_at DESC, id DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, *r)
	}
	return runs, rows.Err()
}

// RunErrors returns the errors recorded for a run.
func (db *DB) RunErrors(runID string) ([]RunError, error) {
	rows, err := db.Query(`
		SELECT id, run_id, phase, category, severity, message, resolved
		FROM run_errors WHERE run_id = ? ORDER BY id
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("list run errors: %w", err)
	}
	defer rows.Close()

	var errs []RunError
	for rows.Next() {
		var e RunError
		if err := rows.Scan(&e.ID, &e.RunID, &e.Phase, &e.Category, &e.Severity, &e.Message, &e.Resolved); err != nil {
			return nil, fmt.Errorf("scan run error: %w", err)
		}
		errs = append(errs, e)
	}
	return errs, rows.Err()
}

// CategoryTotals counts unresolved errors per category across the last
// limit runs of a workspace.
func (db *DB) CategoryTotals(workspace string, limit int) (map[string]int, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := db.Query(`
		SELECT e.category, COUNT(*)
		FROM run_errors e
		WHERE e.resolved = 0 AND e.run_id IN (
			SELECT id FROM runs WHERE workspace = ? ORDER BY started_at DESC LIMIT ?
		)
		GROUP BY e.category
	`, workspace, limit)
	if err != nil {
		return nil, fmt.Errorf("category totals: %w", err)
	}
	defer rows.Close()

	totals := make(map[string]int)
	for rows.Next() {
		var category string
		var n int
		if err := rows.Scan(&category, &n); err != nil {
			return nil, fmt.Errorf("scan category total: %w", err)
		}
		totals[category] = n
	}
	return totals, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*Run, error) {
	var r Run
	var startedAt string
	var finishedAt, report sql.NullString
	err := row.Scan(&r.ID, &r.Command, &r.Workspace, &r.Status, &r.PID, &r.ErrorCount, &r.ResolvedCount,
		&startedAt, &finishedAt, &report)
	if err != nil {
		return nil, err
	}
	r.StartedAt, _ = parseTime(startedAt)
	r.FinishedAt = parseNullableTime(finishedAt)
	if report.Valid && report.String != "" {
		r.Report = json.RawMessage(report.String)
	}
	return &r, nil
}

func nullableJSON(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}
