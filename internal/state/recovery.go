package state

import (
	"fmt"
	"os"
	"syscall"
	"time"
)

// InterruptedRuns returns runs still marked Running whose process is gone,
// for example after a crash or SIGKILL.
func (db *DB) InterruptedRuns() ([]Run, error) {
	rows, err := db.Query(`
		SELECT id, command, workspace, status, pid, error_count, resolved_count, started_at, finished_at, report
		FROM runs WHERE status = ? ORDER BY started_at
	`, StatusRunning)
	if err != nil {
		return nil, fmt.Errorf("list running runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		if r.PID == os.Getpid() || isProcessAlive(r.PID) {
			continue
		}
		runs = append(runs, *r)
	}
	return runs, rows.Err()
}

// MarkInterrupted closes out every interrupted run so history stays
// consistent. Returns the number of runs updated.
func (db *DB) MarkInterrupted() (int64, error) {
	runs, err := db.InterruptedRuns()
	if err != nil {
		return 0, err
	}

	now := formatTime(time.Now())
	var count int64
	for _, r := range runs {
		res, err := db.Exec(`
			UPDATE runs SET status = ?, finished_at = ? WHERE id = ? AND status = ?
		`, StatusInterrupted, now, r.ID, StatusRunning)
		if err != nil {
			return count, fmt.Errorf("mark run %s interrupted: %w", r.ID, err)
		}
		n, _ := res.RowsAffected()
		count += n
	}
	return count, nil
}

// isProcessAlive checks if a process with the given PID is still running.
func isProcessAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	// Send signal 0 to check if process exists
	err = process.Signal(syscall.Signal(0))
	return err == nil
}
