package state

import "io"

// RunStore handles run history persistence.
type RunStore interface {
	BeginRun(r *Run) error
	FinishRun(r *Run, errs []RunError) error
	GetRun(id string) (*Run, error)
	ListRuns(filter RunFilter) ([]Run, error)
	RunErrors(runID string) ([]RunError, error)
}

// Migrator handles database schema migrations.
type Migrator interface {
	// Migrate applies all pending schema migrations.
	Migrate() error
}

// Store is the full history backend used by the CLI.
type Store interface {
	io.Closer
	Migrator
	RunStore
}

// Compile-time verification that DB implements all interfaces.
var (
	_ Store    = (*DB)(nil)
	_ Migrator = (*DB)(nil)
	_ RunStore = (*DB)(nil)
)
