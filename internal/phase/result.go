package phase

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/ShayCichocki/buildcheck/internal/taxonomy"
)

// Result is the outcome of one validation phase.
type Result struct {
	Name      string                `json:"name"`
	Status    Status                `json:"status"`
	Errors    []taxonomy.BuildError `json:"errors,omitempty"`
	Warnings  []string              `json:"warnings,omitempty"`
	StartTime time.Time             `json:"startTime"`
	Duration  time.Duration         `json:"duration"`
}

// AddError records a classified error.
func (r *Result) AddError(errs ...taxonomy.BuildError) {
	r.Errors = append(r.Errors, errs...)
}

// AddWarning records a non-blocking finding.
func (r *Result) AddWarning(format string, args ...any) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

// HasBlockingErrors reports whether any error has severity >= High.
func (r *Result) HasBlockingErrors() bool {
	for _, e := range r.Errors {
		if e.Severity.AtLeast(taxonomy.High) {
			return true
		}
	}
	return false
}

// Func is a phase body. It records findings on r; returning an error (or
// panicking) means the phase itself broke.
type Func func(ctx context.Context, r *Result) error

// Run executes a phase body and settles its terminal status.
func Run(ctx context.Context, name string, fn Func) (result Result) {
	result = Result{
		Name:      name,
		Status:    Running,
		StartTime: time.Now(),
	}
	logger := slog.With("phase", name)
	logger.Debug("phase started")

	defer func() {
		if rec := recover(); rec != nil {
			logger.Error("phase panicked", "panic", rec, "stack", string(debug.Stack()))
			result.AddError(taxonomy.SystemFault(name, fmt.Errorf("panic: %v", rec)))
			result.Status = Error
		}
		result.Duration = time.Since(result.StartTime)
		logger.Info("phase finished",
			"status", result.Status,
			"errors", len(result.Errors),
			"warnings", len(result.Warnings),
			"duration", result.Duration)
	}()

	if err := fn(ctx, &result); err != nil {
		result.AddError(taxonomy.SystemFault(name, err))
		result.Status = Error
		return result
	}

	if result.HasBlockingErrors() {
		result.Status = Failed
	} else {
		result.Status = Passed
	}
	return result
}

// Skip returns a Skipped result for a phase that was not selected.
func Skip(name, reason string) Result {
	r := Result{Name: name, Status: Skipped, StartTime: time.Now()}
	if reason != "" {
		r.Warnings = []string{reason}
	}
	return r
}

// Statuses extracts the statuses of results for Aggregate.
func Statuses(results []Result) []Status {
	out := make([]Status, len(results))
	for i, r := range results {
		out[i] = r.Status
	}
	return out
}
