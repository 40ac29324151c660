// Package phase defines validation phase results and the escalation fold
// that rolls child statuses up into an aggregate status.
package phase

import (
	"fmt"
	"strings"
)

// Status is the lifecycle state of a phase, tier or aggregate.
type Status int

const (
	NotStarted Status = iota
	Running
	Passed
	Failed
	// Error means the validation logic itself broke, as opposed to Failed,
	// which means validation ran to completion and found a real problem.
	Error
	Skipped
)

// String returns the status name.
func (s Status) String() string {
	switch s {
	case NotStarted:
		return "NotStarted"
	case Running:
		return "Running"
	case Passed:
		return "Passed"
	case Failed:
		return "Failed"
	case Error:
		return "Error"
	case Skipped:
		return "Skipped"
	default:
		return "Unknown"
	}
}

// MarshalText encodes the status by name.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a status name case-insensitively. Unknown names
// are an error and leave s unchanged.
func (s *Status) UnmarshalText(text []byte) error {
	for candidate := NotStarted; candidate <= Skipped; candidate++ {
		if strings.EqualFold(candidate.String(), string(text)) {
			*s = candidate
			return nil
		}
	}
	return fmt.Errorf("unknown status %q", text)
}

// Passing reports whether s should count as success for exit codes.
// Skipped is a neutral absence and never fails a run.
func (s Status) Passing() bool {
	return s == Passed || s == Skipped
}

// rank orders terminal statuses for escalation. Neutral statuses rank 0.
func (s Status) rank() int {
	switch s {
	case Passed:
		return 1
	case Failed:
		return 2
	case Error:
		return 3
	default:
		return 0
	}
}

// Aggregate folds child statuses into a parent status: Error dominates
// Failed dominates Passed. Skipped and NotStarted are neutral; when every
// child is neutral (or there are none) the aggregate is Skipped.
func Aggregate(statuses ...Status) Status {
	worst := Skipped
	for _, s := range statuses {
		if s.rank() > worst.rank() {
			worst = s
		}
	}
	return worst
}
