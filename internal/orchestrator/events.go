package orchestrator

import (
	"time"

	"github.com/ShayCichocki/buildcheck/internal/phase"
)

// EventType represents the type of orchestrator event.
type EventType string

const (
	// EventRunStarted indicates a pipeline run has started.
	EventRunStarted EventType = "run_started"
	// EventPhaseStarted indicates a phase has started.
	EventPhaseStarted EventType = "phase_started"
	// EventPhaseFinished indicates a phase reached a terminal status.
	EventPhaseFinished EventType = "phase_finished"
	// EventResolutionFinished indicates the registry ran over a phase's errors.
	EventResolutionFinished EventType = "resolution_finished"
	// EventRunDone indicates the whole run is complete.
	EventRunDone EventType = "run_done"
)

// Event represents an event emitted by the orchestrator.
// The CLI uses these to print progress while a run is in flight.
type Event struct {
	// Type is the kind of event.
	Type EventType
	// RunID is the run the event belongs to.
	RunID string
	// Phase is the related phase name, if applicable.
	Phase string
	// Status is the phase or overall status for finished events.
	Status phase.Status
	// Errors is the number of errors found by the phase.
	Errors int
	// Resolved is the number of errors resolved (resolution events).
	Resolved int
	// Message provides additional context about the event.
	Message string
	// Timestamp is when the event occurred.
	Timestamp time.Time
	// Duration is the elapsed time for finished events.
	Duration time.Duration
}
