package orchestrator

import (
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/ShayCichocki/buildcheck/internal/state"
)

// beginHistory records the start of a run. History is best effort: a store
// failure is logged and the run continues unrecorded.
func (o *Orchestrator) beginHistory(result *BuildValidationResult) *state.Run {
	if o.store == nil {
		return nil
	}
	command := o.command
	if command == "" {
		names := make([]string, len(result.Targets))
		for i, t := range result.Targets {
			names[i] = string(t)
		}
		command = strings.Join(names, ",")
	}

	r := &state.Run{
		ID:        result.RunID,
		Command:   command,
		Workspace: result.Workspace,
		StartedAt: result.StartTime,
	}
	if err := o.store.BeginRun(r); err != nil {
		slog.Warn("failed to record run start", "run", result.RunID, "err", err)
		return nil
	}
	return r
}

func (o *Orchestrator) finishHistory(r *state.Run, result *BuildValidationResult) {
	if r == nil {
		return
	}
	resolved := result.ResolvedIDs()

	var errs []state.RunError
	for _, p := range result.Phases {
		for _, e := range p.Errors {
			errs = append(errs, state.RunError{
				Phase:    p.Name,
				Category: e.Category.String(),
				Severity: e.Severity.String(),
				Message:  e.Message,
				Resolved: resolved[e.ID],
			})
		}
	}

	finished := result.StartTime.Add(result.Duration)
	r.Status = result.OverallStatus().String()
	r.ErrorCount = len(errs)
	r.ResolvedCount = result.ResolvedCount()
	r.FinishedAt = &finished

	report, err := json.Marshal(result)
	if err != nil {
		slog.Warn("failed to encode run report", "run", r.ID, "err", err)
	} else {
		r.Report = report
	}
	if err := o.store.FinishRun(r, errs); err != nil {
		slog.Warn("failed to record run result", "run", r.ID, "err", err)
	}
}
