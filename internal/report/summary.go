package report

import (
	"fmt"
	"time"

	"github.com/fatih/color"

	"github.com/ShayCichocki/buildcheck/internal/health"
	"github.com/ShayCichocki/buildcheck/internal/phase"
	"github.com/ShayCichocki/buildcheck/internal/resolve"
	"github.com/ShayCichocki/buildcheck/internal/state"
)

// Health prints one line per probed target.
func (p *Printer) Health(rep *health.Report) {
	fmt.Fprintln(p.w, p.title.Render("Health checks"))
	if len(rep.Results) == 0 {
		fmt.Fprintln(p.w, p.muted.Render("  no endpoints configured"))
		return
	}
	for _, r := range rep.Results {
		status := phase.Passed
		if !r.Healthy {
			status = phase.Failed
		}
		detail := fmt.Sprintf("%s  %s", r.Target.Endpoint, FormatDuration(r.Latency))
		if r.StatusCode != 0 {
			detail += fmt.Sprintf("  HTTP %d", r.StatusCode)
		}
		if r.Attempts > 1 {
			detail += fmt.Sprintf("  %d attempts", r.Attempts)
		}
		fmt.Fprintf(p.w, "  %s %s %s\n", StatusSymbol(status), p.name.Render(r.Target.Name), p.muted.Render(detail))
		if r.Error != nil {
			p.errorLine("      ", *r.Error)
		}
	}
}

// Diagnosis prints the classified log errors and the resolution outcome.
func (p *Printer) Diagnosis(d resolve.Diagnosis) {
	fmt.Fprintln(p.w, p.title.Render("Build log diagnosis"))
	if len(d.Errors) == 0 {
		fmt.Fprintln(p.w, p.muted.Render("  no error lines found"))
	}
	for _, e := range d.Errors {
		p.errorLine("  ", e)
	}
	if d.Resolution != nil {
		if p.verbose {
			p.actions(d.Resolution)
		}
		for _, e := range d.Resolution.Unresolved() {
			fmt.Fprintf(p.w, "  %s %s\n", p.label.Render("unresolved:"), e.Message)
		}
	}

	fmt.Fprintln(p.w)
	msg := fmt.Sprintf("success rate %.0f%% (threshold %.0f%%)", d.SuccessRate*100, d.Threshold*100)
	if d.Success {
		p.PrintStatus("✓", msg, color.FgGreen)
	} else {
		p.PrintStatus("✗", msg, color.FgRed)
	}
}

// History prints a table of recorded runs, newest first.
func (p *Printer) History(runs []state.Run, now time.Time) {
	if len(runs) == 0 {
		fmt.Fprintln(p.w, "No recorded runs. Run 'buildcheck validate' to record one.")
		return
	}
	fmt.Fprintln(p.w, p.title.Render("Recent runs"))
	for _, r := range runs {
		status := runStatus(r.Status)
		fmt.Fprintf(p.w, "  %s %s %-12s %-11s %s  %s\n",
			StatusSymbol(status),
			r.ID,
			r.Command,
			r.Status,
			p.muted.Render(fmt.Sprintf("%s, %d resolved", plural(r.ErrorCount, "error"), r.ResolvedCount)),
			p.label.Render(FormatAge(r.StartedAt, now)))
	}
}

// RunDetail prints one recorded run and its errors.
func (p *Printer) RunDetail(r *state.Run, errs []state.RunError) {
	fmt.Fprintf(p.w, "%s %s\n", p.title.Render("Run"), r.ID)
	fmt.Fprintf(p.w, "  %s %s\n", p.label.Render("Command:  "), r.Command)
	fmt.Fprintf(p.w, "  %s %s\n", p.label.Render("Workspace:"), r.Workspace)
	fmt.Fprintf(p.w, "  %s %s %s\n", p.label.Render("Status:   "), StatusSymbol(runStatus(r.Status)), r.Status)
	fmt.Fprintf(p.w, "  %s %s\n", p.label.Render("Started:  "), r.StartedAt.Format(time.RFC3339))
	if r.FinishedAt != nil {
		fmt.Fprintf(p.w, "  %s %s\n", p.label.Render("Duration: "), FormatDuration(r.Duration()))
	}
	if len(errs) == 0 {
		return
	}
	fmt.Fprintln(p.w)
	for _, e := range errs {
		mark := color.RedString("✗")
		if e.Resolved {
			mark = color.GreenString("✓")
		}
		fmt.Fprintf(p.w, "  %s %-22s [%s/%s] %s\n", mark, e.Phase, e.Category, e.Severity, e.Message)
	}
}

// Setting is one configuration key shown by the config command.
type Setting struct {
	Key    string
	Value  any
	Source string
}

// Settings prints configuration keys with their value and source.
func (p *Printer) Settings(settings []Setting) {
	for _, s := range settings {
		fmt.Fprintf(p.w, "%s = %v %s\n", s.Key, s.Value, p.muted.Render("("+s.Source+")"))
	}
}

// runStatus maps a stored run status onto a phase status for display.
// Running and Interrupted runs have no terminal phase status.
func runStatus(s string) phase.Status {
	var st phase.Status
	if err := st.UnmarshalText([]byte(s)); err != nil {
		return phase.NotStarted
	}
	return st
}
