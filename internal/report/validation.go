package report

import (
	"fmt"
	"strings"

	"github.com/ShayCichocki/buildcheck/internal/orchestrator"
	"github.com/ShayCichocki/buildcheck/internal/phase"
	"github.com/ShayCichocki/buildcheck/internal/resolve"
)

// maxErrorsShown bounds the errors listed per phase in non-verbose mode.
const maxErrorsShown = 10

// Validation prints a full run result: one line per phase, its errors and
// warnings, and an overall summary.
func (p *Printer) Validation(res *orchestrator.BuildValidationResult) {
	targets := make([]string, len(res.Targets))
	for i, t := range res.Targets {
		targets[i] = string(t)
	}
	fmt.Fprintln(p.w, p.title.Render("Build validation")+" "+res.Workspace)
	fmt.Fprintln(p.w, p.label.Render(fmt.Sprintf("run %s  targets %s", res.RunID, strings.Join(targets, ","))))
	fmt.Fprintln(p.w)

	for _, ph := range res.Phases {
		p.phaseLine(ph)
		if ph.Status == phase.Skipped && len(ph.Errors) == 0 {
			continue
		}
		p.phaseErrors(ph)
		for _, w := range ph.Warnings {
			fmt.Fprintf(p.w, "      %s %s\n", p.label.Render("warning:"), w)
		}
		if r := res.Resolutions[ph.Name]; r != nil && p.verbose {
			p.actions(r)
		}
	}

	fmt.Fprintln(p.w)
	overall := res.OverallStatus()
	summary := fmt.Sprintf("%s, %d resolved, %s",
		plural(len(res.Errors()), "error"), res.ResolvedCount(), FormatDuration(res.Duration))
	fmt.Fprintf(p.w, "%s %s %s\n", StatusSymbol(overall), p.title.Render("Overall: ")+StatusText(overall), p.muted.Render("("+summary+")"))
	if res.MonitoringFile != "" {
		fmt.Fprintf(p.w, "%s %s\n", p.label.Render("monitoring config:"), res.MonitoringFile)
	}
}

func (p *Printer) phaseLine(ph phase.Result) {
	detail := FormatDuration(ph.Duration)
	switch {
	case ph.Status == phase.Skipped && len(ph.Warnings) > 0 && len(ph.Errors) == 0:
		detail = ph.Warnings[0]
	case ph.Status == phase.Skipped:
		detail = "skipped"
	case len(ph.Errors) > 0:
		detail += "  " + plural(len(ph.Errors), "error")
	}
	fmt.Fprintf(p.w, "  %s %s %-8s %s\n", StatusSymbol(ph.Status), p.name.Render(ph.Name), ph.Status, p.muted.Render(detail))
}

func (p *Printer) phaseErrors(ph phase.Result) {
	for i, e := range ph.Errors {
		if i == maxErrorsShown && !p.verbose {
			fmt.Fprintf(p.w, "      %s\n", p.muted.Render(fmt.Sprintf("... and %d more (use --verbose)", len(ph.Errors)-i)))
			return
		}
		p.errorLine("      ", e)
	}
}

func (p *Printer) actions(r *resolve.Result) {
	for _, c := range r.Categories {
		for _, a := range c.Actions {
			fmt.Fprintf(p.w, "      %s %s: %s\n", p.label.Render("fix:"), c.Category, a)
		}
	}
}

// Event prints one progress line for an orchestrator event.
func (p *Printer) Event(e orchestrator.Event) {
	switch e.Type {
	case orchestrator.EventPhaseStarted:
		fmt.Fprintf(p.w, "%s %s\n", StatusSymbol(phase.Running), e.Phase)
	case orchestrator.EventPhaseFinished:
		msg := fmt.Sprintf("%s %s", e.Phase, p.muted.Render(FormatDuration(e.Duration)))
		if e.Errors > 0 {
			msg += " " + plural(e.Errors, "error")
		}
		fmt.Fprintf(p.w, "%s %s\n", StatusSymbol(e.Status), msg)
	case orchestrator.EventResolutionFinished:
		fmt.Fprintf(p.w, "  %s %d of %d errors resolved\n", p.label.Render(e.Phase+" resolution:"), e.Resolved, e.Errors)
	}
}
