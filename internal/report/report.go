// Package report renders run results for the terminal and as JSON.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/fatih/color"

	"github.com/ShayCichocki/buildcheck/internal/phase"
	"github.com/ShayCichocki/buildcheck/internal/taxonomy"
)

// Printer writes human-readable reports to one writer.
type Printer struct {
	w       io.Writer
	verbose bool

	title lipgloss.Style
	label lipgloss.Style
	muted lipgloss.Style
	name  lipgloss.Style
}

// New creates a Printer. Styles follow the color profile of w, so a
// non-terminal writer gets plain text.
func New(w io.Writer) *Printer {
	r := lipgloss.NewRenderer(w)
	return &Printer{
		w:     w,
		title: r.NewStyle().Bold(true).Foreground(lipgloss.Color("#4ECDC4")),
		label: r.NewStyle().Foreground(lipgloss.Color("243")),
		muted: r.NewStyle().Faint(true),
		name:  r.NewStyle().Width(20),
	}
}

// SetVerbose includes resolution hints and resolver actions in reports.
func (p *Printer) SetVerbose(v bool) {
	p.verbose = v
}

// JSON writes v as indented JSON.
func JSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// PrintStatus prints a status line with a colored symbol.
func (p *Printer) PrintStatus(symbol, message string, colorAttr color.Attribute) {
	c := color.New(colorAttr)
	fmt.Fprintf(p.w, "%s %s\n", c.Sprint(symbol), message)
}

// StatusSymbol returns the colored marker for a phase status.
func StatusSymbol(s phase.Status) string {
	switch s {
	case phase.Passed:
		return color.GreenString("✓")
	case phase.Failed:
		return color.RedString("✗")
	case phase.Error:
		return color.MagentaString("!")
	case phase.Running:
		return color.CyanString("…")
	default:
		return color.New(color.Faint).Sprint("-")
	}
}

// StatusText returns the colored status name.
func StatusText(s phase.Status) string {
	switch s {
	case phase.Passed:
		return color.GreenString(s.String())
	case phase.Failed:
		return color.RedString(s.String())
	case phase.Error:
		return color.MagentaString(s.String())
	default:
		return s.String()
	}
}

func severityColor(s taxonomy.Severity) *color.Color {
	switch s {
	case taxonomy.Critical:
		return color.New(color.FgRed, color.Bold)
	case taxonomy.High:
		return color.New(color.FgRed)
	case taxonomy.Medium:
		return color.New(color.FgYellow)
	default:
		return color.New(color.Faint)
	}
}

// errorLine renders one classified error with the given indent.
func (p *Printer) errorLine(indent string, e taxonomy.BuildError) {
	tag := severityColor(e.Severity).Sprintf("[%s/%s]", e.Category, e.Severity)
	if e.Source != "" {
		fmt.Fprintf(p.w, "%s%s %s: %s\n", indent, tag, e.Source, e.Message)
	} else {
		fmt.Fprintf(p.w, "%s%s %s\n", indent, tag, e.Message)
	}
	if p.verbose && e.ResolutionHint != "" {
		fmt.Fprintf(p.w, "%s  %s %s\n", indent, p.label.Render("hint:"), e.ResolutionHint)
	}
}

func plural(n int, word string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, word)
	}
	return fmt.Sprintf("%d %ss", n, word)
}

// FormatDuration formats a duration in a human-readable way.
func FormatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	if d < time.Hour {
		m := int(d.Minutes())
		s := int(d.Seconds()) % 60
		if s > 0 {
			return fmt.Sprintf("%dm%ds", m, s)
		}
		return fmt.Sprintf("%dm", m)
	}
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	if m > 0 {
		return fmt.Sprintf("%dh%dm", h, m)
	}
	return fmt.Sprintf("%dh", h)
}

// FormatAge formats the time since t, e.g. "5m ago".
func FormatAge(t time.Time, now time.Time) string {
	d := now.Sub(t)
	if d < time.Minute {
		return "just now"
	}
	if d >= 48*time.Hour {
		return fmt.Sprintf("%dd ago", int(d.Hours())/24)
	}
	return FormatDuration(d.Truncate(time.Minute)) + " ago"
}
