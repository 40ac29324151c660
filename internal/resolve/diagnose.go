package resolve

import (
	"context"
	"log/slog"

	"github.com/ShayCichocki/buildcheck/internal/taxonomy"
)

// DefaultThreshold is the success rate a diagnosis must exceed.
const DefaultThreshold = 0.5

// Diagnosis is the outcome of resolving the errors found in a build log.
type Diagnosis struct {
	Errors      []taxonomy.BuildError `json:"errors"`
	Resolution  *Result               `json:"resolution"`
	SuccessRate float64               `json:"successRate"`
	Threshold   float64               `json:"threshold"`
	Success     bool                  `json:"success"`
}

// Diagnose extracts error lines from a build log, classifies each one and
// runs the registry over them. The diagnosis succeeds when the success rate
// is strictly greater than threshold.
func Diagnose(ctx context.Context, c *taxonomy.Classifier, r *Registry, log string, threshold float64) Diagnosis {
	lines := taxonomy.ExtractErrorLines(log)
	errs := make([]taxonomy.BuildError, 0, len(lines))
	for _, line := range lines {
		errs = append(errs, c.Classify("diagnose", line))
	}

	res := r.Resolve(ctx, errs)
	rate := res.SuccessRate()
	d := Diagnosis{
		Errors:      errs,
		Resolution:  res,
		SuccessRate: rate,
		Threshold:   threshold,
		Success:     rate > threshold,
	}
	slog.Info("diagnosis complete",
		"errors", len(errs),
		"resolved", res.Resolved(),
		"success_rate", rate,
		"success", d.Success)
	return d
}
