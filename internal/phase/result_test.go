package phase

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ShayCichocki/buildcheck/internal/taxonomy"
)

func TestRun_PassedWithoutErrors(t *testing.T) {
	r := Run(context.Background(), "Dependencies", func(ctx context.Context, r *Result) error {
		r.AddWarning("minor %s", "thing")
		return nil
	})

	assert.Equal(t, Passed, r.Status)
	assert.Equal(t, "Dependencies", r.Name)
	assert.Equal(t, []string{"minor thing"}, r.Warnings)
	assert.False(t, r.StartTime.IsZero())
}

func TestRun_LowSeverityDoesNotFail(t *testing.T) {
	r := Run(context.Background(), "Environment", func(ctx context.Context, r *Result) error {
		r.AddError(taxonomy.New(taxonomy.EnvironmentConfiguration, taxonomy.Medium, "env", "optional var missing"))
		return nil
	})
	assert.Equal(t, Passed, r.Status)
	assert.Len(t, r.Errors, 1)
}

func TestRun_HighSeverityFails(t *testing.T) {
	r := Run(context.Background(), "Compilation", func(ctx context.Context, r *Result) error {
		r.AddError(taxonomy.New(taxonomy.CompilationError, taxonomy.High, "api", "undefined: x"))
		return nil
	})
	assert.Equal(t, Failed, r.Status)
}

func TestRun_FaultBecomesError(t *testing.T) {
	r := Run(context.Background(), "Docker", func(ctx context.Context, r *Result) error {
		return errors.New("walk failed")
	})

	assert.Equal(t, Error, r.Status)
	require.Len(t, r.Errors, 1)
	assert.Equal(t, taxonomy.SystemError, r.Errors[0].Category)
	assert.Equal(t, taxonomy.Critical, r.Errors[0].Severity)
}

func TestRun_PanicBecomesError(t *testing.T) {
	r := Run(context.Background(), "Docker", func(ctx context.Context, r *Result) error {
		var m map[string]int
		m["boom"] = 1
		return nil
	})

	assert.Equal(t, Error, r.Status)
	require.NotEmpty(t, r.Errors)
	assert.Equal(t, taxonomy.SystemError, r.Errors[len(r.Errors)-1].Category)
}

func TestSkip(t *testing.T) {
	r := Skip("Testing", "not selected")
	assert.Equal(t, Skipped, r.Status)
	assert.Equal(t, []string{"not selected"}, r.Warnings)
	assert.Empty(t, r.Errors)
}

func TestStatuses(t *testing.T) {
	results := []Result{{Status: Passed}, {Status: Failed}}
	assert.Equal(t, []Status{Passed, Failed}, Statuses(results))
	assert.Equal(t, Failed, Aggregate(Statuses(results)...))
}
