package state

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBeginAndFinishRun(t *testing.T) {
	db := setupTestDB(t)

	run := &Run{Command: "validate", Workspace: "/ws"}
	require.NoError(t, db.BeginRun(run))
	assert.NotEmpty(t, run.ID)
	assert.Equal(t, StatusRunning, run.Status)

	got, err := db.GetRun(run.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, StatusRunning, got.Status)
	assert.Nil(t, got.FinishedAt)

	run.Status = "Failed"
	run.ErrorCount = 2
	run.ResolvedCount = 1
	run.Report = json.RawMessage(`{"overallStatus":"Failed"}`)
	errs := []RunError{
		{Phase: "Dependencies", Category: "PackageReference", Severity: "High", Message: "missing go.sum entry", Resolved: true},
		{Phase: "Compilation", Category: "CompilationError", Severity: "High", Message: "undefined: x"},
	}
	require.NoError(t, db.FinishRun(run, errs))

	got, err = db.GetRun(run.ID)
	require.NoError(t, err)
	assert.Equal(t, "Failed", got.Status)
	assert.Equal(t, 2, got.ErrorCount)
	assert.Equal(t, 1, got.ResolvedCount)
	require.NotNil(t, got.FinishedAt)
	assert.GreaterOrEqual(t, got.Duration(), time.Duration(0))
	assert.JSONEq(t, `{"overallStatus":"Failed"}`, string(got.Report))

	stored, err := db.RunErrors(run.ID)
	require.NoError(t, err)
	require.Len(t, stored, 2)
	resolved := 0
	for _, e := range stored {
		assert.Equal(t, run.ID, e.RunID)
		if e.Resolved {
			resolved++
		}
	}
	assert.Equal(t, 1, resolved)
}

func TestFinishRun_Unknown(t *testing.T) {
	db := setupTestDB(t)
	err := db.FinishRun(&Run{ID: "missing", Status: "Passed"}, nil)
	assert.Error(t, err)
}

func TestGetRun_Missing(t *testing.T) {
	db := setupTestDB(t)
	got, err := db.GetRun("nonexistent")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestListRuns(t *testing.T) {
	db := setupTestDB(t)

	base := time.Now().Add(-time.Hour)
	for i, ws := range []string{"/a", "/b", "/a", "/a"} {
		r := &Run{Command: "validate", Workspace: ws, Status: "Passed", StartedAt: base.Add(time.Duration(i) * time.Minute)}
		require.NoError(t, db.RecordRun(r, nil))
	}

	all, err := db.ListRuns(RunFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 4)
	for i := 1; i < len(all); i++ {
		assert.False(t, all[i].StartedAt.After(all[i-1].StartedAt), "runs should be newest first")
	}

	a, err := db.ListRuns(RunFilter{Workspace: "/a", Limit: 2})
	require.NoError(t, err)
	require.Len(t, a, 2)
	for _, r := range a {
		assert.Equal(t, "/a", r.Workspace)
		assert.Equal(t, "Passed", r.Status)
	}
}

func TestCategoryTotals(t *testing.T) {
	db := setupTestDB(t)

	r1 := &Run{Command: "validate", Workspace: "/ws", Status: "Failed"}
	require.NoError(t, db.RecordRun(r1, []RunError{
		{Phase: "Compilation", Category: "CompilationError", Severity: "High", Message: "a"},
		{Phase: "Environment", Category: "EnvironmentConfiguration", Severity: "High", Message: "b"},
		{Phase: "Dependencies", Category: "PackageReference", Severity: "High", Message: "c", Resolved: true},
	}))
	r2 := &Run{Command: "build", Workspace: "/ws", Status: "Failed"}
	require.NoError(t, db.RecordRun(r2, []RunError{
		{Phase: "Compilation", Category: "CompilationError", Severity: "High", Message: "d"},
	}))

	totals, err := db.CategoryTotals("/ws", 10)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"CompilationError": 2, "EnvironmentConfiguration": 1}, totals)
}

func TestInterruptedRuns(t *testing.T) {
	db := setupTestDB(t)

	// A run owned by a PID that cannot exist.
	dead := &Run{Command: "validate", Workspace: "/ws", PID: 1 << 30}
	require.NoError(t, db.BeginRun(dead))

	// A run owned by this process is still in flight.
	live := &Run{Command: "validate", Workspace: "/ws"}
	require.NoError(t, db.BeginRun(live))

	runs, err := db.InterruptedRuns()
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, dead.ID, runs[0].ID)

	n, err := db.MarkInterrupted()
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	got, err := db.GetRun(dead.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusInterrupted, got.Status)
	assert.NotNil(t, got.FinishedAt)

	got, err = db.GetRun(live.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusRunning, got.Status)
}
