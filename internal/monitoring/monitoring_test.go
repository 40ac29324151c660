package monitoring

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ShayCichocki/buildcheck/internal/health"
	"github.com/ShayCichocki/buildcheck/internal/taxonomy"
)

func TestBuild(t *testing.T) {
	cfg := Build(Options{
		Workspace:   "/ws",
		Environment: "staging",
		Targets: []health.Target{
			{Name: "API", Endpoint: "http://api.local/health"},
			{Name: "Web"},
		},
	})

	require.Len(t, cfg.HealthChecks, 1)
	assert.Equal(t, "API", cfg.HealthChecks[0].Name)
	assert.Equal(t, "30s", cfg.HealthChecks[0].Interval)

	for _, a := range cfg.Alerts {
		assert.True(t, a.MinSeverity.AtLeast(taxonomy.High), a.Name)
	}
	var names []string
	for _, a := range cfg.Alerts {
		names = append(names, a.Name)
	}
	assert.Contains(t, names, "DatabaseConnectivityAlert")
	assert.NotContains(t, names, "EnvironmentConfigurationAlert")
}

func TestWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "monitoring.json")
	require.NoError(t, Write(path, Build(Options{Workspace: "/ws"})))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, "/ws", got["workspace"])
	assert.NotNil(t, got["healthChecks"])

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files must be cleaned up")
}
