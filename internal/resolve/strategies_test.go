package resolve

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ShayCichocki/buildcheck/internal/envcheck"
	"github.com/ShayCichocki/buildcheck/internal/exec/exectest"
	"github.com/ShayCichocki/buildcheck/internal/taxonomy"
	"github.com/ShayCichocki/buildcheck/internal/workspace"
)

func withData(e taxonomy.BuildError, kv ...string) taxonomy.BuildError {
	for i := 0; i+1 < len(kv); i += 2 {
		e = e.WithData(kv[i], kv[i+1])
	}
	return e
}

func TestPackageReferenceStrategy_TidiesOncePerDir(t *testing.T) {
	runner := exectest.New()
	s := NewPackageReferenceStrategy(GoTool{Runner: runner}, "/ws")

	errs := []taxonomy.BuildError{
		withData(taxonomy.New(taxonomy.PackageReference, taxonomy.High, "deps", "missing go.sum entry"), taxonomy.DataDir, "/ws/api"),
		withData(taxonomy.New(taxonomy.PackageReference, taxonomy.High, "deps", "checksum mismatch"), taxonomy.DataDir, "/ws/api"),
		taxonomy.New(taxonomy.PackageReference, taxonomy.High, "deps", "unknown revision"),
	}
	cr := s.Resolve(context.Background(), errs)

	assert.Len(t, cr.Resolved, 3)
	assert.Empty(t, cr.Unresolved)
	assert.Equal(t, 2, runner.CallCount("go mod tidy"))

	calls := runner.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, "/ws/api", calls[0].Dir)
	assert.Equal(t, "/ws", calls[1].Dir)
}

func TestPackageReferenceStrategy_Failures(t *testing.T) {
	runner := exectest.New().On("go mod tidy", exectest.Response{ExitCode: 1, Output: "go: errors parsing go.mod"})
	s := NewPackageReferenceStrategy(GoTool{Runner: runner}, "/ws")

	bad := withData(taxonomy.New(taxonomy.PackageReference, taxonomy.High, "deps", "version conflict"),
		taxonomy.DataModule, "example.com/lib", taxonomy.DataVersion, "not-a-version")
	tidyFails := taxonomy.New(taxonomy.PackageReference, taxonomy.High, "deps", "unknown revision")

	cr := s.Resolve(context.Background(), []taxonomy.BuildError{bad, tidyFails})

	assert.Empty(t, cr.Resolved)
	assert.Len(t, cr.Unresolved, 2)
	assert.Equal(t, 1, runner.CallCount("go mod tidy"), "invalid version should not trigger tidy")
}

func TestCompilationStrategy(t *testing.T) {
	runner := exectest.New().
		On("/ws/broken:go build -a ./...", exectest.Response{ExitCode: 1, Output: "undefined: x"})
	s := &CompilationStrategy{Go: GoTool{Runner: runner}, Root: "/ws"}

	errs := []taxonomy.BuildError{
		withData(taxonomy.New(taxonomy.CompilationError, taxonomy.High, "build", "stale cache"), taxonomy.DataDir, "/ws/ok"),
		withData(taxonomy.New(taxonomy.CompilationError, taxonomy.High, "build", "undefined: x"), taxonomy.DataDir, "/ws/broken"),
		withData(taxonomy.New(taxonomy.CompilationError, taxonomy.High, "build", "undefined: y"), taxonomy.DataDir, "/ws/broken"),
	}
	cr := s.Resolve(context.Background(), errs)

	assert.Len(t, cr.Resolved, 1)
	assert.Len(t, cr.Unresolved, 2)
	assert.Zero(t, runner.CallCount("go clean"), "the shared build cache is never cleared")
	assert.Equal(t, 2, runner.CallCount("go build -a ./..."))
}

func TestParseGoVersion(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"1.22", "1.22.0"},
		{"go1.21.3", "1.21.3"},
		{"1.23rc1", "1.23.0-rc1"},
		{"go1.24beta2", "1.24.0-beta2"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			v, err := ParseGoVersion(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, v.String())
		})
	}

	_, err := ParseGoVersion("banana")
	assert.Error(t, err)
}

func TestFrameworkStrategy(t *testing.T) {
	runner := exectest.New().On("go version", exectest.Response{Output: "go version go1.22.3 linux/amd64\n"})
	s := &FrameworkStrategy{Go: GoTool{Runner: runner}, Root: "/ws"}

	satisfied := withData(taxonomy.New(taxonomy.FrameworkCompatibility, taxonomy.High, "build", "requires go >= 1.21"), taxonomy.DataGoVersion, "1.21")
	tooNew := withData(taxonomy.New(taxonomy.FrameworkCompatibility, taxonomy.High, "build", "requires go >= 1.23"), taxonomy.DataGoVersion, "1.23")

	cr := s.Resolve(context.Background(), []taxonomy.BuildError{satisfied, tooNew})

	require.Len(t, cr.Resolved, 1)
	assert.Equal(t, satisfied.ID, cr.Resolved[0].ID)
	require.Len(t, cr.Unresolved, 1)
	assert.Equal(t, tooNew.ID, cr.Unresolved[0].ID)

	for _, c := range runner.Calls() {
		assert.Contains(t, c.Env, "GOTOOLCHAIN=auto")
	}
}

func TestProjectReferenceStrategy(t *testing.T) {
	runner := exectest.New()
	ws := &workspace.Workspace{Root: "/ws", WorkFile: "/ws/go.work"}
	s := &ProjectReferenceStrategy{Go: GoTool{Runner: runner}, Workspace: ws}

	cycle := withData(taxonomy.New(taxonomy.ProjectReference, taxonomy.Critical, "refs", "Circular dependency detected: a -> b -> a"), taxonomy.DataCycle, "a -> b -> a")
	missing := withData(taxonomy.New(taxonomy.ProjectReference, taxonomy.Critical, "refs", "referenced project missing"), taxonomy.DataMissing, "../gone")
	stale := taxonomy.New(taxonomy.ProjectReference, taxonomy.Critical, "refs", "replacement directory out of sync")
	stale2 := taxonomy.New(taxonomy.ProjectReference, taxonomy.Critical, "refs", "replacement directory out of sync")

	cr := s.Resolve(context.Background(), []taxonomy.BuildError{cycle, missing, stale, stale2})

	assert.Len(t, cr.Resolved, 2)
	assert.Len(t, cr.Unresolved, 2)
	assert.Equal(t, 1, runner.CallCount("go work sync"))

	noWork := &ProjectReferenceStrategy{Go: GoTool{Runner: runner}, Workspace: &workspace.Workspace{Root: "/ws"}}
	cr = noWork.Resolve(context.Background(), []taxonomy.BuildError{stale})
	assert.Len(t, cr.Unresolved, 1)
}

func TestDockerStrategy_CreatesDockerignore(t *testing.T) {
	dir := t.TempDir()
	s := &DockerStrategy{Root: dir}

	missing := withData(taxonomy.New(taxonomy.DockerBuild, taxonomy.Medium, "docker", "build context has no .dockerignore"), taxonomy.DataContext, dir)
	other := taxonomy.New(taxonomy.DockerBuild, taxonomy.High, "docker", "COPY failed: no such file")

	cr := s.Resolve(context.Background(), []taxonomy.BuildError{missing, other})

	assert.Len(t, cr.Resolved, 1)
	assert.Len(t, cr.Unresolved, 1)

	data, err := os.ReadFile(filepath.Join(dir, ".dockerignore"))
	require.NoError(t, err)
	assert.Equal(t, DefaultDockerignore, string(data))
}

func TestEnvironmentStrategy_ResolvesCheckerFindings(t *testing.T) {
	const (
		token  = "BUILDCHECK_RESOLVE_TEST_TOKEN"
		region = "BUILDCHECK_RESOLVE_TEST_REGION"
		absent = "BUILDCHECK_RESOLVE_TEST_ABSENT"
		issuer = "BUILDCHECK_RESOLVE_TEST_ISSUER"
	)
	for _, name := range []string{token, region, absent, issuer} {
		t.Setenv(name, "")
		os.Unsetenv(name)
	}

	dir := t.TempDir()
	write := func(name, content string) {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	}
	write(".env", issuer+"=https://auth.local\n")
	write(".env.local", token+"=from-local\n")
	write(".env.staging", token+"=from-staging\n"+region+"=eu-west-1\n")

	checker := &envcheck.Checker{
		Required: map[envcheck.Group][]string{envcheck.Authentication: {issuer, token, region, absent}},
		Root:     dir,
	}
	auth, ok := checker.Validate(context.Background()).Check(string(envcheck.Authentication))
	require.True(t, ok)
	require.Equal(t, []string{token, region, absent}, auth.Missing)

	s := &EnvironmentStrategy{Root: dir, Environment: "staging"}
	cr := s.Resolve(context.Background(), auth.Errors)

	require.Len(t, cr.Resolved, 2)
	require.Len(t, cr.Unresolved, 1)
	assert.Equal(t, absent, cr.Unresolved[0].Data(taxonomy.DataVariable))
	assert.Equal(t, "from-local", os.Getenv(token), ".env.local takes priority over .env.<environment>")
	assert.Equal(t, "eu-west-1", os.Getenv(region))
	assert.Contains(t, cr.Actions, "exported "+token+" from "+filepath.Join(dir, ".env.local"))
	require.NotEmpty(t, cr.Actions)
	assert.Contains(t, cr.Actions[len(cr.Actions)-1], "set "+absent+" in the environment")

	again, _ := checker.Validate(context.Background()).Check(string(envcheck.Authentication))
	assert.Equal(t, []string{absent}, again.Missing)
}

func TestEnvironmentStrategy_NothingToLoad(t *testing.T) {
	const name = "BUILDCHECK_RESOLVE_TEST_MISSING"
	t.Setenv(name, "")
	os.Unsetenv(name)

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte(name+"=ignored\n"), 0o644))

	s := &EnvironmentStrategy{Root: dir}
	missing := withData(taxonomy.New(taxonomy.EnvironmentConfiguration, taxonomy.Medium, "env", name+" is not set"), taxonomy.DataVariable, name)
	noVariable := taxonomy.New(taxonomy.EnvironmentConfiguration, taxonomy.Medium, "env", "certificate expired")

	cr := s.Resolve(context.Background(), []taxonomy.BuildError{missing, noVariable})

	assert.Empty(t, cr.Resolved)
	assert.Len(t, cr.Unresolved, 2)
	_, present := os.LookupEnv(name)
	assert.False(t, present, "files the checker already read are not loaded again")
	require.Len(t, cr.Actions, 1)
	assert.Contains(t, cr.Actions[0], filepath.Join(dir, ".env.local"))
}

func TestEnvironmentStrategy_FallbackFiles(t *testing.T) {
	tests := []struct {
		name string
		s    EnvironmentStrategy
		want []string
	}{
		{"no environment", EnvironmentStrategy{}, []string{".env.local"}},
		{"with environment", EnvironmentStrategy{Environment: "prod"}, []string{".env.local", ".env.prod.local", ".env.prod"}},
		{"checker already reads local", EnvironmentStrategy{Environment: "prod", DotenvFiles: []string{".env", ".env.local"}}, []string{".env.prod.local", ".env.prod"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.s.FallbackFiles())
		})
	}
}

func TestNetworkStrategy(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	closed, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	closedAddr := closed.Addr().String()
	closed.Close()

	s := &NetworkStrategy{}
	up := withData(taxonomy.New(taxonomy.NetworkConnectivity, taxonomy.High, "health", "connection refused"), taxonomy.DataEndpoint, "http://"+ln.Addr().String()+"/health")
	down := withData(taxonomy.New(taxonomy.NetworkConnectivity, taxonomy.High, "health", "connection refused"), taxonomy.DataEndpoint, closedAddr)
	none := taxonomy.New(taxonomy.NetworkConnectivity, taxonomy.High, "health", "no such host")

	cr := s.Resolve(context.Background(), []taxonomy.BuildError{up, down, none})

	require.Len(t, cr.Resolved, 1)
	assert.Equal(t, up.ID, cr.Resolved[0].ID)
	assert.Len(t, cr.Unresolved, 2)
}

func TestDatabaseStrategy_NeverResolves(t *testing.T) {
	errs := makeErrors(taxonomy.DatabaseConnectivity, 2)
	cr := DatabaseStrategy{}.Resolve(context.Background(), errs)
	assert.Empty(t, cr.Resolved)
	assert.Len(t, cr.Unresolved, 2)
	assert.NotEmpty(t, cr.Actions)
}

func TestDefaultStrategies_CoverAutomatableCategories(t *testing.T) {
	r := NewRegistry(DefaultStrategies(Options{Runner: exectest.New()})...)
	want := []taxonomy.Category{
		taxonomy.CompilationError,
		taxonomy.PackageReference,
		taxonomy.ProjectReference,
		taxonomy.FrameworkCompatibility,
		taxonomy.DockerBuild,
		taxonomy.DatabaseConnectivity,
		taxonomy.NetworkConnectivity,
		taxonomy.EnvironmentConfiguration,
	}
	assert.Equal(t, want, r.Categories())
}
