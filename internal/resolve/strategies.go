package resolve

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/joho/godotenv"

	"github.com/ShayCichocki/buildcheck/internal/exec"
	"github.com/ShayCichocki/buildcheck/internal/health"
	"github.com/ShayCichocki/buildcheck/internal/taxonomy"
	"github.com/ShayCichocki/buildcheck/internal/workspace"
)

// GoTool runs the go command.
type GoTool struct {
	Runner  exec.CommandRunner
	Binary  string
	Timeout time.Duration
}

func (g GoTool) run(ctx context.Context, dir string, env []string, args ...string) (*exec.Result, error) {
	bin := g.Binary
	if bin == "" {
		bin = "go"
	}
	return g.Runner.Run(ctx, exec.Command{Dir: dir, Name: bin, Args: args, Env: env, Timeout: g.Timeout})
}

// Options configures the default strategy set.
type Options struct {
	Runner       exec.CommandRunner
	GoBinary     string
	BuildTimeout time.Duration
	ProbeTimeout time.Duration
	Workspace    *workspace.Workspace
	DotenvFiles  []string
	Environment  string
}

// DefaultStrategies returns one strategy per category with an automated fix.
func DefaultStrategies(opts Options) []Strategy {
	tool := GoTool{Runner: opts.Runner, Binary: opts.GoBinary, Timeout: opts.BuildTimeout}
	probe := GoTool{Runner: opts.Runner, Binary: opts.GoBinary, Timeout: opts.ProbeTimeout}
	root := ""
	if opts.Workspace != nil {
		root = opts.Workspace.Root
	}
	return []Strategy{
		NewPackageReferenceStrategy(tool, root),
		&CompilationStrategy{Go: tool, Root: root},
		&FrameworkStrategy{Go: probe, Root: root},
		&ProjectReferenceStrategy{Go: tool, Workspace: opts.Workspace},
		&DockerStrategy{Root: root},
		&EnvironmentStrategy{Root: root, Environment: opts.Environment, DotenvFiles: opts.DotenvFiles},
		&NetworkStrategy{Timeout: opts.ProbeTimeout},
		DatabaseStrategy{},
	}
}

func dirFor(e taxonomy.BuildError, root string) string {
	if dir := e.Data(taxonomy.DataDir); dir != "" {
		return dir
	}
	return root
}

// PackageReferenceStrategy runs `go mod tidy` once per module directory.
// Later errors for the same directory reuse the first outcome.
type PackageReferenceStrategy struct {
	Go   GoTool
	Root string

	mu     sync.Mutex
	tidied map[string]bool
}

// NewPackageReferenceStrategy creates a package reference strategy.
func NewPackageReferenceStrategy(tool GoTool, root string) *PackageReferenceStrategy {
	return &PackageReferenceStrategy{Go: tool, Root: root, tidied: make(map[string]bool)}
}

func (s *PackageReferenceStrategy) Category() taxonomy.Category { return taxonomy.PackageReference }

func (s *PackageReferenceStrategy) Resolve(ctx context.Context, errs []taxonomy.BuildError) CategoryResult {
	return ResolveEach(ctx, s.Category(), errs, func(ctx context.Context, e taxonomy.BuildError) (string, bool, error) {
		if v := e.Data(taxonomy.DataVersion); v != "" {
			if _, err := semver.NewVersion(strings.TrimPrefix(v, "v")); err != nil {
				return fmt.Sprintf("module %s pins unparseable version %q; fix the require directive", e.Data(taxonomy.DataModule), v), false, nil
			}
		}

		dir := dirFor(e, s.Root)
		s.mu.Lock()
		ok, cached := s.tidied[dir]
		s.mu.Unlock()
		if cached {
			return "", ok, nil
		}

		res, err := s.Go.run(ctx, dir, nil, "mod", "tidy")
		if err != nil {
			return "", false, err
		}
		ok = res.Success()
		s.mu.Lock()
		if s.tidied == nil {
			s.tidied = make(map[string]bool)
		}
		s.tidied[dir] = ok
		s.mu.Unlock()
		return fmt.Sprintf("go mod tidy in %s (exit %d)", dir, res.ExitCode), ok, nil
	})
}

// CompilationStrategy force-rebuilds the failing module with go build -a,
// which ignores cached results for that module's packages without clearing
// the shared build cache.
type CompilationStrategy struct {
	Go   GoTool
	Root string
}

func (s *CompilationStrategy) Category() taxonomy.Category { return taxonomy.CompilationError }

func (s *CompilationStrategy) Resolve(ctx context.Context, errs []taxonomy.BuildError) CategoryResult {
	built := make(map[string]bool)
	return ResolveEach(ctx, s.Category(), errs, func(ctx context.Context, e taxonomy.BuildError) (string, bool, error) {
		dir := dirFor(e, s.Root)
		if ok, done := built[dir]; done {
			return "", ok, nil
		}

		res, err := s.Go.run(ctx, dir, nil, "build", "-a", "./...")
		if err != nil {
			return "", false, err
		}
		built[dir] = res.Success()
		return fmt.Sprintf("force-rebuilt %s (exit %d)", dir, res.ExitCode), res.Success(), nil
	})
}

var goVersionRe = regexp.MustCompile(`go version go(\d+(?:\.\d+){0,2}(?:(?:rc|beta)\d+)?)`)

// ParseGoVersion converts a Go version string ("1.22", "go1.21.3",
// "1.23rc1") into a semantic version.
func ParseGoVersion(v string) (*semver.Version, error) {
	v = strings.TrimPrefix(strings.TrimSpace(v), "go")
	for _, pre := range []string{"rc", "beta"} {
		if i := strings.Index(v, pre); i > 0 && v[i-1] != '-' {
			v = v[:i] + "-" + v[i:]
		}
	}
	return semver.NewVersion(v)
}

// FrameworkStrategy lets the go command select a toolchain that satisfies the
// module's go directive, then checks that the selected version is new enough.
type FrameworkStrategy struct {
	Go   GoTool
	Root string
}

func (s *FrameworkStrategy) Category() taxonomy.Category { return taxonomy.FrameworkCompatibility }

func (s *FrameworkStrategy) Resolve(ctx context.Context, errs []taxonomy.BuildError) CategoryResult {
	return ResolveEach(ctx, s.Category(), errs, func(ctx context.Context, e taxonomy.BuildError) (string, bool, error) {
		dir := dirFor(e, s.Root)
		res, err := s.Go.run(ctx, dir, []string{"GOTOOLCHAIN=auto"}, "version")
		if err != nil {
			return "", false, err
		}
		if !res.Success() {
			return fmt.Sprintf("go toolchain selection failed in %s", dir), false, nil
		}

		m := goVersionRe.FindStringSubmatch(res.Output)
		if m == nil {
			return "", false, fmt.Errorf("unrecognised go version output %q", strings.TrimSpace(res.Output))
		}
		have, err := ParseGoVersion(m[1])
		if err != nil {
			return "", false, err
		}

		required := e.Data(taxonomy.DataGoVersion)
		if required == "" {
			return fmt.Sprintf("toolchain go%s available", have), true, nil
		}
		want, err := ParseGoVersion(required)
		if err != nil {
			return "", false, fmt.Errorf("parse required go version: %w", err)
		}
		if have.LessThan(want) {
			return fmt.Sprintf("toolchain go%s is older than required go%s", have, want), false, nil
		}
		return fmt.Sprintf("toolchain go%s satisfies go%s", have, want), true, nil
	})
}

// ProjectReferenceStrategy never breaks cycles or invents missing modules.
// When a go.work exists it re-syncs the workspace build list.
type ProjectReferenceStrategy struct {
	Go        GoTool
	Workspace *workspace.Workspace
}

func (s *ProjectReferenceStrategy) Category() taxonomy.Category { return taxonomy.ProjectReference }

func (s *ProjectReferenceStrategy) Resolve(ctx context.Context, errs []taxonomy.BuildError) CategoryResult {
	var synced, syncOK bool
	return ResolveEach(ctx, s.Category(), errs, func(ctx context.Context, e taxonomy.BuildError) (string, bool, error) {
		if cycle := e.Data(taxonomy.DataCycle); cycle != "" || strings.Contains(strings.ToLower(e.Message), "circular dependency") {
			if cycle == "" {
				cycle = e.Message
			}
			return fmt.Sprintf("circular reference %s must be broken manually", cycle), false, nil
		}
		if missing := e.Data(taxonomy.DataMissing); missing != "" {
			return fmt.Sprintf("referenced module %s does not exist; fix or remove the replace directive", missing), false, nil
		}
		if s.Workspace == nil || s.Workspace.WorkFile == "" {
			return "", false, nil
		}
		if !synced {
			synced = true
			res, err := s.Go.run(ctx, s.Workspace.Root, nil, "work", "sync")
			if err != nil {
				return "", false, err
			}
			syncOK = res.Success()
			return fmt.Sprintf("go work sync (exit %d)", res.ExitCode), syncOK, nil
		}
		return "", syncOK, nil
	})
}

// DefaultDockerignore is written when a build context lacks one.
const DefaultDockerignore = `.git
.env
*.log
**/bin
**/obj
**/*_test.go
`

// DockerStrategy fixes the one container problem that is safe to automate: a
// missing .dockerignore.
type DockerStrategy struct {
	Root string
}

func (s *DockerStrategy) Category() taxonomy.Category { return taxonomy.DockerBuild }

func (s *DockerStrategy) Resolve(ctx context.Context, errs []taxonomy.BuildError) CategoryResult {
	return ResolveEach(ctx, s.Category(), errs, func(ctx context.Context, e taxonomy.BuildError) (string, bool, error) {
		if !strings.Contains(strings.ToLower(e.Message), ".dockerignore") {
			return "", false, nil
		}
		dir := e.Data(taxonomy.DataContext)
		if dir == "" {
			dir = s.Root
		}
		path := filepath.Join(dir, ".dockerignore")
		if _, err := os.Stat(path); err == nil {
			return "", true, nil
		}
		if err := os.WriteFile(path, []byte(DefaultDockerignore), 0o644); err != nil {
			return "", false, fmt.Errorf("write %s: %w", path, err)
		}
		return "created " + path, true, nil
	})
}

// EnvironmentStrategy looks for a missing variable in the fallback dotenv
// files the Environment phase does not read (.env.local, .env.<environment>
// and .env.<environment>.local) and exports the first value it finds into
// the process environment. A variable found nowhere stays unresolved with an
// action naming the files the operator can set it in.
type EnvironmentStrategy struct {
	Root        string
	Environment string
	// DotenvFiles are the files the checker already reads; they are never
	// consulted again here.
	DotenvFiles []string
}

func (s *EnvironmentStrategy) Category() taxonomy.Category {
	return taxonomy.EnvironmentConfiguration
}

func (s *EnvironmentStrategy) Resolve(ctx context.Context, errs []taxonomy.BuildError) CategoryResult {
	var fallbacks []dotenvFile
	read := false
	return ResolveEach(ctx, s.Category(), errs, func(ctx context.Context, e taxonomy.BuildError) (string, bool, error) {
		name := e.Data(taxonomy.DataVariable)
		if name == "" {
			return "", false, nil
		}
		if os.Getenv(name) != "" {
			return "", true, nil
		}

		if !read {
			read = true
			var err error
			if fallbacks, err = s.readFallbacks(); err != nil {
				return "", false, err
			}
		}
		for _, f := range fallbacks {
			if v := f.values[name]; v != "" {
				if err := os.Setenv(name, v); err != nil {
					return "", false, fmt.Errorf("export %s: %w", name, err)
				}
				return fmt.Sprintf("exported %s from %s", name, f.path), true, nil
			}
		}
		return fmt.Sprintf("set %s in the environment or in one of: %s", name, strings.Join(s.candidates(), ", ")), false, nil
	})
}

type dotenvFile struct {
	path   string
	values map[string]string
}

// FallbackFiles returns the dotenv names searched for missing variables, in
// priority order, without the files the checker already reads.
func (s *EnvironmentStrategy) FallbackFiles() []string {
	names := []string{".env.local"}
	if s.Environment != "" {
		names = append(names, ".env."+s.Environment+".local", ".env."+s.Environment)
	}
	checked := s.DotenvFiles
	if len(checked) == 0 {
		checked = []string{".env"}
	}
	return slices.DeleteFunc(names, func(n string) bool { return slices.Contains(checked, n) })
}

func (s *EnvironmentStrategy) candidates() []string {
	var out []string
	for _, name := range s.FallbackFiles() {
		out = append(out, s.path(name))
	}
	return out
}

func (s *EnvironmentStrategy) path(name string) string {
	if !filepath.IsAbs(name) && s.Root != "" {
		return filepath.Join(s.Root, name)
	}
	return name
}

func (s *EnvironmentStrategy) readFallbacks() ([]dotenvFile, error) {
	var out []dotenvFile
	for _, path := range s.candidates() {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		values, err := godotenv.Read(path)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		out = append(out, dotenvFile{path: path, values: values})
	}
	return out, nil
}

// NetworkStrategy re-probes the failing endpoint once with a TCP dial.
type NetworkStrategy struct {
	Timeout time.Duration
}

func (s *NetworkStrategy) Category() taxonomy.Category { return taxonomy.NetworkConnectivity }

func (s *NetworkStrategy) Resolve(ctx context.Context, errs []taxonomy.BuildError) CategoryResult {
	return ResolveEach(ctx, s.Category(), errs, func(ctx context.Context, e taxonomy.BuildError) (string, bool, error) {
		endpoint := e.Data(taxonomy.DataEndpoint)
		if endpoint == "" {
			return "", false, nil
		}
		addr, err := health.HostPort(endpoint)
		if err != nil {
			return "", false, err
		}

		timeout := s.Timeout
		if timeout <= 0 {
			timeout = 5 * time.Second
		}
		d := net.Dialer{Timeout: timeout}
		conn, err := d.DialContext(ctx, "tcp", addr)
		if err != nil {
			return fmt.Sprintf("%s still unreachable", addr), false, nil
		}
		conn.Close()
		return fmt.Sprintf("%s reachable on retry", addr), true, nil
	})
}

// DatabaseStrategy reports database errors as needing an operator.
type DatabaseStrategy struct{}

func (DatabaseStrategy) Category() taxonomy.Category { return taxonomy.DatabaseConnectivity }

func (DatabaseStrategy) Resolve(ctx context.Context, errs []taxonomy.BuildError) CategoryResult {
	cr := CategoryResult{Category: taxonomy.DatabaseConnectivity, Unresolved: errs}
	if len(errs) > 0 {
		cr.Actions = []string{"database connectivity requires operator action: verify the server is running and the connection string is correct"}
	}
	return cr
}
