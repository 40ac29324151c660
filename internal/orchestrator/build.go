package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"

	"github.com/Masterminds/semver/v3"

	"github.com/ShayCichocki/buildcheck/internal/exec"
	"github.com/ShayCichocki/buildcheck/internal/graph"
	"github.com/ShayCichocki/buildcheck/internal/phase"
	"github.com/ShayCichocki/buildcheck/internal/resolve"
	"github.com/ShayCichocki/buildcheck/internal/taxonomy"
	"github.com/ShayCichocki/buildcheck/internal/workspace"
)

// maxErrorsPerProject caps the errors taken from one tool invocation.
const maxErrorsPerProject = 20

// compilerLine matches go compiler diagnostics: path.go:line[:col]: message.
var compilerLine = regexp.MustCompile(`^(\S+\.go):(\d+)(?::(\d+))?: (.+)$`)

func (o *Orchestrator) goCommand(dir string, args ...string) exec.Command {
	bin := o.cfg.Go.Binary
	if bin == "" {
		bin = "go"
	}
	return exec.Command{Dir: dir, Name: bin, Args: args, Timeout: o.cfg.Timeouts.Build}
}

// toolchain probes the installed go version once per run. A go binary that
// cannot start yields an error instead of a version.
func (o *Orchestrator) toolchain(ctx context.Context, rs *run) (*semver.Version, *taxonomy.BuildError) {
	rs.goOnce.Do(func() {
		cmd := o.goCommand(o.ws.Root, "env", "GOVERSION")
		cmd.Timeout = o.cfg.Timeouts.Probe
		res, err := o.runner.Run(ctx, cmd)
		if err != nil {
			be := taxonomy.New(taxonomy.EnvironmentConfiguration, taxonomy.High, "go",
				fmt.Sprintf("go toolchain unavailable: %v", err)).WithCause(err)
			rs.goErr = &be
			return
		}
		if !res.Success() {
			slog.Warn("go env GOVERSION failed", "exit", res.ExitCode, "output", strings.TrimSpace(res.Output))
			return
		}
		v, err := resolve.ParseGoVersion(res.Output)
		if err != nil {
			slog.Debug("unparsable go version, skipping compatibility checks", "version", strings.TrimSpace(res.Output))
			return
		}
		rs.goVersion = v
	})
	return rs.goVersion, rs.goErr
}

// dependencies checks every project's go.mod and asks the go command to
// resolve the full module graph.
func (o *Orchestrator) dependencies(ctx context.Context, rs *run, r *phase.Result) error {
	if len(o.ws.Projects) == 0 {
		r.AddWarning("no Go modules found under %s", o.ws.Root)
		return nil
	}

	versions := make(map[string]map[string][]string)
	for _, p := range o.ws.Projects {
		if p.ParseError != nil {
			r.AddError(taxonomy.New(taxonomy.ConfigurationError, taxonomy.High, p.ManifestPath(), p.ParseError.Error()).
				WithCause(p.ParseError).
				WithData(taxonomy.DataDir, p.Dir))
			continue
		}
		for _, req := range p.Requires {
			if _, err := semver.NewVersion(req.Version); err != nil {
				r.AddError(taxonomy.New(taxonomy.PackageReference, taxonomy.High, p.ManifestPath(),
					fmt.Sprintf("invalid version %q for module %s", req.Version, req.Path)).
					WithData(taxonomy.DataModule, req.Path).
					WithData(taxonomy.DataVersion, req.Version).
					WithData(taxonomy.DataDir, p.Dir))
				continue
			}
			if versions[req.Path] == nil {
				versions[req.Path] = make(map[string][]string)
			}
			versions[req.Path][req.Version] = append(versions[req.Path][req.Version], p.Name)
		}
	}
	for _, w := range versionConflicts(versions) {
		r.AddWarning("%s", w)
	}

	if _, be := o.toolchain(ctx, rs); be != nil {
		r.AddError(*be)
		return nil
	}
	for _, p := range o.ws.Projects {
		if p.ParseError != nil {
			continue
		}
		res, err := o.runner.Run(ctx, o.goCommand(p.Dir, "list", "-m", "all"))
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			r.AddError(toolFailure(p, taxonomy.PackageReference, err))
			continue
		}
		if !res.Success() {
			r.AddError(o.classifyOutput(p, res, taxonomy.PackageReference)...)
		}
	}
	return nil
}

// versionConflicts describes modules that different projects require at
// different versions. Minimal version selection still builds these, so
// they are warnings.
func versionConflicts(versions map[string]map[string][]string) []string {
	var out []string
	for mod, byVersion := range versions {
		if len(byVersion) < 2 {
			continue
		}
		vs := make([]*semver.Version, 0, len(byVersion))
		for v := range byVersion {
			vs = append(vs, semver.MustParse(v))
		}
		slices.SortFunc(vs, func(a, b *semver.Version) int { return a.Compare(b) })

		parts := make([]string, len(vs))
		for i, v := range vs {
			users := byVersion[v.Original()]
			slices.Sort(users)
			parts[i] = fmt.Sprintf("%s (%s)", v.Original(), strings.Join(users, ", "))
		}
		out = append(out, fmt.Sprintf("package version conflict for %s: %s", mod, strings.Join(parts, " vs ")))
	}
	slices.Sort(out)
	return out
}

// projectReferences builds the local replacement graph and reports missing
// targets and cycles.
func (o *Orchestrator) projectReferences(_ context.Context, _ *run, r *phase.Result) error {
	g, errs := referenceGraph(o.ws)
	r.AddError(errs...)

	for _, dir := range o.ws.WorkUses {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err != nil {
			r.AddError(taxonomy.New(taxonomy.ProjectReference, taxonomy.High, o.ws.WorkFile,
				fmt.Sprintf("go.work uses %s which has no go.mod", relTo(o.ws.Root, dir))).
				WithData(taxonomy.DataMissing, dir).
				WithData(taxonomy.DataDir, o.ws.Root))
		}
	}

	for _, c := range g.Cycles() {
		msg := "Circular dependency detected: " + c.String()
		r.AddError(o.classifier.Classify("project-graph", msg).
			WithData(taxonomy.DataCycle, c.String()).
			WithData(taxonomy.DataDir, o.ws.Root))
	}
	return nil
}

// referenceGraph returns the project graph formed by local replace
// directives. Targets that do not exist are returned as errors.
func referenceGraph(ws *workspace.Workspace) (*graph.DependencyGraph, []taxonomy.BuildError) {
	g := graph.New()
	g.SetDebugLog(func(format string, args ...interface{}) {
		slog.Debug(fmt.Sprintf(format, args...))
	})

	var errs []taxonomy.BuildError
	for _, p := range ws.Projects {
		g.AddNode(p.Name)
		for _, rep := range p.Replacements {
			if !rep.Local() {
				continue
			}
			if target := ws.ProjectByDir(rep.Dir); target != nil {
				g.AddEdge(p.Name, target.Name)
				continue
			}
			var msg string
			if _, err := os.Stat(rep.Dir); err != nil {
				msg = fmt.Sprintf("project reference %s => %s: directory does not exist", rep.Old, rep.New)
			} else if _, err := os.Stat(filepath.Join(rep.Dir, "go.mod")); err != nil {
				msg = fmt.Sprintf("project reference %s => %s: no go.mod in target directory", rep.Old, rep.New)
			} else {
				// A module outside the workspace; nothing to validate here.
				continue
			}
			errs = append(errs, taxonomy.New(taxonomy.ProjectReference, taxonomy.High, p.ManifestPath(), msg).
				WithData(taxonomy.DataMissing, rep.Dir).
				WithData(taxonomy.DataDir, p.Dir))
		}
	}
	return g, errs
}

// compilation builds every project in dependency order.
func (o *Orchestrator) compilation(ctx context.Context, rs *run, r *phase.Result) error {
	if len(o.ws.Projects) == 0 {
		r.AddWarning("no Go modules found under %s", o.ws.Root)
		return nil
	}
	have, be := o.toolchain(ctx, rs)
	if be != nil {
		r.AddError(*be)
		return nil
	}

	for _, p := range buildOrder(o.ws) {
		if p.ParseError != nil {
			r.AddWarning("skipping %s: go.mod could not be parsed", p.Name)
			continue
		}
		if have != nil && p.GoVersion != "" {
			if want, err := resolve.ParseGoVersion(p.GoVersion); err == nil && have.LessThan(want) {
				r.AddError(taxonomy.New(taxonomy.FrameworkCompatibility, taxonomy.High, p.ManifestPath(),
					fmt.Sprintf("module %s requires go >= %s (installed toolchain is go%s)", p.Name, p.GoVersion, have)).
					WithData(taxonomy.DataGoVersion, p.GoVersion).
					WithData(taxonomy.DataDir, p.Dir))
				continue
			}
		}

		slog.Debug("building project", "project", p.Name, "dir", p.Dir)
		res, err := o.runner.Run(ctx, o.goCommand(p.Dir, "build", "./..."))
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			r.AddError(toolFailure(p, taxonomy.CompilationError, err))
			continue
		}
		if !res.Success() {
			r.AddError(o.classifyOutput(p, res, taxonomy.CompilationError)...)
		}
	}
	return nil
}

// buildOrder returns projects with dependencies first. A cyclic graph
// falls back to discovery order; the cycle is reported by ProjectReferences.
func buildOrder(ws *workspace.Workspace) []*workspace.Project {
	g, _ := referenceGraph(ws)
	names, err := g.TopologicalSort()
	if err != nil {
		return ws.Projects
	}
	out := make([]*workspace.Project, 0, len(names))
	for _, name := range names {
		if p := ws.ProjectByName(name); p != nil {
			out = append(out, p)
		}
	}
	return out
}

// toolFailure reports a go command that could not run to completion.
func toolFailure(p *workspace.Project, fallback taxonomy.Category, err error) taxonomy.BuildError {
	msg := fmt.Sprintf("go command could not run in %s: %v", p.RelDir, err)
	if errors.Is(err, exec.ErrTimeout) {
		msg = fmt.Sprintf("go command timed out in %s", p.RelDir)
	}
	return taxonomy.New(fallback, taxonomy.High, p.Name, msg).
		WithCause(err).
		WithData(taxonomy.DataDir, p.Dir)
}

// classifyOutput turns a failed go command's output into classified
// errors. Lines the classifier does not recognise take the fallback
// category.
func (o *Orchestrator) classifyOutput(p *workspace.Project, res *exec.Result, fallback taxonomy.Category) []taxonomy.BuildError {
	lines := diagnosticLines(res.Output)
	if len(lines) == 0 {
		msg := fmt.Sprintf("go command failed in %s with exit code %d", p.RelDir, res.ExitCode)
		return []taxonomy.BuildError{taxonomy.New(fallback, taxonomy.High, p.Name, msg).WithData(taxonomy.DataDir, p.Dir)}
	}

	var out []taxonomy.BuildError
	for _, line := range lines {
		if len(out) == maxErrorsPerProject {
			slog.Debug("error cap reached", "project", p.Name, "lines", len(lines))
			break
		}
		source := p.Name
		if m := compilerLine.FindStringSubmatch(line); m != nil {
			source = filepath.Join(p.RelDir, m[1]) + ":" + m[2]
		}
		be := o.classifier.Classify(source, line)
		if be.Category == taxonomy.Unknown {
			be = taxonomy.New(fallback, taxonomy.DefaultSeverity(fallback), source, line)
		}
		out = append(out, be.WithData(taxonomy.DataDir, p.Dir))
	}
	return out
}

// diagnosticLines picks compiler diagnostics and other error-looking lines
// from go command output, in order and without duplicates.
func diagnosticLines(output string) []string {
	seen := make(map[string]bool)
	var lines []string
	add := func(l string) {
		if !seen[l] {
			seen[l] = true
			lines = append(lines, l)
		}
	}
	errorLines := taxonomy.ExtractErrorLines(output)
	isErrorLine := make(map[string]bool, len(errorLines))
	for _, l := range errorLines {
		isErrorLine[l] = true
	}
	for _, line := range strings.Split(output, "\n") {
		l := strings.TrimSpace(line)
		if l == "" || strings.HasPrefix(l, "#") {
			continue
		}
		if compilerLine.MatchString(l) || isErrorLine[l] || strings.HasPrefix(l, "go: ") {
			add(l)
		}
	}
	return lines
}

func relTo(root, path string) string {
	if rel, err := filepath.Rel(root, path); err == nil {
		return rel
	}
	return path
}
