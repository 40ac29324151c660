// Package workspace discovers the workspace root and enumerates the Go
// modules (projects) inside it.
package workspace

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"golang.org/x/mod/modfile"
)

// ErrRootNotFound is returned when no marker file exists in any parent.
var ErrRootNotFound = errors.New("workspace root not found")

// DefaultMarkers are searched in priority order when discovering the root.
var DefaultMarkers = []string{"go.work", ".buildcheck.yaml", "go.mod"}

// Requirement is one require directive.
type Requirement struct {
	Path     string
	Version  string
	Indirect bool
}

// Replacement is one replace directive. Local replacements point at a
// directory and form project references.
type Replacement struct {
	Old     string
	New     string
	Version string
	// Dir is the absolute target directory for local replacements.
	Dir string
}

// Local reports whether the replacement targets a directory.
func (r Replacement) Local() bool {
	return r.Dir != ""
}

// Project is one Go module in the workspace.
type Project struct {
	// Name is the module path, or the relative directory if go.mod is unparsable.
	Name string
	// Dir is the absolute module directory.
	Dir string
	// RelDir is Dir relative to the workspace root.
	RelDir string
	// GoVersion is the go directive.
	GoVersion string
	// Toolchain is the toolchain directive, if any.
	Toolchain    string
	Requires     []Requirement
	Replacements []Replacement
	// ParseError is set when go.mod could not be parsed.
	ParseError error
}

// ManifestPath returns the path of the project's go.mod.
func (p *Project) ManifestPath() string {
	return filepath.Join(p.Dir, "go.mod")
}

// Workspace is the discovered set of projects.
type Workspace struct {
	Root     string
	Projects []*Project
	// WorkFile is the path to go.work, if present at the root.
	WorkFile string
	// WorkUses are the absolute directories listed in go.work.
	WorkUses []string
}

// FindRoot walks from start towards the filesystem root looking for each
// marker in priority order. The first marker found anywhere wins, so a
// go.work above a nested go.mod selects the go.work directory.
func FindRoot(start string, markers []string) (string, error) {
	if len(markers) == 0 {
		markers = DefaultMarkers
	}
	abs, err := filepath.Abs(start)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", start, err)
	}

	for _, marker := range markers {
		dir := abs
		for {
			if _, err := os.Stat(filepath.Join(dir, marker)); err == nil {
				return dir, nil
			}
			parent := filepath.Dir(dir)
			if parent == dir {
				break
			}
			dir = parent
		}
	}
	return "", fmt.Errorf("%w from %s (markers: %s)", ErrRootNotFound, abs, strings.Join(markers, ", "))
}

// skipDir reports whether a directory should not be searched for projects.
func skipDir(name string) bool {
	switch name {
	case "vendor", "node_modules", "testdata", "bin", "obj":
		return true
	}
	return strings.HasPrefix(name, ".") || strings.HasPrefix(name, "_")
}

// Load enumerates every go.mod under root.
func Load(root string) (*Workspace, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve root: %w", err)
	}
	if info, err := os.Stat(abs); err != nil {
		return nil, fmt.Errorf("stat root: %w", err)
	} else if !info.IsDir() {
		return nil, fmt.Errorf("workspace root %s is not a directory", abs)
	}

	ws := &Workspace{Root: abs}

	err = filepath.WalkDir(abs, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != abs && skipDir(d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		if d.Name() != "go.mod" {
			return nil
		}
		ws.Projects = append(ws.Projects, loadProject(abs, filepath.Dir(path)))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan workspace: %w", err)
	}

	slices.SortFunc(ws.Projects, func(a, b *Project) int {
		return strings.Compare(a.RelDir, b.RelDir)
	})

	workPath := filepath.Join(abs, "go.work")
	if data, err := os.ReadFile(workPath); err == nil {
		ws.WorkFile = workPath
		wf, err := modfile.ParseWork(workPath, data, nil)
		if err != nil {
			return nil, fmt.Errorf("parse go.work: %w", err)
		}
		for _, use := range wf.Use {
			ws.WorkUses = append(ws.WorkUses, resolveDir(abs, use.Path))
		}
	}

	return ws, nil
}

func loadProject(root, dir string) *Project {
	rel, err := filepath.Rel(root, dir)
	if err != nil {
		rel = dir
	}
	p := &Project{Name: filepath.ToSlash(rel), Dir: dir, RelDir: filepath.ToSlash(rel)}

	path := filepath.Join(dir, "go.mod")
	data, err := os.ReadFile(path)
	if err != nil {
		p.ParseError = fmt.Errorf("read %s: %w", path, err)
		return p
	}
	mf, err := modfile.Parse(path, data, nil)
	if err != nil {
		p.ParseError = err
		return p
	}

	if mf.Module != nil {
		p.Name = mf.Module.Mod.Path
	}
	if mf.Go != nil {
		p.GoVersion = mf.Go.Version
	}
	if mf.Toolchain != nil {
		p.Toolchain = mf.Toolchain.Name
	}
	for _, r := range mf.Require {
		p.Requires = append(p.Requires, Requirement{Path: r.Mod.Path, Version: r.Mod.Version, Indirect: r.Indirect})
	}
	for _, r := range mf.Replace {
		rep := Replacement{Old: r.Old.Path, New: r.New.Path, Version: r.New.Version}
		if r.New.Version == "" && modfile.IsDirectoryPath(r.New.Path) {
			rep.Dir = resolveDir(dir, r.New.Path)
		}
		p.Replacements = append(p.Replacements, rep)
	}
	return p
}

func resolveDir(base, path string) string {
	if filepath.IsAbs(path) {
		return filepath.Clean(path)
	}
	return filepath.Clean(filepath.Join(base, filepath.FromSlash(path)))
}

// ProjectByDir returns the project rooted at dir, or nil.
func (w *Workspace) ProjectByDir(dir string) *Project {
	clean := filepath.Clean(dir)
	for _, p := range w.Projects {
		if p.Dir == clean {
			return p
		}
	}
	return nil
}

// ProjectByName returns the project with the given module path, or nil.
func (w *Workspace) ProjectByName(name string) *Project {
	for _, p := range w.Projects {
		if p.Name == name {
			return p
		}
	}
	return nil
}

// TestProjects returns the projects whose directory or module name contains
// any of the naming conventions, case-insensitively.
func (w *Workspace) TestProjects(conventions []string) []*Project {
	var out []*Project
	for _, p := range w.Projects {
		base := strings.ToLower(filepath.Base(p.Dir))
		name := strings.ToLower(p.Name)
		for _, conv := range conventions {
			conv = strings.ToLower(conv)
			if conv == "" {
				continue
			}
			if strings.Contains(base, conv) || strings.Contains(name, conv) {
				out = append(out, p)
				break
			}
		}
	}
	return out
}
