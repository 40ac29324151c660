package dockerdiag

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ShayCichocki/buildcheck/internal/taxonomy"
)

// MaxConsecutiveRun is the default number of back-to-back RUN instructions
// tolerated before recommending they be combined.
const MaxConsecutiveRun = 5

// IssueKind grades a static analysis finding.
type IssueKind int

const (
	KindError IssueKind = iota
	KindWarning
	KindRecommendation
)

func (k IssueKind) String() string {
	switch k {
	case KindError:
		return "error"
	case KindWarning:
		return "warning"
	default:
		return "recommendation"
	}
}

// MarshalText encodes the kind by name.
func (k IssueKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Issue is one static analysis finding in a Dockerfile.
type Issue struct {
	Line    int       `json:"line,omitempty"`
	Kind    IssueKind `json:"kind"`
	Stage   Stage     `json:"stage"`
	Message string    `json:"message"`
	// Subject is the offending value, e.g. the COPY source.
	Subject string `json:"subject,omitempty"`
}

func (i Issue) String() string {
	var b strings.Builder
	if i.Line > 0 {
		fmt.Fprintf(&b, "line %d: ", i.Line)
	}
	b.WriteString(i.Message)
	if i.Subject != "" {
		fmt.Fprintf(&b, " (%s)", i.Subject)
	}
	return b.String()
}

// Severity maps the issue kind onto the taxonomy.
func (i Issue) Severity() taxonomy.Severity {
	switch i.Kind {
	case KindError:
		return taxonomy.High
	case KindWarning:
		return taxonomy.Medium
	default:
		return taxonomy.Low
	}
}

// BuildError converts the issue into a stage-tagged error for file.
func (i Issue) BuildError(file string) BuildError {
	be := taxonomy.New(taxonomy.DockerBuild, i.Severity(), file, i.String()).
		WithData(taxonomy.DataStage, i.Stage.String()).
		WithData(taxonomy.DataContext, filepath.Dir(file))
	be.ResolutionHint = Recommendation(i.Stage)
	return BuildError{BuildError: be, Stage: i.Stage}
}

// Instruction is one logical Dockerfile instruction after joining line
// continuations.
type Instruction struct {
	Line int
	Cmd  string
	Args string
}

// ParseInstructions splits a Dockerfile into instructions. Comments and
// blank lines are dropped; a trailing backslash joins the next line.
func ParseInstructions(data []byte) []Instruction {
	var out []Instruction
	var pending strings.Builder
	start := 0

	flush := func() {
		text := strings.TrimSpace(pending.String())
		pending.Reset()
		if text == "" {
			return
		}
		cmd, args, _ := strings.Cut(text, " ")
		out = append(out, Instruction{Line: start, Cmd: strings.ToUpper(cmd), Args: strings.TrimSpace(args)})
	}

	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if strings.HasPrefix(line, "#") {
			continue
		}
		if line == "" && pending.Len() == 0 {
			continue
		}
		if pending.Len() == 0 {
			start = lineNo
		}
		if cont, ok := strings.CutSuffix(line, "\\"); ok {
			pending.WriteString(cont)
			pending.WriteByte(' ')
			continue
		}
		pending.WriteString(line)
		flush()
	}
	flush()
	return out
}

// AnalyzeDockerfile statically checks the Dockerfile at path. The build
// context is taken to be the Dockerfile's directory.
func AnalyzeDockerfile(path string) ([]Issue, error) {
	return AnalyzeDockerfileWithContext(path, filepath.Dir(path), MaxConsecutiveRun)
}

// AnalyzeDockerfileWithContext checks the Dockerfile at path against an
// explicit build context directory.
func AnalyzeDockerfileWithContext(path, contextDir string, maxRun int) ([]Issue, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read dockerfile: %w", err)
	}
	if maxRun <= 0 {
		maxRun = MaxConsecutiveRun
	}

	instructions := ParseInstructions(data)
	var issues []Issue

	stages := make(map[string]bool)
	hasFrom := false
	runStart, runCount := 0, 0
	endRun := func() {
		if runCount > maxRun {
			issues = append(issues, Issue{
				Line:    runStart,
				Kind:    KindRecommendation,
				Stage:   StageDockerfile,
				Message: fmt.Sprintf("combine %d consecutive RUN instructions to reduce image layers", runCount),
			})
		}
		runCount = 0
	}

	for _, in := range instructions {
		if in.Cmd == "RUN" {
			if runCount == 0 {
				runStart = in.Line
			}
			runCount++
			continue
		}
		endRun()

		switch in.Cmd {
		case "FROM":
			hasFrom = true
			image, alias := parseFrom(in.Args)
			if issue, ok := checkBaseImage(image, stages); !ok {
				issue.Line = in.Line
				issues = append(issues, issue)
			}
			if alias != "" {
				stages[strings.ToLower(alias)] = true
			}
		case "COPY", "ADD":
			issues = append(issues, checkCopy(in, contextDir)...)
		}
	}
	endRun()

	if !hasFrom {
		issues = append(issues, Issue{
			Kind:    KindError,
			Stage:   StageDockerfile,
			Message: "Dockerfile has no FROM instruction",
		})
	}

	if _, err := os.Stat(filepath.Join(contextDir, ".dockerignore")); err != nil {
		issues = append(issues, Issue{
			Kind:    KindWarning,
			Stage:   StageBuildContext,
			Message: "build context has no .dockerignore",
			Subject: contextDir,
		})
	}

	return issues, nil
}

func parseFrom(args string) (image, alias string) {
	var fields []string
	for _, f := range strings.Fields(args) {
		if !strings.HasPrefix(f, "--") {
			fields = append(fields, f)
		}
	}
	if len(fields) == 0 {
		return "", ""
	}
	image = fields[0]
	if len(fields) >= 3 && strings.EqualFold(fields[1], "as") {
		alias = fields[2]
	}
	return image, alias
}

func checkBaseImage(image string, stages map[string]bool) (Issue, bool) {
	switch {
	case image == "":
		return Issue{Kind: KindError, Stage: StageBaseImage, Message: "FROM has no image"}, false
	case image == "scratch", strings.Contains(image, "$"), stages[strings.ToLower(image)]:
		return Issue{}, true
	case strings.Contains(image, "@sha256:"):
		return Issue{}, true
	}

	name := image
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}
	_, tag, ok := strings.Cut(name, ":")
	if !ok || tag == "" || tag == "latest" {
		return Issue{
			Kind:    KindWarning,
			Stage:   StageBaseImage,
			Message: "base image is not pinned to a specific tag",
			Subject: image,
		}, false
	}
	return Issue{}, true
}

func checkCopy(in Instruction, contextDir string) []Issue {
	args, fromStage := copyArgs(in.Args)
	if fromStage || len(args) < 2 {
		return nil
	}

	var issues []Issue
	for _, src := range args[:len(args)-1] {
		if in.Cmd == "ADD" && isRemote(src) {
			continue
		}
		if filepath.IsAbs(src) || strings.HasPrefix(src, "/") || src == ".." || strings.HasPrefix(src, "../") {
			issues = append(issues, Issue{
				Line:    in.Line,
				Kind:    KindError,
				Stage:   StageBuildContext,
				Message: in.Cmd + " source should be relative",
				Subject: src,
			})
			continue
		}
		if strings.ContainsAny(src, "*?[") || strings.Contains(src, "$") {
			continue
		}
		if _, err := os.Stat(filepath.Join(contextDir, filepath.FromSlash(src))); err != nil {
			issues = append(issues, Issue{
				Line:    in.Line,
				Kind:    KindError,
				Stage:   StageBuildContext,
				Message: in.Cmd + " source does not exist in build context",
				Subject: src,
			})
		}
	}
	return issues
}

// copyArgs returns the source and destination arguments and whether the
// instruction copies from another stage.
func copyArgs(raw string) ([]string, bool) {
	var flags []string
	rest := raw
	for strings.HasPrefix(rest, "--") {
		flag, tail, _ := strings.Cut(rest, " ")
		flags = append(flags, flag)
		rest = strings.TrimSpace(tail)
	}
	for _, f := range flags {
		if strings.HasPrefix(f, "--from=") {
			return nil, true
		}
	}

	if strings.HasPrefix(rest, "[") {
		var args []string
		if err := json.Unmarshal([]byte(rest), &args); err == nil {
			return args, false
		}
	}
	return strings.Fields(rest), false
}

func isRemote(src string) bool {
	return strings.HasPrefix(src, "http://") || strings.HasPrefix(src, "https://") || strings.HasPrefix(src, "git@")
}
