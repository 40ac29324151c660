// Package exectest provides a scripted exec.CommandRunner for tests.
package exectest

import (
	"context"
	"strings"
	"sync"

	"github.com/ShayCichocki/buildcheck/internal/exec"
)

// Response is the scripted outcome for a matching command.
type Response struct {
	Output   string
	ExitCode int
	Err      error
}

// FakeRunner answers commands from a table keyed by the command line
// ("go build ./...") optionally prefixed by "dir:" ("/ws/api:go build ./...").
// The most specific key wins. Unmatched commands succeed with empty output.
type FakeRunner struct {
	mu        sync.Mutex
	responses map[string]Response
	calls     []exec.Command
	// Default is returned for unmatched commands.
	Default Response
}

// New creates an empty FakeRunner.
func New() *FakeRunner {
	return &FakeRunner{responses: make(map[string]Response)}
}

// On scripts the response for key.
func (f *FakeRunner) On(key string, resp Response) *FakeRunner {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses[key] = resp
	return f
}

// Run implements exec.CommandRunner.
func (f *FakeRunner) Run(ctx context.Context, cmd exec.Command) (*exec.Result, error) {
	f.mu.Lock()
	f.calls = append(f.calls, cmd)
	resp, ok := f.responses[cmd.Dir+":"+cmd.String()]
	if !ok {
		resp, ok = f.responses[cmd.String()]
	}
	if !ok {
		resp, ok = f.responses[cmd.Name]
	}
	if !ok {
		resp = f.Default
	}
	f.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if resp.Err != nil {
		return nil, resp.Err
	}
	return &exec.Result{Output: resp.Output, ExitCode: resp.ExitCode}, nil
}

// Calls returns a copy of every command run so far.
func (f *FakeRunner) Calls() []exec.Command {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]exec.Command(nil), f.calls...)
}

// CallCount returns how many runs matched the given command line prefix.
func (f *FakeRunner) CallCount(prefix string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if strings.HasPrefix(c.String(), prefix) {
			n++
		}
	}
	return n
}

var _ exec.CommandRunner = (*FakeRunner)(nil)
