// Package exec provides an interface for running external tools such as the
// go toolchain and the container engine.
package exec

import (
	"context"
	"errors"
	"strings"
	"time"
)

// ErrTimeout is returned when a command exceeds its timeout.
var ErrTimeout = errors.New("command timed out")

// Command describes one external process invocation.
type Command struct {
	// Dir is the working directory; empty means the current directory.
	Dir string
	// Name is the executable, resolved through PATH.
	Name string
	// Args are the command arguments.
	Args []string
	// Env entries (KEY=VALUE) are appended to the current environment.
	Env []string
	// Timeout bounds the run; zero means only ctx bounds it.
	Timeout time.Duration
}

// String renders the command line for logs and reports.
func (c Command) String() string {
	return strings.TrimSpace(c.Name + " " + strings.Join(c.Args, " "))
}

// Result is the outcome of a command that started.
type Result struct {
	// Output is combined stdout and stderr.
	Output string
	// ExitCode is the process exit code (0 on success).
	ExitCode int
	// Duration is the wall time of the run.
	Duration time.Duration
}

// Success reports whether the process exited with code 0.
func (r *Result) Success() bool {
	return r != nil && r.ExitCode == 0
}

// CommandRunner runs external commands. A non-zero exit is reported through
// Result.ExitCode, not as an error; errors mean the process could not be
// started, timed out or was cancelled.
type CommandRunner interface {
	Run(ctx context.Context, cmd Command) (*Result, error)
}
