package dockerdiag

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ShayCichocki/buildcheck/internal/exec"
)

// ErrEngineUnavailable is returned when the container engine cannot be reached.
var ErrEngineUnavailable = errors.New("container engine unavailable")

// Engine drives the docker CLI.
type Engine struct {
	Runner       exec.CommandRunner
	Binary       string
	ProbeTimeout time.Duration
	BuildTimeout time.Duration
}

func (e *Engine) binary() string {
	if e.Binary == "" {
		return "docker"
	}
	return e.Binary
}

// Available probes the engine with `docker version`. Timeouts count as
// unavailable.
func (e *Engine) Available(ctx context.Context) error {
	timeout := e.ProbeTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	res, err := e.Runner.Run(ctx, exec.Command{
		Name:    e.binary(),
		Args:    []string{"version", "--format", "{{.Server.Version}}"},
		Timeout: timeout,
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrEngineUnavailable, err)
	}
	if !res.Success() {
		return fmt.Errorf("%w: %s", ErrEngineUnavailable, strings.TrimSpace(res.Output))
	}
	return nil
}

// Build runs a throwaway `docker build` of dockerfile against contextDir.
func (e *Engine) Build(ctx context.Context, dockerfile, contextDir string) (*exec.Result, error) {
	return e.Runner.Run(ctx, exec.Command{
		Dir:     contextDir,
		Name:    e.binary(),
		Args:    []string{"build", "--progress=plain", "-f", dockerfile, "."},
		Timeout: e.BuildTimeout,
	})
}
