package exec

import (
	"context"
	"errors"
	"os/exec"
	"runtime"
	"strings"
	"testing"
	"time"
)

func requireShell(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell commands not available on windows")
	}
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
}

func TestExecRunner_Success(t *testing.T) {
	requireShell(t)
	r := NewRunner()

	res, err := r.Run(context.Background(), Command{Name: "sh", Args: []string{"-c", "echo hello"}})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !res.Success() {
		t.Errorf("ExitCode = %d, want 0", res.ExitCode)
	}
	if strings.TrimSpace(res.Output) != "hello" {
		t.Errorf("Output = %q, want hello", res.Output)
	}
}

func TestExecRunner_NonZeroExitIsNotAnError(t *testing.T) {
	requireShell(t)
	r := NewRunner()

	res, err := r.Run(context.Background(), Command{Name: "sh", Args: []string{"-c", "echo bad >&2; exit 3"}})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res.ExitCode != 3 {
		t.Errorf("ExitCode = %d, want 3", res.ExitCode)
	}
	if !strings.Contains(res.Output, "bad") {
		t.Errorf("stderr should be captured, got %q", res.Output)
	}
}

func TestExecRunner_Env(t *testing.T) {
	requireShell(t)
	r := NewRunner()

	res, err := r.Run(context.Background(), Command{
		Name: "sh",
		Args: []string{"-c", "echo $BUILDCHECK_TEST_VALUE"},
		Env:  []string{"BUILDCHECK_TEST_VALUE=42"},
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if strings.TrimSpace(res.Output) != "42" {
		t.Errorf("Output = %q, want 42", res.Output)
	}
}

func TestExecRunner_Timeout(t *testing.T) {
	requireShell(t)
	r := NewRunner()

	_, err := r.Run(context.Background(), Command{
		Name:    "sh",
		Args:    []string{"-c", "sleep 5"},
		Timeout: 100 * time.Millisecond,
	})
	if !errors.Is(err, ErrTimeout) {
		t.Errorf("Run() error = %v, want ErrTimeout", err)
	}
}

func TestExecRunner_MissingBinary(t *testing.T) {
	r := NewRunner()
	_, err := r.Run(context.Background(), Command{Name: "definitely-not-a-real-binary-xyz"})
	if err == nil {
		t.Error("expected error for missing binary")
	}
}

func TestExecRunner_EmptyCommand(t *testing.T) {
	r := NewRunner()
	if _, err := r.Run(context.Background(), Command{}); err == nil {
		t.Error("expected error for empty command")
	}
}

func TestCommand_String(t *testing.T) {
	c := Command{Name: "go", Args: []string{"build", "./..."}}
	if c.String() != "go build ./..." {
		t.Errorf("String() = %q", c.String())
	}
}
