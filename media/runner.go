package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// DefaultTimeout bounds a single tool invocation.
const DefaultTimeout = 5 * time.Minute

// maxDiagnostic caps the stderr carried in a ToolError.
const maxDiagnostic = 4096

// Runner executes an external tool and returns its stdout.
// A non-zero exit, a start failure or a timeout yields a *ToolError.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// ToolError describes a failed tool invocation.
type ToolError struct {
	Tool     string
	ExitCode int
	TimedOut bool
	Stderr   string
	Err      error
}

func (e *ToolError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s", e.Tool)
	switch {
	case e.TimedOut:
		b.WriteString(" timed out")
	case e.ExitCode != 0:
		fmt.Fprintf(&b, " exited with code %d", e.ExitCode)
	default:
		b.WriteString(" failed")
	}
	if e.Err != nil && !e.TimedOut && e.ExitCode == 0 {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	if e.Stderr != "" {
		fmt.Fprintf(&b, ": %s", e.Stderr)
	}
	return b.String()
}

func (e *ToolError) Unwrap() error { return e.Err }

// ExecRunner runs tools with os/exec.
type ExecRunner struct {
	// Timeout applies to each invocation. Zero uses DefaultTimeout.
	Timeout time.Duration
}

// Run executes name with args, capturing stdout and stderr.
func (r ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	timeout := r.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err == nil {
		return stdout.Bytes(), nil
	}

	te := &ToolError{
		Tool:   name,
		Stderr: truncate(strings.TrimSpace(stderr.String()), maxDiagnostic),
		Err:    err,
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		te.TimedOut = true
		te.Err = fmt.Errorf("after %s: %w", timeout, context.DeadlineExceeded)
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		te.ExitCode = exitErr.ExitCode()
	}
	return stdout.Bytes(), te
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
