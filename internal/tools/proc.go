package tools

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"strings"
	"time"
)

type procResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Combined merges both streams for model consumption, stderr last.
func (r procResult) Combined() string {
	out := strings.TrimSpace(r.Stdout)
	errOut := strings.TrimSpace(r.Stderr)
	switch {
	case out == "":
		return errOut
	case errOut == "":
		return out
	default:
		return out + "\n" + errOut
	}
}

// runProcess executes an external binary with a hard deadline. A missing
// binary maps to KindUnavailable and a blown deadline to KindTimeout; a
// non-zero exit is not an error here, callers judge the exit code.
func runProcess(ctx context.Context, toolName, dir string, timeout time.Duration, name string, args ...string) (procResult, error) {
	if _, err := exec.LookPath(name); err != nil {
		return procResult{}, newToolError(KindUnavailable, toolName, name+" is not installed", err)
	}

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, name, args...)
	if dir != "" {
		cmd.Dir = dir
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	result := procResult{
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}

	if ctx.Err() != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return result, newToolError(KindTimeout, toolName, name+" exceeded "+timeout.String(), ctx.Err())
		}
		return result, ctx.Err()
	}

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
			return result, nil
		}
		return result, newToolError(KindExternalFailure, toolName, "failed to run "+name, err)
	}
	return result, nil
}
