// Package subprocess runs external speech engines under a deadline.
//
// Local TTS engines (eSpeak, Festival, the macOS say command) are driven as
// child processes. A Runner applies a default timeout when the caller's
// context has none, feeds stdin before the process starts, and folds stderr
// into the returned error so engine diagnostics reach the caller verbatim.
package subprocess

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// ErrTimeout is returned when a process is killed because its deadline passed.
var ErrTimeout = errors.New("subprocess: timed out")

// ErrNotFound is returned by Find when none of the candidate binaries exist.
var ErrNotFound = errors.New("subprocess: executable not found")

// DefaultTimeout bounds processes whose context carries no deadline.
const DefaultTimeout = 60 * time.Second

// Runner executes commands. The zero value is not usable; create one with New.
// A Runner holds no per-call state and is safe for concurrent use.
type Runner struct {
	timeout time.Duration
}

// New returns a Runner that bounds each process by timeout when the caller's
// context has no deadline. A non-positive timeout selects DefaultTimeout.
func New(timeout time.Duration) *Runner {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Runner{timeout: timeout}
}

// Run starts name with args, writes stdin (if non-empty) to the process, and
// returns its stdout. A non-zero exit status is an error that includes the
// trimmed stderr output.
func (r *Runner) Run(ctx context.Context, stdin string, name string, args ...string) ([]byte, error) {
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, name, args...)
	if stdin != "" {
		cmd.Stdin = strings.NewReader(stdin)
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if ctxErr := ctx.Err(); ctxErr != nil {
		if errors.Is(ctxErr, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %s", ErrTimeout, name)
		}
		return nil, fmt.Errorf("subprocess: %s cancelled: %w", name, ctxErr)
	}
	if err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return nil, fmt.Errorf("subprocess: %s: %w: %s", name, err, msg)
		}
		return nil, fmt.Errorf("subprocess: %s: %w", name, err)
	}
	return stdout.Bytes(), nil
}

// Find returns the path of the first candidate found on PATH.
func Find(candidates ...string) (string, error) {
	for _, c := range candidates {
		if c == "" {
			continue
		}
		if p, err := exec.LookPath(c); err == nil {
			return p, nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrNotFound, strings.Join(candidates, ", "))
}
