// Package runner executes target files on the host and captures their
// output for execution analysis.
package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"time"

	"go.uber.org/zap"

	"github.com/faultlens/faultlens/internal/core"
)

const (
	// DefaultTimeout bounds a single target run.
	DefaultTimeout = 2 * time.Minute
	// DefaultMaxOutputBytes caps each captured stream.
	DefaultMaxOutputBytes int64 = 1 << 20

	waitDelay = 2 * time.Second
)

// Logger is the subset of the structured logger used by the runner.
type Logger interface {
	Debug(msg string, fields ...zap.Field)
	Warn(msg string, fields ...zap.Field)
}

// Exec runs targets directly on the host with os/exec. There is no
// sandboxing: the target runs with the caller's privileges.
type Exec struct {
	Timeout        time.Duration
	MaxOutputBytes int64
	Logger         Logger
}

// Run executes spec.Command with spec.Path appended as the last argument.
// Non-zero exits, timeouts, and start failures are reported on the result;
// an error is returned only for an empty command.
func (e *Exec) Run(ctx context.Context, spec core.RunSpec) (*core.RunResult, error) {
	if len(spec.Command) == 0 || spec.Command[0] == "" {
		return nil, errors.New("run command is required")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	timeout := e.timeout()
	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	args := append(append([]string{}, spec.Command[1:]...), spec.Path)
	cmd := exec.CommandContext(execCtx, spec.Command[0], args...) // #nosec G204 -- runs the user's target with the configured interpreter

	maxOutput := e.maxOutput()
	var stdoutBuf, stderrBuf bytes.Buffer
	stdout := &limitedWriter{w: &stdoutBuf, max: maxOutput}
	stderr := &limitedWriter{w: &stderrBuf, max: maxOutput}
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	// Children that inherit the pipes must not keep Wait blocked after a kill.
	cmd.WaitDelay = waitDelay

	logger := e.logger()
	logger.Debug("Running target",
		zap.Strings("command", spec.Command),
		zap.String("path", spec.Path),
		zap.Duration("timeout", timeout))

	started := time.Now()
	err := cmd.Run()

	result := &core.RunResult{
		Stdout:   stdoutBuf.String(),
		Stderr:   stderrBuf.String(),
		Duration: time.Since(started),
	}

	if stdout.truncated || stderr.truncated {
		logger.Warn("Target output truncated",
			zap.Int64("discarded_bytes", stdout.discarded+stderr.discarded))
	}

	switch {
	case err == nil:
		result.ExitCode = 0
	case errors.Is(execCtx.Err(), context.DeadlineExceeded):
		result.ExitCode = -1
		result.TimedOut = true
		logger.Warn("Target killed after timeout",
			zap.String("path", spec.Path),
			zap.Duration("timeout", timeout))
	default:
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
			break
		}
		result.ExitCode = -1
		result.Stderr = appendLine(result.Stderr, fmt.Sprintf("failed to start %s: %v", spec.Command[0], err))
		logger.Warn("Target failed to start",
			zap.Strings("command", spec.Command),
			zap.Error(err))
	}

	return result, nil
}

func (e *Exec) timeout() time.Duration {
	if e == nil || e.Timeout <= 0 {
		return DefaultTimeout
	}
	return e.Timeout
}

func (e *Exec) maxOutput() int64 {
	if e == nil || e.MaxOutputBytes <= 0 {
		return DefaultMaxOutputBytes
	}
	return e.MaxOutputBytes
}

func (e *Exec) logger() Logger {
	if e == nil || e.Logger == nil {
		return zap.NewNop()
	}
	return e.Logger
}

func appendLine(text, line string) string {
	if text == "" {
		return line
	}
	return text + "\n" + line
}

// limitedWriter keeps the first max bytes and discards the rest while
// reporting full writes to the process.
type limitedWriter struct {
	w         io.Writer
	max       int64
	written   int64
	truncated bool
	discarded int64
}

func (lw *limitedWriter) Write(p []byte) (int, error) {
	n := len(p)

	if lw.written >= lw.max {
		lw.truncated = true
		lw.discarded += int64(n)
		return n, nil
	}

	remaining := lw.max - lw.written
	if int64(n) > remaining {
		lw.truncated = true
		lw.discarded += int64(n) - remaining
		written, err := lw.w.Write(p[:remaining])
		lw.written += int64(written)
		return n, err
	}

	written, err := lw.w.Write(p)
	lw.written += int64(written)
	return written, err
}
