// Package execx runs external programs under a wall-clock timeout and an
// output cap. A process that breaches either bound is killed and reaped
// before Run returns. On Unix the whole process group is killed.
package execx

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"time"

	"github.com/prismon/mcp-guard-tools/pkg/logger"
	"github.com/sirupsen/logrus"
)

var log *logrus.Entry

func init() {
	log = logger.WithName("execx")
}

const (
	// DefaultTimeout bounds a single invocation
	DefaultTimeout = 30 * time.Second

	// DefaultMaxOutput caps captured stdout (10 MiB)
	DefaultMaxOutput = 10 << 20

	// maxStderr caps captured stderr; overflow there is truncated silently
	maxStderr = 64 << 10

	// defaultWaitDelay is how long Wait keeps the I/O pipes open after the
	// process is killed
	defaultWaitDelay = 2 * time.Second
)

var (
	// ErrTimeout is returned when the process outlives the timeout
	ErrTimeout = errors.New("command timed out")

	// ErrOutputLimit is returned when stdout exceeds the output cap
	ErrOutputLimit = errors.New("command output exceeded limit")

	// ErrCommandFailed is returned for a non-zero exit or a start failure
	ErrCommandFailed = errors.New("command failed")
)

// Result holds the captured output of a finished process
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
	Duration time.Duration
}

// Executor runs commands with hard resource bounds. The zero value uses the
// package defaults.
type Executor struct {
	Timeout   time.Duration
	MaxOutput int
	WaitDelay time.Duration
}

// Run executes name with args. The returned Result is non-nil whenever the
// process was started, including on timeout, overflow and non-zero exit.
func (e *Executor) Run(ctx context.Context, name string, args ...string) (*Result, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: command is required", ErrCommandFailed)
	}

	timeout := e.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	maxOutput := e.MaxOutput
	if maxOutput <= 0 {
		maxOutput = DefaultMaxOutput
	}
	waitDelay := e.WaitDelay
	if waitDelay <= 0 {
		waitDelay = defaultWaitDelay
	}

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, name, args...)
	cmd.WaitDelay = waitDelay
	setProcessGroup(cmd)

	stdout := &limitedBuffer{limit: maxOutput, onOverflow: cancel}
	stderr := &limitedBuffer{limit: maxStderr}
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	start := time.Now()
	err := cmd.Run()
	result := &Result{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(start),
	}
	if cmd.ProcessState != nil {
		result.ExitCode = cmd.ProcessState.ExitCode()
	}

	fields := logrus.Fields{
		"command":    name,
		"durationMs": result.Duration.Milliseconds(),
		"exitCode":   result.ExitCode,
	}

	switch {
	case stdout.Overflowed():
		log.WithFields(fields).WithField("limit", maxOutput).Warn("Command output exceeded limit, process killed")
		return result, fmt.Errorf("%w (%d bytes)", ErrOutputLimit, maxOutput)
	case errors.Is(runCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil:
		log.WithFields(fields).WithField("timeout", timeout).Warn("Command timed out, process killed")
		return result, fmt.Errorf("%w after %s", ErrTimeout, timeout)
	case ctx.Err() != nil:
		return result, ctx.Err()
	case err != nil:
		log.WithFields(fields).WithError(err).Debug("Command failed")
		return result, fmt.Errorf("%w: %v", ErrCommandFailed, err)
	}

	log.WithFields(fields).Debug("Command completed")
	return result, nil
}

// limitedBuffer keeps at most limit bytes. Writing past the limit marks the
// buffer overflowed and fires onOverflow once.
type limitedBuffer struct {
	mu         sync.Mutex
	buf        bytes.Buffer
	limit      int
	overflowed bool
	onOverflow func()
}

func (l *limitedBuffer) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	remaining := l.limit - l.buf.Len()
	if len(p) > remaining {
		if remaining > 0 {
			l.buf.Write(p[:remaining])
		}
		if !l.overflowed {
			l.overflowed = true
			if l.onOverflow != nil {
				l.onOverflow()
			}
		}
		return len(p), nil
	}
	return l.buf.Write(p)
}

func (l *limitedBuffer) String() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.buf.String()
}

// Overflowed reports whether more than limit bytes were written
func (l *limitedBuffer) Overflowed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.overflowed
}

var _ io.Writer = (*limitedBuffer)(nil)
