package execx

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func skipOnWindows(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("test uses sh")
	}
}

func TestRunSuccess(t *testing.T) {
	skipOnWindows(t)

	e := &Executor{Timeout: 5 * time.Second}
	res, err := e.Run(context.Background(), "sh", "-c", "echo hello; echo oops >&2")
	require.NoError(t, err)
	assert.Equal(t, "hello\n", res.Stdout)
	assert.Equal(t, "oops\n", res.Stderr)
	assert.Equal(t, 0, res.ExitCode)
}

func TestRunTimeoutKillsProcess(t *testing.T) {
	skipOnWindows(t)

	e := &Executor{Timeout: 100 * time.Millisecond, WaitDelay: 500 * time.Millisecond}
	start := time.Now()
	res, err := e.Run(context.Background(), "sh", "-c", "exec sleep 10")

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTimeout), "got %v", err)
	assert.NotNil(t, res)
	assert.Less(t, time.Since(start), 3*time.Second, "timeout did not trigger quickly")
}

func TestRunOutputLimitKillsProcess(t *testing.T) {
	skipOnWindows(t)

	e := &Executor{Timeout: 10 * time.Second, MaxOutput: 1024, WaitDelay: 500 * time.Millisecond}
	start := time.Now()
	res, err := e.Run(context.Background(), "sh", "-c", "exec yes")

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrOutputLimit), "got %v", err)
	assert.Len(t, res.Stdout, 1024)
	assert.Less(t, time.Since(start), 5*time.Second, "producer was not terminated")
}

func TestRunNonZeroExit(t *testing.T) {
	skipOnWindows(t)

	e := &Executor{}
	res, err := e.Run(context.Background(), "sh", "-c", "echo bad input >&2; exit 3")

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrCommandFailed))
	assert.Equal(t, 3, res.ExitCode)
	assert.Equal(t, "bad input", strings.TrimSpace(res.Stderr))
}

func TestRunMissingBinary(t *testing.T) {
	e := &Executor{}
	_, err := e.Run(context.Background(), "definitely-not-a-real-binary-4821")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrCommandFailed))
}

func TestRunEmptyCommand(t *testing.T) {
	e := &Executor{}
	res, err := e.Run(context.Background(), "")
	assert.Nil(t, res)
	assert.True(t, errors.Is(err, ErrCommandFailed))
}

func TestRunParentCancelled(t *testing.T) {
	skipOnWindows(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	e := &Executor{Timeout: 5 * time.Second}
	_, err := e.Run(ctx, "sh", "-c", "exec sleep 5")
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled), "got %v", err)
	assert.False(t, errors.Is(err, ErrTimeout))
}

func TestRunTimeoutKillsGrandchildren(t *testing.T) {
	skipOnWindows(t)

	pidFile := filepath.Join(t.TempDir(), "child.pid")
	script := "sleep 30 & echo $! > " + pidFile + "; wait; echo done"

	e := &Executor{Timeout: 200 * time.Millisecond, WaitDelay: 5 * time.Second}
	start := time.Now()
	_, err := e.Run(context.Background(), "sh", "-c", script)

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTimeout), "got %v", err)
	assert.Less(t, time.Since(start), 3*time.Second, "orphaned child kept the output pipe open")

	if runtime.GOOS != "linux" {
		return
	}
	data, err := os.ReadFile(pidFile)
	require.NoError(t, err)
	procStat := filepath.Join("/proc", strings.TrimSpace(string(data)), "stat")
	assert.Eventually(t, func() bool {
		stat, err := os.ReadFile(procStat)
		if err != nil {
			return true
		}
		// a zombie awaiting its reaper is dead too
		fields := strings.Fields(string(stat))
		return len(fields) > 2 && fields[2] == "Z"
	}, 2*time.Second, 20*time.Millisecond, "background sleep survived the timeout")
}

func TestLimitedBuffer(t *testing.T) {
	fired := 0
	buf := &limitedBuffer{limit: 5, onOverflow: func() { fired++ }}

	n, err := buf.Write([]byte("abc"))
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.False(t, buf.Overflowed())

	n, err = buf.Write([]byte("defgh"))
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.True(t, buf.Overflowed())
	assert.Equal(t, "abcde", buf.String())

	_, _ = buf.Write([]byte("more"))
	assert.Equal(t, 1, fired)
	assert.Equal(t, "abcde", buf.String())
}
