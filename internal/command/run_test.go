package command

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func sh(script string) *Command {
	return Plain("/bin/sh", "-c", script)
}

func TestRun_CapturesOutput(t *testing.T) {
	res, err := sh(`echo out; echo err >&2`).Run(context.Background(), RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, 0, res.ExitCode)
	assert.Equal(t, "out\n", string(res.Stdout))
	assert.Equal(t, "err\n", string(res.Stderr))
}

func TestRun_HeavyOutputOnBothStreams(t *testing.T) {
	// 64Ki lines of 256 bytes on each stream, far beyond any pipe buffer,
	// interleaved so a sequential reader would stall the child.
	script := `
line=$(printf '%0255d' 0)
i=0
while [ $i -lt 1024 ]; do
  j=0
  while [ $j -lt 64 ]; do
    echo "$line"
    echo "$line" >&2
    j=$((j+1))
  done
  i=$((i+1))
done`
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	res, err := sh(script).Run(ctx, RunOptions{Check: true})
	require.NoError(t, err)
	assert.Len(t, res.Stdout, 64*1024*256)
	assert.Len(t, res.Stderr, 64*1024*256)
}

func TestRun_StreamsToWriters(t *testing.T) {
	var out, errOut bytes.Buffer
	res, err := sh(`echo streamed; echo oops >&2; exit 3`).Run(context.Background(), RunOptions{Stdout: &out, Stderr: &errOut})
	require.NoError(t, err, "unchecked nonzero exit is not an error")
	assert.Equal(t, 3, res.ExitCode)
	assert.Equal(t, "streamed\n", out.String())
	assert.Equal(t, "oops\n", errOut.String())
	assert.Equal(t, "oops\n", string(res.Stderr), "the tail is kept for diagnostics")
}

func TestRun_CheckedNonzeroExit(t *testing.T) {
	res, err := sh(`echo partial; echo "fatal: bad input" >&2; exit 7`).Run(context.Background(), RunOptions{Check: true})

	var perr *ProcessError
	require.True(t, errors.As(err, &perr), "got %v", err)
	assert.Equal(t, 7, perr.ExitCode)
	assert.Equal(t, "partial\n", string(perr.Stdout))
	assert.Contains(t, perr.Error(), "fatal: bad input")
	require.NotNil(t, res)
	assert.Equal(t, 7, res.ExitCode)
}

func TestRun_LaunchFailure(t *testing.T) {
	_, err := Plain(filepath.Join(t.TempDir(), "missing")).Run(context.Background(), RunOptions{})
	var perr *ProcessError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, -1, perr.ExitCode)

	_, err = Plain().Run(context.Background(), RunOptions{})
	require.True(t, errors.As(err, &perr))
}

func TestRun_Cancelled(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	_, err := sh(`exec sleep 30`).Run(ctx, RunOptions{})
	var perr *ProcessError
	require.True(t, errors.As(err, &perr))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRun_WorkingDirectoryAndEnv(t *testing.T) {
	dir := t.TempDir()
	res, err := sh(`pwd; echo "$AMBERHOME"`).Run(context.Background(), RunOptions{
		Dir: dir,
		Env: []string{"AMBERHOME=/opt/amber", "PATH=" + os.Getenv("PATH")},
	})
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(res.Stdout)), "\n")
	require.Len(t, lines, 2)
	want, err := filepath.EvalSymlinks(dir)
	require.NoError(t, err)
	got, err := filepath.EvalSymlinks(lines[0])
	require.NoError(t, err)
	assert.Equal(t, want, got)
	assert.Equal(t, "/opt/amber", lines[1])
}

func TestTailBuffer(t *testing.T) {
	tb := &tailBuffer{max: 4}
	_, _ = tb.Write([]byte("ab"))
	_, _ = tb.Write([]byte("cde"))
	assert.Equal(t, "bcde", string(tb.buf))
	_, _ = tb.Write([]byte("0123456"))
	assert.Equal(t, "3456", string(tb.buf))
}
