package command

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"

	"github.com/vk/amberrun/internal/ctxlog"
	"golang.org/x/sync/errgroup"
)

// tailSize bounds the output kept for error reports when output is
// streamed to caller writers.
const tailSize = 4 << 10

// RunOptions controls one invocation.
type RunOptions struct {
	// Check turns a nonzero exit code into a *ProcessError.
	Check bool
	// Dir is the working directory of the process; empty means the
	// current one.
	Dir string
	// Env replaces the environment when non-nil.
	Env []string
	// Stdout and Stderr receive the process output as it is produced.
	// A nil writer captures that stream in memory instead.
	Stdout io.Writer
	Stderr io.Writer
}

// Result is the outcome of a process that ran to exit.
type Result struct {
	ExitCode int
	// Stdout and Stderr hold the full output of captured streams and the
	// tail of streamed ones.
	Stdout []byte
	Stderr []byte
}

// Run starts the command and waits for it. Both output pipes are drained
// concurrently until EOF before the process is reaped, so no amount of
// output can block the child.
//
// A process that exits nonzero returns its Result and a nil error unless
// opts.Check is set. Failure to start and cancellation of ctx are always
// reported as *ProcessError.
func (c *Command) Run(ctx context.Context, opts RunOptions) (*Result, error) {
	argv := c.Cmdline()
	if len(argv) == 0 {
		return nil, &ProcessError{ExitCode: -1, Err: errors.New("no executable configured")}
	}
	logger := ctxlog.FromContext(ctx).With("cmd", argv[0])

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = opts.Dir
	cmd.Env = opts.Env

	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		return nil, &ProcessError{Cmdline: argv, ExitCode: -1, Err: fmt.Errorf("stdout pipe: %w", err)}
	}
	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		return nil, &ProcessError{Cmdline: argv, ExitCode: -1, Err: fmt.Errorf("stderr pipe: %w", err)}
	}

	logger.Debug("Starting process.", "argv", argv, "dir", opts.Dir)
	if err := cmd.Start(); err != nil {
		return nil, &ProcessError{Cmdline: argv, ExitCode: -1, Err: err}
	}

	stdout := newSink(opts.Stdout)
	stderr := newSink(opts.Stderr)

	var g errgroup.Group
	g.Go(func() error { return stdout.drain(stdoutPipe) })
	g.Go(func() error { return stderr.drain(stderrPipe) })
	drainErr := g.Wait()
	waitErr := cmd.Wait()

	res := &Result{ExitCode: 0, Stdout: stdout.bytes(), Stderr: stderr.bytes()}
	fail := func(err error) *ProcessError {
		return &ProcessError{Cmdline: argv, ExitCode: res.ExitCode, Stdout: res.Stdout, Stderr: res.Stderr, Err: err}
	}

	var exitErr *exec.ExitError
	switch {
	case ctx.Err() != nil:
		res.ExitCode = -1
		if cmd.ProcessState != nil {
			res.ExitCode = cmd.ProcessState.ExitCode()
		}
		return res, fail(ctx.Err())
	case errors.As(waitErr, &exitErr):
		res.ExitCode = exitErr.ExitCode()
	case waitErr != nil:
		res.ExitCode = -1
		return res, fail(waitErr)
	}
	if drainErr != nil {
		return res, fail(fmt.Errorf("read output: %w", drainErr))
	}

	logger.Debug("Process exited.", "code", res.ExitCode)
	if opts.Check && res.ExitCode != 0 {
		return res, fail(nil)
	}
	return res, nil
}

// sink captures a stream in memory, or forwards it to a writer while
// keeping a bounded tail.
type sink struct {
	w    io.Writer
	buf  bytes.Buffer
	tail *tailBuffer
}

func newSink(w io.Writer) *sink {
	if w == nil {
		return &sink{}
	}
	return &sink{w: w, tail: &tailBuffer{max: tailSize}}
}

func (s *sink) drain(r io.Reader) error {
	var dst io.Writer = &s.buf
	if s.w != nil {
		dst = io.MultiWriter(s.w, s.tail)
	}
	_, err := io.Copy(dst, r)
	if err != nil {
		// keep the pipe flowing so the child can still exit
		_, _ = io.Copy(io.Discard, r)
	}
	return err
}

func (s *sink) bytes() []byte {
	if s.tail != nil {
		return s.tail.buf
	}
	return s.buf.Bytes()
}

type tailBuffer struct {
	max int
	buf []byte
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	n := len(p)
	if n >= t.max {
		t.buf = append(t.buf[:0], p[n-t.max:]...)
		return n, nil
	}
	if over := len(t.buf) + n - t.max; over > 0 {
		t.buf = append(t.buf[:0], t.buf[over:]...)
	}
	t.buf = append(t.buf, p...)
	return n, nil
}
