package command

import (
	"bytes"
	"fmt"
	"strings"
)

// ArgumentMisuseError reports an invalid access to a command argument:
// setting a derived argument, assigning a value of the wrong type, or
// addressing an undeclared argument through SetArgument.
type ArgumentMisuseError struct {
	Key    string
	Reason string
}

func (e *ArgumentMisuseError) Error() string {
	return fmt.Sprintf("argument %q: %s", e.Key, e.Reason)
}

func misuse(key, format string, args ...any) error {
	return &ArgumentMisuseError{Key: key, Reason: fmt.Sprintf(format, args...)}
}

// ProcessError reports a subprocess that could not be started, was
// cancelled, or exited with a nonzero code while the caller asked for it
// to be checked.
type ProcessError struct {
	Cmdline  []string
	ExitCode int
	// Stdout and Stderr hold captured output, or its tail when the output
	// was streamed to caller writers.
	Stdout []byte
	Stderr []byte
	Err    error
}

func (e *ProcessError) Error() string {
	name := "<empty>"
	if len(e.Cmdline) > 0 {
		name = e.Cmdline[0]
	}
	var b strings.Builder
	if e.Err != nil {
		fmt.Fprintf(&b, "process %s: %v", name, e.Err)
	} else {
		fmt.Fprintf(&b, "process %s exited with code %d", name, e.ExitCode)
	}
	if line := lastLine(e.Stderr); line != "" {
		fmt.Fprintf(&b, ": %s", line)
	}
	return b.String()
}

func (e *ProcessError) Unwrap() error { return e.Err }

func lastLine(p []byte) string {
	p = bytes.TrimRight(p, "\r\n\t ")
	if i := bytes.LastIndexByte(p, '\n'); i >= 0 {
		p = p[i+1:]
	}
	return string(p)
}
