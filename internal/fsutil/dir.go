package fsutil

import (
	"fmt"
	"os"
)

// EnsureDir creates dir with the given mode if it does not exist yet. An
// existing directory is left untouched.
func EnsureDir(dir string, mode os.FileMode) error {
	if err := os.MkdirAll(dir, mode); err != nil {
		return fmt.Errorf("create directory %s: %w", dir, err)
	}
	return nil
}

// Chdir switches the process working directory to dir and returns a func
// that switches back. The returned func is safe to call more than once.
//
// The working directory is process-wide state: callers must not run two
// guards concurrently.
func Chdir(dir string) (restore func() error, err error) {
	prev, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("get working directory: %w", err)
	}
	if err := os.Chdir(dir); err != nil {
		return nil, fmt.Errorf("change directory to %s: %w", dir, err)
	}

	done := false
	return func() error {
		if done {
			return nil
		}
		done = true
		if err := os.Chdir(prev); err != nil {
			return fmt.Errorf("restore working directory %s: %w", prev, err)
		}
		return nil
	}, nil
}
