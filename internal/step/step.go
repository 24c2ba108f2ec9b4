// Package step defines the unit of work a campaign sequences.
//
// A step owns its inputs and its completion state. The campaign decides
// when a step runs, binds the directory it writes into, and persists it
// after it finishes. Steps that loop over iterations persist their own
// progress through Host.Checkpoint, so a killed run resumes at the first
// iteration that did not finish.
package step

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/vk/amberrun/internal/command"
)

// ErrInconsistentCompletion is returned when a completion flag is forced to
// a value that contradicts a step's derived state.
var ErrInconsistentCompletion = errors.New("completion flag contradicts step state")

// Host is the campaign as seen by a running step. Steps receive it as a
// Run argument and must not keep it.
type Host interface {
	// Root is the campaign working directory. Steps run with it as the
	// process working directory, so step directories are relative to it.
	Root() string
	// Sander is the MD engine command shared by all steps.
	Sander() *command.Command
	// Checkpoint persists the whole campaign atomically.
	Checkpoint(ctx context.Context) error
	// StepDir returns the directory bound to the step attached as attr.
	StepDir(attr string) (string, bool)
	// Stdout and Stderr receive subprocess output.
	Stdout() io.Writer
	Stderr() io.Writer
}

// Step is one stage of a campaign.
type Step interface {
	Name() string
	Kind() string
	Dir() string
	SetDir(dir string)
	IsComplete() bool
	SetComplete(done bool) error
	Run(ctx context.Context, h Host) error
}

// Base carries the name and bound directory every step has.
type Base struct {
	StepName string `json:"name"`
	StepDir  string `json:"dir,omitempty"`
}

// Name returns the step name.
func (b *Base) Name() string { return b.StepName }

// Dir returns the bound directory, relative to the campaign root.
func (b *Base) Dir() string { return b.StepDir }

// SetDir binds the step directory.
func (b *Base) SetDir(dir string) { b.StepDir = dir }

// Once is the completion state of a step that runs in one go.
type Once struct {
	Done bool `json:"complete"`
}

// IsComplete reports whether the step finished.
func (o *Once) IsComplete() bool { return o.Done }

// SetComplete stores the flag.
func (o *Once) SetComplete(done bool) error {
	o.Done = done
	return nil
}

// Counter is the completion state of a step that runs Target iterations.
// It is complete exactly when Current reaches Target.
type Counter struct {
	Current int `json:"current"`
	Target  int `json:"target"`
}

// IsComplete reports whether every iteration ran.
func (c *Counter) IsComplete() bool { return c.Current == c.Target }

// SetComplete only accepts the value the counter already implies.
func (c *Counter) SetComplete(done bool) error {
	if done != c.IsComplete() {
		return fmt.Errorf("%w: set to %t at iteration %d of %d", ErrInconsistentCompletion, done, c.Current, c.Target)
	}
	return nil
}

// Progress returns the finished and total iteration counts.
func (c *Counter) Progress() (done, total int) { return c.Current, c.Target }

// Advance records one finished iteration.
func (c *Counter) Advance() { c.Current++ }

// Validate checks the counter bounds.
func (c *Counter) Validate() error {
	if c.Target < 0 || c.Current < 0 || c.Current > c.Target {
		return fmt.Errorf("invalid iteration counter %d/%d", c.Current, c.Target)
	}
	return nil
}
