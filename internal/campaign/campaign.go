// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev
//
// Package campaign sequences the steps of a molecular dynamics campaign and
// persists its progress.
//
// Steps run in attachment order. Completed steps are skipped, so running a
// campaign restored from its state file continues where the previous run
// stopped. Each step gets its own directory under the campaign root, named
// after a monotonic ordinal and the step name. The ordinal is taken from a
// counter that only grows, so a step attached as a replacement never
// inherits the directory, and therefore the output files, of the step it
// replaced.
//
// After every completed step, and after every iteration of iterating steps,
// the whole campaign is written to its state file atomically. The state
// file on disk is always either the previous or the next complete
// snapshot.
package campaign

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/vk/amberrun/internal/command"
	"github.com/vk/amberrun/internal/ctxlog"
	"github.com/vk/amberrun/internal/fsutil"
	"github.com/vk/amberrun/internal/step"
)

// DefaultStateFile is the state file name used when none is configured.
const DefaultStateFile = "state.json"

// dirMode is the permission of the root and step directories.
const dirMode = 0o755

type entry struct {
	attr string
	st   step.Step
}

// Campaign is an ordered set of steps sharing one MD engine command and
// one working directory. It is not safe for concurrent use, and only one
// process may run a given campaign at a time.
type Campaign struct {
	name        string
	root        string
	stateFile   string
	entries     []*entry
	nextOrdinal int
	sander      *command.Command
	runID       string

	logger *slog.Logger
	stdout io.Writer
	stderr io.Writer
}

// Option configures a Campaign.
type Option func(*Campaign)

// WithLogger sets the logger used by Run.
func WithLogger(l *slog.Logger) Option {
	return func(c *Campaign) { c.logger = l }
}

// WithOutput routes subprocess output. Nil writers discard.
func WithOutput(stdout, stderr io.Writer) Option {
	return func(c *Campaign) {
		c.stdout = stdout
		c.stderr = stderr
	}
}

// WithSander sets the shared MD engine command.
func WithSander(cmd *command.Command) Option {
	return func(c *Campaign) { c.sander = cmd }
}

// WithStateFile sets the state file, relative to the root unless
// absolute. A .gz or .zst suffix compresses it.
func WithStateFile(name string) Option {
	return func(c *Campaign) {
		if name != "" {
			c.stateFile = name
		}
	}
}

// New creates an empty campaign rooted at root. The root is resolved to an
// absolute path but not created until the campaign runs or is saved.
func New(name, root string, opts ...Option) (*Campaign, error) {
	if name == "" {
		return nil, errors.New("campaign name must not be empty")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve campaign root: %w", err)
	}
	c := &Campaign{
		name:      name,
		root:      abs,
		stateFile: DefaultStateFile,
		sander:    command.NewPmemd(),
	}
	c.apply(opts)
	return c, nil
}

func (c *Campaign) apply(opts []Option) {
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = slog.New(slog.DiscardHandler)
	}
	if c.stdout == nil {
		c.stdout = io.Discard
	}
	if c.stderr == nil {
		c.stderr = io.Discard
	}
}

// Name returns the campaign name.
func (c *Campaign) Name() string { return c.name }

// Root implements step.Host.
func (c *Campaign) Root() string { return c.root }

// Sander implements step.Host.
func (c *Campaign) Sander() *command.Command { return c.sander }

// Stdout implements step.Host.
func (c *Campaign) Stdout() io.Writer { return c.stdout }

// Stderr implements step.Host.
func (c *Campaign) Stderr() io.Writer { return c.stderr }

// RunID identifies the latest Run, or the run that wrote the loaded
// snapshot.
func (c *Campaign) RunID() string { return c.runID }

// StatePath is the absolute path of the state file.
func (c *Campaign) StatePath() string {
	if filepath.IsAbs(c.stateFile) {
		return c.stateFile
	}
	return filepath.Join(c.root, c.stateFile)
}

// StepDir implements step.Host.
func (c *Campaign) StepDir(attr string) (string, bool) {
	e := c.find(attr)
	if e == nil {
		return "", false
	}
	return e.st.Dir(), true
}

func (c *Campaign) find(attr string) *entry {
	for _, e := range c.entries {
		if e.attr == attr {
			return e
		}
	}
	return nil
}

// Attach adds st under attr. A new attr is appended to the run order.
// An existing attr is replaced in place, keeping its position. Either way
// the step is bound to a directory with a fresh ordinal.
func (c *Campaign) Attach(attr string, st step.Step) error {
	if attr == "" {
		return errors.New("step attribute must not be empty")
	}
	if err := checkName(st.Name()); err != nil {
		return err
	}

	st.SetDir(fmt.Sprintf("%d_%s", c.nextOrdinal, st.Name()))
	c.nextOrdinal++

	if e := c.find(attr); e != nil {
		c.logger.Debug("Replacing step.", "attr", attr, "old_dir", e.st.Dir(), "new_dir", st.Dir())
		e.st = st
		return nil
	}
	c.entries = append(c.entries, &entry{attr: attr, st: st})
	return nil
}

func checkName(name string) error {
	switch {
	case name == "":
		return errors.New("step name must not be empty")
	case name == "." || name == "..":
		return fmt.Errorf("invalid step name %q", name)
	case strings.ContainsAny(name, `/\`):
		return fmt.Errorf("step name %q must not contain path separators", name)
	}
	return nil
}

// Step returns the step attached as attr.
func (c *Campaign) Step(attr string) (step.Step, bool) {
	if e := c.find(attr); e != nil {
		return e.st, true
	}
	return nil, false
}

// Attrs returns the step attributes in run order.
func (c *Campaign) Attrs() []string {
	out := make([]string, len(c.entries))
	for i, e := range c.entries {
		out[i] = e.attr
	}
	return out
}

// Steps returns the steps in run order.
func (c *Campaign) Steps() []step.Step {
	out := make([]step.Step, len(c.entries))
	for i, e := range c.entries {
		out[i] = e.st
	}
	return out
}

// Run executes every incomplete step in order. It stops at the first
// failure, leaving that step incomplete and the last checkpoint in place.
func (c *Campaign) Run(ctx context.Context) error {
	c.runID = uuid.NewString()
	ctx = ctxlog.WithLogger(ctx, c.logger)
	ctx, logger := ctxlog.With(ctx, "campaign", c.name, "run_id", c.runID)

	pending := 0
	for _, e := range c.entries {
		if !e.st.IsComplete() {
			pending++
		}
	}
	logger.Info("🚀 Campaign run started.", "root", c.root, "steps", len(c.entries), "pending", pending)
	start := time.Now()

	if err := fsutil.EnsureDir(c.root, dirMode); err != nil {
		return err
	}

	for _, e := range c.entries {
		if e.st.IsComplete() {
			logger.Debug("Step already complete, skipping.", "attr", e.attr, "dir", e.st.Dir())
			continue
		}
		if err := c.runStep(ctx, e); err != nil {
			logger.Error("❌ Campaign halted.", "attr", e.attr, "error", err)
			return err
		}
	}

	logger.Info("🏁 Campaign finished.", "elapsed", time.Since(start).Round(time.Millisecond))
	return nil
}

func (c *Campaign) runStep(ctx context.Context, e *entry) (err error) {
	ctx, logger := ctxlog.With(ctx, "attr", e.attr, "kind", e.st.Kind(), "dir", e.st.Dir())

	restore, err := fsutil.Chdir(c.root)
	if err != nil {
		return err
	}
	defer func() {
		if rerr := restore(); rerr != nil && err == nil {
			err = rerr
		}
	}()

	if err := fsutil.EnsureDir(e.st.Dir(), dirMode); err != nil {
		return err
	}

	logger.Info("▶️ Running step.")
	start := time.Now()
	if err := e.st.Run(ctx, c); err != nil {
		return fmt.Errorf("step %q: %w", e.attr, err)
	}
	if err := e.st.SetComplete(true); err != nil {
		return fmt.Errorf("step %q: %w", e.attr, err)
	}
	if err := c.Checkpoint(ctx); err != nil {
		return fmt.Errorf("step %q: %w", e.attr, err)
	}
	logger.Info("✅ Step complete.", "elapsed", time.Since(start).Round(time.Millisecond))
	return nil
}

// Checkpoint implements step.Host by saving the campaign to its state
// file.
func (c *Campaign) Checkpoint(ctx context.Context) error {
	path := c.StatePath()
	if err := c.Save(path); err != nil {
		return fmt.Errorf("checkpoint: %w", err)
	}
	ctxlog.FromContext(ctx).Debug("Checkpoint written.", "path", path)
	return nil
}

// Reset marks the step attached as attr incomplete so the next run
// repeats it. Iterating steps cannot be reset this way.
func (c *Campaign) Reset(attr string) error {
	e := c.find(attr)
	if e == nil {
		return fmt.Errorf("no step attached as %q", attr)
	}
	if _, iterating := e.st.(interface{ Progress() (int, int) }); iterating {
		return fmt.Errorf("step %q: %w: iterating steps cannot be reset, replace them instead", attr, step.ErrInconsistentCompletion)
	}
	if err := e.st.SetComplete(false); err != nil {
		return fmt.Errorf("step %q: %w", attr, err)
	}
	return nil
}
