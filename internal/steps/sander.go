package steps

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"

	"github.com/hashicorp/hcl/v2"
	"github.com/vk/amberrun/internal/command"
	"github.com/vk/amberrun/internal/deck"
	"github.com/vk/amberrun/internal/fsutil"
	"github.com/vk/amberrun/internal/hcl_adapter"
	"github.com/vk/amberrun/internal/step"
)

// Sander is a single MD engine call: minimization, heating or
// equilibration.
type Sander struct {
	step.Base
	step.Once
	Deck *deck.AmberDeck `json:"deck"`
	// Args are engine arguments applied to this call only.
	Args map[string]string `json:"args,omitempty"`
}

// NewSander returns a single-call step with an empty deck.
func NewSander(name string) *Sander {
	return &Sander{Base: step.Base{StepName: name}, Deck: deck.NewAmberDeck()}
}

// Kind implements step.Step.
func (s *Sander) Kind() string { return KindSander }

// Validate rejects a step without a deck.
func (s *Sander) Validate() error {
	if s.Deck == nil {
		return missing("deck")
	}
	return nil
}

// Run calls the engine with output prefix {dir}/{name}.
func (s *Sander) Run(ctx context.Context, h step.Host) error {
	prefix := filepath.Join(s.Dir(), s.Name())
	restrt, err := callEngine(ctx, h, s.Deck, prefix, s.Args)
	if err != nil {
		return fmt.Errorf("md engine: %w", err)
	}
	return h.Sander().Set("inpcrd", restrt)
}

// SanderRepeat runs the same deck Target times, each call continuing from
// the previous restart. Progress is checkpointed after every call.
type SanderRepeat struct {
	step.Base
	step.Counter
	Deck *deck.AmberDeck   `json:"deck"`
	Args map[string]string `json:"args,omitempty"`
	// KeepTrajectory false removes each call's trajectory once the call
	// and its hook succeeded.
	KeepTrajectory bool `json:"keep_trajectory"`
	// After runs after every call with the call prefix appended.
	After []string `json:"after,omitempty"`
}

// NewSanderRepeat returns a step running iterations calls.
func NewSanderRepeat(name string, iterations int) *SanderRepeat {
	return &SanderRepeat{
		Base:           step.Base{StepName: name},
		Counter:        step.Counter{Target: iterations},
		Deck:           deck.NewAmberDeck(),
		KeepTrajectory: true,
	}
}

// Kind implements step.Step.
func (s *SanderRepeat) Kind() string { return KindSanderRepeat }

// Validate checks the deck and the iteration counter.
func (s *SanderRepeat) Validate() error {
	if s.Deck == nil {
		return missing("deck")
	}
	return s.Counter.Validate()
}

// Prefix is the output prefix of the given zero-based iteration.
func (s *SanderRepeat) Prefix(iteration int) string {
	return filepath.Join(s.Dir(), fmt.Sprintf("%s%05d", s.Name(), iteration))
}

// Run performs the remaining iterations. A failed iteration leaves the
// counter where it was, so the next run retries it from scratch.
func (s *SanderRepeat) Run(ctx context.Context, h step.Host) error {
	if err := s.Counter.Validate(); err != nil {
		return err
	}
	for s.Current < s.Target {
		if err := ctx.Err(); err != nil {
			return err
		}
		i := s.Current
		prefix := s.Prefix(i)

		// leftovers of an interrupted attempt at this iteration
		if n, err := fsutil.RemoveWithPrefix(s.Dir(), filepath.Base(prefix)+"."); err != nil {
			return fmt.Errorf("iteration %d: clean partial output: %w", i, err)
		} else if n > 0 {
			logCleanup(ctx, prefix, n)
		}

		restrt, err := callEngine(ctx, h, s.Deck, prefix, s.Args)
		if err != nil {
			return fmt.Errorf("iteration %d: md engine: %w", i, err)
		}
		if err := s.afterCall(ctx, h, prefix); err != nil {
			return fmt.Errorf("iteration %d: %w", i, err)
		}

		if err := h.Sander().Set("inpcrd", restrt); err != nil {
			return err
		}
		s.Advance()
		if err := h.Checkpoint(ctx); err != nil {
			return fmt.Errorf("iteration %d: %w", i, err)
		}
	}
	return nil
}

func (s *SanderRepeat) afterCall(ctx context.Context, h step.Host, prefix string) error {
	if len(s.After) > 0 {
		hook := command.Plain(append(slices.Clone(s.After), prefix)...)
		if _, err := hook.Run(ctx, command.RunOptions{Check: true, Stdout: h.Stdout(), Stderr: h.Stderr()}); err != nil {
			return fmt.Errorf("after hook: %w", err)
		}
	}
	if !s.KeepTrajectory {
		if err := os.Remove(prefix + ".nc"); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("remove trajectory: %w", err)
		}
	}
	return nil
}

type sanderBody struct {
	Args   map[string]string `hcl:"args,optional"`
	Remain hcl.Body          `hcl:",remain"`
}

type sanderRepeatBody struct {
	Iterations     int               `hcl:"iterations"`
	Args           map[string]string `hcl:"args,optional"`
	KeepTrajectory *bool             `hcl:"keep_trajectory,optional"`
	After          []string          `hcl:"after,optional"`
	Remain         hcl.Body          `hcl:",remain"`
}

func decodeAmberDeck(ctx context.Context, b *hcl_adapter.Block, remain hcl.Body) (*deck.AmberDeck, error) {
	body, err := b.DecodeAmberBody(remain)
	if err != nil {
		return nil, err
	}
	return b.AmberDeck(ctx, body)
}

func decodeSander(ctx context.Context, b *hcl_adapter.Block) (step.Step, error) {
	var body sanderBody
	if err := b.Decode(&body); err != nil {
		return nil, err
	}
	d, err := decodeAmberDeck(ctx, b, body.Remain)
	if err != nil {
		return nil, err
	}
	s := NewSander(b.Name)
	s.Deck = d
	s.Args = cloneArgs(body.Args)
	return s, nil
}

func decodeSanderRepeat(ctx context.Context, b *hcl_adapter.Block) (step.Step, error) {
	var body sanderRepeatBody
	if err := b.Decode(&body); err != nil {
		return nil, err
	}
	if body.Iterations < 1 {
		return nil, fmt.Errorf("step %q: iterations must be at least 1, got %d", b.Name, body.Iterations)
	}
	d, err := decodeAmberDeck(ctx, b, body.Remain)
	if err != nil {
		return nil, err
	}
	s := NewSanderRepeat(b.Name, body.Iterations)
	s.Deck = d
	s.Args = cloneArgs(body.Args)
	s.After = body.After
	if body.KeepTrajectory != nil {
		s.KeepTrajectory = *body.KeepTrajectory
	}
	return s, nil
}
