package steps

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"github.com/vk/amberrun/internal/command"
	"github.com/vk/amberrun/internal/ctxlog"
	"github.com/vk/amberrun/internal/deck"
	"github.com/vk/amberrun/internal/hcl_adapter"
	"github.com/vk/amberrun/internal/step"
)

// Parmed edits the current topology, typically for hydrogen mass
// repartitioning or parameter tweaks.
type Parmed struct {
	step.Base
	step.Once
	Deck    *deck.ParmedDeck `json:"deck"`
	Command *command.Command `json:"command"`
	// Save, when set, writes the edited topology to {dir}/{Save}.prmtop
	// and makes the MD engine use it.
	Save string `json:"save,omitempty"`
}

// NewParmed returns a step with an empty script.
func NewParmed(name string) *Parmed {
	return &Parmed{
		Base:    step.Base{StepName: name},
		Deck:    deck.NewParmedDeck(),
		Command: command.NewParmed(),
	}
}

// Kind implements step.Step.
func (p *Parmed) Kind() string { return KindParmed }

func (p *Parmed) Validate() error {
	switch {
	case p.Deck == nil:
		return missing("deck")
	case p.Command == nil:
		return missing("command")
	}
	return nil
}

// Run applies the script to the engine's topology.
func (p *Parmed) Run(ctx context.Context, h step.Host) error {
	eng := h.Sander()
	prmtop, ok := eng.String("prmtop")
	if !ok {
		return errors.New("parmed: the md engine has no topology yet")
	}

	script := &deck.ParmedDeck{Commands: slices.Clone(p.Deck.Commands)}
	if p.Save != "" {
		script.Save(filepath.Join(p.Dir(), p.Save))
	}
	path := filepath.Join(p.Dir(), "parmed.in")
	if err := deck.WriteFile(path, script); err != nil {
		return err
	}

	err := p.Command.With(map[string]any{"input": path, "prmtop": prmtop}, func() error {
		_, err := p.Command.Run(ctx, command.RunOptions{Check: true, Stdout: h.Stdout(), Stderr: h.Stderr()})
		return err
	})
	if err != nil {
		return fmt.Errorf("parmed: %w", err)
	}

	if script.Output == "" {
		return nil
	}
	out := script.Output + ".prmtop"
	if _, err := os.Stat(out); err != nil {
		return fmt.Errorf("parmed did not produce %s: %w", out, err)
	}
	ctxlog.FromContext(ctx).Debug("Topology replaced.", "prmtop", out)
	return eng.Set("prmtop", out)
}

type parmedBody struct {
	Commands   []string `hcl:"commands"`
	Save       *string  `hcl:"save,optional"`
	Executable []string `hcl:"executable,optional"`
}

func decodeParmed(_ context.Context, b *hcl_adapter.Block) (step.Step, error) {
	var body parmedBody
	if err := b.Decode(&body); err != nil {
		return nil, err
	}
	if len(body.Commands) == 0 {
		return nil, fmt.Errorf("step %q: parmed needs at least one command", b.Name)
	}
	p := NewParmed(b.Name)
	for _, c := range body.Commands {
		p.Deck.Add(c)
	}
	if body.Save != nil {
		p.Save = *body.Save
	}
	if len(body.Executable) > 0 {
		p.Command.Executable = body.Executable
	}
	return p, nil
}
