package steps

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/vk/amberrun/internal/command"
	"github.com/vk/amberrun/internal/ctxlog"
	"github.com/vk/amberrun/internal/deck"
	"github.com/vk/amberrun/internal/hcl_adapter"
	"github.com/vk/amberrun/internal/step"
)

// Tleap builds the system topology and initial coordinates. On success
// the campaign's MD engine reads them.
type Tleap struct {
	step.Base
	step.Once
	Deck    *deck.TleapDeck  `json:"deck"`
	Command *command.Command `json:"command"`
}

// NewTleap returns a build step with an empty script.
func NewTleap(name string) *Tleap {
	return &Tleap{
		Base:    step.Base{StepName: name},
		Deck:    deck.NewTleapDeck(),
		Command: command.NewTleap(),
	}
}

// Kind implements step.Step.
func (t *Tleap) Kind() string { return KindTleap }

func (t *Tleap) Validate() error {
	switch {
	case t.Deck == nil:
		return missing("deck")
	case t.Command == nil:
		return missing("command")
	}
	return nil
}

// Run writes the script into the step directory, runs tleap and hands the
// produced topology and coordinates to the MD engine.
func (t *Tleap) Run(ctx context.Context, h step.Host) error {
	logger := ctxlog.FromContext(ctx)
	dir := t.Dir()
	t.Deck.OutputDir = dir

	script := filepath.Join(dir, "tleap.in")
	if err := deck.WriteFile(script, t.Deck); err != nil {
		return err
	}

	err := t.Command.With(map[string]any{"source": script}, func() error {
		_, err := t.Command.Run(ctx, command.RunOptions{Check: true, Stdout: h.Stdout(), Stderr: h.Stderr()})
		return err
	})
	if err != nil {
		return fmt.Errorf("tleap: %w", err)
	}

	prmtop := filepath.Join(dir, t.Deck.Frame+".prmtop")
	inpcrd := filepath.Join(dir, t.Deck.Frame+".rst7")
	for _, f := range []string{prmtop, inpcrd} {
		if _, err := os.Stat(f); err != nil {
			return fmt.Errorf("tleap did not produce %s: %w", f, err)
		}
	}

	eng := h.Sander()
	if err := eng.Set("prmtop", prmtop); err != nil {
		return err
	}
	if err := eng.Set("inpcrd", inpcrd); err != nil {
		return err
	}
	logger.Debug("System built.", "prmtop", prmtop, "inpcrd", inpcrd)
	return nil
}

type tleapBody struct {
	Frame       *string  `hcl:"frame,optional"`
	Commands    []string `hcl:"commands"`
	IncludeDirs []string `hcl:"include_dirs,optional"`
	Executable  []string `hcl:"executable,optional"`
}

func decodeTleap(_ context.Context, b *hcl_adapter.Block) (step.Step, error) {
	var body tleapBody
	if err := b.Decode(&body); err != nil {
		return nil, err
	}
	t := NewTleap(b.Name)
	if body.Frame != nil {
		t.Deck.Frame = *body.Frame
	}
	for _, c := range body.Commands {
		t.Deck.Add(c)
	}
	if len(body.IncludeDirs) > 0 {
		if err := t.Command.Set("include_dirs", body.IncludeDirs); err != nil {
			return nil, err
		}
	}
	if len(body.Executable) > 0 {
		t.Command.Executable = body.Executable
	}
	return t, nil
}
