package steps

import (
	"context"
	"fmt"

	"github.com/vk/amberrun/internal/command"
	"github.com/vk/amberrun/internal/hcl_adapter"
	"github.com/vk/amberrun/internal/step"
)

// Exec runs an arbitrary program, such as an analysis script, with the
// step directory as its working directory.
type Exec struct {
	step.Base
	step.Once
	Command *command.Command `json:"command"`
	Env     []string         `json:"env,omitempty"`
}

// NewExec returns a step running argv.
func NewExec(name string, argv ...string) *Exec {
	return &Exec{Base: step.Base{StepName: name}, Command: command.Plain(argv...)}
}

// Kind implements step.Step.
func (e *Exec) Kind() string { return KindExec }

// Validate rejects a step with nothing to run.
func (e *Exec) Validate() error {
	if e.Command == nil || len(e.Command.Executable) == 0 {
		return missing("command")
	}
	return nil
}

// Run executes the command.
func (e *Exec) Run(ctx context.Context, h step.Host) error {
	opts := command.RunOptions{Check: true, Dir: e.Dir(), Stdout: h.Stdout(), Stderr: h.Stderr()}
	if len(e.Env) > 0 {
		opts.Env = append(environ(), e.Env...)
	}
	if _, err := e.Command.Run(ctx, opts); err != nil {
		return fmt.Errorf("exec: %w", err)
	}
	return nil
}

type execBody struct {
	Command []string          `hcl:"command"`
	Env     map[string]string `hcl:"env,optional"`
}

func decodeExec(_ context.Context, b *hcl_adapter.Block) (step.Step, error) {
	var body execBody
	if err := b.Decode(&body); err != nil {
		return nil, err
	}
	if len(body.Command) == 0 {
		return nil, fmt.Errorf("step %q: command must not be empty", b.Name)
	}
	e := NewExec(b.Name, body.Command...)
	for _, k := range sortedKeys(body.Env) {
		e.Env = append(e.Env, k+"="+body.Env[k])
	}
	return e, nil
}
