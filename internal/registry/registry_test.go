package registry

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/amberrun/internal/hcl_adapter"
	"github.com/vk/amberrun/internal/step"
)

type noopStep struct {
	step.Base
	step.Once
	kind string
}

func (s *noopStep) Kind() string                         { return s.kind }
func (s *noopStep) Run(context.Context, step.Host) error { return nil }

func noopKind(kind string) *Kind {
	return &Kind{
		New: func(name string) step.Step {
			return &noopStep{Base: step.Base{StepName: name}, kind: kind}
		},
		Decode: func(_ context.Context, b *hcl_adapter.Block) (step.Step, error) {
			return &noopStep{Base: step.Base{StepName: b.Name}, kind: kind}, nil
		},
	}
}

type noopModule struct{ kinds []string }

func (m noopModule) Register(r *Registry) {
	for _, k := range m.kinds {
		r.RegisterKind(k, noopKind(k))
	}
}

func TestRegistry_Load(t *testing.T) {
	r := New().Load(noopModule{kinds: []string{"b", "a"}}, noopModule{kinds: []string{"c"}})
	assert.Equal(t, []string{"a", "b", "c"}, r.Kinds())
	require.NoError(t, r.ValidateRegistry(context.Background()))

	st, err := r.NewStep("b", "heat")
	require.NoError(t, err)
	assert.Equal(t, "b", st.Kind())
	assert.Equal(t, "heat", st.Name())

	_, err = r.NewStep("zzz", "heat")
	assert.EqualError(t, err, `unknown step kind "zzz"`)
}

func TestRegistry_DuplicateKindPanics(t *testing.T) {
	r := New()
	r.RegisterKind("a", noopKind("a"))
	assert.PanicsWithValue(t, "step kind 'a' already registered", func() {
		r.RegisterKind("a", noopKind("a"))
	})
}

func TestRegistry_ValidateReportsEveryProblem(t *testing.T) {
	r := New()
	r.RegisterKind("no_decoder", &Kind{New: noopKind("no_decoder").New})
	r.RegisterKind("no_ctor", &Kind{Decode: noopKind("no_ctor").Decode})
	r.RegisterKind("liar", noopKind("truth"))
	r.RegisterKind("nameless", &Kind{
		New:    func(string) step.Step { return &noopStep{kind: "nameless"} },
		Decode: noopKind("nameless").Decode,
	})

	err := r.ValidateRegistry(context.Background())
	require.Error(t, err)
	msg := err.Error()
	assert.Contains(t, msg, "kind 'no_decoder': no HCL decoder")
	assert.Contains(t, msg, "kind 'no_ctor': no constructor")
	assert.Contains(t, msg, "kind 'liar': constructor builds steps of kind 'truth'")
	assert.Contains(t, msg, "kind 'nameless': constructor ignores the step name")
}

func TestRegistry_DecodeStepThroughLoader(t *testing.T) {
	r := New()
	r.RegisterKind("good", noopKind("good"))
	r.RegisterKind("odd", noopKind("even"))

	dir := t.TempDir()
	write := func(content string) string {
		path := filepath.Join(dir, "steps.hcl")
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
		return path
	}

	def, err := hcl_adapter.NewLoader(r).Load(context.Background(), write(`step "good" "one" {}`))
	require.NoError(t, err)
	require.Len(t, def.Steps, 1)
	assert.Equal(t, "one", def.Steps[0].Step.Name())

	_, err = hcl_adapter.NewLoader(r).Load(context.Background(), write(`step "missing" "one" {}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown step kind "missing"`)

	_, err = hcl_adapter.NewLoader(r).Load(context.Background(), write(`step "odd" "one" {}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), `decoder for "odd" produced a "even" step`)
}
