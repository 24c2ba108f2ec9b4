package registry

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"slices"

	"github.com/vk/amberrun/internal/hcl_adapter"
	"github.com/vk/amberrun/internal/step"
)

// Module is the interface that all step modules must implement to be
// registered.
type Module interface {
	Register(r *Registry)
}

// Kind holds the compiled parts of one step kind.
type Kind struct {
	// New returns an empty step named name, used as a JSON decode target.
	New func(name string) step.Step
	// Decode builds a step from its HCL block.
	Decode func(ctx context.Context, b *hcl_adapter.Block) (step.Step, error)
}

// Registry holds the step kinds of a single application instance.
type Registry struct {
	kinds map[string]*Kind
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{kinds: make(map[string]*Kind)}
}

// Load registers every module in order.
func (r *Registry) Load(modules ...Module) *Registry {
	for _, m := range modules {
		m.Register(r)
	}
	return r
}

// RegisterKind registers the implementation of a step kind. Registering a
// name twice is a programming error and panics.
func (r *Registry) RegisterKind(name string, k *Kind) {
	if _, exists := r.kinds[name]; exists {
		panic(fmt.Sprintf("step kind '%s' already registered", name))
	}
	slog.Debug("Registering step kind.", "kind", name)
	r.kinds[name] = k
}

// Kinds returns the registered kind names, sorted.
func (r *Registry) Kinds() []string {
	return slices.Sorted(maps.Keys(r.kinds))
}

// NewStep returns an empty step of the given kind.
func (r *Registry) NewStep(kind, name string) (step.Step, error) {
	k, ok := r.kinds[kind]
	if !ok {
		return nil, fmt.Errorf("unknown step kind %q", kind)
	}
	return k.New(name), nil
}

// DecodeStep builds a step from an HCL block of a registered kind.
func (r *Registry) DecodeStep(ctx context.Context, b *hcl_adapter.Block) (step.Step, error) {
	k, ok := r.kinds[b.Kind]
	if !ok {
		return nil, fmt.Errorf("%s: step %q: unknown step kind %q (known: %v)", b.Range, b.Name, b.Kind, r.Kinds())
	}
	st, err := k.Decode(ctx, b)
	if err != nil {
		return nil, err
	}
	if st.Kind() != b.Kind {
		return nil, fmt.Errorf("step %q: decoder for %q produced a %q step", b.Name, b.Kind, st.Kind())
	}
	return st, nil
}
