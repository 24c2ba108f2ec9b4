package steps

import (
	"maps"
	"os"
	"slices"

	"github.com/vk/amberrun/internal/registry"
	"github.com/vk/amberrun/internal/step"
)

// Module registers the built-in step kinds.
type Module struct{}

// Register implements registry.Module.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterKind(KindTleap, &registry.Kind{
		New:    func(name string) step.Step { return NewTleap(name) },
		Decode: decodeTleap,
	})
	r.RegisterKind(KindSander, &registry.Kind{
		New:    func(name string) step.Step { return NewSander(name) },
		Decode: decodeSander,
	})
	r.RegisterKind(KindSanderRepeat, &registry.Kind{
		New:    func(name string) step.Step { return NewSanderRepeat(name, 0) },
		Decode: decodeSanderRepeat,
	})
	r.RegisterKind(KindParmed, &registry.Kind{
		New:    func(name string) step.Step { return NewParmed(name) },
		Decode: decodeParmed,
	})
	r.RegisterKind(KindExec, &registry.Kind{
		New:    func(name string) step.Step { return NewExec(name) },
		Decode: decodeExec,
	})
}

var environ = os.Environ

func sortedKeys(m map[string]string) []string {
	return slices.Sorted(maps.Keys(m))
}
