package registry

import (
	"context"
	"fmt"
	"strings"

	"github.com/vk/amberrun/internal/ctxlog"
)

// ValidateRegistry checks that every kind is complete and that the steps
// it builds report the kind they were registered under.
func (r *Registry) ValidateRegistry(ctx context.Context) error {
	var errs []string
	logger := ctxlog.FromContext(ctx)

	for _, name := range r.Kinds() {
		k := r.kinds[name]
		if k.New == nil {
			errs = append(errs, fmt.Sprintf("kind '%s': no constructor", name))
		}
		if k.Decode == nil {
			errs = append(errs, fmt.Sprintf("kind '%s': no HCL decoder", name))
		}
		if k.New == nil {
			continue
		}
		st := k.New("probe")
		if st.Kind() != name {
			errs = append(errs, fmt.Sprintf("kind '%s': constructor builds steps of kind '%s'", name, st.Kind()))
		}
		if st.Name() != "probe" {
			errs = append(errs, fmt.Sprintf("kind '%s': constructor ignores the step name", name))
		}
		logger.Debug("Validated step kind.", "kind", name)
	}

	if len(errs) > 0 {
		return fmt.Errorf("registry validation failed:\n- %s", strings.Join(errs, "\n- "))
	}
	return nil
}
