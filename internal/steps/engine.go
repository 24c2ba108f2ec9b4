// Package steps implements the step kinds a campaign can run: building a
// system with tleap, single and repeated MD engine calls, topology edits
// with parmed, and arbitrary commands.
package steps

import (
	"context"
	"fmt"
	"maps"

	"github.com/vk/amberrun/internal/command"
	"github.com/vk/amberrun/internal/ctxlog"
	"github.com/vk/amberrun/internal/deck"
	"github.com/vk/amberrun/internal/step"
)

// Kind names registered by Module.
const (
	KindTleap        = "tleap"
	KindSander       = "sander"
	KindSanderRepeat = "sander_repeat"
	KindParmed       = "parmed"
	KindExec         = "exec"
)

// perCallFiles are engine outputs that follow the call prefix unless the
// campaign pins them.
var perCallFiles = map[string]string{
	"mdcrd":   ".nc",
	"mdinfo":  ".mdinfo",
	"logfile": ".log",
}

// callEngine runs the shared MD engine once with every output under prefix
// and returns the restart file it wrote. args are extra engine arguments
// for this call only. The engine itself is left as it was; callers advance
// its coordinates once the whole unit of work succeeded.
func callEngine(ctx context.Context, h step.Host, d *deck.AmberDeck, prefix string, args map[string]string) (string, error) {
	eng := h.Sander()
	logger := ctxlog.FromContext(ctx)

	overrides := map[string]any{command.OutputPrefix: prefix}
	for key, ext := range perCallFiles {
		if _, set := eng.String(key); eng.Declared(key) && !set {
			overrides[key] = prefix + ext
		}
	}
	if _, set := eng.String("refc"); d.Restrained() && !set {
		if inpcrd, ok := eng.String("inpcrd"); ok {
			overrides["refc"] = inpcrd
		}
	}
	for k, v := range args {
		overrides[k] = v
	}

	var restrt string
	err := eng.With(overrides, func() error {
		mdin, ok := eng.String("mdin")
		if !ok {
			return fmt.Errorf("engine %s has no mdin argument", eng.Kind())
		}
		if err := deck.WriteFile(mdin, d); err != nil {
			return err
		}

		logger.Debug("Calling MD engine.", "prefix", prefix, "cmdline", eng.Cmdline())
		if _, err := eng.Run(ctx, command.RunOptions{Check: true, Stdout: h.Stdout(), Stderr: h.Stderr()}); err != nil {
			return err
		}

		if restrt, ok = eng.String("restrt"); !ok {
			return fmt.Errorf("engine %s has no restrt argument", eng.Kind())
		}
		return nil
	})
	return restrt, err
}

// missing reports a part a restored step record came back without.
func missing(part string) error {
	return fmt.Errorf("%s is missing", part)
}

func logCleanup(ctx context.Context, prefix string, removed int) {
	ctxlog.FromContext(ctx).Info("🧹 Removed partial output of an interrupted call.", "prefix", prefix, "files", removed)
}

// cloneArgs copies per-call engine arguments so decoded steps do not share
// maps.
func cloneArgs(m map[string]string) map[string]string {
	if len(m) == 0 {
		return nil
	}
	return maps.Clone(m)
}
