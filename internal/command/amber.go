package command

import (
	"fmt"
	"slices"
	"sync"
)

// Kinds of the built-in constructors.
const (
	KindPlain  = "plain"
	KindSander = "sander"
	KindPmemd  = "pmemd"
	KindTleap  = "tleap"
	KindParmed = "parmed"
)

// OutputPrefix is the attribute the MD engine derives its -i/-o/-r paths
// from.
const OutputPrefix = "output_prefix"

// Constructor builds a command with its full argument set.
type Constructor func() *Command

var (
	kindsMu sync.RWMutex
	kinds   = map[string]Constructor{
		KindPlain:  func() *Command { return New(KindPlain, nil) },
		KindSander: NewSander,
		KindPmemd:  NewPmemd,
		KindTleap:  NewTleap,
		KindParmed: NewParmed,
	}
)

// Register makes a constructor available to UnmarshalJSON under kind.
func Register(kind string, ctor Constructor) {
	kindsMu.Lock()
	defer kindsMu.Unlock()
	if _, dup := kinds[kind]; dup {
		panic(fmt.Sprintf("command kind %q registered twice", kind))
	}
	kinds[kind] = ctor
}

func lookup(kind string) (Constructor, bool) {
	kindsMu.RLock()
	defer kindsMu.RUnlock()
	ctor, ok := kinds[kind]
	return ctor, ok
}

// Plain wraps a fixed argv with no declared arguments.
func Plain(argv ...string) *Command {
	return New(KindPlain, argv)
}

func suffixed(ext string) func(string) string {
	return func(prefix string) string { return prefix + ext }
}

func mdEngineDecls() []Decl {
	return []Decl{
		Derived("mdin", "-i", OutputPrefix, suffixed(".in")),
		Derived("mdout", "-o", OutputPrefix, suffixed(".out")),
		Derived("restrt", "-r", OutputPrefix, suffixed(".rst")),
		String("prmtop", "-p"),
		String("inpcrd", "-c"),

		String("mdinfo", "-inf"),
		String("refc", "-ref"),
		String("mtmd", "-mtmd"),
		String("mdcrd", "-x"),
		String("inptraj", "-y"),
		String("mdvel", "-v"),
		String("mdfrc", "-frc"),
		String("radii", "-radii"),
		String("mden", "-e"),
		String("cpin", "-cpin"),
		String("cprestrt", "-cprestrt"),
		String("cpout", "-cpout"),
		String("cein", "-cein"),
		String("cerestrt", "-cerestrt"),
		String("ceout", "-ceout"),
		String("evbin", "-evbin"),
		String("suffix", "-suffix"),

		Flag("overwrite", "-O", true),
		Flag("append", "-A", false),
	}
}

func newEngine(kind string, executable []string, extra ...Decl) *Command {
	c := New(kind, executable, slices.Concat(mdEngineDecls(), extra)...)
	c.attrs[OutputPrefix] = "run"
	return c
}

// NewSander returns a sander invocation writing run.in/run.out/run.rst
// until its output prefix is changed.
func NewSander() *Command {
	return newEngine(KindSander, []string{"sander"})
}

// NewPmemd is NewSander for pmemd, which adds a log file and a GPU process
// map. For MPI or CUDA builds replace Executable, e.g. with
// {"mpirun", "-np", "4", "pmemd.MPI"}.
func NewPmemd() *Command {
	return newEngine(KindPmemd, []string{"pmemd"},
		String("logfile", "-l"),
		String("process_map_file", "-gpes"),
	)
}

// NewTleap returns a tleap invocation.
func NewTleap() *Command {
	return New(KindTleap, []string{"tleap"},
		List("include_dirs", "-I"),
		Flag("ignore_startup", "-s", false),
		String("source", "-f"),
	)
}

// NewParmed returns a parmed invocation.
func NewParmed() *Command {
	return New(KindParmed, []string{"parmed"},
		Flag("no_splash", "--no-splash", true),
		Flag("overwrite", "--overwrite", true),
		String("input", "--input"),
		String("logfile", "--logfile"),
		String("prmtop", "--parm"),
	)
}
