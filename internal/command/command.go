// Package command models an external program invocation as a set of
// declared arguments plus free-form attributes.
//
// Declared arguments render to argv tokens in declaration order. Derived
// arguments are computed from another argument or attribute on every read,
// so changing a prefix is enough to move every file that depends on it.
// Overrides can be applied for the duration of a call with Scope or With,
// which is how steps run a shared command against their own directories
// without leaking settings into the next step.
package command

import (
	"fmt"
	"maps"
	"slices"
)

// Command is an executable prefix plus its arguments and attributes.
// It is not safe for concurrent use.
type Command struct {
	kind       string
	Executable []string

	order []string
	args  map[string]*argument
	attrs map[string]any
}

// New builds a command of the given kind. Declarations are rendered in the
// order given; declaring the same key twice panics.
func New(kind string, executable []string, decls ...Decl) *Command {
	c := &Command{
		kind:       kind,
		Executable: slices.Clone(executable),
		args:       make(map[string]*argument, len(decls)),
		attrs:      make(map[string]any),
	}
	for _, d := range decls {
		if _, dup := c.args[d.key]; dup {
			panic(fmt.Sprintf("command %s: argument %q declared twice", kind, d.key))
		}
		if d.list != nil {
			d.list = slices.Clone(d.list)
		}
		c.order = append(c.order, d.key)
		c.args[d.key] = &argument{Decl: d}
	}
	return c
}

// Kind names the constructor the command was built with.
func (c *Command) Kind() string { return c.kind }

// Declared reports whether key is a declared argument.
func (c *Command) Declared(key string) bool {
	_, ok := c.args[key]
	return ok
}

// Get returns the current value of an argument or attribute. Derived
// arguments are computed on each call. The second result is false for an
// unknown key.
func (c *Command) Get(key string) (any, bool) {
	if a, ok := c.args[key]; ok {
		if a.kind == kindDerived {
			s, ok := c.derive(a)
			if !ok {
				return nil, true
			}
			return s, true
		}
		return a.value(), true
	}
	v, ok := c.attrs[key]
	return v, ok
}

// Set assigns a declared argument, or creates or replaces a plain
// attribute for an undeclared key.
func (c *Command) Set(key string, v any) error {
	if a, ok := c.args[key]; ok {
		return a.assign(v)
	}
	c.attrs[key] = v
	return nil
}

// SetArgument is Set restricted to declared arguments.
func (c *Command) SetArgument(key string, v any) error {
	a, ok := c.args[key]
	if !ok {
		return misuse(key, "not a declared argument")
	}
	return a.assign(v)
}

// Delete removes a plain attribute. Declared arguments cannot be removed.
func (c *Command) Delete(key string) {
	delete(c.attrs, key)
}

// String returns the value of key when it is a set string.
func (c *Command) String(key string) (string, bool) {
	v, _ := c.Get(key)
	s, ok := v.(string)
	return s, ok
}

// Bool returns the value of key as a bool; anything else reads as false.
func (c *Command) Bool(key string) bool {
	v, _ := c.Get(key)
	b, _ := v.(bool)
	return b
}

// Strings returns the value of key when it is a list of strings.
func (c *Command) Strings(key string) []string {
	v, _ := c.Get(key)
	l, _ := v.([]string)
	return l
}

// Attributes returns a copy of the plain attributes.
func (c *Command) Attributes() map[string]any {
	return maps.Clone(c.attrs)
}

func (c *Command) derive(a *argument) (string, bool) {
	src, ok := c.String(a.from)
	if !ok {
		return "", false
	}
	return a.format(src), true
}

// Args renders the declared arguments in declaration order.
func (c *Command) Args() []string {
	var out []string
	for _, key := range c.order {
		a := c.args[key]
		switch a.kind {
		case kindString:
			if a.str != nil {
				out = append(out, a.flag, *a.str)
			}
		case kindFlag:
			if a.on {
				out = append(out, a.flag)
			}
		case kindList:
			for _, item := range a.list {
				out = append(out, a.flag, item)
			}
		case kindDerived:
			if s, ok := c.derive(a); ok {
				out = append(out, a.flag, s)
			}
		}
	}
	return out
}

// Cmdline is the executable followed by Args.
func (c *Command) Cmdline() []string {
	return append(slices.Clone(c.Executable), c.Args()...)
}

type saved struct {
	key    string
	value  any
	exists bool
}

// Scope applies overrides and returns a func restoring the previous
// values. Keys are applied in sorted order. If an override fails, the ones
// already applied are rolled back and the error is returned. Attributes
// created by the scope are deleted on restore. Calling restore more than
// once is harmless.
func (c *Command) Scope(overrides map[string]any) (restore func(), err error) {
	var backup []saved
	undo := func() {
		for i := len(backup) - 1; i >= 0; i-- {
			b := backup[i]
			if !b.exists {
				delete(c.attrs, b.key)
				continue
			}
			if a, ok := c.args[b.key]; ok {
				_ = a.assign(b.value)
				continue
			}
			c.attrs[b.key] = b.value
		}
		backup = nil
	}

	for _, key := range slices.Sorted(maps.Keys(overrides)) {
		prev, exists := c.Get(key)
		if err := c.Set(key, overrides[key]); err != nil {
			undo()
			return nil, err
		}
		backup = append(backup, saved{key: key, value: prev, exists: exists})
	}
	return undo, nil
}

// With runs fn under Scope(overrides), restoring the previous values on
// every exit path, panics included.
func (c *Command) With(overrides map[string]any, fn func() error) error {
	restore, err := c.Scope(overrides)
	if err != nil {
		return err
	}
	defer restore()
	return fn()
}
