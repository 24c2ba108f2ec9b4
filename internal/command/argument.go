package command

import "fmt"

type argKind int

const (
	kindString argKind = iota
	kindFlag
	kindList
	kindDerived
)

func (k argKind) String() string {
	switch k {
	case kindString:
		return "string"
	case kindFlag:
		return "flag"
	case kindList:
		return "list"
	case kindDerived:
		return "derived"
	default:
		return fmt.Sprintf("argKind(%d)", int(k))
	}
}

// Decl declares one command-line argument. Build declarations with String,
// Flag, List and Derived and hand them to New.
type Decl struct {
	key  string
	flag string
	kind argKind

	str  *string
	on   bool
	list []string

	from   string
	format func(string) string
}

// String declares an argument rendered as "flag value". Without a default
// the argument is optional and rendered only once a value is set.
func String(key, flag string, def ...string) Decl {
	d := Decl{key: key, flag: flag, kind: kindString}
	if len(def) > 0 {
		v := def[0]
		d.str = &v
	}
	return d
}

// Flag declares a boolean argument rendered as a bare flag while true.
func Flag(key, flag string, def bool) Decl {
	return Decl{key: key, flag: flag, kind: kindFlag, on: def}
}

// List declares an argument rendered as "flag item" once per item.
func List(key, flag string, def ...string) Decl {
	return Decl{key: key, flag: flag, kind: kindList, list: def}
}

// Derived declares a read-only argument computed from the current value of
// the argument or attribute named by from. It is omitted while from is
// unset.
func Derived(key, flag, from string, format func(string) string) Decl {
	return Decl{key: key, flag: flag, kind: kindDerived, from: from, format: format}
}

// argument is the live state of a declaration.
type argument struct {
	Decl
}

func (a *argument) value() any {
	switch a.kind {
	case kindString:
		if a.str == nil {
			return nil
		}
		return *a.str
	case kindFlag:
		return a.on
	case kindList:
		if a.list == nil {
			return nil
		}
		return append([]string(nil), a.list...)
	}
	return nil
}

// assign stores v. A nil v unsets optional strings and lists and clears
// flags.
func (a *argument) assign(v any) error {
	switch a.kind {
	case kindDerived:
		return misuse(a.key, "derived from %q and cannot be set", a.from)
	case kindString:
		switch s := v.(type) {
		case nil:
			a.str = nil
		case string:
			a.str = &s
		default:
			return misuse(a.key, "expects a string, got %T", v)
		}
	case kindFlag:
		switch b := v.(type) {
		case nil:
			a.on = false
		case bool:
			a.on = b
		default:
			return misuse(a.key, "expects a bool, got %T", v)
		}
	case kindList:
		switch l := v.(type) {
		case nil:
			a.list = nil
		case []string:
			a.list = append([]string(nil), l...)
		default:
			return misuse(a.key, "expects a []string, got %T", v)
		}
	}
	return nil
}
