package deck

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Kind is the Fortran type of a namelist value.
type Kind int

const (
	KindUnset Kind = iota
	KindInt
	KindReal
	KindString
	KindBool
	KindList
)

// Value is a typed namelist value. Integers and reals are kept apart so
// that 300.0 is written back as a real even after a JSON round trip.
type Value struct {
	kind Kind
	i    int64
	f    float64
	s    string
	b    bool
	list []Value
}

// Int returns an integer value.
func Int(v int64) Value { return Value{kind: KindInt, i: v} }

// Real returns a real value.
func Real(v float64) Value { return Value{kind: KindReal, f: v} }

// Str returns a character value.
func Str(v string) Value { return Value{kind: KindString, s: v} }

// Bool returns a logical value.
func Bool(v bool) Value { return Value{kind: KindBool, b: v} }

// List returns an array value.
func List(vs ...Value) Value { return Value{kind: KindList, list: vs} }

// Kind reports the value's type.
func (v Value) Kind() Kind { return v.kind }

// Float returns the numeric value of an integer or real and whether the
// value is numeric at all.
func (v Value) Float() (float64, bool) {
	switch v.kind {
	case KindInt:
		return float64(v.i), true
	case KindReal:
		return v.f, true
	default:
		return 0, false
	}
}

// String renders the value in Fortran namelist syntax.
func (v Value) String() string {
	switch v.kind {
	case KindInt:
		return strconv.FormatInt(v.i, 10)
	case KindReal:
		return formatReal(v.f)
	case KindString:
		return "'" + strings.ReplaceAll(v.s, "'", "''") + "'"
	case KindBool:
		if v.b {
			return ".true."
		}
		return ".false."
	case KindList:
		parts := make([]string, len(v.list))
		for i, item := range v.list {
			parts[i] = item.String()
		}
		return strings.Join(parts, ", ")
	default:
		return ""
	}
}

// formatReal prints the shortest representation that still reads back as
// a real: 300 becomes "300.0", 0.002 stays "0.002".
func formatReal(f float64) string {
	if math.IsInf(f, 0) || math.IsNaN(f) {
		return strconv.FormatFloat(f, 'g', -1, 64)
	}
	s := strconv.FormatFloat(f, 'g', -1, 64)
	if !strings.ContainsAny(s, ".e") {
		s += ".0"
	}
	return s
}

// formatNumber prints a float without forcing a decimal point, the way the
// restraint records expect it.
func formatNumber(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}

type valueJSON struct {
	Int  *int64   `json:"int,omitempty"`
	Real *float64 `json:"real,omitempty"`
	Str  *string  `json:"str,omitempty"`
	Bool *bool    `json:"bool,omitempty"`
	List []Value  `json:"list,omitempty"`
}

// MarshalJSON encodes the value together with its kind.
func (v Value) MarshalJSON() ([]byte, error) {
	var doc valueJSON
	switch v.kind {
	case KindInt:
		doc.Int = &v.i
	case KindReal:
		doc.Real = &v.f
	case KindString:
		doc.Str = &v.s
	case KindBool:
		doc.Bool = &v.b
	case KindList:
		if v.list == nil {
			return []byte(`{"list":[]}`), nil
		}
		doc.List = v.list
	default:
		return []byte("null"), nil
	}
	return json.Marshal(doc)
}

// UnmarshalJSON decodes a value written by MarshalJSON.
func (v *Value) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*v = Value{}
		return nil
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if len(raw) != 1 {
		return fmt.Errorf("namelist value must have exactly one kind, got %d", len(raw))
	}
	var doc valueJSON
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}
	switch {
	case doc.Int != nil:
		*v = Int(*doc.Int)
	case doc.Real != nil:
		*v = Real(*doc.Real)
	case doc.Str != nil:
		*v = Str(*doc.Str)
	case doc.Bool != nil:
		*v = Bool(*doc.Bool)
	case raw["list"] != nil:
		*v = List(doc.List...)
		if v.list == nil {
			v.list = []Value{}
		}
	default:
		return errors.New("unknown namelist value kind")
	}
	return nil
}

// Equal reports whether two values have the same kind and content.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindInt:
		return v.i == o.i
	case KindReal:
		return v.f == o.f
	case KindString:
		return v.s == o.s
	case KindBool:
		return v.b == o.b
	case KindList:
		if len(v.list) != len(o.list) {
			return false
		}
		for i := range v.list {
			if !v.list[i].Equal(o.list[i]) {
				return false
			}
		}
	}
	return true
}
