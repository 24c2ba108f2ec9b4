package command

import (
	"bytes"
	"encoding/json"
	"fmt"
)

type commandJSON struct {
	Kind       string                     `json:"kind"`
	Executable []string                   `json:"executable"`
	Arguments  map[string]json.RawMessage `json:"arguments,omitempty"`
	Attributes map[string]any             `json:"attributes,omitempty"`
}

// MarshalJSON stores the kind, the executable, the values of settable
// arguments and the attributes. Derived arguments are recomputed on load.
func (c *Command) MarshalJSON() ([]byte, error) {
	doc := commandJSON{
		Kind:       c.kind,
		Executable: c.Executable,
		Arguments:  make(map[string]json.RawMessage, len(c.order)),
		Attributes: c.attrs,
	}
	for _, key := range c.order {
		a := c.args[key]
		if a.kind == kindDerived {
			continue
		}
		raw, err := json.Marshal(a.value())
		if err != nil {
			return nil, fmt.Errorf("argument %q: %w", key, err)
		}
		doc.Arguments[key] = raw
	}
	return json.Marshal(doc)
}

// UnmarshalJSON rebuilds the command through the constructor registered
// for its kind and then applies the stored values.
func (c *Command) UnmarshalJSON(data []byte) error {
	var doc commandJSON
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&doc); err != nil {
		return err
	}
	ctor, ok := lookup(doc.Kind)
	if !ok {
		return fmt.Errorf("unknown command kind %q", doc.Kind)
	}
	fresh := ctor()
	if doc.Executable != nil {
		fresh.Executable = doc.Executable
	}

	for key, raw := range doc.Arguments {
		a, ok := fresh.args[key]
		if !ok || a.kind == kindDerived {
			return fmt.Errorf("argument %q is not settable on %s", key, doc.Kind)
		}
		var v any
		switch a.kind {
		case kindString:
			var s *string
			if err := json.Unmarshal(raw, &s); err != nil {
				return fmt.Errorf("argument %q: %w", key, err)
			}
			if s != nil {
				v = *s
			}
		case kindFlag:
			var b bool
			if err := json.Unmarshal(raw, &b); err != nil {
				return fmt.Errorf("argument %q: %w", key, err)
			}
			v = b
		case kindList:
			var l []string
			if err := json.Unmarshal(raw, &l); err != nil {
				return fmt.Errorf("argument %q: %w", key, err)
			}
			if l != nil {
				v = l
			}
		}
		if err := a.assign(v); err != nil {
			return err
		}
	}

	fresh.attrs = make(map[string]any, len(doc.Attributes))
	for key, v := range doc.Attributes {
		fresh.attrs[key] = normalize(v)
	}
	*c = *fresh
	return nil
}

// normalize turns decoded JSON arrays of strings back into []string so
// Strings keeps working on restored attributes.
func normalize(v any) any {
	items, ok := v.([]any)
	if !ok {
		return v
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		s, ok := item.(string)
		if !ok {
			return v
		}
		out = append(out, s)
	}
	return out
}
