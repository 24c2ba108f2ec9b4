package deck

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// Namelist is one Fortran namelist group ("&cntrl ... /"). Keys are
// case-insensitive, stored lower-case, and keep their first insertion order.
type Namelist struct {
	name    string
	entries []entry
}

type entry struct {
	Key   string `json:"key"`
	Value Value  `json:"value"`
}

// NewNamelist returns an empty group called name.
func NewNamelist(name string) *Namelist {
	return &Namelist{name: strings.ToLower(name)}
}

// Name returns the group name.
func (n *Namelist) Name() string { return n.name }

// Set assigns key. An existing key keeps its position.
func (n *Namelist) Set(key string, v Value) *Namelist {
	key = strings.ToLower(key)
	for i := range n.entries {
		if n.entries[i].Key == key {
			n.entries[i].Value = v
			return n
		}
	}
	n.entries = append(n.entries, entry{Key: key, Value: v})
	return n
}

// Get returns the value of key.
func (n *Namelist) Get(key string) (Value, bool) {
	key = strings.ToLower(key)
	for _, e := range n.entries {
		if e.Key == key {
			return e.Value, true
		}
	}
	return Value{}, false
}

// Del removes key and reports whether it was present.
func (n *Namelist) Del(key string) bool {
	key = strings.ToLower(key)
	for i, e := range n.entries {
		if e.Key == key {
			n.entries = append(n.entries[:i], n.entries[i+1:]...)
			return true
		}
	}
	return false
}

// Keys returns the keys in write order.
func (n *Namelist) Keys() []string {
	keys := make([]string, len(n.entries))
	for i, e := range n.entries {
		keys[i] = e.Key
	}
	return keys
}

// Len returns the number of assignments.
func (n *Namelist) Len() int { return len(n.entries) }

// positive reports whether key holds a number greater than zero.
func (n *Namelist) positive(key string) bool {
	if n == nil {
		return false
	}
	v, ok := n.Get(key)
	if !ok {
		return false
	}
	f, ok := v.Float()
	return ok && f > 0
}

// Write renders the group.
func (n *Namelist) Write(w io.Writer) error {
	var b strings.Builder
	fmt.Fprintf(&b, "&%s\n", n.name)
	for _, e := range n.entries {
		fmt.Fprintf(&b, "    %s = %s\n", e.Key, e.Value)
	}
	b.WriteString("/\n")
	_, err := io.WriteString(w, b.String())
	return err
}

// Equal reports whether both groups have the same name and assignments in
// the same order.
func (n *Namelist) Equal(o *Namelist) bool {
	if n == nil || o == nil {
		return n == o
	}
	if n.name != o.name || len(n.entries) != len(o.entries) {
		return false
	}
	for i := range n.entries {
		if n.entries[i].Key != o.entries[i].Key || !n.entries[i].Value.Equal(o.entries[i].Value) {
			return false
		}
	}
	return true
}

type namelistJSON struct {
	Name    string  `json:"name"`
	Entries []entry `json:"entries"`
}

// MarshalJSON encodes the group with its ordered entries.
func (n *Namelist) MarshalJSON() ([]byte, error) {
	entries := n.entries
	if entries == nil {
		entries = []entry{}
	}
	return json.Marshal(namelistJSON{Name: n.name, Entries: entries})
}

// UnmarshalJSON decodes a group written by MarshalJSON.
func (n *Namelist) UnmarshalJSON(data []byte) error {
	var doc namelistJSON
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}
	if doc.Name == "" {
		return fmt.Errorf("namelist without a name")
	}
	n.name = strings.ToLower(doc.Name)
	n.entries = nil
	for _, e := range doc.Entries {
		n.Set(e.Key, e.Value)
	}
	return nil
}
