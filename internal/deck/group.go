package deck

import (
	"fmt"
	"io"
	"strings"
)

// Range is an inclusive index interval, written as "ATOM first last" or
// "RES first last".
type Range struct {
	First int `json:"first"`
	Last  int `json:"last"`
}

func (r Range) overlaps(o Range) bool {
	return r.First <= o.Last && o.First <= r.Last
}

// Find is one selector line of a FIND ... SEARCH block. Empty fields are
// written as the wildcard "*".
type Find struct {
	AtomName    string `json:"atom_name,omitempty"`
	AtomType    string `json:"atom_type,omitempty"`
	Tree        string `json:"tree,omitempty"`
	ResidueName string `json:"residue_name,omitempty"`
}

var validTrees = map[string]bool{"": true, "*": true, "M": true, "S": true, "B": true, "3": true, "E": true}

func (f Find) String() string {
	return strings.Join([]string{wildcard(f.AtomName), wildcard(f.AtomType), wildcard(f.Tree), wildcard(f.ResidueName)}, " ")
}

func wildcard(s string) string {
	if s == "" {
		return "*"
	}
	return s
}

// GroupSelection is one group of the sander "GROUP" input, used for
// positional restraints and belly dynamics.
type GroupSelection struct {
	Title    string   `json:"title"`
	Weight   *float64 `json:"weight,omitempty"`
	Find     []Find   `json:"find,omitempty"`
	Atoms    []Range  `json:"atoms,omitempty"`
	Residues []Range  `json:"residues,omitempty"`
}

// Weighted returns a selection restrained with the given force constant.
func Weighted(title string, weight float64, atoms ...Range) *GroupSelection {
	return &GroupSelection{Title: title, Weight: &weight, Atoms: atoms}
}

// Validate checks the selection on its own, without the enclosing deck.
func (g *GroupSelection) Validate() error {
	field := fmt.Sprintf("group %q", g.Title)
	if g.Weight == nil && len(g.Find) == 0 && len(g.Atoms) == 0 && len(g.Residues) == 0 {
		return invalid(field, "selection needs a weight, a FIND record or an index range")
	}
	if err := checkRanges(field+" ATOM", g.Atoms); err != nil {
		return err
	}
	if err := checkRanges(field+" RES", g.Residues); err != nil {
		return err
	}
	seen := make(map[Find]bool, len(g.Find))
	for _, f := range g.Find {
		if !validTrees[f.Tree] {
			return invalid(field, "tree type %q is not one of M, S, B, 3, E, *", f.Tree)
		}
		norm := Find{wildcard(f.AtomName), wildcard(f.AtomType), wildcard(f.Tree), wildcard(f.ResidueName)}
		if seen[norm] {
			return invalid(field, "duplicate FIND record %q", norm)
		}
		seen[norm] = true
	}
	return nil
}

// checkRanges rejects inverted ranges and any pair of ranges sharing an
// index. Ranges arrive in arbitrary order, so every pair is compared.
func checkRanges(field string, ranges []Range) error {
	for i, r := range ranges {
		if r.First > r.Last {
			return invalid(field, "range (%d, %d) is inverted", r.First, r.Last)
		}
		for _, o := range ranges[i+1:] {
			if r.overlaps(o) {
				return invalid(field, "ranges (%d, %d) and (%d, %d) overlap", r.First, r.Last, o.First, o.Last)
			}
		}
	}
	return nil
}

// Write renders the selection followed by its END line.
func (g *GroupSelection) Write(w io.Writer) error {
	var b strings.Builder
	b.WriteString(g.Title + "\n")
	if g.Weight != nil {
		b.WriteString(formatReal(*g.Weight) + "\n")
	}
	if len(g.Find) > 0 {
		b.WriteString("FIND\n")
		for _, f := range g.Find {
			b.WriteString(f.String() + "\n")
		}
		b.WriteString("SEARCH\n")
	}
	for _, r := range g.Atoms {
		fmt.Fprintf(&b, "ATOM %d %d\n", r.First, r.Last)
	}
	for _, r := range g.Residues {
		fmt.Fprintf(&b, "RES %d %d\n", r.First, r.Last)
	}
	b.WriteString("END\n")
	_, err := io.WriteString(w, b.String())
	return err
}
