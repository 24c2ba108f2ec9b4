package hcl_adapter

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/vk/amberrun/internal/deck"
)

// AmberBody is the part of a step body describing an MD input deck. Step
// decoders decode their own attributes first and hand the remaining body
// to DecodeAmberBody.
type AmberBody struct {
	Title      *string           `hcl:"title,optional"`
	Namelists  []*NamelistBlock  `hcl:"namelist,block"`
	Varying    []*VaryingBlock   `hcl:"varying,block"`
	Restraints []*RestraintBlock `hcl:"restraint,block"`
	Groups     []*GroupBlock     `hcl:"group,block"`
	Redirect   map[string]string `hcl:"redirect,optional"`
}

// NamelistBlock is `namelist "cntrl" { key = value ... }`.
type NamelistBlock struct {
	Name string   `hcl:"name,label"`
	Body hcl.Body `hcl:",remain"`
}

// VaryingBlock is `varying "TEMP0" { istep1 = ... }`, one &wt group.
type VaryingBlock struct {
	Type string   `hcl:"type,label"`
	Body hcl.Body `hcl:",remain"`
}

// RestraintBlock is `restraint "distance" { atoms = [...] r1 = ... }`.
type RestraintBlock struct {
	Kind  string  `hcl:"kind,label"`
	Atoms []int   `hcl:"atoms"`
	R1    float64 `hcl:"r1,optional"`
	R2    float64 `hcl:"r2,optional"`
	R3    float64 `hcl:"r3,optional"`
	R4    float64 `hcl:"r4,optional"`
	RK2   float64 `hcl:"rk2,optional"`
	RK3   float64 `hcl:"rk3,optional"`
}

// GroupBlock is `group "title" { weight = ... atoms = [[1, 100]] }`.
type GroupBlock struct {
	Title    string       `hcl:"title,label"`
	Weight   *float64     `hcl:"weight,optional"`
	Atoms    [][]int      `hcl:"atoms,optional"`
	Residues [][]int      `hcl:"residues,optional"`
	Find     []*FindBlock `hcl:"find,block"`
}

// FindBlock is one FIND record; omitted fields match anything.
type FindBlock struct {
	AtomName    string `hcl:"atom_name,optional"`
	AtomType    string `hcl:"atom_type,optional"`
	Tree        string `hcl:"tree,optional"`
	ResidueName string `hcl:"residue_name,optional"`
}

// DecodeAmberBody decodes body into an AmberBody.
func (b *Block) DecodeAmberBody(body hcl.Body) (*AmberBody, error) {
	var ab AmberBody
	if diags := gohcl.DecodeBody(body, b.EvalCtx, &ab); diags.HasErrors() {
		return nil, fmt.Errorf("step %q: %w", b.Name, diagsError(diags))
	}
	return &ab, nil
}

// AmberDeck builds an input deck from a decoded AmberBody. The deck is
// validated so mistakes surface when the definition is loaded rather than
// when the step runs.
func (b *Block) AmberDeck(ctx context.Context, body *AmberBody) (*deck.AmberDeck, error) {
	d := deck.NewAmberDeck()
	if body == nil {
		return d, nil
	}
	if body.Title != nil {
		d.Title = *body.Title
	}

	for _, nb := range body.Namelists {
		if strings.EqualFold(nb.Name, "wt") {
			return nil, fmt.Errorf("step %q: use varying blocks for &wt groups", b.Name)
		}
		if err := b.fillNamelist(ctx, d.Group(nb.Name), nb.Body); err != nil {
			return nil, err
		}
	}

	for _, vb := range body.Varying {
		wt := deck.NewNamelist("wt").Set("type", deck.Str(vb.Type))
		if err := b.fillNamelist(ctx, wt, vb.Body); err != nil {
			return nil, err
		}
		if err := d.Vary(wt); err != nil {
			return nil, fmt.Errorf("step %q: %w", b.Name, err)
		}
	}

	for _, rb := range body.Restraints {
		if err := addRestraint(d.Restraints(), rb); err != nil {
			return nil, fmt.Errorf("step %q: %w", b.Name, err)
		}
	}

	for _, gb := range body.Groups {
		g, err := groupSelection(gb)
		if err != nil {
			return nil, fmt.Errorf("step %q: group %q: %w", b.Name, gb.Title, err)
		}
		d.Pin(g)
	}

	for _, kind := range slices.Sorted(maps.Keys(body.Redirect)) {
		if err := d.Redirect(kind, body.Redirect[kind]); err != nil {
			return nil, fmt.Errorf("step %q: %w", b.Name, err)
		}
	}

	if err := d.Validate(); err != nil {
		return nil, fmt.Errorf("step %q: %w", b.Name, err)
	}
	return d, nil
}

func addRestraint(r *deck.Restraints, rb *RestraintBlock) error {
	p := deck.Penalty{R1: rb.R1, R2: rb.R2, R3: rb.R3, R4: rb.R4, K2: rb.RK2, K3: rb.RK3}
	a := rb.Atoms
	want := map[string]int{"distance": 2, "angle": 3, "dihedral": 4}[rb.Kind]
	if want == 0 {
		return fmt.Errorf("unknown restraint kind %q", rb.Kind)
	}
	if len(a) != want {
		return fmt.Errorf("%s restraint needs %d atoms, got %d", rb.Kind, want, len(a))
	}
	switch want {
	case 2:
		r.Distance(a[0], a[1], p)
	case 3:
		r.Angle(a[0], a[1], a[2], p)
	case 4:
		r.Dihedral(a[0], a[1], a[2], a[3], p)
	}
	return nil
}

func groupSelection(gb *GroupBlock) (*deck.GroupSelection, error) {
	g := &deck.GroupSelection{Title: gb.Title, Weight: gb.Weight}
	var err error
	if g.Atoms, err = ranges(gb.Atoms); err != nil {
		return nil, fmt.Errorf("atoms: %w", err)
	}
	if g.Residues, err = ranges(gb.Residues); err != nil {
		return nil, fmt.Errorf("residues: %w", err)
	}
	for _, f := range gb.Find {
		g.Find = append(g.Find, deck.Find{
			AtomName:    f.AtomName,
			AtomType:    f.AtomType,
			Tree:        f.Tree,
			ResidueName: f.ResidueName,
		})
	}
	return g, nil
}

func ranges(pairs [][]int) ([]deck.Range, error) {
	var out []deck.Range
	for _, p := range pairs {
		if len(p) != 2 {
			return nil, fmt.Errorf("range must be [first, last], got %v", p)
		}
		out = append(out, deck.Range{First: p[0], Last: p[1]})
	}
	return out, nil
}
