package deck

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
)

// DefaultTitle is the first line of every generated mdin file.
const DefaultTitle = "Generated by amberrun"

// RestraintSuffix is appended to the deck file name to form the restraint
// file written next to it.
const RestraintSuffix = ".disang"

// Redirection kinds accepted by sander.
var redirectionKinds = []string{
	"LISTIN", "LISTOUT", "DISANG", "NOESY", "SHIFTS", "PCSHIFT", "DIPOLE", "CSA", "DUMPAVE",
}

// AmberDeck is an mdin file for sander and pmemd.
type AmberDeck struct {
	Title string

	groups     []*Namelist
	varying    []*Namelist
	restraints *Restraints
	selections []*GroupSelection
	redirects  []redirect
}

type redirect struct {
	Kind string `json:"kind"`
	File string `json:"file"`
}

// NewAmberDeck returns an empty mdin deck.
func NewAmberDeck() *AmberDeck {
	return &AmberDeck{Title: DefaultTitle, restraints: NewRestraints()}
}

// Group returns the namelist group called name, creating it on first use.
// Groups are written in creation order.
func (d *AmberDeck) Group(name string) *Namelist {
	name = strings.ToLower(name)
	for _, g := range d.groups {
		if g.name == name {
			return g
		}
	}
	g := NewNamelist(name)
	d.groups = append(d.groups, g)
	return g
}

// Cntrl returns the &cntrl group.
func (d *AmberDeck) Cntrl() *Namelist { return d.Group("cntrl") }

// Ewald returns the &ewald group.
func (d *AmberDeck) Ewald() *Namelist { return d.Group("ewald") }

// Restrained reports whether cntrl.ntr asks for positional restraints,
// which need reference coordinates.
func (d *AmberDeck) Restrained() bool {
	return d.lookup("cntrl").positive("ntr")
}

// lookup returns an existing group without creating it.
func (d *AmberDeck) lookup(name string) *Namelist {
	for _, g := range d.groups {
		if g.name == name {
			return g
		}
	}
	return nil
}

// Vary appends a &wt group describing a varying condition. The closing
// type='END' group is added automatically and must not be passed in.
func (d *AmberDeck) Vary(wt *Namelist) error {
	if err := checkVarying(wt); err != nil {
		return err
	}
	wt.name = "wt"
	d.varying = append(d.varying, wt)
	return nil
}

func checkVarying(wt *Namelist) error {
	v, ok := wt.Get("type")
	if !ok || v.Kind() != KindString {
		return invalid("wt", "varying condition needs a character 'type'")
	}
	if strings.EqualFold(v.s, "END") {
		return invalid("wt", "type='END' is appended automatically")
	}
	return nil
}

// Restraints returns the NMR restraint set of the deck.
func (d *AmberDeck) Restraints() *Restraints {
	if d.restraints == nil {
		d.restraints = NewRestraints()
	}
	return d.restraints
}

// Pin adds a group selection.
func (d *AmberDeck) Pin(g *GroupSelection) *AmberDeck {
	d.selections = append(d.selections, g)
	return d
}

// Selections returns the group selections in write order.
func (d *AmberDeck) Selections() []*GroupSelection {
	return d.selections
}

// Redirect routes one of sander's auxiliary files. Only the kinds sander
// understands are accepted.
func (d *AmberDeck) Redirect(kind, file string) error {
	kind = strings.ToUpper(kind)
	if !isRedirectionKind(kind) {
		return invalid("redirect", "%q is not one of %s", kind, strings.Join(redirectionKinds, ", "))
	}
	for i := range d.redirects {
		if d.redirects[i].Kind == kind {
			d.redirects[i].File = file
			return nil
		}
	}
	d.redirects = append(d.redirects, redirect{Kind: kind, File: file})
	return nil
}

// Redirection returns the file a kind is routed to.
func (d *AmberDeck) Redirection(kind string) (string, bool) {
	kind = strings.ToUpper(kind)
	for _, r := range d.redirects {
		if r.Kind == kind {
			return r.File, true
		}
	}
	return "", false
}

func isRedirectionKind(kind string) bool {
	for _, k := range redirectionKinds {
		if k == kind {
			return true
		}
	}
	return false
}

// Validate checks the cross-field constraints of the deck.
func (d *AmberDeck) Validate() error {
	cntrl := d.lookup("cntrl")
	if d.restraints.Len() > 0 && !cntrl.positive("nmropt") {
		return invalid("restraints", "%d restraint(s) defined but cntrl nmropt is not set", d.restraints.Len())
	}
	for _, wt := range d.varying {
		if err := checkVarying(wt); err != nil {
			return err
		}
	}
	for _, r := range d.redirects {
		if !isRedirectionKind(r.Kind) {
			return invalid("redirect", "%q is not a known redirection", r.Kind)
		}
	}
	for _, g := range d.selections {
		if err := g.Validate(); err != nil {
			return err
		}
		if g.Weight != nil && *g.Weight != 0 && !cntrl.positive("ntr") {
			return invalid(fmt.Sprintf("group %q", g.Title), "weighted selection needs cntrl ntr > 0")
		}
	}
	return nil
}

// Write validates and renders the deck.
//
// When restraints are defined and w is a named file, they are written to
// the file's name plus RestraintSuffix and a DISANG redirection to that
// same path is rendered, unless DISANG was redirected explicitly.
// Restraints written to an unnamed writer need an explicit DISANG
// redirection.
func (d *AmberDeck) Write(w io.Writer) error {
	if err := d.Validate(); err != nil {
		return err
	}

	redirects := d.redirects
	if d.restraints.Len() > 0 {
		named, ok := w.(interface{ Name() string })
		_, explicit := d.Redirection("DISANG")
		switch {
		case ok:
			path := named.Name() + RestraintSuffix
			if err := d.writeRestraints(path); err != nil {
				return err
			}
			if !explicit {
				redirects = append(append([]redirect(nil), redirects...), redirect{Kind: "DISANG", File: path})
			}
		case !explicit:
			return invalid("restraints", "restraints need a named output file or an explicit DISANG redirection")
		}
	}

	var b strings.Builder
	b.WriteString(d.Title + "\n")
	for _, g := range d.groups {
		if err := g.Write(&b); err != nil {
			return err
		}
	}
	if len(d.varying) > 0 {
		for _, wt := range d.varying {
			if err := wt.Write(&b); err != nil {
				return err
			}
		}
		if err := NewNamelist("wt").Set("type", Str("END")).Write(&b); err != nil {
			return err
		}
	}
	for _, r := range redirects {
		fmt.Fprintf(&b, "%s=%s\n", r.Kind, r.File)
	}
	if len(d.selections) > 0 {
		for _, g := range d.selections {
			if err := g.Write(&b); err != nil {
				return err
			}
		}
		b.WriteString("END\n")
	}
	_, err := io.WriteString(w, b.String())
	return err
}

// WriteRestraints renders only the restraint records.
func (d *AmberDeck) WriteRestraints(w io.Writer) error {
	return d.Restraints().Write(w)
}

func (d *AmberDeck) writeRestraints(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create restraint file: %w", err)
	}
	if err := d.restraints.Write(f); err != nil {
		f.Close()
		return fmt.Errorf("write restraint file: %w", err)
	}
	return f.Close()
}

type amberDeckJSON struct {
	Title      string            `json:"title"`
	Groups     []*Namelist       `json:"groups"`
	Varying    []*Namelist       `json:"varying,omitempty"`
	Restraints *Restraints       `json:"restraints"`
	Selections []*GroupSelection `json:"selections,omitempty"`
	Redirects  []redirect        `json:"redirects,omitempty"`
}

// MarshalJSON encodes the full content of the deck.
func (d *AmberDeck) MarshalJSON() ([]byte, error) {
	groups := d.groups
	if groups == nil {
		groups = []*Namelist{}
	}
	return json.Marshal(amberDeckJSON{
		Title:      d.Title,
		Groups:     groups,
		Varying:    d.varying,
		Restraints: d.Restraints(),
		Selections: d.selections,
		Redirects:  d.redirects,
	})
}

// UnmarshalJSON decodes a deck written by MarshalJSON.
func (d *AmberDeck) UnmarshalJSON(data []byte) error {
	doc := amberDeckJSON{Restraints: NewRestraints()}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&doc); err != nil {
		return err
	}
	if doc.Restraints == nil {
		doc.Restraints = NewRestraints()
	}
	*d = AmberDeck{
		Title:      doc.Title,
		groups:     doc.Groups,
		varying:    doc.Varying,
		restraints: doc.Restraints,
		selections: doc.Selections,
		redirects:  doc.Redirects,
	}
	return nil
}
