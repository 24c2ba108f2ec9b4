package deck

import (
	"fmt"
	"io"
	"strings"
)

// Placeholders expanded by TleapDeck at write time.
const (
	OutDirPlaceholder = "{{outdir}}"
	FramePlaceholder  = "{{frame}}"
)

// TleapDeck is a tleap script. Commands may reference the output
// directory and the unit name through OutDirPlaceholder and
// FramePlaceholder, which are resolved when the script is written, so a
// deck can be filled in before its step directory is known.
type TleapDeck struct {
	Frame     string   `json:"frame"`
	OutputDir string   `json:"output_dir"`
	Commands  []string `json:"commands"`
}

// NewTleapDeck returns an empty script building a unit called "frame".
func NewTleapDeck() *TleapDeck {
	return &TleapDeck{Frame: "frame"}
}

// Add appends a raw command.
func (t *TleapDeck) Add(command string) *TleapDeck {
	t.Commands = append(t.Commands, command)
	return t
}

// Source loads a leaprc file.
func (t *TleapDeck) Source(file string) *TleapDeck {
	return t.Add("source " + file)
}

// LoadPDB loads a structure into the unit.
func (t *TleapDeck) LoadPDB(file string) *TleapDeck {
	return t.Add(FramePlaceholder + " = loadpdb " + file)
}

// Sequence builds the unit from a residue sequence.
func (t *TleapDeck) Sequence(residues ...string) *TleapDeck {
	return t.Add(FramePlaceholder + " = sequence { " + strings.Join(residues, " ") + " }")
}

// Bond links two atoms given as residue number and atom name.
func (t *TleapDeck) Bond(res1 int, atom1 string, res2 int, atom2 string) *TleapDeck {
	return t.Add(fmt.Sprintf("bond %s.%d.%s %s.%d.%s", FramePlaceholder, res1, atom1, FramePlaceholder, res2, atom2))
}

// SolvateOct surrounds the unit with a truncated octahedron of solvent.
func (t *TleapDeck) SolvateOct(box string, buffer float64) *TleapDeck {
	return t.Add(fmt.Sprintf("solvateoct %s %s %s", FramePlaceholder, box, formatReal(buffer)))
}

// AddIons neutralizes the unit (or brings it to target charge) with ion.
func (t *TleapDeck) AddIons(ion string, target int) *TleapDeck {
	return t.Add(fmt.Sprintf("addions %s %s %d", FramePlaceholder, ion, target))
}

// SaveAmberParm writes the topology and coordinates into the output
// directory as <frame>.prmtop and <frame>.rst7.
func (t *TleapDeck) SaveAmberParm() *TleapDeck {
	base := OutDirPlaceholder + "/" + FramePlaceholder
	return t.Add(fmt.Sprintf("saveamberparm %s %s.prmtop %s.rst7", FramePlaceholder, base, base))
}

// SavePDB writes the unit as <frame>.pdb into the output directory.
func (t *TleapDeck) SavePDB() *TleapDeck {
	return t.Add(fmt.Sprintf("savepdb %s %s/%s.pdb", FramePlaceholder, OutDirPlaceholder, FramePlaceholder))
}

// Quit ends the script.
func (t *TleapDeck) Quit() *TleapDeck {
	return t.Add("quit")
}

// Write renders the script, appending "quit" when it is missing.
func (t *TleapDeck) Write(w io.Writer) error {
	outdir := t.OutputDir
	if outdir == "" {
		outdir = "."
	}
	frame := t.Frame
	if frame == "" {
		frame = "frame"
	}
	r := strings.NewReplacer(OutDirPlaceholder, outdir, FramePlaceholder, frame)

	var b strings.Builder
	for _, c := range t.Commands {
		b.WriteString(r.Replace(c) + "\n")
	}
	if n := len(t.Commands); n == 0 || strings.TrimSpace(t.Commands[n-1]) != "quit" {
		b.WriteString("quit\n")
	}
	_, err := io.WriteString(w, b.String())
	return err
}

// ParmedDeck is a parmed script.
type ParmedDeck struct {
	Commands []string `json:"commands"`
	// Output is the prefix of the last topology saved by the script.
	Output string `json:"output,omitempty"`
}

// NewParmedDeck returns an empty script.
func NewParmedDeck() *ParmedDeck {
	return &ParmedDeck{}
}

// Add appends a raw command.
func (p *ParmedDeck) Add(command string) *ParmedDeck {
	p.Commands = append(p.Commands, command)
	return p
}

// SetAngle changes an angle parameter.
func (p *ParmedDeck) SetAngle(mask1, mask2, mask3 string, k, theta float64) *ParmedDeck {
	return p.Add(fmt.Sprintf("setAngle %s %s %s %f %f", mask1, mask2, mask3, k, theta))
}

// SetBond changes a bond parameter.
func (p *ParmedDeck) SetBond(mask1, mask2 string, k, req float64) *ParmedDeck {
	return p.Add(fmt.Sprintf("setBond %s %s %f %f", mask1, mask2, k, req))
}

// ChangeLJPair overrides the Lennard-Jones pair between two masks.
func (p *ParmedDeck) ChangeLJPair(mask1, mask2 string, radius, depth float64) *ParmedDeck {
	return p.Add(fmt.Sprintf("changeLJpair %s %s %f %f", mask1, mask2, radius, depth))
}

// DeleteDihedral removes a torsion term.
func (p *ParmedDeck) DeleteDihedral(mask1, mask2, mask3, mask4 string) *ParmedDeck {
	return p.Add(fmt.Sprintf("deleteDihedral %s %s %s %s", mask1, mask2, mask3, mask4))
}

// Save writes the modified topology as <prefix>.prmtop.
func (p *ParmedDeck) Save(prefix string) *ParmedDeck {
	p.Output = prefix
	return p.Add(fmt.Sprintf("outparm %s.prmtop", prefix))
}

// Write renders the script.
func (p *ParmedDeck) Write(w io.Writer) error {
	if len(p.Commands) == 0 {
		return invalid("parmed", "script has no commands")
	}
	_, err := io.WriteString(w, strings.Join(p.Commands, "\n")+"\n")
	return err
}
