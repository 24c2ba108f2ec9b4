package deck

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTleapDeck_Write(t *testing.T) {
	d := NewTleapDeck()
	d.Source("leaprc.protein.ff14SB").
		Source("leaprc.water.tip3p").
		Sequence("ACE", "ALA", "NME").
		Bond(1, "SG", 5, "SG").
		SolvateOct("TIP3PBOX", 10).
		AddIons("Na+", 0).
		SaveAmberParm()
	d.OutputDir = "1_build"

	assert.Equal(t, `source leaprc.protein.ff14SB
source leaprc.water.tip3p
frame = sequence { ACE ALA NME }
bond frame.1.SG frame.5.SG
solvateoct frame TIP3PBOX 10.0
addions frame Na+ 0
saveamberparm frame 1_build/frame.prmtop 1_build/frame.rst7
quit
`, render(t, d))

	d.Quit()
	var buf bytes.Buffer
	require.NoError(t, d.Write(&buf))
	assert.Equal(t, 1, bytes.Count(buf.Bytes(), []byte("quit")), "an explicit quit is not doubled")
}

func TestTleapDeck_PlaceholdersResolveLate(t *testing.T) {
	d := NewTleapDeck()
	d.LoadPDB("input.pdb").SavePDB()

	assert.Contains(t, render(t, d), "savepdb frame ./frame.pdb")

	d.OutputDir = "7_rebuild"
	d.Frame = "mol"
	out := render(t, d)
	assert.Contains(t, out, "mol = loadpdb input.pdb")
	assert.Contains(t, out, "savepdb mol 7_rebuild/mol.pdb")
}

func TestTleapDeck_EmptyStillQuits(t *testing.T) {
	assert.Equal(t, "quit\n", render(t, NewTleapDeck()))
}

func TestParmedDeck(t *testing.T) {
	p := NewParmedDeck()
	require.Error(t, p.Write(&bytes.Buffer{}))

	p.SetAngle(":1@C", ":1@N", ":2@CA", 50, 120).
		SetBond(":1@C", ":2@N", 300, 1.33).
		ChangeLJPair("@%Na+", "@%O", 1.5, 0.1).
		DeleteDihedral(":1@C", ":2@N", ":2@CA", ":2@C").
		Save("hmr")

	assert.Equal(t, `setAngle :1@C :1@N :2@CA 50.000000 120.000000
setBond :1@C :2@N 300.000000 1.330000
changeLJpair @%Na+ @%O 1.500000 0.100000
deleteDihedral :1@C :2@N :2@CA :2@C
outparm hmr.prmtop
`, render(t, p))
	assert.Equal(t, "hmr", p.Output)

	data, err := json.Marshal(p)
	require.NoError(t, err)
	var back ParmedDeck
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, *p, back)
}
