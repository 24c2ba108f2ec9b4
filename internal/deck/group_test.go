package deck

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGroupSelection_Validate(t *testing.T) {
	w := 1.0
	tests := []struct {
		name    string
		g       GroupSelection
		wantErr bool
	}{
		{"overlap nested", GroupSelection{Title: "a", Atoms: []Range{{1, 100}, {50, 60}}}, true},
		{"overlap reversed order", GroupSelection{Title: "a", Atoms: []Range{{50, 60}, {1, 100}}}, true},
		{"overlap shared endpoint", GroupSelection{Title: "a", Atoms: []Range{{1, 100}, {100, 200}}}, true},
		{"overlap non adjacent pair", GroupSelection{Title: "a", Residues: []Range{{1, 5}, {10, 20}, {4, 4}}}, true},
		{"adjacent", GroupSelection{Title: "a", Atoms: []Range{{1, 100}, {101, 200}}}, false},
		{"atoms and residues are separate", GroupSelection{Title: "a", Atoms: []Range{{1, 10}}, Residues: []Range{{1, 10}}}, false},
		{"inverted", GroupSelection{Title: "a", Atoms: []Range{{10, 1}}}, true},
		{"empty", GroupSelection{Title: "a"}, true},
		{"weight only", GroupSelection{Title: "a", Weight: &w}, false},
		{"duplicate find", GroupSelection{Title: "a", Find: []Find{{AtomName: "CA"}, {AtomName: "CA", Tree: "*"}}}, true},
		{"bad tree", GroupSelection{Title: "a", Find: []Find{{Tree: "Q"}}}, true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.g.Validate()
			if !tc.wantErr {
				require.NoError(t, err)
				return
			}
			var verr *ValidationError
			require.True(t, errors.As(err, &verr), "expected a ValidationError, got %v", err)
		})
	}
}

func TestAmberDeck_OverlapFailsWrite(t *testing.T) {
	d := NewAmberDeck()
	d.Cntrl().Set("ntr", Int(1))
	d.Pin(Weighted("bad", 1, Range{1, 100}, Range{50, 60}))

	var sink []byte
	err := d.Write(writerFunc(func(p []byte) (int, error) { sink = append(sink, p...); return len(p), nil }))
	require.Error(t, err)
	assert.Empty(t, sink, "nothing is written for an invalid deck")
}

type writerFunc func(p []byte) (int, error)

func (f writerFunc) Write(p []byte) (int, error) { return f(p) }
