package deck

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Penalty is a flat-welled parabola: zero between R2 and R3, harmonic with
// force constants K2 and K3 out to R1 and R4, linear beyond.
type Penalty struct {
	R1 float64 `json:"r1"`
	R2 float64 `json:"r2"`
	R3 float64 `json:"r3"`
	R4 float64 `json:"r4"`
	K2 float64 `json:"rk2"`
	K3 float64 `json:"rk3"`
}

// Restraints is a set of NMR-style restraints keyed by atom tuples.
//
// Tuples are canonicalized on insertion and deletion so that the same
// logical restraint cannot be stored twice under mirrored atom orders:
//
//   - distance (a, b):       ascending
//   - angle (a, b, c):       endpoints ascending, vertex fixed
//   - dihedral (a, b, c, d): reversed as a whole when b > c
type Restraints struct {
	order   []string
	records map[string]*restraint
}

type restraint struct {
	Atoms     []int     `json:"atoms"`
	Penalties []Penalty `json:"penalties"`
}

// NewRestraints returns an empty set.
func NewRestraints() *Restraints {
	return &Restraints{records: make(map[string]*restraint)}
}

// Distance adds a penalty on the distance between two atoms.
func (r *Restraints) Distance(a, b int, p Penalty) {
	r.add(distanceKey(a, b), p)
}

// Angle adds a penalty on the a-b-c angle.
func (r *Restraints) Angle(a, b, c int, p Penalty) {
	r.add(angleKey(a, b, c), p)
}

// Dihedral adds a penalty on the a-b-c-d torsion.
func (r *Restraints) Dihedral(a, b, c, d int, p Penalty) {
	r.add(dihedralKey(a, b, c, d), p)
}

// DelDistance removes every penalty on the a-b distance and returns how
// many were removed.
func (r *Restraints) DelDistance(a, b int) int {
	return r.del(distanceKey(a, b))
}

// DelAngle removes every penalty on the a-b-c angle.
func (r *Restraints) DelAngle(a, b, c int) int {
	return r.del(angleKey(a, b, c))
}

// DelDihedral removes every penalty on the a-b-c-d torsion.
func (r *Restraints) DelDihedral(a, b, c, d int) int {
	return r.del(dihedralKey(a, b, c, d))
}

// Penalties returns the penalties stored for an atom tuple, after
// canonicalizing it.
func (r *Restraints) Penalties(atoms ...int) []Penalty {
	var key []int
	switch len(atoms) {
	case 2:
		key = distanceKey(atoms[0], atoms[1])
	case 3:
		key = angleKey(atoms[0], atoms[1], atoms[2])
	case 4:
		key = dihedralKey(atoms[0], atoms[1], atoms[2], atoms[3])
	default:
		return nil
	}
	if rec, ok := r.records[joinAtoms(key)]; ok {
		return append([]Penalty(nil), rec.Penalties...)
	}
	return nil
}

// Len returns the number of distinct atom tuples.
func (r *Restraints) Len() int {
	if r == nil {
		return 0
	}
	return len(r.order)
}

func (r *Restraints) add(atoms []int, p Penalty) {
	if r.records == nil {
		r.records = make(map[string]*restraint)
	}
	key := joinAtoms(atoms)
	rec, ok := r.records[key]
	if !ok {
		rec = &restraint{Atoms: atoms}
		r.records[key] = rec
		r.order = append(r.order, key)
	}
	rec.Penalties = append(rec.Penalties, p)
}

func (r *Restraints) del(atoms []int) int {
	key := joinAtoms(atoms)
	rec, ok := r.records[key]
	if !ok {
		return 0
	}
	delete(r.records, key)
	for i, k := range r.order {
		if k == key {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return len(rec.Penalties)
}

// Write renders one &rst record per penalty.
func (r *Restraints) Write(w io.Writer) error {
	var b strings.Builder
	for _, key := range r.order {
		rec := r.records[key]
		for _, p := range rec.Penalties {
			fmt.Fprintf(&b, "\n&rst  !\n     iat=%s, r1=%s, r2=%s, r3=%s, r4=%s,\n     rk2=%s, rk3=%s\n&end\n",
				key,
				formatNumber(p.R1), formatNumber(p.R2), formatNumber(p.R3), formatNumber(p.R4),
				formatNumber(p.K2), formatNumber(p.K3))
		}
	}
	_, err := io.WriteString(w, b.String())
	return err
}

// MarshalJSON encodes the records in insertion order.
func (r *Restraints) MarshalJSON() ([]byte, error) {
	out := make([]*restraint, 0, len(r.order))
	for _, key := range r.order {
		out = append(out, r.records[key])
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes records written by MarshalJSON, canonicalizing them
// again in case the file was edited by hand.
func (r *Restraints) UnmarshalJSON(data []byte) error {
	var in []restraint
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	*r = Restraints{records: make(map[string]*restraint)}
	for _, rec := range in {
		var key []int
		switch len(rec.Atoms) {
		case 2:
			key = distanceKey(rec.Atoms[0], rec.Atoms[1])
		case 3:
			key = angleKey(rec.Atoms[0], rec.Atoms[1], rec.Atoms[2])
		case 4:
			key = dihedralKey(rec.Atoms[0], rec.Atoms[1], rec.Atoms[2], rec.Atoms[3])
		default:
			return fmt.Errorf("restraint must reference 2, 3 or 4 atoms, got %d", len(rec.Atoms))
		}
		for _, p := range rec.Penalties {
			r.add(key, p)
		}
	}
	return nil
}

func distanceKey(a, b int) []int {
	if a > b {
		a, b = b, a
	}
	return []int{a, b}
}

func angleKey(a, b, c int) []int {
	if a > c {
		a, c = c, a
	}
	return []int{a, b, c}
}

func dihedralKey(a, b, c, d int) []int {
	if b < c {
		return []int{a, b, c, d}
	}
	return []int{d, c, b, a}
}

func joinAtoms(atoms []int) string {
	parts := make([]string, len(atoms))
	for i, a := range atoms {
		parts[i] = strconv.Itoa(a)
	}
	return strings.Join(parts, ",")
}
