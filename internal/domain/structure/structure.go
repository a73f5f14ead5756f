// Package structure reads backbone coordinates from PDB and mmCIF files and
// sanitizes reference structures.
package structure

import (
	"errors"
	"math"
)

var (
	// ErrMalformed is returned when a coordinate record cannot be parsed.
	ErrMalformed = errors.New("malformed structure")
	// ErrNoAtoms is returned when a structure has no CA atoms.
	ErrNoAtoms = errors.New("structure has no CA atoms")
)

// Vec3 is a point in Cartesian space, in Ångström.
type Vec3 [3]float64

// Sub returns a-b.
func (a Vec3) Sub(b Vec3) Vec3 { return Vec3{a[0] - b[0], a[1] - b[1], a[2] - b[2]} }

// Add returns a+b.
func (a Vec3) Add(b Vec3) Vec3 { return Vec3{a[0] + b[0], a[1] + b[1], a[2] + b[2]} }

// Scale returns a*f.
func (a Vec3) Scale(f float64) Vec3 { return Vec3{a[0] * f, a[1] * f, a[2] * f} }

// Dist returns the Euclidean distance between a and b.
func (a Vec3) Dist(b Vec3) float64 { return math.Sqrt(a.Dist2(b)) }

// Dist2 returns the squared distance between a and b.
func (a Vec3) Dist2(b Vec3) float64 {
	d := a.Sub(b)
	return d[0]*d[0] + d[1]*d[1] + d[2]*d[2]
}

// Residue is one CA atom with its residue identity.
type Residue struct {
	Chain  string
	Number string
	Name   string
	Pos    Vec3
}

// Structure is an ordered CA trace.
type Structure struct {
	Residues []Residue
}

// Len returns the number of residues.
func (s Structure) Len() int { return len(s.Residues) }

// Coords returns the CA positions in order.
func (s Structure) Coords() []Vec3 {
	out := make([]Vec3, len(s.Residues))
	for i, r := range s.Residues {
		out[i] = r.Pos
	}
	return out
}

// Chain returns the residues of one chain.
func (s Structure) Chain(id string) Structure {
	var out Structure
	for _, r := range s.Residues {
		if r.Chain == id {
			out.Residues = append(out.Residues, r)
		}
	}
	return out
}

// Chains lists chain ids in order of first appearance.
func (s Structure) Chains() []string {
	var ids []string
	seen := map[string]bool{}
	for _, r := range s.Residues {
		if !seen[r.Chain] {
			seen[r.Chain] = true
			ids = append(ids, r.Chain)
		}
	}
	return ids
}

// Sequence returns one-letter codes, X for unknown residue names.
func (s Structure) Sequence() string {
	b := make([]byte, len(s.Residues))
	for i, r := range s.Residues {
		b[i] = oneLetter(r.Name)
	}
	return string(b)
}

var threeToOne = map[string]byte{
	"ALA": 'A', "CYS": 'C', "ASP": 'D', "GLU": 'E', "PHE": 'F', "GLY": 'G', "HIS": 'H',
	"ILE": 'I', "LYS": 'K', "LEU": 'L', "MET": 'M', "ASN": 'N', "PRO": 'P', "GLN": 'Q',
	"ARG": 'R', "SER": 'S', "THR": 'T', "VAL": 'V', "TRP": 'W', "TYR": 'Y',
}

func oneLetter(name string) byte {
	if c, ok := threeToOne[name]; ok {
		return c
	}
	return 'X'
}
