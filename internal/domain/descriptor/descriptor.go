// Package descriptor turns submissions into per-candidate predictor jobs and their input documents.
package descriptor

import (
	"encoding/json"

	"github.com/okian/foldboard/internal/domain/model"
)

// Predictor dialect written into every descriptor.
const (
	Dialect = "alphafold3"
	Version = 1
)

// Chain ids of the design and target chains.
const (
	DesignChain = "A"
	TargetChain = "B"
)

// Descriptor is the predictor input document.
type Descriptor struct {
	Name       string  `json:"name"`
	ModelSeeds []int   `json:"modelSeeds"`
	Sequences  []Entry `json:"sequences"`
	Dialect    string  `json:"dialect"`
	Version    int     `json:"version"`
}

// Entry wraps one molecular chain.
type Entry struct {
	Protein Protein `json:"protein"`
}

// Protein is one protein chain. A nil UnpairedMSAPath lets the predictor search for an MSA;
// an empty string disables the MSA.
type Protein struct {
	ID              string  `json:"id"`
	Sequence        string  `json:"sequence"`
	UnpairedMSAPath *string `json:"unpairedMsaPath,omitempty"`
}

// Marshal renders the descriptor as indented JSON.
func (d Descriptor) Marshal() ([]byte, error) {
	return json.MarshalIndent(d, "", "  ")
}

// Parse reads a descriptor document.
func Parse(b []byte) (Descriptor, error) {
	var d Descriptor
	err := json.Unmarshal(b, &d)
	return d, err
}

// msaPath maps a problem MSA mode to the chain field.
func msaPath(mode model.MSAMode, file string) *string {
	switch mode {
	case model.MSASearch:
		return nil
	case model.MSAPrecomputed:
		if file != "" {
			return &file
		}
	}
	empty := ""
	return &empty
}

// New builds the descriptor for one candidate of a problem.
func New(name string, p model.Problem, sequence string, seeds []int) (Descriptor, error) {
	d := Descriptor{
		Name:       name,
		ModelSeeds: append([]int(nil), seeds...),
		Dialect:    Dialect,
		Version:    Version,
	}
	if !p.IsBinder() {
		d.Sequences = []Entry{{Protein: Protein{
			ID:              DesignChain,
			Sequence:        sequence,
			UnpairedMSAPath: msaPath(p.MSAMode, p.TargetMSAFile),
		}}}
		return d, nil
	}

	if p.TargetSequence == "" {
		return Descriptor{}, ErrMissingTarget
	}
	d.Sequences = []Entry{
		{Protein: Protein{ID: DesignChain, Sequence: sequence, UnpairedMSAPath: msaPath(model.MSANone, "")}},
		{Protein: Protein{ID: TargetChain, Sequence: p.TargetSequence, UnpairedMSAPath: msaPath(p.MSAMode, p.TargetMSAFile)}},
	}
	return d, nil
}
