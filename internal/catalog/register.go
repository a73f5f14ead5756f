package catalog

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/okian/foldboard/internal/domain/leaderboard"
	"github.com/okian/foldboard/internal/domain/model"
	"github.com/okian/foldboard/internal/domain/structure"
	"github.com/okian/foldboard/internal/domain/validate"
)

// Registration describes a new problem; the reference PDB is passed separately.
type Registration struct {
	Name                 string
	Description          string
	Type                 model.ProblemType
	Session              string
	PrimaryMetric        string
	MSAMode              model.MSAMode
	TargetSequence       string
	TargetMSAFile        string
	ExpectedBinderLength []int
}

// Register sanitizes the reference structure, stores it as {id}.pdb and appends
// the problem to its session under the next problem_N id.
func (c *Catalog) Register(reg Registration, pdb io.Reader) (model.Problem, error) {
	p := model.Problem{
		Name:                 strings.TrimSpace(reg.Name),
		Description:          strings.TrimSpace(reg.Description),
		Type:                 reg.Type,
		Session:              strings.TrimSpace(reg.Session),
		PrimaryMetric:        strings.TrimSpace(reg.PrimaryMetric),
		MSAMode:              reg.MSAMode,
		TargetSequence:       reg.TargetSequence,
		TargetMSAFile:        strings.TrimSpace(reg.TargetMSAFile),
		ExpectedBinderLength: reg.ExpectedBinderLength,
	}
	if p.Name == "" {
		return model.Problem{}, fmt.Errorf("%w: name is required", ErrInvalidProblem)
	}
	if err := checkProblem(&p); err != nil {
		return model.Problem{}, err
	}

	var clean bytes.Buffer
	residues, err := structure.Sanitize(pdb, &clean)
	if err != nil {
		return model.Problem{}, fmt.Errorf("%w: reference structure: %w", ErrInvalidProblem, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.session(p.Session); !ok {
		return model.Problem{}, fmt.Errorf("%w: %s", ErrUnknownSession, p.Session)
	}

	next := 0
	for _, existing := range c.doc.Problems {
		if n := problemNumber(existing.ID); n > next {
			next = n
		}
	}
	next++
	p.ID = fmt.Sprintf("problem_%d", next)
	p.Name = fmt.Sprintf("Problem %d - %s", next, p.Name)
	p.TargetFile = p.ID + ".pdb"
	p.ResidueCount = residues

	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return model.Problem{}, err
	}
	if err := writeAtomic(c.TargetPath(p), clean.Bytes()); err != nil {
		return model.Problem{}, fmt.Errorf("write reference: %w", err)
	}

	c.doc.Problems = append(c.doc.Problems, p)
	for i := range c.doc.Sessions {
		if c.doc.Sessions[i].Key == p.Session {
			c.doc.Sessions[i].Problems = append(c.doc.Sessions[i].Problems, p.ID)
		}
	}
	if err := c.save(); err != nil {
		return model.Problem{}, err
	}
	return p, nil
}

// checkProblem validates p and normalizes defaults in place.
func checkProblem(p *model.Problem) error {
	switch p.Type {
	case model.ProblemMonomer, model.ProblemBinder:
	default:
		return fmt.Errorf("%w: type %q must be monomer or binder", ErrInvalidProblem, p.Type)
	}
	if p.MSAMode == "" {
		p.MSAMode = model.MSANone
	}
	if !p.MSAMode.Valid() {
		return fmt.Errorf("%w: msa mode %q", ErrInvalidProblem, p.MSAMode)
	}
	if p.PrimaryMetric != "" && !leaderboard.IsRankable(p.PrimaryMetric) {
		return fmt.Errorf("%w: metric %q cannot rank a leaderboard", ErrInvalidProblem, p.PrimaryMetric)
	}

	if !p.IsBinder() {
		// a monomer has no precomputed alignment to point at
		if p.MSAMode == model.MSAPrecomputed {
			p.MSAMode = model.MSANone
		}
		p.TargetSequence, p.TargetMSAFile, p.ExpectedBinderLength = "", "", nil
		return nil
	}

	seq := validate.Sequence(p.TargetSequence)
	if !seq.Valid {
		return fmt.Errorf("%w: target sequence: %s", ErrInvalidProblem, seq.Message())
	}
	p.TargetSequence = seq.Cleaned
	if l := p.ExpectedBinderLength; len(l) != 2 || l[0] <= 0 || l[0] >= l[1] {
		return fmt.Errorf("%w: expected binder length must be [min, max] with min < max", ErrInvalidProblem)
	}
	if p.MSAMode == model.MSAPrecomputed && p.TargetMSAFile == "" {
		return fmt.Errorf("%w: precomputed msa needs a target msa file", ErrInvalidProblem)
	}
	return nil
}
