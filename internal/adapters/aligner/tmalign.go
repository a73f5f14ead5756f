// Package aligner runs external structural aligners (TMalign, USalign) behind
// the evaluate.Aligner interface.
package aligner

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/okian/foldboard/internal/adapters/command"
	"github.com/okian/foldboard/internal/domain/evaluate"
	"github.com/okian/foldboard/internal/domain/structure"
)

// ErrOutput is returned when the aligner output cannot be parsed.
var ErrOutput = errors.New("unexpected aligner output")

// TMalign shells out to a TMalign compatible binary. Structures are written as
// CA-only PDB files; chain 1 is the model and chain 2 the reference, so the
// second TM-score line is normalized by the reference length.
type TMalign struct {
	binary string
	exec   command.Executor
}

var _ evaluate.Aligner = (*TMalign)(nil)

// NewTMalign creates the adapter. binary defaults to "TMalign".
func NewTMalign(binary string, exec command.Executor) *TMalign {
	if binary == "" {
		binary = "TMalign"
	}
	return &TMalign{binary: binary, exec: exec}
}

// Name implements evaluate.Aligner.
func (t *TMalign) Name() string { return "tmalign" }

// Align implements evaluate.Aligner.
func (t *TMalign) Align(ctx context.Context, model, ref structure.Structure) (evaluate.Alignment, error) {
	if model.Len() == 0 || ref.Len() == 0 {
		return evaluate.Alignment{}, structure.ErrNoAtoms
	}
	dir, err := os.MkdirTemp("", "foldboard-align-*")
	if err != nil {
		return evaluate.Alignment{}, err
	}
	defer os.RemoveAll(dir)

	modelPath := filepath.Join(dir, "model.pdb")
	refPath := filepath.Join(dir, "ref.pdb")
	if err := writePDB(modelPath, model); err != nil {
		return evaluate.Alignment{}, err
	}
	if err := writePDB(refPath, ref); err != nil {
		return evaluate.Alignment{}, err
	}

	args := []string{modelPath, refPath}
	if len(model.Chains()) > 1 || len(ref.Chains()) > 1 {
		args = append(args, "-ter", "0")
	}
	res, err := t.exec.Execute(ctx, command.New(t.binary, args...))
	if err != nil {
		return evaluate.Alignment{}, fmt.Errorf("%s: %w", t.binary, err)
	}
	if err := ctx.Err(); err != nil {
		return evaluate.Alignment{}, err
	}
	if !res.Success() {
		return evaluate.Alignment{}, fmt.Errorf("%s: exit %d: %s", t.binary, res.ExitCode, res.Output())
	}
	return ParseOutput(string(res.Stdout))
}

func writePDB(path string, s structure.Structure) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := structure.WritePDB(f, s); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// ParseOutput reads the RMSD, the reference-normalized TM-score and the
// residue correspondence from TMalign's text report.
func ParseOutput(out string) (evaluate.Alignment, error) {
	var (
		a       evaluate.Alignment
		tmLines []float64
		block   []string
		inBlock bool
		gotRMSD bool
	)
	sc := bufio.NewScanner(strings.NewReader(out))
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for sc.Scan() {
		line := sc.Text()
		switch {
		case inBlock:
			if len(block) < 3 {
				block = append(block, line)
			}
		case strings.HasPrefix(line, "Aligned length="):
			v, err := fieldAfter(line, "RMSD=")
			if err != nil {
				return a, err
			}
			a.RMSD, gotRMSD = v, true
		case strings.HasPrefix(line, "TM-score="):
			v, err := fieldAfter(line, "TM-score=")
			if err != nil {
				return a, err
			}
			tmLines = append(tmLines, v)
		case strings.HasPrefix(line, `(":" denotes`):
			inBlock = true
		}
	}
	if err := sc.Err(); err != nil {
		return a, err
	}
	if !gotRMSD || len(tmLines) < 2 || len(block) < 3 {
		return a, ErrOutput
	}
	a.TMScore = tmLines[1]

	seqModel, seqRef := block[0], block[2]
	n := len(seqModel)
	if len(seqRef) < n {
		n = len(seqRef)
	}
	i, j := 0, 0
	for k := 0; k < n; k++ {
		mGap, rGap := seqModel[k] == '-', seqRef[k] == '-'
		if !mGap && !rGap {
			a.Pairs = append(a.Pairs, evaluate.Pair{Model: i, Ref: j})
		}
		if !mGap {
			i++
		}
		if !rGap {
			j++
		}
	}
	return a, nil
}

// fieldAfter parses the number following key, up to a comma or space.
func fieldAfter(line, key string) (float64, error) {
	idx := strings.Index(line, key)
	if idx < 0 {
		return 0, ErrOutput
	}
	rest := strings.TrimSpace(line[idx+len(key):])
	end := strings.IndexAny(rest, ", ")
	if end >= 0 {
		rest = rest[:end]
	}
	v, err := strconv.ParseFloat(rest, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrOutput, line)
	}
	return v, nil
}
