package evaluate

import (
	"context"

	"github.com/okian/foldboard/internal/domain/structure"
)

// Alignment is a residue correspondence between a model and a reference.
type Alignment struct {
	Pairs   []Pair
	TMScore float64 // normalized by reference length
	RMSD    float64 // over aligned pairs after superposition
}

// Aligner produces a structural alignment of model onto reference.
type Aligner interface {
	Name() string
	Align(ctx context.Context, model, ref structure.Structure) (Alignment, error)
}

// BuiltinAligner is a deterministic sequence-independent aligner: the best gapless
// threading seeds a superposition, which is refined by dynamic programming on
// TM-score similarities until the alignment stops changing.
type BuiltinAligner struct {
	// GapPenalty is charged per gap position in the dynamic programming step.
	GapPenalty float64
	// MaxIterations bounds the refinement loop.
	MaxIterations int
}

// NewBuiltinAligner returns an aligner with default parameters.
func NewBuiltinAligner() *BuiltinAligner {
	return &BuiltinAligner{GapPenalty: 0.6, MaxIterations: 20}
}

// Name implements Aligner.
func (a *BuiltinAligner) Name() string { return "builtin" }

// Align implements Aligner.
func (a *BuiltinAligner) Align(ctx context.Context, model, ref structure.Structure) (Alignment, error) {
	m, r := model.Coords(), ref.Coords()
	if len(m) == 0 || len(r) == 0 {
		return Alignment{}, structure.ErrNoAtoms
	}

	pairs := a.thread(m, r)
	tm, t := TMScore(m, r, pairs, len(r))
	for iter := 0; iter < a.MaxIterations; iter++ {
		if err := ctx.Err(); err != nil {
			return Alignment{}, err
		}
		next := a.dp(t.ApplyAll(m), r)
		if len(next) < 3 {
			break
		}
		nextTM, nextT := TMScore(m, r, next, len(r))
		if nextTM <= tm+1e-9 {
			break
		}
		pairs, tm, t = next, nextTM, nextT
	}

	aligned, _ := RMSDs(m, r, pairs)
	return Alignment{Pairs: pairs, TMScore: tm, RMSD: aligned}, nil
}

// thread scores every gapless offset and keeps the best; the lowest offset wins ties.
func (a *BuiltinAligner) thread(m, r []vec) []Pair {
	minOverlap := 3
	if n := min(len(m), len(r)); n < minOverlap {
		minOverlap = n
	}
	var best []Pair
	bestTM := -1.0
	for off := -(len(m) - minOverlap); off <= len(r)-minOverlap; off++ {
		var pairs []Pair
		for i := range m {
			j := i + off
			if j >= 0 && j < len(r) {
				pairs = append(pairs, Pair{Model: i, Ref: j})
			}
		}
		if len(pairs) < minOverlap {
			continue
		}
		mm, rr := gather(m, r, pairs)
		t := Superpose(mm, rr)
		tm := tmSum(t.ApplyAll(mm), rr, D0(len(r)))
		if tm > bestTM+1e-12 {
			best, bestTM = pairs, tm
		}
	}
	return best
}

const (
	moveDiag uint8 = iota
	moveUp         // gap in reference: skip a model residue
	moveLeft       // gap in model: skip a reference residue
)

// dp aligns superposed model coordinates to the reference by Needleman-Wunsch with
// TM-score similarities. Ties prefer a match, then skipping the model residue, which
// keeps the lowest reference index paired.
func (a *BuiltinAligner) dp(m, r []vec) []Pair {
	n, k := len(m), len(r)
	d0 := D0(k)
	trace := make([]uint8, (n+1)*(k+1))
	prev := make([]float64, k+1)
	cur := make([]float64, k+1)
	for j := 1; j <= k; j++ {
		trace[j] = moveLeft
	}
	for i := 1; i <= n; i++ {
		cur[0] = 0
		trace[i*(k+1)] = moveUp
		for j := 1; j <= k; j++ {
			d := m[i-1].Dist(r[j-1]) / d0
			diag := prev[j-1] + 1/(1+d*d)
			up := prev[j] - a.gap(i, j, n, k, moveUp)
			left := cur[j-1] - a.gap(i, j, n, k, moveLeft)
			best, move := diag, moveDiag
			if up > best+1e-12 {
				best, move = up, moveUp
			}
			if left > best+1e-12 {
				best, move = left, moveLeft
			}
			cur[j] = best
			trace[i*(k+1)+j] = move
		}
		prev, cur = cur, prev
	}

	var rev []Pair
	i, j := n, k
	for i > 0 || j > 0 {
		switch trace[i*(k+1)+j] {
		case moveDiag:
			rev = append(rev, Pair{Model: i - 1, Ref: j - 1})
			i--
			j--
		case moveUp:
			i--
		default:
			j--
		}
	}
	pairs := make([]Pair, len(rev))
	for x := range rev {
		pairs[x] = rev[len(rev)-1-x]
	}
	return pairs
}

// gap charges end gaps nothing so terminal overhangs are free.
func (a *BuiltinAligner) gap(i, j, n, k int, move uint8) float64 {
	if move == moveUp && (j == 0 || j == k) {
		return 0
	}
	if move == moveLeft && (i == 0 || i == n) {
		return 0
	}
	return a.GapPenalty
}
