// Package evaluate scores predicted structures against reference structures.
package evaluate

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/okian/foldboard/internal/domain/model"
	"github.com/okian/foldboard/internal/domain/structure"
)

// ErrBadOutput marks a predicted structure that cannot be scored. Retrying does not help.
var ErrBadOutput = errors.New("unusable output structure")

// Chain ids used by binder problems.
const (
	BinderChain = "A"
	TargetChain = "B"
)

// Evaluator computes EvaluationResults. It holds no per-job state and is safe for
// concurrent use when its Aligner is.
type Evaluator struct {
	aligner Aligner
	now     func() time.Time
}

// Option configures an Evaluator.
type Option func(*Evaluator)

// WithClock overrides time.Now for result timestamps.
func WithClock(now func() time.Time) Option {
	return func(e *Evaluator) {
		if now != nil {
			e.now = now
		}
	}
}

// New creates an Evaluator using aligner for residue correspondence.
func New(aligner Aligner, opts ...Option) *Evaluator {
	e := &Evaluator{aligner: aligner, now: time.Now}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// AlignerName reports which aligner produced the correspondences.
func (e *Evaluator) AlignerName() string { return e.aligner.Name() }

// Evaluate scores the structure at artifact against ref for problem p.
// Errors wrapping ErrBadOutput are the job's fault; anything else is transient.
func (e *Evaluator) Evaluate(ctx context.Context, p model.Problem, jobID, artifact string, ref structure.Structure) (model.EvaluationResult, error) {
	pred, err := structure.ParseFile(artifact)
	if err != nil {
		return model.EvaluationResult{}, fmt.Errorf("%w: %w", ErrBadOutput, err)
	}

	metrics := map[string]float64{}
	if _, err := e.scoreChains(ctx, pred, ref, metrics, ""); err != nil {
		return model.EvaluationResult{}, err
	}

	if p.IsBinder() {
		if err := e.scoreBinder(ctx, pred, ref, metrics); err != nil {
			return model.EvaluationResult{}, err
		}
	}

	conf := ReadConfidence(artifact)
	conf.apply(metrics)
	for k, v := range metrics {
		metrics[k] = round4(v)
	}

	return model.EvaluationResult{
		JobID:         jobID,
		Metrics:       metrics,
		ChainPairIPTM: conf.ChainPairIPTM,
		Aligner:       e.aligner.Name(),
		CreatedAt:     e.now().UTC(),
	}, nil
}

// scoreChains records alignment metrics of pred against ref; prefix "" writes the
// whole-structure metric names, "binder" writes the binder chain names.
func (e *Evaluator) scoreChains(ctx context.Context, pred, ref structure.Structure, metrics map[string]float64, prefix string) (Alignment, error) {
	if pred.Len() == 0 {
		return Alignment{}, fmt.Errorf("%w: no residues to score", ErrBadOutput)
	}
	if ref.Len() == 0 {
		return Alignment{}, fmt.Errorf("reference: %w", structure.ErrNoAtoms)
	}
	al, err := e.aligner.Align(ctx, pred, ref)
	if err != nil {
		return Alignment{}, fmt.Errorf("align: %w", err)
	}
	m, r := pred.Coords(), ref.Coords()
	lddt := LDDT(m, r, al.Pairs)
	cov := lddt * Coverage(al.Pairs, len(r))

	if prefix == "" {
		_, global := RMSDs(m, r, al.Pairs)
		metrics[model.MetricTMScore] = al.TMScore
		metrics[model.MetricRMSD] = al.RMSD
		metrics[model.MetricGlobalRMSD] = global
		metrics[model.MetricBBLDDT] = lddt
		metrics[model.MetricBBLDDTCov] = cov
		metrics[model.MetricAlignedLength] = float64(len(al.Pairs))
		metrics[model.MetricReferenceLength] = float64(len(r))
		metrics[model.MetricPredictedLength] = float64(len(m))
		return al, nil
	}
	metrics[model.MetricBinderTM] = al.TMScore
	metrics[model.MetricBinderRMSD] = al.RMSD
	metrics[model.MetricBinderLDDT] = lddt
	metrics[model.MetricBinderLDDTCov] = cov
	return al, nil
}

// scoreBinder adds binder chain, interface and complex metrics.
func (e *Evaluator) scoreBinder(ctx context.Context, pred, ref structure.Structure, metrics map[string]float64) error {
	predA, refA := pred.Chain(BinderChain), ref.Chain(BinderChain)
	if predA.Len() == 0 {
		return fmt.Errorf("%w: binder chain %s missing", ErrBadOutput, BinderChain)
	}
	if refA.Len() == 0 {
		return fmt.Errorf("reference has no chain %s", BinderChain)
	}
	alA, err := e.scoreChains(ctx, predA, refA, metrics, "binder")
	if err != nil {
		return err
	}

	predB, refB := pred.Chain(TargetChain), ref.Chain(TargetChain)
	if predB.Len() == 0 || refB.Len() == 0 {
		return nil
	}
	pairsB := identityPairs(predB.Len(), refB.Len())
	if predB.Len() != refB.Len() {
		alB, err := e.aligner.Align(ctx, predB, refB)
		if err != nil {
			return fmt.Errorf("align target: %w", err)
		}
		pairsB = alB.Pairs
	}
	pairsA := alA.Pairs
	if predA.Len() == refA.Len() {
		pairsA = identityPairs(predA.Len(), refA.Len())
	}

	ilddt, contacts := InterfaceLDDT(predA.Coords(), predB.Coords(), refA.Coords(), refB.Coords(), pairsA, pairsB)
	if contacts > 0 {
		metrics[model.MetricInterfaceLDDT] = ilddt
	}

	// complex: chain A then chain B, one superposition over both chains' pairs
	complexPred := append(predA.Coords(), predB.Coords()...)
	complexRef := append(refA.Coords(), refB.Coords()...)
	union := append([]Pair(nil), alA.Pairs...)
	for _, p := range pairsB {
		union = append(union, Pair{Model: p.Model + predA.Len(), Ref: p.Ref + refA.Len()})
	}
	tm, _ := TMScore(complexPred, complexRef, union, len(complexRef))
	metrics[model.MetricComplexTM] = tm
	return nil
}

func round4(v float64) float64 {
	return math.Round(v*1e4) / 1e4
}
