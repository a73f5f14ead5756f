package evaluate

import "math"

// lDDT parameters.
const (
	LDDTInclusionRadius = 15.0
	InterfaceCutoff     = 8.0
)

// LDDTThresholds are the distance difference tolerances in Ångström.
var LDDTThresholds = [4]float64{0.5, 1, 2, 4}

// Pair maps a model residue index to a reference residue index.
type Pair struct {
	Model int
	Ref   int
}

func gather(model, ref []vec, pairs []Pair) ([]vec, []vec) {
	m := make([]vec, len(pairs))
	r := make([]vec, len(pairs))
	for i, p := range pairs {
		m[i] = model[p.Model]
		r[i] = ref[p.Ref]
	}
	return m, r
}

func validPairs(pairs []Pair, nModel, nRef int) bool {
	for _, p := range pairs {
		if p.Model < 0 || p.Model >= nModel || p.Ref < 0 || p.Ref >= nRef {
			return false
		}
	}
	return true
}

// identityPairs pairs residues by index over the shorter length.
func identityPairs(nModel, nRef int) []Pair {
	n := nModel
	if nRef < n {
		n = nRef
	}
	out := make([]Pair, n)
	for i := range out {
		out[i] = Pair{Model: i, Ref: i}
	}
	return out
}

// LDDT is the CA-only local distance difference test over aligned pairs.
// Reference pairs closer than the inclusion radius count, except each residue
// with itself and its neighbour in the aligned order. Without usable pairs the
// structures are compared by index.
func LDDT(model, ref []vec, pairs []Pair) float64 {
	if len(pairs) == 0 || !validPairs(pairs, len(model), len(ref)) {
		pairs = identityPairs(len(model), len(ref))
	}
	m, r := gather(model, ref, pairs)
	return lddtCore(m, r)
}

func lddtCore(m, r []vec) float64 {
	n := len(r)
	if n < 2 {
		return 0
	}
	var preserved [4]int
	total := 0
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			if i == j || j == i+1 || i == j+1 {
				continue
			}
			dr := r[i].Dist(r[j])
			if dr <= 0 || dr >= LDDTInclusionRadius {
				continue
			}
			diff := math.Abs(m[i].Dist(m[j]) - dr)
			total++
			for k, t := range LDDTThresholds {
				if diff < t {
					preserved[k]++
				}
			}
		}
	}
	if total == 0 {
		return 0
	}
	score := 0.0
	for _, p := range preserved {
		score += float64(p) / float64(total)
	}
	return score / float64(len(LDDTThresholds))
}

// Coverage is the fraction of reference residues with an aligned partner.
func Coverage(pairs []Pair, refLen int) float64 {
	if refLen == 0 {
		return 0
	}
	return float64(len(pairs)) / float64(refLen)
}

// D0 is the TM-score distance scale for a reference of length l.
func D0(l int) float64 {
	if l <= 21 {
		return 0.5
	}
	return math.Max(1.24*math.Cbrt(float64(l-15))-1.8, 0.5)
}

// tmSum returns the un-normalized TM-score of superposed pairs.
func tmSum(m, r []vec, d0 float64) float64 {
	sum := 0.0
	for i := range m {
		d := m[i].Dist(r[i]) / d0
		sum += 1 / (1 + d*d)
	}
	return sum
}

// TMScore superposes the aligned pairs and returns the TM-score normalized by refLen.
// Besides the full set, superpositions on pairs within widening distance cutoffs are
// tried and the best score is kept.
func TMScore(model, ref []vec, pairs []Pair, refLen int) (float64, Transform) {
	if len(pairs) == 0 || refLen == 0 {
		return 0, Identity
	}
	m, r := gather(model, ref, pairs)
	d0 := D0(refLen)

	bestT := Superpose(m, r)
	best := tmSum(bestT.ApplyAll(m), r, d0)

	for _, cut := range []float64{d0, d0 + 1, d0 + 2, 2 * d0, 4 * d0} {
		t := bestT
		for iter := 0; iter < 10; iter++ {
			moved := t.ApplyAll(m)
			var sm, sr []vec
			for i := range moved {
				if moved[i].Dist(r[i]) < cut {
					sm = append(sm, m[i])
					sr = append(sr, r[i])
				}
			}
			if len(sm) < 3 {
				break
			}
			next := Superpose(sm, sr)
			if next == t {
				break
			}
			t = next
			if s := tmSum(t.ApplyAll(m), r, d0); s > best {
				best, bestT = s, t
			}
		}
	}
	return best / float64(refLen), bestT
}

// RMSDs returns the RMSD over aligned pairs after superposing on them, and the
// RMSD over the first min(len) residues under that same superposition.
func RMSDs(model, ref []vec, pairs []Pair) (aligned, global float64) {
	if len(model) == 0 || len(ref) == 0 {
		return 0, 0
	}
	if len(pairs) < 2 || !validPairs(pairs, len(model), len(ref)) {
		pairs = identityPairs(len(model), len(ref))
	}
	m, r := gather(model, ref, pairs)
	t := Superpose(m, r)
	aligned = RMSD(t.ApplyAll(m), r)
	global = RMSD(t.ApplyAll(model), ref)
	return aligned, global
}

// InterfaceLDDT scores cross-chain contacts around the reference interface.
// Interface residues lie within InterfaceCutoff of the other chain in the reference;
// contacts are cross-chain reference pairs within the inclusion radius, counted once.
// pairsA and pairsB map model to reference residues of each chain. The second
// return value is the number of contacts scored.
func InterfaceLDDT(modelA, modelB, refA, refB []vec, pairsA, pairsB []Pair) (float64, int) {
	if len(refA) == 0 || len(refB) == 0 {
		return 0, 0
	}
	refToModelA := refIndex(pairsA, len(modelA), len(refA))
	refToModelB := refIndex(pairsB, len(modelB), len(refB))

	ifaceA := make([]bool, len(refA))
	ifaceB := make([]bool, len(refB))
	for i := range refA {
		for j := range refB {
			if refA[i].Dist(refB[j]) < InterfaceCutoff {
				ifaceA[i] = true
				ifaceB[j] = true
			}
		}
	}

	sum, contacts := 0.0, 0
	score := func(i, j int) {
		mi, okA := refToModelA[i]
		mj, okB := refToModelB[j]
		if !okA || !okB {
			return
		}
		dr := refA[i].Dist(refB[j])
		if dr >= LDDTInclusionRadius {
			return
		}
		diff := math.Abs(modelA[mi].Dist(modelB[mj]) - dr)
		kept := 0
		for _, t := range LDDTThresholds {
			if diff < t {
				kept++
			}
		}
		sum += float64(kept) / float64(len(LDDTThresholds))
		contacts++
	}

	for i := range refA {
		if !ifaceA[i] {
			continue
		}
		for j := range refB {
			score(i, j)
		}
	}
	for j := range refB {
		if !ifaceB[j] {
			continue
		}
		for i := range refA {
			if !ifaceA[i] {
				score(i, j)
			}
		}
	}
	if contacts == 0 {
		return 0, 0
	}
	return sum / float64(contacts), contacts
}

// refIndex maps reference to model indices; equal lengths pair by index.
func refIndex(pairs []Pair, nModel, nRef int) map[int]int {
	if nModel == nRef || len(pairs) == 0 || !validPairs(pairs, nModel, nRef) {
		pairs = identityPairs(nModel, nRef)
	}
	idx := make(map[int]int, len(pairs))
	for _, p := range pairs {
		idx[p.Ref] = p.Model
	}
	return idx
}
