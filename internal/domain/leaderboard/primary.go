package leaderboard

import (
	"github.com/okian/foldboard/internal/domain/model"
)

// RankableMetrics are the metrics a problem may name as its primary metric.
var RankableMetrics = []string{
	model.MetricBBLDDT,
	model.MetricBBLDDTCov,
	model.MetricBinderLDDT,
	model.MetricInterfaceLDDT,
	model.MetricTMScore,
	model.MetricBinderTM,
	model.MetricIPTM,
	model.MetricPTM,
	model.MetricPLDDT,
}

// IsRankable reports whether name may be used as a primary metric.
func IsRankable(name string) bool {
	for _, m := range RankableMetrics {
		if m == name {
			return true
		}
	}
	return false
}

var (
	monomerFallback = []string{model.MetricTMScore, model.MetricBBLDDT, model.MetricPTM}
	binderFallback  = []string{model.MetricBinderTM, model.MetricComplexTM, model.MetricTMScore, pairIPTM, model.MetricIPTM, model.MetricRankingScore}
)

// pairIPTM stands for the best off-diagonal chain pair ipTM in a fallback list.
const pairIPTM = "chain_pair_iptm"

// MetricName is the metric label shown for a problem.
func MetricName(p model.Problem) string {
	if p.PrimaryMetric != "" {
		return p.PrimaryMetric
	}
	if p.IsBinder() {
		return model.MetricBinderTM
	}
	return model.MetricTMScore
}

// PrimaryValue selects the ranked value of r for problem p. An explicit primary
// metric must be present; otherwise the type's fallback chain is walked.
func PrimaryValue(p model.Problem, r model.EvaluationResult) (float64, bool) {
	if p.PrimaryMetric != "" {
		if p.PrimaryMetric == model.MetricIPTM && len(r.ChainPairIPTM) > 0 && len(r.ChainPairIPTM[0]) > 1 {
			return r.ChainPairIPTM[0][1], true
		}
		return r.Metric(p.PrimaryMetric)
	}

	chain := monomerFallback
	if p.IsBinder() {
		chain = binderFallback
	}
	for _, name := range chain {
		if name == pairIPTM {
			if v, ok := maxOffDiagonal(r.ChainPairIPTM); ok {
				return v, true
			}
			continue
		}
		if v, ok := r.Metric(name); ok {
			return v, true
		}
	}
	return 0, false
}

func maxOffDiagonal(m [][]float64) (float64, bool) {
	best, found := 0.0, false
	for i, row := range m {
		for j, v := range row {
			if i == j {
				continue
			}
			if !found || v > best {
				best, found = v, true
			}
		}
	}
	return best, found
}
