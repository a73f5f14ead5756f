package model

import "time"

// Metric names recorded on an EvaluationResult.
const (
	MetricBBLDDT             = "bb_lddt"
	MetricBBLDDTCov          = "bb_lddt_cov"
	MetricTMScore            = "tm_score"
	MetricRMSD               = "rmsd"
	MetricGlobalRMSD         = "global_rmsd"
	MetricAlignedLength      = "aligned_length"
	MetricReferenceLength    = "ref_length"
	MetricPredictedLength    = "pred_length"
	MetricBinderLDDT         = "binder_lddt"
	MetricBinderLDDTCov      = "binder_lddt_cov"
	MetricBinderTM           = "binder_tm"
	MetricBinderRMSD         = "binder_rmsd"
	MetricComplexTM          = "complex_tm"
	MetricInterfaceLDDT      = "interface_lddt"
	MetricPTM                = "ptm"
	MetricIPTM               = "iptm"
	MetricRankingScore       = "ranking_score"
	MetricPLDDT              = "plddt"
	MetricFractionDisordered = "fraction_disordered"
)

// EvaluationResult holds the metrics of one evaluation of a job's output.
// Results are append-only; the highest Revision for a job supersedes earlier ones.
type EvaluationResult struct {
	JobID    string             `json:"job_id"`
	Revision int                `json:"revision"`
	Metrics  map[string]float64 `json:"metrics"`
	// ChainPairIPTM is the predictor's per chain pair interface confidence, when reported.
	ChainPairIPTM [][]float64 `json:"chain_pair_iptm,omitempty"`
	Aligner       string      `json:"aligner"`
	CreatedAt     time.Time   `json:"created_at"`
}

// Metric returns a metric and whether it was recorded.
func (r EvaluationResult) Metric(name string) (float64, bool) {
	v, ok := r.Metrics[name]
	return v, ok
}
