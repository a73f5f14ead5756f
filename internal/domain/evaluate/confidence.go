package evaluate

import (
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/okian/foldboard/internal/domain/model"
)

// Predictor output file suffixes.
const (
	ModelSuffix             = "_model.cif"
	SummaryConfidenceSuffix = "_summary_confidences.json"
	ConfidenceSuffix        = "_confidences.json"
)

// FindArtifact returns the predicted structure in dir or one directory below it.
// The lexically first match wins so repeated lookups agree.
func FindArtifact(dir string) (string, bool) {
	for _, pattern := range []string{
		filepath.Join(dir, "*"+ModelSuffix),
		filepath.Join(dir, "*", "*"+ModelSuffix),
	} {
		matches, err := filepath.Glob(pattern)
		if err != nil || len(matches) == 0 {
			continue
		}
		sort.Strings(matches)
		return matches[0], true
	}
	return "", false
}

// Confidence is the predictor's self-reported quality.
type Confidence struct {
	PTM                *float64    `json:"ptm"`
	IPTM               *float64    `json:"iptm"`
	RankingScore       *float64    `json:"ranking_score"`
	ChainPairIPTM      [][]float64 `json:"chain_pair_iptm"`
	FractionDisordered *float64    `json:"fraction_disordered"`
	MeanPLDDT          *float64    `json:"-"`
}

type fullConfidence struct {
	AtomPLDDTs []float64 `json:"atom_plddts"`
}

// ConfidenceFiles lists the summary and full confidence files next to an artifact.
func ConfidenceFiles(artifact string) (summary, full string) {
	dir := filepath.Dir(artifact)
	prefix := strings.TrimSuffix(filepath.Base(artifact), ModelSuffix)
	return filepath.Join(dir, prefix+SummaryConfidenceSuffix), filepath.Join(dir, prefix+ConfidenceSuffix)
}

// ReadConfidence loads confidence metrics stored next to artifact. Missing or
// unreadable files yield empty fields; confidences never fail an evaluation.
func ReadConfidence(artifact string) Confidence {
	var c Confidence
	summary, full := ConfidenceFiles(artifact)
	if raw, err := os.ReadFile(summary); err == nil {
		_ = json.Unmarshal(raw, &c)
	}
	if raw, err := os.ReadFile(full); err == nil {
		var f fullConfidence
		if json.Unmarshal(raw, &f) == nil && len(f.AtomPLDDTs) > 0 {
			sum := 0.0
			for _, v := range f.AtomPLDDTs {
				sum += v
			}
			mean := math.Round(sum/float64(len(f.AtomPLDDTs))*100) / 100
			c.MeanPLDDT = &mean
		}
	}
	return c
}

// apply records the available confidences as metrics.
func (c Confidence) apply(metrics map[string]float64) {
	set := func(name string, v *float64) {
		if v != nil {
			metrics[name] = *v
		}
	}
	set(model.MetricPTM, c.PTM)
	set(model.MetricIPTM, c.IPTM)
	set(model.MetricRankingScore, c.RankingScore)
	set(model.MetricFractionDisordered, c.FractionDisordered)
	set(model.MetricPLDDT, c.MeanPLDDT)
}
