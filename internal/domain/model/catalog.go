// Package model contains the domain records shared by the orchestrator passes.
package model

// ProblemType distinguishes single-chain targets from binder design targets.
type ProblemType string

const (
	ProblemMonomer ProblemType = "monomer"
	ProblemBinder  ProblemType = "binder"
)

// MSAMode tells the predictor how to obtain a multiple sequence alignment.
type MSAMode string

const (
	MSANone        MSAMode = "none"
	MSASearch      MSAMode = "search"
	MSAPrecomputed MSAMode = "precomputed"
)

// Valid reports whether m is a known mode.
func (m MSAMode) Valid() bool {
	switch m {
	case MSANone, MSASearch, MSAPrecomputed:
		return true
	}
	return false
}

// SessionStatus is the lifecycle of a competition round.
type SessionStatus string

const (
	SessionUpcoming SessionStatus = "upcoming"
	SessionActive   SessionStatus = "active"
	SessionArchived SessionStatus = "archived"
)

// AcceptsSubmissions reports whether problems of the session are open.
func (s SessionStatus) AcceptsSubmissions() bool {
	return s == SessionActive || s == SessionUpcoming
}

// Problem is a named folding target.
type Problem struct {
	ID          string      `json:"id" yaml:"id"`
	Name        string      `json:"name" yaml:"name"`
	Description string      `json:"description,omitempty" yaml:"description,omitempty"`
	Type        ProblemType `json:"type" yaml:"type"`
	Session     string      `json:"session" yaml:"session"`
	// TargetFile is the sanitized reference structure, relative to the catalog.
	TargetFile   string `json:"-" yaml:"target_file"`
	ResidueCount int    `json:"residue_count" yaml:"residue_count"`
	// PrimaryMetric names the metric ranked on the leaderboard; empty selects the type default.
	PrimaryMetric string  `json:"primary_metric,omitempty" yaml:"primary_metric,omitempty"`
	MSAMode       MSAMode `json:"msa_mode" yaml:"msa_mode"`

	// Binder only.
	TargetSequence       string `json:"target_sequence,omitempty" yaml:"target_sequence,omitempty"`
	TargetMSAFile        string `json:"-" yaml:"target_msa_file,omitempty"`
	ExpectedBinderLength []int  `json:"expected_binder_length,omitempty" yaml:"expected_binder_length,omitempty"`
}

// IsBinder reports whether the problem has a fixed target chain.
func (p Problem) IsBinder() bool { return p.Type == ProblemBinder }

// Session is a competition round.
type Session struct {
	Key      string        `json:"key" yaml:"key"`
	Name     string        `json:"name" yaml:"name"`
	Status   SessionStatus `json:"status" yaml:"status"`
	Problems []string      `json:"problems" yaml:"problems"`
}
