package model

import "time"

// Submission is one participant's batch of candidate sequences.
// It is immutable after intake; only the result token is attached later, once.
type Submission struct {
	ID            string    `json:"id"`
	ParticipantID string    `json:"participant_id"`
	Contact       string    `json:"contact,omitempty"`
	SubmittedAt   time.Time `json:"submitted_at"`
	// Sequences maps problem id to 1..K cleaned candidate sequences.
	Sequences map[string][]string `json:"sequences"`

	ResultToken string     `json:"-"`
	PublishedAt *time.Time `json:"published_at,omitempty"`
}

// JobCount returns the number of (problem, candidate) pairs.
func (s Submission) JobCount() int {
	n := 0
	for _, seqs := range s.Sequences {
		n += len(seqs)
	}
	return n
}
