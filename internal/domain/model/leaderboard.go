package model

import "time"

// LeaderboardEntry is one participant's best result on one problem.
type LeaderboardEntry struct {
	Participant  string    `json:"participant"`
	Value        float64   `json:"value"`
	ZScore       float64   `json:"z_score"`
	Rank         int       `json:"rank"`
	JobID        string    `json:"job_id"`
	SubmissionID string    `json:"submission_id"`
	SubmittedAt  time.Time `json:"submitted_at"`
}

// ProblemBoard ranks participants on a single problem.
type ProblemBoard struct {
	ProblemID string             `json:"problem_id"`
	Name      string             `json:"name"`
	Metric    string             `json:"metric"`
	Mean      float64            `json:"mean"`
	StdDev    float64            `json:"std_dev"`
	Entries   []LeaderboardEntry `json:"entries"`
}

// OverallEntry aggregates a participant's z-scores across a session.
type OverallEntry struct {
	Participant string             `json:"participant"`
	Score       float64            `json:"score"`
	Rank        int                `json:"rank"`
	Problems    int                `json:"problems"`
	ZScores     map[string]float64 `json:"z_scores"`
}

// Leaderboard is the derived per-session ranking artifact.
type Leaderboard struct {
	Session  string         `json:"session"`
	Name     string         `json:"name"`
	Problems []ProblemBoard `json:"problems"`
	Overall  []OverallEntry `json:"overall"`
}
