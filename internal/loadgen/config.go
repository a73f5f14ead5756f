// Package loadgen drives a running foldboard with synthetic intake events and
// checks the published leaderboard for consistency.
package loadgen

import (
	"context"
	"time"

	service "github.com/okian/foldboard/internal/app"
	"github.com/okian/foldboard/internal/domain/model"
)

// API is the subset of the foldboard client the generator needs.
type API interface {
	Health(ctx context.Context) error
	Problems(ctx context.Context, session string) ([]model.Problem, error)
	Submit(ctx context.Context, in service.Intake) (service.Receipt, error)
	Leaderboard(ctx context.Context, session string) (model.Leaderboard, error)
}

// Config holds configuration for a load run.
type Config struct {
	Session      string        // Session whose problems receive submissions
	Submissions  int           // Number of distinct submissions
	Participants int           // Participants the submissions are spread over
	PerProblem   int           // Sequences per problem in each submission
	Workers      int           // Concurrent submitters
	Replays      float64       // Fraction of submissions sent a second time
	MinLength    int           // Monomer design length bounds
	MaxLength    int
	Wait         time.Duration // How long to wait before reading the leaderboard; zero skips it
	Output       string        // Where to write the generated events, empty to skip
}

// Defaults fills zero fields.
func (c *Config) Defaults() {
	if c.Submissions <= 0 {
		c.Submissions = defaultSubmissions
	}
	if c.Participants <= 0 {
		c.Participants = defaultParticipants
	}
	if c.PerProblem <= 0 {
		c.PerProblem = 1
	}
	if c.Workers <= 0 {
		c.Workers = defaultWorkers
	}
	if c.MinLength <= 0 {
		c.MinLength = defaultMinLength
	}
	if c.MaxLength < c.MinLength {
		c.MaxLength = c.MinLength + defaultLengthSpread
	}
}

// Stats holds run statistics.
type Stats struct {
	Generated          int
	Submitted          int
	Accepted           int
	Duplicate          int
	Rejected           int
	Failed             int
	LeaderboardEntries int
	StartTime          time.Time
	EndTime            time.Time
	Duration           time.Duration
}
