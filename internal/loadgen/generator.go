package loadgen

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"

	"github.com/google/uuid"

	service "github.com/okian/foldboard/internal/app"
	"github.com/okian/foldboard/internal/domain/model"
	"github.com/okian/foldboard/internal/domain/validate"
	"github.com/okian/foldboard/pkg/logger"
)

// randomInt returns a uniform value in [0, n) using crypto/rand.
func randomInt(n int) int {
	if n <= 1 {
		return 0
	}
	v, _ := rand.Int(rand.Reader, big.NewInt(int64(n)))
	return int(v.Int64())
}

// randomSequence builds a sequence of length n over the amino acid alphabet.
func randomSequence(n int) string {
	var b strings.Builder
	b.Grow(n)
	for i := 0; i < n; i++ {
		b.WriteByte(validate.Alphabet[randomInt(len(validate.Alphabet))])
	}
	return b.String()
}

// designLength picks a length the problem accepts.
func designLength(p model.Problem, cfg *Config) int {
	lo, hi := cfg.MinLength, cfg.MaxLength
	if p.Type == model.ProblemBinder && len(p.ExpectedBinderLength) == 2 {
		lo, hi = p.ExpectedBinderLength[0], p.ExpectedBinderLength[1]
	}
	lo = max(lo, validate.MinSequenceLength)
	hi = max(hi, lo)
	return lo + randomInt(hi-lo+1)
}

// generate creates cfg.Submissions intake events covering every problem.
func generate(ctx context.Context, cfg *Config, problems []model.Problem, stats *Stats) ([]service.Intake, error) {
	if len(problems) == 0 {
		return nil, fmt.Errorf("session %q has no problems", cfg.Session)
	}
	logger.Get().Info(ctx, "generating submissions",
		logger.Int("submissions", cfg.Submissions),
		logger.Int("problems", len(problems)))

	participants := make([]string, cfg.Participants)
	for i := range participants {
		participants[i] = "load-" + uuid.NewString()[:8]
	}

	events := make([]service.Intake, cfg.Submissions)
	for i := range events {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("context cancelled during generation: %w", err)
		}
		seqs := make(map[string]any, len(problems))
		for _, p := range problems {
			list := make([]string, cfg.PerProblem)
			for j := range list {
				list[j] = randomSequence(designLength(p, cfg))
			}
			seqs[p.ID] = list
		}
		events[i] = service.Intake{
			SubmissionID:  uuid.NewString(),
			ParticipantID: participants[i%len(participants)],
			Sequences:     seqs,
		}
	}

	stats.Generated = len(events)
	return events, nil
}
