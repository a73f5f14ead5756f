package loadgen

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"

	service "github.com/okian/foldboard/internal/app"
	"github.com/okian/foldboard/internal/client"
	"github.com/okian/foldboard/pkg/logger"
)

type outcome int

const (
	outcomeAccepted outcome = iota
	outcomeDuplicate
	outcomeRejected
	outcomeFailed
)

// submitAll sends events through a worker pool, then replays a share of them
// to exercise idempotent intake.
func submitAll(ctx context.Context, api API, cfg *Config, events []service.Intake, stats *Stats) {
	batch := events
	if n := int(float64(len(events)) * cfg.Replays); n > 0 {
		batch = append(append([]service.Intake(nil), events...), events[:min(n, len(events))]...)
	}
	logger.Get().Info(ctx, "submitting",
		logger.Int("events", len(batch)),
		logger.Int("workers", cfg.Workers))

	var counts [outcomeFailed + 1]atomic.Int64
	var submitted atomic.Int64

	ch := make(chan service.Intake, cfg.Workers*workerChannelMultiplier)
	var wg sync.WaitGroup
	for i := 0; i < cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for in := range ch {
				if ctx.Err() != nil {
					return
				}
				counts[submitOne(ctx, api, in)].Add(1)
				submitted.Add(1)
			}
		}()
	}

	go func() {
		defer close(ch)
		for _, in := range batch {
			select {
			case <-ctx.Done():
				return
			case ch <- in:
			}
		}
	}()
	wg.Wait()

	stats.Submitted = int(submitted.Load())
	stats.Accepted = int(counts[outcomeAccepted].Load())
	stats.Duplicate = int(counts[outcomeDuplicate].Load())
	stats.Rejected = int(counts[outcomeRejected].Load())
	stats.Failed = int(counts[outcomeFailed].Load())
}

func submitOne(ctx context.Context, api API, in service.Intake) outcome {
	_, err := api.Submit(ctx, in)
	var apiErr *client.APIError
	switch {
	case err == nil:
		return outcomeAccepted
	case errors.Is(err, client.ErrDuplicate):
		return outcomeDuplicate
	case errors.As(err, &apiErr) && apiErr.Status < http.StatusInternalServerError:
		logger.Get().Debug(ctx, "submission rejected",
			logger.String("submission_id", in.SubmissionID),
			logger.String("code", apiErr.Code),
			logger.String("message", apiErr.Message))
		return outcomeRejected
	default:
		logger.Get().Debug(ctx, "submission failed", logger.String("submission_id", in.SubmissionID), logger.Error(err))
		return outcomeFailed
	}
}
