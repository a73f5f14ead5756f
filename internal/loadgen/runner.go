package loadgen

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	service "github.com/okian/foldboard/internal/app"
	"github.com/okian/foldboard/pkg/logger"
)

// Run executes a complete load run against api.
func Run(ctx context.Context, api API, cfg Config) (*Stats, error) {
	cfg.Defaults()
	stats := &Stats{StartTime: time.Now()}
	log := logger.Get().Named("loadgen")

	log.Info(ctx, "starting load run",
		logger.String("session", cfg.Session),
		logger.Int("submissions", cfg.Submissions),
		logger.Int("workers", cfg.Workers),
		logger.Float64("replays", cfg.Replays))

	if err := api.Health(ctx); err != nil {
		return nil, fmt.Errorf("service health check failed: %w", err)
	}

	problems, err := api.Problems(ctx, cfg.Session)
	if err != nil {
		return nil, fmt.Errorf("list problems: %w", err)
	}
	events, err := generate(ctx, &cfg, problems, stats)
	if err != nil {
		return nil, fmt.Errorf("generation failed: %w", err)
	}

	submitAll(ctx, api, &cfg, events, stats)

	if cfg.Output != "" {
		if err := saveEvents(cfg.Output, events); err != nil {
			log.Warn(ctx, "failed to save events", logger.Error(err))
		}
	}

	if cfg.Wait > 0 {
		log.Info(ctx, "waiting for passes to publish", logger.Duration("wait", cfg.Wait))
		select {
		case <-ctx.Done():
			return stats, ctx.Err()
		case <-time.After(cfg.Wait):
		}
		lb, err := api.Leaderboard(ctx, cfg.Session)
		if err != nil {
			return stats, fmt.Errorf("leaderboard retrieval failed: %w", err)
		}
		stats.LeaderboardEntries = len(lb.Overall)
		if err := Verify(lb); err != nil {
			return stats, fmt.Errorf("leaderboard verification failed: %w", err)
		}
	}

	stats.EndTime = time.Now()
	stats.Duration = stats.EndTime.Sub(stats.StartTime)
	logFinalStats(ctx, log, stats)
	return stats, nil
}

// saveEvents writes the generated events as a JSON array.
func saveEvents(path string, events []service.Intake) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, directoryPermission); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}
	data, err := json.MarshalIndent(events, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o600)
}

func logFinalStats(ctx context.Context, log logger.Logger, stats *Stats) {
	var acceptRate, perSecond float64
	if stats.Submitted > 0 {
		acceptRate = float64(stats.Accepted) / float64(stats.Submitted) * percentageMultiplier
	}
	if stats.Duration > 0 {
		perSecond = float64(stats.Submitted) / stats.Duration.Seconds()
	}
	log.Info(ctx, "final statistics",
		logger.Int("generated", stats.Generated),
		logger.Int("submitted", stats.Submitted),
		logger.Int("accepted", stats.Accepted),
		logger.Int("duplicate", stats.Duplicate),
		logger.Int("rejected", stats.Rejected),
		logger.Int("failed", stats.Failed),
		logger.Int("leaderboardEntries", stats.LeaderboardEntries),
		logger.Duration("duration", stats.Duration),
		logger.Float64("acceptRate", acceptRate),
		logger.Float64("submissionsPerSecond", perSecond))
}
