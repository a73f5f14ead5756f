package service

import (
	"context"

	"github.com/okian/foldboard/internal/domain/model"
	"github.com/okian/foldboard/pkg/logger"
)

// Notifier receives participant facing lifecycle events. Delivery (email,
// chat) lives outside the orchestrator.
type Notifier interface {
	SubmissionQueued(ctx context.Context, sub model.Submission, jobs []model.Job)
	ResultsReady(ctx context.Context, sub model.Submission, url string, evaluated, failed int)
}

// LogNotifier writes notifications to the log.
type LogNotifier struct {
	logger logger.Logger
}

// NewLogNotifier creates a LogNotifier. A nil logger uses the global one.
func NewLogNotifier(l logger.Logger) *LogNotifier {
	if l == nil {
		l = logger.Get().Named("notifier")
	}
	return &LogNotifier{logger: l}
}

func (n *LogNotifier) SubmissionQueued(ctx context.Context, sub model.Submission, jobs []model.Job) {
	n.logger.Info(ctx, "submission queued",
		logger.String("submission_id", sub.ID),
		logger.String("participant", sub.ParticipantID),
		logger.Bool("has_contact", sub.Contact != ""),
		logger.Int("jobs", len(jobs)),
	)
}

func (n *LogNotifier) ResultsReady(ctx context.Context, sub model.Submission, url string, evaluated, failed int) {
	n.logger.Info(ctx, "results ready",
		logger.String("submission_id", sub.ID),
		logger.String("participant", sub.ParticipantID),
		logger.String("url", url),
		logger.Int("evaluated", evaluated),
		logger.Int("failed", failed),
	)
}
