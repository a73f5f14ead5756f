package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/okian/foldboard/internal/adapters/repository"
	"github.com/okian/foldboard/internal/domain/descriptor"
	"github.com/okian/foldboard/internal/domain/model"
	"github.com/okian/foldboard/internal/domain/validate"
	"github.com/okian/foldboard/pkg/logger"
	"github.com/okian/foldboard/pkg/metrics"
)

// Intake is the event forwarded by the front door. Sequences maps a problem id
// to one sequence string or a list of them.
type Intake struct {
	SubmissionID  string         `json:"submission_id,omitempty"`
	ParticipantID any            `json:"participant_id"`
	Contact       string         `json:"contact,omitempty"`
	Sequences     map[string]any `json:"sequences"`
	SubmittedAt   *time.Time     `json:"submitted_at,omitempty"`
}

// Receipt acknowledges an accepted submission.
type Receipt struct {
	SubmissionID string   `json:"submission_id"`
	JobIDs       []string `json:"job_ids"`
}

// Submit validates an intake event and creates its submission and pending jobs,
// all or nothing. A replayed event with a known submission id returns the
// original receipt together with ErrDuplicate.
func (s *Service) Submit(ctx context.Context, in Intake) (Receipt, error) {
	sub, err := s.normalize(in)
	if err != nil {
		metrics.RecordSubmissionRejected(rejectReason(err))
		return Receipt{}, err
	}

	if in.SubmissionID != "" {
		if prior, seen := s.deduper.Claim(ctx, sub.ID, sub.ID); seen {
			metrics.RecordSubmissionDuplicate()
			return s.receipt(ctx, prior)
		}
	}

	receipt, err := s.create(ctx, sub)
	if err != nil {
		if in.SubmissionID != "" && !errors.Is(err, ErrDuplicate) {
			s.deduper.Release(ctx, sub.ID)
		}
		if errors.Is(err, ErrDuplicate) {
			metrics.RecordSubmissionDuplicate()
		} else {
			metrics.RecordSubmissionRejected(rejectReason(err))
		}
		return receipt, err
	}
	return receipt, nil
}

func (s *Service) create(ctx context.Context, sub model.Submission) (Receipt, error) {
	planned, err := s.builder.Plan(sub)
	if err != nil {
		return Receipt{}, planError(err)
	}
	jobs := make([]model.Job, 0, len(planned))
	for _, p := range planned {
		if err := s.builder.Materialize(p); err != nil {
			return Receipt{}, err
		}
		jobs = append(jobs, p.Job)
	}

	if err := s.store.CreateSubmission(ctx, sub, jobs); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return s.receipt(ctx, sub.ID)
		}
		return Receipt{}, fmt.Errorf("store submission: %w", err)
	}

	receipt := Receipt{SubmissionID: sub.ID, JobIDs: make([]string, len(jobs))}
	for i, j := range jobs {
		receipt.JobIDs[i] = j.ID
		if err := s.queue.Enqueue(ctx, j.ID); err != nil {
			// the submitter also sweeps pending jobs, so the job is not lost
			metrics.RecordQueueRejected()
			s.logger.Warn(ctx, "enqueue failed",
				logger.String("job_id", j.ID),
				logger.Error(err),
			)
			continue
		}
		metrics.RecordQueueEnqueue()
	}

	metrics.RecordSubmissionAccepted()
	s.logger.Info(ctx, "submission accepted",
		logger.String("submission_id", sub.ID),
		logger.String("participant", sub.ParticipantID),
		logger.Int("jobs", len(jobs)),
	)
	s.notifier.SubmissionQueued(ctx, sub, jobs)
	return receipt, nil
}

// receipt rebuilds the acknowledgement of an existing submission.
func (s *Service) receipt(ctx context.Context, submissionID string) (Receipt, error) {
	jobs, err := s.store.JobsBySubmission(ctx, submissionID)
	if err != nil {
		return Receipt{}, err
	}
	r := Receipt{SubmissionID: submissionID, JobIDs: make([]string, len(jobs))}
	for i, j := range jobs {
		r.JobIDs[i] = j.ID
	}
	return r, fmt.Errorf("%w: %s", ErrDuplicate, submissionID)
}

// normalize validates identifiers and sequences and returns the submission to create.
func (s *Service) normalize(in Intake) (model.Submission, error) {
	pid := validate.Identifier(in.ParticipantID)
	if !pid.Valid {
		return model.Submission{}, invalid("participant_id", "%s", pid.Message("participant id"))
	}
	if in.SubmissionID != "" {
		if sid := validate.Identifier(in.SubmissionID); !sid.Valid {
			return model.Submission{}, invalid("submission_id", "%s", sid.Message("submission id"))
		}
	}

	problems := make([]string, 0, len(in.Sequences))
	for id := range in.Sequences {
		problems = append(problems, id)
	}
	sort.Strings(problems)

	seqs := make(map[string][]string, len(problems))
	for _, id := range problems {
		raw := candidates(in.Sequences[id])
		if len(raw) == 0 {
			continue
		}
		cleaned := make([]string, 0, len(raw))
		for i, r := range raw {
			res := validate.Sequence(r)
			if !res.Valid {
				field := id
				if len(raw) > 1 {
					field = fmt.Sprintf("%s[%d]", id, i+1)
				}
				return model.Submission{}, invalid(field, "%s", res.Message())
			}
			cleaned = append(cleaned, res.Cleaned)
		}
		seqs[id] = cleaned
	}
	if len(seqs) == 0 {
		return model.Submission{}, invalid("sequences", "no sequences submitted")
	}

	at := s.now().UTC()
	if in.SubmittedAt != nil && !in.SubmittedAt.IsZero() {
		at = in.SubmittedAt.UTC()
	}
	id := in.SubmissionID
	if id == "" {
		id = descriptor.SubmissionID(pid.Value, at)
	}
	return model.Submission{
		ID:            id,
		ParticipantID: pid.Value,
		Contact:       in.Contact,
		SubmittedAt:   at,
		Sequences:     seqs,
	}, nil
}

// candidates turns a sequence-or-list into a list. Elements that are not
// strings are kept so validation reports them.
func candidates(v any) []any {
	switch t := v.(type) {
	case nil:
		return nil
	case []any:
		return t
	case []string:
		out := make([]any, len(t))
		for i, x := range t {
			out[i] = x
		}
		return out
	default:
		return []any{t}
	}
}

func planError(err error) error {
	switch {
	case errors.Is(err, descriptor.ErrUnknownProblem),
		errors.Is(err, descriptor.ErrProblemClosed),
		errors.Is(err, descriptor.ErrTooManySequences),
		errors.Is(err, descriptor.ErrEmptySubmission),
		errors.Is(err, descriptor.ErrMissingTarget):
		return &ValidationError{Field: "sequences", Message: err.Error()}
	}
	return err
}

func rejectReason(err error) string {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return "validation"
	}
	return "internal"
}
