package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/okian/foldboard/internal/domain/model"
)

// MemoryStore keeps everything in process memory. Returned values are copies.
type MemoryStore struct {
	mu          sync.RWMutex
	submissions map[string]model.Submission
	tokens      map[string]string // token -> submission id
	jobs        map[string]model.Job
	bySub       map[string][]string
	evaluations map[string][]model.EvaluationResult
	now         func() time.Time
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{
		submissions: map[string]model.Submission{},
		tokens:      map[string]string{},
		jobs:        map[string]model.Job{},
		bySub:       map[string][]string{},
		evaluations: map[string][]model.EvaluationResult{},
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var _ Store = (*MemoryStore)(nil)

func (s *MemoryStore) CreateSubmission(ctx context.Context, sub model.Submission, jobs []model.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.submissions[sub.ID]; ok {
		return fmt.Errorf("submission %s: %w", sub.ID, ErrConflict)
	}
	for _, j := range jobs {
		if _, ok := s.jobs[j.ID]; ok {
			return fmt.Errorf("job %s: %w", j.ID, ErrConflict)
		}
		if j.SubmissionID != sub.ID {
			return fmt.Errorf("job %s belongs to %s, not %s", j.ID, j.SubmissionID, sub.ID)
		}
	}
	s.submissions[sub.ID] = cloneSubmission(sub)
	ids := make([]string, 0, len(jobs))
	for _, j := range jobs {
		s.jobs[j.ID] = j
		ids = append(ids, j.ID)
	}
	s.bySub[sub.ID] = ids
	return nil
}

func (s *MemoryStore) Submission(ctx context.Context, id string) (model.Submission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sub, ok := s.submissions[id]
	if !ok {
		return model.Submission{}, fmt.Errorf("submission %s: %w", id, ErrNotFound)
	}
	return cloneSubmission(sub), nil
}

func (s *MemoryStore) SubmissionByToken(ctx context.Context, token string) (model.Submission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.tokens[token]
	if !ok || token == "" {
		return model.Submission{}, fmt.Errorf("token: %w", ErrNotFound)
	}
	return cloneSubmission(s.submissions[id]), nil
}

func (s *MemoryStore) Submissions(ctx context.Context) ([]model.Submission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Submission, 0, len(s.submissions))
	for _, sub := range s.submissions {
		out = append(out, cloneSubmission(sub))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].SubmittedAt.Equal(out[j].SubmittedAt) {
			return out[i].SubmittedAt.Before(out[j].SubmittedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *MemoryStore) SetResultToken(ctx context.Context, submissionID, token string, at time.Time) (model.Submission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.submissions[submissionID]
	if !ok {
		return model.Submission{}, fmt.Errorf("submission %s: %w", submissionID, ErrNotFound)
	}
	if sub.ResultToken != "" {
		if sub.ResultToken == token {
			return cloneSubmission(sub), nil
		}
		return model.Submission{}, fmt.Errorf("submission %s token: %w", submissionID, ErrConflict)
	}
	if _, taken := s.tokens[token]; taken {
		return model.Submission{}, fmt.Errorf("token: %w", ErrConflict)
	}
	at = at.UTC()
	sub.ResultToken = token
	sub.PublishedAt = &at
	s.submissions[submissionID] = sub
	s.tokens[token] = submissionID
	return cloneSubmission(sub), nil
}

func (s *MemoryStore) ProblemHasSubmissions(ctx context.Context, problemID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, j := range s.jobs {
		if j.ProblemID == problemID {
			return true, nil
		}
	}
	return false, nil
}

func (s *MemoryStore) Job(ctx context.Context, id string) (model.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	j, ok := s.jobs[id]
	if !ok {
		return model.Job{}, fmt.Errorf("job %s: %w", id, ErrNotFound)
	}
	return j, nil
}

func (s *MemoryStore) JobsBySubmission(ctx context.Context, submissionID string) ([]model.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids, ok := s.bySub[submissionID]
	if !ok {
		return nil, fmt.Errorf("submission %s: %w", submissionID, ErrNotFound)
	}
	out := make([]model.Job, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.jobs[id])
	}
	return out, nil
}

func (s *MemoryStore) JobsByState(ctx context.Context, states ...model.JobState) ([]model.Job, error) {
	want := map[model.JobState]bool{}
	for _, st := range states {
		want[st] = true
	}
	s.mu.RLock()
	var out []model.Job
	for _, j := range s.jobs {
		if want[j.State] {
			out = append(out, j)
		}
	}
	s.mu.RUnlock()
	sortJobs(out)
	return out, nil
}

func (s *MemoryStore) CountByState(ctx context.Context) (map[model.JobState]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	counts := make(map[model.JobState]int, len(model.AllJobStates))
	for _, st := range model.AllJobStates {
		counts[st] = 0
	}
	for _, j := range s.jobs {
		counts[j.State]++
	}
	return counts, nil
}

func (s *MemoryStore) Transition(ctx context.Context, id string, from, to model.JobState, obs model.Observation) (model.Job, error) {
	return s.update(id, func(j *model.Job, now time.Time) error {
		return applyTransition(j, from, to, obs, now)
	})
}

func (s *MemoryStore) Annotate(ctx context.Context, id string, state model.JobState, obs model.Observation) (model.Job, error) {
	return s.update(id, func(j *model.Job, now time.Time) error {
		return applyAnnotation(j, state, obs, now)
	})
}

func (s *MemoryStore) Retry(ctx context.Context, next model.Job) (model.Job, error) {
	return s.update(next.ID, func(j *model.Job, now time.Time) error {
		return applyRetry(j, next, now)
	})
}

func (s *MemoryStore) update(id string, fn func(*model.Job, time.Time) error) (model.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return model.Job{}, fmt.Errorf("job %s: %w", id, ErrNotFound)
	}
	if err := fn(&j, s.now().UTC()); err != nil {
		return model.Job{}, err
	}
	s.jobs[id] = j
	return j, nil
}

func (s *MemoryStore) CommitEvaluation(ctx context.Context, r model.EvaluationResult) (model.Job, model.EvaluationResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[r.JobID]
	if !ok {
		return model.Job{}, model.EvaluationResult{}, fmt.Errorf("job %s: %w", r.JobID, ErrNotFound)
	}
	if err := applyTransition(&j, model.JobSucceeded, model.JobEvaluated, model.Observation{}, s.now().UTC()); err != nil {
		return model.Job{}, model.EvaluationResult{}, err
	}
	s.jobs[j.ID] = j
	return j, s.appendResult(r), nil
}

func (s *MemoryStore) AddEvaluation(ctx context.Context, r model.EvaluationResult) (model.EvaluationResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[r.JobID]; !ok {
		return model.EvaluationResult{}, fmt.Errorf("job %s: %w", r.JobID, ErrNotFound)
	}
	return s.appendResult(r), nil
}

// appendResult stores r under the next revision. Callers hold s.mu.
func (s *MemoryStore) appendResult(r model.EvaluationResult) model.EvaluationResult {
	prev := s.evaluations[r.JobID]
	r = cloneResult(r)
	r.Revision = len(prev) + 1
	s.evaluations[r.JobID] = append(prev, r)
	return cloneResult(r)
}

func (s *MemoryStore) LatestEvaluations(ctx context.Context, jobIDs []string) (map[string]model.EvaluationResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]model.EvaluationResult, len(jobIDs))
	for _, id := range jobIDs {
		if rs := s.evaluations[id]; len(rs) > 0 {
			out[id] = cloneResult(rs[len(rs)-1])
		}
	}
	return out, nil
}

func (s *MemoryStore) Close() error { return nil }

func sortJobs(jobs []model.Job) {
	sort.Slice(jobs, func(i, j int) bool {
		if !jobs[i].CreatedAt.Equal(jobs[j].CreatedAt) {
			return jobs[i].CreatedAt.Before(jobs[j].CreatedAt)
		}
		return jobs[i].ID < jobs[j].ID
	})
}

func cloneSubmission(sub model.Submission) model.Submission {
	seqs := make(map[string][]string, len(sub.Sequences))
	for k, v := range sub.Sequences {
		seqs[k] = append([]string(nil), v...)
	}
	sub.Sequences = seqs
	return sub
}

func cloneResult(r model.EvaluationResult) model.EvaluationResult {
	m := make(map[string]float64, len(r.Metrics))
	for k, v := range r.Metrics {
		m[k] = v
	}
	r.Metrics = m
	if r.ChainPairIPTM != nil {
		rows := make([][]float64, len(r.ChainPairIPTM))
		for i, row := range r.ChainPairIPTM {
			rows[i] = append([]float64(nil), row...)
		}
		r.ChainPairIPTM = rows
	}
	return r
}
