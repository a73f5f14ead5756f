package descriptor

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/okian/foldboard/internal/domain/model"
)

const (
	descriptorFile = "input.json"
	outputDir      = "output"
	logsDir        = "logs"
)

// Catalog resolves problems together with their session.
type Catalog interface {
	Problem(id string) (model.Problem, model.Session, bool)
}

// Planned is a job ready to be stored together with its descriptor.
type Planned struct {
	Job        model.Job
	Descriptor Descriptor
}

// Builder plans and materializes job descriptors.
type Builder struct {
	catalog       Catalog
	dataDir       string
	seeds         []int
	maxPerProblem int
	now           func() time.Time
}

// Option configures a Builder.
type Option func(*Builder)

// WithModelSeeds sets the predictor seeds.
func WithModelSeeds(seeds []int) Option {
	return func(b *Builder) {
		if len(seeds) > 0 {
			b.seeds = append([]int(nil), seeds...)
		}
	}
}

// WithMaxSequences bounds candidates per problem.
func WithMaxSequences(n int) Option {
	return func(b *Builder) {
		if n > 0 {
			b.maxPerProblem = n
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(b *Builder) {
		if now != nil {
			b.now = now
		}
	}
}

// NewBuilder creates a Builder writing job directories under dataDir.
func NewBuilder(catalog Catalog, dataDir string, opts ...Option) *Builder {
	b := &Builder{
		catalog:       catalog,
		dataDir:       dataDir,
		seeds:         []int{1, 2, 3, 4, 5},
		maxPerProblem: 5,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Plan builds one pending job per (problem, candidate) of sub.
// Any unknown or closed problem rejects the whole submission.
func (b *Builder) Plan(sub model.Submission) ([]Planned, error) {
	problemIDs := make([]string, 0, len(sub.Sequences))
	for id, seqs := range sub.Sequences {
		if len(seqs) > 0 {
			problemIDs = append(problemIDs, id)
		}
	}
	if len(problemIDs) == 0 {
		return nil, ErrEmptySubmission
	}
	sort.Strings(problemIDs)

	problems := make(map[string]model.Problem, len(problemIDs))
	for _, id := range problemIDs {
		p, session, ok := b.catalog.Problem(id)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownProblem, id)
		}
		if !session.Status.AcceptsSubmissions() {
			return nil, fmt.Errorf("%w: %s (session %s is %s)", ErrProblemClosed, id, session.Key, session.Status)
		}
		if n := len(sub.Sequences[id]); n > b.maxPerProblem {
			return nil, fmt.Errorf("%w: %s has %d, maximum is %d", ErrTooManySequences, id, n, b.maxPerProblem)
		}
		problems[id] = p
	}

	now := b.now().UTC()
	planned := make([]Planned, 0, sub.JobCount())
	for _, id := range problemIDs {
		for i, seq := range sub.Sequences[id] {
			job := model.Job{
				ID:            model.JobID(sub.ID, id, i+1),
				SubmissionID:  sub.ID,
				ParticipantID: sub.ParticipantID,
				ProblemID:     id,
				Candidate:     i + 1,
				Sequence:      seq,
				State:         model.JobPending,
				Attempts:      1,
				CreatedAt:     now,
				UpdatedAt:     now,
			}
			p, err := b.prepare(job, problems[id])
			if err != nil {
				return nil, fmt.Errorf("%s: %w", job.ID, err)
			}
			planned = append(planned, p)
		}
	}
	return planned, nil
}

// Rebuild prepares the next attempt of a job whose prediction failed.
func (b *Builder) Rebuild(job model.Job) (Planned, error) {
	p, _, ok := b.catalog.Problem(job.ProblemID)
	if !ok {
		return Planned{}, fmt.Errorf("%w: %s", ErrUnknownProblem, job.ProblemID)
	}
	job.Attempts++
	job.State = model.JobPending
	job.ExternalID = ""
	job.ArtifactPath = ""
	job.UnknownSince = nil
	job.SchedulerDoneAt = nil
	job.UpdatedAt = b.now().UTC()
	return b.prepare(job, p)
}

func (b *Builder) prepare(job model.Job, p model.Problem) (Planned, error) {
	d, err := New(job.ID, p, job.Sequence, b.seeds)
	if err != nil {
		return Planned{}, err
	}
	raw, err := d.Marshal()
	if err != nil {
		return Planned{}, err
	}
	dir := b.JobDir(job.SubmissionID, job.ProblemID, job.Candidate, job.Attempts)
	job.Descriptor = raw
	job.DescriptorPath = filepath.Join(dir, descriptorFile)
	job.OutputDir = filepath.Join(dir, outputDir)
	return Planned{Job: job, Descriptor: d}, nil
}

// JobDir is the working directory of one attempt.
func (b *Builder) JobDir(submissionID, problemID string, candidate, attempt int) string {
	return filepath.Join(b.dataDir, "jobs", submissionID, problemID,
		fmt.Sprintf("seq%d", candidate), fmt.Sprintf("attempt%d", attempt))
}

// Materialize writes the descriptor and creates the output and log directories.
func (b *Builder) Materialize(p Planned) error {
	dir := filepath.Dir(p.Job.DescriptorPath)
	for _, d := range []string{dir, p.Job.OutputDir, filepath.Join(dir, logsDir)} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return fmt.Errorf("materialize %s: %w", p.Job.ID, err)
		}
	}
	tmp := p.Job.DescriptorPath + ".tmp"
	if err := os.WriteFile(tmp, p.Job.Descriptor, 0o644); err != nil {
		return fmt.Errorf("materialize %s: %w", p.Job.ID, err)
	}
	if err := os.Rename(tmp, p.Job.DescriptorPath); err != nil {
		return fmt.Errorf("materialize %s: %w", p.Job.ID, err)
	}
	return nil
}

// LogsDir returns the log directory next to a job descriptor.
func LogsDir(job model.Job) string {
	return filepath.Join(filepath.Dir(job.DescriptorPath), logsDir)
}
