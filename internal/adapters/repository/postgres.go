package repository

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sethvargo/go-retry"

	"github.com/okian/foldboard/internal/domain/model"
)

//go:embed schema.sql
var schema string

const uniqueViolation = "23505"

const jobColumns = `id, submission_id, participant_id, problem_id, candidate, sequence, state, attempts,
	external_id, failure_reason, failure_detail, descriptor, descriptor_path, output_dir, artifact_path,
	created_at, updated_at, first_queued_at, unknown_since, scheduler_done_at`

const submissionColumns = `id, participant_id, contact, submitted_at, sequences, result_token, published_at`

// PostgresConfig holds pool settings.
type PostgresConfig struct {
	DSN         string
	MaxConns    int32
	MaxLifetime time.Duration
}

// PostgresStore implements Store on PostgreSQL. Job transitions lock the job
// row, check the expected state and write back in one transaction.
type PostgresStore struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore connects, retrying while the database comes up, and applies the schema.
func NewPostgresStore(ctx context.Context, cfg PostgresConfig) (*PostgresStore, error) {
	pcfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		pcfg.MaxConns = cfg.MaxConns
	}
	if cfg.MaxLifetime > 0 {
		pcfg.MaxConnLifetime = cfg.MaxLifetime
	}

	var pool *pgxpool.Pool
	backoff := retry.WithMaxRetries(5, retry.NewExponential(500*time.Millisecond))
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		p, err := pgxpool.NewWithConfig(ctx, pcfg)
		if err != nil {
			return retry.RetryableError(err)
		}
		if err := p.Ping(ctx); err != nil {
			p.Close()
			return retry.RetryableError(err)
		}
		pool = p
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &PostgresStore{pool: pool, now: time.Now}, nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) CreateSubmission(ctx context.Context, sub model.Submission, jobs []model.Job) error {
	seqs, err := json.Marshal(sub.Sequences)
	if err != nil {
		return fmt.Errorf("encode sequences: %w", err)
	}
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `INSERT INTO submissions (`+submissionColumns+`)
			VALUES ($1, $2, $3, $4, $5, NULL, NULL)`,
			sub.ID, sub.ParticipantID, sub.Contact, sub.SubmittedAt.UTC(), seqs)
		if err != nil {
			return classify(fmt.Sprintf("submission %s", sub.ID), err)
		}
		batch := &pgx.Batch{}
		for _, j := range jobs {
			batch.Queue(`INSERT INTO jobs (`+jobColumns+`)
				VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20)`, jobArgs(j)...)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return classify(fmt.Sprintf("jobs of %s", sub.ID), err)
		}
		return nil
	})
}

func (s *PostgresStore) Submission(ctx context.Context, id string) (model.Submission, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+submissionColumns+` FROM submissions WHERE id = $1`, id)
	sub, err := scanSubmission(row)
	if err != nil {
		return model.Submission{}, classify("submission "+id, err)
	}
	return sub, nil
}

func (s *PostgresStore) SubmissionByToken(ctx context.Context, token string) (model.Submission, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+submissionColumns+` FROM submissions WHERE result_token = $1`, token)
	sub, err := scanSubmission(row)
	if err != nil {
		return model.Submission{}, classify("token", err)
	}
	return sub, nil
}

func (s *PostgresStore) Submissions(ctx context.Context) ([]model.Submission, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+submissionColumns+` FROM submissions ORDER BY submitted_at, id`)
	if err != nil {
		return nil, fmt.Errorf("query submissions: %w", err)
	}
	defer rows.Close()
	var out []model.Submission
	for rows.Next() {
		sub, err := scanSubmission(rows)
		if err != nil {
			return nil, fmt.Errorf("scan submission: %w", err)
		}
		out = append(out, sub)
	}
	return out, rows.Err()
}

func (s *PostgresStore) SetResultToken(ctx context.Context, submissionID, token string, at time.Time) (model.Submission, error) {
	var sub model.Submission
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `SELECT `+submissionColumns+` FROM submissions WHERE id = $1 FOR UPDATE`, submissionID)
		cur, err := scanSubmission(row)
		if err != nil {
			return classify("submission "+submissionID, err)
		}
		if cur.ResultToken != "" {
			if cur.ResultToken != token {
				return fmt.Errorf("submission %s token: %w", submissionID, ErrConflict)
			}
			sub = cur
			return nil
		}
		at = at.UTC()
		if _, err := tx.Exec(ctx, `UPDATE submissions SET result_token = $2, published_at = $3 WHERE id = $1`,
			submissionID, token, at); err != nil {
			return classify("token", err)
		}
		cur.ResultToken, cur.PublishedAt = token, &at
		sub = cur
		return nil
	})
	return sub, err
}

func (s *PostgresStore) ProblemHasSubmissions(ctx context.Context, problemID string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM jobs WHERE problem_id = $1)`, problemID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("query problem usage: %w", err)
	}
	return exists, nil
}

func (s *PostgresStore) Job(ctx context.Context, id string) (model.Job, error) {
	j, err := scanJob(s.pool.QueryRow(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = $1`, id))
	if err != nil {
		return model.Job{}, classify("job "+id, err)
	}
	return j, nil
}

func (s *PostgresStore) JobsBySubmission(ctx context.Context, submissionID string) ([]model.Job, error) {
	jobs, err := s.queryJobs(ctx, `SELECT `+jobColumns+` FROM jobs WHERE submission_id = $1 ORDER BY created_at, id`, submissionID)
	if err != nil {
		return nil, err
	}
	if len(jobs) == 0 {
		return nil, fmt.Errorf("submission %s: %w", submissionID, ErrNotFound)
	}
	return jobs, nil
}

func (s *PostgresStore) JobsByState(ctx context.Context, states ...model.JobState) ([]model.Job, error) {
	names := make([]string, len(states))
	for i, st := range states {
		names[i] = string(st)
	}
	return s.queryJobs(ctx, `SELECT `+jobColumns+` FROM jobs WHERE state = ANY($1) ORDER BY created_at, id`, names)
}

func (s *PostgresStore) CountByState(ctx context.Context) (map[model.JobState]int, error) {
	rows, err := s.pool.Query(ctx, `SELECT state, count(*) FROM jobs GROUP BY state`)
	if err != nil {
		return nil, fmt.Errorf("count jobs: %w", err)
	}
	defer rows.Close()
	counts := make(map[model.JobState]int, len(model.AllJobStates))
	for _, st := range model.AllJobStates {
		counts[st] = 0
	}
	for rows.Next() {
		var (
			state string
			n     int
		)
		if err := rows.Scan(&state, &n); err != nil {
			return nil, fmt.Errorf("scan count: %w", err)
		}
		counts[model.JobState(state)] = n
	}
	return counts, rows.Err()
}

func (s *PostgresStore) Transition(ctx context.Context, id string, from, to model.JobState, obs model.Observation) (model.Job, error) {
	return s.update(ctx, id, func(j *model.Job, now time.Time) error {
		return applyTransition(j, from, to, obs, now)
	})
}

func (s *PostgresStore) Annotate(ctx context.Context, id string, state model.JobState, obs model.Observation) (model.Job, error) {
	return s.update(ctx, id, func(j *model.Job, now time.Time) error {
		return applyAnnotation(j, state, obs, now)
	})
}

func (s *PostgresStore) Retry(ctx context.Context, next model.Job) (model.Job, error) {
	return s.update(ctx, next.ID, func(j *model.Job, now time.Time) error {
		return applyRetry(j, next, now)
	})
}

func (s *PostgresStore) update(ctx context.Context, id string, fn func(*model.Job, time.Time) error) (model.Job, error) {
	var out model.Job
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		j, err := lockJob(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := fn(&j, s.now().UTC()); err != nil {
			return err
		}
		if err := saveJob(ctx, tx, j); err != nil {
			return err
		}
		out = j
		return nil
	})
	return out, err
}

// lockJob reads a job row and holds its lock until tx ends. The row lock also
// serializes revision numbering of the job's evaluations.
func lockJob(ctx context.Context, tx pgx.Tx, id string) (model.Job, error) {
	j, err := scanJob(tx.QueryRow(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return model.Job{}, classify("job "+id, err)
	}
	return j, nil
}

func saveJob(ctx context.Context, tx pgx.Tx, j model.Job) error {
	_, err := tx.Exec(ctx, `UPDATE jobs SET state = $2, attempts = $3, external_id = $4, failure_reason = $5,
		failure_detail = $6, descriptor = $7, descriptor_path = $8, output_dir = $9, artifact_path = $10,
		updated_at = $11, first_queued_at = $12, unknown_since = $13, scheduler_done_at = $14
		WHERE id = $1`,
		j.ID, string(j.State), j.Attempts, j.ExternalID, string(j.FailureReason),
		j.FailureDetail, j.Descriptor, j.DescriptorPath, j.OutputDir, j.ArtifactPath,
		j.UpdatedAt, j.FirstQueuedAt, j.UnknownSince, j.SchedulerDoneAt)
	if err != nil {
		return fmt.Errorf("update job %s: %w", j.ID, err)
	}
	return nil
}

func (s *PostgresStore) CommitEvaluation(ctx context.Context, r model.EvaluationResult) (model.Job, model.EvaluationResult, error) {
	var job model.Job
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		j, err := lockJob(ctx, tx, r.JobID)
		if err != nil {
			return err
		}
		if err := applyTransition(&j, model.JobSucceeded, model.JobEvaluated, model.Observation{}, s.now().UTC()); err != nil {
			return err
		}
		if r, err = insertEvaluation(ctx, tx, r); err != nil {
			return err
		}
		if err := saveJob(ctx, tx, j); err != nil {
			return err
		}
		job = j
		return nil
	})
	if err != nil {
		return model.Job{}, model.EvaluationResult{}, err
	}
	return job, r, nil
}

func (s *PostgresStore) AddEvaluation(ctx context.Context, r model.EvaluationResult) (model.EvaluationResult, error) {
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := lockJob(ctx, tx, r.JobID); err != nil {
			return err
		}
		var err error
		r, err = insertEvaluation(ctx, tx, r)
		return err
	})
	if err != nil {
		return model.EvaluationResult{}, err
	}
	return r, nil
}

// insertEvaluation writes r under the next revision; the caller holds the job row lock.
func insertEvaluation(ctx context.Context, tx pgx.Tx, r model.EvaluationResult) (model.EvaluationResult, error) {
	metrics, err := json.Marshal(r.Metrics)
	if err != nil {
		return r, fmt.Errorf("encode metrics: %w", err)
	}
	var pairs []byte
	if r.ChainPairIPTM != nil {
		if pairs, err = json.Marshal(r.ChainPairIPTM); err != nil {
			return r, fmt.Errorf("encode chain pair iptm: %w", err)
		}
	}
	if err := tx.QueryRow(ctx, `SELECT COALESCE(MAX(revision), 0) + 1 FROM evaluations WHERE job_id = $1`,
		r.JobID).Scan(&r.Revision); err != nil {
		return r, fmt.Errorf("next revision: %w", err)
	}
	_, err = tx.Exec(ctx, `INSERT INTO evaluations (job_id, revision, metrics, chain_pair_iptm, aligner, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`, r.JobID, r.Revision, metrics, pairs, r.Aligner, r.CreatedAt.UTC())
	if err != nil {
		return r, classify("evaluation "+r.JobID, err)
	}
	return r, nil
}

func (s *PostgresStore) LatestEvaluations(ctx context.Context, jobIDs []string) (map[string]model.EvaluationResult, error) {
	out := make(map[string]model.EvaluationResult, len(jobIDs))
	if len(jobIDs) == 0 {
		return out, nil
	}
	rows, err := s.pool.Query(ctx, `SELECT DISTINCT ON (job_id) job_id, revision, metrics, chain_pair_iptm, aligner, created_at
		FROM evaluations WHERE job_id = ANY($1) ORDER BY job_id, revision DESC`, jobIDs)
	if err != nil {
		return nil, fmt.Errorf("query evaluations: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			r       model.EvaluationResult
			metrics []byte
			pairs   []byte
		)
		if err := rows.Scan(&r.JobID, &r.Revision, &metrics, &pairs, &r.Aligner, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan evaluation: %w", err)
		}
		if err := decodeResult(&r, metrics, pairs); err != nil {
			return nil, err
		}
		out[r.JobID] = r
	}
	return out, rows.Err()
}

func (s *PostgresStore) queryJobs(ctx context.Context, sql string, args ...any) ([]model.Job, error) {
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query jobs: %w", err)
	}
	defer rows.Close()
	var out []model.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

// classify maps driver errors onto the package sentinels.
func classify(what string, err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return fmt.Errorf("%s: %w", what, ErrConflict)
	}
	return fmt.Errorf("%s: %w", what, err)
}
