package service

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/okian/foldboard/internal/adapters/artifact"
	"github.com/okian/foldboard/internal/adapters/repository"
	"github.com/okian/foldboard/internal/domain/evaluate"
	"github.com/okian/foldboard/internal/domain/model"
	"github.com/okian/foldboard/pkg/logger"
	"github.com/okian/foldboard/pkg/metrics"
)

const (
	tokenBytes   = 24
	metadataFile = "metadata.json"
)

// Participant facing explanations of terminal failures.
var failureNotices = map[model.FailureReason]string{
	model.ReasonTimeout:          "The prediction did not finish in time. Please try again later.",
	model.ReasonPredictionFailed: "The prediction could not be completed. Please try again later.",
	model.ReasonEvaluationError:  "The predicted structure could not be scored.",
	model.ReasonInvalidInput:     "The sequence could not be processed.",
}

// ResultArtifact is the metadata.json published for a submission.
type ResultArtifact struct {
	Token        string            `json:"token"`
	SubmissionID string            `json:"submission_id"`
	Participant  string            `json:"participant"`
	SubmittedAt  time.Time         `json:"submitted_at"`
	PublishedAt  time.Time         `json:"published_at"`
	ViewerURL    string            `json:"viewer_url"`
	Notice       string            `json:"notice,omitempty"`
	Candidates   []CandidateResult `json:"candidates"`
}

// CandidateResult is one job's entry in a result artifact.
type CandidateResult struct {
	ProblemID     string             `json:"problem_id"`
	ProblemName   string             `json:"problem_name,omitempty"`
	Candidate     int                `json:"candidate"`
	Sequence      string             `json:"sequence"`
	Status        string             `json:"status"`
	Reason        string             `json:"reason,omitempty"`
	Message       string             `json:"message,omitempty"`
	Metrics       map[string]float64 `json:"metrics,omitempty"`
	ChainPairIPTM [][]float64        `json:"chain_pair_iptm,omitempty"`
	Files         map[string]string  `json:"files,omitempty"`
}

// NewToken returns 24 random bytes, base64url encoded.
func NewToken() (string, error) {
	b := make([]byte, tokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// PublishPass publishes every submission whose jobs have all settled, then
// rebuilds the leaderboards of the sessions it touched.
func (s *Service) PublishPass(ctx context.Context) (Report, error) {
	jobs, err := s.store.JobsByState(ctx, model.JobEvaluated, model.JobFailed)
	if err != nil {
		return Report{}, err
	}
	log := s.logger.Named("publisher")

	var ids []string
	seen := map[string]bool{}
	pending := map[string]bool{}
	for _, j := range jobs {
		if j.State == model.JobEvaluated {
			pending[j.SubmissionID] = true
		}
		if !seen[j.SubmissionID] {
			seen[j.SubmissionID] = true
			ids = append(ids, j.SubmissionID)
		}
	}

	var rep Report
	sessions := map[string]bool{}
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return rep, err
		}
		sub, err := s.store.Submission(ctx, id)
		if err != nil {
			rep.Errors++
			log.Warn(ctx, "load submission", logger.String("submission_id", id), logger.Error(err))
			continue
		}
		// failed jobs of an already published submission need nothing
		if sub.PublishedAt != nil && !pending[id] {
			continue
		}
		rep.Seen++
		touched, published, err := s.publish(ctx, log, sub)
		if err != nil {
			rep.Errors++
			metrics.RecordPublish("error")
			log.Warn(ctx, "publish failed", logger.String("submission_id", id), logger.Error(err))
			continue
		}
		if published {
			rep.Changed++
			metrics.RecordPublish("ok")
		}
		for _, k := range touched {
			sessions[k] = true
		}
	}

	keys := make([]string, 0, len(sessions))
	for k := range sessions {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if _, err := s.Aggregate(ctx, k); err != nil {
			rep.Errors++
			log.Warn(ctx, "leaderboard rebuild failed", logger.String("session", k), logger.Error(err))
		}
	}
	return rep, nil
}

// publish writes the result artifact once every job of sub has settled and
// marks evaluated jobs published. It returns the sessions whose leaderboards
// changed.
func (s *Service) publish(ctx context.Context, log logger.Logger, sub model.Submission) ([]string, bool, error) {
	jobs, err := s.store.JobsBySubmission(ctx, sub.ID)
	if err != nil {
		return nil, false, err
	}
	for _, j := range jobs {
		if !j.State.IsSettled() {
			return nil, false, nil
		}
	}

	sub, err = s.ensureToken(ctx, sub)
	if err != nil {
		return nil, false, err
	}
	art, err := s.writeArtifact(ctx, sub, jobs)
	if err != nil {
		return nil, false, err
	}

	var sessions []string
	seenSession := map[string]bool{}
	evaluated, failed := 0, 0
	for _, j := range jobs {
		switch j.State {
		case model.JobFailed:
			failed++
			continue
		case model.JobEvaluated:
			if _, _, err := s.transition(ctx, j, model.JobPublished, model.Observation{}); err != nil {
				return nil, false, err
			}
		}
		evaluated++
		if _, session, ok := s.catalog.Problem(j.ProblemID); ok && !seenSession[session.Key] {
			seenSession[session.Key] = true
			sessions = append(sessions, session.Key)
		}
	}

	log.Info(ctx, "results published",
		logger.String("submission_id", sub.ID),
		logger.Int("evaluated", evaluated),
		logger.Int("failed", failed),
	)
	s.notifier.ResultsReady(ctx, sub, art.ViewerURL, evaluated, failed)
	return sessions, true, nil
}

// ensureToken mints the submission's token once. A concurrent publisher that
// won the race keeps its token.
func (s *Service) ensureToken(ctx context.Context, sub model.Submission) (model.Submission, error) {
	if sub.ResultToken != "" {
		return sub, nil
	}
	token, err := NewToken()
	if err != nil {
		return sub, err
	}
	updated, err := s.store.SetResultToken(ctx, sub.ID, token, s.now())
	if errors.Is(err, repository.ErrConflict) {
		return s.store.Submission(ctx, sub.ID)
	}
	return updated, err
}

// writeArtifact copies structures and confidences and writes metadata.json last.
func (s *Service) writeArtifact(ctx context.Context, sub model.Submission, jobs []model.Job) (ResultArtifact, error) {
	ids := make([]string, len(jobs))
	for i, j := range jobs {
		ids[i] = j.ID
	}
	results, err := s.store.LatestEvaluations(ctx, ids)
	if err != nil {
		return ResultArtifact{}, err
	}

	art := ResultArtifact{
		Token:        sub.ResultToken,
		SubmissionID: sub.ID,
		Participant:  sub.ParticipantID,
		SubmittedAt:  sub.SubmittedAt,
		PublishedAt:  s.now().UTC(),
		ViewerURL:    s.ResultURL(sub.ResultToken),
		Candidates:   make([]CandidateResult, 0, len(jobs)),
	}
	if sub.PublishedAt != nil {
		art.PublishedAt = sub.PublishedAt.UTC()
	}

	evaluated := 0
	for _, j := range jobs {
		c := CandidateResult{
			ProblemID: j.ProblemID,
			Candidate: j.Candidate,
			Sequence:  j.Sequence,
		}
		if p, _, ok := s.catalog.Problem(j.ProblemID); ok {
			c.ProblemName = p.Name
		}
		r, hasResult := results[j.ID]
		if j.State == model.JobFailed || !hasResult {
			reason := j.FailureReason
			if reason == model.ReasonNone {
				reason = model.ReasonEvaluationError
			}
			c.Status = string(model.JobFailed)
			c.Reason = string(reason)
			c.Message = failureNotices[reason]
			art.Candidates = append(art.Candidates, c)
			continue
		}
		evaluated++
		c.Status = string(model.JobEvaluated)
		c.Metrics = r.Metrics
		c.ChainPairIPTM = r.ChainPairIPTM
		files, err := s.copyFiles(ctx, sub, j)
		if err != nil {
			return ResultArtifact{}, err
		}
		c.Files = files
		art.Candidates = append(art.Candidates, c)
	}
	if evaluated == 0 {
		art.Notice = "None of the submitted sequences produced a scored structure. Please check the messages below and submit again."
	}

	raw, err := json.MarshalIndent(art, "", "  ")
	if err != nil {
		return ResultArtifact{}, err
	}
	if err := artifact.PutBytes(ctx, s.sink, artifact.ResultKey(sub.ResultToken, metadataFile), raw); err != nil {
		return ResultArtifact{}, fmt.Errorf("write %s: %w", metadataFile, err)
	}
	return art, nil
}

// copyFiles publishes a job's structure and confidence files under
// participant-scoped names and returns kind -> public URL.
func (s *Service) copyFiles(ctx context.Context, sub model.Submission, j model.Job) (map[string]string, error) {
	if j.ArtifactPath == "" {
		return nil, nil
	}
	base := fmt.Sprintf("%s_%s_seq%d", sub.ParticipantID, j.ProblemID, j.Candidate)
	summary, full := evaluate.ConfidenceFiles(j.ArtifactPath)
	sources := []struct{ kind, path, name string }{
		{"structure", j.ArtifactPath, base + evaluate.ModelSuffix},
		{"summary_confidences", summary, base + evaluate.SummaryConfidenceSuffix},
		{"confidences", full, base + evaluate.ConfidenceSuffix},
	}
	files := map[string]string{}
	for _, src := range sources {
		err := artifact.PutFile(ctx, s.sink, artifact.ResultKey(sub.ResultToken, src.name), src.path)
		if err != nil {
			if src.kind == "structure" {
				return nil, fmt.Errorf("copy %s: %w", filepath.Base(src.path), err)
			}
			continue
		}
		files[src.kind] = s.ResultURL(sub.ResultToken) + src.name
	}
	return files, nil
}

// ResultURL is the public address of a token's result directory.
func (s *Service) ResultURL(token string) string {
	return strings.TrimRight(s.baseURL, "/") + "/results/" + token + "/"
}

// Result returns the published metadata for token.
func (s *Service) Result(ctx context.Context, token string) ([]byte, error) {
	return s.ResultFile(ctx, token, metadataFile)
}

// ResultFile returns one file of a token's result artifact.
func (s *Service) ResultFile(ctx context.Context, token, name string) ([]byte, error) {
	if token == "" || name == "" || strings.ContainsAny(name, `/\`) || strings.HasPrefix(name, ".") {
		return nil, ErrTokenNotFound
	}
	if _, err := s.store.SubmissionByToken(ctx, token); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrTokenNotFound
		}
		return nil, err
	}
	b, err := s.sink.Get(ctx, artifact.ResultKey(token, name))
	if errors.Is(err, artifact.ErrNotFound) {
		return nil, ErrTokenNotFound
	}
	return b, err
}
