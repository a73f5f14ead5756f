// Package leaderboard rebuilds per-session rankings from evaluated jobs.
//
// A build is a pure function of its input: the same jobs and results always
// produce byte-identical output.
package leaderboard

import (
	"bytes"
	"encoding/json"
	"math"
	"sort"
	"time"

	"github.com/okian/foldboard/internal/domain/model"
)

// Scored is an evaluated job together with its submission time.
type Scored struct {
	Job         model.Job
	SubmittedAt time.Time
	Result      model.EvaluationResult
}

// Aggregator builds leaderboards. Weights scale each problem's z-score in the
// overall ranking; problems without a weight count once.
type Aggregator struct {
	weights map[string]float64
}

// New returns an Aggregator with the given per-problem weights.
func New(weights map[string]float64) *Aggregator {
	w := make(map[string]float64, len(weights))
	for k, v := range weights {
		w[k] = v
	}
	return &Aggregator{weights: w}
}

func (a *Aggregator) weight(problem string) float64 {
	if w, ok := a.weights[problem]; ok {
		return w
	}
	return 1
}

type best struct {
	participant string
	value       float64
	at          time.Time
	job         model.Job
}

// Build ranks the session's problems. Only jobs in evaluated or published state
// count, and for each job only its highest result revision.
func (a *Aggregator) Build(session model.Session, problems []model.Problem, scored []Scored) model.Leaderboard {
	byID := make(map[string]model.Problem, len(problems))
	for _, p := range problems {
		byID[p.ID] = p
	}
	ids := make([]string, 0, len(session.Problems))
	for _, id := range session.Problems {
		if _, ok := byID[id]; ok {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)

	latest := latestResults(scored)

	lb := model.Leaderboard{
		Session:  session.Key,
		Name:     session.Name,
		Problems: make([]model.ProblemBoard, 0, len(ids)),
	}
	overall := map[string]*model.OverallEntry{}

	for _, id := range ids {
		p := byID[id]
		bests := bestPerParticipant(p, latest)
		board := problemBoard(p, bests)
		lb.Problems = append(lb.Problems, board)

		for _, e := range board.Entries {
			o, ok := overall[e.Participant]
			if !ok {
				o = &model.OverallEntry{Participant: e.Participant, ZScores: map[string]float64{}}
				overall[e.Participant] = o
			}
			o.ZScores[id] = e.ZScore
			o.Problems++
		}
	}

	lb.Overall = make([]model.OverallEntry, 0, len(overall))
	for _, o := range overall {
		// sum in problem order so the float result does not depend on map order
		sum := 0.0
		for _, id := range ids {
			if z, ok := o.ZScores[id]; ok {
				sum += a.weight(id) * z
			}
		}
		o.Score = round6(sum)
		lb.Overall = append(lb.Overall, *o)
	}
	sort.Slice(lb.Overall, func(i, j int) bool {
		if lb.Overall[i].Score != lb.Overall[j].Score {
			return lb.Overall[i].Score > lb.Overall[j].Score
		}
		return lb.Overall[i].Participant < lb.Overall[j].Participant
	})
	for i := range lb.Overall {
		lb.Overall[i].Rank = i + 1
		if i > 0 && lb.Overall[i].Score == lb.Overall[i-1].Score {
			lb.Overall[i].Rank = lb.Overall[i-1].Rank
		}
	}
	return lb
}

func latestResults(scored []Scored) []Scored {
	idx := map[string]int{}
	var out []Scored
	for _, s := range scored {
		if s.Job.State != model.JobPublished {
			continue
		}
		if i, ok := idx[s.Job.ID]; ok {
			if s.Result.Revision > out[i].Result.Revision {
				out[i] = s
			}
			continue
		}
		idx[s.Job.ID] = len(out)
		out = append(out, s)
	}
	return out
}

// bestPerParticipant keeps each participant's highest value on p; the earliest
// submission wins ties, then the lowest job id.
func bestPerParticipant(p model.Problem, scored []Scored) []best {
	byParticipant := map[string]best{}
	for _, s := range scored {
		if s.Job.ProblemID != p.ID {
			continue
		}
		v, ok := PrimaryValue(p, s.Result)
		if !ok || math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		cand := best{participant: s.Job.ParticipantID, value: v, at: s.SubmittedAt, job: s.Job}
		cur, ok := byParticipant[cand.participant]
		if !ok || better(cand, cur) {
			byParticipant[cand.participant] = cand
		}
	}
	out := make([]best, 0, len(byParticipant))
	for _, b := range byParticipant {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].participant < out[j].participant })
	return out
}

func better(a, b best) bool {
	if a.value != b.value {
		return a.value > b.value
	}
	if !a.at.Equal(b.at) {
		return a.at.Before(b.at)
	}
	return a.job.ID < b.job.ID
}

// problemBoard computes population z-scores over the participants with a result.
func problemBoard(p model.Problem, bests []best) model.ProblemBoard {
	board := model.ProblemBoard{
		ProblemID: p.ID,
		Name:      p.Name,
		Metric:    MetricName(p),
		Entries:   make([]model.LeaderboardEntry, 0, len(bests)),
	}
	if len(bests) == 0 {
		return board
	}

	mean := 0.0
	for _, b := range bests {
		mean += b.value
	}
	mean /= float64(len(bests))
	variance := 0.0
	for _, b := range bests {
		variance += (b.value - mean) * (b.value - mean)
	}
	std := math.Sqrt(variance / float64(len(bests)))
	board.Mean, board.StdDev = round6(mean), round6(std)

	for _, b := range bests {
		z := 0.0
		if board.StdDev > 0 {
			z = (b.value - mean) / std
		}
		board.Entries = append(board.Entries, model.LeaderboardEntry{
			Participant:  b.participant,
			Value:        b.value,
			ZScore:       round6(z),
			JobID:        b.job.ID,
			SubmissionID: b.job.SubmissionID,
			SubmittedAt:  b.at.UTC(),
		})
	}
	sort.Slice(board.Entries, func(i, j int) bool {
		if board.Entries[i].Value != board.Entries[j].Value {
			return board.Entries[i].Value > board.Entries[j].Value
		}
		return board.Entries[i].Participant < board.Entries[j].Participant
	})
	for i := range board.Entries {
		board.Entries[i].Rank = i + 1
		if i > 0 && board.Entries[i].Value == board.Entries[i-1].Value {
			board.Entries[i].Rank = board.Entries[i-1].Rank
		}
	}
	return board
}

func round6(v float64) float64 {
	r := math.Round(v*1e6) / 1e6
	if r == 0 {
		return 0 // drop negative zero
	}
	return r
}

// Encode renders a leaderboard as indented JSON. Map keys are sorted by
// encoding/json, so equal leaderboards encode to equal bytes.
func Encode(lb model.Leaderboard) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "  ")
	if err := enc.Encode(lb); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
