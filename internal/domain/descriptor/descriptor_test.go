package descriptor_test

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/smartystreets/goconvey/convey"

	"github.com/okian/foldboard/internal/domain/descriptor"
	"github.com/okian/foldboard/internal/domain/model"
)

type entry struct {
	problem model.Problem
	session model.Session
}

type fakeCatalog map[string]entry

func (f fakeCatalog) Problem(id string) (model.Problem, model.Session, bool) {
	e, ok := f[id]
	return e.problem, e.session, ok
}

func testCatalog() fakeCatalog {
	active := model.Session{Key: "spring", Status: model.SessionActive}
	archived := model.Session{Key: "winter", Status: model.SessionArchived}
	return fakeCatalog{
		"problem_1": {model.Problem{ID: "problem_1", Type: model.ProblemMonomer, MSAMode: model.MSANone, Session: "spring"}, active},
		"problem_2": {model.Problem{
			ID: "problem_2", Type: model.ProblemBinder, MSAMode: model.MSAPrecomputed,
			TargetMSAFile: "/msa/target.a3m", TargetSequence: "GSHMKKLLEE", Session: "spring",
		}, active},
		"problem_0": {model.Problem{ID: "problem_0", Type: model.ProblemMonomer, Session: "winter"}, archived},
	}
}

func TestSubmissionID(t *testing.T) {
	convey.Convey("Submission ids combine slug, base36 time and a random suffix", t, func() {
		at := time.Unix(1_700_000_000, 0)
		id := descriptor.SubmissionID("Alice-Lab", at)
		convey.So(id, convey.ShouldStartWith, "alice-lab_")
		convey.So(regexp.MustCompile(`^alice-lab_[0-9a-z]+_[0-9a-z]{4}$`).MatchString(id), convey.ShouldBeTrue)
		convey.So(id, convey.ShouldContainSubstring, "_s44we8_")

		seen := map[string]bool{}
		for i := 0; i < 50; i++ {
			seen[descriptor.SubmissionID("Alice-Lab", at)] = true
		}
		convey.So(len(seen), convey.ShouldBeGreaterThan, 1)
	})
}

func TestDescriptor(t *testing.T) {
	convey.Convey("Given problem definitions", t, func() {
		cat := testCatalog()

		convey.Convey("A monomer with msa none gets an empty unpaired MSA path", func() {
			p, _, _ := cat.Problem("problem_1")
			d, err := descriptor.New("job", p, "MKTLLILAVVAAALA", []int{1, 2})
			convey.So(err, convey.ShouldBeNil)
			raw, _ := d.Marshal()
			var doc map[string]any
			convey.So(json.Unmarshal(raw, &doc), convey.ShouldBeNil)
			convey.So(doc["dialect"], convey.ShouldEqual, "alphafold3")
			convey.So(doc["version"], convey.ShouldEqual, 1)
			chain := doc["sequences"].([]any)[0].(map[string]any)["protein"].(map[string]any)
			convey.So(chain["id"], convey.ShouldEqual, "A")
			convey.So(chain["unpairedMsaPath"], convey.ShouldEqual, "")
		})

		convey.Convey("Search mode omits the MSA field", func() {
			p, _, _ := cat.Problem("problem_1")
			p.MSAMode = model.MSASearch
			d, _ := descriptor.New("job", p, "MKTLLILAVVAAALA", []int{1})
			raw, _ := d.Marshal()
			convey.So(string(raw), convey.ShouldNotContainSubstring, "unpairedMsaPath")
		})

		convey.Convey("A binder adds the target chain with its precomputed MSA", func() {
			p, _, _ := cat.Problem("problem_2")
			d, err := descriptor.New("job", p, "MKTLLILAVVAAALA", []int{1})
			convey.So(err, convey.ShouldBeNil)
			convey.So(d.Sequences, convey.ShouldHaveLength, 2)
			convey.So(*d.Sequences[0].Protein.UnpairedMSAPath, convey.ShouldEqual, "")
			convey.So(d.Sequences[1].Protein.ID, convey.ShouldEqual, "B")
			convey.So(*d.Sequences[1].Protein.UnpairedMSAPath, convey.ShouldEqual, "/msa/target.a3m")

			p.TargetSequence = ""
			_, err = descriptor.New("job", p, "MKTLLILAVVAAALA", []int{1})
			convey.So(errors.Is(err, descriptor.ErrMissingTarget), convey.ShouldBeTrue)
		})
	})
}

func TestBuilder(t *testing.T) {
	convey.Convey("Given a builder", t, func() {
		dir := t.TempDir()
		now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
		b := descriptor.NewBuilder(testCatalog(), dir,
			descriptor.WithModelSeeds([]int{7}),
			descriptor.WithMaxSequences(2),
			descriptor.WithClock(func() time.Time { return now }))
		sub := model.Submission{ID: "alice_abc_x1y2", ParticipantID: "alice", Sequences: map[string][]string{
			"problem_1": {"MKTLLILAVVAAALA"},
			"problem_2": {"MKTLLILAVVAAALA", "GGGGGSSSSSAAAAA"},
		}}

		convey.Convey("Plan creates one pending job per candidate in a stable order", func() {
			planned, err := b.Plan(sub)
			convey.So(err, convey.ShouldBeNil)
			convey.So(planned, convey.ShouldHaveLength, 3)
			convey.So(planned[0].Job.ID, convey.ShouldEqual, "alice_abc_x1y2_problem_1_seq1")
			convey.So(planned[2].Job.ID, convey.ShouldEqual, "alice_abc_x1y2_problem_2_seq2")
			for _, p := range planned {
				convey.So(p.Job.State, convey.ShouldEqual, model.JobPending)
				convey.So(p.Job.Attempts, convey.ShouldEqual, 1)
				convey.So(p.Job.CreatedAt, convey.ShouldEqual, now)
				convey.So(p.Descriptor.ModelSeeds, convey.ShouldResemble, []int{7})
			}

			convey.Convey("Materialize writes the descriptor and directories", func() {
				convey.So(b.Materialize(planned[1]), convey.ShouldBeNil)
				raw, err := os.ReadFile(planned[1].Job.DescriptorPath)
				convey.So(err, convey.ShouldBeNil)
				d, err := descriptor.Parse(raw)
				convey.So(err, convey.ShouldBeNil)
				convey.So(d.Name, convey.ShouldEqual, planned[1].Job.ID)
				_, err = os.Stat(planned[1].Job.OutputDir)
				convey.So(err, convey.ShouldBeNil)
				_, err = os.Stat(descriptor.LogsDir(planned[1].Job))
				convey.So(err, convey.ShouldBeNil)
			})

			convey.Convey("Rebuild moves to a fresh attempt directory", func() {
				job := planned[0].Job
				job.State = model.JobRunning
				job.ExternalID = "123"
				next, err := b.Rebuild(job)
				convey.So(err, convey.ShouldBeNil)
				convey.So(next.Job.Attempts, convey.ShouldEqual, 2)
				convey.So(next.Job.State, convey.ShouldEqual, model.JobPending)
				convey.So(next.Job.ExternalID, convey.ShouldBeEmpty)
				convey.So(next.Job.DescriptorPath, convey.ShouldEqual,
					filepath.Join(dir, "jobs", sub.ID, "problem_1", "seq1", "attempt2", "input.json"))
			})
		})

		convey.Convey("An unknown problem rejects the whole submission", func() {
			sub.Sequences["problem_9"] = []string{"MKTLLILAVVAAALA"}
			planned, err := b.Plan(sub)
			convey.So(planned, convey.ShouldBeNil)
			convey.So(errors.Is(err, descriptor.ErrUnknownProblem), convey.ShouldBeTrue)
		})

		convey.Convey("An archived problem rejects the whole submission", func() {
			sub.Sequences["problem_0"] = []string{"MKTLLILAVVAAALA"}
			_, err := b.Plan(sub)
			convey.So(errors.Is(err, descriptor.ErrProblemClosed), convey.ShouldBeTrue)
		})

		convey.Convey("Too many candidates are rejected", func() {
			sub.Sequences["problem_1"] = []string{"MKTLLILAVVAAALA", "MKTLLILAVVAAALA", "MKTLLILAVVAAALA"}
			_, err := b.Plan(sub)
			convey.So(errors.Is(err, descriptor.ErrTooManySequences), convey.ShouldBeTrue)
		})

		convey.Convey("A submission without sequences is rejected", func() {
			_, err := b.Plan(model.Submission{ID: "x", Sequences: map[string][]string{"problem_1": {}}})
			convey.So(errors.Is(err, descriptor.ErrEmptySubmission), convey.ShouldBeTrue)
		})
	})
}
