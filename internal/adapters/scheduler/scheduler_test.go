package scheduler_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/smartystreets/goconvey/convey"

	"github.com/okian/foldboard/internal/adapters/command"
	"github.com/okian/foldboard/internal/adapters/scheduler"
	"github.com/okian/foldboard/pkg/logger"
)

// fakeExec answers each program with a canned result and records calls.
type fakeExec struct {
	mu      sync.Mutex
	calls   []*command.Command
	results map[string]*command.Result
	block   chan struct{}
}

func (f *fakeExec) Execute(ctx context.Context, cmd *command.Command) (*command.Result, error) {
	f.mu.Lock()
	f.calls = append(f.calls, cmd)
	res, ok := f.results[cmd.Program]
	block := f.block
	f.mu.Unlock()
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return &command.Result{ExitCode: -1}, nil
		}
	}
	if !ok {
		return nil, errors.New("no such program")
	}
	return res, nil
}

func (f *fakeExec) last() *command.Command {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[len(f.calls)-1]
}

func request(t *testing.T) scheduler.Request {
	dir := t.TempDir()
	return scheduler.Request{
		JobID:          "alice_x_ab12_problem_1_seq1",
		Participant:    "alice",
		DescriptorPath: filepath.Join(dir, "input.json"),
		OutputDir:      filepath.Join(dir, "output"),
		LogsDir:        filepath.Join(dir, "logs"),
	}
}

func TestSlurm(t *testing.T) {
	convey.Convey("Given a SLURM adapter", t, func() {
		exec := &fakeExec{results: map[string]*command.Result{}}
		s := scheduler.NewSlurm(scheduler.SlurmConfig{
			Partition: "gpu", Nice: 100, CPUs: 8, GPUs: 1,
			Exclude: []string{"node1", "node2"}, Predictor: "af3",
		}, exec)
		ctx := context.Background()
		req := request(t)

		convey.Convey("The script carries the resource directives", func() {
			script, err := s.Script(req)
			convey.So(err, convey.ShouldBeNil)
			convey.So(script, convey.ShouldContainSubstring, "#SBATCH -J alice\n")
			convey.So(script, convey.ShouldContainSubstring, "#SBATCH --dependency=singleton\n")
			convey.So(script, convey.ShouldContainSubstring, "#SBATCH --exclude=node1,node2\n")
			convey.So(script, convey.ShouldContainSubstring, "#SBATCH --nice=100\n")
			convey.So(script, convey.ShouldContainSubstring, "#SBATCH -p gpu\n")
			convey.So(script, convey.ShouldContainSubstring, "#SBATCH --gres=gpu:1\n")
			convey.So(script, convey.ShouldContainSubstring, "#SBATCH -c 8\n")
			convey.So(script, convey.ShouldContainSubstring, "af3 --json_path="+req.DescriptorPath+" --output_dir="+req.OutputDir)
		})

		convey.Convey("A parsable sbatch answer yields the job id", func() {
			exec.results["sbatch"] = &command.Result{Stdout: []byte("4242;cluster\n")}
			id, err := s.Submit(ctx, req)
			convey.So(err, convey.ShouldBeNil)
			convey.So(id, convey.ShouldEqual, "4242")
			_, statErr := os.Stat(filepath.Join(filepath.Dir(req.DescriptorPath), "job.sbatch"))
			convey.So(statErr, convey.ShouldBeNil)
			convey.So(exec.last().Args[0], convey.ShouldEqual, "--parsable")
		})

		convey.Convey("The human sbatch answer is accepted too", func() {
			exec.results["sbatch"] = &command.Result{Stdout: []byte("Submitted batch job 77\n")}
			id, err := s.Submit(ctx, req)
			convey.So(err, convey.ShouldBeNil)
			convey.So(id, convey.ShouldEqual, "77")
		})

		convey.Convey("Submit limits map to ErrQueueFull", func() {
			for _, msg := range []string{
				"sbatch: error: QOSMaxSubmitJobPerUserLimit",
				"sbatch: error: AssocMaxSubmitJobLimit",
				"sbatch: error: Batch job submission failed: Job violates accounting/QOS policy (job submit limit, user's size and/or time limits)",
			} {
				exec.results["sbatch"] = &command.Result{Stderr: []byte(msg), ExitCode: 1}
				_, err := s.Submit(ctx, req)
				convey.So(err, convey.ShouldEqual, scheduler.ErrQueueFull)
			}
		})

		convey.Convey("Other rejections are submit errors", func() {
			exec.results["sbatch"] = &command.Result{Stderr: []byte("invalid partition"), ExitCode: 1}
			_, err := s.Submit(ctx, req)
			convey.So(errors.Is(err, scheduler.ErrSubmit), convey.ShouldBeTrue)
		})

		convey.Convey("Status reads the main job line", func() {
			exec.results["sacct"] = &command.Result{Stdout: []byte("4242|COMPLETED|0:0|2026-01-01T00:00:00\n4242.batch|COMPLETED|0:0|2026-01-01T00:00:00\n")}
			st, err := s.Status(ctx, "4242")
			convey.So(err, convey.ShouldBeNil)
			convey.So(st, convey.ShouldEqual, scheduler.StatusSucceeded)
			convey.So(strings.Join(exec.last().Args, " "), convey.ShouldContainSubstring, "-P")
		})

		convey.Convey("A failing sacct is an error with unknown status", func() {
			exec.results["sacct"] = &command.Result{Stderr: []byte("slurmdbd down"), ExitCode: 1}
			st, err := s.Status(ctx, "4242")
			convey.So(err, convey.ShouldNotBeNil)
			convey.So(st, convey.ShouldEqual, scheduler.StatusUnknown)
		})

		convey.Convey("Cancel calls scancel", func() {
			exec.results["scancel"] = &command.Result{}
			convey.So(s.Cancel(ctx, "4242"), convey.ShouldBeNil)
			convey.So(exec.last().Args, convey.ShouldResemble, []string{"4242"})
		})
	})
}

func TestParseSacct(t *testing.T) {
	convey.Convey("sacct states map onto scheduler statuses", t, func() {
		cases := map[string]scheduler.Status{
			"1|PENDING|0:0|Unknown":         scheduler.StatusQueued,
			"1|RUNNING|0:0|Unknown":         scheduler.StatusRunning,
			"1|COMPLETED|0:0|2026":          scheduler.StatusSucceeded,
			"1|COMPLETED|1:0|2026":          scheduler.StatusFailed,
			"1|FAILED|1:0|2026":             scheduler.StatusFailed,
			"1|CANCELLED by 1000|0:15|2026": scheduler.StatusFailed,
			"1|TIMEOUT|0:0|2026":            scheduler.StatusFailed,
			"1|OUT_OF_MEMORY|0:125|2026":    scheduler.StatusFailed,
			"":                              scheduler.StatusUnknown,
			"1.batch|COMPLETED|0:0|2026":    scheduler.StatusUnknown,
		}
		for line, want := range cases {
			convey.So(scheduler.ParseSacct(line, "1"), convey.ShouldEqual, want)
		}
		convey.So(scheduler.ParseSacct("2|RUNNING|0:0|x", "1"), convey.ShouldEqual, scheduler.StatusUnknown)
	})
}

func waitStatus(s scheduler.Scheduler, id string, want scheduler.Status) scheduler.Status {
	deadline := time.Now().Add(2 * time.Second)
	for {
		st, _ := s.Status(context.Background(), id)
		if st == want || time.Now().After(deadline) {
			return st
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestLocal(t *testing.T) {
	convey.Convey("Given a local scheduler with one slot", t, func() {
		exec := &fakeExec{results: map[string]*command.Result{"af3": {Stdout: []byte("ok")}}}
		l := scheduler.NewLocal(exec, "af3", 1, scheduler.WithQueueLimit(2), scheduler.WithLocalLogger(logger.Nop()))
		defer l.Close()
		ctx := context.Background()
		req := request(t)
		convey.So(os.MkdirAll(req.LogsDir, 0o755), convey.ShouldBeNil)

		convey.Convey("A job runs the predictor and succeeds", func() {
			id, err := l.Submit(ctx, req)
			convey.So(err, convey.ShouldBeNil)
			convey.So(id, convey.ShouldNotBeEmpty)
			convey.So(waitStatus(l, id, scheduler.StatusSucceeded), convey.ShouldEqual, scheduler.StatusSucceeded)
			convey.So(exec.last().Args, convey.ShouldResemble, []string{
				"--json_path=" + req.DescriptorPath, "--output_dir=" + req.OutputDir,
			})
			log, err := os.ReadFile(filepath.Join(req.LogsDir, req.JobID+".log"))
			convey.So(err, convey.ShouldBeNil)
			convey.So(string(log), convey.ShouldEqual, "ok")
		})

		convey.Convey("A nonzero exit fails the job", func() {
			exec.results["af3"] = &command.Result{ExitCode: 2}
			id, _ := l.Submit(ctx, req)
			convey.So(waitStatus(l, id, scheduler.StatusFailed), convey.ShouldEqual, scheduler.StatusFailed)
		})

		convey.Convey("The queue limit refuses extra work and cancel frees it", func() {
			exec.block = make(chan struct{})
			first, err := l.Submit(ctx, req)
			convey.So(err, convey.ShouldBeNil)
			_, err = l.Submit(ctx, req)
			convey.So(err, convey.ShouldBeNil)
			_, err = l.Submit(ctx, req)
			convey.So(err, convey.ShouldEqual, scheduler.ErrQueueFull)

			convey.So(l.Cancel(ctx, first), convey.ShouldBeNil)
			st, _ := l.Status(ctx, first)
			convey.So(st, convey.ShouldEqual, scheduler.StatusFailed)
			_, err = l.Submit(ctx, req)
			convey.So(err, convey.ShouldBeNil)
			close(exec.block)
		})

		convey.Convey("Unknown ids report unknown", func() {
			st, err := l.Status(ctx, "nope")
			convey.So(err, convey.ShouldBeNil)
			convey.So(st, convey.ShouldEqual, scheduler.StatusUnknown)
			convey.So(l.Cancel(ctx, "nope"), convey.ShouldEqual, scheduler.ErrUnknownJob)
		})
	})
}
