package service_test

import (
	"bytes"
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/okian/foldboard/internal/adapters/artifact"
	"github.com/okian/foldboard/internal/adapters/mq/lock"
	"github.com/okian/foldboard/internal/adapters/mq/queue"
	"github.com/okian/foldboard/internal/adapters/repository"
	"github.com/okian/foldboard/internal/adapters/scheduler"
	service "github.com/okian/foldboard/internal/app"
	"github.com/okian/foldboard/internal/catalog"
	"github.com/okian/foldboard/internal/config"
	"github.com/okian/foldboard/internal/domain/descriptor"
	"github.com/okian/foldboard/internal/domain/evaluate"
	"github.com/okian/foldboard/internal/domain/model"
	"github.com/okian/foldboard/internal/domain/structure"
	"github.com/okian/foldboard/pkg/logger"
)

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

const validSeq = "MKTLLILAVVAAALA"

var t0 = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

// fakeScheduler answers from a status table the test controls.
type fakeScheduler struct {
	mu        sync.Mutex
	next      int
	full      bool
	failCalls bool
	hang      bool
	status    map[string]scheduler.Status
	requests  map[string]scheduler.Request
	cancelled []string
}

func newFakeScheduler() *fakeScheduler {
	return &fakeScheduler{status: map[string]scheduler.Status{}, requests: map[string]scheduler.Request{}}
}

func (f *fakeScheduler) Name() string { return "fake" }

func (f *fakeScheduler) Submit(_ context.Context, req scheduler.Request) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.full {
		return "", scheduler.ErrQueueFull
	}
	f.next++
	id := fmt.Sprintf("ext-%d", f.next)
	f.status[id] = scheduler.StatusQueued
	f.requests[id] = req
	return id, nil
}

func (f *fakeScheduler) Status(ctx context.Context, id string) (scheduler.Status, error) {
	f.mu.Lock()
	hang := f.hang
	f.mu.Unlock()
	if hang {
		<-ctx.Done()
		return scheduler.StatusUnknown, ctx.Err()
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failCalls {
		return scheduler.StatusUnknown, fmt.Errorf("sacct: connection refused")
	}
	st, ok := f.status[id]
	if !ok {
		return scheduler.StatusUnknown, nil
	}
	return st, nil
}

func (f *fakeScheduler) Cancel(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelled = append(f.cancelled, id)
	return nil
}

func (f *fakeScheduler) set(id string, st scheduler.Status) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.status[id] = st
}

func (f *fakeScheduler) forget(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.status, id)
}

func (f *fakeScheduler) submitted() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.next
}

// recorder counts notifications.
type recorder struct {
	mu     sync.Mutex
	queued []string
	ready  []string
}

func (r *recorder) SubmissionQueued(_ context.Context, sub model.Submission, _ []model.Job) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.queued = append(r.queued, sub.ID)
}

func (r *recorder) ResultsReady(_ context.Context, sub model.Submission, url string, _, _ int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ready = append(r.ready, url)
}

type harness struct {
	svc     *service.Service
	store   *repository.MemoryStore
	sched   *fakeScheduler
	catalog *catalog.Catalog
	sink    *artifact.FSSink
	locker  *lock.Local
	notes   *recorder
	root    string
	clock   time.Time
}

func (h *harness) now() time.Time { return h.clock }

func (h *harness) advance(d time.Duration) { h.clock = h.clock.Add(d) }

// helix is an ideal CA trace used both as reference and as prediction.
func helix(n int) structure.Structure {
	var s structure.Structure
	for i := 0; i < n; i++ {
		a := float64(i) * 100 * math.Pi / 180
		s.Residues = append(s.Residues, structure.Residue{
			Chain:  "A",
			Number: fmt.Sprint(i + 1),
			Name:   "ALA",
			Pos:    structure.Vec3{2.3 * math.Cos(a), 2.3 * math.Sin(a), 1.5 * float64(i)},
		})
	}
	return s
}

// shifted displaces the last residues of s, lowering its scores.
func shifted(s structure.Structure, from int, by float64) structure.Structure {
	out := structure.Structure{Residues: append([]structure.Residue(nil), s.Residues...)}
	for i := from; i < len(out.Residues); i++ {
		out.Residues[i].Pos[0] += by
	}
	return out
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	root := t.TempDir()
	h := &harness{root: root, clock: t0, sched: newFakeScheduler(), locker: lock.NewLocal(), notes: &recorder{}}

	h.store = repository.NewMemoryStore(repository.WithClock(h.now))
	cat, err := catalog.Open(filepath.Join(root, "targets", "catalog.yaml"), catalog.WithUsage(h.store.ProblemHasSubmissions))
	if err != nil {
		t.Fatal(err)
	}
	h.catalog = cat
	if _, err := cat.PutSession("week1", "Week 1"); err != nil {
		t.Fatal(err)
	}
	if err := cat.Activate("week1"); err != nil {
		t.Fatal(err)
	}
	var pdb bytes.Buffer
	if err := structure.WritePDB(&pdb, helix(40)); err != nil {
		t.Fatal(err)
	}
	if _, err := cat.Register(catalog.Registration{
		Name:    "Helix",
		Type:    model.ProblemMonomer,
		Session: "week1",
	}, &pdb); err != nil {
		t.Fatal(err)
	}

	h.sink, err = artifact.NewFSSink(filepath.Join(root, "results"))
	if err != nil {
		t.Fatal(err)
	}

	passes := config.New().Passes
	passes.SubmitRate = 0
	passes.MaxAttempts = 2
	passes.PollConcurrency = 4
	passes.EvalConcurrency = 2
	passes.StatusTimeout = 50 * time.Millisecond

	svc, err := service.New(service.Deps{
		Store:     h.store,
		Catalog:   cat,
		Builder:   descriptor.NewBuilder(cat, filepath.Join(root, "data"), descriptor.WithClock(h.now)),
		Queue:     queue.NewInMemoryQueue(queue.WithCapacity(100)),
		Scheduler: h.sched,
		Evaluator: evaluate.New(evaluate.NewBuiltinAligner(), evaluate.WithClock(h.now)),
		Sink:      h.sink,
		Locker:    h.locker,
		Notifier:  h.notes,
	},
		service.WithPasses(passes),
		service.WithClock(h.now),
		service.WithBaseURL("https://fold.example/"),
		service.WithLogger(logger.Nop()),
	)
	if err != nil {
		t.Fatal(err)
	}
	h.svc = svc
	return h
}

func (h *harness) submit(participant string, seqs ...string) (service.Receipt, error) {
	list := make([]any, len(seqs))
	for i, s := range seqs {
		list[i] = s
	}
	return h.svc.Submit(context.Background(), service.Intake{
		ParticipantID: participant,
		Contact:       participant + "@example.org",
		Sequences:     map[string]any{"problem_1": list},
	})
}

func (h *harness) job(t *testing.T, id string) model.Job {
	t.Helper()
	j, err := h.store.Job(context.Background(), id)
	if err != nil {
		t.Fatal(err)
	}
	return j
}

// writeModel places a prediction where the predictor would, one level below
// the job's output directory.
func (h *harness) writeModel(t *testing.T, job model.Job, s structure.Structure) string {
	t.Helper()
	dir := filepath.Join(job.OutputDir, "fold")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	var b bytes.Buffer
	b.WriteString("data_fold\nloop_\n_atom_site.group_PDB\n_atom_site.id\n_atom_site.label_atom_id\n")
	b.WriteString("_atom_site.label_comp_id\n_atom_site.label_asym_id\n_atom_site.label_seq_id\n")
	b.WriteString("_atom_site.Cartn_x\n_atom_site.Cartn_y\n_atom_site.Cartn_z\n")
	for i, r := range s.Residues {
		fmt.Fprintf(&b, "ATOM %d CA %s %s %s %.4f %.4f %.4f\n", i+1, r.Name, r.Chain, r.Number, r.Pos[0], r.Pos[1], r.Pos[2])
	}
	b.WriteString("#\n")
	path := filepath.Join(dir, "fold"+evaluate.ModelSuffix)
	if err := os.WriteFile(path, b.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}
	summary := `{"ptm": 0.8, "iptm": null, "ranking_score": 0.81}`
	if err := os.WriteFile(filepath.Join(dir, "fold"+evaluate.SummaryConfidenceSuffix), []byte(summary), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

// run executes passes in order and fails the test on pass errors.
func (h *harness) run(t *testing.T, passes ...string) {
	t.Helper()
	for _, p := range passes {
		if _, err := h.svc.RunPass(context.Background(), p); err != nil {
			t.Fatalf("%s: %v", p, err)
		}
	}
}

func (h *harness) writeGarbage(t *testing.T, path string) {
	t.Helper()
	if err := os.WriteFile(path, []byte("data_fold\n#\n"), 0o644); err != nil {
		t.Fatal(err)
	}
}
