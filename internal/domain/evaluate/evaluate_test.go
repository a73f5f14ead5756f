package evaluate_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/foldboard/internal/domain/evaluate"
	"github.com/okian/foldboard/internal/domain/model"
	"github.com/okian/foldboard/internal/domain/structure"
)

// helix returns an ideal CA trace: 100 degrees and 1.5 Å rise per residue.
func helix(chain string, n int, shift structure.Vec3) structure.Structure {
	var s structure.Structure
	for i := 0; i < n; i++ {
		a := float64(i) * 100 * math.Pi / 180
		s.Residues = append(s.Residues, structure.Residue{
			Chain:  chain,
			Number: fmt.Sprint(i + 1),
			Name:   "ALA",
			Pos:    structure.Vec3{2.3*math.Cos(a) + shift[0], 2.3*math.Sin(a) + shift[1], 1.5*float64(i) + shift[2]},
		})
	}
	return s
}

func concat(parts ...structure.Structure) structure.Structure {
	var s structure.Structure
	for _, p := range parts {
		s.Residues = append(s.Residues, p.Residues...)
	}
	return s
}

// moved rotates s about z by deg and translates it.
func moved(s structure.Structure, deg float64, by structure.Vec3) structure.Structure {
	c, sn := math.Cos(deg*math.Pi/180), math.Sin(deg*math.Pi/180)
	out := structure.Structure{Residues: make([]structure.Residue, len(s.Residues))}
	for i, r := range s.Residues {
		p := r.Pos
		r.Pos = structure.Vec3{c*p[0] - sn*p[1] + by[0], sn*p[0] + c*p[1] + by[1], p[2] + by[2]}
		out.Residues[i] = r
	}
	return out
}

func writeCIF(path string, s structure.Structure) error {
	var b bytes.Buffer
	b.WriteString("data_model\nloop_\n_atom_site.group_PDB\n_atom_site.id\n_atom_site.label_atom_id\n")
	b.WriteString("_atom_site.label_comp_id\n_atom_site.label_asym_id\n_atom_site.label_seq_id\n")
	b.WriteString("_atom_site.Cartn_x\n_atom_site.Cartn_y\n_atom_site.Cartn_z\n")
	for i, r := range s.Residues {
		fmt.Fprintf(&b, "ATOM %d CA %s %s %s %.4f %.4f %.4f\n", i+1, r.Name, r.Chain, r.Number, r.Pos[0], r.Pos[1], r.Pos[2])
	}
	b.WriteString("#\n")
	return os.WriteFile(path, b.Bytes(), 0o644)
}

func TestSuperpose(t *testing.T) {
	Convey("Superpose recovers a rigid motion", t, func() {
		ref := helix("A", 30, structure.Vec3{})
		mob := moved(ref, 73, structure.Vec3{5, -3, 12})
		tr := evaluate.Superpose(mob.Coords(), ref.Coords())
		So(evaluate.RMSD(tr.ApplyAll(mob.Coords()), ref.Coords()), ShouldBeLessThan, 1e-6)
	})

	Convey("RMSD of identical sets is zero", t, func() {
		c := helix("A", 10, structure.Vec3{}).Coords()
		So(evaluate.RMSD(c, c), ShouldEqual, 0)
	})
}

func TestMetrics(t *testing.T) {
	Convey("Given identical coordinates", t, func() {
		c := helix("A", 40, structure.Vec3{}).Coords()
		pairs := make([]evaluate.Pair, len(c))
		for i := range pairs {
			pairs[i] = evaluate.Pair{Model: i, Ref: i}
		}

		Convey("lDDT and TM-score are perfect", func() {
			So(evaluate.LDDT(c, c, pairs), ShouldAlmostEqual, 1, 1e-9)
			tm, _ := evaluate.TMScore(c, c, pairs, len(c))
			So(tm, ShouldAlmostEqual, 1, 1e-9)
			So(evaluate.Coverage(pairs, len(c)), ShouldEqual, 1)
		})

		Convey("half coverage halves the coverage factor", func() {
			So(evaluate.Coverage(pairs[:20], len(c)), ShouldEqual, 0.5)
		})
	})

	Convey("d0 has a floor for short chains", t, func() {
		So(evaluate.D0(10), ShouldEqual, 0.5)
		So(evaluate.D0(21), ShouldEqual, 0.5)
		So(evaluate.D0(100), ShouldAlmostEqual, 1.24*math.Cbrt(85)-1.8, 1e-12)
	})

	Convey("lDDT drops when a local region is distorted", t, func() {
		ref := helix("A", 30, structure.Vec3{}).Coords()
		bent := append([]structure.Vec3(nil), ref...)
		for i := 20; i < 30; i++ {
			bent[i] = bent[i].Add(structure.Vec3{3, 0, 0})
		}
		So(evaluate.LDDT(bent, ref, nil), ShouldBeLessThan, 0.95)
		So(evaluate.LDDT(bent, ref, nil), ShouldBeGreaterThan, 0.3)
	})
}

func TestBuiltinAligner(t *testing.T) {
	ctx := context.Background()
	a := evaluate.NewBuiltinAligner()

	Convey("Aligning a structure to a moved copy of itself", t, func() {
		ref := helix("A", 40, structure.Vec3{})
		al, err := a.Align(ctx, moved(ref, 120, structure.Vec3{10, 10, 10}), ref)
		So(err, ShouldBeNil)
		So(al.TMScore, ShouldAlmostEqual, 1, 1e-6)
		So(al.RMSD, ShouldBeLessThan, 1e-6)
		So(len(al.Pairs), ShouldEqual, 40)
	})

	Convey("A truncated model is normalized by the reference length", t, func() {
		ref := helix("A", 40, structure.Vec3{})
		model := structure.Structure{Residues: ref.Residues[:30]}
		al, err := a.Align(ctx, model, ref)
		So(err, ShouldBeNil)
		So(al.TMScore, ShouldAlmostEqual, 0.75, 0.01)
	})

	Convey("Empty inputs fail", t, func() {
		_, err := a.Align(ctx, structure.Structure{}, helix("A", 5, structure.Vec3{}))
		So(errors.Is(err, structure.ErrNoAtoms), ShouldBeTrue)
	})

	Convey("A cancelled context stops refinement", t, func() {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		ref := helix("A", 40, structure.Vec3{})
		_, err := a.Align(cctx, moved(ref, 30, structure.Vec3{}), ref)
		So(err, ShouldEqual, context.Canceled)
	})
}

func TestEvaluator(t *testing.T) {
	ctx := context.Background()
	at := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	ev := evaluate.New(evaluate.NewBuiltinAligner(), evaluate.WithClock(func() time.Time { return at }))

	Convey("Given a monomer problem", t, func() {
		dir := t.TempDir()
		ref := helix("A", 40, structure.Vec3{})
		artifact := filepath.Join(dir, "job_model.cif")
		So(writeCIF(artifact, moved(ref, 45, structure.Vec3{1, 2, 3})), ShouldBeNil)
		p := model.Problem{ID: "problem_1", Type: model.ProblemMonomer}

		Convey("a perfect prediction scores 1", func() {
			res, err := ev.Evaluate(ctx, p, "job-1", artifact, ref)
			So(err, ShouldBeNil)
			So(res.JobID, ShouldEqual, "job-1")
			So(res.Aligner, ShouldEqual, "builtin")
			So(res.CreatedAt, ShouldEqual, at)
			So(res.Metrics[model.MetricTMScore], ShouldAlmostEqual, 1, 1e-3)
			So(res.Metrics[model.MetricBBLDDT], ShouldAlmostEqual, 1, 1e-3)
			So(res.Metrics[model.MetricBBLDDTCov], ShouldAlmostEqual, 1, 1e-3)
			So(res.Metrics[model.MetricAlignedLength], ShouldEqual, 40)
			So(res.Metrics[model.MetricReferenceLength], ShouldEqual, 40)
			So(res.Metrics[model.MetricPredictedLength], ShouldEqual, 40)
			So(res.Metrics[model.MetricGlobalRMSD], ShouldBeLessThan, 0.01)
			_, hasPTM := res.Metric(model.MetricPTM)
			So(hasPTM, ShouldBeFalse)
		})

		Convey("evaluation is deterministic", func() {
			first, err := ev.Evaluate(ctx, p, "job-1", artifact, ref)
			So(err, ShouldBeNil)
			second, err := ev.Evaluate(ctx, p, "job-1", artifact, ref)
			So(err, ShouldBeNil)
			So(second, ShouldResemble, first)
		})

		Convey("confidences next to the artifact are recorded", func() {
			summary, full := evaluate.ConfidenceFiles(artifact)
			So(os.WriteFile(summary, []byte(`{"ptm":0.81,"iptm":0.5,"ranking_score":0.7,"chain_pair_iptm":[[0.9,0.4],[0.4,0.8]]}`), 0o644), ShouldBeNil)
			So(os.WriteFile(full, []byte(`{"atom_plddts":[80,90,91]}`), 0o644), ShouldBeNil)

			res, err := ev.Evaluate(ctx, p, "job-1", artifact, ref)
			So(err, ShouldBeNil)
			So(res.Metrics[model.MetricPTM], ShouldEqual, 0.81)
			So(res.Metrics[model.MetricIPTM], ShouldEqual, 0.5)
			So(res.Metrics[model.MetricRankingScore], ShouldEqual, 0.7)
			So(res.Metrics[model.MetricPLDDT], ShouldEqual, 87)
			So(res.ChainPairIPTM, ShouldResemble, [][]float64{{0.9, 0.4}, {0.4, 0.8}})
		})

		Convey("an unparsable artifact is bad output", func() {
			bad := filepath.Join(dir, "bad_model.cif")
			So(os.WriteFile(bad, []byte("data_x\n#\n"), 0o644), ShouldBeNil)
			_, err := ev.Evaluate(ctx, p, "job-1", bad, ref)
			So(errors.Is(err, evaluate.ErrBadOutput), ShouldBeTrue)

			_, err = ev.Evaluate(ctx, p, "job-1", filepath.Join(dir, "missing_model.cif"), ref)
			So(errors.Is(err, evaluate.ErrBadOutput), ShouldBeTrue)
		})
	})

	Convey("Given a binder problem", t, func() {
		dir := t.TempDir()
		ref := concat(helix("A", 20, structure.Vec3{}), helix("B", 30, structure.Vec3{6, 0, 0}))
		p := model.Problem{ID: "problem_2", Type: model.ProblemBinder}

		Convey("a perfect complex scores on every binder metric", func() {
			artifact := filepath.Join(dir, "ok_model.cif")
			So(writeCIF(artifact, moved(ref, 200, structure.Vec3{-4, 0, 7})), ShouldBeNil)
			res, err := ev.Evaluate(ctx, p, "job-2", artifact, ref)
			So(err, ShouldBeNil)
			So(res.Metrics[model.MetricBinderTM], ShouldAlmostEqual, 1, 1e-3)
			So(res.Metrics[model.MetricBinderLDDT], ShouldAlmostEqual, 1, 1e-3)
			So(res.Metrics[model.MetricComplexTM], ShouldAlmostEqual, 1, 1e-3)
			So(res.Metrics[model.MetricInterfaceLDDT], ShouldAlmostEqual, 1, 1e-3)
		})

		Convey("a binder placed away from the target loses the interface", func() {
			far := concat(helix("A", 20, structure.Vec3{30, 0, 0}), helix("B", 30, structure.Vec3{6, 0, 0}))
			artifact := filepath.Join(dir, "far_model.cif")
			So(writeCIF(artifact, far), ShouldBeNil)
			res, err := ev.Evaluate(ctx, p, "job-3", artifact, ref)
			So(err, ShouldBeNil)
			So(res.Metrics[model.MetricBinderTM], ShouldAlmostEqual, 1, 1e-3)
			So(res.Metrics[model.MetricInterfaceLDDT], ShouldBeLessThan, 0.5)
			So(res.Metrics[model.MetricComplexTM], ShouldBeLessThan, 1)
		})

		Convey("a prediction without the binder chain is bad output", func() {
			artifact := filepath.Join(dir, "nochain_model.cif")
			So(writeCIF(artifact, helix("B", 30, structure.Vec3{})), ShouldBeNil)
			_, err := ev.Evaluate(ctx, p, "job-4", artifact, ref)
			So(errors.Is(err, evaluate.ErrBadOutput), ShouldBeTrue)
		})
	})
}

func TestFindArtifact(t *testing.T) {
	Convey("FindArtifact looks one level deep and picks the first match", t, func() {
		dir := t.TempDir()
		_, ok := evaluate.FindArtifact(dir)
		So(ok, ShouldBeFalse)

		sub := filepath.Join(dir, "seed-1")
		So(os.MkdirAll(sub, 0o755), ShouldBeNil)
		So(os.WriteFile(filepath.Join(sub, "b_model.cif"), nil, 0o644), ShouldBeNil)
		So(os.WriteFile(filepath.Join(sub, "a_model.cif"), nil, 0o644), ShouldBeNil)
		path, ok := evaluate.FindArtifact(dir)
		So(ok, ShouldBeTrue)
		So(path, ShouldEqual, filepath.Join(sub, "a_model.cif"))

		So(os.WriteFile(filepath.Join(dir, "top_model.cif"), nil, 0o644), ShouldBeNil)
		path, _ = evaluate.FindArtifact(dir)
		So(path, ShouldEqual, filepath.Join(dir, "top_model.cif"))
	})
}
