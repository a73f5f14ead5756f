package catalog_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/foldboard/internal/catalog"
	"github.com/okian/foldboard/internal/domain/model"
)

func referencePDB(n int) string {
	var b strings.Builder
	b.WriteString("HEADER    SECRET TARGET\nREMARK   1 DO NOT LEAK\n")
	serial := 1
	for i := 1; i <= n; i++ {
		for _, atom := range []string{"N", "CA", "C", "O", "CB"} {
			fmt.Fprintf(&b, "ATOM  %5d  %-3s LEU A%4d    %8.3f%8.3f%8.3f  1.00 20.00           C\n",
				serial, atom, i, float64(i)*3.8, float64(serial)*0.1, 0.0)
			serial++
		}
	}
	b.WriteString("TER\nEND\n")
	return b.String()
}

func TestCatalog(t *testing.T) {
	ctx := context.Background()

	Convey("Given an empty catalog", t, func() {
		path := filepath.Join(t.TempDir(), "targets", "catalog.yaml")
		c, err := catalog.Open(path)
		So(err, ShouldBeNil)
		So(c.Version(), ShouldEqual, 0)
		So(c.Problems(), ShouldBeEmpty)

		_, err = c.PutSession("week1", "Week 1")
		So(err, ShouldBeNil)
		So(c.Version(), ShouldEqual, 1)

		Convey("registering a problem sanitizes its reference", func() {
			p, err := c.Register(catalog.Registration{
				Name:    "3-Helix Bundle",
				Type:    model.ProblemMonomer,
				Session: "week1",
				MSAMode: model.MSAPrecomputed,
			}, strings.NewReader(referencePDB(12)))
			So(err, ShouldBeNil)
			So(p.ID, ShouldEqual, "problem_1")
			So(p.Name, ShouldEqual, "Problem 1 - 3-Helix Bundle")
			So(p.ResidueCount, ShouldEqual, 12)
			So(p.MSAMode, ShouldEqual, model.MSANone)

			raw, err := os.ReadFile(c.TargetPath(p))
			So(err, ShouldBeNil)
			So(string(raw), ShouldNotContainSubstring, "SECRET")
			So(string(raw), ShouldNotContainSubstring, "LEU")
			So(string(raw), ShouldNotContainSubstring, " CB ")

			ref, err := c.Reference(p.ID)
			So(err, ShouldBeNil)
			So(ref.Len(), ShouldEqual, 12)

			s, _ := c.Session("week1")
			So(s.Problems, ShouldResemble, []string{"problem_1"})

			Convey("the next problem gets the next number", func() {
				p2, err := c.Register(catalog.Registration{
					Name:                 "Binder",
					Type:                 model.ProblemBinder,
					Session:              "week1",
					TargetSequence:       "mkvlaagivg",
					ExpectedBinderLength: []int{40, 80},
				}, strings.NewReader(referencePDB(5)))
				So(err, ShouldBeNil)
				So(p2.ID, ShouldEqual, "problem_2")
				So(p2.TargetSequence, ShouldEqual, "MKVLAAGIVG")
			})

			Convey("and the document survives a reload", func() {
				again, err := catalog.Open(path)
				So(err, ShouldBeNil)
				So(again.Version(), ShouldEqual, c.Version())
				got, sess, ok := again.Problem("problem_1")
				So(ok, ShouldBeTrue)
				So(got, ShouldResemble, p)
				So(sess.Key, ShouldEqual, "week1")
			})
		})

		Convey("registration rejects bad input", func() {
			_, err := c.Register(catalog.Registration{Name: "x", Type: model.ProblemMonomer, Session: "nope"},
				strings.NewReader(referencePDB(3)))
			So(errors.Is(err, catalog.ErrUnknownSession), ShouldBeTrue)

			_, err = c.Register(catalog.Registration{Name: "x", Type: "trimer", Session: "week1"},
				strings.NewReader(referencePDB(3)))
			So(errors.Is(err, catalog.ErrInvalidProblem), ShouldBeTrue)

			_, err = c.Register(catalog.Registration{Name: "x", Type: model.ProblemMonomer, Session: "week1"},
				strings.NewReader("HEADER only\nEND\n"))
			So(errors.Is(err, catalog.ErrInvalidProblem), ShouldBeTrue)

			_, err = c.Register(catalog.Registration{Name: "x", Type: model.ProblemMonomer, Session: "week1", PrimaryMetric: "rmsd"},
				strings.NewReader(referencePDB(3)))
			So(errors.Is(err, catalog.ErrInvalidProblem), ShouldBeTrue)

			_, err = c.Register(catalog.Registration{
				Name: "b", Type: model.ProblemBinder, Session: "week1",
				TargetSequence: "MKVLAAGIVG", ExpectedBinderLength: []int{80, 40},
			}, strings.NewReader(referencePDB(3)))
			So(errors.Is(err, catalog.ErrInvalidProblem), ShouldBeTrue)
			So(c.Problems(), ShouldBeEmpty)
		})
	})

	Convey("Activating a session archives the active one", t, func() {
		c, err := catalog.Open(filepath.Join(t.TempDir(), "catalog.yaml"))
		So(err, ShouldBeNil)
		_, _ = c.PutSession("week1", "Week 1")
		_, _ = c.PutSession("week2", "Week 2")

		So(c.Activate("week1"), ShouldBeNil)
		active, ok := c.Active()
		So(ok, ShouldBeTrue)
		So(active.Key, ShouldEqual, "week1")

		So(c.Activate("week2"), ShouldBeNil)
		w1, _ := c.Session("week1")
		So(w1.Status, ShouldEqual, model.SessionArchived)
		active, _ = c.Active()
		So(active.Key, ShouldEqual, "week2")

		So(errors.Is(c.Activate("week9"), catalog.ErrUnknownSession), ShouldBeTrue)
	})

	Convey("Problems with submissions are immutable without force", t, func() {
		used := map[string]bool{"problem_1": true}
		c, err := catalog.Open(filepath.Join(t.TempDir(), "catalog.yaml"),
			catalog.WithUsage(func(_ context.Context, id string) (bool, error) { return used[id], nil }))
		So(err, ShouldBeNil)
		_, _ = c.PutSession("week1", "Week 1")
		p, err := c.Register(catalog.Registration{Name: "fold", Type: model.ProblemMonomer, Session: "week1"},
			strings.NewReader(referencePDB(4)))
		So(err, ShouldBeNil)

		p.Description = "edited"
		So(errors.Is(c.UpdateProblem(ctx, p, false), catalog.ErrProblemInUse), ShouldBeTrue)
		So(c.UpdateProblem(ctx, p, true), ShouldBeNil)
		got, _, _ := c.Problem(p.ID)
		So(got.Description, ShouldEqual, "edited")
		So(got.ResidueCount, ShouldEqual, 4)

		Convey("and can be removed from a session without deleting them", func() {
			So(c.RemoveFromSession("week1", p.ID), ShouldBeNil)
			s, _ := c.Session("week1")
			So(s.Problems, ShouldBeEmpty)
			_, _, ok := c.Problem(p.ID)
			So(ok, ShouldBeTrue)
			So(errors.Is(c.RemoveFromSession("week1", p.ID), catalog.ErrProblemNotFound), ShouldBeTrue)
		})
	})
}
