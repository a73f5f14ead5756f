package repository

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/smartystreets/goconvey/convey"

	"github.com/okian/foldboard/internal/domain/model"
)

func TestPostgresHelpers(t *testing.T) {
	convey.Convey("Driver errors map onto sentinels", t, func() {
		convey.So(errors.Is(classify("job x", pgx.ErrNoRows), ErrNotFound), convey.ShouldBeTrue)
		convey.So(errors.Is(classify("sub", &pgconn.PgError{Code: uniqueViolation}), ErrConflict), convey.ShouldBeTrue)
		other := fmt.Errorf("boom")
		err := classify("sub", other)
		convey.So(errors.Is(err, other), convey.ShouldBeTrue)
		convey.So(errors.Is(err, ErrConflict), convey.ShouldBeFalse)
	})

	convey.Convey("Job insert arguments match the column list", t, func() {
		cols := strings.Split(jobColumns, ",")
		convey.So(jobArgs(model.Job{}), convey.ShouldHaveLength, len(cols))
	})

	convey.Convey("Evaluation rows decode their JSON columns", t, func() {
		r := model.EvaluationResult{JobID: "j"}
		err := decodeResult(&r, []byte(`{"tm_score":0.5}`), []byte(`[[1,0.2],[0.3,1]]`))
		convey.So(err, convey.ShouldBeNil)
		convey.So(r.Metrics["tm_score"], convey.ShouldEqual, 0.5)
		convey.So(r.ChainPairIPTM[1][0], convey.ShouldEqual, 0.3)

		convey.So(decodeResult(&r, []byte(`nope`), nil), convey.ShouldNotBeNil)
	})

	convey.Convey("The schema creates every table", t, func() {
		for _, table := range []string{"submissions", "jobs", "evaluations"} {
			convey.So(schema, convey.ShouldContainSubstring, "CREATE TABLE IF NOT EXISTS "+table)
		}
	})
}
