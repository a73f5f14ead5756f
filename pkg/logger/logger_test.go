package logger_test

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/foldboard/pkg/logger"
)

func TestLogger(t *testing.T) {
	Convey("Given a logger writing to a buffer", t, func() {
		var buf bytes.Buffer
		So(logger.Init(logger.WithWriter(&buf)), ShouldBeNil)
		So(logger.SetLevelString("info"), ShouldBeNil)
		ctx := context.Background()

		Convey("Named loggers tag the component and fields", func() {
			logger.Named("poller").Info(ctx, "job observed",
				logger.String("job_id", "s1_problem_1_seq1"),
				logger.Int("attempt", 2),
				logger.Duration("age", time.Second),
				logger.Error(errors.New("boom")),
			)
			out := buf.String()
			So(out, ShouldContainSubstring, "component=poller")
			So(out, ShouldContainSubstring, "job_id=s1_problem_1_seq1")
			So(out, ShouldContainSubstring, "attempt=2")
			So(out, ShouldContainSubstring, "error=boom")
			So(out, ShouldContainSubstring, "source=")
		})

		Convey("Debug is suppressed at info level", func() {
			logger.Get().Debug(ctx, "hidden")
			So(buf.String(), ShouldBeEmpty)
		})

		Convey("With carries fields to every line", func() {
			l := logger.Get().With(logger.String("submission_id", "alice_x_ab12"))
			l.Warn(ctx, "first")
			l.Warn(ctx, "second")
			So(bytes.Count(buf.Bytes(), []byte("submission_id=alice_x_ab12")), ShouldEqual, 2)
		})
	})

	Convey("JSON format emits JSON objects", t, func() {
		var buf bytes.Buffer
		So(logger.Init(logger.WithWriter(&buf), logger.WithFormat("json")), ShouldBeNil)
		logger.Get().Info(context.Background(), "hello", logger.Bool("ok", true))
		So(buf.String(), ShouldStartWith, "{")
		So(buf.String(), ShouldContainSubstring, `"ok":true`)
	})

	Convey("Unknown settings are rejected", t, func() {
		So(logger.Init(logger.WithFormat("xml")), ShouldNotBeNil)
		So(logger.SetLevelString("loud"), ShouldNotBeNil)
		So(logger.SetLevelString("WARNING"), ShouldBeNil)
		So(logger.SetLevelString("info"), ShouldBeNil)
	})

	Convey("Nop discards output without panicking", t, func() {
		So(func() { logger.Nop().Named("x").Error(context.Background(), "ignored") }, ShouldNotPanic)
	})
}
