package config_test

import (
	"errors"
	"testing"

	"github.com/okian/foldboard/internal/config"
	"github.com/smartystreets/goconvey/convey"
)

func TestConfig_New(t *testing.T) {
	convey.Convey("Given a new config with defaults", t, func() {
		cfg := config.New()

		convey.Convey("Then it validates and has sensible defaults", func() {
			convey.So(cfg.Validate(), convey.ShouldBeNil)
			convey.So(cfg.Addr, convey.ShouldEqual, ":9080")
			convey.So(cfg.Submission.ModelSeeds, convey.ShouldResemble, []int{1, 2, 3, 4, 5})
			convey.So(cfg.Eval.Aligner, convey.ShouldEqual, "builtin")
			convey.So(cfg.Artifacts.Driver, convey.ShouldEqual, "fs")
		})

		convey.Convey("When the attempt cap is zero", func() {
			cfg.Passes.MaxAttempts = 0

			convey.Convey("Then validation fails", func() {
				err := cfg.Validate()
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
				convey.So(err.Error(), convey.ShouldContainSubstring, "max_attempts")
			})
		})

		convey.Convey("When a backend name is misspelled", func() {
			cfg.Queue.Driver = "rabbit"

			convey.Convey("Then the error names the key and the choices", func() {
				err := cfg.Validate()
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
				convey.So(errors.Is(err, config.ErrUnknownDriver), convey.ShouldBeTrue)
				convey.So(err.Error(), convey.ShouldContainSubstring, "queue.driver")
				convey.So(err.Error(), convey.ShouldContainSubstring, "memory, redis")
			})
		})

		convey.Convey("When a weight is negative", func() {
			cfg.Leaderboard.Weights["problem_2"] = -1

			convey.Convey("Then validation fails", func() {
				convey.So(cfg.Validate(), convey.ShouldNotBeNil)
			})
		})
	})
}
