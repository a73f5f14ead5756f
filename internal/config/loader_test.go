package config_test

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/okian/foldboard/internal/config"
	"github.com/smartystreets/goconvey/convey"
)

func TestConfigLoader(t *testing.T) {
	convey.Convey("Given a config loader", t, func() {
		ctx := context.Background()
		clearConfigEnvVars()
		defer clearConfigEnvVars()

		convey.Convey("When loading config with defaults only", func() {
			cfg, err := config.Load(ctx)

			convey.Convey("Then it should load successfully with defaults", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":9080")
				convey.So(cfg.Store.Driver, convey.ShouldEqual, "memory")
				convey.So(cfg.Scheduler.Driver, convey.ShouldEqual, "slurm")
				convey.So(cfg.Passes.MaxAttempts, convey.ShouldEqual, 3)
				convey.So(cfg.Submission.MaxSequencesPerProblem, convey.ShouldEqual, 5)
			})
		})

		convey.Convey("When loading config with environment variables", func() {
			_ = os.Setenv("FOLDBOARD_ADDR", ":8080")
			_ = os.Setenv("FOLDBOARD_PASSES__POLL_INTERVAL", "90s")
			_ = os.Setenv("FOLDBOARD_SCHEDULER__PARTITION", "a100")
			_ = os.Setenv("FOLDBOARD_SCHEDULER__DRIVER", "local")
			_ = os.Setenv("FOLDBOARD_PASSES__MAX_ATTEMPTS", "5")

			cfg, err := config.Load(ctx)

			convey.Convey("Then nested keys are overridden", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":8080")
				convey.So(cfg.Passes.PollInterval, convey.ShouldEqual, 90*time.Second)
				convey.So(cfg.Scheduler.Partition, convey.ShouldEqual, "a100")
				convey.So(cfg.Scheduler.Driver, convey.ShouldEqual, "local")
				convey.So(cfg.Passes.MaxAttempts, convey.ShouldEqual, 5)
			})
		})

		convey.Convey("When loading config with a YAML file and env overrides", func() {
			tmpFile := createTempConfigFile(`
addr: ":9090"
passes:
  status_timeout: 5s
  eval_concurrency: 3
leaderboard:
  weights:
    problem_1: 2.0
`)
			defer func() { _ = os.Remove(tmpFile) }()
			_ = os.Setenv("FOLDBOARD_CONFIG", tmpFile)
			_ = os.Setenv("FOLDBOARD_ADDR", ":7070")

			cfg, err := config.Load(ctx)

			convey.Convey("Then env wins over the file and defaults fill the rest", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":7070")
				convey.So(cfg.Passes.StatusTimeout, convey.ShouldEqual, 5*time.Second)
				convey.So(cfg.Passes.EvalConcurrency, convey.ShouldEqual, 3)
				convey.So(cfg.Passes.MaxJobAge, convey.ShouldEqual, 48*time.Hour)
				convey.So(cfg.Leaderboard.Weights["problem_1"], convey.ShouldEqual, 2.0)
			})
		})

		convey.Convey("When loading config from a .env file", func() {
			dir := t.TempDir()
			path := dir + "/test.env"
			convey.So(os.WriteFile(path, []byte("FOLDBOARD_QUEUE__CAPACITY=42\n"), 0o600), convey.ShouldBeNil)
			_ = os.Setenv("FOLDBOARD_ENV_FILE", path)

			cfg, err := config.Load(ctx)

			convey.Convey("Then its variables are applied", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Queue.Capacity, convey.ShouldEqual, 42)
			})
		})

		convey.Convey("When loading config with invalid YAML", func() {
			tmpFile := createTempConfigFile(`invalid: yaml: content: [`)
			defer func() { _ = os.Remove(tmpFile) }()
			_ = os.Setenv("FOLDBOARD_CONFIG", tmpFile)

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return a load error", func() {
				convey.So(cfg, convey.ShouldBeNil)
				convey.So(errors.Is(err, config.ErrLoadConfig), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When loading config with a non-existent file", func() {
			_ = os.Setenv("FOLDBOARD_CONFIG", "/non/existent/file.yaml")

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return an error", func() {
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When a driver requires missing settings", func() {
			_ = os.Setenv("FOLDBOARD_STORE__DRIVER", "postgres")
			_ = os.Setenv("FOLDBOARD_QUEUE__DRIVER", "kafka")

			cfg, err := config.Load(ctx)

			convey.Convey("Then every problem is reported as invalid config", func() {
				convey.So(cfg, convey.ShouldBeNil)
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
				convey.So(err.Error(), convey.ShouldContainSubstring, "store.postgres_dsn")
				convey.So(err.Error(), convey.ShouldContainSubstring, "queue.driver")
			})
		})
	})
}

func clearConfigEnvVars() {
	for _, kv := range os.Environ() {
		if strings.HasPrefix(kv, config.EnvPrefix) {
			_ = os.Unsetenv(strings.SplitN(kv, "=", 2)[0])
		}
	}
}

func createTempConfigFile(content string) string {
	tmpFile, err := os.CreateTemp("", "foldboard-config-*.yaml")
	if err != nil {
		panic(err)
	}
	if _, err := tmpFile.WriteString(content); err != nil {
		panic(err)
	}
	if err := tmpFile.Close(); err != nil {
		panic(err)
	}
	return tmpFile.Name()
}
