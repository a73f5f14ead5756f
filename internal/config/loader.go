package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "FOLDBOARD_"

// Load builds a Config by layering, low to high precedence:
//  1. defaults (New)
//  2. .env file: FOLDBOARD_ENV_FILE, or ./.env when present
//  3. YAML file if FOLDBOARD_CONFIG is set
//  4. FOLDBOARD_* environment variables
func Load(_ context.Context) (*Config, error) {
	if err := loadDotEnv(); err != nil {
		return nil, err
	}

	k := koanf.New(".")

	if path := os.Getenv(EnvPrefix + "CONFIG"); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrLoadConfig, path, err)
		}
	}

	envProvider := env.Provider(EnvPrefix, ".", envKey)
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("%w: env: %w", ErrLoadConfig, err)
	}

	cfg := New()
	if err := k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// envKey maps FOLDBOARD_PASSES__POLL_INTERVAL to passes.poll_interval.
func envKey(s string) string {
	s = strings.TrimPrefix(s, EnvPrefix)
	s = strings.ToLower(s)
	return strings.ReplaceAll(s, "__", ".")
}

func loadDotEnv() error {
	if path := os.Getenv(EnvPrefix + "ENV_FILE"); path != "" {
		if err := godotenv.Load(path); err != nil {
			return fmt.Errorf("%w: %s: %w", ErrLoadConfig, path, err)
		}
		return nil
	}
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			return fmt.Errorf("%w: .env: %w", ErrLoadConfig, err)
		}
	}
	return nil
}

// Validate checks values that would otherwise fail late at runtime.
func (c *Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}
	driver := func(key, v string, allowed ...string) {
		if !oneOf(v, allowed...) {
			errs = append(errs, fmt.Errorf("%w: %s %q, want one of %s", ErrUnknownDriver, key, v, strings.Join(allowed, ", ")))
		}
	}

	check(c.Addr != "", "addr must not be empty")
	check(c.DataDir != "", "data_dir must not be empty")
	check(oneOf(c.LogFormat, "text", "json"), "log_format %q must be text or json", c.LogFormat)
	driver("store.driver", c.Store.Driver, "memory", "postgres")
	check(c.Store.Driver != "postgres" || c.Store.PostgresDSN != "", "store.postgres_dsn is required for the postgres driver")
	driver("queue.driver", c.Queue.Driver, "memory", "redis")
	check(c.Queue.Driver != "redis" || c.Queue.RedisAddr != "", "queue.redis_addr is required for the redis driver")
	check(c.Queue.Capacity > 0, "queue.capacity must be positive")
	driver("scheduler.driver", c.Scheduler.Driver, "slurm", "local")
	check(c.Scheduler.Driver != "local" || c.Scheduler.LocalSlots > 0, "scheduler.local_slots must be positive")
	check(c.Passes.PollInterval > 0, "passes.poll_interval must be positive")
	check(c.Passes.StatusTimeout > 0, "passes.status_timeout must be positive")
	check(c.Passes.MaxAttempts >= 1, "passes.max_attempts must be at least 1")
	check(c.Passes.MaxJobAge > 0, "passes.max_job_age must be positive")
	check(c.Passes.SubmitRate > 0, "passes.submit_rate must be positive")
	check(c.Passes.SubmitBurst >= 1, "passes.submit_burst must be at least 1")
	check(c.Passes.EvalConcurrency >= 1, "passes.eval_concurrency must be at least 1")
	driver("eval.aligner", c.Eval.Aligner, "builtin", "tmalign")
	driver("artifacts.driver", c.Artifacts.Driver, "fs", "minio")
	check(c.Artifacts.Driver != "minio" || c.Artifacts.Minio.Endpoint != "", "artifacts.minio.endpoint is required for the minio driver")
	check(c.Submission.MaxSequencesPerProblem >= 1, "submission.max_sequences_per_problem must be at least 1")
	check(len(c.Submission.ModelSeeds) > 0, "submission.model_seeds must not be empty")
	for id, w := range c.Leaderboard.Weights {
		check(w >= 0, "leaderboard.weights[%s] must not be negative", id)
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}

func oneOf(v string, allowed ...string) bool {
	for _, a := range allowed {
		if v == a {
			return true
		}
	}
	return false
}
