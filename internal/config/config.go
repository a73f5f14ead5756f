// Package config defines the orchestrator configuration and its loader.
//
// Conventions:
//   - New returns a Config filled with defaults.
//   - Load layers defaults, an optional .env file, an optional YAML file and
//     FOLDBOARD_* environment variables, then validates the result.
//   - Nested keys map to env vars with a double underscore, e.g.
//     FOLDBOARD_SCHEDULER__PARTITION -> scheduler.partition.
package config

import (
	"runtime"
	"time"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`
	// LogFormat is text or json.
	LogFormat string `koanf:"log_format"`
	// Deployment names this competition instance on every metric series.
	Deployment string `koanf:"deployment"`
	// PublicDocs drops the admin operations from /openapi.yaml.
	PublicDocs bool `koanf:"public_docs"`

	// Addr configures the HTTP listen address, e.g. ":9080".
	Addr         string        `koanf:"addr"`
	ReadTimeout  time.Duration `koanf:"read_timeout"`
	WriteTimeout time.Duration `koanf:"write_timeout"`

	// DataDir holds job input descriptors and predictor outputs.
	DataDir string `koanf:"data_dir"`
	// CatalogFile is the versioned problem/session document.
	CatalogFile string `koanf:"catalog_file"`

	Store       StoreConfig       `koanf:"store"`
	Queue       QueueConfig       `koanf:"queue"`
	Scheduler   SchedulerConfig   `koanf:"scheduler"`
	Passes      PassesConfig      `koanf:"passes"`
	Eval        EvalConfig        `koanf:"eval"`
	Artifacts   ArtifactsConfig   `koanf:"artifacts"`
	Leaderboard LeaderboardConfig `koanf:"leaderboard"`
	Submission  SubmissionConfig  `koanf:"submission"`
}

// StoreConfig selects the durable submission/job store.
type StoreConfig struct {
	Driver      string        `koanf:"driver"` // memory | postgres
	PostgresDSN string        `koanf:"postgres_dsn"`
	MaxConns    int32         `koanf:"max_conns"`
	MaxLifetime time.Duration `koanf:"max_lifetime"`
}

// QueueConfig selects the submit queue.
type QueueConfig struct {
	Driver    string `koanf:"driver"` // memory | redis
	Capacity  int    `koanf:"capacity"`
	RedisAddr string `koanf:"redis_addr"`
	RedisDB   int    `koanf:"redis_db"`
	RedisKey  string `koanf:"redis_key"`
}

// SchedulerConfig configures the batch scheduler adapter.
type SchedulerConfig struct {
	Driver    string   `koanf:"driver"` // slurm | local
	Partition string   `koanf:"partition"`
	Nice      int      `koanf:"nice"`
	CPUs      int      `koanf:"cpus"`
	GPUs      int      `koanf:"gpus"`
	Exclude   []string `koanf:"exclude"`
	Sbatch    string   `koanf:"sbatch"`
	Sacct     string   `koanf:"sacct"`
	Scancel   string   `koanf:"scancel"`
	// Predictor is the structure prediction binary invoked by each job.
	Predictor  string `koanf:"predictor"`
	LocalSlots int    `koanf:"local_slots"`
}

// PassesConfig drives the orchestration passes.
type PassesConfig struct {
	SubmitInterval     time.Duration `koanf:"submit_interval"`
	PollInterval       time.Duration `koanf:"poll_interval"`
	EvaluateInterval   time.Duration `koanf:"evaluate_interval"`
	PublishInterval    time.Duration `koanf:"publish_interval"`
	StatusTimeout      time.Duration `koanf:"status_timeout"`
	UnknownGrace       time.Duration `koanf:"unknown_grace"`
	ArtifactGrace      time.Duration `koanf:"artifact_grace"`
	MaxAttempts        int           `koanf:"max_attempts"`
	MaxJobAge          time.Duration `koanf:"max_job_age"`
	SubmitRate         float64       `koanf:"submit_rate"` // jobs per second
	SubmitBurst        int           `koanf:"submit_burst"`
	EvalConcurrency    int           `koanf:"eval_concurrency"`
	PollConcurrency    int           `koanf:"poll_concurrency"`
	MetricsInterval    time.Duration `koanf:"metrics_interval"`
	ShutdownTimeout    time.Duration `koanf:"shutdown_timeout"`
	DistributedLockTTL time.Duration `koanf:"lock_ttl"`
}

// EvalConfig selects the structural aligner.
type EvalConfig struct {
	Aligner       string `koanf:"aligner"` // builtin | tmalign
	AlignerBinary string `koanf:"aligner_binary"`
}

// ArtifactsConfig selects where result artifacts are written.
type ArtifactsConfig struct {
	Driver  string      `koanf:"driver"` // fs | minio
	Dir     string      `koanf:"dir"`
	BaseURL string      `koanf:"base_url"`
	Minio   MinioConfig `koanf:"minio"`
}

// MinioConfig configures the S3 compatible artifact sink.
type MinioConfig struct {
	Endpoint  string `koanf:"endpoint"`
	AccessKey string `koanf:"access_key"`
	SecretKey string `koanf:"secret_key"`
	Bucket    string `koanf:"bucket"`
	UseSSL    bool   `koanf:"use_ssl"`
}

// LeaderboardConfig weights problems in the overall ranking.
type LeaderboardConfig struct {
	Weights map[string]float64 `koanf:"weights"`
}

// SubmissionConfig bounds intake.
type SubmissionConfig struct {
	MaxSequencesPerProblem int   `koanf:"max_sequences_per_problem"`
	ModelSeeds             []int `koanf:"model_seeds"`
	DedupeSize             int   `koanf:"dedupe_size"`
}

// New creates a Config with defaults.
func New() *Config {
	return &Config{
		LogLevel:     "info",
		LogFormat:    "text",
		Addr:         ":9080",
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		DataDir:      "data",
		CatalogFile:  "catalog.yaml",
		Store: StoreConfig{
			Driver:      "memory",
			MaxConns:    10,
			MaxLifetime: 30 * time.Minute,
		},
		Queue: QueueConfig{
			Driver:   "memory",
			Capacity: 10_000,
			RedisKey: "foldboard:submit",
		},
		Scheduler: SchedulerConfig{
			Driver:     "slurm",
			Partition:  "gpu",
			Nice:       100,
			CPUs:       8,
			GPUs:       1,
			Sbatch:     "sbatch",
			Sacct:      "sacct",
			Scancel:    "scancel",
			Predictor:  "af3",
			LocalSlots: 1,
		},
		Passes: PassesConfig{
			SubmitInterval:     30 * time.Second,
			PollInterval:       5 * time.Minute,
			EvaluateInterval:   30 * time.Second,
			PublishInterval:    time.Minute,
			StatusTimeout:      20 * time.Second,
			UnknownGrace:       30 * time.Minute,
			ArtifactGrace:      15 * time.Minute,
			MaxAttempts:        3,
			MaxJobAge:          48 * time.Hour,
			SubmitRate:         1,
			SubmitBurst:        5,
			EvalConcurrency:    runtime.NumCPU(),
			PollConcurrency:    8,
			MetricsInterval:    10 * time.Second,
			ShutdownTimeout:    30 * time.Second,
			DistributedLockTTL: 10 * time.Minute,
		},
		Eval: EvalConfig{
			Aligner:       "builtin",
			AlignerBinary: "TMalign",
		},
		Artifacts: ArtifactsConfig{
			Driver:  "fs",
			Dir:     "results",
			BaseURL: "http://localhost:9080",
			Minio:   MinioConfig{Bucket: "foldboard-results"},
		},
		Leaderboard: LeaderboardConfig{Weights: map[string]float64{}},
		Submission: SubmissionConfig{
			MaxSequencesPerProblem: 5,
			ModelSeeds:             []int{1, 2, 3, 4, 5},
			DedupeSize:             100_000,
		},
	}
}
