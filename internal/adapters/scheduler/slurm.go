package scheduler

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/template"

	"github.com/okian/foldboard/internal/adapters/command"
)

const scriptFile = "job.sbatch"

// queueFullMarkers are sbatch error fragments meaning "try again later".
var queueFullMarkers = []string{
	"QOSMaxSubmitJobPerUserLimit",
	"AssocMaxSubmitJobLimit",
	"Job violates accounting/QOS policy",
}

var scriptTemplate = template.Must(template.New("sbatch").Parse(`#!/bin/bash
#SBATCH -J {{.Name}}
#SBATCH -o {{.Log}}
#SBATCH -e {{.Log}}
#SBATCH --nice={{.Nice}}
#SBATCH --dependency=singleton
{{- if .Exclude}}
#SBATCH --exclude={{.Exclude}}
{{- end}}
#SBATCH -p {{.Partition}}
#SBATCH --gres=gpu:{{.GPUs}}
#SBATCH -N 1
#SBATCH -c {{.CPUs}}

echo "Starting prediction for {{.JobID}}"
echo "Start time: $(date)"

{{.Predictor}} --json_path={{.Input}} --output_dir={{.Output}}

echo "End time: $(date)"
`))

// SlurmConfig holds the sbatch resources and CLI paths.
type SlurmConfig struct {
	Partition string
	Nice      int
	CPUs      int
	GPUs      int
	Exclude   []string
	Sbatch    string
	Sacct     string
	Scancel   string
	Predictor string
}

// Slurm drives a SLURM cluster through its command line tools.
type Slurm struct {
	cfg  SlurmConfig
	exec command.Executor
}

var _ Scheduler = (*Slurm)(nil)

// NewSlurm creates a SLURM scheduler adapter.
func NewSlurm(cfg SlurmConfig, exec command.Executor) *Slurm {
	if cfg.Sbatch == "" {
		cfg.Sbatch = "sbatch"
	}
	if cfg.Sacct == "" {
		cfg.Sacct = "sacct"
	}
	if cfg.Scancel == "" {
		cfg.Scancel = "scancel"
	}
	if cfg.GPUs < 1 {
		cfg.GPUs = 1
	}
	if cfg.CPUs < 1 {
		cfg.CPUs = 1
	}
	return &Slurm{cfg: cfg, exec: exec}
}

// Name implements Scheduler.
func (s *Slurm) Name() string { return "slurm" }

// Script renders the batch script for req. The job is named after the
// participant so the singleton dependency runs one job per participant at a time.
func (s *Slurm) Script(req Request) (string, error) {
	name := req.Participant
	if name == "" {
		name = req.JobID
	}
	var buf bytes.Buffer
	err := scriptTemplate.Execute(&buf, map[string]any{
		"Name":      name,
		"JobID":     req.JobID,
		"Log":       filepath.Join(req.LogsDir, req.JobID+".log"),
		"Nice":      s.cfg.Nice,
		"Exclude":   strings.Join(s.cfg.Exclude, ","),
		"Partition": s.cfg.Partition,
		"GPUs":      s.cfg.GPUs,
		"CPUs":      s.cfg.CPUs,
		"Predictor": s.cfg.Predictor,
		"Input":     req.DescriptorPath,
		"Output":    req.OutputDir,
	})
	if err != nil {
		return "", fmt.Errorf("render sbatch script: %w", err)
	}
	return buf.String(), nil
}

// Submit implements Scheduler.
func (s *Slurm) Submit(ctx context.Context, req Request) (string, error) {
	script, err := s.Script(req)
	if err != nil {
		return "", err
	}
	path := filepath.Join(filepath.Dir(req.DescriptorPath), scriptFile)
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil { //nolint:gosec // batch scripts are executable
		return "", fmt.Errorf("write sbatch script: %w", err)
	}

	res, err := s.exec.Execute(ctx, command.New(s.cfg.Sbatch, "--parsable", path))
	if err != nil {
		return "", fmt.Errorf("sbatch: %w", err)
	}
	out := res.Output()
	if !res.Success() {
		if isQueueFull(out) {
			return "", ErrQueueFull
		}
		return "", fmt.Errorf("%w: exit %d: %s", ErrSubmit, res.ExitCode, out)
	}
	id := parseSubmitted(string(res.Stdout))
	if id == "" {
		return "", fmt.Errorf("%w: no job id in %q", ErrSubmit, out)
	}
	return id, nil
}

// Status implements Scheduler.
func (s *Slurm) Status(ctx context.Context, externalID string) (Status, error) {
	res, err := s.exec.Execute(ctx, command.New(s.cfg.Sacct,
		"-j", externalID, "--format=JobID,State,ExitCode,End", "--noheader", "-P"))
	if err != nil {
		return StatusUnknown, fmt.Errorf("sacct: %w", err)
	}
	if !res.Success() {
		return StatusUnknown, fmt.Errorf("sacct: exit %d: %s", res.ExitCode, res.Output())
	}
	return ParseSacct(string(res.Stdout), externalID), nil
}

// Cancel implements Scheduler.
func (s *Slurm) Cancel(ctx context.Context, externalID string) error {
	res, err := s.exec.Execute(ctx, command.New(s.cfg.Scancel, externalID))
	if err != nil {
		return fmt.Errorf("scancel: %w", err)
	}
	if !res.Success() {
		return fmt.Errorf("scancel: exit %d: %s", res.ExitCode, res.Output())
	}
	return nil
}

func isQueueFull(out string) bool {
	for _, m := range queueFullMarkers {
		if strings.Contains(out, m) {
			return true
		}
	}
	return false
}

// parseSubmitted reads "12345" or "12345;cluster" as printed by sbatch --parsable,
// and also accepts the human "Submitted batch job 12345" form.
func parseSubmitted(out string) string {
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		line = strings.TrimSpace(line)
		if f := strings.Fields(line); len(f) == 4 && strings.HasPrefix(line, "Submitted batch job") {
			return f[3]
		}
		id, _, _ := strings.Cut(line, ";")
		if id != "" && strings.Trim(id, "0123456789_") == "" {
			return id
		}
	}
	return ""
}

// ParseSacct maps `sacct -P` output for one job to a Status. Only the main
// job line counts; step lines (12345.batch) are ignored.
func ParseSacct(out, externalID string) Status {
	for _, line := range strings.Split(out, "\n") {
		parts := strings.Split(strings.TrimSpace(line), "|")
		if len(parts) < 3 || strings.Contains(parts[0], ".") {
			continue
		}
		if externalID != "" && parts[0] != externalID {
			continue
		}
		return slurmState(parts[1], parts[2])
	}
	return StatusUnknown
}

func slurmState(state, exitCode string) Status {
	// "CANCELLED by 1000"
	if f := strings.Fields(state); len(f) > 0 {
		state = strings.TrimSuffix(f[0], "+")
	}
	switch state {
	case "PENDING", "REQUEUED", "REQUEUE_HOLD", "REQUEUE_FED", "SUSPENDED", "RESV_DEL_HOLD":
		return StatusQueued
	case "RUNNING", "COMPLETING", "CONFIGURING", "STAGE_OUT", "SIGNALING", "RESIZING":
		return StatusRunning
	case "COMPLETED":
		if exitCode == "0:0" {
			return StatusSucceeded
		}
		return StatusFailed
	case "FAILED", "CANCELLED", "TIMEOUT", "OUT_OF_MEMORY", "NODE_FAIL",
		"PREEMPTED", "BOOT_FAIL", "DEADLINE", "REVOKED", "SPECIAL_EXIT":
		return StatusFailed
	}
	return StatusUnknown
}
