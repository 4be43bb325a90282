// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

// Package scheduler runs one cron job per configured archive, invoking
// a caller-supplied create function on each firing. Adapted from the
// teacher's internal/agent.Scheduler, which does the same thing for
// backup entries; here each "entry" is a whole loaded ArchiveConfig
// (one archive job per YAML file, spantar's --config unit) rather than
// one of several entries inside a single agent config, since spantar
// has no multi-entry config shape of its own.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/nishisan-dev/spantar/internal/config"
)

// RunResult records one scheduled run's outcome, mirroring the
// teacher's BackupJobResult.
type RunResult struct {
	Status          string // "completed", "failed", or "skipped"
	DurationSeconds float64
	Timestamp       time.Time
	Err             error
}

// Job pairs a loaded archive config with its run-guard and last
// result, the same shape as the teacher's BackupJob generalized from
// "one backup entry" to "one archive config."
type Job struct {
	Cfg *config.ArchiveConfig

	mu         sync.Mutex
	running    bool
	LastResult *RunResult
}

// RunFunc performs one scheduled archive run. ctx is a fresh
// background context per firing (spec.md's create operation has no
// natural per-invocation deadline beyond what the caller chooses to
// enforce).
type RunFunc func(ctx context.Context, cfg *config.ArchiveConfig, logger *slog.Logger) error

// Scheduler manages N independent cron jobs, one per configured
// archive.
type Scheduler struct {
	cron   *cron.Cron
	logger *slog.Logger
	jobs   []*Job
}

// New builds a Scheduler with one cron entry per cfgs element whose
// Schedule.Cron is non-empty; entries with no cron expression are
// loaded (so Jobs() reports on them) but never fire — a one-shot
// config included for reference in a multi-job deployment.
func New(cfgs []*config.ArchiveConfig, logger *slog.Logger, run RunFunc) (*Scheduler, error) {
	s := &Scheduler{
		logger: logger,
	}

	c := cron.New(cron.WithLogger(cron.VerbosePrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelDebug))))

	for _, cfg := range cfgs {
		job := &Job{Cfg: cfg}
		s.jobs = append(s.jobs, job)

		if cfg.Schedule.Cron == "" {
			continue
		}

		jobRef := job
		if _, err := c.AddFunc(cfg.Schedule.Cron, func() {
			s.executeJob(jobRef, run)
		}); err != nil {
			return nil, fmt.Errorf("scheduler: adding cron job for %q: %w", cfg.Job.Name, err)
		}

		logger.Info("registered archive job",
			"job", cfg.Job.Name,
			"schedule", cfg.Schedule.Cron,
		)
	}

	s.cron = c
	return s, nil
}

// Start begins firing registered cron jobs.
func (s *Scheduler) Start() {
	s.logger.Info("scheduler started", "jobs", len(s.jobs))
	s.cron.Start()
}

// Stop stops accepting new firings and waits for in-flight runs to
// finish, up to ctx's deadline.
func (s *Scheduler) Stop(ctx context.Context) {
	s.logger.Info("scheduler stopping")
	stopCtx := s.cron.Stop()

	select {
	case <-stopCtx.Done():
		s.logger.Info("scheduler stopped gracefully")
	case <-ctx.Done():
		s.logger.Warn("scheduler stop timed out")
	}
}

// Jobs returns the registered jobs, for a status/health endpoint to
// report on.
func (s *Scheduler) Jobs() []*Job {
	return s.jobs
}

func (s *Scheduler) executeJob(job *Job, run RunFunc) {
	jobLogger := s.logger.With("job", job.Cfg.Job.Name)

	job.mu.Lock()
	if job.running {
		job.mu.Unlock()
		jobLogger.Warn("archive run already in progress, skipping scheduled firing")
		job.LastResult = &RunResult{Status: "skipped", Timestamp: time.Now()}
		return
	}
	job.running = true
	job.mu.Unlock()

	defer func() {
		job.mu.Lock()
		job.running = false
		job.mu.Unlock()
	}()

	jobLogger.Info("scheduled archive run triggered")
	start := time.Now()

	err := run(context.Background(), job.Cfg, jobLogger)
	duration := time.Since(start)

	if err != nil {
		jobLogger.Error("archive run failed", "error", err, "duration", duration)
		job.LastResult = &RunResult{Status: "failed", DurationSeconds: duration.Seconds(), Timestamp: time.Now(), Err: err}
		return
	}

	jobLogger.Info("archive run completed", "duration", duration)
	job.LastResult = &RunResult{Status: "completed", DurationSeconds: duration.Seconds(), Timestamp: time.Now()}
}
