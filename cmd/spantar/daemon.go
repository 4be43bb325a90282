// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/nishisan-dev/spantar/internal/config"
	"github.com/nishisan-dev/spantar/internal/logging"
	"github.com/nishisan-dev/spantar/internal/scheduler"
)

// runDaemon loads one ArchiveConfig per --config flag occurrence and
// runs each on its own cron schedule until interrupted, mirroring the
// teacher's cmd/nbackup-agent daemon mode (load config, build a
// logger, hand off to a long-running component, wait for a signal).
func runDaemon(args []string) error {
	fs := flag.NewFlagSet("daemon", flag.ExitOnError)
	var configPaths multiFlag
	fs.Var(&configPaths, "config", "path to an ArchiveConfig YAML file; repeat for multiple jobs")
	logLevel := fs.String("log-level", "info", "debug, info, warn, or error")
	logFormat := fs.String("log-format", "json", "json or text")
	logFile := fs.String("log-file", "", "optional log file path (logs also go to stdout)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if len(configPaths) == 0 {
		return fmt.Errorf("daemon: at least one -config is required")
	}

	logger, logCloser := logging.NewLogger(*logLevel, *logFormat, *logFile)
	defer logCloser.Close()

	cfgs := make([]*config.ArchiveConfig, 0, len(configPaths))
	for _, p := range configPaths {
		cfg, err := config.Load(p)
		if err != nil {
			return fmt.Errorf("daemon: loading %s: %w", p, err)
		}
		cfgs = append(cfgs, cfg)
	}

	sched, err := scheduler.New(cfgs, logger, func(ctx context.Context, cfg *config.ArchiveConfig, jobLogger *slog.Logger) error {
		return runArchive(ctx, cfg, false, jobLogger)
	})
	if err != nil {
		return fmt.Errorf("daemon: building scheduler: %w", err)
	}

	sched.Start()
	logger.Info("daemon started", "jobs", len(cfgs))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	logger.Info("daemon shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	sched.Stop(shutdownCtx)
	return nil
}

// multiFlag collects repeated -config flags into a slice, the same
// "flag.Var with a custom slice type" idiom the stdlib flag package
// itself documents for repeatable flags.
type multiFlag []string

func (m *multiFlag) String() string {
	return fmt.Sprint([]string(*m))
}

func (m *multiFlag) Set(v string) error {
	*m = append(*m, v)
	return nil
}
