// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"time"

	"github.com/nishisan-dev/spantar/internal/archive"
	"github.com/nishisan-dev/spantar/internal/config"
	"github.com/nishisan-dev/spantar/internal/device"
	"github.com/nishisan-dev/spantar/internal/journal"
	"github.com/nishisan-dev/spantar/internal/logging"
	"github.com/nishisan-dev/spantar/internal/mirror"
	"github.com/nishisan-dev/spantar/internal/progress"
	"github.com/nishisan-dev/spantar/internal/prompt"
	"github.com/nishisan-dev/spantar/internal/sink"
	"github.com/nishisan-dev/spantar/internal/sysmonitor"
	"github.com/nishisan-dev/spantar/internal/tarfmt"
	"github.com/nishisan-dev/spantar/internal/walk"
)

// runCreate implements the `create` command spec.md §6 names: either a
// fully ad-hoc invocation using the literal CLI surface (-f, -C,
// --format, -M, tunables, paths), or a --config-driven one for
// repeatable jobs, mirroring the teacher's cmd/nbackup-agent pattern of
// "a config file plus a couple of flags."
func runCreate(args []string) error {
	fs := flag.NewFlagSet("create", flag.ExitOnError)

	configPath := fs.String("config", "", "path to an ArchiveConfig YAML file; when set, it is the sole source of job/device/tunables and most other flags are ignored")
	file := fs.String("f", "", "destination file or device path")
	chdir := fs.String("C", ".", "base directory archive paths are taken relative to")
	format := fs.String("format", "ustar", "tar header format: ustar or posix")
	multiVolume := fs.Bool("M", false, "enable multi-volume spanning")
	deviceKind := fs.String("device-kind", "file", "destination kind: file, tape, or mem")
	channelQueueDepth := fs.Int("channel-queue-depth", 64, "bounded channel depth between traversal and the writer")
	parallelIOLimit := fs.Int("parallel-io-limit", 4, "traversal/header-gen worker pool size")
	blockingFactor := fs.Int("blocking-factor", 20, "tar record size in 512-byte blocks (record-oriented devices only)")
	serialBufferLimit := fs.String("serial-buffer-limit", "64mb", "AsyncWriteBuffer quota, e.g. 64mb, 1gb")
	journalPath := fs.String("journal", "", "crash-resume checkpoint file; empty disables resume")
	volumeLogDir := fs.String("volume-log-dir", "", "directory for per-volume debug logs; empty disables them")
	showProgress := fs.Bool("progress", false, "show a live progress line on stderr")
	logLevel := fs.String("log-level", "info", "debug, info, warn, or error")
	logFormat := fs.String("log-format", "json", "json or text")
	logFile := fs.String("log-file", "", "optional log file path (logs also go to stdout)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := buildArchiveConfig(*configPath, config.ArchiveConfig{
		Job: config.JobInfo{
			Name:        jobNameFromFile(*file),
			BaseDir:     *chdir,
			Paths:       fs.Args(),
			Format:      *format,
			JournalPath: *journalPath,
		},
		Device: config.DeviceInfo{Kind: *deviceKind, Path: *file},
		Tunables: config.Tunables{
			ChannelQueueDepth: *channelQueueDepth,
			ParallelIOLimit:   *parallelIOLimit,
			BlockingFactor:    *blockingFactor,
			SerialBufferLimit: *serialBufferLimit,
		},
		Spanning: config.SpanningInfo{Enabled: *multiVolume},
		Logging: config.LoggingInfo{
			Level:        *logLevel,
			Format:       *logFormat,
			FilePath:     *logFile,
			VolumeLogDir: *volumeLogDir,
		},
	})
	if err != nil {
		return err
	}

	logger, logCloser := logging.NewLogger(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.FilePath)
	defer logCloser.Close()

	return runArchive(context.Background(), cfg, *showProgress, logger)
}

// buildArchiveConfig loads cfg from configPath when given, otherwise
// validates and defaults adHoc directly (config.Load's own validate()
// is unexported, so an ad-hoc run performs the same handful of checks
// inline rather than round-tripping through YAML).
func buildArchiveConfig(configPath string, adHoc config.ArchiveConfig) (*config.ArchiveConfig, error) {
	if configPath != "" {
		return config.Load(configPath)
	}

	if adHoc.Job.Name == "" || len(adHoc.Job.Paths) == 0 {
		return nil, errors.New("create: at least one path to archive is required (or pass -config)")
	}
	switch adHoc.Job.Format {
	case "ustar", "posix":
	default:
		return nil, fmt.Errorf("create: --format must be ustar or posix, got %q", adHoc.Job.Format)
	}
	if adHoc.Device.Path == "" {
		return nil, errors.New("create: -f <file> is required (or pass -config)")
	}
	if _, err := config.ParseByteSize(adHoc.Tunables.SerialBufferLimit); err != nil {
		return nil, fmt.Errorf("create: --serial-buffer-limit: %w", err)
	}
	return &adHoc, nil
}

func jobNameFromFile(path string) string {
	if path == "" {
		return "spantar"
	}
	return path
}

// runArchive wires every package this repo has built into one create
// run: traversal, the sink stack, the create driver, crash-resume,
// optional progress, optional system monitoring, and optional offsite
// mirroring. This is the one place all of those collaborators meet.
func runArchive(ctx context.Context, cfg *config.ArchiveConfig, showProgress bool, logger *slog.Logger) error {
	fmtKind, ok := tarfmt.ParseFormat(cfg.Job.Format)
	if !ok {
		return fmt.Errorf("create: unrecognized format %q", cfg.Job.Format)
	}

	var j *journal.Journal
	var replay journal.Replay
	if cfg.Job.JournalPath != "" {
		var err error
		j, replay, err = journal.Resume(cfg.Job.JournalPath)
		if err != nil {
			return fmt.Errorf("create: resuming journal: %w", err)
		}
		defer j.Close()
		if len(replay.Committed) > 0 {
			logger.Info("resuming run", "already_committed", len(replay.Committed), "last_volume", replay.LastVolumeIndex)
		}
	}

	mon := sysmonitor.New(logger, cfg.Device.Path, 15*time.Second)
	mon.Start()
	defer mon.Stop()

	workers := cfg.Tunables.ParallelIOLimit
	if stats := mon.Stats(); stats.LoadAverage > 0 {
		workers = sysmonitor.RecommendedWorkers(cfg.Tunables.ParallelIOLimit, stats.LoadAverage, runtime.NumCPU())
	}

	meta := walk.NewDefaultMetadataSource()
	w := walk.New(cfg.Job.Paths, cfg.Job.BaseDir, cfg.Job.Exclude, meta, fmtKind, workers)
	entries := filterCommitted(w.Walk(ctx, cfg.Tunables.ChannelQueueDepth), replay.Committed, cfg.Tunables.ChannelQueueDepth, logger)

	mirrorUp, err := mirror.New(ctx, cfg.Mirror, logger)
	if err != nil {
		return fmt.Errorf("create: setting up mirror: %w", err)
	}

	// Reparsed here rather than read from cfg.Tunables.SerialBufferBytes():
	// that accessor is only populated by config.Load's validate() pass, and
	// an ad-hoc (flag-only) run never goes through it. ParseByteSize is
	// idempotent, so re-parsing the same string costs nothing either way.
	quotaBytes, err := config.ParseByteSize(cfg.Tunables.SerialBufferLimit)
	if err != nil {
		return fmt.Errorf("create: tunables.serial_buffer_limit: %w", err)
	}

	builder := &sinkBuilder{
		kind:           cfg.Device.Kind,
		namer:          newVolumeNamer(cfg.Device.Path),
		recordSize:     cfg.Tunables.BlockingFactor * 512,
		blockingFactor: cfg.Tunables.BlockingFactor,
		quota:          uint64(quotaBytes),
		jobName:        cfg.Job.Name,
		mirrorUp:       mirrorUp,
		logger:         logger,
		volumeLogDir:   cfg.Logging.VolumeLogDir,
	}

	var reporter *progress.Reporter
	var prog archive.ProgressReporter
	if showProgress {
		reporter = progress.New(cfg.Job.Name, 0, int64(len(cfg.Job.Paths)), os.Stderr)
		prog = reporter
		defer reporter.Stop()
	}

	driver, err := archive.NewCreateDriver(archive.Options{
		Entries:         entries,
		OpenSink:        builder.Open,
		Format:          fmtKind,
		Meta:            meta,
		SpanningEnabled: cfg.Spanning.Enabled,
		Prompt:          prompt.NewStdPrompt(os.Stdin, os.Stderr),
		Journal:         j,
		Progress:        prog,
	})
	if err != nil {
		return fmt.Errorf("create: building driver: %w", err)
	}

	runErr := driver.Run(ctx)
	builder.closeFinal(ctx)

	switch {
	case errors.Is(runErr, archive.ErrCancelled):
		logger.Warn("run cancelled by operator")
		return runErr
	case runErr != nil:
		return fmt.Errorf("create: %w", runErr)
	}

	if j != nil {
		if err := j.RecordRunFinished(); err != nil {
			return fmt.Errorf("create: closing journal: %w", err)
		}
	}
	logger.Info("archive complete", "volumes", builder.index)
	return nil
}

// filterCommitted re-emits every Result from in except those whose
// OriginalPath already appears in committed, so a resumed run skips
// files a prior attempt already made durable. Exact-path matching only
// — a resumed run is expected to be invoked with the same paths/base
// directory as the attempt it is resuming.
func filterCommitted(in <-chan walk.Result, committed map[string]journal.EntryCommitted, depth int, logger *slog.Logger) <-chan walk.Result {
	if len(committed) == 0 {
		return in
	}
	out := make(chan walk.Result, depth)
	go func() {
		defer close(out)
		for r := range in {
			if _, done := committed[r.OriginalPath]; done {
				logger.Debug("skipping already-committed entry", "path", r.OriginalPath)
				continue
			}
			out <- r
		}
	}()
	return out
}

// sinkBuilder implements archive.SinkOpener, assembling the sink stack
// per volume and handing the previous volume's device off to mirror
// once the driver has moved on to a new one. CreateDriver only sees a
// RecoverableSink and path-override strings; it has no notion of "this
// volume's file is now closed and at rest on disk," so that moment —
// and the decision of what to do with it — belongs here, not in
// internal/archive.
type sinkBuilder struct {
	kind           string
	namer          *volumeNamer
	recordSize     int
	blockingFactor int
	quota          uint64
	jobName        string
	mirrorUp       *mirror.Uploader
	logger         *slog.Logger
	volumeLogDir   string

	index     int
	curDevice device.TapeDevice
	curAsync  *sink.AsyncWriteBuffer
	curPath   string
}

// Open implements archive.SinkOpener.
func (b *sinkBuilder) Open(ctx context.Context, override string) (sink.RecoverableSink, error) {
	b.index++
	volIdx := b.index
	if b.kind != "file" {
		volIdx = 1 // only plain files get per-volume names; see volumeNamer
	}
	path := b.namer.Path(volIdx, override)

	dev, err := openDevice(b.kind, path, b.recordSize)
	if err != nil {
		return nil, err
	}

	var inner sink.RecoverableSink = sink.NewUnbuffered(dev)
	if b.kind == "tape" {
		// spec.md §2: "AsyncWriteBuffer → BlockingStage (for tape only)
		// → device" — a plain file has no record boundary to enforce.
		inner = sink.NewBlockingStage(inner, b.blockingFactor)
	}
	async := sink.NewAsyncWriteBuffer(inner, b.quota)

	if volLogger, closer, _, err := logging.NewVolumeLogger(b.logger, b.volumeLogDir, b.jobName, b.index); err == nil {
		b.logger.Info("volume mounted", "volume", b.index, "path", path)
		volLogger.Debug("volume mounted", "path", path)
		closer.Close()
	}

	b.closeVolume(ctx, b.curAsync, b.curDevice, b.curPath, b.index-1)
	b.curDevice, b.curAsync, b.curPath = dev, async, path
	return async, nil
}

// closeVolume flushes and closes a finished volume's sink stack and
// device, mirroring it offsite afterward if enabled. Runs in the
// background since the driver is already writing the next volume and
// should not block on it.
func (b *sinkBuilder) closeVolume(ctx context.Context, async *sink.AsyncWriteBuffer, dev device.TapeDevice, path string, index int) {
	if async == nil {
		return
	}
	go func() {
		if err := async.Flush(); err != nil {
			b.logger.Warn("flushing finished volume", "volume", index, "error", err)
		}
		async.Close()
		if err := dev.Close(); err != nil {
			b.logger.Warn("closing finished volume device", "volume", index, "error", err)
		}
		b.uploadVolume(ctx, path, index)
	}()
}

// closeFinal closes the last volume synchronously, so the process
// doesn't exit before its final mirror upload (if any) completes.
func (b *sinkBuilder) closeFinal(ctx context.Context) {
	if b.curAsync == nil {
		return
	}
	if err := b.curAsync.Flush(); err != nil {
		b.logger.Warn("flushing final volume", "volume", b.index, "error", err)
	}
	b.curAsync.Close()
	if err := b.curDevice.Close(); err != nil {
		b.logger.Warn("closing final volume device", "volume", b.index, "error", err)
	}
	b.uploadVolume(ctx, b.curPath, b.index)
}

func (b *sinkBuilder) uploadVolume(ctx context.Context, path string, index int) {
	if b.mirrorUp == nil {
		return
	}
	key, err := b.mirrorUp.UploadVolume(ctx, path, b.jobName, index)
	if err != nil {
		b.logger.Error("mirroring volume failed", "volume", index, "path", path, "error", err)
		return
	}
	b.logger.Info("mirrored volume", "volume", index, "path", path, "key", key)
}
