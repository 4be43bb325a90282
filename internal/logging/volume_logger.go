// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
)

// fanOutHandler dispatches each record to two handlers. Used by
// NewVolumeLogger to write simultaneously to the job's global handler
// and a volume-dedicated log file. Ported from the teacher's
// session_logger.go fanOutHandler unchanged — the fan-out mechanics
// don't depend on what "session" vs. "volume" means to the caller.
type fanOutHandler struct {
	primary   slog.Handler
	secondary slog.Handler
}

func (h *fanOutHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.primary.Enabled(ctx, level) || h.secondary.Enabled(ctx, level)
}

func (h *fanOutHandler) Handle(ctx context.Context, r slog.Record) error {
	if h.primary.Enabled(ctx, r.Level) {
		if err := h.primary.Handle(ctx, r); err != nil {
			return err
		}
	}
	// A write failure on the volume log must not take down the global log.
	if h.secondary.Enabled(ctx, r.Level) {
		_ = h.secondary.Handle(ctx, r)
	}
	return nil
}

func (h *fanOutHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &fanOutHandler{
		primary:   h.primary.WithAttrs(attrs),
		secondary: h.secondary.WithAttrs(attrs),
	}
}

func (h *fanOutHandler) WithGroup(name string) slog.Handler {
	return &fanOutHandler{
		primary:   h.primary.WithGroup(name),
		secondary: h.secondary.WithGroup(name),
	}
}

// NewVolumeLogger creates a logger that writes to both baseLogger
// (global) and a file dedicated to one volume of one job, at:
//
//	{volumeLogDir}/{jobName}/volume-{volumeIndex}.log
//
// Returns the enriched logger, an io.Closer for the volume file (must
// be called when the volume finishes), and the file's absolute path.
// If volumeLogDir is empty, returns baseLogger unmodified (no-op) —
// mirroring the teacher's NewSessionLogger, generalized from one log
// file per backup session to one per archive volume, since spec.md's
// multi-volume spanning makes "which volume logged this line" the
// equivalent operational question here.
func NewVolumeLogger(baseLogger *slog.Logger, volumeLogDir, jobName string, volumeIndex int) (*slog.Logger, io.Closer, string, error) {
	if volumeLogDir == "" {
		return baseLogger, io.NopCloser(nil), "", nil
	}

	dir := filepath.Join(volumeLogDir, jobName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, nil, "", fmt.Errorf("creating volume log directory %s: %w", dir, err)
	}

	logPath := filepath.Join(dir, fmt.Sprintf("volume-%d.log", volumeIndex))
	f, err := os.OpenFile(logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, nil, "", fmt.Errorf("opening volume log file %s: %w", logPath, err)
	}

	// The volume file always captures at DEBUG for maximum detail.
	fileHandler := slog.NewJSONHandler(f, &slog.HandlerOptions{Level: slog.LevelDebug})

	combined := &fanOutHandler{
		primary:   baseLogger.Handler(),
		secondary: fileHandler,
	}

	return slog.New(combined), f, logPath, nil
}

// RemoveVolumeLog deletes a finished volume's dedicated log file. No-op
// if volumeLogDir is empty or the file does not exist — a volume that
// committed cleanly doesn't need its per-volume log kept around
// alongside the global log that already captured everything.
func RemoveVolumeLog(volumeLogDir, jobName string, volumeIndex int) {
	if volumeLogDir == "" {
		return
	}
	logPath := filepath.Join(volumeLogDir, jobName, fmt.Sprintf("volume-%d.log", volumeIndex))
	os.Remove(logPath)
}
