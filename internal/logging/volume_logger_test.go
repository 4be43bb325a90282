// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package logging

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewVolumeLogger_Disabled(t *testing.T) {
	base := slog.New(slog.NewTextHandler(os.Stderr, nil))

	logger, closer, path, err := NewVolumeLogger(base, "", "nightly-full", 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer closer.Close()

	if logger != base {
		t.Error("expected base logger when volumeLogDir is empty")
	}
	if path != "" {
		t.Errorf("expected empty path, got %q", path)
	}
}

func TestNewVolumeLogger_CreatesFileAndLogs(t *testing.T) {
	dir := t.TempDir()
	var baseBuf bytes.Buffer
	base := slog.New(slog.NewJSONHandler(&baseBuf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	logger, closer, logPath, err := NewVolumeLogger(base, dir, "nightly-full", 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	jobDir := filepath.Join(dir, "nightly-full")
	if _, err := os.Stat(jobDir); os.IsNotExist(err) {
		t.Fatalf("job dir not created: %s", jobDir)
	}

	expectedPath := filepath.Join(jobDir, "volume-2.log")
	if logPath != expectedPath {
		t.Errorf("expected path %q, got %q", expectedPath, logPath)
	}

	logger.Info("volume mounted", "path", "/dev/nst1")
	closer.Close()

	if !strings.Contains(baseBuf.String(), "volume mounted") {
		t.Errorf("log message not found in base handler output: %s", baseBuf.String())
	}

	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("reading volume log file: %v", err)
	}
	content := string(data)
	if !strings.Contains(content, "volume mounted") {
		t.Errorf("log message not found in volume file: %s", content)
	}
	if !strings.Contains(content, `"path":"/dev/nst1"`) {
		t.Errorf("structured key not found in volume file: %s", content)
	}
}

func TestNewVolumeLogger_DebugInFileInfoInBase(t *testing.T) {
	dir := t.TempDir()

	var baseBuf bytes.Buffer
	base := slog.New(slog.NewJSONHandler(&baseBuf, &slog.HandlerOptions{Level: slog.LevelInfo}))

	logger, closer, logPath, err := NewVolumeLogger(base, dir, "nightly-full", 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	logger.Debug("debug only message")
	logger.Info("info for both")
	closer.Close()

	if strings.Contains(baseBuf.String(), "debug only message") {
		t.Error("DEBUG message should not appear in base handler with INFO level")
	}
	if !strings.Contains(baseBuf.String(), "info for both") {
		t.Error("INFO message missing from base handler")
	}

	data, _ := os.ReadFile(logPath)
	content := string(data)
	if !strings.Contains(content, "debug only message") {
		t.Errorf("DEBUG message missing from volume file: %s", content)
	}
	if !strings.Contains(content, "info for both") {
		t.Errorf("INFO message missing from volume file: %s", content)
	}
}

func TestRemoveVolumeLog(t *testing.T) {
	dir := t.TempDir()
	jobDir := filepath.Join(dir, "nightly-full")
	if err := os.MkdirAll(jobDir, 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	logPath := filepath.Join(jobDir, "volume-5.log")
	if err := os.WriteFile(logPath, []byte("test"), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	RemoveVolumeLog(dir, "nightly-full", 5)

	if _, err := os.Stat(logPath); !os.IsNotExist(err) {
		t.Error("volume log file should have been removed")
	}
}

func TestRemoveVolumeLog_NoOpWhenEmpty(t *testing.T) {
	RemoveVolumeLog("", "job", 1)
}

func TestRemoveVolumeLog_NoOpWhenFileMissing(t *testing.T) {
	RemoveVolumeLog(t.TempDir(), "job", 99)
}

func TestNewVolumeLogger_WithAttrs(t *testing.T) {
	dir := t.TempDir()
	var baseBuf bytes.Buffer
	base := slog.New(slog.NewJSONHandler(&baseBuf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	logger, closer, logPath, err := NewVolumeLogger(base, dir, "nightly-full", 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	enriched := logger.With("volume", 3, "device", "/dev/nst0")
	enriched.Info("enriched message")
	closer.Close()

	if !strings.Contains(baseBuf.String(), "/dev/nst0") {
		t.Error("device attr missing from base handler")
	}

	data, _ := os.ReadFile(logPath)
	content := string(data)
	if !strings.Contains(content, "/dev/nst0") {
		t.Errorf("device attr missing from volume file: %s", content)
	}
}
