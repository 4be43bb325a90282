// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package progress

import (
	"bytes"
	"strings"
	"testing"
	"time"
)

func TestReporter_CountersAccumulate(t *testing.T) {
	var out bytes.Buffer
	r := New("job", 0, 0, &out)

	r.AddBytes(512)
	r.AddBytes(256)
	r.AddObject()
	r.AddObject()
	r.AddRetry()

	if got := r.bytesWritten.Load(); got != 768 {
		t.Errorf("expected 768 bytes, got %d", got)
	}
	if got := r.objectsDone.Load(); got != 2 {
		t.Errorf("expected 2 objects, got %d", got)
	}
	if got := r.retries.Load(); got != 1 {
		t.Errorf("expected 1 retry, got %d", got)
	}

	r.Stop()
}

func TestReporter_StopPrintsFinalLine(t *testing.T) {
	var out bytes.Buffer
	r := New("nightly-full", 1000, 10, &out)
	r.AddBytes(500)
	r.AddObject()
	r.Stop()

	line := out.String()
	if !strings.HasPrefix(line, "\r[nightly-full]") {
		t.Errorf("expected final line to start with job name, got %q", line)
	}
	if !strings.HasSuffix(line, "\n") {
		t.Error("expected final line to be newline-terminated")
	}
}

func TestReporter_RetriesSurfaceAsVolumeCount(t *testing.T) {
	var out bytes.Buffer
	r := New("job", 0, 0, &out)
	r.AddRetry()
	r.AddRetry()
	r.Stop()

	if !strings.Contains(out.String(), "volumes: 3") {
		t.Errorf("expected 2 retries to render as 3 volumes, got %q", out.String())
	}
}

func TestReporter_ZeroTotalsFallBackToSpinner(t *testing.T) {
	var out bytes.Buffer
	r := New("job", 0, 0, &out)
	r.AddBytes(123)
	r.Stop()

	if !strings.Contains(out.String(), "ETA ∞") {
		t.Errorf("expected indeterminate ETA without totals, got %q", out.String())
	}
}

func TestFormatBytes(t *testing.T) {
	cases := map[int64]string{
		0:                      "0 B",
		1023:                   "1023 B",
		1024:                   "1.0 KB",
		5 * 1024 * 1024:        "5.0 MB",
		3 * 1024 * 1024 * 1024: "3.0 GB",
	}
	for in, want := range cases {
		if got := formatBytes(in); got != want {
			t.Errorf("formatBytes(%d) = %q, want %q", in, got, want)
		}
	}
}

func TestFormatDuration(t *testing.T) {
	if got := formatDuration(90 * time.Second); got != "1:30" {
		t.Errorf("expected 1:30, got %q", got)
	}
	if got := formatDuration(3661 * time.Second); got != "1:01:01" {
		t.Errorf("expected 1:01:01, got %q", got)
	}
}

func TestFormatNumber(t *testing.T) {
	if got := formatNumber(999); got != "999" {
		t.Errorf("expected 999, got %q", got)
	}
	if got := formatNumber(1234567); got != "1,234,567" {
		t.Errorf("expected 1,234,567, got %q", got)
	}
}
