// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "spantar.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write fixture config: %v", err)
	}
	return path
}

func TestLoad_FillsDefaults(t *testing.T) {
	path := writeConfig(t, `
job:
  name: nightly-full
  paths: ["/srv/data"]
device:
  kind: file
  path: /volumes/nightly.tar
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Job.Format != "ustar" {
		t.Fatalf("got format %q, want default ustar", cfg.Job.Format)
	}
	if cfg.Tunables.ChannelQueueDepth != defaultChannelQueueDepth {
		t.Fatalf("got channel queue depth %d, want default %d", cfg.Tunables.ChannelQueueDepth, defaultChannelQueueDepth)
	}
	if cfg.Tunables.ParallelIOLimit != defaultParallelIOLimit {
		t.Fatalf("got parallel io limit %d, want default %d", cfg.Tunables.ParallelIOLimit, defaultParallelIOLimit)
	}
	if cfg.Tunables.SerialBufferBytes() != 64*1024*1024 {
		t.Fatalf("got serial buffer %d bytes, want 64mb", cfg.Tunables.SerialBufferBytes())
	}
	if cfg.Logging.Level != "info" || cfg.Logging.Format != "json" {
		t.Fatalf("got logging %+v, want defaults info/json", cfg.Logging)
	}
}

func TestLoad_RejectsMissingRequiredFields(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{"no job name", "job:\n  paths: [\"/a\"]\ndevice:\n  kind: file\n  path: /x\n"},
		{"no paths", "job:\n  name: x\ndevice:\n  kind: file\n  path: /x\n"},
		{"bad format", "job:\n  name: x\n  paths: [\"/a\"]\n  format: zip\ndevice:\n  kind: file\n  path: /x\n"},
		{"no device kind", "job:\n  name: x\n  paths: [\"/a\"]\n"},
		{"file device missing path", "job:\n  name: x\n  paths: [\"/a\"]\ndevice:\n  kind: file\n"},
		{"mirror enabled without bucket", "job:\n  name: x\n  paths: [\"/a\"]\ndevice:\n  kind: file\n  path: /x\nmirror:\n  enabled: true\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := writeConfig(t, tc.body)
			if _, err := Load(path); err == nil {
				t.Fatalf("expected Load to reject config, got no error")
			}
		})
	}
}

func TestParseByteSize(t *testing.T) {
	cases := map[string]int64{
		"256mb": 256 * 1024 * 1024,
		"1gb":   1024 * 1024 * 1024,
		"512kb": 512 * 1024,
		"10b":   10,
		"42":    42,
	}
	for in, want := range cases {
		got, err := ParseByteSize(in)
		if err != nil {
			t.Fatalf("ParseByteSize(%q): %v", in, err)
		}
		if got != want {
			t.Fatalf("ParseByteSize(%q) = %d, want %d", in, got, want)
		}
	}

	if _, err := ParseByteSize(""); err == nil {
		t.Fatalf("expected an error for an empty size string")
	}
	if _, err := ParseByteSize("notasize"); err == nil {
		t.Fatalf("expected an error for an unparseable size string")
	}
}
