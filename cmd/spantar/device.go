// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/nishisan-dev/spantar/internal/device"
)

// openDevice opens path as a TapeDevice according to kind, using
// recordSize (blockingFactor*512) for the "file" and "mem" kinds,
// whose devices treat every read/write as one fixed-size record. "tape"
// ignores recordSize on open (OpenLinuxTape sets variable block mode
// per spec.md §9) but the BlockingStage wrapping it still fragments on
// recordSize.
func openDevice(kind, path string, recordSize int) (device.TapeDevice, error) {
	switch kind {
	case "tape":
		return device.OpenLinuxTape(path, recordSize)
	case "file":
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
		if err != nil {
			return nil, fmt.Errorf("opening volume file %s: %w", path, err)
		}
		return device.NewFileDevice(f, recordSize), nil
	case "mem":
		return device.NewMemDevice(recordSize, 0), nil
	default:
		return nil, fmt.Errorf("unknown device kind %q", kind)
	}
}

// volumeNamer derives each successive volume's destination path for
// the "file" device kind, since a plain file has no physical swap for
// "mount the same path again" to mean: volume 1 keeps the configured
// path exactly, and every later volume gets a "-volNNN" suffix
// inserted before the extension, so recovery never truncates an
// earlier volume still on disk. "tape" and "mem" kinds have no use for
// this — a tape's "next volume" is the operator swapping a physical
// cartridge behind the same device node, and mem is test-only.
type volumeNamer struct {
	base string
}

func newVolumeNamer(base string) *volumeNamer {
	return &volumeNamer{base: base}
}

// Path returns the destination for volumeIndex (1-based). override, if
// non-empty, replaces the base path for this and every later volume
// (the operator chose a new destination via the recovery prompt's
// "n <path>" answer).
func (n *volumeNamer) Path(volumeIndex int, override string) string {
	if override != "" {
		n.base = override
	}
	if volumeIndex <= 1 {
		return n.base
	}

	ext := filepath.Ext(n.base)
	stem := strings.TrimSuffix(n.base, ext)
	return fmt.Sprintf("%s-vol%03d%s", stem, volumeIndex, ext)
}
