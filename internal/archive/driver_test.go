// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package archive

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/nishisan-dev/spantar/internal/device"
	"github.com/nishisan-dev/spantar/internal/sink"
	"github.com/nishisan-dev/spantar/internal/tarfmt"
	"github.com/nishisan-dev/spantar/internal/walk"
	"github.com/nishisan-dev/spantar/internal/zone"
)

// alwaysContinue is a VolumePrompt stub that always answers as if the
// operator mounted the next volume and typed 'y'.
type alwaysContinue struct{ asked int }

func (p *alwaysContinue) Ask(ctx context.Context, uncommitted []zone.Zone) (PromptAction, string, error) {
	p.asked++
	return ActionMountSamePath, "", nil
}

func TestCreateDriver_RecoversTailAfterShortWrite(t *testing.T) {
	dir := t.TempDir()
	content := bytes.Repeat([]byte{0xAB}, 1500)
	path := filepath.Join(dir, "big.bin")
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	mtime := time.Unix(1700000000, 0)
	h := tarfmt.Header{
		Path:     "big.bin",
		UnixMode: 0o644,
		FileSize: uint64(len(content)),
		Mtime:    mtime,
		FileType: tarfmt.TypeRegular,
	}
	encoded, err := tarfmt.Encode(&h, tarfmt.FormatUSTAR)
	if err != nil {
		t.Fatalf("encode header: %v", err)
	}
	if encoded.HeaderLength != 512 {
		t.Fatalf("expected a 512-byte USTAR header, got %d", encoded.HeaderLength)
	}

	entries := make(chan walk.Result, 1)
	entries <- walk.Result{
		Header:        h,
		Encoded:       encoded,
		OriginalPath:  "big.bin",
		CanonicalPath: path,
		FilePrefix:    content,
	}
	close(entries)

	var devices []*device.MemDevice
	opener := func(ctx context.Context, pathOverride string) (sink.RecoverableSink, error) {
		failAt := 0
		if len(devices) == 0 {
			// Fails partway through flushing this file's buffered tail
			// record: three whole records (header + two content records)
			// land, the fourth (tail + padding) does not.
			failAt = 1536
		}
		dev := device.NewMemDevice(512, failAt)
		devices = append(devices, dev)
		return sink.NewBlockingStage(sink.NewUnbuffered(dev), 1), nil
	}

	prompt := &alwaysContinue{}

	drv, err := NewCreateDriver(Options{
		Entries:         entries,
		OpenSink:        opener,
		Format:          tarfmt.FormatUSTAR,
		Meta:            walk.NewDefaultMetadataSource(),
		SpanningEnabled: true,
		Prompt:          prompt,
	})
	if err != nil {
		t.Fatalf("NewCreateDriver: %v", err)
	}

	if err := drv.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(devices) != 2 {
		t.Fatalf("expected exactly one recovery volume to be opened, got %d devices", len(devices))
	}
	if prompt.asked != 1 {
		t.Fatalf("expected the operator to be prompted exactly once, got %d", prompt.asked)
	}

	vol1 := devices[0].Bytes()
	if len(vol1) != 1536 {
		t.Fatalf("volume 1: expected 1536 committed bytes (header + 2 full records), got %d", len(vol1))
	}
	if !bytes.Equal(vol1[:512], encoded.Bytes) {
		t.Fatalf("volume 1: header mismatch")
	}
	if !bytes.Equal(vol1[512:1536], content[:1024]) {
		t.Fatalf("volume 1: expected first 1024 content bytes, got mismatch")
	}

	vol2 := devices[1].Bytes()
	if len(vol2) != 2048 {
		t.Fatalf("volume 2: expected 2048 bytes (continuation header + tail record + 2 trailer records), got %d", len(vol2))
	}

	contHeader := vol2[:512]
	if contHeader[156] != byte(tarfmt.TypeRegular) {
		t.Fatalf("volume 2: continuation header typeflag = %q, want regular", contHeader[156])
	}

	tail := vol2[512 : 512+476]
	if !bytes.Equal(tail, content[1024:1500]) {
		t.Fatalf("volume 2: recovered tail does not match the bytes never committed to volume 1")
	}
	pad := vol2[512+476 : 1024]
	if !bytes.Equal(pad, make([]byte, 36)) {
		t.Fatalf("volume 2: expected 36 zero pad bytes after the recovered tail")
	}

	trailer := vol2[1024:2048]
	if !bytes.Equal(trailer, make([]byte, 1024)) {
		t.Fatalf("volume 2: expected a 1024-byte zero end-of-archive marker")
	}
}

func TestEntryFromZone(t *testing.T) {
	e := RecoveryEntry{OriginalPath: "a", CanonicalPath: "a", HeaderLength: 512}
	z := zone.Zone{Identity: e.Identity(), Length: 100, Committed: 50, Uncommitted: 50}

	got, ok := entryFromZone(z)
	if !ok || got != e {
		t.Fatalf("expected to recover %+v, got %+v (ok=%v)", e, got, ok)
	}

	slack := zone.Zone{Length: 10, Uncommitted: 10}
	if _, ok := entryFromZone(slack); ok {
		t.Fatalf("expected a slack zone to have no RecoveryEntry")
	}
}
