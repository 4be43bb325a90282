// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package sink

import (
	"bytes"
	"testing"

	"github.com/nishisan-dev/spantar/internal/zone"
)

// memSink is a RecoverableSink over an in-memory buffer, used as the
// innermost stage in tests. It never buffers, so every byte is
// immediately committed.
type memSink struct {
	*Unbuffered
	buf *bytes.Buffer
}

func newMemSink() *memSink {
	buf := &bytes.Buffer{}
	return &memSink{Unbuffered: NewUnbuffered(buf), buf: buf}
}

func fill(n int, b byte) []byte {
	buf := make([]byte, n)
	for i := range buf {
		buf[i] = b
	}
	return buf
}

// TestBlockingStage_PassthroughAligned reproduces spec.md scenario 1.
func TestBlockingStage_PassthroughAligned(t *testing.T) {
	m := newMemSink()
	blk := NewBlockingStage(m, 1)

	mustWrite(t, blk, fill(512, 0x00))
	mustWrite(t, blk, fill(512, 0x01))

	if m.buf.Len() != 1024 {
		t.Fatalf("expected 1024 bytes, got %d", m.buf.Len())
	}
	if !bytes.Equal(m.buf.Bytes()[:512], fill(512, 0x00)) {
		t.Fatalf("first 512 bytes mismatch")
	}
	if !bytes.Equal(m.buf.Bytes()[512:], fill(512, 0x01)) {
		t.Fatalf("second 512 bytes mismatch")
	}
}

// TestBlockingStage_RecordSplittingWithFlush reproduces spec.md scenario 2.
func TestBlockingStage_RecordSplittingWithFlush(t *testing.T) {
	m := newMemSink()
	blk := NewBlockingStage(m, 1)

	mustWrite(t, blk, fill(384, 0x00))
	mustWrite(t, blk, fill(384, 0x01))
	mustWrite(t, blk, fill(384, 0x02))
	if err := blk.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}

	if m.buf.Len() != 1536 {
		t.Fatalf("expected 1536 bytes, got %d", m.buf.Len())
	}
	want := append(append(append(append(append(
		fill(384, 0x00), fill(128, 0x01)...), fill(256, 0x01)...), fill(256, 0x02)...), fill(128, 0x02)...), fill(384, 0x00)...)
	if !bytes.Equal(m.buf.Bytes(), want) {
		t.Fatalf("layout mismatch:\ngot  %v\nwant %v", m.buf.Bytes(), want)
	}
}

// TestBlockingStage_ShortcutPath reproduces spec.md scenario 3.
func TestBlockingStage_ShortcutPath(t *testing.T) {
	m := newMemSink()
	blk := NewBlockingStage(m, 1)

	mustWrite(t, blk, fill(384, 0x00))
	mustWrite(t, blk, fill(1024, 0x01))
	mustWrite(t, blk, fill(2048, 0x02))
	if err := blk.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}

	if m.buf.Len() != 3584 {
		t.Fatalf("expected 3584 bytes, got %d", m.buf.Len())
	}
}

// TestBlockingStage_ZoneAccounting reproduces spec.md scenario 4.
func TestBlockingStage_ZoneAccounting(t *testing.T) {
	m := newMemSink()
	blk := NewBlockingStage(m, 1)

	blk.BeginDataZone(zone.NewIdentity("A"))
	mustWrite(t, blk, fill(512, 0x00))
	blk.BeginDataZone(zone.NewIdentity("B"))
	mustWrite(t, blk, fill(512, 0x01))

	snap := blk.UncommittedWrites()
	if len(snap) != 2 {
		t.Fatalf("expected 2 uncommitted zones, got %d: %+v", len(snap), snap)
	}
	for _, z := range snap {
		if z.Length != 512 || z.Uncommitted != 512 || z.Committed != 0 {
			t.Fatalf("unexpected zone: %+v", z)
		}
	}

	if err := blk.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}

	if snap2 := blk.UncommittedWrites(); len(snap2) != 0 {
		t.Fatalf("expected empty snapshot after flush, got %+v", snap2)
	}
}

func mustWrite(t *testing.T, w *BlockingStage, p []byte) {
	t.Helper()
	n, err := w.Write(p)
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	if n != len(p) {
		t.Fatalf("short write: wrote %d of %d", n, len(p))
	}
}
