// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package sink

import (
	"bytes"
	"testing"
	"time"

	"github.com/nishisan-dev/spantar/internal/zone"
)

// TestAsyncWriteBuffer_PassesBytesThrough confirms ordering is preserved
// end to end even though writes are handed off to a worker goroutine.
func TestAsyncWriteBuffer_PassesBytesThrough(t *testing.T) {
	m := newMemSink()
	a := NewAsyncWriteBuffer(m, 4096)
	defer a.Close()

	mustWriteAsync(t, a, fill(512, 0x00))
	mustWriteAsync(t, a, fill(512, 0x01))
	if err := a.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}

	if m.buf.Len() != 1024 {
		t.Fatalf("expected 1024 bytes, got %d", m.buf.Len())
	}
	if !bytes.Equal(m.buf.Bytes()[:512], fill(512, 0x00)) {
		t.Fatalf("ordering not preserved")
	}
}

// TestAsyncWriteBuffer_BlocksOnQuota confirms that a Write which would
// exceed the configured quota blocks until a prior write is committed,
// rather than buffering without bound.
func TestAsyncWriteBuffer_BlocksOnQuota(t *testing.T) {
	m := &slowSink{memSink: newMemSink(), release: make(chan struct{})}
	a := NewAsyncWriteBuffer(m, 512)
	defer a.Close()

	done := make(chan struct{})
	go func() {
		mustWriteAsync(t, a, fill(512, 0x00))
		// This second write exceeds quota (512 buffered + 512 requested >
		// 512 quota) and must block until the first write is released.
		mustWriteAsync(t, a, fill(512, 0x01))
		close(done)
	}()

	select {
	case <-done:
		t.Fatalf("second write returned before quota was freed")
	case <-time.After(50 * time.Millisecond):
	}

	close(m.release)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("second write never unblocked after quota was freed")
	}
}

// TestAsyncWriteBuffer_OversizedWriteDoesNotDeadlock confirms a single
// write larger than the quota is admitted unconditionally instead of
// blocking forever waiting for headroom it can never reach.
func TestAsyncWriteBuffer_OversizedWriteDoesNotDeadlock(t *testing.T) {
	m := newMemSink()
	a := NewAsyncWriteBuffer(m, 256)
	defer a.Close()

	done := make(chan struct{})
	go func() {
		mustWriteAsync(t, a, fill(1024, 0x00))
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("oversized write deadlocked against its own quota")
	}
}

func TestAsyncWriteBuffer_ZoneSnapshotMergesWithInner(t *testing.T) {
	m := newMemSink()
	a := NewAsyncWriteBuffer(m, 4096)
	defer a.Close()

	a.BeginDataZone(zone.NewIdentity("f"))
	mustWriteAsync(t, a, fill(256, 0x00))
	if err := a.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}

	snap := a.UncommittedWrites()
	if len(snap) != 0 {
		t.Fatalf("expected fully committed after flush, got %+v", snap)
	}
}

// slowSink withholds acknowledging its Write until release is closed,
// letting tests observe backpressure deterministically.
type slowSink struct {
	*memSink
	release chan struct{}
}

func (s *slowSink) Write(p []byte) (int, error) {
	<-s.release
	return s.memSink.Write(p)
}

func mustWriteAsync(t *testing.T, a *AsyncWriteBuffer, p []byte) {
	t.Helper()
	n, err := a.Write(p)
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	if n != len(p) {
		t.Fatalf("short write: wrote %d of %d", n, len(p))
	}
}
