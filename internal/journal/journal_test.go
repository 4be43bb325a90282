// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package journal

import (
	"bytes"
	"path/filepath"
	"testing"
)

func TestWriterReaderRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	w, err := NewWriter(&buf)
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}

	if _, err := w.Append(RecordVolumeMounted, VolumeMounted{Index: 1, Path: "/dev/nst0"}); err != nil {
		t.Fatalf("Append VolumeMounted: %v", err)
	}
	if _, err := w.Append(RecordEntryCommitted, EntryCommitted{
		OriginalPath:  "a.txt",
		CanonicalPath: "/data/a.txt",
		Bytes:         1024,
	}); err != nil {
		t.Fatalf("Append EntryCommitted: %v", err)
	}
	if _, err := w.Append(RecordRunFinished, struct{}{}); err != nil {
		t.Fatalf("Append RunFinished: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	rep, err := ReadAll(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if rep.LastVolumeIndex != 1 || rep.LastVolumePath != "/dev/nst0" {
		t.Fatalf("got volume %d/%q, want 1//dev/nst0", rep.LastVolumeIndex, rep.LastVolumePath)
	}
	e, ok := rep.Committed["a.txt"]
	if !ok || e.CanonicalPath != "/data/a.txt" || e.Bytes != 1024 {
		t.Fatalf("got committed entry %+v (ok=%v), want canonical /data/a.txt bytes 1024", e, ok)
	}
	if !rep.Finished {
		t.Fatalf("expected Finished to be true")
	}
}

func TestReadAll_StopsCleanlyOnTruncatedTail(t *testing.T) {
	var buf bytes.Buffer
	w, err := NewWriter(&buf)
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	if _, err := w.Append(RecordVolumeMounted, VolumeMounted{Index: 1, Path: "/dev/nst0"}); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if _, err := w.Append(RecordEntryCommitted, EntryCommitted{OriginalPath: "b.txt", Bytes: 10}); err != nil {
		t.Fatalf("Append: %v", err)
	}
	w.Close()

	// Simulate a crash mid-write of the second record: truncate the
	// buffer partway through it. The first record must still replay.
	truncated := buf.Bytes()[:len(buf.Bytes())-3]

	rep, err := ReadAll(bytes.NewReader(truncated))
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if rep.LastVolumeIndex != 1 {
		t.Fatalf("expected the first record to survive replay, got %+v", rep)
	}
	if _, ok := rep.Committed["b.txt"]; ok {
		t.Fatalf("the truncated second record must not appear in Committed")
	}
}

func TestJournal_OpenAppendResume(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "run.journal")

	j, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := j.RecordVolumeMounted(1, "/dev/nst0"); err != nil {
		t.Fatalf("RecordVolumeMounted: %v", err)
	}
	if err := j.RecordEntryCommitted("c.txt", filepath.Join(dir, "c.txt"), 2048); err != nil {
		t.Fatalf("RecordEntryCommitted: %v", err)
	}
	if err := j.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	resumed, rep, err := Resume(path)
	if err != nil {
		t.Fatalf("Resume: %v", err)
	}

	if rep.Finished {
		t.Fatalf("run was never finished, Replay.Finished must be false")
	}
	if _, ok := rep.Committed["c.txt"]; !ok {
		t.Fatalf("expected c.txt to already be committed on resume")
	}

	if err := resumed.RecordRunFinished(); err != nil {
		t.Fatalf("RecordRunFinished: %v", err)
	}
	if err := resumed.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	_, rep2, err := Resume(path)
	if err != nil {
		t.Fatalf("second Resume: %v", err)
	}
	if !rep2.Finished {
		t.Fatalf("expected the appended RunFinished record to survive a second resume")
	}
}
