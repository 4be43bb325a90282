// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package zone

import "testing"

func TestZone_WriteCommittedExact(t *testing.T) {
	z := New(NewIdentity("a"))
	z.WriteBuffered(512)

	overhang, has := z.WriteCommitted(512)
	if has {
		t.Fatalf("expected no overhang, got %d", overhang)
	}
	if z.Committed != 512 || z.Uncommitted != 0 {
		t.Fatalf("unexpected zone state: %+v", z)
	}
}

func TestZone_WriteCommittedOverhang(t *testing.T) {
	z := New(NewIdentity("a"))
	z.WriteBuffered(100)

	overhang, has := z.WriteCommitted(150)
	if !has {
		t.Fatalf("expected overhang")
	}
	if overhang != 50 {
		t.Fatalf("expected overhang 50, got %d", overhang)
	}
	if z.Committed != 100 || z.Uncommitted != 0 {
		t.Fatalf("unexpected zone state: %+v", z)
	}
}

func TestZone_LengthInvariant(t *testing.T) {
	z := New(NewIdentity("a"))
	z.WriteBuffered(300)
	z.WriteThrough(200)
	z.WriteCommitted(100)

	if z.Length != z.Committed+z.Uncommitted {
		t.Fatalf("invariant broken: length=%d committed=%d uncommitted=%d", z.Length, z.Committed, z.Uncommitted)
	}
}

func TestZone_MergeEqualIdentity(t *testing.T) {
	a := Zone{Identity: NewIdentity("f"), Length: 1024, Committed: 512, Uncommitted: 512}
	b := Zone{Identity: NewIdentity("f"), Length: 2048, Committed: 128, Uncommitted: 1920}

	merged, ok := a.Merge(b)
	if !ok {
		t.Fatalf("expected merge to succeed")
	}
	if merged.Length != 2048 {
		t.Fatalf("expected length=max(1024,2048)=2048, got %d", merged.Length)
	}
	if merged.Committed != 128 {
		t.Fatalf("expected committed=min(512,128)=128, got %d", merged.Committed)
	}
	if merged.Uncommitted != merged.Length-merged.Committed {
		t.Fatalf("uncommitted invariant broken: %+v", merged)
	}
}

func TestZone_MergeUnequalIdentity(t *testing.T) {
	a := Zone{Identity: NewIdentity("f"), Length: 10}
	b := Zone{Identity: NewIdentity("g"), Length: 10}

	if _, ok := a.Merge(b); ok {
		t.Fatalf("expected merge of unequal identities to fail")
	}
}

// TestStream_BeginWriteSnapshotFlush reproduces spec.md scenario 4:
// begin zone A, write 512; begin zone B, write 512; snapshot shows two
// fully-uncommitted zones; after committing both, snapshot is empty.
func TestStream_BeginWriteSnapshotFlush(t *testing.T) {
	s := NewStream()

	s.Begin(NewIdentity("A"))
	s.WriteBuffered(512)
	s.Begin(NewIdentity("B"))
	s.WriteBuffered(512)
	s.End()

	snap := s.Snapshot(nil)
	if len(snap) != 2 {
		t.Fatalf("expected 2 zones, got %d: %+v", len(snap), snap)
	}
	for _, z := range snap {
		if z.Length != 512 || z.Uncommitted != 512 || z.Committed != 0 {
			t.Fatalf("unexpected zone: %+v", z)
		}
	}

	if _, has := s.WriteCommitted(1024); has {
		t.Fatalf("did not expect overhang committing exactly what was written")
	}

	snap2 := s.Snapshot(nil)
	if len(snap2) != 0 {
		t.Fatalf("expected empty snapshot after full commit, got %+v", snap2)
	}
}

// TestStream_CrossStageMerge reproduces spec.md scenario 5.
func TestStream_CrossStageMerge(t *testing.T) {
	upstream := NewStream()
	upstream.Begin(NewIdentity(1))
	upstream.WriteBuffered(1024)
	upstream.Begin(NewIdentity(2))
	upstream.WriteBuffered(2048)
	upstream.End()
	// Force upstream zone 1 to report committed=512 by committing exactly that much
	// before the second begin (simulating partial downstream progress already folded in).
	upstream2 := NewStream()
	upstream2.Begin(NewIdentity(1))
	upstream2.WriteBuffered(1024)
	upstream2.WriteCommitted(512)
	upstream2.Begin(NewIdentity(2))
	upstream2.WriteBuffered(2048)
	upstream2.End()

	downstream := NewStream()
	downstream.Begin(NewIdentity(1))
	downstream.WriteBuffered(1024)
	downstream.WriteCommitted(512)
	downstream.Begin(NewIdentity(2))
	downstream.WriteBuffered(768)
	downstream.End()

	dsnap := downstream.Snapshot(nil)
	merged := upstream2.Snapshot(dsnap)

	if len(merged) != 2 {
		t.Fatalf("expected 2 merged zones, got %d: %+v", len(merged), merged)
	}
	if merged[0].Length != 1024 || merged[0].Committed != 512 || merged[0].Uncommitted != 512 {
		t.Fatalf("unexpected zone 1: %+v", merged[0])
	}
	if merged[1].Length != 2048 || merged[1].Committed != 0 || merged[1].Uncommitted != 2048 {
		t.Fatalf("unexpected zone 2: %+v", merged[1])
	}
}

func TestStream_ResumePrepopulates(t *testing.T) {
	s := NewStream()
	s.Resume(NewIdentity("f"), 7<<20)
	s.WriteBuffered(1024)

	snap := s.Snapshot(nil)
	if len(snap) != 1 {
		t.Fatalf("expected 1 zone, got %+v", snap)
	}
	if snap[0].Committed != 7<<20 {
		t.Fatalf("expected pre-populated committed, got %+v", snap[0])
	}
	if snap[0].Length != 7<<20+1024 {
		t.Fatalf("expected length to include resumed + new bytes, got %+v", snap[0])
	}
}
