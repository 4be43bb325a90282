// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package zone

// Stream is a pipeline stage's ordered ledger of zones: one current zone
// actively being written, and a FIFO of pending zones that have ended but
// may still carry uncommitted bytes.
type Stream struct {
	current *Zone
	pending []Zone
}

// NewStream returns a Stream with an open, identity-less slack zone.
func NewStream() *Stream {
	z := New(NoIdentity)
	return &Stream{current: &z}
}

// Begin ends any current zone and opens a new current zone for id with
// zero lengths.
func (s *Stream) Begin(id Identity) {
	s.End()
	z := New(id)
	s.current = &z
}

// Resume is like Begin, but pre-populates Length and Committed with
// committed, denoting "the first `committed` bytes of this file already
// landed on a prior volume."
func (s *Stream) Resume(id Identity, committed uint64) {
	s.End()
	z := New(id)
	z.Length = committed
	z.Committed = committed
	s.current = &z
}

// End closes the current zone. An identified zone is always pushed to
// pending (even if empty, so downstream merge logic can find it by
// identity); a slack zone is pushed only if it carries bytes. A fresh
// slack zone is then opened as current.
func (s *Stream) End() {
	if s.current != nil {
		if s.current.Identity.Valid || s.current.Length > 0 {
			s.pending = append(s.pending, *s.current)
		}
	}
	z := New(NoIdentity)
	s.current = &z
}

// WriteBuffered forwards to the current zone.
func (s *Stream) WriteBuffered(n uint64) {
	s.current.WriteBuffered(n)
}

// WriteThrough forwards to the current zone.
func (s *Stream) WriteThrough(n uint64) {
	s.current.WriteThrough(n)
}

// WriteCommitted drains pending zones from the head, popping each one once
// fully consumed. Any remainder after pending is drained is applied to
// current. Any further remainder is returned to the caller.
func (s *Stream) WriteCommitted(n uint64) (overhang uint64, hasOverhang bool) {
	remain := n

	for len(s.pending) > 0 {
		z := &s.pending[0]
		rem, has := z.WriteCommitted(remain)
		if !has {
			if z.Uncommitted == 0 {
				s.pending = s.pending[1:]
			}
			return 0, false
		}
		remain = rem
		s.pending = s.pending[1:]
	}

	if remain == 0 {
		return 0, false
	}

	if s.current != nil {
		return s.current.WriteCommitted(remain)
	}
	return remain, true
}

// Snapshot materializes this stream's zones as an ordered slice. If chain
// is supplied — the snapshot a downstream stage already produced — this
// stream locates chain's zone whose identity matches this stream's first
// zone, then merges pairwise forward from that point so that bytes
// accounted for at both stages are not double-counted. Chain zones before
// the match, and any chain zones past where the identities stop lining up,
// are kept as-is; local zones left over once the pairwise walk ends are
// appended after chain. A trailing zero-length slack zone is trimmed.
func (s *Stream) Snapshot(chain []Zone) []Zone {
	local := make([]Zone, 0, len(s.pending)+1)
	local = append(local, s.pending...)
	if s.current != nil {
		local = append(local, *s.current)
	}

	out := append([]Zone(nil), chain...)

	if len(local) > 0 {
		matchIdx := -1
		for i := range out {
			if out[i].Identity.Equal(local[0].Identity) {
				matchIdx = i
				break
			}
		}

		if matchIdx >= 0 {
			i, j := matchIdx, 0
			for i < len(out) && j < len(local) {
				merged, ok := local[j].Merge(out[i])
				if !ok {
					break
				}
				out[i] = merged
				i++
				j++
			}
			local = local[j:]
		}
	}

	out = append(out, local...)

	if n := len(out); n > 0 {
		last := out[n-1]
		if !last.Identity.Valid && last.Length == 0 {
			out = out[:n-1]
		}
	}

	return out
}
