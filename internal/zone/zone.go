// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

// Package zone implements the data-zone accounting ledger shared by every
// stage of the write pipeline: which byte range belongs to which file, how
// many of those bytes are merely buffered versus durably committed, and how
// to merge two stages' views of the same file when a write fails partway
// through a volume.
package zone

// Identity names the logical source of a Zone's bytes. A zero Identity
// (Valid == false) marks a "slack" zone — bytes outside any file, such as
// header padding or the end-of-archive trailer — which are never tracked
// for recovery.
type Identity struct {
	Valid bool
	Key   any
}

// NoIdentity is the slack-zone identity.
var NoIdentity = Identity{}

// NewIdentity wraps a comparable key as a zone Identity.
func NewIdentity(key any) Identity {
	return Identity{Valid: true, Key: key}
}

// Equal reports whether two identities name the same logical source.
// Two absent identities are never equal to each other — every slack zone
// is distinct, never merged with another slack zone by identity.
func (id Identity) Equal(other Identity) bool {
	if !id.Valid || !other.Valid {
		return false
	}
	return id.Key == other.Key
}

// Zone is a byte range attributed to a single logical source.
//
// Invariant: Length == Committed + Uncommitted at all times. Lengths are
// monotonically non-decreasing as bytes flow through a pipeline stage.
type Zone struct {
	Identity    Identity
	Length      uint64
	Committed   uint64
	Uncommitted uint64
}

// New creates an empty zone for the given identity.
func New(id Identity) Zone {
	return Zone{Identity: id}
}

// WriteThrough records n bytes that bypassed buffering entirely — they are
// committed to the device the instant they are accounted for.
func (z *Zone) WriteThrough(n uint64) {
	z.Length += n
	z.Committed += n
}

// WriteBuffered records n bytes that were handed to a buffer and are not
// yet known durable.
func (z *Zone) WriteBuffered(n uint64) {
	z.Length += n
	z.Uncommitted += n
}

// WriteCommitted debits up to n bytes from the zone's uncommitted balance.
// If n exceeds what the zone had uncommitted, the zone is fully committed
// and the excess is returned as overhang for the caller to apply elsewhere.
//
// Uses the `>=` / subtract-from-uncommitted semantics of the later,
// preferred revision described in spec.md §4.1 and §9, not the earlier
// `>` revision found in original_source/librapidarchive/src/spanning.rs.
func (z *Zone) WriteCommitted(n uint64) (overhang uint64, hasOverhang bool) {
	if z.Uncommitted >= n {
		z.Uncommitted -= n
		z.Committed += n
		return 0, false
	}

	overhang = n - z.Uncommitted
	z.Committed += z.Uncommitted
	z.Uncommitted = 0
	return overhang, true
}

// Merge combines two zones describing the same file as seen by two
// different pipeline stages. It returns false if the identities differ.
//
// The merged zone is the more pessimistic view: the longest length either
// stage has seen, and the smallest committed count either stage can
// vouch for. This is what the recovery engine needs — it must never
// believe more bytes are durable than the least-confident stage reports.
func (a Zone) Merge(b Zone) (Zone, bool) {
	if !a.Identity.Equal(b.Identity) {
		return Zone{}, false
	}

	length := a.Length
	if b.Length > length {
		length = b.Length
	}
	committed := a.Committed
	if b.Committed < committed {
		committed = b.Committed
	}

	return Zone{
		Identity:    a.Identity,
		Length:      length,
		Committed:   committed,
		Uncommitted: length - committed,
	}, true
}
