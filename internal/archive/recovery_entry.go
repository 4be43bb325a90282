// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

// Package archive implements the create pipeline's orchestrator
// (CreateDriver, spec.md §4.9) and the multi-volume recovery logic
// (RecoveryEngine, spec.md §4.10) that re-emits continuation entries
// after a short write.
package archive

import "github.com/nishisan-dev/spantar/internal/zone"

// RecoveryEntry is the zone identity used throughout the create
// pipeline (spec.md §2's glossary entry and §4.9). OriginalPath is
// what the user typed or what traversal produced, suitable for
// messages; CanonicalPath is the absolute path used to reopen the
// file during recovery; HeaderLength is the encoded header's byte
// length, which RecoveryEngine needs to tell "failed inside the
// header" from "failed inside the data" when computing how many file
// bytes already landed on the previous volume.
//
// Grounded on
// _examples/original_source/librapidarchive/src/tar/recovery.rs's
// RecoveryEntry, which carries only original_path/canonical_path;
// header_length is spec.md's addition (the older Rust revision always
// restarts a recovered file from offset zero, so it never needed to
// know where the header ended).
//
// Two entries are the same file iff both paths are equal — this type
// is a plain comparable struct (no slices, maps, or pointers) so that
// Go's == operator gives the total equality relation spec.md §9
// requires of a zone identity key, and cheap-to-clone by value.
type RecoveryEntry struct {
	OriginalPath  string
	CanonicalPath string
	HeaderLength  int
}

// Identity wraps e as a zone.Identity.
func (e RecoveryEntry) Identity() zone.Identity {
	return zone.NewIdentity(e)
}

// entryFromZone extracts the RecoveryEntry back out of a zone.Zone's
// identity, reporting ok=false for slack zones or zones identified by
// something else entirely.
func entryFromZone(z zone.Zone) (RecoveryEntry, bool) {
	if !z.Identity.Valid {
		return RecoveryEntry{}, false
	}
	e, ok := z.Identity.Key.(RecoveryEntry)
	return e, ok
}
