// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

// Package journal persists a crash-safe checkpoint of a create run so it
// can be resumed after the whole process dies — a volume torn by a
// short write is already handled in-process by internal/archive's
// RecoveryEngine; this package covers the case spec.md §9 leaves open,
// where the operator kills the process, the host reboots, or the drive
// firmware wedges between volumes. Every record is zstd-compressed
// before it hits disk, trading CPU for a much smaller log on long
// archival runs that checkpoint every entry.
package journal

import "errors"

// RecordType distinguishes what a journal record describes. Values are
// part of the on-disk format and must not be renumbered.
type RecordType uint8

const (
	// RecordVolumeMounted is appended every time the driver successfully
	// opens a sink for a new volume (spec.md §4.9's Init and Recover
	// states).
	RecordVolumeMounted RecordType = 1

	// RecordEntryCommitted is appended every time writeEntry finishes an
	// entry without a short write: the file is durably on some volume
	// and can be skipped if the run resumes.
	RecordEntryCommitted RecordType = 2

	// RecordRunFinished closes the journal: the archive's end-of-media
	// trailer was written and flushed. A journal lacking this record
	// describes an interrupted run.
	RecordRunFinished RecordType = 3
)

func (t RecordType) String() string {
	switch t {
	case RecordVolumeMounted:
		return "VolumeMounted"
	case RecordEntryCommitted:
		return "EntryCommitted"
	case RecordRunFinished:
		return "RunFinished"
	default:
		return "Unknown"
	}
}

// ErrCorrupt is returned by Reader when a record's checksum does not
// match its bytes. Per spec.md §9's inherited "source-read failures
// mid-entry produce malformed entries" stance, a corrupt tail record
// (the one being written when a crash happened) is not fatal: Reader
// stops there and returns everything read so far rather than failing
// the whole replay.
var ErrCorrupt = errors.New("journal: record checksum mismatch")

// VolumeMounted is the payload of a RecordVolumeMounted record.
type VolumeMounted struct {
	Index int    // 1-based volume ordinal.
	Path  string // the path or device the sink opened.
}

// EntryCommitted is the payload of a RecordEntryCommitted record.
type EntryCommitted struct {
	OriginalPath  string
	CanonicalPath string
	Bytes         int64 // total bytes written for this entry, header included.
}
