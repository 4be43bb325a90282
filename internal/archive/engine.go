// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package archive

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/nishisan-dev/spantar/internal/sink"
	"github.com/nishisan-dev/spantar/internal/tarfmt"
	"github.com/nishisan-dev/spantar/internal/walk"
	"github.com/nishisan-dev/spantar/internal/zone"
)

// RecoveryEngine re-emits continuation entries for a list of uncommitted
// zones onto a freshly-mounted sink, per spec.md §4.10. It re-derives
// each continuation header from the live filesystem via a
// walk.MetadataSource rather than caching the original header, the same
// choice
// _examples/original_source/librapidarchive/src/tar/recovery.rs's
// recover_data makes by calling abstract_header_for_file again instead
// of storing one on RecoveryEntry.
type RecoveryEngine struct {
	format tarfmt.Format
	meta   walk.MetadataSource
}

// NewRecoveryEngine creates a RecoveryEngine that emits headers in format,
// using meta to resolve the unix-specific header fields of each
// recovered file.
func NewRecoveryEngine(format tarfmt.Format, meta walk.MetadataSource) *RecoveryEngine {
	return &RecoveryEngine{format: format, meta: meta}
}

// Recover re-emits each identified zone in order onto newSink. If a
// short write (sink.ErrWriteZero) occurs partway through, it returns the
// combined list of newSink's own uncommitted zones (which may include
// the zone being recovered, now itself torn) and every zone in the input
// list not yet attempted, for the driver to loop on Recover again
// against a third volume. A nil, nil return means every zone recovered
// cleanly and the driver may return to Serialize.
func (e *RecoveryEngine) Recover(newSink sink.RecoverableSink, zones []zone.Zone) ([]zone.Zone, error) {
	for i, z := range zones {
		entry, ok := entryFromZone(z)
		if !ok {
			// A slack zone (header padding, the archive trailer) carries
			// nothing recoverable.
			continue
		}

		leftover, err := e.recoverOne(newSink, entry, z)
		if err != nil {
			return nil, fmt.Errorf("archive: recovering %s: %w", entry.OriginalPath, err)
		}
		if leftover != nil {
			combined := append(append([]zone.Zone(nil), leftover...), zones[i+1:]...)
			return combined, nil
		}
	}
	return nil, nil
}

// recoverOne rebuilds and re-emits a single file's continuation entry.
// z is the torn zone as last seen on the volume that failed: its
// Committed count tells us how many bytes of (header + file content)
// are durable already.
func (e *RecoveryEngine) recoverOne(newSink sink.RecoverableSink, entry RecoveryEntry, z zone.Zone) ([]zone.Zone, error) {
	info, err := os.Lstat(entry.CanonicalPath)
	if err != nil {
		return nil, err
	}

	fileSize := uint64(info.Size())

	var offset uint64
	if z.Committed > uint64(entry.HeaderLength) {
		offset = z.Committed - uint64(entry.HeaderLength)
	}
	if offset > fileSize {
		offset = fileSize
	}

	h := tarfmt.Header{
		Path:         entry.OriginalPath,
		UnixMode:     e.meta.Mode(info),
		UnixUID:      e.meta.UID(info),
		UnixGID:      e.meta.GID(info),
		FileSize:     fileSize - offset,
		Mtime:        info.ModTime(),
		FileType:     e.meta.FileType(info),
		UnixUname:    e.meta.Uname(info),
		UnixGname:    e.meta.Gname(info),
		UnixDevmajor: e.meta.DevMajor(info),
		UnixDevminor: e.meta.DevMinor(info),

		RecoveryPath:       entry.OriginalPath,
		RecoveryTotalSize:  fileSize,
		RecoverySeekOffset: offset,
		IsContinuation:     true,
	}

	if h.FileType == tarfmt.TypeSymlink {
		if target, err := e.meta.SymlinkTarget(entry.CanonicalPath, info); err == nil {
			h.SymlinkPath = target
		}
	}

	encoded, err := tarfmt.Encode(&h, e.format)
	if err != nil {
		return nil, err
	}

	fresh := RecoveryEntry{
		OriginalPath:  entry.OriginalPath,
		CanonicalPath: entry.CanonicalPath,
		HeaderLength:  encoded.HeaderLength,
	}
	newSink.BeginDataZone(fresh.Identity())

	if _, err := newSink.Write(encoded.Bytes); err != nil {
		if errors.Is(err, sink.ErrWriteZero) {
			return e.collectLeftover(newSink), nil
		}
		return nil, err
	}

	if h.FileType == tarfmt.TypeRegular && h.FileSize > 0 {
		f, err := os.Open(entry.CanonicalPath)
		if err != nil {
			return nil, err
		}
		defer f.Close()

		if _, err := f.Seek(int64(offset), io.SeekStart); err != nil {
			return nil, err
		}

		n, err := io.Copy(newSink, f)
		if err != nil {
			if errors.Is(err, sink.ErrWriteZero) {
				return e.collectLeftover(newSink), nil
			}
			return nil, err
		}
		if pad := (512 - (int64(encoded.HeaderLength)+n)%512) % 512; pad > 0 {
			if _, err := newSink.Write(make([]byte, pad)); err != nil {
				if errors.Is(err, sink.ErrWriteZero) {
					return e.collectLeftover(newSink), nil
				}
				return nil, err
			}
		}
	}

	newSink.EndDataZone()
	return nil, nil
}

// collectLeftover snapshots newSink's uncommitted zones after a short
// write interrupted a recovery write. The zone for the file being
// recovered is among them (newSink's own stream still has it open or
// pending), so the caller must not separately re-add entry.
func (e *RecoveryEngine) collectLeftover(newSink sink.RecoverableSink) []zone.Zone {
	return newSink.UncommittedWrites()
}
