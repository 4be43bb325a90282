// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package journal

import (
	"fmt"
	"os"
)

// Journal is a crash-safe append-only checkpoint log backed by a file.
// internal/archive's CreateDriver holds one optionally (a nil *Journal
// disables checkpointing entirely) and calls its Record* methods at the
// same points it would otherwise only log: after a volume mounts and
// after each entry commits.
type Journal struct {
	file *os.File
	w    *Writer
}

// Open creates or appends to the journal file at path. An existing
// file is preserved (O_APPEND) so a resumed run's journal is the
// concatenation of every attempt until RecordRunFinished succeeds.
func Open(path string) (*Journal, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("journal: opening %s: %w", path, err)
	}
	w, err := NewWriter(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	return &Journal{file: f, w: w}, nil
}

// Resume opens the journal at path (creating it if absent, as Open
// does) and also replays whatever it already contains, so a caller can
// decide what to skip before the run continues appending.
func Resume(path string) (*Journal, Replay, error) {
	existing, err := os.Open(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, Replay{}, fmt.Errorf("journal: reading %s: %w", path, err)
	}
	rep := Replay{Committed: make(map[string]EntryCommitted)}
	if existing != nil {
		rep, err = ReadAll(existing)
		existing.Close()
		if err != nil {
			return nil, Replay{}, err
		}
	}

	j, err := Open(path)
	return j, rep, err
}

// RecordVolumeMounted appends a VolumeMounted checkpoint and syncs it.
func (j *Journal) RecordVolumeMounted(index int, path string) error {
	return j.append(RecordVolumeMounted, VolumeMounted{Index: index, Path: path})
}

// RecordEntryCommitted appends an EntryCommitted checkpoint and syncs it.
func (j *Journal) RecordEntryCommitted(originalPath, canonicalPath string, bytesWritten int64) error {
	return j.append(RecordEntryCommitted, EntryCommitted{
		OriginalPath:  originalPath,
		CanonicalPath: canonicalPath,
		Bytes:         bytesWritten,
	})
}

// RecordRunFinished appends the closing marker and syncs it.
func (j *Journal) RecordRunFinished() error {
	return j.append(RecordRunFinished, struct{}{})
}

func (j *Journal) append(t RecordType, payload any) error {
	if _, err := j.w.Append(t, payload); err != nil {
		return fmt.Errorf("journal: appending %s record: %w", t, err)
	}
	return j.w.Sync()
}

// Close releases the journal's encoder and underlying file.
func (j *Journal) Close() error {
	werr := j.w.Close()
	ferr := j.file.Close()
	if werr != nil {
		return werr
	}
	return ferr
}
