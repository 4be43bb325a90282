// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package journal

import (
	"bytes"
	"encoding/gob"
	"errors"
	"hash/crc32"
	"io"

	"github.com/klauspost/compress/zstd"
)

// Reader reads records written by Writer, in order.
type Reader struct {
	src io.Reader
	dec *zstd.Decoder
}

// NewReader creates a Reader over src.
func NewReader(src io.Reader) (*Reader, error) {
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, err
	}
	return &Reader{src: src, dec: dec}, nil
}

// Close releases the zstd decoder. It does not close src.
func (r *Reader) Close() {
	r.dec.Close()
}

// Next reads the next record and returns its type and decoded payload
// (a *VolumeMounted, *EntryCommitted, or nil for RecordRunFinished).
// io.EOF means the journal ends cleanly on a record boundary.
// ErrCorrupt means the next record's checksum did not match — per
// package doc, callers should treat this the same as io.EOF: it is the
// in-flight record a crash interrupted mid-write, not a reason to fail
// the whole replay.
func (r *Reader) Next() (RecordType, any, error) {
	var header [headerSize]byte
	if _, err := io.ReadFull(r.src, header[:]); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return 0, nil, io.EOF
		}
		return 0, nil, err
	}

	wantCRC := getUint32(header[0:4])
	length := getUint32(header[4:8])
	t := RecordType(header[8])

	compressed := make([]byte, length)
	if _, err := io.ReadFull(r.src, compressed); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
			return 0, nil, io.EOF
		}
		return 0, nil, err
	}

	gotCRC := crc32.Checksum(append([]byte{byte(t)}, compressed...), crc32cTable)
	if gotCRC != wantCRC {
		return 0, nil, ErrCorrupt
	}

	raw, err := r.dec.DecodeAll(compressed, nil)
	if err != nil {
		return 0, nil, ErrCorrupt
	}

	switch t {
	case RecordVolumeMounted:
		var v VolumeMounted
		if err := gob.NewDecoder(bytes.NewReader(raw)).Decode(&v); err != nil {
			return 0, nil, ErrCorrupt
		}
		return t, &v, nil
	case RecordEntryCommitted:
		var e EntryCommitted
		if err := gob.NewDecoder(bytes.NewReader(raw)).Decode(&e); err != nil {
			return 0, nil, ErrCorrupt
		}
		return t, &e, nil
	case RecordRunFinished:
		return t, nil, nil
	default:
		return t, nil, ErrCorrupt
	}
}

// Replay is the accumulated state from reading an entire journal:
// which volume the run last had open, and which entries are already
// durably committed and can be skipped by a resumed traversal.
type Replay struct {
	LastVolumeIndex int
	LastVolumePath  string
	Committed       map[string]EntryCommitted // keyed by OriginalPath
	Finished        bool
}

// ReadAll replays every well-formed record from src into a Replay. A
// corrupt or truncated tail record stops the replay without error, per
// Next's contract.
func ReadAll(src io.Reader) (Replay, error) {
	rep := Replay{Committed: make(map[string]EntryCommitted)}

	r, err := NewReader(src)
	if err != nil {
		return rep, err
	}
	defer r.Close()

	for {
		t, payload, err := r.Next()
		if errors.Is(err, io.EOF) || errors.Is(err, ErrCorrupt) {
			return rep, nil
		}
		if err != nil {
			return rep, err
		}

		switch t {
		case RecordVolumeMounted:
			v := payload.(*VolumeMounted)
			rep.LastVolumeIndex = v.Index
			rep.LastVolumePath = v.Path
		case RecordEntryCommitted:
			e := payload.(*EntryCommitted)
			rep.Committed[e.OriginalPath] = *e
		case RecordRunFinished:
			rep.Finished = true
		}
	}
}

func getUint32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}
