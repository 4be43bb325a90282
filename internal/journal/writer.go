// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package journal

import (
	"bytes"
	"encoding/gob"
	"hash/crc32"
	"io"

	"github.com/klauspost/compress/zstd"
)

// headerSize is CRC32C (4) + compressed payload length (4) + record
// type (1). Unlike the block-fragmented WAL formats this package is
// grounded on, journal records never span a block boundary: checkpoint
// payloads are a few hundred bytes at most, so every record is written
// whole or not at all.
const headerSize = 9

var crc32cTable = crc32.MakeTable(crc32.Castagnoli)

// Writer appends zstd-compressed, checksummed records to dest.
type Writer struct {
	dest io.Writer
	enc  *zstd.Encoder
}

// NewWriter creates a Writer appending to dest. dest is typically an
// *os.File opened O_APPEND|O_CREATE so a process restart resumes
// writing after whatever a prior run already committed.
func NewWriter(dest io.Writer) (*Writer, error) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		return nil, err
	}
	return &Writer{dest: dest, enc: enc}, nil
}

// Append gob-encodes payload, compresses it, and writes one framed
// record of type t. Returns the number of bytes written to dest.
func (w *Writer) Append(t RecordType, payload any) (int, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(payload); err != nil {
		return 0, err
	}
	compressed := w.enc.EncodeAll(buf.Bytes(), nil)

	var header [headerSize]byte
	crc := crc32.Checksum(append([]byte{byte(t)}, compressed...), crc32cTable)
	putUint32(header[0:4], crc)
	putUint32(header[4:8], uint32(len(compressed)))
	header[8] = byte(t)

	n, err := w.dest.Write(header[:])
	if err != nil {
		return n, err
	}
	m, err := w.dest.Write(compressed)
	return n + m, err
}

// Sync flushes dest if it supports it, so a checkpoint survives a
// crash immediately after Append returns.
func (w *Writer) Sync() error {
	if syncer, ok := w.dest.(interface{ Sync() error }); ok {
		return syncer.Sync()
	}
	return nil
}

// Close releases the zstd encoder. It does not close dest.
func (w *Writer) Close() error {
	return w.enc.Close()
}

func putUint32(b []byte, v uint32) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
}
