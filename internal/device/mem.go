// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package device

import "io"

// MemDevice is an in-memory TapeDevice used by tests, including the
// spanning end-to-end scenario in spec.md §8.6: a device that fails
// (returns a zero-byte write, simulating end-of-media) once its
// cumulative write count reaches failAt.
type MemDevice struct {
	recordSize int
	buf        []byte
	pos        int
	marks      []int
	last       lastOp

	failAt    int
	failed    bool
	written   int
	failOnce  bool
	spillReader
}

// NewMemDevice creates a device with the given record size. failAt <=
// 0 disables the simulated end-of-media failure.
func NewMemDevice(recordSize int, failAt int) *MemDevice {
	return &MemDevice{recordSize: recordSize, failAt: failAt}
}

// Bytes returns everything committed to the device so far.
func (d *MemDevice) Bytes() []byte {
	return d.buf
}

func (d *MemDevice) Read(p []byte) (int, error) {
	d.last = opRead
	return d.spillReader.fill(p, d.readRecord)
}

func (d *MemDevice) ReadBlock(buf *[]byte) error {
	d.last = opRead
	return d.spillReader.readBlock(buf, d.readRecord)
}

func (d *MemDevice) readRecord() ([]byte, error) {
	if d.pos >= len(d.buf) {
		d.eof = true
		return nil, io.EOF
	}
	end := d.pos + d.recordSize
	if end > len(d.buf) {
		end = len(d.buf)
	}
	rec := d.buf[d.pos:end]
	d.pos = end
	return rec, nil
}

// Write accepts bytes up until the cumulative total reaches failAt, at
// which point it returns (0, nil) exactly once — a zero-byte write is
// the device-level end-of-media signal per spec.md §4.6's error
// mapping. Subsequent writes after the simulated failure succeed
// again, modeling a freshly mounted volume.
func (d *MemDevice) Write(p []byte) (int, error) {
	d.last = opWrite
	if d.failAt > 0 && !d.failOnce && d.written+len(p) > d.failAt {
		d.failOnce = true
		return 0, nil
	}
	d.buf = append(d.buf, p...)
	d.written += len(p)
	return len(p), nil
}

func (d *MemDevice) Flush() error { return nil }

func (d *MemDevice) WriteFilemark(synchronous bool) error {
	d.marks = append(d.marks, len(d.buf))
	d.last = opFilemark
	return nil
}

func (d *MemDevice) SeekBlocks(whence int, count int64) error {
	switch whence {
	case io.SeekStart:
		d.pos = int(count) * d.recordSize
	case io.SeekCurrent:
		d.pos += int(count) * d.recordSize
	case io.SeekEnd:
		d.pos = len(d.buf) + int(count)*d.recordSize
	}
	return nil
}

func (d *MemDevice) SeekFilemarks(whence int, count int64) error {
	if len(d.marks) == 0 {
		return nil
	}
	idx := int(count)
	if whence == io.SeekEnd {
		idx = len(d.marks) - 1 + int(count)
	}
	if idx < 0 || idx >= len(d.marks) {
		return nil
	}
	d.pos = d.marks[idx]
	return nil
}

func (d *MemDevice) SeekSetmarks(whence int, count int64) error { return nil }
func (d *MemDevice) SeekPartition(id uint32) error              { return nil }

func (d *MemDevice) TellBlocks() (uint64, error) {
	return uint64(d.pos) / uint64(d.recordSize), nil
}

func (d *MemDevice) Close() error { return nil }
