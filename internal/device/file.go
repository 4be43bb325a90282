// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package device

import (
	"io"
	"os"
)

// FileDevice adapts a regular file (or any seekable os.File, including
// a raw block device node opened with os.OpenFile) to TapeDevice.
// Filemarks and partitions have no meaning on a plain file, so those
// operations degrade to logical no-ops: a filemark is recorded as a
// position in a virtual mark list so fsf/bsf/tell still behave
// sensibly for archives staged to disk before being copied to tape.
type FileDevice struct {
	f          *os.File
	recordSize int
	last       lastOp
	marks      []int64 // byte offsets of written filemarks
	spillReader
}

// NewFileDevice wraps f, treating every read/write as one record of
// recordSize bytes (the blocking factor's record size — see
// internal/sink.BlockingStage.RecordSize).
func NewFileDevice(f *os.File, recordSize int) *FileDevice {
	return &FileDevice{f: f, recordSize: recordSize}
}

func (d *FileDevice) Read(p []byte) (int, error) {
	d.last = opRead
	return d.spillReader.fill(p, d.readRecord)
}

func (d *FileDevice) ReadBlock(buf *[]byte) error {
	d.last = opRead
	return d.spillReader.readBlock(buf, d.readRecord)
}

func (d *FileDevice) readRecord() ([]byte, error) {
	rec := make([]byte, d.recordSize)
	n, err := io.ReadFull(d.f, rec)
	if n == 0 && err == io.EOF {
		d.eof = true
		return nil, io.EOF
	}
	if err == io.ErrUnexpectedEOF {
		return rec[:n], nil
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

func (d *FileDevice) Write(p []byte) (int, error) {
	d.last = opWrite
	return d.f.Write(p)
}

func (d *FileDevice) Flush() error {
	return d.f.Sync()
}

func (d *FileDevice) WriteFilemark(synchronous bool) error {
	pos, err := d.f.Seek(0, io.SeekCurrent)
	if err != nil {
		return err
	}
	d.marks = append(d.marks, pos)
	d.last = opFilemark
	if synchronous {
		return d.f.Sync()
	}
	return nil
}

func (d *FileDevice) SeekBlocks(whence int, count int64) error {
	_, err := d.f.Seek(count*int64(d.recordSize), whence)
	return err
}

func (d *FileDevice) SeekFilemarks(whence int, count int64) error {
	pos, err := d.f.Seek(0, io.SeekCurrent)
	if err != nil {
		return err
	}
	idx := d.markIndex(pos, whence, count)
	if idx < 0 || idx >= len(d.marks) {
		// Off the end of the known marks: treat as encountering
		// no-data during the seek, which spec.md §4.6 says terminates
		// the seek successfully rather than failing it.
		return nil
	}
	_, err = d.f.Seek(d.marks[idx], io.SeekStart)
	return err
}

// SeekSetmarks has no analogue on a plain file; not many tape formats
// support setmarks either, per the trait comment this is grounded on.
func (d *FileDevice) SeekSetmarks(whence int, count int64) error {
	return nil
}

func (d *FileDevice) SeekPartition(id uint32) error {
	return nil
}

func (d *FileDevice) TellBlocks() (uint64, error) {
	pos, err := d.f.Seek(0, io.SeekCurrent)
	if err != nil {
		return 0, err
	}
	return uint64(pos) / uint64(d.recordSize), nil
}

func (d *FileDevice) markIndex(pos int64, whence int, count int64) int {
	cur := 0
	for i, m := range d.marks {
		if m <= pos {
			cur = i + 1
		}
	}
	switch whence {
	case io.SeekStart:
		return int(count)
	case io.SeekCurrent:
		return cur + int(count) - 1
	default:
		return len(d.marks) - 1 + int(count)
	}
}

// Close performs the write-close sequence from spec.md §4.6: two
// filemarks then a seek back of one, the GNU tar convention so the
// next append overwrites the trailing marker.
func (d *FileDevice) Close() error {
	switch d.last {
	case opWrite:
		if err := d.WriteFilemark(true); err != nil {
			return err
		}
		if err := d.WriteFilemark(true); err != nil {
			return err
		}
		if err := d.SeekFilemarks(io.SeekCurrent, -1); err != nil {
			return err
		}
	case opFilemark:
		if err := d.WriteFilemark(true); err != nil {
			return err
		}
		if err := d.SeekFilemarks(io.SeekCurrent, -1); err != nil {
			return err
		}
	case opRead:
		if !d.eof {
			if err := d.SeekFilemarks(io.SeekCurrent, 1); err != nil {
				return err
			}
		}
	}
	return d.f.Close()
}
