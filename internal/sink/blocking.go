// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package sink

import (
	"github.com/nishisan-dev/spantar/internal/zone"
)

// BlockingStage fragments a byte stream into fixed records of size
// 512*factor bytes before handing them to an inner RecoverableSink. It is
// the Go analogue of original_source/librapidarchive/src/blocking.rs'
// BlockingWriter, generalized from the tar-only version in that file to
// wrap any RecoverableSink.
type BlockingStage struct {
	inner  RecoverableSink
	factor int
	record []byte
	stream *zone.Stream
}

// NewBlockingStage wraps inner, fragmenting writes into factor*512-byte
// records.
func NewBlockingStage(inner RecoverableSink, factor int) *BlockingStage {
	if factor < 1 {
		factor = 1
	}
	return &BlockingStage{
		inner:  inner,
		factor: factor,
		record: make([]byte, 0, factor*512),
		stream: zone.NewStream(),
	}
}

// RecordSize returns 512*factor.
func (b *BlockingStage) RecordSize() int {
	return b.factor * 512
}

// Write implements io.Writer. See spec.md §4.4 for the shortcut-write
// rule: when the partial record is empty and the incoming buffer is at
// least one full record, whole record-sized slices go straight to the
// inner sink without being copied into b.record.
func (b *BlockingStage) Write(p []byte) (int, error) {
	recordSize := b.RecordSize()
	total := 0

	for len(p) > 0 {
		if len(b.record) == 0 && len(p) >= recordSize {
			// Shortcut: the partial record is empty and we have at least one
			// whole record's worth of data — hand whole records straight to
			// the inner sink without copying them into b.record.
			for len(p) >= recordSize {
				n, err := b.inner.Write(p[:recordSize])
				total += n
				b.stream.WriteThrough(uint64(n))
				if err != nil {
					return total, err
				}
				if n < recordSize {
					return total, ErrWriteZero
				}
				p = p[recordSize:]
			}
			continue
		}

		space := recordSize - len(b.record)
		chunk := len(p)
		if chunk > space {
			chunk = space
		}
		b.record = append(b.record, p[:chunk]...)
		b.stream.WriteBuffered(uint64(chunk))
		total += chunk
		p = p[chunk:]

		if len(b.record) == recordSize {
			if err := b.flushRecord(); err != nil {
				return total, err
			}
		}
	}

	return total, nil
}

// flushRecord writes a full record to inner and marks the bytes committed.
func (b *BlockingStage) flushRecord() error {
	recordSize := b.RecordSize()
	n, err := b.inner.Write(b.record[:recordSize])
	b.stream.WriteCommitted(uint64(n))
	b.record = b.record[:0]
	if err != nil {
		return err
	}
	if n < recordSize {
		return ErrWriteZero
	}
	return nil
}

// Flush ends the current zone, zero-pads the partial record to a full
// record, writes it, and flushes inner. Flushing inserts padding into the
// stream; tar readers tolerate trailing zero records.
func (b *BlockingStage) Flush() error {
	b.EndDataZone()

	recordSize := b.RecordSize()
	if len(b.record) > 0 && len(b.record) < recordSize {
		pad := make([]byte, recordSize-len(b.record))
		b.record = append(b.record, pad...)
		b.stream.WriteBuffered(uint64(len(pad)))
	}
	if len(b.record) == recordSize {
		if err := b.flushRecord(); err != nil {
			return err
		}
	}
	return b.inner.Flush()
}

func (b *BlockingStage) BeginDataZone(id zone.Identity) {
	b.stream.Begin(id)
	b.inner.BeginDataZone(id)
}

func (b *BlockingStage) ResumeDataZone(id zone.Identity, committed uint64) {
	b.stream.Resume(id, committed)
	b.inner.ResumeDataZone(id, committed)
}

func (b *BlockingStage) EndDataZone() {
	b.stream.End()
	b.inner.EndDataZone()
}

func (b *BlockingStage) UncommittedWrites() []zone.Zone {
	innerZones := b.inner.UncommittedWrites()
	return b.stream.Snapshot(innerZones)
}
