// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package sink

import (
	"sync"

	"github.com/nishisan-dev/spantar/internal/zone"
)

// asyncCommand is one unit of work handed to the AsyncWriteBuffer's
// worker goroutine. Modeled on the command/response channel pair in
// original_source/librapidarchive/src/concurrentbuf.rs and on the
// teacher's own FIFO command queue in internal/server/chunkbuffer.go.
type asyncCommand struct {
	kind      asyncCmdKind
	data      []byte
	id        zone.Identity
	committed uint64
}

type asyncCmdKind int

const (
	cmdWrite asyncCmdKind = iota
	cmdFlush
	cmdBeginZone
	cmdResumeZone
	cmdEndZone
	cmdTerminate
)

type asyncResponse struct {
	kind asyncCmdKind
	n    int
	err  error
}

// AsyncWriteBuffer decouples a producer from a slow inner sink using one
// worker goroutine, without coalescing writes: each enqueued command
// becomes exactly one downstream write call, preserving record boundaries
// for record-oriented media. See spec.md §4.5.
type AsyncWriteBuffer struct {
	innerMu *sync.Mutex
	inner   RecoverableSink

	cmd  chan asyncCommand
	resp chan asyncResponse

	mu       sync.Mutex
	buffered uint64
	quota    uint64
	stream   *zone.Stream

	workerErr error
	closed    bool
}

// NewAsyncWriteBuffer wraps inner with a byte quota. Writes that would
// exceed the quota block the caller until enough prior writes have been
// acknowledged as committed by the worker.
func NewAsyncWriteBuffer(inner RecoverableSink, quota uint64) *AsyncWriteBuffer {
	a := &AsyncWriteBuffer{
		innerMu: &sync.Mutex{},
		inner:   inner,
		cmd:     make(chan asyncCommand, 64),
		resp:    make(chan asyncResponse, 64),
		quota:   quota,
		stream:  zone.NewStream(),
	}
	go a.run()
	return a
}

func (a *AsyncWriteBuffer) run() {
	for c := range a.cmd {
		a.innerMu.Lock()
		switch c.kind {
		case cmdWrite:
			n, err := a.inner.Write(c.data)
			a.innerMu.Unlock()
			a.resp <- asyncResponse{kind: cmdWrite, n: n, err: err}
		case cmdFlush:
			err := a.inner.Flush()
			a.innerMu.Unlock()
			a.resp <- asyncResponse{kind: cmdFlush, err: err}
		case cmdBeginZone:
			a.inner.BeginDataZone(c.id)
			a.innerMu.Unlock()
			a.resp <- asyncResponse{kind: cmdBeginZone}
		case cmdResumeZone:
			a.inner.ResumeDataZone(c.id, c.committed)
			a.innerMu.Unlock()
			a.resp <- asyncResponse{kind: cmdResumeZone}
		case cmdEndZone:
			a.inner.EndDataZone()
			a.innerMu.Unlock()
			a.resp <- asyncResponse{kind: cmdEndZone}
		case cmdTerminate:
			a.innerMu.Unlock()
			close(a.resp)
			return
		default:
			a.innerMu.Unlock()
		}
	}
}

// drainUntil consumes worker responses, crediting committed bytes as it
// goes, until at least `needed` bytes of headroom exist in the quota (or
// the worker reports an error / terminates).
func (a *AsyncWriteBuffer) drainUntil(needed uint64) error {
	for needed <= a.quota && a.buffered+needed > a.quota {
		r, ok := <-a.resp
		if !ok {
			a.workerErr = ErrWorkerTerminated
			return a.workerErr
		}
		if err := a.applyResponse(r); err != nil {
			a.workerErr = err
			return err
		}
	}
	return nil
}

func (a *AsyncWriteBuffer) applyResponse(r asyncResponse) error {
	switch r.kind {
	case cmdWrite:
		a.markCommitted(uint64(r.n))
		if r.err != nil {
			return r.err
		}
		if r.n == 0 {
			return ErrWriteZero
		}
	case cmdFlush, cmdBeginZone, cmdResumeZone, cmdEndZone:
		if r.err != nil {
			return r.err
		}
	}
	return nil
}

func (a *AsyncWriteBuffer) markCommitted(n uint64) {
	a.stream.WriteCommitted(n)
	a.buffered -= n
}

func (a *AsyncWriteBuffer) markBuffered(n uint64) {
	a.stream.WriteBuffered(n)
	a.buffered += n
}

// Write enqueues a copy of p for the worker and returns immediately once
// there is quota headroom. Record boundaries are preserved: p becomes
// exactly one downstream Write call.
//
// Per spec.md §5 and §9: if len(p) itself exceeds the quota, the producer
// does not block waiting for headroom it can never reach — it enqueues
// unconditionally. This can cause unbounded buffering for a single huge
// write; that tradeoff is preserved as documented in the source.
func (a *AsyncWriteBuffer) Write(p []byte) (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.workerErr != nil {
		return 0, a.workerErr
	}

	if err := a.drainUntil(uint64(len(p))); err != nil {
		return 0, err
	}

	cp := make([]byte, len(p))
	copy(cp, p)

	a.markBuffered(uint64(len(p)))
	a.cmd <- asyncCommand{kind: cmdWrite, data: cp}

	return len(p), nil
}

// Flush enqueues a flush and blocks until the worker acknowledges it,
// crediting any committed bytes reported along the way.
func (a *AsyncWriteBuffer) Flush() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.workerErr != nil {
		return a.workerErr
	}

	a.cmd <- asyncCommand{kind: cmdFlush}
	for {
		r, ok := <-a.resp
		if !ok {
			a.workerErr = ErrWorkerTerminated
			return a.workerErr
		}
		if r.kind == cmdFlush {
			if r.err != nil {
				a.workerErr = r.err
			}
			return r.err
		}
		if err := a.applyResponse(r); err != nil {
			a.workerErr = err
			return err
		}
	}
}

func (a *AsyncWriteBuffer) BeginDataZone(id zone.Identity) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.stream.Begin(id)
	a.cmd <- asyncCommand{kind: cmdBeginZone, id: id}
	a.awaitAck(cmdBeginZone)
}

func (a *AsyncWriteBuffer) ResumeDataZone(id zone.Identity, committed uint64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.stream.Resume(id, committed)
	a.cmd <- asyncCommand{kind: cmdResumeZone, id: id, committed: committed}
	a.awaitAck(cmdResumeZone)
}

func (a *AsyncWriteBuffer) EndDataZone() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.stream.End()
	a.cmd <- asyncCommand{kind: cmdEndZone}
	a.awaitAck(cmdEndZone)
}

// awaitAck drains responses until the matching zone-control ack arrives,
// crediting any write commits observed along the way. Errors surfaced
// here are stashed for the next Write/Flush caller rather than returned,
// since zone-control methods carry no error return (mirroring
// RecoverableSink's signature).
func (a *AsyncWriteBuffer) awaitAck(kind asyncCmdKind) {
	for {
		r, ok := <-a.resp
		if !ok {
			a.workerErr = ErrWorkerTerminated
			return
		}
		if r.kind == kind {
			return
		}
		if err := a.applyResponse(r); err != nil {
			a.workerErr = err
		}
	}
}

// UncommittedWrites snapshots this stage's ledger merged with the inner
// sink's, reading the inner's ledger directly under the shared mutex
// rather than routing through the worker.
func (a *AsyncWriteBuffer) UncommittedWrites() []zone.Zone {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.innerMu.Lock()
	innerZones := a.inner.UncommittedWrites()
	a.innerMu.Unlock()

	return a.stream.Snapshot(innerZones)
}

// Close terminates the worker and waits for its response channel to
// close. Safe to call once; further Write/Flush calls return
// ErrWorkerTerminated.
func (a *AsyncWriteBuffer) Close() {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return
	}
	a.closed = true
	a.cmd <- asyncCommand{kind: cmdTerminate}
	close(a.cmd)
	a.mu.Unlock()

	for range a.resp {
		// Drain remaining responses (if any were still in flight) so the
		// worker's send on a.resp never blocks after we've stopped reading.
	}
}
