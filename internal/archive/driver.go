// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package archive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/nishisan-dev/spantar/internal/journal"
	"github.com/nishisan-dev/spantar/internal/sink"
	"github.com/nishisan-dev/spantar/internal/tarfmt"
	"github.com/nishisan-dev/spantar/internal/walk"
	"github.com/nishisan-dev/spantar/internal/zone"
)

// ErrCancelled is returned by Run when the operator aborted the run
// from the volume-change prompt (the 'q' action). The caller should
// treat it as a clean, user-requested stop, not a failure.
var ErrCancelled = errors.New("archive: cancelled by operator")

// PromptAction is the operator's answer to the volume-change prompt
// spec.md §4.9's Recover state and §6's recovery prompt protocol
// present: "Volume N ran out of space", reading lines from stdin.
type PromptAction int

const (
	// ActionMountSamePath corresponds to 'y': reopen the same
	// configured path as a new volume (the common case — a tape drive
	// where the operator swapped the physical cartridge, or a file
	// target truncated and reused).
	ActionMountSamePath PromptAction = iota
	// ActionMountNewPath corresponds to 'n <path>': switch the output
	// destination to a different path for the next volume. Path carries
	// the new destination.
	ActionMountNewPath
	// ActionAbort corresponds to 'q': cancel the run.
	ActionAbort
)

// VolumePrompt is implemented by internal/prompt. CreateDriver depends
// on this interface rather than a concrete prompt type so the pipeline
// stays testable without a terminal attached. '?' (help) is handled
// entirely inside the prompt implementation — it reprints help text and
// reads another line — so it never surfaces as a PromptAction here.
type VolumePrompt interface {
	// Ask presents uncommitted to the operator and returns their
	// decision. path is only meaningful when action is
	// ActionMountNewPath.
	Ask(ctx context.Context, uncommitted []zone.Zone) (action PromptAction, path string, err error)
}

// SinkOpener mounts (or re-mounts) the sink stack the driver writes
// into — typically AsyncWriteBuffer wrapping BlockingStage wrapping a
// TapeDevice. It is called once at Init with pathOverride == "" (the
// configured default path), and again every time Recover needs a fresh
// volume: pathOverride is "" for ActionMountSamePath and the operator's
// chosen path for ActionMountNewPath.
type SinkOpener func(ctx context.Context, pathOverride string) (sink.RecoverableSink, error)

// ProgressReporter is implemented by internal/progress. CreateDriver
// depends on this narrow interface rather than a concrete reporter type
// so the pipeline stays testable without a terminal attached, the same
// dependency-inversion shape used for VolumePrompt.
type ProgressReporter interface {
	// AddBytes records n bytes as having been committed to the sink
	// (header + content + padding, matching what writeEntry counts).
	AddBytes(n int64)
	// AddObject records one entry fully written.
	AddObject()
	// AddRetry records one pass through Recover — a short write that
	// forced a new volume.
	AddRetry()
}

// Options configures a CreateDriver.
type Options struct {
	// Entries is the bounded channel of traversal results, produced by
	// walk.Walker.Walk.
	Entries <-chan walk.Result

	// OpenSink mounts the sink stack. Required.
	OpenSink SinkOpener

	// Format selects the wire encoding for every header the driver or
	// the recovery engine emits.
	Format tarfmt.Format

	// Meta resolves recovered files' header fields; passed straight
	// through to the RecoveryEngine.
	Meta walk.MetadataSource

	// SpanningEnabled gates what happens on a short write: if false, a
	// short write aborts the whole run with a fatal error naming the
	// entry (spec.md §4.9 state 3); if true, the driver transitions to
	// Recover.
	SpanningEnabled bool

	// Prompt is consulted every time the driver needs a new volume
	// mounted. Required when SpanningEnabled is true.
	Prompt VolumePrompt

	// Journal, if non-nil, receives a crash-safe checkpoint after every
	// volume mount and every entry commit, so a killed process can
	// resume without re-reading already-durable files. Optional: a nil
	// Journal disables checkpointing entirely.
	Journal *journal.Journal

	// Progress, if non-nil, is updated with bytes/objects/retries as the
	// run proceeds. Optional: a nil Progress disables reporting entirely
	// (the default, unless the caller passed --progress).
	Progress ProgressReporter
}

// CreateDriver orchestrates the create pipeline: it consumes
// HeaderGenResults from a traversal pool, drives the write through the
// sink stack, and on a short write invokes the RecoveryEngine to
// re-stream lost data onto newly mounted volumes. Grounded on spec.md
// §4.9; n-backup has no equivalent single orchestrator (its closest
// analogue, internal/agent/uploader.go, only drives one destination
// with no spanning concept), so the state-machine shape here follows
// spec.md's prose directly rather than a teacher file.
type CreateDriver struct {
	opts   Options
	engine *RecoveryEngine
	sink   sink.RecoverableSink
	volume int
}

// NewCreateDriver validates opts and returns a driver ready to Run.
func NewCreateDriver(opts Options) (*CreateDriver, error) {
	if opts.OpenSink == nil {
		return nil, errors.New("archive: OpenSink is required")
	}
	if opts.SpanningEnabled && opts.Prompt == nil {
		return nil, errors.New("archive: Prompt is required when SpanningEnabled")
	}
	return &CreateDriver{
		opts:   opts,
		engine: NewRecoveryEngine(opts.Format, opts.Meta),
	}, nil
}

// Run executes the full state machine to completion: Init, Serialize
// (looping through Recover as needed), and Finish. A nil return means
// the archive was written and properly terminated; ErrCancelled means
// the operator aborted cleanly; any other error is fatal.
func (d *CreateDriver) Run(ctx context.Context) error {
	s, err := d.openVolume(ctx, "")
	if err != nil {
		return fmt.Errorf("archive: opening sink: %w", err)
	}
	d.sink = s

	err = d.serialize(ctx)
	switch {
	case errors.Is(err, ErrCancelled):
		return ErrCancelled
	case err != nil:
		return err
	}

	return d.finish()
}

// serialize is state 2 (Serialize), looping into state 4 (Recover) on
// every short write until the channel is drained.
func (d *CreateDriver) serialize(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case r, ok := <-d.opts.Entries:
			if !ok {
				return nil
			}
			if r.Err != nil {
				// A traversal/header-encoding failure for one entry does
				// not fail the run; it is simply skipped (spec.md §7).
				continue
			}

			if err := d.writeEntry(r); err != nil {
				if !errors.Is(err, sink.ErrWriteZero) {
					return fmt.Errorf("archive: writing %s: %w", r.OriginalPath, err)
				}
				if !d.opts.SpanningEnabled {
					return fmt.Errorf("archive: short write on %s and spanning is disabled: %w", r.OriginalPath, err)
				}
				if err := d.recover(ctx); err != nil {
					return err
				}
			}
		}
	}
}

// recover is state 4 (Recover): snapshot uncommitted zones across the
// whole sink stack, prompt the operator, mount a new volume, and hand
// the zones to the RecoveryEngine. If the engine itself hits another
// short write, recover loops on its own returned leftover zones rather
// than re-entering Serialize, per spec.md §4.9 state 4's "loop on
// Recover" instruction.
func (d *CreateDriver) recover(ctx context.Context) error {
	zones := d.sink.UncommittedWrites()

	for {
		newSink, err := d.mountNextVolume(ctx, zones)
		if err != nil {
			return err
		}
		d.sink = newSink
		if d.opts.Progress != nil {
			d.opts.Progress.AddRetry()
		}

		leftover, err := d.engine.Recover(d.sink, zones)
		if err != nil {
			return err
		}
		if leftover == nil {
			return nil
		}
		zones = leftover
	}
}

// mountNextVolume asks the operator which path to mount next and opens
// it, looping on the prompt until it returns a mount decision (the
// prompt implementation itself handles '?' by reprinting help and
// re-reading a line, so only MountSamePath/MountNewPath/Abort ever
// reach here).
func (d *CreateDriver) mountNextVolume(ctx context.Context, zones []zone.Zone) (sink.RecoverableSink, error) {
	action, path, err := d.opts.Prompt.Ask(ctx, zones)
	if err != nil {
		return nil, fmt.Errorf("archive: volume prompt: %w", err)
	}
	if action == ActionAbort {
		return nil, ErrCancelled
	}

	override := ""
	if action == ActionMountNewPath {
		override = path
	}

	newSink, err := d.openVolume(ctx, override)
	if err != nil {
		return nil, fmt.Errorf("archive: opening next volume: %w", err)
	}
	return newSink, nil
}

// openVolume mounts a sink via OpenSink and, if a Journal is attached,
// checkpoints the mount before returning. The checkpoint records
// pathOverride verbatim (empty string for "the configured default
// path") since the journal's job is resuming this exact run, not
// resolving what the default path actually was.
func (d *CreateDriver) openVolume(ctx context.Context, pathOverride string) (sink.RecoverableSink, error) {
	s, err := d.opts.OpenSink(ctx, pathOverride)
	if err != nil {
		return nil, err
	}
	d.volume++
	if d.opts.Journal != nil {
		if err := d.opts.Journal.RecordVolumeMounted(d.volume, pathOverride); err != nil {
			return nil, fmt.Errorf("archive: checkpointing volume mount: %w", err)
		}
	}
	return s, nil
}

// finish is state 5: the end-of-archive marker is two all-zero
// 512-byte records (the USTAR/PAX convention every reader expects),
// followed by a flush that drains any still-buffered stage.
func (d *CreateDriver) finish() error {
	trailer := make([]byte, 1024)
	if _, err := writeAll(d.sink, trailer); err != nil {
		return fmt.Errorf("archive: writing end-of-archive marker: %w", err)
	}
	if err := d.sink.Flush(); err != nil {
		return fmt.Errorf("archive: final flush: %w", err)
	}
	if d.opts.Journal != nil {
		if err := d.opts.Journal.RecordRunFinished(); err != nil {
			return fmt.Errorf("archive: checkpointing run completion: %w", err)
		}
	}
	return nil
}

// writeEntry is state 2's per-entry body: begin a zone identified by
// this file's RecoveryEntry, write the header, the cached prefix (if
// headergen captured one), and the rest of the file by reopening it at
// the prefix's end; then pad to a 512-byte record boundary and close
// the zone.
func (d *CreateDriver) writeEntry(r walk.Result) error {
	entry := RecoveryEntry{
		OriginalPath:  r.OriginalPath,
		CanonicalPath: r.CanonicalPath,
		HeaderLength:  r.Encoded.HeaderLength,
	}
	d.sink.BeginDataZone(entry.Identity())

	written, err := writeAll(d.sink, r.Encoded.Bytes)
	if err != nil {
		return err
	}

	if r.Header.FileType == tarfmt.TypeRegular && r.Header.FileSize > 0 {
		prefixLen := uint64(len(r.FilePrefix))
		if prefixLen > 0 {
			n, err := writeAll(d.sink, r.FilePrefix)
			written += n
			if err != nil {
				return err
			}
		}
		if prefixLen < r.Header.FileSize {
			n, err := d.streamRemainder(r.CanonicalPath, prefixLen)
			written += n
			if err != nil {
				return err
			}
		}
	}

	expected := entry.HeaderLength + int(r.Header.FileSize)
	if written != expected {
		return fmt.Errorf("wrote %d bytes, expected %d (header %d + size %d)",
			written, expected, entry.HeaderLength, r.Header.FileSize)
	}

	if pad := (512 - written%512) % 512; pad > 0 {
		n, err := writeAll(d.sink, make([]byte, pad))
		written += n
		if err != nil {
			return err
		}
	}

	d.sink.EndDataZone()

	if d.opts.Journal != nil {
		if err := d.opts.Journal.RecordEntryCommitted(entry.OriginalPath, entry.CanonicalPath, int64(written)); err != nil {
			return fmt.Errorf("archive: checkpointing %s: %w", entry.OriginalPath, err)
		}
	}
	if d.opts.Progress != nil {
		d.opts.Progress.AddBytes(int64(written))
		d.opts.Progress.AddObject()
	}
	return nil
}

// streamRemainder copies a regular file's content from prefixLen to
// EOF into the sink, reusing the already-cached prefix bytes for the
// leading part of the file (spec.md §4.9's "stream the remainder by
// reopening the canonical path and seeking past the prefix").
func (d *CreateDriver) streamRemainder(path string, prefixLen uint64) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	if prefixLen > 0 {
		if _, err := f.Seek(int64(prefixLen), io.SeekStart); err != nil {
			return 0, err
		}
	}

	written := 0
	buf := make([]byte, 256*1024)
	for {
		n, rerr := f.Read(buf)
		if n > 0 {
			wn, werr := writeAll(d.sink, buf[:n])
			written += wn
			if werr != nil {
				return written, werr
			}
		}
		if rerr == io.EOF {
			return written, nil
		}
		if rerr != nil {
			return written, rerr
		}
	}
}

// writeAll loops until p is fully written, converting a zero-byte,
// no-error write — the device layer's end-of-media signal per spec.md
// §4.6 — into sink.ErrWriteZero. BlockingStage and AsyncWriteBuffer
// already return that sentinel directly, but a bare sink.Unbuffered
// wrapping a device passes the device's own (0, nil) straight through,
// so this check is the one place that normalizes both cases for every
// caller in this package.
func writeAll(w io.Writer, p []byte) (int, error) {
	total := 0
	for len(p) > 0 {
		n, err := w.Write(p)
		total += n
		if err != nil {
			return total, err
		}
		if n == 0 {
			return total, sink.ErrWriteZero
		}
		p = p[n:]
	}
	return total, nil
}
